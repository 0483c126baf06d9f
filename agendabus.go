package agendabus

import (
	"context"

	buspkg "github.com/agendabus/agendabus/internal/bus"
	configpkg "github.com/agendabus/agendabus/internal/bus/config"
	envelopepkg "github.com/agendabus/agendabus/internal/bus/envelope"
	errspkg "github.com/agendabus/agendabus/internal/bus/errors"
	fanoutpkg "github.com/agendabus/agendabus/internal/bus/fanout"
	idspkg "github.com/agendabus/agendabus/internal/bus/ids"
	jsoncodec "github.com/agendabus/agendabus/internal/bus/jsoncodec"
	loggingpkg "github.com/agendabus/agendabus/internal/bus/logging"
	schedulepkg "github.com/agendabus/agendabus/internal/bus/schedule"
	newtransport "github.com/agendabus/agendabus/transport"
)

type (
	Config       = configpkg.Config
	Bus          = buspkg.Bus
	Dependencies = buspkg.Dependencies

	Envelope = envelopepkg.Envelope

	Handler             = buspkg.Handler
	HandlerFunc         = buspkg.HandlerFunc
	HandlerRegistration = buspkg.HandlerRegistration
	ExecMode            = buspkg.ExecMode

	LogFields = loggingpkg.LogFields
	BusLogger = loggingpkg.BusLogger

	DecodeError  = errspkg.DecodeError
	HandlerError = errspkg.HandlerError

	// Scheduling types
	Interval = schedulepkg.Interval

	// Fan-out types
	FanoutResult  = fanoutpkg.Result
	FanoutStatus  = fanoutpkg.Status
	FanoutCreated = fanoutpkg.Created
	FanoutFailed  = fanoutpkg.Failed

	// Modular transport types
	Transport             = newtransport.Transport
	TransportBuilder      = newtransport.Builder
	TransportConfig       = newtransport.Config
	TransportRegistry     = newtransport.Registry
	TransportCapabilities = newtransport.Capabilities
	TransportPinger       = newtransport.Pinger
)

var (
	NewBus         = buspkg.NewBus
	ValidateConfig = configpkg.ValidateConfig

	NewEnvelope  = envelopepkg.New
	ReplyChannel = buspkg.ReplyChannel

	// Scheduling helpers
	Overlaps       = schedulepkg.Overlaps
	CheckConflicts = schedulepkg.Conflicts

	// Modular transport registry.
	// Import individual transports via: _ "github.com/agendabus/agendabus/transport/redis"
	DefaultTransportRegistry = newtransport.DefaultRegistry
	RegisterTransport        = newtransport.Register
	BuildTransport           = newtransport.Build
	TransportNames           = newtransport.Names
	GetCapabilities          = newtransport.GetCapabilities

	Marshal   = jsoncodec.Marshal
	Unmarshal = jsoncodec.Unmarshal
	Encode    = jsoncodec.Encode
	Decode    = jsoncodec.Decode

	ErrTransportUnavailable = errspkg.ErrTransportUnavailable
	ErrResponseTimeout      = errspkg.ErrResponseTimeout
	ErrBusClosed            = errspkg.ErrBusClosed
	ErrConfigRequired       = errspkg.ErrConfigRequired
	ErrLoggerRequired       = errspkg.ErrLoggerRequired
	ErrChannelRequired      = errspkg.ErrChannelRequired
	ErrEventTypeRequired    = errspkg.ErrEventTypeRequired
	ErrHandlerRequired      = errspkg.ErrHandlerRequired
	ErrPayloadRequired      = errspkg.ErrPayloadRequired
	IsDecodeError           = errspkg.IsDecodeError

	NewSlogBusLogger      = loggingpkg.NewSlogBusLogger
	NewWatermillBusLogger = loggingpkg.NewWatermillBusLogger

	CreateULID       = idspkg.CreateULID
	NewEventID       = idspkg.NewEventID
	NewCorrelationID = idspkg.NewCorrelationID
)

const (
	EnvelopeVersion = envelopepkg.Version

	MetadataKeyEventType     = envelopepkg.MetadataKeyEventType
	MetadataKeyCorrelationID = envelopepkg.MetadataKeyCorrelationID

	ExecPooled = buspkg.ExecPooled
	ExecInline = buspkg.ExecInline

	FanoutSuccess        = fanoutpkg.StatusSuccess
	FanoutPartialSuccess = fanoutpkg.StatusPartialSuccess
	FanoutFailure        = fanoutpkg.StatusFailure
)

// Fanout runs one operation per group member and collects the per-member
// outcomes. Every member is attempted even when earlier members fail; there
// is no rollback of already created events.
func Fanout[O any](ctx context.Context, members []string, build func(memberID string) O, execute func(ctx context.Context, memberID string, op O) (string, error)) FanoutResult {
	return fanoutpkg.Run(ctx, members, build, execute)
}
