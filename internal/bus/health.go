package bus

import (
	"net/http"

	"github.com/agendabus/agendabus/internal/bus/jsoncodec"
)

// HealthHandler returns the liveness handler every calendar service mounts:
// it reports broker connectivity as {"connected": bool} and answers 503 when
// the broker is unreachable.
func (b *Bus) HealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		connected := b.IsConnected()

		w.Header().Set("Content-Type", "application/json")
		if !connected {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = jsoncodec.Encode(w, map[string]any{
			"service":   b.Conf.ServiceName,
			"connected": connected,
		})
	})
}
