// Package agendabus is the asynchronous coordination layer the distributed
// calendar services embed. Instead of calling each other directly for writes,
// the API gateway, users, groups, and events services exchange JSON envelopes
// over a shared publish/subscribe broker; this package owns everything those
// exchanges have in common.
//
// It provides, on top of Watermill transports (Redis streams, NATS, Kafka,
// RabbitMQ, or in-memory Go channels for tests):
//   - a broker connector with bounded-attempt exponential backoff and one
//     implicit reconnect per failed publish or subscribe
//   - the shared envelope codec (event_id, type, timestamp, version, optional
//     correlation_id/response_channel, payload)
//   - a handler registry and dispatch loop with per-handler failure isolation
//     and a bounded worker pool for blocking handlers
//   - a correlation-id request/reply exchange layered over fire-and-forget
//     pub/sub, with single-assignment resolution and deadline sweeping
//   - the scheduling conflict detector over half-open time intervals
//   - the group fan-out orchestrator with partial-failure accounting
//
// A minimal setup fills Config, creates a Bus, registers handlers for the
// inbound event types, and calls Listen for each subscribed channel. Route
// handlers then use Publish, RequestReply, CheckConflicts, and Fanout; the
// liveness endpoint mounts Bus.HealthHandler.
//
// The layer deliberately stays transient: envelopes are never persisted, and
// request/reply state lives in process memory only for the lifetime of one
// exchange. Delivery is at most once per attempt.
package agendabus
