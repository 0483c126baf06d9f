// Package bus holds the event-bus runtime: the broker connector with its
// reconnect policy, the handler dispatch loop, the correlation-reply waiter,
// and the Bus facade that ties them together. The exported surface of the
// module lives in the root agendabus package; code outside this repository
// should import that instead.
package bus
