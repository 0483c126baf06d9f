package bus

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNilMetricsRecordNothingAndNeverPanic(t *testing.T) {
	var m *Metrics

	m.IncPublishes("users_events")
	m.IncPublishFailures("users_events")
	m.IncDispatched("user_created")
	m.IncHandlerFailures("user_created")
	m.IncDecodeDrops()
	m.IncRequests()
	m.IncRequestTimeouts()
	m.SetPendingRequests(3)
	m.IncReconnects()
}

func TestNewMetricsDisabledReturnsNil(t *testing.T) {
	if m := NewMetrics(false, prometheus.NewRegistry()); m != nil {
		t.Error("NewMetrics(false, ...) should return nil")
	}
}

func TestMetricsRegisterAndCount(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	m := NewMetrics(true, reg)
	if m == nil {
		t.Fatal("NewMetrics(true, ...) returned nil")
	}

	m.IncPublishes("users_events")
	m.IncPublishes("users_events")
	m.IncDispatched("user_created")
	m.IncRequests()
	m.SetPendingRequests(2)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	values := map[string]float64{}
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				values[mf.GetName()] += metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				values[mf.GetName()] = metric.GetGauge().GetValue()
			}
		}
	}

	if got := values["agendabus_publishes_total"]; got != 2 {
		t.Errorf("agendabus_publishes_total = %v, want 2", got)
	}
	if got := values["agendabus_events_dispatched_total"]; got != 1 {
		t.Errorf("agendabus_events_dispatched_total = %v, want 1", got)
	}
	if got := values["agendabus_requests_total"]; got != 1 {
		t.Errorf("agendabus_requests_total = %v, want 1", got)
	}
	if got := values["agendabus_pending_requests"]; got != 2 {
		t.Errorf("agendabus_pending_requests = %v, want 2", got)
	}
}
