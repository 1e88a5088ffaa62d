package metrics

import "github.com/prometheus/client_golang/prometheus"

// EventMetrics records delivery of order events to sinks and the outbox relay.
type EventMetrics struct {
	dispatched *prometheus.CounterVec
	dropped    prometheus.Counter
	relayed    *prometheus.CounterVec
}

func NewEventMetrics(reg prometheus.Registerer) *EventMetrics {
	if reg == nil {
		return &EventMetrics{}
	}
	dispatched := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "events_dispatched_total",
		Help: "Order events delivered to each sink by outcome.",
	}, []string{"sink", "outcome"})
	dropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "events_dropped_total",
		Help: "Order events dropped because the dispatch queue was full or closed.",
	})
	relayed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_relayed_total",
		Help: "Outbox rows handled by the publisher by result.",
	}, []string{"result"})
	reg.MustRegister(dispatched, dropped, relayed)
	return &EventMetrics{dispatched: dispatched, dropped: dropped, relayed: relayed}
}

func (m *EventMetrics) ObserveDispatch(sink string, err error) {
	if m == nil || m.dispatched == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.dispatched.WithLabelValues(normalizeLabel(sink), outcome).Inc()
}

func (m *EventMetrics) IncDropped() {
	if m == nil || m.dropped == nil {
		return
	}
	m.dropped.Inc()
}

// ObserveRelay counts an outbox row as published, retried, or dead-lettered.
func (m *EventMetrics) ObserveRelay(result string) {
	if m == nil || m.relayed == nil {
		return
	}
	m.relayed.WithLabelValues(normalizeLabel(result)).Inc()
}
