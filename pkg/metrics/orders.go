package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OrderMetrics records checkout and order mutation outcomes.
type OrderMetrics struct {
	checkouts        *prometheus.CounterVec
	checkoutDuration prometheus.Histogram
	mutations        *prometheus.CounterVec
}

// NewOrderMetrics registers the order metrics on reg. A nil registerer
// yields a no-op collector.
func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return &OrderMetrics{}
	}
	checkouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_total",
		Help: "Checkout attempts by outcome.",
	}, []string{"outcome"})
	checkoutDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "checkout_duration_seconds",
		Help:    "Duration of the checkout transaction in seconds.",
		Buckets: prometheus.DefBuckets,
	})
	mutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_mutation_total",
		Help: "Order mutations by operation and outcome.",
	}, []string{"operation", "outcome"})
	reg.MustRegister(checkouts, checkoutDuration, mutations)
	return &OrderMetrics{
		checkouts:        checkouts,
		checkoutDuration: checkoutDuration,
		mutations:        mutations,
	}
}

// ObserveCheckout counts a checkout attempt and records its duration.
func (m *OrderMetrics) ObserveCheckout(err error, duration time.Duration) {
	if m == nil || m.checkouts == nil {
		return
	}
	m.checkouts.WithLabelValues(Outcome(err)).Inc()
	m.checkoutDuration.Observe(duration.Seconds())
}

// ObserveMutation counts an order mutation.
func (m *OrderMetrics) ObserveMutation(operation string, err error) {
	if m == nil || m.mutations == nil {
		return
	}
	m.mutations.WithLabelValues(normalizeLabel(operation), Outcome(err)).Inc()
}
