package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	ResultSuccess  = "success"
	ResultFailure  = "failure"
	ResultRejected = "rejected"
)

// CheckoutMetrics tracks the checkout funnel.
type CheckoutMetrics struct {
	transitions *prometheus.CounterVec
	promos      *prometheus.CounterVec
	orders      *prometheus.CounterVec
	submission  *prometheus.HistogramVec
	corrupted   *prometheus.CounterVec
}

// NewCheckoutMetrics registers the checkout metrics on the provided registerer.
// A nil registerer yields a no-op collector.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	m := &CheckoutMetrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_step_transitions_total",
			Help:      "Checkout step advance attempts by step and result.",
		}, []string{"step", "result"}),
		promos: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_promo_applications_total",
			Help:      "Promo code applications by result.",
		}, []string{"code", "result"}),
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_orders_total",
			Help:      "Order submissions by order type and result.",
		}, []string{"order_type", "result"}),
		submission: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "checkout_submission_duration_seconds",
			Help:      "Time spent handing orders to the order sink.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"mode"}),
		corrupted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_corrupted_values_total",
			Help:      "Stored values discarded because they failed to parse or validate.",
		}, []string{"key"}),
	}
	reg.MustRegister(m.transitions, m.promos, m.orders, m.submission, m.corrupted)
	return m
}

func (m *CheckoutMetrics) StepTransition(step string, result string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(step), normalizeLabel(result)).Inc()
}

// PromoApplied records a promo attempt. Unknown codes are folded into one label.
func (m *CheckoutMetrics) PromoApplied(code string, result string) {
	if m == nil || m.promos == nil {
		return
	}
	if result != ResultSuccess {
		code = "unknown"
	}
	m.promos.WithLabelValues(normalizeLabel(code), normalizeLabel(result)).Inc()
}

func (m *CheckoutMetrics) OrderSubmitted(orderType string, result string) {
	if m == nil || m.orders == nil {
		return
	}
	m.orders.WithLabelValues(normalizeLabel(orderType), normalizeLabel(result)).Inc()
}

func (m *CheckoutMetrics) ObserveSubmission(mode string, duration time.Duration) {
	if m == nil || m.submission == nil {
		return
	}
	m.submission.WithLabelValues(normalizeLabel(mode)).Observe(duration.Seconds())
}

func (m *CheckoutMetrics) CorruptedValue(key string) {
	if m == nil || m.corrupted == nil {
		return
	}
	m.corrupted.WithLabelValues(normalizeLabel(key)).Inc()
}
