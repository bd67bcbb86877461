package metrics

import "github.com/prometheus/client_golang/prometheus"

// PaymentMetrics exposes counters/histograms for payment flows.
type PaymentMetrics struct {
	initiatedTotal *prometheus.CounterVec
	settledTotal   *prometheus.CounterVec
	pollDuration   prometheus.Histogram
}

func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	m := &PaymentMetrics{
		initiatedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "payments",
			Name:      "initiated_total",
			Help:      "Total payment initiations by provider, method and result status",
		}, []string{"provider", "method", "status"}),
		settledTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "payments",
			Name:      "settled_total",
			Help:      "Total terminal settlement transitions by provider",
		}, []string{"provider", "status"}),
		pollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "payments",
			Name:      "settlement_poll_seconds",
			Help:      "Wall time spent awaiting asynchronous settlement",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.initiatedTotal, m.settledTotal, m.pollDuration)
	return m
}

func (m *PaymentMetrics) ObserveInitiated(provider, method, status string) {
	if m == nil {
		return
	}
	m.initiatedTotal.WithLabelValues(provider, method, status).Inc()
}

func (m *PaymentMetrics) ObserveSettled(provider, status string) {
	if m == nil {
		return
	}
	m.settledTotal.WithLabelValues(provider, status).Inc()
}

func (m *PaymentMetrics) ObservePollDuration(seconds float64) {
	if m == nil {
		return
	}
	m.pollDuration.Observe(seconds)
}

// BookingMetrics exposes counters for the booking orchestrator.
type BookingMetrics struct {
	attemptsTotal        *prometheus.CounterVec
	compensationFailures prometheus.Counter
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		attemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "bookings",
			Name:      "attempts_total",
			Help:      "Total booking attempts by outcome",
		}, []string{"outcome"}),
		compensationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "bookings",
			Name:      "compensation_failures_total",
			Help:      "Compensating deletes that did not succeed; each one leaves an orphaned appointment and must page",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.attemptsTotal, m.compensationFailures)
	return m
}

func (m *BookingMetrics) ObserveAttempt(outcome string) {
	if m == nil {
		return
	}
	m.attemptsTotal.WithLabelValues(outcome).Inc()
}

func (m *BookingMetrics) ObserveCompensationFailure() {
	if m == nil {
		return
	}
	m.compensationFailures.Inc()
}
