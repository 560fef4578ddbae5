package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for the appointment lifecycle.
type BookingMetrics struct {
	created       prometheus.Counter
	conflicts     *prometheus.CounterVec
	cancellations prometheus.Counter
	dispatchTotal *prometheus.CounterVec
	opDuration    *prometheus.HistogramVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "glowdesk",
			Subsystem: "bookings",
			Name:      "created_total",
			Help:      "Total appointments created",
		}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "glowdesk",
			Subsystem: "bookings",
			Name:      "conflicts_total",
			Help:      "Total rejected bookings by conflict rule",
		}, []string{"rule"}),
		cancellations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "glowdesk",
			Subsystem: "bookings",
			Name:      "cancellations_total",
			Help:      "Total appointments moved to the cancellation archive",
		}),
		dispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "glowdesk",
			Subsystem: "automation",
			Name:      "dispatch_total",
			Help:      "Automation rule dispatch outcomes",
		}, []string{"trigger", "channel", "status"}),
		opDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "glowdesk",
			Subsystem: "bookings",
			Name:      "operation_seconds",
			Help:      "Latency of booking engine operations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.created, m.conflicts, m.cancellations, m.dispatchTotal, m.opDuration)
	return m
}

func (m *BookingMetrics) ObserveCreated() {
	if m == nil {
		return
	}
	m.created.Inc()
}

func (m *BookingMetrics) ObserveConflict(rule string) {
	if m == nil {
		return
	}
	m.conflicts.WithLabelValues(rule).Inc()
}

func (m *BookingMetrics) ObserveCancellation() {
	if m == nil {
		return
	}
	m.cancellations.Inc()
}

// ObserveDispatch records one rule dispatch outcome: sent, failed,
// suppressed, or duplicate.
func (m *BookingMetrics) ObserveDispatch(trigger, channel, status string) {
	if m == nil {
		return
	}
	m.dispatchTotal.WithLabelValues(trigger, channel, status).Inc()
}

func (m *BookingMetrics) ObserveOperation(operation string, seconds float64) {
	if m == nil {
		return
	}
	m.opDuration.WithLabelValues(operation).Observe(seconds)
}
