package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BookingMetrics exposes gauges, counters and histograms for the booking flow.
type BookingMetrics struct {
	sessionsActive   prometheus.Gauge
	sessionsRejected prometheus.Counter
	turnsTotal       *prometheus.CounterVec
	bookingsTotal    *prometheus.CounterVec
	recommendations  *prometheus.CounterVec
	confirmations    *prometheus.CounterVec
	slotSearch       prometheus.Histogram
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "medibook",
			Name:      "sessions_active",
			Help:      "Conversation sessions currently registered",
		}),
		sessionsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "medibook",
			Name:      "sessions_rejected_total",
			Help:      "Connections refused because the session registry was full",
		}),
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medibook",
			Name:      "turns_total",
			Help:      "Conversation turns processed, by state before the turn",
		}, []string{"state"}),
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medibook",
			Name:      "bookings_total",
			Help:      "Booking pipeline outcomes",
		}, []string{"outcome"}),
		recommendations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medibook",
			Name:      "recommendations_total",
			Help:      "Recommendation oracle results",
		}, []string{"result"}),
		confirmations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medibook",
			Name:      "confirmations_total",
			Help:      "Appointment confirmation attempts",
		}, []string{"result"}),
		slotSearch: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "medibook",
			Name:      "slot_search_seconds",
			Help:      "Latency of earliest-slot searches",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.sessionsActive, m.sessionsRejected, m.turnsTotal, m.bookingsTotal, m.recommendations, m.confirmations, m.slotSearch)
	return m
}

func (m *BookingMetrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessionsActive.Inc()
}

func (m *BookingMetrics) SessionClosed() {
	if m == nil {
		return
	}
	m.sessionsActive.Dec()
}

func (m *BookingMetrics) SessionRejected() {
	if m == nil {
		return
	}
	m.sessionsRejected.Inc()
}

func (m *BookingMetrics) ObserveTurn(state string) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(state).Inc()
}

// ObserveBooking records a pipeline outcome such as booked, no_availability,
// conflict, rejected or error.
func (m *BookingMetrics) ObserveBooking(outcome string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(outcome).Inc()
}

func (m *BookingMetrics) ObserveRecommendation(result string) {
	if m == nil {
		return
	}
	m.recommendations.WithLabelValues(result).Inc()
}

func (m *BookingMetrics) ObserveConfirmation(result string) {
	if m == nil {
		return
	}
	m.confirmations.WithLabelValues(result).Inc()
}

func (m *BookingMetrics) ObserveSlotSearch(d time.Duration) {
	if m == nil {
		return
	}
	m.slotSearch.Observe(d.Seconds())
}
