package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics records counters for stock mutations and dispatch outcomes.
type LedgerMetrics struct {
	reservations   *prometheus.CounterVec
	restocks       *prometheus.CounterVec
	accepts        *prometheus.CounterVec
	outboxDuration *prometheus.HistogramVec
	outboxFailure  *prometheus.CounterVec
}

// NewLedgerMetrics registers the ledger metrics on the provided registerer.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	reservations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_reservations_total",
		Help: "Stock reservation attempts by result.",
	}, []string{"result"})
	restocks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_restock_transitions_total",
		Help: "Restock workflow transitions by target status.",
	}, []string{"status"})
	accepts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "marketplace_accepts_total",
		Help: "Marketplace listing accept attempts by result.",
	}, []string{"result"})
	outboxDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "outbox_publish_duration_seconds",
		Help:    "Duration of outbox publish batches in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"topic"})
	outboxFailure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_publish_failures_total",
		Help: "Failed outbox publish attempts.",
	}, []string{"topic"})
	reg.MustRegister(reservations, restocks, accepts, outboxDuration, outboxFailure)
	return &LedgerMetrics{
		reservations:   reservations,
		restocks:       restocks,
		accepts:        accepts,
		outboxDuration: outboxDuration,
		outboxFailure:  outboxFailure,
	}
}

// IncReservation counts a reservation attempt with its result label.
func (m *LedgerMetrics) IncReservation(result string) {
	if m == nil || m.reservations == nil {
		return
	}
	m.reservations.WithLabelValues(normalizeLabel(result)).Inc()
}

// IncRestockTransition counts a restock state change.
func (m *LedgerMetrics) IncRestockTransition(status string) {
	if m == nil || m.restocks == nil {
		return
	}
	m.restocks.WithLabelValues(normalizeLabel(status)).Inc()
}

// IncAccept counts a listing accept attempt with its result label.
func (m *LedgerMetrics) IncAccept(result string) {
	if m == nil || m.accepts == nil {
		return
	}
	m.accepts.WithLabelValues(normalizeLabel(result)).Inc()
}

// ObservePublishDuration records the duration of a publish batch.
func (m *LedgerMetrics) ObservePublishDuration(topic string, duration time.Duration) {
	if m == nil || m.outboxDuration == nil {
		return
	}
	m.outboxDuration.WithLabelValues(normalizeLabel(topic)).Observe(duration.Seconds())
}

// IncPublishFailure counts a failed publish attempt.
func (m *LedgerMetrics) IncPublishFailure(topic string) {
	if m == nil || m.outboxFailure == nil {
		return
	}
	m.outboxFailure.WithLabelValues(normalizeLabel(topic)).Inc()
}

// Result labels used by the accept and reservation counters.
const (
	ResultWon        = "won"
	ResultRaceLost   = "race_lost"
	ResultReserved   = "reserved"
	ResultShort      = "insufficient_stock"
	ResultReleased   = "released"
	ResultTransferred = "transferred"
)

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
