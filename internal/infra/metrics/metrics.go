package metrics

import "github.com/prometheus/client_golang/prometheus"

// Ledger holds the processor's counters. A nil *Ledger is valid and
// records nothing, so wiring metrics stays optional.
type Ledger struct {
	committed *prometheus.CounterVec
	failed    *prometheus.CounterVec
	retries   prometheus.Counter
}

func New(reg prometheus.Registerer) *Ledger {
	m := &Ledger{
		committed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_transactions_committed_total",
			Help: "Committed ledger transactions by action kind.",
		}, []string{"kind"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_transactions_failed_total",
			Help: "Rejected or failed submissions by reason.",
		}, []string{"reason"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_version_conflict_retries_total",
			Help: "Optimistic version conflicts retried inside the processor.",
		}),
	}
	reg.MustRegister(m.committed, m.failed, m.retries)
	return m
}

func (m *Ledger) Committed(kind string) {
	if m == nil {
		return
	}
	m.committed.WithLabelValues(kind).Inc()
}

func (m *Ledger) Failed(reason string) {
	if m == nil {
		return
	}
	m.failed.WithLabelValues(reason).Inc()
}

func (m *Ledger) Retried() {
	if m == nil {
		return
	}
	m.retries.Inc()
}
