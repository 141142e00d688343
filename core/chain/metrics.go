package chain

import "github.com/prometheus/client_golang/prometheus"

// Metrics wraps the prometheus counters the chain exposes, a generalization
// of the teacher's p2p/metrics.go pattern (a small struct of pre-registered
// collectors, constructed once and passed around rather than touching the
// global default registry from arbitrary call sites).
type Metrics struct {
	applied  prometheus.Counter
	rejected prometheus.Counter
	noOps    *prometheus.CounterVec
}

// NewMetrics registers the chain's collectors against reg. A nil registry
// produces working-but-unregistered collectors, convenient for tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		applied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_chain_blocks_applied_total",
			Help: "Number of blocks successfully applied to the chain.",
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_chain_blocks_rejected_total",
			Help: "Number of blocks rejected for structural invariant failures.",
		}),
		noOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_chain_handler_noops_total",
			Help: "Number of handler invocations that failed preconditions and no-oped.",
		}, []string{"tx_type"}),
	}
	if reg != nil {
		reg.MustRegister(m.applied, m.rejected, m.noOps)
	}
	return m
}

func (m *Metrics) blockApplied() {
	if m == nil {
		return
	}
	m.applied.Inc()
}

func (m *Metrics) blockRejected() {
	if m == nil {
		return
	}
	m.rejected.Inc()
}

func (m *Metrics) handlerNoOp(txType string) {
	if m == nil {
		return
	}
	m.noOps.WithLabelValues(txType).Inc()
}
