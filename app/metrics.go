package app

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts what the engine did. Counters only, current state is
// always derivable from the store.
type Metrics struct {
	OperationsCreated *prometheus.CounterVec
	ApprovalsRecorded prometheus.Counter
	Executions        *prometheus.CounterVec
	PendingExpired    prometheus.Counter
}

// NewMetrics registers the engine collectors with the given registerer.
// Pass nil to skip registration, for example in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OperationsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "custody",
			Name:      "operations_created_total",
			Help:      "Number of operations created, by kind.",
		}, []string{"kind"}),
		ApprovalsRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "custody",
			Name:      "approvals_recorded_total",
			Help:      "Number of partial signatures recorded.",
		}),
		Executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "custody",
			Name:      "executions_total",
			Help:      "Number of submission attempts, by outcome.",
		}, []string{"outcome"}),
		PendingExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "custody",
			Name:      "pending_expired_total",
			Help:      "Number of pending operations swept by expiry.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.OperationsCreated,
			m.ApprovalsRecorded,
			m.Executions,
			m.PendingExpired,
		)
	}
	return m
}
