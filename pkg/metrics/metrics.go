package metrics

import "github.com/prometheus/client_golang/prometheus"

// Prometheus metrics for payment settlement and reconciliation
var (
	ChargesInitiatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "charges_initiated_total",
			Help: "Total number of charge attempts accepted by a provider",
		},
		[]string{"provider"},
	)

	ChargeFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "charge_failures_total",
			Help: "Total number of charge attempts rejected before the ledger write",
		},
		[]string{"provider", "kind"},
	)

	CallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callbacks_total",
			Help: "Total number of provider callbacks by outcome",
		},
		[]string{"provider", "result"},
	)

	DuplicateCallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duplicate_callbacks_total",
			Help: "Total number of callbacks suppressed by the ledger's terminal-state guard",
		},
		[]string{"provider"},
	)

	ReconciliationGapsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciliation_gaps_total",
			Help: "Provider-side charges with no local ledger record; requires the sweep",
		},
		[]string{"provider"},
	)

	CapturesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "captures_total",
			Help: "Total number of synchronous capture attempts by outcome",
		},
		[]string{"result"},
	)
)

// Register registers all Prometheus metrics
func Register() {
	prometheus.MustRegister(
		ChargesInitiatedTotal,
		ChargeFailuresTotal,
		CallbacksTotal,
		DuplicateCallbacksTotal,
		ReconciliationGapsTotal,
		CapturesTotal,
	)
}
