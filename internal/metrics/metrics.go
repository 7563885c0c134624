// Package metrics declares the domain-level Prometheus collectors shared by
// the services. HTTP metrics live next to the router.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "fintrack"

var (
	// LedgerMutations counts committed ledger writes by operation and source.
	LedgerMutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_mutations_total",
			Help:      "Committed transaction create/update/delete operations",
		},
		[]string{"op", "source"},
	)
	// AIActions counts dispatched assistant actions by kind and outcome.
	AIActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ai_actions_total",
			Help:      "Assistant actions extracted from model output",
		},
		[]string{"action", "outcome"},
	)
	// FXRefreshes counts exchange-rate refresh attempts by result.
	FXRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fx_refresh_total",
			Help:      "Exchange rate refresh attempts",
		},
		[]string{"result"},
	)
	// OutboundDuration observes third-party call latency.
	OutboundDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "outbound_request_duration_seconds",
			Help:      "Latency of calls to third-party services",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "result"},
	)
	// BankImports counts bank-sync rows by outcome.
	BankImports = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bank_import_rows_total",
			Help:      "Rows seen during bank sync",
		},
		[]string{"outcome"},
	)
)

// Result maps an error to a low-cardinality label.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
