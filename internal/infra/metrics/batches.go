package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(batchExpansionsTotal) }

var batchExpansionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "batch_expansions_total",
		Help: "Batch expansion attempts, labeled by kind and outcome.",
	},
	[]string{"kind", "outcome"}, // kind: 'batch', 'edit_batch'; outcome: 'expanded', 'failed'
)

func IncBatchExpanded(kind, outcome string) {
	batchExpansionsTotal.WithLabelValues(norm(kind), norm(outcome)).Inc()
}
