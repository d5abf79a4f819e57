package runner

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "judgebench_runs_total",
			Help: "Evaluation runs by result",
		},
		[]string{"result"},
	)

	itemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "judgebench_run_items_total",
			Help: "Evaluated assignments by outcome",
		},
		[]string{"outcome"},
	)

	verdictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "judgebench_verdicts_total",
			Help: "Persisted verdicts by label",
		},
		[]string{"verdict"},
	)

	judgeCallSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "judgebench_judge_call_seconds",
			Help:    "Latency of judge model calls, including retries",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)

	inFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "judgebench_run_items_in_flight",
			Help: "Assignments currently being evaluated",
		},
	)
)
