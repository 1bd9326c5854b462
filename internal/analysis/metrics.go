package analysis

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	analysesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parlance_analyses_total",
		Help: "Answer analyses by outcome.",
	}, []string{"status"})

	analysisDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "parlance_analysis_duration_seconds",
		Help:    "End-to-end duration of one answer analysis.",
		Buckets: prometheus.DefBuckets,
	})

	narrativeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parlance_narrative_failures_total",
		Help: "Narrative detector calls that failed and were skipped.",
	})

	flaggedSentences = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parlance_flagged_sentences_total",
		Help: "Reconciled sentence findings by category.",
	}, []string{"category"})
)
