package bundle

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	statementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pursledger_statements_total",
		Help: "Remote statements issued while assembling bundles, labeled by outcome",
	}, []string{"statement", "outcome"})

	bundlesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pursledger_bundles_total",
		Help: "Bundles assembled, labeled by result",
	}, []string{"result"})

	bundleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pursledger_bundle_duration_seconds",
		Help:    "Time spent assembling one bundle",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5},
	})
)
