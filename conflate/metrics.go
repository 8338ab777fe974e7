package conflate

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// runsTotal counts matching runs by outcome (ok, cancelled, error)
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conflate_runs_total",
		Help: "Total matching runs by result",
	}, []string{"result"})

	// pairsTotal counts accepted pairs across all runs
	pairsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "conflate_pairs_total",
		Help: "Total accepted target/candidate pairs",
	})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "conflate_run_duration_seconds",
		Help:    "Matching run duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
	})

	// scoredPairs tracks how many (target, candidate) entries the finder
	// produced before disambiguation
	scoredPairs = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "conflate_scored_pairs",
		Help:    "Scored target/candidate entries per run",
		Buckets: []float64{1, 10, 100, 1000, 10000, 100000},
	})
)

const (
	runResultOK        = "ok"
	runResultCancelled = "cancelled"
	runResultError     = "error"
)

func observeRun(result string, d time.Duration, pairs, scored int) {
	runsTotal.WithLabelValues(result).Inc()
	runDuration.Observe(d.Seconds())
	if result != runResultOK {
		return
	}
	pairsTotal.Add(float64(pairs))
	scoredPairs.Observe(float64(scored))
}
