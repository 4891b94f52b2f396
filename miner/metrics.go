package miner

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/xcoin/miner/accel"
)

const (
	outcomeFound    = "found"
	outcomeTimeout  = "timeout"
	outcomeCanceled = "canceled"
	outcomeInvalid  = "invalid"
)

var (
	searchesMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "miner",
		Subsystem: "search",
		Name:      "total",
		Help:      "Number of searches by outcome",
	}, []string{"outcome"})

	searchDurationMetric = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "miner",
		Subsystem: "search",
		Name:      "duration_seconds",
		Help:      "Wall-clock duration of searches that started workers",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 16),
	})

	hashesMetric = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "miner",
		Name:      "hashes_total",
		Help:      "Number of computed digests",
	})

	hashRateMetric = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "miner",
		Name:      "hashes_per_second",
		Help:      "Hash rate of the running or last search",
	})

	workersMetric = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "miner",
		Name:      "workers",
		Help:      "Number of hashing workers used by the last search",
	})

	tierMetric = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "miner",
		Name:      "acceleration_tier",
		Help:      "Acceleration tier used by the last search (1 for the active tier)",
	}, []string{"tier"})
)

func reportSelection(tier accel.Tier, workers int) {
	workersMetric.Set(float64(workers))
	for _, t := range accel.Tiers() {
		v := 0.0
		if t == tier {
			v = 1
		}
		tierMetric.WithLabelValues(t.String()).Set(v)
	}
}
