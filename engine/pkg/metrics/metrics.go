package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "haio_vesting_build_info",
			Help: "Build information of the vesting settlement service",
		},
		[]string{"version", "commit", "date"},
	)

	CrankRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "haio_vesting_crank_runs_total",
			Help: "Total number of crank calls",
		},
		[]string{"status"},
	)

	CrankPairsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "haio_vesting_crank_pairs_total",
			Help: "Total number of schedule/vault pairs handled by crank calls",
		},
		[]string{"result"},
	)

	CrankDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "haio_vesting_crank_duration_seconds",
			Help:    "Duration of crank calls",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 0.001s to ~4.1s
		},
	)

	SchedulesCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "haio_vesting_schedules_created_total",
			Help: "Total number of vesting schedules created",
		},
	)

	TokensReleasedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "haio_vesting_tokens_released_total",
			Help: "Total token units released to the distribution collector",
		},
	)

	CollectorRotationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "haio_vesting_collector_rotations_total",
			Help: "Total number of collector rotation transitions",
		},
		[]string{"phase"},
	)
)
