package manager

import "github.com/prometheus/client_golang/prometheus"

var (
	swapsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lorad",
			Subsystem: "manager",
			Name:      "swaps_total",
			Help:      "Model swaps attempted, by result",
		},
		[]string{"result"},
	)

	swapDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "lorad",
			Subsystem: "manager",
			Name:      "swap_duration_seconds",
			Help:      "Duration of model swaps in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	fastPathTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "lorad",
			Subsystem: "manager",
			Name:      "fast_path_total",
			Help:      "Requests served by the already-active model without a swap",
		},
	)

	cleanupFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lorad",
			Subsystem: "manager",
			Name:      "cleanup_failures_total",
			Help:      "Best-effort cleanup operations that failed",
		},
		[]string{"op"},
	)

	streamDeltasTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "lorad",
			Subsystem: "manager",
			Name:      "stream_deltas_total",
			Help:      "Generated deltas relayed to callers",
		},
	)

	streamsInterruptedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "lorad",
			Subsystem: "manager",
			Name:      "streams_interrupted_total",
			Help:      "Generation streams that ended abnormally after starting",
		},
	)
)

func init() {
	prometheus.MustRegister(swapsTotal, swapDuration, fastPathTotal, cleanupFailuresTotal, streamDeltasTotal, streamsInterruptedTotal)
}
