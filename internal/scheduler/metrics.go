package scheduler

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics instruments the refresh loader, fire scanner, and dispatcher.
// Exported metric names:
//   - timerd_hotset_size
//   - timerd_refresh_duration_seconds
//   - timerd_refresh_errors_total
//   - timerd_scan_due_total
//   - timerd_claim_lost_total
//   - timerd_dispatch_total (by kind, outcome)
//   - timerd_dispatch_duration_seconds
type Metrics struct {
	HotSetSize       prometheus.Gauge
	RefreshDuration  prometheus.Histogram
	RefreshErrors    prometheus.Counter
	ScanDue          prometheus.Counter
	ClaimLost        prometheus.Counter
	DispatchTotal    *prometheus.CounterVec
	DispatchDuration *prometheus.HistogramVec
}

var (
	metricsOnce sync.Once
	metrics     *Metrics
)

// NewMetrics returns the process-wide scheduler metrics singleton.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		metrics = &Metrics{
			HotSetSize: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "timerd_hotset_size",
				Help: "Current number of timers held in the hot set.",
			}),
			RefreshDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "timerd_refresh_duration_seconds",
				Help:    "Duration of a single refresh loader tick.",
				Buckets: prometheus.DefBuckets,
			}),
			RefreshErrors: promauto.NewCounter(prometheus.CounterOpts{
				Name: "timerd_refresh_errors_total",
				Help: "Total refresh loader query failures.",
			}),
			ScanDue: promauto.NewCounter(prometheus.CounterOpts{
				Name: "timerd_scan_due_total",
				Help: "Total timers observed due by the fire scanner.",
			}),
			ClaimLost: promauto.NewCounter(prometheus.CounterOpts{
				Name: "timerd_claim_lost_total",
				Help: "Total claim_for_firing calls that lost the race or found a terminal row.",
			}),
			DispatchTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "timerd_dispatch_total",
				Help: "Total dispatch attempts by callback kind and outcome.",
			}, []string{"kind", "outcome"}),
			DispatchDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "timerd_dispatch_duration_seconds",
				Help:    "Dispatch attempt duration in seconds by callback kind.",
				Buckets: prometheus.DefBuckets,
			}, []string{"kind"}),
		}
	})
	return metrics
}
