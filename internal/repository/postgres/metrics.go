package postgres

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks Persistent Store operation counts, errors, and latency.
// Exported metric names:
//   - timerd_repository_operations_total
//   - timerd_repository_errors_total
//   - timerd_repository_operation_duration_seconds
type Metrics struct {
	operations *prometheus.CounterVec
	errors     *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

var (
	metricsOnce sync.Once
	metrics     *Metrics
)

// NewMetrics returns the process-wide repository metrics singleton.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		metrics = &Metrics{
			operations: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "timerd_repository_operations_total",
				Help: "Total successful persistent store operations by operation name.",
			}, []string{"operation"}),
			errors: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "timerd_repository_errors_total",
				Help: "Total persistent store operation failures by operation and reason.",
			}, []string{"operation", "reason"}),
			duration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "timerd_repository_operation_duration_seconds",
				Help:    "Persistent store operation duration in seconds.",
				Buckets: prometheus.DefBuckets,
			}, []string{"operation"}),
		}
	})
	return metrics
}

func (m *Metrics) observe(operation string, d time.Duration) {
	m.duration.WithLabelValues(operation).Observe(d.Seconds())
}
