package observability

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder exports operation counters, latency histograms and the
// live scene node gauge.
type PrometheusRecorder struct {
	operations *prometheus.CounterVec
	durations  *prometheus.HistogramVec
	nodes      prometheus.Gauge
}

// NewPrometheusRecorder registers the cadcore collectors with reg. A nil
// registerer uses a private registry.
func NewPrometheusRecorder(reg prometheus.Registerer) (*PrometheusRecorder, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	r := &PrometheusRecorder{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cadcore_operations_total",
			Help: "Document operations by outcome.",
		}, []string{"operation", "status"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cadcore_operation_duration_seconds",
			Help:    "Document operation latency.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"operation"}),
		nodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cadcore_scene_nodes",
			Help: "Live scene nodes in the open document.",
		}),
	}
	for _, c := range []prometheus.Collector{r.operations, r.durations, r.nodes} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Observe implements MetricsRecorder.
func (r *PrometheusRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	status := "error"
	if success {
		status = "success"
	}
	r.operations.WithLabelValues(operation, status).Inc()
	r.durations.WithLabelValues(operation).Observe(duration.Seconds())
}

// SetSceneNodes updates the live node gauge.
func (r *PrometheusRecorder) SetSceneNodes(n int) {
	r.nodes.Set(float64(n))
}
