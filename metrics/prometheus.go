package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type PrometheusRecorder struct {
	counters  *prometheus.CounterVec
	histogram *prometheus.HistogramVec
}

// NewPrometheusRecorder registers and returns the server's metric vectors.
// Counter labels: type (dispatch outcome), tool. Histogram labels:
// operation, tool.
func NewPrometheusRecorder() Recorder {
	counters := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mcpay",
			Name:      "events_total",
			Help:      "mcpay event counters",
		},
		[]string{"type", "tool"},
	)

	histogram := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mcpay",
			Name:      "latency_seconds",
			Help:      "mcpay operation latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation", "tool"},
	)

	prometheus.MustRegister(counters, histogram)

	return &PrometheusRecorder{
		counters:  counters,
		histogram: histogram,
	}
}

func (r *PrometheusRecorder) IncCounter(name string, labels map[string]string) {
	r.counters.With(prometheus.Labels{
		"type": name,
		"tool": labels["tool"],
	}).Inc()
}

func (r *PrometheusRecorder) ObserveLatency(name string, duration time.Duration, labels map[string]string) {
	r.histogram.With(prometheus.Labels{
		"operation": name,
		"tool":      labels["tool"],
	}).Observe(duration.Seconds())
}
