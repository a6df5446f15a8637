package ratelimiter

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder is a MetricsRecorder backed by Prometheus collectors.
//
// Counters are exposed as ratelimiter_events_total{metric,limiter,result}
// and observations as ratelimiter_observations_seconds{metric,limiter}.
type PrometheusRecorder struct {
	events       *prometheus.CounterVec
	observations *prometheus.HistogramVec
}

var _ MetricsRecorder = (*PrometheusRecorder)(nil)

// NewPrometheusRecorder creates the collectors and registers them with reg.
// Pass prometheus.DefaultRegisterer to use the default registry.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	r := &PrometheusRecorder{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ratelimiter_events_total",
			Help: "Rate limiter counter events.",
		}, []string{"metric", "limiter", "result"}),
		observations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ratelimiter_observations_seconds",
			Help:    "Rate limiter timing observations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"metric", "limiter"}),
	}
	reg.MustRegister(r.events, r.observations)
	return r
}

func (r *PrometheusRecorder) Add(name string, value float64, tags map[string]string) {
	r.events.WithLabelValues(name, tags["limiter"], tags["result"]).Add(value)
}

func (r *PrometheusRecorder) Observe(name string, value float64, tags map[string]string) {
	r.observations.WithLabelValues(name, tags["limiter"]).Observe(value)
}
