package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the HTTP-level Prometheus metrics.
type Metrics struct {
	EndpointLatency *prometheus.HistogramVec
	Responses       *prometheus.CounterVec
}

func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EndpointLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "visitorbook_http_request_duration_seconds",
			Help:    "Latency of HTTP requests by route pattern",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		Responses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "visitorbook_http_responses_total",
			Help: "HTTP responses by route pattern and status",
		}, []string{"method", "route", "status"}),
	}
}

// ObserveEndpointLatency records the duration of one request.
func (m *Metrics) ObserveEndpointLatency(method, route string, d time.Duration) {
	if m != nil {
		m.EndpointLatency.WithLabelValues(method, route).Observe(d.Seconds())
	}
}

func (m *Metrics) IncResponse(method, route, status string) {
	if m != nil {
		m.Responses.WithLabelValues(method, route, status).Inc()
	}
}
