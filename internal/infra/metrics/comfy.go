package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(comfyRequestsTotal, comfyRequestLatencyMs)
}

var (
	comfyRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "comfy",
			Name:      "requests_total",
			Help:      "Requests sent to the generation backend per endpoint and outcome.",
		},
		[]string{"endpoint", "success"},
	)

	comfyRequestLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "comfy",
			Name:      "request_latency_ms",
			Help:      "Generation backend request latency distribution in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
		[]string{"endpoint"},
	)
)

// ObserveComfyRequest records one call to the backend (endpoint is the route
// template, e.g. "/history").
func ObserveComfyRequest(endpoint string, latencyMs int64, success bool) {
	comfyRequestsTotal.WithLabelValues(norm(endpoint), strconv.FormatBool(success)).Inc()
	comfyRequestLatencyMs.WithLabelValues(norm(endpoint)).Observe(float64(latencyMs))
}
