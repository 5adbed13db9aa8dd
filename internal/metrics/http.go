// Package metrics provides Prometheus collectors for the HTTP API.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics holds the request collectors of the API.
type HTTPMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestErrors   *prometheus.CounterVec
	features        *prometheus.HistogramVec
}

// NewHTTPMetrics creates the collectors and registers them on registry.
func NewHTTPMetrics(registry prometheus.Registerer) (*HTTPMetrics, error) {
	m := &HTTPMetrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "geovisor",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status_code"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "geovisor",
				Name:      "http_request_duration_seconds",
				Help:      "Time taken for HTTP requests",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		requestErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "geovisor",
				Name:      "http_request_errors_total",
				Help:      "Total number of HTTP request errors by class",
			},
			[]string{"route", "error_type"}, // error_type: invalid_input, not_found, schema, internal
		),
		features: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "geovisor",
				Name:      "features_returned",
				Help:      "Number of features per FeatureCollection response",
				Buckets:   prometheus.ExponentialBuckets(1, 4, 9), // 1 to ~65k
			},
			[]string{"route"},
		),
	}
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *HTTPMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.requestsTotal, m.requestDuration, m.requestErrors, m.features}
}

// Describe implements prometheus.Collector.
func (m *HTTPMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors() {
		c.Describe(ch)
	}
}

// Collect implements prometheus.Collector.
func (m *HTTPMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors() {
		c.Collect(ch)
	}
}

// RecordRequest records one served request.
func (m *HTTPMetrics) RecordRequest(method, route string, statusCode int, seconds float64) {
	m.requestsTotal.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(seconds)
}

// RecordError records a failed request by error class.
func (m *HTTPMetrics) RecordError(route, errorType string) {
	m.requestErrors.WithLabelValues(route, errorType).Inc()
}

// RecordFeatures records the size of a FeatureCollection response.
func (m *HTTPMetrics) RecordFeatures(route string, n int) {
	m.features.WithLabelValues(route).Observe(float64(n))
}
