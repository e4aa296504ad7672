// Package metrics exposes Prometheus collectors for the HTTP layer and the
// conversion pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "calconv_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "route", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "calconv_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	conversionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "calconv_conversions_total",
		Help: "Calendar conversions by converter and result",
	}, []string{"converter", "result"})

	conversionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "calconv_conversion_duration_seconds",
		Help:    "Fetch, parse and convert duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"converter"})

	fetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "calconv_fetches_total",
		Help: "Successful feed fetches by source and origin (network or cache)",
	}, []string{"source", "origin"})
)

func RecordRequest(method, route string, statusCode int, d time.Duration) {
	requestsTotal.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	requestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func RecordConversion(converter, result string, d time.Duration) {
	conversionsTotal.WithLabelValues(converter, result).Inc()
	conversionDuration.WithLabelValues(converter).Observe(d.Seconds())
}

func RecordFetch(source string, fromCache bool) {
	origin := "network"
	if fromCache {
		origin = "cache"
	}
	fetchesTotal.WithLabelValues(source, origin).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
