// Package observability holds the prometheus metrics for the module: ArcGIS
// upstream calls, source refresh activity, metadata caching, and the demo
// proxy's HTTP surface.
package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	upstreamLatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "esri_upstream_latency_seconds",
			Help:    "Latency of ArcGIS REST calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"family", "endpoint"},
	)

	taskErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "esri_task_errors_total",
			Help: "Task request failures by kind.",
		},
		[]string{"family", "endpoint", "kind"},
	)

	refreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "esri_source_refresh_total",
			Help: "Source refresh outcomes.",
		},
		[]string{"outcome"}, // applied, coalesced, skipped, suppressed_race
	)

	metadataCacheResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "esri_metadata_cache_results_total",
			Help: "Service metadata cache results by outcome.",
		},
		[]string{"outcome"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "esri_proxy_http_requests_total",
			Help: "Total proxy HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "esri_proxy_http_request_duration_seconds",
			Help:    "Duration of proxy HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"method", "route", "status"},
	)

	proxyCacheResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "esri_proxy_cache_results_total",
			Help: "Proxy response cache results by outcome.",
		},
		[]string{"outcome"},
	)

	buildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "esri_build_info",
			Help: "Build information for the binary.",
		},
		[]string{"version"},
	)
)

func ObserveUpstream(family, endpoint string, durationSeconds float64) {
	upstreamLatencySeconds.WithLabelValues(family, endpoint).Observe(durationSeconds)
}

func IncTaskError(family, endpoint, kind string) {
	taskErrorsTotal.WithLabelValues(family, endpoint, kind).Inc()
}

func IncRefresh(outcome string) {
	refreshTotal.WithLabelValues(outcome).Inc()
}

func IncMetadataCacheHit()  { metadataCacheResults.WithLabelValues("hit").Inc() }
func IncMetadataCacheMiss() { metadataCacheResults.WithLabelValues("miss").Inc() }

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func IncProxyCacheHit()  { proxyCacheResults.WithLabelValues("hit").Inc() }
func IncProxyCacheMiss() { proxyCacheResults.WithLabelValues("miss").Inc() }

func ExposeBuildInfo(version string) {
	if version == "" {
		version = "dev"
	}
	buildInfo.WithLabelValues(version).Set(1)
}
