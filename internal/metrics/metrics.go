// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tubebot_events_total",
		Help: "Inbound chat events by kind",
	}, []string{"kind"})

	HandlerPanicsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tubebot_handler_panics_total",
		Help: "Panics recovered at the event boundary",
	})

	SessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tubebot_sessions_total",
		Help: "Search sessions by outcome",
	}, []string{"outcome"})

	CatalogRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tubebot_catalog_requests_total",
		Help: "Catalog requests by operation and result",
	}, []string{"op", "result"})

	CatalogDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tubebot_catalog_request_duration_seconds",
		Help:    "Catalog request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	DownloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tubebot_downloads_total",
		Help: "Downloads by quality and outcome",
	}, []string{"quality", "outcome"})

	DownloadBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tubebot_download_size_bytes",
		Help:    "Size of downloaded artifacts",
		Buckets: prometheus.ExponentialBuckets(1<<20, 2, 10),
	})

	DownloadsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tubebot_downloads_in_flight",
		Help: "Downloads currently holding a slot",
	})

	TrendingRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tubebot_trending_refresh_total",
		Help: "Trending refresh attempts by result",
	}, []string{"result"})

	TrendingLastRefresh = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tubebot_trending_last_refresh_timestamp_seconds",
		Help: "Unix time of the last successful trending refresh",
	})
)

// IncEvent records an inbound event of the given kind.
func IncEvent(kind string) {
	if kind == "" {
		kind = "unknown"
	}
	EventsTotal.WithLabelValues(kind).Inc()
}

// IncSession records how a search session ended.
func IncSession(outcome string) {
	SessionsTotal.WithLabelValues(outcome).Inc()
}

// ObserveCatalog records one catalog call.
func ObserveCatalog(op string, seconds float64, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	CatalogRequestsTotal.WithLabelValues(op, result).Inc()
	CatalogDuration.WithLabelValues(op).Observe(seconds)
}

// IncDownload records a finished download.
func IncDownload(quality, outcome string) {
	if quality == "" {
		quality = "unknown"
	}
	DownloadsTotal.WithLabelValues(quality, outcome).Inc()
}

// ObserveTrendingRefresh records a refresh attempt; unixTime is only used on success.
func ObserveTrendingRefresh(err error, unixTime float64) {
	if err != nil {
		TrendingRefreshTotal.WithLabelValues("error").Inc()
		return
	}
	TrendingRefreshTotal.WithLabelValues("ok").Inc()
	TrendingLastRefresh.Set(unixTime)
}
