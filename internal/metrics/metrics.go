// Linkbeacon - Trackable Links with Live Location Capture
// Copyright 2026 E. Mora (emora-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/emora-dev/linkbeacon

// Package metrics exposes Prometheus instrumentation for the capture
// pipeline: API traffic, sample writes per channel, fan-out delivery,
// and live WebSocket population.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Capture channels, used as the "channel" label on write metrics.
const (
	ChannelPush     = "push"
	ChannelFallback = "fallback"
)

var (
	// API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linkbeacon_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "linkbeacon_api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "linkbeacon_api_active_requests",
			Help: "Number of API requests currently in flight",
		},
	)

	// Capture metrics
	SamplesWrittenTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linkbeacon_samples_written_total",
			Help: "Location samples persisted, by capture channel",
		},
		[]string{"channel"},
	)

	SampleWriteErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linkbeacon_sample_write_errors_total",
			Help: "Failed location sample writes, by capture channel",
		},
		[]string{"channel"},
	)

	// Fan-out metrics
	BroadcastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linkbeacon_broadcasts_total",
			Help: "Capture events broadcast to operator consoles",
		},
		[]string{"event_type"},
	)

	BroadcastsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "linkbeacon_broadcasts_dropped_total",
			Help: "Capture events dropped because the broadcast buffer was full",
		},
	)

	// WebSocket metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "linkbeacon_websocket_connections",
			Help: "Currently connected WebSocket clients",
		},
	)

	WSSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "linkbeacon_websocket_subscribers",
			Help: "WebSocket clients subscribed to the broadcast feed",
		},
	)

	// Link cache metrics
	LinkCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "linkbeacon_link_cache_hits_total",
			Help: "Public link lookups served from the cache",
		},
	)

	LinkCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "linkbeacon_link_cache_misses_total",
			Help: "Public link lookups that fell through to the store",
		},
	)

	// Database metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "linkbeacon_db_query_duration_seconds",
			Help:    "Duration of store queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linkbeacon_db_query_errors_total",
			Help: "Total number of store query errors",
		},
		[]string{"operation"},
	)
)

// RecordAPIRequest records one finished API request.
func RecordAPIRequest(method, endpoint, status string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest adjusts the in-flight request gauge.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordSampleWrite counts a capture write attempt on the given channel.
func RecordSampleWrite(channel string, err error) {
	if err != nil {
		SampleWriteErrors.WithLabelValues(channel).Inc()
		return
	}
	SamplesWrittenTotal.WithLabelValues(channel).Inc()
}

// RecordBroadcast counts one event fanned out to the consoles.
func RecordBroadcast(eventType string) {
	BroadcastsTotal.WithLabelValues(eventType).Inc()
}

// RecordBroadcastDropped counts an event lost to a full buffer.
func RecordBroadcastDropped() {
	BroadcastsDropped.Inc()
}

// RecordDBQuery records one store query's duration and outcome.
func RecordDBQuery(operation string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation).Inc()
	}
}
