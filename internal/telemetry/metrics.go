/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP API
var (
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "slidify_api_request_duration_seconds",
		Help:    "HTTP request latency by method, route and status.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slidify_api_requests_total",
		Help: "HTTP requests by method, route and status.",
	}, []string{"method", "endpoint", "status"})

	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "slidify_api_active_connections",
		Help: "In-flight HTTP requests.",
	})

	EventStreamClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "slidify_event_stream_clients",
		Help: "Connected change-stream websocket clients.",
	})
)

// Database
var (
	DatabaseQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "slidify_database_query_duration_seconds",
		Help:    "Database statement latency by operation and table.",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	}, []string{"operation", "table"})

	DatabaseErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slidify_database_errors_total",
		Help: "Failed database statements by operation and table.",
	}, []string{"operation", "table"})

	DatabaseConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "slidify_database_connections_active",
		Help: "Database connections in use.",
	})

	DatabaseConnectionsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "slidify_database_connections_idle",
		Help: "Idle database connections.",
	})
)

// Uploads and storage
var (
	UploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slidify_uploads_total",
		Help: "Blob uploads by source (editor, collab) and result.",
	}, []string{"source", "result"})

	UploadBytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slidify_upload_bytes_total",
		Help: "Bytes written to the blob store by source.",
	}, []string{"source"})

	UploadRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slidify_upload_rejections_total",
		Help: "Files rejected by staging rules, by reason.",
	}, []string{"reason"})

	UploadBatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "slidify_upload_batch_duration_seconds",
		Help:    "Time to upload and record a whole batch.",
		Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
	}, []string{"source"})
)

// Slideshows and playback
var (
	SlideshowsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slidify_slideshows_created_total",
		Help: "Slideshows written through link creation.",
	})

	SlideshowViewsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slidify_slideshow_views_total",
		Help: "Recorded slideshow views.",
	})

	SharesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slidify_shares_total",
		Help: "Share events by platform.",
	}, []string{"platform"})

	PlaybackEndedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slidify_playback_ended_total",
		Help: "Playback engines that reached the end of a cycle.",
	})
)

// Cache and event bus
var (
	CacheRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slidify_cache_requests_total",
		Help: "Cache lookups by kind and result (hit, miss, error).",
	}, []string{"kind", "result"})

	EventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slidify_events_published_total",
		Help: "Change notifications published by event type.",
	}, []string{"event_type"})
)

// Background workers
var (
	LeaderStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "slidify_leader_status",
		Help: "1 when this instance holds the background worker lease.",
	}, []string{"instance_id"})

	LeaderChangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slidify_leader_changes_total",
		Help: "Lease acquisitions and losses.",
	}, []string{"instance_id", "change"})

	OrphansRemovedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slidify_orphans_removed_total",
		Help: "Unreferenced blobs deleted by the orphan sweeper.",
	})
)

// Auth
var AuthAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "slidify_auth_attempts_total",
	Help: "Identity operations by action and result.",
}, []string{"action", "result"})

// Handler exposes the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
