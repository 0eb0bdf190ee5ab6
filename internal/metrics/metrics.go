// Cropstream - Greenhouse Sensor Record Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cropstream

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Event results used as the "result" label.
const (
	ResultProcessed = "processed"
	ResultSkipped   = "skipped"
	ResultFailed    = "failed"
	ResultInvalid   = "invalid"
)

var (
	// Pipeline Metrics
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cropstream_events_total",
			Help: "Events offered to a record type strategy, by outcome",
		},
		[]string{"record_type", "result"}, // processed, skipped, failed, invalid
	)

	EventDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cropstream_event_duration_seconds",
			Help:    "Wall time spent processing one claimed event",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"record_type"},
	)

	RowsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cropstream_rows_rejected_total",
			Help: "Input rows rejected during transformation",
		},
		[]string{"record_type", "reason"}, // rejected, tbd
	)

	OutputLines = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cropstream_output_lines_total",
			Help: "Canonical records written to staged output",
		},
		[]string{"record_type"},
	)

	StageFiles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cropstream_stage_files_total",
			Help: "Staged input files handled, by outcome",
		},
		[]string{"record_type", "result"}, // processed, rejected
	)

	// Stream Metrics
	StreamPublish = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cropstream_stream_publish_total",
			Help: "Messages sent to output streams",
		},
		[]string{"stream", "result"}, // success, error
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cropstream_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// Cache Metrics
	CacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cropstream_cache_requests_total",
			Help: "Lookup cache requests",
		},
		[]string{"cache", "result"}, // hit, miss
	)

	// Handler Metrics
	HandlerBatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cropstream_handler_batches_total",
			Help: "Record batches handled",
		},
		[]string{"result"}, // ok, failed
	)

	HandlerExceptions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cropstream_handler_exceptions_total",
			Help: "Exceptions reported by the dispatch registry across all batches",
		},
	)

	// Ingest Metrics
	IngestMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cropstream_ingest_messages_total",
			Help: "Messages consumed from the raw record subject",
		},
		[]string{"result"}, // ok, errors
	)

	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cropstream_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cropstream_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "route"},
	)
)

// RecordEvent records the outcome of one strategy invocation.
func RecordEvent(recordType, result string, duration time.Duration) {
	EventsTotal.WithLabelValues(recordType, result).Inc()
	if result != ResultSkipped {
		EventDuration.WithLabelValues(recordType).Observe(duration.Seconds())
	}
}

// RecordRowRejected records one rejected input row. tbd marks rows whose tag
// id was still the TBD placeholder.
func RecordRowRejected(recordType string, tbd bool) {
	reason := "rejected"
	if tbd {
		reason = "tbd"
	}
	RowsRejected.WithLabelValues(recordType, reason).Inc()
}

// RecordOutputLines adds n written canonical records.
func RecordOutputLines(recordType string, n int) {
	if n > 0 {
		OutputLines.WithLabelValues(recordType).Add(float64(n))
	}
}

// RecordStageFile records a staged input file outcome.
func RecordStageFile(recordType string, rejected bool) {
	result := ResultProcessed
	if rejected {
		result = "rejected"
	}
	StageFiles.WithLabelValues(recordType, result).Inc()
}

// RecordStreamPublish records a send to an output stream.
func RecordStreamPublish(stream string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	StreamPublish.WithLabelValues(stream, result).Inc()
}

// RecordCircuitBreakerState stores the numeric breaker state.
func RecordCircuitBreakerState(name string, state int) {
	CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}

// RecordCacheLookup records a hit or miss on a named lookup cache.
func RecordCacheLookup(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheRequests.WithLabelValues(cache, result).Inc()
}

// RecordHandlerBatch records a handled batch and its exception count.
func RecordHandlerBatch(ok bool, exceptions int) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	HandlerBatches.WithLabelValues(result).Inc()
	if exceptions > 0 {
		HandlerExceptions.Add(float64(exceptions))
	}
}

// RecordIngestMessage records one consumed ingest message.
func RecordIngestMessage(exceptions int) {
	result := "ok"
	if exceptions > 0 {
		result = "errors"
	}
	IngestMessages.WithLabelValues(result).Inc()
}

// RecordAPIRequest records an API request metric.
func RecordAPIRequest(method, route, status string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, status).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
