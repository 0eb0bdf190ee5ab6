// Cropstream - Greenhouse Sensor Record Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cropstream

package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/cropstream/internal/cloud"
	"github.com/tomtom215/cropstream/internal/handler"
	"github.com/tomtom215/cropstream/internal/logging"
)

// BatchHandler runs a {"Records":[...]} batch through the pipeline.
type BatchHandler interface {
	Handle(ctx context.Context, body []byte) handler.Result
}

// RecordPublisher enqueues one raw record for asynchronous processing.
type RecordPublisher interface {
	PublishRecord(ctx context.Context, raw []byte) error
}

// SavedSink receives saved-data documents.
type SavedSink interface {
	PutSaved(ctx context.Context, v any) error
}

// HealthCheck reports the readiness of one dependency.
type HealthCheck func(ctx context.Context) error

// Dependencies are the collaborators the handlers use. Batches is
// required; a nil Publisher or Saved disables the matching route.
type Dependencies struct {
	Batches   BatchHandler
	Publisher RecordPublisher
	Saved     SavedSink
	Checks    map[string]HealthCheck
	Types     func() []string
}

// Handler serves the HTTP routes.
type Handler struct {
	deps      Dependencies
	startTime time.Time
	logger    zerolog.Logger
}

// NewHandler creates a Handler.
func NewHandler(deps Dependencies) *Handler {
	return &Handler{
		deps:      deps,
		startTime: time.Now(),
		logger:    logging.WithComponent("api"),
	}
}

type batchBody struct {
	Records *[]json.RawMessage `json:"Records"`
}

// readBody reads the request body, writing the error response itself when
// it fails.
func readBody(rw *ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			rw.Error(http.StatusRequestEntityTooLarge, ErrCodeTooLarge, "request body too large")
			return nil, false
		}
		rw.BadRequest("unreadable request body")
		return nil, false
	}
	return body, true
}

// Records processes a batch synchronously and returns the batch summary.
// An unreadable batch is a 400; per-record errors still answer 200 with a
// non-zero exception_count.
func (h *Handler) Records(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	body, ok := readBody(rw, r)
	if !ok {
		return
	}

	res := h.deps.Batches.Handle(r.Context(), body)
	if res.Message != handler.MessageOK {
		rw.ErrorWithDetails(http.StatusBadRequest, ErrCodeBatchFailed, "batch could not be read", res)
		return
	}
	logging.Ctx(r.Context()).Debug().
		Int("records_processed", res.RecordsProcessed).
		Int("exception_count", res.ExceptionCount).
		Msg("Batch processed")
	rw.Success(res)
}

// EnqueueRecords publishes every record of a batch to the raw subject for
// the ingest consumer.
func (h *Handler) EnqueueRecords(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.deps.Publisher == nil {
		rw.ServiceUnavailable(ErrNoPublisher.Error())
		return
	}
	body, ok := readBody(rw, r)
	if !ok {
		return
	}

	var b batchBody
	if err := json.Unmarshal(body, &b); err != nil || b.Records == nil {
		rw.BadRequest("body must be an object with a Records array")
		return
	}

	enqueued := 0
	for _, raw := range *b.Records {
		if err := h.deps.Publisher.PublishRecord(r.Context(), raw); err != nil {
			h.logger.Error().Err(err).Int("enqueued", enqueued).Msg("Failed to enqueue record")
			rw.ErrorWithDetails(http.StatusBadGateway, ErrCodeServiceUnavailable, "enqueue failed",
				map[string]int{"enqueued": enqueued})
			return
		}
		enqueued++
	}
	rw.Accepted(map[string]int{"enqueued": enqueued})
}

// Saved publishes a JSON object to the saved-data stream.
func (h *Handler) Saved(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.deps.Saved == nil {
		rw.ServiceUnavailable(ErrNoStage.Error())
		return
	}
	body, ok := readBody(rw, r)
	if !ok {
		return
	}

	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil || doc == nil {
		rw.BadRequest("body must be a JSON object")
		return
	}

	if err := h.deps.Saved.PutSaved(r.Context(), doc); err != nil {
		if errors.Is(err, cloud.ErrStreamNotConfigured) {
			rw.ServiceUnavailable("saved-data stream is not configured")
			return
		}
		h.logger.Error().Err(err).Msg("Failed to publish saved data")
		rw.InternalError("failed to publish saved data")
		return
	}
	rw.Accepted(map[string]bool{"saved": true})
}
