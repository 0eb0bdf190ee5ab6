// Cropstream - Greenhouse Sensor Record Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cropstream

// Package handler processes batches of transport records the way a stream
// trigger delivers them: {"Records":[{"kinesis":{"data":"..."}}, ...]}.
package handler

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/cropstream/internal/envelope"
	"github.com/tomtom215/cropstream/internal/logging"
	"github.com/tomtom215/cropstream/internal/metrics"
	"github.com/tomtom215/cropstream/internal/registry"
)

// Batch outcome messages.
const (
	MessageOK     = "OK"
	MessageFailed = "FAILED"
)

// Dispatcher processes one raw transport record.
type Dispatcher interface {
	Process(ctx context.Context, raw []byte) registry.Result
}

// Result is the batch summary returned to the trigger.
type Result struct {
	Message          string `json:"message"`
	RecordsProcessed int    `json:"records_processed"`
	ExceptionCount   int    `json:"exception_count"`
}

// OK reports whether the batch was read and every record went through
// without errors.
func (r Result) OK() bool {
	return r.Message == MessageOK && r.ExceptionCount == 0
}

type batch struct {
	Records *[]json.RawMessage `json:"Records"`
}

// Handler runs batches through a Dispatcher.
type Handler struct {
	dispatcher Dispatcher
	logger     zerolog.Logger
}

// New creates a Handler.
func New(d Dispatcher) *Handler {
	return &Handler{dispatcher: d, logger: logging.WithComponent("handler")}
}

// Handle processes every record of body. It never fails: an unreadable
// batch is reported as MessageFailed and per-record problems are counted.
func (h *Handler) Handle(ctx context.Context, body []byte) Result {
	res := Result{Message: MessageFailed}
	start := time.Now()
	defer func() {
		metrics.RecordHandlerBatch(res.Message == MessageOK, res.ExceptionCount)
		h.logger.Debug().
			Str("message", res.Message).
			Int("records_processed", res.RecordsProcessed).
			Int("exception_count", res.ExceptionCount).
			Dur("duration", time.Since(start)).
			Msg("Batch handled")
	}()

	var b batch
	if err := json.Unmarshal(body, &b); err != nil || b.Records == nil {
		h.logger.Error().Err(err).Int("bytes", len(body)).Msg("Invalid event")
		return res
	}

	for _, raw := range *b.Records {
		res.RecordsProcessed++
		res.ExceptionCount += h.HandleRecord(ctx, raw)
	}
	res.Message = MessageOK
	return res
}

// HandleRecord processes one transport record and returns its error count.
// A record without data counts as one error.
func (h *Handler) HandleRecord(ctx context.Context, raw []byte) int {
	if !envelope.HasData(raw) {
		h.logger.Error().Err(envelope.ErrMissingData).Msg("An error occurred while processing the event")
		return 1
	}
	return h.dispatcher.Process(ctx, raw).ErrorCount
}
