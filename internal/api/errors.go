// Cropstream - Greenhouse Sensor Record Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cropstream

package api

import "errors"

var (
	// ErrNoPublisher is returned when records are enqueued without a NATS
	// publisher.
	ErrNoPublisher = errors.New("ingest publisher is not configured")

	// ErrNoStage is returned when saved data is posted without a stage.
	ErrNoStage = errors.New("stage is not configured")
)
