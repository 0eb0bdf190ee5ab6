// Cropstream - Greenhouse Sensor Record Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cropstream

package processor

import (
	"context"

	"github.com/tomtom215/cropstream/internal/record"
	"github.com/tomtom215/cropstream/internal/stagefile"
)

// TagTBD is the placeholder tag of rows whose physical tag was not read.
const TagTBD = "TBD"

// Strategy is the record-type specific half of the pipeline. A Strategy
// value serves a single event and may keep per-event state.
type Strategy interface {
	// Name identifies the strategy in logs and invalid envelopes.
	Name() string

	// Types lists the record types the strategy claims.
	Types() []string

	// TagID extracts the row tag id used for identity resolution.
	TagID(row stagefile.Row) (string, error)

	// Transform turns one input row into zero or more canonical records.
	Transform(ctx context.Context, run *Run, row stagefile.Row) ([]record.Canonical, error)
}

// FileProcessor is implemented by strategies that must see every row of a
// staged file before transforming any of them. PrepareFile runs once per
// file; an error rejects the file.
type FileProcessor interface {
	PrepareFile(ctx context.Context, run *Run, rows []stagefile.Row) error
}

// RowErrorHandler is consulted after a row has been counted as rejected.
// A non-nil return rejects the whole file.
type RowErrorHandler interface {
	RowError(row stagefile.Row, err error) error
}

// OutgoingTyper retags the processed envelope.
type OutgoingTyper interface {
	OutgoingType() string
}

// EventDirectioner supplies the direction written on the processed envelope.
type EventDirectioner interface {
	EventDirection(run *Run) string
}
