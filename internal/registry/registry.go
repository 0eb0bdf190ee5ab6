// Cropstream - Greenhouse Sensor Record Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cropstream

// Package registry dispatches raw events to the record processing
// strategies registered for them.
//
// Registration is explicit: callers build the table at startup, usually
// with strategies.RegisterAll. Process offers every event to every entry in
// registration order; each strategy decides applicability on its own and
// reports through processor.Stats. Process never fails, the total error
// count is the only outcome callers need.
package registry

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"slices"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tomtom215/cropstream/internal/logging"
	"github.com/tomtom215/cropstream/internal/processor"
)

var (
	// ErrDuplicateType is returned when a record type is registered twice.
	ErrDuplicateType = errors.New("record type already registered")

	// ErrInvalidStrategy is returned for a nil factory or a factory whose
	// strategy is nil or declares no types.
	ErrInvalidStrategy = errors.New("invalid strategy")

	// ErrInvalidType is returned for an empty record type or one the
	// strategy does not declare.
	ErrInvalidType = errors.New("invalid record type")
)

// Factory creates a fresh strategy. Strategies keep per-event state, so
// every event gets its own instance.
type Factory func() processor.Strategy

type entry struct {
	recordType string
	factory    Factory
}

// Registry maps record types to strategy factories. It is safe for
// concurrent use.
type Registry struct {
	deps   processor.Deps
	logger zerolog.Logger

	mu      sync.RWMutex
	entries []entry
	types   map[string]struct{}
}

// New creates an empty registry whose processors share deps.
func New(deps processor.Deps) *Registry {
	return &Registry{
		deps:   deps,
		logger: logging.WithComponent("registry"),
		types:  make(map[string]struct{}),
	}
}

// Register adds factory under recordType.
func (r *Registry) Register(recordType string, factory Factory) error {
	if recordType == "" {
		return ErrInvalidType
	}
	if factory == nil {
		return fmt.Errorf("%w: nil factory for %s", ErrInvalidStrategy, recordType)
	}
	s := factory()
	if s == nil {
		return fmt.Errorf("%w: factory for %s returned nil", ErrInvalidStrategy, recordType)
	}
	if len(s.Types()) == 0 {
		return fmt.Errorf("%w: %s declares no record types", ErrInvalidStrategy, s.Name())
	}
	if !slices.Contains(s.Types(), recordType) {
		return fmt.Errorf("%w: %s declares %v, not %s", ErrInvalidType, s.Name(), s.Types(), recordType)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.types[recordType]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateType, recordType)
	}
	r.types[recordType] = struct{}{}
	r.entries = append(r.entries, entry{recordType: recordType, factory: factory})
	return nil
}

// Types lists the registered record types in registration order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.recordType
	}
	return out
}

// Len is the number of registered record types.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Outcome is what one strategy reported for an event. Stats is nil when
// the strategy panicked or returned malformed stats.
type Outcome struct {
	RecordType string           `json:"record_type"`
	Stats      *processor.Stats `json:"stats,omitempty"`
}

// Result aggregates every strategy's report for one event.
type Result struct {
	ErrorCount int       `json:"error_count"`
	Outcomes   []Outcome `json:"outcomes"`
}

// Processed reports whether any strategy claimed the event.
func (res Result) Processed() bool {
	for _, o := range res.Outcomes {
		if o.Stats != nil && o.Stats.Processed {
			return true
		}
	}
	return false
}

// Process offers raw to every registered strategy and sums their errors.
func (r *Registry) Process(ctx context.Context, raw []byte) Result {
	r.mu.RLock()
	entries := make([]entry, len(r.entries))
	copy(entries, r.entries)
	r.mu.RUnlock()

	res := Result{Outcomes: make([]Outcome, 0, len(entries))}
	for _, e := range entries {
		stats := r.run(ctx, e, raw)
		if !wellFormed(stats) {
			r.logger.Error().Str("record_type", e.recordType).Msg("Strategy returned malformed stats, skipping")
			res.Outcomes = append(res.Outcomes, Outcome{RecordType: e.recordType})
			continue
		}
		res.ErrorCount += len(stats.Errors)
		res.Outcomes = append(res.Outcomes, Outcome{RecordType: e.recordType, Stats: stats})
	}
	return res
}

func (r *Registry) run(ctx context.Context, e entry, raw []byte) (stats *processor.Stats) {
	defer func() {
		if v := recover(); v != nil {
			r.logger.Error().
				Str("record_type", e.recordType).
				Interface("panic", v).
				Bytes("stack", debug.Stack()).
				Msg("Strategy panicked")
			stats = nil
		}
	}()
	return processor.New(e.factory(), r.deps).Process(ctx, raw)
}

func wellFormed(s *processor.Stats) bool {
	return s != nil && s.Errors != nil && s.Messages != nil
}
