// Cropstream - Greenhouse Sensor Record Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cropstream

package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/cropstream/internal/logging"
)

// GarbageCollector is satisfied by *lookup.Store.
type GarbageCollector interface {
	RunGC(ratio float64) error
}

// LookupGCService periodically reclaims value log space of the lookup store.
type LookupGCService struct {
	store    GarbageCollector
	interval time.Duration
	ratio    float64
	logger   zerolog.Logger
}

// NewLookupGCService runs store.RunGC(0.5) every interval (default 10m).
func NewLookupGCService(store GarbageCollector, interval time.Duration) *LookupGCService {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &LookupGCService{
		store:    store,
		interval: interval,
		ratio:    0.5,
		logger:   logging.WithComponent("lookup-gc"),
	}
}

// Serve implements suture.Service. GC errors are logged; the loop keeps
// running.
func (s *LookupGCService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			start := time.Now()
			if err := s.store.RunGC(s.ratio); err != nil {
				s.logger.Warn().Err(err).Msg("Lookup store GC failed")
				continue
			}
			s.logger.Debug().Dur("duration", time.Since(start)).Msg("Lookup store GC done")
		}
	}
}

// String names the service in supervisor logs.
func (s *LookupGCService) String() string {
	return "lookup-gc"
}
