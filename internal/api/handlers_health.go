// Cropstream - Greenhouse Sensor Record Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cropstream

package api

import (
	"context"
	"net/http"
	"sort"
	"time"
)

const healthCheckTimeout = 5 * time.Second

// HealthStatus is the body of the health endpoints.
type HealthStatus struct {
	Status       string            `json:"status"`
	Uptime       float64           `json:"uptime_seconds"`
	RecordTypes  []string          `json:"record_types,omitempty"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

func (h *Handler) runChecks(ctx context.Context) (map[string]string, bool) {
	if len(h.deps.Checks) == 0 {
		return nil, true
	}
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	results := make(map[string]string, len(h.deps.Checks))
	healthy := true
	for name, check := range h.deps.Checks {
		if err := check(ctx); err != nil {
			results[name] = err.Error()
			healthy = false
			continue
		}
		results[name] = "ok"
	}
	return results, healthy
}

func (h *Handler) recordTypes() []string {
	if h.deps.Types == nil {
		return nil
	}
	types := h.deps.Types()
	sort.Strings(types)
	return types
}

// Health reports overall status, registered record types and dependencies.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	deps, healthy := h.runChecks(r.Context())
	status := "healthy"
	if !healthy {
		status = "degraded"
	}
	NewResponseWriter(w, r).Success(HealthStatus{
		Status:       status,
		Uptime:       time.Since(h.startTime).Seconds(),
		RecordTypes:  h.recordTypes(),
		Dependencies: deps,
	})
}

// HealthLive answers 200 while the process runs.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(HealthStatus{
		Status: "alive",
		Uptime: time.Since(h.startTime).Seconds(),
	})
}

// HealthReady answers 503 until every dependency check passes and at
// least one record type is registered.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	deps, healthy := h.runChecks(r.Context())
	types := h.recordTypes()
	if h.deps.Types != nil && len(types) == 0 {
		healthy = false
	}
	if !healthy {
		rw.ErrorWithDetails(http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "not ready", deps)
		return
	}
	rw.Success(HealthStatus{
		Status:       "ready",
		Uptime:       time.Since(h.startTime).Seconds(),
		RecordTypes:  types,
		Dependencies: deps,
	})
}
