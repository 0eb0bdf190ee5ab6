// Cropstream - Greenhouse Sensor Record Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cropstream

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/cropstream/internal/config"
)

// RouterConfig holds the HTTP limits.
type RouterConfig struct {
	RateLimitReqs   int
	RateLimitWindow time.Duration
	MaxBodyBytes    int64
	Timeout         time.Duration
}

// RouterConfigFrom derives the router limits from the server config.
func RouterConfigFrom(cfg config.ServerConfig) RouterConfig {
	return RouterConfig{
		RateLimitReqs:   cfg.RateLimitReqs,
		RateLimitWindow: cfg.RateLimitWindow,
		MaxBodyBytes:    cfg.MaxBodyBytes,
		Timeout:         cfg.Timeout,
	}
}

// NewRouter builds the chi route tree.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NewResponseWriter(w, r).Error(http.StatusNotFound, ErrCodeNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		NewResponseWriter(w, r).Error(http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.Route("/api/v1/health", func(r chi.Router) {
		r.Get("/", h.Health)
		r.Get("/live", h.HealthLive)
		r.Get("/ready", h.HealthReady)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(RateLimit(cfg.RateLimitReqs, cfg.RateLimitWindow))
		r.Use(RequestMetrics)
		r.Use(MaxBody(cfg.MaxBodyBytes))
		if cfg.Timeout > 0 {
			r.Use(chimiddleware.Timeout(cfg.Timeout))
		}

		r.Post("/records", h.Records)
		r.Post("/records/enqueue", h.EnqueueRecords)
		r.Post("/saved", h.Saved)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
