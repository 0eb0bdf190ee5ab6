// Cropstream - Greenhouse Sensor Record Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cropstream

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/tomtom215/cropstream/internal/api"
	"github.com/tomtom215/cropstream/internal/config"
	"github.com/tomtom215/cropstream/internal/ingest"
	"github.com/tomtom215/cropstream/internal/logging"
	"github.com/tomtom215/cropstream/internal/supervisor"
	"github.com/tomtom215/cropstream/internal/supervisor/services"
)

const shutdownTimeout = 10 * time.Second

func serve(ctx context.Context, cfg *config.Config) error {
	if !cfg.Server.Enabled && !cfg.NATS.Enabled {
		return errors.New("nothing to serve: enable the HTTP server or NATS ingest")
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.close(); err != nil {
			logging.Error().Err(err).Msg("Error closing pipeline")
		}
	}()

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: shutdownTimeout,
	})

	if !cfg.Lookup.InMemory {
		tree.AddDataService(services.NewLookupGCService(a.store, 10*time.Minute))
	}

	var publisher api.RecordPublisher
	if cfg.NATS.Enabled {
		if a.embedded != nil {
			tree.AddMessagingService(services.NewEmbeddedNATSService(a.embedded, shutdownTimeout))
		}
		subCfg := ingest.SubscriberConfigFrom(cfg.NATS)
		subCfg.URL = a.natsURL
		sub, err := ingest.NewSubscriber(&subCfg, nil)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, sub.Close)
		tree.AddMessagingService(ingest.NewConsumer(sub, cfg.NATS.RawSubject, a.handler))

		pub, err := ingest.NewPublisher(a.natsURL, cfg.NATS.RawSubject, nil)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, pub.Close)
		publisher = pub
	}

	if cfg.Server.Enabled {
		handler := api.NewHandler(api.Dependencies{
			Batches:   a.handler,
			Publisher: publisher,
			Saved:     a.stage,
			Checks:    healthChecks(a),
			Types:     a.registry.Types,
		})
		srv := &http.Server{
			Addr:              cfg.Server.Addr(),
			Handler:           api.NewRouter(handler, api.RouterConfigFrom(cfg.Server)),
			ReadHeaderTimeout: 10 * time.Second,
		}
		tree.AddAPIService(services.NewHTTPServerService(srv, shutdownTimeout))
		logging.Info().Str("addr", srv.Addr).Msg("HTTP API enabled")
	}

	logging.Info().Msg("Starting supervisor tree")
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("supervisor tree: %w", err)
	}
	if report, err := tree.UnstoppedServiceReport(); err == nil && len(report) > 0 {
		logging.Warn().Int("count", len(report)).Msg("Services did not stop in time")
	}
	logging.Info().Msg("Shutdown complete")
	return nil
}

func healthChecks(a *app) map[string]api.HealthCheck {
	checks := map[string]api.HealthCheck{
		"lookup": func(ctx context.Context) error {
			_, err := a.store.Categories(ctx)
			return err
		},
	}
	if a.stream != nil {
		checks["nats"] = func(ctx context.Context) error {
			if !a.stream.IsHealthy(ctx) {
				return errors.New("stream unavailable")
			}
			return nil
		}
	}
	return checks
}
