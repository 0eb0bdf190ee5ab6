// Cropstream - Greenhouse Sensor Record Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cropstream

package main

import (
	"context"
	"errors"
	"fmt"

	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/tomtom215/cropstream/internal/cloud"
	"github.com/tomtom215/cropstream/internal/cloud/awscloud"
	"github.com/tomtom215/cropstream/internal/cloud/natscloud"
	"github.com/tomtom215/cropstream/internal/config"
	"github.com/tomtom215/cropstream/internal/handler"
	"github.com/tomtom215/cropstream/internal/ingest"
	"github.com/tomtom215/cropstream/internal/logging"
	"github.com/tomtom215/cropstream/internal/lookup"
	"github.com/tomtom215/cropstream/internal/processor"
	"github.com/tomtom215/cropstream/internal/record"
	"github.com/tomtom215/cropstream/internal/registry"
	"github.com/tomtom215/cropstream/internal/strategies"
)

// app holds the wired pipeline shared by every mode.
type app struct {
	cfg      *config.Config
	store    *lookup.Store
	stage    *cloud.Stage
	registry *registry.Registry
	handler  *handler.Handler

	// natsURL is the client URL once NATS is in use: the embedded server's
	// address or the configured one.
	natsURL  string
	embedded *ingest.EmbeddedServer
	stream   *ingest.StreamInitializer

	closers []func() error
}

func (a *app) usesNATS() bool {
	return a.cfg.NATS.Enabled || a.cfg.Cloud.Provider == config.ProviderNATS
}

// newApp opens the lookup store, connects the cloud backend and registers
// every record type. On error everything opened so far is closed.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}
	if err := a.wire(ctx); err != nil {
		if cerr := a.close(); cerr != nil {
			logging.Error().Err(cerr).Msg("Error closing partially wired pipeline")
		}
		return nil, err
	}
	logging.Info().
		Str("provider", cfg.Cloud.Provider).
		Str("stage_bucket", cfg.Stage.BucketName).
		Int("record_types", a.registry.Len()).
		Bool("nats", a.usesNATS()).
		Msg("Pipeline ready")
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	cfg := a.cfg
	if err := a.openLookup(ctx); err != nil {
		return err
	}
	if a.usesNATS() {
		if err := a.startNATS(ctx); err != nil {
			return err
		}
	}
	provider, err := a.openProvider(ctx)
	if err != nil {
		return err
	}

	a.stage = cloud.NewStage(provider, cloud.StageConfig{
		Bucket:          cfg.Stage.BucketName,
		ProcessedStream: cfg.Stage.ProcessedStream,
		InvalidStream:   cfg.Stage.InvalidStream,
		SavedStream:     cfg.Stage.SavedStream,
		OutputPrefix:    cfg.Stage.OutputPrefix,
	})

	validator, err := record.DefaultValidator()
	if err != nil {
		return fmt.Errorf("compile record schemas: %w", err)
	}
	deps := processor.Deps{
		Stage:     a.stage,
		Lookups:   lookup.FromStore(a.store),
		Validator: validator,
	}
	if cfg.Lookup.CacheTTL > 0 && cfg.Lookup.CacheCapacity > 0 {
		deps.Caches = processor.NewCaches(cfg.Lookup.CacheCapacity, cfg.Lookup.CacheTTL)
	}

	a.registry = registry.New(deps)
	if err := strategies.RegisterAll(a.registry); err != nil {
		return err
	}
	a.handler = handler.New(a.registry)
	return nil
}

func (a *app) openLookup(ctx context.Context) error {
	store, err := lookup.OpenStore(lookup.StoreConfig{
		Path:     a.cfg.Lookup.Path,
		InMemory: a.cfg.Lookup.InMemory,
	})
	if err != nil {
		return err
	}
	a.store = store
	a.closers = append(a.closers, store.Close)

	if a.cfg.Lookup.SeedFile != "" {
		if _, err := store.LoadSeed(ctx, a.cfg.Lookup.SeedFile); err != nil {
			return err
		}
	}
	return nil
}

// startNATS starts the embedded server when configured and makes sure the
// stream covering the raw and output subjects exists.
func (a *app) startNATS(ctx context.Context) error {
	a.natsURL = a.cfg.NATS.URL
	if a.cfg.NATS.EmbeddedServer {
		srvCfg := ingest.ServerConfigFrom(a.cfg.NATS)
		srv, err := ingest.NewEmbeddedServer(&srvCfg)
		if err != nil {
			return fmt.Errorf("start embedded NATS: %w", err)
		}
		a.embedded = srv
		a.natsURL = srv.ClientURL()
		a.closers = append(a.closers, func() error { return srv.Shutdown(context.Background()) })
		logging.Info().Str("url", a.natsURL).Msg("Embedded NATS server started")
	}

	nc, err := natsgo.Connect(a.natsURL, natsgo.Name("cropstream-init"))
	if err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}
	a.closers = append(a.closers, func() error { nc.Close(); return nil })

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("create JetStream context: %w", err)
	}
	streamCfg := ingest.StreamConfigFrom(a.cfg.NATS)
	a.stream, err = ingest.NewStreamInitializer(js, &streamCfg)
	if err != nil {
		return err
	}
	if _, err := a.stream.EnsureStream(ctx); err != nil {
		return err
	}
	return nil
}

func (a *app) openProvider(ctx context.Context) (cloud.Provider, error) {
	switch a.cfg.Cloud.Provider {
	case config.ProviderAWS:
		return awscloud.New(awscloud.Config{
			Region:         a.cfg.Cloud.AWSRegion,
			Endpoint:       a.cfg.Cloud.AWSEndpoint,
			PublishTimeout: a.cfg.Cloud.PublishTimeout,
		})
	case config.ProviderNATS:
		p, err := natscloud.New(ctx, natscloud.Config{
			URL:           a.natsURL,
			ObjectBucket:  a.cfg.NATS.ObjectBucket,
			SubjectPrefix: a.cfg.NATS.OutputSubjectPrefix,
		}, nil)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, p.Close)
		return p, nil
	case config.ProviderMemory:
		logging.Warn().Msg("Memory cloud provider: outputs are kept in process only")
		return cloud.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown cloud provider %q", a.cfg.Cloud.Provider)
	}
}

// close releases resources in reverse order of acquisition.
func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
