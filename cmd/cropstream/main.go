// Cropstream - Greenhouse Sensor Record Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cropstream

// Package main is the cropstream binary.
//
// Cropstream turns staged greenhouse sensor files (aux, image, video, label,
// wave and model-inference CSVs) into canonical data lake records. Each
// inbound Kinesis-style record names one staged file set; every registered
// record type strategy claims the records of its type, writes one output
// CSV to the stage bucket and publishes a processed or invalid envelope.
//
// # Modes
//
//	cropstream [serve]              run the HTTP API and the NATS ingest consumer
//	cropstream process <batch.json> run one {"Records":[...]} batch and print the result
//
// # Configuration
//
// Settings are layered with koanf v2: built-in defaults, then an optional
// YAML file (CONFIG_PATH, config.yaml or /etc/cropstream/config.yaml), then
// environment variables. The original deployment variables are honoured:
//
//	STAGE_BUCKET_NAME            stage bucket
//	PROCESSED_DATA_STREAM_NAME   processed-data stream
//	INVALID_DATASTREAM_NAME      invalid-data stream
//	SAVED_DATA_STREAM_NAME       saved-data stream
//
// CLOUD_PROVIDER selects the storage and stream backend: memory, aws (S3 and
// Kinesis) or nats (JetStream object store and subjects). NATS_EMBEDDED runs
// an in-process nats-server for single-node installs.
//
// # Signal Handling
//
// SIGINT and SIGTERM stop the supervisor tree: the HTTP server drains,
// the ingest consumer stops, the embedded NATS server and the lookup store
// close.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/cropstream/internal/config"
	"github.com/tomtom215/cropstream/internal/logging"
)

const usage = `usage:
  cropstream [serve]
  cropstream process <batch.json>`

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
		Output:    os.Stderr,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, os.Args[1:]); err != nil {
		stop()
		logging.Fatal().Err(err).Msg("cropstream failed")
	}
}

func run(ctx context.Context, cfg *config.Config, args []string) error {
	mode := "serve"
	if len(args) > 0 {
		mode = args[0]
	}

	switch mode {
	case "serve":
		return serve(ctx, cfg)
	case "process":
		if len(args) != 2 {
			return fmt.Errorf("process needs exactly one batch file\n%s", usage)
		}
		return processFile(ctx, cfg, args[1], os.Stdout)
	case "help", "-h", "--help":
		fmt.Println(usage)
		return nil
	default:
		return fmt.Errorf("unknown mode %q\n%s", mode, usage)
	}
}
