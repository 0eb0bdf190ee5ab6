// Cropstream - Greenhouse Sensor Record Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cropstream

package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"

	"github.com/tomtom215/cropstream/internal/config"
	"github.com/tomtom215/cropstream/internal/handler"
	"github.com/tomtom215/cropstream/internal/logging"
)

// processFile runs the batch in path once and writes the handler result as
// JSON to out. A batch that cannot be read is an error; record errors are
// only reported in the result.
func processFile(ctx context.Context, cfg *config.Config, path string, out io.Writer) error {
	body, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read batch: %w", err)
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

	res := a.handler.Handle(ctx, body)
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	if res.Message != handler.MessageOK {
		return fmt.Errorf("batch %s: %s", path, res.Message)
	}
	return nil
}
