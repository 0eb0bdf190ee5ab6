// Cropstream - Greenhouse Sensor Record Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cropstream

// Package logging provides the zerolog-based structured logging used across
// Cropstream.
//
// A single global logger is configured once from main:
//
//	logging.Init(logging.Config{Level: "info", Format: "json"})
//
//	logging.Info().Str("record_type", "wave").Msg("event claimed")
//	logging.Ctx(ctx).Warn().Err(err).Msg("stage file rejected")
//
// Every inbound event receives a correlation ID (ContextWithNewCorrelationID)
// which Ctx attaches to each line. WithFields builds per-file loggers from
// filename-derived identity and silently drops fields that are still
// "<undefined>".
//
// NewSlogLogger adapts the global logger to log/slog for sutureslog.
//
// Environment (read by internal/config, not here):
//   - LOG_LEVEL: trace, debug, info, warn, error (default info)
//   - LOG_FORMAT: json or console (default json)
//   - LOG_CALLER: include file:line (default false)
package logging
