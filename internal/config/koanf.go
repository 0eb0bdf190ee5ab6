// Cropstream - Greenhouse Sensor Record Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cropstream

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order; the first existing file is used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/cropstream/config.yaml",
	"/etc/cropstream/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Stage: StageConfig{
			BucketName:      "cropstream-stage",
			ProcessedStream: "processed-data",
			InvalidStream:   "invalid-data",
			SavedStream:     "saved-data",
			OutputPrefix:    "record-processor",
		},
		Cloud: CloudConfig{
			Provider:       ProviderMemory,
			AWSRegion:      "eu-west-1",
			PublishTimeout: 10 * time.Second,
		},
		NATS: NATSConfig{
			Enabled:             false,
			URL:                 "nats://127.0.0.1:4222",
			EmbeddedServer:      true,
			StoreDir:            "/data/nats/jetstream",
			MaxMemory:           1 << 30,  // 1GB
			MaxStore:            10 << 30, // 10GB
			StreamName:          "CROPSTREAM",
			RawSubject:          "cropstream.records.raw",
			OutputSubjectPrefix: "cropstream.out",
			ObjectBucket:        "cropstream-stage",
			StreamRetentionDays: 7,
			DurableName:         "record-processor",
			QueueGroup:          "record-processors",
			SubscribersCount:    2,
			CloseTimeout:        30 * time.Second,
		},
		Lookup: LookupConfig{
			Path:          "/data/lookup",
			InMemory:      false,
			CacheTTL:      10 * time.Minute,
			CacheCapacity: 5000,
		},
		Server: ServerConfig{
			Enabled:         true,
			Host:            "0.0.0.0",
			Port:            8087,
			Timeout:         5 * time.Minute,
			RateLimitReqs:   120,
			RateLimitWindow: time.Minute,
			MaxBodyBytes:    16 << 20, // 16MB
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load builds the configuration from three layers, later layers winning:
//  1. built-in defaults
//  2. an optional YAML file (CONFIG_PATH or DefaultConfigPaths)
//  3. environment variables
//
// The result is validated before it is returned.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// envMappings maps lower-cased environment names to koanf paths. Unlisted
// variables are ignored.
var envMappings = map[string]string{
	// Stage bucket and output streams (original deployment names)
	"stage_bucket_name":          "stage.bucket_name",
	"processed_data_stream_name": "stage.processed_stream",
	"invalid_datastream_name":    "stage.invalid_stream",
	"saved_data_stream_name":     "stage.saved_stream",
	"stage_output_prefix":        "stage.output_prefix",

	// Cloud backend
	"cloud_provider":         "cloud.provider",
	"aws_region":             "cloud.aws_region",
	"aws_endpoint":           "cloud.aws_endpoint",
	"stream_publish_timeout": "cloud.publish_timeout",

	// NATS
	"nats_enabled":               "nats.enabled",
	"nats_url":                   "nats.url",
	"nats_embedded":              "nats.embedded_server",
	"nats_store_dir":             "nats.store_dir",
	"nats_max_memory":            "nats.max_memory",
	"nats_max_store":             "nats.max_store",
	"nats_stream_name":           "nats.stream_name",
	"nats_raw_subject":           "nats.raw_subject",
	"nats_output_subject_prefix": "nats.output_subject_prefix",
	"nats_object_bucket":         "nats.object_bucket",
	"nats_retention_days":        "nats.stream_retention_days",
	"nats_durable_name":          "nats.durable_name",
	"nats_queue_group":           "nats.queue_group",
	"nats_subscribers":           "nats.subscribers_count",
	"nats_close_timeout":         "nats.close_timeout",

	// Lookup store
	"lookup_path":           "lookup.path",
	"lookup_in_memory":      "lookup.in_memory",
	"lookup_seed_file":      "lookup.seed_file",
	"lookup_cache_ttl":      "lookup.cache_ttl",
	"lookup_cache_capacity": "lookup.cache_capacity",

	// HTTP server
	"http_enabled":           "server.enabled",
	"http_host":              "server.host",
	"http_port":              "server.port",
	"http_timeout":           "server.timeout",
	"http_rate_limit":        "server.rate_limit_reqs",
	"http_rate_limit_window": "server.rate_limit_window",
	"http_max_body_bytes":    "server.max_body_bytes",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
