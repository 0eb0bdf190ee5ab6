// Cropstream - Greenhouse Sensor Record Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cropstream

package config

import (
	"net"
	"strconv"
	"time"
)

// Cloud provider names accepted by CloudConfig.Provider.
const (
	ProviderMemory = "memory"
	ProviderAWS    = "aws"
	ProviderNATS   = "nats"
)

// Config holds all application configuration.
type Config struct {
	Stage   StageConfig   `koanf:"stage"`
	Cloud   CloudConfig   `koanf:"cloud"`
	NATS    NATSConfig    `koanf:"nats"`
	Lookup  LookupConfig  `koanf:"lookup"`
	Server  ServerConfig  `koanf:"server"`
	Logging LoggingConfig `koanf:"logging"`
}

// StageConfig names the bucket holding staged CSV files and the output
// streams. Env names match the original deployment variables.
type StageConfig struct {
	// BucketName is the stage bucket (STAGE_BUCKET_NAME). Bare staged paths
	// resolve against it.
	BucketName string `koanf:"bucket_name" validate:"required"`

	// ProcessedStream receives processed-data envelopes (PROCESSED_DATA_STREAM_NAME).
	ProcessedStream string `koanf:"processed_stream" validate:"required"`

	// InvalidStream receives invalid envelopes (INVALID_DATASTREAM_NAME).
	InvalidStream string `koanf:"invalid_stream" validate:"required"`

	// SavedStream receives saved-data envelopes (SAVED_DATA_STREAM_NAME).
	SavedStream string `koanf:"saved_stream"`

	// OutputPrefix is the key prefix for produced stage files.
	OutputPrefix string `koanf:"output_prefix" validate:"required"`
}

// CloudConfig selects the cloud capability backend.
type CloudConfig struct {
	// Provider is memory, aws or nats.
	Provider string `koanf:"provider" validate:"required,oneof=memory aws nats"`

	// AWSRegion is used when Provider is aws.
	AWSRegion string `koanf:"aws_region"`

	// AWSEndpoint overrides the S3/Kinesis endpoint (localstack and friends).
	AWSEndpoint string `koanf:"aws_endpoint"`

	// PublishTimeout bounds a single stream send.
	PublishTimeout time.Duration `koanf:"publish_timeout"`
}

// NATSConfig holds JetStream ingest and object-store settings.
type NATSConfig struct {
	// Enabled starts the raw record subscriber.
	Enabled bool `koanf:"enabled"`

	// URL is the NATS server connection URL.
	URL string `koanf:"url"`

	// EmbeddedServer runs an in-process nats-server.
	EmbeddedServer bool `koanf:"embedded_server"`

	// StoreDir is the JetStream storage directory of the embedded server.
	StoreDir string `koanf:"store_dir"`

	// MaxMemory / MaxStore cap JetStream usage in bytes.
	MaxMemory int64 `koanf:"max_memory"`
	MaxStore  int64 `koanf:"max_store"`

	// StreamName is the JetStream stream carrying raw records and outputs.
	StreamName string `koanf:"stream_name"`

	// RawSubject carries inbound Kinesis-style records.
	RawSubject string `koanf:"raw_subject"`

	// OutputSubjectPrefix prefixes the processed/invalid/saved subjects.
	OutputSubjectPrefix string `koanf:"output_subject_prefix"`

	// ObjectBucket is the JetStream object store used for stage files when
	// the cloud provider is nats.
	ObjectBucket string `koanf:"object_bucket"`

	// StreamRetentionDays is the max age of stream messages.
	StreamRetentionDays int `koanf:"stream_retention_days" validate:"gte=0"`

	DurableName string `koanf:"durable_name"`
	QueueGroup  string `koanf:"queue_group"`

	// SubscribersCount is the number of parallel consumers.
	SubscribersCount int `koanf:"subscribers_count" validate:"gte=0,lte=64"`

	// CloseTimeout bounds subscriber shutdown.
	CloseTimeout time.Duration `koanf:"close_timeout"`
}

// LookupConfig configures the phase/farm/machine lookup store.
type LookupConfig struct {
	// Path is the badger directory.
	Path string `koanf:"path"`

	// InMemory runs badger without disk (Path is ignored).
	InMemory bool `koanf:"in_memory"`

	// SeedFile is an optional JSON file loaded at startup.
	SeedFile string `koanf:"seed_file"`

	// CacheTTL bounds how long post lengths and farm timezones are reused
	// across events. Zero disables the cross-event cache.
	CacheTTL time.Duration `koanf:"cache_ttl"`

	// CacheCapacity bounds each cross-event cache.
	CacheCapacity int `koanf:"cache_capacity" validate:"gte=0"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Enabled bool   `koanf:"enabled"`
	Host    string `koanf:"host"`
	Port    int    `koanf:"port" validate:"gte=1,lte=65535"`

	// Timeout bounds a single request, including batch processing.
	Timeout time.Duration `koanf:"timeout"`

	// RateLimitReqs per RateLimitWindow per client IP. Zero disables limiting.
	RateLimitReqs   int           `koanf:"rate_limit_reqs" validate:"gte=0"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`

	// MaxBodyBytes caps the size of a posted batch.
	MaxBodyBytes int64 `koanf:"max_body_bytes" validate:"gte=0"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"omitempty,oneof=trace debug info warn warning error fatal panic disabled"`
	Format string `koanf:"format" validate:"omitempty,oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// Addr returns host:port for the HTTP listener.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}
