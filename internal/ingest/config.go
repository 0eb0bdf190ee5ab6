// Cropstream - Greenhouse Sensor Record Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cropstream

package ingest

import (
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/tomtom215/cropstream/internal/config"
)

// ServerConfig configures the embedded NATS server.
type ServerConfig struct {
	Host              string
	Port              int
	StoreDir          string
	JetStreamMaxMem   int64
	JetStreamMaxStore int64
}

// SubscriberConfig configures the raw record subscriber.
type SubscriberConfig struct {
	URL              string
	DurableName      string
	QueueGroup       string
	SubscribersCount int
	AckWaitTimeout   time.Duration
	MaxDeliver       int
	MaxAckPending    int
	CloseTimeout     time.Duration
	MaxReconnects    int
	ReconnectWait    time.Duration

	// StreamName binds the subscriber to an existing stream instead of
	// provisioning one per subject.
	StreamName string
}

// StreamConfig configures the JetStream stream carrying raw records and
// the output subjects.
type StreamConfig struct {
	Name            string
	Subjects        []string
	MaxAge          time.Duration
	MaxBytes        int64
	MaxMsgs         int64
	DuplicateWindow time.Duration
	Replicas        int
}

// ServerConfigFrom derives the embedded server settings from the app
// config. The listen address comes from the client URL, so that clients
// configured with NATS_URL reach the embedded server.
func ServerConfigFrom(cfg config.NATSConfig) ServerConfig {
	host, port := "127.0.0.1", 4222
	if u, err := url.Parse(cfg.URL); err == nil && u.Host != "" {
		if h, p, err := net.SplitHostPort(u.Host); err == nil {
			host = h
			if n, err := strconv.Atoi(p); err == nil {
				port = n
			}
		} else {
			host = u.Host
		}
	}
	return ServerConfig{
		Host:              host,
		Port:              port,
		StoreDir:          cfg.StoreDir,
		JetStreamMaxMem:   cfg.MaxMemory,
		JetStreamMaxStore: cfg.MaxStore,
	}
}

// SubscriberConfigFrom derives the subscriber settings from the app config.
func SubscriberConfigFrom(cfg config.NATSConfig) SubscriberConfig {
	count := cfg.SubscribersCount
	if count <= 0 {
		count = 1
	}
	return SubscriberConfig{
		URL:              cfg.URL,
		DurableName:      cfg.DurableName,
		QueueGroup:       cfg.QueueGroup,
		SubscribersCount: count,
		AckWaitTimeout:   5 * time.Minute,
		MaxDeliver:       5,
		MaxAckPending:    100,
		CloseTimeout:     cfg.CloseTimeout,
		MaxReconnects:    -1,
		ReconnectWait:    2 * time.Second,
		StreamName:       cfg.StreamName,
	}
}

// StreamConfigFrom derives the stream settings from the app config. The
// stream covers the raw subject and every output subject.
func StreamConfigFrom(cfg config.NATSConfig) StreamConfig {
	subjects := []string{cfg.RawSubject}
	if cfg.OutputSubjectPrefix != "" {
		subjects = append(subjects, cfg.OutputSubjectPrefix+".>")
	}
	return StreamConfig{
		Name:            cfg.StreamName,
		Subjects:        subjects,
		MaxAge:          time.Duration(cfg.StreamRetentionDays) * 24 * time.Hour,
		MaxBytes:        -1,
		MaxMsgs:         -1,
		DuplicateWindow: 2 * time.Minute,
		Replicas:        1,
	}
}
