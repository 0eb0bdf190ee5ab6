// Cropstream - Greenhouse Sensor Record Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cropstream

package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

func startEmbedded(t *testing.T) *EmbeddedServer {
	t.Helper()
	srv, err := NewEmbeddedServer(&ServerConfig{
		Host:     "127.0.0.1",
		Port:     server.RANDOM_PORT,
		StoreDir: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("NewEmbeddedServer() error: %v", err)
	}
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func jetStream(t *testing.T, url string) jetstream.JetStream {
	t.Helper()
	nc, err := natsgo.Connect(url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(nc.Close)
	js, err := jetstream.New(nc)
	if err != nil {
		t.Fatalf("jetstream: %v", err)
	}
	return js
}

func TestNewStreamInitializer_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		js   JetStreamContext
		cfg  *StreamConfig
	}{
		{"nil context", nil, &StreamConfig{Name: "S", Subjects: []string{"a"}}},
		{"nil config", &jsStub{}, nil},
		{"no name", &jsStub{}, &StreamConfig{Subjects: []string{"a"}}},
		{"no subjects", &jsStub{}, &StreamConfig{Name: "S"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := NewStreamInitializer(tt.js, tt.cfg); err == nil {
				t.Error("NewStreamInitializer() must fail")
			}
		})
	}
}

type jsStub struct{ JetStreamContext }

func TestStreamInitializer_EnsureStream(t *testing.T) {
	if testing.Short() {
		t.Skip("starts an embedded NATS server")
	}
	srv := startEmbedded(t)
	if !srv.IsRunning() || !srv.JetStreamEnabled() {
		t.Fatal("embedded server must run with JetStream")
	}
	js := jetStream(t, srv.ClientURL())
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg := &StreamConfig{
		Name:            "CROPSTREAM",
		Subjects:        []string{"cropstream.records.raw", "cropstream.out.>"},
		MaxAge:          time.Hour,
		MaxBytes:        -1,
		MaxMsgs:         -1,
		DuplicateWindow: time.Minute,
		Replicas:        1,
	}
	si, err := NewStreamInitializer(js, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if si.IsHealthy(ctx) {
		t.Error("IsHealthy() before EnsureStream must be false")
	}

	stream, err := si.EnsureStream(ctx)
	if err != nil {
		t.Fatalf("EnsureStream() create error: %v", err)
	}
	if got := stream.CachedInfo().Config.Subjects; len(got) != 2 {
		t.Errorf("subjects = %v", got)
	}

	// Second call updates in place.
	if _, err := si.EnsureStream(ctx); err != nil {
		t.Fatalf("EnsureStream() update error: %v", err)
	}
	if !si.IsHealthy(ctx) {
		t.Error("IsHealthy() after EnsureStream must be true")
	}
	if si.Config().Name != "CROPSTREAM" {
		t.Errorf("Config().Name = %q", si.Config().Name)
	}
}

func TestConsumer_EndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("starts an embedded NATS server")
	}
	srv := startEmbedded(t)
	js := jetStream(t, srv.ClientURL())
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	const subject = "cropstream.records.raw"
	si, err := NewStreamInitializer(js, &StreamConfig{
		Name:            "CROPSTREAM",
		Subjects:        []string{subject},
		MaxBytes:        -1,
		MaxMsgs:         -1,
		DuplicateWindow: time.Minute,
		Replicas:        1,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := si.EnsureStream(ctx); err != nil {
		t.Fatalf("EnsureStream() error: %v", err)
	}

	sub, err := NewSubscriber(&SubscriberConfig{
		URL:              srv.ClientURL(),
		DurableName:      "processor",
		QueueGroup:       "processors",
		SubscribersCount: 1,
		AckWaitTimeout:   30 * time.Second,
		MaxDeliver:       5,
		MaxAckPending:    10,
		CloseTimeout:     5 * time.Second,
		MaxReconnects:    -1,
		ReconnectWait:    time.Second,
		StreamName:       "CROPSTREAM",
	}, nil)
	if err != nil {
		t.Fatalf("NewSubscriber() error: %v", err)
	}
	t.Cleanup(func() { _ = sub.Close() })

	pub, err := NewPublisher(srv.ClientURL(), subject, nil)
	if err != nil {
		t.Fatalf("NewPublisher() error: %v", err)
	}
	t.Cleanup(func() { _ = pub.Close() })

	h := &recordingHandler{}
	consumer := NewConsumer(sub, subject, h)
	serveCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() { _ = consumer.Serve(serveCtx) }()

	// The consumer only sees records published after it subscribed.
	payload := []byte(`{"kinesis":{"data":"e30="}}`)
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for h.count() == 0 {
		if err := pub.PublishRecord(ctx, payload); err != nil {
			t.Fatalf("PublishRecord() error: %v", err)
		}
		select {
		case <-ctx.Done():
			t.Fatal("no record consumed before timeout")
		case <-ticker.C:
		}
	}

	h.mu.Lock()
	got := h.payloads[0]
	h.mu.Unlock()
	if got != string(payload) {
		t.Errorf("consumed payload = %s", got)
	}

	if err := pub.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
	if err := pub.PublishRecord(ctx, payload); err == nil {
		t.Error("PublishRecord() after Close must fail")
	}
}
