// Cropstream - Greenhouse Sensor Record Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cropstream

// Package natscloud implements cloud.Provider on NATS JetStream: staged
// objects live in one JetStream object store, output streams are subjects
// published through Watermill.
package natscloud

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/cropstream/internal/cloud"
	"github.com/tomtom215/cropstream/internal/logging"
	"github.com/tomtom215/cropstream/internal/metrics"
)

// Config configures the NATS connection, object bucket and subjects.
type Config struct {
	URL string

	// ObjectBucket is the JetStream object store holding staged files.
	ObjectBucket string

	// SubjectPrefix is prepended to stream names: <prefix>.<stream>.
	SubjectPrefix string

	MaxReconnects int
	ReconnectWait time.Duration

	// BreakerFailures opens the publish breaker after this many consecutive
	// failures. Defaults to 5.
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// Provider implements cloud.Provider.
type Provider struct {
	cfg       Config
	nc        *natsgo.Conn
	objects   jetstream.ObjectStore
	publisher message.Publisher
	breaker   *gobreaker.CircuitBreaker[struct{}]

	mu     sync.RWMutex
	closed bool
}

var _ cloud.Provider = (*Provider)(nil)

// New connects to NATS, opens or creates the object bucket and starts a
// JetStream publisher. The stream covering <prefix>.> must already exist.
func New(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (*Provider, error) {
	if cfg.ObjectBucket == "" {
		return nil, errors.New("object bucket required")
	}
	if cfg.MaxReconnects == 0 {
		cfg.MaxReconnects = -1
	}
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = 2 * time.Second
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerTimeout == 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = watermill.NewSlogLogger(logging.NewSlogLogger())
	}

	natsOpts := []natsgo.Option{
		natsgo.Name("cropstream-cloud"),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logging.Warn().Err(err).Msg("NATS cloud connection lost")
			}
		}),
	}

	nc, err := natsgo.Connect(cfg.URL, natsOpts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}
	objects, err := ensureObjectStore(ctx, js, cfg.ObjectBucket)
	if err != nil {
		nc.Close()
		return nil, err
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         cfg.URL,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled:      false,
			AutoProvision: false,
			TrackMsgId:    true,
			PublishOptions: []natsgo.PubOpt{
				natsgo.RetryAttempts(3),
				natsgo.RetryWait(100 * time.Millisecond),
			},
		},
	}, logger)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create watermill publisher: %w", err)
	}

	return &Provider{
		cfg:       cfg,
		nc:        nc,
		objects:   objects,
		publisher: pub,
		breaker:   newBreaker(cfg),
	}, nil
}

func ensureObjectStore(ctx context.Context, js jetstream.JetStream, bucket string) (jetstream.ObjectStore, error) {
	store, err := js.ObjectStore(ctx, bucket)
	if err == nil {
		return store, nil
	}
	if !errors.Is(err, jetstream.ErrBucketNotFound) {
		return nil, fmt.Errorf("open object store %s: %w", bucket, err)
	}
	store, err = js.CreateObjectStore(ctx, jetstream.ObjectStoreConfig{
		Bucket:      bucket,
		Description: "cropstream staged files",
		Storage:     jetstream.FileStorage,
	})
	if err != nil {
		return nil, fmt.Errorf("create object store %s: %w", bucket, err)
	}
	logging.Info().Str("bucket", bucket).Msg("Created JetStream object store")
	return store, nil
}

func newBreaker(cfg Config) *gobreaker.CircuitBreaker[struct{}] {
	return gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "nats-publish",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.RecordCircuitBreakerState(name, int(to))
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	})
}

// ObjectName maps a bucket and key onto the single object store.
func ObjectName(bucket, key string) string {
	return bucket + "/" + key
}

func wrapObject(op, bucket, key string, err error) error {
	if errors.Is(err, jetstream.ErrObjectNotFound) {
		return fmt.Errorf("%s %s/%s: %w", op, bucket, key, cloud.ErrObjectNotFound)
	}
	return fmt.Errorf("%s %s/%s: %w", op, bucket, key, err)
}

// GetObject implements cloud.Provider.
func (p *Provider) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	data, err := p.objects.GetBytes(ctx, ObjectName(bucket, key))
	if err != nil {
		return nil, wrapObject("get", bucket, key, err)
	}
	return data, nil
}

// DownloadObject implements cloud.Provider.
func (p *Provider) DownloadObject(ctx context.Context, bucket, key, dest string) (int64, error) {
	res, err := p.objects.Get(ctx, ObjectName(bucket, key))
	if err != nil {
		return 0, wrapObject("download", bucket, key, err)
	}
	defer res.Close()

	f, err := os.Create(dest)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", dest, err)
	}
	n, err := io.Copy(f, res)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, fmt.Errorf("download %s/%s: %w", bucket, key, err)
	}
	return n, nil
}

// PutObject implements cloud.Provider.
func (p *Provider) PutObject(ctx context.Context, bucket, key string, body io.Reader) error {
	_, err := p.objects.Put(ctx, jetstream.ObjectMeta{Name: ObjectName(bucket, key)}, body)
	if err != nil {
		return wrapObject("put", bucket, key, err)
	}
	return nil
}

// CopyObject implements cloud.Provider.
func (p *Provider) CopyObject(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) error {
	res, err := p.objects.Get(ctx, ObjectName(srcBucket, srcKey))
	if err != nil {
		return wrapObject("copy", srcBucket, srcKey, err)
	}
	defer res.Close()
	return p.PutObject(ctx, dstBucket, dstKey, res)
}

// Subject returns the subject a stream publishes to.
func (p *Provider) Subject(stream string) string {
	if p.cfg.SubjectPrefix == "" {
		return stream
	}
	return p.cfg.SubjectPrefix + "." + stream
}

// SendToStream implements cloud.Provider.
func (p *Provider) SendToStream(ctx context.Context, stream string, payload []byte) error {
	if stream == "" {
		return cloud.ErrStreamNotConfigured
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return errors.New("provider is closed")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := message.NewMessage(uuid.NewString(), payload)
	msg.Metadata.Set(natsgo.MsgIdHdr, msg.UUID)
	msg.Metadata.Set("stream", stream)

	_, err := p.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, p.publisher.Publish(p.Subject(stream), msg)
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", p.Subject(stream), err)
	}
	return nil
}

// Close stops the publisher and the object store connection.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	err := p.publisher.Close()
	p.nc.Close()
	return err
}
