// Cropstream - Greenhouse Sensor Record Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cropstream

// Package awscloud implements cloud.Provider on S3 and Kinesis.
package awscloud

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/kinesis"
	"github.com/aws/aws-sdk-go/service/kinesis/kinesisiface"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/cropstream/internal/cloud"
	"github.com/tomtom215/cropstream/internal/logging"
	"github.com/tomtom215/cropstream/internal/metrics"
)

// Config configures the AWS clients.
type Config struct {
	Region string

	// Endpoint overrides the service endpoint, for localstack.
	Endpoint string

	// PublishTimeout bounds a single PutRecord call. Zero means no bound.
	PublishTimeout time.Duration

	// BreakerFailures opens the stream circuit breaker after this many
	// consecutive failed sends. Defaults to 5.
	BreakerFailures uint32

	// BreakerTimeout is how long the breaker stays open. Defaults to 30s.
	BreakerTimeout time.Duration
}

// Provider implements cloud.Provider.
type Provider struct {
	s3         s3iface.S3API
	kinesis    kinesisiface.KinesisAPI
	downloader *s3manager.Downloader
	breaker    *gobreaker.CircuitBreaker[*kinesis.PutRecordOutput]
	cfg        Config
	now        func() time.Time
}

var _ cloud.Provider = (*Provider)(nil)

// New creates S3 and Kinesis clients from the default credential chain.
func New(cfg Config) (*Provider, error) {
	awsCfg := &aws.Config{Region: aws.String(cfg.Region)}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("create aws session: %w", err)
	}
	return NewWithClients(s3.New(sess), kinesis.New(sess), cfg), nil
}

// NewWithClients builds a Provider on existing clients.
func NewWithClients(s3Client s3iface.S3API, kinesisClient kinesisiface.KinesisAPI, cfg Config) *Provider {
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerTimeout == 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}
	return &Provider{
		s3:         s3Client,
		kinesis:    kinesisClient,
		downloader: s3manager.NewDownloaderWithClient(s3Client),
		breaker:    newBreaker("kinesis", cfg),
		cfg:        cfg,
		now:        time.Now,
	}
}

func newBreaker(name string, cfg Config) *gobreaker.CircuitBreaker[*kinesis.PutRecordOutput] {
	return gobreaker.NewCircuitBreaker[*kinesis.PutRecordOutput](gobreaker.Settings{
		Name:        name,
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

// isNotFound reports whether err is an S3 missing key or missing bucket.
func isNotFound(err error) bool {
	var reqErr awserr.RequestFailure
	if errors.As(err, &reqErr) && reqErr.StatusCode() == http.StatusNotFound {
		return true
	}
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, s3.ErrCodeNoSuchBucket, "NotFound":
			return true
		}
	}
	return false
}

func wrapS3(op, bucket, key string, err error) error {
	if isNotFound(err) {
		return fmt.Errorf("%s %s/%s: %w: %v", op, bucket, key, cloud.ErrObjectNotFound, err)
	}
	return fmt.Errorf("%s %s/%s: %w", op, bucket, key, err)
}

// GetObject implements cloud.Provider.
func (p *Provider) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	out, err := p.s3.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, wrapS3("get", bucket, key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s/%s: %w", bucket, key, err)
	}
	return data, nil
}

// DownloadObject implements cloud.Provider.
func (p *Provider) DownloadObject(ctx context.Context, bucket, key, dest string) (int64, error) {
	f, err := os.Create(dest)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", dest, err)
	}
	defer f.Close()

	n, err := p.downloader.DownloadWithContext(ctx, f, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			logging.Info().Str("bucket", bucket).Str("key", key).Msg("The object does not exist")
		}
		return 0, wrapS3("download", bucket, key, err)
	}
	return n, nil
}

// PutObject implements cloud.Provider.
func (p *Provider) PutObject(ctx context.Context, bucket, key string, body io.Reader) error {
	rs, ok := body.(io.ReadSeeker)
	if !ok {
		data, err := io.ReadAll(body)
		if err != nil {
			return fmt.Errorf("read body for %s/%s: %w", bucket, key, err)
		}
		rs = bytes.NewReader(data)
	}
	_, err := p.s3.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   rs,
	})
	if err != nil {
		return wrapS3("put", bucket, key, err)
	}
	return nil
}

// CopyObject implements cloud.Provider.
func (p *Provider) CopyObject(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) error {
	_, err := p.s3.CopyObjectWithContext(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(dstBucket),
		Key:        aws.String(dstKey),
		CopySource: aws.String(srcBucket + "/" + srcKey),
	})
	if err != nil {
		return wrapS3("copy", srcBucket, srcKey, err)
	}
	return nil
}

// SendToStream implements cloud.Provider. The partition key is the UTC send
// time truncated to seconds.
func (p *Provider) SendToStream(ctx context.Context, stream string, payload []byte) error {
	if stream == "" {
		return cloud.ErrStreamNotConfigured
	}
	if p.cfg.PublishTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.PublishTimeout)
		defer cancel()
	}

	out, err := p.breaker.Execute(func() (*kinesis.PutRecordOutput, error) {
		return p.kinesis.PutRecordWithContext(ctx, &kinesis.PutRecordInput{
			StreamName:   aws.String(stream),
			Data:         payload,
			PartitionKey: aws.String(p.now().UTC().Format(cloud.PartitionKeyLayout)),
		})
	})
	if err != nil {
		return fmt.Errorf("put record to %s: %w", stream, err)
	}
	if out != nil {
		logging.Debug().
			Str("stream", stream).
			Str("shard_id", aws.StringValue(out.ShardId)).
			Str("sequence_number", aws.StringValue(out.SequenceNumber)).
			Msg("Record sent to stream")
	}
	return nil
}

// BreakerState returns the stream circuit breaker state.
func (p *Provider) BreakerState() gobreaker.State {
	return p.breaker.State()
}
