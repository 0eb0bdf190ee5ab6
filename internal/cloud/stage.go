// Cropstream - Greenhouse Sensor Record Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cropstream

package cloud

import (
	"compress/bzip2"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"github.com/tomtom215/cropstream/internal/logging"
	"github.com/tomtom215/cropstream/internal/metrics"
)

// DefaultOutputPrefix is the key prefix of produced stage files.
const DefaultOutputPrefix = "record-processor"

// PartitionKeyLayout formats the send time used as stream partition key.
const PartitionKeyLayout = "2006-01-02 15:04:05"

var stagePathRE = regexp.MustCompile(`^s3://([^/]+)/(.*)$`)

// StageConfig names the stage bucket and the output streams.
type StageConfig struct {
	Bucket          string
	ProcessedStream string
	InvalidStream   string
	SavedStream     string
	OutputPrefix    string

	// TempDir holds downloaded stage files; empty means os.TempDir.
	TempDir string
}

// Stage is the staging view of a Provider: the stage bucket, the output
// streams and the conventions for paths inside them.
type Stage struct {
	provider Provider
	cfg      StageConfig
	now      func() time.Time
}

// NewStage binds p to the stage bucket and streams of cfg.
func NewStage(p Provider, cfg StageConfig) *Stage {
	if cfg.OutputPrefix == "" {
		cfg.OutputPrefix = DefaultOutputPrefix
	}
	return &Stage{provider: p, cfg: cfg, now: time.Now}
}

// Provider returns the underlying provider.
func (s *Stage) Provider() Provider {
	return s.provider
}

// Bucket returns the stage bucket name.
func (s *Stage) Bucket() string {
	return s.cfg.Bucket
}

// ResolvePath splits a staged path into bucket and key. s3://bucket/key
// keeps its bucket; anything else is a key in the stage bucket.
func (s *Stage) ResolvePath(stagedPath string) (bucket, key string) {
	if m := stagePathRE.FindStringSubmatch(stagedPath); m != nil {
		return m[1], m[2]
	}
	return s.cfg.Bucket, stagedPath
}

// FormatStageFilename returns the s3:// URL of key in the stage bucket.
func (s *Stage) FormatStageFilename(key string) string {
	_, key = s.ResolvePath(key)
	return fmt.Sprintf("s3://%s/%s", s.cfg.Bucket, key)
}

// DestinationKey builds the key of a produced stage file:
// <prefix>/process_date=YYYY-MM-DD/datatype=<type>/<basename>__<uuid>.csv
func (s *Stage) DestinationKey(recordType, filename string) string {
	return fmt.Sprintf("%s/process_date=%s/datatype=%s/%s__%s.csv",
		s.cfg.OutputPrefix,
		s.now().UTC().Format(time.DateOnly),
		recordType,
		path.Base(filename),
		uuid.NewString(),
	)
}

// GetStageObject reads a whole staged object.
func (s *Stage) GetStageObject(ctx context.Context, stagedPath string) ([]byte, error) {
	bucket, key := s.ResolvePath(stagedPath)
	data, err := s.provider.GetObject(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, emptyObjectError(bucket, key)
	}
	return data, nil
}

func emptyObjectError(bucket, key string) error {
	return fmt.Errorf("the object [%s/%s] has 0 bytes length: %w", bucket, key, ErrEmptyObject)
}

// OpenStageFile downloads a staged file to a temporary file and returns a
// reader over its content. .gz and .bz2 keys are decompressed. Closing the
// reader removes the temporary file.
func (s *Stage) OpenStageFile(ctx context.Context, stagedPath string) (io.ReadCloser, error) {
	bucket, key := s.ResolvePath(stagedPath)

	tmp, err := os.CreateTemp(s.cfg.TempDir, "stage-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	name := tmp.Name()
	if err := tmp.Close(); err != nil {
		_ = os.Remove(name)
		return nil, fmt.Errorf("close temp file: %w", err)
	}

	n, err := s.provider.DownloadObject(ctx, bucket, key, name)
	if err != nil {
		_ = os.Remove(name)
		return nil, fmt.Errorf("download %s/%s: %w", bucket, key, err)
	}
	if n == 0 {
		_ = os.Remove(name)
		return nil, emptyObjectError(bucket, key)
	}

	f, err := os.Open(name)
	if err != nil {
		_ = os.Remove(name)
		return nil, fmt.Errorf("open downloaded stage file: %w", err)
	}
	rc := &stageReader{Reader: f, file: f}

	switch strings.ToLower(path.Ext(key)) {
	case ".gz":
		zr, err := gzip.NewReader(f)
		if err != nil {
			_ = rc.Close()
			return nil, fmt.Errorf("gzip %s/%s: %w", bucket, key, err)
		}
		rc.Reader = zr
		rc.decoder = zr
	case ".bz2":
		rc.Reader = bzip2.NewReader(f)
	}
	return rc, nil
}

type stageReader struct {
	io.Reader
	file    *os.File
	decoder io.Closer
}

func (r *stageReader) Close() error {
	var errs []error
	if r.decoder != nil {
		errs = append(errs, r.decoder.Close())
	}
	errs = append(errs, r.file.Close())
	if err := os.Remove(r.file.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// UploadStage uploads the local file at localPath to key in the stage bucket.
func (s *Stage) UploadStage(ctx context.Context, localPath, key string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open stage output: %w", err)
	}
	defer f.Close()

	if err := s.provider.PutObject(ctx, s.cfg.Bucket, key, f); err != nil {
		return fmt.Errorf("upload %s: %w", s.FormatStageFilename(key), err)
	}
	logging.Debug().Str("key", key).Str("bucket", s.cfg.Bucket).Msg("Stage file uploaded")
	return nil
}

// PutProcessed publishes v to the processed-data stream.
func (s *Stage) PutProcessed(ctx context.Context, v any) error {
	return s.send(ctx, s.cfg.ProcessedStream, v)
}

// PutInvalid publishes v to the invalid-data stream.
func (s *Stage) PutInvalid(ctx context.Context, v any) error {
	return s.send(ctx, s.cfg.InvalidStream, v)
}

// PutSaved publishes v to the saved-data stream.
func (s *Stage) PutSaved(ctx context.Context, v any) error {
	return s.send(ctx, s.cfg.SavedStream, v)
}

func (s *Stage) send(ctx context.Context, stream string, v any) error {
	if stream == "" {
		return ErrStreamNotConfigured
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal stream payload: %w", err)
	}
	err = s.provider.SendToStream(ctx, stream, payload)
	metrics.RecordStreamPublish(stream, err)
	if err != nil {
		return fmt.Errorf("send to %s: %w", stream, err)
	}
	return nil
}
