// Cropstream - Greenhouse Sensor Record Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cropstream

package cloud

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
)

const testContent = "\"id\";\"value\"\n\"a\";1\n"

func newTestStage(t *testing.T) (*Stage, *Memory) {
	t.Helper()
	mem := NewMemory()
	s := NewStage(mem, StageConfig{
		Bucket:          "staging",
		ProcessedStream: "processed",
		InvalidStream:   "invalid",
		SavedStream:     "saved",
		TempDir:         t.TempDir(),
	})
	return s, mem
}

func TestStage_ResolvePath(t *testing.T) {
	t.Parallel()
	s, _ := newTestStage(t)

	tests := []struct {
		in        string
		bucket    string
		key       string
		formatted string
	}{
		{"s3://other/raw/a.csv", "other", "raw/a.csv", "s3://staging/raw/a.csv"},
		{"raw/a.csv", "staging", "raw/a.csv", "s3://staging/raw/a.csv"},
		{"s3://bucket-only/", "bucket-only", "", "s3://staging/"},
	}
	for _, tt := range tests {
		bucket, key := s.ResolvePath(tt.in)
		if bucket != tt.bucket || key != tt.key {
			t.Errorf("ResolvePath(%q) = %q, %q; want %q, %q", tt.in, bucket, key, tt.bucket, tt.key)
		}
		if got := s.FormatStageFilename(tt.in); got != tt.formatted {
			t.Errorf("FormatStageFilename(%q) = %q, want %q", tt.in, got, tt.formatted)
		}
	}
}

func TestStage_DestinationKey(t *testing.T) {
	t.Parallel()
	s, _ := newTestStage(t)
	s.now = func() time.Time { return time.Date(2019, 8, 23, 23, 30, 0, 0, time.UTC) }

	key := s.DestinationKey("aux", "dir/0548207774527008-1565897431684-20190815-imu-000000.tar.bz2")
	re := regexp.MustCompile(`^record-processor/process_date=2019-08-23/datatype=aux/0548207774527008-1565897431684-20190815-imu-000000\.tar\.bz2__[0-9a-f-]{36}\.csv$`)
	if !re.MatchString(key) {
		t.Errorf("DestinationKey() = %q", key)
	}
	if other := s.DestinationKey("aux", "x"); other == s.DestinationKey("aux", "x") {
		t.Error("DestinationKey() must be unique per call")
	}
}

func gzipped(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(s)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestStage_OpenStageFile(t *testing.T) {
	t.Parallel()
	s, mem := newTestStage(t)
	ctx := context.Background()

	mem.Put("staging", "raw/plain.csv", []byte(testContent))
	mem.Put("other", "raw/zipped.csv.gz", gzipped(t, testContent))

	for _, p := range []string{"raw/plain.csv", "s3://other/raw/zipped.csv.gz"} {
		rc, err := s.OpenStageFile(ctx, p)
		if err != nil {
			t.Fatalf("OpenStageFile(%q) error: %v", p, err)
		}
		got, err := io.ReadAll(rc)
		if err != nil {
			t.Fatalf("read %q: %v", p, err)
		}
		if string(got) != testContent {
			t.Errorf("OpenStageFile(%q) content = %q", p, got)
		}
		if err := rc.Close(); err != nil {
			t.Errorf("Close() error: %v", err)
		}
	}

	entries, err := os.ReadDir(s.cfg.TempDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("temp files left behind: %d", len(entries))
	}
}

func TestStage_OpenStageFile_Bzip2(t *testing.T) {
	t.Parallel()
	s, mem := newTestStage(t)
	mem.Put("staging", "raw/file.csv.bz2", []byte(testContent))

	rc, err := s.OpenStageFile(context.Background(), "raw/file.csv.bz2")
	if err != nil {
		t.Fatalf("OpenStageFile() error: %v", err)
	}
	defer rc.Close()
	if _, err := io.ReadAll(rc); err == nil {
		t.Error("plain content under a .bz2 key must fail to decompress")
	}
}

func TestStage_OpenStageFile_Errors(t *testing.T) {
	t.Parallel()
	s, mem := newTestStage(t)
	ctx := context.Background()
	mem.Put("staging", "raw/empty.csv", nil)
	mem.Put("staging", "raw/broken.csv.gz", []byte("not gzip"))

	_, err := s.OpenStageFile(ctx, "raw/empty.csv")
	if !errors.Is(err, ErrEmptyObject) {
		t.Errorf("empty object error = %v", err)
	}
	if err != nil && !strings.Contains(err.Error(), "[staging/raw/empty.csv] has 0 bytes length") {
		t.Errorf("empty object message = %q", err.Error())
	}

	if _, err := s.OpenStageFile(ctx, "raw/missing.csv"); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("missing object error = %v", err)
	}
	if _, err := s.OpenStageFile(ctx, "raw/broken.csv.gz"); err == nil {
		t.Error("expected gzip error")
	}
	if _, err := s.GetStageObject(ctx, "raw/empty.csv"); !errors.Is(err, ErrEmptyObject) {
		t.Errorf("GetStageObject(empty) error = %v", err)
	}
}

func TestStage_UploadStage(t *testing.T) {
	t.Parallel()
	s, mem := newTestStage(t)

	local := filepath.Join(t.TempDir(), "out.csv")
	if err := os.WriteFile(local, []byte(testContent), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := s.UploadStage(context.Background(), local, "record-processor/x.csv"); err != nil {
		t.Fatalf("UploadStage() error: %v", err)
	}
	got, ok := mem.Object("staging", "record-processor/x.csv")
	if !ok || string(got) != testContent {
		t.Errorf("uploaded object = %q, %v", got, ok)
	}
	if err := s.UploadStage(context.Background(), filepath.Join(t.TempDir(), "nope"), "k"); err == nil {
		t.Error("expected error for missing local file")
	}
}

func TestStage_Streams(t *testing.T) {
	t.Parallel()
	s, mem := newTestStage(t)
	ctx := context.Background()

	if err := s.PutProcessed(ctx, map[string]any{"type": "aux"}); err != nil {
		t.Fatalf("PutProcessed() error: %v", err)
	}
	if err := s.PutInvalid(ctx, map[string]any{"reason": "boom"}); err != nil {
		t.Fatalf("PutInvalid() error: %v", err)
	}
	if err := s.PutSaved(ctx, map[string]any{"saved": true}); err != nil {
		t.Fatalf("PutSaved() error: %v", err)
	}

	msgs := mem.Messages("processed")
	if len(msgs) != 1 {
		t.Fatalf("processed messages = %d", len(msgs))
	}
	var got map[string]any
	if err := json.Unmarshal(msgs[0], &got); err != nil || got["type"] != "aux" {
		t.Errorf("processed payload = %s, %v", msgs[0], err)
	}
	if len(mem.Messages("invalid")) != 1 || len(mem.Messages("saved")) != 1 {
		t.Error("invalid/saved messages missing")
	}

	boom := errors.New("stream down")
	mem.FailStream("processed", boom)
	if err := s.PutProcessed(ctx, map[string]any{}); !errors.Is(err, boom) {
		t.Errorf("PutProcessed() error = %v, want %v", err, boom)
	}

	noSaved := NewStage(mem, StageConfig{Bucket: "staging"})
	if err := noSaved.PutSaved(ctx, map[string]any{}); !errors.Is(err, ErrStreamNotConfigured) {
		t.Errorf("PutSaved() without stream error = %v", err)
	}
}

func TestMemory_Objects(t *testing.T) {
	t.Parallel()
	mem := NewMemory()
	ctx := context.Background()

	if err := mem.PutObject(ctx, "a", "k1", strings.NewReader("one")); err != nil {
		t.Fatal(err)
	}
	if err := mem.CopyObject(ctx, "a", "k1", "b", "k2"); err != nil {
		t.Fatalf("CopyObject() error: %v", err)
	}
	if got, err := mem.GetObject(ctx, "b", "k2"); err != nil || string(got) != "one" {
		t.Errorf("GetObject(copy) = %q, %v", got, err)
	}
	if err := mem.CopyObject(ctx, "a", "missing", "b", "k3"); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("CopyObject(missing) error = %v", err)
	}

	dest := filepath.Join(t.TempDir(), "dl")
	n, err := mem.DownloadObject(ctx, "a", "k1", dest)
	if err != nil || n != 3 {
		t.Errorf("DownloadObject() = %d, %v", n, err)
	}
	if keys := mem.Keys("a"); len(keys) != 1 || keys[0] != "k1" {
		t.Errorf("Keys() = %v", keys)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := mem.GetObject(cancelled, "a", "k1"); !errors.Is(err, context.Canceled) {
		t.Errorf("GetObject(cancelled) error = %v", err)
	}
}
