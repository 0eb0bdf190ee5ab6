// Cropstream - Greenhouse Sensor Record Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cropstream

package cloud

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
)

// Memory is an in-process Provider. It backs single-node runs without any
// cloud account and the pipeline tests.
type Memory struct {
	mu       sync.RWMutex
	objects  map[string]map[string][]byte
	streams  map[string][][]byte
	failures map[string]error
}

// NewMemory creates an empty in-memory provider.
func NewMemory() *Memory {
	return &Memory{
		objects:  make(map[string]map[string][]byte),
		streams:  make(map[string][][]byte),
		failures: make(map[string]error),
	}
}

// Put stores data directly, for seeding fixtures.
func (m *Memory) Put(bucket, key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[bucket]
	if !ok {
		b = make(map[string][]byte)
		m.objects[bucket] = b
	}
	b[key] = bytes.Clone(data)
}

// Object returns a stored object.
func (m *Memory) Object(bucket, key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[bucket][key]
	return bytes.Clone(data), ok
}

// Keys lists the keys of a bucket in order.
func (m *Memory) Keys(bucket string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.objects[bucket]))
	for k := range m.objects[bucket] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Messages returns every payload sent to stream, oldest first.
func (m *Memory) Messages(stream string) [][]byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([][]byte, len(m.streams[stream]))
	copy(out, m.streams[stream])
	return out
}

// FailStream makes every send to stream return err. A nil err clears it.
func (m *Memory) FailStream(stream string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, stream)
		return
	}
	m.failures[stream] = err
}

// GetObject implements Provider.
func (m *Memory) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, ok := m.Object(bucket, key)
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrObjectNotFound, bucket, key)
	}
	return data, nil
}

// DownloadObject implements Provider.
func (m *Memory) DownloadObject(ctx context.Context, bucket, key, dest string) (int64, error) {
	data, err := m.GetObject(ctx, bucket, key)
	if err != nil {
		return 0, err
	}
	if err := os.WriteFile(dest, data, 0o600); err != nil {
		return 0, fmt.Errorf("write %s: %w", dest, err)
	}
	return int64(len(data)), nil
}

// PutObject implements Provider.
func (m *Memory) PutObject(ctx context.Context, bucket, key string, body io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("read body for %s/%s: %w", bucket, key, err)
	}
	m.Put(bucket, key, data)
	return nil
}

// CopyObject implements Provider.
func (m *Memory) CopyObject(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) error {
	data, err := m.GetObject(ctx, srcBucket, srcKey)
	if err != nil {
		return err
	}
	m.Put(dstBucket, dstKey, data)
	return nil
}

// SendToStream implements Provider.
func (m *Memory) SendToStream(ctx context.Context, stream string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failures[stream]; err != nil {
		return err
	}
	m.streams[stream] = append(m.streams[stream], bytes.Clone(payload))
	return nil
}
