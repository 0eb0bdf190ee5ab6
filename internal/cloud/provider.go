// Cropstream - Greenhouse Sensor Record Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cropstream

package cloud

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrObjectNotFound is returned when a bucket has no object under a key.
	ErrObjectNotFound = errors.New("object not found")

	// ErrEmptyObject is returned for zero-byte stage objects.
	ErrEmptyObject = errors.New("object has 0 bytes length")

	// ErrStreamNotConfigured is returned when a send names an empty stream.
	ErrStreamNotConfigured = errors.New("stream not configured")
)

// Provider is the cloud capability set the pipeline depends on: object
// storage plus stream publishing.
type Provider interface {
	// GetObject reads a whole object into memory.
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)

	// DownloadObject writes an object to the local file dest and returns
	// the number of bytes written.
	DownloadObject(ctx context.Context, bucket, key, dest string) (int64, error)

	// PutObject stores body under bucket/key, replacing any existing object.
	PutObject(ctx context.Context, bucket, key string, body io.Reader) error

	// CopyObject copies an object between buckets.
	CopyObject(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) error

	// SendToStream publishes one JSON payload to a named stream.
	SendToStream(ctx context.Context, stream string, payload []byte) error
}
