// Cropstream - Greenhouse Sensor Record Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cropstream

package envelope

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/tomtom215/cropstream/internal/validation"
)

// Version is the envelope version written on every outgoing message.
const Version = "1.0"

// Undefined marks a field whose value could not be resolved.
const Undefined = "<undefined>"

// TimestampLayout is the layout of incoming and outgoing envelope timestamps.
const TimestampLayout = "2006-01-02 15:04:05"

var (
	// ErrMissingData is returned when a transport record carries no kinesis.data.
	ErrMissingData = errors.New("record has no kinesis data")

	// ErrInvalidBase64 is returned when kinesis.data is not valid base64.
	ErrInvalidBase64 = errors.New("record data is not valid base64")

	// ErrInvalidMessage is returned when the decoded data is not a stream message.
	ErrInvalidMessage = errors.New("record data is not a valid stream message")
)

// Record is one transport record as delivered by a Kinesis-style stream.
type Record struct {
	Kinesis     KinesisData `json:"kinesis"`
	EventSource string      `json:"eventSource,omitempty"`
	EventID     string      `json:"eventID,omitempty"`
	EventName   string      `json:"eventName,omitempty"`
}

// KinesisData is the kinesis block of a Record. Data holds base64(JSON).
type KinesisData struct {
	Data                        string  `json:"data"`
	PartitionKey                string  `json:"partitionKey,omitempty"`
	SequenceNumber              string  `json:"sequenceNumber,omitempty"`
	ApproximateArrivalTimestamp float64 `json:"approximateArrivalTimestamp,omitempty"`
}

// StreamMessage is one decoded event. It lives for a single pipeline run.
type StreamMessage struct {
	Version           string
	Source            string
	Valid             bool
	IncomingTimestamp string
	OutgoingTimestamp string
	RecordType        string `validate:"required"`
	Filename          string
	StagedFilePaths   []string
}

// Invalidate marks the message as invalid before it is routed to the
// invalid stream.
func (m *StreamMessage) Invalidate() {
	m.Valid = false
}

// wireMessage is the JSON document inside kinesis.data. version and payload
// are polymorphic on the wire.
type wireMessage struct {
	Version           json.RawMessage `json:"version"`
	Source            string          `json:"source"`
	Valid             bool            `json:"valid"`
	IncomingTimestamp string          `json:"incoming_timestamp"`
	OutgoingTimestamp string          `json:"outgoing_timestamp"`
	Type              string          `json:"type"`
	Filename          string          `json:"filename"`
	Payload           json.RawMessage `json:"payload"`
}

// HasData reports whether raw is a transport record with a non-empty
// kinesis.data field. It does not decode the data.
func HasData(raw []byte) bool {
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return false
	}
	return rec.Kinesis.Data != ""
}

// DecodeRecord decodes one transport record into a StreamMessage.
func DecodeRecord(raw []byte) (*StreamMessage, error) {
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if rec.Kinesis.Data == "" {
		return nil, ErrMissingData
	}

	data, err := base64.StdEncoding.DecodeString(rec.Kinesis.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBase64, err)
	}
	return DecodeMessage(data)
}

// DecodeMessage decodes the JSON document carried inside a transport record.
func DecodeMessage(data []byte) (*StreamMessage, error) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	version, err := decodeVersion(w.Version)
	if err != nil {
		return nil, err
	}
	paths, err := decodePayload(w.Payload)
	if err != nil {
		return nil, err
	}

	msg := &StreamMessage{
		Version:           version,
		Source:            w.Source,
		Valid:             w.Valid,
		IncomingTimestamp: truncate(w.IncomingTimestamp, len(TimestampLayout)),
		OutgoingTimestamp: truncate(w.OutgoingTimestamp, len(TimestampLayout)),
		RecordType:        w.Type,
		Filename:          w.Filename,
		StagedFilePaths:   paths,
	}
	if err := validation.Validate(msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return msg, nil
}

// decodeVersion accepts 1.0 and "1.0" alike.
func decodeVersion(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("%w: version: %v", ErrInvalidMessage, err)
		}
		return s, nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return "", fmt.Errorf("%w: version: %v", ErrInvalidMessage, err)
	}
	return strconv.FormatFloat(f, 'f', 1, 64), nil
}

// decodePayload turns a single path or a list of paths into a list.
func decodePayload(raw json.RawMessage) ([]string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("%w: payload: %v", ErrInvalidMessage, err)
		}
		return []string{s}, nil
	}
	var paths []string
	if err := json.Unmarshal(raw, &paths); err != nil {
		return nil, fmt.Errorf("%w: payload must be a path or a list of paths: %v", ErrInvalidMessage, err)
	}
	return paths, nil
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
