// Cropstream - Greenhouse Sensor Record Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cropstream

package envelope

import (
	"time"

	"github.com/goccy/go-json"
)

// InvalidSourceProcessor names the pipeline itself when no processor could
// claim the failure.
const InvalidSourceProcessor = "record_processor"

// invalidTimestampLayout is used when the failure happened before the
// message's own timestamps were known.
const invalidTimestampLayout = "2006-01-02 15:04:05.000000"

// Invalid is the envelope published to the invalid (dead-letter) stream.
type Invalid struct {
	Version           json.Number `json:"version"`
	Source            string      `json:"source"`
	Valid             bool        `json:"valid"`
	IncomingTimestamp string      `json:"incoming_timestamp"`
	OutgoingTimestamp string      `json:"outgoing_timestamp"`
	Payload           any         `json:"payload"`
	Type              string      `json:"type"`
	Filename          string      `json:"filename"`
	Reason            string      `json:"reason"`
	InvalidSource     string      `json:"invalid_source"`
	Stack             string      `json:"stack"`
}

// MinimalPayload is the payload of an invalid envelope built without a
// decoded message.
type MinimalPayload struct {
	RecordProcessor string `json:"record_processor"`
	InvalidEvent    any    `json:"invalid_event"`
	Stack           string `json:"stack"`
}

// NewInvalidEnvelope builds the invalid envelope for a decoded message.
// The payload carries the original staged paths.
func NewInvalidEnvelope(msg *StreamMessage, reason, source, stack string) *Invalid {
	var payload any = msg.StagedFilePaths
	if len(msg.StagedFilePaths) == 0 {
		payload = []string{}
	}
	return &Invalid{
		Version:           json.Number(Version),
		Source:            msg.Source,
		Valid:             false,
		IncomingTimestamp: msg.IncomingTimestamp,
		OutgoingTimestamp: msg.OutgoingTimestamp,
		Payload:           payload,
		Type:              msg.RecordType,
		Filename:          msg.Filename,
		Reason:            reason,
		InvalidSource:     source,
		Stack:             stack,
	}
}

// NewMinimalInvalidEnvelope builds an invalid envelope for a raw event that
// could not be decoded. raw is embedded as JSON when it parses, otherwise as
// a string.
func NewMinimalInvalidEnvelope(raw []byte, reason, stack string, now time.Time) *Invalid {
	var event any = string(raw)
	if json.Valid(raw) {
		event = json.RawMessage(raw)
	}
	ts := now.UTC().Format(invalidTimestampLayout)
	return &Invalid{
		Version:           json.Number(Version),
		Source:            "",
		Valid:             false,
		IncomingTimestamp: ts,
		OutgoingTimestamp: ts,
		Payload: MinimalPayload{
			RecordProcessor: InvalidSourceProcessor,
			InvalidEvent:    event,
			Stack:           stack,
		},
		Type:          "event",
		Filename:      "",
		Reason:        reason,
		InvalidSource: InvalidSourceProcessor,
		Stack:         stack,
	}
}
