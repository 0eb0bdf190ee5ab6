// Cropstream - Greenhouse Sensor Record Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cropstream

package envelope

import (
	"encoding/base64"
	"fmt"

	"github.com/goccy/go-json"
)

// Marshal encodes an outgoing envelope as JSON.
func Marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return data, nil
}

// EncodeMessage encodes a StreamMessage in its wire form, the inverse of
// DecodeMessage. The payload is always written as a list.
func EncodeMessage(msg *StreamMessage) ([]byte, error) {
	paths := msg.StagedFilePaths
	if paths == nil {
		paths = []string{}
	}
	version := msg.Version
	if version == "" {
		version = Version
	}
	return Marshal(struct {
		Version           string   `json:"version"`
		Source            string   `json:"source"`
		Valid             bool     `json:"valid"`
		IncomingTimestamp string   `json:"incoming_timestamp"`
		OutgoingTimestamp string   `json:"outgoing_timestamp"`
		Type              string   `json:"type"`
		Filename          string   `json:"filename"`
		Payload           []string `json:"payload"`
	}{
		Version:           version,
		Source:            msg.Source,
		Valid:             msg.Valid,
		IncomingTimestamp: msg.IncomingTimestamp,
		OutgoingTimestamp: msg.OutgoingTimestamp,
		Type:              msg.RecordType,
		Filename:          msg.Filename,
		Payload:           paths,
	})
}

// EncodeRecord wraps any message as a transport record:
// {"kinesis":{"data":base64(JSON(v)),"partitionKey":...}}.
// A StreamMessage is written in its wire form.
func EncodeRecord(v any, partitionKey string) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if msg, ok := v.(*StreamMessage); ok {
		data, err = EncodeMessage(msg)
	} else {
		data, err = Marshal(v)
	}
	if err != nil {
		return nil, err
	}

	rec := Record{
		Kinesis: KinesisData{
			Data:         base64.StdEncoding.EncodeToString(data),
			PartitionKey: partitionKey,
		},
	}
	out, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}
	return out, nil
}
