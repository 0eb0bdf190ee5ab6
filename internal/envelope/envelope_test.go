// Cropstream - Greenhouse Sensor Record Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cropstream

package envelope

import (
	"encoding/base64"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

func recordWithData(data string) []byte {
	return []byte(`{"kinesis":{"partitionKey":"2019-04-25 15:45:32","data":"` + data + `"}}`)
}

func encode(doc string) []byte {
	return recordWithData(base64.StdEncoding.EncodeToString([]byte(doc)))
}

func TestDecodeRecord(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		raw       []byte
		wantErr   error
		wantPaths []string
		wantVer   string
	}{
		{
			name:      "list payload numeric version",
			raw:       encode(`{"version":1.0,"source":"label/x","valid":true,"incoming_timestamp":"2019-04-23 00:00:00.123456","outgoing_timestamp":"2019-04-25 15:45:32+00:00","type":"label","filename":"a.label","payload":["s3://b/k1.csv","s3://b/k2.csv"]}`),
			wantPaths: []string{"s3://b/k1.csv", "s3://b/k2.csv"},
			wantVer:   "1.0",
		},
		{
			name:      "string payload string version",
			raw:       encode(`{"version":"1.0","source":"s","valid":true,"incoming_timestamp":"2019-04-23 00:00:00","outgoing_timestamp":"2019-04-23 00:00:00","type":"aux","filename":"f","payload":"s3://b/only.csv"}`),
			wantPaths: []string{"s3://b/only.csv"},
			wantVer:   "1.0",
		},
		{
			name:    "missing data",
			raw:     []byte(`{"kinesis":{"partitionKey":"x"}}`),
			wantErr: ErrMissingData,
		},
		{
			name:    "bad base64",
			raw:     recordWithData("***not-base64***"),
			wantErr: ErrInvalidBase64,
		},
		{
			name:    "bad json inside",
			raw:     encode(`{"version":`),
			wantErr: ErrInvalidMessage,
		},
		{
			name:    "missing type",
			raw:     encode(`{"version":1.0,"payload":[]}`),
			wantErr: ErrInvalidMessage,
		},
		{
			name:    "payload of numbers",
			raw:     encode(`{"type":"aux","payload":[1,2]}`),
			wantErr: ErrInvalidMessage,
		},
		{
			name:    "not a record",
			raw:     []byte(`not json`),
			wantErr: ErrInvalidMessage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			msg, err := DecodeRecord(tt.raw)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("DecodeRecord() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeRecord() unexpected error: %v", err)
			}
			if !reflect.DeepEqual(msg.StagedFilePaths, tt.wantPaths) {
				t.Errorf("StagedFilePaths = %v, want %v", msg.StagedFilePaths, tt.wantPaths)
			}
			if msg.Version != tt.wantVer {
				t.Errorf("Version = %q, want %q", msg.Version, tt.wantVer)
			}
			if len(msg.IncomingTimestamp) > 19 || len(msg.OutgoingTimestamp) > 19 {
				t.Errorf("timestamps not truncated: %q %q", msg.IncomingTimestamp, msg.OutgoingTimestamp)
			}
		})
	}
}

func TestDecodeRecord_TruncatesTimestamps(t *testing.T) {
	t.Parallel()

	msg, err := DecodeRecord(encode(`{"type":"wave","incoming_timestamp":"2019-06-07T22:55:46+00:00","outgoing_timestamp":"2019-06-07 22:55:46.812"}`))
	if err != nil {
		t.Fatal(err)
	}
	if msg.IncomingTimestamp != "2019-06-07T22:55:46" {
		t.Errorf("IncomingTimestamp = %q", msg.IncomingTimestamp)
	}
	if msg.OutgoingTimestamp != "2019-06-07 22:55:46" {
		t.Errorf("OutgoingTimestamp = %q", msg.OutgoingTimestamp)
	}
}

func TestHasData(t *testing.T) {
	t.Parallel()

	if !HasData(recordWithData("eyJ9")) {
		t.Error("HasData() = false for a record with data")
	}
	if HasData([]byte(`{"kinesis":{}}`)) {
		t.Error("HasData() = true for a record without data")
	}
	if HasData([]byte(`[]`)) {
		t.Error("HasData() = true for a non-record")
	}
}

func TestEncodeRecord_RoundTrip(t *testing.T) {
	t.Parallel()

	in := &StreamMessage{
		Version:           "1.0",
		Source:            "video/abc",
		Valid:             true,
		IncomingTimestamp: "2019-05-01 10:00:00",
		OutgoingTimestamp: "2019-05-01 10:00:01",
		RecordType:        "video",
		Filename:          "0438-20190501-1-101010.video",
		StagedFilePaths:   []string{"s3://stage/a.csv.gz"},
	}
	raw, err := EncodeRecord(in, "pk")
	if err != nil {
		t.Fatalf("EncodeRecord() error: %v", err)
	}

	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		t.Fatal(err)
	}
	if rec.Kinesis.PartitionKey != "pk" {
		t.Errorf("PartitionKey = %q", rec.Kinesis.PartitionKey)
	}

	out, err := DecodeRecord(raw)
	if err != nil {
		t.Fatalf("DecodeRecord() error: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Errorf("round trip mismatch:\n in  %+v\n out %+v", in, out)
	}
}

func TestInvalidate(t *testing.T) {
	t.Parallel()

	msg := &StreamMessage{Valid: true, RecordType: "aux"}
	msg.Invalidate()
	if msg.Valid {
		t.Error("Invalidate() did not clear Valid")
	}
}

func TestNewProcessedEnvelope(t *testing.T) {
	t.Parallel()

	msg := &StreamMessage{
		Source:            "aux/src",
		Valid:             true,
		IncomingTimestamp: "2019-05-01 10:00:00",
		OutgoingTimestamp: "2019-05-01 10:00:00",
		RecordType:        "model-stress-prediction-summary",
		Filename:          "f.csv",
	}
	msg.RecordType = "label"

	p := NewProcessedEnvelope(msg, Extra{
		OutgoingTimestamp: "2019-05-02 11:00:00",
		Payload:           []string{"record-processor/out.csv"},
		CustomerID:        "c1",
		TagID:             "0438",
		RowNumber:         7,
		Side:              "left",
	})

	data, err := Marshal(p)
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}

	want := map[string]any{
		"version":            "1.0",
		"type":               "label",
		"outgoing_timestamp": "2019-05-02 11:00:00",
		"customer_id":        "c1",
		"farm_id":            Undefined,
		"machine_id":         Undefined,
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %v, want %v", k, got[k], v)
		}
	}
	loc, ok := got["row_location"].(map[string]any)
	if !ok {
		t.Fatalf("row_location missing: %v", got)
	}
	if loc["row_number"] != float64(7) || loc["post_number"] != float64(0) {
		t.Errorf("row_location = %v", loc)
	}
	if loc["direction"] != Undefined {
		t.Errorf("direction = %v, want %s", loc["direction"], Undefined)
	}
	paths, ok := got["payload"].([]any)
	if !ok || len(paths) != 1 {
		t.Errorf("payload = %v", got["payload"])
	}
}

func TestNewProcessedEnvelope_EmptyPayload(t *testing.T) {
	t.Parallel()

	p := NewProcessedEnvelope(&StreamMessage{RecordType: "aux"}, Extra{})
	if p.Payload != Undefined {
		t.Errorf("Payload = %v, want %s", p.Payload, Undefined)
	}
}

func TestNewInvalidEnvelope(t *testing.T) {
	t.Parallel()

	msg := &StreamMessage{
		Source:            "wave/x",
		Valid:             true,
		IncomingTimestamp: "2019-05-01 10:00:00",
		OutgoingTimestamp: "2019-05-01 10:00:00",
		RecordType:        "wave",
		Filename:          "x.wave",
		StagedFilePaths:   []string{"s3://b/k.csv"},
	}
	msg.Invalidate()
	inv := NewInvalidEnvelope(msg, "boom", "wave", "goroutine 1 [running]")

	data, err := Marshal(inv)
	if err != nil {
		t.Fatal(err)
	}
	s := string(data)
	for _, want := range []string{
		`"version":1.0`,
		`"valid":false`,
		`"reason":"boom"`,
		`"invalid_source":"wave"`,
		`"payload":["s3://b/k.csv"]`,
		`"type":"wave"`,
	} {
		if !strings.Contains(s, want) {
			t.Errorf("invalid envelope %s missing %s", s, want)
		}
	}
}

func TestNewMinimalInvalidEnvelope(t *testing.T) {
	t.Parallel()

	now := time.Date(2019, 5, 1, 10, 0, 0, 123456000, time.UTC)

	t.Run("json event", func(t *testing.T) {
		t.Parallel()
		inv := NewMinimalInvalidEnvelope([]byte(`{"kinesis":{}}`), ErrMissingData.Error(), "stack", now)
		if inv.Type != "event" || inv.Source != "" || inv.Filename != "" {
			t.Errorf("identity = %q/%q/%q", inv.Type, inv.Source, inv.Filename)
		}
		if inv.InvalidSource != InvalidSourceProcessor {
			t.Errorf("InvalidSource = %q", inv.InvalidSource)
		}
		if inv.IncomingTimestamp != "2019-05-01 10:00:00.123456" {
			t.Errorf("IncomingTimestamp = %q", inv.IncomingTimestamp)
		}
		data, err := Marshal(inv)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(string(data), `"invalid_event":{"kinesis":{}}`) {
			t.Errorf("raw event not embedded as JSON: %s", data)
		}
	})

	t.Run("non json event", func(t *testing.T) {
		t.Parallel()
		inv := NewMinimalInvalidEnvelope([]byte(`garbage`), "bad", "", now)
		p, ok := inv.Payload.(MinimalPayload)
		if !ok {
			t.Fatalf("Payload type = %T", inv.Payload)
		}
		if p.InvalidEvent != "garbage" {
			t.Errorf("InvalidEvent = %v", p.InvalidEvent)
		}
	})
}

func TestOutgoingTimestamp(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("PDT", -7*3600)
	got := OutgoingTimestamp(time.Date(2019, 5, 1, 3, 4, 5, 999, loc))
	if got != "2019-05-01 10:04:05" {
		t.Errorf("OutgoingTimestamp() = %q", got)
	}
}
