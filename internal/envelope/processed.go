// Cropstream - Greenhouse Sensor Record Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cropstream

package envelope

import "time"

// RowLocation is the row_location block of a processed envelope.
type RowLocation struct {
	TagID      string `json:"tag_id"`
	RowNumber  int    `json:"row_number"`
	PostNumber int    `json:"post_number"`
	Side       string `json:"side"`
	Direction  string `json:"direction"`
}

// Extra is the resolved context a processor adds to the outgoing envelope.
type Extra struct {
	OutgoingTimestamp string
	Payload           []string
	CustomerID        string
	FarmID            string
	PhaseID           string
	RowSessionID      string
	MachineID         string
	HardwareVersion   string
	FirmwareVersion   string
	TagID             string
	RowNumber         int
	Side              string
	Direction         string
}

// Processed is the envelope published to the processed-data stream.
type Processed struct {
	Version           string      `json:"version"`
	Source            string      `json:"source"`
	Valid             bool        `json:"valid"`
	IncomingTimestamp string      `json:"incoming_timestamp"`
	OutgoingTimestamp string      `json:"outgoing_timestamp"`
	Type              string      `json:"type"`
	Filename          string      `json:"filename"`
	Payload           any         `json:"payload"`
	CustomerID        string      `json:"customer_id"`
	FarmID            string      `json:"farm_id"`
	PhaseID           string      `json:"phase_id"`
	RowSessionID      string      `json:"row_session_id"`
	MachineID         string      `json:"machine_id"`
	HardwareVersion   string      `json:"hardware_version"`
	FirmwareVersion   string      `json:"firmware_version"`
	RowLocation       RowLocation `json:"row_location"`
}

// NewProcessedEnvelope merges the message's base fields with the resolved
// context. Empty strings become Undefined; post_number is always 0 at the
// envelope level since an event spans many posts.
func NewProcessedEnvelope(msg *StreamMessage, extra Extra) *Processed {
	p := &Processed{
		Version:           Version,
		Source:            msg.Source,
		Valid:             msg.Valid,
		IncomingTimestamp: msg.IncomingTimestamp,
		OutgoingTimestamp: msg.OutgoingTimestamp,
		Type:              msg.RecordType,
		Filename:          msg.Filename,
		Payload:           Undefined,
		CustomerID:        orUndefined(extra.CustomerID),
		FarmID:            orUndefined(extra.FarmID),
		PhaseID:           orUndefined(extra.PhaseID),
		RowSessionID:      orUndefined(extra.RowSessionID),
		MachineID:         orUndefined(extra.MachineID),
		HardwareVersion:   orUndefined(extra.HardwareVersion),
		FirmwareVersion:   orUndefined(extra.FirmwareVersion),
		RowLocation: RowLocation{
			TagID:      orUndefined(extra.TagID),
			RowNumber:  extra.RowNumber,
			PostNumber: 0,
			Side:       orUndefined(extra.Side),
			Direction:  orUndefined(extra.Direction),
		},
	}
	if extra.OutgoingTimestamp != "" {
		p.OutgoingTimestamp = extra.OutgoingTimestamp
	}
	if len(extra.Payload) > 0 {
		p.Payload = extra.Payload
	}
	return p
}

// OutgoingTimestamp formats now as an envelope timestamp in UTC, without
// sub-second precision.
func OutgoingTimestamp(now time.Time) string {
	return now.UTC().Format(TimestampLayout)
}

func orUndefined(s string) string {
	if s == "" {
		return Undefined
	}
	return s
}
