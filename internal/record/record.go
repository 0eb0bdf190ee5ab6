// Cropstream - Greenhouse Sensor Record Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cropstream

package record

import (
	"context"
	"fmt"
	"time"
)

// Version is written as "version" on every canonical record.
const Version = "1.0"

// Undefined marks an identity field that could not be resolved.
const Undefined = "<undefined>"

// LocalDatetimeLayout is the layout of capture_local_datetime.
const LocalDatetimeLayout = "2006-01-02 15:04:05"

// Canonical is one data lake record. It is a plain map so the stage writer
// and the schema validator see exactly what is published.
type Canonical = map[string]any

// Source is the per-row half of a canonical record: the values only the
// record type knows how to read from its input row.
type Source interface {
	CaptureTimestamp() (int64, error)
	DistanceCM() (int, error)
	Velocity() (float64, error)
	HeightCM() (int, error)
	Direction() (string, error)
	ExtraContent() (map[string]any, error)

	// Schema names the embedded JSON schema the record is validated against.
	Schema() string
}

// RecordTyper overrides the record_type taken from the identity.
type RecordTyper interface {
	RecordType() (string, error)
}

// LocalDatetimer supplies capture_local_datetime directly instead of
// converting capture_timestamp into the farm timezone.
type LocalDatetimer interface {
	CaptureLocalDatetime(ctx context.Context) (string, error)
}

// RowSessioner overrides the row session id taken from the identity.
type RowSessioner interface {
	RowSessionID() (string, error)
}

// Cartesianer supplies cartesian_location directly instead of asking the
// phase layout.
type Cartesianer interface {
	CartesianLocation() (any, error)
}

// Resolver answers the layout questions a record cannot answer from its row.
type Resolver interface {
	// FarmLocalDatetime formats a unix capture time in the farm timezone.
	FarmLocalDatetime(ctx context.Context, farmID string, captureUnix int64) (string, error)

	// PostLength returns the post length of side in phase, 0 when unknown.
	PostLength(ctx context.Context, phaseID, side string) (int, error)

	// CartesianLocation maps a row position to phase coordinates.
	CartesianLocation(ctx context.Context, phaseID string, rowNumber int, side string, distanceCM, heightCM int) (map[string]any, error)
}

// Identity is the context the owning processor resolved for the row: who
// the reading belongs to and where the row sits.
type Identity struct {
	TagID           string
	CustomerID      string
	FarmID          string
	PhaseID         string
	RowNumber       int
	Side            string
	Crops           []any
	MachineID       string
	HardwareVersion string
	FirmwareVersion string
	UploadTimestamp int64
	RowSessionID    string
	RecordType      string

	// Resolver may be nil, in which case datetimes stay UTC, post numbers
	// are 0 and cartesian locations are the origin.
	Resolver Resolver
}

func resolved(id string) bool {
	return id != "" && id != Undefined
}

// Build merges the identity with the row values of src and validates the
// result against src's schema.
func Build(ctx context.Context, id *Identity, src Source, v *Validator) (Canonical, error) {
	b := builder{ctx: ctx, id: id, src: src}
	rec, err := b.build()
	if err != nil {
		return nil, err
	}
	if err := v.Validate(src.Schema(), rec); err != nil {
		return nil, err
	}
	return rec, nil
}

type builder struct {
	ctx context.Context
	id  *Identity
	src Source
}

func (b *builder) build() (Canonical, error) {
	captureTS, err := b.src.CaptureTimestamp()
	if err != nil {
		return nil, fmt.Errorf("capture_timestamp: %w", err)
	}
	localDatetime, err := b.localDatetime(captureTS)
	if err != nil {
		return nil, fmt.Errorf("capture_local_datetime: %w", err)
	}
	distance, err := b.src.DistanceCM()
	if err != nil {
		return nil, fmt.Errorf("distance_cm: %w", err)
	}
	height, err := b.src.HeightCM()
	if err != nil {
		return nil, fmt.Errorf("height_cm: %w", err)
	}
	velocity, err := b.src.Velocity()
	if err != nil {
		return nil, fmt.Errorf("velocity: %w", err)
	}
	direction, err := b.src.Direction()
	if err != nil {
		return nil, fmt.Errorf("direction: %w", err)
	}
	postNumber, err := b.postNumber(distance)
	if err != nil {
		return nil, fmt.Errorf("post_number: %w", err)
	}
	cartesian, err := b.cartesian(distance, height)
	if err != nil {
		return nil, fmt.Errorf("cartesian_location: %w", err)
	}
	recordType, err := b.recordType()
	if err != nil {
		return nil, fmt.Errorf("record_type: %w", err)
	}
	rsid, err := b.rowSessionID()
	if err != nil {
		return nil, fmt.Errorf("row_session_id: %w", err)
	}

	crops := b.id.Crops
	if crops == nil {
		crops = []any{}
	}

	localDate := localDatetime
	if len(localDate) > 10 {
		localDate = localDate[:10]
	}

	rec := Canonical{
		"customer_id":            b.id.CustomerID,
		"farm_id":                b.id.FarmID,
		"phase_id":               b.id.PhaseID,
		"capture_timestamp":      captureTS,
		"capture_local_datetime": localDatetime,
		"upload_timestamp":       b.id.UploadTimestamp,
		"row_session_id":         rsid,
		"record_type":            recordType,
		"row_location": map[string]any{
			"tag_id":      b.id.TagID,
			"row_number":  b.id.RowNumber,
			"distance_cm": distance,
			"height_cm":   height,
			"post_number": postNumber,
			"side":        b.id.Side,
			"direction":   direction,
			"velocity":    velocity,
		},
		"cartesian_location": cartesian,
		"crops":              crops,
		"machine_id":         b.id.MachineID,
		"hardware_version":   b.id.HardwareVersion,
		"firmware_version":   b.id.FirmwareVersion,
		"version":            Version,
		"capture_local_date": localDate,
	}

	extra, err := b.src.ExtraContent()
	if err != nil {
		return nil, fmt.Errorf("extra content: %w", err)
	}
	for k, v := range extra {
		rec[k] = v
	}
	return rec, nil
}

func (b *builder) localDatetime(captureTS int64) (string, error) {
	if ld, ok := b.src.(LocalDatetimer); ok {
		return ld.CaptureLocalDatetime(b.ctx)
	}
	if !resolved(b.id.FarmID) || b.id.Resolver == nil {
		return time.Unix(captureTS, 0).UTC().Format(LocalDatetimeLayout), nil
	}
	return b.id.Resolver.FarmLocalDatetime(b.ctx, b.id.FarmID, captureTS)
}

func (b *builder) postNumber(distance int) (int, error) {
	if !resolved(b.id.PhaseID) || b.id.Resolver == nil {
		return 0, nil
	}
	postLength, err := b.id.Resolver.PostLength(b.ctx, b.id.PhaseID, b.id.Side)
	if err != nil {
		return 0, err
	}
	return PostNumber(distance, postLength), nil
}

// PostNumber is the 1-based post a distance falls on; 0 when the post length
// is unknown.
func PostNumber(distanceCM, postLength int) int {
	if postLength <= 0 {
		return 0
	}
	q := distanceCM / postLength
	if distanceCM%postLength != 0 && distanceCM < 0 {
		q-- // floor division
	}
	return q + 1
}

func (b *builder) cartesian(distance, height int) (any, error) {
	if c, ok := b.src.(Cartesianer); ok {
		return c.CartesianLocation()
	}
	if !resolved(b.id.PhaseID) || b.id.Resolver == nil {
		return Origin(), nil
	}
	return b.id.Resolver.CartesianLocation(b.ctx, b.id.PhaseID, b.id.RowNumber, b.id.Side, distance, height)
}

// Origin is the cartesian location used when a record has no position.
func Origin() map[string]any {
	return map[string]any{"x": 0, "y": 0, "z": 0}
}

func (b *builder) recordType() (string, error) {
	if rt, ok := b.src.(RecordTyper); ok {
		return rt.RecordType()
	}
	return b.id.RecordType, nil
}

func (b *builder) rowSessionID() (string, error) {
	if rs, ok := b.src.(RowSessioner); ok {
		return rs.RowSessionID()
	}
	return b.id.RowSessionID, nil
}
