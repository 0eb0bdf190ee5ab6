// Cropstream - Greenhouse Sensor Record Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cropstream

package strategies

import (
	"context"
	"fmt"

	"github.com/tomtom215/cropstream/internal/envelope"
	"github.com/tomtom215/cropstream/internal/processor"
	"github.com/tomtom215/cropstream/internal/record"
	"github.com/tomtom215/cropstream/internal/stagefile"
)

// modelAttributes are the row columns that become record fields rather than
// model metadata.
var modelAttributes = []string{
	"tag_id", "camera", "capture_local_datetime", "capture_timestamp",
	"cartesian_location", "crops", "customer_id", "distance", "farm_id",
	"machine_id", "phase_id", "row_location", "row_number", "row_session_id",
	"side", "upload_timestamp", "capture_local_date",
}

// stressAttributes adds the greenhouse side stress predictions carry.
var stressAttributes = append(append([]string{}, modelAttributes...), "greenhouse_side")

// modelKind describes how one model output type maps onto a record. Model
// rows are already enriched upstream, so the identity is read from the row
// instead of the lookups.
type modelKind struct {
	typ    string
	name   string
	schema string

	// tagPath locates the tag in the row.
	tagPath []string
	// sideKey is the column holding the greenhouse side.
	sideKey string
	// attributes are removed from the row to form the metadata.
	attributes []string

	// summary records sit at the start of the row: distance, velocity and
	// height are 0 and the cartesian location is the origin.
	summary bool
	// nullResult replaces a null result_utc_local_datetime with "".
	nullResult bool
	// noPostNumber pins post_number to 0.
	noPostNumber bool
	// farmLocal converts capture_timestamp into the farm timezone instead of
	// trusting the row's capture_local_datetime.
	farmLocal bool
}

// Model processes the output of one prediction model type.
type Model struct {
	kind modelKind
}

// NewFruitCountDetail handles per-detection fruit counts.
func NewFruitCountDetail() *Model {
	return &Model{kind: modelKind{
		typ:        TypeFruitCountDetail,
		name:       "model_fruit_count_detail_pro",
		schema:     record.SchemaFruitCountDetail,
		tagPath:    []string{"row_location", "tag_id"},
		sideKey:    "side",
		attributes: modelAttributes,
		nullResult: true,
	}}
}

// NewFruitCountSummary handles per-row fruit count totals.
func NewFruitCountSummary() *Model {
	return &Model{kind: modelKind{
		typ:        TypeFruitCountSummary,
		name:       "model_fruit_count_summary_pro",
		schema:     record.SchemaFruitCountSummary,
		tagPath:    []string{"tag_id"},
		sideKey:    "side",
		attributes: modelAttributes,
		summary:    true,
	}}
}

// NewFlowerCountDetail handles per-detection flower counts. The tag stays
// in the metadata.
func NewFlowerCountDetail() *Model {
	return &Model{kind: modelKind{
		typ:          TypeFlowerCountDetail,
		name:         "model_flower_count_detail_pro",
		schema:       record.SchemaFlowerCountDetail,
		tagPath:      []string{"row_location", "tag_id"},
		sideKey:      "side",
		attributes:   modelAttributes[1:],
		nullResult:   true,
		noPostNumber: true,
	}}
}

// NewFlowerCountSummary handles per-row flower count totals.
func NewFlowerCountSummary() *Model {
	return &Model{kind: modelKind{
		typ:          TypeFlowerCountSummary,
		name:         "model_flower_count_summary_pro",
		schema:       record.SchemaFlowerCountSummary,
		tagPath:      []string{"tag_id"},
		sideKey:      "side",
		attributes:   modelAttributes,
		summary:      true,
		nullResult:   true,
		noPostNumber: true,
	}}
}

// NewStressPredictionDetail handles per-position stress predictions.
func NewStressPredictionDetail() *Model {
	return &Model{kind: modelKind{
		typ:          TypeStressPredictDetail,
		name:         "model_stress_prediction_detail_pro",
		schema:       record.SchemaStressPredictDetail,
		tagPath:      []string{"row_location", "tag_id"},
		sideKey:      "greenhouse_side",
		attributes:   stressAttributes,
		noPostNumber: true,
		farmLocal:    true,
	}}
}

func (m *Model) Name() string    { return m.kind.name }
func (m *Model) Types() []string { return []string{m.kind.typ} }

func (m *Model) TagID(row stagefile.Row) (string, error) {
	return record.LookupString(row, m.kind.tagPath...)
}

func (m *Model) Transform(ctx context.Context, run *processor.Run, row stagefile.Row) ([]record.Canonical, error) {
	id, err := m.identity(run, row)
	if err != nil {
		return nil, err
	}
	rec, err := run.Build(ctx, id, m.source(row))
	if err != nil {
		return nil, err
	}
	return []record.Canonical{rec}, nil
}

func (m *Model) source(row stagefile.Row) record.Source {
	base := modelSource{kind: &m.kind, row: row}
	if m.kind.farmLocal {
		return base
	}
	return rowLocalSource{base}
}

// identity reads the row context written by the model pipeline.
func (m *Model) identity(run *processor.Run, row stagefile.Row) (*record.Identity, error) {
	tag, err := m.TagID(row)
	if err != nil {
		return nil, err
	}
	uploadTS, err := record.LookupInt(row, "upload_timestamp")
	if err != nil {
		return nil, err
	}
	rowNumber, err := record.LookupInt(row, "row_number")
	if err != nil {
		return nil, err
	}
	side, err := record.LookupString(row, m.kind.sideKey)
	if err != nil {
		return nil, err
	}
	crops, _ := row["crops"].([]any)

	var resolver record.Resolver = run
	if m.kind.noPostNumber {
		resolver = noPostNumber{run}
	}
	return &record.Identity{
		TagID:           tag,
		CustomerID:      record.ToString(row["customer_id"]),
		FarmID:          record.ToString(row["farm_id"]),
		PhaseID:         record.ToString(row["phase_id"]),
		RowNumber:       int(rowNumber),
		Side:            side,
		Crops:           crops,
		MachineID:       record.ToString(row["machine_id"]),
		HardwareVersion: envelope.Undefined,
		FirmwareVersion: envelope.Undefined,
		UploadTimestamp: uploadTS,
		RowSessionID:    record.ToString(row["row_session_id"]),
		RecordType:      m.kind.typ,
		Resolver:        resolver,
	}, nil
}

// noPostNumber is a resolver whose post lengths are unknown, so every
// record it builds lands on post 0.
type noPostNumber struct {
	record.Resolver
}

func (noPostNumber) PostLength(context.Context, string, string) (int, error) { return 0, nil }

type modelSource struct {
	kind *modelKind
	row  stagefile.Row
}

func (s modelSource) Schema() string { return s.kind.schema }

func (s modelSource) CaptureTimestamp() (int64, error) {
	return record.LookupInt(s.row, "capture_timestamp")
}

func (s modelSource) DistanceCM() (int, error) {
	if s.kind.summary {
		return 0, nil
	}
	d, err := record.LookupInt(s.row, "distance")
	return int(d), err
}

func (s modelSource) Velocity() (float64, error) {
	if s.kind.summary {
		return 0, nil
	}
	v, err := record.LookupInt(s.row, "row_location", "velocity")
	return float64(v), err
}

func (s modelSource) HeightCM() (int, error) {
	if s.kind.summary {
		return 0, nil
	}
	h, err := record.LookupInt(s.row, "row_location", "height_cm")
	return int(h), err
}

func (s modelSource) Direction() (string, error) {
	if s.kind.farmLocal {
		return record.LookupString(s.row, "row_location", "direction")
	}
	return record.LookupString(s.row, "camera")
}

func (s modelSource) CartesianLocation() (any, error) {
	if s.kind.summary {
		return record.Origin(), nil
	}
	v, err := record.Lookup(s.row, "cartesian_location")
	if err != nil {
		return nil, err
	}
	if _, ok := v.(map[string]any); !ok {
		return nil, fmt.Errorf("%w: cartesian_location is not an object", record.ErrMissingField)
	}
	return v, nil
}

func (s modelSource) ExtraContent() (map[string]any, error) {
	meta := record.Without(s.row, s.kind.attributes...)
	if s.kind.nullResult && meta["result_utc_local_datetime"] == nil {
		meta["result_utc_local_datetime"] = ""
	}
	return map[string]any{"model_metadata": meta}, nil
}

// rowLocalSource takes capture_local_datetime from the row as written by
// the model pipeline.
type rowLocalSource struct {
	modelSource
}

func (s rowLocalSource) CaptureLocalDatetime(context.Context) (string, error) {
	return record.LookupString(s.row, "capture_local_datetime")
}
