// Cropstream - Greenhouse Sensor Record Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cropstream

package strategies

import (
	"context"

	"github.com/tomtom215/cropstream/internal/processor"
	"github.com/tomtom215/cropstream/internal/record"
	"github.com/tomtom215/cropstream/internal/stagefile"
)

// LabelRecordType is what stress prediction summaries are published as.
const LabelRecordType = "label"

// StressPredictionSummary republishes per-position stress summaries as
// single point labels so they show up next to the labels set by hand.
type StressPredictionSummary struct {
	Model
}

func NewStressPredictionSummary() *StressPredictionSummary {
	m := NewStressPredictionDetail()
	m.kind.typ = TypeStressPredictSummary
	m.kind.name = "model_stress_prediction_summary_pro"
	m.kind.schema = record.SchemaLabel
	m.kind.sideKey = "side"
	return &StressPredictionSummary{Model: *m}
}

// OutgoingType implements processor.OutgoingTyper.
func (*StressPredictionSummary) OutgoingType() string { return LabelRecordType }

func (s *StressPredictionSummary) Transform(ctx context.Context, run *processor.Run, row stagefile.Row) ([]record.Canonical, error) {
	id, err := s.identity(run, row)
	if err != nil {
		return nil, err
	}
	id.RecordType = LabelRecordType
	src := stressLabelSource{
		modelSource: modelSource{kind: &s.kind, row: row},
		ctx:         ctx,
		run:         run,
		id:          id,
	}
	rec, err := run.Build(ctx, id, src)
	if err != nil {
		return nil, err
	}
	return []record.Canonical{rec}, nil
}

type stressLabelSource struct {
	modelSource
	ctx context.Context
	run *processor.Run
	id  *record.Identity
}

func (s stressLabelSource) DistanceCM() (int, error) {
	d, err := record.LookupInt(s.row, "row_location", "distance_cm")
	return int(d), err
}

func (s stressLabelSource) Direction() (string, error) {
	return record.LookupString(s.row, "row_side")
}

func (s stressLabelSource) ExtraContent() (map[string]any, error) {
	distance, err := s.DistanceCM()
	if err != nil {
		return nil, err
	}
	captureTS, err := s.CaptureTimestamp()
	if err != nil {
		return nil, err
	}
	local, err := s.run.FarmLocalDatetime(s.ctx, s.id.FarmID, captureTS)
	if err != nil {
		return nil, err
	}
	meta := record.Without(s.row, s.kind.attributes...)
	meta["startDistance"] = distance
	meta["endDistance"] = distance
	meta["rsid"] = s.id.RowSessionID
	meta["startTime"] = local
	meta["endTime"] = local
	meta["category"] = s.run.LabelCategory(s.ctx, record.ToString(s.row["label"]))
	return map[string]any{"label_meta": meta}, nil
}
