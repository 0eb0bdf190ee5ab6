// Cropstream - Greenhouse Sensor Record Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cropstream

package strategies

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/tomtom215/cropstream/internal/processor"
	"github.com/tomtom215/cropstream/internal/record"
	"github.com/tomtom215/cropstream/internal/stagefile"
)

// LabelSegmentCM is the longest stretch of row one label record covers.
const LabelSegmentCM = 50

// ErrZeroDuration rejects a label whose start and end times are equal; its
// velocity is undefined.
var ErrZeroDuration = errors.New("label has zero duration")

// Label splits each labelled stretch of row into LabelSegmentCM segments and
// emits one record per segment.
type Label struct{}

func NewLabel() *Label { return &Label{} }

func (*Label) Name() string    { return "label_pro" }
func (*Label) Types() []string { return []string{TypeLabel} }

func (*Label) TagID(row stagefile.Row) (string, error) {
	return record.LookupString(row, "tagId")
}

// LabelSegments is the number of records a label from start to end yields.
func LabelSegments(startCM, endCM int64) int {
	distance := startCM - endCM
	if distance < 0 {
		distance = -distance
	}
	if distance <= LabelSegmentCM {
		return 1
	}
	return int(math.Ceil(float64(distance) / LabelSegmentCM))
}

// SegmentDistance is the distance of segment idx, measured from the nearer
// end of the label and clamped to the farther one.
func SegmentDistance(idx int, startCM, endCM int64) int64 {
	lo, hi := startCM, endCM
	if hi < lo {
		lo, hi = hi, lo
	}
	return min(lo+int64(LabelSegmentCM*idx), hi)
}

func (l *Label) Transform(ctx context.Context, run *processor.Run, row stagefile.Row) ([]record.Canonical, error) {
	tag, err := l.TagID(row)
	if err != nil {
		return nil, err
	}
	start, err := record.LookupInt(row, "startDistance")
	if err != nil {
		return nil, err
	}
	end, err := record.LookupInt(row, "endDistance")
	if err != nil {
		return nil, err
	}
	id, err := run.Identity(ctx, tag)
	if err != nil {
		return nil, err
	}
	id.RowSessionID = processor.RowSessionID(row)

	meta := record.Without(row, "seq", "tagId")
	label := record.ToString(row["label"])
	meta["category"] = run.LabelCategory(ctx, label)
	meta["source"] = "machine"

	n := LabelSegments(start, end)
	out := make([]record.Canonical, 0, n)
	for idx := range n {
		rec, err := run.Build(ctx, id, labelSource{
			row:      row,
			distance: SegmentDistance(idx, start, end),
			span:     start - end,
			meta:     meta,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

type labelSource struct {
	row      stagefile.Row
	distance int64
	span     int64
	meta     map[string]any
}

func (labelSource) Schema() string { return record.SchemaLabel }

func (s labelSource) CaptureTimestamp() (int64, error) {
	return record.LookupInt(s.row, "startTime")
}

func (s labelSource) DistanceCM() (int, error) { return int(s.distance), nil }

func (labelSource) HeightCM() (int, error) { return 0, nil }

// Velocity is the label length over its duration.
func (s labelSource) Velocity() (float64, error) {
	startTime, err := record.LookupFloat(s.row, "startTime")
	if err != nil {
		return 0, err
	}
	endTime, err := record.LookupFloat(s.row, "endTime")
	if err != nil {
		return 0, err
	}
	elapsed := math.Abs(endTime - startTime)
	if elapsed == 0 {
		return 0, fmt.Errorf("%w: startTime and endTime are both %v", ErrZeroDuration, startTime)
	}
	return math.Abs(float64(s.span)) / elapsed, nil
}

func (s labelSource) Direction() (string, error) {
	return record.LookupString(s.row, "side")
}

func (s labelSource) ExtraContent() (map[string]any, error) {
	return map[string]any{"label_meta": s.meta}, nil
}
