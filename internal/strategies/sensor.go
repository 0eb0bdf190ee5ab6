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

// locationRow reads the values every sensor row carries under "location".
type locationRow struct {
	row stagefile.Row
}

func (l locationRow) CaptureTimestamp() (int64, error) { return record.LookupInt(l.row, "time") }

func (l locationRow) DistanceCM() (int, error) { return lookupCM(l.row, "location", "distance") }

func (l locationRow) HeightCM() (int, error) { return lookupCM(l.row, "location", "height") }

func (l locationRow) Velocity() (float64, error) {
	return record.LookupFloat(l.row, "location", "velocity")
}

func lookupCM(row stagefile.Row, keys ...string) (int, error) {
	n, err := record.LookupInt(row, keys...)
	return int(n), err
}

// locationTag is the tag of rows carrying location.tagid.
func locationTag(row stagefile.Row) (string, error) {
	return record.LookupString(row, "location", "tagid")
}

// buildOne resolves the identity of tag and builds a single record.
func buildOne(ctx context.Context, run *processor.Run, tag string, row stagefile.Row, src record.Source) ([]record.Canonical, error) {
	id, err := run.Identity(ctx, tag)
	if err != nil {
		return nil, err
	}
	id.RowSessionID = processor.RowSessionID(row)
	rec, err := run.Build(ctx, id, src)
	if err != nil {
		return nil, err
	}
	return []record.Canonical{rec}, nil
}

// Aux turns auxiliary sensor box rows into one record each.
type Aux struct{}

func NewAux() *Aux { return &Aux{} }

func (*Aux) Name() string                            { return "aux_pro" }
func (*Aux) Types() []string                         { return []string{TypeAux} }
func (*Aux) TagID(row stagefile.Row) (string, error) { return locationTag(row) }

func (a *Aux) Transform(ctx context.Context, run *processor.Run, row stagefile.Row) ([]record.Canonical, error) {
	tag, err := a.TagID(row)
	if err != nil {
		return nil, err
	}
	return buildOne(ctx, run, tag, row, auxSource{locationRow{row}, run.Message.RecordType})
}

type auxSource struct {
	locationRow
	eventType string
}

func (auxSource) Schema() string             { return record.SchemaAux }
func (auxSource) Direction() (string, error) { return envelope.Undefined, nil }

func (s auxSource) RecordType() (string, error) {
	ns, err := record.LookupString(s.row, "namespace")
	if err != nil {
		return "", err
	}
	return s.eventType + ns, nil
}

func (s auxSource) ExtraContent() (map[string]any, error) {
	// the column named by "id" holds the reading and stays out of the meta
	meta := record.Without(s.row, "location", "time", record.ToString(s.row["id"]))
	data := record.Without(s.row, "location", "time", "id", "namespace", "node", "seg")
	return map[string]any{
		"sensor_meta": meta,
		"sensor_data": data,
	}, nil
}

// Image turns image index rows into one record each. The camera index in
// the file name doubles as the direction.
type Image struct{}

func NewImage() *Image { return &Image{} }

func (*Image) Name() string                            { return "image_pro" }
func (*Image) Types() []string                         { return []string{TypeImage} }
func (*Image) TagID(row stagefile.Row) (string, error) { return locationTag(row) }

// EventDirection implements processor.EventDirectioner.
func (*Image) EventDirection(run *processor.Run) string {
	return sideFromCamera(run.Info.ExtraInfo)
}

func (i *Image) Transform(ctx context.Context, run *processor.Run, row stagefile.Row) ([]record.Canonical, error) {
	tag, err := i.TagID(row)
	if err != nil {
		return nil, err
	}
	return buildOne(ctx, run, tag, row, imageSource{locationRow{row}, run.Info.ExtraInfo})
}

type imageSource struct {
	locationRow
	camera string
}

func (imageSource) Schema() string { return record.SchemaImage }

func (s imageSource) Direction() (string, error) { return sideFromCamera(s.camera), nil }

func (s imageSource) ExtraContent() (map[string]any, error) {
	path, err := record.LookupString(s.row, "image_file_path")
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"image_file_path": path,
		"camera":          s.camera,
		"camera_metadata": map[string]any{},
	}, nil
}

// Video emits one record per frame of a video index row.
type Video struct{}

func NewVideo() *Video { return &Video{} }

func (*Video) Name() string                            { return "video_pro" }
func (*Video) Types() []string                         { return []string{TypeVideo} }
func (*Video) TagID(row stagefile.Row) (string, error) { return locationTag(row) }

// EventDirection implements processor.EventDirectioner.
func (*Video) EventDirection(run *processor.Run) string {
	return run.Info.ExtraInfo
}

func (v *Video) Transform(ctx context.Context, run *processor.Run, row stagefile.Row) ([]record.Canonical, error) {
	tag, err := v.TagID(row)
	if err != nil {
		return nil, err
	}
	frames, ok := row["frames"].([]any)
	if !ok {
		return nil, fmt.Errorf("%w: frames is not a list", record.ErrMissingField)
	}
	id, err := run.Identity(ctx, tag)
	if err != nil {
		return nil, err
	}
	id.RowSessionID = processor.RowSessionID(row)

	out := make([]record.Canonical, 0, len(frames))
	for _, f := range frames {
		frame, ok := f.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("invalid distance: frame %v is not an object", f)
		}
		rec, err := run.Build(ctx, id, videoSource{locationRow{row}, frame, run.Info.ExtraInfo})
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

type videoSource struct {
	locationRow
	frame  map[string]any
	camera string
}

func (videoSource) Schema() string { return record.SchemaVideo }

func (s videoSource) Direction() (string, error) { return s.camera, nil }

func (s videoSource) DistanceCM() (int, error) {
	d, err := record.LookupInt(s.frame, "distance")
	if err != nil {
		return 0, fmt.Errorf("invalid distance: %w", err)
	}
	return int(d), nil
}

func (s videoSource) ExtraContent() (map[string]any, error) {
	path, err := record.LookupString(s.row, "video_file_path")
	if err != nil {
		return nil, err
	}
	frameNum, err := record.LookupInt(s.frame, "frame_num")
	if err != nil {
		return nil, err
	}
	distance, err := s.DistanceCM()
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"video_file_path": path,
		"video_frame":     frameNum,
		"camera":          s.camera,
		"camera_metadata": map[string]any{
			"distance": distance,
			"id":       s.row["id"],
		},
	}, nil
}
