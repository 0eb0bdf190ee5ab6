// Cropstream - Greenhouse Sensor Record Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cropstream

package strategies

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/tomtom215/cropstream/internal/envelope"
	"github.com/tomtom215/cropstream/internal/processor"
	"github.com/tomtom215/cropstream/internal/record"
	"github.com/tomtom215/cropstream/internal/stagefile"
)

// SamplingTimeLayout is the layout of the samplingTime utc row of a wave file.
const SamplingTimeLayout = "2006-01-02-150405"

var errNoDirection = errors.New("'direction' is not defined. id='device-id' was not found in the wave file")

// waveFile is the state shared by every row of one spectrometer file. The
// header rows (location, samplingTime, device-id, cfg) describe the file;
// only wave-info and wave rows become records.
type waveFile struct {
	path         string
	tagID        string
	rowSessionID string
	captureTS    any
	utcSampling  string
	distance     any
	height       any
	direction    string
	recipe       map[string]any
}

// Wave turns a spectrometer file into one record per wave-info or wave row.
// A bad row fails the whole file.
type Wave struct {
	file waveFile
}

func NewWave() *Wave { return &Wave{} }

func (*Wave) Name() string    { return "wave_pro" }
func (*Wave) Types() []string { return []string{TypeWave} }

// TagID is the tag of the file's location row, whatever row is asked.
func (w *Wave) TagID(stagefile.Row) (string, error) {
	if w.file.tagID == "" {
		return "", fmt.Errorf("%w: no location row with a tagid", record.ErrMissingField)
	}
	return w.file.tagID, nil
}

// EventDirection implements processor.EventDirectioner.
func (w *Wave) EventDirection(*processor.Run) string {
	if w.file.direction == "" {
		return envelope.Undefined
	}
	return w.file.direction
}

// RowError implements processor.RowErrorHandler.
func (*Wave) RowError(_ stagefile.Row, err error) error {
	return err
}

// WaveFilePath is the wave file name a staged path embeds between its
// first two "__" separators, or the base name when there is none.
func WaveFilePath(stagedPath string) string {
	parts := strings.Split(stagedPath, "__")
	if len(parts) < 2 {
		return path.Base(stagedPath)
	}
	return parts[1]
}

// PrepareFile implements processor.FileProcessor.
func (w *Wave) PrepareFile(_ context.Context, run *processor.Run, rows []stagefile.Row) error {
	w.file = waveFile{path: WaveFilePath(run.StagedPath), rowSessionID: envelope.Undefined}
	for _, row := range rows {
		if w.file.tagID == "" && waveID(row) == "location" {
			w.file.tagID = record.ToString(row["tagid"])
		}
	}
	for _, row := range rows {
		switch waveID(row) {
		case "location":
			if rsid := record.ToString(row["rsid"]); rsid != "" {
				w.file.rowSessionID = rsid
			}
			w.file.distance = row["distance"]
			w.file.height = row["height"]
		case "samplingTime":
			switch record.ToString(row["param"]) {
			case "unix":
				w.file.captureTS = row["value"]
			case "utc":
				w.file.utcSampling = record.ToString(row["value"])
			}
		case "device-id":
			w.file.direction = sideFromCamera(record.ToString(row["instance"]))
		case "cfg":
			w.file.recipe = record.Without(row)
		}
	}
	return nil
}

func waveID(row stagefile.Row) string {
	return record.ToString(row["id"])
}

func (w *Wave) Transform(ctx context.Context, run *processor.Run, row stagefile.Row) ([]record.Canonical, error) {
	kind := waveID(row)
	if kind != "wave-info" && kind != "wave" {
		return nil, nil
	}
	tag, err := w.TagID(row)
	if err != nil {
		return nil, err
	}
	id, err := run.Identity(ctx, tag)
	if err != nil {
		return nil, err
	}
	id.RowSessionID = w.file.rowSessionID
	rec, err := run.Build(ctx, id, &waveSource{
		file:      &w.file,
		row:       row,
		kind:      kind,
		eventType: run.Message.RecordType,
		farmID:    id.FarmID,
		run:       run,
	})
	if err != nil {
		return nil, err
	}
	return []record.Canonical{rec}, nil
}

type waveSource struct {
	file      *waveFile
	row       stagefile.Row
	kind      string
	eventType string
	farmID    string
	run       *processor.Run
}

func (*waveSource) Schema() string { return record.SchemaWave }

func (s *waveSource) CaptureTimestamp() (int64, error) {
	if s.file.captureTS == nil {
		return 0, fmt.Errorf("%w: samplingTime unix", record.ErrMissingField)
	}
	return record.ToInt(s.file.captureTS)
}

// CaptureLocalDatetime converts the utc sampling time when the file has one.
func (s *waveSource) CaptureLocalDatetime(ctx context.Context) (string, error) {
	if s.file.utcSampling != "" {
		return s.run.ConvertToFarmTimezone(ctx, s.farmID, s.file.utcSampling, SamplingTimeLayout)
	}
	ts, err := s.CaptureTimestamp()
	if err != nil {
		return "", err
	}
	return s.run.FarmLocalDatetime(ctx, s.farmID, ts)
}

func (s *waveSource) DistanceCM() (int, error) {
	d, err := record.ToInt(s.file.distance)
	return int(d), err
}

func (s *waveSource) HeightCM() (int, error) {
	h, err := record.ToInt(s.file.height)
	return int(h), err
}

func (*waveSource) Velocity() (float64, error) { return 0, nil }

func (s *waveSource) Direction() (string, error) {
	if s.file.direction == "" {
		return "", errNoDirection
	}
	return s.file.direction, nil
}

func (s *waveSource) RecordType() (string, error) {
	return s.eventType + "/" + s.kind, nil
}

func (s *waveSource) ExtraContent() (map[string]any, error) {
	dataKey := "value"
	if s.kind == "wave-info" {
		dataKey = "wavelength"
	}
	recipe := s.file.recipe
	if recipe == nil {
		recipe = map[string]any{}
	}
	return map[string]any{
		"wave_file_path": s.file.path,
		"sensor_recipe":  recipe,
		"sensor_meta":    record.Without(s.row, dataKey),
		"sensor_data":    s.row[dataKey],
	}, nil
}
