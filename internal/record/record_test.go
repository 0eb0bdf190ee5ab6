// Cropstream - Greenhouse Sensor Record Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cropstream

package record

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/tomtom215/cropstream/internal/stagefile"
)

type fakeSource struct {
	ts        int64
	distance  int
	height    int
	velocity  float64
	direction string
	extra     map[string]any
	schema    string
	err       error
}

func (f *fakeSource) CaptureTimestamp() (int64, error) { return f.ts, f.err }
func (f *fakeSource) DistanceCM() (int, error)         { return f.distance, nil }
func (f *fakeSource) Velocity() (float64, error)       { return f.velocity, nil }
func (f *fakeSource) HeightCM() (int, error)           { return f.height, nil }
func (f *fakeSource) Direction() (string, error)       { return f.direction, nil }
func (f *fakeSource) ExtraContent() (map[string]any, error) {
	return f.extra, nil
}
func (f *fakeSource) Schema() string { return f.schema }

type summarySource struct{ fakeSource }

func (s *summarySource) CartesianLocation() (any, error) { return Origin(), nil }
func (s *summarySource) RecordType() (string, error)     { return "label", nil }

type fakeResolver struct {
	postLength int
	calls      int
}

func (r *fakeResolver) FarmLocalDatetime(_ context.Context, _ string, unix int64) (string, error) {
	return "local-" + ToString(float64(unix)), nil
}

func (r *fakeResolver) PostLength(context.Context, string, string) (int, error) {
	return r.postLength, nil
}

func (r *fakeResolver) CartesianLocation(_ context.Context, _ string, row int, _ string, d, h int) (map[string]any, error) {
	r.calls++
	return map[string]any{"x": d, "y": (row - 1) * 100, "z": h}, nil
}

func testIdentity(res Resolver) *Identity {
	return &Identity{
		TagID:           "0548207774491915",
		CustomerID:      "cust",
		FarmID:          "farm",
		PhaseID:         "phase",
		RowNumber:       3,
		Side:            "left",
		Crops:           []any{map[string]any{"side": "left", "crop": "tomato"}},
		MachineID:       "m1",
		HardwareVersion: "0.1",
		FirmwareVersion: "0.1",
		UploadTimestamp: 1556207132,
		RowSessionID:    "rsid-1",
		RecordType:      "image",
		Resolver:        res,
	}
}

func imageSource() *fakeSource {
	return &fakeSource{
		ts:        1556207100,
		distance:  950,
		height:    40,
		velocity:  12.5,
		direction: "left",
		schema:    SchemaImage,
		extra: map[string]any{
			"image_file_path": "s3://bucket/img.jpg",
			"camera":          "0",
			"camera_metadata": map[string]any{},
		},
	}
}

func TestBuild(t *testing.T) {
	t.Parallel()
	v, err := DefaultValidator()
	if err != nil {
		t.Fatalf("DefaultValidator() error: %v", err)
	}
	res := &fakeResolver{postLength: 400}

	rec, err := Build(context.Background(), testIdentity(res), imageSource(), v)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	if rec["capture_local_datetime"] != "local-1556207100" {
		t.Errorf("capture_local_datetime = %v", rec["capture_local_datetime"])
	}
	if rec["capture_local_date"] != "local-1556" {
		t.Errorf("capture_local_date = %v", rec["capture_local_date"])
	}
	loc := rec["row_location"].(map[string]any)
	if loc["post_number"] != 3 {
		t.Errorf("post_number = %v, want 3", loc["post_number"])
	}
	if loc["tag_id"] != "0548207774491915" || loc["row_number"] != 3 {
		t.Errorf("row_location = %v", loc)
	}
	cart := rec["cartesian_location"].(map[string]any)
	if cart["x"] != 950 || cart["y"] != 200 || cart["z"] != 40 {
		t.Errorf("cartesian_location = %v", cart)
	}
	if rec["image_file_path"] != "s3://bucket/img.jpg" {
		t.Errorf("extra content not merged: %v", rec)
	}
	if rec["version"] != Version || rec["record_type"] != "image" {
		t.Errorf("version/type = %v/%v", rec["version"], rec["record_type"])
	}
}

func TestBuild_StageRoundTrip(t *testing.T) {
	t.Parallel()
	v, err := DefaultValidator()
	if err != nil {
		t.Fatal(err)
	}
	rec, err := Build(context.Background(), testIdentity(&fakeResolver{postLength: 400}), imageSource(), v)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	var buf bytes.Buffer
	w := stagefile.NewWriter(&buf)
	if err := w.Write(rec); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	if _, err := w.Close(); err != nil {
		t.Fatal(err)
	}
	r, err := stagefile.NewReader(&buf)
	if err != nil {
		t.Fatalf("NewReader() error: %v", err)
	}
	got, err := r.Next()
	if err != nil {
		t.Fatalf("Next() error: %v", err)
	}

	want, err := stagefile.NormalizeRow(rec)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("record changed across the stage file:\ngot  %#v\nwant %#v", got, want)
	}
	if loc, _ := got["row_location"].(map[string]any); loc["row_number"] != float64(3) || loc["post_number"] != float64(3) {
		t.Errorf("row_location = %v", got["row_location"])
	}
}

func TestBuild_UndefinedIdentity(t *testing.T) {
	t.Parallel()
	v, _ := DefaultValidator()
	res := &fakeResolver{postLength: 400}
	id := testIdentity(res)
	id.FarmID = Undefined
	id.PhaseID = Undefined
	id.Crops = nil

	rec, err := Build(context.Background(), id, imageSource(), v)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if rec["capture_local_datetime"] != "2019-04-25 15:45:00" {
		t.Errorf("capture_local_datetime = %v, want UTC", rec["capture_local_datetime"])
	}
	if loc := rec["row_location"].(map[string]any); loc["post_number"] != 0 {
		t.Errorf("post_number = %v, want 0", loc["post_number"])
	}
	if res.calls != 0 {
		t.Errorf("cartesian resolver called %d times for undefined phase", res.calls)
	}
	if crops, ok := rec["crops"].([]any); !ok || len(crops) != 0 {
		t.Errorf("crops = %#v, want empty list", rec["crops"])
	}
}

func TestBuild_Overrides(t *testing.T) {
	t.Parallel()
	v, _ := DefaultValidator()
	res := &fakeResolver{postLength: 400}

	src := &summarySource{fakeSource: fakeSource{
		ts:     1556207100,
		schema: SchemaLabel,
		extra:  map[string]any{"label_meta": map[string]any{"label": "thrips"}},
	}}
	rec, err := Build(context.Background(), testIdentity(res), src, v)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if rec["record_type"] != "label" {
		t.Errorf("record_type = %v", rec["record_type"])
	}
	if res.calls != 0 {
		t.Error("Cartesianer must replace the resolver")
	}
}

func TestBuild_SchemaFailure(t *testing.T) {
	t.Parallel()
	v, _ := DefaultValidator()

	src := imageSource()
	delete(src.extra, "image_file_path")
	_, err := Build(context.Background(), testIdentity(nil), src, v)
	if !errors.Is(err, ErrSchemaValidation) {
		t.Fatalf("Build() error = %v, want ErrSchemaValidation", err)
	}
	var se *SchemaError
	if !errors.As(err, &se) || se.Schema != SchemaImage || len(se.Problems) == 0 {
		t.Errorf("SchemaError = %+v", se)
	}

	src = imageSource()
	src.err = ErrNotNumeric
	if _, err := Build(context.Background(), testIdentity(nil), src, v); !errors.Is(err, ErrNotNumeric) {
		t.Errorf("source error not propagated: %v", err)
	}

	src = imageSource()
	src.schema = "nope"
	if _, err := Build(context.Background(), testIdentity(nil), src, v); !errors.Is(err, ErrUnknownSchema) {
		t.Errorf("unknown schema error = %v", err)
	}
}

func TestValidator_Names(t *testing.T) {
	t.Parallel()
	v, err := NewValidator()
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{
		SchemaAux, SchemaImage, SchemaVideo, SchemaLabel, SchemaWave,
		SchemaFruitCountDetail, SchemaFruitCountSummary,
		SchemaFlowerCountDetail, SchemaFlowerCountSummary, SchemaStressPredictDetail,
	} {
		if !v.Has(name) {
			t.Errorf("schema %s missing", name)
		}
	}
	if len(v.Names()) != 10 {
		t.Errorf("Names() = %v", v.Names())
	}
}

func TestSchemaFiles_MatchEmbedded(t *testing.T) {
	t.Parallel()
	entries, err := schemaFS.ReadDir("schemas")
	if err != nil {
		t.Fatal(err)
	}
	mapped := make(map[string]string, len(schemaFiles))
	for name, file := range schemaFiles {
		mapped[file] = name
	}
	for _, e := range entries {
		if _, ok := mapped[e.Name()]; !ok {
			t.Errorf("embedded file %s has no schema name", e.Name())
		}
		base := strings.ToLower(strings.TrimSuffix(e.Name(), ".json"))
		switch base {
		case "aux", "con", "prn", "nul":
			t.Errorf("embedded file %s uses a reserved device name", e.Name())
		}
	}
	if len(entries) != len(schemaFiles) {
		t.Errorf("embedded %d files, mapped %d", len(entries), len(schemaFiles))
	}
	if schemaFiles[SchemaAux] != "aux_sensor.json" {
		t.Errorf("aux schema file = %q", schemaFiles[SchemaAux])
	}
}

func TestPostNumber(t *testing.T) {
	t.Parallel()
	tests := []struct {
		distance, length, want int
	}{
		{0, 400, 1},
		{399, 400, 1},
		{400, 400, 2},
		{950, 400, 3},
		{950, 0, 0},
		{-1, 400, 0},
	}
	for _, tt := range tests {
		if got := PostNumber(tt.distance, tt.length); got != tt.want {
			t.Errorf("PostNumber(%d, %d) = %d, want %d", tt.distance, tt.length, got, tt.want)
		}
	}
}

func TestConversions(t *testing.T) {
	t.Parallel()

	ints := []struct {
		in      any
		want    int64
		wantErr bool
	}{
		{12.9, 12, false},
		{"12.9", 12, false},
		{" 7 ", 7, false},
		{-3.5, -3, false},
		{int(4), 4, false},
		{"abc", 0, true},
		{nil, 0, true},
		{true, 0, true},
	}
	for _, tt := range ints {
		got, err := ToInt(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ToInt(%#v) = %d, %v", tt.in, got, err)
		}
	}

	if s := ToString(1556207100.0); s != "1556207100" {
		t.Errorf("ToString(float) = %q", s)
	}
	if s := ToString(true); s != "True" {
		t.Errorf("ToString(true) = %q", s)
	}

	row := map[string]any{"location": map[string]any{"tagid": "T1", "distance": 12.0}}
	if v, err := LookupString(row, "location", "tagid"); err != nil || v != "T1" {
		t.Errorf("LookupString = %q, %v", v, err)
	}
	if n, err := LookupInt(row, "location", "distance"); err != nil || n != 12 {
		t.Errorf("LookupInt = %d, %v", n, err)
	}
	if _, err := Lookup(row, "location", "missing"); !errors.Is(err, ErrMissingField) {
		t.Errorf("Lookup(missing) error = %v", err)
	}
	if _, err := Lookup(row, "location", "tagid", "deeper"); !errors.Is(err, ErrMissingField) {
		t.Errorf("Lookup(through string) error = %v", err)
	}

	meta := Without(row, "location")
	if len(meta) != 0 || len(row) != 1 {
		t.Errorf("Without modified the source or kept keys: %v %v", meta, row)
	}
}
