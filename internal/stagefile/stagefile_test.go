// Cropstream - Greenhouse Sensor Record Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cropstream

package stagefile

import (
	"bytes"
	"errors"
	"io"
	"math"
	"reflect"
	"strings"
	"testing"

	"github.com/goccy/go-json"
)

func readAll(t *testing.T, src string) []Row {
	t.Helper()
	r, err := NewReader(strings.NewReader(src))
	if err != nil {
		t.Fatalf("NewReader() error: %v", err)
	}
	var rows []Row
	for row, err := range r.All() {
		if err != nil {
			t.Fatalf("row %d: %v", len(rows)+1, err)
		}
		rows = append(rows, row)
	}
	return rows
}

func TestReader_TypeCoercion(t *testing.T) {
	t.Parallel()

	src := `"id";"distance";"location";"frames";"note";"flag";"empty";"quoted_num"` + "\n" +
		`"device-id";12.5;"{""tagid"": ""0438"", ""rsid"": ""r1""}";"[1, 2]";"{not json";true;;"42"` + "\n"

	rows := readAll(t, src)
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	row := rows[0]

	if row["id"] != "device-id" {
		t.Errorf("id = %#v", row["id"])
	}
	if row["distance"] != 12.5 {
		t.Errorf("distance = %#v, want 12.5", row["distance"])
	}
	loc, ok := row["location"].(map[string]any)
	if !ok || loc["tagid"] != "0438" || loc["rsid"] != "r1" {
		t.Errorf("location = %#v", row["location"])
	}
	if !reflect.DeepEqual(row["frames"], []any{1.0, 2.0}) {
		t.Errorf("frames = %#v", row["frames"])
	}
	if row["note"] != "{not json" {
		t.Errorf("note = %#v", row["note"])
	}
	if row["flag"] != true {
		t.Errorf("flag = %#v", row["flag"])
	}
	if v, ok := row["empty"]; !ok || v != nil {
		t.Errorf("empty = %#v (present %v)", v, ok)
	}
	if row["quoted_num"] != "42" {
		t.Errorf("quoted_num = %#v, want string 42", row["quoted_num"])
	}
}

func TestReader_PayloadUnwrap(t *testing.T) {
	t.Parallel()

	src := `"payload"` + "\n" +
		`"{""startDistance"": 124, ""endDistance"": 250, ""side"": ""left""}"` + "\n" +
		`"[{""seq"": 1}, {""seq"": 2}]"` + "\n" +
		`"[]"` + "\n" +
		`"plain"` + "\n"

	rows := readAll(t, src)
	if len(rows) != 4 {
		t.Fatalf("got %d rows, want 4: %#v", len(rows), rows)
	}
	if rows[0]["side"] != "left" || rows[0]["startDistance"] != 124.0 {
		t.Errorf("row 0 not unwrapped: %#v", rows[0])
	}
	if rows[1]["seq"] != 1.0 || rows[2]["seq"] != 2.0 {
		t.Errorf("list payload not split into rows: %#v, %#v", rows[1], rows[2])
	}
	if rows[3][PayloadColumn] != "plain" {
		t.Errorf("string payload must stay wrapped: %#v", rows[3])
	}
}

func TestReader_PayloadListOfScalars(t *testing.T) {
	t.Parallel()

	r, err := NewReader(strings.NewReader(`"payload"` + "\n" + `"[1, 2]"` + "\n"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Next(); !errors.Is(err, ErrMalformedRow) {
		t.Errorf("Next() error = %v, want ErrMalformedRow", err)
	}
}

func TestReader_MultilineAndEscapes(t *testing.T) {
	t.Parallel()

	src := "\"a\";\"b\"\r\n\"line1\nline2\";\"back\\\\slash \\\"q\\\"\"\r\n\n"
	rows := readAll(t, src)
	if len(rows) != 1 {
		t.Fatalf("got %d rows", len(rows))
	}
	if rows[0]["a"] != "line1\nline2" {
		t.Errorf("a = %q", rows[0]["a"])
	}
	if rows[0]["b"] != `back\slash "q"` {
		t.Errorf("b = %q", rows[0]["b"])
	}
}

func TestReader_Errors(t *testing.T) {
	t.Parallel()

	if _, err := NewReader(strings.NewReader("")); !errors.Is(err, ErrNoHeader) {
		t.Errorf("empty input error = %v, want ErrNoHeader", err)
	}

	r, err := NewReader(strings.NewReader("\"a\"\n1;2\n"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Next(); !errors.Is(err, ErrMalformedRow) {
		t.Errorf("wide row error = %v, want ErrMalformedRow", err)
	}

	r, err = NewReader(strings.NewReader("\"a\"\n\"open\n"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Next(); !errors.Is(err, ErrMalformedRow) {
		t.Errorf("unterminated quote error = %v, want ErrMalformedRow", err)
	}

	r, err = NewReader(strings.NewReader("\"a\";\"b\"\n1\n"))
	if err != nil {
		t.Fatal(err)
	}
	row, err := r.Next()
	if err != nil {
		t.Fatalf("short row error: %v", err)
	}
	if v, ok := row["b"]; !ok || v != nil {
		t.Errorf("missing cell = %#v", v)
	}
	if _, err := r.Next(); err != io.EOF {
		t.Errorf("end of file error = %v, want io.EOF", err)
	}
}

func TestWriter_DictMode(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w := NewWriter(&buf)
	if !w.Empty() {
		t.Error("new writer must be empty")
	}

	if err := w.Write(map[string]any{"b": "x", "a": 1, "nested": map[string]any{"k": "v"}}); err != nil {
		t.Fatal(err)
	}
	if err := w.Write(map[string]any{"a": 2.5, "extra": "dropped"}); err != nil {
		t.Fatal(err)
	}
	if err := w.Write([]any{"x"}); !errors.Is(err, ErrModeMismatch) {
		t.Errorf("list into dict file error = %v", err)
	}

	n, err := w.Close()
	if err != nil || n != 2 {
		t.Fatalf("Close() = %d, %v", n, err)
	}

	want := `"a";"b";"nested"` + "\n" +
		`1;"x";"{""k"":""v""}"` + "\n" +
		`2.5;;` + "\n"
	if buf.String() != want {
		t.Errorf("output =\n%s\nwant\n%s", buf.String(), want)
	}
	if !reflect.DeepEqual(w.Columns(), []string{"a", "b", "nested"}) {
		t.Errorf("Columns() = %v", w.Columns())
	}
}

func TestWriter_ListMode(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := w.Write([]any{map[string]any{"k": 1.0}, []any{"a"}}); err != nil {
		t.Fatal(err)
	}
	if err := w.Write(map[string]any{"k": 1}); !errors.Is(err, ErrModeMismatch) {
		t.Errorf("dict into list file error = %v", err)
	}
	if _, err := w.Close(); err != nil {
		t.Fatal(err)
	}

	rows := readAll(t, buf.String())
	if len(rows) != 2 {
		t.Fatalf("got %d rows", len(rows))
	}
	if !reflect.DeepEqual(rows[0][ListColumn], map[string]any{"k": 1.0}) {
		t.Errorf("row 0 = %#v", rows[0])
	}
}

func TestWriter_Errors(t *testing.T) {
	t.Parallel()

	w := NewWriter(io.Discard)
	tests := []struct {
		name    string
		content any
		want    error
	}{
		{"nil", nil, ErrEmptyContent},
		{"empty map", map[string]any{}, ErrEmptyContent},
		{"empty list", []any{}, ErrEmptyContent},
		{"string", "row", ErrUnsupportedContent},
		{"int", 3, ErrUnsupportedContent},
	}
	for _, tt := range tests {
		if err := w.Write(tt.content); !errors.Is(err, tt.want) {
			t.Errorf("%s: Write() error = %v, want %v", tt.name, err, tt.want)
		}
	}

	if _, err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := w.Write(map[string]any{"a": 1}); !errors.Is(err, ErrClosed) {
		t.Errorf("write after close error = %v", err)
	}
	if _, err := w.Close(); !errors.Is(err, ErrClosed) {
		t.Errorf("double close error = %v", err)
	}
}

func TestRoundTrip_NestedValues(t *testing.T) {
	t.Parallel()

	records := []map[string]any{
		{
			"record_type": "video",
			"row_location": map[string]any{
				"tag_id":      "0438763235890056",
				"row_number":  7,
				"distance_cm": int64(10),
				"post_number": 1,
				"side":        "left",
			},
			"cartesian_location": map[string]any{"x": 1.5, "y": 0, "z": 3},
			"capture_timestamp":  int64(1556207100),
			"velocity":           12.5,
			"raw_json_text":      `{"a": 1}`,
			"crops":              []any{"tomato", "pepper"},
			"camera_metadata":    map[string]any{"quote": `say "hi"`, "path": `c:\tmp`},
		},
		{
			"record_type":        "video",
			"row_location":       map[string]any{"tag_id": "x"},
			"cartesian_location": map[string]any{},
			"crops":              []any{},
			"camera_metadata":    map[string]any{"nested": []any{map[string]any{"a": true}}},
		},
	}

	var buf bytes.Buffer
	w := NewWriter(&buf)
	for _, rec := range records {
		if err := w.Write(rec); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := w.Close(); err != nil {
		t.Fatal(err)
	}

	rows := readAll(t, buf.String())
	if len(rows) != len(records) {
		t.Fatalf("got %d rows, want %d", len(rows), len(records))
	}
	for i, rec := range records {
		want, err := NormalizeRow(rec)
		if err != nil {
			t.Fatal(err)
		}
		for k, v := range want {
			if !reflect.DeepEqual(rows[i][k], v) {
				t.Errorf("row %d %s = %#v, want %#v", i, k, rows[i][k], v)
			}
		}
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   any
		want any
	}{
		{"int", 7, 7.0},
		{"int64", int64(-3), -3.0},
		{"uint8", uint8(4), 4.0},
		{"float32", float32(0.5), 0.5},
		{"nan", math.NaN(), nil},
		{"inf", math.Inf(1), nil},
		{"json number", json.Number("12"), 12.0},
		{"plain string", "left", "left"},
		{"json string", `[1, "a"]`, []any{1.0, "a"}},
		{"bad json string", "{nope", "{nope"},
		{"nested ints", map[string]any{"x": 1, "l": []int{2}}, map[string]any{"x": 1.0, "l": []any{2.0}}},
		{"struct", struct {
			A int `json:"a"`
		}{A: 5}, map[string]any{"a": 5.0}},
		{"nil", nil, nil},
		{"bool", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Normalize(tt.in)
			if err != nil {
				t.Fatalf("Normalize() error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Normalize(%#v) = %#v, want %#v", tt.in, got, tt.want)
			}
		})
	}
}
