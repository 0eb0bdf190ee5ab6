// Cropstream - Greenhouse Sensor Record Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cropstream

package stagefile

import (
	"fmt"
	"math"
	"reflect"

	"github.com/goccy/go-json"
)

// Normalize returns v in the form a Reader yields after a Writer wrote it.
// Every number becomes float64, NaN and infinities become nil, strings
// holding a JSON object or array are decoded, and maps, slices and structs
// become map[string]any or []any with float64 numbers.
//
// A record written and read back equals its normalized form, so callers
// comparing records across a stage file compare normalized values.
func Normalize(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case string:
		return nestedOrString(x), nil
	case bool:
		return x, nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return nil, fmt.Errorf("normalize number %q: %w", x, err)
		}
		return finite(f), nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return finite(rv.Float()), nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("normalize value: %w", err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("normalize value: %w", err)
	}
	return out, nil
}

// NormalizeRow applies Normalize to every value of rec.
func NormalizeRow(rec map[string]any) (Row, error) {
	row := make(Row, len(rec))
	for k, v := range rec {
		n, err := Normalize(v)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", k, err)
		}
		row[k] = n
	}
	return row, nil
}

func finite(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return f
}
