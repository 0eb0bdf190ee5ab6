// Cropstream - Greenhouse Sensor Record Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cropstream

package record

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

var (
	// ErrMissingField is returned by Lookup when a key is absent or a path
	// element is not an object.
	ErrMissingField = errors.New("missing field")

	// ErrNotNumeric is returned when a value has no numeric reading.
	ErrNotNumeric = errors.New("value is not numeric")
)

// Lookup walks nested objects of row along keys.
func Lookup(row map[string]any, keys ...string) (any, error) {
	var cur any = row
	for i, k := range keys {
		m, ok := asMap(cur)
		if !ok {
			return nil, fmt.Errorf("%w: %s is not an object", ErrMissingField, strings.Join(keys[:i], "."))
		}
		v, ok := m[k]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingField, strings.Join(keys[:i+1], "."))
		}
		cur = v
	}
	return cur, nil
}

// LookupMap is Lookup for values that must be objects.
func LookupMap(row map[string]any, keys ...string) (map[string]any, error) {
	v, err := Lookup(row, keys...)
	if err != nil {
		return nil, err
	}
	m, ok := asMap(v)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not an object", ErrMissingField, strings.Join(keys, "."))
	}
	return m, nil
}

func asMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

// LookupInt is Lookup followed by ToInt.
func LookupInt(row map[string]any, keys ...string) (int64, error) {
	v, err := Lookup(row, keys...)
	if err != nil {
		return 0, err
	}
	n, err := ToInt(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", strings.Join(keys, "."), err)
	}
	return n, nil
}

// LookupFloat is Lookup followed by ToFloat.
func LookupFloat(row map[string]any, keys ...string) (float64, error) {
	v, err := Lookup(row, keys...)
	if err != nil {
		return 0, err
	}
	f, err := ToFloat(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", strings.Join(keys, "."), err)
	}
	return f, nil
}

// LookupString is Lookup followed by ToString.
func LookupString(row map[string]any, keys ...string) (string, error) {
	v, err := Lookup(row, keys...)
	if err != nil {
		return "", err
	}
	return ToString(v), nil
}

// ToFloat reads v as a number. Strings are parsed; booleans, nil and
// containers are rejected.
func ToFloat(v any) (float64, error) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case int32:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrNotNumeric, n.String())
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrNotNumeric, n)
		}
		f = parsed
	default:
		return 0, fmt.Errorf("%w: %v", ErrNotNumeric, v)
	}
	if math.IsNaN(f) {
		return 0, fmt.Errorf("%w: NaN", ErrNotNumeric)
	}
	return f, nil
}

// ToInt reads v as a number and truncates it toward zero, so "12.9" is 12.
func ToInt(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	}
	f, err := ToFloat(v)
	if err != nil {
		return 0, err
	}
	if math.IsInf(f, 0) || f > math.MaxInt64 || f < math.MinInt64 {
		return 0, fmt.Errorf("%w: %v out of range", ErrNotNumeric, f)
	}
	return int64(f), nil
}

// ToString renders v the way it would read in a CSV cell.
func ToString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		if s {
			return "True"
		}
		return "False"
	}
	return fmt.Sprint(v)
}

// Without returns a shallow copy of m minus keys.
func Without(m map[string]any, keys ...string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	for _, k := range keys {
		delete(out, k)
	}
	return out
}
