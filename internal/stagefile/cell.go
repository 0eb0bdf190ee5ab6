// Cropstream - Greenhouse Sensor Record Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cropstream

package stagefile

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// value converts a raw cell into its typed form.
//
//	quoted            -> string, or map/list when it holds JSON
//	unquoted empty    -> nil
//	unquoted numeric  -> float64
//	unquoted true/false -> bool
//	anything else     -> string (JSON-aware like quoted cells)
func (c cell) value() any {
	if !c.quoted {
		switch c.text {
		case "":
			return nil
		case "true", "True":
			return true
		case "false", "False":
			return false
		}
		if f, err := strconv.ParseFloat(c.text, 64); err == nil {
			switch {
			case math.IsNaN(f):
				return nil
			case math.IsInf(f, 0):
				return c.text
			}
			return f
		}
	}
	return nestedOrString(c.text)
}

// nestedOrString re-interprets a string starting with { or [ as JSON.
// Unparseable text stays a string.
func nestedOrString(s string) any {
	if s == "" || (s[0] != '{' && s[0] != '[') {
		return s
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	switch v.(type) {
	case map[string]any, []any:
		return v
	}
	return s
}

// formatCell renders one value for writing. Numbers and bools are left
// unquoted, nil is empty, everything else is quoted and maps, lists and
// structs are JSON-encoded first.
func formatCell(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return quote(x), nil
	case bool:
		return strconv.FormatBool(x), nil
	case int:
		return strconv.Itoa(x), nil
	case int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(x), nil
	case float32:
		return formatFloat(float64(x)), nil
	case float64:
		return formatFloat(x), nil
	case json.Number:
		return x.String(), nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode cell: %w", err)
	}
	return quote(string(data)), nil
}

func formatFloat(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return ""
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func quote(s string) string {
	var sb strings.Builder
	sb.Grow(len(s) + 2)
	sb.WriteByte(Quote)
	for _, r := range s {
		switch r {
		case Quote:
			sb.WriteString(`""`)
		case Escape:
			sb.WriteString(`\\`)
		default:
			sb.WriteRune(r)
		}
	}
	sb.WriteByte(Quote)
	return sb.String()
}
