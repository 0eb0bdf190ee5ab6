// Cropstream - Greenhouse Sensor Record Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cropstream

package record

import (
	"embed"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"github.com/xeipuuv/gojsonschema"
)

// Schema names, each backed by one embedded file listed in schemaFiles.
const (
	SchemaAux                 = "aux"
	SchemaImage               = "image"
	SchemaVideo               = "video"
	SchemaLabel               = "label"
	SchemaWave                = "wave"
	SchemaFruitCountDetail    = "model-fruit-count-detail"
	SchemaFruitCountSummary   = "model-fruit-count-summary"
	SchemaFlowerCountDetail   = "model-flower-count-detail"
	SchemaFlowerCountSummary  = "model-flower-count-summary"
	SchemaStressPredictDetail = "model-stress-prediction-detail"
)

var (
	// ErrSchemaValidation is wrapped by every *SchemaError.
	ErrSchemaValidation = errors.New("record failed schema validation")

	// ErrUnknownSchema is returned for a schema name with no embedded file.
	ErrUnknownSchema = errors.New("unknown record schema")
)

//go:embed schemas/*.json
var schemaFS embed.FS

// SchemaError lists every problem found validating one record.
type SchemaError struct {
	Schema   string
	Problems []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("record does not match schema %s: %s", e.Schema, strings.Join(e.Problems, "; "))
}

func (e *SchemaError) Unwrap() error {
	return ErrSchemaValidation
}

// Validator holds the compiled record schemas.
type Validator struct {
	schemas map[string]*gojsonschema.Schema
}

// schemaFiles maps each schema name to its file under schemas/. File names
// are not derived from schema names: "aux" is a reserved device name on
// Windows and cannot be embedded.
var schemaFiles = map[string]string{
	SchemaAux:                 "aux_sensor.json",
	SchemaImage:               "image.json",
	SchemaVideo:               "video.json",
	SchemaLabel:               "label.json",
	SchemaWave:                "wave.json",
	SchemaFruitCountDetail:    "model-fruit-count-detail.json",
	SchemaFruitCountSummary:   "model-fruit-count-summary.json",
	SchemaFlowerCountDetail:   "model-flower-count-detail.json",
	SchemaFlowerCountSummary:  "model-flower-count-summary.json",
	SchemaStressPredictDetail: "model-stress-prediction-detail.json",
}

// NewValidator compiles every embedded schema.
func NewValidator() (*Validator, error) {
	v := &Validator{schemas: make(map[string]*gojsonschema.Schema, len(schemaFiles))}
	for name, file := range schemaFiles {
		data, err := schemaFS.ReadFile(path.Join("schemas", file))
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", file, err)
		}
		s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(data))
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", file, err)
		}
		v.schemas[name] = s
	}
	return v, nil
}

var defaultValidator = sync.OnceValues(NewValidator)

// DefaultValidator returns a process-wide Validator compiled on first use.
func DefaultValidator() (*Validator, error) {
	return defaultValidator()
}

// Names returns the sorted schema names.
func (v *Validator) Names() []string {
	names := make([]string, 0, len(v.schemas))
	for n := range v.schemas {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Has reports whether a schema with the given name exists.
func (v *Validator) Has(name string) bool {
	_, ok := v.schemas[name]
	return ok
}

// Validate checks rec against the named schema. The record is validated in
// its JSON form, as it will be written.
func (v *Validator) Validate(name string, rec Canonical) error {
	s, ok := v.schemas[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSchema, name)
	}
	doc, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record for validation: %w", err)
	}
	result, err := s.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("validate record: %w", err)
	}
	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		problems = append(problems, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
	}
	return &SchemaError{Schema: name, Problems: problems}
}
