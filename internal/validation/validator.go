// Cropstream - Greenhouse Sensor Record Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cropstream

// Package validation provides struct validation using go-playground/validator v10.
//
// A single validator instance caches struct metadata and carries the custom
// tags used across Cropstream:
//
//   - recordtype: lower-case record type names such as "wave" or
//     "model-fruit-count-detail"
//   - timezone: an IANA zone name loadable with time.LoadLocation
//
// Example:
//
//	type Farm struct {
//	    ID       string `validate:"required"`
//	    Timezone string `validate:"required,timezone"`
//	}
//
//	if err := validation.ValidateStruct(&farm); err != nil {
//	    return fmt.Errorf("farm %s: %w", farm.ID, err)
//	}
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once

	recordTypePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)
)

// FieldError is a single failed field.
type FieldError struct {
	field   string
	tag     string
	param   string
	value   any
	message string
}

// Field returns the struct field name that failed validation.
func (e *FieldError) Field() string { return e.field }

// Tag returns the failing validation tag.
func (e *FieldError) Tag() string { return e.tag }

// Param returns the tag parameter, e.g. "100" for "max=100".
func (e *FieldError) Param() string { return e.param }

// Value returns the offending value.
func (e *FieldError) Value() any { return e.value }

func (e *FieldError) Error() string { return e.message }

// ValidationErrors collects every failed field of one struct.
type ValidationErrors struct {
	errors []FieldError
}

// Errors returns the individual field failures.
func (ve *ValidationErrors) Errors() []FieldError {
	return ve.errors
}

// Fields returns the failing field names in order.
func (ve *ValidationErrors) Fields() []string {
	out := make([]string, len(ve.errors))
	for i := range ve.errors {
		out[i] = ve.errors[i].field
	}
	return out
}

func (ve *ValidationErrors) Error() string {
	if len(ve.errors) == 0 {
		return "validation failed"
	}
	msgs := make([]string, len(ve.errors))
	for i := range ve.errors {
		msgs[i] = ve.errors[i].message
	}
	return strings.Join(msgs, "; ")
}

// GetValidator returns the shared validator, creating it on first use.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())

		_ = validate.RegisterValidation("recordtype", func(fl validator.FieldLevel) bool {
			return recordTypePattern.MatchString(fl.Field().String())
		})
		_ = validate.RegisterValidation("timezone", func(fl validator.FieldLevel) bool {
			name := fl.Field().String()
			if name == "" {
				return false
			}
			_, err := time.LoadLocation(name)
			return err == nil
		})
	})
	return validate
}

// ValidateStruct validates s and returns nil or a *ValidationErrors.
//
// The return type is the concrete pointer so callers can inspect fields; wrap
// it before returning it as an error to avoid a typed-nil interface.
func ValidateStruct(s any) *ValidationErrors {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &ValidationErrors{errors: []FieldError{{
			field:   "unknown",
			tag:     "unknown",
			message: err.Error(),
		}}}
	}

	out := make([]FieldError, len(fieldErrs))
	for i, fe := range fieldErrs {
		out[i] = FieldError{
			field:   fe.Field(),
			tag:     fe.Tag(),
			param:   fe.Param(),
			value:   fe.Value(),
			message: translate(fe),
		}
	}
	return &ValidationErrors{errors: out}
}

// Validate is ValidateStruct returning a plain error (nil when valid).
func Validate(s any) error {
	if ve := ValidateStruct(s); ve != nil {
		return ve
	}
	return nil
}

var plainMessages = map[string]string{
	"required":   "%s is required",
	"recordtype": "%s must be a lower-case record type name",
	"timezone":   "%s must be a valid IANA timezone",
	"url":        "%s must be a valid URL",
	"hostname":   "%s must be a valid hostname",
}

var paramMessages = map[string]string{
	"oneof": "%s must be one of: %s",
	"gte":   "%s must be greater than or equal to %s",
	"lte":   "%s must be less than or equal to %s",
	"gt":    "%s must be greater than %s",
	"lt":    "%s must be less than %s",
}

func translate(fe validator.FieldError) string {
	field, tag, param := fe.Field(), fe.Tag(), fe.Param()

	if tmpl, ok := plainMessages[tag]; ok {
		return fmt.Sprintf(tmpl, field)
	}
	if tmpl, ok := paramMessages[tag]; ok {
		return fmt.Sprintf(tmpl, field, param)
	}

	isString := fe.Kind().String() == "string"
	switch tag {
	case "min":
		if isString {
			return fmt.Sprintf("%s must be at least %s characters", field, param)
		}
		return fmt.Sprintf("%s must be at least %s", field, param)
	case "max":
		if isString {
			return fmt.Sprintf("%s must be at most %s characters", field, param)
		}
		return fmt.Sprintf("%s must be at most %s", field, param)
	default:
		return fmt.Sprintf("%s failed %s validation", field, tag)
	}
}
