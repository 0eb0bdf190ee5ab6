// Cropstream - Greenhouse Sensor Record Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cropstream

package lookup

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTagNotFound is returned when no phase row carries the tag id.
	ErrTagNotFound = errors.New("tag not found")

	// ErrRowNotFound is returned when a phase has no row for side and number.
	ErrRowNotFound = errors.New("row not found")

	// ErrPhaseNotFound is returned for an unknown phase id.
	ErrPhaseNotFound = errors.New("phase not found")

	// ErrFarmNotFound is returned for an unknown farm id.
	ErrFarmNotFound = errors.New("farm not found")

	// ErrMachineNotFound is returned for an unknown machine id.
	ErrMachineNotFound = errors.New("machine not found")

	// ErrDuplicateTag is returned when a tag id is already assigned to a
	// row of another phase, or twice within the same phase.
	ErrDuplicateTag = errors.New("tag id already assigned")
)

// TagNotFoundError carries the tag that could not be resolved.
type TagNotFoundError struct {
	TagID string
}

func (e *TagNotFoundError) Error() string {
	return fmt.Sprintf("Tag ID [%s] was not found.", e.TagID)
}

func (e *TagNotFoundError) Unwrap() error {
	return ErrTagNotFound
}

// Crop is one crop planted on a side of a row.
type Crop struct {
	Side      string `json:"side" msgpack:"side"`
	Crop      string `json:"crop" msgpack:"crop"`
	Variation string `json:"variation" msgpack:"variation"`
}

// Row is one physical row of a phase. CustomerID, FarmID and PhaseID are
// filled in when the row is returned by FindRow.
type Row struct {
	CustomerID   string `json:"customer_id,omitempty" msgpack:"customer_id,omitempty"`
	FarmID       string `json:"farm_id,omitempty" msgpack:"farm_id,omitempty"`
	PhaseID      string `json:"phase_id,omitempty" msgpack:"phase_id,omitempty"`
	RowNumber    int    `json:"row_number" msgpack:"row_number" validate:"gte=1"`
	TagID        string `json:"tag_id" msgpack:"tag_id"`
	Side         string `json:"side" msgpack:"side" validate:"required"`
	Bay          string `json:"bay" msgpack:"bay"`
	Row          string `json:"row" msgpack:"row"`
	Crops        []Crop `json:"crops" msgpack:"crops"`
	RowLength    int    `json:"row_length" msgpack:"row_length"`
	RowWidth     int    `json:"row_width" msgpack:"row_width"`
	RowOffset    int    `json:"row_offset" msgpack:"row_offset"`
	MarginLeft   int    `json:"margin_left" msgpack:"margin_left"`
	MarginRight  int    `json:"margin_right" msgpack:"margin_right"`
	MaxHeight    int    `json:"max_height" msgpack:"max_height"`
	MinHeight    int    `json:"min_height" msgpack:"min_height"`
	RailDistance int    `json:"rail_distance" msgpack:"rail_distance"`
	IsActive     bool   `json:"is_active" msgpack:"is_active"`
}

// Key is the row key, unique within a phase: <side>-<row_number>.
func (r *Row) Key() string {
	return RowKey(r.Side, r.RowNumber)
}

// RowKey builds the key of the row on side with the given number.
func RowKey(side string, rowNumber int) string {
	return fmt.Sprintf("%s-%d", strings.ToLower(side), rowNumber)
}

// Post describes the post layout of one side of a phase.
type Post struct {
	Side       string `json:"side" msgpack:"side"`
	PostCount  int    `json:"post_count" msgpack:"post_count"`
	PostLength int    `json:"post_length" msgpack:"post_length"`
}

// Phase is one growing phase of a farm and its row layout.
type Phase struct {
	CustomerID   string     `json:"customer_id" msgpack:"customer_id" validate:"required"`
	FarmID       string     `json:"farm_id" msgpack:"farm_id" validate:"required"`
	PhaseID      string     `json:"phase_id" msgpack:"phase_id" validate:"required"`
	Name         string     `json:"phase_name" msgpack:"phase_name"`
	Type         string     `json:"phase_type" msgpack:"phase_type"`
	WalkwayWidth int        `json:"walkway_width" msgpack:"walkway_width"`
	Posts        []Post     `json:"posts" msgpack:"posts"`
	Rows         []Row      `json:"rows" msgpack:"rows" validate:"dive"`
	DataStatus   DataStatus `json:"data_status" msgpack:"data_status"`
}

// Farm is one customer farm.
type Farm struct {
	CustomerID string     `json:"customer_id" msgpack:"customer_id" validate:"required"`
	FarmID     string     `json:"farm_id" msgpack:"farm_id" validate:"required"`
	Name       string     `json:"farm_name" msgpack:"farm_name"`
	Timezone   string     `json:"timezone" msgpack:"timezone" validate:"omitempty,timezone"`
	DataStatus DataStatus `json:"data_status" msgpack:"data_status"`
}

// Machine is one scanning robot.
type Machine struct {
	MachineID  string `json:"machine_id" msgpack:"machine_id" validate:"required"`
	CustomerID string `json:"customer_id" msgpack:"customer_id" validate:"required"`
}

// Label maps a label name to its catalog category.
type Label struct {
	Label    string `json:"label" msgpack:"label" validate:"required"`
	Category string `json:"category" msgpack:"category"`
}

// Cartesian is a position in the phase's coordinate system, in cm.
type Cartesian struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

// Map returns the position in its canonical record form.
func (c Cartesian) Map() map[string]any {
	return map[string]any{"x": c.X, "y": c.Y, "z": c.Z}
}

// PhaseLookup resolves tags to rows and rows to positions.
type PhaseLookup interface {
	FindRow(ctx context.Context, tagID string) (*Row, error)
	CartesianLocation(ctx context.Context, phaseID string, rowNumber int, side string, distanceCM, heightCM int) (Cartesian, error)
	PostLength(ctx context.Context, phaseID, side string) (int, error)
	MarkProcessed(ctx context.Context, phaseID string) error
}

// FarmLookup resolves a farm's IANA timezone name.
type FarmLookup interface {
	Timezone(ctx context.Context, farmID string) (string, error)
}

// MachineLookup resolves the customer owning a machine.
type MachineLookup interface {
	CustomerID(ctx context.Context, machineID string) (string, error)
}

// LabelCatalog returns the label to category map.
type LabelCatalog interface {
	Categories(ctx context.Context) (map[string]string, error)
}

// Lookups bundles the collaborators a processor needs.
type Lookups struct {
	Phases   PhaseLookup
	Farms    FarmLookup
	Machines MachineLookup
	Labels   LabelCatalog
}

// FromStore uses s for every collaborator.
func FromStore(s *Store) Lookups {
	return Lookups{Phases: s, Farms: s, Machines: s, Labels: s}
}
