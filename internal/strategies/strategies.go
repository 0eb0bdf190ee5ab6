// Cropstream - Greenhouse Sensor Record Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cropstream

package strategies

import (
	"fmt"

	"github.com/tomtom215/cropstream/internal/processor"
	"github.com/tomtom215/cropstream/internal/registry"
)

// Record types handled by this package.
const (
	TypeAux                  = "aux"
	TypeImage                = "image"
	TypeVideo                = "video"
	TypeLabel                = "label"
	TypeWave                 = "wave"
	TypeFruitCountDetail     = "model-fruit-count-detail"
	TypeFruitCountSummary    = "model-fruit-count-summary"
	TypeFlowerCountDetail    = "model-flower-count-detail"
	TypeFlowerCountSummary   = "model-flower-count-summary"
	TypeStressPredictDetail  = "model-stress-prediction-detail"
	TypeStressPredictSummary = "model-stress-prediction-summary"
)

// Entry pairs a record type with the factory of its strategy.
type Entry struct {
	Type    string
	Factory registry.Factory
}

// Table lists every strategy in dispatch order.
func Table() []Entry {
	return []Entry{
		{TypeWave, func() processor.Strategy { return NewWave() }},
		{TypeVideo, func() processor.Strategy { return NewVideo() }},
		{TypeLabel, func() processor.Strategy { return NewLabel() }},
		{TypeAux, func() processor.Strategy { return NewAux() }},
		{TypeImage, func() processor.Strategy { return NewImage() }},
		{TypeFruitCountDetail, func() processor.Strategy { return NewFruitCountDetail() }},
		{TypeFruitCountSummary, func() processor.Strategy { return NewFruitCountSummary() }},
		{TypeFlowerCountDetail, func() processor.Strategy { return NewFlowerCountDetail() }},
		{TypeFlowerCountSummary, func() processor.Strategy { return NewFlowerCountSummary() }},
		{TypeStressPredictDetail, func() processor.Strategy { return NewStressPredictionDetail() }},
		{TypeStressPredictSummary, func() processor.Strategy { return NewStressPredictionSummary() }},
	}
}

// RegisterAll registers every strategy of Table with reg.
func RegisterAll(reg *registry.Registry) error {
	for _, e := range Table() {
		if err := reg.Register(e.Type, e.Factory); err != nil {
			return fmt.Errorf("register %s: %w", e.Type, err)
		}
	}
	return nil
}

// sideFromCamera maps the camera index of a file name to a side.
func sideFromCamera(extraInfo string) string {
	switch extraInfo {
	case "0":
		return "left"
	case "1":
		return "right"
	}
	return extraInfo
}
