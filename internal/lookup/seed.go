// Cropstream - Greenhouse Sensor Record Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cropstream

package lookup

import (
	"context"
	"fmt"
	"os"

	"github.com/goccy/go-json"

	"github.com/tomtom215/cropstream/internal/logging"
)

// Seed is the JSON document imported by LoadSeed.
type Seed struct {
	Farms    []Farm    `json:"farms"`
	Phases   []Phase   `json:"phases"`
	Machines []Machine `json:"machines"`
	Labels   []Label   `json:"labels"`
}

// SeedCounts reports what LoadSeed imported.
type SeedCounts struct {
	Farms    int
	Phases   int
	Machines int
	Labels   int
}

// LoadSeed imports a JSON seed file. Farms are written before phases so
// the first MarkProcessed already finds them.
func (s *Store) LoadSeed(ctx context.Context, path string) (SeedCounts, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SeedCounts{}, fmt.Errorf("read seed file: %w", err)
	}
	var seed Seed
	if err := json.Unmarshal(data, &seed); err != nil {
		return SeedCounts{}, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	counts, err := s.Import(ctx, &seed)
	if err != nil {
		return counts, err
	}

	logging.Info().
		Str("path", path).
		Int("farms", counts.Farms).
		Int("phases", counts.Phases).
		Int("machines", counts.Machines).
		Int("labels", counts.Labels).
		Msg("Lookup seed loaded")
	return counts, nil
}

// Import writes every entity of seed to the store.
func (s *Store) Import(ctx context.Context, seed *Seed) (SeedCounts, error) {
	var counts SeedCounts
	for i := range seed.Farms {
		if err := s.PutFarm(ctx, &seed.Farms[i]); err != nil {
			return counts, fmt.Errorf("farm %s: %w", seed.Farms[i].FarmID, err)
		}
		counts.Farms++
	}
	for i := range seed.Phases {
		if err := s.PutPhase(ctx, &seed.Phases[i]); err != nil {
			return counts, fmt.Errorf("phase %s: %w", seed.Phases[i].PhaseID, err)
		}
		counts.Phases++
	}
	for i := range seed.Machines {
		if err := s.PutMachine(ctx, &seed.Machines[i]); err != nil {
			return counts, fmt.Errorf("machine %s: %w", seed.Machines[i].MachineID, err)
		}
		counts.Machines++
	}
	if len(seed.Labels) > 0 {
		if err := s.PutLabels(ctx, seed.Labels); err != nil {
			return counts, err
		}
		counts.Labels = len(seed.Labels)
	}
	return counts, nil
}
