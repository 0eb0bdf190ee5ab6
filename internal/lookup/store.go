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
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/tomtom215/cropstream/internal/logging"
	"github.com/tomtom215/cropstream/internal/validation"
)

// Key prefixes
const (
	prefixPhase   = "phase:"
	prefixTag     = "tag:"
	prefixFarm    = "farm:"
	prefixMachine = "machine:"
	prefixLabel   = "label:"
)

// ErrStoreClosed is returned by every operation after Close.
var ErrStoreClosed = errors.New("lookup store is closed")

// StoreConfig configures the badger-backed store.
type StoreConfig struct {
	Path         string
	InMemory     bool
	CloseTimeout time.Duration
}

// Store keeps phases, farms, machines and labels in BadgerDB. Values are
// msgpack encoded. A tag index maps every assigned tag id to its phase.
type Store struct {
	db     *badger.DB
	cfg    StoreConfig
	mu     sync.RWMutex
	closed bool
}

// OpenStore opens (or creates) the store.
func OpenStore(cfg StoreConfig) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("lookup store path is required unless in-memory")
	}

	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	logging.Info().
		Str("path", cfg.Path).
		Bool("in_memory", cfg.InMemory).
		Msg("Lookup store opened")
	return &Store{db: db, cfg: cfg}, nil
}

// OpenMemoryStore opens an in-memory store, used by tests and local runs.
func OpenMemoryStore() (*Store, error) {
	return OpenStore(StoreConfig{InMemory: true})
}

// Close shuts the store down, giving up after CloseTimeout.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	timeout := s.cfg.CloseTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	s.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		done <- s.db.Close()
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("close BadgerDB: %w", err)
		}
		logging.Info().Msg("Lookup store closed")
		return nil
	case <-time.After(timeout):
		logging.Warn().Dur("timeout", timeout).Msg("Lookup store close timed out")
		return fmt.Errorf("lookup store close timeout after %v", timeout)
	}
}

func (s *Store) view(fn func(txn *badger.Txn) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return s.db.View(fn)
}

func (s *Store) update(fn func(txn *badger.Txn) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return s.db.Update(fn)
}

func getValue(txn *badger.Txn, key string, v any) error {
	item, err := txn.Get([]byte(key))
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return msgpack.Unmarshal(val, v)
	})
}

func setValue(txn *badger.Txn, key string, v any) error {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return txn.Set([]byte(key), data)
}

func normalizeTag(tagID string) string {
	return strings.TrimSpace(tagID)
}

// PutPhase stores a phase and re-indexes its tags. A tag already assigned
// to another phase, or used twice within this one, fails with
// ErrDuplicateTag and nothing is written.
func (s *Store) PutPhase(ctx context.Context, p *Phase) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validation.Validate(p); err != nil {
		return fmt.Errorf("invalid phase: %w", err)
	}

	seen := make(map[string]string, len(p.Rows))
	for _, r := range p.Rows {
		tag := normalizeTag(r.TagID)
		if tag == "" {
			continue
		}
		if other, dup := seen[tag]; dup {
			return fmt.Errorf("%w: %s on rows %s and %s of phase %s", ErrDuplicateTag, tag, other, r.Key(), p.PhaseID)
		}
		seen[tag] = r.Key()
	}

	return s.update(func(txn *badger.Txn) error {
		for tag := range seen {
			var owner string
			err := getValue(txn, prefixTag+tag, &owner)
			if err == nil && owner != p.PhaseID {
				return fmt.Errorf("%w: %s belongs to phase %s", ErrDuplicateTag, tag, owner)
			}
			if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}

		var previous Phase
		err := getValue(txn, prefixPhase+p.PhaseID, &previous)
		switch {
		case err == nil:
			for _, r := range previous.Rows {
				tag := normalizeTag(r.TagID)
				if _, kept := seen[tag]; tag != "" && !kept {
					if err := txn.Delete([]byte(prefixTag + tag)); err != nil {
						return err
					}
				}
			}
			// Status only moves forward, even across a re-import.
			p.DataStatus, _ = previous.DataStatus.Advance(p.DataStatus)
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		for tag := range seen {
			if err := setValue(txn, prefixTag+tag, p.PhaseID); err != nil {
				return err
			}
		}
		return setValue(txn, prefixPhase+p.PhaseID, p)
	})
}

// Phase returns the stored phase.
func (s *Store) Phase(ctx context.Context, phaseID string) (*Phase, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var p Phase
	err := s.view(func(txn *badger.Txn) error {
		return getValue(txn, prefixPhase+phaseID, &p)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrPhaseNotFound, phaseID)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// PutFarm stores a farm.
func (s *Store) PutFarm(ctx context.Context, f *Farm) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validation.Validate(f); err != nil {
		return fmt.Errorf("invalid farm: %w", err)
	}
	return s.update(func(txn *badger.Txn) error {
		return setValue(txn, prefixFarm+f.FarmID, f)
	})
}

// Farm returns the stored farm.
func (s *Store) Farm(ctx context.Context, farmID string) (*Farm, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var f Farm
	err := s.view(func(txn *badger.Txn) error {
		return getValue(txn, prefixFarm+farmID, &f)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrFarmNotFound, farmID)
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// PutMachine stores a machine.
func (s *Store) PutMachine(ctx context.Context, m *Machine) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validation.Validate(m); err != nil {
		return fmt.Errorf("invalid machine: %w", err)
	}
	return s.update(func(txn *badger.Txn) error {
		return setValue(txn, prefixMachine+m.MachineID, m)
	})
}

// PutLabels stores label catalog entries.
func (s *Store) PutLabels(ctx context.Context, labels []Label) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for i := range labels {
		if err := validation.Validate(&labels[i]); err != nil {
			return fmt.Errorf("invalid label %d: %w", i, err)
		}
	}
	return s.update(func(txn *badger.Txn) error {
		for i := range labels {
			if err := setValue(txn, prefixLabel+labels[i].Label, &labels[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// FindRow resolves a tag id to its row, with the owning customer, farm and
// phase filled in.
func (s *Store) FindRow(ctx context.Context, tagID string) (*Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tag := normalizeTag(tagID)
	var row *Row
	err := s.view(func(txn *badger.Txn) error {
		var phaseID string
		if err := getValue(txn, prefixTag+tag, &phaseID); err != nil {
			return err
		}
		var p Phase
		if err := getValue(txn, prefixPhase+phaseID, &p); err != nil {
			return err
		}
		for i := range p.Rows {
			if normalizeTag(p.Rows[i].TagID) == tag {
				r := p.Rows[i]
				r.CustomerID = p.CustomerID
				r.FarmID = p.FarmID
				r.PhaseID = p.PhaseID
				row = &r
				return nil
			}
		}
		return badger.ErrKeyNotFound
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, &TagNotFoundError{TagID: tagID}
	}
	if err != nil {
		return nil, err
	}
	return row, nil
}

// CartesianLocation implements PhaseLookup.
func (s *Store) CartesianLocation(ctx context.Context, phaseID string, rowNumber int, side string, distanceCM, heightCM int) (Cartesian, error) {
	p, err := s.Phase(ctx, phaseID)
	if err != nil {
		return Cartesian{}, err
	}
	return p.Cartesian(rowNumber, side, distanceCM, heightCM)
}

// PostLength implements PhaseLookup.
func (s *Store) PostLength(ctx context.Context, phaseID, side string) (int, error) {
	p, err := s.Phase(ctx, phaseID)
	if err != nil {
		return 0, err
	}
	return p.PostLength(side), nil
}

// MarkProcessed advances the phase to processed and cascades to its farm.
// A missing farm is logged and ignored.
func (s *Store) MarkProcessed(ctx context.Context, phaseID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var farmID string
	err := s.update(func(txn *badger.Txn) error {
		var p Phase
		if err := getValue(txn, prefixPhase+phaseID, &p); err != nil {
			return err
		}
		farmID = p.FarmID
		next, changed := p.DataStatus.Advance(StatusProcessed)
		if changed {
			p.DataStatus = next
			if err := setValue(txn, prefixPhase+phaseID, &p); err != nil {
				return err
			}
		}

		var f Farm
		if err := getValue(txn, prefixFarm+p.FarmID, &f); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				logging.Debug().Str("farm_id", p.FarmID).Msg("Farm missing while marking phase processed")
				return nil
			}
			return err
		}
		if next, changed := f.DataStatus.Advance(StatusProcessed); changed {
			f.DataStatus = next
			return setValue(txn, prefixFarm+f.FarmID, &f)
		}
		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%w: %s", ErrPhaseNotFound, phaseID)
	}
	if err != nil {
		return err
	}

	logging.Debug().Str("phase_id", phaseID).Str("farm_id", farmID).Msg("Phase marked processed")
	return nil
}

// Timezone implements FarmLookup.
func (s *Store) Timezone(ctx context.Context, farmID string) (string, error) {
	f, err := s.Farm(ctx, farmID)
	if err != nil {
		return "", err
	}
	return f.Timezone, nil
}

// CustomerID implements MachineLookup.
func (s *Store) CustomerID(ctx context.Context, machineID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var m Machine
	err := s.view(func(txn *badger.Txn) error {
		return getValue(txn, prefixMachine+machineID, &m)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", fmt.Errorf("%w: %s", ErrMachineNotFound, machineID)
	}
	if err != nil {
		return "", err
	}
	return m.CustomerID, nil
}

// Categories implements LabelCatalog.
func (s *Store) Categories(ctx context.Context) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make(map[string]string)
	err := s.view(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixLabel)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var l Label
			if err := it.Item().Value(func(val []byte) error {
				return msgpack.Unmarshal(val, &l)
			}); err != nil {
				return err
			}
			out[l.Label] = l.Category
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RunGC reclaims value log space. In-memory stores have nothing to reclaim.
func (s *Store) RunGC(ratio float64) error {
	if s.cfg.InMemory {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	for {
		err := s.db.RunValueLogGC(ratio)
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("run GC: %w", err)
		}
	}
}
