// Cropstream - Greenhouse Sensor Record Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cropstream

package processor

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/cropstream/internal/cache"
	"github.com/tomtom215/cropstream/internal/envelope"
	"github.com/tomtom215/cropstream/internal/filename"
	"github.com/tomtom215/cropstream/internal/lookup"
	"github.com/tomtom215/cropstream/internal/metrics"
	"github.com/tomtom215/cropstream/internal/record"
	"github.com/tomtom215/cropstream/internal/stagefile"
)

// DefaultVersion is the hardware and firmware version of sensor readings
// that do not carry their own.
const DefaultVersion = "0.1"

// Caches are process-wide caches shared by every run. A nil *Caches, or a
// nil field, falls back to per-event memoization.
type Caches struct {
	Timezones   *cache.LRU[*time.Location]
	PostLengths *cache.LRU[int]
}

// NewCaches creates both caches with the same capacity and TTL.
func NewCaches(capacity int, ttl time.Duration) *Caches {
	return &Caches{
		Timezones:   cache.NewLRU[*time.Location](capacity, ttl),
		PostLengths: cache.NewLRU[int](capacity, ttl),
	}
}

type identityResult struct {
	id  *record.Identity
	err error
}

// Run is the state of one event while it moves through the pipeline. It
// resolves row identities and answers record.Resolver questions, memoizing
// both for the lifetime of the event.
type Run struct {
	// Message is the decoded event.
	Message *envelope.StreamMessage

	// Info holds the fields parsed from the message filename.
	Info filename.Info

	// StagedPath is the staged file currently being processed.
	StagedPath string

	log       zerolog.Logger
	lookups   lookup.Lookups
	caches    *Caches
	validator *record.Validator
	now       func() time.Time

	identities  map[string]identityResult
	locations   map[string]*time.Location
	localTimes  map[string]string
	postLengths map[string]int
	categories  map[string]string
}

var _ record.Resolver = (*Run)(nil)

func newRun(p *Processor, msg *envelope.StreamMessage) *Run {
	info := filename.Parse(msg.Filename)
	return &Run{
		Message:     msg,
		Info:        info,
		log:         eventLogger(p.logger, msg, info),
		lookups:     p.deps.Lookups,
		caches:      p.deps.Caches,
		validator:   p.deps.Validator,
		now:         p.deps.Now,
		identities:  make(map[string]identityResult),
		locations:   make(map[string]*time.Location),
		localTimes:  make(map[string]string),
		postLengths: make(map[string]int),
	}
}

// Logger returns the event logger carrying the filename fields.
func (r *Run) Logger() *zerolog.Logger {
	return &r.log
}

// Now returns the current time of the owning processor's clock.
func (r *Run) Now() time.Time {
	return r.now()
}

// IsTBD reports whether tagID is the TBD placeholder.
func IsTBD(tagID string) bool {
	return strings.EqualFold(tagID, TagTBD)
}

// UploadTimestamp is the event's incoming timestamp as unix seconds.
func (r *Run) UploadTimestamp() (int64, error) {
	ts := r.Message.IncomingTimestamp
	if len(ts) > len(envelope.TimestampLayout) {
		ts = ts[:len(envelope.TimestampLayout)]
	}
	t, err := time.Parse(envelope.TimestampLayout, ts)
	if err != nil {
		return 0, fmt.Errorf("parse incoming timestamp %q: %w", r.Message.IncomingTimestamp, err)
	}
	return t.Unix(), nil
}

// Identity resolves the context of the row carrying tagID. Results,
// failures included, are memoized for the event; the returned Identity is
// a copy the caller may modify.
func (r *Run) Identity(ctx context.Context, tagID string) (*record.Identity, error) {
	res, ok := r.identities[tagID]
	if !ok {
		id, err := r.resolveIdentity(ctx, tagID)
		res = identityResult{id: id, err: err}
		r.identities[tagID] = res
	}
	if res.err != nil {
		return nil, res.err
	}
	cp := *res.id
	return &cp, nil
}

func (r *Run) resolveIdentity(ctx context.Context, tagID string) (*record.Identity, error) {
	uploadTS, err := r.UploadTimestamp()
	if err != nil {
		return nil, err
	}
	if r.lookups.Phases == nil {
		return nil, &lookup.TagNotFoundError{TagID: tagID}
	}

	customerID := ""
	if IsTBD(tagID) {
		customerID = r.machineCustomer(ctx)
	}

	row, err := r.lookups.Phases.FindRow(ctx, tagID)
	if err != nil {
		r.log.Debug().Err(err).Str("tag_id", tagID).Msg("Row lookup failed")
		return nil, err
	}
	if customerID == "" {
		customerID = row.CustomerID
	}

	crops := make([]any, 0, len(row.Crops))
	for _, c := range row.Crops {
		crops = append(crops, map[string]any{
			"side":      c.Side,
			"crop":      c.Crop,
			"variation": c.Variation,
		})
	}

	return &record.Identity{
		TagID:           tagID,
		CustomerID:      customerID,
		FarmID:          row.FarmID,
		PhaseID:         row.PhaseID,
		RowNumber:       row.RowNumber,
		Side:            row.Side,
		Crops:           crops,
		MachineID:       r.Info.MachineID,
		HardwareVersion: DefaultVersion,
		FirmwareVersion: DefaultVersion,
		UploadTimestamp: uploadTS,
		RowSessionID:    envelope.Undefined,
		RecordType:      r.Message.RecordType,
		Resolver:        r,
	}, nil
}

func (r *Run) machineCustomer(ctx context.Context) string {
	machineID := r.Info.MachineID
	if r.lookups.Machines == nil {
		return envelope.Undefined
	}
	customerID, err := r.lookups.Machines.CustomerID(ctx, machineID)
	if err != nil || customerID == "" {
		r.log.Error().Err(err).Str("machine_id", machineID).Msg("Error while getting machine ID")
		return envelope.Undefined
	}
	return customerID
}

// RowSessionID returns location.rsid, then rsid, then Undefined.
func RowSessionID(row stagefile.Row) string {
	if loc, ok := row["location"].(map[string]any); ok {
		if s := record.ToString(loc["rsid"]); s != "" {
			return s
		}
	}
	if s := record.ToString(row["rsid"]); s != "" {
		return s
	}
	return envelope.Undefined
}

// Build merges id with src and validates the result.
func (r *Run) Build(ctx context.Context, id *record.Identity, src record.Source) (record.Canonical, error) {
	if r.validator == nil {
		return nil, fmt.Errorf("%w: no validator", record.ErrUnknownSchema)
	}
	return record.Build(ctx, id, src, r.validator)
}

func (r *Run) location(ctx context.Context, farmID string) (*time.Location, error) {
	if loc, ok := r.locations[farmID]; ok {
		return loc, nil
	}
	load := func() (*time.Location, error) {
		if r.lookups.Farms == nil {
			return time.UTC, nil
		}
		name, err := r.lookups.Farms.Timezone(ctx, farmID)
		if err != nil {
			return nil, err
		}
		return time.LoadLocation(name)
	}

	var (
		loc *time.Location
		err error
	)
	if r.caches != nil && r.caches.Timezones != nil {
		var hit bool
		loc, hit, err = r.caches.Timezones.GetOrLoad(farmID, load)
		metrics.RecordCacheLookup("timezone", hit)
	} else {
		loc, err = load()
	}
	if err != nil {
		return nil, fmt.Errorf("timezone of farm %s: %w", farmID, err)
	}
	r.locations[farmID] = loc
	return loc, nil
}

// FarmLocalDatetime implements record.Resolver.
func (r *Run) FarmLocalDatetime(ctx context.Context, farmID string, captureUnix int64) (string, error) {
	key := farmID + "|" + strconv.FormatInt(captureUnix, 10)
	if s, ok := r.localTimes[key]; ok {
		return s, nil
	}
	loc, err := r.location(ctx, farmID)
	if err != nil {
		return "", err
	}
	s := time.Unix(captureUnix, 0).In(loc).Format(record.LocalDatetimeLayout)
	r.localTimes[key] = s
	return s, nil
}

// ConvertToFarmTimezone parses a UTC time written in layout and formats it
// in the farm timezone.
func (r *Run) ConvertToFarmTimezone(ctx context.Context, farmID, utc, layout string) (string, error) {
	t, err := time.ParseInLocation(layout, utc, time.UTC)
	if err != nil {
		return "", fmt.Errorf("parse utc time %q: %w", utc, err)
	}
	return r.FarmLocalDatetime(ctx, farmID, t.Unix())
}

// PostLength implements record.Resolver.
func (r *Run) PostLength(ctx context.Context, phaseID, side string) (int, error) {
	key := phaseID + "|" + strings.ToLower(side)
	if n, ok := r.postLengths[key]; ok {
		return n, nil
	}
	if r.lookups.Phases == nil {
		return 0, nil
	}
	load := func() (int, error) {
		return r.lookups.Phases.PostLength(ctx, phaseID, side)
	}

	var (
		n   int
		err error
	)
	if r.caches != nil && r.caches.PostLengths != nil {
		var hit bool
		n, hit, err = r.caches.PostLengths.GetOrLoad(key, load)
		metrics.RecordCacheLookup("post_length", hit)
	} else {
		n, err = load()
	}
	if err != nil {
		return 0, fmt.Errorf("post length of phase %s side %s: %w", phaseID, side, err)
	}
	r.postLengths[key] = n
	return n, nil
}

// CartesianLocation implements record.Resolver.
func (r *Run) CartesianLocation(ctx context.Context, phaseID string, rowNumber int, side string, distanceCM, heightCM int) (map[string]any, error) {
	if r.lookups.Phases == nil {
		return record.Origin(), nil
	}
	c, err := r.lookups.Phases.CartesianLocation(ctx, phaseID, rowNumber, side, distanceCM, heightCM)
	if err != nil {
		r.log.Error().Err(err).
			Str("phase_id", phaseID).
			Int("row_number", rowNumber).
			Str("side", side).
			Msg("Error while computing the cartesian location")
		return nil, err
	}
	return c.Map(), nil
}

// LabelCategory maps a label to its catalog category, or the label itself
// when the catalog has none.
func (r *Run) LabelCategory(ctx context.Context, label string) string {
	if r.categories == nil {
		r.categories = map[string]string{}
		if r.lookups.Labels != nil {
			cats, err := r.lookups.Labels.Categories(ctx)
			if err != nil {
				r.log.Warn().Err(err).Msg("Label catalog unavailable")
			} else {
				r.categories = cats
			}
		}
	}
	if c, ok := r.categories[label]; ok && c != "" {
		return c
	}
	return label
}
