// Cropstream - Greenhouse Sensor Record Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cropstream

package processor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"runtime/debug"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/cropstream/internal/cloud"
	"github.com/tomtom215/cropstream/internal/envelope"
	"github.com/tomtom215/cropstream/internal/filename"
	"github.com/tomtom215/cropstream/internal/logging"
	"github.com/tomtom215/cropstream/internal/lookup"
	"github.com/tomtom215/cropstream/internal/metrics"
	"github.com/tomtom215/cropstream/internal/record"
	"github.com/tomtom215/cropstream/internal/stagefile"
)

// ProgressInterval is how many input lines pass between progress logs.
const ProgressInterval = 10000

// ErrRowPanic wraps a panic raised while transforming a single row.
var ErrRowPanic = errors.New("panic while transforming row")

// Deps are the collaborators a Processor needs.
type Deps struct {
	Stage     *cloud.Stage
	Lookups   lookup.Lookups
	Validator *record.Validator

	// Caches is optional.
	Caches *Caches

	// TempDir holds the per-event output file. Empty means os.TempDir().
	TempDir string

	Now func() time.Time
}

// Processor runs one Strategy over decoded events.
type Processor struct {
	strategy Strategy
	deps     Deps
	logger   zerolog.Logger
}

// New returns a Processor for strategy. A nil Validator is replaced by the
// default embedded schema set.
func New(strategy Strategy, deps Deps) *Processor {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Validator == nil {
		if v, err := record.DefaultValidator(); err == nil {
			deps.Validator = v
		}
	}
	return &Processor{
		strategy: strategy,
		deps:     deps,
		logger:   logging.WithComponent("processor").With().Str("processor", strategy.Name()).Logger(),
	}
}

// Strategy returns the processor's strategy.
func (p *Processor) Strategy() Strategy {
	return p.strategy
}

func eventLogger(l zerolog.Logger, msg *envelope.StreamMessage, info filename.Info) zerolog.Logger {
	kv := append([]string{
		"record_type", msg.RecordType,
		"file", path.Base(msg.Filename),
	}, info.LogFields()...)
	return logging.WithFields(l, kv...)
}

type panicError struct {
	value any
	stack string
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}

// Process runs the full pipeline for one raw transport record. It never
// panics and never returns an error; failures are reported in Stats and on
// the invalid stream.
func (p *Processor) Process(ctx context.Context, raw []byte) *Stats {
	stats := newStats()
	start := time.Now()

	msg, err := envelope.DecodeRecord(raw)
	if err != nil {
		stats.addError(err)
		p.invalidateRaw(ctx, raw, err)
		metrics.RecordEvent("unknown", metrics.ResultInvalid, time.Since(start))
		return stats
	}
	if !slices.Contains(p.strategy.Types(), msg.RecordType) {
		metrics.RecordEvent(msg.RecordType, metrics.ResultSkipped, time.Since(start))
		return stats
	}

	run := newRun(p, msg)
	run.log.Info().Msgf("Starting %s", msg.RecordType)
	stats.setProcessed(true)

	if err := p.processEvent(ctx, run, stats); err != nil {
		var pe *panicError
		stack := ""
		if errors.As(err, &pe) {
			stack = pe.stack
		} else {
			stack = string(debug.Stack())
		}
		stats.addError(err)
		run.log.Error().Err(err).Msg("Error while processing the event")
		p.invalidate(ctx, run, err, stack)
		metrics.RecordEvent(msg.RecordType, metrics.ResultInvalid, time.Since(start))
		return stats
	}

	run.log.Info().
		Int("output_lines_created", stats.OutputLinesCreated).
		Int("stage_files_processed", stats.StageFilesProcessed).
		Int("stage_files_rejected", stats.StageFilesRejected).
		Msg("File processed successfully")
	stats.Errors = stats.Errors[:0]
	metrics.RecordOutputLines(msg.RecordType, stats.OutputLinesCreated)
	metrics.RecordEvent(msg.RecordType, metrics.ResultProcessed, time.Since(start))
	return stats
}

// processEvent covers everything after type acceptance. Any error or panic
// invalidates the event.
func (p *Processor) processEvent(ctx context.Context, run *Run, stats *Stats) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r, stack: string(debug.Stack())}
		}
	}()

	out, err := newOutput(p.deps.TempDir)
	if err != nil {
		return err
	}
	defer out.remove()

	var first record.Canonical
	stats.StageFilesTotal = len(run.Message.StagedFilePaths)
	for _, stagedPath := range run.Message.StagedFilePaths {
		res := p.processFile(ctx, run, stagedPath)
		stats.InputLinesRejected += res.Rejected
		stats.InputLinesTBDRejected += res.TBDRejected

		if res.Err != nil {
			stats.StageFilesRejected++
			metrics.RecordStageFile(run.Message.RecordType, true)
			run.log.Info().Err(res.Err).Str("file_path", stagedPath).Msg("Error while processing stage files")
			run.log.Warn().Str("file_path", stagedPath).Msg("No output was created")
			continue
		}

		for _, rec := range res.Outputs {
			if err := out.w.Write(rec); err != nil {
				return fmt.Errorf("write output line: %w", err)
			}
		}
		if first == nil && len(res.Outputs) > 0 {
			first = res.Outputs[0]
		}
		stats.OutputLinesCreated += len(res.Outputs)
		stats.StageFilesProcessed++
		metrics.RecordStageFile(run.Message.RecordType, false)
		if len(res.Outputs) == 0 {
			run.log.Warn().Str("file_path", stagedPath).Msg("No output was created")
		}
	}

	key, err := p.closeOutput(ctx, run, out)
	if err != nil {
		return err
	}
	if key == "" || stats.OutputLinesCreated == 0 {
		return nil
	}
	if err := p.publishProcessed(ctx, run, first, key); err != nil {
		return err
	}
	p.markProcessed(ctx, run, first)
	return nil
}

// FileResult is the outcome of one staged file. Outputs of a failed file
// are never written.
type FileResult struct {
	Outputs     []record.Canonical
	Tags        []string
	Inputs      int
	Rejected    int
	TBDRejected int
	Err         error
}

func (p *Processor) processFile(ctx context.Context, run *Run, stagedPath string) (res FileResult) {
	run.StagedPath = stagedPath
	run.log.Info().Str("file_path", stagedPath).Msgf("Processing %s", run.Message.RecordType)

	// Row panics are handled per row; this only covers file preparation.
	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("panic: %v", r)
			res.Outputs = nil
		}
	}()

	rc, err := p.deps.Stage.OpenStageFile(ctx, stagedPath)
	if err != nil {
		res.Err = err
		return res
	}
	defer rc.Close()

	reader, err := stagefile.NewReader(rc)
	if err != nil {
		res.Err = fmt.Errorf("open stage file %s: %w", stagedPath, err)
		return res
	}

	if fp, ok := p.strategy.(FileProcessor); ok {
		rows, err := readAll(reader)
		if err != nil {
			res.Err = err
			return res
		}
		if err := fp.PrepareFile(ctx, run, rows); err != nil {
			res.Err = err
			return res
		}
		for _, row := range rows {
			if err := p.processRow(ctx, run, row, &res); err != nil {
				res.Err = err
				res.Outputs = nil
				return res
			}
		}
	} else {
		for row, err := range reader.All() {
			if err != nil {
				res.Err = fmt.Errorf("read stage file %s: %w", stagedPath, err)
				res.Outputs = nil
				return res
			}
			if err := p.processRow(ctx, run, row, &res); err != nil {
				res.Err = err
				res.Outputs = nil
				return res
			}
		}
	}

	p.checkTags(run, stagedPath, res.Tags)
	return res
}

func readAll(r *stagefile.Reader) ([]stagefile.Row, error) {
	var rows []stagefile.Row
	for {
		row, err := r.Next()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read stage file: %w", err)
		}
		rows = append(rows, row)
	}
}

// processRow transforms one row. It returns an error only when the row
// failure must reject the whole file.
func (p *Processor) processRow(ctx context.Context, run *Run, row stagefile.Row, res *FileResult) error {
	res.Inputs++
	if res.Inputs%ProgressInterval == 0 {
		run.log.Info().Msgf("Processing %s content: %d processed.", run.Message.RecordType, res.Inputs)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tagID, outs, err := p.transformRow(ctx, run, row, res)
	if err == nil {
		res.Outputs = append(res.Outputs, outs...)
		return nil
	}

	if IsTBD(tagID) {
		res.TBDRejected++
		metrics.RecordRowRejected(run.Message.RecordType, true)
	} else {
		res.Rejected++
		metrics.RecordRowRejected(run.Message.RecordType, false)
		run.log.Info().
			Interface("input_line", row).
			Err(err).
			Msg("Error while creating the output payload")
	}
	if h, ok := p.strategy.(RowErrorHandler); ok {
		return h.RowError(row, err)
	}
	return nil
}

// transformRow runs the strategy on one row. A panic becomes a row error.
// The tag is recorded in res.Tags as soon as it is known.
func (p *Processor) transformRow(ctx context.Context, run *Run, row stagefile.Row, res *FileResult) (tagID string, outs []record.Canonical, err error) {
	defer func() {
		if r := recover(); r != nil {
			outs = nil
			err = fmt.Errorf("%w: %v", ErrRowPanic, r)
			run.log.Error().Str("stack", string(debug.Stack())).Msg("Recovered panic while transforming a row")
		}
	}()
	tagID, err = p.strategy.TagID(row)
	if err != nil {
		return tagID, nil, err
	}
	if !slices.Contains(res.Tags, tagID) {
		res.Tags = append(res.Tags, tagID)
	}
	outs, err = p.strategy.Transform(ctx, run, row)
	return tagID, outs, err
}

// checkTags reports files whose rows disagree on their tag, or disagree
// with the tag in the file name.
func (p *Processor) checkTags(run *Run, stagedPath string, tags []string) {
	tags = slices.DeleteFunc(slices.Clone(tags), func(t string) bool {
		if IsTBD(t) {
			run.log.Info().Str("file_path", stagedPath).Msg("Tag ID TBD was found in the stage file")
			return true
		}
		return false
	})
	if len(tags) > 1 {
		run.log.Warn().Str("file_path", stagedPath).Strs("tag_ids", tags).
			Msg("More than one Tag ID was found in the stage file")
	}

	fileTag := filename.TagFromBase(stagedPath)
	if fileTag == filename.Undefined {
		return
	}
	for _, t := range tags {
		if t != fileTag {
			run.log.Warn().
				Str("file_path", stagedPath).
				Str("tag_id", t).
				Str("filename_tag_id", fileTag).
				Msgf("The Tag ID <<%s>> didn't match with the same Tag ID in the filename <<%s>>", t, fileTag)
		}
	}
}

type output struct {
	f *os.File
	w *stagefile.Writer
}

func newOutput(dir string) (*output, error) {
	f, err := os.CreateTemp(dir, "cropstream-out-*.csv")
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}
	return &output{f: f, w: stagefile.NewWriter(f)}, nil
}

func (o *output) remove() {
	_ = o.f.Close()
	_ = os.Remove(o.f.Name())
}

// closeOutput flushes the event output and uploads it. It returns the
// destination key, or "" when nothing was written.
func (p *Processor) closeOutput(ctx context.Context, run *Run, out *output) (string, error) {
	rows, err := out.w.Close()
	if err != nil {
		return "", err
	}
	if err := out.f.Sync(); err != nil {
		return "", fmt.Errorf("sync output file: %w", err)
	}
	if rows == 0 {
		run.log.Warn().Msg("Stage file is empty, nothing to upload")
		return "", nil
	}

	key := p.deps.Stage.DestinationKey(run.Message.RecordType, run.Message.Filename)
	if err := p.deps.Stage.UploadStage(ctx, out.f.Name(), key); err != nil {
		return "", fmt.Errorf("upload output file: %w", err)
	}
	run.log.Info().Str("key", key).Int("rows", rows).Msg("Output file uploaded")
	return key, nil
}

// envelopeExtra takes the envelope context from the first written record.
func envelopeExtra(rec record.Canonical) envelope.Extra {
	str := func(keys ...string) string {
		s, err := record.LookupString(rec, keys...)
		if err != nil {
			return ""
		}
		return s
	}
	rowNumber, _ := record.LookupInt(rec, "row_location", "row_number")
	return envelope.Extra{
		CustomerID:      str("customer_id"),
		FarmID:          str("farm_id"),
		PhaseID:         str("phase_id"),
		RowSessionID:    str("row_session_id"),
		MachineID:       str("machine_id"),
		HardwareVersion: str("hardware_version"),
		FirmwareVersion: str("firmware_version"),
		TagID:           str("row_location", "tag_id"),
		RowNumber:       int(rowNumber),
		Side:            str("row_location", "side"),
	}
}

func (p *Processor) publishProcessed(ctx context.Context, run *Run, first record.Canonical, key string) error {
	msg := *run.Message
	if t, ok := p.strategy.(OutgoingTyper); ok {
		msg.RecordType = t.OutgoingType()
	}

	extra := envelopeExtra(first)
	extra.OutgoingTimestamp = envelope.OutgoingTimestamp(p.deps.Now())
	extra.Payload = []string{key}
	extra.Direction = envelope.Undefined
	if d, ok := p.strategy.(EventDirectioner); ok {
		extra.Direction = d.EventDirection(run)
	}

	if err := p.deps.Stage.PutProcessed(ctx, envelope.NewProcessedEnvelope(&msg, extra)); err != nil {
		return fmt.Errorf("send to processed data stream: %w", err)
	}
	run.log.Debug().Str("key", key).Msg("Processed envelope sent")
	return nil
}

// markProcessed advances the phase data status. Failures are logged only.
func (p *Processor) markProcessed(ctx context.Context, run *Run, first record.Canonical) {
	phaseID, err := record.LookupString(first, "phase_id")
	if err != nil || phaseID == "" || phaseID == envelope.Undefined || p.deps.Lookups.Phases == nil {
		return
	}
	if err := p.deps.Lookups.Phases.MarkProcessed(ctx, phaseID); err != nil {
		run.log.Info().Err(err).Str("phase_id", phaseID).Msg("Error while marking the phase as processed")
	}
}

func (p *Processor) invalidate(ctx context.Context, run *Run, cause error, stack string) {
	run.Message.Invalidate()
	inv := envelope.NewInvalidEnvelope(run.Message, cause.Error(), p.strategy.Name(), stack)
	if err := p.deps.Stage.PutInvalid(ctx, inv); err != nil {
		run.log.Error().Err(err).Str("cause", cause.Error()).
			Msg("CRITICAL ERROR while sending to invalid stream")
	}
}

func (p *Processor) invalidateRaw(ctx context.Context, raw []byte, cause error) {
	inv := envelope.NewMinimalInvalidEnvelope(raw, cause.Error(), string(debug.Stack()), p.deps.Now())
	if err := p.deps.Stage.PutInvalid(ctx, inv); err != nil {
		p.logger.Error().Err(err).Str("cause", cause.Error()).
			Msg("CRITICAL ERROR while sending to invalid stream")
	}
}
