// Cropstream - Greenhouse Sensor Record Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cropstream

package processor

// Stats is the outcome of one Process call. Errors and Messages are never
// nil, so an outcome with nil slices did not come from a Processor.
type Stats struct {
	Processed             bool     `json:"processed"`
	Continue              bool     `json:"continue"`
	Errors                []string `json:"errors"`
	Messages              []string `json:"messages"`
	OutputLinesCreated    int      `json:"output_lines_created"`
	InputLinesRejected    int      `json:"input_lines_rejected"`
	InputLinesTBDRejected int      `json:"input_lines_tbd_rejected"`
	StageFilesTotal       int      `json:"stage_files_total"`
	StageFilesProcessed   int      `json:"stage_files_processed"`
	StageFilesRejected    int      `json:"stage_files_rejected"`
}

func newStats() *Stats {
	return &Stats{
		Continue: true,
		Errors:   []string{},
		Messages: []string{},
	}
}

func (s *Stats) setProcessed(v bool) {
	s.Processed = v
	s.Continue = !v
}

func (s *Stats) addError(err error) {
	s.Errors = append(s.Errors, err.Error())
}
