// Cropstream - Greenhouse Sensor Record Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cropstream

package stagefile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
)

var (
	// ErrEmptyContent is returned when Write is given nil or empty content.
	ErrEmptyContent = errors.New("stage content is empty or nil")

	// ErrUnsupportedContent is returned for content that is neither a map
	// nor a list.
	ErrUnsupportedContent = errors.New("stage content must be a map or a list")

	// ErrModeMismatch is returned when a map is written to a list-mode file
	// or the reverse.
	ErrModeMismatch = errors.New("stage content does not match the file mode")

	// ErrClosed is returned when writing to a closed Writer.
	ErrClosed = errors.New("stage file is closed")
)

type mode int

const (
	modeUnset mode = iota
	modeDict
	modeList
)

// Writer streams heterogeneous rows into a single column set. The first
// Write fixes the mode and the columns.
type Writer struct {
	bw      *bufio.Writer
	mode    mode
	columns []string
	rows    int
	closed  bool
}

// NewWriter returns a Writer on w. Nothing is written until the first row.
func NewWriter(w io.Writer) *Writer {
	return &Writer{bw: bufio.NewWriter(w)}
}

// Write adds content to the file. A map[string]any is one row whose sorted
// keys become the columns (dict mode); a []any writes one row per element
// under col_0 (list mode). Keys missing from later rows are written empty
// and keys not in the column set are dropped.
func (w *Writer) Write(content any) error {
	if w.closed {
		return ErrClosed
	}

	switch c := content.(type) {
	case nil:
		return ErrEmptyContent
	case map[string]any:
		if len(c) == 0 {
			return ErrEmptyContent
		}
		return w.writeDict(c)
	case Row:
		if len(c) == 0 {
			return ErrEmptyContent
		}
		return w.writeDict(c)
	case []any:
		if len(c) == 0 {
			return ErrEmptyContent
		}
		return w.writeList(c)
	default:
		return fmt.Errorf("%w: got %T", ErrUnsupportedContent, content)
	}
}

func (w *Writer) writeDict(row map[string]any) error {
	switch w.mode {
	case modeUnset:
		keys := make([]string, 0, len(row))
		for k := range row {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		if err := w.start(modeDict, keys); err != nil {
			return err
		}
	case modeList:
		return fmt.Errorf("%w: file is in list mode", ErrModeMismatch)
	}

	cells := make([]string, len(w.columns))
	for i, col := range w.columns {
		s, err := formatCell(row[col])
		if err != nil {
			return fmt.Errorf("column %s: %w", col, err)
		}
		cells[i] = s
	}
	return w.writeLine(cells)
}

func (w *Writer) writeList(items []any) error {
	switch w.mode {
	case modeUnset:
		if err := w.start(modeList, []string{ListColumn}); err != nil {
			return err
		}
	case modeDict:
		return fmt.Errorf("%w: file is in dict mode", ErrModeMismatch)
	}

	for _, item := range items {
		s, err := formatCell(item)
		if err != nil {
			return fmt.Errorf("column %s: %w", ListColumn, err)
		}
		if err := w.writeLine([]string{s}); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) start(m mode, columns []string) error {
	w.mode = m
	w.columns = columns
	header := make([]string, len(columns))
	for i, c := range columns {
		header[i] = quote(c)
	}
	_, err := w.bw.WriteString(strings.Join(header, string(Delimiter)) + "\n")
	return err
}

func (w *Writer) writeLine(cells []string) error {
	if _, err := w.bw.WriteString(strings.Join(cells, string(Delimiter)) + "\n"); err != nil {
		return err
	}
	w.rows++
	return nil
}

// Columns returns the column set fixed by the first write.
func (w *Writer) Columns() []string {
	return append([]string(nil), w.columns...)
}

// Empty reports whether no rows have been written.
func (w *Writer) Empty() bool {
	return w.rows == 0
}

// Rows returns the number of rows written so far.
func (w *Writer) Rows() int {
	return w.rows
}

// Close flushes buffered output and returns the number of rows written.
func (w *Writer) Close() (int, error) {
	if w.closed {
		return 0, ErrClosed
	}
	w.closed = true
	if err := w.bw.Flush(); err != nil {
		return w.rows, fmt.Errorf("flush stage file: %w", err)
	}
	return w.rows, nil
}
