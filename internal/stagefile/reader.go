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
	"iter"
	"strings"
)

const (
	// Delimiter separates cells.
	Delimiter = ';'
	// Quote wraps non-numeric cells.
	Quote = '"'
	// Escape makes the following character literal.
	Escape = '\\'

	// PayloadColumn is the sole column of a single-payload file.
	PayloadColumn = "payload"
	// ListColumn is the sole column of a file written in list mode.
	ListColumn = "col_0"
)

var (
	// ErrNoHeader is returned when the input has no header line.
	ErrNoHeader = errors.New("stage file has no header")

	// ErrMalformedRow is returned for a row with more cells than the header
	// or an unterminated quoted cell.
	ErrMalformedRow = errors.New("malformed stage file row")
)

// Row is one parsed input line.
type Row map[string]any

// cell is one raw field and whether it was quoted on disk.
type cell struct {
	text   string
	quoted bool
}

// Reader streams rows out of a staged CSV file.
type Reader struct {
	br      *bufio.Reader
	size    int
	header  []string
	line    int
	payload bool

	// pending holds the rest of a list payload.
	pending []Row
}

// Option configures a Reader.
type Option func(*Reader)

// WithBufferSize sets the read buffer size.
func WithBufferSize(n int) Option {
	return func(r *Reader) {
		r.size = n
	}
}

// NewReader reads the header line and returns a Reader positioned at the
// first data row.
func NewReader(src io.Reader, opts ...Option) (*Reader, error) {
	r := &Reader{size: 64 * 1024}
	for _, opt := range opts {
		opt(r)
	}
	r.br = bufio.NewReaderSize(src, r.size)

	cells, err := r.readRecord()
	if err == io.EOF {
		return nil, ErrNoHeader
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	r.header = make([]string, len(cells))
	for i, c := range cells {
		r.header[i] = c.text
	}
	r.payload = len(r.header) == 1 && r.header[0] == PayloadColumn
	return r, nil
}

// Header returns the column names.
func (r *Reader) Header() []string {
	return append([]string(nil), r.header...)
}

// Line returns the number of data rows read so far.
func (r *Reader) Line() int {
	return r.line
}

// Next returns the next row, or io.EOF when the file is exhausted.
//
// In a file whose only column is payload, an object payload is the row and
// a list payload yields one row per element.
func (r *Reader) Next() (Row, error) {
	for {
		if len(r.pending) > 0 {
			row := r.pending[0]
			r.pending = r.pending[1:]
			return row, nil
		}

		cells, err := r.readRecord()
		if err != nil {
			return nil, err
		}
		r.line++

		if len(cells) > len(r.header) {
			return nil, fmt.Errorf("%w: line %d has %d cells, header has %d",
				ErrMalformedRow, r.line, len(cells), len(r.header))
		}

		row := make(Row, len(r.header))
		for i, name := range r.header {
			if i < len(cells) {
				row[name] = cells[i].value()
			} else {
				row[name] = nil
			}
		}
		if !r.payload {
			return row, nil
		}

		switch inner := row[PayloadColumn].(type) {
		case map[string]any:
			return Row(inner), nil
		case []any:
			rows, err := payloadRows(inner, r.line)
			if err != nil {
				return nil, err
			}
			r.pending = rows
		default:
			return row, nil
		}
	}
}

func payloadRows(items []any, line int) ([]Row, error) {
	rows := make([]Row, 0, len(items))
	for i, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: line %d payload element %d is %T, not an object",
				ErrMalformedRow, line, i, item)
		}
		rows = append(rows, Row(m))
	}
	return rows, nil
}

// All iterates over the remaining rows. Iteration stops after the first
// error is yielded.
func (r *Reader) All() iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		for {
			row, err := r.Next()
			if err == io.EOF {
				return
			}
			if !yield(row, err) || err != nil {
				return
			}
		}
	}
}

// readRecord reads one logical record. Quoted cells may span lines.
// A blank line is skipped.
func (r *Reader) readRecord() ([]cell, error) {
	for {
		cells, blank, err := r.scanRecord()
		if err != nil {
			return nil, err
		}
		if !blank {
			return cells, nil
		}
	}
}

func (r *Reader) scanRecord() (cells []cell, blank bool, err error) {
	var (
		sb      strings.Builder
		quoted  bool
		inQuote bool
		started bool
	)

	flush := func() {
		cells = append(cells, cell{text: sb.String(), quoted: quoted})
		sb.Reset()
		quoted = false
	}

	for {
		c, _, rerr := r.br.ReadRune()
		if rerr == io.EOF {
			if inQuote {
				return nil, false, fmt.Errorf("%w: unterminated quoted cell", ErrMalformedRow)
			}
			if !started {
				return nil, false, io.EOF
			}
			flush()
			return cells, false, nil
		}
		if rerr != nil {
			return nil, false, rerr
		}

		if inQuote {
			switch c {
			case Escape:
				next, _, err := r.br.ReadRune()
				if err != nil {
					return nil, false, fmt.Errorf("%w: dangling escape", ErrMalformedRow)
				}
				sb.WriteRune(next)
			case Quote:
				next, _, err := r.br.ReadRune()
				if err == nil && next == Quote {
					sb.WriteRune(Quote)
					continue
				}
				if err == nil {
					_ = r.br.UnreadRune()
				}
				inQuote = false
			default:
				sb.WriteRune(c)
			}
			continue
		}

		switch c {
		case '\r':
			continue
		case '\n':
			if !started {
				return nil, true, nil
			}
			flush()
			return cells, false, nil
		case Delimiter:
			started = true
			flush()
		case Quote:
			started = true
			quoted = true
			inQuote = true
		case Escape:
			started = true
			next, _, err := r.br.ReadRune()
			if err != nil {
				return nil, false, fmt.Errorf("%w: dangling escape", ErrMalformedRow)
			}
			sb.WriteRune(next)
		default:
			started = true
			sb.WriteRune(c)
		}
	}
}
