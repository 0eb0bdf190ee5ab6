// Cropstream - Greenhouse Sensor Record Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cropstream

package lookup

import (
	"fmt"
	"strings"
)

// DataStatus tracks whether a phase or farm has data attached. It only
// moves forward.
type DataStatus int

const (
	StatusFresh DataStatus = iota
	StatusIncoming
	StatusProcessed
	StatusArchived
)

func (s DataStatus) String() string {
	switch s {
	case StatusFresh:
		return "00-fresh"
	case StatusIncoming:
		return "10-incoming"
	case StatusProcessed:
		return "20-processed"
	case StatusArchived:
		return "30-archived"
	}
	return fmt.Sprintf("unknown(%d)", int(s))
}

// Advance returns the later of s and next.
func (s DataStatus) Advance(next DataStatus) (DataStatus, bool) {
	if next > s {
		return next, true
	}
	return s, false
}

// Row returns the row on side with the given number.
func (p *Phase) Row(side string, rowNumber int) (*Row, bool) {
	key := RowKey(side, rowNumber)
	for i := range p.Rows {
		if p.Rows[i].Key() == key {
			return &p.Rows[i], true
		}
	}
	return nil, false
}

// Cartesian maps a reading at distanceCM along the row and heightCM above
// the rail to phase coordinates. Right-side rows sit across the walkway and
// are measured from the far end.
func (p *Phase) Cartesian(rowNumber int, side string, distanceCM, heightCM int) (Cartesian, error) {
	side = strings.ToLower(side)
	row, ok := p.Row(side, rowNumber)
	if !ok {
		return Cartesian{}, fmt.Errorf("%w: phase %s row %s", ErrRowNotFound, p.PhaseID, RowKey(side, rowNumber))
	}

	var x int
	switch side {
	case "right":
		x = row.RowLength + distanceCM + p.WalkwayWidth
	case "left":
		x = row.RowLength - distanceCM
	default:
		x = distanceCM
	}
	return Cartesian{
		X: x,
		Y: (rowNumber - 1) * row.RowWidth,
		Z: heightCM,
	}, nil
}

// PostLength returns the post length configured for side, or 0 when the
// phase has no post entry for it.
func (p *Phase) PostLength(side string) int {
	for _, post := range p.Posts {
		if strings.EqualFold(post.Side, side) {
			return post.PostLength
		}
	}
	return 0
}
