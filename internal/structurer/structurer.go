// Package structurer reconstructs readable page text from unordered
// positioned text fragments produced by the PDF parser.
package structurer

import (
	"regexp"
	"sort"
	"strings"
)

// Fragment is one positioned glyph run on a page. Coordinates are
// measured from the top-left of the page; parsers working in PDF space
// convert before calling Structure (or pass the page height and let
// Structure flip).
type Fragment struct {
	Text  string
	X     float64
	Y     float64
	Width float64
}

const (
	// rowTolerance is the Y band within which fragments are considered
	// part of the same visual row.
	rowTolerance = 8.0

	// Gap thresholds between a fragment and the right edge of the
	// previous one on the same row.
	contiguousGap = 2.0  // <= this: glyph runs are joined directly
	columnGap     = 15.0 // > this: treated as a column break
)

var spaceRe = regexp.MustCompile(`\s+`)

type row struct {
	refY  float64
	frags []Fragment
}

// Structure clusters fragments into rows, orders them top-to-bottom and
// left-to-right, and joins them into readable lines. Fragments within a
// row are separated by nothing, a space, or a " | " column marker
// depending on the horizontal gap. pageHeight > 0 means the fragments
// carry bottom-up PDF coordinates and are flipped first.
//
// Returns the empty string for an empty fragment set. Never fails:
// fragments with no text are skipped, and fragments whose transform was
// unreadable arrive as x=0,y=0 and simply cluster at the top.
func Structure(fragments []Fragment, pageHeight float64) string {
	usable := make([]Fragment, 0, len(fragments))
	for _, f := range fragments {
		if f.Text == "" {
			continue
		}
		if pageHeight > 0 {
			f.Y = pageHeight - f.Y
		}
		usable = append(usable, f)
	}
	if len(usable) == 0 {
		return ""
	}

	// Deterministic clustering regardless of input order: cluster in
	// reading order, not arrival order.
	sort.SliceStable(usable, func(i, j int) bool {
		if usable[i].Y != usable[j].Y {
			return usable[i].Y < usable[j].Y
		}
		if usable[i].X != usable[j].X {
			return usable[i].X < usable[j].X
		}
		return usable[i].Text < usable[j].Text
	})

	rows := clusterRows(usable)

	var lines []string
	for _, r := range rows {
		line := joinRow(r.frags)
		line = strings.TrimSpace(spaceRe.ReplaceAllString(line, " "))
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// clusterRows assigns each fragment to the first row whose reference Y
// is within rowTolerance, creating a new row otherwise. Input must
// already be sorted top-to-bottom, which keeps rows ordered as built.
func clusterRows(fragments []Fragment) []*row {
	var rows []*row
	for _, f := range fragments {
		var target *row
		for _, r := range rows {
			d := f.Y - r.refY
			if d < 0 {
				d = -d
			}
			if d <= rowTolerance {
				target = r
				break
			}
		}
		if target == nil {
			target = &row{refY: f.Y}
			rows = append(rows, target)
		}
		target.frags = append(target.frags, f)
	}
	return rows
}

// joinRow orders a row's fragments left-to-right and joins them using
// the gap heuristic. A gap wider than columnGap reconstructs a column
// boundary split across the source layout.
func joinRow(frags []Fragment) string {
	sort.SliceStable(frags, func(i, j int) bool {
		return frags[i].X < frags[j].X
	})

	var sb strings.Builder
	for i, f := range frags {
		if i > 0 {
			prev := frags[i-1]
			gap := f.X - (prev.X + prev.Width)
			switch {
			case gap > columnGap:
				sb.WriteString(" | ")
			case gap > contiguousGap:
				sb.WriteString(" ")
			}
		}
		sb.WriteString(f.Text)
	}
	return sb.String()
}
