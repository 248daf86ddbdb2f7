// Package timeline rebuilds the canonical hourly index for a calendar
// year and fills short interior gaps.
package timeline

import (
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/powerprep/internal/matrix"
)

// HoursInYear returns 8760, or 8784 for leap years.
func HoursInYear(year int) int {
	if isLeap(year) {
		return 8784
	}
	return 8760
}

func isLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// YearIndex generates every hour of a year, from Jan 1 00:00 through
// Dec 31 23:00 UTC. The length is verified against the leap-aware hour
// count; a mismatch is a defect, not bad input.
func YearIndex(year int) ([]time.Time, error) {
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(year+1, time.January, 1, 0, 0, 0, 0, time.UTC)

	idx := make([]time.Time, 0, HoursInYear(year))
	for ts := start; ts.Before(end); ts = ts.Add(time.Hour) {
		idx = append(idx, ts)
	}

	if len(idx) != HoursInYear(year) {
		return nil, eris.Wrapf(matrix.ErrIntegrity,
			"year %d index has %d hours, want %d", year, len(idx), HoursInYear(year))
	}
	return idx, nil
}

// Reconstruct reindexes a sparse per-year matrix onto the complete hourly
// index for that year. Observed rows align by timestamp; absent hours
// become fully missing rows. Source rows outside the year are a defect.
func Reconstruct(w *matrix.Wide, year int) (*matrix.Wide, error) {
	idx, err := YearIndex(year)
	if err != nil {
		return nil, err
	}

	out := matrix.New(idx, w.Columns)

	rowAt := make(map[time.Time]int, len(idx))
	for i, ts := range idx {
		rowAt[ts] = i
	}

	for r, ts := range w.Timestamps {
		i, ok := rowAt[ts.UTC()]
		if !ok {
			return nil, eris.Wrapf(matrix.ErrIntegrity,
				"row %s outside year %d", ts.Format(matrix.TimeLayout), year)
		}
		for c, name := range w.Columns {
			j, _ := out.Col(name)
			out.Values[i][j] = w.Values[r][c]
		}
	}

	if err := out.ContainsColumns(w.Columns); err != nil {
		return nil, err
	}
	return out, nil
}

// FillShortGaps forward-fills, per column, missing runs no longer than
// maxRun hours from the last observed value. Longer runs stay missing,
// and nothing before a column's first observation is ever filled. The
// bound is exact: a run of maxRun+1 is left untouched entirely.
//
// Callers apply this to a single reconstructed year, so a fill can never
// cross a year boundary.
func FillShortGaps(w *matrix.Wide, maxRun int) {
	if maxRun <= 0 {
		return
	}

	for c := range w.Columns {
		lastSeen := -1
		run := 0
		for r := 0; r < w.Rows(); r++ {
			if !matrix.IsMissing(w.Values[r][c]) {
				lastSeen = r
				run = 0
				continue
			}
			if lastSeen < 0 {
				continue // before first observation
			}
			run++
			if run > maxRun {
				continue
			}
			// A longer run must stay missing in full, so only commit the
			// fill once the run is known to end within the bound.
			if r+1 == w.Rows() || !matrix.IsMissing(w.Values[r+1][c]) {
				for k := r - run + 1; k <= r; k++ {
					w.Values[k][c] = w.Values[lastSeen][c]
				}
			}
		}
	}
}
