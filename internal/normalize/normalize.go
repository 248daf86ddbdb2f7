// Package normalize standardizes the combined matrix with statistics
// computed only from a fixed training window, so held-out periods can
// never influence model inputs.
package normalize

import (
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/powerprep/internal/matrix"
)

// ErrStats marks a training window that is empty or out of range
// relative to the combined matrix. Fatal at normalization start.
var ErrStats = eris.New("normalize: unusable training window")

// Window is the contiguous range of calendar years whose rows feed the
// statistics. Inclusive on both ends.
type Window struct {
	StartYear int
	EndYear   int
}

// Contains reports whether a row year falls inside the window.
func (w Window) Contains(year int) bool {
	return year >= w.StartYear && year <= w.EndYear
}

// Params holds one column's training statistics. Std is the sample
// standard deviation (n-1 divisor) over non-missing training values.
// Degenerate is set when fewer than two values exist or the deviation is
// zero; such columns normalize to a constant 0.
type Params struct {
	Entity     string
	Mean       float64
	Std        float64
	Degenerate bool
}

// ComputeParams derives per-column statistics from the training rows of
// the combined matrix. It reads nothing outside the window, which is the
// leak-free guarantee: perturbing any held-out value cannot change the
// result.
func ComputeParams(w *matrix.Wide, win Window) ([]Params, error) {
	if win.StartYear > win.EndYear {
		return nil, eris.Wrapf(ErrStats, "start year %d after end year %d", win.StartYear, win.EndYear)
	}

	var trainRows []int
	for r, ts := range w.Timestamps {
		if win.Contains(ts.Year()) {
			trainRows = append(trainRows, r)
		}
	}
	if len(trainRows) == 0 {
		return nil, eris.Wrapf(ErrStats, "no rows in years %d-%d", win.StartYear, win.EndYear)
	}

	params := make([]Params, len(w.Columns))
	for c, name := range w.Columns {
		var n int
		var sum float64
		for _, r := range trainRows {
			if v := w.Values[r][c]; !matrix.IsMissing(v) {
				n++
				sum += v
			}
		}

		p := Params{Entity: name}
		if n < 2 {
			p.Degenerate = true
			if n == 1 {
				p.Mean = sum
			}
			params[c] = p
			continue
		}

		p.Mean = sum / float64(n)
		var sq float64
		for _, r := range trainRows {
			if v := w.Values[r][c]; !matrix.IsMissing(v) {
				d := v - p.Mean
				sq += d * d
			}
		}
		p.Std = math.Sqrt(sq / float64(n-1))
		p.Degenerate = p.Std == 0

		params[c] = p
	}

	return params, nil
}

// Apply standardizes every row of the matrix, training and held-out
// alike, using previously computed parameters. Missing cells stay
// missing; degenerate columns come out exactly 0 in every row, since a
// zero-variance signal carries nothing to normalize. Never imputes.
func Apply(w *matrix.Wide, params []Params) (*matrix.Wide, error) {
	byEntity := make(map[string]Params, len(params))
	for _, p := range params {
		byEntity[p.Entity] = p
	}

	out := w.Clone()
	for c, name := range out.Columns {
		p, ok := byEntity[name]
		if !ok {
			return nil, eris.Wrapf(matrix.ErrIntegrity, "no parameters for column %q", name)
		}

		for r := range out.Values {
			v := out.Values[r][c]
			switch {
			case p.Degenerate:
				out.Values[r][c] = 0
			case matrix.IsMissing(v):
				// passes through
			default:
				out.Values[r][c] = (v - p.Mean) / p.Std
			}
		}
	}

	return out, nil
}
