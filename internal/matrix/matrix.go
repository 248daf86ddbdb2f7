// Package matrix holds the wide hourly matrix shared by every pipeline
// stage: one row per timestamp, one column per entity, NaN for missing.
package matrix

import (
	"math"
	"sort"
	"time"

	"github.com/rotisserie/eris"
)

// ErrIntegrity marks structural violations between stages: a wrong row
// count, a shrinking column set, or misordered timestamps. These indicate
// a logic defect rather than bad input, so callers abort the run.
var ErrIntegrity = eris.New("matrix: integrity violation")

// Wide is an hourly wide matrix. Columns are kept sorted so output
// artifacts are deterministic. Missing cells are NaN.
type Wide struct {
	Timestamps []time.Time
	Columns    []string
	Values     [][]float64 // Values[row][col]

	colIdx map[string]int
}

// New creates a Wide with the given timestamps and columns, every cell
// missing. Columns are sorted; timestamps are taken as given.
func New(timestamps []time.Time, columns []string) *Wide {
	cols := append([]string(nil), columns...)
	sort.Strings(cols)

	values := make([][]float64, len(timestamps))
	for i := range values {
		row := make([]float64, len(cols))
		for j := range row {
			row[j] = math.NaN()
		}
		values[i] = row
	}

	return &Wide{
		Timestamps: append([]time.Time(nil), timestamps...),
		Columns:    cols,
		Values:     values,
		colIdx:     indexColumns(cols),
	}
}

func indexColumns(cols []string) map[string]int {
	idx := make(map[string]int, len(cols))
	for i, c := range cols {
		idx[c] = i
	}
	return idx
}

// IsMissing reports whether a cell value is the missing marker.
func IsMissing(v float64) bool {
	return math.IsNaN(v)
}

// Col returns the index of a column by entity key.
func (w *Wide) Col(name string) (int, bool) {
	if w.colIdx == nil {
		w.colIdx = indexColumns(w.Columns)
	}
	i, ok := w.colIdx[name]
	return i, ok
}

// Rows returns the number of rows.
func (w *Wide) Rows() int { return len(w.Timestamps) }

// Clone returns a deep copy. Stages derive new artifacts instead of
// mutating upstream ones.
func (w *Wide) Clone() *Wide {
	values := make([][]float64, len(w.Values))
	for i, row := range w.Values {
		values[i] = append([]float64(nil), row...)
	}
	return &Wide{
		Timestamps: append([]time.Time(nil), w.Timestamps...),
		Columns:    append([]string(nil), w.Columns...),
		Values:     values,
		colIdx:     indexColumns(w.Columns),
	}
}

// ContainsColumns verifies that no column from an upstream artifact has
// been dropped. Returns ErrIntegrity on the first missing column.
func (w *Wide) ContainsColumns(prev []string) error {
	for _, c := range prev {
		if _, ok := w.Col(c); !ok {
			return eris.Wrapf(ErrIntegrity, "column %q dropped between stages", c)
		}
	}
	return nil
}

// Merge concatenates per-year matrices, in the order given, into one
// combined matrix. The caller passes them in ascending year order; rows
// must be strictly increasing across the seam. The column set is the
// sorted union: a column absent in an earlier year is missing there,
// never dropped.
func Merge(years []*Wide) (*Wide, error) {
	if len(years) == 0 {
		return nil, eris.Wrap(ErrIntegrity, "merge: no matrices")
	}

	union := map[string]struct{}{}
	rows := 0
	for _, y := range years {
		for _, c := range y.Columns {
			union[c] = struct{}{}
		}
		rows += y.Rows()
	}

	cols := make([]string, 0, len(union))
	for c := range union {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	timestamps := make([]time.Time, 0, rows)
	out := New(nil, cols)
	out.Values = make([][]float64, 0, rows)

	for _, y := range years {
		for r, ts := range y.Timestamps {
			if n := len(timestamps); n > 0 && !timestamps[n-1].Before(ts) {
				return nil, eris.Wrapf(ErrIntegrity,
					"merge: timestamps not strictly increasing at %s", ts.Format(TimeLayout))
			}
			timestamps = append(timestamps, ts)

			row := make([]float64, len(cols))
			for j := range row {
				row[j] = math.NaN()
			}
			for c, name := range y.Columns {
				j, _ := out.Col(name)
				row[j] = y.Values[r][c]
			}
			out.Values = append(out.Values, row)
		}
	}

	out.Timestamps = timestamps
	return out, nil
}
