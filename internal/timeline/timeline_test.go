package timeline

import (
	"math"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/powerprep/internal/matrix"
)

func ts(t *testing.T, s string) time.Time {
	t.Helper()
	v, err := time.ParseInLocation(matrix.TimeLayout, s, time.UTC)
	require.NoError(t, err)
	return v
}

func TestYearIndexHourCounts(t *testing.T) {
	tests := []struct {
		year  int
		hours int
	}{
		{2020, 8784}, // leap
		{2021, 8760},
		{2022, 8760},
		{2023, 8760},
		{2000, 8784}, // divisible by 400
		{1900, 8760}, // divisible by 100 but not 400
	}
	for _, tt := range tests {
		idx, err := YearIndex(tt.year)
		require.NoError(t, err)
		assert.Len(t, idx, tt.hours, "year %d", tt.year)
		assert.Equal(t, time.Date(tt.year, time.January, 1, 0, 0, 0, 0, time.UTC), idx[0])
		assert.Equal(t, time.Date(tt.year, time.December, 31, 23, 0, 0, 0, time.UTC), idx[len(idx)-1])
	}
}

func TestReconstructAlignsAndFillsShortGap(t *testing.T) {
	// Observed: hour 0 = 10, hour 2 = 12 on Jan 1. After reconstruction
	// and filling, hour 1 is forward-filled (gap length 1) and every
	// other hour of the year stays missing.
	sparse := matrix.New([]time.Time{
		ts(t, "2021-01-01 00:00:00"),
		ts(t, "2021-01-01 02:00:00"),
	}, []string{"C1 M2"})
	sparse.Values[0][0] = 10
	sparse.Values[1][0] = 12

	full, err := Reconstruct(sparse, 2021)
	require.NoError(t, err)
	require.Equal(t, 8760, full.Rows())

	FillShortGaps(full, 2)

	c, ok := full.Col("C1 M2")
	require.True(t, ok)
	assert.Equal(t, 10.0, full.Values[0][c])
	assert.Equal(t, 10.0, full.Values[1][c], "1-hour gap is forward-filled")
	assert.Equal(t, 12.0, full.Values[2][c])
	for r := 3; r < 27; r++ {
		assert.True(t, matrix.IsMissing(full.Values[r][c]), "hour %d must stay missing", r)
	}
}

func TestReconstructRejectsForeignYear(t *testing.T) {
	sparse := matrix.New([]time.Time{ts(t, "2022-01-01 00:00:00")}, []string{"X Y"})
	_, err := Reconstruct(sparse, 2021)
	require.Error(t, err)
	assert.True(t, eris.Is(err, matrix.ErrIntegrity))
}

func fillFixture(t *testing.T, values []float64) *matrix.Wide {
	t.Helper()
	timestamps := make([]time.Time, len(values))
	base := ts(t, "2021-01-01 00:00:00")
	for i := range values {
		timestamps[i] = base.Add(time.Duration(i) * time.Hour)
	}
	w := matrix.New(timestamps, []string{"X Y"})
	for i, v := range values {
		w.Values[i][0] = v
	}
	return w
}

func TestFillShortGapsBoundIsExact(t *testing.T) {
	nan := math.NaN()

	// Run of 2: filled.
	w := fillFixture(t, []float64{5, nan, nan, 6})
	FillShortGaps(w, 2)
	assert.Equal(t, 5.0, w.Values[1][0])
	assert.Equal(t, 5.0, w.Values[2][0])

	// Run of 3: left entirely missing, not partially filled.
	w = fillFixture(t, []float64{5, nan, nan, nan, 6})
	FillShortGaps(w, 2)
	for r := 1; r <= 3; r++ {
		assert.True(t, matrix.IsMissing(w.Values[r][0]), "row %d", r)
	}
}

func TestFillShortGapsNeverFillsBeforeFirstObservation(t *testing.T) {
	nan := math.NaN()
	w := fillFixture(t, []float64{nan, nan, 7, nan, 8})
	FillShortGaps(w, 2)

	assert.True(t, matrix.IsMissing(w.Values[0][0]))
	assert.True(t, matrix.IsMissing(w.Values[1][0]))
	assert.Equal(t, 7.0, w.Values[3][0])
}

func TestFillShortGapsFillsTrailingRunWithinBound(t *testing.T) {
	nan := math.NaN()
	w := fillFixture(t, []float64{9, nan, nan})
	FillShortGaps(w, 2)
	assert.Equal(t, 9.0, w.Values[1][0])
	assert.Equal(t, 9.0, w.Values[2][0])

	w = fillFixture(t, []float64{9, nan, nan, nan})
	FillShortGaps(w, 2)
	for r := 1; r <= 3; r++ {
		assert.True(t, matrix.IsMissing(w.Values[r][0]), "row %d", r)
	}
}

func TestFillShortGapsDisabled(t *testing.T) {
	nan := math.NaN()
	w := fillFixture(t, []float64{5, nan, 6})
	FillShortGaps(w, 0)
	assert.True(t, matrix.IsMissing(w.Values[1][0]))
}

func TestFillNeverCrossesYearBoundary(t *testing.T) {
	// A value at the end of 2021 and the first observation of 2022 at
	// hour 2. Filling per reconstructed year leaves the first hours of
	// 2022 missing: the previous year's value never leaks forward.
	prev := matrix.New([]time.Time{ts(t, "2021-12-31 23:00:00")}, []string{"X Y"})
	prev.Values[0][0] = 4

	next := matrix.New([]time.Time{ts(t, "2022-01-01 02:00:00")}, []string{"X Y"})
	next.Values[0][0] = 5

	fullPrev, err := Reconstruct(prev, 2021)
	require.NoError(t, err)
	fullNext, err := Reconstruct(next, 2022)
	require.NoError(t, err)
	FillShortGaps(fullPrev, 2)
	FillShortGaps(fullNext, 2)

	combined, err := matrix.Merge([]*matrix.Wide{fullPrev, fullNext})
	require.NoError(t, err)

	c, _ := combined.Col("X Y")
	last2021 := 8760 - 1
	assert.Equal(t, 4.0, combined.Values[last2021][c])
	assert.True(t, matrix.IsMissing(combined.Values[last2021+1][c]), "2022 hour 0")
	assert.True(t, matrix.IsMissing(combined.Values[last2021+2][c]), "2022 hour 1")
	assert.Equal(t, 5.0, combined.Values[last2021+3][c])
}
