package normalize

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

// trainAndHeldOut builds a combined matrix with one column "X": training
// rows in 2020-2022 holding the given values, plus one held-out 2023 row.
func trainAndHeldOut(t *testing.T, train []float64, heldOut float64) *matrix.Wide {
	t.Helper()
	timestamps := make([]time.Time, 0, len(train)+1)
	for i := range train {
		timestamps = append(timestamps, ts(t, "2020-01-01 00:00:00").Add(time.Duration(i)*time.Hour))
	}
	timestamps = append(timestamps, ts(t, "2023-06-01 00:00:00"))

	w := matrix.New(timestamps, []string{"X"})
	for i, v := range train {
		w.Values[i][0] = v
	}
	w.Values[len(train)][0] = heldOut
	return w
}

func TestComputeParamsSampleStd(t *testing.T) {
	w := trainAndHeldOut(t, []float64{10, 20, 30}, 40)

	params, err := ComputeParams(w, Window{StartYear: 2020, EndYear: 2022})
	require.NoError(t, err)
	require.Len(t, params, 1)

	assert.Equal(t, "X", params[0].Entity)
	assert.InDelta(t, 20.0, params[0].Mean, 1e-12)
	assert.InDelta(t, 10.0, params[0].Std, 1e-12) // sample formula: sqrt(200/2)
	assert.False(t, params[0].Degenerate)
}

func TestApplyStandardizesHeldOutRows(t *testing.T) {
	w := trainAndHeldOut(t, []float64{10, 20, 30}, 40)
	params, err := ComputeParams(w, Window{StartYear: 2020, EndYear: 2022})
	require.NoError(t, err)

	out, err := Apply(w, params)
	require.NoError(t, err)

	// (40 - 20) / 10 = 2.0 for the 2023 row.
	assert.InDelta(t, 2.0, out.Values[3][0], 1e-12)
	assert.InDelta(t, -1.0, out.Values[0][0], 1e-12)
	assert.InDelta(t, 0.0, out.Values[1][0], 1e-12)
}

func TestComputeParamsIgnoresHeldOutRows(t *testing.T) {
	a := trainAndHeldOut(t, []float64{10, 20, 30}, 40)
	b := trainAndHeldOut(t, []float64{10, 20, 30}, 4000000)

	pa, err := ComputeParams(a, Window{StartYear: 2020, EndYear: 2022})
	require.NoError(t, err)
	pb, err := ComputeParams(b, Window{StartYear: 2020, EndYear: 2022})
	require.NoError(t, err)

	// Perturbing a value outside the training window changes nothing.
	assert.Equal(t, pa, pb)
}

func TestComputeParamsDeterministic(t *testing.T) {
	w := trainAndHeldOut(t, []float64{1.1, 2.2, 3.3, 4.4}, 5.5)

	first, err := ComputeParams(w, Window{StartYear: 2020, EndYear: 2022})
	require.NoError(t, err)
	second, err := ComputeParams(w, Window{StartYear: 2020, EndYear: 2022})
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestDegenerateConstantColumn(t *testing.T) {
	w := trainAndHeldOut(t, []float64{5, 5, 5}, 9)

	params, err := ComputeParams(w, Window{StartYear: 2020, EndYear: 2022})
	require.NoError(t, err)
	require.True(t, params[0].Degenerate)

	out, err := Apply(w, params)
	require.NoError(t, err)
	for r := range out.Values {
		assert.Equal(t, 0.0, out.Values[r][0], "row %d must be exactly 0, held-out included", r)
	}
}

func TestDegenerateTooFewObservations(t *testing.T) {
	w := trainAndHeldOut(t, []float64{math.NaN(), math.NaN(), 7}, 9)

	params, err := ComputeParams(w, Window{StartYear: 2020, EndYear: 2022})
	require.NoError(t, err)
	assert.True(t, params[0].Degenerate)

	out, err := Apply(w, params)
	require.NoError(t, err)
	for r := range out.Values {
		assert.Equal(t, 0.0, out.Values[r][0])
	}
}

func TestApplyPreservesMissing(t *testing.T) {
	w := trainAndHeldOut(t, []float64{10, math.NaN(), 30}, math.NaN())

	params, err := ComputeParams(w, Window{StartYear: 2020, EndYear: 2022})
	require.NoError(t, err)
	require.False(t, params[0].Degenerate)

	out, err := Apply(w, params)
	require.NoError(t, err)
	assert.True(t, matrix.IsMissing(out.Values[1][0]))
	assert.True(t, matrix.IsMissing(out.Values[3][0]))
	assert.False(t, matrix.IsMissing(out.Values[0][0]))
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	w := trainAndHeldOut(t, []float64{10, 20, 30}, 40)
	params, err := ComputeParams(w, Window{StartYear: 2020, EndYear: 2022})
	require.NoError(t, err)

	_, err = Apply(w, params)
	require.NoError(t, err)
	assert.Equal(t, 10.0, w.Values[0][0])
	assert.Equal(t, 40.0, w.Values[3][0])
}

func TestComputeParamsEmptyWindow(t *testing.T) {
	w := trainAndHeldOut(t, []float64{10, 20, 30}, 40)

	_, err := ComputeParams(w, Window{StartYear: 1990, EndYear: 1991})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrStats))
}

func TestComputeParamsInvertedWindow(t *testing.T) {
	w := trainAndHeldOut(t, []float64{10, 20, 30}, 40)

	_, err := ComputeParams(w, Window{StartYear: 2022, EndYear: 2020})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrStats))
}

func TestApplyRejectsUncoveredColumn(t *testing.T) {
	w := trainAndHeldOut(t, []float64{10, 20, 30}, 40)

	_, err := Apply(w, []Params{{Entity: "Y", Mean: 0, Std: 1}})
	require.Error(t, err)
	assert.True(t, eris.Is(err, matrix.ErrIntegrity))
}
