package common

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPopStdDev(t *testing.T) {
	// population std of 1..4 is sqrt(1.25)
	assert.InDelta(t, math.Sqrt(1.25), PopStdDev([]float64{1, 2, 3, 4}), 1e-12)
	assert.Equal(t, 0.0, PopStdDev(nil))
	assert.Equal(t, 0.0, PopStdDev([]float64{7, 7, 7}))
}

func TestCorrelation(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5}
	y := []float64{2, 4, 6, 8, 10}
	assert.InDelta(t, 1.0, Correlation(x, y), 1e-12)

	neg := []float64{5, 4, 3, 2, 1}
	assert.InDelta(t, -1.0, Correlation(x, neg), 1e-12)

	assert.True(t, math.IsNaN(Correlation(x, y[:2])))
}

func TestArgMaxFirstOccurrence(t *testing.T) {
	assert.Equal(t, 1, ArgMax([]float64{0, 3, 1, 3}))
	assert.Equal(t, -1, ArgMax(nil))
}

func TestNearestIndex(t *testing.T) {
	freqs := []float64{1, 1.5, 2, 2.5, 3}
	assert.Equal(t, 2, NearestIndex(freqs, 2.1))
	assert.Equal(t, 0, NearestIndex(freqs, -4))
	assert.Equal(t, 4, NearestIndex(freqs, 99))
	// halfway between 1.5 and 2 resolves to the lower bin
	assert.Equal(t, 1, NearestIndex(freqs, 1.75))
}

func TestErrorMetrics(t *testing.T) {
	x := []float64{1, 2, 3}
	y := []float64{1, 4, 0}

	assert.InDelta(t, 5.0/3.0, MeanAbsoluteError(x, y), 1e-12)
	assert.InDelta(t, 13.0/3.0, MeanSquaredError(x, y), 1e-12)
	assert.InDelta(t, math.Sqrt(13.0/3.0), RootMeanSquaredError(x, y), 1e-12)
	assert.True(t, math.IsNaN(MeanAbsoluteError(x, nil)))
}

func TestAllFinite(t *testing.T) {
	assert.True(t, AllFinite([]float64{0, -1, 1e300}))
	assert.False(t, AllFinite([]float64{0, math.NaN()}))
	assert.False(t, AllFinite([]float64{math.Inf(-1)}))
}

func TestIsClose(t *testing.T) {
	assert.True(t, IsClose(0.5, 0.5+1e-9, 1e-5, 1e-8))
	assert.False(t, IsClose(0.5, 0.51, 1e-5, 1e-8))
}

func TestArithmeticHelpers(t *testing.T) {
	a := []float64{3, 4}
	b := []float64{1, 1}
	assert.Equal(t, []float64{2, 3}, Subtract(a, b))
	assert.Equal(t, []float64{4, 5}, Add(a, b))
	assert.Equal(t, []float64{3, 4}, a)
	assert.Equal(t, []float64{2, 2, 2}, Filled(3, 2))
	assert.Equal(t, 1.0, Clamp(0, 1, 2))
	assert.Equal(t, 2.0, Clamp(5, 1, 2))
}
