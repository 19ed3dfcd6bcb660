package modes

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

var testFreqs = []float64{1, 2, 5, 10, 20, 40}

func numericJacobian(f func([]float64, []float64) []float64, freqs, params []float64) *mat.Dense {
	J := mat.NewDense(len(freqs), len(params), nil)
	for j := range params {
		h := 1e-6 * math.Max(1, math.Abs(params[j]))
		up := append([]float64(nil), params...)
		dn := append([]float64(nil), params...)
		up[j] += h
		dn[j] -= h
		fu, fd := f(freqs, up), f(freqs, dn)
		for i := range freqs {
			J.Set(i, j, (fu[i]-fd[i])/(2*h))
		}
	}
	return J
}

func assertJacobianMatches(t *testing.T, got, want *mat.Dense) {
	t.Helper()
	r, c := want.Dims()
	for i := range r {
		for j := range c {
			assert.InDelta(t, want.At(i, j), got.At(i, j), 1e-5, "entry (%d,%d)", i, j)
		}
	}
}

func TestFixedEvaluate(t *testing.T) {
	ys := Fixed{}.Evaluate([]float64{1, 10, 100}, []float64{2, 1.5})
	assert.InDeltaSlice(t, []float64{2, 0.5, -1}, ys, 1e-12)
}

func TestKneeEvaluate(t *testing.T) {
	// with a zero knee the knee mode reduces to the fixed mode
	fixed := Fixed{}.Evaluate(testFreqs, []float64{1, 2})
	knee := Knee{}.Evaluate(testFreqs, []float64{1, 0, 2})
	assert.InDeltaSlice(t, fixed, knee, 1e-12)

	ys := Knee{}.Evaluate([]float64{10}, []float64{3, 100, 2})
	assert.InDelta(t, 3-math.Log10(200), ys[0], 1e-12)
}

func TestAperiodicJacobians(t *testing.T) {
	fp := []float64{1.3, 1.7}
	assertJacobianMatches(t, Fixed{}.Jacobian(testFreqs, fp), numericJacobian(Fixed{}.Evaluate, testFreqs, fp))

	kp := []float64{1.3, 25, 1.7}
	assertJacobianMatches(t, Knee{}.Jacobian(testFreqs, kp), numericJacobian(Knee{}.Evaluate, testFreqs, kp))
}

func TestGaussianEvaluateSumsPeaks(t *testing.T) {
	freqs := []float64{8, 10, 12, 20}
	one := Gaussian{}.Evaluate(freqs, []float64{10, 1, 2})
	assert.InDelta(t, 1.0, one[1], 1e-12)
	assert.InDelta(t, math.Exp(-0.5), one[0], 1e-12)

	two := Gaussian{}.Evaluate(freqs, []float64{10, 1, 2, 20, 0.5, 1})
	assert.InDelta(t, one[1]+0.5*math.Exp(-50), two[1], 1e-12)
	assert.InDelta(t, 0.5+math.Exp(-12.5), two[3], 1e-12)

	assert.Equal(t, []float64{0, 0, 0, 0}, Gaussian{}.Evaluate(freqs, nil))
}

func TestGaussianJacobian(t *testing.T) {
	params := []float64{10, 0.8, 1.5, 22, 0.3, 3}
	got := Gaussian{}.Jacobian(testFreqs, params)
	assertJacobianMatches(t, got, numericJacobian(Gaussian{}.Evaluate, testFreqs, params))
}

func TestAperiodicByName(t *testing.T) {
	m, err := AperiodicByName("knee")
	require.NoError(t, err)
	assert.Equal(t, 3, m.NParams())
	assert.Equal(t, 1, ParamIndex(m, "knee"))

	m, err = AperiodicByName("")
	require.NoError(t, err)
	assert.Equal(t, "fixed", m.Name())
	assert.Equal(t, -1, ParamIndex(m, "knee"))

	_, err = AperiodicByName("doublexp")
	assert.Error(t, err)
}

func TestFWHMConversion(t *testing.T) {
	assert.InDelta(t, 2.3548200450309493, GaussFWHMFromStd(1), 1e-12)
	assert.InDelta(t, 1.0, GaussStdFromFWHM(GaussFWHMFromStd(1)), 1e-12)
}

func TestBounds(t *testing.T) {
	b := Knee{}.Bounds()
	require.Len(t, b.Lower, 3)
	assert.True(t, math.IsInf(b.Lower[1], -1))
	assert.True(t, math.IsInf(b.Upper[2], 1))
}
