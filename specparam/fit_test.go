package specparam

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/RyanBlaney/sonido-specparam/algorithms/optimize"
	"github.com/RyanBlaney/sonido-specparam/logging"
	"github.com/RyanBlaney/sonido-specparam/specparam/config"
	"github.com/RyanBlaney/sonido-specparam/specparam/modes"
	"github.com/RyanBlaney/sonido-specparam/specparam/sim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func simulate(t *testing.T, freqRange [2]float64, ap, pe []float64, res float64) *SpectralData {
	t.Helper()
	s, err := sim.GenPowerSpectrum(freqRange, ap, pe, 0, res, 1)
	require.NoError(t, err)
	d, err := NewSpectralData(s.Freqs, s.PowerSpectrum, WithDataLogger(&logging.NoOpLogger{}))
	require.NoError(t, err)
	return d
}

func newTestFitter(t *testing.T, mutate func(*config.ModelSettings, *config.AlgorithmSettings), opts ...FitterOption) *Fitter {
	t.Helper()
	s := config.DefaultModelSettings()
	a := config.DefaultAlgorithmSettings()
	if mutate != nil {
		mutate(&s, &a)
	}
	opts = append([]FitterOption{WithLogger(&logging.NoOpLogger{})}, opts...)
	f, err := NewFitter(s, a, opts...)
	require.NoError(t, err)
	return f
}

func withMinHeight(h float64) func(*config.ModelSettings, *config.AlgorithmSettings) {
	return func(s *config.ModelSettings, _ *config.AlgorithmSettings) {
		s.MinPeakHeight = h
	}
}

func TestFitRecoversSimulatedParameters(t *testing.T) {
	data := simulate(t, [2]float64{3, 50}, []float64{50, 2}, []float64{10, 0.5, 2}, 0.5)
	f := newTestFitter(t, withMinHeight(0.1))

	res, err := f.Fit(data)
	require.NoError(t, err)
	require.True(t, res.HasModel())

	assert.Equal(t, "fixed", res.AperiodicMode)
	assert.InDelta(t, 50.0, res.AperiodicParams[0], 0.05)
	assert.InDelta(t, 2.0, res.AperiodicParams[1], 0.05)

	require.Len(t, res.PeakParams, 1)
	assert.InDelta(t, 10.0, res.PeakParams[0].CenterFreq, 0.1)
	assert.InDelta(t, 0.5, res.PeakParams[0].Power, 0.05)
	assert.InDelta(t, 4.0, res.PeakParams[0].Bandwidth, 0.2)

	require.Len(t, res.GaussianParams, 1)
	assert.InDelta(t, 2.0, res.GaussianParams[0].Std, 0.1)

	assert.Greater(t, res.RSquared, 0.99)
	assert.LessOrEqual(t, res.AdjRSquared, res.RSquared)
	assert.Less(t, res.Error, 0.02)
	assert.Equal(t, "MAE", res.ErrorMetric)
}

func TestFitModelIsSumOfComponents(t *testing.T) {
	data := simulate(t, [2]float64{3, 40}, []float64{1, 1}, []float64{10, 0.3, 1, 22, 0.2, 2}, 0.25)
	res, err := newTestFitter(t, withMinHeight(0.05)).Fit(data)
	require.NoError(t, err)
	require.True(t, res.HasModel())

	require.Len(t, res.ModeledSpectrum, data.Len())
	for i := range res.ModeledSpectrum {
		assert.InDelta(t, res.ApFit[i]+res.PeakFit[i], res.ModeledSpectrum[i], 1e-12)
		assert.InDelta(t, res.PowerSpectrum[i]-res.ApFit[i], res.SpectrumFlat[i], 1e-12)
		assert.InDelta(t, res.PowerSpectrum[i]-res.PeakFit[i], res.SpectrumPeakRm[i], 1e-12)
	}

	for i := 1; i < len(res.PeakParams); i++ {
		assert.Less(t, res.PeakParams[i-1].CenterFreq, res.PeakParams[i].CenterFreq)
	}
	for i, p := range res.PeakParams {
		assert.Equal(t, res.GaussianParams[i].Center, p.CenterFreq)
		assert.Equal(t, 2*res.GaussianParams[i].Std, p.Bandwidth)
	}
}

func TestFitIsDeterministic(t *testing.T) {
	s, err := sim.GenPowerSpectrum([2]float64{3, 40}, []float64{1, 1}, []float64{10, 0.3, 1}, 0.005, 0.5, 42)
	require.NoError(t, err)

	f := newTestFitter(t, withMinHeight(0.1))
	first, err := f.FitSpectrum(s.Freqs, s.PowerSpectrum, nil)
	require.NoError(t, err)
	second, err := f.FitSpectrum(s.Freqs, s.PowerSpectrum, nil)
	require.NoError(t, err)

	require.True(t, first.HasModel())

	assert.Equal(t, first, second)
}

func TestFitNoisySpectra(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.ModelSettings, *config.AlgorithmSettings)
		limit  int
	}{
		{name: "defaults", limit: math.MaxInt},
		{
			name: "limited",
			mutate: func(s *config.ModelSettings, _ *config.AlgorithmSettings) {
				s.MaxNPeaks = 6
				s.MinPeakHeight = 0.1
			},
			limit: 6,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTestFitter(t, tt.mutate)
			for seed := uint64(1); seed <= 12; seed++ {
				s, err := sim.GenPowerSpectrum([2]float64{1, 50}, []float64{1, 1}, []float64{10, 0.3, 1, 22, 0.15, 2}, 0.05, 0.25, seed)
				require.NoError(t, err)

				res, err := f.FitSpectrum(s.Freqs, s.PowerSpectrum, nil)
				require.NoError(t, err)
				require.True(t, res.HasModel(), "seed %d", seed)
				assert.LessOrEqual(t, len(res.PeakParams), tt.limit, "seed %d", seed)
				assert.InDelta(t, 1.0, res.AperiodicParams[1], 0.2, "seed %d", seed)

				for i := range res.ModeledSpectrum {
					assert.InDelta(t, res.ApFit[i]+res.PeakFit[i], res.ModeledSpectrum[i], 1e-12)
				}
				for _, g := range res.GaussianParams {
					assert.GreaterOrEqual(t, g.Height, 0.0)
				}
			}
		})
	}
}

func TestFitWithoutPeaks(t *testing.T) {
	data := simulate(t, [2]float64{3, 40}, []float64{1, 1}, nil, 0.5)
	res, err := newTestFitter(t, withMinHeight(0.05)).Fit(data)
	require.NoError(t, err)

	assert.Empty(t, res.PeakParams)
	assert.Empty(t, res.GaussianParams)
	assert.InDeltaSlice(t, []float64{1, 1}, res.AperiodicParams, 1e-6)
	for _, v := range res.PeakFit {
		assert.Equal(t, 0.0, v)
	}
	assert.InDelta(t, 1.0, res.RSquared, 1e-9)
}

func TestFitRespectsPeakLimit(t *testing.T) {
	data := simulate(t, [2]float64{3, 50}, []float64{1, 1}, []float64{8, 0.4, 1, 20, 0.3, 1.5, 35, 0.5, 2}, 0.25)

	for _, limit := range []int{0, 1, 2} {
		res, err := newTestFitter(t, func(s *config.ModelSettings, _ *config.AlgorithmSettings) {
			s.MaxNPeaks = limit
			s.MinPeakHeight = 0.05
		}).Fit(data)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(res.PeakParams), limit)
	}
}

func TestFitFailureGivesNullResult(t *testing.T) {
	data := simulate(t, [2]float64{3, 40}, []float64{1, 1}, []float64{10, 0.3, 1}, 0.5)
	f := newTestFitter(t, func(s *config.ModelSettings, a *config.AlgorithmSettings) {
		s.AperiodicMode = "knee"
		a.MaxEvaluations = 1
	})

	res, err := f.Fit(data)
	require.NoError(t, err)
	assert.False(t, res.HasModel())

	require.Len(t, res.AperiodicParams, 3)
	for _, v := range res.AperiodicParams {
		assert.True(t, math.IsNaN(v))
	}
	assert.Empty(t, res.PeakParams)
	assert.True(t, math.IsNaN(res.RSquared))
	assert.True(t, math.IsNaN(res.AdjRSquared))
	assert.True(t, math.IsNaN(res.Error))
	assert.Equal(t, data.Freqs(), res.Freqs)
	assert.Nil(t, res.ModeledSpectrum)

	_, err = res.PointwiseError()
	assert.ErrorIs(t, err, ErrNoModel)
	_, err = res.Param("aperiodic")
	assert.ErrorIs(t, err, ErrNoModel)
}

func TestFitFailureInDebugMode(t *testing.T) {
	data := simulate(t, [2]float64{3, 40}, []float64{1, 1}, []float64{10, 0.3, 1}, 0.5)
	f := newTestFitter(t, func(_ *config.ModelSettings, a *config.AlgorithmSettings) {
		a.MaxEvaluations = 1
		a.Debug = true
	})

	res, err := f.Fit(data)
	assert.Nil(t, res)

	var fe *FitError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, NonConvergence, fe.Kind)
	assert.ErrorIs(t, err, optimize.ErrMaxEvaluations)
}

func TestFitNoData(t *testing.T) {
	f := newTestFitter(t, nil)
	_, err := f.Fit(nil)
	assert.ErrorIs(t, err, ErrNoData)
	_, err = f.Fit(&SpectralData{})
	assert.ErrorIs(t, err, ErrNoData)
}

func TestFitSpectrumPropagatesDataErrors(t *testing.T) {
	f := newTestFitter(t, nil)
	_, err := f.FitSpectrum([]float64{1, 2, 4}, []float64{1, 1, 1}, nil)
	assert.True(t, IsDataError(err))
}

func TestFitSpectrumTrimsRange(t *testing.T) {
	s, err := sim.GenPowerSpectrum([2]float64{1, 60}, []float64{1, 1}, nil, 0, 0.5, 1)
	require.NoError(t, err)

	res, err := newTestFitter(t, withMinHeight(0.05)).FitSpectrum(s.Freqs, s.PowerSpectrum, &[2]float64{3, 40})
	require.NoError(t, err)
	assert.Equal(t, 3.0, res.Freqs[0])
	assert.Equal(t, 40.0, res.Freqs[len(res.Freqs)-1])
}

func TestFitWarnsAboutWidthLimits(t *testing.T) {
	var out bytes.Buffer
	logger := logging.NewDefaultLoggerWithWriters(&out, &out)

	data := simulate(t, [2]float64{3, 40}, []float64{1, 1}, nil, 0.5)
	f := newTestFitter(t, withMinHeight(0.05), WithLogger(logger))
	_, err := f.Fit(data)
	require.NoError(t, err)

	assert.Contains(t, out.String(), "[WARN] lower-bound peak width limit")
	assert.Contains(t, out.String(), "component=specparam")
}

func TestResultQueries(t *testing.T) {
	data := simulate(t, [2]float64{3, 40}, []float64{1, 1}, []float64{10, 0.3, 1}, 0.25)
	res, err := newTestFitter(t, withMinHeight(0.05)).Fit(data)
	require.NoError(t, err)

	pe, err := res.PointwiseError()
	require.NoError(t, err)
	require.Len(t, pe, data.Len())
	for i, v := range pe {
		assert.InDelta(t, math.Abs(res.PowerSpectrum[i]-res.ModeledSpectrum[i]), v, 1e-12)
	}

	ap, err := res.Param("aperiodic")
	require.NoError(t, err)
	assert.Equal(t, res.AperiodicParams, ap)

	r2, err := res.Param("r_squared")
	require.NoError(t, err)
	assert.Equal(t, res.RSquared, r2)

	peaks, err := res.Param("peak")
	require.NoError(t, err)
	assert.IsType(t, []Peak{}, peaks)

	_, err = res.Param("bandwidth")
	assert.Error(t, err)
}

type skewedPeaks struct{ modes.Gaussian }

func (skewedPeaks) Name() string { return "skewed" }
func (skewedPeaks) NParams() int { return 4 }

func TestNewFitterOptions(t *testing.T) {
	f := newTestFitter(t, nil, WithAperiodicModel(modes.Knee{}))
	assert.Equal(t, "knee", f.AperiodicModel().Name())

	_, err := NewFitter(config.DefaultModelSettings(), config.DefaultAlgorithmSettings(), WithPeriodicModel(skewedPeaks{}))
	assert.Error(t, err)

	bad := config.DefaultModelSettings()
	bad.PeakWidthLimits = [2]float64{2, 1}
	_, err = NewFitter(bad, config.DefaultAlgorithmSettings())
	assert.Error(t, err)

	s, a := f.Settings()
	assert.Equal(t, config.DefaultModelSettings(), s)
	assert.Equal(t, config.DefaultAlgorithmSettings(), a)
}
