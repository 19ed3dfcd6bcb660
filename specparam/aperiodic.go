package specparam

import (
	"errors"
	"fmt"
	"math"

	"github.com/RyanBlaney/sonido-specparam/algorithms/common"
	"github.com/RyanBlaney/sonido-specparam/algorithms/optimize"
	"github.com/RyanBlaney/sonido-specparam/algorithms/stats"
	"github.com/RyanBlaney/sonido-specparam/specparam/config"
	"github.com/RyanBlaney/sonido-specparam/specparam/modes"
)

// AperiodicEstimator fits the broadband trend of a log10 power spectrum
type AperiodicEstimator struct {
	mode             modes.AperiodicModel
	guess            config.APGuess
	percentileThresh float64
	solver           optimize.Settings
	percentiles      *stats.Percentiles
}

// NewAperiodicEstimator creates an estimator for the given mode
func NewAperiodicEstimator(mode modes.AperiodicModel, algo config.AlgorithmSettings) *AperiodicEstimator {
	solver := optimize.DefaultSettings()
	solver.MaxEvaluations = algo.MaxEvaluations

	return &AperiodicEstimator{
		mode:             mode,
		guess:            algo.APGuess,
		percentileThresh: algo.APPercentileThresh,
		solver:           solver,
		percentiles:      stats.NewPercentiles(),
	}
}

// Mode returns the aperiodic model being fitted
func (e *AperiodicEstimator) Mode() modes.AperiodicModel {
	return e.mode
}

// DefaultGuess derives starting parameters from the data: the offset is the
// first power value and the exponent is the absolute log-log slope between
// the first and last bins. Configured guesses take precedence.
func (e *AperiodicEstimator) DefaultGuess(freqs, spectrum []float64) []float64 {
	guess := make([]float64, e.mode.NParams())
	last := len(spectrum) - 1

	if i := modes.ParamIndex(e.mode, "offset"); i >= 0 {
		guess[i] = spectrum[0]
		if e.guess.Offset != nil {
			guess[i] = *e.guess.Offset
		}
	}
	if i := modes.ParamIndex(e.mode, "knee"); i >= 0 {
		guess[i] = e.guess.Knee
	}
	if i := modes.ParamIndex(e.mode, "exponent"); i >= 0 {
		guess[i] = math.Abs((spectrum[last] - spectrum[0]) /
			(math.Log10(freqs[last]) - math.Log10(freqs[0])))
		if e.guess.Exponent != nil {
			guess[i] = *e.guess.Exponent
		}
	}
	return guess
}

// SimpleFit fits the aperiodic function to the whole spectrum.
// A nil guess uses DefaultGuess; nil bounds use the mode's bounds.
func (e *AperiodicEstimator) SimpleFit(freqs, spectrum, guess []float64, bounds *modes.Bounds) ([]float64, error) {
	if len(freqs) == 0 || len(freqs) != len(spectrum) {
		return nil, &FitError{Stage: StageSimpleAperiodic, Kind: Degenerate,
			Err: fmt.Errorf("%w: %d freqs, %d power values", optimize.ErrDimensionMismatch, len(freqs), len(spectrum))}
	}
	if guess == nil {
		guess = e.DefaultGuess(freqs, spectrum)
	}
	return e.fit(StageSimpleAperiodic, freqs, spectrum, guess, bounds)
}

// RobustFit fits the aperiodic function while ignoring peaks.
//
// After an initial simple fit the spectrum is flattened, negative residuals
// are set to zero (peaks only push the residual upward, so only downward
// points are trusted as-is), and only the bins at or below the configured
// percentile of the flattened spectrum are used for a second fit seeded
// with the first.
func (e *AperiodicEstimator) RobustFit(freqs, spectrum []float64) ([]float64, error) {
	popt, err := e.SimpleFit(freqs, spectrum, nil, nil)
	if err != nil {
		return nil, err
	}

	flat := common.Subtract(spectrum, e.mode.Evaluate(freqs, popt))
	for i, v := range flat {
		if v < 0 {
			flat[i] = 0
		}
	}

	mask, count, err := e.percentiles.LowerTailMask(flat, e.percentileThresh*100)
	if err != nil {
		return nil, &FitError{Stage: StageRobustAperiodic, Kind: Subsample, Err: err}
	}
	if count < e.mode.NParams() {
		return nil, &FitError{Stage: StageRobustAperiodic, Kind: Subsample,
			Err: fmt.Errorf("%w: %d points selected for %d parameters", optimize.ErrTooFewPoints, count, e.mode.NParams())}
	}

	subFreqs := make([]float64, 0, count)
	subSpectrum := make([]float64, 0, count)
	for i, keep := range mask {
		if keep {
			subFreqs = append(subFreqs, freqs[i])
			subSpectrum = append(subSpectrum, spectrum[i])
		}
	}

	return e.fit(StageRobustAperiodic, subFreqs, subSpectrum, popt, nil)
}

func (e *AperiodicEstimator) fit(stage FitStage, freqs, spectrum, guess []float64, bounds *modes.Bounds) ([]float64, error) {
	b := e.mode.Bounds()
	if bounds != nil {
		b = *bounds
	}

	problem := optimize.Problem{
		X:    freqs,
		Y:    spectrum,
		Func: e.mode.Evaluate,
	}
	if jac, ok := e.mode.(modes.Jacobian); ok {
		problem.Jac = jac.Jacobian
	}

	res, err := optimize.CurveFit(problem, guess, b.Lower, b.Upper, e.solver)
	if err != nil {
		return nil, solverError(stage, err)
	}
	return res.Params, nil
}

// solverError maps solver sentinels onto FitError kinds
func solverError(stage FitStage, err error) *FitError {
	kind := Degenerate
	switch {
	case errors.Is(err, optimize.ErrMaxEvaluations), errors.Is(err, optimize.ErrStalled):
		kind = NonConvergence
	case errors.Is(err, optimize.ErrTooFewPoints) && stage == StageRobustAperiodic:
		kind = Subsample
	}
	return &FitError{Stage: stage, Kind: kind, Err: err}
}
