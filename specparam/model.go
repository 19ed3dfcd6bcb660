package specparam

import (
	"fmt"
	"math"
	"strings"

	"github.com/RyanBlaney/sonido-specparam/algorithms/common"
	"github.com/RyanBlaney/sonido-specparam/specparam/modes"
)

// Error metric names accepted by AlgorithmSettings.ErrorMetric
const (
	MetricMAE  = "MAE"
	MetricMSE  = "MSE"
	MetricRMSE = "RMSE"
)

// Peak is a fitted peak expressed in spectrum space
type Peak struct {
	CenterFreq float64 `json:"center_freq"`
	Power      float64 `json:"power"`
	Bandwidth  float64 `json:"bandwidth"`
}

// components holds every spectrum produced by one fit
type components struct {
	apFit    []float64
	peakFit  []float64
	flat     []float64
	peakRm   []float64
	modeled  []float64
	apParams []float64
	gauss    []PeakCandidate
}

func evaluatePeaks(periodic modes.PeriodicModel, freqs []float64, gauss []PeakCandidate) []float64 {
	params := make([]float64, 0, 3*len(gauss))
	for _, g := range gauss {
		params = append(params, g.params()...)
	}
	return periodic.Evaluate(freqs, params)
}

// peaksFromGaussians converts fitted Gaussians to spectrum-space peaks. The
// power of a peak is the height of the full model above the aperiodic fit at
// the bin nearest its center, so overlapping peaks add to each other.
func peaksFromGaussians(freqs, modeled, apFit []float64, gauss []PeakCandidate) []Peak {
	peaks := make([]Peak, len(gauss))
	for i, g := range gauss {
		ind := common.NearestIndex(freqs, g.Center)
		peaks[i] = Peak{
			CenterFreq: g.Center,
			Power:      modeled[ind] - apFit[ind],
			Bandwidth:  2 * g.Std,
		}
	}
	return peaks
}

// rSquared is the squared Pearson correlation between data and model
func rSquared(data, model []float64) float64 {
	r := common.Correlation(data, model)
	return r * r
}

// adjRSquared penalizes r-squared by the number of fitted parameters. It is
// NaN when there are not more points than parameters plus one.
func adjRSquared(r2 float64, nPoints, nParams int) float64 {
	dof := nPoints - nParams - 1
	if dof <= 0 {
		return math.NaN()
	}
	return 1 - (1-r2)*float64(nPoints-1)/float64(dof)
}

func fitError(metric string, data, model []float64) (float64, error) {
	switch strings.ToUpper(metric) {
	case MetricMAE:
		return common.MeanAbsoluteError(data, model), nil
	case MetricMSE:
		return common.MeanSquaredError(data, model), nil
	case MetricRMSE:
		return common.RootMeanSquaredError(data, model), nil
	default:
		return math.NaN(), fmt.Errorf("unknown error metric %q", metric)
	}
}
