// Package sim generates synthetic power spectra from known aperiodic and
// peak parameters.
package sim

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/RyanBlaney/sonido-specparam/specparam/modes"
	"gonum.org/v1/gonum/stat/distuv"
)

// Defaults used when generating spectra
const (
	DefaultFreqRes = 0.5
	DefaultNLV     = 0.005
)

// Spectrum is a simulated linear power spectrum and the parameters used to
// build it
type Spectrum struct {
	Freqs         []float64 `json:"freqs"`
	PowerSpectrum []float64 `json:"power_spectrum"`

	AperiodicParams []float64 `json:"aperiodic_params"`
	PeriodicParams  []float64 `json:"periodic_params"`
	NLV             float64   `json:"nlv"`
}

// GenFreqs returns evenly spaced frequencies covering freqRange inclusively
func GenFreqs(freqRange [2]float64, freqRes float64) ([]float64, error) {
	lo, hi := freqRange[0], freqRange[1]
	if !(freqRes > 0) {
		return nil, fmt.Errorf("frequency resolution must be positive, got %g", freqRes)
	}
	if !(hi >= lo) {
		return nil, fmt.Errorf("frequency range [%g, %g] is inverted", lo, hi)
	}

	n := int(math.Floor((hi-lo)/freqRes+1e-9)) + 1
	freqs := make([]float64, n)
	for i := range freqs {
		freqs[i] = lo + float64(i)*freqRes
	}
	return freqs, nil
}

// AperiodicForParams picks the aperiodic model matching a parameter count:
// two for fixed, three for knee
func AperiodicForParams(params []float64) (modes.AperiodicModel, error) {
	switch len(params) {
	case 2:
		return modes.Fixed{}, nil
	case 3:
		return modes.Knee{}, nil
	default:
		return nil, fmt.Errorf("aperiodic params must have 2 (fixed) or 3 (knee) values, got %d", len(params))
	}
}

// GenAperiodic evaluates the aperiodic component in log10 power
func GenAperiodic(freqs, params []float64) ([]float64, error) {
	m, err := AperiodicForParams(params)
	if err != nil {
		return nil, err
	}
	return m.Evaluate(freqs, params), nil
}

// GenPeriodic evaluates a sum of Gaussian peaks in log10 power. Params are
// consecutive (center, height, std) triples.
func GenPeriodic(freqs, params []float64) ([]float64, error) {
	if len(params)%3 != 0 {
		return nil, fmt.Errorf("periodic params must come in (center, height, std) triples, got %d values", len(params))
	}
	return modes.Gaussian{}.Evaluate(freqs, params), nil
}

// GenPowerSpectrum builds a linear power spectrum: aperiodic plus periodic
// components in log10 space, plus Gaussian noise with standard deviation nlv,
// raised back to linear power. The same seed always yields the same noise.
func GenPowerSpectrum(freqRange [2]float64, apParams, periodicParams []float64, nlv, freqRes float64, seed uint64) (*Spectrum, error) {
	if nlv < 0 {
		return nil, fmt.Errorf("noise level must be >= 0, got %g", nlv)
	}

	freqs, err := GenFreqs(freqRange, freqRes)
	if err != nil {
		return nil, err
	}
	ap, err := GenAperiodic(freqs, apParams)
	if err != nil {
		return nil, err
	}
	pe, err := GenPeriodic(freqs, periodicParams)
	if err != nil {
		return nil, err
	}

	var noise distuv.Normal
	if nlv > 0 {
		noise = distuv.Normal{Mu: 0, Sigma: nlv, Src: rand.NewPCG(seed, seed)}
	}

	power := make([]float64, len(freqs))
	for i := range freqs {
		ys := ap[i] + pe[i]
		if nlv > 0 {
			ys += noise.Rand()
		}
		power[i] = math.Pow(10, ys)
	}

	return &Spectrum{
		Freqs:           freqs,
		PowerSpectrum:   power,
		AperiodicParams: append([]float64(nil), apParams...),
		PeriodicParams:  append([]float64(nil), periodicParams...),
		NLV:             nlv,
	}, nil
}
