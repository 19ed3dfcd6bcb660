package specparam

import (
	"cmp"
	"math"
	"slices"

	"github.com/RyanBlaney/sonido-specparam/algorithms/common"
	"github.com/RyanBlaney/sonido-specparam/algorithms/optimize"
	"github.com/RyanBlaney/sonido-specparam/specparam/config"
	"github.com/RyanBlaney/sonido-specparam/specparam/modes"
	"gonum.org/v1/gonum/floats"
)

// PeakCandidate is one peak in fit space: the parameters handed to and
// returned by the solver
type PeakCandidate struct {
	Center float64 `json:"center"`
	Height float64 `json:"height"`
	Std    float64 `json:"std"`
}

func (c PeakCandidate) params() []float64 {
	return []float64{c.Center, c.Height, c.Std}
}

// PeakExtractor finds peaks in a flattened spectrum: a greedy search builds
// guesses, edge and overlap rules prune them, and a joint fit refines them
type PeakExtractor struct {
	periodic modes.PeriodicModel

	widthLimits   [2]float64
	stdLimits     [2]float64
	maxNPeaks     int
	minPeakHeight float64
	peakThreshold float64

	bwStdEdge     float64
	overlapThresh float64
	cfBound       float64

	solver optimize.Settings
}

// NewPeakExtractor creates a Gaussian peak extractor from the given settings
func NewPeakExtractor(settings config.ModelSettings, algo config.AlgorithmSettings) *PeakExtractor {
	solver := optimize.DefaultSettings()
	solver.MaxEvaluations = algo.MaxEvaluations

	return &PeakExtractor{
		periodic:      modes.Gaussian{},
		widthLimits:   settings.PeakWidthLimits,
		stdLimits:     settings.GaussStdLimits(),
		maxNPeaks:     settings.PeakLimit(),
		minPeakHeight: settings.MinPeakHeight,
		peakThreshold: settings.PeakThreshold,
		bwStdEdge:     algo.BWStdEdge,
		overlapThresh: algo.GaussOverlapThresh,
		cfBound:       algo.CFBound,
		solver:        solver,
	}
}

// Fit runs the full peak procedure on a flattened spectrum and returns the
// fitted peaks sorted by center frequency
func (p *PeakExtractor) Fit(freqs, flat []float64, freqRange [2]float64, freqRes float64) ([]PeakCandidate, error) {
	guess := p.Guess(freqs, flat, freqRange, freqRes)
	if len(guess) == 0 {
		return []PeakCandidate{}, nil
	}
	return p.FitGuess(freqs, flat, guess, freqRange)
}

// Guess runs the search and both pruning rules
func (p *PeakExtractor) Guess(freqs, flat []float64, freqRange [2]float64, freqRes float64) []PeakCandidate {
	guess := p.Search(freqs, flat, freqRes)
	guess = p.DropEdgePeaks(guess, freqRange)
	return p.DropOverlapPeaks(guess)
}

// Search greedily collects peak guesses. flat is not modified.
//
// Each round takes the highest residual bin as a candidate, estimates its
// width from the nearer half-height crossing, and subtracts the guessed
// peak before looking again. The search stops at the peak limit or once the
// highest residual no longer clears both the relative and absolute height
// thresholds.
func (p *PeakExtractor) Search(freqs, flat []float64, freqRes float64) []PeakCandidate {
	residual := slices.Clone(flat)
	guess := []PeakCandidate{}

	for len(guess) < p.maxNPeaks {
		maxInd := common.ArgMax(residual)
		if maxInd < 0 {
			break
		}
		maxHeight := residual[maxInd]

		if maxHeight <= p.peakThreshold*common.PopStdDev(residual) {
			break
		}
		if !(maxHeight > p.minPeakHeight) {
			break
		}

		std := p.guessStd(residual, maxInd, maxHeight, freqRes)

		cand := PeakCandidate{Center: freqs[maxInd], Height: maxHeight, Std: std}
		guess = append(guess, cand)
		floats.Sub(residual, p.periodic.Evaluate(freqs, cand.params()))
	}

	return guess
}

// guessStd estimates a Gaussian std from the shorter side of the peak, which
// avoids inflated widths when a neighbouring peak overlaps one side
func (p *PeakExtractor) guessStd(residual []float64, maxInd int, maxHeight, freqRes float64) float64 {
	half := 0.5 * maxHeight

	shortSide := -1
	// the left walk stops before bin 0
	for i := maxInd - 1; i > 0; i-- {
		if residual[i] <= half {
			shortSide = maxInd - i
			break
		}
	}
	for i := maxInd + 1; i < len(residual); i++ {
		if residual[i] <= half {
			if d := i - maxInd; shortSide < 0 || d < shortSide {
				shortSide = d
			}
			break
		}
	}

	var std float64
	if shortSide > 0 {
		fwhm := float64(shortSide) * 2 * freqRes
		std = modes.GaussStdFromFWHM(fwhm)
	} else {
		std = (p.widthLimits[0] + p.widthLimits[1]) / 2
	}

	return common.Clamp(std, p.stdLimits[0], p.stdLimits[1])
}

// DropEdgePeaks removes guesses centered within bwStdEdge stds of either end
// of the frequency range
func (p *PeakExtractor) DropEdgePeaks(guess []PeakCandidate, freqRange [2]float64) []PeakCandidate {
	kept := make([]PeakCandidate, 0, len(guess))
	for _, g := range guess {
		edge := g.Std * p.bwStdEdge
		if math.Abs(g.Center-freqRange[0]) > edge && math.Abs(g.Center-freqRange[1]) > edge {
			kept = append(kept, g)
		}
	}
	return kept
}

// DropOverlapPeaks sorts guesses by center and, for each adjacent pair whose
// windows (center +/- overlapThresh*std) intersect, drops the lower one.
// Pairs are judged on the full sorted list in a single pass; on equal
// heights the left guess is dropped.
func (p *PeakExtractor) DropOverlapPeaks(guess []PeakCandidate) []PeakCandidate {
	sorted := slices.Clone(guess)
	slices.SortStableFunc(sorted, func(a, b PeakCandidate) int {
		return cmp.Compare(a.Center, b.Center)
	})

	drop := make([]bool, len(sorted))
	for i := 0; i+1 < len(sorted); i++ {
		left, right := sorted[i], sorted[i+1]
		leftUpper := left.Center + left.Std*p.overlapThresh
		rightLower := right.Center - right.Std*p.overlapThresh
		if leftUpper > rightLower {
			if right.Height < left.Height {
				drop[i+1] = true
			} else {
				drop[i] = true
			}
		}
	}

	kept := make([]PeakCandidate, 0, len(sorted))
	for i, g := range sorted {
		if !drop[i] {
			kept = append(kept, g)
		}
	}
	return kept
}

// FitGuess refines all guesses in a single joint fit against the flattened
// spectrum. Centers may move 2*cfBound stds from the guess, clipped to the
// data range; heights stay non-negative; stds stay within the width limits.
func (p *PeakExtractor) FitGuess(freqs, flat []float64, guess []PeakCandidate, freqRange [2]float64) ([]PeakCandidate, error) {
	n := len(guess) * 3
	x0 := make([]float64, 0, n)
	lower := make([]float64, 0, n)
	upper := make([]float64, 0, n)

	for _, g := range guess {
		cfLo := g.Center - 2*p.cfBound*g.Std
		cfHi := g.Center + 2*p.cfBound*g.Std
		if !(cfLo > freqRange[0]) {
			cfLo = freqRange[0]
		}
		if !(cfHi < freqRange[1]) {
			cfHi = freqRange[1]
		}

		x0 = append(x0, g.params()...)
		lower = append(lower, cfLo, 0, p.stdLimits[0])
		upper = append(upper, cfHi, math.Inf(1), p.stdLimits[1])
	}

	problem := optimize.Problem{
		X:    freqs,
		Y:    flat,
		Func: p.periodic.Evaluate,
	}
	if jac, ok := p.periodic.(modes.Jacobian); ok {
		problem.Jac = jac.Jacobian
	}

	res, err := optimize.CurveFit(problem, x0, lower, upper, p.solver)
	if err != nil {
		return nil, solverError(StagePeakFit, err)
	}

	fitted := make([]PeakCandidate, len(guess))
	for i := range fitted {
		fitted[i] = PeakCandidate{
			Center: res.Params[3*i],
			Height: res.Params[3*i+1],
			Std:    res.Params[3*i+2],
		}
	}
	slices.SortStableFunc(fitted, func(a, b PeakCandidate) int {
		return cmp.Compare(a.Center, b.Center)
	})

	return fitted, nil
}
