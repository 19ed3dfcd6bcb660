package specparam

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/RyanBlaney/sonido-specparam/algorithms/common"
	"github.com/RyanBlaney/sonido-specparam/logging"
	"github.com/RyanBlaney/sonido-specparam/specparam/config"
	"github.com/RyanBlaney/sonido-specparam/specparam/modes"
)

// FitResult holds the parameters and model spectra of one fit. A result
// returned from a failed fit has NaN parameters and no model spectra; see
// HasModel.
type FitResult struct {
	AperiodicParams []float64       `json:"aperiodic_params"`
	AperiodicMode   string          `json:"aperiodic_mode"`
	PeakParams      []Peak          `json:"peak_params"`
	GaussianParams  []PeakCandidate `json:"gaussian_params"`

	RSquared    float64 `json:"r_squared"`
	AdjRSquared float64 `json:"adj_r_squared"`
	Error       float64 `json:"error"`
	ErrorMetric string  `json:"error_metric"`

	Freqs           []float64 `json:"freqs"`
	PowerSpectrum   []float64 `json:"power_spectrum"`
	ModeledSpectrum []float64 `json:"modeled_spectrum,omitempty"`
	ApFit           []float64 `json:"ap_fit,omitempty"`
	PeakFit         []float64 `json:"peak_fit,omitempty"`
	SpectrumFlat    []float64 `json:"spectrum_flat,omitempty"`
	SpectrumPeakRm  []float64 `json:"spectrum_peak_rm,omitempty"`
}

// HasModel reports whether the result carries a fitted model
func (r *FitResult) HasModel() bool {
	if r == nil || len(r.AperiodicParams) == 0 {
		return false
	}
	for _, v := range r.AperiodicParams {
		if !math.IsNaN(v) {
			return true
		}
	}
	return false
}

// PointwiseError returns |data - model| for every frequency bin
func (r *FitResult) PointwiseError() ([]float64, error) {
	if !r.HasModel() {
		return nil, ErrNoModel
	}
	out := common.Subtract(r.PowerSpectrum, r.ModeledSpectrum)
	for i, v := range out {
		out[i] = math.Abs(v)
	}
	return out, nil
}

// Param returns a copy of a named result: aperiodic, peak, gaussian,
// r_squared, adj_r_squared or error
func (r *FitResult) Param(name string) (any, error) {
	if !r.HasModel() {
		return nil, ErrNoModel
	}
	switch name {
	case "aperiodic":
		return slices.Clone(r.AperiodicParams), nil
	case "peak":
		return slices.Clone(r.PeakParams), nil
	case "gaussian":
		return slices.Clone(r.GaussianParams), nil
	case "r_squared":
		return r.RSquared, nil
	case "adj_r_squared":
		return r.AdjRSquared, nil
	case "error":
		return r.Error, nil
	default:
		return nil, fmt.Errorf("unknown result parameter %q", name)
	}
}

// NullResult is the result of a fit that could not be completed: NaN
// aperiodic parameters of the mode's length, no peaks, NaN metrics. The
// input spectrum is kept so the failure can be inspected.
func NullResult(mode modes.AperiodicModel, metric string, data *SpectralData) *FitResult {
	r := &FitResult{
		AperiodicParams: common.Filled(mode.NParams(), math.NaN()),
		AperiodicMode:   mode.Name(),
		PeakParams:      []Peak{},
		GaussianParams:  []PeakCandidate{},
		RSquared:        math.NaN(),
		AdjRSquared:     math.NaN(),
		Error:           math.NaN(),
		ErrorMetric:     metric,
	}
	if data.Len() > 0 {
		r.Freqs = data.Freqs()
		r.PowerSpectrum = data.PowerSpectrum()
	}
	return r
}

// Fitter parameterizes power spectra. It holds only immutable settings and
// is safe for concurrent use.
type Fitter struct {
	settings config.ModelSettings
	algo     config.AlgorithmSettings

	aperiodic *AperiodicEstimator
	peaks     *PeakExtractor
	logger    logging.Logger
}

type fitterOptions struct {
	logger    logging.Logger
	aperiodic modes.AperiodicModel
	periodic  modes.PeriodicModel
}

// FitterOption configures a Fitter
type FitterOption func(*fitterOptions)

// WithLogger sets the logger used by the fitter
func WithLogger(logger logging.Logger) FitterOption {
	return func(o *fitterOptions) {
		o.logger = logger
	}
}

// WithAperiodicModel replaces the aperiodic model named in the settings
func WithAperiodicModel(m modes.AperiodicModel) FitterOption {
	return func(o *fitterOptions) {
		o.aperiodic = m
	}
}

// WithPeriodicModel replaces the Gaussian peak model. The model must use
// three parameters per peak: center, height, width.
func WithPeriodicModel(m modes.PeriodicModel) FitterOption {
	return func(o *fitterOptions) {
		o.periodic = m
	}
}

// NewFitter validates the settings and builds a fitter
func NewFitter(settings config.ModelSettings, algo config.AlgorithmSettings, opts ...FitterOption) (*Fitter, error) {
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid model settings: %w", err)
	}
	if err := algo.Validate(); err != nil {
		return nil, fmt.Errorf("invalid algorithm settings: %w", err)
	}

	o := fitterOptions{
		logger:   logging.GetGlobalLogger(),
		periodic: modes.Gaussian{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = &logging.NoOpLogger{}
	}

	if o.aperiodic == nil {
		m, err := modes.AperiodicByName(settings.AperiodicMode)
		if err != nil {
			return nil, err
		}
		o.aperiodic = m
	}
	if o.periodic.NParams() != 3 {
		return nil, fmt.Errorf("periodic model %q uses %d parameters per peak, want 3",
			o.periodic.Name(), o.periodic.NParams())
	}

	peaks := NewPeakExtractor(settings, algo)
	peaks.periodic = o.periodic

	return &Fitter{
		settings:  settings,
		algo:      algo,
		aperiodic: NewAperiodicEstimator(o.aperiodic, algo),
		peaks:     peaks,
		logger:    o.logger.WithFields(logging.Fields{"component": "specparam"}),
	}, nil
}

// Settings returns the settings the fitter was built with
func (f *Fitter) Settings() (config.ModelSettings, config.AlgorithmSettings) {
	return f.settings, f.algo
}

// AperiodicModel returns the aperiodic model in use
func (f *Fitter) AperiodicModel() modes.AperiodicModel {
	return f.aperiodic.Mode()
}

// FitSpectrum validates a linear power spectrum using the fitter's check
// settings and fits it. A nil freqRange fits the whole spectrum.
func (f *Fitter) FitSpectrum(freqs, power []float64, freqRange *[2]float64) (*FitResult, error) {
	opts := []DataOption{
		WithCheckFreqs(f.algo.CheckFreqs),
		WithCheckData(f.algo.CheckData),
		WithDataLogger(f.logger),
	}
	if freqRange != nil {
		opts = append(opts, WithFreqRange(freqRange[0], freqRange[1]))
	}

	data, err := NewSpectralData(freqs, power, opts...)
	if err != nil {
		return nil, err
	}
	return f.Fit(data)
}

// Fit parameterizes one spectrum.
//
// Numerical failures produce a NullResult and a nil error, unless
// AlgorithmSettings.Debug is set, in which case the *FitError is returned.
// Input problems are always returned as errors.
func (f *Fitter) Fit(data *SpectralData) (*FitResult, error) {
	if data.Len() == 0 {
		return nil, ErrNoData
	}

	if 1.5*data.freqRes >= f.settings.PeakWidthLimits[0] {
		f.logger.Warn("lower-bound peak width limit is < or ~= the frequency resolution; "+
			"lower-bound peak width limit should be at least twice the frequency resolution",
			logging.Fields{
				"freq_res":         data.freqRes,
				"peak_width_lower": f.settings.PeakWidthLimits[0],
			})
	}

	comps, err := f.fitComponents(data)
	if err != nil {
		var fe *FitError
		if errors.As(err, &fe) && !f.algo.Debug {
			f.logger.Debug("model fitting was unsuccessful", logging.Fields{
				"stage": string(fe.Stage),
				"kind":  fe.Kind.String(),
				"error": err.Error(),
			})
			return NullResult(f.aperiodic.Mode(), f.algo.ErrorMetric, data), nil
		}
		return nil, err
	}

	return f.assemble(data, comps)
}

// fitComponents runs the two-pass procedure: a robust aperiodic fit to
// flatten the spectrum, peak fitting on the flattened spectrum, and a final
// aperiodic fit on the spectrum with the peaks removed.
func (f *Fitter) fitComponents(data *SpectralData) (*components, error) {
	freqs, spectrum := data.freqs, data.power
	mode := f.aperiodic.Mode()

	apInit, err := f.aperiodic.RobustFit(freqs, spectrum)
	if err != nil {
		return nil, err
	}
	flatInit := common.Subtract(spectrum, mode.Evaluate(freqs, apInit))

	gauss, err := f.peaks.Fit(freqs, flatInit, data.freqRange, data.freqRes)
	if err != nil {
		return nil, err
	}
	peakFit := evaluatePeaks(f.peaks.periodic, freqs, gauss)

	peakRm := common.Subtract(spectrum, peakFit)
	apParams, err := f.aperiodic.SimpleFit(freqs, peakRm, nil, nil)
	if err != nil {
		return nil, err
	}
	apFit := mode.Evaluate(freqs, apParams)

	return &components{
		apFit:    apFit,
		peakFit:  peakFit,
		flat:     common.Subtract(spectrum, apFit),
		peakRm:   peakRm,
		modeled:  common.Add(apFit, peakFit),
		apParams: apParams,
		gauss:    gauss,
	}, nil
}

func (f *Fitter) assemble(data *SpectralData, c *components) (*FitResult, error) {
	spectrum := data.PowerSpectrum()

	r2 := rSquared(spectrum, c.modeled)
	nParams := len(c.apParams) + 3*len(c.gauss)

	errVal, err := fitError(f.algo.ErrorMetric, spectrum, c.modeled)
	if err != nil {
		return nil, err
	}

	result := &FitResult{
		AperiodicParams: c.apParams,
		AperiodicMode:   f.aperiodic.Mode().Name(),
		PeakParams:      peaksFromGaussians(data.freqs, c.modeled, c.apFit, c.gauss),
		GaussianParams:  c.gauss,
		RSquared:        r2,
		AdjRSquared:     adjRSquared(r2, len(spectrum), nParams),
		Error:           errVal,
		ErrorMetric:     f.algo.ErrorMetric,
		Freqs:           data.Freqs(),
		PowerSpectrum:   spectrum,
		ModeledSpectrum: c.modeled,
		ApFit:           c.apFit,
		PeakFit:         c.peakFit,
		SpectrumFlat:    c.flat,
		SpectrumPeakRm:  c.peakRm,
	}

	f.logger.Debug("model fit complete", logging.Fields{
		"n_peaks":   len(c.gauss),
		"r_squared": r2,
	})

	return result, nil
}
