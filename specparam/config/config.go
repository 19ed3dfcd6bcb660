package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// UnlimitedPeaks disables the cap on the number of fitted peaks
const UnlimitedPeaks = -1

// ErrConfigNotFound is returned when the settings file does not exist
var ErrConfigNotFound = errors.New("configuration file not found")

// ModelSettings are the user-facing knobs of a spectral fit
type ModelSettings struct {
	PeakWidthLimits [2]float64 `json:"peak_width_limits" yaml:"peak_width_limits"` // [lower, upper] Hz
	MaxNPeaks       int        `json:"max_n_peaks" yaml:"max_n_peaks"`             // -1 for unlimited
	MinPeakHeight   float64    `json:"min_peak_height" yaml:"min_peak_height"`     // absolute, log10 power
	PeakThreshold   float64    `json:"peak_threshold" yaml:"peak_threshold"`       // in std units of the residual
	AperiodicMode   string     `json:"aperiodic_mode" yaml:"aperiodic_mode"`       // "fixed", "knee"
}

// APGuess overrides the data-driven starting point of the aperiodic fit.
// A nil pointer means "derive from the data".
type APGuess struct {
	Offset   *float64 `json:"offset,omitempty" yaml:"offset,omitempty"`
	Knee     float64  `json:"knee" yaml:"knee"`
	Exponent *float64 `json:"exponent,omitempty" yaml:"exponent,omitempty"`
}

// AlgorithmSettings are the internal constants of the fitting procedure
type AlgorithmSettings struct {
	// Fraction of the flattened spectrum kept for the robust aperiodic refit
	APPercentileThresh float64 `json:"ap_percentile_thresh" yaml:"ap_percentile_thresh"`
	APGuess            APGuess `json:"ap_guess" yaml:"ap_guess"`

	// Peaks closer than BWStdEdge stds to either edge are dropped
	BWStdEdge float64 `json:"bw_std_edge" yaml:"bw_std_edge"`
	// Overlap window half-width, in stds
	GaussOverlapThresh float64 `json:"gauss_overlap_thresh" yaml:"gauss_overlap_thresh"`
	// Center frequency may move 2*CFBound stds from its guess
	CFBound float64 `json:"cf_bound" yaml:"cf_bound"`

	MaxEvaluations int    `json:"max_evaluations" yaml:"max_evaluations"`
	ErrorMetric    string `json:"error_metric" yaml:"error_metric"` // "MAE", "MSE", "RMSE"

	Debug      bool `json:"debug" yaml:"debug"`
	CheckFreqs bool `json:"check_freqs" yaml:"check_freqs"`
	CheckData  bool `json:"check_data" yaml:"check_data"`
}

// File is the on-disk layout of a settings file
type File struct {
	Model     ModelSettings     `json:"model" yaml:"model"`
	Algorithm AlgorithmSettings `json:"algorithm" yaml:"algorithm"`
	LogLevel  string            `json:"log_level,omitempty" yaml:"log_level,omitempty"`
}

// DefaultModelSettings returns the standard fitting settings
func DefaultModelSettings() ModelSettings {
	return ModelSettings{
		PeakWidthLimits: [2]float64{0.5, 12.0},
		MaxNPeaks:       UnlimitedPeaks,
		MinPeakHeight:   0.0,
		PeakThreshold:   2.0,
		AperiodicMode:   "fixed",
	}
}

// DefaultAlgorithmSettings returns the standard internal constants
func DefaultAlgorithmSettings() AlgorithmSettings {
	return AlgorithmSettings{
		APPercentileThresh: 0.025,
		APGuess:            APGuess{Knee: 0},
		BWStdEdge:          1.0,
		GaussOverlapThresh: 0.75,
		CFBound:            1.5,
		MaxEvaluations:     5000,
		ErrorMetric:        "MAE",
		Debug:              false,
		CheckFreqs:         true,
		CheckData:          true,
	}
}

// DefaultFile returns a settings file populated with defaults
func DefaultFile() File {
	return File{
		Model:     DefaultModelSettings(),
		Algorithm: DefaultAlgorithmSettings(),
		LogLevel:  "info",
	}
}

// PeakLimit returns the peak cap as a usable integer
func (s ModelSettings) PeakLimit() int {
	if s.MaxNPeaks < 0 {
		return math.MaxInt
	}
	return s.MaxNPeaks
}

// GaussStdLimits converts the width limits (two-sided bandwidth) to Gaussian stds
func (s ModelSettings) GaussStdLimits() [2]float64 {
	return [2]float64{s.PeakWidthLimits[0] / 2, s.PeakWidthLimits[1] / 2}
}

// Validate checks the model settings for internal consistency
func (s ModelSettings) Validate() error {
	lo, hi := s.PeakWidthLimits[0], s.PeakWidthLimits[1]
	if !(lo > 0) || !(hi > lo) || math.IsInf(hi, 0) {
		return fmt.Errorf("peak_width_limits must satisfy 0 < lower < upper < inf, got [%g, %g]", lo, hi)
	}
	if s.MaxNPeaks < UnlimitedPeaks {
		return fmt.Errorf("max_n_peaks must be >= 0 or %d for unlimited, got %d", UnlimitedPeaks, s.MaxNPeaks)
	}
	if !(s.MinPeakHeight >= 0) {
		return fmt.Errorf("min_peak_height must be >= 0, got %g", s.MinPeakHeight)
	}
	if !(s.PeakThreshold >= 0) {
		return fmt.Errorf("peak_threshold must be >= 0, got %g", s.PeakThreshold)
	}
	switch strings.ToLower(s.AperiodicMode) {
	case "fixed", "knee", "":
	default:
		return fmt.Errorf("aperiodic_mode must be fixed or knee, got %q", s.AperiodicMode)
	}
	return nil
}

// Validate checks the algorithm settings
func (a AlgorithmSettings) Validate() error {
	if !(a.APPercentileThresh >= 0 && a.APPercentileThresh <= 1) {
		return fmt.Errorf("ap_percentile_thresh must be within [0, 1], got %g", a.APPercentileThresh)
	}
	if !(a.BWStdEdge >= 0) {
		return fmt.Errorf("bw_std_edge must be >= 0, got %g", a.BWStdEdge)
	}
	if !(a.GaussOverlapThresh >= 0) {
		return fmt.Errorf("gauss_overlap_thresh must be >= 0, got %g", a.GaussOverlapThresh)
	}
	if !(a.CFBound > 0) {
		return fmt.Errorf("cf_bound must be > 0, got %g", a.CFBound)
	}
	if a.MaxEvaluations <= 0 {
		return fmt.Errorf("max_evaluations must be > 0, got %d", a.MaxEvaluations)
	}
	switch strings.ToUpper(a.ErrorMetric) {
	case "MAE", "MSE", "RMSE":
	default:
		return fmt.Errorf("error_metric must be MAE, MSE or RMSE, got %q", a.ErrorMetric)
	}
	return nil
}

// LoadFile reads a YAML settings file. Missing keys keep their defaults.
// If the file does not exist, it returns ErrConfigNotFound.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	cf := DefaultFile()
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if err := cf.Model.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := cf.Algorithm.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return &cf, nil
}

// WriteFile stores settings as YAML
func WriteFile(path string, f File) error {
	data, err := yaml.Marshal(f)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
