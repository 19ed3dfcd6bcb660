package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	"github.com/RyanBlaney/sonido-specparam/specparam"
)

// jsonFloat encodes NaN and Inf as null, which encoding/json rejects
type jsonFloat float64

func (f jsonFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, v, 'g', -1, 64), nil
}

func jsonFloats(values []float64) []jsonFloat {
	if values == nil {
		return nil
	}
	out := make([]jsonFloat, len(values))
	for i, v := range values {
		out[i] = jsonFloat(v)
	}
	return out
}

// fitOutput is the JSON form of one fit
type fitOutput struct {
	Index    *int   `json:"index,omitempty"`
	HasModel bool   `json:"has_model"`
	Failure  string `json:"failure,omitempty"`

	AperiodicMode   string                    `json:"aperiodic_mode,omitempty"`
	AperiodicParams []jsonFloat               `json:"aperiodic_params"`
	PeakParams      []specparam.Peak          `json:"peak_params"`
	GaussianParams  []specparam.PeakCandidate `json:"gaussian_params"`

	RSquared    jsonFloat `json:"r_squared"`
	AdjRSquared jsonFloat `json:"adj_r_squared"`
	Error       jsonFloat `json:"error"`
	ErrorMetric string    `json:"error_metric,omitempty"`

	Freqs           []jsonFloat `json:"freqs,omitempty"`
	PowerSpectrum   []jsonFloat `json:"power_spectrum,omitempty"`
	ModeledSpectrum []jsonFloat `json:"modeled_spectrum,omitempty"`
	ApFit           []jsonFloat `json:"ap_fit,omitempty"`
	PeakFit         []jsonFloat `json:"peak_fit,omitempty"`
}

func newFitOutput(res *specparam.FitResult, withSpectra bool) fitOutput {
	out := fitOutput{
		HasModel:        res.HasModel(),
		AperiodicMode:   res.AperiodicMode,
		AperiodicParams: jsonFloats(res.AperiodicParams),
		PeakParams:      res.PeakParams,
		GaussianParams:  res.GaussianParams,
		RSquared:        jsonFloat(res.RSquared),
		AdjRSquared:     jsonFloat(res.AdjRSquared),
		Error:           jsonFloat(res.Error),
		ErrorMetric:     res.ErrorMetric,
	}
	if withSpectra {
		out.Freqs = jsonFloats(res.Freqs)
		out.PowerSpectrum = jsonFloats(res.PowerSpectrum)
		out.ModeledSpectrum = jsonFloats(res.ModeledSpectrum)
		out.ApFit = jsonFloats(res.ApFit)
		out.PeakFit = jsonFloats(res.PeakFit)
	}
	return out
}

func failedOutput(index int, err error) fitOutput {
	return fitOutput{
		Index:       &index,
		Failure:     err.Error(),
		RSquared:    jsonFloat(math.NaN()),
		AdjRSquared: jsonFloat(math.NaN()),
		Error:       jsonFloat(math.NaN()),
	}
}

// writeJSON writes v as indented JSON to path, or to w when path is empty or "-"
func writeJSON(w io.Writer, path string, v any) error {
	if path != "" && path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readJSON decodes path, or r when path is "-"
func readJSON(r io.Reader, path string, v any) error {
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open input: %w", err)
		}
		defer f.Close()
		r = f
	}

	if err := json.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("failed to decode input: %w", err)
	}
	return nil
}
