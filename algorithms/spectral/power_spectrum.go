package spectral

import (
	"fmt"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	dspspectral "github.com/mjibson/go-dsp/spectral"
	"github.com/mjibson/go-dsp/window"
)

// PSDResult is a one-sided power spectral density in linear units
type PSDResult struct {
	Freqs      []float64 `json:"freqs"`
	Power      []float64 `json:"power_spectrum"`
	SampleRate float64   `json:"sample_rate"`
	NFFT       int       `json:"nfft"`
	Segments   int       `json:"segments"`
}

// FreqRes returns the spacing between frequency bins
func (r *PSDResult) FreqRes() float64 {
	return r.SampleRate / float64(r.NFFT)
}

// PowerSpectrum estimates the power spectral density of a time series
type PowerSpectrum struct {
	sampleRate float64
	nfft       int
	overlap    int
	window     func(int) []float64
}

// NewPowerSpectrum creates an estimator with Hann-windowed segments of nfft
// samples overlapping by half
func NewPowerSpectrum(sampleRate float64, nfft int) *PowerSpectrum {
	return &PowerSpectrum{
		sampleRate: sampleRate,
		nfft:       nfft,
		overlap:    nfft / 2,
		window:     window.Hann,
	}
}

// WithOverlap sets the number of samples shared by consecutive segments
func (ps *PowerSpectrum) WithOverlap(overlap int) *PowerSpectrum {
	ps.overlap = overlap
	return ps
}

// WithWindow sets the segment window
func (ps *PowerSpectrum) WithWindow(w func(int) []float64) *PowerSpectrum {
	ps.window = w
	return ps
}

func (ps *PowerSpectrum) validate(n int) error {
	if !(ps.sampleRate > 0) {
		return fmt.Errorf("sample rate must be positive, got %g", ps.sampleRate)
	}
	if ps.nfft < 2 || ps.nfft%2 != 0 {
		return fmt.Errorf("nfft must be even and at least 2, got %d", ps.nfft)
	}
	if ps.overlap < 0 || ps.overlap >= ps.nfft {
		return fmt.Errorf("overlap must be within [0, %d), got %d", ps.nfft, ps.overlap)
	}
	if n < ps.nfft {
		return fmt.Errorf("signal has %d samples, need at least nfft=%d", n, ps.nfft)
	}
	return nil
}

// Welch averages windowed periodograms over overlapping segments
func (ps *PowerSpectrum) Welch(signal []float64) (*PSDResult, error) {
	if err := ps.validate(len(signal)); err != nil {
		return nil, err
	}

	pxx, freqs := dspspectral.Pwelch(signal, ps.sampleRate, &dspspectral.PwelchOptions{
		NFFT:     ps.nfft,
		Noverlap: ps.overlap,
		Window:   ps.window,
	})

	return &PSDResult{
		Freqs:      freqs,
		Power:      pxx,
		SampleRate: ps.sampleRate,
		NFFT:       ps.nfft,
		Segments:   (len(signal)-ps.nfft)/(ps.nfft-ps.overlap) + 1,
	}, nil
}

// Periodogram computes a single windowed periodogram over the first nfft
// samples. Power is scaled so that summing it over frequency gives the
// windowed signal power.
func (ps *PowerSpectrum) Periodogram(signal []float64) (*PSDResult, error) {
	if err := ps.validate(len(signal)); err != nil {
		return nil, err
	}

	n := ps.nfft
	w := ps.window(n)
	segment := make([]float64, n)
	wss := 0.0
	for i := range n {
		segment[i] = signal[i] * w[i]
		wss += w[i] * w[i]
	}

	spectrum := fft.FFTReal(segment)
	half := n/2 + 1
	scale := 1 / (ps.sampleRate * wss)

	freqs := make([]float64, half)
	power := make([]float64, half)
	for k := range half {
		mag := cmplx.Abs(spectrum[k])
		power[k] = mag * mag * scale
		// interior bins carry the power of their negative-frequency twin
		if k > 0 && k < n/2 {
			power[k] *= 2
		}
		freqs[k] = float64(k) * ps.sampleRate / float64(n)
	}

	return &PSDResult{
		Freqs:      freqs,
		Power:      power,
		SampleRate: ps.sampleRate,
		NFFT:       n,
		Segments:   1,
	}, nil
}
