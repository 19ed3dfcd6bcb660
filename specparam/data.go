package specparam

import (
	"math"
	"slices"

	"github.com/RyanBlaney/sonido-specparam/algorithms/common"
	"github.com/RyanBlaney/sonido-specparam/logging"
)

// Numeric lists the element types accepted as spectrum input. Complex types
// are accepted only so that they can be rejected with a DataError.
type Numeric interface {
	int | int32 | int64 | float32 | float64 | complex64 | complex128
}

// SpectralData is one validated power spectrum. Power is stored in log10.
// Values are never modified after construction; accessors return copies.
type SpectralData struct {
	freqs     []float64
	power     []float64
	freqRange [2]float64
	freqRes   float64
}

type dataOptions struct {
	freqRange  *[2]float64
	checkFreqs bool
	checkData  bool
	logger     logging.Logger
}

// DataOption configures NewSpectralData
type DataOption func(*dataOptions)

// WithFreqRange restricts the spectrum to [lo, hi] Hz, inclusive
func WithFreqRange(lo, hi float64) DataOption {
	return func(o *dataOptions) {
		o.freqRange = &[2]float64{lo, hi}
	}
}

// WithCheckFreqs toggles the even-spacing check
func WithCheckFreqs(check bool) DataOption {
	return func(o *dataOptions) {
		o.checkFreqs = check
	}
}

// WithCheckData toggles the NaN/Inf check on the logged power values
func WithCheckData(check bool) DataOption {
	return func(o *dataOptions) {
		o.checkData = check
	}
}

// WithDataLogger sets the logger used for input warnings
func WithDataLogger(logger logging.Logger) DataOption {
	return func(o *dataOptions) {
		o.logger = logger
	}
}

// NewSpectralData validates a frequency vector and a linear power spectrum,
// optionally trims it to a frequency range, and converts power to log10.
//
// A leading 0 Hz bin is dropped with a warning since the aperiodic function
// is undefined there.
func NewSpectralData[F, P Numeric](freqs []F, power []P, opts ...DataOption) (*SpectralData, error) {
	o := dataOptions{
		checkFreqs: true,
		checkData:  true,
		logger:     logging.GetGlobalLogger(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = &logging.NoOpLogger{}
	}

	if len(freqs) != len(power) {
		return nil, dataErrorf("the input frequencies and power spectrum are not consistent size (%d vs %d)", len(freqs), len(power))
	}
	if len(freqs) == 0 {
		return nil, dataErrorf("the input frequencies and power spectrum are empty")
	}

	fs, complexFreqs := toFloat64s(freqs)
	ps, complexPower := toFloat64s(power)
	if complexPower {
		return nil, dataErrorf("input power spectrum contains complex values, which are not supported")
	}
	if complexFreqs {
		return nil, dataErrorf("input frequencies contain complex values, which are not supported")
	}

	if o.freqRange != nil {
		lo, hi := o.freqRange[0], o.freqRange[1]
		if !(lo <= hi) {
			return nil, dataErrorf("frequency range [%g, %g] is inverted", lo, hi)
		}
		fs, ps = trimSpectrum(fs, ps, lo, hi)
	}

	if len(fs) > 0 && fs[0] == 0.0 {
		fs, ps = fs[1:], ps[1:]
		o.logger.Warn("skipping frequency == 0, as this causes a problem with fitting")
	}

	if len(fs) < 2 {
		return nil, dataErrorf("at least two frequency bins are required, got %d", len(fs))
	}

	freqRes := fs[1] - fs[0]
	for i := 1; i < len(fs); i++ {
		if !(fs[i] > fs[i-1]) {
			return nil, dataErrorf("the input frequency values are not strictly increasing (index %d)", i)
		}
	}

	if o.checkFreqs {
		for i := 1; i < len(fs); i++ {
			if !common.IsClose(fs[i]-fs[i-1], freqRes, 1e-5, 1e-8) {
				return nil, dataErrorf("the input frequency values are not evenly spaced; equidistant frequency values in linear space are required")
			}
		}
	}

	logPower := make([]float64, len(ps))
	for i, v := range ps {
		logPower[i] = math.Log10(v)
	}

	if o.checkData && !common.AllFinite(logPower) {
		return nil, dataErrorf("the input power spectrum, after logging, contains NaNs or Infs; " +
			"this can happen if inputs are already logged or non-positive, inputs should be in linear spacing")
	}

	return &SpectralData{
		freqs:     fs,
		power:     logPower,
		freqRange: [2]float64{fs[0], fs[len(fs)-1]},
		freqRes:   freqRes,
	}, nil
}

func toFloat64s[T Numeric](values []T) ([]float64, bool) {
	out := make([]float64, len(values))
	switch s := any(values).(type) {
	case []complex64, []complex128:
		return nil, true
	case []float64:
		copy(out, s)
	case []float32:
		for i, v := range s {
			out[i] = float64(v)
		}
	case []int:
		for i, v := range s {
			out[i] = float64(v)
		}
	case []int32:
		for i, v := range s {
			out[i] = float64(v)
		}
	case []int64:
		for i, v := range s {
			out[i] = float64(v)
		}
	}
	return out, false
}

func trimSpectrum(freqs, power []float64, lo, hi float64) ([]float64, []float64) {
	var fs, ps []float64
	for i, f := range freqs {
		if f >= lo && f <= hi {
			fs = append(fs, f)
			ps = append(ps, power[i])
		}
	}
	return fs, ps
}

// Freqs returns a copy of the frequency vector
func (d *SpectralData) Freqs() []float64 {
	return slices.Clone(d.freqs)
}

// PowerSpectrum returns a copy of the log10 power values
func (d *SpectralData) PowerSpectrum() []float64 {
	return slices.Clone(d.power)
}

// FreqRange returns the [min, max] frequency of the data
func (d *SpectralData) FreqRange() [2]float64 {
	return d.freqRange
}

// FreqRes returns the spacing between frequency bins
func (d *SpectralData) FreqRes() float64 {
	return d.freqRes
}

// Len returns the number of frequency bins
func (d *SpectralData) Len() int {
	if d == nil {
		return 0
	}
	return len(d.freqs)
}
