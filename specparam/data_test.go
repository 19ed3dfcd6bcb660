package specparam

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/RyanBlaney/sonido-specparam/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func linearPower(freqs []float64, offset, exp float64) []float64 {
	out := make([]float64, len(freqs))
	for i, f := range freqs {
		out[i] = math.Pow(10, offset) / math.Pow(f, exp)
	}
	return out
}

func TestNewSpectralDataDropsZeroFrequency(t *testing.T) {
	var out bytes.Buffer
	logger := logging.NewDefaultLoggerWithWriters(&out, &out)

	freqs := []float64{0, 1, 2, 3, 4}
	power := []float64{5, 10, 100, 1000, 10000}

	d, err := NewSpectralData(freqs, power, WithDataLogger(logger))
	require.NoError(t, err)

	assert.Equal(t, []float64{1, 2, 3, 4}, d.Freqs())
	assert.InDeltaSlice(t, []float64{1, 2, 3, 4}, d.PowerSpectrum(), 1e-12)
	assert.Equal(t, [2]float64{1, 4}, d.FreqRange())
	assert.Equal(t, 1.0, d.FreqRes())
	assert.Equal(t, 4, d.Len())
	assert.Contains(t, out.String(), "[WARN] skipping frequency == 0")
}

func TestNewSpectralDataAcceptsIntegerInput(t *testing.T) {
	d, err := NewSpectralData([]int{1, 2, 3}, []int32{10, 100, 1000}, WithDataLogger(nil))
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1, 2, 3}, d.PowerSpectrum(), 1e-12)
}

func TestNewSpectralDataTrimsInclusive(t *testing.T) {
	freqs := []float64{1, 2, 3, 4, 5, 6}
	d, err := NewSpectralData(freqs, linearPower(freqs, 1, 1), WithFreqRange(2, 5))
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 3, 4, 5}, d.Freqs())
	assert.Equal(t, [2]float64{2, 5}, d.FreqRange())
}

func TestNewSpectralDataAccessorsReturnCopies(t *testing.T) {
	freqs := []float64{1, 2, 3}
	d, err := NewSpectralData(freqs, []float64{1, 1, 1})
	require.NoError(t, err)

	got := d.Freqs()
	got[0] = 99
	p := d.PowerSpectrum()
	p[0] = 99
	freqs[1] = 99

	assert.Equal(t, []float64{1, 2, 3}, d.Freqs())
	assert.Equal(t, []float64{0, 0, 0}, d.PowerSpectrum())
}

func TestNewSpectralDataErrors(t *testing.T) {
	tests := []struct {
		name string
		run  func() error
	}{
		{"length mismatch", func() error {
			_, err := NewSpectralData([]float64{1, 2, 3}, []float64{1, 2})
			return err
		}},
		{"empty", func() error {
			_, err := NewSpectralData([]float64{}, []float64{})
			return err
		}},
		{"complex power", func() error {
			_, err := NewSpectralData([]float64{1, 2}, []complex128{1, 2})
			return err
		}},
		{"inverted range", func() error {
			_, err := NewSpectralData([]float64{1, 2, 3}, []float64{1, 1, 1}, WithFreqRange(3, 1))
			return err
		}},
		{"single bin after trim", func() error {
			_, err := NewSpectralData([]float64{1, 2, 3}, []float64{1, 1, 1}, WithFreqRange(2, 2))
			return err
		}},
		{"only zero frequency and one bin", func() error {
			_, err := NewSpectralData([]float64{0, 1}, []float64{1, 1})
			return err
		}},
		{"not increasing", func() error {
			_, err := NewSpectralData([]float64{1, 3, 2}, []float64{1, 1, 1}, WithCheckFreqs(false))
			return err
		}},
		{"uneven spacing", func() error {
			_, err := NewSpectralData([]float64{1, 2, 4}, []float64{1, 1, 1})
			return err
		}},
		{"non-positive power", func() error {
			_, err := NewSpectralData([]float64{1, 2, 3}, []float64{1, 0, 1})
			return err
		}},
		{"already logged power", func() error {
			_, err := NewSpectralData([]float64{1, 2, 3}, []float64{-1, -2, -3})
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			require.Error(t, err)
			var de *DataError
			assert.True(t, errors.As(err, &de), "want *DataError, got %T", err)
			assert.True(t, IsDataError(err))
		})
	}
}

func TestNewSpectralDataChecksCanBeDisabled(t *testing.T) {
	d, err := NewSpectralData([]float64{1, 2, 4}, []float64{1, 1, 1}, WithCheckFreqs(false))
	require.NoError(t, err)
	assert.Equal(t, 3, d.Len())

	d, err = NewSpectralData([]float64{1, 2, 3}, []float64{1, 0, 1}, WithCheckData(false))
	require.NoError(t, err)
	assert.True(t, math.IsInf(d.PowerSpectrum()[1], -1))
}

func TestNilSpectralDataHasNoLength(t *testing.T) {
	var d *SpectralData
	assert.Equal(t, 0, d.Len())
}
