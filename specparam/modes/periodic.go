package modes

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// PeriodicModel describes a sum of peaks. Params are laid out as consecutive
// groups of NParams values, one group per peak, starting with the center.
type PeriodicModel interface {
	Name() string
	NParams() int
	ParamNames() []string
	Evaluate(freqs, params []float64) []float64
}

// Gaussian peaks: height * exp(-(f-center)^2 / (2*std^2))
type Gaussian struct{}

func (Gaussian) Name() string         { return "gaussian" }
func (Gaussian) NParams() int         { return 3 }
func (Gaussian) ParamNames() []string { return []string{"center", "height", "std"} }

func (Gaussian) Evaluate(freqs, params []float64) []float64 {
	out := make([]float64, len(freqs))
	for p := 0; p+2 < len(params); p += 3 {
		ctr, hgt, wid := params[p], params[p+1], params[p+2]
		denom := 2 * wid * wid
		for i, f := range freqs {
			d := f - ctr
			out[i] += hgt * math.Exp(-d*d/denom)
		}
	}
	return out
}

func (Gaussian) Jacobian(freqs, params []float64) *mat.Dense {
	J := mat.NewDense(len(freqs), len(params), nil)
	for p := 0; p+2 < len(params); p += 3 {
		ctr, hgt, wid := params[p], params[p+1], params[p+2]
		w2 := wid * wid
		for i, f := range freqs {
			d := f - ctr
			e := math.Exp(-d * d / (2 * w2))
			J.Set(i, p, hgt*e*d/w2)
			J.Set(i, p+1, e)
			J.Set(i, p+2, hgt*e*d*d/(w2*wid))
		}
	}
	return J
}

// fwhmToStd is 2*sqrt(2*ln 2), the FWHM of a unit-std Gaussian
var fwhmToStd = 2 * math.Sqrt(2*math.Ln2)

// GaussStdFromFWHM converts a full-width at half-maximum to a Gaussian std
func GaussStdFromFWHM(fwhm float64) float64 {
	return fwhm / fwhmToStd
}

// GaussFWHMFromStd converts a Gaussian std to its full-width at half-maximum
func GaussFWHMFromStd(std float64) float64 {
	return std * fwhmToStd
}
