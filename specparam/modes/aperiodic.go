// Package modes holds the fit functions used to describe a power spectrum.
//
// Each mode owns its evaluation function, parameter layout, and default
// bounds. Modes that can compute analytic derivatives also implement
// Jacobian; the solver falls back to finite differences otherwise.
package modes

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Bounds holds per-parameter lower and upper limits
type Bounds struct {
	Lower []float64
	Upper []float64
}

// UnboundedN returns bounds of (-Inf, +Inf) for n parameters
func UnboundedN(n int) Bounds {
	b := Bounds{Lower: make([]float64, n), Upper: make([]float64, n)}
	for i := range n {
		b.Lower[i] = math.Inf(-1)
		b.Upper[i] = math.Inf(1)
	}
	return b
}

// Jacobian is an optional capability of a mode: the len(freqs) x len(params)
// matrix of partial derivatives of Evaluate.
type Jacobian interface {
	Jacobian(freqs, params []float64) *mat.Dense
}

// AperiodicModel describes the broadband component of a spectrum in log10 power
type AperiodicModel interface {
	Name() string
	NParams() int
	ParamNames() []string
	Evaluate(freqs, params []float64) []float64
	Bounds() Bounds
}

const ln10 = math.Ln10

// Fixed is the knee-free aperiodic function: offset - log10(f^exponent)
type Fixed struct{}

func (Fixed) Name() string         { return "fixed" }
func (Fixed) NParams() int         { return 2 }
func (Fixed) ParamNames() []string { return []string{"offset", "exponent"} }
func (Fixed) Bounds() Bounds       { return UnboundedN(2) }

func (Fixed) Evaluate(freqs, params []float64) []float64 {
	offset, exp := params[0], params[1]
	out := make([]float64, len(freqs))
	for i, f := range freqs {
		out[i] = offset - math.Log10(math.Pow(f, exp))
	}
	return out
}

func (Fixed) Jacobian(freqs, params []float64) *mat.Dense {
	J := mat.NewDense(len(freqs), 2, nil)
	for i, f := range freqs {
		J.Set(i, 0, 1)
		J.Set(i, 1, -math.Log10(f))
	}
	return J
}

// Knee is the aperiodic function with a bend: offset - log10(knee + f^exponent)
type Knee struct{}

func (Knee) Name() string         { return "knee" }
func (Knee) NParams() int         { return 3 }
func (Knee) ParamNames() []string { return []string{"offset", "knee", "exponent"} }
func (Knee) Bounds() Bounds       { return UnboundedN(3) }

func (Knee) Evaluate(freqs, params []float64) []float64 {
	offset, knee, exp := params[0], params[1], params[2]
	out := make([]float64, len(freqs))
	for i, f := range freqs {
		out[i] = offset - math.Log10(knee+math.Pow(f, exp))
	}
	return out
}

func (Knee) Jacobian(freqs, params []float64) *mat.Dense {
	knee, exp := params[1], params[2]
	J := mat.NewDense(len(freqs), 3, nil)
	for i, f := range freqs {
		fe := math.Pow(f, exp)
		denom := (knee + fe) * ln10
		J.Set(i, 0, 1)
		J.Set(i, 1, -1/denom)
		J.Set(i, 2, -fe*math.Log(f)/denom)
	}
	return J
}

// AperiodicByName resolves "fixed" or "knee" to its model
func AperiodicByName(name string) (AperiodicModel, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "fixed", "":
		return Fixed{}, nil
	case "knee":
		return Knee{}, nil
	default:
		return nil, fmt.Errorf("unknown aperiodic mode %q (want fixed or knee)", name)
	}
}

// ParamIndex returns the position of a named parameter, or -1
func ParamIndex(m AperiodicModel, name string) int {
	for i, n := range m.ParamNames() {
		if n == name {
			return i
		}
	}
	return -1
}
