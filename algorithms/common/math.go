package common

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Basic statistical functions used across algorithms using gonum for robustness

// Mean calculates the arithmetic mean of a slice using gonum
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	return stat.Mean(data, nil)
}

// PopStdDev calculates the population (ddof=0) standard deviation.
// Peak detection thresholds are expressed in these units.
func PopStdDev(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	_, std := stat.PopMeanStdDev(data, nil)
	return std
}

// Correlation calculates Pearson correlation coefficient between two series.
// Returns NaN when either series is constant.
func Correlation(x, y []float64) float64 {
	if len(x) != len(y) || len(x) == 0 {
		return math.NaN()
	}

	return stat.Correlation(x, y, nil)
}

// ArgMax returns the index of the first maximum value, or -1 for empty input
func ArgMax(data []float64) int {
	if len(data) == 0 {
		return -1
	}
	return floats.MaxIdx(data)
}

// NearestIndex returns the index of the value in sorted closest to target.
// Ties resolve to the lower index.
func NearestIndex(sorted []float64, target float64) int {
	if len(sorted) == 0 {
		return -1
	}
	best := 0
	bestDist := math.Abs(sorted[0] - target)
	for i := 1; i < len(sorted); i++ {
		d := math.Abs(sorted[i] - target)
		if d < bestDist {
			best = i
			bestDist = d
		}
	}
	return best
}

// Subtract returns a - b element-wise as a new slice
func Subtract(a, b []float64) []float64 {
	out := make([]float64, len(a))
	floats.SubTo(out, a, b)
	return out
}

// Add returns a + b element-wise as a new slice
func Add(a, b []float64) []float64 {
	out := make([]float64, len(a))
	floats.AddTo(out, a, b)
	return out
}

// AllFinite reports whether every value is neither NaN nor infinite
func AllFinite(data []float64) bool {
	for _, v := range data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// IsClose mirrors the usual |a-b| <= atol + rtol*|b| comparison
func IsClose(a, b, rtol, atol float64) bool {
	return math.Abs(a-b) <= atol+rtol*math.Abs(b)
}

// MeanAbsoluteError calculates mean(|x - y|)
func MeanAbsoluteError(x, y []float64) float64 {
	if len(x) != len(y) || len(x) == 0 {
		return math.NaN()
	}
	sum := 0.0
	for i := range x {
		sum += math.Abs(x[i] - y[i])
	}
	return sum / float64(len(x))
}

// MeanSquaredError calculates mean((x - y)^2)
func MeanSquaredError(x, y []float64) float64 {
	if len(x) != len(y) || len(x) == 0 {
		return math.NaN()
	}
	sum := 0.0
	for i := range x {
		d := x[i] - y[i]
		sum += d * d
	}
	return sum / float64(len(x))
}

// RootMeanSquaredError calculates sqrt(mean((x - y)^2))
func RootMeanSquaredError(x, y []float64) float64 {
	return math.Sqrt(MeanSquaredError(x, y))
}

// Clamp constrains a value to a range
func Clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// Filled returns a slice of length n with every element set to v
func Filled(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}
