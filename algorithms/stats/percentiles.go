package stats

import (
	"fmt"
	"math"
	"sort"
)

// Percentiles computes sample percentiles with linear interpolation between
// the closest ranks (Hyndman & Fan definition 7, the numpy default): the q-th
// quantile sits at the virtual index h = (n-1)*q of the sorted sample.
type Percentiles struct{}

// NewPercentiles creates a new percentile analyzer
func NewPercentiles() *Percentiles {
	return &Percentiles{}
}

// CalculatePercentile computes a single percentile value, percentile in [0, 100]
func (p *Percentiles) CalculatePercentile(data []float64, percentile float64) (float64, error) {
	if len(data) == 0 {
		return 0, fmt.Errorf("empty data")
	}

	if percentile < 0 || percentile > 100 || math.IsNaN(percentile) {
		return 0, fmt.Errorf("percentile must be between 0 and 100")
	}

	values := make([]float64, len(data))
	copy(values, data)
	sort.Float64s(values)

	return p.calculatePercentile(values, percentile/100.0), nil
}

func (p *Percentiles) calculatePercentile(sortedData []float64, q float64) float64 {
	n := len(sortedData)
	if n == 1 {
		return sortedData[0]
	}

	h := float64(n-1) * q
	lower := int(math.Floor(h))
	upper := min(int(math.Ceil(h)), n-1)
	lower = min(lower, n-1)
	if lower == upper {
		return sortedData[lower]
	}
	fraction := h - float64(lower)
	return sortedData[lower] + fraction*(sortedData[upper]-sortedData[lower])
}

// LowerTailMask marks every value at or below the given percentile of data.
// The returned count is the number of marked values.
func (p *Percentiles) LowerTailMask(data []float64, percentile float64) ([]bool, int, error) {
	thresh, err := p.CalculatePercentile(data, percentile)
	if err != nil {
		return nil, 0, err
	}
	mask := make([]bool, len(data))
	count := 0
	for i, v := range data {
		if v <= thresh {
			mask[i] = true
			count++
		}
	}
	return mask, count, nil
}
