package formulas

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// CalculateReturns converts prices to simple percentage returns
// Returns[i] = (Price[i+1] - Price[i]) / Price[i]
//
// A non-positive previous price yields NaN for that period so callers can
// tell a real zero return from an undefined one.
func CalculateReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return []float64{}
	}

	returns := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] <= 0 {
			returns[i-1] = math.NaN()
			continue
		}
		returns[i-1] = (prices[i] - prices[i-1]) / prices[i-1]
	}

	return returns
}

// CalculateLogReturns converts prices to continuously compounded returns
// Returns[i] = ln(Price[i+1] / Price[i])
func CalculateLogReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return []float64{}
	}

	returns := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] <= 0 || prices[i] <= 0 {
			returns[i-1] = math.NaN()
			continue
		}
		returns[i-1] = math.Log(prices[i] / prices[i-1])
	}

	return returns
}

// ForwardFill replaces NaN entries with the last valid value seen before them.
// Leading NaNs are left untouched. The input slice is not modified.
func ForwardFill(values []float64) []float64 {
	filled := make([]float64, len(values))
	copy(filled, values)

	lastValid := math.NaN()
	for i, v := range filled {
		if math.IsNaN(v) {
			filled[i] = lastValid
			continue
		}
		lastValid = v
	}
	return filled
}

// LastValid returns the last non-NaN value of the series.
func LastValid(values []float64) (float64, bool) {
	for i := len(values) - 1; i >= 0; i-- {
		if !math.IsNaN(values[i]) {
			return values[i], true
		}
	}
	return 0, false
}
