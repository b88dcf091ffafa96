package formulas

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculateReturns(t *testing.T) {
	tests := []struct {
		name      string
		prices    []float64
		want      []float64
		tolerance float64
	}{
		{name: "empty prices", prices: []float64{}, want: []float64{}},
		{name: "single price", prices: []float64{100.0}, want: []float64{}},
		{name: "two prices positive return", prices: []float64{100.0, 110.0}, want: []float64{0.10}, tolerance: 0.0001},
		{name: "two prices negative return", prices: []float64{100.0, 90.0}, want: []float64{-0.10}, tolerance: 0.0001},
		{name: "three prices sequence", prices: []float64{100.0, 110.0, 105.0}, want: []float64{0.10, -0.04545}, tolerance: 0.0001},
		{name: "steady prices", prices: []float64{100.0, 100.0, 100.0}, want: []float64{0.0, 0.0}},
		{name: "volatile sequence", prices: []float64{100.0, 120.0, 90.0, 108.0}, want: []float64{0.20, -0.25, 0.20}, tolerance: 0.0001},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CalculateReturns(tt.prices)
			if len(tt.want) == 0 {
				assert.Empty(t, result)
				return
			}
			assert.Len(t, result, len(tt.want))
			for i := range result {
				assert.InDelta(t, tt.want[i], result[i], tt.tolerance+1e-12, "index %d", i)
			}
		})
	}
}

func TestCalculateReturns_ZeroPriceIsNaN(t *testing.T) {
	result := CalculateReturns([]float64{100.0, 0.0, 110.0})

	assert.InDelta(t, -1.0, result[0], 1e-12)
	assert.True(t, math.IsNaN(result[1]))
}

func TestCalculateLogReturns(t *testing.T) {
	result := CalculateLogReturns([]float64{100.0, 110.0, 100.0})

	assert.Len(t, result, 2)
	assert.InDelta(t, math.Log(1.1), result[0], 1e-12)
	assert.InDelta(t, -math.Log(1.1), result[1], 1e-12)
	assert.Empty(t, CalculateLogReturns([]float64{1}))
}

func TestForwardFill(t *testing.T) {
	nan := math.NaN()
	in := []float64{nan, 1, nan, nan, 4, nan}

	out := ForwardFill(in)

	assert.True(t, math.IsNaN(out[0]))
	assert.Equal(t, []float64{1, 1, 1, 4, 4}, out[1:])
	assert.True(t, math.IsNaN(in[2]), "input must not be modified")
}

func TestLastValid(t *testing.T) {
	nan := math.NaN()

	v, ok := LastValid([]float64{1, 2, nan})
	assert.True(t, ok)
	assert.Equal(t, 2.0, v)

	_, ok = LastValid([]float64{nan, nan})
	assert.False(t, ok)
}

func TestMean(t *testing.T) {
	assert.Equal(t, 0.0, Mean(nil))
	assert.InDelta(t, 2.0, Mean([]float64{1, 2, 3}), 1e-12)
}
