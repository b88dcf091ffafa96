package formulas

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCorrelationMatrixFromCovariance(t *testing.T) {
	cov := [][]float64{
		{0.04, 0.006},
		{0.006, 0.01},
	}

	corr, err := CorrelationMatrixFromCovariance(cov)
	require.NoError(t, err)

	assert.Equal(t, 1.0, corr[0][0])
	assert.Equal(t, 1.0, corr[1][1])
	assert.InDelta(t, 0.3, corr[0][1], 1e-12)
	assert.Equal(t, corr[0][1], corr[1][0])
}

func TestCorrelationMatrixFromCovariance_Errors(t *testing.T) {
	tests := []struct {
		name string
		cov  [][]float64
	}{
		{"empty", [][]float64{}},
		{"not square", [][]float64{{1, 0}, {0}}},
		{"zero variance", [][]float64{{0, 0}, {0, 1}}},
		{"nan variance", [][]float64{{math.NaN(), 0}, {0, 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CorrelationMatrixFromCovariance(tt.cov)
			assert.Error(t, err)
		})
	}
}

func TestCorrelationToDistance(t *testing.T) {
	dist := CorrelationToDistance([][]float64{
		{1, -1},
		{-1, 1},
	})

	assert.Equal(t, 0.0, dist[0][0])
	assert.InDelta(t, 2.0, dist[0][1], 1e-12)
}

func TestInverseVarianceWeights(t *testing.T) {
	w := InverseVarianceWeights([]float64{0.01, 0.04}, 0)

	assert.InDelta(t, 0.8, w[0], 1e-12)
	assert.InDelta(t, 0.2, w[1], 1e-12)
}

func TestInverseVarianceWeights_AllZeroFallsBackToEqual(t *testing.T) {
	w := InverseVarianceWeights([]float64{0, 0, 0, 0}, 0)

	for _, v := range w {
		assert.InDelta(t, 0.25, v, 1e-12)
	}
}

func TestInverseVarianceWeights_Floor(t *testing.T) {
	w := InverseVarianceWeights([]float64{0, 1}, 1)

	assert.InDelta(t, 0.5, w[0], 1e-12)
	assert.InDelta(t, 0.5, w[1], 1e-12)
}
