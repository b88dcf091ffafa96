package optimization

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/allocator/internal/domain"
)

// SampleCovariance calculates the sample covariance matrix (N-1 denominator)
// of the return columns. Element (i,j) is the covariance between
// returns.Symbols[i] and returns.Symbols[j].
func SampleCovariance(returns *domain.ReturnTable) (*mat.SymDense, error) {
	n := len(returns.Symbols)
	if n == 0 {
		return nil, fmt.Errorf("no symbols provided")
	}

	t := returns.Observations()
	if t < 2 {
		return nil, fmt.Errorf("insufficient data: need at least 2 observations, got %d", t)
	}

	// Each column of the data matrix is one symbol's returns
	data := mat.NewDense(t, n, nil)
	for j, col := range returns.Values {
		if len(col) != t {
			return nil, fmt.Errorf("inconsistent return lengths: expected %d, got %d for %s", t, len(col), returns.Symbols[j])
		}
		for i, v := range col {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("invalid return for %s at row %d", returns.Symbols[j], i)
			}
			data.Set(i, j, v)
		}
	}

	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, data, nil)
	return &cov, nil
}

func symDenseToSlices(m *mat.SymDense) [][]float64 {
	n := m.SymmetricDim()
	out := make([][]float64, n)
	for i := 0; i < n; i++ {
		out[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			out[i][j] = m.At(i, j)
		}
	}
	return out
}
