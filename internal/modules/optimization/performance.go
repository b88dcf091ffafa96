package optimization

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/aristath/allocator/internal/domain"
	"github.com/aristath/allocator/pkg/formulas"
)

const (
	// DefaultTradingDays annualises daily statistics
	DefaultTradingDays = 252
	// DefaultRiskFreeRate is the annual rate subtracted in the Sharpe ratio
	DefaultRiskFreeRate = 0.02
)

// PortfolioPerformance computes the annualised expected return, volatility
// and Sharpe ratio of weights over the historical returns:
//
//	ret = Σ wᵢ·mean(rᵢ)·frequency
//	vol = sqrt(wᵀ (Σ·frequency) w)
//	sharpe = (ret - riskFree) / vol
//
// Weights are matched to return columns by symbol; symbols absent from the
// weight vector count as zero.
func PortfolioPerformance(weights domain.Weights, returns *domain.ReturnTable, riskFree float64, frequency int) (domain.Performance, error) {
	if frequency <= 0 {
		frequency = DefaultTradingDays
	}

	cov, err := SampleCovariance(returns)
	if err != nil {
		return domain.Performance{}, fmt.Errorf("%w: %v", domain.ErrOptimization, err)
	}

	byName := make(map[string]float64, len(weights))
	for _, w := range weights {
		byName[w.Symbol] = w.Weight
	}

	n := len(returns.Symbols)
	w := mat.NewVecDense(n, nil)
	mu := mat.NewVecDense(n, nil)
	for i, symbol := range returns.Symbols {
		w.SetVec(i, byName[symbol])
		mu.SetVec(i, formulas.Mean(returns.Values[i])*float64(frequency))
	}

	expected := mat.Dot(w, mu)
	variance := mat.Inner(w, cov, w) * float64(frequency)
	volatility := math.Sqrt(math.Max(variance, 0))

	sharpe := 0.0
	if volatility > 0 {
		sharpe = (expected - riskFree) / volatility
	}

	return domain.Performance{
		ExpectedReturn: expected,
		Volatility:     volatility,
		SharpeRatio:    sharpe,
	}, nil
}
