package optimization

import (
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/allocator/internal/domain"
)

func TestAllocate_Simple(t *testing.T) {
	alloc := NewDiscreteAllocator(zerolog.Nop())

	result, err := alloc.Allocate(
		domain.Weights{{Symbol: "A", Weight: 0.5}, {Symbol: "B", Weight: 0.5}},
		map[string]float64{"A": 10, "B": 20},
		100,
	)
	require.NoError(t, err)

	assert.Equal(t, 5, result.SharesFor("A"))
	assert.Equal(t, 2, result.SharesFor("B"))
	assert.InDelta(t, 10.0, result.Leftover, 1e-9)
	assert.InDelta(t, 100.0, result.Invested()+result.Leftover, 1e-9)
}

func TestAllocate_ZeroBudget(t *testing.T) {
	alloc := NewDiscreteAllocator(zerolog.Nop())

	result, err := alloc.Allocate(
		domain.Weights{{Symbol: "A", Weight: 0.4}, {Symbol: "B", Weight: 0.6}},
		map[string]float64{"A": 10, "B": 20},
		0,
	)
	require.NoError(t, err)

	require.Len(t, result.Shares, 2)
	for _, s := range result.Shares {
		assert.Equal(t, 0, s.Shares)
	}
	assert.Equal(t, 0.0, result.Leftover)
}

func TestAllocate_PriceAboveBudget(t *testing.T) {
	alloc := NewDiscreteAllocator(zerolog.Nop())

	result, err := alloc.Allocate(
		domain.Weights{{Symbol: "EXPENSIVE", Weight: 0.5}, {Symbol: "CHEAP", Weight: 0.5}},
		map[string]float64{"EXPENSIVE": 1000, "CHEAP": 10},
		100,
	)
	require.NoError(t, err)

	assert.Equal(t, 0, result.SharesFor("EXPENSIVE"))
	assert.GreaterOrEqual(t, result.Leftover, 0.0)
	assert.InDelta(t, 100.0, result.Invested()+result.Leftover, 1e-9)
}

func TestAllocate_GreedyRepairUsesCash(t *testing.T) {
	alloc := NewDiscreteAllocator(zerolog.Nop())

	// Relaxation: 3.33 and 1.67 shares; floors leave 50 in cash and one
	// more share of A moves closer to its target
	result, err := alloc.Allocate(
		domain.Weights{{Symbol: "A", Weight: 0.5}, {Symbol: "B", Weight: 0.5}},
		map[string]float64{"A": 30, "B": 60},
		200,
	)
	require.NoError(t, err)

	assert.Equal(t, 4, result.SharesFor("A"))
	assert.Equal(t, 1, result.SharesFor("B"))
	assert.InDelta(t, 20.0, result.Leftover, 1e-9)
}

func TestAllocate_Errors(t *testing.T) {
	alloc := NewDiscreteAllocator(zerolog.Nop())
	weights := domain.Weights{{Symbol: "A", Weight: 1}}

	_, err := alloc.Allocate(weights, map[string]float64{"A": 10}, -1)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = alloc.Allocate(weights, map[string]float64{"A": 10}, math.Inf(1))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = alloc.Allocate(weights, map[string]float64{}, 100)
	assert.ErrorIs(t, err, domain.ErrDataUnavailable)

	_, err = alloc.Allocate(weights, map[string]float64{"A": 0}, 100)
	assert.ErrorIs(t, err, domain.ErrDataUnavailable)
}

func TestAllocate_ZeroWeightWithoutPrice(t *testing.T) {
	alloc := NewDiscreteAllocator(zerolog.Nop())

	result, err := alloc.Allocate(
		domain.Weights{{Symbol: "A", Weight: 1}, {Symbol: "B", Weight: 0}},
		map[string]float64{"A": 10},
		55,
	)
	require.NoError(t, err)
	assert.Equal(t, 5, result.SharesFor("A"))
	assert.Equal(t, 0, result.SharesFor("B"))
	assert.InDelta(t, 5.0, result.Leftover, 1e-9)
}

func TestAllocate_Invariants(t *testing.T) {
	alloc := NewDiscreteAllocator(zerolog.Nop())

	weights := domain.Weights{
		{Symbol: "AAPL", Weight: 0.14211}, {Symbol: "JNJ", Weight: 0.11873},
		{Symbol: "KO", Weight: 0.13002}, {Symbol: "MSFT", Weight: 0.07531},
		{Symbol: "PG", Weight: 0.12388}, {Symbol: "WMT", Weight: 0.09964},
		{Symbol: "XOM", Weight: 0.08012}, {Symbol: "ITC.NS", Weight: 0.10233},
		{Symbol: "HINDUNILVR.NS", Weight: 0.07112}, {Symbol: "NESTLEIND.NS", Weight: 0.05674},
	}
	prices := map[string]float64{
		"AAPL": 250.42, "JNJ": 144.47, "KO": 62.26, "MSFT": 421.50, "PG": 167.60,
		"WMT": 90.35, "XOM": 106.57, "ITC.NS": 481.75, "HINDUNILVR.NS": 2351.30, "NESTLEIND.NS": 2248.65,
	}

	for _, budget := range []float64{1000, 50000, 123456.78} {
		result, err := alloc.Allocate(weights, prices, budget)
		require.NoError(t, err)

		assert.GreaterOrEqual(t, result.Leftover, 0.0)
		assert.InDelta(t, budget, result.Invested()+result.Leftover, 1e-6)
		for i, s := range result.Shares {
			assert.Equal(t, weights[i].Symbol, s.Symbol)
			assert.GreaterOrEqual(t, s.Shares, 0)
			target := weights[i].Weight * budget
			assert.LessOrEqual(t, math.Abs(target-float64(s.Shares)*s.Price), s.Price+1e-6, s.Symbol)
		}
	}
}

func TestRelaxedShares(t *testing.T) {
	x := relaxedShares([]float64{40, 60}, []float64{10, 20}, 100)
	assert.InDelta(t, 4.0, x[0], 1e-12)
	assert.InDelta(t, 3.0, x[1], 1e-12)
}

func TestRelaxedShares_OverweightedBudget(t *testing.T) {
	// Targets sum to 120, so the budget binds and leftover is zero
	x := relaxedShares([]float64{60, 60}, []float64{10, 20}, 100)
	assert.InDelta(t, 5.0, x[0], 1e-12)
	assert.InDelta(t, 2.5, x[1], 1e-12)
	assert.InDelta(t, 100.0, x[0]*10+x[1]*20, 1e-9)
}

func TestAllocate_WidePriceSpreadReturns(t *testing.T) {
	alloc := NewDiscreteAllocator(zerolog.Nop())

	budget := 50000.0
	targets := []float64{6137.32, 2506.05, 8210.94, 7489.59, 5780.47, 7508.27, 6620.27, 5747.10}
	priceList := []float64{16766.75, 5.25, 36.85, 529.68, 4.74, 7.39, 1694.82, 16593.16}

	weights := make(domain.Weights, len(targets))
	prices := make(map[string]float64, len(targets))
	for i := range targets {
		symbol := string(rune('A' + i))
		weights[i] = domain.AssetWeight{Symbol: symbol, Weight: targets[i] / budget}
		prices[symbol] = priceList[i]
	}

	type outcome struct {
		result domain.DiscreteAllocation
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		r, err := alloc.Allocate(weights, prices, budget)
		done <- outcome{r, err}
	}()

	select {
	case out := <-done:
		require.NoError(t, out.err)
		assert.GreaterOrEqual(t, out.result.Leftover, 0.0)
		assert.InDelta(t, budget, out.result.Invested()+out.result.Leftover, 1e-6)
		for i, s := range out.result.Shares {
			assert.LessOrEqual(t, math.Abs(targets[i]-float64(s.Shares)*s.Price), s.Price+1e-6, s.Symbol)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Allocate did not return")
	}
}
