package domain

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDates(n int) []time.Time {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	dates := make([]time.Time, n)
	for i := range dates {
		dates[i] = start.AddDate(0, 0, i)
	}
	return dates
}

func TestPriceTable_SelectPrefersAdjClose(t *testing.T) {
	table := &PriceTable{
		Dates:    testDates(2),
		Symbols:  []string{"AAPL"},
		Close:    [][]float64{{10, 11}},
		AdjClose: [][]float64{{9, 10}},
	}

	frame, err := table.Select()
	require.NoError(t, err)

	assert.Equal(t, PriceFieldAdjClose, frame.Field)
	assert.Equal(t, []float64{9, 10}, frame.Column("AAPL"))
}

func TestPriceTable_SelectFallsBackToClose(t *testing.T) {
	table := &PriceTable{
		Dates:   testDates(2),
		Symbols: []string{"AAPL"},
		Close:   [][]float64{{10, 11}},
	}

	frame, err := table.Select()
	require.NoError(t, err)

	assert.Equal(t, PriceFieldClose, frame.Field)
}

func TestPriceTable_SelectWithoutColumns(t *testing.T) {
	tests := []struct {
		name  string
		table *PriceTable
	}{
		{"nil table", nil},
		{"no dates", &PriceTable{Symbols: []string{"AAPL"}}},
		{"no symbols", &PriceTable{Dates: testDates(3)}},
		{"no series", &PriceTable{Dates: testDates(3), Symbols: []string{"AAPL"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.table.Select()
			assert.True(t, errors.Is(err, ErrDataUnavailable))
		})
	}
}

func TestPriceFrame_LatestPricesSkipsNaN(t *testing.T) {
	frame := &PriceFrame{
		Dates:   testDates(3),
		Symbols: []string{"A", "B", "C"},
		Values: [][]float64{
			{1, 2, 3},
			{4, 5, math.NaN()},
			{math.NaN(), math.NaN(), math.NaN()},
		},
	}

	latest := frame.LatestPrices()

	assert.Equal(t, map[string]float64{"A": 3, "B": 5}, latest)
}

func TestWeights_Accessors(t *testing.T) {
	w := Weights{{Symbol: "A", Weight: 0.25}, {Symbol: "B", Weight: 0.75}}

	assert.Equal(t, []string{"A", "B"}, w.Symbols())
	assert.Equal(t, []float64{0.25, 0.75}, w.Values())
	assert.InDelta(t, 1.0, w.Sum(), 1e-12)
}

func TestDiscreteAllocation_Invested(t *testing.T) {
	a := DiscreteAllocation{
		Shares: []ShareCount{
			{Symbol: "A", Shares: 2, Price: 10},
			{Symbol: "B", Shares: 1, Price: 5.5},
		},
		Leftover: 4.5,
	}

	assert.InDelta(t, 25.5, a.Invested(), 1e-12)
	assert.Equal(t, 2, a.SharesFor("A"))
	assert.Equal(t, 0, a.SharesFor("Z"))
}

func TestPerformance_Triple(t *testing.T) {
	p := Performance{ExpectedReturn: 0.1, Volatility: 0.2, SharpeRatio: 0.4}
	assert.Equal(t, [3]float64{0.1, 0.2, 0.4}, p.Triple())
}
