// Package domain provides core domain models and types.
package domain

import (
	"fmt"
	"time"

	"github.com/aristath/allocator/pkg/formulas"
)

// PriceField identifies which price series a frame was built from
type PriceField string

const (
	PriceFieldAdjClose PriceField = "adj_close"
	PriceFieldClose    PriceField = "close"
)

// PriceTable is the raw provider output: one row per trading date and one
// column per symbol. Columns are aligned to Dates; NaN marks a missing value.
type PriceTable struct {
	Dates    []time.Time
	Symbols  []string
	Close    [][]float64 // Close[col][row]
	AdjClose [][]float64 // nil when the provider returned no adjusted closes
}

// Empty reports whether the table has no usable rows or columns
func (t *PriceTable) Empty() bool {
	return t == nil || len(t.Dates) == 0 || len(t.Symbols) == 0
}

// Select picks the adjusted close series when present, falling back to the
// raw close. A table with neither yields ErrDataUnavailable.
func (t *PriceTable) Select() (*PriceFrame, error) {
	if t.Empty() {
		return nil, fmt.Errorf("%w: no 'Adj Close' or 'Close' data available for selected stocks", ErrDataUnavailable)
	}

	field := PriceFieldAdjClose
	columns := t.AdjClose
	if len(columns) != len(t.Symbols) {
		field = PriceFieldClose
		columns = t.Close
	}
	if len(columns) != len(t.Symbols) {
		return nil, fmt.Errorf("%w: no 'Adj Close' or 'Close' data available for selected stocks", ErrDataUnavailable)
	}

	return &PriceFrame{
		Field:   field,
		Dates:   t.Dates,
		Symbols: t.Symbols,
		Values:  columns,
	}, nil
}

// PriceFrame is a single price series per symbol, ready for return estimation
type PriceFrame struct {
	Field   PriceField
	Dates   []time.Time
	Symbols []string
	Values  [][]float64 // Values[col][row]
}

// Column returns the series for symbol, or nil if the symbol is unknown
func (f *PriceFrame) Column(symbol string) []float64 {
	for i, s := range f.Symbols {
		if s == symbol {
			return f.Values[i]
		}
	}
	return nil
}

// LatestPrices returns the last observed price per symbol.
// Symbols whose column has no observation at all are omitted.
func (f *PriceFrame) LatestPrices() map[string]float64 {
	latest := make(map[string]float64, len(f.Symbols))
	for i, symbol := range f.Symbols {
		if v, ok := formulas.LastValid(f.Values[i]); ok {
			latest[symbol] = v
		}
	}
	return latest
}

// ReturnTable holds period-over-period returns. It has one row fewer than the
// price frame it was derived from.
type ReturnTable struct {
	Dates   []time.Time // date at the end of each period
	Symbols []string
	Values  [][]float64 // Values[col][row]
}

// Observations returns the number of return rows
func (r *ReturnTable) Observations() int {
	return len(r.Dates)
}

// AssetWeight is a single (symbol, weight) pair
type AssetWeight struct {
	Symbol string  `json:"symbol"`
	Weight float64 `json:"weight"`
}

// Weights is an ordered weight vector
type Weights []AssetWeight

// Symbols returns the symbols in vector order
func (w Weights) Symbols() []string {
	out := make([]string, len(w))
	for i, aw := range w {
		out[i] = aw.Symbol
	}
	return out
}

// Values returns the weights in vector order
func (w Weights) Values() []float64 {
	out := make([]float64, len(w))
	for i, aw := range w {
		out[i] = aw.Weight
	}
	return out
}

// Sum returns the total weight
func (w Weights) Sum() float64 {
	sum := 0.0
	for _, aw := range w {
		sum += aw.Weight
	}
	return sum
}

// Performance is the (expected return, volatility, sharpe) triple, annualised
type Performance struct {
	ExpectedReturn float64 `json:"expected_return"`
	Volatility     float64 `json:"volatility"`
	SharpeRatio    float64 `json:"sharpe_ratio"`
}

// Triple returns the performance as [expected_return, volatility, sharpe_ratio]
func (p Performance) Triple() [3]float64 {
	return [3]float64{p.ExpectedReturn, p.Volatility, p.SharpeRatio}
}

// ShareCount is the whole-share quantity bought for one symbol
type ShareCount struct {
	Symbol string  `json:"symbol"`
	Shares int     `json:"shares"`
	Price  float64 `json:"price"`
}

// DiscreteAllocation is the result of converting weights into whole shares
type DiscreteAllocation struct {
	Shares   []ShareCount `json:"shares"`
	Leftover float64      `json:"leftover"`
}

// Invested returns the cash spent on shares
func (a DiscreteAllocation) Invested() float64 {
	total := 0.0
	for _, s := range a.Shares {
		total += float64(s.Shares) * s.Price
	}
	return total
}

// SharesFor returns the share count for symbol (0 when absent)
func (a DiscreteAllocation) SharesFor(symbol string) int {
	for _, s := range a.Shares {
		if s.Symbol == symbol {
			return s.Shares
		}
	}
	return 0
}
