package domain

import (
	"math"
	"sort"
	"time"
)

// SymbolSeries is the daily history of one symbol as returned by a provider.
// Dates are UTC midnights of the exchange-local trading day, ascending.
type SymbolSeries struct {
	Symbol   string      `msgpack:"symbol"`
	Dates    []time.Time `msgpack:"dates"`
	Close    []float64   `msgpack:"close"`
	AdjClose []float64   `msgpack:"adj_close,omitempty"` // nil when not provided
}

// HasData reports whether the series holds at least one observed close
func (s SymbolSeries) HasData() bool {
	for _, v := range s.Close {
		if !math.IsNaN(v) {
			return true
		}
	}
	return false
}

// HasAdjClose reports whether the series carries adjusted closes for every
// date with at least one observed value. An all-NaN column counts as absent.
func (s SymbolSeries) HasAdjClose() bool {
	if len(s.AdjClose) != len(s.Dates) {
		return false
	}
	for _, v := range s.AdjClose {
		if !math.IsNaN(v) {
			return true
		}
	}
	return false
}

// BuildPriceTable aligns per-symbol series on the union of their dates.
// Columns are sorted by symbol; dates missing for a symbol become NaN.
// Adjusted closes are kept only when every series carries them.
func BuildPriceTable(series []SymbolSeries) *PriceTable {
	sorted := make([]SymbolSeries, len(series))
	copy(sorted, series)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Symbol < sorted[j].Symbol })

	dateSet := make(map[int64]time.Time)
	hasAdj := len(sorted) > 0
	for _, s := range sorted {
		for _, d := range s.Dates {
			dateSet[d.Unix()] = d
		}
		if !s.HasAdjClose() {
			hasAdj = false
		}
	}

	dates := make([]time.Time, 0, len(dateSet))
	for _, d := range dateSet {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	row := make(map[int64]int, len(dates))
	for i, d := range dates {
		row[d.Unix()] = i
	}

	table := &PriceTable{
		Dates:   dates,
		Symbols: make([]string, len(sorted)),
		Close:   make([][]float64, len(sorted)),
	}
	if hasAdj {
		table.AdjClose = make([][]float64, len(sorted))
	}

	for c, s := range sorted {
		table.Symbols[c] = s.Symbol
		table.Close[c] = nanColumn(len(dates))
		if hasAdj {
			table.AdjClose[c] = nanColumn(len(dates))
		}
		for i, d := range s.Dates {
			r := row[d.Unix()]
			table.Close[c][r] = s.Close[i]
			if hasAdj {
				table.AdjClose[c][r] = s.AdjClose[i]
			}
		}
	}

	return table
}

// Series splits the table back into per-symbol series, dropping NaN rows
func (t *PriceTable) Series() []SymbolSeries {
	if t == nil {
		return nil
	}
	hasAdj := len(t.AdjClose) == len(t.Symbols) && len(t.Symbols) > 0

	out := make([]SymbolSeries, len(t.Symbols))
	for c, symbol := range t.Symbols {
		s := SymbolSeries{Symbol: symbol}
		for r, d := range t.Dates {
			if math.IsNaN(t.Close[c][r]) {
				continue
			}
			s.Dates = append(s.Dates, d)
			s.Close = append(s.Close, t.Close[c][r])
			if hasAdj {
				s.AdjClose = append(s.AdjClose, t.AdjClose[c][r])
			}
		}
		out[c] = s
	}
	return out
}

func nanColumn(n int) []float64 {
	col := make([]float64, n)
	for i := range col {
		col[i] = math.NaN()
	}
	return col
}
