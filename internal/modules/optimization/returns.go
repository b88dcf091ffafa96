package optimization

import (
	"fmt"
	"math"

	"github.com/aristath/allocator/internal/domain"
	"github.com/aristath/allocator/pkg/formulas"
)

// ReturnsKind selects how period returns are computed from prices
type ReturnsKind string

const (
	ReturnsSimple ReturnsKind = "simple"
	ReturnsLog    ReturnsKind = "log"
)

// ParseReturnsKind validates a configured returns kind
func ParseReturnsKind(s string) (ReturnsKind, error) {
	switch ReturnsKind(s) {
	case ReturnsSimple, "":
		return ReturnsSimple, nil
	case ReturnsLog:
		return ReturnsLog, nil
	default:
		return "", fmt.Errorf("unknown returns kind %q", s)
	}
}

// CalculateReturns converts a price frame into period returns.
//
// Gaps are forward-filled within each column, then leading rows are dropped
// until every column has a value. Columns that never have a value are
// dropped. Fewer than two aligned rows yields ErrDataUnavailable.
func CalculateReturns(frame *domain.PriceFrame, kind ReturnsKind) (*domain.ReturnTable, error) {
	if frame == nil || len(frame.Symbols) == 0 || len(frame.Dates) == 0 {
		return nil, fmt.Errorf("%w: no prices to compute returns from", domain.ErrDataUnavailable)
	}

	var symbols []string
	var columns [][]float64
	firstRow := 0

	for i, symbol := range frame.Symbols {
		filled := formulas.ForwardFill(frame.Values[i])
		first := -1
		for r, v := range filled {
			if !math.IsNaN(v) {
				first = r
				break
			}
		}
		if first < 0 {
			continue
		}
		if first > firstRow {
			firstRow = first
		}
		symbols = append(symbols, symbol)
		columns = append(columns, filled)
	}

	if len(symbols) == 0 {
		return nil, fmt.Errorf("%w: every price column is empty", domain.ErrDataUnavailable)
	}

	rows := len(frame.Dates) - firstRow
	if rows < 2 {
		return nil, fmt.Errorf("%w: need at least 2 aligned price rows, got %d", domain.ErrDataUnavailable, rows)
	}

	table := &domain.ReturnTable{
		Dates:   frame.Dates[firstRow+1:],
		Symbols: symbols,
		Values:  make([][]float64, len(symbols)),
	}

	for i, col := range columns {
		prices := col[firstRow:]
		var rets []float64
		if kind == ReturnsLog {
			rets = formulas.CalculateLogReturns(prices)
		} else {
			rets = formulas.CalculateReturns(prices)
		}
		for _, r := range rets {
			if math.IsNaN(r) || math.IsInf(r, 0) {
				return nil, fmt.Errorf("%w: non-positive price for %s", domain.ErrDataUnavailable, symbols[i])
			}
		}
		table.Values[i] = rets
	}

	return table, nil
}
