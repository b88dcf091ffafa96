package domain

import (
	"context"
	"time"
)

// PriceFetcher retrieves daily price history for a set of symbols over
// [start, end). Implementations: the Yahoo client and the caching decorator.
type PriceFetcher interface {
	FetchPrices(ctx context.Context, symbols []string, start, end time.Time) (*PriceTable, error)
}
