package historical

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/allocator/internal/domain"
)

// CachingFetcher serves fresh cached series and asks the wrapped fetcher only
// for the symbols it does not have.
type CachingFetcher struct {
	inner domain.PriceFetcher
	repo  *Repository
	ttl   time.Duration
	log   zerolog.Logger
}

// NewCachingFetcher wraps inner with the price cache
func NewCachingFetcher(inner domain.PriceFetcher, repo *Repository, ttl time.Duration, log zerolog.Logger) *CachingFetcher {
	return &CachingFetcher{
		inner: inner,
		repo:  repo,
		ttl:   ttl,
		log:   log.With().Str("component", "price_cache").Logger(),
	}
}

// FetchPrices implements domain.PriceFetcher
func (f *CachingFetcher) FetchPrices(ctx context.Context, symbols []string, start, end time.Time) (*domain.PriceTable, error) {
	var hits []domain.SymbolSeries
	var missing []string

	for _, symbol := range symbols {
		series, err := f.repo.GetIfFresh(ctx, symbol, start, end)
		if err != nil {
			// A broken cache row must not fail the request
			f.log.Warn().Err(err).Str("symbol", symbol).Msg("Cache read failed, refetching")
		}
		if series == nil {
			missing = append(missing, symbol)
			continue
		}
		hits = append(hits, *series)
	}

	f.log.Debug().Int("hits", len(hits)).Int("misses", len(missing)).Msg("Price cache lookup")

	if len(missing) == 0 {
		return domain.BuildPriceTable(hits), nil
	}

	fetched, err := f.fetchAndStore(ctx, missing, start, end)
	if err != nil {
		if errors.Is(err, domain.ErrEmptyResult) && len(hits) > 0 {
			f.log.Warn().Strs("symbols", missing).Msg("No price data returned, dropping symbols")
			return domain.BuildPriceTable(hits), nil
		}
		return nil, err
	}

	return domain.BuildPriceTable(append(hits, fetched...)), nil
}

// Refresh refetches symbols from the provider and overwrites their cache entries
func (f *CachingFetcher) Refresh(ctx context.Context, symbols []string, start, end time.Time) (int, error) {
	fetched, err := f.fetchAndStore(ctx, symbols, start, end)
	if err != nil {
		return 0, err
	}
	return len(fetched), nil
}

func (f *CachingFetcher) fetchAndStore(ctx context.Context, symbols []string, start, end time.Time) ([]domain.SymbolSeries, error) {
	table, err := f.inner.FetchPrices(ctx, symbols, start, end)
	if err != nil {
		return nil, err
	}
	if table.Empty() {
		return nil, fmt.Errorf("%w: provider returned an empty table", domain.ErrEmptyResult)
	}

	series := table.Series()
	for _, s := range series {
		if err := f.repo.Store(ctx, s, start, end, f.ttl); err != nil {
			f.log.Warn().Err(err).Str("symbol", s.Symbol).Msg("Failed to cache price series")
		}
	}
	return series, nil
}
