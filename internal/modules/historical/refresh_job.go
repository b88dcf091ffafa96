package historical

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// RefreshJob re-downloads the default window for every registry symbol so
// requests hit a warm cache, then drops expired rows.
type RefreshJob struct {
	fetcher *CachingFetcher
	repo    *Repository
	symbols []string
	start   time.Time
	end     time.Time
	timeout time.Duration
	log     zerolog.Logger
}

// NewRefreshJob creates a new price cache refresh job
func NewRefreshJob(fetcher *CachingFetcher, repo *Repository, symbols []string, start, end time.Time, timeout time.Duration, log zerolog.Logger) *RefreshJob {
	return &RefreshJob{
		fetcher: fetcher,
		repo:    repo,
		symbols: symbols,
		start:   start,
		end:     end,
		timeout: timeout,
		log:     log.With().Str("job", "price_cache_refresh").Logger(),
	}
}

// Run executes the refresh
func (j *RefreshJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	refreshed, err := j.fetcher.Refresh(ctx, j.symbols, j.start, j.end)
	if err != nil {
		j.log.Error().Err(err).Msg("Failed to refresh price cache")
		return err
	}

	deleted, err := j.repo.DeleteExpired(ctx)
	if err != nil {
		j.log.Error().Err(err).Msg("Failed to delete expired price series")
		return err
	}

	j.log.Info().
		Int("refreshed", refreshed).
		Int("requested", len(j.symbols)).
		Int64("expired_deleted", deleted).
		Msg("Price cache refreshed")

	return nil
}

// Name returns the job name for scheduling and logging
func (j *RefreshJob) Name() string {
	return "price_cache_refresh"
}
