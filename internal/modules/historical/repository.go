// Package historical provides the optional persistent price cache that sits
// in front of the market data provider.
package historical

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/allocator/internal/domain"
)

// Schema is applied on startup through database.DB.Migrate
const Schema = `
CREATE TABLE IF NOT EXISTS price_series (
	cache_key  TEXT PRIMARY KEY,
	symbol     TEXT NOT NULL,
	data       BLOB NOT NULL,
	fetched_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_price_series_expires ON price_series(expires_at);
CREATE INDEX IF NOT EXISTS idx_price_series_symbol ON price_series(symbol);
`

// cachedSeries is the msgpack payload. Dates are stored as unix seconds of
// the UTC trading day so decoding never depends on the local time zone.
type cachedSeries struct {
	Symbol   string    `msgpack:"s"`
	Days     []int64   `msgpack:"d"`
	Close    []float64 `msgpack:"c"`
	AdjClose []float64 `msgpack:"a,omitempty"`
}

// Repository stores per-symbol price series keyed by symbol and date window
type Repository struct {
	db  *sql.DB
	now func() time.Time
}

// NewRepository creates a new price cache repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// CacheKey identifies one symbol over one [start, end) window
func CacheKey(symbol string, start, end time.Time) string {
	return fmt.Sprintf("%s|%s|%s", symbol, start.Format("2006-01-02"), end.Format("2006-01-02"))
}

// Store saves the series with expiration = now + ttl, replacing any previous entry
func (r *Repository) Store(ctx context.Context, series domain.SymbolSeries, start, end time.Time, ttl time.Duration) error {
	payload := cachedSeries{
		Symbol:   series.Symbol,
		Days:     make([]int64, len(series.Dates)),
		Close:    series.Close,
		AdjClose: series.AdjClose,
	}
	for i, d := range series.Dates {
		payload.Days[i] = d.Unix()
	}

	data, err := msgpack.Marshal(&payload)
	if err != nil {
		return fmt.Errorf("failed to marshal series %s: %w", series.Symbol, err)
	}

	now := r.now()
	_, err = r.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO price_series (cache_key, symbol, data, fetched_at, expires_at) VALUES (?, ?, ?, ?, ?)`,
		CacheKey(series.Symbol, start, end), series.Symbol, data, now.Unix(), now.Add(ttl).Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to store series %s: %w", series.Symbol, err)
	}
	return nil
}

// GetIfFresh returns the cached series only if it has not expired.
// Returns nil, nil when the key is missing or stale.
func (r *Repository) GetIfFresh(ctx context.Context, symbol string, start, end time.Time) (*domain.SymbolSeries, error) {
	var data []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT data FROM price_series WHERE cache_key = ? AND expires_at > ?`,
		CacheKey(symbol, start, end), r.now().Unix(),
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached series %s: %w", symbol, err)
	}

	var payload cachedSeries
	if err := msgpack.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode cached series %s: %w", symbol, err)
	}

	series := &domain.SymbolSeries{
		Symbol:   payload.Symbol,
		Dates:    make([]time.Time, len(payload.Days)),
		Close:    payload.Close,
		AdjClose: payload.AdjClose,
	}
	for i, d := range payload.Days {
		series.Dates[i] = time.Unix(d, 0).UTC()
	}
	return series, nil
}

// DeleteExpired removes all rows where expires_at <= now and returns the count
func (r *Repository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM price_series WHERE expires_at <= ?`, r.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired series: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return deleted, nil
}

// Count returns the number of cached entries, fresh or not
func (r *Repository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM price_series`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count cached series: %w", err)
	}
	return n, nil
}
