// Package yahoo fetches daily price history from the Yahoo Finance chart API.
package yahoo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/aristath/allocator/internal/domain"
)

const (
	DefaultBaseURL        = "https://query1.finance.yahoo.com"
	DefaultRateLimit      = 5
	DefaultMaxConcurrency = 4
	DefaultTimeout        = 30 * time.Second
)

// ErrRateLimited is returned (wrapped in domain.ErrUpstream) on HTTP 429
var ErrRateLimited = errors.New("rate limited by Yahoo Finance")

// Client is a Yahoo Finance chart API client. It is safe for concurrent use.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	limiter        *rate.Limiter
	maxConcurrency int
	log            zerolog.Logger
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithRateLimit sets the rate limit in requests per second
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		if requestsPerSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
		}
	}
}

// WithMaxConcurrency bounds the number of symbols fetched in parallel
func WithMaxConcurrency(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.maxConcurrency = n
		}
	}
}

// WithTimeout sets the per-request HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a new Yahoo Finance client
func NewClient(log zerolog.Logger, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter:        rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		maxConcurrency: DefaultMaxConcurrency,
		log:            log.With().Str("client", "yahoo").Logger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError is a non-2xx response from the chart API
type APIError struct {
	StatusCode int
	Message    string
	Symbol     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Yahoo Finance API error for %s: status %d: %s", e.Symbol, e.StatusCode, e.Message)
}

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *chartError   `json:"error"`
	} `json:"chart"`
}

type chartError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type chartResult struct {
	Meta struct {
		Symbol    string `json:"symbol"`
		Currency  string `json:"currency"`
		GMTOffset int64  `json:"gmtoffset"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Close []*float64 `json:"close"`
		} `json:"quote"`
		AdjClose []struct {
			AdjClose []*float64 `json:"adjclose"`
		} `json:"adjclose"`
	} `json:"indicators"`
}

// FetchPrices downloads daily closes for every symbol over [start, end) and
// aligns them into one table. Symbols the provider has no data for are
// dropped with a warning; if none remain the result is ErrEmptyResult.
func (c *Client) FetchPrices(ctx context.Context, symbols []string, start, end time.Time) (*domain.PriceTable, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("%w: no symbols requested", domain.ErrInvalidInput)
	}
	if !start.Before(end) {
		return nil, fmt.Errorf("%w: start %s is not before end %s", domain.ErrInvalidInput,
			start.Format("2006-01-02"), end.Format("2006-01-02"))
	}

	results := make([]*domain.SymbolSeries, len(symbols))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.maxConcurrency)

	for i, symbol := range symbols {
		i, symbol := i, symbol
		g.Go(func() error {
			series, err := c.fetchSymbol(gctx, symbol, start, end)
			if err != nil {
				return err
			}
			results[i] = series
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		// The group context is cancelled on first failure; report the caller's deadline instead
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, domain.ErrUpstreamTimeout) {
			return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamTimeout, err)
		}
		return nil, err
	}

	var kept []domain.SymbolSeries
	var dropped []string
	for i, s := range results {
		if s == nil || !s.HasData() {
			dropped = append(dropped, symbols[i])
			continue
		}
		kept = append(kept, *s)
	}

	if len(dropped) > 0 {
		c.log.Warn().Strs("symbols", dropped).Msg("No price data returned, dropping symbols")
	}
	if len(kept) == 0 {
		return nil, fmt.Errorf("%w: no data for any of %d symbols", domain.ErrEmptyResult, len(symbols))
	}

	table := domain.BuildPriceTable(kept)

	c.log.Debug().
		Int("symbols", len(table.Symbols)).
		Int("rows", len(table.Dates)).
		Bool("adj_close", table.AdjClose != nil).
		Msg("Fetched price history")

	return table, nil
}

// fetchSymbol returns nil, nil when the provider knows nothing about symbol
func (c *Client) fetchSymbol(ctx context.Context, symbol string, start, end time.Time) (*domain.SymbolSeries, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, fmt.Errorf("fetch %s cancelled: %w", symbol, err)
		}
		// Wait fails early when the next token would arrive after the deadline
		return nil, fmt.Errorf("%w: %s: rate limit wait: %v", domain.ErrUpstreamTimeout, symbol, err)
	}

	params := url.Values{}
	params.Set("period1", fmt.Sprintf("%d", start.Unix()))
	params.Set("period2", fmt.Sprintf("%d", end.Unix()))
	params.Set("interval", "1d")
	params.Set("events", "div,splits")
	params.Set("includeAdjustedClose", "true")

	reqURL := c.baseURL + "/v8/finance/chart/" + url.PathEscape(symbol) + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(ctx, symbol, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransportError(ctx, symbol, fmt.Errorf("failed to read response body: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrUpstream, symbol, ErrRateLimited)
	case resp.StatusCode != http.StatusOK:
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: truncate(string(body), 200), Symbol: symbol}
		return nil, fmt.Errorf("%w: %w", domain.ErrUpstream, apiErr)
	}

	var chart chartResponse
	if err := json.Unmarshal(body, &chart); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrMalformedData, symbol, err)
	}

	if chart.Chart.Error != nil {
		if chart.Chart.Error.Code == "Not Found" {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %s: %s: %s", domain.ErrUpstream, symbol,
			chart.Chart.Error.Code, chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 {
		return nil, nil
	}

	return parseChartResult(symbol, chart.Chart.Result[0], start, end)
}

func parseChartResult(symbol string, result chartResult, start, end time.Time) (*domain.SymbolSeries, error) {
	if len(result.Timestamp) == 0 || len(result.Indicators.Quote) == 0 {
		return nil, nil
	}

	closes := result.Indicators.Quote[0].Close
	if len(closes) != len(result.Timestamp) {
		return nil, fmt.Errorf("%w: %s: %d closes for %d timestamps", domain.ErrMalformedData,
			symbol, len(closes), len(result.Timestamp))
	}

	var adjCloses []*float64
	if len(result.Indicators.AdjClose) > 0 {
		adjCloses = result.Indicators.AdjClose[0].AdjClose
		if len(adjCloses) != len(result.Timestamp) {
			return nil, fmt.Errorf("%w: %s: %d adjusted closes for %d timestamps", domain.ErrMalformedData,
				symbol, len(adjCloses), len(result.Timestamp))
		}
	}

	series := &domain.SymbolSeries{Symbol: symbol}
	if adjCloses != nil {
		series.AdjClose = []float64{}
	}

	for i, ts := range result.Timestamp {
		date := tradingDay(ts, result.Meta.GMTOffset)
		if date.Before(truncateDay(start)) || !date.Before(end) {
			continue
		}
		// Yahoo returns null for halted sessions
		if closes[i] == nil {
			continue
		}

		// A repeated trading day (intraday snapshot) replaces the earlier row
		n := len(series.Dates)
		if n > 0 && series.Dates[n-1].Equal(date) {
			series.Dates = series.Dates[:n-1]
			series.Close = series.Close[:n-1]
			if adjCloses != nil {
				series.AdjClose = series.AdjClose[:n-1]
			}
		}

		series.Dates = append(series.Dates, date)
		series.Close = append(series.Close, *closes[i])
		if adjCloses != nil {
			adj := math.NaN()
			if adjCloses[i] != nil {
				adj = *adjCloses[i]
			}
			series.AdjClose = append(series.AdjClose, adj)
		}
	}

	// An adjclose block of nulls carries nothing; fall back to close
	if !series.HasAdjClose() {
		series.AdjClose = nil
	}

	return series, nil
}

// tradingDay maps a bar timestamp to the UTC midnight of its exchange-local date
func tradingDay(ts, gmtOffset int64) time.Time {
	return truncateDay(time.Unix(ts+gmtOffset, 0).UTC())
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func classifyTransportError(ctx context.Context, symbol string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %v", domain.ErrUpstreamTimeout, symbol, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %s: %v", domain.ErrUpstreamTimeout, symbol, err)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("fetch %s cancelled: %w", symbol, err)
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrUpstream, symbol, err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
