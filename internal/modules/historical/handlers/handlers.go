// Package handlers provides HTTP handlers for historical data operations.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/aristath/allocator/internal/apierror"
	"github.com/aristath/allocator/internal/config"
	"github.com/aristath/allocator/internal/domain"
	"github.com/aristath/allocator/internal/modules/optimization"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handler handles historical data HTTP requests
type Handler struct {
	fetcher      domain.PriceFetcher
	defaultStart time.Time
	defaultEnd   time.Time
	fetchTimeout time.Duration
	log          zerolog.Logger
}

// NewHandler creates a new historical data handler. The default window is
// used when a request omits start or end; every fetch is bounded by
// fetchTimeout.
func NewHandler(
	fetcher domain.PriceFetcher,
	defaultStart, defaultEnd time.Time,
	fetchTimeout time.Duration,
	log zerolog.Logger,
) *Handler {
	if fetchTimeout <= 0 {
		fetchTimeout = 30 * time.Second
	}
	return &Handler{
		fetcher:      fetcher,
		defaultStart: defaultStart,
		defaultEnd:   defaultEnd,
		fetchTimeout: fetchTimeout,
		log:          log.With().Str("handler", "historical").Logger(),
	}
}

// PricePoint is one trading day of a symbol's history
type PricePoint struct {
	Date     string   `json:"date"`
	Close    float64  `json:"close"`
	AdjClose *float64 `json:"adj_close,omitempty"`
}

// ReturnPoint is one period return
type ReturnPoint struct {
	Date   string  `json:"date"`
	Return float64 `json:"return"`
}

// HandleGetDailyPrices handles GET /api/historical/prices/{symbol}
func (h *Handler) HandleGetDailyPrices(w http.ResponseWriter, r *http.Request) {
	symbol, start, end, err := h.parseQuery(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	table, err := h.fetch(r.Context(), symbol, start, end)
	if err != nil {
		h.writeError(w, err)
		return
	}

	series := table.Series()
	if len(series) == 0 {
		h.writeError(w, fmt.Errorf("%w: no data for %s", domain.ErrEmptyResult, symbol))
		return
	}

	s := series[0]
	prices := make([]PricePoint, 0, len(s.Dates))
	for i, d := range s.Dates {
		if math.IsNaN(s.Close[i]) {
			continue
		}
		p := PricePoint{Date: d.Format(config.DateLayout), Close: s.Close[i]}
		if s.AdjClose != nil && !math.IsNaN(s.AdjClose[i]) {
			adj := s.AdjClose[i]
			p.AdjClose = &adj
		}
		prices = append(prices, p)
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"symbol": symbol,
			"start":  start.Format(config.DateLayout),
			"end":    end.Format(config.DateLayout),
			"prices": prices,
			"count":  len(prices),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleGetDailyReturns handles GET /api/historical/returns/{symbol}.
// The optional kind parameter selects simple (default) or log returns.
func (h *Handler) HandleGetDailyReturns(w http.ResponseWriter, r *http.Request) {
	symbol, start, end, err := h.parseQuery(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	kind, err := optimization.ParseReturnsKind(r.URL.Query().Get("kind"))
	if err != nil {
		h.writeError(w, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err))
		return
	}

	table, err := h.fetch(r.Context(), symbol, start, end)
	if err != nil {
		h.writeError(w, err)
		return
	}

	frame, err := table.Select()
	if err != nil {
		h.writeError(w, err)
		return
	}

	returns, err := optimization.CalculateReturns(frame, kind)
	if err != nil {
		h.writeError(w, err)
		return
	}

	points := make([]ReturnPoint, 0, returns.Observations())
	if col := returnsColumn(returns, symbol); col != nil {
		for i, d := range returns.Dates {
			points = append(points, ReturnPoint{Date: d.Format(config.DateLayout), Return: col[i]})
		}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"symbol":      symbol,
			"kind":        kind,
			"price_field": frame.Field,
			"returns":     points,
			"count":       len(points),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

func returnsColumn(returns *domain.ReturnTable, symbol string) []float64 {
	for i, s := range returns.Symbols {
		if s == symbol {
			return returns.Values[i]
		}
	}
	return nil
}

func (h *Handler) parseQuery(r *http.Request) (string, time.Time, time.Time, error) {
	symbol := strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "symbol")))
	if symbol == "" {
		return "", time.Time{}, time.Time{}, fmt.Errorf("%w: symbol is required", domain.ErrInvalidInput)
	}

	start, end := h.defaultStart, h.defaultEnd
	q := r.URL.Query()
	if v := q.Get("start"); v != "" {
		t, err := time.Parse(config.DateLayout, v)
		if err != nil {
			return "", time.Time{}, time.Time{}, fmt.Errorf("%w: start must be YYYY-MM-DD", domain.ErrInvalidInput)
		}
		start = t
	}
	if v := q.Get("end"); v != "" {
		t, err := time.Parse(config.DateLayout, v)
		if err != nil {
			return "", time.Time{}, time.Time{}, fmt.Errorf("%w: end must be YYYY-MM-DD", domain.ErrInvalidInput)
		}
		end = t
	}
	if !start.Before(end) {
		return "", time.Time{}, time.Time{}, fmt.Errorf("%w: start must be before end", domain.ErrInvalidInput)
	}

	return symbol, start, end, nil
}

// fetch loads one symbol under the fetch timeout. A deadline hit while the
// fetcher reported something else is still a timeout.
func (h *Handler) fetch(ctx context.Context, symbol string, start, end time.Time) (*domain.PriceTable, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, h.fetchTimeout)
	defer cancel()

	table, err := h.fetcher.FetchPrices(fetchCtx, []string{symbol}, start, end)
	if err != nil {
		if errors.Is(fetchCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, domain.ErrUpstreamTimeout) {
			err = fmt.Errorf("%w: %v", domain.ErrUpstreamTimeout, err)
		}
		return nil, err
	}
	return table, nil
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	apierror.Write(w, h.log, err)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	apierror.WriteJSON(w, h.log, status, data)
}
