// Package allocation runs the allocation pipeline: category lookup, price
// fetch, returns, HRP weights, performance and discrete allocation.
package allocation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/allocator/internal/categories"
	"github.com/aristath/allocator/internal/domain"
	"github.com/aristath/allocator/internal/modules/optimization"
)

// DefaultInvestmentAmount is used when a request does not name one
const DefaultInvestmentAmount = 50000.0

// Request is one allocation run. Zero Start/End fall back to the configured window.
type Request struct {
	Category         string
	InvestmentAmount float64
	Start            time.Time
	End              time.Time
}

// Result is the outcome of one allocation run
type Result struct {
	ID               string
	Category         string
	InvestmentAmount float64
	Start            time.Time
	End              time.Time
	PriceField       domain.PriceField
	Weights          domain.Weights // cleaned, sorted by symbol
	Performance      domain.Performance
	Allocation       domain.DiscreteAllocation
}

// ServiceConfig holds the pipeline settings
type ServiceConfig struct {
	ReturnsKind    optimization.ReturnsKind
	RiskFreeRate   float64
	TradingDays    int
	WeightCutoff   float64
	WeightRounding int
	FetchTimeout   time.Duration
	DefaultStart   time.Time
	DefaultEnd     time.Time
}

// Service runs allocation requests. It is stateless apart from read-only
// dependencies and is safe for concurrent use.
type Service struct {
	registry  *categories.Registry
	fetcher   domain.PriceFetcher
	hrp       *optimization.HRPOptimizer
	allocator *optimization.DiscreteAllocator
	cfg       ServiceConfig
	newID     func() string
	log       zerolog.Logger
}

// NewService creates a new allocation service
func NewService(
	registry *categories.Registry,
	fetcher domain.PriceFetcher,
	hrp *optimization.HRPOptimizer,
	allocator *optimization.DiscreteAllocator,
	cfg ServiceConfig,
	log zerolog.Logger,
) *Service {
	if cfg.TradingDays <= 0 {
		cfg.TradingDays = optimization.DefaultTradingDays
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 30 * time.Second
	}
	return &Service{
		registry:  registry,
		fetcher:   fetcher,
		hrp:       hrp,
		allocator: allocator,
		cfg:       cfg,
		newID:     func() string { return uuid.New().String() },
		log:       log.With().Str("service", "allocation").Logger(),
	}
}

// Allocate runs the full pipeline for one request
func (s *Service) Allocate(ctx context.Context, req Request) (*Result, error) {
	id := s.newID()
	log := s.log.With().Str("allocation_id", id).Str("category", req.Category).Logger()

	assets, err := s.registry.Lookup(req.Category)
	if err != nil {
		return nil, err
	}

	amount := req.InvestmentAmount
	if amount < 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return nil, fmt.Errorf("%w: investment_amount must be a non-negative number", domain.ErrInvalidInput)
	}

	start, end := req.Start, req.End
	if start.IsZero() {
		start = s.cfg.DefaultStart
	}
	if end.IsZero() {
		end = s.cfg.DefaultEnd
	}
	if !start.Before(end) {
		return nil, fmt.Errorf("%w: start_date must be before end_date", domain.ErrInvalidInput)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()

	fetchStart := time.Now()
	table, err := s.fetcher.FetchPrices(fetchCtx, assets, start, end)
	if err != nil {
		if errors.Is(fetchCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, domain.ErrUpstreamTimeout) {
			err = fmt.Errorf("%w: %v", domain.ErrUpstreamTimeout, err)
		}
		log.Warn().Err(err).Dur("elapsed", time.Since(fetchStart)).Msg("Price fetch failed")
		return nil, err
	}

	frame, err := table.Select()
	if err != nil {
		return nil, err
	}

	returns, err := optimization.CalculateReturns(frame, s.cfg.ReturnsKind)
	if err != nil {
		return nil, err
	}

	raw, err := s.hrp.Optimize(returns)
	if err != nil {
		return nil, err
	}

	// Performance is measured on the raw weights, allocation on the cleaned ones
	perf, err := optimization.PortfolioPerformance(raw, returns, s.cfg.RiskFreeRate, s.cfg.TradingDays)
	if err != nil {
		return nil, err
	}

	weights := optimization.CleanWeights(raw, s.cfg.WeightCutoff, s.cfg.WeightRounding)

	alloc, err := s.allocator.Allocate(weights, frame.LatestPrices(), amount)
	if err != nil {
		return nil, err
	}

	log.Info().
		Int("assets", len(weights)).
		Int("observations", returns.Observations()).
		Str("price_field", string(frame.Field)).
		Float64("expected_return", perf.ExpectedReturn).
		Float64("volatility", perf.Volatility).
		Float64("leftover", alloc.Leftover).
		Dur("duration", time.Since(fetchStart)).
		Msg("Portfolio allocated")

	return &Result{
		ID:               id,
		Category:         req.Category,
		InvestmentAmount: amount,
		Start:            start,
		End:              end,
		PriceField:       frame.Field,
		Weights:          weights,
		Performance:      perf,
		Allocation:       alloc,
	}, nil
}
