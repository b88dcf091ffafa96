// Package handlers provides HTTP handlers for portfolio allocation.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/allocator/internal/apierror"
	"github.com/aristath/allocator/internal/categories"
	"github.com/aristath/allocator/internal/config"
	"github.com/aristath/allocator/internal/domain"
	"github.com/aristath/allocator/internal/modules/allocation"
)

// maxBodyBytes bounds the request body; the payload is a handful of fields
const maxBodyBytes = 1 << 16

// Allocator runs one allocation request
type Allocator interface {
	Allocate(ctx context.Context, req allocation.Request) (*allocation.Result, error)
}

// Handler handles allocation HTTP requests
type Handler struct {
	allocator Allocator
	registry  *categories.Registry
	log       zerolog.Logger
}

// NewHandler creates a new allocation handler
func NewHandler(allocator Allocator, registry *categories.Registry, log zerolog.Logger) *Handler {
	return &Handler{
		allocator: allocator,
		registry:  registry,
		log:       log.With().Str("handler", "allocation").Logger(),
	}
}

// AllocateRequest is the POST /allocate_portfolio body. Every field is optional.
type AllocateRequest struct {
	Category         *string  `json:"category"`
	InvestmentAmount *float64 `json:"investment_amount"`
	StartDate        *string  `json:"start_date"`
	EndDate          *string  `json:"end_date"`
}

// AllocateResponse mirrors the weight vector as parallel arrays
type AllocateResponse struct {
	Category             string     `json:"category"`
	InvestmentAmount     float64    `json:"investment_amount"`
	AssetNames           []string   `json:"asset_names"`
	AssetAllocation      []float64  `json:"asset_allocation"`
	PortfolioPerformance [3]float64 `json:"portfolio_performance"`
	LeftoverCash         float64    `json:"leftover_cash"`
	ShareCounts          []int      `json:"share_counts"`
	LatestPrices         []float64  `json:"latest_prices"`
}

// ErrorResponse is the body of every non-2xx response
type ErrorResponse = apierror.Response

// HandleAllocatePortfolio handles POST /allocate_portfolio
func (h *Handler) HandleAllocatePortfolio(w http.ResponseWriter, r *http.Request) {
	req, err := h.parseRequest(r)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	result, err := h.allocator.Allocate(r.Context(), req)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	resp := AllocateResponse{
		Category:             result.Category,
		InvestmentAmount:     result.InvestmentAmount,
		AssetNames:           result.Weights.Symbols(),
		AssetAllocation:      result.Weights.Values(),
		PortfolioPerformance: result.Performance.Triple(),
		LeftoverCash:         result.Allocation.Leftover,
		ShareCounts:          make([]int, len(result.Weights)),
		LatestPrices:         make([]float64, len(result.Weights)),
	}
	for i, s := range result.Allocation.Shares {
		resp.ShareCounts[i] = s.Shares
		resp.LatestPrices[i] = s.Price
	}

	w.Header().Set("X-Allocation-ID", result.ID)
	h.writeJSON(w, http.StatusOK, resp)
}

// HandleGetCategories handles GET /api/categories
func (h *Handler) HandleGetCategories(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"categories": h.registry.All(),
	})
}

func (h *Handler) parseRequest(r *http.Request) (allocation.Request, error) {
	req := allocation.Request{
		Category:         categories.DefaultCategory,
		InvestmentAmount: allocation.DefaultInvestmentAmount,
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return req, fmt.Errorf("%w: failed to read request body", domain.ErrInvalidInput)
	}
	if len(body) > maxBodyBytes {
		return req, fmt.Errorf("%w: request body too large", domain.ErrInvalidInput)
	}

	// An empty body is treated as {}
	var in AllocateRequest
	if trimmed := strings.TrimSpace(string(body)); trimmed != "" {
		if err := json.Unmarshal(body, &in); err != nil {
			return req, fmt.Errorf("%w: invalid JSON body", domain.ErrInvalidInput)
		}
	}

	if in.Category != nil {
		req.Category = *in.Category
	}
	if in.InvestmentAmount != nil {
		req.InvestmentAmount = *in.InvestmentAmount
	}
	if req.Start, err = parseDate("start_date", in.StartDate); err != nil {
		return req, err
	}
	if req.End, err = parseDate("end_date", in.EndDate); err != nil {
		return req, err
	}

	return req, nil
}

func parseDate(field string, value *string) (time.Time, error) {
	if value == nil || *value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(config.DateLayout, *value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be YYYY-MM-DD", domain.ErrInvalidInput, field)
	}
	return t, nil
}

func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	apierror.Write(w, h.log, err)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	apierror.WriteJSON(w, h.log, status, data)
}
