package optimization

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/aristath/allocator/internal/domain"
)

// floorSlack absorbs division round-off so 2.9999999999 shares floors to 3
const floorSlack = 1e-7

// DiscreteAllocator converts continuous weights into whole share counts.
type DiscreteAllocator struct {
	log zerolog.Logger
}

// NewDiscreteAllocator creates a new discrete allocator
func NewDiscreteAllocator(log zerolog.Logger) *DiscreteAllocator {
	return &DiscreteAllocator{
		log: log.With().Str("component", "discrete_allocator").Logger(),
	}
}

// Allocate approximately solves
//
//	min Σ|wᵢV − xᵢpᵢ| + r   s.t.  Σxᵢpᵢ + r = V,  xᵢ ∈ ℕ,  r ≥ 0
//
// by solving the continuous relaxation in closed form, flooring, and then
// greedily buying single shares while that lowers the objective and cash
// allows. Shares are returned in weight order; leftover = V − invested.
func (a *DiscreteAllocator) Allocate(weights domain.Weights, latestPrices map[string]float64, budget float64) (domain.DiscreteAllocation, error) {
	if budget < 0 || math.IsNaN(budget) || math.IsInf(budget, 0) {
		return domain.DiscreteAllocation{}, fmt.Errorf("%w: investment amount must be a non-negative finite number", domain.ErrInvalidInput)
	}

	n := len(weights)
	prices := make([]float64, n)
	targets := make([]float64, n)
	for i, w := range weights {
		p, ok := latestPrices[w.Symbol]
		if w.Weight > 0 && (!ok || p <= 0 || math.IsNaN(p) || math.IsInf(p, 0)) {
			return domain.DiscreteAllocation{}, fmt.Errorf("%w: no usable latest price for %s", domain.ErrDataUnavailable, w.Symbol)
		}
		if ok && p > 0 {
			prices[i] = p
		}
		targets[i] = math.Max(w.Weight, 0) * budget
	}

	shares := make([]int, n)
	if budget > 0 && n > 0 {
		shares = roundDown(relaxedShares(targets, prices, budget), prices, budget)
		greedyRepair(shares, targets, prices, budget)
	}

	result := domain.DiscreteAllocation{Shares: make([]domain.ShareCount, n)}
	invested := 0.0
	for i, w := range weights {
		result.Shares[i] = domain.ShareCount{Symbol: w.Symbol, Shares: shares[i], Price: prices[i]}
		invested += float64(shares[i]) * prices[i]
	}
	result.Leftover = budget - invested
	if result.Leftover < 0 && result.Leftover > -1e-6 {
		result.Leftover = 0
	}

	a.log.Debug().
		Float64("budget", budget).
		Float64("invested", invested).
		Float64("leftover", result.Leftover).
		Msg("Discrete allocation computed")

	return result, nil
}

// relaxedShares is the optimum of the continuous relaxation. Every feasible
// point satisfies Σ|tᵢ − pᵢxᵢ| + r ≥ |V − Σtᵢ|, and buying each target
// exactly, scaled down when the targets exceed the budget, attains it.
func relaxedShares(targets, prices []float64, budget float64) []float64 {
	x := make([]float64, len(prices))
	total := 0.0
	for _, t := range targets {
		total += t
	}
	scale := 1.0
	if total > budget {
		scale = budget / total
	}
	for i, p := range prices {
		if p > 0 {
			x[i] = targets[i] * scale / p
		}
	}
	return x
}

// roundDown floors the relaxed quantities and sheds shares if round-off
// pushed the total above budget.
func roundDown(relaxed, prices []float64, budget float64) []int {
	shares := make([]int, len(relaxed))
	invested := 0.0
	for i, x := range relaxed {
		shares[i] = int(math.Floor(x + floorSlack))
		invested += float64(shares[i]) * prices[i]
	}

	for invested > budget {
		worst := -1
		for i := range shares {
			if shares[i] > 0 && (worst < 0 || prices[i] > prices[worst]) {
				worst = i
			}
		}
		if worst < 0 {
			break
		}
		shares[worst]--
		invested -= prices[worst]
	}
	return shares
}

// greedyRepair buys one share at a time of the affordable asset whose
// purchase lowers the objective the most. Buying a share of i changes the
// objective by −2·min(pᵢ, max(dᵢ, 0)) where dᵢ = wᵢV − xᵢpᵢ.
func greedyRepair(shares []int, targets, prices []float64, budget float64) {
	cash := budget
	for i, s := range shares {
		cash -= float64(s) * prices[i]
	}

	for {
		best := -1
		bestGain := 1e-9
		for i, p := range prices {
			if p <= 0 || p > cash {
				continue
			}
			deficit := targets[i] - float64(shares[i])*p
			gain := math.Min(p, math.Max(deficit, 0))
			if gain > bestGain {
				best = i
				bestGain = gain
			}
		}
		if best < 0 {
			return
		}
		shares[best]++
		cash -= prices[best]
	}
}
