// Package optimization turns price history into HRP weights, performance
// statistics and whole-share allocations.
package optimization

import (
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/aristath/allocator/internal/domain"
	"github.com/aristath/allocator/pkg/formulas"
)

// Linkage selects how the distance between two clusters is measured
type Linkage string

const (
	LinkageSingle   Linkage = "single"
	LinkageComplete Linkage = "complete"
	LinkageAverage  Linkage = "average"
)

// HRPOptions configures the optimizer
type HRPOptions struct {
	Linkage Linkage
}

func defaultHRPOptions() HRPOptions {
	return HRPOptions{Linkage: LinkageSingle}
}

// HRPOptimizer performs Hierarchical Risk Parity portfolio optimization.
// It holds no per-call state and is safe for concurrent use.
type HRPOptimizer struct {
	opts HRPOptions
	log  zerolog.Logger
}

// NewHRPOptimizer creates a new HRP optimizer.
func NewHRPOptimizer(opts HRPOptions, log zerolog.Logger) *HRPOptimizer {
	if opts.Linkage == "" {
		opts = defaultHRPOptions()
	}
	return &HRPOptimizer{
		opts: opts,
		log:  log.With().Str("component", "hrp_optimizer").Logger(),
	}
}

type hrpClusterNode struct {
	left    *hrpClusterNode
	right   *hrpClusterNode
	leaves  []int
	minLeaf int
}

// Optimize computes raw (uncleaned) HRP weights from a return table:
// 1) Sample covariance and correlation
// 2) Distance: d_ij = sqrt(2 * (1 - ρ_ij))
// 3) Hierarchical clustering (configurable linkage, deterministic tie-break)
// 4) Quasi-diagonalization (leaf order from dendrogram)
// 5) Recursive bisection allocation (cluster variance via IVP)
// Weights are returned in returns.Symbols order.
func (hrp *HRPOptimizer) Optimize(returns *domain.ReturnTable) (domain.Weights, error) {
	if returns == nil || len(returns.Symbols) < 2 {
		n := 0
		if returns != nil {
			n = len(returns.Symbols)
		}
		return nil, fmt.Errorf("%w: need at least 2 assets, got %d", domain.ErrOptimization, n)
	}

	covDense, err := SampleCovariance(returns)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrOptimization, err)
	}
	covMatrix := symDenseToSlices(covDense)

	symbols := returns.Symbols
	corrMatrix, err := formulas.CorrelationMatrixFromCovariance(covMatrix)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to calculate correlation matrix from covariance: %v", domain.ErrOptimization, err)
	}

	distMatrix := formulas.CorrelationToDistance(corrMatrix)

	root := hrp.buildDendrogram(distMatrix, hrp.opts.Linkage)
	order := hrp.quasiDiagonalOrder(root)
	if len(order) != len(symbols) {
		return nil, fmt.Errorf("%w: invalid HRP order length %d", domain.ErrOptimization, len(order))
	}

	weights := make([]float64, len(symbols))
	for i := range weights {
		weights[i] = 1.0
	}
	hrp.recursiveBisectionAllocate(weights, covMatrix, order)

	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	if sum <= 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return nil, fmt.Errorf("%w: invalid HRP weight sum: %v", domain.ErrOptimization, sum)
	}

	result := make(domain.Weights, len(symbols))
	for i, symbol := range symbols {
		result[i] = domain.AssetWeight{Symbol: symbol, Weight: weights[i] / sum}
	}

	orderedSymbols := make([]string, len(order))
	for i, idx := range order {
		orderedSymbols[i] = symbols[idx]
	}
	hrp.log.Debug().
		Str("linkage", string(hrp.opts.Linkage)).
		Strs("order", orderedSymbols).
		Int("observations", returns.Observations()).
		Msg("HRP weights computed")

	return result, nil
}

// CleanWeights zeroes weights whose magnitude is below cutoff, rounds the
// rest to the given number of decimals (negative disables rounding) and
// returns them sorted by symbol.
func CleanWeights(weights domain.Weights, cutoff float64, rounding int) domain.Weights {
	out := make(domain.Weights, len(weights))
	scale := math.Pow(10, float64(rounding))
	for i, w := range weights {
		v := w.Weight
		if math.Abs(v) < cutoff {
			v = 0
		}
		if rounding >= 0 {
			v = math.Round(v*scale) / scale
		}
		out[i] = domain.AssetWeight{Symbol: w.Symbol, Weight: v}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// buildDendrogram merges the closest pair of clusters until one remains.
// Ties go to the pair with the smallest leaf indices so the tree, and with it
// the weights, never depend on map or scheduling order.
func (hrp *HRPOptimizer) buildDendrogram(dist [][]float64, linkage Linkage) *hrpClusterNode {
	clusters := make([]*hrpClusterNode, len(dist))
	for i := range dist {
		clusters[i] = &hrpClusterNode{leaves: []int{i}, minLeaf: i}
	}

	for len(clusters) > 1 {
		bestI, bestJ := 0, 1
		bestD := linkage.distance(dist, clusters[0], clusters[1])

		for i := 0; i < len(clusters); i++ {
			for j := i + 1; j < len(clusters); j++ {
				d := linkage.distance(dist, clusters[i], clusters[j])
				if d < bestD || (d == bestD && pairLess(clusters[i], clusters[j], clusters[bestI], clusters[bestJ])) {
					bestD, bestI, bestJ = d, i, j
				}
			}
		}

		merged := mergeClusters(clusters[bestI], clusters[bestJ])

		next := make([]*hrpClusterNode, 0, len(clusters)-1)
		for k, c := range clusters {
			if k != bestI && k != bestJ {
				next = append(next, c)
			}
		}
		clusters = append(next, merged)
	}

	return clusters[0]
}

// mergeClusters joins two clusters, keeping the one holding the lower leaf on the left
func mergeClusters(a, b *hrpClusterNode) *hrpClusterNode {
	if b.minLeaf < a.minLeaf {
		a, b = b, a
	}
	leaves := make([]int, 0, len(a.leaves)+len(b.leaves))
	leaves = append(leaves, a.leaves...)
	leaves = append(leaves, b.leaves...)
	return &hrpClusterNode{left: a, right: b, leaves: leaves, minLeaf: a.minLeaf}
}

// pairLess orders cluster pairs by (lower minLeaf, higher minLeaf)
func pairLess(a1, b1, a2, b2 *hrpClusterNode) bool {
	x1, y1 := a1.minLeaf, b1.minLeaf
	if y1 < x1 {
		x1, y1 = y1, x1
	}
	x2, y2 := a2.minLeaf, b2.minLeaf
	if y2 < x2 {
		x2, y2 = y2, x2
	}
	if x1 != x2 {
		return x1 < x2
	}
	return y1 < y2
}

func (l Linkage) distance(dist [][]float64, a, b *hrpClusterNode) float64 {
	switch l {
	case LinkageComplete:
		worst := math.Inf(-1)
		for _, i := range a.leaves {
			for _, j := range b.leaves {
				worst = math.Max(worst, dist[i][j])
			}
		}
		return worst
	case LinkageAverage:
		sum := 0.0
		for _, i := range a.leaves {
			for _, j := range b.leaves {
				sum += dist[i][j]
			}
		}
		return sum / float64(len(a.leaves)*len(b.leaves))
	default:
		best := math.Inf(1)
		for _, i := range a.leaves {
			for _, j := range b.leaves {
				best = math.Min(best, dist[i][j])
			}
		}
		return best
	}
}

func (hrp *HRPOptimizer) quasiDiagonalOrder(node *hrpClusterNode) []int {
	if node == nil {
		return nil
	}
	if node.left == nil && node.right == nil {
		return []int{node.leaves[0]}
	}
	return append(hrp.quasiDiagonalOrder(node.left), hrp.quasiDiagonalOrder(node.right)...)
}

// recursiveBisectionAllocate splits the ordered assets in half and shares the
// parent weight between halves in inverse proportion to their variance.
func (hrp *HRPOptimizer) recursiveBisectionAllocate(weights []float64, cov [][]float64, order []int) {
	if len(order) <= 1 {
		return
	}
	split := len(order) / 2
	left, right := order[:split], order[split:]

	vLeft := clusterVariance(cov, left)
	vRight := clusterVariance(cov, right)

	alpha := 0.5
	if vLeft+vRight > 0 {
		alpha = 1.0 - vLeft/(vLeft+vRight)
	}
	alpha = math.Max(0.0, math.Min(1.0, alpha))

	for _, idx := range left {
		weights[idx] *= alpha
	}
	for _, idx := range right {
		weights[idx] *= 1.0 - alpha
	}

	hrp.recursiveBisectionAllocate(weights, cov, left)
	hrp.recursiveBisectionAllocate(weights, cov, right)
}

// clusterVariance is wᵀΣw for the inverse-variance portfolio of the cluster
func clusterVariance(cov [][]float64, idxs []int) float64 {
	if len(idxs) == 0 {
		return 0.0
	}

	n := len(idxs)
	variances := make([]float64, n)
	sub := mat.NewSymDense(n, nil)
	for a, i := range idxs {
		variances[a] = cov[i][i]
		for b := a; b < n; b++ {
			sub.SetSym(a, b, cov[i][idxs[b]])
		}
	}

	w := mat.NewVecDense(n, formulas.InverseVarianceWeights(variances, 1e-12))
	return math.Max(mat.Inner(w, sub, w), 0.0)
}
