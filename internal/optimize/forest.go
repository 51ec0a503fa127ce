package optimize

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/seoscope/keywordrun/internal/domain"
)

// ForestConfig tunes the bagged regression forest.
type ForestConfig struct {
	Trees       int     `json:"trees"`        // ensemble size
	MaxDepth    int     `json:"max_depth"`    // split recursion limit
	MinLeaf     int     `json:"min_leaf"`     // smallest allowed leaf
	FeatureFrac float64 `json:"feature_frac"` // features tried per split
}

// DefaultForestConfig returns the shipped ensemble settings.
func DefaultForestConfig() ForestConfig {
	return ForestConfig{Trees: 24, MaxDepth: 6, MinLeaf: 2, FeatureFrac: 1.0 / 3.0}
}

func (c ForestConfig) withDefaults() ForestConfig {
	d := DefaultForestConfig()
	if c.Trees <= 0 {
		c.Trees = d.Trees
	}
	if c.MaxDepth <= 0 {
		c.MaxDepth = d.MaxDepth
	}
	if c.MinLeaf <= 0 {
		c.MinLeaf = d.MinLeaf
	}
	if c.FeatureFrac <= 0 || c.FeatureFrac > 1 {
		c.FeatureFrac = d.FeatureFrac
	}
	return c
}

// TreeNode is one node of a regression tree. Nodes live in a flat slice
// and address children by index, which keeps gob serialization trivial.
type TreeNode struct {
	Feature int
	Split   float64
	Left    int
	Right   int
	Value   float64
	Leaf    bool
}

// RegressionTree is a CART tree fitted by variance reduction.
type RegressionTree struct {
	Nodes []TreeNode
}

// Predict walks the tree for one feature vector.
func (t *RegressionTree) Predict(x []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Leaf {
			return n.Value
		}
		if x[n.Feature] <= n.Split {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// Forest is a bagged ensemble of regression trees over a fixed feature
// width. Fitted values only; safe for concurrent Predict.
type Forest struct {
	Trees    []RegressionTree
	Features int
}

// FitForest trains the ensemble on rows x with targets y. Each tree sees
// a bootstrap resample and a random feature subset per split.
func FitForest(x [][]float64, y []float64, cfg ForestConfig, rng *rand.Rand) (*Forest, error) {
	if len(x) == 0 || len(x) != len(y) {
		return nil, domain.NewInputError("input/empty_training_set", fmt.Sprintf("%d rows against %d targets", len(x), len(y)))
	}
	width := len(x[0])
	for i, row := range x {
		if len(row) != width {
			return nil, domain.NewInputError("input/ragged_features", fmt.Sprintf("row %d has %d features, want %d", i, len(row), width))
		}
	}
	cfg = cfg.withDefaults()

	f := &Forest{Trees: make([]RegressionTree, 0, cfg.Trees), Features: width}
	for i := 0; i < cfg.Trees; i++ {
		sample := make([]int, len(x))
		for j := range sample {
			sample[j] = rng.Intn(len(x))
		}
		b := &treeBuilder{x: x, y: y, cfg: cfg, rng: rng}
		b.build(sample, 0)
		f.Trees = append(f.Trees, RegressionTree{Nodes: b.nodes})
	}
	return f, nil
}

// Predict averages the ensemble for one feature vector.
func (f *Forest) Predict(x []float64) float64 {
	if len(f.Trees) == 0 {
		return 0
	}
	sum := 0.0
	for i := range f.Trees {
		sum += f.Trees[i].Predict(x)
	}
	return sum / float64(len(f.Trees))
}

// PredictAll maps Predict over a row set.
func (f *Forest) PredictAll(x [][]float64) []float64 {
	out := make([]float64, len(x))
	for i, row := range x {
		out[i] = f.Predict(row)
	}
	return out
}

type treeBuilder struct {
	x     [][]float64
	y     []float64
	cfg   ForestConfig
	rng   *rand.Rand
	nodes []TreeNode
}

func (b *treeBuilder) build(idx []int, depth int) int {
	id := len(b.nodes)
	b.nodes = append(b.nodes, TreeNode{Leaf: true, Value: b.mean(idx)})

	if depth >= b.cfg.MaxDepth || len(idx) < 2*b.cfg.MinLeaf {
		return id
	}
	feature, split, ok := b.bestSplit(idx)
	if !ok {
		return id
	}

	left := make([]int, 0, len(idx))
	right := make([]int, 0, len(idx))
	for _, i := range idx {
		if b.x[i][feature] <= split {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) < b.cfg.MinLeaf || len(right) < b.cfg.MinLeaf {
		return id
	}

	// Children are built before the parent is patched: the recursive
	// appends may reallocate the node slice.
	leftID := b.build(left, depth+1)
	rightID := b.build(right, depth+1)
	b.nodes[id] = TreeNode{Feature: feature, Split: split, Left: leftID, Right: rightID}
	return id
}

// bestSplit scans a random feature subset for the threshold with the
// largest squared-error reduction. Returns ok=false when every candidate
// degenerates, which makes the node a leaf.
func (b *treeBuilder) bestSplit(idx []int) (int, float64, bool) {
	width := len(b.x[0])
	mtry := int(math.Ceil(b.cfg.FeatureFrac * float64(width)))
	if mtry < 1 {
		mtry = 1
	}
	features := b.rng.Perm(width)[:mtry]

	bestGain := 0.0
	bestFeature, bestSplit := -1, 0.0

	total, totalSq := sums(b.y, idx)
	n := float64(len(idx))
	baseSSE := totalSq - total*total/n

	order := make([]int, len(idx))
	for _, feature := range features {
		copy(order, idx)
		sort.Slice(order, func(i, j int) bool { return b.x[order[i]][feature] < b.x[order[j]][feature] })

		leftSum, leftSq := 0.0, 0.0
		for i := 0; i < len(order)-1; i++ {
			yi := b.y[order[i]]
			leftSum += yi
			leftSq += yi * yi

			cur, next := b.x[order[i]][feature], b.x[order[i+1]][feature]
			if cur == next {
				continue
			}
			nl := float64(i + 1)
			nr := n - nl
			if int(nl) < b.cfg.MinLeaf || int(nr) < b.cfg.MinLeaf {
				continue
			}
			rightSum := total - leftSum
			rightSq := totalSq - leftSq
			sse := (leftSq - leftSum*leftSum/nl) + (rightSq - rightSum*rightSum/nr)
			if gain := baseSSE - sse; gain > bestGain {
				bestGain = gain
				bestFeature = feature
				bestSplit = (cur + next) / 2
			}
		}
	}
	return bestFeature, bestSplit, bestFeature >= 0
}

func (b *treeBuilder) mean(idx []int) float64 {
	if len(idx) == 0 {
		return 0
	}
	sum := 0.0
	for _, i := range idx {
		sum += b.y[i]
	}
	return sum / float64(len(idx))
}

func sums(y []float64, idx []int) (sum, sumSq float64) {
	for _, i := range idx {
		sum += y[i]
		sumSq += y[i] * y[i]
	}
	return sum, sumSq
}

// MeanSquaredError is the average squared residual.
func MeanSquaredError(pred, want []float64) float64 {
	if len(pred) == 0 {
		return 0
	}
	sum := 0.0
	for i := range pred {
		d := pred[i] - want[i]
		sum += d * d
	}
	return sum / float64(len(pred))
}

// RSquared is the coefficient of determination against the mean
// predictor. A zero-variance target yields 0: such a split cannot
// certify the model.
func RSquared(pred, want []float64) float64 {
	if len(pred) == 0 {
		return 0
	}
	mean := 0.0
	for _, w := range want {
		mean += w
	}
	mean /= float64(len(want))

	var sse, sst float64
	for i := range want {
		sse += (want[i] - pred[i]) * (want[i] - pred[i])
		sst += (want[i] - mean) * (want[i] - mean)
	}
	if sst == 0 {
		return 0
	}
	return 1 - sse/sst
}
