package slippage

import (
	"math"
	"math/rand"
)

// treeNode is one node of a variance-minimizing regression tree. Fields are
// exported so a fitted ensemble round-trips through the gob artifact.
type treeNode struct {
	Leaf      bool
	Value     float64 // leaf prediction
	Feature   int
	Threshold float64
	Left      *treeNode
	Right     *treeNode
}

func (n *treeNode) predict(x []float64) float64 {
	for !n.Leaf {
		if x[n.Feature] <= n.Threshold {
			n = n.Left
		} else {
			n = n.Right
		}
	}
	return n.Value
}

// buildTree grows a depth-limited CART on the index subset idx.
// featureSub > 0 restricts each split to a random feature subset (forests).
func buildTree(X [][]float64, y []float64, idx []int, depth, maxDepth, minLeaf, featureSub int, rng *rand.Rand) *treeNode {
	if depth >= maxDepth || len(idx) < 2*minLeaf {
		return leaf(y, idx)
	}

	p := len(X[0])
	features := make([]int, p)
	for j := range features {
		features[j] = j
	}
	if featureSub > 0 && featureSub < p {
		rng.Shuffle(p, func(i, j int) { features[i], features[j] = features[j], features[i] })
		features = features[:featureSub]
	}

	bestFeature, bestThreshold, bestScore := -1, 0.0, math.Inf(1)
	sorted := make([]int, len(idx))
	for _, j := range features {
		copy(sorted, idx)
		sortByFeature(sorted, X, j)

		// Prefix sums over the sorted order give every split's SSE in one pass.
		n := len(sorted)
		var sumL, sqL float64
		sumR, sqR := 0.0, 0.0
		for _, i := range sorted {
			sumR += y[i]
			sqR += y[i] * y[i]
		}
		for k := 0; k < n-1; k++ {
			v := y[sorted[k]]
			sumL += v
			sqL += v * v
			sumR -= v
			sqR -= v * v
			if k+1 < minLeaf || n-k-1 < minLeaf {
				continue
			}
			if X[sorted[k]][j] == X[sorted[k+1]][j] {
				continue // no valid threshold between equal values
			}
			nl, nr := float64(k+1), float64(n-k-1)
			score := (sqL - sumL*sumL/nl) + (sqR - sumR*sumR/nr)
			if score < bestScore {
				bestScore = score
				bestFeature = j
				bestThreshold = (X[sorted[k]][j] + X[sorted[k+1]][j]) / 2
			}
		}
	}

	if bestFeature < 0 {
		return leaf(y, idx)
	}

	var left, right []int
	for _, i := range idx {
		if X[i][bestFeature] <= bestThreshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	return &treeNode{
		Feature:   bestFeature,
		Threshold: bestThreshold,
		Left:      buildTree(X, y, left, depth+1, maxDepth, minLeaf, featureSub, rng),
		Right:     buildTree(X, y, right, depth+1, maxDepth, minLeaf, featureSub, rng),
	}
}

func leaf(y []float64, idx []int) *treeNode {
	if len(idx) == 0 {
		return &treeNode{Leaf: true}
	}
	sum := 0.0
	for _, i := range idx {
		sum += y[i]
	}
	return &treeNode{Leaf: true, Value: sum / float64(len(idx))}
}

func sortByFeature(idx []int, X [][]float64, j int) {
	// Insertion sort: subsets are small and mostly ordered on revisit.
	for a := 1; a < len(idx); a++ {
		for b := a; b > 0 && X[idx[b]][j] < X[idx[b-1]][j]; b-- {
			idx[b], idx[b-1] = idx[b-1], idx[b]
		}
	}
}

// fitForest trains a bootstrap-aggregated random forest.
func fitForest(X [][]float64, y []float64, nTrees, maxDepth, minLeaf int, rng *rand.Rand) []*treeNode {
	n := len(X)
	featureSub := int(math.Max(1, math.Sqrt(float64(len(X[0])))))
	trees := make([]*treeNode, nTrees)
	for t := 0; t < nTrees; t++ {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = rng.Intn(n)
		}
		trees[t] = buildTree(X, y, idx, 0, maxDepth, minLeaf, featureSub, rng)
	}
	return trees
}

func predictForest(trees []*treeNode, x []float64) float64 {
	sum := 0.0
	for _, t := range trees {
		sum += t.predict(x)
	}
	return sum / float64(len(trees))
}

// boostedEnsemble is a gradient-boosted stack of shallow regression trees
// fitted on successive residuals.
type boostedEnsemble struct {
	Base         float64
	LearningRate float64
	Trees        []*treeNode
}

func fitBoosted(X [][]float64, y []float64, nTrees, maxDepth, minLeaf int, learningRate float64, rng *rand.Rand) *boostedEnsemble {
	n := len(X)
	base := 0.0
	for _, v := range y {
		base += v
	}
	base /= float64(n)

	ens := &boostedEnsemble{Base: base, LearningRate: learningRate}
	resid := make([]float64, n)
	pred := make([]float64, n)
	for i := range pred {
		pred[i] = base
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}

	for t := 0; t < nTrees; t++ {
		for i := range resid {
			resid[i] = y[i] - pred[i]
		}
		tree := buildTree(X, resid, idx, 0, maxDepth, minLeaf, 0, rng)
		ens.Trees = append(ens.Trees, tree)
		for i := range pred {
			pred[i] += learningRate * tree.predict(X[i])
		}
	}
	return ens
}

func (e *boostedEnsemble) predict(x []float64) float64 {
	y := e.Base
	for _, t := range e.Trees {
		y += e.LearningRate * t.predict(x)
	}
	return y
}
