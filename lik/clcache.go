package lik

import (
	"math"

	"bitbucket.org/Davydov/treeali/align"
	"bitbucket.org/Davydov/treeali/bio"
	"bitbucket.org/Davydov/treeali/efloat"
	"bitbucket.org/Davydov/treeali/suba"
	"bitbucket.org/Davydov/treeali/tree"
)

// CLCache caches conditional likelihood vectors per (directed branch,
// rate class), indexed by sub-alignment column name. An entry holds
// P(leaves behind b | letter x at the source of b) for every letter
// x, scaled by a power of two tracked separately to avoid underflow.
type CLCache struct {
	nStates int
	// vecs[b][r][name] is a likelihood vector, nil when missing
	vecs [][][][]float64
	// scale[b][r][name] is the binary exponent of the vector
	scale [][][]int
	// valid marks branches with allocated, correctly sized slots
	valid []bool
}

// NewCLCache creates an empty cache.
func NewCLCache(nDirected, nRates, nStates int) *CLCache {
	cl := &CLCache{
		nStates: nStates,
		vecs:    make([][][][]float64, nDirected),
		scale:   make([][][]int, nDirected),
		valid:   make([]bool, nDirected),
	}
	for b := range cl.vecs {
		cl.vecs[b] = make([][][]float64, nRates)
		cl.scale[b] = make([][]int, nRates)
	}
	return cl
}

// NRates returns the number of rate classes.
func (cl *CLCache) NRates() int { return len(cl.vecs[0]) }

// Copy clones the cache; vectors are shared (they are never mutated
// in place, only replaced).
func (cl *CLCache) Copy() *CLCache {
	n := &CLCache{
		nStates: cl.nStates,
		vecs:    make([][][][]float64, len(cl.vecs)),
		scale:   make([][][]int, len(cl.scale)),
		valid:   append([]bool(nil), cl.valid...),
	}
	for b := range cl.vecs {
		n.vecs[b] = make([][][]float64, len(cl.vecs[b]))
		n.scale[b] = make([][]int, len(cl.scale[b]))
		for r := range cl.vecs[b] {
			n.vecs[b][r] = append([][]float64(nil), cl.vecs[b][r]...)
			n.scale[b][r] = append([]int(nil), cl.scale[b][r]...)
		}
	}
	return n
}

// Invalidate drops all entries of a directed branch.
func (cl *CLCache) Invalidate(b int) {
	cl.valid[b] = false
	for r := range cl.vecs[b] {
		cl.vecs[b][r] = nil
		cl.scale[b][r] = nil
	}
}

// InvalidateAll drops everything (model parameter change).
func (cl *CLCache) InvalidateAll() {
	for b := range cl.vecs {
		cl.Invalidate(b)
	}
}

// InvalidateDirectedBranch drops b and every branch depending on it.
func (cl *CLCache) InvalidateDirectedBranch(t *tree.Tree, b int) {
	for _, d := range t.BranchesFromInclusive(b) {
		cl.Invalidate(d)
	}
}

// InvalidateNode drops every directed branch whose source-side
// subtree contains node n.
func (cl *CLCache) InvalidateNode(t *tree.Tree, n int) {
	for _, d := range t.BranchesTowardNode(n) {
		cl.Invalidate(t.Reverse(d))
	}
}

func (cl *CLCache) alloc(b, length int) {
	for r := range cl.vecs[b] {
		cl.vecs[b][r] = make([][]float64, length)
		cl.scale[b][r] = make([]int, length)
	}
	cl.valid[b] = true
}

// leafLetters extracts the feature cells of a leaf row.
func leafLetters(a *align.Alignment, row int) []int {
	res := make([]int, 0, a.NCols())
	for c := 0; c < a.NCols(); c++ {
		if v := a.Cell(c, row); bio.IsFeature(v) {
			res = append(res, v)
		}
	}
	return res
}

// leafVector is the direct observation: delta on the observed
// letter, uniform mass on the members of an ambiguity class.
func leafVector(alpha *bio.Alphabet, letter, n int) []float64 {
	v := make([]float64, n)
	if letter == bio.NotGap || letter == bio.Unknown {
		for x := range v {
			v[x] = 1
		}
		return v
	}
	for _, x := range alpha.Expand(letter) {
		v[x] = 1
	}
	return v
}

// Vector returns the conditional likelihood vector of (branch, rate,
// name) together with its binary exponent, computing entries lazily.
func (cl *CLCache) Vector(a *align.Alignment, t *tree.Tree, ix *suba.Index,
	mc *MatCache, b, r, name int) ([]float64, int) {
	cl.ensureBranch(a, t, ix, mc, b)
	if cl.vecs[b][r][name] == nil {
		cl.computeName(a, t, ix, mc, b, name)
	}
	return cl.vecs[b][r][name], cl.scale[b][r][name]
}

// EVector returns the conditional likelihood as EFloat components.
func (cl *CLCache) EVector(a *align.Alignment, t *tree.Tree, ix *suba.Index,
	mc *MatCache, b, r, name int) []efloat.EFloat {
	v, e := cl.Vector(a, t, ix, mc, b, r, name)
	res := make([]efloat.EFloat, len(v))
	for i, x := range v {
		res[i] = efloat.Make(x).Scale(e)
	}
	return res
}

func (cl *CLCache) ensureBranch(a *align.Alignment, t *tree.Tree, ix *suba.Index,
	mc *MatCache, b int) {
	ix.UpdateBranch(a, t, b)
	length := ix.BranchIndexLength(b)
	if cl.valid[b] && len(cl.vecs[b][0]) == length {
		return
	}
	cl.alloc(b, length)
}

// computeName fills the vectors of one column name for every rate
// class.
func (cl *CLCache) computeName(a *align.Alignment, t *tree.Tree, ix *suba.Index,
	mc *MatCache, b, name int) {
	src := t.Source(b)
	if t.IsLeafNode(src) {
		letters := leafLetters(a, src)
		for r := range cl.vecs[b] {
			cl.vecs[b][r][name] = leafVector(a.Alpha, letters[name], cl.nStates)
			cl.scale[b][r][name] = 0
		}
		return
	}

	b1, b2, pairs := ix.BehindPairs(a, t, b)
	p := pairs[name]
	f1 := make([]float64, cl.nStates)
	f2 := make([]float64, cl.nStates)
	for r := range cl.vecs[b] {
		e := 0
		if p[0] >= 0 {
			v1, e1 := cl.Vector(a, t, ix, mc, b1, r, p[0])
			gemv(mc.P(t, t.Undirected(b1), r), v1, f1)
			e += e1
		} else {
			for x := range f1 {
				f1[x] = 1
			}
		}
		if p[1] >= 0 {
			v2, e2 := cl.Vector(a, t, ix, mc, b2, r, p[1])
			gemv(mc.P(t, t.Undirected(b2), r), v2, f2)
			e += e2
		} else {
			for x := range f2 {
				f2[x] = 1
			}
		}
		res := make([]float64, cl.nStates)
		max := 0.0
		for x := range res {
			res[x] = f1[x] * f2[x]
			if res[x] > max {
				max = res[x]
			}
		}
		// rescale when the mantissa leaves the safe band; the
		// exponent absorbs the shift
		if max > 0 && (max < 1e-150 || max > 1e150) {
			_, exp := math.Frexp(max)
			for x := range res {
				res[x] = math.Ldexp(res[x], -exp)
			}
			e += exp
		}
		cl.vecs[b][r][name] = res
		cl.scale[b][r][name] = e
	}
}
