// Package lik provides the per-branch transition-probability cache
// and the conditional-likelihood cache keyed by sub-alignment column
// names, plus the total substitution likelihood.
package lik

import (
	"github.com/gonum/blas"
	"github.com/gonum/blas/blas64"
	"github.com/gonum/matrix/mat64"
	"github.com/op/go-logging"

	"bitbucket.org/Davydov/treeali/smodel"
	"bitbucket.org/Davydov/treeali/tree"
)

var log = logging.MustGetLogger("lik")

// MatCache caches substitution probability matrices P = exp(Q t r)
// per (undirected branch, rate class).
type MatCache struct {
	sm    smodel.Model
	rates []float64
	p     [][]blas64.General
	valid []bool
	cd    *mat64.Dense
}

// NewMatCache creates a cache for nBranches branches.
func NewMatCache(sm smodel.Model, rates []float64, nBranches int) *MatCache {
	mc := &MatCache{
		sm:    sm,
		rates: rates,
		p:     make([][]blas64.General, nBranches),
		valid: make([]bool, nBranches),
	}
	n := sm.NStates()
	mc.cd = mat64.NewDense(n, n, nil)
	return mc
}

// NRates returns the number of rate classes.
func (mc *MatCache) NRates() int { return len(mc.rates) }

// Rates returns the rate multipliers.
func (mc *MatCache) Rates() []float64 { return mc.rates }

// Model returns the substitution model.
func (mc *MatCache) Model() smodel.Model { return mc.sm }

// Copy clones the cache; cached matrices are shared until
// invalidated.
func (mc *MatCache) Copy() *MatCache {
	n := mc.sm.NStates()
	nm := &MatCache{
		sm:    mc.sm.Copy(),
		rates: append([]float64(nil), mc.rates...),
		p:     make([][]blas64.General, len(mc.p)),
		valid: append([]bool(nil), mc.valid...),
		cd:    mat64.NewDense(n, n, nil),
	}
	for b := range mc.p {
		nm.p[b] = append([]blas64.General(nil), mc.p[b]...)
	}
	return nm
}

// Invalidate drops the matrices of one branch.
func (mc *MatCache) Invalidate(b int) {
	if b >= len(mc.valid) {
		b = len(mc.valid) - 1
	}
	mc.valid[b] = false
}

// InvalidateAll drops every matrix (substitution model change).
func (mc *MatCache) InvalidateAll() {
	for b := range mc.valid {
		mc.valid[b] = false
	}
}

func (mc *MatCache) update(t *tree.Tree, b int) {
	em, err := mc.sm.EM()
	if err != nil {
		log.Fatalf("eigendecomposition failed: %v", err)
	}
	mc.p[b] = make([]blas64.General, len(mc.rates))
	for r, rate := range mc.rates {
		pm, err := em.Exp(mc.cd, t.Length(b)*rate)
		if err != nil {
			log.Fatalf("matrix exponentiation failed: %v", err)
		}
		mc.p[b][r] = pm.RawMatrix()
	}
	mc.valid[b] = true
}

// P returns the probability matrix for a branch and rate class. The
// boundary name NBranches maps to NBranches-1 (the two-sequence pair
// convention). Directed branch names are accepted.
func (mc *MatCache) P(t *tree.Tree, b, r int) blas64.General {
	if b >= len(mc.valid) {
		b = t.Undirected(b)
		if b >= len(mc.valid) {
			b = len(mc.valid) - 1
		}
	}
	if !mc.valid[b] {
		mc.update(t, b)
	}
	return mc.p[b][r]
}

// SetLength updates a branch length and drops the affected matrices.
func (mc *MatCache) SetLength(t *tree.Tree, b int, l float64) {
	t.SetLength(b, l)
	mc.Invalidate(t.Undirected(b))
}

// Recalc recomputes every branch.
func (mc *MatCache) Recalc(t *tree.Tree) {
	mc.InvalidateAll()
	for b := 0; b < len(mc.valid); b++ {
		mc.update(t, b)
	}
}

// gemv computes y = P^T-row-combination: y[x] = sum_y P(x->y) v[y].
func gemv(p blas64.General, v, y []float64) {
	blas64.Gemv(blas.NoTrans, 1,
		p,
		blas64.Vector{Inc: 1, Data: v},
		0,
		blas64.Vector{Inc: 1, Data: y})
}
