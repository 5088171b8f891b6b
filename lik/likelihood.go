package lik

import (
	"math"

	"bitbucket.org/Davydov/treeali/align"
	"bitbucket.org/Davydov/treeali/bio"
	"bitbucket.org/Davydov/treeali/efloat"
	"bitbucket.org/Davydov/treeali/suba"
	"bitbucket.org/Davydov/treeali/tree"
)

// Likelihood computes the total substitution log-likelihood of the
// alignment on the tree by combining the cached conditional
// likelihoods of the branches pointing into a root node, averaging
// over rate classes.
func Likelihood(a *align.Alignment, t *tree.Tree, ix *suba.Index,
	mc *MatCache, cl *CLCache) float64 {

	root := t.NNodes() - 1
	if t.NInternal() == 0 {
		root = 1
	}
	var ins []int
	for _, e := range t.OutBranches(root) {
		ins = append(ins, t.Reverse(e))
	}
	for _, d := range ins {
		ix.UpdateBranch(a, t, d)
	}

	freq := mc.Model().Frequencies()
	n := mc.Model().NStates()
	nRates := mc.NRates()

	var rootLetters []int
	if t.IsLeafNode(root) {
		rootLetters = leafLetters(a, root)
	}
	rootPos := 0

	lnL := 0.0
	g := make([]float64, n)
	f := make([]float64, n)
	for c := 0; c < a.NCols(); c++ {
		empty := true
		for _, d := range ins {
			if ix.ColumnName(d, c) >= 0 {
				empty = false
				break
			}
		}
		rootFeature := bio.IsFeature(a.Cell(c, root))
		if empty && !rootFeature {
			continue
		}
		if empty && !t.IsLeafNode(root) {
			// only internal presence at the root: the
			// substitution process contributes a factor 1
			continue
		}

		var colSum efloat.EFloat
		for r := 0; r < nRates; r++ {
			scale := 0
			for x := 0; x < n; x++ {
				g[x] = freq[x]
			}
			for _, d := range ins {
				name := ix.ColumnName(d, c)
				if name < 0 {
					continue
				}
				v, e := cl.Vector(a, t, ix, mc, d, r, name)
				gemv(mc.P(t, t.Undirected(d), r), v, f)
				scale += e
				for x := 0; x < n; x++ {
					g[x] *= f[x]
				}
			}
			if t.IsLeafNode(root) && rootFeature {
				obs := leafVector(a.Alpha, rootLetters[rootPos], n)
				for x := 0; x < n; x++ {
					g[x] *= obs[x]
				}
			}
			s := 0.0
			for x := 0; x < n; x++ {
				s += g[x]
			}
			colSum = colSum.Add(efloat.Make(s).Scale(scale))
		}
		if t.IsLeafNode(root) && rootFeature {
			rootPos++
		}
		l := colSum.MulFloat(1 / float64(nRates)).Log()
		if math.IsNaN(l) {
			l = math.Inf(-1)
		}
		lnL += l
	}
	return lnL
}
