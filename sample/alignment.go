package sample

import (
	"math"
	"math/rand"

	"bitbucket.org/Davydov/treeali/align"
	"bitbucket.org/Davydov/treeali/bio"
	"bitbucket.org/Davydov/treeali/efloat"
	"bitbucket.org/Davydov/treeali/hmm"
	"bitbucket.org/Davydov/treeali/mcmc"
	"bitbucket.org/Davydov/treeali/pmodel"
)

// state extracts the concrete model from the move interface.
func state(m mcmc.Model) *pmodel.State {
	return m.(*pmodel.State)
}

// accept performs the Metropolis-Hastings decision for a proposal
// generated through a DP: the proposal density ratio is the ratio of
// the path weights (the forward normalizer cancels when both paths
// run through the same lattice).
func acceptRatio(lnPNew, lnPOld float64, wOld, wNew efloat.EFloat) bool {
	la := lnPNew - lnPOld + wOld.Log() - wNew.Log()
	return la >= 0 || rand.Float64() < math.Exp(la)
}

// resamplePairOne resamples the pairwise alignment across branch b of
// one partition. Returns 1 on acceptance.
func resamplePairOne(s *pmodel.State, p *pmodel.Partition, b int) float64 {
	if p.IM == nil {
		return 0
	}
	d := s.T.Undirected(b)
	h := p.IM.PairHMM()
	em := newPairEmitter(s, p, d)
	lat := hmm.Forward2(h, em.N1(), em.N2(), em, nil)

	oldPath := extractPath2(s, p, d)
	wOld := lat.PathWeight(oldPath)
	newPath, wNew := lat.Sample()

	lnPOld := s.HeatedLogProb()
	oldA := p.A.Copy()

	replaceColumns(p.A, construct2(s, p, d, newPath))
	s.InvalidatePairwise(d)
	lnPNew := s.HeatedLogProb()

	if !acceptRatio(lnPNew, lnPOld, wOld, wNew) {
		*p.A = *oldA
		s.InvalidatePairwise(d)
		return 0
	}
	return 1
}

// SampleAlignmentsOne resamples the pairwise alignment along branch
// b with the 2-way HMM, conditioning on the rest of the tree through
// the cached conditional likelihoods.
func SampleAlignmentsOne(m mcmc.Model, stats mcmc.Stats, b int) {
	s := state(m)
	acc := 0.0
	for _, p := range s.Parts {
		acc += resamplePairOne(s, p, b)
	}
	stats.Inc("sample_alignments", mcmc.NewResult(acc/float64(len(s.Parts))))
}

// WalkTreeSampleAlignments resamples the alignment along every branch
// following a tree walk.
func WalkTreeSampleAlignments(m mcmc.Model, stats mcmc.Stats) {
	s := state(m)
	for _, d := range s.T.BranchesTowardNode(s.T.NNodes() - 1) {
		b := s.T.Undirected(d)
		acc := 0.0
		for _, p := range s.Parts {
			acc += resamplePairOne(s, p, b)
		}
		stats.Inc("walk_tree_sample_alignments", mcmc.NewResult(acc/float64(len(s.Parts))))
	}
}

// triDirection orients branch b so the target is an internal node.
func triDirection(s *pmodel.State, b int) (int, bool) {
	d := s.T.Undirected(b)
	if !s.T.IsLeafNode(s.T.Target(d)) {
		return d, true
	}
	if !s.T.IsLeafNode(s.T.Source(d)) {
		return s.T.Reverse(d), true
	}
	return 0, false
}

// resampleTriOne resamples the alignment across branch b together
// with the presence row of the adjacent internal node, using the
// three-way HMM.
func resampleTriOne(s *pmodel.State, p *pmodel.Partition, b int) float64 {
	if p.IM == nil {
		return 0
	}
	d, ok := triDirection(s, b)
	if !ok {
		return 0
	}
	h := hmm.NewTri(p.IM.PairHMM())
	te := newTriEmitter(s, p, d, h)
	lat := hmm.Forward2(h, te.N1(), te.N2(), triLattice{te}, triAllowed(te))

	oldPath := extractPathTri(s, p, d, h, te.table)
	wOld := lat.PathWeight(oldPath)
	newPath, wNew := lat.Sample()

	lnPOld := s.HeatedLogProb()
	oldA := p.A.Copy()

	replaceColumns(p.A, constructTri(s, p, d, h, te.table, newPath))
	s.InvalidatePairwise(d)
	s.InvalidateNode(s.T.Target(d))
	lnPNew := s.HeatedLogProb()

	if !acceptRatio(lnPNew, lnPOld, wOld, wNew) {
		*p.A = *oldA
		s.InvalidatePairwise(d)
		s.InvalidateNode(s.T.Target(d))
		return 0
	}
	return 1
}

// SampleTriOne resamples the alignment on the three branches meeting
// at the internal node next to branch b, with the 3-way HMM.
func SampleTriOne(m mcmc.Model, stats mcmc.Stats, b int) {
	s := state(m)
	acc := 0.0
	for _, p := range s.Parts {
		acc += resampleTriOne(s, p, b)
	}
	stats.Inc("sample_tri", mcmc.NewResult(acc/float64(len(s.Parts))))
}

// SampleTriBranchOne couples a branch-length change with a three-way
// alignment resample.
func SampleTriBranchOne(m mcmc.Model, stats mcmc.Stats, b int) {
	s := state(m)
	b = s.T.Undirected(b)
	oldL := s.T.Length(b)
	newL := oldL * math.Exp(rand.NormFloat64()*0.3)
	lj := math.Log(newL / oldL)

	lnPOld := s.HeatedLogProb()
	oldAs := snapshotAlignments(s)

	s.SetBranchLength(b, newL)
	var wOld, wNew efloat.EFloat = efloat.One, efloat.One
	for _, p := range s.Parts {
		if p.IM == nil {
			continue
		}
		d, ok := triDirection(s, b)
		if !ok {
			continue
		}
		h := hmm.NewTri(p.IM.PairHMM())
		te := newTriEmitter(s, p, d, h)
		lat := hmm.Forward2(h, te.N1(), te.N2(), triLattice{te}, triAllowed(te))
		oldPath := extractPathTri(s, p, d, h, te.table)
		wOld = wOld.Mul(lat.PathWeight(oldPath))
		path, w := lat.Sample()
		wNew = wNew.Mul(w)
		replaceColumns(p.A, constructTri(s, p, d, h, te.table, path))
		s.InvalidatePairwise(d)
		s.InvalidateNode(s.T.Target(d))
	}
	lnPNew := s.HeatedLogProb()

	la := lnPNew - lnPOld + wOld.Log() - wNew.Log() + lj
	if la >= 0 || rand.Float64() < math.Exp(la) {
		stats.Inc("sample_tri_branch", mcmc.NewResult(1))
		return
	}
	restoreAlignments(s, oldAs)
	s.SetBranchLength(b, oldL)
	s.InvalidatePairwise(b)
	if d, ok := triDirection(s, b); ok {
		s.InvalidateNode(s.T.Target(d))
	}
	stats.Inc("sample_tri_branch", mcmc.NewResult(0))
}

// SampleTriBranchTypeOne is the variant of the three-way resample
// used when only the column type at the center node should move.
func SampleTriBranchTypeOne(m mcmc.Model, stats mcmc.Stats, b int) {
	s := state(m)
	d, ok := triDirection(s, b)
	if !ok {
		stats.Inc("sample_tri_branch_aligned", mcmc.NewResult(0))
		return
	}
	stats.Inc("sample_tri_branch_aligned",
		mcmc.NewResult(resampleNode(s, s.T.Target(d))))
}

func snapshotAlignments(s *pmodel.State) []*align.Alignment {
	res := make([]*align.Alignment, len(s.Parts))
	for i, p := range s.Parts {
		res[i] = p.A.Copy()
	}
	return res
}

func restoreAlignments(s *pmodel.State, old []*align.Alignment) {
	for i, p := range s.Parts {
		*p.A = *old[i]
	}
}

// columnConnected checks the connectedness of one column with the
// presence bit of node n overridden.
func columnConnected(s *pmodel.State, a *align.Alignment, c, n int, present bool) bool {
	t := s.T
	feat := make([]bool, t.NNodes())
	first, count := -1, 0
	for i := 0; i < t.NNodes(); i++ {
		if i == n {
			feat[i] = present
		} else {
			feat[i] = bio.IsFeature(a.Cell(c, i))
		}
		if feat[i] {
			if first < 0 {
				first = i
			}
			count++
		}
	}
	if count <= 1 {
		return true
	}
	seen := make([]bool, t.NNodes())
	stack := []int{first}
	seen[first] = true
	reached := 1
	for len(stack) > 0 {
		x := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, y := range t.Neighbors(x) {
			if feat[y] && !seen[y] {
				seen[y] = true
				reached++
				stack = append(stack, y)
			}
		}
	}
	return reached == count
}

// resampleNode proposes new presence bits for node n column by
// column: where both values keep the column connected a fair coin is
// thrown, otherwise the forced value is kept. The proposal is
// symmetric, so plain Metropolis acceptance applies.
func resampleNode(s *pmodel.State, n int) float64 {
	lnPOld := s.HeatedLogProb()
	oldAs := snapshotAlignments(s)

	changed := false
	for _, p := range s.Parts {
		for c := 0; c < p.A.NCols(); c++ {
			okPresent := columnConnected(s, p.A, c, n, true)
			okAbsent := columnConnected(s, p.A, c, n, false)
			var present bool
			switch {
			case okPresent && okAbsent:
				present = rand.Intn(2) == 0
			case okPresent:
				present = true
			default:
				present = false
			}
			cur := bio.IsFeature(p.A.Cell(c, n))
			if cur == present {
				continue
			}
			if present {
				p.A.SetCell(c, n, bio.NotGap)
			} else {
				p.A.SetCell(c, n, bio.Gap)
			}
			changed = true
		}
		p.A.RemoveEmptyColumns()
	}
	if !changed {
		return 1
	}
	s.InvalidateNode(n)
	lnPNew := s.HeatedLogProb()
	la := lnPNew - lnPOld
	if la >= 0 || rand.Float64() < math.Exp(la) {
		return 1
	}
	restoreAlignments(s, oldAs)
	s.InvalidateNode(n)
	return 0
}

// SampleNodeMove resamples gap/not-gap at one internal node for each
// column independently.
func SampleNodeMove(m mcmc.Model, stats mcmc.Stats, node int) {
	s := state(m)
	stats.Inc("sample_node", mcmc.NewResult(resampleNode(s, node)))
}

// SampleTwoNodesMove resamples the presence bits of an internal node
// and a random internal neighbour jointly.
func SampleTwoNodesMove(m mcmc.Model, stats mcmc.Stats, node int) {
	s := state(m)
	var internals []int
	for _, u := range s.T.Neighbors(node) {
		if !s.T.IsLeafNode(u) {
			internals = append(internals, u)
		}
	}
	if len(internals) == 0 {
		stats.Inc("sample_two_nodes", mcmc.NewResult(0))
		return
	}
	u := internals[rand.Intn(len(internals))]
	acc := resampleNode(s, node)
	acc = math.Min(acc, resampleNode(s, u))
	stats.Inc("sample_two_nodes", mcmc.NewResult(acc))
}
