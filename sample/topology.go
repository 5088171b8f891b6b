package sample

import (
	"math"
	"math/rand"

	"bitbucket.org/Davydov/treeali/efloat"
	"bitbucket.org/Davydov/treeali/hmm"
	"bitbucket.org/Davydov/treeali/mcmc"
	"bitbucket.org/Davydov/treeali/pmodel"
)

// nniCandidate builds the state reached by one NNI across branch b,
// with the internal rows repaired and all caches dropped.
func nniCandidate(s *pmodel.State, b, which int) *pmodel.State {
	cand := s.Copy()
	if err := cand.T.NNI(b, which); err != nil {
		log.Fatalf("NNI: %v", err)
	}
	cand.RepairAlignments()
	cand.InvalidateAllCaches()
	return cand
}

// ThreeWayTopologySample enumerates the three local topologies around
// an internal branch and samples one proportionally to its posterior.
func ThreeWayTopologySample(m mcmc.Model, stats mcmc.Stats, b int) {
	s := state(m)
	if s.T.IsLeafBranch(b) {
		return
	}
	cands := []*pmodel.State{s, nniCandidate(s, b, 0), nniCandidate(s, b, 1)}
	w := make([]efloat.EFloat, len(cands))
	for i, c := range cands {
		w[i] = efloat.MakeLog(c.HeatedLogProb())
	}
	choice := hmm.SampleCategorical(w)
	if choice != 0 {
		s.Assign(cands[choice])
	}
	changed := 0.0
	if choice != 0 {
		changed = 1
	}
	stats.Inc("three_way_NNI", mcmc.NewResult(changed))
}

// TwoWayTopologySample proposes one of the two NNIs across an
// internal branch and accepts or rejects it.
func TwoWayTopologySample(m mcmc.Model, stats mcmc.Stats, b int) {
	s := state(m)
	if s.T.IsLeafBranch(b) {
		return
	}
	lnPOld := s.HeatedLogProb()
	cand := nniCandidate(s, b, rand.Intn(2))
	la := cand.HeatedLogProb() - lnPOld
	if la >= 0 || rand.Float64() < math.Exp(la) {
		s.Assign(cand)
		stats.Inc("two_way_NNI", mcmc.NewResult(1))
		return
	}
	stats.Inc("two_way_NNI", mcmc.NewResult(0))
}

// ThreeWayTopologyAndAlignmentSample couples an NNI with a pairwise
// realignment across the branch.
func ThreeWayTopologyAndAlignmentSample(m mcmc.Model, stats mcmc.Stats, b int) {
	s := state(m)
	if s.T.IsLeafBranch(b) {
		return
	}
	lnPOld := s.HeatedLogProb()
	cand := nniCandidate(s, b, rand.Intn(2))

	var wOld, wNew efloat.EFloat = efloat.One, efloat.One
	for _, p := range cand.Parts {
		if p.IM == nil {
			continue
		}
		d := cand.T.Undirected(b)
		h := p.IM.PairHMM()
		em := newPairEmitter(cand, p, d)
		lat := hmm.Forward2(h, em.N1(), em.N2(), em, nil)
		wOld = wOld.Mul(lat.PathWeight(extractPath2(cand, p, d)))
		path, w := lat.Sample()
		wNew = wNew.Mul(w)
		replaceColumns(p.A, construct2(cand, p, d, path))
		cand.InvalidatePairwise(d)
	}

	la := cand.HeatedLogProb() - lnPOld + wOld.Log() - wNew.Log()
	if la >= 0 || rand.Float64() < math.Exp(la) {
		s.Assign(cand)
		stats.Inc("three_way_NNI_and_A", mcmc.NewResult(1))
		return
	}
	stats.Inc("three_way_NNI_and_A", mcmc.NewResult(0))
}

// sprSetup picks a random subtree to prune and lists the eligible
// regraft branches.
func sprSetup(s *pmodel.State) (d int, eligible []int, ok bool) {
	t := s.T
	if t.NLeaves() < 4 {
		return 0, nil, false
	}
	// pick a directed branch whose target (the attachment node to
	// dissolve) is internal
	for try := 0; try < 64; try++ {
		d = rand.Intn(t.NDirected())
		if !t.IsLeafNode(t.Target(d)) {
			break
		}
		d = -1
	}
	if d < 0 {
		return 0, nil, false
	}
	a := t.Target(d)
	banned := make(map[int]bool)
	for _, n := range t.NodesBehind(d) {
		banned[n] = true
	}
	banned[a] = true
	for u := 0; u < t.NBranches(); u++ {
		if banned[t.Source(u)] || banned[t.Target(u)] {
			continue
		}
		eligible = append(eligible, u)
	}
	return d, eligible, len(eligible) > 0
}

// sprCandidate builds the state with the subtree behind d regrafted
// onto branch graft at fraction frac. The returned Hastings term
// accounts for the attachment-point densities.
func sprCandidate(s *pmodel.State, d, graft int, frac float64) (*pmodel.State, float64) {
	cand := s.Copy()
	t := cand.T

	// lengths entering the Hastings ratio: the graft branch is
	// split, the two branches at the old attachment point merge
	a := t.Target(d)
	rev := t.Reverse(d)
	merged := 0.0
	for _, e := range t.OutBranches(a) {
		if e != rev {
			merged += t.Length(e)
		}
	}
	lg := t.Length(graft)

	if err := t.SPR(d, graft, frac); err != nil {
		log.Fatalf("SPR: %v", err)
	}
	cand.RepairAlignments()
	cand.InvalidateAllCaches()
	return cand, math.Log(lg) - math.Log(merged)
}

// SampleSPRFlat prunes a random subtree and regrafts it onto a
// uniformly chosen branch.
func SampleSPRFlat(m mcmc.Model, stats mcmc.Stats) {
	s := state(m)
	d, eligible, ok := sprSetup(s)
	if !ok {
		return
	}
	graft := eligible[rand.Intn(len(eligible))]
	lnPOld := s.HeatedLogProb()
	cand, lh := sprCandidate(s, d, graft, rand.Float64())
	la := cand.HeatedLogProb() - lnPOld + lh
	if la >= 0 || rand.Float64() < math.Exp(la) {
		s.Assign(cand)
		stats.Inc("SPR_flat", mcmc.NewResult(1))
		return
	}
	stats.Inc("SPR_flat", mcmc.NewResult(0))
}

// SampleSPRNodes prunes a random subtree and regrafts it onto a
// branch sampled proportionally to the posterior of the resulting
// state.
func SampleSPRNodes(m mcmc.Model, stats mcmc.Stats) {
	s := state(m)
	d, eligible, ok := sprSetup(s)
	if !ok {
		return
	}
	cands := []*pmodel.State{s}
	w := []efloat.EFloat{efloat.MakeLog(s.HeatedLogProb())}
	for _, graft := range eligible {
		cand, lh := sprCandidate(s, d, graft, rand.Float64())
		cands = append(cands, cand)
		w = append(w, efloat.MakeLog(cand.HeatedLogProb()+lh))
	}
	choice := hmm.SampleCategorical(w)
	if choice != 0 {
		s.Assign(cands[choice])
	}
	changed := 0.0
	if choice != 0 {
		changed = 1
	}
	stats.Inc("SPR_nodes", mcmc.NewResult(changed))
}

// SampleSPRAll integrates over the attachment alignment: candidate
// attachments are scored with invalid rootward indices allowed, and
// the alignment across the chosen attachment branch is resampled.
func SampleSPRAll(m mcmc.Model, stats mcmc.Stats) {
	s := state(m)
	d, eligible, ok := sprSetup(s)
	if !ok {
		return
	}
	for _, p := range s.Parts {
		p.Ix.AllowInvalidBranches(true)
	}
	cands := []*pmodel.State{s}
	w := []efloat.EFloat{efloat.MakeLog(s.HeatedLogProb())}
	grafts := []int{-1}
	for _, graft := range eligible {
		cand, lh := sprCandidate(s, d, graft, rand.Float64())
		cands = append(cands, cand)
		w = append(w, efloat.MakeLog(cand.HeatedLogProb()+lh))
		grafts = append(grafts, graft)
	}
	for _, p := range s.Parts {
		p.Ix.AllowInvalidBranches(false)
	}
	choice := hmm.SampleCategorical(w)
	changed := 0.0
	if choice != 0 {
		s.Assign(cands[choice])
		changed = 1
		// integrate the attachment alignment
		for _, p := range s.Parts {
			resamplePairOne(s, p, grafts[choice])
		}
	}
	stats.Inc("SPR_all", mcmc.NewResult(changed))
}
