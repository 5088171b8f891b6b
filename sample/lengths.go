package sample

import (
	"math"
	"math/rand"

	"bitbucket.org/Davydov/treeali/mcmc"
	"bitbucket.org/Davydov/treeali/pmodel"
)

// proposeLength performs one MH update of a single branch length
// using a log-scale Gaussian random walk.
func proposeLength(s *pmodel.State, b int, sigma float64) float64 {
	b = s.T.Undirected(b)
	oldL := s.T.Length(b)
	newL := oldL * math.Exp(rand.NormFloat64()*sigma)

	lnPOld := s.HeatedLogProb()
	s.SetBranchLength(b, newL)
	la := s.HeatedLogProb() - lnPOld + math.Log(newL/oldL)
	if la >= 0 || rand.Float64() < math.Exp(la) {
		return 1
	}
	s.SetBranchLength(b, oldL)
	return 0
}

// ChangeBranchLengthMove is the Gaussian random-walk branch-length
// move.
func ChangeBranchLengthMove(m mcmc.Model, stats mcmc.Stats, b int) {
	s := state(m)
	stats.Inc("change_branch_length", mcmc.NewResult(proposeLength(s, b, 0.3)))
}

// ChangeBranchLengthMultiMove scales a branch and its neighbours by a
// common factor.
func ChangeBranchLengthMultiMove(m mcmc.Model, stats mcmc.Stats, b int) {
	s := state(m)
	b = s.T.Undirected(b)
	branches := map[int]bool{b: true}
	for _, e := range s.T.BranchesAfter(b) {
		branches[s.T.Undirected(e)] = true
	}
	for _, e := range s.T.BranchesBefore(b) {
		branches[s.T.Undirected(e)] = true
	}

	factor := math.Exp(rand.NormFloat64() * 0.2)
	old := make(map[int]float64, len(branches))
	lnPOld := s.HeatedLogProb()
	for u := range branches {
		old[u] = s.T.Length(u)
		s.SetBranchLength(u, old[u]*factor)
	}
	la := s.HeatedLogProb() - lnPOld + float64(len(branches))*math.Log(factor)
	if la >= 0 || rand.Float64() < math.Exp(la) {
		stats.Inc("change_branch_length_multi", mcmc.NewResult(1))
		return
	}
	for u, l := range old {
		s.SetBranchLength(u, l)
	}
	stats.Inc("change_branch_length_multi", mcmc.NewResult(0))
}

// ChangeBranchLengthAndT couples a length change on an internal
// branch with a topology change across it.
func ChangeBranchLengthAndT(m mcmc.Model, stats mcmc.Stats, b int) {
	s := state(m)
	if s.T.IsLeafBranch(b) {
		return
	}
	lnPOld := s.HeatedLogProb()
	cand := nniCandidate(s, b, rand.Intn(2))
	oldL := cand.T.Length(b)
	newL := oldL * math.Exp(rand.NormFloat64()*0.3)
	cand.SetBranchLength(b, newL)

	la := cand.HeatedLogProb() - lnPOld + math.Log(newL/oldL)
	if la >= 0 || rand.Float64() < math.Exp(la) {
		s.Assign(cand)
		stats.Inc("change_branch_length_and_T", mcmc.NewResult(1))
		return
	}
	stats.Inc("change_branch_length_and_T", mcmc.NewResult(0))
}

// WalkTreeSampleBranchLengths slice-samples every branch length on
// the log scale, walking the tree.
func WalkTreeSampleBranchLengths(m mcmc.Model, stats mcmc.Stats) {
	s := state(m)
	for _, d := range s.T.BranchesTowardNode(s.T.NNodes() - 1) {
		b := s.T.Undirected(d)
		x0 := math.Log(s.T.Length(b))
		f := func(t float64) float64 {
			s.SetBranchLength(b, math.Exp(t))
			// the log scale needs the Jacobian term
			return s.HeatedLogProb() + t
		}
		x1, tries := mcmc.SliceSample(x0, f, 1.0)
		s.SetBranchLength(b, math.Exp(x1))
		stats.Inc("walk_tree_sample_branch_lengths",
			mcmc.NewResult2(math.Abs(x1-x0), float64(tries)))
	}
}

// ScaleMeansOnly rescales all branch-length scale parameters by a
// common factor.
func ScaleMeansOnly(m mcmc.Model, stats mcmc.Stats) {
	s := state(m)
	pars := *s.Parameters()
	var idx []int
	for i, par := range pars {
		name := par.Name()
		if len(name) >= 2 && name[:2] == "mu" && !par.Fixed() {
			idx = append(idx, i)
		}
	}
	if len(idx) == 0 {
		return
	}
	factor := math.Exp(rand.NormFloat64() * 0.3)
	lnPOld := s.HeatedLogProb()
	old := make([]float64, len(idx))
	for k, i := range idx {
		old[k] = pars[i].Get()
		pars[i].Set(old[k] * factor)
	}
	la := s.HeatedLogProb() - lnPOld + float64(len(idx))*math.Log(factor)
	if la >= 0 || rand.Float64() < math.Exp(la) {
		stats.Inc("scale_means_only", mcmc.NewResult(1))
		return
	}
	for k, i := range idx {
		pars[i].Set(old[k])
	}
	stats.Inc("scale_means_only", mcmc.NewResult(0))
}

// SampleNNIAndBranchLengths combines an NNI scan with a length walk.
func SampleNNIAndBranchLengths(m mcmc.Model, stats mcmc.Stats) {
	s := state(m)
	for b := s.T.NLeaves(); b < s.T.NBranches(); b++ {
		ThreeWayTopologySample(m, stats, b)
	}
	WalkTreeSampleBranchLengths(m, stats)
}
