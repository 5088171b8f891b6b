package main

import (
	"math"
	"strconv"
	"strings"

	"bitbucket.org/Davydov/treeali/mcmc"
	"bitbucket.org/Davydov/treeali/optimize"
	"bitbucket.org/Davydov/treeali/pmodel"
	"bitbucket.org/Davydov/treeali/sample"
)

// setIfUndef sets a tuning key if the user has not.
func setIfUndef(keys map[string]float64, name string, v float64) {
	if _, ok := keys[name]; !ok {
		keys[name] = v
	}
}

// addMHMove registers Metropolis-Hastings submoves for every
// non-fixed parameter matching the pattern.
func addMHMove(s *pmodel.State, pattern, pname string, sigma float64,
	logScaled bool, group *mcmc.MoveAll) {

	pars := s.Parameters()
	setIfUndef(s.Keys, pname, sigma)
	width := s.Keys[pname]

	for _, i := range pars.WithExtension(pattern) {
		par := (*pars)[i]
		if par.Fixed() {
			continue
		}
		var prop mcmc.Proposal
		if logScaled {
			prop = &mcmc.ParameterProposal{
				Index:       i,
				F:           optimize.MoreThan(par.GetMin(), optimize.LogScaled(optimize.CauchyProposal(width))),
				LogJacobian: mcmc.LogJacobian,
			}
		} else {
			prop = &mcmc.ParameterProposal{
				Index: i,
				F:     optimize.Between(par.GetMin(), par.GetMax(), optimize.CauchyProposal(width)),
			}
		}
		group.Add(1, mcmc.NewMHMove(prop, "MH_sample_"+par.Name(), "parameters"), true)
	}
}

// addSliceMoves registers slice-sampling submoves for every non-fixed
// parameter matching the pattern.
func addSliceMoves(s *pmodel.State, pattern, pname string, w float64,
	transform, inverse func(float64) float64, group *mcmc.MoveAll) {

	pars := s.Parameters()
	setIfUndef(s.Keys, pname, w)
	w = s.Keys[pname]

	for _, i := range pars.WithExtension(pattern) {
		par := (*pars)[i]
		if par.Fixed() {
			continue
		}
		var m mcmc.Move
		if transform != nil {
			m = mcmc.NewTransformedSliceMove("slice_sample_"+par.Name(),
				"parameters", i, w, transform, inverse)
		} else {
			m = mcmc.NewParameterSliceMove("slice_sample_"+par.Name(),
				"parameters", i, w)
		}
		group.Add(1, m, true)
	}
}

// addDirichletMove registers a joint simplex move over explicit
// parameter indices.
func addDirichletMove(s *pmodel.State, name string, indices []int, pname string,
	n float64, group *mcmc.MoveAll) {

	pars := s.Parameters()
	var free []int
	for _, i := range indices {
		if !(*pars)[i].Fixed() {
			free = append(free, i)
		}
	}
	if len(free) < 2 {
		return
	}
	setIfUndef(s.Keys, pname, n)
	prop := &mcmc.SimplexProposal{Indices: free, N: s.Keys[pname]}
	group.Add(1, mcmc.NewMHMove(prop, "MH_sample_"+name, "parameters"), true)
}

// getAlignmentMoves builds the alignment move group.
func getAlignmentMoves(s *pmodel.State) *mcmc.MoveAll {
	t := s.T
	branches := make([]int, t.NBranches())
	for i := range branches {
		branches[i] = i
	}
	var internalNodes []int
	for n := t.NLeaves(); n < t.NNodes(); n++ {
		internalNodes = append(internalNodes, n)
	}

	alignmentMoves := mcmc.NewMoveAll("alignment")

	branchMoves := mcmc.NewMoveEach("alignment_branch_master")
	branchMoves.Add(1.0, mcmc.NewMoveArgSingle("sample_alignments",
		"alignment:alignment_branch", sample.SampleAlignmentsOne, branches), true)
	if t.NLeaves() > 2 {
		branchMoves.Add(0.15, mcmc.NewMoveArgSingle("sample_tri",
			"alignment:alignment_branch:nodes", sample.SampleTriOne, branches), true)
		branchMoves.Add(0.1, mcmc.NewMoveArgSingle("sample_tri_branch",
			"alignment:nodes:length", sample.SampleTriBranchOne, branches), false)
		branchMoves.Add(0.1, mcmc.NewMoveArgSingle("sample_tri_branch_aligned",
			"alignment:nodes:length", sample.SampleTriBranchTypeOne, branches), false)
	}
	alignmentMoves.Add(1, branchMoves, false)
	alignmentMoves.Add(1, mcmc.NewSingleMove(sample.WalkTreeSampleAlignments,
		"walk_tree_sample_alignments", "alignment:alignment_branch:nodes"), true)

	nodesMoves := mcmc.NewMoveEach("nodes_master", "alignment", "nodes")
	if t.NLeaves() >= 3 {
		nodesMoves.Add(10, mcmc.NewMoveArgSingle("sample_node",
			"alignment:nodes", sample.SampleNodeMove, internalNodes), true)
	}
	if t.NLeaves() >= 4 {
		nodesMoves.Add(1, mcmc.NewMoveArgSingle("sample_two_nodes",
			"alignment:nodes", sample.SampleTwoNodesMove, internalNodes), true)
	}
	nodesWeight := s.Keys["nodes_weight"]
	if nodesWeight == 0 {
		nodesWeight = 1
	}
	alignmentMoves.Add(nodesWeight, nodesMoves, true)

	return alignmentMoves
}

// getTreeMoves builds the topology and branch-length move group.
func getTreeMoves(s *pmodel.State, hasIModel, starTree bool) *mcmc.MoveAll {
	t := s.T
	branches := make([]int, t.NBranches())
	for i := range branches {
		branches[i] = i
	}
	var internalBranches []int
	for b := t.NLeaves(); b < t.NBranches(); b++ {
		internalBranches = append(internalBranches, b)
	}

	treeMoves := mcmc.NewMoveAll("tree")
	topologyMove := mcmc.NewMoveAll("topology")
	nniMove := mcmc.NewMoveEach("NNI")
	sprMove := mcmc.NewMoveOne("SPR")

	nniAttrs := "topology"
	if hasIModel {
		nniAttrs = "alignment:nodes:topology"
	}
	nniMove.Add(1, mcmc.NewMoveArgSingle("three_way_NNI", nniAttrs,
		sample.ThreeWayTopologySample, internalBranches), true)
	nniMove.Add(1, mcmc.NewMoveArgSingle("two_way_NNI", "alignment:nodes:topology",
		sample.TwoWayTopologySample, internalBranches), false)
	if hasIModel {
		nniMove.Add(0.025, mcmc.NewMoveArgSingle("three_way_NNI_and_A",
			"alignment:alignment_branch:nodes:topology",
			sample.ThreeWayTopologyAndAlignmentSample, internalBranches), false)
	}

	sprAttrs := "topology:lengths"
	if hasIModel {
		sprAttrs = "topology:lengths:nodes:alignment:alignment_branch"
	}
	sprMove.Add(1, mcmc.NewSingleMove(sample.SampleSPRFlat, "SPR_flat", sprAttrs), true)
	sprMove.Add(1, mcmc.NewSingleMove(sample.SampleSPRNodes, "SPR_nodes", sprAttrs), true)
	sprMove.Add(10, mcmc.NewSingleMove(sample.SampleSPRAll, "SPR_all", sprAttrs), true)

	topologyMove.Add(1, nniMove, false)
	topologyMove.Add(1, sprMove, true)
	if t.NLeaves() > 3 && !starTree {
		treeMoves.Add(1, topologyMove, true)
	}

	lengthMoves := mcmc.NewMoveAll("lengths")
	lengthMoves1 := mcmc.NewMoveEach("lengths1")
	lengthMoves1.Add(1, mcmc.NewMoveArgSingle("change_branch_length", "lengths",
		sample.ChangeBranchLengthMove, branches), true)
	lengthMoves1.Add(1, mcmc.NewMoveArgSingle("change_branch_length_multi", "lengths",
		sample.ChangeBranchLengthMultiMove, branches), true)
	if !starTree {
		lengthMoves1.Add(0.01, mcmc.NewMoveArgSingle("change_branch_length_and_T",
			"lengths:nodes:topology", sample.ChangeBranchLengthAndT, internalBranches), true)
	}
	lengthMoves.Add(1, lengthMoves1, false)
	lengthMoves.Add(1, mcmc.NewSingleMove(sample.WalkTreeSampleBranchLengths,
		"walk_tree_sample_branch_lengths", "lengths"), true)

	treeMoves.Add(1, lengthMoves, true)
	if !starTree {
		treeMoves.Add(1, mcmc.NewSingleMove(sample.SampleNNIAndBranchLengths,
			"NNI_and_lengths", "topology:lengths"), true)
	}

	return treeMoves
}

// getParameterMHButNoSliceMoves builds the simplex moves.
func getParameterMHButNoSliceMoves(s *pmodel.State) *mcmc.MoveAll {
	moves := mcmc.NewMoveAll("parameters")

	totalLength := 0.0
	for _, p := range s.Parts {
		for i := 0; i < s.T.NLeaves(); i++ {
			l := p.A.SeqLength(i)
			if float64(l) > totalLength {
				totalLength = float64(l)
			}
		}
	}
	setIfUndef(s.Keys, "pi_dirichlet_N", 1.0)
	s.Keys["pi_dirichlet_N"] *= math.Max(totalLength, 1)
	setIfUndef(s.Keys, "GTR_dirichlet_N", 100)

	pars := s.Parameters()
	for k := range s.Parts {
		prefix := "^"
		if len(s.Parts) > 1 {
			prefix = "^S" + strconv.Itoa(k+1) + "::"
		}
		for _, mn := range []string{"HKY", "GTR"} {
			pi := pars.WithExtension(prefix + mn + "::pi*")
			addDirichletMove(s, mn+"::pi"+strconv.Itoa(k+1), pi,
				"pi_dirichlet_N", s.Keys["pi_dirichlet_N"], moves)
		}
		var rates []int
		for _, first := range []string{"A", "C", "G"} {
			rates = append(rates, pars.WithExtension(prefix+"GTR::"+first+"*")...)
		}
		// the pi parameters also start with GTR:: but never with
		// a bare nucleotide pair
		rates = excludePi(pars, rates)
		addDirichletMove(s, "GTR::rates"+strconv.Itoa(k+1), rates,
			"GTR_dirichlet_N", s.Keys["GTR_dirichlet_N"], moves)
	}

	return moves
}

// excludePi drops frequency parameters from an index list.
func excludePi(pars *optimize.FloatParameters, idx []int) []int {
	var res []int
	for _, i := range idx {
		name := (*pars)[i].Name()
		last := name[strings.LastIndex(name, ":")+1:]
		if !strings.HasPrefix(last, "pi") {
			res = append(res, i)
		}
	}
	return res
}

// getParameterMHMoves builds the scalar MH moves.
func getParameterMHMoves(s *pmodel.State) *mcmc.MoveAll {
	moves := mcmc.NewMoveAll("parameters:MH")

	addMHMove(s, "mu", "mu_scale_sigma", 0.6, true, moves)
	for g := 1; ; g++ {
		pattern := "mu" + strconv.Itoa(g)
		if len(s.Parameters().WithExtension(pattern)) == 0 {
			break
		}
		addMHMove(s, pattern, "mu_scale_sigma", 0.6, true, moves)
	}
	addMHMove(s, "HKY::kappa", "kappa_scale_sigma", 0.3, true, moves)
	addMHMove(s, "GTR::A*", "GTR_scale_sigma", 0.3, true, moves)
	addMHMove(s, "GTR::C*", "GTR_scale_sigma", 0.3, true, moves)
	addMHMove(s, "GTR::G*", "GTR_scale_sigma", 0.3, true, moves)
	moves.Add(4, mcmc.NewSingleMove(sample.ScaleMeansOnly, "scale_means_only", "mean"), true)

	addMHMove(s, "delta", "delta_shift_sigma", 0.35, false, moves)
	addMHMove(s, "epsilon", "epsilon_shift_sigma", 0.30, false, moves)

	return moves
}

// getParameterSliceMoves builds the slice moves.
func getParameterSliceMoves(s *pmodel.State) *mcmc.MoveAll {
	moves := mcmc.NewMoveAll("parameters:slice")

	addSliceMoves(s, "mu", "mu_slice_window", 0.3, mcmc.TransformLog, mcmc.InverseLog, moves)
	addSliceMoves(s, "HKY::kappa", "kappa_slice_window", 0.3, mcmc.TransformLog, mcmc.InverseLog, moves)
	addSliceMoves(s, "GTR::A*", "GTR_slice_window", 0.3, mcmc.TransformLog, mcmc.InverseLog, moves)
	addSliceMoves(s, "GTR::C*", "GTR_slice_window", 0.3, mcmc.TransformLog, mcmc.InverseLog, moves)
	addSliceMoves(s, "GTR::G*", "GTR_slice_window", 0.3, mcmc.TransformLog, mcmc.InverseLog, moves)
	addSliceMoves(s, "delta", "delta_slice_window", 1.0,
		mcmc.TransformEpsilon, mcmc.InverseEpsilon, moves)
	addSliceMoves(s, "epsilon", "epsilon_slice_window", 1.0,
		mcmc.TransformEpsilon, mcmc.InverseEpsilon, moves)

	// frequency simplices move within their sum through the
	// Dirichlet slice sampler
	setIfUndef(s.Keys, "pi_slice_window", 1.0)
	pars := s.Parameters()
	for k := range s.Parts {
		prefix := "^"
		if len(s.Parts) > 1 {
			prefix = "^S" + strconv.Itoa(k+1) + "::"
		}
		for _, mn := range []string{"HKY", "GTR"} {
			pi := pars.WithExtension(prefix + mn + "::pi*")
			if len(pi) < 2 {
				continue
			}
			moves.Add(1, mcmc.NewDirichletSliceMove(
				"dirichlet_slice_"+mn+"::pi"+strconv.Itoa(k+1),
				"parameters", pi, s.Keys["pi_slice_window"]), true)
		}
	}

	return moves
}

// buildSampler assembles the default move tree following the
// weighting scheme of the original sampler.
func buildSampler(s *pmodel.State, hasIModel, starTree bool,
	enable, disable []string) *mcmc.Sampler {

	sampler := mcmc.NewSampler("sampler")

	if hasIModel {
		sampler.Add(1, getAlignmentMoves(s), true)
	}
	sampler.Add(2, getTreeMoves(s, hasIModel, starTree), true)

	// amortize parameter moves over the cost of a tree scan
	w := 5 + math.Log(float64(s.T.NBranches()))
	sampler.Add(w, getParameterMHButNoSliceMoves(s), true)
	if s.Keys["enable_MH_sampling"] > 0.5 {
		sampler.Add(w, getParameterMHMoves(s), true)
	} else {
		sampler.Add(1, getParameterMHMoves(s), true)
	}
	if s.Keys["disable_slice_sampling"] < 0.5 {
		sampler.Add(1, getParameterSliceMoves(s), true)
	}

	for _, d := range disable {
		sampler.DisableName(d)
	}
	for _, e := range enable {
		sampler.EnableName(e)
	}
	return sampler
}
