package sample

import (
	"math"
	"math/rand"
	"strings"
	"testing"

	"bitbucket.org/Davydov/treeali/align"
	"bitbucket.org/Davydov/treeali/bio"
	"bitbucket.org/Davydov/treeali/imodel"
	"bitbucket.org/Davydov/treeali/mcmc"
	"bitbucket.org/Davydov/treeali/pmodel"
	"bitbucket.org/Davydov/treeali/smodel"
	"bitbucket.org/Davydov/treeali/tree"
)

func mkState(tst *testing.T, treeStr string, indels bool, rows ...string) *pmodel.State {
	t, err := tree.ParseTree(strings.NewReader(treeStr))
	if err != nil {
		tst.Fatal(err)
	}
	seqs := make(bio.Sequences, len(rows))
	for i, r := range rows {
		seqs[i] = bio.Sequence{Name: string(rune('a' + i)), Sequence: r}
	}
	a, err := align.New(bio.DNA(), seqs)
	if err != nil {
		tst.Fatal(err)
	}

	var ims []*imodel.Model
	if indels {
		ims = []*imodel.Model{imodel.New()}
	}
	s, err := pmodel.New(t, []*align.Alignment{a},
		[]smodel.Model{smodel.NewJC(bio.DNA())}, ims,
		pmodel.Config{Traditional: !indels})
	if err != nil {
		tst.Fatal(err)
	}
	return s
}

func checkState(tst *testing.T, s *pmodel.State) {
	if err := s.Check(); err != nil {
		tst.Error("invariant violation:", err)
	}
	for _, p := range s.Parts {
		p.Ix.RecomputeAllBranches(p.A, s.T)
		if err := p.Ix.CheckFootprint(p.A, s.T); err != nil {
			tst.Error("footprint violation:", err)
		}
	}
}

func TestNNIReversibility(tst *testing.T) {
	rand.Seed(1)
	s := mkState(tst, "((a:0.1,b:0.2):0.1,c:0.3,d:0.4);", false,
		"ACGTACGT", "AGGTACGA", "ACGTACGA", "ACTTACGT")

	l0 := s.Likelihood()
	t0 := s.T.Copy()

	var internal = -1
	for b := 0; b < s.T.NBranches(); b++ {
		if s.T.IsInternalBranch(b) {
			internal = b
		}
	}

	if err := s.T.NNI(internal, 0); err != nil {
		tst.Fatal(err)
	}
	s.RepairAlignments()
	s.InvalidateAllCaches()

	if err := s.T.NNI(internal, 0); err != nil {
		tst.Fatal(err)
	}
	s.RepairAlignments()
	s.InvalidateAllCaches()

	if !tree.Extends(s.T, t0) || !tree.Extends(t0, s.T) {
		tst.Error("double NNI changed the topology")
	}
	l1 := s.Likelihood()
	if math.Abs(l0-l1) > 1e-12 {
		tst.Error("conditional likelihoods did not revalidate:", l0, l1)
	}
	checkState(tst, s)
}

func TestTraditionalChainPreservesAlignment(tst *testing.T) {
	rand.Seed(2)
	s := mkState(tst, "(a:0.1,b:0.1,c:0.1);", false, "AAA", "AAA", "AAA")
	a0 := s.Parts[0].A.Copy()

	stats := make(mcmc.Stats)
	for i := 0; i < 200; i++ {
		for b := 0; b < s.T.NBranches(); b++ {
			ChangeBranchLengthMove(s, stats, b)
		}
		WalkTreeSampleBranchLengths(s, stats)
	}
	if d := align.PairsDistance(a0, s.Parts[0].A); d != 0 {
		tst.Error("branch-length moves changed the alignment, distance", d)
	}
	checkState(tst, s)
	// equal sequences: the branch lengths should stay small
	for b := 0; b < s.T.NBranches(); b++ {
		if s.T.Length(b) > 2 {
			tst.Error("branch", b, "drifted to", s.T.Length(b))
		}
	}
}

func TestAlignmentMoveInvariants(tst *testing.T) {
	rand.Seed(3)
	s := mkState(tst, "((a:0.1,b:0.2):0.1,c:0.3,d:0.4);", true,
		"ACGTAA", "AGGTA-", "ACG-AA", "AC-TAA")

	stats := make(mcmc.Stats)
	for i := 0; i < 30; i++ {
		for b := 0; b < s.T.NBranches(); b++ {
			SampleAlignmentsOne(s, stats, b)
		}
		for n := s.T.NLeaves(); n < s.T.NNodes(); n++ {
			SampleNodeMove(s, stats, n)
		}
		for b := 0; b < s.T.NBranches(); b++ {
			SampleTriOne(s, stats, b)
		}
		checkState(tst, s)
	}
	if stats["sample_alignments"] == nil {
		tst.Error("no alignment move statistics recorded")
	}
}

func TestTopologyMoveInvariants(tst *testing.T) {
	rand.Seed(4)
	s := mkState(tst, "((a:0.1,b:0.2):0.1,(c:0.3,d:0.4):0.1,e:0.2);", true,
		"ACGTAA", "AGGTA-", "ACG-AA", "AC-TAA", "ACGTA-")

	stats := make(mcmc.Stats)
	for i := 0; i < 10; i++ {
		for b := s.T.NLeaves(); b < s.T.NBranches(); b++ {
			ThreeWayTopologySample(s, stats, b)
			TwoWayTopologySample(s, stats, b)
		}
		SampleSPRFlat(s, stats)
		checkState(tst, s)
	}
}

func TestWalkTreeAlignments(tst *testing.T) {
	rand.Seed(5)
	s := mkState(tst, "((a:0.1,b:0.2):0.1,c:0.3,d:0.4);", true,
		"ACGTAA", "AGGTA-", "ACG-AA", "AC-TAA")
	stats := make(mcmc.Stats)
	for i := 0; i < 10; i++ {
		WalkTreeSampleAlignments(s, stats)
		checkState(tst, s)
	}
}

func TestHeatingZeroBeta(tst *testing.T) {
	rand.Seed(6)
	s := mkState(tst, "(a:0.1,b:0.1,c:0.1);", false, "ACGT", "AGGT", "ACGA")
	s.SetBeta(0)
	// with beta = 0 the heated probability equals the prior
	if s.HeatedLogProb() != s.LogPrior() {
		tst.Error("beta=0 heated probability should be the prior")
	}
	s.SetBeta(1)
	want := s.LogPrior() + s.Likelihood()
	if math.Abs(s.HeatedLogProb()-want) > 1e-12 {
		tst.Error("beta=1 heated probability should be the posterior")
	}
}

func TestStateCopyIndependent(tst *testing.T) {
	s := mkState(tst, "(a:0.1,b:0.1,c:0.1);", true, "ACGT", "AGGT", "ACGA")
	l0 := s.HeatedLogProb()
	c := s.Copy()
	c.SetBranchLength(0, 3)
	c.Parts[0].A.SetCell(0, 0, bio.Gap)
	if s.T.Length(0) == 3 {
		tst.Error("copy shares the tree")
	}
	if s.Parts[0].A.Cell(0, 0) == bio.Gap {
		tst.Error("copy shares the alignment")
	}
	if math.Abs(s.HeatedLogProb()-l0) > 1e-12 {
		tst.Error("mutating the copy changed the original posterior")
	}
}
