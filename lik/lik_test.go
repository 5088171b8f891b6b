package lik

import (
	"math"
	"strings"
	"testing"

	"bitbucket.org/Davydov/treeali/align"
	"bitbucket.org/Davydov/treeali/bio"
	"bitbucket.org/Davydov/treeali/smodel"
	"bitbucket.org/Davydov/treeali/suba"
	"bitbucket.org/Davydov/treeali/tree"
)

const smallDiff = 1e-9

func mkState(tst *testing.T, treeStr string, rows ...string) (*align.Alignment, *tree.Tree, *suba.Index, *MatCache, *CLCache) {
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
	a.AddInternal(t.NInternal())
	align.MinimallyConnectLeafCharacters(a, t)

	sm := smodel.NewJC(bio.DNA())
	mc := NewMatCache(sm, []float64{1}, t.NBranches())
	ix := suba.New(false, t.NDirected())
	ix.RecomputeAllBranches(a, t)
	cl := NewCLCache(t.NDirected(), 1, sm.NStates())
	return a, t, ix, mc, cl
}

// bruteForce computes the likelihood of a 3-leaf column by summing
// over the internal letter.
func bruteForce(t *tree.Tree, mc *MatCache, letters []int) float64 {
	n := mc.Model().NStates()
	freq := mc.Model().Frequencies()
	total := 0.0
	for y := 0; y < n; y++ {
		p := freq[y]
		for leaf, x := range letters {
			if x < 0 {
				continue
			}
			pm := mc.P(t, leaf, 0)
			p *= pm.Data[y*pm.Stride+x]
		}
		total += p
	}
	return total
}

func TestThreeLeafLikelihood(tst *testing.T) {
	a, t, ix, mc, cl := mkState(tst, "(a:0.1,b:0.2,c:0.3);", "ACGT", "AGGT", "ACGA")
	lnL := Likelihood(a, t, ix, mc, cl)

	want := 0.0
	for c := 0; c < a.NCols(); c++ {
		letters := []int{a.Cell(c, 0), a.Cell(c, 1), a.Cell(c, 2)}
		want += math.Log(bruteForce(t, mc, letters))
	}
	if math.Abs(lnL-want) > smallDiff {
		tst.Error("Expected", want, ", got", lnL)
	}
}

func TestGapColumn(tst *testing.T) {
	a, t, ix, mc, cl := mkState(tst, "(a:0.1,b:0.2,c:0.3);", "AC-T", "AGGT", "AC-A")
	lnL := Likelihood(a, t, ix, mc, cl)

	want := 0.0
	for c := 0; c < a.NCols(); c++ {
		letters := make([]int, 3)
		for i := 0; i < 3; i++ {
			if bio.IsFeature(a.Cell(c, i)) {
				letters[i] = a.Cell(c, i)
			} else {
				letters[i] = -1
			}
		}
		want += math.Log(bruteForce(t, mc, letters))
	}
	if math.Abs(lnL-want) > smallDiff {
		tst.Error("Expected", want, ", got", lnL)
	}
}

func TestCacheReuse(tst *testing.T) {
	a, t, ix, mc, cl := mkState(tst, "(a:0.1,b:0.2,c:0.3);", "ACGT", "AGGT", "ACGA")
	l1 := Likelihood(a, t, ix, mc, cl)
	// a second evaluation must hit the caches and agree exactly
	l2 := Likelihood(a, t, ix, mc, cl)
	if l1 != l2 {
		tst.Error("cached likelihood differs:", l1, l2)
	}
}

func TestBranchLengthInvalidation(tst *testing.T) {
	a, t, ix, mc, cl := mkState(tst, "(a:0.1,b:0.2,c:0.3);", "ACGT", "AGGT", "ACGA")
	l1 := Likelihood(a, t, ix, mc, cl)

	mc.SetLength(t, 0, 0.5)
	cl.InvalidateDirectedBranch(t, 0)
	cl.InvalidateDirectedBranch(t, t.Reverse(0))
	l2 := Likelihood(a, t, ix, mc, cl)
	if l1 == l2 {
		tst.Error("likelihood did not react to a length change")
	}

	mc.SetLength(t, 0, 0.1)
	cl.InvalidateDirectedBranch(t, 0)
	cl.InvalidateDirectedBranch(t, t.Reverse(0))
	l3 := Likelihood(a, t, ix, mc, cl)
	if math.Abs(l1-l3) > 1e-12 {
		tst.Error("likelihood did not return to the original value:", l1, l3)
	}
}

func TestFiveLeafConsistency(tst *testing.T) {
	// the likelihood must not depend on cache state: recomputing
	// from scratch gives the same value
	a, t, ix, mc, cl := mkState(tst, "((a:0.1,b:0.1):0.1,(c:0.1,d:0.1):0.1,e:0.1);",
		"ACGT", "AC-T", "A-GT", "AC--", "---T")
	l1 := Likelihood(a, t, ix, mc, cl)

	ix2 := suba.New(false, t.NDirected())
	ix2.RecomputeAllBranches(a, t)
	cl2 := NewCLCache(t.NDirected(), 1, 4)
	l2 := Likelihood(a, t, ix2, mc, cl2)
	if math.Abs(l1-l2) > 1e-12 {
		tst.Error("likelihood depends on cache state:", l1, l2)
	}
}
