package suba

import (
	"strings"
	"testing"

	"bitbucket.org/Davydov/treeali/align"
	"bitbucket.org/Davydov/treeali/bio"
	"bitbucket.org/Davydov/treeali/tree"
)

func mkState(tst *testing.T, rows ...string) (*align.Alignment, *tree.Tree) {
	t, err := tree.ParseTree(strings.NewReader(
		"((a:0.1,b:0.1):0.1,(c:0.1,d:0.1):0.1,e:0.1);"))
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
	return a, t
}

func TestRecomputeAll(tst *testing.T) {
	a, t := mkState(tst, "ACGT", "AC-T", "A-GT", "AC--", "---T")
	ix := New(false, t.NDirected())
	ix.RecomputeAllBranches(a, t)
	for b := 0; b < t.NDirected(); b++ {
		if !ix.BranchIndexValid(b) {
			tst.Error("branch", b, "invalid after recompute")
		}
		if ix.BranchIndexLength(b) < 0 {
			tst.Error("negative length at branch", b)
		}
	}
	if err := ix.CheckFootprint(a, t); err != nil {
		tst.Error("footprint check failed:", err)
	}
}

func TestLeafBranchNames(tst *testing.T) {
	a, t := mkState(tst, "ACGT", "AC-T", "A-GT", "AC--", "---T")
	ix := New(false, t.NDirected())
	ix.RecomputeAllBranches(a, t)
	// leaf branch of a: four letters, named 0..3 in column order
	d := t.LeafBranch(0)
	if ix.BranchIndexLength(d) != 4 {
		tst.Error("leaf a should have 4 columns")
	}
	want := 0
	for c := 0; c < a.NCols(); c++ {
		if n := ix.ColumnName(d, c); n >= 0 {
			if n != want {
				tst.Error("leaf names out of order")
			}
			want++
		}
	}
}

// TestInternalChangeInvariance verifies that the leaf-projected index
// assigns the same names after a change that only touches internal
// rows.
func TestInternalChangeInvariance(tst *testing.T) {
	a, t := mkState(tst, "ACGT", "AC-T", "A-GT", "AC--", "---T")
	ix := New(false, t.NDirected())
	ix.RecomputeAllBranches(a, t)

	before := make([][]int, t.NDirected())
	for b := range before {
		for c := 0; c < a.NCols(); c++ {
			before[b] = append(before[b], ix.ColumnName(b, c))
		}
	}

	// extend the presence of an internal node into a column where
	// it is connected to the present set
	changed := false
	for c := 0; c < a.NCols() && !changed; c++ {
		for n := t.NLeaves(); n < t.NNodes(); n++ {
			if bio.IsFeature(a.Cell(c, n)) {
				continue
			}
			adjacent := false
			for _, u := range t.Neighbors(n) {
				if bio.IsFeature(a.Cell(c, u)) {
					adjacent = true
				}
			}
			if adjacent {
				a.SetCell(c, n, bio.NotGap)
				changed = true
				break
			}
		}
	}
	if !changed {
		tst.Skip("no extensible internal cell in this alignment")
	}

	fresh := New(false, t.NDirected())
	fresh.RecomputeAllBranches(a, t)
	for b := 0; b < t.NDirected(); b++ {
		for c := 0; c < a.NCols(); c++ {
			if fresh.ColumnName(b, c) != before[b][c] {
				tst.Error("name changed at branch", b, "column", c)
			}
		}
	}
}

// TestColumnSwapInvariance swaps two adjacent columns with disjoint
// row sets; no pairwise leaf projection changes, so every name must
// persist.
func TestColumnSwapInvariance(tst *testing.T) {
	a, t := mkState(tst, "A-CT", "A-CT", "A-CT", "-G--", "-G--")
	ix := New(false, t.NDirected())
	ix.RecomputeAllBranches(a, t)

	// find adjacent columns with disjoint leaf sets
	c1, c2 := -1, -1
	for c := 0; c+1 < a.NCols(); c++ {
		disjoint := true
		for i := 0; i < t.NLeaves(); i++ {
			if bio.IsFeature(a.Cell(c, i)) && bio.IsFeature(a.Cell(c+1, i)) {
				disjoint = false
			}
		}
		if disjoint {
			c1, c2 = c, c+1
			break
		}
	}
	if c1 < 0 {
		tst.Skip("no swappable columns")
	}

	names := map[int]map[int]int{}
	for b := 0; b < t.NDirected(); b++ {
		names[b] = map[int]int{}
		for c := 0; c < a.NCols(); c++ {
			names[b][c] = ix.ColumnName(b, c)
		}
	}

	perm := make([]int, a.NCols())
	for i := range perm {
		perm[i] = i
	}
	perm[c1], perm[c2] = c2, c1
	swapped := a.Shuffle(perm)
	// internal rows must stay consistent in the swapped alignment
	fresh := New(false, t.NDirected())
	fresh.RecomputeAllBranches(swapped, t)

	for b := 0; b < t.NDirected(); b++ {
		for c := 0; c < a.NCols(); c++ {
			want := names[b][perm[c]]
			if fresh.ColumnName(b, c) != want {
				tst.Error("swap changed name at branch", b, "column", c)
			}
		}
	}
}

func TestInvalidation(tst *testing.T) {
	a, t := mkState(tst, "ACGT", "AC-T", "A-GT", "AC--", "---T")
	ix := New(false, t.NDirected())
	ix.RecomputeAllBranches(a, t)

	d := t.LeafBranch(0)
	ix.InvalidateDirectedBranch(t, d)
	if ix.BranchIndexValid(d) {
		tst.Error("branch should be invalid")
	}
	// everything whose behind-subtree contains d is invalid too
	for _, e := range t.BranchesFromInclusive(d) {
		if ix.BranchIndexValid(e) {
			tst.Error("dependent branch", e, "still valid")
		}
	}
	// the reverse direction is unaffected
	if !ix.BranchIndexValid(t.Reverse(d)) {
		tst.Error("reverse branch should stay valid")
	}
	ix.UpdateBranch(a, t, d)
	if !ix.BranchIndexValid(d) {
		tst.Error("lazy update failed")
	}
}

func TestInvalidateNodeLocality(tst *testing.T) {
	a, t := mkState(tst, "ACGT", "AC-T", "A-GT", "AC--", "---T")
	ix := New(false, t.NDirected())
	ix.RecomputeAllBranches(a, t)

	n := t.NLeaves() // first internal node
	ix.InvalidateNode(t, n)
	for b := 0; b < t.NDirected(); b++ {
		contains := false
		for _, x := range t.NodesBehind(b) {
			if x == n {
				contains = true
			}
		}
		if contains && ix.BranchIndexValid(b) {
			tst.Error("branch", b, "contains the node but stayed valid")
		}
		if !contains && !ix.BranchIndexValid(b) {
			tst.Error("branch", b, "does not contain the node but was invalidated")
		}
	}
}

func TestTables(tst *testing.T) {
	a, t := mkState(tst, "ACGT", "AC-T", "A-GT", "AC--", "---T")
	ix := New(false, t.NDirected())
	ix.RecomputeAllBranches(a, t)

	n := t.NNodes() - 1
	tb := ix.GetSubAIndexNode(n, a, t)
	if tb.NCols() == 0 {
		tst.Error("node table should not be empty")
	}
	if NNonNullEntries(tb) == 0 {
		tst.Error("node table should have entries")
	}

	branches := tb.Branches
	van := ix.GetSubAIndexVanishing(branches, a, t)
	for _, row := range van.Names {
		if row[len(row)-1] >= 0 {
			tst.Error("vanishing table contains a paired column")
		}
	}
}

func TestInternalVariant(tst *testing.T) {
	a, t := mkState(tst, "ACGT", "AC-T", "A-GT", "AC--", "---T")
	leaf := New(false, t.NDirected())
	leaf.RecomputeAllBranches(a, t)
	internal := New(true, t.NDirected())
	internal.RecomputeAllBranches(a, t)
	for b := 0; b < t.NDirected(); b++ {
		if internal.BranchIndexLength(b) < leaf.BranchIndexLength(b) {
			tst.Error("internal-aware index shorter than leaf index at", b)
		}
	}
}
