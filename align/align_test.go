package align

import (
	"math/rand"
	"strings"
	"testing"

	"bitbucket.org/Davydov/treeali/bio"
	"bitbucket.org/Davydov/treeali/tree"
)

func mkAlign(tst *testing.T, rows ...string) *Alignment {
	seqs := make(bio.Sequences, len(rows))
	for i, r := range rows {
		seqs[i] = bio.Sequence{Name: string(rune('a' + i)), Sequence: r}
	}
	a, err := New(bio.DNA(), seqs)
	if err != nil {
		tst.Fatal("Error building alignment:", err)
	}
	return a
}

func mkTree(tst *testing.T, s string) *tree.Tree {
	t, err := tree.ParseTree(strings.NewReader(s))
	if err != nil {
		tst.Fatal("Error parsing tree:", err)
	}
	return t
}

func TestSeqLength(tst *testing.T) {
	a := mkAlign(tst, "AC-T", "A--T", "ACGT")
	if a.SeqLength(0) != 3 || a.SeqLength(1) != 2 || a.SeqLength(2) != 4 {
		tst.Error("wrong sequence lengths")
	}
}

func TestChecks(tst *testing.T) {
	a := mkAlign(tst, "AC-T", "A--T", "ACGT")
	if err := CheckLettersOK(a); err != nil {
		tst.Error("letters should be OK:", err)
	}
	if err := CheckLeafSequences(a, 3); err != nil {
		tst.Error("leaf sequences should be preserved:", err)
	}
	if !a.NamesAreUnique() {
		tst.Error("names should be unique")
	}
}

func TestPairsDistanceIdentity(tst *testing.T) {
	a := mkAlign(tst, "AC-T", "A--T", "ACGT")
	if d := PairsDistance(a, a); d != 0 {
		tst.Error("Expected zero self distance, got", d)
	}
}

func TestPairsDistanceSymmetry(tst *testing.T) {
	a1 := mkAlign(tst, "AC-T", "AG-T", "A-GT")
	a2 := mkAlign(tst, "ACT-", "AGT-", "A-GT")
	d12 := PairsDistance(a1, a2)
	d21 := PairsDistance(a2, a1)
	if d12 != d21 {
		tst.Error("pairs distance is not symmetric:", d12, d21)
	}
	if SplitsDistance(a1, a2) != SplitsDistance(a2, a1) {
		tst.Error("splits distance is not symmetric")
	}
	if SplitsDistance2(a1, a2) != SplitsDistance2(a2, a1) {
		tst.Error("splits distance 2 is not symmetric")
	}
}

func TestShuffleRoundTrip(tst *testing.T) {
	a1 := mkAlign(tst, "ACGT-A", "AC--TA", "-CGTTA")
	perm := rand.Perm(a1.NCols())
	a2 := a1.Shuffle(perm)
	inv := make([]int, len(perm))
	for i, p := range perm {
		inv[p] = i
	}
	a3 := a2.Shuffle(inv)
	if !AConstant(a1, a3, nil) {
		tst.Error("shuffle round trip changed homologies")
	}
}

func TestMinimallyConnect(tst *testing.T) {
	t := mkTree(tst, "((a:0.1,b:0.1):0.1,(c:0.1,d:0.1):0.1,e:0.1);")
	a := mkAlign(tst, "ACGT", "AC-T", "A-GT", "AC--", "---T")
	a.AddInternal(t.NInternal())
	MinimallyConnectLeafCharacters(a, t)
	if err := CheckInternalNodesConnected(a, t); err != nil {
		tst.Error("columns should be connected:", err)
	}
	if err := CheckLeafSequences(a, t.NLeaves()); err != nil {
		tst.Error("leaf sequences changed:", err)
	}
	// internal rows hold only gap or not-gap
	for c := 0; c < a.NCols(); c++ {
		for i := t.NLeaves(); i < a.NRows(); i++ {
			v := a.Cell(c, i)
			if v != bio.Gap && v != bio.NotGap {
				tst.Error("internal cell with code", v)
			}
		}
	}
}

func TestConnectLeafIdempotent(tst *testing.T) {
	t := mkTree(tst, "((a:0.1,b:0.1):0.1,(c:0.1,d:0.1):0.1,e:0.1);")
	a := mkAlign(tst, "ACGT", "AC-T", "A-GT", "AC--", "---T")
	a.AddInternal(t.NInternal())
	ConnectLeafCharacters(a, t)
	snapshot := make([][]int, a.NCols())
	for c := range snapshot {
		snapshot[c] = append([]int(nil), a.Column(c)...)
	}
	ConnectLeafCharacters(a, t)
	for c := range snapshot {
		for i, v := range snapshot[c] {
			if a.Cell(c, i) != v {
				tst.Error("second application changed column", c)
			}
		}
	}
}

func TestChopInternal(tst *testing.T) {
	t := mkTree(tst, "((a:0.1,b:0.1):0.1,(c:0.1,d:0.1):0.1,e:0.1);")
	a := mkAlign(tst, "ACGT", "AC-T", "A-GT", "AC--", "---T")
	a.AddInternal(t.NInternal())
	MinimallyConnectLeafCharacters(a, t)
	rows := a.NRows()
	a.ChopInternal(true)
	if a.NRows() != t.NLeaves() {
		tst.Error("chop left", a.NRows(), "rows of", rows)
	}
	if err := CheckLeafSequences(a, t.NLeaves()); err != nil {
		tst.Error("chop changed the leaf sequences:", err)
	}
}

func TestConnectAllCharacters(tst *testing.T) {
	t := mkTree(tst, "((a:0.1,b:0.1):0.1,(c:0.1,d:0.1):0.1,e:0.1);")
	present := make([]bool, t.NNodes())
	present[0] = true // a
	present[2] = true // c
	ConnectAllCharacters(t, present)
	// the path between a and c runs through all three internal
	// nodes
	count := 0
	for n := t.NLeaves(); n < t.NNodes(); n++ {
		if present[n] {
			count++
		}
	}
	if count != 3 {
		tst.Error("expected the three internal nodes on the a-c path, got", count)
	}
	// a present set that is already connected stays unchanged
	ConnectAllCharacters(t, present)
	count2 := 0
	for _, p := range present {
		if p {
			count2++
		}
	}
	if count2 != 5 {
		tst.Error("re-connection changed the present set")
	}
}
