package tree

import (
	"strings"
	"testing"
)

const tree4 = "((a:0.1,b:0.2):0.05,c:0.3,d:0.4);"
const tree5 = "((a:0.1,b:0.2):0.05,(c:0.3,d:0.4):0.07,e:0.5);"
const rooted4 = "((a:0.1,b:0.2):0.05,(c:0.3,d:0.4):0.05);"

func parse(tst *testing.T, s string) *Tree {
	t, err := ParseTree(strings.NewReader(s))
	if err != nil {
		tst.Fatal("Error parsing tree:", err)
	}
	return t
}

func TestCounts(tst *testing.T) {
	t := parse(tst, tree5)
	if t.NLeaves() != 5 {
		tst.Error("Expected 5 leaves, got", t.NLeaves())
	}
	if t.NNodes() != 8 {
		tst.Error("Expected 8 nodes, got", t.NNodes())
	}
	if t.NBranches() != 7 {
		tst.Error("Expected 7 branches, got", t.NBranches())
	}
}

func TestUnroot(tst *testing.T) {
	t := parse(tst, rooted4)
	if t.NNodes() != 6 || t.NBranches() != 5 {
		tst.Error("rooted input was not unrooted properly")
	}
}

func TestReverse(tst *testing.T) {
	t := parse(tst, tree5)
	for d := 0; d < t.NDirected(); d++ {
		if t.Reverse(t.Reverse(d)) != d {
			tst.Error("reverse is not an involution at", d)
		}
		if t.Source(d) != t.Target(t.Reverse(d)) {
			tst.Error("source/target mismatch at", d)
		}
	}
}

func TestPostorder(tst *testing.T) {
	t := parse(tst, tree5)
	for n := 0; n < t.NNodes(); n++ {
		seen := make(map[int]bool)
		order := t.BranchesTowardNode(n)
		if len(order) != t.NBranches() {
			tst.Fatal("expected one direction per branch")
		}
		for _, d := range order {
			for _, e := range t.BranchesBefore(d) {
				if !seen[e] {
					tst.Error("branch", d, "appears before its child", e)
				}
			}
			seen[d] = true
		}
	}
}

func TestPartition(tst *testing.T) {
	t := parse(tst, tree5)
	for d := 0; d < t.NDirected(); d++ {
		p := t.PartitionBehind(d)
		q := t.PartitionBehind(t.Reverse(d))
		n := 0
		for i := range p {
			if p[i] && q[i] {
				tst.Error("leaf on both sides of branch", d)
			}
			if p[i] || q[i] {
				n++
			}
		}
		if n != t.NLeaves() {
			tst.Error("partition does not cover all leaves at", d)
		}
	}
}

func partitionSet(t *Tree) map[string]bool {
	res := make(map[string]bool)
	for b := 0; b < t.NBranches(); b++ {
		res[partitionKey(t.names, t.Partition(b))] = true
	}
	return res
}

func TestNNIReversible(tst *testing.T) {
	t := parse(tst, tree4)
	before := partitionSet(t)

	var internal = -1
	for b := 0; b < t.NBranches(); b++ {
		if t.IsInternalBranch(b) {
			internal = b
		}
	}
	if internal < 0 {
		tst.Fatal("no internal branch in a 4-leaf tree")
	}

	if err := t.NNI(internal, 0); err != nil {
		tst.Fatal("NNI failed:", err)
	}
	after := partitionSet(t)
	same := true
	for k := range before {
		if !after[k] {
			same = false
		}
	}
	if same {
		tst.Error("NNI did not change the topology")
	}

	if err := t.NNI(internal, 0); err != nil {
		tst.Fatal("second NNI failed:", err)
	}
	back := partitionSet(t)
	for k := range before {
		if !back[k] {
			tst.Error("double NNI did not restore the topology")
		}
	}
}

func TestSPR(tst *testing.T) {
	t := parse(tst, tree5)
	// prune the subtree containing leaf a: direction from a's
	// side into the rest with an internal attachment node
	d := t.LeafBranch(0)
	if t.IsLeafNode(t.Target(d)) {
		tst.Fatal("leaf branch target should be internal")
	}
	// regraft onto the leaf branch of e (node 4)
	graft := t.Undirected(t.LeafBranch(4))
	nb := t.NBranches()
	if err := t.SPR(d, graft, 0.5); err != nil {
		tst.Fatal("SPR failed:", err)
	}
	if t.NBranches() != nb {
		tst.Error("SPR changed the branch count")
	}
	// every node keeps a legal degree
	for n := 0; n < t.NNodes(); n++ {
		deg := len(t.OutBranches(n))
		if t.IsLeafNode(n) && deg != 1 {
			tst.Error("leaf", n, "has degree", deg)
		}
		if !t.IsLeafNode(n) && deg != 3 {
			tst.Error("internal node", n, "has degree", deg)
		}
	}
	// a and e are now adjacent to the same internal node
	if t.Target(t.LeafBranch(0)) != t.Target(t.LeafBranch(4)) {
		tst.Error("SPR did not attach a next to e")
	}
}

func TestExtends(tst *testing.T) {
	t := parse(tst, tree5)
	tc := parse(tst, "((a:1,b:1):1,c:1,(d:1,e:1):1);")
	if Extends(t, tc) {
		tst.Error("tree should not satisfy the d-e constraint")
	}
	// a star constraint (no internal bipartitions) is always
	// satisfied, even as a polytomy
	tcOK := parse(tst, "(a:1,b:1,c:1,d:1,e:1);")
	if !Extends(t, tcOK) {
		tst.Error("tree should extend the star constraint")
	}
	// the tree satisfies its own bipartitions
	if !Extends(t, t) {
		tst.Error("tree should extend itself")
	}
}

func TestStringRoundTrip(tst *testing.T) {
	t := parse(tst, tree5)
	t2 := parse(tst, t.String())
	if t2.NLeaves() != t.NLeaves() || t2.NBranches() != t.NBranches() {
		tst.Error("newick round trip changed the tree size")
	}
	p1 := partitionSet(t)
	p2 := partitionSet(t2)
	for k := range p1 {
		if !p2[k] {
			tst.Error("newick round trip changed the topology")
		}
	}
}

func TestCopy(tst *testing.T) {
	t := parse(tst, tree5)
	c := t.Copy()
	c.SetLength(0, 99)
	if t.Length(0) == 99 {
		tst.Error("copy shares branch lengths with the original")
	}
	if err := c.NNI(c.NLeaves(), 0); err == nil {
		// c's first internal branch; the original must be intact
		p1 := partitionSet(t)
		p2 := partitionSet(c)
		same := true
		for k := range p1 {
			if !p2[k] {
				same = false
			}
		}
		if same {
			tst.Error("NNI on the copy did not change its topology")
		}
	}
}
