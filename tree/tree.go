// Package tree provides an unrooted phylogenetic tree with stable
// directed-branch names and topology mutations (NNI, SPR).
package tree

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// MinBranchLength is the floor applied to degenerate branch lengths on
// load.
const MinBranchLength = 1e-6

// Tree is an unrooted labelled binary tree.
//
// Nodes 0..NLeaves()-1 are leaves, the rest are internal. Undirected
// branches are numbered 0..NBranches()-1 with leaf branches first, so
// leaf i is an endpoint of branch i. Directed branches are numbered
// 0..2*NBranches()-1; Reverse(d) returns the opposite direction.
type Tree struct {
	nLeaves int
	names   []string
	// source node of every directed branch
	source []int
	// directed branches leaving each node
	out [][]int
	// undirected branch lengths
	length []float64
}

// NLeaves returns the number of leaves.
func (t *Tree) NLeaves() int { return t.nLeaves }

// NNodes returns the number of nodes (2*NLeaves-2 when fully resolved).
func (t *Tree) NNodes() int { return len(t.out) }

// NInternal returns the number of internal nodes.
func (t *Tree) NInternal() int { return t.NNodes() - t.nLeaves }

// IsResolved reports whether the tree is fully resolved (every
// internal node has degree 3).
func (t *Tree) IsResolved() bool {
	return t.nLeaves == 2 || t.NNodes() == 2*t.nLeaves-2
}

// NBranches returns the number of undirected branches.
func (t *Tree) NBranches() int { return len(t.length) }

// NDirected returns the number of directed branches.
func (t *Tree) NDirected() int { return 2 * len(t.length) }

// Undirected maps a directed branch to its undirected name.
func (t *Tree) Undirected(d int) int {
	if d < len(t.length) {
		return d
	}
	return d - len(t.length)
}

// Reverse returns the oppositely directed branch name.
func (t *Tree) Reverse(d int) int {
	if d < len(t.length) {
		return d + len(t.length)
	}
	return d - len(t.length)
}

// Source returns the source node of a directed branch.
func (t *Tree) Source(d int) int { return t.source[d] }

// Target returns the target node of a directed branch.
func (t *Tree) Target(d int) int { return t.source[t.Reverse(d)] }

// Length returns the length of a branch (directed names accepted).
func (t *Tree) Length(b int) float64 { return t.length[t.Undirected(b)] }

// SetLength changes the length of a branch (directed names accepted).
func (t *Tree) SetLength(b int, l float64) { t.length[t.Undirected(b)] = l }

// LeafName returns the label of a leaf node.
func (t *Tree) LeafName(n int) string { return t.names[n] }

// LeafNames returns all leaf labels in node order.
func (t *Tree) LeafNames() []string {
	return append([]string(nil), t.names...)
}

// IsLeafNode tests if n is a leaf.
func (t *Tree) IsLeafNode(n int) bool { return n < t.nLeaves }

// IsLeafBranch tests if the branch is adjacent to a leaf.
func (t *Tree) IsLeafBranch(b int) bool { return t.Undirected(b) < t.nLeaves }

// IsInternalBranch tests if both endpoints of the branch are internal.
func (t *Tree) IsInternalBranch(b int) bool { return !t.IsLeafBranch(b) }

// LeafBranch returns the directed branch with leaf n as source.
func (t *Tree) LeafBranch(n int) int { return t.out[n][0] }

// OutBranches returns the directed branches with source n.
func (t *Tree) OutBranches(n int) []int {
	return append([]int(nil), t.out[n]...)
}

// Neighbors returns the nodes adjacent to n.
func (t *Tree) Neighbors(n int) []int {
	res := make([]int, len(t.out[n]))
	for i, d := range t.out[n] {
		res[i] = t.Target(d)
	}
	return res
}

// BranchesAfter returns the directed children of d: branches leaving
// the target of d, excluding the reverse of d.
func (t *Tree) BranchesAfter(d int) []int {
	rev := t.Reverse(d)
	res := make([]int, 0, 2)
	for _, e := range t.out[t.Target(d)] {
		if e != rev {
			res = append(res, e)
		}
	}
	return res
}

// BranchesBefore returns the directed branches pointing into the
// source of d, excluding the reverse of d.
func (t *Tree) BranchesBefore(d int) []int {
	res := make([]int, 0, 2)
	for _, e := range t.out[t.Source(d)] {
		if e != d {
			res = append(res, t.Reverse(e))
		}
	}
	return res
}

// BranchesTowardNode returns every directed branch pointing toward n,
// depth-first, each branch after its children.
func (t *Tree) BranchesTowardNode(n int) []int {
	res := make([]int, 0, t.NBranches())
	var visit func(d int)
	visit = func(d int) {
		for _, e := range t.BranchesBefore(d) {
			visit(e)
		}
		res = append(res, d)
	}
	for _, e := range t.out[n] {
		visit(t.Reverse(e))
	}
	return res
}

// BranchesFromInclusive returns d and every directed branch reachable
// from d by repeatedly taking BranchesAfter. These are exactly the
// branches whose behind-subtree contains d.
func (t *Tree) BranchesFromInclusive(d int) []int {
	res := make([]int, 0, t.NBranches())
	var visit func(d int)
	visit = func(d int) {
		res = append(res, d)
		for _, e := range t.BranchesAfter(d) {
			visit(e)
		}
	}
	visit(d)
	return res
}

// LeafSet is a bitmask over leaf nodes.
type LeafSet []bool

// Count returns the number of leaves in the set.
func (s LeafSet) Count() (n int) {
	for _, x := range s {
		if x {
			n++
		}
	}
	return
}

// Contains tests whether every leaf of o is in s.
func (s LeafSet) Contains(o LeafSet) bool {
	for i, x := range o {
		if x && !s[i] {
			return false
		}
	}
	return true
}

// Disjoint tests whether s and o share no leaf.
func (s LeafSet) Disjoint(o LeafSet) bool {
	for i, x := range o {
		if x && s[i] {
			return false
		}
	}
	return true
}

// NodesBehind returns every node on the source side of directed
// branch d.
func (t *Tree) NodesBehind(d int) []int {
	var res []int
	var visit func(d int)
	visit = func(d int) {
		res = append(res, t.Source(d))
		for _, e := range t.BranchesBefore(d) {
			visit(e)
		}
	}
	visit(d)
	return res
}

// PartitionBehind returns the set of leaves on the source side of
// directed branch d.
func (t *Tree) PartitionBehind(d int) LeafSet {
	ls := make(LeafSet, t.nLeaves)
	var visit func(d int)
	visit = func(d int) {
		if s := t.Source(d); t.IsLeafNode(s) {
			ls[s] = true
		}
		for _, e := range t.BranchesBefore(d) {
			visit(e)
		}
	}
	visit(d)
	return ls
}

// Partition returns the leaf bitmask on the source side of the
// low-numbered direction of undirected branch b.
func (t *Tree) Partition(b int) LeafSet {
	return t.PartitionBehind(t.Undirected(b))
}

// Copy creates an independent copy of the tree.
func (t *Tree) Copy() *Tree {
	nt := &Tree{
		nLeaves: t.nLeaves,
		names:   append([]string(nil), t.names...),
		source:  append([]int(nil), t.source...),
		out:     make([][]int, len(t.out)),
		length:  append([]float64(nil), t.length...),
	}
	for i, o := range t.out {
		nt.out[i] = append([]int(nil), o...)
	}
	return nt
}

// reconnect moves the source endpoint of directed branch d to node n.
func (t *Tree) reconnect(d, n int) {
	old := t.source[d]
	for i, e := range t.out[old] {
		if e == d {
			t.out[old] = append(t.out[old][:i], t.out[old][i+1:]...)
			break
		}
	}
	t.out[n] = append(t.out[n], d)
	t.source[d] = n
}

// NNI performs a nearest-neighbour interchange across the internal
// undirected branch b. The subtree hanging off the first neighbour
// branch at the source is exchanged with the which-th (0 or 1)
// neighbour subtree at the target.
func (t *Tree) NNI(b, which int) error {
	b = t.Undirected(b)
	if t.IsLeafBranch(b) {
		return errors.New("NNI requires an internal branch")
	}
	s := t.Source(b)
	u := t.Target(b)

	var x, y int
	found := 0
	for _, e := range t.out[s] {
		if e != b {
			x = e
			found++
			break
		}
	}
	i := 0
	rev := t.Reverse(b)
	for _, e := range t.out[u] {
		if e == rev {
			continue
		}
		if i == which {
			y = e
			found++
			break
		}
		i++
	}
	if found != 2 {
		return fmt.Errorf("degenerate topology around branch %d", b)
	}

	t.reconnect(x, u)
	t.reconnect(y, s)
	return nil
}

// SPR prunes the subtree behind directed branch d and regrafts it onto
// undirected branch graft, splitting it at fraction frac of its
// length. The attachment node (the target of d) moves with the pruned
// branch; branch numbering is preserved.
func (t *Tree) SPR(d, graft int, frac float64) error {
	a := t.Target(d)
	if t.IsLeafNode(a) {
		return errors.New("SPR attachment node must be internal")
	}
	graft = t.Undirected(graft)

	rev := t.Reverse(d)
	var eu, ew = -1, -1
	for _, e := range t.out[a] {
		if e == rev {
			continue
		}
		if eu == -1 {
			eu = e
		} else {
			ew = e
		}
	}
	if eu == -1 || ew == -1 {
		return errors.New("attachment node is not degree 3")
	}
	if t.Undirected(eu) == graft || t.Undirected(ew) == graft || t.Undirected(d) == graft {
		return errors.New("cannot regraft onto an adjacent branch")
	}

	u := t.Target(eu)

	// Dissolve the attachment node: merge the two non-pruned
	// branches into one connecting their far endpoints.
	t.SetLength(ew, t.Length(eu)+t.Length(ew))
	t.reconnect(ew, u)

	// Split the graft branch with the freed branch, reattaching a.
	lg := t.Length(graft)
	q := t.Target(graft)
	t.reconnect(t.Reverse(graft), a)
	t.SetLength(graft, lg*frac)
	t.reconnect(t.Reverse(eu), q)
	t.SetLength(eu, lg*(1-frac))
	return nil
}

// partitionKey builds a canonical string key for a leaf-name
// bipartition side.
func partitionKey(names []string, s LeafSet) string {
	side := make([]string, 0, len(names))
	in := s[0]
	for i, name := range names {
		if s[i] == in {
			side = append(side, name)
		}
	}
	sort.Strings(side)
	return strings.Join(side, ",")
}

// Extends tests whether t satisfies every bipartition present in the
// constraint tree tc. Both trees must carry the same leaf names.
func Extends(t, tc *Tree) bool {
	have := make(map[string]bool)
	for b := 0; b < t.NBranches(); b++ {
		have[partitionKey(t.names, t.Partition(b))] = true
	}
	// The constraint tree is indexed by its own node numbering;
	// remap its partitions through leaf names ordered as in t.
	idx := make(map[string]int, len(t.names))
	for i, n := range t.names {
		idx[n] = i
	}
	for b := 0; b < tc.NBranches(); b++ {
		if tc.IsLeafBranch(b) {
			continue
		}
		p := tc.Partition(b)
		remapped := make(LeafSet, len(t.names))
		for i, x := range p {
			if x {
				j, ok := idx[tc.names[i]]
				if !ok {
					return false
				}
				remapped[j] = true
			}
		}
		if !have[partitionKey(t.names, remapped)] {
			return false
		}
	}
	return true
}

// FromNode builds an unrooted tree from a parsed newick node tree.
// Rooted input (a bifurcation at the top) is unrooted by merging the
// two root branches. Degenerate branch lengths are raised to
// MinBranchLength.
func FromNode(root *Node) (*Tree, error) {
	var leaves, internals []*Node
	var walk func(n *Node)
	walk = func(n *Node) {
		if n.IsTerminal() {
			leaves = append(leaves, n)
		} else if !n.IsRoot() || len(n.childNodes) > 2 {
			internals = append(internals, n)
		}
		for _, c := range n.childNodes {
			walk(c)
		}
	}
	walk(root)

	nLeaves := len(leaves)
	if nLeaves < 2 {
		return nil, errors.New("tree must have at least two leaves")
	}

	suppressed := root
	if len(root.childNodes) > 2 {
		suppressed = nil
	} else if len(root.childNodes) != 2 {
		return nil, errors.New("root must have two or more children")
	}

	// polytomies are allowed here (constraint trees use them); the
	// sampler itself requires a fully resolved tree
	nNodes := nLeaves + len(internals)
	nBranches := nNodes - 1

	id := make(map[*Node]int, nNodes)
	names := make([]string, nLeaves)
	for i, n := range leaves {
		if n.Name == "" {
			return nil, errors.New("leaf without a name")
		}
		id[n] = i
		names[i] = n.Name
	}
	for i, n := range internals {
		id[n] = nLeaves + i
	}

	t := &Tree{
		nLeaves: nLeaves,
		names:   names,
		source:  make([]int, 2*nBranches),
		out:     make([][]int, nNodes),
		length:  make([]float64, nBranches),
	}

	nextInternal := nLeaves
	addBranch := func(x, y int, l float64) error {
		var b int
		if x < nLeaves {
			b = x
		} else if y < nLeaves {
			b = y
			x, y = y, x
		} else {
			b = nextInternal
			nextInternal++
		}
		if b >= nBranches {
			return errors.New("too many branches")
		}
		if l < MinBranchLength {
			l = MinBranchLength
		}
		t.length[b] = l
		t.source[b] = x
		t.source[b+nBranches] = y
		t.out[x] = append(t.out[x], b)
		t.out[y] = append(t.out[y], b+nBranches)
		return nil
	}

	var connect func(n *Node) error
	connect = func(n *Node) error {
		for _, c := range n.childNodes {
			if n == suppressed {
				continue
			}
			if err := addBranch(id[c], id[n], c.BranchLength); err != nil {
				return err
			}
		}
		for _, c := range n.childNodes {
			if err := connect(c); err != nil {
				return err
			}
		}
		return nil
	}
	if err := connect(root); err != nil {
		return nil, err
	}
	if suppressed != nil {
		c1, c2 := root.childNodes[0], root.childNodes[1]
		if err := addBranch(id[c1], id[c2], c1.BranchLength+c2.BranchLength); err != nil {
			return nil, err
		}
	}
	if nBranches > nLeaves && nextInternal != nBranches {
		return nil, errors.New("branch count mismatch")
	}
	return t, nil
}

// ParseTree reads a newick tree and converts it to the unrooted form.
func ParseTree(rd io.Reader) (*Tree, error) {
	root, err := ParseNewick(rd)
	if err != nil {
		return nil, err
	}
	return FromNode(root)
}

func (t *Tree) subtreeString(d int, b *strings.Builder) {
	// write the subtree behind directed branch d
	n := t.Source(d)
	if t.IsLeafNode(n) {
		b.WriteString(t.names[n])
	} else {
		b.WriteByte('(')
		for i, e := range t.BranchesBefore(d) {
			if i > 0 {
				b.WriteByte(',')
			}
			t.subtreeString(e, b)
		}
		b.WriteByte(')')
	}
	b.WriteByte(':')
	b.WriteString(strconv.FormatFloat(t.Length(d), 'f', 6, 64))
}

// String returns the tree in newick format, written as a
// trifurcation at the internal node next to leaf 0.
func (t *Tree) String() string {
	var b strings.Builder
	if t.NNodes() == 2 {
		fmt.Fprintf(&b, "(%s:%f,%s:%f);", t.names[0], t.length[0]/2,
			t.names[1], t.length[0]/2)
		return b.String()
	}
	center := t.Target(t.LeafBranch(0))
	b.WriteByte('(')
	for i, e := range t.out[center] {
		if i > 0 {
			b.WriteByte(',')
		}
		t.subtreeString(t.Reverse(e), &b)
	}
	b.WriteString(");")
	return b.String()
}
