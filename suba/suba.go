// Package suba provides the per-directed-branch sub-alignment index:
// a persistent naming of the alignment columns behind each branch.
// Names survive any state change that does not alter the projection
// of the behind-branch alignment onto the leaf sequences, which is
// what makes conditional-likelihood caching across alignment moves
// possible.
//
// Two variants exist. The leaf variant names columns purely from the
// leaf projection; resampling internal nodes never invalidates it.
// The internal-aware variant additionally distinguishes columns by
// their internal-node presence pattern, allowing finer caching at the
// cost of more invalidation.
package suba

import (
	"fmt"
	"sort"

	"github.com/op/go-logging"

	"bitbucket.org/Davydov/treeali/align"
	"bitbucket.org/Davydov/treeali/bio"
	"bitbucket.org/Davydov/treeali/tree"
)

var log = logging.MustGetLogger("suba")

// FootprintError reports that column names changed without the
// corresponding invalidation.
type FootprintError struct {
	Branch int
	Column int
}

func (e *FootprintError) Error() string {
	return fmt.Sprintf("sub-alignment index footprint violated at branch %d, column %d",
		e.Branch, e.Column)
}

// Index is a sub-alignment index over all directed branches.
type Index struct {
	internal     bool
	allowInvalid bool
	// names[b][c] is the name of full-alignment column c in the
	// sub-alignment of directed branch b, or -1. A nil slice
	// marks an invalid branch.
	names  [][]int
	length []int
}

// New creates an index with every branch invalid. The internal flag
// selects the internal-aware variant.
func New(internal bool, nDirected int) *Index {
	return &Index{
		internal: internal,
		names:    make([][]int, nDirected),
		length:   make([]int, nDirected),
	}
}

// Internal reports whether this is the internal-aware variant.
func (ix *Index) Internal() bool { return ix.internal }

// Copy clones the index.
func (ix *Index) Copy() *Index {
	n := &Index{
		internal:     ix.internal,
		allowInvalid: ix.allowInvalid,
		names:        make([][]int, len(ix.names)),
		length:       append([]int(nil), ix.length...),
	}
	for b, s := range ix.names {
		if s != nil {
			n.names[b] = append([]int(nil), s...)
		}
	}
	return n
}

// BranchIndexValid reports whether branch b has a valid index.
func (ix *Index) BranchIndexValid(b int) bool { return ix.names[b] != nil }

// BranchIndexLength returns the number of named columns of branch b.
func (ix *Index) BranchIndexLength(b int) int {
	if ix.names[b] == nil {
		log.Fatalf("index of branch %d is invalid", b)
	}
	return ix.length[b]
}

// ColumnName returns the name of full column c in branch b, or -1.
func (ix *Index) ColumnName(b, c int) int { return ix.names[b][c] }

// AllowInvalidBranches permits queries while some branch indices are
// invalid (used by SPR-all moves where only rootward branches matter).
func (ix *Index) AllowInvalidBranches(allowed bool) { ix.allowInvalid = allowed }

// MayHaveInvalidBranches reports the allow-invalid mode.
func (ix *Index) MayHaveInvalidBranches() bool { return ix.allowInvalid }

// InvalidateOneBranch marks a single directed branch invalid.
func (ix *Index) InvalidateOneBranch(b int) {
	ix.names[b] = nil
	ix.length[b] = 0
}

// InvalidateDirectedBranch marks b and every directed branch whose
// behind-subtree contains b invalid.
func (ix *Index) InvalidateDirectedBranch(t *tree.Tree, b int) {
	for _, d := range t.BranchesFromInclusive(b) {
		ix.InvalidateOneBranch(d)
	}
}

// InvalidateBranch invalidates both directions of a branch and
// everything depending on them.
func (ix *Index) InvalidateBranch(t *tree.Tree, b int) {
	ix.InvalidateDirectedBranch(t, t.Undirected(b))
	ix.InvalidateDirectedBranch(t, t.Reverse(t.Undirected(b)))
}

// InvalidateAllBranches marks every directed branch invalid.
func (ix *Index) InvalidateAllBranches() {
	for b := range ix.names {
		ix.InvalidateOneBranch(b)
	}
}

// InvalidateNode invalidates every directed branch whose
// source-side subtree contains node n.
func (ix *Index) InvalidateNode(t *tree.Tree, n int) {
	for _, d := range t.BranchesTowardNode(n) {
		// d points toward n: the subtree behind the reverse
		// contains n
		ix.InvalidateOneBranch(t.Reverse(d))
	}
}

// member reports whether column c belongs to the sub-alignment of a
// branch with behind-branches b1, b2 and source node src.
func (ix *Index) member(a *align.Alignment, c, b1, b2, src int) bool {
	if ix.names[b1][c] >= 0 || ix.names[b2][c] >= 0 {
		return true
	}
	if ix.internal && bio.IsFeature(a.Cell(c, src)) {
		return true
	}
	return false
}

// UpdateBranch lazily computes the index of directed branch b,
// updating behind branches first.
func (ix *Index) UpdateBranch(a *align.Alignment, t *tree.Tree, b int) {
	if ix.names[b] != nil {
		return
	}
	src := t.Source(b)
	L := a.NCols()
	names := make([]int, L)

	if t.IsLeafNode(src) {
		n := 0
		for c := 0; c < L; c++ {
			if bio.IsFeature(a.Cell(c, src)) {
				names[c] = n
				n++
			} else {
				names[c] = -1
			}
		}
		ix.names[b] = names
		ix.length[b] = n
		return
	}

	behind := t.BranchesBefore(b)
	if len(behind) != 2 {
		log.Fatalf("internal node of degree %d behind branch %d", len(behind)+1, b)
	}
	b1, b2 := behind[0], behind[1]
	ix.UpdateBranch(a, t, b1)
	ix.UpdateBranch(a, t, b2)

	order := ix.mergeOrder(a, t, b, b1, b2, src)
	for c := range names {
		names[c] = -1
	}
	for rank, c := range order {
		names[c] = rank
	}
	ix.names[b] = names
	ix.length[b] = len(order)
}

// mergeOrder orders the member columns of branch b canonically: the
// interleaving of the two behind-branch column orders is fixed by the
// columns present in both; unmatched columns are emitted as late as
// their behind name allows, behind-branch-1 first. The result depends
// only on the behind-branch names and on which columns pair up, never
// on the full-alignment column order of unpaired columns.
func (ix *Index) mergeOrder(a *align.Alignment, t *tree.Tree, b, b1, b2, src int) []int {
	type pairing struct {
		c      int
		n1, n2 int
	}
	var matched, only1, only2, bare []pairing
	for c := 0; c < a.NCols(); c++ {
		if !ix.member(a, c, b1, b2, src) {
			continue
		}
		p := pairing{c, ix.names[b1][c], ix.names[b2][c]}
		switch {
		case p.n1 >= 0 && p.n2 >= 0:
			matched = append(matched, p)
		case p.n1 >= 0:
			only1 = append(only1, p)
		case p.n2 >= 0:
			only2 = append(only2, p)
		default:
			// internal variant: the source node alone
			bare = append(bare, p)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].n1 < matched[j].n1 })
	sort.Slice(only1, func(i, j int) bool { return only1[i].n1 < only1[j].n1 })
	sort.Slice(only2, func(i, j int) bool { return only2[i].n2 < only2[j].n2 })

	order := make([]int, 0, len(matched)+len(only1)+len(only2)+len(bare))
	i1, i2 := 0, 0
	for _, m := range matched {
		for i1 < len(only1) && only1[i1].n1 < m.n1 {
			order = append(order, only1[i1].c)
			i1++
		}
		for i2 < len(only2) && only2[i2].n2 < m.n2 {
			order = append(order, only2[i2].c)
			i2++
		}
		order = append(order, m.c)
	}
	for ; i1 < len(only1); i1++ {
		order = append(order, only1[i1].c)
	}
	for ; i2 < len(only2); i2++ {
		order = append(order, only2[i2].c)
	}
	for _, p := range bare {
		order = append(order, p.c)
	}
	return order
}

// RecomputeAllBranches recomputes every directed branch index.
func (ix *Index) RecomputeAllBranches(a *align.Alignment, t *tree.Tree) {
	ix.InvalidateAllBranches()
	for b := 0; b < t.NDirected(); b++ {
		ix.UpdateBranch(a, t, b)
	}
}

// CheckFootprintForBranch verifies that the stored index of branch b
// can be regenerated unchanged.
func (ix *Index) CheckFootprintForBranch(a *align.Alignment, t *tree.Tree, b int) error {
	if ix.names[b] == nil {
		return nil
	}
	fresh := New(ix.internal, len(ix.names))
	fresh.UpdateBranch(a, t, b)
	for c := 0; c < a.NCols(); c++ {
		if fresh.names[b][c] != ix.names[b][c] {
			return &FootprintError{Branch: b, Column: c}
		}
	}
	return nil
}

// CheckFootprint verifies every valid branch index.
func (ix *Index) CheckFootprint(a *align.Alignment, t *tree.Tree) error {
	for b := range ix.names {
		if err := ix.CheckFootprintForBranch(a, t, b); err != nil {
			return err
		}
	}
	return nil
}
