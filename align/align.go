// Package align provides the multiple sequence alignment matrix with
// leaf and internal-node rows, and utilities to keep internal rows
// consistent with a tree.
package align

import (
	"errors"
	"fmt"
	"strings"

	"github.com/op/go-logging"

	"bitbucket.org/Davydov/treeali/bio"
	"bitbucket.org/Davydov/treeali/tree"
)

var log = logging.MustGetLogger("align")

// InternalInconsistency reports a column whose present nodes do not
// form a connected subtree.
type InternalInconsistency struct {
	Column int
}

func (e *InternalInconsistency) Error() string {
	return fmt.Sprintf("internal nodes disconnected in column %d", e.Column)
}

// Alignment is a rectangular matrix of letter codes indexed by
// (column, row). The first NLeaves rows are observed sequences;
// further rows belong to internal tree nodes and hold only Gap or
// NotGap.
type Alignment struct {
	Alpha *bio.Alphabet
	names []string
	// column major
	cols [][]int
	// leaf sequences as loaded, for consistency checks
	orig [][]int
}

// New builds an alignment from equal-length encoded sequences.
func New(alpha *bio.Alphabet, seqs bio.Sequences) (*Alignment, error) {
	if len(seqs) == 0 {
		return nil, errors.New("no sequences")
	}
	if !seqs.NamesAreUnique() {
		return nil, errors.New("duplicate sequence names")
	}
	a := &Alignment{Alpha: alpha}
	rows := make([][]int, len(seqs))
	length := -1
	for i, s := range seqs {
		if err := bio.CheckName(s.Name); err != nil {
			return nil, err
		}
		a.names = append(a.names, s.Name)
		row, err := alpha.Encode(s.Sequence)
		if err != nil {
			return nil, fmt.Errorf("sequence %s: %v", s.Name, err)
		}
		if length >= 0 && len(row) != length {
			return nil, fmt.Errorf("sequence %s has length %d, expected %d",
				s.Name, len(row), length)
		}
		length = len(row)
		rows[i] = row
	}
	a.cols = make([][]int, length)
	for c := range a.cols {
		col := make([]int, len(rows))
		for i := range rows {
			col[i] = rows[i][c]
		}
		a.cols[c] = col
	}
	for i := range rows {
		a.orig = append(a.orig, stripGaps(rows[i]))
	}
	return a, nil
}

func stripGaps(row []int) []int {
	res := make([]int, 0, len(row))
	for _, c := range row {
		if c != bio.Gap {
			res = append(res, c)
		}
	}
	return res
}

// NCols returns the number of columns.
func (a *Alignment) NCols() int { return len(a.cols) }

// NRows returns the number of rows, internal rows included.
func (a *Alignment) NRows() int { return len(a.names) }

// Name returns the name of row i.
func (a *Alignment) Name(i int) string { return a.names[i] }

// Names returns all row names.
func (a *Alignment) Names() []string { return append([]string(nil), a.names...) }

// Cell returns the code at (column, row).
func (a *Alignment) Cell(c, i int) int { return a.cols[c][i] }

// SetCell changes the code at (column, row).
func (a *Alignment) SetCell(c, i, v int) { a.cols[c][i] = v }

// Column returns the underlying cells of column c.
func (a *Alignment) Column(c int) []int { return a.cols[c] }

// SeqLength returns the number of feature cells in row i.
func (a *Alignment) SeqLength(i int) (n int) {
	for _, col := range a.cols {
		if bio.IsFeature(col[i]) {
			n++
		}
	}
	return
}

// Row returns a copy of row i.
func (a *Alignment) Row(i int) []int {
	row := make([]int, len(a.cols))
	for c, col := range a.cols {
		row[c] = col[i]
	}
	return row
}

// StripGaps returns row i with Gap cells removed.
func (a *Alignment) StripGaps(i int) []int {
	return stripGaps(a.Row(i))
}

// Copy creates an independent copy of the alignment.
func (a *Alignment) Copy() *Alignment {
	na := &Alignment{
		Alpha: a.Alpha,
		names: append([]string(nil), a.names...),
		cols:  make([][]int, len(a.cols)),
		orig:  a.orig,
	}
	for c := range a.cols {
		na.cols[c] = append([]int(nil), a.cols[c]...)
	}
	return na
}

// SetColumns replaces all columns.
func (a *Alignment) SetColumns(cols [][]int) { a.cols = cols }

// InsertColumn inserts col before position c.
func (a *Alignment) InsertColumn(c int, col []int) {
	a.cols = append(a.cols, nil)
	copy(a.cols[c+1:], a.cols[c:])
	a.cols[c] = col
}

// DeleteColumns removes all columns for which del returns true.
func (a *Alignment) DeleteColumns(del func(c int) bool) {
	res := a.cols[:0]
	for c := range a.cols {
		if !del(c) {
			res = append(res, a.cols[c])
		}
	}
	a.cols = res
}

// RemoveEmptyColumns deletes columns with no feature in any row.
func (a *Alignment) RemoveEmptyColumns() {
	a.DeleteColumns(func(c int) bool {
		for _, v := range a.cols[c] {
			if bio.IsFeature(v) {
				return false
			}
		}
		return true
	})
}

// HasInternal tests whether internal rows are present for nLeaves
// leaves.
func (a *Alignment) HasInternal(nLeaves int) bool {
	return a.NRows() > nLeaves
}

// AddInternal extends the alignment with n rows of Gap named A<i>.
func (a *Alignment) AddInternal(n int) {
	for i := 0; i < n; i++ {
		a.names = append(a.names, fmt.Sprintf("A%d", i))
	}
	for c := range a.cols {
		for i := 0; i < n; i++ {
			a.cols[c] = append(a.cols[c], bio.Gap)
		}
	}
}

// ChopInternal drops trailing rows which are named A<i> and contain
// only Gap or NotGap, optionally stripping columns left empty.
func (a *Alignment) ChopInternal(stripEmpty bool) {
	keep := a.NRows()
	for keep > 0 {
		i := keep - 1
		if !strings.HasPrefix(a.names[i], "A") {
			break
		}
		only := true
		for _, col := range a.cols {
			if col[i] != bio.Gap && col[i] != bio.NotGap {
				only = false
				break
			}
		}
		if !only {
			break
		}
		keep--
	}
	if keep == a.NRows() {
		return
	}
	a.names = a.names[:keep]
	for c := range a.cols {
		a.cols[c] = a.cols[c][:keep]
	}
	if stripEmpty {
		a.RemoveEmptyColumns()
	}
}

// NamesAreUnique tests that no two rows share a name.
func (a *Alignment) NamesAreUnique() bool {
	seen := make(map[string]bool, len(a.names))
	for _, n := range a.names {
		if seen[n] {
			return false
		}
		seen[n] = true
	}
	return true
}

// ConnectAllCharacters sets present for each internal node iff
// strictly more than one of its three behind-subtrees contains a
// present node. The leaf entries of present must already be set; on
// return the present nodes form a connected subtree.
func ConnectAllCharacters(t *tree.Tree, present []bool) {
	// presence behind every directed branch, computed leafward first
	behind := make([]bool, t.NDirected())
	order := t.BranchesTowardNode(t.NNodes() - 1)
	for _, d := range order {
		s := t.Source(d)
		if t.IsLeafNode(s) {
			behind[d] = present[s]
			continue
		}
		for _, e := range t.BranchesBefore(d) {
			if behind[e] {
				behind[d] = true
				break
			}
		}
	}
	// the order above covers one direction of each branch; fill
	// the reverses rootward
	for i := len(order) - 1; i >= 0; i-- {
		d := t.Reverse(order[i])
		s := t.Source(d)
		if t.IsLeafNode(s) {
			behind[d] = present[s]
			continue
		}
		behind[d] = false
		for _, e := range t.BranchesBefore(d) {
			if behind[e] {
				behind[d] = true
				break
			}
		}
	}
	for n := t.NLeaves(); n < t.NNodes(); n++ {
		count := 0
		for _, e := range t.OutBranches(n) {
			if behind[t.Reverse(e)] {
				count++
			}
		}
		present[n] = count > 1
	}
}

// MinimallyConnectLeafCharacters rewrites every internal cell to
// NotGap or Gap so that each column's present nodes are exactly the
// minimal connected set implied by the leaves, then removes empty
// columns.
func MinimallyConnectLeafCharacters(a *Alignment, t *tree.Tree) {
	present := make([]bool, t.NNodes())
	for c := range a.cols {
		for i := 0; i < t.NLeaves(); i++ {
			present[i] = bio.IsFeature(a.cols[c][i])
		}
		ConnectAllCharacters(t, present)
		for n := t.NLeaves(); n < t.NNodes(); n++ {
			if present[n] {
				a.cols[c][n] = bio.NotGap
			} else {
				a.cols[c][n] = bio.Gap
			}
		}
	}
	a.RemoveEmptyColumns()
}

// ConnectLeafCharacters is the additive variant: internal nodes on
// the minimal connected set are marked present, but nodes already
// present are never cleared. Because the added nodes already form a
// connected set, repeated application changes nothing.
func ConnectLeafCharacters(a *Alignment, t *tree.Tree) {
	present := make([]bool, t.NNodes())
	for c := range a.cols {
		for i := 0; i < t.NLeaves(); i++ {
			present[i] = bio.IsFeature(a.cols[c][i])
		}
		ConnectAllCharacters(t, present)
		for n := t.NLeaves(); n < t.NNodes(); n++ {
			if present[n] && !bio.IsFeature(a.cols[c][n]) {
				a.cols[c][n] = bio.NotGap
			}
		}
	}
}

// CheckInternalNodesConnected verifies that in every column the nodes
// with feature cells form a connected subtree.
func CheckInternalNodesConnected(a *Alignment, t *tree.Tree) error {
	for c := range a.cols {
		var first = -1
		n := 0
		for i := 0; i < t.NNodes(); i++ {
			if bio.IsFeature(a.cols[c][i]) {
				if first < 0 {
					first = i
				}
				n++
			}
		}
		if n <= 1 {
			continue
		}
		// walk the present component from the first present node
		seen := make([]bool, t.NNodes())
		stack := []int{first}
		seen[first] = true
		count := 1
		for len(stack) > 0 {
			x := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			for _, y := range t.Neighbors(x) {
				if !seen[y] && bio.IsFeature(a.cols[c][y]) {
					seen[y] = true
					count++
					stack = append(stack, y)
				}
			}
		}
		if count != n {
			return &InternalInconsistency{Column: c}
		}
	}
	return nil
}

// CheckLettersOK verifies every cell is a letter, a letter class, Gap,
// NotGap or Unknown.
func CheckLettersOK(a *Alignment) error {
	for c := range a.cols {
		for i, v := range a.cols[c] {
			switch {
			case a.Alpha.IsLetter(v), a.Alpha.IsLetterClass(v):
			case v == bio.Gap, v == bio.NotGap, v == bio.Unknown:
			default:
				return fmt.Errorf("illegal code %d at column %d row %d", v, c, i)
			}
		}
	}
	return nil
}

// CheckLeafSequences verifies that stripping gaps from the first
// nLeaves rows reproduces the input sequences exactly.
func CheckLeafSequences(a *Alignment, nLeaves int) error {
	for i := 0; i < nLeaves; i++ {
		got := a.StripGaps(i)
		want := a.orig[i]
		if len(got) != len(want) {
			return fmt.Errorf("row %s: projected length %d, loaded %d",
				a.names[i], len(got), len(want))
		}
		for k := range got {
			if got[k] != want[k] {
				return fmt.Errorf("row %s: letter %d changed", a.names[i], k)
			}
		}
	}
	return nil
}

// Shuffle returns a copy with columns permuted: column c of the result
// is column perm[c] of a.
func (a *Alignment) Shuffle(perm []int) *Alignment {
	na := a.Copy()
	for c, p := range perm {
		na.cols[c] = append([]int(nil), a.cols[p]...)
	}
	return na
}

// Fasta renders the alignment (leaf rows only when nLeaves is
// positive) in FASTA format.
func (a *Alignment) Fasta(nLeaves int) string {
	if nLeaves <= 0 || nLeaves > a.NRows() {
		nLeaves = a.NRows()
	}
	var b strings.Builder
	for i := 0; i < nLeaves; i++ {
		seq := bio.Sequence{Name: a.names[i], Sequence: a.Alpha.Decode(a.Row(i))}
		b.WriteString(seq.String())
	}
	return b.String()
}
