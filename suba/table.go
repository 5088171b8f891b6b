package suba

import (
	"bitbucket.org/Davydov/treeali/align"
	"bitbucket.org/Davydov/treeali/bio"
	"bitbucket.org/Davydov/treeali/tree"
)

// Table is a joint column table aligning the sub-alignments of
// several branches: one row per listed branch, one column per
// full-alignment column carrying at least one letter; cells are the
// branch column names or -1.
type Table struct {
	Branches []int
	// Columns[k] is the full-alignment column of table column k.
	Columns []int
	// Names[k][r] is the name of table column k in branch
	// Branches[r], or -1.
	Names [][]int
}

// NCols returns the number of table columns.
func (tb *Table) NCols() int { return len(tb.Columns) }

func (ix *Index) ensure(a *align.Alignment, t *tree.Tree, branches []int) {
	for _, b := range branches {
		if ix.allowInvalid && ix.names[b] == nil {
			continue
		}
		ix.UpdateBranch(a, t, b)
	}
}

func (ix *Index) table(a *align.Alignment, branches []int, keep func(c int) bool) *Table {
	tb := &Table{Branches: append([]int(nil), branches...)}
	for c := 0; c < a.NCols(); c++ {
		any := false
		row := make([]int, len(branches))
		for r, b := range branches {
			if ix.names[b] == nil {
				row[r] = -1
				continue
			}
			row[r] = ix.names[b][c]
			if row[r] >= 0 {
				any = true
			}
		}
		if !any || (keep != nil && !keep(c)) {
			continue
		}
		tb.Columns = append(tb.Columns, c)
		tb.Names = append(tb.Names, row)
	}
	return tb
}

// GetSubAIndex aligns the sub-alignments of the listed branches.
func (ix *Index) GetSubAIndex(branches []int, a *align.Alignment, t *tree.Tree) *Table {
	ix.ensure(a, t, branches)
	return ix.table(a, branches, nil)
}

// GetSubAIndexNode aligns the sub-alignments of all branches pointing
// into a node.
func (ix *Index) GetSubAIndexNode(n int, a *align.Alignment, t *tree.Tree) *Table {
	branches := make([]int, 0, 3)
	for _, e := range t.OutBranches(n) {
		branches = append(branches, t.Reverse(e))
	}
	return ix.GetSubAIndex(branches, a, t)
}

// GetSubAIndexSelect aligns the listed branches but keeps only the
// rows in sub, preserving the column set of the full list.
func (ix *Index) GetSubAIndexSelect(branches, sub []int, a *align.Alignment, t *tree.Tree) *Table {
	full := ix.GetSubAIndex(branches, a, t)
	pos := make(map[int]int, len(branches))
	for r, b := range branches {
		pos[b] = r
	}
	res := &Table{Branches: append([]int(nil), sub...), Columns: full.Columns}
	for _, row := range full.Names {
		nrow := make([]int, len(sub))
		for r, b := range sub {
			nrow[r] = row[pos[b]]
		}
		res.Names = append(res.Names, nrow)
	}
	return res
}

// GetSubAIndexAligned restricts the joint table to columns whose
// root-of-subtree presence (the source node of the last listed
// branch) matches present.
func (ix *Index) GetSubAIndexAligned(branches []int, a *align.Alignment, t *tree.Tree, present bool) *Table {
	ix.ensure(a, t, branches)
	root := t.Source(branches[len(branches)-1])
	return ix.table(a, branches, func(c int) bool {
		return bio.IsFeature(a.Cell(c, root)) == present
	})
}

// GetSubAIndexVanishing returns columns of the listed branches which
// are paired with nothing in the last branch.
func (ix *Index) GetSubAIndexVanishing(branches []int, a *align.Alignment, t *tree.Tree) *Table {
	ix.ensure(a, t, branches)
	last := branches[len(branches)-1]
	return ix.table(a, branches, func(c int) bool {
		return ix.names[last] != nil && ix.names[last][c] < 0
	})
}

// GetSubAIndexAny restricts the joint table to columns where at least
// one of the listed nodes contributes a letter.
func (ix *Index) GetSubAIndexAny(branches []int, a *align.Alignment, t *tree.Tree, nodes []int) *Table {
	ix.ensure(a, t, branches)
	return ix.table(a, branches, func(c int) bool {
		for _, n := range nodes {
			if bio.IsFeature(a.Cell(c, n)) {
				return true
			}
		}
		return false
	})
}

// GetSubAIndexNone restricts the joint table to columns where none of
// the listed nodes contributes a letter.
func (ix *Index) GetSubAIndexNone(branches []int, a *align.Alignment, t *tree.Tree, nodes []int) *Table {
	ix.ensure(a, t, branches)
	return ix.table(a, branches, func(c int) bool {
		for _, n := range nodes {
			if bio.IsFeature(a.Cell(c, n)) {
				return false
			}
		}
		return true
	})
}

// BehindPairs returns, for every column name of branch b, the behind
// branch column names (or -1) used to recompute conditional
// likelihoods.
func (ix *Index) BehindPairs(a *align.Alignment, t *tree.Tree, b int) (b1, b2 int, pairs [][2]int) {
	behind := t.BranchesBefore(b)
	b1, b2 = behind[0], behind[1]
	ix.UpdateBranch(a, t, b1)
	ix.UpdateBranch(a, t, b2)
	ix.UpdateBranch(a, t, b)
	pairs = make([][2]int, ix.length[b])
	for c := 0; c < a.NCols(); c++ {
		if n := ix.names[b][c]; n >= 0 {
			pairs[n] = [2]int{ix.names[b1][c], ix.names[b2][c]}
		}
	}
	return
}

// NNonNullEntries counts non-null cells of a table.
func NNonNullEntries(tb *Table) (n int) {
	for _, row := range tb.Names {
		for _, v := range row {
			if v >= 0 {
				n++
			}
		}
	}
	return
}
