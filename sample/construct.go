package sample

import (
	"bitbucket.org/Davydov/treeali/align"
	"bitbucket.org/Davydov/treeali/bio"
	"bitbucket.org/Davydov/treeali/hmm"
	"bitbucket.org/Davydov/treeali/pmodel"
	"bitbucket.org/Davydov/treeali/suba"
)

// nameColumns inverts the per-column names of a branch: result[name]
// is the full-alignment column carrying it.
func nameColumns(p *pmodel.Partition, d int) []int {
	res := make([]int, p.Ix.BranchIndexLength(d))
	for c := 0; c < p.A.NCols(); c++ {
		if n := p.Ix.ColumnName(d, c); n >= 0 {
			res[n] = c
		}
	}
	return res
}

// construct2 builds the new column list implied by a 2-way path
// across directed branch d: rows behind d come from the X columns,
// all other rows from the Y columns, spliced per state.
func construct2(s *pmodel.State, p *pmodel.Partition, d int, path []int) [][]int {
	t := s.T
	rev := t.Reverse(d)
	colX := nameColumns(p, d)
	colY := nameColumns(p, rev)

	behindX := make([]bool, t.NNodes())
	for _, n := range t.NodesBehind(d) {
		behindX[n] = true
	}

	nRows := p.A.NRows()
	cols := make([][]int, 0, len(path))
	i, j := 0, 0
	for _, st := range path {
		col := make([]int, nRows)
		for r := range col {
			col[r] = bio.Gap
		}
		e1, e2 := hmm.M == st || hmm.G1 == st, hmm.M == st || hmm.G2 == st
		if e1 {
			src := p.A.Column(colX[i])
			for r := 0; r < nRows; r++ {
				if behindX[r] {
					col[r] = src[r]
				}
			}
			i++
		}
		if e2 {
			src := p.A.Column(colY[j])
			for r := 0; r < nRows; r++ {
				if !behindX[r] {
					col[r] = src[r]
				}
			}
			j++
		}
		cols = append(cols, col)
	}
	return cols
}

// extractPath2 reads the current 2-way path across directed branch d
// from the alignment, in full-column order.
func extractPath2(s *pmodel.State, p *pmodel.Partition, d int) []int {
	t := s.T
	rev := t.Reverse(d)
	p.Ix.UpdateBranch(p.A, t, d)
	p.Ix.UpdateBranch(p.A, t, rev)
	var path []int
	for c := 0; c < p.A.NCols(); c++ {
		x := p.Ix.ColumnName(d, c) >= 0
		y := p.Ix.ColumnName(rev, c) >= 0
		switch {
		case x && y:
			path = append(path, hmm.M)
		case x:
			path = append(path, hmm.G1)
		case y:
			path = append(path, hmm.G2)
		}
	}
	return path
}

// constructTri builds the new column list implied by a tri path:
// rows behind d from the X columns, the center-node row from the
// presence bits, remaining rows from the far table columns.
func constructTri(s *pmodel.State, p *pmodel.Partition, d int, h *hmm.Tri,
	table *suba.Table, path []int) [][]int {

	t := s.T
	u := t.Target(d)
	colX := nameColumns(p, d)

	behindX := make([]bool, t.NNodes())
	for _, n := range t.NodesBehind(d) {
		behindX[n] = true
	}

	nRows := p.A.NRows()
	cols := make([][]int, 0, len(path))
	i, j := 0, 0
	for _, st := range path {
		state := h.States[st]
		col := make([]int, nRows)
		for r := range col {
			col[r] = bio.Gap
		}
		e1, e2 := h.Emits(st)
		if e1 {
			src := p.A.Column(colX[i])
			for r := 0; r < nRows; r++ {
				if behindX[r] {
					col[r] = src[r]
				}
			}
			i++
		}
		if e2 {
			src := p.A.Column(table.Columns[j])
			for r := 0; r < nRows; r++ {
				if !behindX[r] && r != u {
					col[r] = src[r]
				}
			}
			j++
		}
		if state.Present {
			if col[u] == bio.Gap {
				col[u] = bio.NotGap
			}
		} else {
			col[u] = bio.Gap
		}
		cols = append(cols, col)
	}
	return cols
}

// extractPathTri reads the current tri path across directed branch d.
func extractPathTri(s *pmodel.State, p *pmodel.Partition, d int, h *hmm.Tri,
	table *suba.Table) []int {

	t := s.T
	u := t.Target(d)
	inTable := make(map[int]bool, table.NCols())
	for _, c := range table.Columns {
		inTable[c] = true
	}
	p.Ix.UpdateBranch(p.A, t, d)
	var path []int
	for c := 0; c < p.A.NCols(); c++ {
		x := p.Ix.ColumnName(d, c) >= 0
		y := inTable[c]
		present := bio.IsFeature(p.A.Cell(c, u))
		var pair int
		switch {
		case x && y:
			pair = hmm.M
		case x:
			pair = hmm.G1
		case y:
			pair = hmm.G2
		default:
			continue
		}
		if pair == hmm.M {
			present = true
		}
		for si, st := range h.States {
			if st.Pair == pair && st.Present == present {
				path = append(path, si)
				break
			}
		}
	}
	return path
}

// replaceColumns swaps in a new column list and drops empty columns.
func replaceColumns(a *align.Alignment, cols [][]int) {
	a.SetColumns(cols)
	a.RemoveEmptyColumns()
}
