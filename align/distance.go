package align

import (
	"bitbucket.org/Davydov/treeali/bio"
)

// Homology-distance metrics between two alignments with the same row
// set. The M matrix holds, per (column, row), the position index of
// the letter in its sequence, or Gap; Unknown cells are ignored by all
// metrics.

// MMatrix returns the position-index matrix of the alignment.
func MMatrix(a *Alignment) [][]int {
	m := make([][]int, a.NCols())
	pos := make([]int, a.NRows())
	for c := range m {
		row := make([]int, a.NRows())
		for i, v := range a.cols[c] {
			switch {
			case v == bio.Unknown:
				row[i] = bio.Unknown
			case bio.IsFeature(v):
				row[i] = pos[i]
				pos[i]++
			default:
				row[i] = bio.Gap
			}
		}
		m[c] = row
	}
	return m
}

// columnOf inverts an M matrix: columnOf[i][p] is the column holding
// position p of row i.
func columnOf(m [][]int, nRows int) [][]int {
	res := make([][]int, nRows)
	for c := range m {
		for i, p := range m[c] {
			if p >= 0 {
				res[i] = append(res[i], c)
			}
		}
	}
	return res
}

// AMatch tests whether the homology between rows i and j asserted by
// column c of M1 also holds in M2.
func AMatch(m1 [][]int, c, i, j int, m2 [][]int, colOf2 [][]int) bool {
	x := m1[c][i]
	y := m1[c][j]
	if x == bio.Unknown || y == bio.Unknown {
		return true
	}
	if x == bio.Gap && y == bio.Gap {
		return true
	}
	if x == bio.Gap {
		// look up from the other side
		return m2[colOf2[j][y]][i] == bio.Gap
	}
	return m2[colOf2[i][x]][j] == y
}

// AsymmetricPairsDistance counts ordered row pairs whose homology in
// a1 is not reproduced in a2.
func AsymmetricPairsDistance(a1, a2 *Alignment) int {
	m1 := MMatrix(a1)
	m2 := MMatrix(a2)
	return asymmetricPairs(m1, m2, a1.NRows())
}

func asymmetricPairs(m1, m2 [][]int, nRows int) int {
	colOf2 := columnOf(m2, nRows)
	mismatches := 0
	for c := range m1 {
		for i := 0; i < nRows; i++ {
			if m1[c][i] < 0 {
				continue
			}
			for j := 0; j < nRows; j++ {
				if j == i {
					continue
				}
				if !AMatch(m1, c, i, j, m2, colOf2) {
					mismatches++
				}
			}
		}
	}
	return mismatches
}

// PairsDistance is the symmetrized pairs distance.
func PairsDistance(a1, a2 *Alignment) int {
	return AsymmetricPairsDistance(a1, a2) + AsymmetricPairsDistance(a2, a1)
}

func asymmetricSplits(m1, m2 [][]int, nRows int, squared bool) int {
	colOf2 := columnOf(m2, nRows)
	d := 0
	for c := range m1 {
		groups := make(map[int]bool)
		for i := 0; i < nRows; i++ {
			if m1[c][i] < 0 {
				continue
			}
			groups[colOf2[i][m1[c][i]]] = true
		}
		g := len(groups)
		if g > 1 {
			if squared {
				d += g * (g - 1) / 2
			} else {
				d += g - 1
			}
		}
	}
	return d
}

// SplitsDistance counts, per column, one less than the number of
// target columns its letters scatter into, summed in both directions.
func SplitsDistance(a1, a2 *Alignment) int {
	m1 := MMatrix(a1)
	m2 := MMatrix(a2)
	return asymmetricSplits(m1, m2, a1.NRows(), false) +
		asymmetricSplits(m2, m1, a1.NRows(), false)
}

// SplitsDistance2 is the pairwise-counting variant of SplitsDistance.
func SplitsDistance2(a1, a2 *Alignment) int {
	m1 := MMatrix(a1)
	m2 := MMatrix(a2)
	return asymmetricSplits(m1, m2, a1.NRows(), true) +
		asymmetricSplits(m2, m1, a1.NRows(), true)
}

// AConstant tests whether two alignments assert exactly the same
// homologies, ignoring the listed rows.
func AConstant(a1, a2 *Alignment, ignore map[int]bool) bool {
	m1 := MMatrix(a1)
	m2 := MMatrix(a2)
	if len(ignore) > 0 {
		for c := range m1 {
			for i := range ignore {
				m1[c][i] = bio.Unknown
			}
		}
		for c := range m2 {
			for i := range ignore {
				m2[c][i] = bio.Unknown
			}
		}
	}
	n := a1.NRows()
	return asymmetricPairs(m1, m2, n) == 0 && asymmetricPairs(m2, m1, n) == 0
}
