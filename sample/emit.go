// Package sample provides the MCMC proposals: alignment resampling
// through the HMM dynamic programs, topology moves (NNI, SPR),
// branch-length moves and the tree-walking composite moves.
package sample

import (
	"github.com/gonum/blas"
	"github.com/gonum/blas/blas64"
	"github.com/op/go-logging"

	"bitbucket.org/Davydov/treeali/efloat"
	"bitbucket.org/Davydov/treeali/hmm"
	"bitbucket.org/Davydov/treeali/pmodel"
	"bitbucket.org/Davydov/treeali/suba"
)

var log = logging.MustGetLogger("sample")

// evec is a conditional-likelihood vector in scaled form.
type evec struct {
	v []float64
	e int
}

func (x evec) dot(y []float64) efloat.EFloat {
	s := 0.0
	for i, v := range x.v {
		s += v * y[i]
	}
	return efloat.Make(s).Scale(x.e)
}

// pairEmitter computes the DP emission weights for resampling the
// alignment across branch b: conditional likelihoods behind both
// directions combined through the branch transition matrices,
// averaged over rate classes.
type pairEmitter struct {
	s *pmodel.State
	p *pmodel.Partition
	// X side: behind directed branch d; Y side: behind reverse
	d, rev int

	freq   []float64
	nRates int
	// x[r][i]: CL vector of X column i; y[r][j] likewise
	x, y [][]evec
	// py[r][j]: P_b * y[r][j], the Y vector transported across b
	py [][]evec
}

func newPairEmitter(s *pmodel.State, p *pmodel.Partition, d int) *pairEmitter {
	t := s.T
	st := s.ScaledTree(p)
	rev := t.Reverse(d)
	em := &pairEmitter{
		s: s, p: p, d: d, rev: rev,
		freq:   p.SM.Frequencies(),
		nRates: p.MC.NRates(),
	}

	p.Ix.UpdateBranch(p.A, t, d)
	p.Ix.UpdateBranch(p.A, t, rev)
	n1 := p.Ix.BranchIndexLength(d)
	n2 := p.Ix.BranchIndexLength(rev)

	em.x = make([][]evec, em.nRates)
	em.y = make([][]evec, em.nRates)
	em.py = make([][]evec, em.nRates)
	n := p.SM.NStates()
	for r := 0; r < em.nRates; r++ {
		em.x[r] = make([]evec, n1)
		for i := 0; i < n1; i++ {
			v, e := p.CL.Vector(p.A, st, p.Ix, p.MC, d, r, i)
			em.x[r][i] = evec{v, e}
		}
		em.y[r] = make([]evec, n2)
		em.py[r] = make([]evec, n2)
		pb := p.MC.P(st, t.Undirected(d), r)
		for j := 0; j < n2; j++ {
			v, e := p.CL.Vector(p.A, st, p.Ix, p.MC, rev, r, j)
			em.y[r][j] = evec{v, e}
			tv := make([]float64, n)
			matVec(pb, v, tv)
			em.py[r][j] = evec{tv, e}
		}
	}
	return em
}

// N1 and N2 are the two sub-alignment lengths.
func (em *pairEmitter) N1() int { return len(em.x[0]) }

// N2 returns the Y-side length.
func (em *pairEmitter) N2() int { return len(em.y[0]) }

// Match returns the weight of pairing X column i with Y column j
// (1-based).
func (em *pairEmitter) Match(i, j int) efloat.EFloat {
	var sum efloat.EFloat
	for r := 0; r < em.nRates; r++ {
		x := em.x[r][i-1]
		py := em.py[r][j-1]
		s := 0.0
		for l, f := range em.freq {
			s += f * x.v[l] * py.v[l]
		}
		sum = sum.Add(efloat.Make(s).Scale(x.e + py.e))
	}
	return sum.MulFloat(1 / float64(em.nRates))
}

// Emit1 returns the weight of an X-only column.
func (em *pairEmitter) Emit1(i int) efloat.EFloat {
	var sum efloat.EFloat
	for r := 0; r < em.nRates; r++ {
		sum = sum.Add(em.x[r][i-1].dot(em.freq))
	}
	return sum.MulFloat(1 / float64(em.nRates))
}

// Emit2 returns the weight of a Y-only column.
func (em *pairEmitter) Emit2(j int) efloat.EFloat {
	var sum efloat.EFloat
	for r := 0; r < em.nRates; r++ {
		sum = sum.Add(em.y[r][j-1].dot(em.freq))
	}
	return sum.MulFloat(1 / float64(em.nRates))
}

// matVec computes y[x] = sum_l P(x->l) v[l] on a raw blas matrix.
func matVec(p blas64.General, v, y []float64) {
	blas64.Gemv(blas.NoTrans, 1,
		p,
		blas64.Vector{Inc: 1, Data: v},
		0,
		blas64.Vector{Inc: 1, Data: y})
}

// triEmitter computes emissions for the three-way HMM on branch b:
// the X side is realigned against the joint columns of the two far
// subtrees, while the presence of the internal node at the target of
// b is resampled.
type triEmitter struct {
	h  *hmm.Tri
	em *pairEmitter

	s *pmodel.State
	p *pmodel.Partition
	// far branches (directed toward the center node)
	f1, f2 int
	table  *suba.Table
	// per rate, per table row: transported far vectors and flags
	g1, g2 [][]evec
	has1   []bool
	has2   []bool
}

func newTriEmitter(s *pmodel.State, p *pmodel.Partition, d int, h *hmm.Tri) *triEmitter {
	t := s.T
	st := s.ScaledTree(p)
	after := t.BranchesAfter(d)
	f1 := t.Reverse(after[0])
	f2 := t.Reverse(after[1])

	te := &triEmitter{
		h:  h,
		em: newPairEmitter(s, p, d),
		s:  s, p: p,
		f1: f1, f2: f2,
	}
	te.table = p.Ix.GetSubAIndex([]int{f1, f2}, p.A, t)

	n := p.SM.NStates()
	nRates := p.MC.NRates()
	te.g1 = make([][]evec, nRates)
	te.g2 = make([][]evec, nRates)
	te.has1 = make([]bool, te.table.NCols())
	te.has2 = make([]bool, te.table.NCols())
	for r := 0; r < nRates; r++ {
		te.g1[r] = make([]evec, te.table.NCols())
		te.g2[r] = make([]evec, te.table.NCols())
		p1 := p.MC.P(st, t.Undirected(f1), r)
		p2 := p.MC.P(st, t.Undirected(f2), r)
		for k := 0; k < te.table.NCols(); k++ {
			n1 := te.table.Names[k][0]
			n2 := te.table.Names[k][1]
			if n1 >= 0 {
				v, e := p.CL.Vector(p.A, st, p.Ix, p.MC, f1, r, n1)
				tv := make([]float64, n)
				matVec(p1, v, tv)
				te.g1[r][k] = evec{tv, e}
				te.has1[k] = true
			}
			if n2 >= 0 {
				v, e := p.CL.Vector(p.A, st, p.Ix, p.MC, f2, r, n2)
				tv := make([]float64, n)
				matVec(p2, v, tv)
				te.g2[r][k] = evec{tv, e}
				te.has2[k] = true
			}
		}
	}
	return te
}

// N1 and N2 are the lattice dimensions.
func (te *triEmitter) N1() int { return te.em.N1() }

// N2 returns the joint far column count.
func (te *triEmitter) N2() int { return te.table.NCols() }

// farProduct multiplies the transported far vectors of table row k.
func (te *triEmitter) farProduct(r, k int, out []float64) int {
	e := 0
	for x := range out {
		out[x] = 1
	}
	if te.has1[k] {
		g := te.g1[r][k]
		for x := range out {
			out[x] *= g.v[x]
		}
		e += g.e
	}
	if te.has2[k] {
		g := te.g2[r][k]
		for x := range out {
			out[x] *= g.v[x]
		}
		e += g.e
	}
	return e
}

// Match is the weight of pairing X column i with far column j, with
// the center node present.
func (te *triEmitter) Match(i, j int) efloat.EFloat {
	nRates := te.em.nRates
	n := len(te.em.freq)
	buf := make([]float64, n)
	trans := make([]float64, n)
	var sum efloat.EFloat
	for r := 0; r < nRates; r++ {
		e := te.farProduct(r, j-1, buf)
		// transport X across b and join at the center node
		x := te.em.x[r][i-1]
		st := te.s.ScaledTree(te.p)
		pb := te.p.MC.P(st, te.s.T.Undirected(te.em.d), r)
		matVec(pb, x.v, trans)
		s := 0.0
		for l, f := range te.em.freq {
			s += f * trans[l] * buf[l]
		}
		sum = sum.Add(efloat.Make(s).Scale(x.e + e))
	}
	return sum.MulFloat(1 / float64(nRates))
}

// Emit1 is the weight of an X-only column (node presence does not
// change the substitution factor).
func (te *triEmitter) Emit1(i int) efloat.EFloat { return te.em.Emit1(i) }

// Emit2 is the weight of a far-only column rooted at the center node.
func (te *triEmitter) Emit2(j int) efloat.EFloat {
	nRates := te.em.nRates
	n := len(te.em.freq)
	buf := make([]float64, n)
	var sum efloat.EFloat
	for r := 0; r < nRates; r++ {
		e := te.farProduct(r, j-1, buf)
		s := 0.0
		for l, f := range te.em.freq {
			s += f * buf[l]
		}
		sum = sum.Add(efloat.Make(s).Scale(e))
	}
	return sum.MulFloat(1 / float64(nRates))
}

// Legal2Absent reports whether a far-only column can drop the center
// node: only when exactly one far subtree contributes.
func (te *triEmitter) Legal2Absent(j int) bool {
	return te.has1[j-1] != te.has2[j-1]
}

// triLattice wraps the tri emitter to present the plain Emitter2
// interface; state legality is enforced through the allowed mask.
type triLattice struct{ te *triEmitter }

func (tl triLattice) Match(i, j int) efloat.EFloat { return tl.te.Match(i, j) }
func (tl triLattice) Emit1(i int) efloat.EFloat    { return tl.te.Emit1(i) }
func (tl triLattice) Emit2(j int) efloat.EFloat    { return tl.te.Emit2(j) }

// triAllowed masks tri states that would disconnect the column.
func triAllowed(te *triEmitter) func(s, i, j int) bool {
	return func(s, i, j int) bool {
		st := te.h.States[s]
		if st.Pair == hmm.G2 && !st.Present {
			return te.Legal2Absent(j)
		}
		return true
	}
}
