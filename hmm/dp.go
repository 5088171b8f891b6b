package hmm

import (
	"math/rand"

	"bitbucket.org/Davydov/treeali/efloat"
)

// Emitter2 supplies emission weights for a two-sequence lattice.
// Positions are 1-based: Match(i, j) is the weight of aligning the
// i-th column of sequence 1 with the j-th column of sequence 2.
type Emitter2 interface {
	Match(i, j int) efloat.EFloat
	Emit1(i int) efloat.EFloat
	Emit2(j int) efloat.EFloat
}

// Lattice2 is the forward matrix of a PairHMM over a 2-D lattice.
type Lattice2 struct {
	h      PairHMM
	em     Emitter2
	n1, n2 int
	// a[i][j][s]: total weight of paths consuming i and j
	// positions and ending in state s
	a [][][]efloat.EFloat
	// masked transitions (alignment constraints); nil means all
	// transitions allowed
	allowed func(s, i, j int) bool
}

// emit returns the emission weight of a state consuming up to
// positions (i, j).
func (l *Lattice2) emit(s, i, j int) efloat.EFloat {
	if l.allowed != nil && !l.allowed(s, i, j) {
		return efloat.Zero
	}
	e1, e2 := l.h.Emits(s)
	switch {
	case e1 && e2:
		return l.em.Match(i, j)
	case e1:
		return l.em.Emit1(i)
	case e2:
		return l.em.Emit2(j)
	}
	return efloat.One
}

// Forward2 fills the forward matrix for sequences of n1 and n2
// columns. The allowed mask is optional.
func Forward2(h PairHMM, n1, n2 int, em Emitter2, allowed func(s, i, j int) bool) *Lattice2 {
	l := &Lattice2{h: h, em: em, n1: n1, n2: n2, allowed: allowed}
	ns := h.NStates()
	l.a = make([][][]efloat.EFloat, n1+1)
	for i := 0; i <= n1; i++ {
		l.a[i] = make([][]efloat.EFloat, n2+1)
		for j := 0; j <= n2; j++ {
			l.a[i][j] = make([]efloat.EFloat, ns)
		}
	}

	for i := 0; i <= n1; i++ {
		for j := 0; j <= n2; j++ {
			for s := 0; s < ns; s++ {
				e1, e2 := h.Emits(s)
				pi, pj := i, j
				if e1 {
					pi--
				}
				if e2 {
					pj--
				}
				if pi < 0 || pj < 0 || (!e1 && !e2) {
					continue
				}
				var sum efloat.EFloat
				if pi == 0 && pj == 0 {
					sum = efloat.MakeLog(h.LogStart(s))
				}
				for sp := 0; sp < ns; sp++ {
					prev := l.a[pi][pj][sp]
					if prev.IsZero() {
						continue
					}
					sum = sum.Add(prev.Mul(efloat.MakeLog(h.LogTrans(sp, s))))
				}
				if sum.IsZero() {
					continue
				}
				l.a[i][j][s] = sum.Mul(l.emit(s, i, j))
			}
		}
	}
	return l
}

// Z returns the total forward weight including the end transition.
func (l *Lattice2) Z() efloat.EFloat {
	var z efloat.EFloat
	if l.n1 == 0 && l.n2 == 0 {
		return efloat.One
	}
	for s := 0; s < l.h.NStates(); s++ {
		z = z.Add(l.a[l.n1][l.n2][s].Mul(efloat.MakeLog(l.h.LogEnd(s))))
	}
	return z
}

// SampleCategorical draws an index proportionally to the weights.
func SampleCategorical(w []efloat.EFloat) int {
	total := efloat.Sum(w)
	if total.IsZero() {
		log.Fatal("sampling from an all-zero distribution")
	}
	r := rand.Float64()
	acc := 0.0
	for i, x := range w {
		if x.IsZero() {
			continue
		}
		acc += x.Div(total).Float()
		if r < acc {
			return i
		}
	}
	// guard against rounding
	for i := len(w) - 1; i >= 0; i-- {
		if !w[i].IsZero() {
			return i
		}
	}
	return 0
}

// Sample draws a state path from the conditional distribution given
// the forward matrix, together with the path weight (its emission x
// transition product including start and end).
func (l *Lattice2) Sample() (path []int, weight efloat.EFloat) {
	ns := l.h.NStates()
	if l.n1 == 0 && l.n2 == 0 {
		return nil, efloat.One
	}

	// final state
	w := make([]efloat.EFloat, ns)
	for s := 0; s < ns; s++ {
		w[s] = l.a[l.n1][l.n2][s].Mul(efloat.MakeLog(l.h.LogEnd(s)))
	}
	s := SampleCategorical(w)
	weight = efloat.MakeLog(l.h.LogEnd(s)).Mul(l.emit(s, l.n1, l.n2))

	rev := []int{s}
	i, j := l.n1, l.n2
	for {
		e1, e2 := l.h.Emits(s)
		if e1 {
			i--
		}
		if e2 {
			j--
		}
		if i == 0 && j == 0 {
			weight = weight.Mul(efloat.MakeLog(l.h.LogStart(s)))
			break
		}
		for sp := 0; sp < ns; sp++ {
			w[sp] = l.a[i][j][sp].Mul(efloat.MakeLog(l.h.LogTrans(sp, s)))
		}
		sp := SampleCategorical(w)
		weight = weight.Mul(efloat.MakeLog(l.h.LogTrans(sp, s))).Mul(l.emit(sp, i, j))
		s = sp
		rev = append(rev, s)
	}

	path = make([]int, len(rev))
	for k, v := range rev {
		path[len(rev)-1-k] = v
	}
	return path, weight
}

// PathWeight returns the emission x transition product of a given
// path through the lattice, including start and end transitions.
func (l *Lattice2) PathWeight(path []int) efloat.EFloat {
	if len(path) == 0 {
		return efloat.One
	}
	w := efloat.MakeLog(l.h.LogStart(path[0]))
	i, j := 0, 0
	for k, s := range path {
		if k > 0 {
			w = w.Mul(efloat.MakeLog(l.h.LogTrans(path[k-1], s)))
		}
		e1, e2 := l.h.Emits(s)
		if e1 {
			i++
		}
		if e2 {
			j++
		}
		w = w.Mul(l.emit(s, i, j))
	}
	if i != l.n1 || j != l.n2 {
		log.Fatalf("path consumes %d/%d positions, lattice is %d/%d", i, j, l.n1, l.n2)
	}
	return w.Mul(efloat.MakeLog(l.h.LogEnd(path[len(path)-1])))
}

// Viterbi returns the maximum-weight path through the lattice.
func (l *Lattice2) Viterbi() []int {
	ns := l.h.NStates()
	if l.n1 == 0 && l.n2 == 0 {
		return nil
	}
	// v[i][j][s] best weight; back[i][j][s] predecessor state or
	// -1 for the start
	v := make([][][]efloat.EFloat, l.n1+1)
	back := make([][][]int, l.n1+1)
	for i := 0; i <= l.n1; i++ {
		v[i] = make([][]efloat.EFloat, l.n2+1)
		back[i] = make([][]int, l.n2+1)
		for j := 0; j <= l.n2; j++ {
			v[i][j] = make([]efloat.EFloat, ns)
			back[i][j] = make([]int, ns)
		}
	}
	for i := 0; i <= l.n1; i++ {
		for j := 0; j <= l.n2; j++ {
			for s := 0; s < ns; s++ {
				e1, e2 := l.h.Emits(s)
				pi, pj := i, j
				if e1 {
					pi--
				}
				if e2 {
					pj--
				}
				if pi < 0 || pj < 0 || (!e1 && !e2) {
					continue
				}
				var best efloat.EFloat
				bestS := -1
				if pi == 0 && pj == 0 {
					best = efloat.MakeLog(l.h.LogStart(s))
				}
				for sp := 0; sp < ns; sp++ {
					cand := v[pi][pj][sp].Mul(efloat.MakeLog(l.h.LogTrans(sp, s)))
					if best.Less(cand) {
						best = cand
						bestS = sp
					}
				}
				v[i][j][s] = best.Mul(l.emit(s, i, j))
				back[i][j][s] = bestS
			}
		}
	}
	var best efloat.EFloat
	bestS := 0
	for s := 0; s < ns; s++ {
		cand := v[l.n1][l.n2][s].Mul(efloat.MakeLog(l.h.LogEnd(s)))
		if best.Less(cand) {
			best = cand
			bestS = s
		}
	}
	rev := []int{bestS}
	i, j, s := l.n1, l.n2, bestS
	for {
		sp := back[i][j][s]
		e1, e2 := l.h.Emits(s)
		if e1 {
			i--
		}
		if e2 {
			j--
		}
		if sp < 0 || (i == 0 && j == 0) {
			break
		}
		rev = append(rev, sp)
		s = sp
	}
	path := make([]int, len(rev))
	for k, v := range rev {
		path[len(rev)-1-k] = v
	}
	return path
}
