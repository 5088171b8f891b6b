package hmm

import (
	"math"
)

// The three-way HMM covers a branch plus one adjacent internal node:
// the 2-way states are crossed with the presence bit of that node.
// The five-way HMM covers a branch and its four neighbours by
// crossing with the presence bits of both endpoints. Per-column
// legality of a presence pattern (connectedness) is enforced through
// the emission weights, which are zero for illegal columns.

// TriState is a 2-way state plus the internal-node presence bit.
type TriState struct {
	Pair    int
	Present bool
}

// Tri is the three-way HMM.
type Tri struct {
	h      *Pair2
	States []TriState
	lt     [][]float64
	lstart []float64
}

// NewTri builds the three-way HMM from the two-way one. Presence runs
// persist with the gap-extension probability.
func NewTri(h *Pair2) *Tri {
	t := &Tri{
		h: h,
		States: []TriState{
			{M, true},
			{G1, true}, {G1, false},
			{G2, true}, {G2, false},
		},
	}
	n := len(t.States)
	t.lt = make([][]float64, n)
	t.lstart = make([]float64, n)
	for i, si := range t.States {
		t.lt[i] = make([]float64, n)
		for j, sj := range t.States {
			t.lt[i][j] = h.LogTrans(si.Pair, sj.Pair) + t.logPres(si.Present, sj.Present)
		}
		// stationary presence at the start
		t.lstart[i] = h.LogStart(si.Pair) + math.Log(0.5)
	}
	return t
}

func (t *Tri) logPres(p1, p2 bool) float64 {
	if p1 == p2 {
		return math.Log(t.h.Epsilon)
	}
	return math.Log(1 - t.h.Epsilon)
}

// NStates returns the number of emitting states.
func (t *Tri) NStates() int { return len(t.States) }

// Emits reports the emission shape of a state.
func (t *Tri) Emits(s int) (bool, bool) { return t.h.Emits(t.States[s].Pair) }

// LogTrans returns the log transition probability.
func (t *Tri) LogTrans(s1, s2 int) float64 { return t.lt[s1][s2] }

// LogStart returns the log start probability.
func (t *Tri) LogStart(s int) float64 { return t.lstart[s] }

// LogEnd returns the log end probability.
func (t *Tri) LogEnd(s int) float64 { return t.h.LogEnd(t.States[s].Pair) }

// FiveState is a 2-way state plus the presence bits of the two branch
// endpoints.
type FiveState struct {
	Pair     int
	Present1 bool
	Present2 bool
}

// Five is the five-way HMM.
type Five struct {
	h      *Pair2
	States []FiveState
	lt     [][]float64
	lstart []float64
}

// NewFive builds the five-way HMM. A match column requires both
// endpoints present; a one-sided column may drop the far endpoint
// only together with the near one.
func NewFive(h *Pair2) *Five {
	f := &Five{
		h: h,
		States: []FiveState{
			{M, true, true},
			{G1, true, true}, {G1, true, false}, {G1, false, false},
			{G2, true, true}, {G2, false, true}, {G2, false, false},
		},
	}
	n := len(f.States)
	f.lt = make([][]float64, n)
	f.lstart = make([]float64, n)
	for i, si := range f.States {
		f.lt[i] = make([]float64, n)
		for j, sj := range f.States {
			f.lt[i][j] = h.LogTrans(si.Pair, sj.Pair) +
				f.logPres(si.Present1, sj.Present1) +
				f.logPres(si.Present2, sj.Present2)
		}
		f.lstart[i] = h.LogStart(si.Pair) + 2*math.Log(0.5)
	}
	return f
}

func (f *Five) logPres(p1, p2 bool) float64 {
	if p1 == p2 {
		return math.Log(f.h.Epsilon)
	}
	return math.Log(1 - f.h.Epsilon)
}

// NStates returns the number of emitting states.
func (f *Five) NStates() int { return len(f.States) }

// Emits reports the emission shape of a state.
func (f *Five) Emits(s int) (bool, bool) { return f.h.Emits(f.States[s].Pair) }

// LogTrans returns the log transition probability.
func (f *Five) LogTrans(s1, s2 int) float64 { return f.lt[s1][s2] }

// LogStart returns the log start probability.
func (f *Five) LogStart(s int) float64 { return f.lstart[s] }

// LogEnd returns the log end probability.
func (f *Five) LogEnd(s int) float64 { return f.h.LogEnd(f.States[s].Pair) }
