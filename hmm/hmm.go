// Package hmm provides the pairwise-alignment hidden Markov models
// (2-, 3- and 5-way) and the dynamic-programming engine used to
// resample alignments: forward sums, backward sampling and Viterbi
// over one- and two-dimensional state lattices.
package hmm

import (
	"fmt"
	"math"

	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("hmm")

// 2-way state codes. M emits one letter in each row, G1 emits only
// row 1, G2 only row 2; S and E are the boundary states.
const (
	M  = 0
	G1 = 1
	G2 = 2
	E  = 3
	S  = 4
)

// PairHMM describes an alignment HMM over two column sequences. Only
// the emitting states are numbered 0..NStates()-1; start and end are
// implicit.
type PairHMM interface {
	// NStates returns the number of emitting states.
	NStates() int
	// Emits reports which of the two sequences a state consumes.
	Emits(s int) (bool, bool)
	// LogTrans returns the log transition probability between
	// emitting states.
	LogTrans(s1, s2 int) float64
	// LogStart returns the log probability of entering s from the
	// start state.
	LogStart(s int) float64
	// LogEnd returns the log probability of entering the end
	// state from s.
	LogEnd(s int) float64
}

// Pair2 is the two-way HMM over states M, G1, G2 derived from the
// indel parameters: gap-open delta, gap-extend epsilon and end
// probability tau.
type Pair2 struct {
	Delta, Epsilon, Tau float64
	lt                  [3][3]float64
	lstart              [3]float64
	lend                [3]float64
}

// NewPair2 builds the two-way HMM transition matrix.
func NewPair2(delta, epsilon, tau float64) (*Pair2, error) {
	if delta <= 0 || epsilon <= 0 || tau <= 0 ||
		2*delta+tau >= 1 || epsilon+tau >= 1 {
		return nil, fmt.Errorf("illegal indel parameters delta=%v epsilon=%v tau=%v",
			delta, epsilon, tau)
	}
	h := &Pair2{Delta: delta, Epsilon: epsilon, Tau: tau}

	fromMatch := [3]float64{1 - 2*delta - tau, delta, delta}
	h.lstart = logRow(fromMatch)
	h.lt[M] = h.lstart
	// After a gap run ends, the choice of the next state follows
	// the match row renormalized over the remaining mass.
	h.lt[G1] = logRow([3]float64{(1 - epsilon - tau) * (1 - delta), epsilon, (1 - epsilon - tau) * delta})
	h.lt[G2] = logRow([3]float64{(1 - epsilon - tau) * (1 - delta), (1 - epsilon - tau) * delta, epsilon})
	h.lend = [3]float64{math.Log(tau), math.Log(tau), math.Log(tau)}
	return h, nil
}

func logRow(r [3]float64) (l [3]float64) {
	for i, v := range r {
		l[i] = math.Log(v)
	}
	return
}

// NStates returns 3.
func (h *Pair2) NStates() int { return 3 }

// Emits reports the emission shape of a state.
func (h *Pair2) Emits(s int) (bool, bool) {
	switch s {
	case M:
		return true, true
	case G1:
		return true, false
	case G2:
		return false, true
	}
	return false, false
}

// LogTrans returns the log transition probability.
func (h *Pair2) LogTrans(s1, s2 int) float64 { return h.lt[s1][s2] }

// LogStart returns the log start probability.
func (h *Pair2) LogStart(s int) float64 { return h.lstart[s] }

// LogEnd returns the log end probability.
func (h *Pair2) LogEnd(s int) float64 { return h.lend[s] }

// PathLogProb returns the log probability of a complete path of
// emitting states, including the start and end transitions.
func PathLogProb(h PairHMM, path []int) float64 {
	if len(path) == 0 {
		// an empty alignment goes straight from start to end;
		// approximate with the end probability of a match
		return h.LogEnd(0)
	}
	l := h.LogStart(path[0])
	for i := 1; i < len(path); i++ {
		l += h.LogTrans(path[i-1], path[i])
	}
	return l + h.LogEnd(path[len(path)-1])
}

// PairPath extracts the 2-way state path of rows (i, j) of an
// alignment presence matrix: for every column where at least one of
// the two rows is present, M, G1 or G2 is appended.
func PairPath(present1, present2 []bool) []int {
	path := make([]int, 0, len(present1))
	for c := range present1 {
		switch {
		case present1[c] && present2[c]:
			path = append(path, M)
		case present1[c]:
			path = append(path, G1)
		case present2[c]:
			path = append(path, G2)
		}
	}
	return path
}
