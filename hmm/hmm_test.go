package hmm

import (
	"math"
	"math/rand"
	"testing"

	"bitbucket.org/Davydov/treeali/efloat"
)

// testEmitter returns deterministic pseudo-random emission weights.
type testEmitter struct{}

func (testEmitter) Match(i, j int) efloat.EFloat {
	return efloat.Make(0.1 + 0.07*float64(i) + 0.013*float64(j))
}

func (testEmitter) Emit1(i int) efloat.EFloat {
	return efloat.Make(0.2 + 0.05*float64(i))
}

func (testEmitter) Emit2(j int) efloat.EFloat {
	return efloat.Make(0.15 + 0.04*float64(j))
}

// bruteForce sums emission x transition products over every path
// consuming (n1, n2) positions.
func bruteForce(h PairHMM, n1, n2 int, em testEmitter) float64 {
	var rec func(prev, i, j int, w float64) float64
	rec = func(prev, i, j int, w float64) float64 {
		if i == n1 && j == n2 {
			return w * math.Exp(h.LogEnd(prev))
		}
		total := 0.0
		for s := 0; s < h.NStates(); s++ {
			e1, e2 := h.Emits(s)
			ni, nj := i, j
			if e1 {
				ni++
			}
			if e2 {
				nj++
			}
			if ni > n1 || nj > n2 || (ni == i && nj == j) {
				continue
			}
			var t float64
			if prev < 0 {
				t = math.Exp(h.LogStart(s))
			} else {
				t = math.Exp(h.LogTrans(prev, s))
			}
			var emit float64
			switch {
			case e1 && e2:
				emit = em.Match(ni, nj).Float()
			case e1:
				emit = em.Emit1(ni).Float()
			default:
				emit = em.Emit2(nj).Float()
			}
			total += rec(s, ni, nj, w*t*emit)
		}
		return total
	}
	return rec(-1, 0, 0, 1)
}

func TestForwardMatchesBruteForce(tst *testing.T) {
	h, err := NewPair2(0.02, 0.1, 0.01)
	if err != nil {
		tst.Fatal(err)
	}
	for _, dims := range [][2]int{{2, 2}, {3, 2}, {4, 4}, {0, 3}} {
		em := testEmitter{}
		lat := Forward2(h, dims[0], dims[1], em, nil)
		z := lat.Z().Float()
		bf := bruteForce(h, dims[0], dims[1], em)
		if math.Abs(z-bf) > 1e-9*math.Max(z, bf) {
			tst.Errorf("forward %v: got %g, brute force %g", dims, z, bf)
		}
	}
}

func TestSampledPathWeight(tst *testing.T) {
	rand.Seed(1)
	h, err := NewPair2(0.05, 0.3, 0.01)
	if err != nil {
		tst.Fatal(err)
	}
	em := testEmitter{}
	lat := Forward2(h, 4, 3, em, nil)
	for k := 0; k < 20; k++ {
		path, w := lat.Sample()
		w2 := lat.PathWeight(path)
		if math.Abs(w.Log()-w2.Log()) > 1e-9 {
			tst.Error("sampled path weight mismatch:", w.Log(), w2.Log())
		}
	}
}

func TestViterbiBest(tst *testing.T) {
	rand.Seed(2)
	h, err := NewPair2(0.05, 0.3, 0.01)
	if err != nil {
		tst.Fatal(err)
	}
	em := testEmitter{}
	lat := Forward2(h, 3, 3, em, nil)
	best := lat.PathWeight(lat.Viterbi())
	for k := 0; k < 50; k++ {
		path, _ := lat.Sample()
		if best.Less(lat.PathWeight(path)) {
			tst.Fatal("sampled path beats the Viterbi path")
		}
	}
}

func TestTransitionRowsNormalized(tst *testing.T) {
	h, err := NewPair2(0.1, 0.4, 0.02)
	if err != nil {
		tst.Fatal(err)
	}
	for s1 := 0; s1 < 3; s1++ {
		sum := math.Exp(h.LogEnd(s1))
		for s2 := 0; s2 < 3; s2++ {
			sum += math.Exp(h.LogTrans(s1, s2))
		}
		if math.Abs(sum-1) > 1e-12 {
			tst.Error("transition row", s1, "sums to", sum)
		}
	}
}

func TestPairPath(tst *testing.T) {
	p1 := []bool{true, true, false, true, false}
	p2 := []bool{true, false, true, true, false}
	path := PairPath(p1, p2)
	want := []int{M, G1, G2, M}
	if len(path) != len(want) {
		tst.Fatal("wrong path length")
	}
	for i := range want {
		if path[i] != want[i] {
			tst.Error("wrong state at", i)
		}
	}
}

func TestTriStates(tst *testing.T) {
	h, err := NewPair2(0.05, 0.3, 0.01)
	if err != nil {
		tst.Fatal(err)
	}
	tri := NewTri(h)
	if tri.NStates() != 5 {
		tst.Error("expected 5 tri states, got", tri.NStates())
	}
	five := NewFive(h)
	if five.NStates() != 7 {
		tst.Error("expected 7 five-way states, got", five.NStates())
	}
	// every match state requires the node present
	for _, st := range tri.States {
		if st.Pair == M && !st.Present {
			tst.Error("tri match state without the node present")
		}
	}
}

func TestSampleCategorical(tst *testing.T) {
	rand.Seed(3)
	w := []efloat.EFloat{efloat.Make(1), efloat.Make(3)}
	counts := [2]int{}
	n := 100000
	for i := 0; i < n; i++ {
		counts[SampleCategorical(w)]++
	}
	frac := float64(counts[1]) / float64(n)
	if math.Abs(frac-0.75) > 0.01 {
		tst.Error("expected 0.75, got", frac)
	}
}
