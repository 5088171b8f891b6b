package imodel

import (
	"math"
	"testing"

	"bitbucket.org/Davydov/treeali/optimize"
)

func TestPairHMMCache(tst *testing.T) {
	m := New()
	h1 := m.PairHMM()
	h2 := m.PairHMM()
	if h1 != h2 {
		tst.Error("HMM should be cached between calls")
	}

	var pars optimize.FloatParameters
	m.AddParameters(optimize.BasicFloatParameterGenerator, &pars, "")
	if len(pars) != 3 {
		tst.Fatal("expected delta, epsilon and tau")
	}
	idx := pars.WithExtension("epsilon")
	if len(idx) != 1 {
		tst.Fatal("epsilon not registered")
	}
	pars[idx[0]].Set(0.42)
	if m.Epsilon != 0.42 {
		tst.Error("parameter not bound to the model field")
	}
	h3 := m.PairHMM()
	if h3 == h1 {
		tst.Error("parameter change did not rebuild the HMM")
	}
	if math.Abs(h3.Epsilon-0.42) > 1e-12 {
		tst.Error("new HMM does not carry the new epsilon")
	}
}

func TestTauFixed(tst *testing.T) {
	m := New()
	var pars optimize.FloatParameters
	m.AddParameters(optimize.BasicFloatParameterGenerator, &pars, "")
	idx := pars.WithExtension("tau")
	if len(idx) != 1 || !pars[idx[0]].Fixed() {
		tst.Error("tau should be registered fixed")
	}
}

func TestCopy(tst *testing.T) {
	m := New()
	c := m.Copy()
	c.Delta = 0.2
	if m.Delta == 0.2 {
		tst.Error("copy shares state")
	}
}
