package mcmc

import (
	"bytes"
	"math"
	"math/rand"
	"testing"

	"bitbucket.org/Davydov/treeali/optimize"
)

// priorModel is a model with a single parameter and no likelihood.
type priorModel struct {
	x     float64
	prior func(float64) float64
	pars  optimize.FloatParameters
}

func newPriorModel(x0 float64, prior func(float64) float64) *priorModel {
	m := &priorModel{x: x0, prior: prior}
	par := optimize.NewBasicFloatParameter(&m.x, "x")
	par.SetMin(0)
	par.SetMax(1)
	par.SetPriorFunc(prior)
	m.pars.Append(par)
	return m
}

func (m *priorModel) HeatedLogProb() float64 {
	return m.prior(m.x)
}

func (m *priorModel) LogPrior() float64 {
	return m.prior(m.x)
}

func (m *priorModel) Parameters() *optimize.FloatParameters {
	return &m.pars
}

// TestSliceBetaMoments samples Beta(2,5) with the slice move and
// checks the first two moments.
func TestSliceBetaMoments(tst *testing.T) {
	rand.Seed(1)
	m := newPriorModel(0.5, optimize.BetaPrior(2, 5))
	move := NewParameterSliceMove("slice_sample_x", "", 0, 0.3)
	stats := make(Stats)

	n := 1000000
	sum, sum2 := 0.0, 0.0
	for i := 0; i < n; i++ {
		move.Iterate(m, stats, 0)
		sum += m.x
		sum2 += m.x * m.x
	}
	mean := sum / float64(n)
	variance := sum2/float64(n) - mean*mean

	wantMean := 2.0 / 7
	wantVar := 2 * 5 / (7.0 * 7 * 8)
	if math.Abs(mean-wantMean) > 2e-3 {
		tst.Error("Expected mean", wantMean, ", got", mean)
	}
	if math.Abs(variance-wantVar) > 1e-3 {
		tst.Error("Expected variance", wantVar, ", got", variance)
	}
}

// TestMHBetaMoments samples the same distribution with an MH move.
func TestMHBetaMoments(tst *testing.T) {
	rand.Seed(2)
	m := newPriorModel(0.5, optimize.BetaPrior(2, 5))
	prop := &ParameterProposal{
		Index: 0,
		F:     optimize.Between(0, 1, optimize.NormalProposal(0.2)),
	}
	move := NewMHMove(prop, "MH_sample_x", "")
	stats := make(Stats)

	n := 1000000
	sum := 0.0
	for i := 0; i < n; i++ {
		move.Iterate(m, stats, 0)
		sum += m.x
	}
	mean := sum / float64(n)
	if math.Abs(mean-2.0/7) > 3e-3 {
		tst.Error("Expected mean", 2.0/7, ", got", mean)
	}
	r := stats["MH_sample_x"]
	if r == nil || r.Counts[0] != n {
		tst.Error("missing MH statistics")
	}
}

func TestEnableDisable(tst *testing.T) {
	ran := make(map[string]int)
	mk := func(name, attrs string) *SingleMove {
		return NewSingleMove(func(m Model, s Stats) { ran[name]++ }, name, attrs)
	}
	group := NewMoveAll("root")
	group.Add(1, mk("a", "topology"), true)
	group.Add(1, mk("b", "topology:lengths"), true)
	group.Add(1, mk("c", "lengths"), true)

	group.DisableName("topology")
	m := newPriorModel(0.5, optimize.BetaPrior(2, 2))
	n := group.Reset(1)
	for i := 0; i < n; i++ {
		group.Iterate(m, make(Stats), i)
	}
	if ran["a"] != 0 || ran["b"] != 0 {
		tst.Error("disabled moves ran")
	}
	if ran["c"] == 0 {
		tst.Error("enabled move did not run")
	}

	group.EnableName("b")
	n = group.Reset(1)
	for i := 0; i < n; i++ {
		group.Iterate(m, make(Stats), i)
	}
	if ran["b"] == 0 {
		tst.Error("re-enabled move did not run")
	}

	var buf bytes.Buffer
	group.ShowEnabled(&buf, 0)
	if buf.Len() == 0 {
		tst.Error("empty enabled listing")
	}
}

func TestMoveOneWeights(tst *testing.T) {
	rand.Seed(3)
	ran := make(map[string]int)
	mk := func(name string) *SingleMove {
		return NewSingleMove(func(m Model, s Stats) { ran[name]++ }, name, "")
	}
	group := NewMoveOne("one")
	group.Add(1, mk("x"), true)
	group.Add(3, mk("y"), true)

	m := newPriorModel(0.5, optimize.BetaPrior(2, 2))
	rounds := 100000
	for r := 0; r < rounds; r++ {
		n := group.Reset(1)
		for i := 0; i < n; i++ {
			group.Iterate(m, make(Stats), i)
		}
	}
	frac := float64(ran["y"]) / float64(ran["x"]+ran["y"])
	if math.Abs(frac-0.75) > 0.01 {
		tst.Error("Expected 0.75, got", frac)
	}
}

func TestDirichletSlicePreservesSum(tst *testing.T) {
	rand.Seed(4)
	vals := []float64{0.25, 0.25, 0.25, 0.25}
	var pars optimize.FloatParameters
	m := &simplexModel{vals: vals}
	for i := range vals {
		par := optimize.NewBasicFloatParameter(&m.vals[i], "p")
		par.SetMin(0)
		par.SetMax(1)
		pars.Append(par)
	}
	m.pars = pars

	move := NewDirichletSliceMove("dirichlet", "", []int{0, 1, 2, 3}, 1)
	for i := 0; i < 1000; i++ {
		move.Iterate(m, make(Stats), 0)
		sum := 0.0
		for _, v := range m.vals {
			sum += v
		}
		if math.Abs(sum-1) > 1e-9 {
			tst.Fatal("simplex sum drifted to", sum)
		}
	}
}

type simplexModel struct {
	vals []float64
	pars optimize.FloatParameters
}

func (m *simplexModel) HeatedLogProb() float64 {
	// flat density inside the simplex
	for _, v := range m.vals {
		if v <= 0 || v >= 1 {
			return math.Inf(-1)
		}
	}
	return 0
}

func (m *simplexModel) LogPrior() float64 { return m.HeatedLogProb() }

func (m *simplexModel) Parameters() *optimize.FloatParameters { return &m.pars }

func TestSubiterations(tst *testing.T) {
	rand.Seed(5)
	total := 0
	n := 100000
	for i := 0; i < n; i++ {
		total += subiterations(0.25)
	}
	frac := float64(total) / float64(n)
	if math.Abs(frac-0.25) > 0.01 {
		tst.Error("Expected 0.25, got", frac)
	}
}
