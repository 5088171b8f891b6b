package optimize

import (
	"math"
	"testing"
)

func mkParameters() (FloatParameters, []*float64) {
	names := []string{
		"mu",
		"HKY::kappa",
		"HKY::piA",
		"HKY::piC",
		"S2::HKY::kappa",
		"delta",
		"epsilon",
	}
	var pars FloatParameters
	var vals []*float64
	for _, n := range names {
		v := new(float64)
		pars.Append(NewBasicFloatParameter(v, n))
		vals = append(vals, v)
	}
	return pars, vals
}

func TestSetValues(tst *testing.T) {
	pars, vals := mkParameters()
	in := []float64{1, 2, 3, 4, 5, 6, 7}
	if err := pars.SetValues(in); err != nil {
		tst.Error("SetValues failed:", err)
	}
	for i, v := range vals {
		if *v != in[i] {
			tst.Error("value", i, "not set")
		}
	}
	out := pars.Values(nil)
	for i := range in {
		if out[i] != in[i] {
			tst.Error("Values mismatch at", i)
		}
	}
}

func TestReadLine(tst *testing.T) {
	pars, _ := mkParameters()
	err := pars.ReadLine("10 -123.4 1 2 3 4 5 6 7")
	if err != nil {
		tst.Error("ReadLine failed:", err)
	}
	if pars[0].Get() != 1 || pars[6].Get() != 7 {
		tst.Error("ReadLine set wrong values")
	}
}

func TestWithExtension(tst *testing.T) {
	pars, _ := mkParameters()

	cases := []struct {
		pattern string
		want    []int
	}{
		{"mu", []int{0}},
		{"kappa", []int{1, 4}},
		{"HKY::kappa", []int{1, 4}},
		{"^HKY::kappa", []int{1}},
		{"^S2::HKY::kappa", []int{4}},
		{"pi*", []int{2, 3}},
		{"HKY::pi*", []int{2, 3}},
		{"^HKY::pi*", []int{2, 3}},
		{"nothing", nil},
	}
	for _, c := range cases {
		got := pars.WithExtension(c.pattern)
		if len(got) != len(c.want) {
			tst.Errorf("%s: expected %v, got %v", c.pattern, c.want, got)
			continue
		}
		for i := range got {
			if got[i] != c.want[i] {
				tst.Errorf("%s: expected %v, got %v", c.pattern, c.want, got)
			}
		}
	}
}

func TestReflect(tst *testing.T) {
	x := 0.9
	par := NewBasicFloatParameter(&x, "x")
	par.SetMin(0)
	par.SetMax(1)
	par.SetProposalFunc(func(v float64) float64 { return v + 0.3 })
	par.Propose()
	if x < 0 || x > 1 {
		tst.Error("reflection failed:", x)
	}
	if math.Abs(x-0.8) > 1e-12 {
		tst.Error("Expected 0.8, got", x)
	}
	par.Reject()
	if x != 0.9 {
		tst.Error("Reject did not restore the value")
	}
}

func TestFixed(tst *testing.T) {
	pars, _ := mkParameters()
	pars[1].SetFixed(true)
	if !pars[1].Fixed() {
		tst.Error("parameter should be fixed")
	}
	before := pars[1].Get()
	pars.Randomize()
	if pars[1].Get() != before {
		tst.Error("Randomize changed a fixed parameter")
	}
}

func TestPriors(tst *testing.T) {
	beta := BetaPrior(2, 5)
	// the density integrates to one (rough Riemann check)
	sum := 0.0
	n := 100000
	for i := 0; i < n; i++ {
		x := (float64(i) + 0.5) / float64(n)
		sum += math.Exp(beta(x)) / float64(n)
	}
	if math.Abs(sum-1) > 1e-3 {
		tst.Error("beta prior does not normalize:", sum)
	}
	if !math.IsInf(beta(0), -1) || !math.IsInf(beta(1), -1) {
		tst.Error("beta prior should vanish at the boundaries")
	}

	exp := ExponentialPrior(2, false)
	if math.Abs(exp(1)-(math.Log(2)-2)) > 1e-12 {
		tst.Error("wrong exponential density")
	}
}
