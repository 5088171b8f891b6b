package efloat

import (
	"math"
	"testing"
)

const smallDiff = 1e-12

func TestMulLog(tst *testing.T) {
	a := Make(1e-300)
	b := a
	for i := 0; i < 10; i++ {
		b = b.Mul(a)
	}
	// 1e-300^11 underflows float64 but not the scaled form
	want := 11 * math.Log(1e-300)
	if math.Abs(b.Log()-want) > 1e-6 {
		tst.Error("Expected log", want, ", got", b.Log())
	}
}

func TestAdd(tst *testing.T) {
	a := Make(3)
	b := Make(4)
	if math.Abs(a.Add(b).Float()-7) > smallDiff {
		tst.Error("3+4 != 7")
	}
	if math.Abs(Zero.Add(a).Float()-3) > smallDiff {
		tst.Error("0+3 != 3")
	}
}

func TestAddSmall(tst *testing.T) {
	a := MakeLog(-1000)
	b := MakeLog(-1000)
	s := a.Add(b)
	want := math.Log(2) - 1000
	if math.Abs(s.Log()-want) > 1e-9 {
		tst.Error("Expected", want, ", got", s.Log())
	}
}

func TestCmp(tst *testing.T) {
	if !Make(1e-10).Less(Make(1e-9)) {
		tst.Error("1e-10 should be less than 1e-9")
	}
	if Make(2).Less(Make(1)) {
		tst.Error("2 should not be less than 1")
	}
	if !Zero.Less(Make(1e-300)) {
		tst.Error("zero should be less than any positive value")
	}
}

func TestDiv(tst *testing.T) {
	a := MakeLog(-2000)
	b := MakeLog(-1999)
	r := a.Div(b).Float()
	want := math.Exp(-1)
	if math.Abs(r-want) > 1e-9 {
		tst.Error("Expected", want, ", got", r)
	}
}

func TestRoundTrip(tst *testing.T) {
	for _, x := range []float64{0, 1, 0.5, 1e10, 1e-10, 123.456} {
		if math.Abs(Make(x).Float()-x) > smallDiff*math.Max(1, x) {
			tst.Error("round trip failed for", x)
		}
	}
}
