package smodel

import (
	"math"
	"testing"

	"github.com/gonum/matrix/mat64"

	"bitbucket.org/Davydov/treeali/bio"
)

const smallDiff = 1e-9

func rowSums(q *mat64.Dense) []float64 {
	r, c := q.Dims()
	res := make([]float64, r)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			res[i] += q.At(i, j)
		}
	}
	return res
}

func TestJCGenerator(tst *testing.T) {
	m := NewJC(bio.DNA())
	em, err := m.EM()
	if err != nil {
		tst.Fatal("eigen failed:", err)
	}
	for i, s := range rowSums(em.Q) {
		if math.Abs(s) > smallDiff {
			tst.Error("row", i, "sums to", s)
		}
	}
	// normalized: mean rate 1
	rate := 0.0
	for i, f := range m.Frequencies() {
		rate -= f * em.Q.At(i, i)
	}
	if math.Abs(rate-1) > smallDiff {
		tst.Error("mean rate is", rate)
	}
}

func TestExpProperties(tst *testing.T) {
	m := NewHKY(bio.DNA())
	m.Kappa = 3
	em, err := m.EM()
	if err != nil {
		tst.Fatal(err)
	}
	cd := mat64.NewDense(4, 4, nil)
	p, err := em.Exp(cd, 0.2)
	if err != nil {
		tst.Fatal(err)
	}
	for i := 0; i < 4; i++ {
		sum := 0.0
		for j := 0; j < 4; j++ {
			v := p.At(i, j)
			if v < 0 {
				tst.Error("negative transition probability")
			}
			sum += v
		}
		if math.Abs(sum-1) > 1e-8 {
			tst.Error("row", i, "of P sums to", sum)
		}
	}
	// P(t) for t -> 0 approaches identity
	p0, err := em.Exp(cd, 1e-9)
	if err != nil {
		tst.Fatal(err)
	}
	for i := 0; i < 4; i++ {
		if math.Abs(p0.At(i, i)-1) > 1e-6 {
			tst.Error("P(0) is not the identity")
		}
	}
}

func TestDetailedBalance(tst *testing.T) {
	m := NewGTR(bio.DNA())
	m.Rates = [6]float64{1, 2, 3, 1.5, 0.5, 1}
	m.SetFrequencies([]float64{0.1, 0.2, 0.3, 0.4})
	em, err := m.EM()
	if err != nil {
		tst.Fatal(err)
	}
	f := m.Frequencies()
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			d := f[i]*em.Q.At(i, j) - f[j]*em.Q.At(j, i)
			if math.Abs(d) > smallDiff {
				tst.Error("detailed balance violated at", i, j)
			}
		}
	}
}

func TestRateClasses(tst *testing.T) {
	rates := RateClasses(4, 0.5)
	if len(rates) != 4 {
		tst.Fatal("expected 4 rate classes")
	}
	mean := 0.0
	for _, r := range rates {
		if r < 0 {
			tst.Error("negative rate")
		}
		mean += r
	}
	mean /= 4
	if math.Abs(mean-1) > 1e-6 {
		tst.Error("rates should have mean 1, got", mean)
	}
	if len(RateClasses(1, 0.5)) != 1 {
		tst.Error("single class expected")
	}
}

func TestObservedFrequencies(tst *testing.T) {
	a := bio.DNA()
	rows := [][]int{{0, 0, 1, 2}, {0, 3, bio.Gap, 1}}
	f := ObservedFrequencies(a, rows)
	sum := 0.0
	for _, v := range f {
		if v <= 0 {
			tst.Error("zero frequency despite pseudocounts")
		}
		sum += v
	}
	if math.Abs(sum-1) > smallDiff {
		tst.Error("frequencies sum to", sum)
	}
	if f[0] <= f[3] {
		tst.Error("A should be the most frequent letter")
	}
}
