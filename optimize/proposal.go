package optimize

import (
	"math"
	"math/rand"
	"sort"
)

// Rand returns a random value in the range [0, 1], including 1.
func Rand() float64 {
	// 1.0 is not included and we would like to be symmetric
	r := float64(1)
	for r > 0.999 {
		r = rand.Float64()
	}
	return r / 0.999
}

// UniformProposal returns uniform proposal function.
func UniformProposal(width float64) func(float64) float64 {
	if width <= 0 {
		panic("width should be non-negative")
	}
	return func(x float64) float64 {
		return x + Rand()*width - width/2
	}
}

// UniformGlobalProposal returns uniform proposal function given max
// and min.
func UniformGlobalProposal(min, max float64) func(float64) float64 {
	if max <= min {
		panic("max <= min")
	}
	return func(x float64) float64 {
		return min + Rand()*(max-min)
	}
}

// NormalProposal returns normal proposal function.
func NormalProposal(sd float64) func(float64) float64 {
	if sd <= 0 {
		panic("sd should be >= 0")
	}
	return func(x float64) float64 {
		return x + rand.NormFloat64()*sd
	}
}

// CauchyProposal returns a Cauchy random-walk proposal; the heavy
// tails allow occasional long jumps.
func CauchyProposal(scale float64) func(float64) float64 {
	if scale <= 0 {
		panic("scale should be > 0")
	}
	return func(x float64) float64 {
		return x + scale*math.Tan(math.Pi*(rand.Float64()-0.5))
	}
}

// LogScaled wraps a proposal so it operates on the log of the value.
// The proposal stays symmetric on the log scale; the corresponding
// Jacobian term is log(new/old).
func LogScaled(f func(float64) float64) func(float64) float64 {
	return func(x float64) float64 {
		return math.Exp(f(math.Log(x)))
	}
}

// Between wraps a proposal so the result is reflected into
// [min, max].
func Between(min, max float64, f func(float64) float64) func(float64) float64 {
	if max <= min {
		panic("max <= min")
	}
	return func(x float64) float64 {
		y := f(x)
		for y < min || y > max {
			if y < min {
				y = min + (min - y)
			}
			if y > max {
				y = max - (y - max)
			}
		}
		return y
	}
}

// MoreThan reflects the proposal result to stay above the bound.
func MoreThan(min float64, f func(float64) float64) func(float64) float64 {
	return func(x float64) float64 {
		y := f(x)
		for y < min {
			y = min + (min - y)
		}
		return y
	}
}

// LessThan reflects the proposal result to stay below the bound.
func LessThan(max float64, f func(float64) float64) func(float64) float64 {
	return func(x float64) float64 {
		y := f(x)
		for y > max {
			y = max - (y - max)
		}
		return y
	}
}

// DiscreteProposal returns function returning a random integer
// converted to float64.
func DiscreteProposal(state int, nstates int) (newstate int) {
	if nstates <= 1 {
		panic("number of states should be at least 1")
	}
	if state < 0 {
		panic("incorrect state")
	}
	newstate = rand.Intn(nstates - 1)
	if newstate >= state {
		newstate++
	}
	return
}

// sampleGamma draws from Gamma(shape, 1) by Marsaglia-Tsang.
func sampleGamma(shape float64) float64 {
	if shape < 1 {
		u := rand.Float64()
		return sampleGamma(shape+1) * math.Pow(u, 1/shape)
	}
	d := shape - 1.0/3
	c := 1 / math.Sqrt(9*d)
	for {
		x := rand.NormFloat64()
		v := 1 + c*x
		if v <= 0 {
			continue
		}
		v = v * v * v
		u := rand.Float64()
		if u < 1-0.0331*x*x*x*x {
			return d * v
		}
		if math.Log(u) < 0.5*x*x+d*(1-v+math.Log(v)) {
			return d * v
		}
	}
}

func lnGamma(x float64) float64 {
	g, _ := math.Lgamma(x)
	return g
}

// DirichletProposal resamples a simplex in place from a Dirichlet
// distribution centered at the current point with concentration n,
// preserving the total. It returns the log-Hastings ratio.
func DirichletProposal(x []float64, n float64) float64 {
	total := 0.0
	for _, v := range x {
		total += v
	}
	old := append([]float64(nil), x...)

	// draw y ~ Dirichlet(n * old/total)
	sum := 0.0
	for i := range x {
		x[i] = sampleGamma(n * old[i] / total)
		sum += x[i]
	}
	for i := range x {
		x[i] = x[i] / sum * total
	}

	// log q(old -> new) uses parameters from old, and vice versa
	lq := func(from, to []float64) float64 {
		l := lnGamma(n)
		for i := range from {
			a := n * from[i] / total
			l += (a-1)*math.Log(to[i]/total) - lnGamma(a)
		}
		return l
	}
	return lq(x, old) - lq(old, x)
}

// SortedProposal wraps a vector proposal so the result keeps the
// components in increasing order.
func SortedProposal(f func([]float64, float64) float64) func([]float64, float64) float64 {
	return func(x []float64, n float64) float64 {
		h := f(x, n)
		sort.Float64s(x)
		return h
	}
}
