package optimize

import (
	"math"
)

// Priors are log-density functions of a single value.

// UniformPrior returns a uniform log-prior on [min, max]; incmin and
// incmax control whether the boundaries are allowed.
func UniformPrior(min, max float64, incmin, incmax bool) func(float64) float64 {
	if max <= min {
		panic("max <= min")
	}
	return func(x float64) float64 {
		if (incmin && x < min) ||
			(!incmin && x <= min) ||
			(incmax && x > max) ||
			(!incmax && x >= max) {
			return math.Inf(-1)
		}
		return -math.Log(max - min)
	}
}

// GammaPrior returns a gamma log-prior with the given shape and scale.
func GammaPrior(shape, scale float64, inczero bool) func(float64) float64 {
	if shape <= 0 || scale <= 0 {
		panic("shape and scale of gamma distribution must be > 0")
	}
	return func(x float64) float64 {
		if x < 0 || (x == 0 && !inczero) {
			return math.Inf(-1)
		}
		g, _ := math.Lgamma(shape)
		return (shape-1)*math.Log(x) - x/scale - shape*math.Log(scale) - g
	}
}

// ExponentialPrior returns an exponential log-prior.
func ExponentialPrior(rate float64, inczero bool) func(float64) float64 {
	if rate <= 0 {
		panic("exponential rate should be > 0")
	}
	return func(x float64) float64 {
		if x < 0 || (x == 0 && !inczero) {
			return math.Inf(-1)
		}
		return math.Log(rate) - rate*x
	}
}

// BetaPrior returns a beta log-prior on (0, 1).
func BetaPrior(p, q float64) func(float64) float64 {
	if p <= 0 || q <= 0 {
		panic("beta shape parameters must be > 0")
	}
	lgp, _ := math.Lgamma(p)
	lgq, _ := math.Lgamma(q)
	lgpq, _ := math.Lgamma(p + q)
	lnB := lgp + lgq - lgpq
	return func(x float64) float64 {
		if x <= 0 || x >= 1 {
			return math.Inf(-1)
		}
		return (p-1)*math.Log(x) + (q-1)*math.Log(1-x) - lnB
	}
}

// NormalPrior returns a normal log-prior.
func NormalPrior(mean, sd float64) func(float64) float64 {
	if sd <= 0 {
		panic("sd should be > 0")
	}
	c := -0.5*math.Log(2*math.Pi) - math.Log(sd)
	return func(x float64) float64 {
		d := (x - mean) / sd
		return c - d*d/2
	}
}

// LogNormalPrior returns a log-normal log-prior.
func LogNormalPrior(mu, sigma float64) func(float64) float64 {
	if sigma <= 0 {
		panic("sigma should be > 0")
	}
	norm := NormalPrior(mu, sigma)
	return func(x float64) float64 {
		if x <= 0 {
			return math.Inf(-1)
		}
		return norm(math.Log(x)) - math.Log(x)
	}
}

// ProductPrior combines two log-priors (a sum in log space).
func ProductPrior(f, g func(float64) float64) func(float64) float64 {
	return func(x float64) float64 {
		return f(x) + g(x)
	}
}
