package mcmc

import (
	"math"
	"math/rand"
)

// sliceSample performs one update of a univariate slice sampler with
// stepping out and shrinkage (Neal 2003). f returns the log density;
// w is the initial window width. It returns the new point and the
// number of density evaluations.
func sliceSample(x0 float64, f func(float64) float64, w float64) (float64, int) {
	tries := 0
	eval := func(x float64) float64 {
		tries++
		return f(x)
	}

	ly := eval(x0) + math.Log(rand.Float64())

	// stepping out
	u := rand.Float64()
	left := x0 - w*u
	right := left + w
	for eval(left) > ly {
		left -= w
		if tries > 200 {
			break
		}
	}
	for eval(right) > ly {
		right += w
		if tries > 200 {
			break
		}
	}

	// shrinkage
	for {
		x := left + rand.Float64()*(right-left)
		if eval(x) > ly {
			return x, tries
		}
		if x < x0 {
			left = x
		} else {
			right = x
		}
		if right-left < 1e-14 {
			return x0, tries
		}
	}
}

// SliceSample exposes one slice-sampler update for moves implemented
// outside this package (e.g. the tree-walking branch-length move).
func SliceSample(x0 float64, f func(float64) float64, w float64) (float64, int) {
	return sliceSample(x0, f, w)
}

// identity transforms for untransformed slice moves.
func identity(x float64) float64 { return x }

// TransformEpsilon maps (0,1) to the real line.
func TransformEpsilon(e float64) float64 { return math.Log(e / (1 - e)) }

// InverseEpsilon is the inverse of TransformEpsilon.
func InverseEpsilon(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

// TransformLog and InverseLog reparameterize positive parameters.
func TransformLog(x float64) float64 { return math.Log(x) }

// InverseLog is the inverse of TransformLog.
func InverseLog(x float64) float64 { return math.Exp(x) }

// sliceLearn accumulates movement statistics to tune W.
type sliceLearn struct {
	learning      bool
	nTries        int
	totalMovement float64
}

func (l *sliceLearn) observe(old, new float64) {
	if l.learning {
		l.nTries++
		l.totalMovement += math.Abs(new - old)
	}
}

func (l *sliceLearn) tunedW(w float64) float64 {
	if l.nTries == 0 {
		return w
	}
	// the optimal slice window is close to twice the average
	// successful movement
	newW := 2 * l.totalMovement / float64(l.nTries)
	if newW <= 0 {
		return w
	}
	return newW
}

// ParameterSliceMove is a 1-D slice sampler on an indexed parameter,
// optionally over a reparameterized scale, with window learning.
type ParameterSliceMove struct {
	baseMove
	index     int
	W         float64
	transform func(float64) float64
	inverse   func(float64) float64
	learn     sliceLearn
}

// NewParameterSliceMove creates a slice move on parameter index with
// window width w.
func NewParameterSliceMove(name, attributes string, index int, w float64) *ParameterSliceMove {
	return &ParameterSliceMove{
		baseMove:  newBase(name, attributes),
		index:     index,
		W:         w,
		transform: identity,
		inverse:   identity,
	}
}

// NewTransformedSliceMove creates a slice move on a reparameterized
// scale.
func NewTransformedSliceMove(name, attributes string, index int, w float64,
	transform, inverse func(float64) float64) *ParameterSliceMove {
	m := NewParameterSliceMove(name, attributes, index, w)
	m.transform = transform
	m.inverse = inverse
	return m
}

// Reset sets the round budget.
func (sm *ParameterSliceMove) Reset(l float64) int {
	n := subiterations(l)
	sm.iterations += float64(n)
	return n
}

// StartLearning begins window learning.
func (sm *ParameterSliceMove) StartLearning(n int) {
	sm.learn = sliceLearn{learning: true}
}

// StopLearning ends window learning and applies the tuned width.
func (sm *ParameterSliceMove) StopLearning(n int) {
	if !sm.learn.learning {
		return
	}
	sm.W = sm.learn.tunedW(sm.W)
	sm.learn.learning = false
	log.Debugf("%s: learned W=%f", sm.name, sm.W)
}

// Iterate performs one slice-sampling update.
func (sm *ParameterSliceMove) Iterate(m Model, stats Stats, i int) {
	par := (*m.Parameters())[sm.index]
	if par.Fixed() {
		return
	}
	x0 := par.Get()
	t0 := sm.transform(x0)

	f := func(t float64) float64 {
		x := sm.inverse(t)
		if !par.ValueInRange(x) {
			return math.Inf(-1)
		}
		par.Set(x)
		return m.HeatedLogProb()
	}

	t1, tries := sliceSample(t0, f, sm.W)
	par.Set(sm.inverse(t1))
	sm.learn.observe(t0, t1)
	stats.Inc(sm.name, NewResult2(math.Abs(t1-t0), float64(tries)))
}

// DirichletSliceMove slice-samples within the simplex spanned by a
// set of parameters, preserving their sum: one component moves, the
// others rescale proportionally.
type DirichletSliceMove struct {
	baseMove
	indices []int
	W       float64
	learn   sliceLearn
}

// NewDirichletSliceMove creates a Dirichlet slice move.
func NewDirichletSliceMove(name, attributes string, indices []int, w float64) *DirichletSliceMove {
	return &DirichletSliceMove{
		baseMove: newBase(name, attributes),
		indices:  append([]int(nil), indices...),
		W:        w,
	}
}

// Reset sets the round budget.
func (dm *DirichletSliceMove) Reset(l float64) int {
	n := subiterations(l)
	dm.iterations += float64(n)
	return n
}

// StartLearning begins window learning.
func (dm *DirichletSliceMove) StartLearning(n int) {
	dm.learn = sliceLearn{learning: true}
}

// StopLearning ends window learning.
func (dm *DirichletSliceMove) StopLearning(n int) {
	if !dm.learn.learning {
		return
	}
	dm.W = dm.learn.tunedW(dm.W)
	dm.learn.learning = false
}

// Iterate slice-samples one random component on the logit scale.
func (dm *DirichletSliceMove) Iterate(m Model, stats Stats, i int) {
	pars := *m.Parameters()
	k := dm.indices[rand.Intn(len(dm.indices))]
	par := pars[k]
	if par.Fixed() {
		return
	}

	total := 0.0
	for _, idx := range dm.indices {
		total += pars[idx].Get()
	}
	x0 := par.Get()

	set := func(x float64) {
		// rescale the other components to preserve the total
		scale := (total - x) / (total - par.Get())
		for _, idx := range dm.indices {
			if idx == k {
				continue
			}
			pars[idx].Set(pars[idx].Get() * scale)
		}
		par.Set(x)
	}

	f := func(t float64) float64 {
		x := total * InverseEpsilon(t)
		if x <= 0 || x >= total {
			return math.Inf(-1)
		}
		set(x)
		// change of variables: logit scale plus the rescaling
		// of the remaining n-1 components
		return m.HeatedLogProb() +
			math.Log(x) + math.Log(total-x) +
			float64(len(dm.indices)-2)*math.Log(total-x)
	}

	t0 := TransformEpsilon(x0 / total)
	t1, tries := sliceSample(t0, f, dm.W)
	set(total * InverseEpsilon(t1))
	dm.learn.observe(t0, t1)
	stats.Inc(dm.name, NewResult2(math.Abs(t1-t0), float64(tries)))
}
