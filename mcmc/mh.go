package mcmc

import (
	"math"
	"math/rand"

	"bitbucket.org/Davydov/treeali/optimize"
)

// Proposal mutates the model state and returns the log-Hastings
// ratio together with a rollback restoring the previous state.
type Proposal interface {
	Propose(m Model) (logHastings float64, rollback func())
}

// MHMove wraps a proposal in a Metropolis-Hastings accept/reject
// step against the heated probability.
type MHMove struct {
	baseMove
	proposal Proposal
}

// NewMHMove creates an MH move.
func NewMHMove(p Proposal, name, attributes string) *MHMove {
	return &MHMove{baseMove: newBase(name, attributes), proposal: p}
}

// Reset sets the round budget.
func (mh *MHMove) Reset(l float64) int {
	n := subiterations(l)
	mh.iterations += float64(n)
	return n
}

// Iterate performs one accept/reject step.
func (mh *MHMove) Iterate(m Model, stats Stats, i int) {
	l0 := m.HeatedLogProb()
	lh, rollback := mh.proposal.Propose(m)
	l1 := m.HeatedLogProb()

	a := math.Exp(l1 - l0 + lh)
	accepted := a >= 1 || rand.Float64() < a
	if !accepted {
		rollback()
	}
	r := 0.0
	if accepted {
		r = 1
	}
	stats.Inc(mh.name, NewResult(r))
}

// ParameterProposal proposes a new value for one model parameter with
// an optional explicit Jacobian term (for asymmetric proposals such
// as log-scaled walks).
type ParameterProposal struct {
	Index       int
	F           func(float64) float64
	LogJacobian func(old, new float64) float64
}

// Propose mutates the parameter.
func (p *ParameterProposal) Propose(m Model) (float64, func()) {
	par := (*m.Parameters())[p.Index]
	old := par.Get()
	par.Set(p.F(old))
	lh := 0.0
	if p.LogJacobian != nil {
		lh = p.LogJacobian(old, par.Get())
	}
	return lh, func() { par.Set(old) }
}

// LogJacobian is the Hastings term of a proposal symmetric on the log
// scale.
func LogJacobian(old, new float64) float64 {
	return math.Log(new / old)
}

// SimplexProposal resamples a group of parameters jointly from a
// Dirichlet distribution centered at the current point, preserving
// their sum. N is the concentration.
type SimplexProposal struct {
	Indices []int
	N       float64
	// F defaults to the plain Dirichlet proposal.
	F func(x []float64, n float64) float64
}

// Propose mutates the parameters.
func (p *SimplexProposal) Propose(m Model) (float64, func()) {
	pars := *m.Parameters()
	old := make([]float64, len(p.Indices))
	x := make([]float64, len(p.Indices))
	for i, idx := range p.Indices {
		old[i] = pars[idx].Get()
		x[i] = old[i]
	}
	f := p.F
	if f == nil {
		f = optimize.DirichletProposal
	}
	lh := f(x, p.N)
	for i, idx := range p.Indices {
		pars[idx].Set(x[i])
	}
	return lh, func() {
		for i, idx := range p.Indices {
			pars[idx].Set(old[i])
		}
	}
}
