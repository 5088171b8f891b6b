// Package imodel provides the pairwise indel model attached to every
// branch: gap-open, gap-extend and end probabilities feeding the
// alignment HMMs.
package imodel

import (
	"github.com/op/go-logging"

	"bitbucket.org/Davydov/treeali/hmm"
	"bitbucket.org/Davydov/treeali/optimize"
)

var log = logging.MustGetLogger("imodel")

// Model holds the indel parameters. Delta is the gap-open
// probability, Epsilon the gap-extension probability and Tau the
// alignment end probability.
type Model struct {
	Delta   float64
	Epsilon float64
	Tau     float64

	onUpdate func()
	pair     *hmm.Pair2
}

// New creates an indel model with default parameters.
func New() *Model {
	return &Model{Delta: 0.05, Epsilon: 0.5, Tau: 0.005}
}

// Copy creates an independent copy.
func (m *Model) Copy() *Model {
	return &Model{Delta: m.Delta, Epsilon: m.Epsilon, Tau: m.Tau}
}

// SetOnUpdate installs a hook called when a parameter change
// invalidates the cached HMM.
func (m *Model) SetOnUpdate(f func()) { m.onUpdate = f }

func (m *Model) touch() {
	m.pair = nil
	if m.onUpdate != nil {
		m.onUpdate()
	}
}

// AddParameters registers delta, epsilon and tau. Tau is fixed by
// default.
func (m *Model) AddParameters(fpg optimize.FloatParameterGenerator, params *optimize.FloatParameters, prefix string) {
	delta := fpg(&m.Delta, prefix+"delta")
	delta.SetOnChange(m.touch)
	delta.SetMin(1e-6)
	delta.SetMax(0.4)
	delta.SetPriorFunc(optimize.BetaPrior(1, 10))
	delta.SetProposalFunc(optimize.Between(1e-6, 0.4, optimize.CauchyProposal(0.02)))
	params.Append(delta)

	epsilon := fpg(&m.Epsilon, prefix+"epsilon")
	epsilon.SetOnChange(m.touch)
	epsilon.SetMin(1e-6)
	epsilon.SetMax(1 - 1e-6)
	epsilon.SetPriorFunc(optimize.BetaPrior(2, 2))
	epsilon.SetProposalFunc(optimize.Between(1e-6, 1-1e-6, optimize.CauchyProposal(0.05)))
	params.Append(epsilon)

	tau := fpg(&m.Tau, prefix+"tau")
	tau.SetOnChange(m.touch)
	tau.SetMin(1e-6)
	tau.SetMax(0.1)
	tau.SetPriorFunc(optimize.BetaPrior(1, 20))
	tau.SetFixed(true)
	params.Append(tau)
}

// PairHMM returns the cached two-way HMM for the current parameters.
func (m *Model) PairHMM() *hmm.Pair2 {
	if m.pair == nil {
		p, err := hmm.NewPair2(m.Delta, m.Epsilon, m.Tau)
		if err != nil {
			log.Fatalf("building pair HMM: %v", err)
		}
		m.pair = p
	}
	return m.pair
}
