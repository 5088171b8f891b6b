package pmodel

import (
	"bitbucket.org/Davydov/treeali/optimize"
)

// Posterior adapts a State to the optimize.Optimizable interface:
// the optimization objective is the unheated log posterior.
type Posterior struct {
	*State
}

// GetFloatParameters returns the model parameters.
func (p Posterior) GetFloatParameters() optimize.FloatParameters {
	return *p.State.Parameters()
}

// Likelihood returns the log posterior.
func (p Posterior) Likelihood() float64 {
	return p.State.LogPrior() + p.State.Likelihood()
}

// Copy clones the underlying state.
func (p Posterior) Copy() optimize.Optimizable {
	return Posterior{p.State.Copy()}
}
