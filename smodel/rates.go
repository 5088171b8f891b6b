package smodel

import (
	"bitbucket.org/Davydov/treeali/dist"
)

// RateClasses returns ncat discrete-gamma rate multipliers with mean
// 1. With ncat=1 or alpha<=0 a single unit rate is returned.
func RateClasses(ncat int, alpha float64) []float64 {
	if ncat <= 1 || alpha <= 0 {
		return []float64{1}
	}
	return dist.DiscreteGamma(alpha, alpha, ncat, false, nil, nil)
}
