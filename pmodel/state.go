// Package pmodel assembles the joint probability model: the tree, the
// per-partition alignments with their caches, the substitution and
// indel models, and the flat parameter vector. The caches live in
// arenas keyed by directed-branch index; proposals receive borrowed
// handles and return invalidation sets, so no cache points back into
// the tree.
package pmodel

import (
	"fmt"
	"math"

	"github.com/op/go-logging"

	"bitbucket.org/Davydov/treeali/align"
	"bitbucket.org/Davydov/treeali/bio"
	"bitbucket.org/Davydov/treeali/hmm"
	"bitbucket.org/Davydov/treeali/imodel"
	"bitbucket.org/Davydov/treeali/lik"
	"bitbucket.org/Davydov/treeali/optimize"
	"bitbucket.org/Davydov/treeali/smodel"
	"bitbucket.org/Davydov/treeali/suba"
	"bitbucket.org/Davydov/treeali/tree"
)

var log = logging.MustGetLogger("pmodel")

// BranchPriorType selects the branch-length prior family.
type BranchPriorType int

// Branch-length prior families.
const (
	BranchPriorExponential BranchPriorType = iota
	BranchPriorGamma
)

// Partition is one block of columns with its own substitution and
// indel models and caches.
type Partition struct {
	A  *align.Alignment
	Ix *suba.Index
	MC *lik.MatCache
	CL *lik.CLCache
	SM smodel.Model
	IM *imodel.Model
	// index of the branch-length scale group
	Scale int
}

// State is the full MCMC state.
type State struct {
	T     *tree.Tree
	Parts []*Partition

	// branch-length scale parameters, one per scale group
	mus []float64

	params optimize.FloatParameters
	beta   float64

	branchPrior BranchPriorType

	// constraints; nil when absent
	ConstraintTree *tree.Tree
	AConstraints   []tree.LeafSet

	// Keys holds named tuning constants (proposal widths etc.).
	Keys map[string]float64
}

// Config bundles the options needed to build a state.
type Config struct {
	InternalIndex bool
	BranchPrior   BranchPriorType
	Traditional   bool
	NRates        int
	RateAlpha     float64
	NScaleGroups  int
	// ScaleGroup maps partition index to scale group; nil means
	// all partitions share group 0.
	ScaleGroup []int
}

// New assembles a state from the loaded data. Each alignment gets
// internal rows, minimally connected from the leaves.
func New(t *tree.Tree, alignments []*align.Alignment, sms []smodel.Model,
	ims []*imodel.Model, cfg Config) (*State, error) {

	if cfg.NScaleGroups < 1 {
		cfg.NScaleGroups = 1
	}
	s := &State{
		T:           t,
		beta:        1,
		branchPrior: cfg.BranchPrior,
		mus:         make([]float64, cfg.NScaleGroups),
		Keys:        make(map[string]float64),
	}
	for i := range s.mus {
		s.mus[i] = 0.1
	}

	for k, a := range alignments {
		if a.NRows() != t.NLeaves() {
			return nil, fmt.Errorf("partition %d has %d rows for %d leaves",
				k, a.NRows(), t.NLeaves())
		}
		a.AddInternal(t.NInternal())
		align.MinimallyConnectLeafCharacters(a, t)
		if err := align.CheckLeafSequences(a, t.NLeaves()); err != nil {
			return nil, err
		}

		sm := sms[k]
		rates := smodel.RateClasses(cfg.NRates, cfg.RateAlpha)
		p := &Partition{
			A:  a,
			Ix: suba.New(cfg.InternalIndex, t.NDirected()),
			MC: lik.NewMatCache(sm, rates, t.NBranches()),
			SM: sm,
		}
		p.CL = lik.NewCLCache(t.NDirected(), len(rates), sm.NStates())
		if !cfg.Traditional && ims != nil {
			p.IM = ims[k]
		}
		if cfg.ScaleGroup != nil {
			p.Scale = cfg.ScaleGroup[k]
		}
		s.Parts = append(s.Parts, p)
	}

	s.setupParameters()
	return s, nil
}

// setupParameters rebuilds the flat parameter vector, wiring the
// invalidation hooks.
func (s *State) setupParameters() {
	s.params = nil
	fpg := optimize.BasicFloatParameterGenerator

	for g := range s.mus {
		name := "mu"
		if len(s.mus) > 1 {
			name = fmt.Sprintf("mu%d", g+1)
		}
		group := g
		par := fpg(&s.mus[g], name)
		par.SetMin(1e-9)
		par.SetMax(100)
		par.SetPriorFunc(optimize.LogNormalPrior(math.Log(0.1), 1.5))
		par.SetProposalFunc(optimize.Between(1e-9, 100, optimize.LogScaled(optimize.CauchyProposal(0.6))))
		par.SetOnChange(func() { s.invalidateScaleGroup(group) })
		s.params.Append(par)
	}

	for k, p := range s.Parts {
		prefix := ""
		if len(s.Parts) > 1 {
			prefix = fmt.Sprintf("S%d::", k+1)
		}
		part := p
		p.SM.SetOnUpdate(func() {
			part.MC.InvalidateAll()
			part.CL.InvalidateAll()
		})
		p.SM.AddParameters(fpg, &s.params, prefix)

		if p.IM != nil {
			iprefix := ""
			if len(s.Parts) > 1 {
				iprefix = fmt.Sprintf("I%d::", k+1)
			}
			p.IM.AddParameters(fpg, &s.params, iprefix)
		}
	}
}

func (s *State) invalidateScaleGroup(g int) {
	for _, p := range s.Parts {
		if p.Scale == g {
			p.MC.InvalidateAll()
			p.CL.InvalidateAll()
		}
	}
}

// Parameters returns the flat parameter vector.
func (s *State) Parameters() *optimize.FloatParameters { return &s.params }

// Beta returns the heating exponent.
func (s *State) Beta() float64 { return s.beta }

// SetBeta changes the heating exponent.
func (s *State) SetBeta(beta float64) { s.beta = beta }

// Mu returns the branch scale of a scale group.
func (s *State) Mu(g int) float64 { return s.mus[g] }

// Copy clones the full state including the caches, so speculative
// proposals can be built without mutating the base state.
func (s *State) Copy() *State {
	n := &State{
		T:              s.T.Copy(),
		mus:            append([]float64(nil), s.mus...),
		beta:           s.beta,
		branchPrior:    s.branchPrior,
		ConstraintTree: s.ConstraintTree,
		AConstraints:   s.AConstraints,
		Keys:           s.Keys,
	}
	for _, p := range s.Parts {
		np := &Partition{
			A:     p.A.Copy(),
			Ix:    p.Ix.Copy(),
			MC:    p.MC.Copy(),
			CL:    p.CL.Copy(),
			Scale: p.Scale,
		}
		np.SM = np.MC.Model()
		if p.IM != nil {
			np.IM = p.IM.Copy()
		}
		n.Parts = append(n.Parts, np)
	}
	n.setupParameters()
	n.params.Update(&s.params)
	// copy fixed flags
	for i, par := range s.params {
		n.params[i].SetFixed(par.Fixed())
	}
	return n
}

// Assign adopts the state of another copy produced by Copy.
func (s *State) Assign(o *State) {
	s.T = o.T
	s.Parts = o.Parts
	s.mus = o.mus
	s.params = o.params
	s.beta = o.beta
}

// effectiveLength returns the branch length scaled for a partition.
func (s *State) effectiveLength(p *Partition, b int) float64 {
	return s.T.Length(b) * s.mus[p.Scale]
}

// Likelihood returns the total substitution log-likelihood over all
// partitions.
func (s *State) Likelihood() float64 {
	lnL := 0.0
	for _, p := range s.Parts {
		lnL += s.partLikelihood(p)
	}
	if math.IsNaN(lnL) {
		lnL = math.Inf(-1)
	}
	return lnL
}

// partLikelihood computes one partition, applying the scale group
// through a scaled tree view.
func (s *State) partLikelihood(p *Partition) float64 {
	st := s.scaledTree(p)
	return lik.Likelihood(p.A, st, p.Ix, p.MC, p.CL)
}

// scaledTree returns the tree with branch lengths multiplied by the
// partition scale. Topology and branch names are shared concepts, so
// indices remain valid.
func (s *State) scaledTree(p *Partition) *tree.Tree {
	mu := s.mus[p.Scale]
	if mu == 1 {
		return s.T
	}
	st := s.T.Copy()
	for b := 0; b < st.NBranches(); b++ {
		st.SetLength(b, s.T.Length(b)*mu)
	}
	return st
}

// branchLengthPrior returns the log prior of all branch lengths.
func (s *State) branchLengthPrior() float64 {
	lnP := 0.0
	var f func(float64) float64
	switch s.branchPrior {
	case BranchPriorGamma:
		f = optimize.GammaPrior(2, 0.05, true)
	default:
		f = optimize.ExponentialPrior(1/0.1, true)
	}
	for b := 0; b < s.T.NBranches(); b++ {
		lnP += f(s.T.Length(b))
	}
	return lnP
}

// alignmentPrior returns the log probability of the alignments under
// the per-branch indel model.
func (s *State) alignmentPrior() float64 {
	lnP := 0.0
	for _, p := range s.Parts {
		if p.IM == nil {
			continue
		}
		pair := p.IM.PairHMM()
		for b := 0; b < s.T.NBranches(); b++ {
			lnP += branchPathLogProb(p.A, s.T, pair, b)
		}
	}
	return lnP
}

// branchPathLogProb extracts the pairwise path of the two rows joined
// by branch b and scores it under the pair HMM.
func branchPathLogProb(a *align.Alignment, t *tree.Tree, pair *hmm.Pair2, b int) float64 {
	n1 := t.Source(b)
	n2 := t.Target(b)
	p1 := make([]bool, a.NCols())
	p2 := make([]bool, a.NCols())
	for c := 0; c < a.NCols(); c++ {
		p1[c] = bio.IsFeature(a.Cell(c, n1))
		p2[c] = bio.IsFeature(a.Cell(c, n2))
	}
	return hmm.PathLogProb(pair, hmm.PairPath(p1, p2))
}

// ScaledTree exposes the partition-scaled tree for proposal code.
func (s *State) ScaledTree(p *Partition) *tree.Tree { return s.scaledTree(p) }

// InvalidatePairwise invalidates everything affected by a change of
// the pairwise alignment across branch b: all column-name maps are
// remapped and the conditional likelihoods of every branch spanning b
// are dropped. Caches strictly behind either side survive because
// their column names persist.
func (s *State) InvalidatePairwise(b int) {
	u := s.T.Undirected(b)
	for _, p := range s.Parts {
		p.Ix.InvalidateAllBranches()
		for _, dd := range []int{u, s.T.Reverse(u)} {
			for _, e := range s.T.BranchesAfter(dd) {
				p.CL.InvalidateDirectedBranch(s.T, e)
			}
		}
	}
}

// ConstraintsOK verifies the topology and alignment constraints.
func (s *State) ConstraintsOK() bool { return s.constraintsOK() }

// InvalidateAllCaches drops every cache; used after topology
// rearrangements.
func (s *State) InvalidateAllCaches() {
	for _, p := range s.Parts {
		p.Ix.InvalidateAllBranches()
		p.CL.InvalidateAll()
		p.MC.InvalidateAll()
	}
}

// RepairAlignments rewrites the internal rows to the minimal
// connected sets after a topology change.
func (s *State) RepairAlignments() {
	for _, p := range s.Parts {
		align.MinimallyConnectLeafCharacters(p.A, s.T)
	}
}

// constraintsOK verifies the topology and alignment constraints.
func (s *State) constraintsOK() bool {
	if s.ConstraintTree != nil && !tree.Extends(s.T, s.ConstraintTree) {
		return false
	}
	for _, clade := range s.AConstraints {
		for _, p := range s.Parts {
			if cladeCrossed(p.A, clade) {
				return false
			}
		}
	}
	return true
}

// ConstraintSatisfied returns one bit per alignment constraint,
// set when no column of any partition crosses the clade boundary.
func (s *State) ConstraintSatisfied() []bool {
	res := make([]bool, len(s.AConstraints))
	for i, clade := range s.AConstraints {
		res[i] = true
		for _, p := range s.Parts {
			if cladeCrossed(p.A, clade) {
				res[i] = false
			}
		}
	}
	return res
}

// cladeCrossed reports a column carrying letters from both inside and
// outside the clade boundary.
func cladeCrossed(a *align.Alignment, clade tree.LeafSet) bool {
	for c := 0; c < a.NCols(); c++ {
		in, out := false, false
		for i := range clade {
			if !a.Alpha.IsLetter(a.Cell(c, i)) && !a.Alpha.IsLetterClass(a.Cell(c, i)) {
				continue
			}
			if clade[i] {
				in = true
			} else {
				out = true
			}
		}
		if in && out {
			return true
		}
	}
	return false
}

// LogPrior returns the joint log prior: parameters, branch lengths
// and the indel process over the alignments.
func (s *State) LogPrior() float64 {
	if !s.constraintsOK() {
		return math.Inf(-1)
	}
	return s.params.FullPrior() + s.branchLengthPrior() + s.alignmentPrior()
}

// HeatedLogProb returns log prior + beta * log likelihood.
func (s *State) HeatedLogProb() float64 {
	lnP := s.LogPrior()
	if math.IsInf(lnP, -1) {
		return lnP
	}
	return lnP + s.beta*s.Likelihood()
}

// InvalidateNode invalidates every cache entry whose behind-subtree
// contains node n, in every partition.
func (s *State) InvalidateNode(n int) {
	for _, p := range s.Parts {
		p.Ix.InvalidateNode(s.T, n)
		p.CL.InvalidateNode(s.T, n)
	}
}

// InvalidateBranch invalidates both directions of a branch and
// everything depending on them.
func (s *State) InvalidateBranch(b int) {
	u := s.T.Undirected(b)
	for _, p := range s.Parts {
		p.Ix.InvalidateBranch(s.T, u)
		p.CL.InvalidateDirectedBranch(s.T, u)
		p.CL.InvalidateDirectedBranch(s.T, s.T.Reverse(u))
	}
}

// SetBranchLength updates a branch length, invalidating transition
// matrices and the conditional likelihoods crossing the branch.
func (s *State) SetBranchLength(b int, l float64) {
	u := s.T.Undirected(b)
	s.T.SetLength(u, l)
	for _, p := range s.Parts {
		p.MC.Invalidate(u)
		p.CL.InvalidateDirectedBranch(s.T, u)
		p.CL.InvalidateDirectedBranch(s.T, s.T.Reverse(u))
	}
}

// RecomputeAll fully revalidates every cache (used after loading and
// in consistency checks).
func (s *State) RecomputeAll() {
	for _, p := range s.Parts {
		p.Ix.RecomputeAllBranches(p.A, s.T)
		st := s.scaledTree(p)
		p.MC.Recalc(st)
	}
}

// Check runs the invariant checks on the current state.
func (s *State) Check() error {
	for _, p := range s.Parts {
		if err := align.CheckLettersOK(p.A); err != nil {
			return err
		}
		if err := align.CheckLeafSequences(p.A, s.T.NLeaves()); err != nil {
			return err
		}
		if err := align.CheckInternalNodesConnected(p.A, s.T); err != nil {
			return err
		}
		if !p.A.NamesAreUnique() {
			return fmt.Errorf("duplicate row names")
		}
	}
	return nil
}
