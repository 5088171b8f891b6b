package mcmc

import (
	"io"
	"math/rand"
	"strings"
)

// moveGroupBase is a collection of weighted submoves.
type moveGroupBase struct {
	moves  []Move
	lambda []float64
}

// Add appends a submove with a weight; disabled submoves stay in the
// group and can be enabled by name.
func (g *moveGroupBase) Add(lambda float64, m Move, enabled bool) {
	if !enabled {
		m.DisableName(m.Name())
	}
	g.moves = append(g.moves, m)
	g.lambda = append(g.lambda, lambda)
}

func (g *moveGroupBase) enableName(s string) {
	for _, m := range g.moves {
		m.EnableName(s)
	}
}

func (g *moveGroupBase) disableName(s string) {
	for _, m := range g.moves {
		m.DisableName(s)
	}
}

func (g *moveGroupBase) startLearning(n int) {
	for _, m := range g.moves {
		m.StartLearning(n)
	}
}

func (g *moveGroupBase) stopLearning(n int) {
	for _, m := range g.moves {
		m.StopLearning(n)
	}
}

func (g *moveGroupBase) showEnabled(w io.Writer, depth int) {
	for _, m := range g.moves {
		m.ShowEnabled(w, depth)
	}
}

// MoveAll runs every enabled submove each round.
type MoveAll struct {
	baseMove
	moveGroupBase
	// order[i] is the submove index of subiteration i, suborder
	// its index within that submove's round
	order    []int
	suborder []int
}

// NewMoveAll creates a do-all group.
func NewMoveAll(name string, attributes ...string) *MoveAll {
	return &MoveAll{baseMove: newBase(name, strings.Join(attributes, ":"))}
}

// EnableName enables this move or matching submoves.
func (g *MoveAll) EnableName(s string) {
	g.baseMove.EnableName(s)
	g.enableName(s)
}

// DisableName disables this move or matching submoves.
func (g *MoveAll) DisableName(s string) {
	g.baseMove.DisableName(s)
	g.disableName(s)
}

// StartLearning propagates to submoves.
func (g *MoveAll) StartLearning(n int) { g.startLearning(n) }

// StopLearning propagates to submoves.
func (g *MoveAll) StopLearning(n int) { g.stopLearning(n) }

// ShowEnabled prints the enabled state recursively.
func (g *MoveAll) ShowEnabled(w io.Writer, depth int) {
	g.baseMove.ShowEnabled(w, depth)
	g.showEnabled(w, depth+1)
}

// Reset plans a round: every enabled submove gets its weighted share
// of the budget.
func (g *MoveAll) Reset(l float64) int {
	g.order = g.order[:0]
	g.suborder = g.suborder[:0]
	for i, m := range g.moves {
		if !m.Enabled() {
			continue
		}
		n := m.Reset(g.lambda[i] * l)
		for k := 0; k < n; k++ {
			g.order = append(g.order, i)
			g.suborder = append(g.suborder, k)
		}
	}
	g.iterations += float64(len(g.order))
	return len(g.order)
}

// Iterate runs the i-th planned subiteration.
func (g *MoveAll) Iterate(m Model, stats Stats, i int) {
	g.moves[g.order[i]].Iterate(m, stats, g.suborder[i])
}

// MoveOne picks one submove per round with probability proportional
// to the weights.
type MoveOne struct {
	baseMove
	moveGroupBase
	order    []int
	suborder []int
}

// NewMoveOne creates a choose-one group.
func NewMoveOne(name string, attributes ...string) *MoveOne {
	return &MoveOne{baseMove: newBase(name, strings.Join(attributes, ":"))}
}

// EnableName enables this move or matching submoves.
func (g *MoveOne) EnableName(s string) {
	g.baseMove.EnableName(s)
	g.enableName(s)
}

// DisableName disables this move or matching submoves.
func (g *MoveOne) DisableName(s string) {
	g.baseMove.DisableName(s)
	g.disableName(s)
}

// StartLearning propagates to submoves.
func (g *MoveOne) StartLearning(n int) { g.startLearning(n) }

// StopLearning propagates to submoves.
func (g *MoveOne) StopLearning(n int) { g.stopLearning(n) }

// ShowEnabled prints the enabled state recursively.
func (g *MoveOne) ShowEnabled(w io.Writer, depth int) {
	g.baseMove.ShowEnabled(w, depth)
	g.showEnabled(w, depth+1)
}

func (g *MoveOne) choose() int {
	sum := 0.0
	for i, m := range g.moves {
		if m.Enabled() {
			sum += g.lambda[i]
		}
	}
	if sum == 0 {
		return -1
	}
	r := rand.Float64() * sum
	for i, m := range g.moves {
		if !m.Enabled() {
			continue
		}
		r -= g.lambda[i]
		if r <= 0 {
			return i
		}
	}
	return -1
}

// Reset plans a round of the given budget, drawing one submove per
// subiteration.
func (g *MoveOne) Reset(l float64) int {
	g.order = g.order[:0]
	g.suborder = g.suborder[:0]
	for k := 0; k < subiterations(l); k++ {
		i := g.choose()
		if i < 0 {
			continue
		}
		n := g.moves[i].Reset(1)
		for s := 0; s < n; s++ {
			g.order = append(g.order, i)
			g.suborder = append(g.suborder, s)
		}
	}
	g.iterations += float64(len(g.order))
	return len(g.order)
}

// Iterate runs the i-th planned subiteration.
func (g *MoveOne) Iterate(m Model, stats Stats, i int) {
	g.moves[g.order[i]].Iterate(m, stats, g.suborder[i])
}

// ArgMove is a move parameterized by an integer argument (e.g. a
// branch number).
type ArgMove interface {
	Move
	Args() []int
	// IterateArg runs the move on one argument.
	IterateArg(m Model, stats Stats, arg int)
}

// MoveArgSingle is a single move with an argument list.
type MoveArgSingle struct {
	baseMove
	move AtomicMoveArg
	args []int
	// the planned argument order of the current round
	order []int
}

// NewMoveArgSingle creates a per-argument move.
func NewMoveArgSingle(name, attributes string, m AtomicMoveArg, args []int) *MoveArgSingle {
	return &MoveArgSingle{
		baseMove: newBase(name, attributes),
		move:     m,
		args:     append([]int(nil), args...),
	}
}

// Args returns the argument list.
func (s *MoveArgSingle) Args() []int { return s.args }

// Reset plans budget*len(args) executions over shuffled arguments.
func (s *MoveArgSingle) Reset(l float64) int {
	s.order = s.order[:0]
	n := subiterations(l * float64(len(s.args)))
	for len(s.order) < n {
		perm := rand.Perm(len(s.args))
		for _, p := range perm {
			if len(s.order) == n {
				break
			}
			s.order = append(s.order, s.args[p])
		}
	}
	s.iterations += float64(n)
	return n
}

// Iterate runs the move on the i-th planned argument.
func (s *MoveArgSingle) Iterate(m Model, stats Stats, i int) {
	s.move(m, stats, s.order[i])
}

// IterateArg runs the move on a specific argument.
func (s *MoveArgSingle) IterateArg(m Model, stats Stats, arg int) {
	s.move(m, stats, arg)
}

// MoveEach applies, for every argument, one submove chosen among the
// submoves supporting that argument.
type MoveEach struct {
	baseMove
	moves  []ArgMove
	lambda []float64
	args   []int
	order  []int
}

// NewMoveEach creates a per-argument choose-one group.
func NewMoveEach(name string, attributes ...string) *MoveEach {
	return &MoveEach{baseMove: newBase(name, strings.Join(attributes, ":"))}
}

// Add appends a submove.
func (g *MoveEach) Add(lambda float64, m ArgMove, enabled bool) {
	if !enabled {
		m.DisableName(m.Name())
	}
	g.moves = append(g.moves, m)
	g.lambda = append(g.lambda, lambda)
	// the argument list is the union of the submove arguments
	seen := make(map[int]bool, len(g.args))
	for _, a := range g.args {
		seen[a] = true
	}
	for _, a := range m.Args() {
		if !seen[a] {
			g.args = append(g.args, a)
			seen[a] = true
		}
	}
}

// EnableName enables this move or matching submoves.
func (g *MoveEach) EnableName(s string) {
	g.baseMove.EnableName(s)
	for _, m := range g.moves {
		m.EnableName(s)
	}
}

// DisableName disables this move or matching submoves.
func (g *MoveEach) DisableName(s string) {
	g.baseMove.DisableName(s)
	for _, m := range g.moves {
		m.DisableName(s)
	}
}

// ShowEnabled prints the enabled state recursively.
func (g *MoveEach) ShowEnabled(w io.Writer, depth int) {
	g.baseMove.ShowEnabled(w, depth)
	for _, m := range g.moves {
		m.ShowEnabled(w, depth+1)
	}
}

// StartLearning propagates to submoves.
func (g *MoveEach) StartLearning(n int) {
	for _, m := range g.moves {
		m.StartLearning(n)
	}
}

// StopLearning propagates to submoves.
func (g *MoveEach) StopLearning(n int) {
	for _, m := range g.moves {
		m.StopLearning(n)
	}
}

func (g *MoveEach) supports(mi, arg int) bool {
	for _, a := range g.moves[mi].Args() {
		if a == arg {
			return true
		}
	}
	return false
}

// chooseFor picks a submove for an argument.
func (g *MoveEach) chooseFor(arg int) int {
	sum := 0.0
	for i, m := range g.moves {
		if m.Enabled() && g.supports(i, arg) {
			sum += g.lambda[i]
		}
	}
	if sum == 0 {
		return -1
	}
	r := rand.Float64() * sum
	for i, m := range g.moves {
		if !m.Enabled() || !g.supports(i, arg) {
			continue
		}
		r -= g.lambda[i]
		if r <= 0 {
			return i
		}
	}
	return -1
}

// Reset plans one pass over the arguments per unit of budget.
func (g *MoveEach) Reset(l float64) int {
	g.order = g.order[:0]
	n := subiterations(l * float64(len(g.args)))
	for len(g.order) < n {
		perm := rand.Perm(len(g.args))
		for _, p := range perm {
			if len(g.order) == n {
				break
			}
			g.order = append(g.order, g.args[p])
		}
	}
	g.iterations += float64(n)
	return n
}

// Iterate runs a chosen submove on the i-th planned argument.
func (g *MoveEach) Iterate(m Model, stats Stats, i int) {
	arg := g.order[i]
	mi := g.chooseFor(arg)
	if mi < 0 {
		return
	}
	g.moves[mi].IterateArg(m, stats, arg)
}
