// Package mcmc provides the composable transition-kernel framework:
// atomic moves, Metropolis-Hastings wrappers, slice samplers,
// choose-one and do-all groups, per-argument moves and the sampler
// driving them.
package mcmc

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/op/go-logging"

	"bitbucket.org/Davydov/treeali/optimize"
)

var log = logging.MustGetLogger("mcmc")

// Model is the state a move operates on.
type Model interface {
	// HeatedLogProb returns log prior + beta * log likelihood.
	HeatedLogProb() float64
	// LogPrior returns the log prior alone.
	LogPrior() float64
	// Parameters returns the flat model parameter vector.
	Parameters() *optimize.FloatParameters
}

// Result stores counts and totals for the statistics of one move; the
// averages are totals[i]/counts[i].
type Result struct {
	Counts []int
	Totals []float64
}

// NewResult creates a result with a single statistic observation.
func NewResult(v float64) Result {
	return Result{Counts: []int{1}, Totals: []float64{v}}
}

// NewResult2 creates a result with two statistics.
func NewResult2(v1, v2 float64) Result {
	return Result{Counts: []int{1, 1}, Totals: []float64{v1, v2}}
}

// Inc accumulates another result.
func (r *Result) Inc(o Result) {
	for len(r.Counts) < len(o.Counts) {
		r.Counts = append(r.Counts, 0)
		r.Totals = append(r.Totals, 0)
	}
	for i := range o.Counts {
		r.Counts[i] += o.Counts[i]
		r.Totals[i] += o.Totals[i]
	}
}

// Stats collects per-move statistics by move name.
type Stats map[string]*Result

// Inc accumulates a result for a named move.
func (s Stats) Inc(name string, r Result) {
	if s[name] == nil {
		s[name] = &Result{}
	}
	s[name].Inc(r)
}

// Summary formats the collected statistics.
func (s Stats) Summary() string {
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	sort.Strings(names)
	var b strings.Builder
	for _, n := range names {
		r := s[n]
		fmt.Fprintf(&b, "%s:", n)
		for i := range r.Counts {
			if r.Counts[i] > 0 {
				fmt.Fprintf(&b, "  %.3f (%d)", r.Totals[i]/float64(r.Counts[i]), r.Counts[i])
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// Move is a transition kernel. Reset sets up a round with the given
// budget and returns the number of subiterations; Iterate runs the
// i-th of them.
type Move interface {
	Name() string
	Enabled() bool
	// EnableName enables this move or any submove whose name or
	// attribute matches s.
	EnableName(s string)
	// DisableName disables this move or any submove whose name or
	// attribute matches s.
	DisableName(s string)
	Reset(budget float64) int
	Iterate(m Model, stats Stats, i int)
	ShowEnabled(w io.Writer, depth int)
	StartLearning(n int)
	StopLearning(n int)
}

// baseMove implements naming, attributes and enabling.
type baseMove struct {
	name       string
	attributes []string
	enabled    bool
	iterations float64
}

func newBase(name, attributes string) baseMove {
	b := baseMove{name: name, enabled: true}
	if attributes != "" {
		b.attributes = strings.Split(attributes, ":")
	}
	return b
}

func (b *baseMove) Name() string  { return b.name }
func (b *baseMove) Enabled() bool { return b.enabled }

func (b *baseMove) matches(s string) bool {
	if s == b.name {
		return true
	}
	for _, a := range b.attributes {
		if a == s {
			return true
		}
	}
	return false
}

func (b *baseMove) EnableName(s string) {
	if b.matches(s) {
		b.enabled = true
	}
}

func (b *baseMove) DisableName(s string) {
	if b.matches(s) {
		b.enabled = false
	}
}

func (b *baseMove) ShowEnabled(w io.Writer, depth int) {
	state := "enabled"
	if !b.enabled {
		state = "DISABLED"
	}
	fmt.Fprintf(w, "%s%s: %s\n", strings.Repeat("  ", depth), b.name, state)
}

func (b *baseMove) StartLearning(n int) {}
func (b *baseMove) StopLearning(n int)  {}

// subiterations converts a real budget into an integer count,
// randomizing the fractional part.
func subiterations(l float64) int {
	n := int(l)
	if optimize.Rand() < l-float64(n) {
		n++
	}
	return n
}

// AtomicMove is a move function without arguments.
type AtomicMove func(m Model, stats Stats)

// AtomicMoveArg is a move function taking an integer argument.
type AtomicMoveArg func(m Model, stats Stats, arg int)

// SingleMove wraps one atomic move.
type SingleMove struct {
	baseMove
	move AtomicMove
}

// NewSingleMove creates a SingleMove.
func NewSingleMove(m AtomicMove, name, attributes string) *SingleMove {
	return &SingleMove{baseMove: newBase(name, attributes), move: m}
}

// Reset sets the round budget.
func (s *SingleMove) Reset(l float64) int {
	n := subiterations(l)
	s.iterations += float64(n)
	return n
}

// Iterate runs the move.
func (s *SingleMove) Iterate(m Model, stats Stats, i int) {
	s.move(m, stats)
}
