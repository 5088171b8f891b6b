// Package optimize provides the model-parameter framework shared by
// the MCMC sampler and the likelihood pre-optimizer: named bounded
// parameters with priors and proposal functions.
package optimize

import (
	"errors"
	"math"
	"math/rand"
	"strconv"
	"strings"

	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("optimize")

const (
	// MIN and MAX bound randomized starting points.
	MIN = -10
	MAX = +10
)

// FloatParameter is a single named scalar of the model.
type FloatParameter interface {
	Name() string
	Prior() float64
	OldPrior() float64
	Propose()
	Accept(int)
	Reject()
	String() string
	SetMin(float64)
	SetMax(float64)
	GetMin() float64
	GetMax() float64
	SetOnChange(func())
	SetProposalFunc(func(float64) float64)
	SetPriorFunc(func(float64) float64)
	Get() float64
	Set(float64)
	InRange() bool
	ValueInRange(float64) bool
	Fixed() bool
	SetFixed(bool)
}

// FloatParameterGenerator creates a parameter bound to a value
// location.
type FloatParameterGenerator func(*float64, string) FloatParameter

// FloatParameters is the flat vector of model parameters.
type FloatParameters []FloatParameter

// Append adds a parameter to the vector.
func (p *FloatParameters) Append(par FloatParameter) {
	*p = append(*p, par)
}

// Names returns parameter names.
func (p *FloatParameters) Names(is []string) (s []string) {
	if is == nil {
		s = make([]string, len(*p))
	} else {
		s = is
	}
	for i, par := range *p {
		s[i] = par.Name()
	}
	return
}

// Values returns parameter values.
func (p *FloatParameters) Values(iv []float64) (v []float64) {
	if iv == nil {
		v = make([]float64, len(*p))
	} else {
		v = iv
	}
	for i, par := range *p {
		v[i] = par.Get()
	}
	return
}

// ValuesInRange tests that all the values are within bounds.
func (p *FloatParameters) ValuesInRange(vals []float64) bool {
	if len(vals) != len(*p) {
		panic("incorrect number of parameters")
	}
	for i, par := range *p {
		if !par.ValueInRange(vals[i]) {
			return false
		}
	}
	return true
}

// SetValues sets all parameter values.
func (p *FloatParameters) SetValues(v []float64) error {
	if len(v) != len(*p) {
		return errors.New("incorrect number of parameters")
	}
	for i, par := range *p {
		par.Set(v[i])
	}
	return nil
}

// ReadLine sets parameter values from a trajectory-file line
// (iteration and likelihood columns first).
func (p *FloatParameters) ReadLine(l string) error {
	v, err := ReadFloats(l)
	if err != nil {
		return err
	}
	if len(v) < 2 {
		return errors.New("short trajectory line")
	}
	return p.SetValues(v[2:])
}

// Update copies values from another vector of the same shape.
func (p *FloatParameters) Update(pSrc *FloatParameters) {
	for i := range *p {
		(*p)[i].Set((*pSrc)[i].Get())
	}
}

// Randomize sets uniform random starting values within bounds.
func (p *FloatParameters) Randomize() {
	for _, par := range *p {
		if par.Fixed() {
			continue
		}
		min := math.Max(MIN, par.GetMin())
		max := math.Min(MAX, par.GetMax())
		d := max - min
		par.Set(min + rand.Float64()*d)
	}
}

// InRange tests all values are within bounds.
func (p *FloatParameters) InRange() bool {
	for _, par := range *p {
		if !par.InRange() {
			return false
		}
	}
	return true
}

// NamesString returns tab-separated parameter names.
func (p *FloatParameters) NamesString() (s string) {
	for i, par := range *p {
		if i != 0 {
			s += "\t"
		}
		s += par.Name()
	}
	return
}

// ValuesString returns tab-separated parameter values.
func (p *FloatParameters) ValuesString() (s string) {
	for i, par := range *p {
		if i != 0 {
			s += "\t"
		}
		s += par.String()
	}
	return
}

// FullPrior returns the sum of the log-priors of all parameters.
func (p *FloatParameters) FullPrior() (lnP float64) {
	for _, par := range *p {
		lnP += par.Prior()
	}
	return
}

// matchLeaf tests if a leaf name matches a pattern with an optional
// trailing-star glob.
func matchLeaf(s, pattern string) bool {
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(s, pattern[:len(pattern)-1])
	}
	return s == pattern
}

func equalPath(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// WithExtension returns indices of parameters whose hierarchical
// `::`-separated names match the pattern. A trailing `*` on the leaf
// name matches any suffix; a leading `^` anchors the pattern at the
// name root.
func (p *FloatParameters) WithExtension(name string) []int {
	completeMatch := false
	if strings.HasPrefix(name, "^") {
		completeMatch = true
		name = name[1:]
	}

	var indices []int
	path2 := strings.Split(name, "::")
	if len(path2) == 0 || name == "" {
		return indices
	}

	for i, par := range *p {
		path1 := strings.Split(par.Name(), "::")

		if path2[0] == "" {
			if len(path1) < 1 {
				continue
			}
			path1 = path1[1:]
		} else if len(path2) > len(path1) {
			continue
		} else if !completeMatch {
			path1 = path1[len(path1)-len(path2):]
		}
		if len(path1) == 0 || !matchLeaf(path1[len(path1)-1], path2[len(path2)-1]) {
			continue
		}
		if equalPath(path1[:len(path1)-1], path2[:len(path2)-1]) {
			indices = append(indices, i)
		}
	}
	return indices
}

// Has tests whether a parameter with the exact name exists.
func (p *FloatParameters) Has(name string) bool {
	for _, par := range *p {
		if par.Name() == name {
			return true
		}
	}
	return false
}

// BasicFloatParameter is the default FloatParameter implementation.
type BasicFloatParameter struct {
	*float64
	old          float64
	name         string
	priorFunc    func(float64) float64
	proposalFunc func(float64) float64
	min          float64
	max          float64
	fixed        bool
	onChange     func()
}

// NewBasicFloatParameter creates a new BasicFloatParameter.
func NewBasicFloatParameter(par *float64, name string) *BasicFloatParameter {
	return &BasicFloatParameter{
		float64:      par,
		name:         name,
		priorFunc:    UniformPrior(-1, 1, true, true),
		proposalFunc: NormalProposal(1),
		min:          math.Inf(-1),
		max:          math.Inf(+1),
	}
}

// BasicFloatParameterGenerator is the FloatParameterGenerator for
// BasicFloatParameter.
func BasicFloatParameterGenerator(par *float64, name string) FloatParameter {
	return NewBasicFloatParameter(par, name)
}

// SetMin sets the lower bound.
func (p *BasicFloatParameter) SetMin(min float64) { p.min = min }

// SetMax sets the upper bound.
func (p *BasicFloatParameter) SetMax(max float64) { p.max = max }

// SetPriorFunc sets the log-prior function.
func (p *BasicFloatParameter) SetPriorFunc(f func(float64) float64) { p.priorFunc = f }

// SetProposalFunc sets the proposal function.
func (p *BasicFloatParameter) SetProposalFunc(f func(float64) float64) { p.proposalFunc = f }

// SetOnChange sets a callback called on every value change.
func (p *BasicFloatParameter) SetOnChange(f func()) { p.onChange = f }

// Fixed reports if the parameter is excluded from sampling.
func (p *BasicFloatParameter) Fixed() bool { return p.fixed }

// SetFixed excludes or includes the parameter in sampling.
func (p *BasicFloatParameter) SetFixed(fixed bool) { p.fixed = fixed }

// Get returns the current value.
func (p *BasicFloatParameter) Get() float64 { return *p.float64 }

// Set changes the value, calling the onChange callback.
func (p *BasicFloatParameter) Set(v float64) {
	if *p.float64 == v {
		// do nothing if value has not changed
		return
	}
	*p.float64 = v
	if p.onChange != nil {
		p.onChange()
	}
}

// GetMin returns the lower bound.
func (p *BasicFloatParameter) GetMin() float64 { return p.min }

// GetMax returns the upper bound.
func (p *BasicFloatParameter) GetMax() float64 { return p.max }

// ValueInRange tests a value against the bounds.
func (p *BasicFloatParameter) ValueInRange(v float64) bool {
	return v >= p.min && v <= p.max
}

// InRange tests the current value against the bounds.
func (p *BasicFloatParameter) InRange() bool {
	return p.ValueInRange(*p.float64)
}

// Name returns the parameter name.
func (p *BasicFloatParameter) Name() string { return p.name }

// Prior returns the log-prior of the current value.
func (p *BasicFloatParameter) Prior() float64 {
	return p.priorFunc(*p.float64)
}

// OldPrior returns the log-prior of the pre-proposal value.
func (p *BasicFloatParameter) OldPrior() float64 {
	return p.priorFunc(p.old)
}

func (p *BasicFloatParameter) reflect() {
	for *p.float64 < p.min || *p.float64 > p.max {
		if *p.float64 < p.min {
			*p.float64 = p.min + (p.min - *p.float64)
		}
		if *p.float64 > p.max {
			*p.float64 = p.max - (*p.float64 - p.max)
		}
	}
}

// Propose replaces the value using the proposal function, reflecting
// off the bounds.
func (p *BasicFloatParameter) Propose() {
	p.old, *p.float64 = *p.float64, p.proposalFunc(*p.float64)
	p.reflect()
	if p.onChange != nil {
		p.onChange()
	}
}

// Reject restores the pre-proposal value.
func (p *BasicFloatParameter) Reject() {
	*p.float64, p.old = p.old, *p.float64
	if p.onChange != nil {
		p.onChange()
	}
}

// Accept is called when a proposed value is accepted.
func (p *BasicFloatParameter) Accept(iter int) {
}

// String formats the current value.
func (p *BasicFloatParameter) String() string {
	return strconv.FormatFloat(*p.float64, 'f', 6, 64)
}
