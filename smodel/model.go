// Package smodel provides continuous-time Markov substitution models
// and their transition probability matrices.
package smodel

import (
	"fmt"

	"github.com/gonum/matrix/mat64"
	"github.com/op/go-logging"

	"bitbucket.org/Davydov/treeali/bio"
	"bitbucket.org/Davydov/treeali/optimize"
)

var log = logging.MustGetLogger("smodel")

// Model is a substitution model: a generator over the alphabet
// letters plus equilibrium frequencies.
type Model interface {
	// Alphabet returns the model alphabet.
	Alphabet() *bio.Alphabet
	// NStates returns the number of letters.
	NStates() int
	// Frequencies returns the equilibrium frequencies.
	Frequencies() []float64
	// EM returns the eigendecomposed normalized generator,
	// rebuilding it after parameter changes.
	EM() (*EMatrix, error)
	// AddParameters registers the model parameters.
	AddParameters(fpg optimize.FloatParameterGenerator, params *optimize.FloatParameters, prefix string)
	// SetDefaults resets parameters to default values.
	SetDefaults()
	// SetOnUpdate installs a hook called when a parameter change
	// invalidates the transition matrices.
	SetOnUpdate(func())
	// Copy creates an independent copy.
	Copy() Model
}

type baseModel struct {
	alpha    *bio.Alphabet
	freq     []float64
	em       *EMatrix
	dirty    bool
	onUpdate func()
}

func (m *baseModel) Alphabet() *bio.Alphabet { return m.alpha }
func (m *baseModel) NStates() int            { return m.alpha.Size() }
func (m *baseModel) Frequencies() []float64  { return m.freq }
func (m *baseModel) SetOnUpdate(f func())    { m.onUpdate = f }

func (m *baseModel) touch() {
	m.dirty = true
	if m.onUpdate != nil {
		m.onUpdate()
	}
}

// SetFrequencies replaces the equilibrium frequencies (e.g. with
// observed ones).
func (m *baseModel) SetFrequencies(freq []float64) {
	if len(freq) != m.alpha.Size() {
		panic("frequency vector length mismatch")
	}
	m.freq = append([]float64(nil), freq...)
	m.touch()
}

// buildQ assembles the normalized reversible generator from an
// exchangeability matrix and the frequencies.
func (m *baseModel) buildQ(exch [][]float64) *EMatrix {
	n := m.alpha.Size()
	q := mat64.NewDense(n, n, nil)
	freq := normalized(m.freq)
	scale := 0.0
	for i := 0; i < n; i++ {
		sum := 0.0
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			v := exch[i][j] * freq[j]
			q.Set(i, j, v)
			sum += v
		}
		q.Set(i, i, -sum)
		scale += freq[i] * sum
	}
	if scale <= 0 {
		scale = 1
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			q.Set(i, j, q.At(i, j)/scale)
		}
	}
	if m.em == nil {
		m.em = NewEMatrix(q, scale)
	} else {
		m.em.Set(q, scale)
	}
	m.dirty = false
	return m.em
}

func normalized(x []float64) []float64 {
	sum := 0.0
	for _, v := range x {
		sum += v
	}
	res := make([]float64, len(x))
	for i, v := range x {
		res[i] = v / sum
	}
	return res
}

func uniformFreq(n int) []float64 {
	f := make([]float64, n)
	for i := range f {
		f[i] = 1 / float64(n)
	}
	return f
}

// addFreqParameters registers the frequency simplex as parameters
// named <prefix>pi<letter>.
func (m *baseModel) addFreqParameters(fpg optimize.FloatParameterGenerator, params *optimize.FloatParameters, prefix string) {
	for i := range m.freq {
		par := fpg(&m.freq[i], fmt.Sprintf("%spi%s", prefix, m.alpha.Letter(i)))
		par.SetOnChange(m.touch)
		par.SetMin(1e-6)
		par.SetMax(1)
		par.SetPriorFunc(optimize.UniformPrior(0, 1, false, true))
		params.Append(par)
	}
}

// JC is the Jukes-Cantor model: uniform frequencies, a single rate.
type JC struct {
	baseModel
}

// NewJC creates a Jukes-Cantor model over the alphabet.
func NewJC(alpha *bio.Alphabet) *JC {
	m := &JC{baseModel{alpha: alpha, dirty: true}}
	m.freq = uniformFreq(alpha.Size())
	return m
}

// SetDefaults is a no-op: JC has no free parameters.
func (m *JC) SetDefaults() {}

// AddParameters registers nothing: JC has no free parameters.
func (m *JC) AddParameters(fpg optimize.FloatParameterGenerator, params *optimize.FloatParameters, prefix string) {
}

// EM returns the decomposed generator.
func (m *JC) EM() (*EMatrix, error) {
	if m.em == nil || m.dirty {
		n := m.alpha.Size()
		exch := make([][]float64, n)
		for i := range exch {
			exch[i] = make([]float64, n)
			for j := range exch[i] {
				exch[i][j] = 1
			}
		}
		m.buildQ(exch)
	}
	if err := m.em.Eigen(); err != nil {
		return nil, err
	}
	return m.em, nil
}

// Copy creates an independent copy.
func (m *JC) Copy() Model {
	nm := NewJC(m.alpha)
	nm.freq = append([]float64(nil), m.freq...)
	return nm
}

// HKY is the Hasegawa-Kishino-Yano model: a transition/transversion
// ratio kappa plus nucleotide frequencies.
type HKY struct {
	baseModel
	Kappa float64
}

// NewHKY creates an HKY model over a nucleotide alphabet.
func NewHKY(alpha *bio.Alphabet) *HKY {
	if alpha.Size() != 4 {
		panic("HKY requires a nucleotide alphabet")
	}
	m := &HKY{baseModel: baseModel{alpha: alpha, dirty: true}, Kappa: 2}
	m.freq = uniformFreq(4)
	return m
}

// SetDefaults resets kappa.
func (m *HKY) SetDefaults() {
	m.Kappa = 2
	m.touch()
}

// AddParameters registers kappa and the frequencies.
func (m *HKY) AddParameters(fpg optimize.FloatParameterGenerator, params *optimize.FloatParameters, prefix string) {
	kappa := fpg(&m.Kappa, prefix+"HKY::kappa")
	kappa.SetOnChange(m.touch)
	kappa.SetMin(1e-4)
	kappa.SetMax(100)
	kappa.SetPriorFunc(optimize.LogNormalPrior(0.25, 1))
	kappa.SetProposalFunc(optimize.Between(1e-4, 100, optimize.LogScaled(optimize.CauchyProposal(0.3))))
	params.Append(kappa)
	m.addFreqParameters(fpg, params, prefix+"HKY::")
}

func isTransition(i, j int) bool {
	// letter order A, C, G, T/U
	return (i == 0 && j == 2) || (i == 2 && j == 0) ||
		(i == 1 && j == 3) || (i == 3 && j == 1)
}

// EM returns the decomposed generator.
func (m *HKY) EM() (*EMatrix, error) {
	if m.em == nil || m.dirty {
		exch := make([][]float64, 4)
		for i := range exch {
			exch[i] = make([]float64, 4)
			for j := range exch[i] {
				if isTransition(i, j) {
					exch[i][j] = m.Kappa
				} else {
					exch[i][j] = 1
				}
			}
		}
		m.buildQ(exch)
	}
	if err := m.em.Eigen(); err != nil {
		return nil, err
	}
	return m.em, nil
}

// Copy creates an independent copy.
func (m *HKY) Copy() Model {
	nm := NewHKY(m.alpha)
	nm.freq = append([]float64(nil), m.freq...)
	nm.Kappa = m.Kappa
	return nm
}

// gtrPairs lists the nucleotide pairs of the six GTR exchangeability
// parameters.
var gtrPairs = [6][2]int{{0, 1}, {0, 2}, {0, 3}, {1, 2}, {1, 3}, {2, 3}}

// GTR is the general time-reversible model with six exchangeability
// parameters.
type GTR struct {
	baseModel
	Rates [6]float64
}

// NewGTR creates a GTR model over a nucleotide alphabet.
func NewGTR(alpha *bio.Alphabet) *GTR {
	if alpha.Size() != 4 {
		panic("GTR requires a nucleotide alphabet")
	}
	m := &GTR{baseModel: baseModel{alpha: alpha, dirty: true}}
	m.freq = uniformFreq(4)
	m.SetDefaults()
	return m
}

// SetDefaults resets the exchangeabilities to equal rates.
func (m *GTR) SetDefaults() {
	for i := range m.Rates {
		m.Rates[i] = 1
	}
	m.touch()
}

// AddParameters registers the six exchangeabilities and the
// frequencies.
func (m *GTR) AddParameters(fpg optimize.FloatParameterGenerator, params *optimize.FloatParameters, prefix string) {
	for i := range m.Rates {
		p := gtrPairs[i]
		name := fmt.Sprintf("%sGTR::%s%s", prefix,
			m.alpha.Letter(p[0]), m.alpha.Letter(p[1]))
		par := fpg(&m.Rates[i], name)
		par.SetOnChange(m.touch)
		par.SetMin(1e-6)
		par.SetMax(1e3)
		par.SetPriorFunc(optimize.ExponentialPrior(1, false))
		par.SetProposalFunc(optimize.Between(1e-6, 1e3, optimize.LogScaled(optimize.CauchyProposal(0.3))))
		params.Append(par)
	}
	m.addFreqParameters(fpg, params, prefix+"GTR::")
}

// EM returns the decomposed generator.
func (m *GTR) EM() (*EMatrix, error) {
	if m.em == nil || m.dirty {
		exch := make([][]float64, 4)
		for i := range exch {
			exch[i] = make([]float64, 4)
		}
		for i, p := range gtrPairs {
			exch[p[0]][p[1]] = m.Rates[i]
			exch[p[1]][p[0]] = m.Rates[i]
		}
		m.buildQ(exch)
	}
	if err := m.em.Eigen(); err != nil {
		return nil, err
	}
	return m.em, nil
}

// Copy creates an independent copy.
func (m *GTR) Copy() Model {
	nm := NewGTR(m.alpha)
	nm.freq = append([]float64(nil), m.freq...)
	nm.Rates = m.Rates
	return nm
}

// ObservedFrequencies counts letter frequencies in encoded sequences,
// with a pseudocount to avoid zeros.
func ObservedFrequencies(alpha *bio.Alphabet, rows [][]int) []float64 {
	counts := make([]float64, alpha.Size())
	for i := range counts {
		counts[i] = 1
	}
	for _, row := range rows {
		for _, c := range row {
			if alpha.IsLetter(c) {
				counts[c]++
			}
		}
	}
	return normalized(counts)
}
