package smodel

import (
	"errors"
	"math"

	"github.com/gonum/matrix/mat64"
)

// EMatrix stores a Q-matrix and its eigendecomposition to quickly
// compute e^Qt.
type EMatrix struct {
	// Q is the generator matrix.
	Q *mat64.Dense
	// Scale is the mean substitution rate of the unnormalized
	// generator; Q itself is stored normalized to rate 1.
	Scale float64
	v     *mat64.Dense
	d     *mat64.Dense
	iv    *mat64.Dense
}

// NewEMatrix creates a new EMatrix.
func NewEMatrix(Q *mat64.Dense, scale float64) *EMatrix {
	return &EMatrix{Q: Q, Scale: scale}
}

// Copy creates a copy of EMatrix while saving eigendecomposition.
func (m *EMatrix) Copy() *EMatrix {
	return &EMatrix{Q: m.Q, Scale: m.Scale, v: m.v, d: m.d, iv: m.iv}
}

// Set sets the Q-matrix and its scale, dropping the decomposition.
func (m *EMatrix) Set(Q *mat64.Dense, scale float64) {
	m.Q = Q
	m.Scale = scale
	m.v = nil
}

// Eigen performs eigendecomposition.
func (m *EMatrix) Eigen() (err error) {
	if m.v != nil {
		return nil
	}
	rows, cols := m.Q.Dims()
	if m.iv == nil {
		m.iv = mat64.NewDense(cols, rows, nil)
	}

	decomp := mat64.Eigen(m.Q, 1e-8)
	m.v = decomp.V
	m.d = decomp.D()
	err = m.iv.Inverse(m.v)
	if err != nil {
		return err
	}
	return nil
}

// Exp computes P=e^Qt, using cD as diagonal scratch space.
func (m *EMatrix) Exp(cD *mat64.Dense, t float64) (*mat64.Dense, error) {
	if m.v == nil {
		if err := m.Eigen(); err != nil {
			return nil, err
		}
	}
	rows, cols := m.Q.Dims()
	if cols != rows {
		return nil, errors.New("D isn't a square matrix")
	}
	if math.IsInf(t, 1) {
		t = math.MaxFloat64
	}

	for i := 0; i < rows; i++ {
		cD.Set(i, i, math.Exp(m.d.At(i, i)*t))
	}
	res := mat64.NewDense(cols, rows, nil)
	res.Mul(m.v, cD)
	res.Mul(res, m.iv)
	// Remove slightly negative values
	res.Apply(func(r, c int, v float64) float64 {
		return math.Max(0, v)
	}, res)
	return res, nil
}
