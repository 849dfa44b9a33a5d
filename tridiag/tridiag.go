// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

// Package tridiag implements symmetric tridiagonal matrices
// and the few operations required to use them
// as precision matrices:
// matrix-vector products,
// eigenvalues,
// generalized determinants,
// and banded Cholesky factorizations.
package tridiag

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/gonum/lapack/gonum"
	"gonum.org/v1/gonum/lapack/lapack64"
	"gonum.org/v1/gonum/mat"
)

// ErrNotPositiveDefinite is returned when a matrix
// that must be positive definite
// (or semi-definite)
// is not.
var ErrNotPositiveDefinite = errors.New("matrix is not positive definite")

// A Matrix is a symmetric tridiagonal matrix.
type Matrix struct {
	// Diag is the main diagonal.
	Diag []float64

	// Off is the first off-diagonal,
	// Off[i] is the element at (i, i+1).
	Off []float64
}

// New returns a new n×n zero matrix.
func New(n int) *Matrix {
	if n < 1 {
		panic("tridiag: non-positive dimension")
	}
	return &Matrix{
		Diag: make([]float64, n),
		Off:  make([]float64, n-1),
	}
}

// Len returns the dimension of the matrix.
func (m *Matrix) Len() int {
	return len(m.Diag)
}

// At returns the value at row i, column j.
func (m *Matrix) At(i, j int) float64 {
	if i > j {
		i, j = j, i
	}
	switch j - i {
	case 0:
		return m.Diag[i]
	case 1:
		return m.Off[i]
	}
	return 0
}

// Clone returns a copy of the matrix.
func (m *Matrix) Clone() *Matrix {
	return &Matrix{
		Diag: append([]float64(nil), m.Diag...),
		Off:  append([]float64(nil), m.Off...),
	}
}

// AddDiag adds the values of d
// to the main diagonal.
func (m *Matrix) AddDiag(d []float64) {
	if len(d) != len(m.Diag) {
		panic("tridiag: dimension mismatch")
	}
	for i, v := range d {
		m.Diag[i] += v
	}
}

// MulVec stores m·x in dst
// and returns it.
// If dst is nil,
// a new slice will be allocated.
func (m *Matrix) MulVec(dst, x []float64) []float64 {
	n := len(m.Diag)
	if len(x) != n {
		panic("tridiag: dimension mismatch")
	}
	if dst == nil {
		dst = make([]float64, n)
	}
	for i := range n {
		v := m.Diag[i] * x[i]
		if i > 0 {
			v += m.Off[i-1] * x[i-1]
		}
		if i < n-1 {
			v += m.Off[i] * x[i+1]
		}
		dst[i] = v
	}
	return dst
}

// Quad returns the quadratic form xᵀ·m·x.
func (m *Matrix) Quad(x []float64) float64 {
	if len(x) != len(m.Diag) {
		panic("tridiag: dimension mismatch")
	}
	var q float64
	for i, d := range m.Diag {
		q += d * x[i] * x[i]
	}
	for i, o := range m.Off {
		q += 2 * o * x[i] * x[i+1]
	}
	return q
}

// Dense returns the matrix as a dense symmetric matrix.
func (m *Matrix) Dense() *mat.SymDense {
	n := len(m.Diag)
	s := mat.NewSymDense(n, nil)
	for i, d := range m.Diag {
		s.SetSym(i, i, d)
	}
	for i, o := range m.Off {
		s.SetSym(i, i+1, o)
	}
	return s
}

// Eigenvalues returns the eigenvalues of the matrix
// in ascending order.
func (m *Matrix) Eigenvalues() ([]float64, error) {
	n := len(m.Diag)
	d := append([]float64(nil), m.Diag...)
	e := append([]float64(nil), m.Off...)
	if ok := (gonum.Implementation{}).Dsterf(n, d, e); !ok {
		return nil, errors.New("tridiag: eigenvalues did not converge")
	}
	return d, nil
}

// GeneralizedLogDet returns the logarithm
// of the product of the non-zero eigenvalues
// of a positive semi-definite matrix,
// and the number of eigenvalues used
// (i.e., the rank of the matrix).
//
// An eigenvalue is taken as zero
// if its absolute value is below tol
// times the largest eigenvalue.
func (m *Matrix) GeneralizedLogDet(tol float64) (logDet float64, rank int, err error) {
	ev, err := m.Eigenvalues()
	if err != nil {
		return 0, 0, err
	}
	return LogDetValues(ev, tol)
}

// LogDetValues returns the generalized log determinant
// and rank
// from a set of eigenvalues sorted in ascending order.
func LogDetValues(ev []float64, tol float64) (logDet float64, rank int, err error) {
	if len(ev) == 0 {
		return 0, 0, nil
	}
	top := ev[len(ev)-1]
	if top <= 0 {
		return 0, 0, nil
	}
	threshold := tol * top
	for _, v := range ev {
		if v < -threshold {
			return 0, 0, fmt.Errorf("%w: eigenvalue %g", ErrNotPositiveDefinite, v)
		}
		if v <= threshold {
			continue
		}
		logDet += math.Log(v)
		rank++
	}
	return logDet, rank, nil
}

// Cholesky is the Cholesky factorization
// m = Uᵀ·U
// of a positive definite tridiagonal matrix,
// stored as a band matrix.
type Cholesky struct {
	u blas64.TriangularBand
}

// Cholesky returns the Cholesky factorization of the matrix.
// It returns ErrNotPositiveDefinite
// if the matrix is not positive definite.
func (m *Matrix) Cholesky() (*Cholesky, error) {
	n := len(m.Diag)

	// upper band storage:
	// row i stores (i,i) and (i,i+1)
	data := make([]float64, 2*n)
	for i, d := range m.Diag {
		data[2*i] = d
	}
	for i, o := range m.Off {
		data[2*i+1] = o
	}

	a := blas64.SymmetricBand{
		Uplo:   blas.Upper,
		N:      n,
		K:      1,
		Data:   data,
		Stride: 2,
	}
	u, ok := lapack64.Pbtrf(a)
	if !ok {
		return nil, ErrNotPositiveDefinite
	}
	for i := range n {
		if d := u.Data[2*i]; !(d > 0) || math.IsInf(d, 0) {
			return nil, ErrNotPositiveDefinite
		}
	}
	return &Cholesky{u: u}, nil
}

// Len returns the dimension of the factorized matrix.
func (c *Cholesky) Len() int {
	return c.u.N
}

// LogDet returns the log determinant
// of the factorized matrix.
func (c *Cholesky) LogDet() float64 {
	var ld float64
	for i := range c.u.N {
		ld += math.Log(c.u.Data[2*i])
	}
	return 2 * ld
}

// SolveU solves U·x = b,
// and stores x in dst.
func (c *Cholesky) SolveU(dst, b []float64) []float64 {
	return c.solve(blas.NoTrans, dst, b)
}

// SolveUT solves Uᵀ·x = b,
// and stores x in dst.
func (c *Cholesky) SolveUT(dst, b []float64) []float64 {
	return c.solve(blas.Trans, dst, b)
}

// MulU stores U·x in dst
// and returns it.
func (c *Cholesky) MulU(dst, x []float64) []float64 {
	n := c.u.N
	if len(x) != n {
		panic("tridiag: dimension mismatch")
	}
	if dst == nil {
		dst = make([]float64, n)
	}
	for i := range n {
		v := c.u.Data[2*i] * x[i]
		if i < n-1 {
			v += c.u.Data[2*i+1] * x[i+1]
		}
		dst[i] = v
	}
	return dst
}

// Solve solves m·x = b,
// and stores x in dst.
func (c *Cholesky) Solve(dst, b []float64) []float64 {
	dst = c.SolveUT(dst, b)
	return c.SolveU(dst, dst)
}

func (c *Cholesky) solve(t blas.Transpose, dst, b []float64) []float64 {
	if len(b) != c.u.N {
		panic("tridiag: dimension mismatch")
	}
	if dst == nil {
		dst = make([]float64, c.u.N)
	}
	copy(dst, b)
	blas64.Tbsv(t, c.u, blas64.Vector{N: c.u.N, Data: dst, Inc: 1})
	return dst
}
