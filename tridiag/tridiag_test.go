// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

package tridiag_test

import (
	"errors"
	"math"
	"testing"

	"github.com/js-arias/skygrid/tridiag"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func newMatrix() *tridiag.Matrix {
	return &tridiag.Matrix{
		Diag: []float64{4, 5, 6, 3},
		Off:  []float64{-1, 2, -0.5},
	}
}

func TestMulVec(t *testing.T) {
	m := newMatrix()
	x := []float64{1, -2, 0.5, 3}

	got := m.MulVec(nil, x)
	want := make([]float64, len(x))
	mat.NewVecDense(len(want), want).MulVec(m.Dense(), mat.NewVecDense(len(x), x))
	if !floats.EqualApprox(got, want, 1e-12) {
		t.Errorf("mulvec: got %v, want %v", got, want)
	}

	q := m.Quad(x)
	if w := floats.Dot(x, want); math.Abs(q-w) > 1e-12 {
		t.Errorf("quad: got %.6f, want %.6f", q, w)
	}
}

func TestEigenvalues(t *testing.T) {
	m := newMatrix()
	ev, err := m.Eigenvalues()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var es mat.EigenSym
	if ok := es.Factorize(m.Dense(), false); !ok {
		t.Fatalf("dense eigen decomposition failed")
	}
	want := es.Values(nil)
	if !floats.EqualApprox(ev, want, 1e-10) {
		t.Errorf("eigenvalues: got %v, want %v", ev, want)
	}
}

func TestGeneralizedLogDet(t *testing.T) {
	// random walk matrix,
	// it has a single zero eigenvalue
	n := 6
	m := tridiag.New(n)
	for i := range n - 1 {
		m.Off[i] = -1
		m.Diag[i]++
		m.Diag[i+1]++
	}

	ld, rank, err := m.GeneralizedLogDet(1e-8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rank != n-1 {
		t.Errorf("rank: got %d, want %d", rank, n-1)
	}

	// the product of the non-zero eigenvalues
	// of the path Laplacian is n
	if want := math.Log(float64(n)); math.Abs(ld-want) > 1e-8 {
		t.Errorf("log det: got %.8f, want %.8f", ld, want)
	}

	if _, _, err := tridiag.LogDetValues([]float64{-1, 2}, 1e-8); !errors.Is(err, tridiag.ErrNotPositiveDefinite) {
		t.Errorf("negative eigenvalue: got error %v, want %v", err, tridiag.ErrNotPositiveDefinite)
	}
}

func TestCholesky(t *testing.T) {
	m := newMatrix()
	c, err := m.Cholesky()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := math.Log(mat.Det(m.Dense()))
	if ld := c.LogDet(); math.Abs(ld-want) > 1e-10 {
		t.Errorf("log det: got %.8f, want %.8f", ld, want)
	}

	b := []float64{1, 2, 3, 4}
	x := c.Solve(nil, b)
	if got := m.MulVec(nil, x); !floats.EqualApprox(got, b, 1e-10) {
		t.Errorf("solve: got %v, want %v", got, b)
	}

	// Uᵀ·U = m
	y := c.SolveUT(nil, b)
	z := c.SolveU(nil, y)
	if !floats.EqualApprox(z, x, 1e-10) {
		t.Errorf("triangular solves: got %v, want %v", z, x)
	}

	u := c.MulU(nil, b)
	if got, want := floats.Dot(u, u), m.Quad(b); math.Abs(got-want) > 1e-10 {
		t.Errorf("squared norm of U·b: got %.8f, want %.8f", got, want)
	}

	bad := &tridiag.Matrix{
		Diag: []float64{1, -2},
		Off:  []float64{0.5},
	}
	if _, err := bad.Cholesky(); !errors.Is(err, tridiag.ErrNotPositiveDefinite) {
		t.Errorf("indefinite matrix: got error %v, want %v", err, tridiag.ErrNotPositiveDefinite)
	}
}
