// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

package blockupdate

import (
	"errors"
	"fmt"
	"math"

	"github.com/js-arias/skygrid/tridiag"
	"gonum.org/v1/gonum/floats"
)

// ErrConvergence is returned when the Newton-Raphson search
// does not reach the tolerance
// within the maximum number of iterations.
var ErrConvergence = errors.New("Newton-Raphson failed to converge")

// maxStep is the maximum absolute change
// of any value in a single Newton-Raphson step.
const maxStep = 5.0

// A Target is a log likelihood
// over a vector of log population sizes.
type Target interface {
	// Dim returns the dimension of the vector.
	Dim() int

	// Derivatives returns the log likelihood
	// and stores the gradient
	// and the diagonal of the Hessian
	// in grad and hess.
	Derivatives(g, grad, hess []float64) (float64, error)
}

// NewtonRaphson searches the mode of the log posterior
//
//	L(x) - 0.5 * x' Q x
//
// starting from start,
// where L is the target log likelihood
// and Q is the precision matrix of the prior.
// The Hessian of L is approximated by its diagonal.
//
// It returns the mode
// and the number of iterations used.
// If the gradient norm is not below tol
// after maxIter iterations
// it returns ErrConvergence.
// If the negative Hessian of the posterior
// is not positive definite
// it returns tridiag.ErrNotPositiveDefinite.
func NewtonRaphson(t Target, q *tridiag.Matrix, start []float64, tol float64, maxIter int) ([]float64, int, error) {
	n := t.Dim()
	if len(start) != n || q.Len() != n {
		return nil, 0, fmt.Errorf("newton-raphson: vector of length %d, want %d", len(start), n)
	}

	x := append([]float64(nil), start...)
	grad := make([]float64, n)
	hess := make([]float64, n)
	qx := make([]float64, n)
	step := make([]float64, n)

	for it := 0; ; it++ {
		if _, err := t.Derivatives(x, grad, hess); err != nil {
			return nil, it, err
		}
		q.MulVec(qx, x)
		floats.Sub(grad, qx)
		if floats.Norm(grad, 2) < tol {
			return x, it, nil
		}
		if it >= maxIter {
			return nil, it, fmt.Errorf("%w: gradient norm %.6g after %d iterations", ErrConvergence, floats.Norm(grad, 2), it)
		}

		j := q.Clone()
		floats.Scale(-1, hess)
		j.AddDiag(hess)
		ch, err := j.Cholesky()
		if err != nil {
			return nil, it, err
		}
		ch.Solve(step, grad)

		if m := floats.Norm(step, math.Inf(1)); m > maxStep {
			floats.Scale(maxStep/m, step)
		}
		floats.Add(x, step)
		for _, v := range x {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, it, fmt.Errorf("%w: non finite value after %d iterations", ErrConvergence, it)
			}
		}
	}
}

// laplace is a Gaussian approximation
// of the conditional posterior
// around a mode.
type laplace struct {
	mean []float64
	ch   *tridiag.Cholesky
}

// newLaplace returns the Gaussian approximation
// at mode m,
// using the precision matrix
//
//	P = Q + D
//
// where D is the negative diagonal Hessian
// of the target at m.
func newLaplace(t Target, q *tridiag.Matrix, m []float64) (*laplace, error) {
	n := len(m)
	grad := make([]float64, n)
	hess := make([]float64, n)
	if _, err := t.Derivatives(m, grad, hess); err != nil {
		return nil, err
	}

	p := q.Clone()
	b := make([]float64, n)
	for i, h := range hess {
		hess[i] = -h
		b[i] = grad[i] - h*m[i]
	}
	p.AddDiag(hess)
	ch, err := p.Cholesky()
	if err != nil {
		return nil, err
	}
	return &laplace{
		mean: ch.Solve(nil, b),
		ch:   ch,
	}, nil
}

// draw returns a random vector from the approximation,
// and its log density
// (without the normalizing constant).
func (l *laplace) draw(norm func() float64) ([]float64, float64) {
	n := len(l.mean)
	z := make([]float64, n)
	for i := range z {
		z[i] = norm()
	}
	x := l.ch.SolveU(nil, z)
	floats.Add(x, l.mean)
	return x, 0.5*l.ch.LogDet() - 0.5*floats.Dot(z, z)
}

// logProb returns the log density of x
// (without the normalizing constant).
func (l *laplace) logProb(x []float64) float64 {
	d := make([]float64, len(x))
	floats.SubTo(d, x, l.mean)

	// (x-m)' U'U (x-m) = |U (x-m)|^2
	u := l.ch.MulU(nil, d)
	q := floats.Dot(u, u)
	return 0.5*l.ch.LogDet() - 0.5*q
}
