// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

// Package gmrf implements a Gaussian Markov random field
// prior for the values of a demographic curve.
//
// The prior is a first order random walk
// over the knots of the curve.
// Its precision matrix is
//
//	Q = precision * ((1 - lambda) * I + lambda * W)
//
// where W is a tridiagonal matrix
// with off-diagonal elements -1/dt
// (dt is the distance between consecutive knots)
// or -1 if the weights are not time-aware,
// and diagonal elements equal to the negative sum
// of the off-diagonal elements of the row.
// When lambda is 1,
// Q is an intrinsic random walk,
// with a single zero eigenvalue.
package gmrf

import (
	"errors"
	"fmt"
	"math"

	"github.com/js-arias/skygrid/tridiag"
)

// ErrInvalidConfiguration is returned when a prior
// is defined with an invalid grid,
// or with invalid hyperparameters.
var ErrInvalidConfiguration = errors.New("invalid GMRF configuration")

// EigenTolerance is the relative magnitude
// of an eigenvalue,
// with respect to the largest eigenvalue,
// below which the eigenvalue is taken as zero.
const EigenTolerance = 1e-8

// Prior is a GMRF prior.
//
// A Prior caches the last computed determinant,
// so it is not safe for concurrent use.
type Prior struct {
	w         *tridiag.Matrix
	ev        []float64
	timeAware bool

	// cache
	lastPrec   float64
	lastLambda float64
	lastLogDet float64
	lastRank   int
	cached     bool
}

// New returns a new prior
// for a set of knots.
// If timeAware is true,
// the weights between knots
// are the inverse of the distance between them.
func New(knots []float64, timeAware bool) (*Prior, error) {
	if len(knots) == 0 {
		return nil, fmt.Errorf("%w: without knots", ErrInvalidConfiguration)
	}
	for i, k := range knots {
		if math.IsNaN(k) || math.IsInf(k, 0) {
			return nil, fmt.Errorf("%w: knot %d: invalid value %v", ErrInvalidConfiguration, i, k)
		}
		if i == 0 {
			continue
		}
		if k == knots[i-1] {
			return nil, fmt.Errorf("%w: duplicated knot %d: %v", ErrInvalidConfiguration, i, k)
		}
		if k < knots[i-1] {
			return nil, fmt.Errorf("%w: knot %d: value %v less than %v", ErrInvalidConfiguration, i, k, knots[i-1])
		}
	}

	n := len(knots)
	w := tridiag.New(n)
	for i := range n - 1 {
		v := 1.0
		if timeAware {
			v = 1 / (knots[i+1] - knots[i])
			if math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: knots %d and %d are too close", ErrInvalidConfiguration, i, i+1)
			}
		}
		w.Off[i] = -v
		w.Diag[i] += v
		w.Diag[i+1] += v
	}

	ev, err := w.Eigenvalues()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}
	for i, v := range ev {
		// the structure matrix is positive semi-definite
		if v < 0 {
			ev[i] = 0
		}
	}

	return &Prior{
		w:         w,
		ev:        ev,
		timeAware: timeAware,
	}, nil
}

// Dim returns the dimension of the prior.
func (p *Prior) Dim() int {
	return p.w.Len()
}

// TimeAware returns true if the weights
// are scaled by the distance between knots.
func (p *Prior) TimeAware() bool {
	return p.timeAware
}

// Weights returns a copy of the structure matrix W.
func (p *Prior) Weights() *tridiag.Matrix {
	return p.w.Clone()
}

func checkHyper(precision, lambda float64) error {
	if !(precision > 0) || math.IsInf(precision, 0) {
		return fmt.Errorf("%w: invalid precision %v", ErrInvalidConfiguration, precision)
	}
	if !(lambda >= 0 && lambda <= 1) {
		return fmt.Errorf("%w: invalid mixing %v", ErrInvalidConfiguration, lambda)
	}
	return nil
}

func (p *Prior) checkVector(g []float64) error {
	if len(g) != p.w.Len() {
		return fmt.Errorf("%w: vector of length %d, want %d", ErrInvalidConfiguration, len(g), p.w.Len())
	}
	return nil
}

// Matrix returns the precision matrix
// for a given precision and mixing.
func (p *Prior) Matrix(precision, lambda float64) (*tridiag.Matrix, error) {
	if err := checkHyper(precision, lambda); err != nil {
		return nil, err
	}
	q := p.unitMatrix(lambda)
	for i := range q.Diag {
		q.Diag[i] *= precision
	}
	for i := range q.Off {
		q.Off[i] *= precision
	}
	return q, nil
}

// unitMatrix returns (1-lambda)*I + lambda*W.
func (p *Prior) unitMatrix(lambda float64) *tridiag.Matrix {
	q := tridiag.New(p.w.Len())
	for i, d := range p.w.Diag {
		q.Diag[i] = 1 - lambda + lambda*d
	}
	for i, o := range p.w.Off {
		q.Off[i] = lambda * o
	}
	return q
}

// LogDet returns the generalized log determinant
// of the precision matrix,
// and its rank.
func (p *Prior) LogDet(precision, lambda float64) (float64, int, error) {
	if err := checkHyper(precision, lambda); err != nil {
		return 0, 0, err
	}
	if p.cached && p.lastPrec == precision && p.lastLambda == lambda {
		return p.lastLogDet, p.lastRank, nil
	}

	ev := make([]float64, len(p.ev))
	for i, v := range p.ev {
		ev[i] = precision * (1 - lambda + lambda*v)
	}
	ld, rank, err := tridiag.LogDetValues(ev, EigenTolerance)
	if err != nil {
		return 0, 0, err
	}

	p.lastPrec = precision
	p.lastLambda = lambda
	p.lastLogDet = ld
	p.lastRank = rank
	p.cached = true
	return ld, rank, nil
}

// Rank returns the rank of the precision matrix
// for a given mixing.
func (p *Prior) Rank(lambda float64) (int, error) {
	_, r, err := p.LogDet(1, lambda)
	return r, err
}

// Quad returns the quadratic form
// g' M g,
// where M = (1-lambda)*I + lambda*W,
// i.e., the quadratic form of the precision matrix
// with unit precision.
func (p *Prior) Quad(g []float64, lambda float64) (float64, error) {
	if err := checkHyper(1, lambda); err != nil {
		return 0, err
	}
	if err := p.checkVector(g); err != nil {
		return 0, err
	}
	return (1-lambda)*sumSquares(g) + lambda*p.w.Quad(g), nil
}

// WeightedSSE returns the weighted sum of squared differences
// between consecutive values,
// i.e., g' W g.
func (p *Prior) WeightedSSE(g []float64) (float64, error) {
	if err := p.checkVector(g); err != nil {
		return 0, err
	}
	return p.w.Quad(g), nil
}

// LogDensity returns the log density of the prior,
// up to a constant,
//
//	0.5 * log|Q|* - 0.5 * g' Q g
//
// where log|Q|* is the generalized log determinant.
func (p *Prior) LogDensity(g []float64, precision, lambda float64) (float64, error) {
	ld, _, err := p.LogDet(precision, lambda)
	if err != nil {
		return 0, err
	}
	q, err := p.Quad(g, lambda)
	if err != nil {
		return 0, err
	}
	return 0.5*ld - 0.5*precision*q, nil
}

func sumSquares(g []float64) float64 {
	var s float64
	for _, v := range g {
		s += v * v
	}
	return s
}
