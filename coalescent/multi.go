// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

package coalescent

import (
	"fmt"

	"github.com/js-arias/skygrid/demog"
	"github.com/js-arias/skygrid/intervals"
	"gonum.org/v1/gonum/floats"
)

// Multi is the coalescent likelihood
// of several loci
// (i.e., independent genealogies)
// that share a demographic curve.
// The log likelihood is the sum
// of the log likelihood of each locus,
// with its own ploidy factor.
//
// A Multi is not safe for concurrent use.
type Multi struct {
	curve *demog.Curve
	loci  []*Likelihood

	grad []float64
	hess []float64
}

// NewMulti returns the likelihood of a set of loci
// that share a demographic curve.
// Ploidy is the ploidy factor of each locus,
// if it is nil,
// all loci have a ploidy factor of 1.
func NewMulti(c *demog.Curve, src []intervals.Source, ploidy []float64) (*Multi, error) {
	if len(src) == 0 {
		return nil, fmt.Errorf("%w: without loci", ErrInvalidConfiguration)
	}
	if ploidy != nil && len(ploidy) != len(src) {
		return nil, fmt.Errorf("%w: got %d ploidy factors, want %d", ErrInvalidConfiguration, len(ploidy), len(src))
	}

	m := &Multi{
		curve: c,
		loci:  make([]*Likelihood, 0, len(src)),
		grad:  make([]float64, c.Dim()),
		hess:  make([]float64, c.Dim()),
	}
	for i, s := range src {
		l, err := New(s, c)
		if err != nil {
			return nil, fmt.Errorf("locus %d: %w", i, err)
		}
		if ploidy != nil {
			if err := l.SetPloidy(ploidy[i]); err != nil {
				return nil, fmt.Errorf("locus %d: %w", i, err)
			}
		}
		m.loci = append(m.loci, l)
	}
	return m, nil
}

// Curve returns the demographic curve of the likelihood.
func (m *Multi) Curve() *demog.Curve {
	return m.curve
}

// Dim returns the number of parameters
// of the likelihood.
func (m *Multi) Dim() int {
	return m.curve.Dim()
}

// Len returns the number of loci.
func (m *Multi) Len() int {
	return len(m.loci)
}

// Locus returns the likelihood of the i-th locus.
func (m *Multi) Locus(i int) *Likelihood {
	return m.loci[i]
}

// LogLikelihood returns the log likelihood
// for a vector of log population sizes.
func (m *Multi) LogLikelihood(g []float64) (float64, error) {
	return m.Derivatives(g, nil, nil)
}

// Derivatives returns the log likelihood
// for a vector of log population sizes,
// and stores in grad and hess
// the gradient and the diagonal of the Hessian
// of the log likelihood.
// Either grad or hess can be nil.
func (m *Multi) Derivatives(g, grad, hess []float64) (float64, error) {
	dim := m.curve.Dim()
	if grad != nil && len(grad) != dim {
		return 0, fmt.Errorf("%w: gradient of length %d, want %d", ErrIndex, len(grad), dim)
	}
	if hess != nil && len(hess) != dim {
		return 0, fmt.Errorf("%w: hessian of length %d, want %d", ErrIndex, len(hess), dim)
	}

	var lg, lh []float64
	if grad != nil {
		lg = m.grad
	}
	if hess != nil {
		lh = m.hess
	}
	clear(grad)
	clear(hess)

	var ll float64
	for i, l := range m.loci {
		v, err := l.Derivatives(g, lg, lh)
		if err != nil {
			return 0, fmt.Errorf("locus %d: %w", i, err)
		}
		ll += v
		if grad != nil {
			floats.Add(grad, lg)
		}
		if hess != nil {
			floats.Add(hess, lh)
		}
	}
	demog.Clamp(grad)
	demog.Clamp(hess)
	return demog.Finite(ll), nil
}

// Statistics returns the sum of the sufficient statistics
// of all loci.
func (m *Multi) Statistics() Statistics {
	n := m.curve.Segments()
	st := Statistics{
		Shape:  make([]float64, n),
		Rate:   make([]float64, n),
		Offset: make([]float64, n),
	}
	for _, l := range m.loci {
		ls := l.Statistics()
		floats.Add(st.Shape, ls.Shape)
		floats.Add(st.Rate, ls.Rate)
		floats.Add(st.Offset, ls.Offset)
	}
	return st
}
