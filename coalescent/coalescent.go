// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

// Package coalescent implements the coalescent likelihood
// of a set of coalescent intervals
// given a demographic curve.
//
// The log likelihood is
//
//	sum_i -C(k_i, 2) * integral[t_i, t_i+1] 1/(p*N(t)) dt - sum_c log(p*N(t_c))
//
// where k_i is the number of lineages
// during the interval i,
// t_c is the time of each coalescent event,
// and p is the ploidy factor of the locus
// (1 for an autosomal locus of a diploid,
// 0.25 for a mitochondrial locus).
package coalescent

import (
	"fmt"
	"math"

	"github.com/js-arias/skygrid/demog"
	"github.com/js-arias/skygrid/intervals"
)

// ErrIndex is returned when a parameter index
// is outside the dimension of the curve.
var ErrIndex = demog.ErrIndex

// ErrInvalidConfiguration is returned
// for an invalid ploidy factor
// or an invalid set of loci.
var ErrInvalidConfiguration = demog.ErrInvalidConfiguration

// Statistics are the sufficient statistics
// of a set of intervals
// over the segments of a curve.
type Statistics struct {
	// Shape is the number of coalescent events
	// in each segment.
	Shape []float64

	// Rate is the sum over each segment
	// of the number of lineage pairs
	// times the duration of the overlap
	// of each interval with the segment,
	// divided by the ploidy factor.
	Rate []float64

	// Offset is the log likelihood term
	// of the ploidy factor in each segment,
	// i.e. -Shape*log(ploidy).
	Offset []float64
}

// Likelihood is a coalescent likelihood.
//
// A Likelihood is not safe for concurrent use.
type Likelihood struct {
	src   intervals.Source
	curve *demog.Curve
	times []float64
	stats *Statistics

	ploidy    float64
	logPloidy float64
}

// New returns a new coalescent likelihood
// for a source of intervals
// and a demographic curve.
func New(src intervals.Source, c *demog.Curve) (*Likelihood, error) {
	l := &Likelihood{curve: c, ploidy: 1}
	if err := l.SetSource(src); err != nil {
		return nil, err
	}
	return l, nil
}

// SetSource sets a new source of intervals,
// for example,
// after a change in the genealogy.
// The source should not be modified
// while it is used by the likelihood.
func (l *Likelihood) SetSource(src intervals.Source) error {
	n := src.IntervalCount()
	if n == 0 {
		return fmt.Errorf("%w: without intervals", intervals.ErrInvalid)
	}
	for i := range n {
		if d := src.Duration(i); !(d >= 0) || math.IsInf(d, 0) {
			return fmt.Errorf("%w: interval %d: invalid duration %v", intervals.ErrInvalid, i, d)
		}
		if src.LineageCount(i) < 1 {
			return fmt.Errorf("%w: interval %d: invalid lineage count %d", intervals.ErrInvalid, i, src.LineageCount(i))
		}
	}
	times := intervals.Times(src)
	if _, err := l.curve.Segment(times[0]); err != nil {
		return err
	}
	if _, err := l.curve.Segment(times[n]); err != nil {
		return err
	}

	l.src = src
	l.times = times
	l.stats = nil
	return nil
}

// Ploidy returns the ploidy factor of the locus.
func (l *Likelihood) Ploidy() float64 {
	return l.ploidy
}

// SetPloidy sets the ploidy factor of the locus,
// i.e. the scale of its effective population size
// relative to the curve.
func (l *Likelihood) SetPloidy(p float64) error {
	if !(p > 0) || math.IsInf(p, 0) {
		return fmt.Errorf("%w: invalid ploidy factor %v", ErrInvalidConfiguration, p)
	}
	l.ploidy = p
	l.logPloidy = math.Log(p)
	l.stats = nil
	return nil
}

// Curve returns the demographic curve of the likelihood.
func (l *Likelihood) Curve() *demog.Curve {
	return l.curve
}

// Dim returns the number of parameters
// of the likelihood.
func (l *Likelihood) Dim() int {
	return l.curve.Dim()
}

func (l *Likelihood) check(g []float64) error {
	if len(g) != l.curve.Dim() {
		return fmt.Errorf("%w: vector of length %d, want %d", ErrIndex, len(g), l.curve.Dim())
	}
	for i, v := range g {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: value %d is %v", demog.ErrDomain, i, v)
		}
	}
	return nil
}

// LogLikelihood returns the log likelihood
// for a vector of log population sizes.
func (l *Likelihood) LogLikelihood(g []float64) (float64, error) {
	return l.Derivatives(g, nil, nil)
}

// Derivatives returns the log likelihood
// for a vector of log population sizes,
// and stores in grad and hess
// the gradient and the diagonal of the Hessian
// of the log likelihood.
// Either grad or hess can be nil.
func (l *Likelihood) Derivatives(g, grad, hess []float64) (float64, error) {
	if err := l.check(g); err != nil {
		return 0, err
	}
	dim := l.curve.Dim()
	if grad != nil && len(grad) != dim {
		return 0, fmt.Errorf("%w: gradient of length %d, want %d", ErrIndex, len(grad), dim)
	}
	if hess != nil && len(hess) != dim {
		return 0, fmt.Errorf("%w: hessian of length %d, want %d", ErrIndex, len(hess), dim)
	}
	clear(grad)
	clear(hess)

	var v float64
	if l.curve.Shape() == demog.Constant {
		v = l.fromStatistics(g, grad, hess)
	} else {
		v = l.walk(g, grad, hess)
	}
	demog.Clamp(grad)
	demog.Clamp(hess)
	return demog.Finite(v), nil
}

// GradientAt returns the derivative of the log likelihood
// with respect to the i-th parameter.
func (l *Likelihood) GradientAt(g []float64, i int) (float64, error) {
	if i < 0 || i >= l.curve.Dim() {
		return 0, fmt.Errorf("%w: parameter %d", ErrIndex, i)
	}
	grad := make([]float64, l.curve.Dim())
	if _, err := l.Derivatives(g, grad, nil); err != nil {
		return 0, err
	}
	return grad[i], nil
}

// HessianAt returns the second derivative of the log likelihood
// with respect to the i-th parameter.
func (l *Likelihood) HessianAt(g []float64, i int) (float64, error) {
	if i < 0 || i >= l.curve.Dim() {
		return 0, fmt.Errorf("%w: parameter %d", ErrIndex, i)
	}
	hess := make([]float64, l.curve.Dim())
	if _, err := l.Derivatives(g, nil, hess); err != nil {
		return 0, err
	}
	return hess[i], nil
}

// walk evaluates the likelihood
// traversing the intervals and the segments of the curve
// at the same time.
func (l *Likelihood) walk(g, grad, hess []float64) float64 {
	var ll float64
	seg := 0
	for i := range l.src.IntervalCount() {
		a, b := l.times[i], l.times[i+1]
		for a >= l.curve.SegmentEnd(seg) {
			seg++
		}

		if pairs := choose2(l.src.LineageCount(i)) / l.ploidy; pairs > 0 && b > a {
			w := -pairs
			for {
				end := min(b, l.curve.SegmentEnd(seg))
				ll += w * l.curve.SegmentIntegral(g, seg, a, end, w, grad, hess)
				if end >= b {
					break
				}
				a = end
				seg++
			}
		}

		if !l.src.IsCoalescent(i) {
			continue
		}
		for b >= l.curve.SegmentEnd(seg) {
			seg++
		}
		ll -= l.curve.SegmentLogPopSize(g, seg, b, -1, grad, hess) + l.logPloidy
	}
	return ll
}

// Statistics returns the sufficient statistics
// of the intervals over each segment of the curve.
// A coalescent event at the exact time of a grid point
// is assigned to the segment that starts at that point.
func (l *Likelihood) Statistics() Statistics {
	if l.stats == nil {
		l.stats = l.statistics()
	}
	return Statistics{
		Shape:  append([]float64(nil), l.stats.Shape...),
		Rate:   append([]float64(nil), l.stats.Rate...),
		Offset: append([]float64(nil), l.stats.Offset...),
	}
}

func (l *Likelihood) statistics() *Statistics {
	n := l.curve.Segments()
	st := &Statistics{
		Shape:  make([]float64, n),
		Rate:   make([]float64, n),
		Offset: make([]float64, n),
	}

	seg := 0
	for i := range l.src.IntervalCount() {
		a, b := l.times[i], l.times[i+1]
		for a >= l.curve.SegmentEnd(seg) {
			seg++
		}
		if pairs := choose2(l.src.LineageCount(i)) / l.ploidy; pairs > 0 && b > a {
			for {
				end := min(b, l.curve.SegmentEnd(seg))
				st.Rate[seg] += pairs * (end - a)
				if end >= b {
					break
				}
				a = end
				seg++
			}
		}

		if !l.src.IsCoalescent(i) {
			continue
		}
		for b >= l.curve.SegmentEnd(seg) {
			seg++
		}
		st.Shape[seg]++
		st.Offset[seg] -= l.logPloidy
	}
	return st
}

func (l *Likelihood) fromStatistics(g, grad, hess []float64) float64 {
	if l.stats == nil {
		l.stats = l.statistics()
	}
	return l.stats.eval(g, grad, hess)
}

// eval evaluates the log likelihood
// of a constant curve
// from the sufficient statistics.
func (st *Statistics) eval(g, grad, hess []float64) float64 {
	var ll float64
	for j, v := range g {
		sh := st.Shape[j]
		r := st.Rate[j] * demog.ExpNeg(v)
		ll += -sh*v + st.Offset[j] - r
		if grad != nil {
			grad[j] = -sh + r
		}
		if hess != nil {
			hess[j] = -r
		}
	}
	return ll
}

// NodeHeightGradient returns the derivatives
// of the log likelihood
// with respect to the height of each node.
// The first event of the intervals
// is taken as fixed.
func (l *Likelihood) NodeHeightGradient(g []float64) ([]float64, error) {
	if err := l.check(g); err != nil {
		return nil, err
	}

	n := l.src.IntervalCount()
	gh := make([]float64, l.src.NodeCount())

	// segment of each event time
	seg := 0
	segAt := func(t float64) int {
		for t >= l.curve.SegmentEnd(seg) {
			seg++
		}
		return seg
	}

	for i := range n {
		t := l.times[i+1]
		s := segAt(t)
		inv := demog.ExpNeg(l.curve.SegmentLogPopSize(g, s, t, 0, nil, nil)) / l.ploidy

		d := -choose2(l.src.LineageCount(i)) * inv
		if i+1 < n {
			d += choose2(l.src.LineageCount(i+1)) * inv
		}
		if l.src.IsCoalescent(i) {
			d -= l.curve.SegmentSlope(g, s, t)
		}
		node := l.src.EventNode(i)
		gh[node] = demog.Finite(gh[node] + d)
	}
	return gh, nil
}

func choose2(k int) float64 {
	return float64(k) * float64(k-1) / 2
}
