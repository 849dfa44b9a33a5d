// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

// Package demog implements demographic curves,
// i.e., the logarithm of the effective population size
// as a function of time,
// defined by a vector of log population sizes
// attached to the knots of a time grid.
//
// The knots of a grid are the time 0
// (the present, or the youngest sample)
// and a set of strictly increasing grid points
// x1 < x2 < ... < xK.
// A curve of a grid with K points
// has K+1 parameters,
// the log population size at each knot.
// Segment j of the curve is the time interval
// between knot j and knot j+1;
// the last segment is open
// (it extends to the infinite past).
//
// Three curve shapes are implemented:
//
//   - Constant, the log population size is constant
//     over each segment (a skyline);
//   - LogLinear, the log population size is linearly
//     interpolated between knots,
//     and constant on the last segment;
//   - Sigmoid, the inverse of the population size
//     is a skyline inverse smoothed
//     with logistic steps at each grid point.
package demog

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
)

// Errors returned by demographic curves.
var (
	// ErrInvalidConfiguration is returned when a curve
	// is defined with an invalid grid or parameters.
	ErrInvalidConfiguration = errors.New("invalid curve configuration")

	// ErrDomain is returned when a time
	// is outside the domain of a curve.
	ErrDomain = errors.New("time outside curve domain")

	// ErrIndex is returned when a vector
	// or a parameter index
	// does not match the dimension of a curve.
	ErrIndex = errors.New("index out of range")
)

// Shape is the shape of a demographic curve.
type Shape int

// Valid curve shapes.
const (
	Constant Shape = iota
	LogLinear
	Sigmoid
)

var shapeNames = map[Shape]string{
	Constant:  "constant",
	LogLinear: "loglinear",
	Sigmoid:   "sigmoid",
}

func (s Shape) String() string {
	if n, ok := shapeNames[s]; ok {
		return n
	}
	return fmt.Sprintf("shape(%d)", int(s))
}

// ParseShape returns a shape from its name.
// The aliases "skyline", "skyglide", and "smooth"
// are also accepted.
func ParseShape(name string) (Shape, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "constant", "skyline":
		return Constant, nil
	case "loglinear", "log-linear", "skyglide":
		return LogLinear, nil
	case "sigmoid", "smooth":
		return Sigmoid, nil
	}
	return Constant, fmt.Errorf("%w: unknown shape %q", ErrInvalidConfiguration, name)
}

// Param contains the parameters
// used to define a curve.
type Param struct {
	// Grid points,
	// in strictly increasing order,
	// and greater than 0.
	Grid []float64

	// Shape of the curve.
	Shape Shape

	// Rate is the steepness
	// of the logistic steps of a sigmoid curve.
	Rate float64

	// If Bounded is true,
	// times older than the last grid point
	// are outside the domain of the curve.
	Bounded bool
}

// A Curve is a demographic curve.
//
// The curve does not store the log population sizes,
// that are passed as a vector on each call.
// Then, a curve can be shared by several chains.
type Curve struct {
	shape   Shape
	rate    float64
	knots   []float64
	bounded bool
	m       model
}

// A model implements the integrals
// and derivatives of a particular curve shape.
type model interface {
	integral(g []float64, seg int, t1, t2, w float64, grad, hess []float64) float64
	logPop(g []float64, seg int, t, w float64, grad, hess []float64) float64
	slope(g []float64, seg int, t float64) float64
}

// New returns a new curve.
func New(p Param) (*Curve, error) {
	if len(p.Grid) == 0 {
		return nil, fmt.Errorf("%w: empty grid", ErrInvalidConfiguration)
	}
	knots := make([]float64, 0, len(p.Grid)+1)
	knots = append(knots, 0)
	for i, x := range p.Grid {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, fmt.Errorf("%w: grid point %d: invalid value %v", ErrInvalidConfiguration, i, x)
		}
		if prev := knots[len(knots)-1]; x <= prev {
			return nil, fmt.Errorf("%w: grid point %d: value %v not greater than %v", ErrInvalidConfiguration, i, x, prev)
		}
		knots = append(knots, x)
	}

	c := &Curve{
		shape:   p.Shape,
		knots:   knots,
		bounded: p.Bounded,
	}
	switch p.Shape {
	case Constant:
		c.m = constant{}
	case LogLinear:
		c.m = logLinear{knots: knots}
	case Sigmoid:
		if !(p.Rate > 0) || math.IsInf(p.Rate, 0) {
			return nil, fmt.Errorf("%w: invalid sigmoid rate %v", ErrInvalidConfiguration, p.Rate)
		}
		c.rate = p.Rate
		c.m = newSigmoid(knots, p.Rate)
	default:
		return nil, fmt.Errorf("%w: unknown shape %d", ErrInvalidConfiguration, int(p.Shape))
	}
	return c, nil
}

// Shape returns the shape of the curve.
func (c *Curve) Shape() Shape {
	return c.shape
}

// Rate returns the rate of the logistic steps
// of a sigmoid curve.
func (c *Curve) Rate() float64 {
	return c.rate
}

// Bounded returns true if times
// older than the last grid point
// are outside the domain of the curve.
func (c *Curve) Bounded() bool {
	return c.bounded
}

// Dim returns the number of parameters of the curve.
func (c *Curve) Dim() int {
	return len(c.knots)
}

// Knots returns the knots of the curve,
// i.e., 0 and the grid points.
func (c *Curve) Knots() []float64 {
	return slices.Clone(c.knots)
}

// Segments returns the number of segments of the curve.
func (c *Curve) Segments() int {
	return len(c.knots)
}

// Segment returns the segment that contains the time t.
// If t is exactly at a knot,
// it returns the segment that starts at that knot.
func (c *Curve) Segment(t float64) (int, error) {
	if math.IsNaN(t) || t < 0 {
		return 0, fmt.Errorf("%w: time %v", ErrDomain, t)
	}
	last := c.knots[len(c.knots)-1]
	if c.bounded && t > last {
		return 0, fmt.Errorf("%w: time %v older than %v", ErrDomain, t, last)
	}
	i, ok := slices.BinarySearch(c.knots, t)
	if ok {
		return i, nil
	}
	return i - 1, nil
}

// SegmentEnd returns the end time of a segment.
// For the last segment it returns +Inf.
func (c *Curve) SegmentEnd(seg int) float64 {
	if seg+1 >= len(c.knots) {
		return math.Inf(1)
	}
	return c.knots[seg+1]
}

func (c *Curve) checkVector(g []float64) error {
	if len(g) != len(c.knots) {
		return fmt.Errorf("%w: vector of length %d, want %d", ErrIndex, len(g), len(c.knots))
	}
	for i, v := range g {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: value %d is %v", ErrDomain, i, v)
		}
	}
	return nil
}

// LogPopSize returns the log population size at time t.
func (c *Curve) LogPopSize(g []float64, t float64) (float64, error) {
	if err := c.checkVector(g); err != nil {
		return 0, err
	}
	seg, err := c.Segment(t)
	if err != nil {
		return 0, err
	}
	return c.m.logPop(g, seg, t, 0, nil, nil), nil
}

// InverseSize returns the inverse of the population size at time t.
func (c *Curve) InverseSize(g []float64, t float64) (float64, error) {
	lp, err := c.LogPopSize(g, t)
	if err != nil {
		return 0, err
	}
	return expNeg(lp), nil
}

// LogPopSizeSlope returns the derivative
// of the log population size
// with respect to the time,
// at time t.
func (c *Curve) LogPopSizeSlope(g []float64, t float64) (float64, error) {
	if err := c.checkVector(g); err != nil {
		return 0, err
	}
	seg, err := c.Segment(t)
	if err != nil {
		return 0, err
	}
	return c.m.slope(g, seg, t), nil
}

// LogPopSizeDerivatives returns the log population size at time t,
// and stores its gradient
// and the diagonal of its Hessian,
// with respect to the curve parameters,
// in grad and hess.
// Either grad or hess can be nil.
func (c *Curve) LogPopSizeDerivatives(g []float64, t float64, grad, hess []float64) (float64, error) {
	if err := c.checkVector(g); err != nil {
		return 0, err
	}
	if err := c.checkOut(grad, hess); err != nil {
		return 0, err
	}
	seg, err := c.Segment(t)
	if err != nil {
		return 0, err
	}
	clear(grad)
	clear(hess)
	return c.m.logPop(g, seg, t, 1, grad, hess), nil
}

// ReciprocalIntegral returns the integral
// of the inverse population size
// between t1 and t2.
// Both times must be in the same segment,
// and t1 <= t2.
func (c *Curve) ReciprocalIntegral(g []float64, t1, t2 float64) (float64, error) {
	if err := c.checkVector(g); err != nil {
		return 0, err
	}
	seg, err := c.singleSegment(t1, t2)
	if err != nil {
		return 0, err
	}
	return c.m.integral(g, seg, t1, t2, 0, nil, nil), nil
}

// IntegralDerivatives returns the integral
// of the inverse population size
// between t1 and t2,
// and stores its gradient
// and the diagonal of its Hessian,
// with respect to the curve parameters,
// in grad and hess.
// Either grad or hess can be nil.
// The interval can span any number of segments.
func (c *Curve) IntegralDerivatives(g []float64, t1, t2 float64, grad, hess []float64) (float64, error) {
	if err := c.checkVector(g); err != nil {
		return 0, err
	}
	if err := c.checkOut(grad, hess); err != nil {
		return 0, err
	}
	clear(grad)
	clear(hess)
	v, err := c.integrate(g, t1, t2, 1, grad, hess)
	if err != nil {
		return 0, err
	}
	Clamp(grad)
	Clamp(hess)
	return v, nil
}

// Integrate returns the integral
// of the inverse population size
// between t1 and t2,
// splitting the interval at the knots of the curve.
func (c *Curve) Integrate(g []float64, t1, t2 float64) (float64, error) {
	if err := c.checkVector(g); err != nil {
		return 0, err
	}
	return c.integrate(g, t1, t2, 0, nil, nil)
}

func (c *Curve) integrate(g []float64, t1, t2, w float64, grad, hess []float64) (float64, error) {
	if t2 < t1 {
		return 0, fmt.Errorf("%w: interval end %v before start %v", ErrDomain, t2, t1)
	}
	seg, err := c.Segment(t1)
	if err != nil {
		return 0, err
	}
	if _, err := c.Segment(t2); err != nil {
		return 0, err
	}

	var sum float64
	a := t1
	for {
		b := min(t2, c.SegmentEnd(seg))
		sum += c.m.integral(g, seg, a, b, w, grad, hess)
		if b >= t2 {
			break
		}
		a = b
		seg++
	}
	return finite(sum), nil
}

// EndpointDerivatives returns the derivatives
// of the integral of the inverse population size
// between t1 and t2,
// with respect to t1 and t2.
func (c *Curve) EndpointDerivatives(g []float64, t1, t2 float64) (d1, d2 float64, err error) {
	if t2 < t1 {
		return 0, 0, fmt.Errorf("%w: interval end %v before start %v", ErrDomain, t2, t1)
	}
	i1, err := c.InverseSize(g, t1)
	if err != nil {
		return 0, 0, err
	}
	i2, err := c.InverseSize(g, t2)
	if err != nil {
		return 0, 0, err
	}
	return -i1, i2, nil
}

// SegmentIntegral returns the integral
// of the inverse population size
// between t1 and t2,
// that must be inside the segment seg.
// The gradient and the diagonal of the Hessian
// of the integral,
// multiplied by w,
// are added to grad and hess.
// Either grad or hess can be nil.
//
// SegmentIntegral does not validate its arguments.
func (c *Curve) SegmentIntegral(g []float64, seg int, t1, t2, w float64, grad, hess []float64) float64 {
	return c.m.integral(g, seg, t1, t2, w, grad, hess)
}

// SegmentLogPopSize returns the log population size
// at time t,
// that must be inside the segment seg.
// The gradient and the diagonal of the Hessian
// of the log population size,
// multiplied by w,
// are added to grad and hess.
// Either grad or hess can be nil.
//
// SegmentLogPopSize does not validate its arguments.
func (c *Curve) SegmentLogPopSize(g []float64, seg int, t, w float64, grad, hess []float64) float64 {
	return c.m.logPop(g, seg, t, w, grad, hess)
}

// SegmentSlope returns the derivative
// of the log population size with respect to time,
// at time t,
// that must be inside the segment seg.
func (c *Curve) SegmentSlope(g []float64, seg int, t float64) float64 {
	return c.m.slope(g, seg, t)
}

func (c *Curve) singleSegment(t1, t2 float64) (int, error) {
	if t2 < t1 {
		return 0, fmt.Errorf("%w: interval end %v before start %v", ErrDomain, t2, t1)
	}
	seg, err := c.Segment(t1)
	if err != nil {
		return 0, err
	}
	if _, err := c.Segment(t2); err != nil {
		return 0, err
	}
	if t2 > c.SegmentEnd(seg) {
		return 0, fmt.Errorf("%w: interval [%v, %v] spans more than one segment", ErrDomain, t1, t2)
	}
	return seg, nil
}

func (c *Curve) checkOut(grad, hess []float64) error {
	if grad != nil && len(grad) != len(c.knots) {
		return fmt.Errorf("%w: gradient of length %d, want %d", ErrIndex, len(grad), len(c.knots))
	}
	if hess != nil && len(hess) != len(c.knots) {
		return fmt.Errorf("%w: hessian of length %d, want %d", ErrIndex, len(hess), len(c.knots))
	}
	return nil
}
