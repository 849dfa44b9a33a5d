// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

package demog

// logLinear interpolates linearly
// the log population size between knots.
// The last segment is constant.
type logLinear struct {
	knots []float64
}

// weight returns the interpolation weight
// of the knot at the end of the segment.
func (ll logLinear) weight(seg int, t float64) float64 {
	if seg+1 >= len(ll.knots) {
		return 0
	}
	a, b := ll.knots[seg], ll.knots[seg+1]
	r := (t - a) / (b - a)
	if r < 0 {
		return 0
	}
	if r > 1 {
		return 1
	}
	return r
}

func (ll logLinear) value(g []float64, seg int, r float64) float64 {
	if seg+1 >= len(g) {
		return g[seg]
	}
	return (1-r)*g[seg] + r*g[seg+1]
}

func (ll logLinear) integral(g []float64, seg int, t1, t2, w float64, grad, hess []float64) float64 {
	r1 := ll.weight(seg, t1)
	r2 := ll.weight(seg, t2)
	a := ll.value(g, seg, r1)
	b := ll.value(g, seg, r2)

	v, ia, ib, iaa, ibb, iab := expIntegral(t2-t1, a, b)
	if grad == nil && hess == nil {
		return v
	}

	if seg+1 >= len(g) {
		// constant segment
		if grad != nil {
			grad[seg] += w * (ia + ib)
		}
		if hess != nil {
			hess[seg] += w * (iaa + 2*iab + ibb)
		}
		return v
	}

	q1, q2 := 1-r1, 1-r2
	if grad != nil {
		grad[seg] += w * finite(ia*q1+ib*q2)
		grad[seg+1] += w * finite(ia*r1+ib*r2)
	}
	if hess != nil {
		hess[seg] += w * finite(iaa*q1*q1+2*iab*q1*q2+ibb*q2*q2)
		hess[seg+1] += w * finite(iaa*r1*r1+2*iab*r1*r2+ibb*r2*r2)
	}
	return v
}

func (ll logLinear) logPop(g []float64, seg int, t, w float64, grad, hess []float64) float64 {
	r := ll.weight(seg, t)
	if grad != nil {
		grad[seg] += w * (1 - r)
		if seg+1 < len(g) {
			grad[seg+1] += w * r
		}
	}
	return ll.value(g, seg, r)
}

func (ll logLinear) slope(g []float64, seg int, t float64) float64 {
	if seg+1 >= len(g) {
		return 0
	}
	return (g[seg+1] - g[seg]) / (ll.knots[seg+1] - ll.knots[seg])
}

// expIntegral returns the integral
// of exp(-y(t)) over an interval of length d,
// in which y changes linearly from a to b,
// and its first and second derivatives
// with respect to a and b.
func expIntegral(d, a, b float64) (v, ia, ib, iaa, ibb, iab float64) {
	if d == 0 {
		return 0, 0, 0, 0, 0, 0
	}
	if b < a {
		// the integral is symmetric in a and b
		v, ib, ia, ibb, iaa, iab = expIntegral(d, b, a)
		return v, ia, ib, iaa, ibb, iab
	}

	h0, h1, h2 := expRatio(b - a)
	e := finite(d * expNeg(a))
	v = finite(e * h0)
	ia = finite(-e * (h0 + h1))
	ib = finite(e * h1)
	iaa = finite(e * (h0 + 2*h1 + h2))
	ibb = finite(e * h2)
	iab = finite(-e * (h1 + h2))
	return v, ia, ib, iaa, ibb, iab
}
