// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

package demog

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// sigmoid is a smoothed skyline.
// The inverse population size is
//
//	1/N(t) = exp(-g0) + sum_j (exp(-gj) - exp(-gj-1)) * logistic(rate * (t - xj))
//
// so it is a weighted mean of the inverse population sizes
// at each knot.
type sigmoid struct {
	x    []float64
	rate float64
}

func newSigmoid(knots []float64, rate float64) sigmoid {
	return sigmoid{
		x:    knots[1:],
		rate: rate,
	}
}

// logWeights stores in lw
// the log of the weight of each knot value
// at time t.
func (s sigmoid) logWeights(lw []float64, t float64) {
	k := len(s.x)
	lw[0] = logLogistic(-s.rate * (t - s.x[0]))
	lw[k] = logLogistic(s.rate * (t - s.x[k-1]))
	for j := 1; j < k; j++ {
		a := s.rate * (t - s.x[j-1])
		b := s.rate * (t - s.x[j])

		// logistic(a) - logistic(b) =
		// logistic(a) * logistic(-b) * (1 - exp(b-a))
		lw[j] = logLogistic(a) + logLogistic(-b) + math.Log(-math.Expm1(b-a))
	}
}

// logInverse returns the log of the inverse population size
// and stores in lw the log of the contribution
// of each knot value.
func (s sigmoid) logInverse(g []float64, t float64, lw []float64) float64 {
	s.logWeights(lw, t)
	for j := range lw {
		lw[j] -= g[j]
	}
	return floats.LogSumExp(lw)
}

func (s sigmoid) logPop(g []float64, seg int, t, w float64, grad, hess []float64) float64 {
	lw := make([]float64, len(g))
	ls := s.logInverse(g, t, lw)
	if grad != nil || hess != nil {
		for j, v := range lw {
			p := math.Exp(v - ls)
			if grad != nil {
				grad[j] += w * p
			}
			if hess != nil {
				hess[j] += w * (p*p - p)
			}
		}
	}
	return -ls
}

func (s sigmoid) slope(g []float64, seg int, t float64) float64 {
	lw := make([]float64, len(g))
	ls := s.logInverse(g, t, lw)

	var d float64
	for j := 1; j < len(g); j++ {
		z := s.rate * (t - s.x[j-1])
		step := s.rate * logistic(z) * logistic(-z)
		d += (expNeg(g[j]+ls) - expNeg(g[j-1]+ls)) * step
	}
	return finite(-d)
}

func (s sigmoid) integral(g []float64, seg int, t1, t2, w float64, grad, hess []float64) float64 {
	if t2 <= t1 {
		return 0
	}
	k := len(s.x)

	// integrals of the logistic steps (up)
	// and of their complements (down)
	up := make([]float64, k+2)
	down := make([]float64, k+2)
	up[0] = t2 - t1
	down[k+1] = t2 - t1
	for i := 1; i <= k; i++ {
		a := s.rate * (t1 - s.x[i-1])
		b := s.rate * (t2 - s.x[i-1])
		up[i] = softplusDiff(a, b) / s.rate
		down[i] = softplusDiff(-b, -a) / s.rate
	}

	mid := (t1 + t2) / 2
	var v float64
	for j := 0; j <= k; j++ {
		var wj float64
		switch {
		case j == 0:
			wj = down[1]
		case j == k:
			wj = up[k]
		case mid > (s.x[j-1]+s.x[j])/2:
			wj = down[j+1] - down[j]
		default:
			wj = up[j] - up[j+1]
		}
		if wj < 0 {
			wj = 0
		}
		c := finite(wj * expNeg(g[j]))
		v += c
		if grad != nil {
			grad[j] -= w * c
		}
		if hess != nil {
			hess[j] += w * c
		}
	}
	return finite(v)
}
