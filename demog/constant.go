// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

package demog

// constant is a skyline:
// the log population size of segment j
// is the value at knot j.
type constant struct{}

func (constant) integral(g []float64, seg int, t1, t2, w float64, grad, hess []float64) float64 {
	v := finite((t2 - t1) * expNeg(g[seg]))
	if grad != nil {
		grad[seg] -= w * v
	}
	if hess != nil {
		hess[seg] += w * v
	}
	return v
}

func (constant) logPop(g []float64, seg int, t, w float64, grad, hess []float64) float64 {
	if grad != nil {
		grad[seg] += w
	}
	return g[seg]
}

func (constant) slope(g []float64, seg int, t float64) float64 {
	return 0
}
