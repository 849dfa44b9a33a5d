// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

package demog

import "math"

var maxLog = math.Log(math.MaxFloat64)

// ExpNeg returns exp(-x),
// capped at the largest finite float.
func ExpNeg(x float64) float64 {
	return expNeg(x)
}

func expNeg(x float64) float64 {
	if -x > maxLog {
		return math.MaxFloat64
	}
	return math.Exp(-x)
}

// Finite returns x,
// or the largest finite float of the same sign
// if x is infinite.
func Finite(x float64) float64 {
	return finite(x)
}

// Clamp replaces the infinite values of v
// by the largest finite float of the same sign.
func Clamp(v []float64) {
	for i, x := range v {
		v[i] = finite(x)
	}
}

// finite replaces infinite values
// by the largest finite float of the same sign.
func finite(x float64) float64 {
	if math.IsInf(x, 1) {
		return math.MaxFloat64
	}
	if math.IsInf(x, -1) {
		return -math.MaxFloat64
	}
	return x
}

// logistic returns 1 / (1 + exp(-x)).
func logistic(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

// softplus returns log(1 + exp(x)).
func softplus(x float64) float64 {
	return math.Max(x, 0) + math.Log1p(math.Exp(-math.Abs(x)))
}

// logLogistic returns the logarithm of logistic(x).
func logLogistic(x float64) float64 {
	return -softplus(-x)
}

// softplusDiff returns softplus(q) - softplus(p),
// with p <= q.
func softplusDiff(p, q float64) float64 {
	d := q - p
	if d <= 1 {
		// short spans:
		// sp(q) - sp(p) = log1p(logistic(p) * expm1(q-p))
		return math.Log1p(logistic(p) * math.Expm1(d))
	}
	return softplus(q) - softplus(p)
}

// seriesCutoff is the magnitude of the change
// of the log population size over a segment
// below which integrals are evaluated
// with a series expansion.
var seriesCutoff = math.Pow(0x1p-52, 1.0/8)

// expRatio returns h(u) = (1 - exp(-u)) / u,
// and its first and second derivatives,
// for u >= 0.
func expRatio(u float64) (h0, h1, h2 float64) {
	if u < seriesCutoff {
		return expRatioSeries(u, 0), expRatioSeries(u, 1), expRatioSeries(u, 2)
	}

	e := math.Exp(-u)
	f := -math.Expm1(-u)
	h0 = f / u
	h1 = (u*e - f) / (u * u)
	h2 = (-u*u*e - 2*u*e + 2*f) / (u * u * u)
	return h0, h1, h2
}

// expRatioSeries returns the n-th derivative
// (n <= 2)
// of h(u) = sum_k (-u)^k / (k+1)!.
func expRatioSeries(u float64, n int) float64 {
	var s float64
	fact := 1.0 // (k+1)!
	for k := 0; k < 14; k++ {
		fact *= float64(k + 1)
		if k < n {
			continue
		}
		c := 1.0
		for i := 0; i < n; i++ {
			c *= float64(k - i)
		}
		if k%2 == 1 {
			c = -c
		}
		s += c * math.Pow(u, float64(k-n)) / fact
	}
	return s
}
