// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

package blockupdate_test

import (
	"errors"
	"math"
	"slices"
	"testing"

	"github.com/js-arias/skygrid/coalescent"
	"github.com/js-arias/skygrid/demog"
	"github.com/js-arias/skygrid/gmrf"
	"github.com/js-arias/skygrid/infer/blockupdate"
	"github.com/js-arias/skygrid/intervals"
	"github.com/js-arias/skygrid/param"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

type model struct {
	like      *coalescent.Likelihood
	prior     *gmrf.Prior
	gamma     *param.Vector
	precision *param.Scalar
	lambda    *param.Scalar
}

// newModel returns a model for a tree with three tips
// and coalescent events at 1 and 2,
// with a single grid point at 1.5.
func newModel(t testing.TB, shape demog.Shape, precision, lambda float64) model {
	t.Helper()

	iv, err := intervals.New([]intervals.Event{
		{Time: 0, Kind: intervals.Sample, Node: 0},
		{Time: 0, Kind: intervals.Sample, Node: 1},
		{Time: 0, Kind: intervals.Sample, Node: 2},
		{Time: 1, Kind: intervals.Coalescent, Node: 3},
		{Time: 2, Kind: intervals.Coalescent, Node: 4},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c, err := demog.New(demog.Param{
		Grid:  []float64{1.5},
		Shape: shape,
		Rate:  10,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	l, err := coalescent.New(iv, c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p, err := gmrf.New(c.Knots(), true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	g, err := param.NewVector("logpop", make([]float64, c.Dim()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	prec, err := param.NewScalar("precision", precision, 0, math.Inf(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lam, err := param.NewScalar("lambda", lambda, 0, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return model{
		like:      l,
		prior:     p,
		gamma:     g,
		precision: prec,
		lambda:    lam,
	}
}

func (m model) sampler(t testing.TB, cfg blockupdate.Config) *blockupdate.Sampler {
	t.Helper()

	s, err := blockupdate.New(m.like, m.prior, m.gamma, m.precision, m.lambda, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return s
}

func TestNewtonRaphson(t *testing.T) {
	m := newModel(t, demog.Constant, 1, 0.5)
	q, err := m.prior.Matrix(1, 0.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tol := 1e-8
	x, it, err := blockupdate.NewtonRaphson(m.like, q, []float64{0, 0}, tol, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if it > 10 {
		t.Errorf("iterations: got %d, want at most %d", it, 10)
	}

	grad := make([]float64, 2)
	if _, err := m.like.Derivatives(x, grad, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	floats.Sub(grad, q.MulVec(nil, x))
	if n := floats.Norm(grad, 2); n >= tol {
		t.Errorf("gradient norm: got %.3g, want < %.3g", n, tol)
	}

	// the same mode from a different start
	y, _, err := blockupdate.NewtonRaphson(m.like, q, []float64{3, -2}, tol, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !floats.EqualApprox(x, y, 1e-6) {
		t.Errorf("mode: got %v, want %v", y, x)
	}
}

func TestConvergenceFailure(t *testing.T) {
	m := newModel(t, demog.Constant, 1, 0.5)
	q, err := m.prior.Matrix(1, 0.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, _, err := blockupdate.NewtonRaphson(m.like, q, []float64{-30, -30}, 1e-8, 5); !errors.Is(err, blockupdate.ErrConvergence) {
		t.Errorf("ill-conditioned start: got error %v, want %v", err, blockupdate.ErrConvergence)
	}

	// the sampler leaves the parameters unchanged
	if err := m.gamma.Set([]float64{-30, -30}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg := blockupdate.DefaultConfig()
	cfg.MaxIter = 5
	s := m.sampler(t, cfg)
	if _, err := s.ProposeAndStep(); !errors.Is(err, blockupdate.ErrConvergence) {
		t.Errorf("sampler: got error %v, want %v", err, blockupdate.ErrConvergence)
	}
	if got := m.gamma.Values(); !slices.Equal(got, []float64{-30, -30}) {
		t.Errorf("values after failure: got %v, want %v", got, []float64{-30, -30})
	}
	if got := m.precision.Value(); got != 1 {
		t.Errorf("precision after failure: got %.4f, want %.4f", got, 1.0)
	}
	if s.State() != blockupdate.Rejected {
		t.Errorf("state: got %v, want %v", s.State(), blockupdate.Rejected)
	}
}

func TestScenario(t *testing.T) {
	tests := []struct {
		shape demog.Shape
		steps int
	}{
		{demog.Constant, 20},
		{demog.LogLinear, 20},
		{demog.Sigmoid, 500},
	}
	for _, test := range tests {
		shape := test.shape
		m := newModel(t, shape, 1, 1)
		cfg := blockupdate.DefaultConfig()
		cfg.Src = rand.NewSource(7)
		s := m.sampler(t, cfg)

		var accepted int
		for i := 0; i < test.steps; i++ {
			res, err := s.ProposeAndStep()
			if err != nil {
				t.Fatalf("%v: step %d: unexpected error: %v", shape, i, err)
			}
			if math.IsNaN(res.LogHastingsRatio) || math.IsInf(res.LogHastingsRatio, 0) {
				t.Errorf("%v: step %d: log Hastings ratio: got %v, want a finite value", shape, i, res.LogHastingsRatio)
			}
			if res.LogAcceptance > 0 {
				t.Errorf("%v: step %d: log acceptance: got %v, want <= 0", shape, i, res.LogAcceptance)
			}
			if d := m.gamma.Dim(); d != 2 {
				t.Errorf("%v: step %d: dimension: got %d, want %d", shape, i, d, 2)
			}
			if res.Accepted {
				accepted++
				if s.State() != blockupdate.Accepted {
					t.Errorf("%v: step %d: state: got %v, want %v", shape, i, s.State(), blockupdate.Accepted)
				}
			}
			if res.Reason == blockupdate.NonPositiveDefinite && res.Accepted {
				t.Errorf("%v: step %d: accepted a move with a non positive definite Hessian", shape, i)
			}
			for _, v := range m.gamma.Values() {
				if math.IsNaN(v) || math.IsInf(v, 0) {
					t.Errorf("%v: step %d: log population size: got %v", shape, i, v)
				}
			}
		}
		if test.steps > 100 && accepted == 0 {
			t.Errorf("%v: accepted: got %d moves", shape, accepted)
		}

		if _, err := s.CurrentLogLikelihood(); err != nil {
			t.Errorf("%v: log likelihood: unexpected error: %v", shape, err)
		}
		if lp, err := s.CurrentLogPriorDensity(); err != nil || math.IsNaN(lp) {
			t.Errorf("%v: log prior: got %v, error %v", shape, lp, err)
		}
		g := m.gamma.Values()
		if n, err := s.PopSize(1); err != nil || math.Abs(n-math.Exp(g[1])) > 1e-12 {
			t.Errorf("%v: population size: got %v, want %v (error %v)", shape, n, math.Exp(g[1]), err)
		}
		if _, err := s.PopSize(2); !errors.Is(err, demog.ErrIndex) {
			t.Errorf("%v: population size: got error %v, want %v", shape, err, demog.ErrIndex)
		}
	}
}

// TestPosterior compares the mean of a long chain
// with the mean of the posterior
// evaluated on a grid.
func TestPosterior(t *testing.T) {
	if testing.Short() {
		t.Skip("long chain")
	}

	precision, lambda := 1.0, 0.5
	m := newModel(t, demog.Constant, precision, lambda)

	// brute force
	var sum, w0, w1 float64
	var logs []float64
	var pts [][2]float64
	const step = 0.02
	for a := -8.0; a <= 8; a += step {
		for b := -8.0; b <= 8; b += step {
			g := []float64{a, b}
			ll, err := m.like.LogLikelihood(g)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			lp, err := m.prior.LogDensity(g, precision, lambda)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			logs = append(logs, ll+lp)
			pts = append(pts, [2]float64{a, b})
		}
	}
	top := floats.Max(logs)
	for i, lp := range logs {
		p := math.Exp(lp - top)
		sum += p
		w0 += p * pts[i][0]
		w1 += p * pts[i][1]
	}
	want := []float64{w0 / sum, w1 / sum}

	cfg := blockupdate.DefaultConfig()
	cfg.ScaleFactor = 1
	cfg.Src = rand.NewSource(42)
	s := m.sampler(t, cfg)

	const burnin = 500
	const iter = 10_000
	mean := make([]float64, 2)
	var accepted int
	for i := 0; i < burnin+iter; i++ {
		res, err := s.ProposeAndStep()
		if err != nil {
			t.Fatalf("step %d: unexpected error: %v", i, err)
		}
		if i < burnin {
			continue
		}
		if res.Accepted {
			accepted++
		}
		floats.Add(mean, m.gamma.Values())
	}
	floats.Scale(1/float64(iter), mean)

	if accepted < iter/4 {
		t.Errorf("accepted: got %d, want at least %d", accepted, iter/4)
	}
	for i := range mean {
		if math.Abs(mean[i]-want[i]) > 0.08 {
			t.Errorf("mean %d: got %.4f, want %.4f", i, mean[i], want[i])
		}
	}
	if p := m.precision.Value(); p != precision {
		t.Errorf("fixed precision: got %.4f, want %.4f", p, precision)
	}
}

// gridPoint is a vector of log population sizes
// and its log likelihood.
type gridPoint struct {
	a, b float64
	ll   float64
}

// posteriorGrid returns a grid of log population sizes
// with step 0.1 in [-5, 10]
// and its log likelihood.
func posteriorGrid(t testing.TB, m model) []gridPoint {
	t.Helper()

	var pts []gridPoint
	for i := 0; i <= 150; i++ {
		a := -5 + float64(i)*0.1
		for j := 0; j <= 150; j++ {
			b := -5 + float64(j)*0.1
			ll, err := m.like.LogLikelihood([]float64{a, b})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			pts = append(pts, gridPoint{a: a, b: b, ll: ll})
		}
	}
	return pts
}

// weightedMeans returns the means of a set of values
// weighted by exp(logW).
func weightedMeans(logW []float64, values [][3]float64) [3]float64 {
	top := floats.Max(logW)
	var sum float64
	var mean [3]float64
	for i, lw := range logW {
		w := math.Exp(lw - top)
		sum += w
		for j, v := range values[i] {
			mean[j] += w * v
		}
	}
	for j := range mean {
		mean[j] /= sum
	}
	return mean
}

// runChain runs a chain and returns the mean
// of the log population sizes
// and the precision.
func runChain(t testing.TB, m model, s *blockupdate.Sampler, burnin, iter int) [3]float64 {
	t.Helper()

	var mean [3]float64
	for i := 0; i < burnin+iter; i++ {
		if _, err := s.ProposeAndStep(); err != nil {
			t.Fatalf("step %d: unexpected error: %v", i, err)
		}
		if i < burnin {
			continue
		}
		g := m.gamma.Values()
		mean[0] += g[0]
		mean[1] += g[1]
		mean[2] += m.precision.Value()
	}
	for j := range mean {
		mean[j] /= float64(iter)
	}
	return mean
}

// TestPrecisionPosterior compares the means of a long chain
// that samples the precision
// with the means of the joint posterior
// of the log population sizes and the precision
// evaluated on a grid.
func TestPrecisionPosterior(t *testing.T) {
	if testing.Short() {
		t.Skip("long chain")
	}

	const lambda = 0.5
	const priorShape, priorRate = 2.0, 2.0
	m := newModel(t, demog.Constant, 1, lambda)
	pts := posteriorGrid(t, m)

	quad := make([]float64, len(pts))
	for i, p := range pts {
		q, err := m.prior.Quad([]float64{p.a, p.b}, lambda)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		quad[i] = q
	}

	// the precision is in the outer loop
	// as the prior caches the log determinant
	gp := distuv.Gamma{Alpha: priorShape, Beta: priorRate}
	var logW []float64
	var values [][3]float64
	for k := 0; k < 160; k++ {
		prec := (float64(k) + 0.5) * 0.05
		ld, _, err := m.prior.LogDet(prec, lambda)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		lp := gp.LogProb(prec)
		for i, p := range pts {
			logW = append(logW, p.ll+0.5*ld-0.5*prec*quad[i]+lp)
			values = append(values, [3]float64{p.a, p.b, prec})
		}
	}
	want := weightedMeans(logW, values)

	modes := []blockupdate.PrecisionMode{blockupdate.ScaleProposal, blockupdate.GammaConjugate}
	for _, mode := range modes {
		m := newModel(t, demog.Constant, 1, lambda)
		cfg := blockupdate.DefaultConfig()
		cfg.Mode = mode
		cfg.PriorShape = priorShape
		cfg.PriorRate = priorRate
		cfg.Src = rand.NewSource(11)
		s := m.sampler(t, cfg)

		got := runChain(t, m, s, 1_000, 40_000)
		names := []string{"a", "b", "precision"}
		for j := range got {
			if math.Abs(got[j]-want[j]) > 0.1 {
				t.Errorf("%v: mean %s: got %.4f, want %.4f", mode, names[j], got[j], want[j])
			}
		}
		if l := m.lambda.Value(); l != lambda {
			t.Errorf("%v: fixed mixing: got %.4f, want %.4f", mode, l, lambda)
		}
	}
}

// TestMixingPosterior compares the means of a long chain
// that samples the mixing
// with the means of the joint posterior
// of the log population sizes and the mixing
// evaluated on a grid.
// The mixing has a uniform prior.
func TestMixingPosterior(t *testing.T) {
	if testing.Short() {
		t.Skip("long chain")
	}

	const precision = 1.0
	for _, shape := range []demog.Shape{demog.Constant, demog.LogLinear} {
		m := newModel(t, shape, precision, 0.5)
		pts := posteriorGrid(t, m)

		var logW []float64
		var values [][3]float64
		for k := 0; k < 50; k++ {
			lambda := (float64(k) + 0.5) / 50
			for _, p := range pts {
				lp, err := m.prior.LogDensity([]float64{p.a, p.b}, precision, lambda)
				if err != nil {
					t.Fatalf("%v: unexpected error: %v", shape, err)
				}
				logW = append(logW, p.ll+lp)
				values = append(values, [3]float64{p.a, p.b, lambda})
			}
		}
		want := weightedMeans(logW, values)

		cfg := blockupdate.DefaultConfig()
		cfg.ScaleFactor = 1
		cfg.Mixing = true
		cfg.MixingWidth = 0.3
		cfg.Src = rand.NewSource(13)
		s := m.sampler(t, cfg)

		var got [3]float64
		const burnin, iter = 1_000, 40_000
		for i := 0; i < burnin+iter; i++ {
			if _, err := s.ProposeAndStep(); err != nil {
				t.Fatalf("%v: step %d: unexpected error: %v", shape, i, err)
			}
			if i < burnin {
				continue
			}
			g := m.gamma.Values()
			got[0] += g[0]
			got[1] += g[1]
			got[2] += m.lambda.Value()
		}
		for j := range got {
			got[j] /= iter
		}

		names := []string{"a", "b", "lambda"}
		tol := []float64{0.1, 0.1, 0.05}
		for j := range got {
			if math.Abs(got[j]-want[j]) > tol[j] {
				t.Errorf("%v: mean %s: got %.4f, want %.4f", shape, names[j], got[j], want[j])
			}
		}
		if p := m.precision.Value(); p != precision {
			t.Errorf("%v: fixed precision: got %.4f, want %.4f", shape, p, precision)
		}
	}
}

func TestGammaConjugate(t *testing.T) {
	m := newModel(t, demog.LogLinear, 1, 0.8)
	cfg := blockupdate.DefaultConfig()
	cfg.Mode = blockupdate.GammaConjugate
	cfg.PriorShape = 1
	cfg.PriorRate = 1
	cfg.Mixing = true
	cfg.MixingWidth = 0.3
	cfg.Src = rand.NewSource(3)
	s := m.sampler(t, cfg)

	var accepted int
	for i := 0; i < 200; i++ {
		g := m.gamma.Values()
		prec := m.precision.Value()
		lam := m.lambda.Value()

		res, err := s.ProposeAndStep()
		if err != nil {
			t.Fatalf("step %d: unexpected error: %v", i, err)
		}
		if res.Accepted {
			accepted++
		} else {
			if got := m.gamma.Values(); !slices.Equal(got, g) {
				t.Errorf("step %d: rejected move: values %v, want %v", i, got, g)
			}
			if m.precision.Value() != prec || m.lambda.Value() != lam {
				t.Errorf("step %d: rejected move: hyperparameters changed", i)
			}
		}
		if p := m.precision.Value(); !(p > 0) {
			t.Errorf("step %d: precision: got %v", i, p)
		}
		if l := m.lambda.Value(); l < 0 || l > 1 {
			t.Errorf("step %d: mixing: got %v", i, l)
		}
	}
	if accepted == 0 {
		t.Errorf("accepted: got %d moves", accepted)
	}
}

func TestConfig(t *testing.T) {
	m := newModel(t, demog.Constant, 1, 1)

	tests := map[string]func(*blockupdate.Config){
		"scale factor": func(c *blockupdate.Config) { c.ScaleFactor = 0.5 },
		"tolerance":    func(c *blockupdate.Config) { c.Tolerance = 0 },
		"iterations":   func(c *blockupdate.Config) { c.MaxIter = 0 },
		"prior":        func(c *blockupdate.Config) { c.PriorRate = -1 },
		"mixing width": func(c *blockupdate.Config) { c.Mixing = true; c.MixingWidth = 0 },
	}
	for name, fn := range tests {
		cfg := blockupdate.DefaultConfig()
		fn(&cfg)
		if _, err := blockupdate.New(m.like, m.prior, m.gamma, m.precision, m.lambda, cfg); !errors.Is(err, gmrf.ErrInvalidConfiguration) {
			t.Errorf("%s: got error %v, want %v", name, err, gmrf.ErrInvalidConfiguration)
		}
	}
}
