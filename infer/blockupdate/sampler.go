// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

// Package blockupdate implements a block update sampler
// for the log population sizes of a GMRF demographic model.
//
// In each step the sampler proposes a new precision
// (and optionally, a new mixing value)
// for the GMRF prior,
// and then proposes the whole vector of log population sizes
// from a Gaussian approximation of its conditional posterior,
// centered at the mode found with Newton-Raphson.
// The proposal is accepted or rejected
// with a Metropolis-Hastings ratio
// that includes the likelihood,
// the GMRF prior,
// the precision prior,
// and the forward and reverse proposal densities.
package blockupdate

import (
	"errors"
	"fmt"
	"math"

	"github.com/js-arias/skygrid/demog"
	"github.com/js-arias/skygrid/gmrf"
	"github.com/js-arias/skygrid/param"
	"github.com/js-arias/skygrid/tridiag"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// PrecisionMode is the way in which
// a new precision is proposed.
type PrecisionMode int

// Valid precision modes.
const (
	// ScaleProposal multiplies the precision
	// by a random scale.
	ScaleProposal PrecisionMode = iota

	// GammaConjugate draws the precision
	// from its Gamma conditional
	// given the current log population sizes.
	GammaConjugate
)

func (m PrecisionMode) String() string {
	if m == GammaConjugate {
		return "gamma"
	}
	return "scale"
}

// ParseMode returns a precision mode from its name.
func ParseMode(name string) (PrecisionMode, error) {
	switch name {
	case "scale", "":
		return ScaleProposal, nil
	case "gamma", "conjugate":
		return GammaConjugate, nil
	}
	return ScaleProposal, fmt.Errorf("unknown precision mode %q", name)
}

// Config is the configuration of a sampler.
type Config struct {
	// Tolerance is the gradient norm
	// at which Newton-Raphson stops.
	Tolerance float64

	// MaxIter is the maximum number of Newton-Raphson iterations.
	MaxIter int

	// Mode is the precision proposal mode.
	Mode PrecisionMode

	// ScaleFactor is the maximum scale
	// of a precision proposal.
	// It must be at least 1,
	// a value of 1 keeps the precision fixed.
	ScaleFactor float64

	// PriorShape and PriorRate
	// are the parameters of the Gamma prior
	// of the precision.
	PriorShape float64
	PriorRate  float64

	// If Mixing is true,
	// the mixing value is updated,
	// with a uniform step of at most MixingWidth.
	Mixing      bool
	MixingWidth float64

	// Src is the source of random numbers.
	// If nil,
	// a source seeded with 1 is used.
	Src rand.Source
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Tolerance:   1e-6,
		MaxIter:     200,
		Mode:        ScaleProposal,
		ScaleFactor: 2,
		PriorShape:  0.001,
		PriorRate:   0.001,
		MixingWidth: 0.1,
	}
}

func (c Config) check() error {
	if !(c.Tolerance > 0) {
		return fmt.Errorf("%w: invalid tolerance %v", gmrf.ErrInvalidConfiguration, c.Tolerance)
	}
	if c.MaxIter < 1 {
		return fmt.Errorf("%w: invalid maximum iterations %d", gmrf.ErrInvalidConfiguration, c.MaxIter)
	}
	if c.Mode != ScaleProposal && c.Mode != GammaConjugate {
		return fmt.Errorf("%w: unknown precision mode %d", gmrf.ErrInvalidConfiguration, c.Mode)
	}
	if !(c.ScaleFactor >= 1) || math.IsInf(c.ScaleFactor, 0) {
		return fmt.Errorf("%w: invalid scale factor %v", gmrf.ErrInvalidConfiguration, c.ScaleFactor)
	}
	if !(c.PriorShape > 0) || !(c.PriorRate > 0) {
		return fmt.Errorf("%w: invalid precision prior Gamma(%v, %v)", gmrf.ErrInvalidConfiguration, c.PriorShape, c.PriorRate)
	}
	if c.Mixing && !(c.MixingWidth > 0) {
		return fmt.Errorf("%w: invalid mixing width %v", gmrf.ErrInvalidConfiguration, c.MixingWidth)
	}
	return nil
}

// State is the stage of a sampler step.
type State int

// Sampler states.
const (
	Idle State = iota
	PrecisionUpdated
	ModeFound
	Proposed
	Accepted
	Rejected
)

var stateNames = []string{"idle", "precision updated", "mode found", "proposed", "accepted", "rejected"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Reason is the reason of a rejection.
type Reason int

// Rejection reasons.
const (
	// NoReason is used for accepted moves.
	NoReason Reason = iota

	// Ratio is a rejection
	// from the Metropolis-Hastings ratio.
	Ratio

	// NonPositiveDefinite is a rejection
	// because the precision matrix
	// of the Gaussian approximation
	// is not positive definite.
	NonPositiveDefinite

	// OutOfBounds is a rejection
	// because a proposed value
	// is outside the bounds of its parameter,
	// or is not finite.
	OutOfBounds
)

func (r Reason) String() string {
	switch r {
	case NoReason:
		return ""
	case Ratio:
		return "ratio"
	case NonPositiveDefinite:
		return "non positive definite"
	case OutOfBounds:
		return "out of bounds"
	}
	return fmt.Sprintf("reason(%d)", int(r))
}

// Result is the result of a sampler step.
type Result struct {
	Accepted bool

	// LogHastingsRatio is the log of the Metropolis-Hastings ratio.
	// If the move was rejected before the ratio was calculated
	// it is the lowest finite value.
	LogHastingsRatio float64

	// LogAcceptance is the log of the acceptance probability.
	LogAcceptance float64

	Reason Reason
}

// Sampler is a block update sampler.
//
// The parameters are owned by the sampler
// during a step.
// A Sampler is not safe for concurrent use.
type Sampler struct {
	target    Target
	prior     *gmrf.Prior
	gamma     *param.Vector
	precision *param.Scalar
	lambda    *param.Scalar

	cfg   Config
	rng   *rand.Rand
	state State
}

// New returns a new sampler.
func New(target Target, prior *gmrf.Prior, gamma *param.Vector, precision, lambda *param.Scalar, cfg Config) (*Sampler, error) {
	if err := cfg.check(); err != nil {
		return nil, err
	}
	if target.Dim() != prior.Dim() || gamma.Dim() != prior.Dim() {
		return nil, fmt.Errorf("%w: dimensions: target %d, prior %d, vector %d", gmrf.ErrInvalidConfiguration, target.Dim(), prior.Dim(), gamma.Dim())
	}
	if min, _ := precision.Bounds(); min < 0 {
		return nil, fmt.Errorf("%w: precision lower bound %v", gmrf.ErrInvalidConfiguration, min)
	}
	if min, max := lambda.Bounds(); min < 0 || max > 1 {
		return nil, fmt.Errorf("%w: mixing bounds [%v, %v]", gmrf.ErrInvalidConfiguration, min, max)
	}
	if _, _, err := prior.LogDet(precision.Value(), lambda.Value()); err != nil {
		return nil, err
	}

	src := cfg.Src
	if src == nil {
		src = rand.NewSource(1)
	}
	return &Sampler{
		target:    target,
		prior:     prior,
		gamma:     gamma,
		precision: precision,
		lambda:    lambda,
		cfg:       cfg,
		rng:       rand.New(src),
	}, nil
}

// State returns the state of the last step.
func (s *Sampler) State() State {
	return s.state
}

// PopSize returns the population size
// at the i-th knot.
func (s *Sampler) PopSize(i int) (float64, error) {
	v, err := s.gamma.At(i)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", demog.ErrIndex, err)
	}
	return math.Exp(v), nil
}

// CurrentLogLikelihood returns the log likelihood
// of the current log population sizes.
func (s *Sampler) CurrentLogLikelihood() (float64, error) {
	return s.target.Derivatives(s.gamma.Values(), nil, nil)
}

// CurrentLogPriorDensity returns the log density
// of the GMRF prior
// plus the log density of the precision prior
// at the current values.
func (s *Sampler) CurrentLogPriorDensity() (float64, error) {
	return s.logPrior(s.gamma.Values(), s.precision.Value(), s.lambda.Value())
}

func (s *Sampler) logPrior(g []float64, precision, lambda float64) (float64, error) {
	lp, err := s.prior.LogDensity(g, precision, lambda)
	if err != nil {
		return 0, err
	}
	pp := distuv.Gamma{Alpha: s.cfg.PriorShape, Beta: s.cfg.PriorRate}.LogProb(precision)
	return lp + pp, nil
}

// ProposeAndStep executes a single step of the sampler.
//
// A rejected move is not an error.
// If Newton-Raphson fails to converge
// it returns ErrConvergence
// and the parameters are left unchanged.
func (s *Sampler) ProposeAndStep() (Result, error) {
	s.gamma.Store()
	s.precision.Store()
	s.lambda.Store()
	s.state = Idle

	res, err := s.step()
	if err != nil || !res.Accepted {
		s.gamma.Restore()
		s.precision.Restore()
		s.lambda.Restore()
		s.state = Rejected
		return res, err
	}
	s.state = Accepted
	return res, nil
}

func rejected(r Reason) Result {
	return Result{
		LogHastingsRatio: -math.MaxFloat64,
		LogAcceptance:    math.Inf(-1),
		Reason:           r,
	}
}

func (s *Sampler) step() (Result, error) {
	gamma := s.gamma.Values()
	prec := s.precision.Value()
	lambda := s.lambda.Value()

	ll, err := s.target.Derivatives(gamma, nil, nil)
	if err != nil {
		return rejected(NoReason), err
	}
	lp, err := s.logPrior(gamma, prec, lambda)
	if err != nil {
		return rejected(NoReason), err
	}

	// hyperparameters
	newLambda := lambda
	if s.cfg.Mixing {
		min, max := s.lambda.Bounds()
		newLambda = param.Reflect(lambda+s.cfg.MixingWidth*(2*s.rng.Float64()-1), min, max)
	}

	var logQ float64
	newPrec := prec
	switch s.cfg.Mode {
	case ScaleProposal:
		newPrec = s.scalePrecision(prec)
	case GammaConjugate:
		fwd, err := s.conditional(gamma, newLambda)
		if err != nil {
			return rejected(NoReason), err
		}
		newPrec = fwd.Rand()
		logQ -= fwd.LogProb(newPrec)
	}
	if min, max := s.precision.Bounds(); !(newPrec > 0) || math.IsInf(newPrec, 0) || newPrec < min || newPrec > max {
		return rejected(OutOfBounds), nil
	}
	q, err := s.prior.Matrix(prec, lambda)
	if err != nil {
		return rejected(NoReason), err
	}
	newQ, err := s.prior.Matrix(newPrec, newLambda)
	if err != nil {
		return rejected(NoReason), err
	}
	s.state = PrecisionUpdated

	// forward proposal
	mode, _, err := NewtonRaphson(s.target, newQ, gamma, s.cfg.Tolerance, s.cfg.MaxIter)
	if errors.Is(err, tridiag.ErrNotPositiveDefinite) {
		return rejected(NonPositiveDefinite), nil
	}
	if err != nil {
		return rejected(NoReason), err
	}
	s.state = ModeFound

	fwd, err := newLaplace(s.target, newQ, mode)
	if errors.Is(err, tridiag.ErrNotPositiveDefinite) {
		return rejected(NonPositiveDefinite), nil
	}
	if err != nil {
		return rejected(NoReason), err
	}
	newGamma, logFwd := fwd.draw(s.rng.NormFloat64)
	for _, v := range newGamma {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return rejected(OutOfBounds), nil
		}
	}
	s.state = Proposed

	newLL, err := s.target.Derivatives(newGamma, nil, nil)
	if err != nil {
		return rejected(NoReason), err
	}
	newLP, err := s.logPrior(newGamma, newPrec, newLambda)
	if err != nil {
		return rejected(NoReason), err
	}

	// reverse proposal
	rMode, _, err := NewtonRaphson(s.target, q, newGamma, s.cfg.Tolerance, s.cfg.MaxIter)
	if errors.Is(err, tridiag.ErrNotPositiveDefinite) {
		return rejected(NonPositiveDefinite), nil
	}
	if err != nil {
		return rejected(NoReason), err
	}
	rev, err := newLaplace(s.target, q, rMode)
	if errors.Is(err, tridiag.ErrNotPositiveDefinite) {
		return rejected(NonPositiveDefinite), nil
	}
	if err != nil {
		return rejected(NoReason), err
	}
	logRev := rev.logProb(gamma)

	if s.cfg.Mode == GammaConjugate {
		back, err := s.conditional(newGamma, lambda)
		if err != nil {
			return rejected(NoReason), err
		}
		logQ += back.LogProb(prec)
	}

	ratio := newLL + newLP - ll - lp + logRev - logFwd + logQ
	if math.IsNaN(ratio) {
		return rejected(OutOfBounds), nil
	}
	ratio = math.Max(ratio, -math.MaxFloat64)
	res := Result{
		LogHastingsRatio: ratio,
		LogAcceptance:    math.Min(0, ratio),
		Reason:           Ratio,
	}
	if ratio < 0 && math.Log(s.rng.Float64()) >= ratio {
		return res, nil
	}

	if err := s.gamma.Set(newGamma); err != nil {
		return rejected(OutOfBounds), nil
	}
	if err := s.precision.Set(newPrec); err != nil {
		return rejected(OutOfBounds), nil
	}
	if err := s.lambda.Set(newLambda); err != nil {
		return rejected(OutOfBounds), nil
	}
	res.Accepted = true
	res.Reason = NoReason
	return res, nil
}

// scalePrecision returns a new precision
// multiplied by a scale between 1/f and f,
// where f is the scale factor.
// The scale is drawn from a mixture
// of a uniform and a log-uniform distribution
// with weights proportional to their support,
// so the proposal density is symmetric.
func (s *Sampler) scalePrecision(prec float64) float64 {
	f := s.cfg.ScaleFactor
	if f == 1 {
		return prec
	}
	length := f - 1/f
	if s.rng.Float64() < length/(length+2*math.Log(f)) {
		return (1/f + length*s.rng.Float64()) * prec
	}
	return math.Pow(f, 2*s.rng.Float64()-1) * prec
}

// conditional returns the Gamma conditional of the precision
// given the log population sizes
// and the mixing.
func (s *Sampler) conditional(g []float64, lambda float64) (distuv.Gamma, error) {
	rank, err := s.prior.Rank(lambda)
	if err != nil {
		return distuv.Gamma{}, err
	}
	quad, err := s.prior.Quad(g, lambda)
	if err != nil {
		return distuv.Gamma{}, err
	}
	return distuv.Gamma{
		Alpha: s.cfg.PriorShape + float64(rank)/2,
		Beta:  s.cfg.PriorRate + quad/2,
		Src:   s.rng,
	}, nil
}
