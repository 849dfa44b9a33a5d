// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

// Package chain implements an MCMC driver
// for a block update sampler.
package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/js-arias/skygrid/infer/blockupdate"
	"github.com/js-arias/skygrid/param"
	"github.com/js-arias/skygrid/trace"
)

// A Writer receives the samples of a chain.
type Writer interface {
	Write(trace.Sample) error
}

// Param are the parameters of a run.
type Param struct {
	// Iterations is the number of iterations of the run.
	Iterations int

	// Every is the number of iterations between samples.
	// If zero,
	// only the last iteration is sampled.
	Every int

	// MaxFailures is the number of consecutive
	// convergence failures
	// at which a diagnostic is reported.
	// If zero,
	// 10 failures are used.
	MaxFailures int

	// Logger receives the diagnostics.
	// If nil,
	// no diagnostic is reported.
	Logger *slog.Logger
}

// Stats are the counts of a run.
type Stats struct {
	Iterations          int
	Accepted            int
	Rejected            int
	NonPositiveDefinite int
	OutOfBounds         int
	ConvergenceFailures int
}

// AcceptanceRate returns the fraction
// of accepted moves.
func (s Stats) AcceptanceRate() float64 {
	if s.Iterations == 0 {
		return 0
	}
	return float64(s.Accepted) / float64(s.Iterations)
}

// Chain is a single MCMC chain.
//
// Each chain must own its sampler,
// its parameters,
// and the likelihood and prior used by the sampler.
type Chain struct {
	name      string
	s         *blockupdate.Sampler
	gamma     *param.Vector
	precision *param.Scalar
	lambda    *param.Scalar

	stats Stats
}

// New returns a new chain.
func New(name string, s *blockupdate.Sampler, gamma *param.Vector, precision, lambda *param.Scalar) *Chain {
	return &Chain{
		name:      name,
		s:         s,
		gamma:     gamma,
		precision: precision,
		lambda:    lambda,
	}
}

// Name returns the name of the chain.
func (c *Chain) Name() string {
	return c.name
}

// Stats returns the counts
// of all the runs of the chain.
func (c *Chain) Stats() Stats {
	return c.stats
}

// Run runs the chain.
//
// The chain stops between iterations
// if the context is cancelled.
// A convergence failure is counted
// and the chain continues from the unmodified state.
// Any other error stops the chain.
func (c *Chain) Run(ctx context.Context, p Param, w Writer) error {
	maxFail := p.MaxFailures
	if maxFail <= 0 {
		maxFail = 10
	}
	every := p.Every
	if every <= 0 {
		every = p.Iterations
	}

	start := c.stats.Iterations
	if start == 0 {
		if err := c.sample(w, start, 0); err != nil {
			return err
		}
	}

	var failures, accepted int
	for i := 1; i <= p.Iterations; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		res, err := c.s.ProposeAndStep()
		c.stats.Iterations++
		if errors.Is(err, blockupdate.ErrConvergence) {
			c.stats.ConvergenceFailures++
			failures++
			if failures == maxFail && p.Logger != nil {
				p.Logger.Warn("repeated convergence failures",
					"chain", c.name,
					"iteration", start+i,
					"failures", failures,
					"error", err,
					"hint", "increase the Newton-Raphson tolerance or iterations, or reduce the number of grid points",
				)
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("chain %q: iteration %d: %w", c.name, start+i, err)
		}
		failures = 0

		switch {
		case res.Accepted:
			c.stats.Accepted++
			accepted++
		case res.Reason == blockupdate.NonPositiveDefinite:
			c.stats.NonPositiveDefinite++
			c.stats.Rejected++
		case res.Reason == blockupdate.OutOfBounds:
			c.stats.OutOfBounds++
			c.stats.Rejected++
		default:
			c.stats.Rejected++
		}

		if i%every == 0 {
			if err := c.sample(w, start+i, accepted); err != nil {
				return err
			}
			accepted = 0
		}
	}

	if p.Logger != nil {
		p.Logger.Info("chain finished",
			"chain", c.name,
			"iterations", c.stats.Iterations,
			"acceptance", c.stats.AcceptanceRate(),
			"convergence failures", c.stats.ConvergenceFailures,
			"non positive definite", c.stats.NonPositiveDefinite,
		)
	}
	return nil
}

func (c *Chain) sample(w Writer, it, accepted int) error {
	if w == nil {
		return nil
	}
	ll, err := c.s.CurrentLogLikelihood()
	if err != nil {
		return fmt.Errorf("chain %q: iteration %d: %w", c.name, it, err)
	}
	lp, err := c.s.CurrentLogPriorDensity()
	if err != nil {
		return fmt.Errorf("chain %q: iteration %d: %w", c.name, it, err)
	}
	s := trace.Sample{
		Tree:      c.name,
		Iteration: it,
		LogLike:   ll,
		LogPrior:  lp,
		Precision: c.precision.Value(),
		Lambda:    c.lambda.Value(),
		Accepted:  accepted,
		LogPop:    c.gamma.Values(),
	}
	if err := w.Write(s); err != nil {
		return fmt.Errorf("chain %q: %w", c.name, err)
	}
	return nil
}

// RunAll runs a set of independent chains
// using the indicated number of goroutines.
// The writer must be safe for concurrent use.
func RunAll(ctx context.Context, cpu int, chains []*Chain, p Param, w Writer) error {
	if cpu < 1 {
		cpu = 1
	}

	ch := make(chan *Chain)
	errCh := make(chan error, len(chains))
	var wg sync.WaitGroup
	for range min(cpu, len(chains)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range ch {
				if err := c.Run(ctx, p, w); err != nil {
					errCh <- err
				}
			}
		}()
	}

	for _, c := range chains {
		ch <- c
	}
	close(ch)
	wg.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
