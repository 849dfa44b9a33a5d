// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

// Package mcmc implements a command to sample
// the posterior of a skygrid model
// using a block update MCMC.
package mcmc

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"runtime"
	"time"

	"github.com/js-arias/command"
	"github.com/js-arias/skygrid/coalescent"
	"github.com/js-arias/skygrid/demog"
	"github.com/js-arias/skygrid/gmrf"
	"github.com/js-arias/skygrid/gridparam"
	"github.com/js-arias/skygrid/infer/blockupdate"
	"github.com/js-arias/skygrid/infer/chain"
	"github.com/js-arias/skygrid/intervals"
	"github.com/js-arias/skygrid/param"
	"github.com/js-arias/skygrid/project"
	"github.com/js-arias/skygrid/trace"
	"github.com/js-arias/timetree"
	"golang.org/x/exp/rand"
)

var Command = &command.Command{
	Usage: `mcmc [--iter <number>] [--every <number>] [--joint]
	[--start <value>] [--precision <value>]
	[--seed <number>] [--cpu <number>]
	[-o|--output <file>]
	<project-file>`,
	Short: "sample the posterior with MCMC",
	Long: `
Command mcmc reads a skygrid project and samples the posterior of the log
population sizes, and the parameters of the smoothing prior, using a block
update MCMC. Each tree in the project is analyzed with an independent chain.

If the flag --joint is defined, the trees are taken as independent loci that
share a single demographic history, and analyzed with a single chain, named
"joint". The ploidy factor of each tree (for example, 0.25 for a mitochondrial
locus) is taken from the model parameters.

The argument of the command is the name of the project file.

The flag --iter defines the number of iterations of each chain (default
10000). The flag --every defines the number of iterations between samples
(default 100).

The flag --start defines the starting log population size at all knots
(default 0). The flag --precision defines the starting precision of the
smoothing prior (default 1). The starting mixing is taken from the model
parameters (see "skygrid help param-files").

The flag --seed sets the seed of the random number generator. Each chain uses
its own generator, seeded with the seed plus the index of the tree. By
default, the seed is taken from the current time.

The output is a trace file (see "skygrid help trace-files"). By default the
name of the file is the name of the project file with the suffix '-trace.tab'.
To set a different prefix, use the flag --output, or -o.

By default, all available CPU will be used in the calculations. Set the flag
--cpu to use a different number of CPUs.

Diagnostics, such as repeated failures to find the mode of the posterior, are
reported in the standard error. At the end of the run, the acceptance rate of
each chain is printed in the standard output.
	`,
	SetFlags: setFlags,
	Run:      run,
}

var iterFlag int
var everyFlag int
var jointFlag bool
var numCPU int
var seedFlag int64
var startFlag float64
var precisionFlag float64
var output string

func setFlags(c *command.Command) {
	c.Flags().IntVar(&iterFlag, "iter", 10_000, "")
	c.Flags().IntVar(&everyFlag, "every", 100, "")
	c.Flags().BoolVar(&jointFlag, "joint", false, "")
	c.Flags().IntVar(&numCPU, "cpu", runtime.NumCPU(), "")
	c.Flags().Int64Var(&seedFlag, "seed", 0, "")
	c.Flags().Float64Var(&startFlag, "start", 0, "")
	c.Flags().Float64Var(&precisionFlag, "precision", 1, "")
	c.Flags().StringVar(&output, "output", "", "")
	c.Flags().StringVar(&output, "o", "", "")
}

func run(c *command.Command, args []string) error {
	if len(args) < 1 {
		return c.UsageError("expecting project file")
	}
	if iterFlag < 1 {
		return c.UsageError(fmt.Sprintf("flag --iter: invalid value %d", iterFlag))
	}

	p, err := project.Read(args[0])
	if err != nil {
		return err
	}
	if output == "" {
		output = p.NameRoot()
	}

	tc, err := p.Trees()
	if err != nil {
		return err
	}
	gp, err := p.GridParam()
	if err != nil {
		return err
	}
	curve, err := p.Curve(gp, tc)
	if err != nil {
		return err
	}

	seed := uint64(seedFlag)
	if seedFlag == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	var chains []*chain.Chain
	if jointFlag {
		m, err := jointLikelihood(tc, curve, gp)
		if err != nil {
			return err
		}
		cfg := gp.Config()
		cfg.Src = rand.NewSource(seed)
		ch, err := newChain("joint", m, curve, gp, cfg)
		if err != nil {
			return err
		}
		chains = append(chains, ch)
	} else {
		for i, tn := range tc.Names() {
			l, err := treeLikelihood(tc, tn, curve, gp)
			if err != nil {
				return err
			}
			cfg := gp.Config()
			cfg.Src = rand.NewSource(seed + uint64(i))
			ch, err := newChain(tn, l, curve, gp, cfg)
			if err != nil {
				return err
			}
			chains = append(chains, ch)
		}
	}

	name := output + "-trace.tab"
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	defer f.Close()

	tw, err := trace.NewWriter(f, curve.Dim(),
		fmt.Sprintf("skygrid mcmc: project %q", args[0]),
		fmt.Sprintf("curve: %s", curve.Shape()),
		fmt.Sprintf("seed: %d", seed),
	)
	if err != nil {
		return fmt.Errorf("on file %q: %v", name, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger := slog.New(slog.NewTextHandler(c.Stderr(), nil))
	runErr := chain.RunAll(ctx, numCPU, chains, chain.Param{
		Iterations: iterFlag,
		Every:      everyFlag,
		Logger:     logger,
	}, tw)
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("on file %q: %v", name, err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	fmt.Fprintf(c.Stdout(), "tree\titerations\taccepted\trate\tconvergence\tnonpd\n")
	for _, ch := range chains {
		st := ch.Stats()
		fmt.Fprintf(c.Stdout(), "%s\t%d\t%d\t%.6f\t%d\t%d\n", ch.Name(), st.Iterations, st.Accepted, st.AcceptanceRate(), st.ConvergenceFailures, st.NonPositiveDefinite)
	}
	return runErr
}

func treeLikelihood(tc *timetree.Collection, tn string, curve *demog.Curve, gp *gridparam.GP) (*coalescent.Likelihood, error) {
	iv, err := intervals.FromTree(tc.Tree(tn))
	if err != nil {
		return nil, err
	}
	l, err := coalescent.New(iv, curve)
	if err != nil {
		return nil, fmt.Errorf("tree %q: %v", tn, err)
	}
	if err := l.SetPloidy(gp.Ploidy(tn)); err != nil {
		return nil, fmt.Errorf("tree %q: %v", tn, err)
	}
	return l, nil
}

func jointLikelihood(tc *timetree.Collection, curve *demog.Curve, gp *gridparam.GP) (*coalescent.Multi, error) {
	names := tc.Names()
	src := make([]intervals.Source, 0, len(names))
	ploidy := make([]float64, 0, len(names))
	for _, tn := range names {
		iv, err := intervals.FromTree(tc.Tree(tn))
		if err != nil {
			return nil, err
		}
		src = append(src, iv)
		ploidy = append(ploidy, gp.Ploidy(tn))
	}
	return coalescent.NewMulti(curve, src, ploidy)
}

func newChain(name string, l blockupdate.Target, curve *demog.Curve, gp *gridparam.GP, cfg blockupdate.Config) (*chain.Chain, error) {
	prior, err := gmrf.New(curve.Knots(), gp.TimeAware())
	if err != nil {
		return nil, err
	}

	start := make([]float64, curve.Dim())
	for i := range start {
		start[i] = startFlag
	}
	gamma, err := param.NewVector("logpop", start)
	if err != nil {
		return nil, fmt.Errorf("flag --start: %v", err)
	}
	precision, err := param.NewScalar("precision", precisionFlag, 0, math.Inf(1))
	if err != nil {
		return nil, fmt.Errorf("flag --precision: %v", err)
	}
	lambda, err := param.NewScalar("lambda", gp.Lambda(), 0, 1)
	if err != nil {
		return nil, err
	}

	s, err := blockupdate.New(l, prior, gamma, precision, lambda, cfg)
	if err != nil {
		return nil, fmt.Errorf("chain %q: %v", name, err)
	}
	return chain.New(name, s, gamma, precision, lambda), nil
}
