// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

// Package like implements a command to calculate
// the coalescent likelihood
// of the trees in a skygrid project.
package like

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/js-arias/command"
	"github.com/js-arias/skygrid/coalescent"
	"github.com/js-arias/skygrid/demog"
	"github.com/js-arias/skygrid/gmrf"
	"github.com/js-arias/skygrid/infer/blockupdate"
	"github.com/js-arias/skygrid/intervals"
	"github.com/js-arias/skygrid/project"
)

var Command = &command.Command{
	Usage: `like [--logpop <value>[,<value>...]] [--joint]
	[--mode] [--precision <value>] [--lambda <value>]
	<project-file>`,
	Short: "calculate the coalescent likelihood",
	Long: `
Command like reads the trees of a skygrid project and prints the log
likelihood of each tree under the demographic curve defined for the project.

The argument of the command is the name of the project file.

The flag --logpop defines the log population size at each knot of the curve,
the first knot is the present, and the other knots are the grid points. If a
single value is given, it will be used for all knots. By default, the log
population size is 0 at all knots.

The likelihood of each tree uses the ploidy factor of the tree defined in the
model parameters (see "skygrid help param-files"). If the flag --joint is
defined, the trees are taken as independent loci of a single population, and
the joint likelihood, named "joint", is printed.

If the flag --mode is defined, it will search, for each tree, the mode of the
posterior of the log population sizes using the smoothing prior, starting from
the values of --logpop. The flag --precision defines the precision of the
smoothing prior (default 1), and the flag --lambda the mixing (default 1). The
mode will be printed after the likelihood.
	`,
	SetFlags: setFlags,
	Run:      run,
}

var logPopFlag string
var modeFlag bool
var jointFlag bool
var precisionFlag float64
var lambdaFlag float64

func setFlags(c *command.Command) {
	c.Flags().StringVar(&logPopFlag, "logpop", "", "")
	c.Flags().BoolVar(&modeFlag, "mode", false, "")
	c.Flags().BoolVar(&jointFlag, "joint", false, "")
	c.Flags().Float64Var(&precisionFlag, "precision", 1, "")
	c.Flags().Float64Var(&lambdaFlag, "lambda", 1, "")
}

func run(c *command.Command, args []string) error {
	if len(args) < 1 {
		return c.UsageError("expecting project file")
	}

	p, err := project.Read(args[0])
	if err != nil {
		return err
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

	g, err := parseLogPop(logPopFlag, curve.Dim())
	if err != nil {
		return fmt.Errorf("flag --logpop: %v", err)
	}

	var prior *gmrf.Prior
	if modeFlag {
		prior, err = gmrf.New(curve.Knots(), gp.TimeAware())
		if err != nil {
			return err
		}
	}

	fmt.Fprintf(c.Stdout(), "tree\tloglike")
	if modeFlag {
		fmt.Fprintf(c.Stdout(), "\titerations")
		for i := range curve.Dim() {
			fmt.Fprintf(c.Stdout(), "\tlogpop.%d", i)
		}
	}
	fmt.Fprintf(c.Stdout(), "\n")

	var names []string
	var targets []target
	if jointFlag {
		var src []intervals.Source
		var ploidy []float64
		for _, tn := range tc.Names() {
			iv, err := intervals.FromTree(tc.Tree(tn))
			if err != nil {
				return err
			}
			src = append(src, iv)
			ploidy = append(ploidy, gp.Ploidy(tn))
		}
		m, err := coalescent.NewMulti(curve, src, ploidy)
		if err != nil {
			return err
		}
		names = append(names, "joint")
		targets = append(targets, m)
	} else {
		for _, tn := range tc.Names() {
			iv, err := intervals.FromTree(tc.Tree(tn))
			if err != nil {
				return err
			}
			l, err := coalescent.New(iv, curve)
			if err != nil {
				return fmt.Errorf("tree %q: %v", tn, err)
			}
			if err := l.SetPloidy(gp.Ploidy(tn)); err != nil {
				return fmt.Errorf("tree %q: %v", tn, err)
			}
			names = append(names, tn)
			targets = append(targets, l)
		}
	}

	for i, tn := range names {
		l := targets[i]
		if !modeFlag {
			ll, err := l.LogLikelihood(g)
			if err != nil {
				return fmt.Errorf("tree %q: %v", tn, err)
			}
			fmt.Fprintf(c.Stdout(), "%s\t%.6f\n", tn, ll)
			continue
		}

		m, it, err := mode(l, prior, g, gp.Config())
		if err != nil {
			return fmt.Errorf("tree %q: %v", tn, err)
		}
		ll, err := l.LogLikelihood(m)
		if err != nil {
			return fmt.Errorf("tree %q: %v", tn, err)
		}
		fmt.Fprintf(c.Stdout(), "%s\t%.6f\t%d", tn, ll, it)
		for _, v := range m {
			fmt.Fprintf(c.Stdout(), "\t%.6f", v)
		}
		fmt.Fprintf(c.Stdout(), "\n")
	}
	return nil
}

// target is a coalescent likelihood
// of a single tree,
// or a set of trees.
type target interface {
	blockupdate.Target
	LogLikelihood(g []float64) (float64, error)
}

func mode(l target, prior *gmrf.Prior, start []float64, cfg blockupdate.Config) ([]float64, int, error) {
	q, err := prior.Matrix(precisionFlag, lambdaFlag)
	if err != nil {
		return nil, 0, err
	}
	return blockupdate.NewtonRaphson(l, q, start, cfg.Tolerance, cfg.MaxIter)
}

func parseLogPop(s string, dim int) ([]float64, error) {
	g := make([]float64, dim)
	if s == "" {
		return g, nil
	}

	vs := strings.Split(s, ",")
	if len(vs) != 1 && len(vs) != dim {
		return nil, fmt.Errorf("got %d values, want 1 or %d", len(vs), dim)
	}
	for i, v := range vs {
		x, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, err
		}
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, fmt.Errorf("%w: log population size %v", demog.ErrDomain, x)
		}
		g[i] = x
	}
	if len(vs) == 1 {
		for i := range g {
			g[i] = g[0]
		}
	}
	return g, nil
}
