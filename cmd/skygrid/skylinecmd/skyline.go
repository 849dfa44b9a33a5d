// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

// Package skylinecmd implements a command to summarize
// the population size through time
// from an MCMC trace.
package skylinecmd

import (
	"fmt"
	"os"
	"slices"

	"github.com/js-arias/command"
	"github.com/js-arias/skygrid/project"
	"github.com/js-arias/skygrid/skyline"
	"github.com/js-arias/skygrid/trace"
)

var Command = &command.Command{
	Usage: `skyline [-i|--input <file>] [--burnin <number>]
	[--level <value>] [--points <number>] [--end <value>]
	[--plot <format>] [--color <scheme>]
	[-o|--output <file>]
	<project-file>`,
	Short: "summarize the population size through time",
	Long: `
Command skyline reads the trace produced by 'skygrid mcmc' and, for each tree,
writes the median and the credible interval of the population size at
different times.

The argument of the command is the name of the project file. The project is
used to rebuild the demographic curve.

By default, the trace file is the name of the project file with the suffix
'-trace.tab'. Use the flag --input, or -i, to define a different trace file.

The flag --burnin defines the iteration of the first sample used in the
summary (default 0). The flag --level defines the probability mass of the
credible interval (default 0.95).

The population size is evaluated at evenly spaced times from the present. The
flag --points defines the number of intervals (default 100). The flag --end
defines the oldest time, in million years. By default it is the last grid
point.

The output is a tab-delimited file with the fields time, median, lower, and
upper. The name of the output file is the name of the project file, the word
'skyline', and the tree name, with the extension '.tab'. Use the flag
--output, or -o, to set a different prefix.

By default, a plot with the median and the credible band is also written,
using the same file name with the extension '.png'. Use the flag --plot to
set a different image format (for example, "svg" or "pdf"), or "none" to skip
the plot. The flag --color defines the color scheme of the plot. Valid values
are "iridescent" (the default), "incandescent", and "rainbow".
	`,
	SetFlags: setFlags,
	Run:      run,
}

var inputFile string
var output string
var plotFormat string
var colorFlag string
var burnin int
var numPoints int
var levelFlag float64
var endFlag float64

func setFlags(c *command.Command) {
	c.Flags().StringVar(&inputFile, "input", "", "")
	c.Flags().StringVar(&inputFile, "i", "", "")
	c.Flags().StringVar(&output, "output", "", "")
	c.Flags().StringVar(&output, "o", "", "")
	c.Flags().StringVar(&plotFormat, "plot", "png", "")
	c.Flags().StringVar(&colorFlag, "color", "", "")
	c.Flags().IntVar(&burnin, "burnin", 0, "")
	c.Flags().IntVar(&numPoints, "points", 100, "")
	c.Flags().Float64Var(&levelFlag, "level", 0.95, "")
	c.Flags().Float64Var(&endFlag, "end", 0, "")
}

func run(c *command.Command, args []string) error {
	if len(args) < 1 {
		return c.UsageError("expecting project file")
	}

	scheme, err := skyline.ParseScheme(colorFlag)
	if err != nil {
		return fmt.Errorf("flag --color: %v", err)
	}

	p, err := project.Read(args[0])
	if err != nil {
		return err
	}
	if output == "" {
		output = p.NameRoot()
	}
	if inputFile == "" {
		inputFile = p.NameRoot() + "-trace.tab"
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

	tr, err := readTrace(inputFile)
	if err != nil {
		return err
	}
	if tr.Dim() != curve.Dim() {
		return fmt.Errorf("on file %q: got %d knots, want %d", inputFile, tr.Dim(), curve.Dim())
	}
	tr.Burnin(burnin)

	end := endFlag
	if end <= 0 {
		end = slices.Max(curve.Knots())
	}
	times := skyline.Times(end, numPoints)

	for _, tn := range tr.Trees() {
		sk, err := skyline.New(curve, tr.Samples(tn), times, levelFlag)
		if err != nil {
			return fmt.Errorf("tree %q: %v", tn, err)
		}

		name := fmt.Sprintf("%s-skyline-%s", output, tn)
		if err := writeSkyline(name+".tab", sk, tn); err != nil {
			return err
		}
		if plotFormat == "none" {
			continue
		}
		if err := sk.Plot(name+"."+plotFormat, scheme, "million years"); err != nil {
			return fmt.Errorf("tree %q: %v", tn, err)
		}
	}
	return nil
}

func readTrace(name string) (*trace.Trace, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	tr, err := trace.Read(f)
	if err != nil {
		return nil, fmt.Errorf("on file %q: %v", name, err)
	}
	return tr, nil
}

func writeSkyline(name string, sk *skyline.Skyline, tree string) (err error) {
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	defer func() {
		e := f.Close()
		if e != nil && err == nil {
			err = e
		}
	}()

	if err := sk.Write(f, fmt.Sprintf("skyline of tree %q", tree), fmt.Sprintf("burnin: %d", burnin)); err != nil {
		return fmt.Errorf("on file %q: %v", name, err)
	}
	return nil
}
