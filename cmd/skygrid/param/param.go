// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

// Package param implements a command to manage
// the parameters of a skygrid model.
package param

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/js-arias/command"
	"github.com/js-arias/skygrid/demog"
	"github.com/js-arias/skygrid/grid"
	"github.com/js-arias/skygrid/gridparam"
	"github.com/js-arias/skygrid/project"
)

var Command = &command.Command{
	Usage: `param [--add <param-file>] [--file <file-name>]
	[--grid <grid-file>]
	[--shape <value>] [--points <value>] [--cutoff <value>]
	[--precision <value>]
	[--set "<parameter>=<value>[,<parameter>=<value>...]"]
	<project-file>`,
	Short: "manage model parameters",
	Long: `
Command param manages the parameters of the demographic curve and the sampler
defined for a skygrid project.

The argument of the command is the name of the project file.

By default, the command will print the currently defined parameters.

If the flag --add is defined, it will use the indicated file for the model
parameters. If the flag --grid is defined, it will use the indicated file for
the grid points.

By default, any change on the parameters will be stored in the current
parameters file. Use the flag --file to define a new parameters file. If the
project does not have a parameters file, the file 'grid-param.tab' will be
created.

The flag --shape sets the shape of the curve between grid points. Valid values
are "constant", "loglinear", and "sigmoid". The flags --points and --cutoff
define the number of points and the age of the last point (in million years)
of the uniform grid used when the project does not define a grid file. The
flag --precision sets the proposal for the precision of the smoothing prior.
Valid values are "scale" and "gamma".

Any other parameter can be set with the flag --set. See
"skygrid help param-files" for the list of parameters.
	`,
	SetFlags: setFlags,
	Run:      run,
}

var addFile string
var gridFile string
var paramFile string
var shapeFlag string
var precisionFlag string
var setFlag string
var points int
var cutoff float64

func setFlags(c *command.Command) {
	c.Flags().StringVar(&addFile, "add", "", "")
	c.Flags().StringVar(&gridFile, "grid", "", "")
	c.Flags().StringVar(&paramFile, "file", "", "")
	c.Flags().StringVar(&shapeFlag, "shape", "", "")
	c.Flags().StringVar(&precisionFlag, "precision", "", "")
	c.Flags().StringVar(&setFlag, "set", "", "")
	c.Flags().IntVar(&points, "points", 0, "")
	c.Flags().Float64Var(&cutoff, "cutoff", 0, "")
}

func run(c *command.Command, args []string) error {
	if len(args) < 1 {
		return c.UsageError("expecting project file")
	}

	p, err := project.Read(args[0])
	if err != nil {
		return err
	}

	if gridFile != "" {
		f, err := os.Open(gridFile)
		if err != nil {
			return err
		}
		_, err = grid.Read(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("on file %q: %v", gridFile, err)
		}
		p.Add(project.Grid, gridFile)
		if err := p.Write(); err != nil {
			return err
		}
	}

	if addFile != "" {
		if _, err := gridparam.Read(addFile); err != nil {
			return err
		}
		p.Add(project.GridParam, addFile)
		if err := p.Write(); err != nil {
			return err
		}
		return nil
	}

	gp, err := p.GridParam()
	if err != nil {
		return err
	}
	if paramFile != "" {
		gp.SetName(paramFile)
	}
	if gp.Name() == "" {
		gp.SetName("grid-param.tab")
	}

	ed := false
	if shapeFlag != "" {
		if err := gp.Set(gridparam.Shape, shapeFlag); err != nil {
			return fmt.Errorf("flag --shape: %v", err)
		}
		ed = true
	}
	if precisionFlag != "" {
		if err := gp.Set(gridparam.Precision, precisionFlag); err != nil {
			return fmt.Errorf("flag --precision: %v", err)
		}
		ed = true
	}
	if points > 0 {
		if err := gp.SetPoints(points); err != nil {
			return err
		}
		ed = true
	}
	if cutoff > 0 {
		v := fmt.Sprintf("%d", int64(cutoff*grid.MillionYears))
		if err := gp.Set(gridparam.Cutoff, v); err != nil {
			return fmt.Errorf("flag --cutoff: %v", err)
		}
		ed = true
	}
	if setFlag != "" {
		if err := parseSet(gp, setFlag); err != nil {
			return fmt.Errorf("flag --set: %v", err)
		}
		ed = true
	}

	if p.Path(project.GridParam) != gp.Name() {
		if err := gp.Write(); err != nil {
			return err
		}
		p.Add(project.GridParam, gp.Name())
		if err := p.Write(); err != nil {
			return err
		}
		return nil
	}
	if ed {
		if err := gp.Write(); err != nil {
			return err
		}
		return nil
	}

	printParams(c.Stdout(), p, gp)
	return nil
}

func parseSet(gp *gridparam.GP, s string) error {
	for _, kv := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return fmt.Errorf("invalid value %q: expecting <parameter>=<value>", kv)
		}
		k = strings.ToLower(strings.TrimSpace(k))
		if err := gp.Set(gridparam.Param(k), strings.TrimSpace(v)); err != nil {
			return fmt.Errorf("parameter %q: %v", k, err)
		}
	}
	return nil
}

func printParams(w io.Writer, p *project.Project, gp *gridparam.GP) {
	fmt.Fprintf(w, "file:        %s\n", gp.Name())
	fmt.Fprintf(w, "shape:       %s\n", gp.Shape())
	if gp.Shape() == demog.Sigmoid {
		fmt.Fprintf(w, "rate:        %.6f\n", gp.Rate())
	}
	if gp.Bounded() {
		fmt.Fprintf(w, "bounded:     true\n")
	}
	fmt.Fprintf(w, "time aware:  %v\n", gp.TimeAware())
	if gf := p.Path(project.Grid); gf != "" {
		fmt.Fprintf(w, "grid:        %s\n", gf)
	} else {
		fmt.Fprintf(w, "grid points: %d\n", gp.Points())
		if co := gp.Cutoff(); co > 0 {
			fmt.Fprintf(w, "cutoff:      %.6f\n", float64(co)/grid.MillionYears)
		}
	}

	cfg := gp.Config()
	fmt.Fprintf(w, "tolerance:   %g\n", cfg.Tolerance)
	fmt.Fprintf(w, "max iter:    %d\n", cfg.MaxIter)
	fmt.Fprintf(w, "precision:   %s\n", cfg.Mode)
	fmt.Fprintf(w, "scale:       %.6f\n", cfg.ScaleFactor)
	fmt.Fprintf(w, "prior:       Gamma(%g, %g)\n", cfg.PriorShape, cfg.PriorRate)
	fmt.Fprintf(w, "lambda:      %.6f\n", gp.Lambda())
	if cfg.Mixing {
		fmt.Fprintf(w, "mixing:      %.6f\n", cfg.MixingWidth)
	}
}
