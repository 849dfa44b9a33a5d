// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

// Package add implements a command to add trees
// to a skygrid project.
package add

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/js-arias/command"
	"github.com/js-arias/skygrid/intervals"
	"github.com/js-arias/skygrid/project"
	"github.com/js-arias/timetree"
)

var Command = &command.Command{
	Usage: `add [-f|--file <tree-file>]
	[--newick <name>] [--age <value>]
	[--ploidy <value>]
	<project-file> [<tree-file>...]`,
	Short: "add genealogies to a skygrid project",
	Long: `
Command add reads one or more genealogies from one or more tree files, and adds
them to a skygrid project. The genealogies must be time calibrated, and each
one must have at least two sampled terminals. Terminals can be sampled at
different ages (for example, ancient DNA samples).

The first argument of the command is the name of the project file. If no
project file exists, a new project will be created.

One or more tree files can be given as arguments. If no file is given the
trees will be read from the standard input.

By default, the input is expected to be in the form of tab-delimited tree
files (see "skygrid help tree-files"). To import newick trees, use the flag
--newick with a name to be defined for the trees found in the input files.
Branch lengths must be in million years. By default, the age of the root will
be calculated from the largest branch length between any terminal and the
root. To set a different root age, use the flag --age, with a value in million
years.

By default the trees will be stored in the tree file currently defined for the
project. If the project does not have a tree file, a new one will be created
with the name 'trees.tab'. A different tree file name can be defined using the
flag --file, or -f.

The flag --ploidy sets the ploidy factor of the added trees, for example 0.25
for a mitochondrial locus. The factor is stored in the model parameters of the
project. If the project does not have a parameters file, the file
'grid-param.tab' will be created.

The name, the number of terminals, and the root age (in million years) of each
added tree are printed in the standard output.
	`,
	SetFlags: setFlags,
	Run:      run,
}

var treeFile string
var newickName string
var rootAge float64
var ploidyFlag float64

func setFlags(c *command.Command) {
	c.Flags().StringVar(&treeFile, "file", "", "")
	c.Flags().StringVar(&treeFile, "f", "", "")
	c.Flags().StringVar(&newickName, "newick", "", "")
	c.Flags().Float64Var(&rootAge, "age", 0, "")
	c.Flags().Float64Var(&ploidyFlag, "ploidy", 0, "")
}

func run(c *command.Command, args []string) error {
	if len(args) < 1 {
		return c.UsageError("expecting project file")
	}
	if ploidyFlag < 0 {
		return c.UsageError(fmt.Sprintf("flag --ploidy: invalid value %v", ploidyFlag))
	}

	p, err := openProject(args[0])
	if err != nil {
		return err
	}
	tc := timetree.NewCollection()
	if p.Path(project.Trees) != "" {
		tc, err = p.Trees()
		if err != nil {
			return err
		}
	}

	inputs := args[1:]
	if len(inputs) == 0 {
		inputs = []string{"-"}
	}
	var added []*timetree.Tree
	for i, in := range inputs {
		tn := newickName
		if tn != "" && i > 0 {
			tn = fmt.Sprintf("%s.%d", newickName, i)
		}
		nc, err := readTrees(c.Stdin(), in, tn)
		if err != nil {
			return err
		}
		for _, name := range nc.Names() {
			t := nc.Tree(name)
			if _, err := intervals.FromTree(t); err != nil {
				return fmt.Errorf("tree %q from %q: %v", name, in, err)
			}
			if err := tc.Add(t); err != nil {
				return fmt.Errorf("tree %q from %q: %v", name, in, err)
			}
			added = append(added, t)
		}
	}

	if treeFile == "" {
		treeFile = p.Path(project.Trees)
	}
	if treeFile == "" {
		treeFile = "trees.tab"
	}
	if err := writeTrees(tc); err != nil {
		return err
	}
	p.Add(project.Trees, treeFile)

	if ploidyFlag > 0 {
		if err := setPloidy(p, added); err != nil {
			return err
		}
	}
	if err := p.Write(); err != nil {
		return err
	}

	for _, t := range added {
		fmt.Fprintf(c.Stdout(), "%s\t%d\t%.6f\n", t.Name(), len(t.Terms()), float64(t.Age(t.Root()))/intervals.MillionYears)
	}
	return nil
}

func openProject(name string) (*project.Project, error) {
	p, err := project.Read(name)
	if errors.Is(err, os.ErrNotExist) {
		p := project.New()
		p.SetName(name)
		return p, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unable to open project %q: %v", name, err)
	}
	return p, nil
}

// readTrees reads the trees from a file.
// If name is "-",
// it reads from r.
// If newick is not empty,
// the input is read as a newick file
// and newick is used as the name of the tree.
func readTrees(r io.Reader, name, newick string) (*timetree.Collection, error) {
	if name == "-" {
		name = "stdin"
	} else {
		f, err := os.Open(name)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	var c *timetree.Collection
	var err error
	if newick != "" {
		c, err = timetree.Newick(r, newick, int64(rootAge*intervals.MillionYears))
	} else {
		c, err = timetree.ReadTSV(r)
	}
	if err != nil {
		return nil, fmt.Errorf("while reading file %q: %v", name, err)
	}
	return c, nil
}

func setPloidy(p *project.Project, trees []*timetree.Tree) error {
	gp, err := p.GridParam()
	if err != nil {
		return err
	}
	if gp.Name() == "" {
		gp.SetName("grid-param.tab")
	}
	for _, t := range trees {
		if err := gp.SetPloidy(t.Name(), ploidyFlag); err != nil {
			return fmt.Errorf("flag --ploidy: %v", err)
		}
	}
	if err := gp.Write(); err != nil {
		return err
	}
	p.Add(project.GridParam, gp.Name())
	return nil
}

func writeTrees(tc *timetree.Collection) (err error) {
	f, err := os.Create(treeFile)
	if err != nil {
		return err
	}
	defer func() {
		e := f.Close()
		if e != nil && err == nil {
			err = e
		}
	}()

	if err := tc.TSV(f); err != nil {
		return fmt.Errorf("while writing to %q: %v", treeFile, err)
	}
	return nil
}
