// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

// Package list implements a command to print
// the list of trees in a skygrid project.
package list

import (
	"fmt"

	"github.com/js-arias/command"
	"github.com/js-arias/skygrid/intervals"
	"github.com/js-arias/skygrid/project"
)

var Command = &command.Command{
	Usage: "list [--events] <project-file>",
	Short: "print a list of the trees in a project",
	Long: `
Command list reads the trees from a skygrid project and prints the tree names
in the standard output.

The argument of the command is the name of the project file.

If the flag --events is defined, it will print, for each tree, the number of
sampled terminals, the number of coalescent events, and the age of the root
(in million years).
	`,
	SetFlags: setFlags,
	Run:      run,
}

var eventsFlag bool

func setFlags(c *command.Command) {
	c.Flags().BoolVar(&eventsFlag, "events", false, "")
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

	if eventsFlag {
		fmt.Fprintf(c.Stdout(), "tree\tterms\tcoalescences\troot\n")
	}
	for _, tn := range tc.Names() {
		if !eventsFlag {
			fmt.Fprintf(c.Stdout(), "%s\n", tn)
			continue
		}
		t := tc.Tree(tn)
		iv, err := intervals.FromTree(t)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.Stdout(), "%s\t%d\t%d\t%.6f\n", tn, len(t.Terms()), iv.Coalescences(), float64(t.Age(t.Root()))/intervals.MillionYears)
	}
	return nil
}
