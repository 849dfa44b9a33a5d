// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

// Skygrid is a tool for the inference of past population sizes
// from time calibrated trees.
package main

import (
	"github.com/js-arias/command"
	"github.com/js-arias/skygrid/cmd/skygrid/like"
	"github.com/js-arias/skygrid/cmd/skygrid/mcmc"
	"github.com/js-arias/skygrid/cmd/skygrid/param"
	"github.com/js-arias/skygrid/cmd/skygrid/skylinecmd"
	"github.com/js-arias/skygrid/cmd/skygrid/tree"
)

var app = &command.Command{
	Usage: "skygrid <command> [<argument>...]",
	Short: "a tool for coalescent skygrid analysis",
}

func init() {
	app.Add(tree.Command)
	app.Add(param.Command)
	app.Add(like.Command)
	app.Add(mcmc.Command)
	app.Add(skylinecmd.Command)
}

func main() {
	app.Main()
}
