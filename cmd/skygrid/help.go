// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

package main

import "github.com/js-arias/command"

func init() {
	app.Add(gridFilesGuide)
	app.Add(paramFilesGuide)
	app.Add(projectsGuide)
	app.Add(traceFilesGuide)
	app.Add(treeFilesGuide)
}

var projectsGuide = &command.Command{
	Usage: "projects",
	Short: "about project files",
	Long: `
Skygrid requires several files to read and process the data. To reduce the
burden of keeping track of many files, a single project file is used to hold
the reference of all files required in the analysis. This guide explains the
structure of the file, but most of the time, the best and most secure way to
edit or view this file is by using skygrid commands.

A project file is a tab-delimited file with the following fields:

	- dataset  for the kind of file
	- path     for the path of the file

Here is an example file:

	# skygrid project files
	dataset	path
	grid	grid.tab
	gridparam	grid-param.tab
	trees	trees.tab

The valid file types are:

- Grid points. Defined by the dataset keyword "grid". This file contains the
  ages of the grid points of the demographic curve. If no grid file is
  defined, a uniform grid will be used. See "skygrid help grid-files".
- Model parameters. Defined by the dataset keyword "gridparam". This file
  contains the parameters of the demographic curve, and the sampler. The
  recommended way to add or edit a parameter file is by using the command
  'skygrid param'.
- Time-calibrated trees. Defined by the dataset keyword "trees". This file
  contains one or more trees in the form of a tab-delimited file. The
  recommended way to add a tree file is by using the command
  'skygrid tree add'.
	`,
}

var gridFilesGuide = &command.Command{
	Usage: "grid-files",
	Short: "about grid point files",
	Long: `
The demographic curve is defined by a log population size at the present, and
at each grid point. A grid file contains the ages of the grid points, one age
per line, in years. Lines starting with '#' are ignored. Here is an example
file:

	# grid points
	5000000
	10000000
	20000000

If a project does not define a grid file, a uniform grid is used. By default
the uniform grid has 20 points, with the last point at the age of the oldest
root of the trees in the project. The number of points and the age of the last
point can be changed with 'skygrid param'.
	`,
}

var paramFilesGuide = &command.Command{
	Usage: "param-files",
	Short: "about model parameter files",
	Long: `
A model parameter file is a tab-delimited file with the following fields:

	- parameter  the name of the parameter
	- value      the value of the parameter

Here is an example file:

	# skygrid parameters
	parameter	value
	shape	loglinear
	points	20
	precision	gamma
	mixing	true

The valid parameters are:

	- shape       the shape of the demographic curve between grid points.
	              Valid values are "constant", "loglinear", and "sigmoid".
	- rate        the rate of the sigmoid curve.
	- bounded     if true, times older than the last grid point are
	              outside of the curve.
	- timeaware   if true, the weights of the smoothing prior use the
	              distance between grid points.
	- points      number of points of a uniform grid.
	- cutoff      age, in years, of the last point of a uniform grid.
	- tolerance   gradient norm used to stop the search of the mode.
	- maxiter     maximum number of iterations used in the search of the
	              mode.
	- precision   the proposal of the smoothing precision. Valid values
	              are "scale" and "gamma".
	- scale       the scale factor of the precision proposal.
	- priorshape  the shape of the Gamma prior of the precision.
	- priorrate   the rate of the Gamma prior of the precision.
	- mixing      if true, the mixing of the smoothing prior is sampled.
	- lambda      the starting value of the mixing.
	- width       the maximum step of the mixing proposal.
	- ploidy      the default ploidy factor of the trees. The effective
	              population size of a tree is the ploidy factor times
	              the population size of the curve. Use 1 for an
	              autosomal locus of a diploid, and 0.25 for a
	              mitochondrial locus.
	- ploidy:<tree>
	              the ploidy factor of the indicated tree.
	`,
}

var traceFilesGuide = &command.Command{
	Usage: "trace-files",
	Short: "about MCMC trace files",
	Long: `
The command 'skygrid mcmc' writes the samples of the chains into a trace file.
A trace file is a tab-delimited file with the following fields:

	- tree       the name of the tree of the chain, or "joint" if all the
	             trees were analyzed as loci of a single population
	- iteration  the iteration of the sample
	- loglike    the log likelihood of the sample
	- logprior   the log prior density of the sample
	- precision  the precision of the smoothing prior
	- lambda     the mixing of the smoothing prior
	- accepted   number of accepted moves since the previous sample
	- logpop.<i> the log population size at the i-th knot, the first knot
	             is the present

The order of the rows is not defined, as chains are run in parallel.
	`,
}

var treeFilesGuide = &command.Command{
	Usage: "tree-files",
	Short: "about tree files",
	Long: `
Skygrid uses time calibrated trees stored as tab-delimited files with the
following fields:

	- tree    the name of the tree
	- node    an ID of the node
	- parent  the ID of the parent node (-1 is used for the root)
	- age     the age of the node, in years
	- taxon   the taxonomic name of a terminal node

Here is an example file:

	# time tree
	tree	node	parent	age	taxon
	dinos	0	-1	235000000
	dinos	1	0	170000000
	dinos	2	1	145000000
	dinos	3	2	66000000	Tyrannosaurus rex
	dinos	4	2	95000000	Carnotaurus sastrei
	dinos	5	1	140000000	Spinosaurus aegyptiacus
	dinos	6	0	66000000	Triceratops horridus

The terminals can be of any age, so serially sampled trees are allowed.
	`,
}
