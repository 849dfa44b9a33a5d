// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

// Package gridparam implements reading and writing
// of the parameters of a skygrid model
// and its sampler.
package gridparam

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/js-arias/skygrid/demog"
	"github.com/js-arias/skygrid/infer/blockupdate"
)

// Param is a keyword to identify
// the type of parameter in a gridparam file.
type Param string

// Valid parameters
const (
	// Shape is the shape of the demographic curve.
	Shape Param = "shape"

	// Rate is the rate of the sigmoid curve.
	Rate Param = "rate"

	// Bounded sets whether times older than the last grid point
	// are outside the curve.
	Bounded Param = "bounded"

	// TimeAware sets whether the GMRF weights
	// use the distance between knots.
	TimeAware Param = "timeaware"

	// Tolerance is the gradient norm
	// at which Newton-Raphson stops.
	Tolerance Param = "tolerance"

	// MaxIter is the maximum number of Newton-Raphson iterations.
	MaxIter Param = "maxiter"

	// Precision is the precision proposal mode.
	Precision Param = "precision"

	// Scale is the scale factor of the precision proposal.
	Scale Param = "scale"

	// PriorShape is the shape of the Gamma prior of the precision.
	PriorShape Param = "priorshape"

	// PriorRate is the rate of the Gamma prior of the precision.
	PriorRate Param = "priorrate"

	// Mixing sets whether the mixing of the GMRF is updated.
	Mixing Param = "mixing"

	// Lambda is the starting value of the mixing.
	Lambda Param = "lambda"

	// Width is the maximum step of a mixing proposal.
	Width Param = "width"

	// Points is the number of grid points
	// of a uniform grid.
	Points Param = "points"

	// Cutoff is the age, in years,
	// of the last point of a uniform grid.
	Cutoff Param = "cutoff"

	// Ploidy is the default ploidy factor of a tree.
	// The ploidy factor of a particular tree
	// is set with the name of the tree
	// after a colon,
	// for example "ploidy:mtdna".
	Ploidy Param = "ploidy"
)

// GP represents a collection of skygrid parameters.
type GP struct {
	name string // file name

	// curve
	shape     demog.Shape
	rate      float64
	bounded   bool
	timeAware bool

	// grid
	points int
	cutoff int64

	// sampler
	cfg    blockupdate.Config
	lambda float64

	// loci
	ploidy     float64
	treePloidy map[string]float64
}

// New creates a new parameter collection
// with default values.
func New(name string) *GP {
	return &GP{
		name:      name,
		shape:     demog.Constant,
		rate:      10,
		timeAware: true,
		points:    20,
		cfg:       blockupdate.DefaultConfig(),
		lambda:    1,

		ploidy:     1,
		treePloidy: make(map[string]float64),
	}
}

var header = []string{
	"parameter",
	"value",
}

// Read reads a gridparam file from a TSV file.
//
// The TSV must contains the following fields:
//
//   - parameter, the name of the parameter
//   - value, the value of the parameter
//
// Here is an example file:
//
//	# skygrid parameters
//	parameter	value
//	shape	loglinear
//	points	20
//	cutoff	100000000
//	precision	gamma
//	mixing	true
//	ploidy:mtdna	0.25
func Read(name string) (*GP, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	gp, err := read(f, name)
	if err != nil {
		return nil, fmt.Errorf("on file %q: %v", name, err)
	}
	return gp, nil
}

func read(r io.Reader, name string) (*GP, error) {
	tsv := csv.NewReader(r)
	tsv.Comma = '\t'
	tsv.Comment = '#'

	head, err := tsv.Read()
	if err != nil {
		return nil, fmt.Errorf("header: %v", err)
	}
	fields := make(map[string]int, len(head))
	for i, h := range head {
		h = strings.ToLower(h)
		fields[h] = i
	}
	for _, h := range header {
		if _, ok := fields[h]; !ok {
			return nil, fmt.Errorf("expecting field %q", h)
		}
	}

	gp := New(name)
	for {
		row, err := tsv.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		ln, _ := tsv.FieldPos(0)
		if err != nil {
			return nil, fmt.Errorf("on row %d: %v", ln, err)
		}

		p := Param(strings.ToLower(strings.TrimSpace(row[fields["parameter"]])))
		v := strings.TrimSpace(row[fields["value"]])
		if err := gp.Set(p, v); err != nil {
			return nil, fmt.Errorf("on row %d, field %q: %v", ln, "value", err)
		}
	}
	return gp, nil
}

// Set sets a parameter from a string value.
// Unknown parameters are ignored.
func (gp *GP) Set(p Param, v string) error {
	if tree, ok := strings.CutPrefix(string(p), string(Ploidy)+":"); ok {
		x, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		return gp.SetPloidy(tree, x)
	}

	switch p {
	case Shape:
		s, err := demog.ParseShape(v)
		if err != nil {
			return err
		}
		gp.shape = s
	case Rate:
		r, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		return gp.SetRate(r)
	case Bounded:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		gp.bounded = b
	case TimeAware:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		gp.timeAware = b
	case Tolerance:
		t, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		if !(t > 0) {
			return fmt.Errorf("invalid tolerance %v", t)
		}
		gp.cfg.Tolerance = t
	case MaxIter:
		m, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		if m < 1 {
			return fmt.Errorf("invalid maximum iterations %d", m)
		}
		gp.cfg.MaxIter = m
	case Precision:
		m, err := blockupdate.ParseMode(strings.ToLower(v))
		if err != nil {
			return err
		}
		gp.cfg.Mode = m
	case Scale:
		s, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		if !(s >= 1) {
			return fmt.Errorf("invalid scale factor %v", s)
		}
		gp.cfg.ScaleFactor = s
	case PriorShape, PriorRate:
		x, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		if !(x > 0) {
			return fmt.Errorf("invalid %s %v", p, x)
		}
		if p == PriorShape {
			gp.cfg.PriorShape = x
		} else {
			gp.cfg.PriorRate = x
		}
	case Mixing:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		gp.cfg.Mixing = b
	case Lambda:
		l, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		if !(l >= 0 && l <= 1) {
			return fmt.Errorf("invalid mixing %v", l)
		}
		gp.lambda = l
	case Width:
		w, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		if !(w > 0) {
			return fmt.Errorf("invalid mixing width %v", w)
		}
		gp.cfg.MixingWidth = w
	case Points:
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		return gp.SetPoints(n)
	case Cutoff:
		c, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return err
		}
		if c < 0 {
			return fmt.Errorf("invalid cutoff %d", c)
		}
		gp.cutoff = c
	case Ploidy:
		x, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		return gp.SetPloidy("", x)
	}
	return nil
}

// Name returns the name used for a set of parameters.
func (gp *GP) Name() string {
	return gp.name
}

// SetName sets the name of a parameter collection.
func (gp *GP) SetName(name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	gp.name = name
}

// Shape returns the shape of the demographic curve.
func (gp *GP) Shape() demog.Shape {
	return gp.shape
}

// SetShape sets the shape of the demographic curve.
func (gp *GP) SetShape(s demog.Shape) {
	gp.shape = s
}

// Rate returns the rate of the sigmoid curve.
func (gp *GP) Rate() float64 {
	return gp.rate
}

// SetRate sets the rate of the sigmoid curve.
func (gp *GP) SetRate(r float64) error {
	if !(r > 0) {
		return fmt.Errorf("invalid sigmoid rate %v", r)
	}
	gp.rate = r
	return nil
}

// Bounded returns true if times older
// than the last grid point
// are outside the curve.
func (gp *GP) Bounded() bool {
	return gp.bounded
}

// TimeAware returns true if the weights
// of the GMRF prior
// use the distance between knots.
func (gp *GP) TimeAware() bool {
	return gp.timeAware
}

// Points returns the number of grid points
// of a uniform grid.
func (gp *GP) Points() int {
	return gp.points
}

// SetPoints sets the number of points of a uniform grid.
func (gp *GP) SetPoints(n int) error {
	if n < 1 {
		return fmt.Errorf("invalid number of grid points: %d", n)
	}
	gp.points = n
	return nil
}

// Cutoff returns the age,
// in years,
// of the last point of a uniform grid.
// If zero,
// the age of the oldest root should be used.
func (gp *GP) Cutoff() int64 {
	return gp.cutoff
}

// Lambda returns the starting value
// of the mixing.
func (gp *GP) Lambda() float64 {
	return gp.lambda
}

// Ploidy returns the ploidy factor of a tree.
// If the tree does not have a ploidy factor
// it returns the default factor.
func (gp *GP) Ploidy(tree string) float64 {
	if p, ok := gp.treePloidy[strings.ToLower(strings.TrimSpace(tree))]; ok {
		return p
	}
	return gp.ploidy
}

// SetPloidy sets the ploidy factor of a tree.
// If tree is empty,
// it sets the default factor.
func (gp *GP) SetPloidy(tree string, p float64) error {
	if !(p > 0) || math.IsInf(p, 1) {
		return fmt.Errorf("invalid ploidy factor %v", p)
	}
	tree = strings.ToLower(strings.TrimSpace(tree))
	if tree == "" {
		gp.ploidy = p
		return nil
	}
	gp.treePloidy[tree] = p
	return nil
}

// Curve returns the parameters of a demographic curve
// with the given grid points
// (in million years).
func (gp *GP) Curve(grid []float64) demog.Param {
	return demog.Param{
		Grid:    grid,
		Shape:   gp.shape,
		Rate:    gp.rate,
		Bounded: gp.bounded,
	}
}

// Config returns the configuration of the sampler.
// The random source is not set.
func (gp *GP) Config() blockupdate.Config {
	return gp.cfg
}

// Write writes a parameter collection into a file.
func (gp *GP) Write() (err error) {
	f, err := os.Create(gp.name)
	if err != nil {
		return err
	}
	defer func() {
		e := f.Close()
		if e != nil && err == nil {
			err = e
		}
	}()

	if err := gp.write(f); err != nil {
		return fmt.Errorf("on file %q: %v", gp.name, err)
	}
	return nil
}

func (gp *GP) write(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# skygrid parameters\n")
	fmt.Fprintf(bw, "# data save on: %s\n", time.Now().Format(time.RFC3339))
	tsv := csv.NewWriter(bw)
	tsv.Comma = '\t'
	tsv.UseCRLF = true

	if err := tsv.Write(header); err != nil {
		return fmt.Errorf("while writing header: %v", err)
	}

	rows := [][]string{
		{string(Shape), gp.shape.String()},
		{string(Rate), strconv.FormatFloat(gp.rate, 'g', -1, 64)},
		{string(Bounded), strconv.FormatBool(gp.bounded)},
		{string(TimeAware), strconv.FormatBool(gp.timeAware)},
		{string(Points), strconv.Itoa(gp.points)},
		{string(Cutoff), strconv.FormatInt(gp.cutoff, 10)},
		{string(Tolerance), strconv.FormatFloat(gp.cfg.Tolerance, 'g', -1, 64)},
		{string(MaxIter), strconv.Itoa(gp.cfg.MaxIter)},
		{string(Precision), gp.cfg.Mode.String()},
		{string(Scale), strconv.FormatFloat(gp.cfg.ScaleFactor, 'g', -1, 64)},
		{string(PriorShape), strconv.FormatFloat(gp.cfg.PriorShape, 'g', -1, 64)},
		{string(PriorRate), strconv.FormatFloat(gp.cfg.PriorRate, 'g', -1, 64)},
		{string(Mixing), strconv.FormatBool(gp.cfg.Mixing)},
		{string(Lambda), strconv.FormatFloat(gp.lambda, 'g', -1, 64)},
		{string(Width), strconv.FormatFloat(gp.cfg.MixingWidth, 'g', -1, 64)},
		{string(Ploidy), strconv.FormatFloat(gp.ploidy, 'g', -1, 64)},
	}
	trees := make([]string, 0, len(gp.treePloidy))
	for tn := range gp.treePloidy {
		trees = append(trees, tn)
	}
	slices.Sort(trees)
	for _, tn := range trees {
		rows = append(rows, []string{string(Ploidy) + ":" + tn, strconv.FormatFloat(gp.treePloidy[tn], 'g', -1, 64)})
	}
	for _, row := range rows {
		if err := tsv.Write(row); err != nil {
			return fmt.Errorf("while writing data: %v", err)
		}
	}

	tsv.Flush()
	if err := tsv.Error(); err != nil {
		return fmt.Errorf("while writing data: %v", err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("while writing data: %v", err)
	}
	return nil
}
