// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

// Package project implements reading and writing
// of skygrid project files.
//
// A skygrid project is a tab-delimited file (TSV)
// that links each dataset used by a skygrid analysis
// (the trees, the grid points, and the model parameters)
// with the file that stores it.
package project

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/js-arias/skygrid/demog"
	"github.com/js-arias/skygrid/grid"
	"github.com/js-arias/skygrid/gridparam"
	"github.com/js-arias/timetree"
)

// Dataset is a keyword to identify
// the type of a dataset file in a project.
type Dataset string

// Valid dataset types.
const (
	// Grid is the file with the grid points
	// of the demographic curve.
	Grid Dataset = "grid"

	// GridParam is the file with the parameters
	// of the model and the sampler.
	GridParam Dataset = "gridparam"

	// Trees is the file with the genealogies.
	Trees Dataset = "trees"
)

var datasets = []Dataset{
	Grid,
	GridParam,
	Trees,
}

// ErrUnknownDataset is returned when a project
// defines a dataset that is not known.
var ErrUnknownDataset = errors.New("unknown dataset")

// ParseDataset returns the dataset
// with the given name.
func ParseDataset(s string) (Dataset, error) {
	d := Dataset(strings.ToLower(strings.TrimSpace(s)))
	if !slices.Contains(datasets, d) {
		return "", fmt.Errorf("%w: %q", ErrUnknownDataset, s)
	}
	return d, nil
}

// A Project links datasets with file paths.
type Project struct {
	name  string
	paths map[Dataset]string
}

// New creates a new empty project.
func New() *Project {
	return &Project{
		paths: make(map[Dataset]string),
	}
}

// Name returns the project file name.
func (p *Project) Name() string {
	return p.name
}

// SetName sets the project file name.
func (p *Project) SetName(name string) {
	p.name = name
}

// NameRoot returns the project file name
// without its extension.
// It is used as the default prefix
// of the output files.
func (p *Project) NameRoot() string {
	return strings.TrimSuffix(p.name, filepath.Ext(p.name))
}

// Add sets the path of a dataset
// and returns the previous path.
// If path is empty,
// the dataset is removed from the project.
func (p *Project) Add(set Dataset, path string) string {
	prev := p.paths[set]
	if path == "" {
		delete(p.paths, set)
		return prev
	}
	p.paths[set] = path
	return prev
}

// Path returns the path of the given dataset.
func (p *Project) Path(set Dataset) string {
	return p.paths[set]
}

// Sets returns the datasets defined on a project,
// sorted by name.
func (p *Project) Sets() []Dataset {
	sets := make([]Dataset, 0, len(p.paths))
	for s := range p.paths {
		sets = append(sets, s)
	}
	slices.Sort(sets)
	return sets
}

var header = []string{
	"dataset",
	"path",
}

// Read reads a project file.
//
// The project file is a TSV file
// with the following fields:
//
//   - dataset, the kind of dataset
//   - path, the path of the dataset file
//
// Each dataset can be defined only once.
// Valid datasets are "grid", "gridparam", and "trees".
//
// Here is an example file:
//
//	# skygrid project files
//	dataset	path
//	grid	grid.tab
//	gridparam	grid-param.tab
//	trees	trees.tab
func Read(name string) (*Project, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	p, err := read(f)
	if err != nil {
		return nil, fmt.Errorf("on file %q: %w", name, err)
	}
	p.name = name
	return p, nil
}

func read(r io.Reader) (*Project, error) {
	tsv := csv.NewReader(r)
	tsv.Comma = '\t'
	tsv.Comment = '#'

	head, err := tsv.Read()
	if err != nil {
		return nil, fmt.Errorf("header: %v", err)
	}
	fields := make(map[string]int, len(head))
	for i, h := range head {
		fields[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, h := range header {
		if _, ok := fields[h]; !ok {
			return nil, fmt.Errorf("expecting field %q", h)
		}
	}

	p := New()
	for {
		row, err := tsv.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		ln, _ := tsv.FieldPos(0)
		if err != nil {
			return nil, fmt.Errorf("on row %d: %v", ln, err)
		}

		set, err := ParseDataset(row[fields["dataset"]])
		if err != nil {
			return nil, fmt.Errorf("on row %d: field %q: %w", ln, "dataset", err)
		}
		if _, dup := p.paths[set]; dup {
			return nil, fmt.Errorf("on row %d: dataset %q already defined", ln, set)
		}
		path := strings.TrimSpace(row[fields["path"]])
		if path == "" {
			return nil, fmt.Errorf("on row %d: field %q: empty path", ln, "path")
		}
		p.paths[set] = path
	}
	return p, nil
}

// Write writes a project into its file.
func (p *Project) Write() (err error) {
	f, err := os.Create(p.name)
	if err != nil {
		return err
	}
	defer func() {
		e := f.Close()
		if e != nil && err == nil {
			err = e
		}
	}()

	if err := p.write(f); err != nil {
		return fmt.Errorf("on file %q: %v", p.name, err)
	}
	return nil
}

func (p *Project) write(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# skygrid project files\n")
	fmt.Fprintf(bw, "# data save on: %s\n", time.Now().Format(time.RFC3339))

	tsv := csv.NewWriter(bw)
	tsv.Comma = '\t'
	tsv.UseCRLF = true
	if err := tsv.Write(header); err != nil {
		return fmt.Errorf("while writing header: %v", err)
	}
	for _, s := range p.Sets() {
		if err := tsv.Write([]string{string(s), p.paths[s]}); err != nil {
			return fmt.Errorf("while writing data: %v", err)
		}
	}
	tsv.Flush()
	if err := tsv.Error(); err != nil {
		return fmt.Errorf("while writing data: %v", err)
	}
	return bw.Flush()
}

// Trees reads the genealogies of a project.
func (p *Project) Trees() (*timetree.Collection, error) {
	name := p.paths[Trees]
	if name == "" {
		return nil, fmt.Errorf("project %q: dataset %q not defined", p.name, Trees)
	}

	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	c, err := timetree.ReadTSV(f)
	if err != nil {
		return nil, fmt.Errorf("on file %q: %v", name, err)
	}
	return c, nil
}

// GridParam reads the model parameters of a project.
// If the project does not define a parameter file,
// it returns the default parameters.
func (p *Project) GridParam() (*gridparam.GP, error) {
	name := p.paths[GridParam]
	if name == "" {
		return gridparam.New(""), nil
	}
	return gridparam.Read(name)
}

// Grid reads the grid points of a project.
//
// If the project does not define a grid file,
// it returns a uniform grid
// with the number of points
// and the cutoff of the model parameters.
// If the cutoff is 0,
// the age of the oldest root in the trees is used.
func (p *Project) Grid(gp *gridparam.GP, tc *timetree.Collection) (grid.Points, error) {
	name := p.paths[Grid]
	if name != "" {
		f, err := os.Open(name)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		pts, err := grid.Read(f)
		if err != nil {
			return nil, fmt.Errorf("on file %q: %v", name, err)
		}
		return pts, nil
	}

	cutoff := gp.Cutoff()
	if cutoff == 0 && tc != nil {
		cutoff = oldestRoot(tc)
	}
	pts, err := grid.Uniform(gp.Points(), cutoff)
	if err != nil {
		return nil, fmt.Errorf("project %q: uniform grid: %v", p.name, err)
	}
	return pts, nil
}

func oldestRoot(tc *timetree.Collection) int64 {
	var age int64
	for _, tn := range tc.Names() {
		t := tc.Tree(tn)
		age = max(age, t.Age(t.Root()))
	}
	return age
}

// Curve returns the demographic curve of a project,
// using its grid points
// and its model parameters.
func (p *Project) Curve(gp *gridparam.GP, tc *timetree.Collection) (*demog.Curve, error) {
	pts, err := p.Grid(gp, tc)
	if err != nil {
		return nil, err
	}
	knots, err := pts.Values()
	if err != nil {
		return nil, fmt.Errorf("project %q: grid: %v", p.name, err)
	}
	c, err := demog.New(gp.Curve(knots))
	if err != nil {
		return nil, fmt.Errorf("project %q: curve: %w", p.name, err)
	}
	return c, nil
}
