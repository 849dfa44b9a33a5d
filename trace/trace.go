// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

// Package trace implements reading and writing
// of MCMC traces
// of a skygrid model.
package trace

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

// LogPopPrefix is the prefix of the header fields
// with the log population size
// at each knot.
const LogPopPrefix = "logpop."

// A Sample is a sample of a chain.
type Sample struct {
	Tree      string
	Iteration int
	LogLike   float64
	LogPrior  float64
	Precision float64
	Lambda    float64

	// Accepted is the number of accepted moves
	// since the previous sample.
	Accepted int

	// LogPop is the log population size
	// at each knot.
	LogPop []float64
}

// Writer writes samples into a tab-delimited file.
// It is safe for concurrent use.
type Writer struct {
	mu  sync.Mutex
	bw  *bufio.Writer
	tsv *csv.Writer
	dim int
}

var headerFields = []string{
	"tree",
	"iteration",
	"loglike",
	"logprior",
	"precision",
	"lambda",
	"accepted",
}

// NewWriter returns a writer for samples
// with a given number of knots.
// Comments are written at the beginning of the file.
func NewWriter(w io.Writer, dim int, comments ...string) (*Writer, error) {
	if dim < 1 {
		return nil, fmt.Errorf("invalid dimension %d", dim)
	}
	bw := bufio.NewWriter(w)
	for _, c := range comments {
		fmt.Fprintf(bw, "# %s\n", c)
	}
	fmt.Fprintf(bw, "# data save on: %s\n", time.Now().Format(time.RFC3339))

	tsv := csv.NewWriter(bw)
	tsv.Comma = '\t'
	tsv.UseCRLF = true

	header := slices.Clone(headerFields)
	for i := range dim {
		header = append(header, LogPopPrefix+strconv.Itoa(i))
	}
	if err := tsv.Write(header); err != nil {
		return nil, fmt.Errorf("while writing header: %v", err)
	}

	return &Writer{
		bw:  bw,
		tsv: tsv,
		dim: dim,
	}, nil
}

// Write writes a sample.
func (w *Writer) Write(s Sample) error {
	if len(s.LogPop) != w.dim {
		return fmt.Errorf("tree %q: iteration %d: got %d values, want %d", s.Tree, s.Iteration, len(s.LogPop), w.dim)
	}
	row := []string{
		s.Tree,
		strconv.Itoa(s.Iteration),
		strconv.FormatFloat(s.LogLike, 'f', 6, 64),
		strconv.FormatFloat(s.LogPrior, 'f', 6, 64),
		strconv.FormatFloat(s.Precision, 'g', 8, 64),
		strconv.FormatFloat(s.Lambda, 'f', 6, 64),
		strconv.Itoa(s.Accepted),
	}
	for _, v := range s.LogPop {
		row = append(row, strconv.FormatFloat(v, 'f', 8, 64))
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.tsv.Write(row); err != nil {
		return fmt.Errorf("while writing data: %v", err)
	}
	return nil
}

// Flush writes any buffered data.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.tsv.Flush()
	if err := w.tsv.Error(); err != nil {
		return fmt.Errorf("while writing data: %v", err)
	}
	if err := w.bw.Flush(); err != nil {
		return fmt.Errorf("while writing data: %v", err)
	}
	return nil
}

// Trace is a collection of samples
// from one or more trees.
type Trace struct {
	dim     int
	samples map[string][]Sample
}

// Read reads a trace from a tab-delimited file.
//
// The file must contain the following fields:
//
//   - tree, the name of the tree
//   - iteration, the iteration of the sample
//   - loglike, the log likelihood
//   - logprior, the log prior density
//   - precision, the precision of the GMRF prior
//   - lambda, the mixing of the GMRF prior
//   - accepted, the accepted moves since the last sample
//   - logpop.<i>, the log population size at the knot i
//
// Here is an example file:
//
//	# skygrid trace
//	tree	iteration	loglike	logprior	precision	lambda	accepted	logpop.0	logpop.1
//	dinos	0	-4.500000	-1.200000	1	1.000000	0	0.00000000	0.00000000
//	dinos	100	-3.750000	-1.100000	1.45	1.000000	83	-0.25000000	0.10000000
func Read(r io.Reader) (*Trace, error) {
	tsv := csv.NewReader(r)
	tsv.Comma = '\t'
	tsv.Comment = '#'

	head, err := tsv.Read()
	if err != nil {
		return nil, fmt.Errorf("while reading header: %v", err)
	}
	fields := make(map[string]int, len(head))
	var dim int
	for i, h := range head {
		h = strings.ToLower(strings.TrimSpace(h))
		fields[h] = i
		if strings.HasPrefix(h, LogPopPrefix) {
			dim++
		}
	}
	for _, h := range headerFields {
		if _, ok := fields[h]; !ok {
			return nil, fmt.Errorf("expecting field %q", h)
		}
	}
	if dim == 0 {
		return nil, fmt.Errorf("expecting field %q", LogPopPrefix+"0")
	}
	pop := make([]int, dim)
	for i := range dim {
		f := LogPopPrefix + strconv.Itoa(i)
		c, ok := fields[f]
		if !ok {
			return nil, fmt.Errorf("expecting field %q", f)
		}
		pop[i] = c
	}

	t := &Trace{
		dim:     dim,
		samples: make(map[string][]Sample),
	}
	for {
		row, err := tsv.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		ln, _ := tsv.FieldPos(0)
		if err != nil {
			return nil, fmt.Errorf("on row %d: %v", ln, err)
		}

		s := Sample{
			Tree:   strings.TrimSpace(row[fields["tree"]]),
			LogPop: make([]float64, dim),
		}
		if s.Tree == "" {
			return nil, fmt.Errorf("on row %d: field %q: empty tree name", ln, "tree")
		}

		f := "iteration"
		s.Iteration, err = strconv.Atoi(row[fields[f]])
		if err != nil {
			return nil, fmt.Errorf("on row %d: field %q: %v", ln, f, err)
		}
		f = "accepted"
		s.Accepted, err = strconv.Atoi(row[fields[f]])
		if err != nil {
			return nil, fmt.Errorf("on row %d: field %q: %v", ln, f, err)
		}

		for _, fv := range []struct {
			name string
			v    *float64
		}{
			{"loglike", &s.LogLike},
			{"logprior", &s.LogPrior},
			{"precision", &s.Precision},
			{"lambda", &s.Lambda},
		} {
			v, err := strconv.ParseFloat(row[fields[fv.name]], 64)
			if err != nil {
				return nil, fmt.Errorf("on row %d: field %q: %v", ln, fv.name, err)
			}
			*fv.v = v
		}

		for i, c := range pop {
			v, err := strconv.ParseFloat(row[c], 64)
			if err != nil {
				return nil, fmt.Errorf("on row %d: field %q: %v", ln, LogPopPrefix+strconv.Itoa(i), err)
			}
			s.LogPop[i] = v
		}
		t.samples[s.Tree] = append(t.samples[s.Tree], s)
	}
	if len(t.samples) == 0 {
		return nil, errors.New("empty trace")
	}
	return t, nil
}

// Dim returns the number of knots
// of each sample.
func (t *Trace) Dim() int {
	return t.dim
}

// Trees returns the names of the trees in the trace.
func (t *Trace) Trees() []string {
	ns := make([]string, 0, len(t.samples))
	for n := range t.samples {
		ns = append(ns, n)
	}
	slices.Sort(ns)
	return ns
}

// Samples returns the samples of a tree,
// in file order.
func (t *Trace) Samples(tree string) []Sample {
	return t.samples[tree]
}

// Burnin removes the samples of each tree
// with an iteration smaller than the given value.
func (t *Trace) Burnin(it int) {
	for n, ss := range t.samples {
		t.samples[n] = slices.DeleteFunc(ss, func(s Sample) bool {
			return s.Iteration < it
		})
	}
}
