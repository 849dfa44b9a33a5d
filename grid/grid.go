// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

// Package grid implements a set of grid points
// of a demographic curve,
// as ages in years.
package grid

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"
)

// MillionYears is the base unit for most analysis.
const MillionYears = 1_000_000

// Points is a set of grid points.
type Points map[int64]bool

// New returns an empty set of grid points.
func New() Points {
	return Points(make(map[int64]bool))
}

// Uniform returns a set of count grid points
// evenly spaced between 0 and cutoff
// (both in years).
// The last grid point is the cutoff.
func Uniform(count int, cutoff int64) (Points, error) {
	if count < 1 {
		return nil, fmt.Errorf("invalid number of grid points: %d", count)
	}
	if cutoff < int64(count) {
		return nil, fmt.Errorf("invalid cutoff %d for %d grid points", cutoff, count)
	}
	p := New()
	for i := 1; i <= count; i++ {
		p.Add(cutoff * int64(i) / int64(count))
	}
	return p, nil
}

// Read reads grid points from a TSV file.
//
// The TSV must be without header
// and the first column should indicate the age
// (in years)
// of each grid point.
// Any other columns will be ignored.
//
// Here is an example file
//
//	# grid points
//	5000000
//	10000000
//	20000000
//	40000000
func Read(r io.Reader) (Points, error) {
	tsv := csv.NewReader(r)
	tsv.Comma = '\t'
	tsv.Comment = '#'
	tsv.FieldsPerRecord = -1

	p := New()
	for {
		row, err := tsv.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		ln, _ := tsv.FieldPos(0)
		if err != nil {
			return nil, fmt.Errorf("on line %d: %v", ln, err)
		}

		as := strings.TrimSpace(row[0])
		if as == "" {
			continue
		}
		a, err := strconv.ParseInt(as, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("on line %d: read %q: %v", ln, as, err)
		}
		if a < 0 {
			return nil, fmt.Errorf("on line %d: invalid age %d", ln, a)
		}
		p.Add(a)
	}

	return p, nil
}

// Add adds a grid point.
func (p Points) Add(a int64) {
	p[a] = true
}

// Ages returns a sorted slice
// of the grid points.
func (p Points) Ages() []int64 {
	ages := make([]int64, 0, len(p))
	for a := range p {
		ages = append(ages, a)
	}
	slices.Sort(ages)

	return ages
}

// Values returns the grid points
// in million years,
// without the present.
// It returns an error if there are no grid points
// older than the present.
func (p Points) Values() ([]float64, error) {
	var v []float64
	for _, a := range p.Ages() {
		if a == 0 {
			continue
		}
		v = append(v, float64(a)/MillionYears)
	}
	if len(v) == 0 {
		return nil, errors.New("without grid points older than the present")
	}
	return v, nil
}

// Write writes grid points into a tab-delimited file.
func (p Points) Write(w io.Writer) (err error) {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# grid points\n")
	fmt.Fprintf(bw, "# data save on: %s\n", time.Now().Format(time.RFC3339))

	tsv := csv.NewWriter(bw)
	tsv.Comma = '\t'
	tsv.UseCRLF = true

	for _, a := range p.Ages() {
		row := []string{
			strconv.FormatInt(a, 10),
		}
		if err := tsv.Write(row); err != nil {
			return err
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
