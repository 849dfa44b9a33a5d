// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

// Package skyline implements a summary
// of the population size through time
// from the samples of an MCMC chain.
package skyline

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"
	"time"

	"github.com/js-arias/skygrid/demog"
	"github.com/js-arias/skygrid/trace"
	"gonum.org/v1/gonum/stat"
)

// A Point is the summary of the population size
// at a given time.
type Point struct {
	Time   float64
	Median float64
	Lower  float64
	Upper  float64
}

// Skyline is a summary of the population size
// through time.
type Skyline struct {
	// Level is the probability mass
	// of the credible interval.
	Level float64

	Points []Point
}

// Times returns n+1 times
// evenly spaced between 0 and end.
func Times(end float64, n int) []float64 {
	if n < 1 {
		n = 1
	}
	ts := make([]float64, n+1)
	for i := range ts {
		ts[i] = end * float64(i) / float64(n)
	}
	return ts
}

// New returns a skyline
// from the samples of a chain
// evaluated with a demographic curve
// at the indicated times.
// Level is the probability mass
// of the central credible interval.
func New(c *demog.Curve, samples []trace.Sample, times []float64, level float64) (*Skyline, error) {
	if len(samples) == 0 {
		return nil, errors.New("skyline: without samples")
	}
	if !(level > 0 && level < 1) {
		return nil, fmt.Errorf("skyline: invalid credible level %v", level)
	}

	sz := make([][]float64, len(times))
	for i := range sz {
		sz[i] = make([]float64, 0, len(samples))
	}
	for _, s := range samples {
		for i, t := range times {
			lp, err := c.LogPopSize(s.LogPop, t)
			if err != nil {
				return nil, fmt.Errorf("skyline: iteration %d: time %.6f: %w", s.Iteration, t, err)
			}
			sz[i] = append(sz[i], lp)
		}
	}

	low := (1 - level) / 2
	sk := &Skyline{
		Level:  level,
		Points: make([]Point, len(times)),
	}
	for i, v := range sz {
		slices.Sort(v)
		sk.Points[i] = Point{
			Time:   times[i],
			Median: math.Exp(stat.Quantile(0.5, stat.Empirical, v, nil)),
			Lower:  math.Exp(stat.Quantile(low, stat.Empirical, v, nil)),
			Upper:  math.Exp(stat.Quantile(1-low, stat.Empirical, v, nil)),
		}
	}
	return sk, nil
}

// Write writes the skyline into a tab-delimited file.
// Comments are written at the beginning of the file.
func (sk *Skyline) Write(w io.Writer, comments ...string) error {
	bw := bufio.NewWriter(w)
	for _, c := range comments {
		fmt.Fprintf(bw, "# %s\n", c)
	}
	fmt.Fprintf(bw, "# credible interval: %.2f%%\n", sk.Level*100)
	fmt.Fprintf(bw, "# data save on: %s\n", time.Now().Format(time.RFC3339))

	tsv := csv.NewWriter(bw)
	tsv.Comma = '\t'
	tsv.UseCRLF = true

	if err := tsv.Write([]string{"time", "median", "lower", "upper"}); err != nil {
		return fmt.Errorf("while writing header: %v", err)
	}
	for _, p := range sk.Points {
		row := []string{
			strconv.FormatFloat(p.Time, 'f', 6, 64),
			strconv.FormatFloat(p.Median, 'g', 8, 64),
			strconv.FormatFloat(p.Lower, 'g', 8, 64),
			strconv.FormatFloat(p.Upper, 'g', 8, 64),
		}
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
