// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

package chain_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"reflect"
	"strings"
	"testing"

	"github.com/js-arias/skygrid/coalescent"
	"github.com/js-arias/skygrid/demog"
	"github.com/js-arias/skygrid/gmrf"
	"github.com/js-arias/skygrid/infer/blockupdate"
	"github.com/js-arias/skygrid/infer/chain"
	"github.com/js-arias/skygrid/intervals"
	"github.com/js-arias/skygrid/param"
	"github.com/js-arias/skygrid/trace"
	"golang.org/x/exp/rand"
)

func newChain(t testing.TB, name string, start float64, cfg blockupdate.Config) *chain.Chain {
	t.Helper()

	iv, err := intervals.New([]intervals.Event{
		{Time: 0, Kind: intervals.Sample, Node: 0},
		{Time: 0, Kind: intervals.Sample, Node: 1},
		{Time: 0.5, Kind: intervals.Sample, Node: 2},
		{Time: 1, Kind: intervals.Coalescent, Node: 3},
		{Time: 2, Kind: intervals.Coalescent, Node: 4},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c, err := demog.New(demog.Param{
		Grid:  []float64{0.75, 1.5},
		Shape: demog.LogLinear,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	l, err := coalescent.New(iv, c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p, err := gmrf.New(c.Knots(), true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	g, err := param.NewVector("logpop", []float64{start, start, start})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	prec, err := param.NewScalar("precision", 1, 0, math.Inf(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lam, err := param.NewScalar("lambda", 1, 0, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s, err := blockupdate.New(l, p, g, prec, lam, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return chain.New(name, s, g, prec, lam)
}

func TestRun(t *testing.T) {
	cfg := blockupdate.DefaultConfig()
	cfg.Src = rand.NewSource(11)
	c := newChain(t, "dinos", 0, cfg)

	var buf bytes.Buffer
	w, err := trace.NewWriter(&buf, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p := chain.Param{
		Iterations: 200,
		Every:      50,
	}
	if err := c.Run(context.Background(), p, w); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	st := c.Stats()
	if st.Iterations != 200 {
		t.Errorf("iterations: got %d, want %d", st.Iterations, 200)
	}
	if st.Accepted+st.Rejected+st.ConvergenceFailures != st.Iterations {
		t.Errorf("counts: got %+v", st)
	}
	if st.Accepted == 0 {
		t.Errorf("accepted: got %d moves", st.Accepted)
	}

	tr, err := trace.Read(strings.NewReader(buf.String()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ss := tr.Samples("dinos")
	var its []int
	var acc int
	for _, s := range ss {
		its = append(its, s.Iteration)
		acc += s.Accepted
	}
	if want := []int{0, 50, 100, 150, 200}; !reflect.DeepEqual(its, want) {
		t.Errorf("sampled iterations: got %v, want %v", its, want)
	}
	if acc != st.Accepted {
		t.Errorf("accepted in trace: got %d, want %d", acc, st.Accepted)
	}
}

func TestConvergenceDiagnostic(t *testing.T) {
	cfg := blockupdate.DefaultConfig()
	cfg.MaxIter = 3
	cfg.Src = rand.NewSource(5)
	c := newChain(t, "dinos", -30, cfg)

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	p := chain.Param{
		Iterations:  12,
		MaxFailures: 10,
		Logger:      logger,
	}
	if err := c.Run(context.Background(), p, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st := c.Stats(); st.ConvergenceFailures != 12 {
		t.Errorf("convergence failures: got %d, want %d", st.ConvergenceFailures, 12)
	}
	if !strings.Contains(buf.String(), "repeated convergence failures") {
		t.Errorf("diagnostic not reported: got %q", buf.String())
	}
}

func TestCancel(t *testing.T) {
	c := newChain(t, "dinos", 0, blockupdate.DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := c.Run(ctx, chain.Param{Iterations: 100}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled run: got error %v, want %v", err, context.Canceled)
	}
	if st := c.Stats(); st.Iterations != 0 {
		t.Errorf("iterations: got %d, want %d", st.Iterations, 0)
	}
}

func TestRunAll(t *testing.T) {
	var chains []*chain.Chain
	for i := range 3 {
		cfg := blockupdate.DefaultConfig()
		cfg.Src = rand.NewSource(uint64(i + 1))
		chains = append(chains, newChain(t, fmt.Sprintf("tree%d", i), 0, cfg))
	}

	var buf bytes.Buffer
	w, err := trace.NewWriter(&buf, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p := chain.Param{
		Iterations: 50,
		Every:      10,
	}
	if err := chain.RunAll(context.Background(), 2, chains, p, w); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tr, err := trace.Read(strings.NewReader(buf.String()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, want := tr.Trees(), []string{"tree0", "tree1", "tree2"}; !reflect.DeepEqual(got, want) {
		t.Errorf("trees: got %v, want %v", got, want)
	}
	for _, n := range tr.Trees() {
		if got := len(tr.Samples(n)); got != 6 {
			t.Errorf("tree %q: got %d samples, want %d", n, got, 6)
		}
	}
}
