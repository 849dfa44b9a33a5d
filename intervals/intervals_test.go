// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

package intervals_test

import (
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"

	"github.com/js-arias/skygrid/intervals"
	"github.com/js-arias/timetree"
)

type interval struct {
	duration float64
	lineages int
	coal     bool
	node     int
}

func getIntervals(src intervals.Source) []interval {
	var ls []interval
	for i := range src.IntervalCount() {
		ls = append(ls, interval{
			duration: math.Round(src.Duration(i)*1e9) / 1e9,
			lineages: src.LineageCount(i),
			coal:     src.IsCoalescent(i),
			node:     src.EventNode(i),
		})
	}
	return ls
}

func TestNew(t *testing.T) {
	// heterochronous sampling
	events := []intervals.Event{
		{Time: 3, Kind: intervals.Coalescent, Node: 5},
		{Time: 0, Kind: intervals.Sample, Node: 0},
		{Time: 0, Kind: intervals.Sample, Node: 1},
		{Time: 1, Kind: intervals.Coalescent, Node: 3},
		{Time: 1.5, Kind: intervals.Sample, Node: 2},
		{Time: 2, Kind: intervals.Coalescent, Node: 4},
		{Time: 2.5, Kind: intervals.Sample, Node: 6},
	}
	iv, err := intervals.New(events)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []interval{
		{0, 1, false, 1},
		{1, 2, true, 3},
		{0.5, 1, false, 2},
		{0.5, 2, true, 4},
		{0.5, 1, false, 6},
		{0.5, 2, true, 5},
	}
	if got := getIntervals(iv); !reflect.DeepEqual(got, want) {
		t.Errorf("intervals: got %v, want %v", got, want)
	}
	if s := iv.StartTime(); s != 0 {
		t.Errorf("start time: got %.2f, want %.2f", s, 0.0)
	}
	if h := iv.NodeHeight(4); h != 2 {
		t.Errorf("node 4 height: got %.2f, want %.2f", h, 2.0)
	}
	if c := iv.Coalescences(); c != 3 {
		t.Errorf("coalescent events: got %d, want %d", c, 3)
	}

	times := intervals.Times(iv)
	if wt := []float64{0, 0, 1, 1.5, 2, 2.5, 3}; !reflect.DeepEqual(times, wt) {
		t.Errorf("times: got %v, want %v", times, wt)
	}
}

func TestNewErrors(t *testing.T) {
	tests := map[string][]intervals.Event{
		"empty": nil,
		"coalescent first": {
			{Time: 0, Kind: intervals.Coalescent, Node: 1},
			{Time: 0, Kind: intervals.Sample, Node: 0},
		},
		"single lineage": {
			{Time: 0, Kind: intervals.Sample, Node: 0},
			{Time: 1, Kind: intervals.Coalescent, Node: 1},
		},
		"unresolved": {
			{Time: 0, Kind: intervals.Sample, Node: 0},
			{Time: 0, Kind: intervals.Sample, Node: 1},
		},
		"invalid time": {
			{Time: 0, Kind: intervals.Sample, Node: 0},
			{Time: 0, Kind: intervals.Sample, Node: 1},
			{Time: math.NaN(), Kind: intervals.Coalescent, Node: 2},
		},
	}
	for name, ev := range tests {
		if _, err := intervals.New(ev); !errors.Is(err, intervals.ErrInvalid) {
			t.Errorf("%s: got error %v, want %v", name, err, intervals.ErrInvalid)
		}
	}
}

var treeBlob = `# time calibrated phylogenetic tree
tree	node	parent	age	taxon
test	0	-1	2000000	
test	1	0	1000000	
test	2	1	0	Homo sapiens
test	3	1	0	Pan troglodytes
test	4	0	0	Gorilla gorilla
`

func TestFromTree(t *testing.T) {
	c, err := timetree.ReadTSV(strings.NewReader(treeBlob))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	iv, err := intervals.FromTree(c.Tree("test"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if n := iv.IntervalCount(); n != 4 {
		t.Fatalf("intervals: got %d, want %d", n, 4)
	}
	want := []struct {
		lineages int
		coal     bool
	}{
		{1, false},
		{2, false},
		{3, true},
		{2, true},
	}
	for i, w := range want {
		if l := iv.LineageCount(i); l != w.lineages {
			t.Errorf("interval %d: got %d lineages, want %d", i, l, w.lineages)
		}
		if c := iv.IsCoalescent(i); c != w.coal {
			t.Errorf("interval %d: got coalescent %v, want %v", i, c, w.coal)
		}
	}
	if h := iv.NodeHeight(1); h != 1 {
		t.Errorf("node 1 height: got %.2f, want %.2f", h, 1.0)
	}
	if h := iv.NodeHeight(0); h != 2 {
		t.Errorf("root height: got %.2f, want %.2f", h, 2.0)
	}
}
