// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

// Package intervals implements coalescent intervals,
// the ordered sequence of time spans
// between consecutive sampling or coalescent events
// of a genealogy.
package intervals

import (
	"errors"
	"fmt"
	"math"
	"slices"
)

// ErrInvalid is returned when a set of events
// does not define a valid genealogy.
var ErrInvalid = errors.New("invalid intervals")

// A Source is a read-only sequence of coalescent intervals.
//
// Intervals are sorted by time,
// from the youngest to the oldest.
// Each interval ends with an event,
// either a sampling or a coalescent event.
type Source interface {
	// IntervalCount returns the number of intervals.
	IntervalCount() int

	// Duration returns the duration of the i-th interval.
	Duration(i int) float64

	// LineageCount returns the number of lineages
	// during the i-th interval.
	LineageCount(i int) int

	// IsCoalescent returns true if the i-th interval
	// ends with a coalescent event.
	IsCoalescent(i int) bool

	// EventNode returns the node at the end
	// of the i-th interval.
	EventNode(i int) int

	// NodeCount returns the number of nodes.
	NodeCount() int

	// NodeHeight returns the time of a node.
	NodeHeight(node int) float64

	// StartTime returns the time of the first event.
	StartTime() float64
}

// Kind is the kind of an event.
type Kind int

// Valid event kinds.
const (
	Sample Kind = iota
	Coalescent
)

func (k Kind) String() string {
	if k == Coalescent {
		return "coalescent"
	}
	return "sample"
}

// An Event is a sampling or a coalescent event
// in a genealogy.
type Event struct {
	Time float64
	Kind Kind

	// Node is the ID of the node
	// of the event.
	Node int
}

// Intervals is an immutable set of coalescent intervals.
type Intervals struct {
	times    []float64
	lineages []int
	coal     []bool
	node     []int
	heights  []float64
}

// New returns a set of intervals from a set of events.
//
// Node IDs must be between 0 and the number of nodes minus one.
// A polytomy can be defined
// using several coalescent events
// with the same node ID.
func New(events []Event) (*Intervals, error) {
	if len(events) == 0 {
		return nil, fmt.Errorf("%w: without events", ErrInvalid)
	}

	ev := slices.Clone(events)
	slices.SortStableFunc(ev, func(a, b Event) int {
		if a.Time < b.Time {
			return -1
		}
		if a.Time > b.Time {
			return 1
		}
		// samples go first
		return int(a.Kind) - int(b.Kind)
	})

	nodes := 0
	for _, e := range ev {
		if math.IsNaN(e.Time) || math.IsInf(e.Time, 0) {
			return nil, fmt.Errorf("%w: node %d: invalid time %v", ErrInvalid, e.Node, e.Time)
		}
		if e.Node < 0 {
			return nil, fmt.Errorf("%w: invalid node ID %d", ErrInvalid, e.Node)
		}
		nodes = max(nodes, e.Node+1)
	}

	heights := make([]float64, nodes)
	for i := range heights {
		heights[i] = math.NaN()
	}

	if ev[0].Kind != Sample {
		return nil, fmt.Errorf("%w: first event is not a sample", ErrInvalid)
	}
	iv := &Intervals{
		times:   []float64{ev[0].Time},
		heights: heights,
	}
	heights[ev[0].Node] = ev[0].Time

	lineages := 1
	for i := 1; i < len(ev); i++ {
		e := ev[i]
		if h := heights[e.Node]; !math.IsNaN(h) && h != e.Time {
			return nil, fmt.Errorf("%w: node %d: times %v and %v", ErrInvalid, e.Node, h, e.Time)
		}
		heights[e.Node] = e.Time

		iv.times = append(iv.times, e.Time)
		iv.lineages = append(iv.lineages, lineages)
		iv.coal = append(iv.coal, e.Kind == Coalescent)
		iv.node = append(iv.node, e.Node)

		if e.Kind == Sample {
			lineages++
			continue
		}
		if lineages < 2 {
			return nil, fmt.Errorf("%w: node %d: coalescent event at %v with a single lineage", ErrInvalid, e.Node, e.Time)
		}
		lineages--
	}
	if lineages != 1 {
		return nil, fmt.Errorf("%w: %d lineages at the end of the genealogy", ErrInvalid, lineages)
	}
	return iv, nil
}

// IntervalCount returns the number of intervals.
func (iv *Intervals) IntervalCount() int {
	return len(iv.times) - 1
}

// Duration returns the duration of the i-th interval.
func (iv *Intervals) Duration(i int) float64 {
	return iv.times[i+1] - iv.times[i]
}

// LineageCount returns the number of lineages
// during the i-th interval.
func (iv *Intervals) LineageCount(i int) int {
	return iv.lineages[i]
}

// IsCoalescent returns true if the i-th interval
// ends with a coalescent event.
func (iv *Intervals) IsCoalescent(i int) bool {
	return iv.coal[i]
}

// EventNode returns the node at the end
// of the i-th interval.
func (iv *Intervals) EventNode(i int) int {
	return iv.node[i]
}

// NodeCount returns the number of nodes.
func (iv *Intervals) NodeCount() int {
	return len(iv.heights)
}

// NodeHeight returns the time of a node.
// It returns NaN for an undefined node.
func (iv *Intervals) NodeHeight(node int) float64 {
	return iv.heights[node]
}

// StartTime returns the time of the first event.
func (iv *Intervals) StartTime() float64 {
	return iv.times[0]
}

// Times returns the time of each event,
// i.e., the start time of each interval,
// and the time of the last event.
func (iv *Intervals) Times() []float64 {
	return slices.Clone(iv.times)
}

// Coalescences returns the number of coalescent events.
func (iv *Intervals) Coalescences() int {
	var n int
	for _, c := range iv.coal {
		if c {
			n++
		}
	}
	return n
}

// Times returns the start time of each interval
// in a source,
// and the time of the last event.
func Times(src Source) []float64 {
	if ts, ok := src.(interface{ Times() []float64 }); ok {
		return ts.Times()
	}
	n := src.IntervalCount()
	ts := make([]float64, n+1)
	ts[0] = src.StartTime()
	for i := range n {
		ts[i+1] = ts[i] + src.Duration(i)
	}
	return ts
}
