// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

package intervals

import (
	"fmt"

	"github.com/js-arias/timetree"
)

// MillionYears is the time unit of the intervals.
const MillionYears = 1_000_000

// FromTree returns the intervals of a time calibrated tree.
// Ages of the tree,
// in years,
// are transformed into million years.
//
// Terminals are sampling events,
// and each internal node is a coalescent event;
// a node with n descendants
// is taken as n-1 simultaneous coalescent events.
func FromTree(t *timetree.Tree) (*Intervals, error) {
	var events []Event
	for _, id := range t.Nodes() {
		age := float64(t.Age(id)) / MillionYears
		if t.IsTerm(id) {
			events = append(events, Event{
				Time: age,
				Kind: Sample,
				Node: id,
			})
			continue
		}
		children := t.Children(id)
		if len(children) < 2 {
			// a node with a single descendant
			// does not change the lineage count
			continue
		}
		for range len(children) - 1 {
			events = append(events, Event{
				Time: age,
				Kind: Coalescent,
				Node: id,
			})
		}
	}

	iv, err := New(events)
	if err != nil {
		return nil, fmt.Errorf("tree %q: %w", t.Name(), err)
	}
	return iv, nil
}
