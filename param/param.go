// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

// Package param implements parameters
// shared between the components of an MCMC chain.
//
// A parameter keeps its current value
// and a stored value,
// so a move can store the parameter,
// propose a new value,
// and restore it if the move is rejected.
// Components that cache values
// derived from a parameter
// can register a listener
// to be notified when the parameter changes.
package param

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
)

// ErrInvalid is returned when a value
// is not valid for a parameter.
var ErrInvalid = errors.New("invalid parameter value")

// A Listener is a function called
// after the value of a parameter is changed.
type Listener func()

type listeners struct {
	mu sync.Mutex
	ls []Listener
}

func (l *listeners) add(fn Listener) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ls = append(l.ls, fn)
}

func (l *listeners) notify() {
	l.mu.Lock()
	ls := slices.Clone(l.ls)
	l.mu.Unlock()

	for _, fn := range ls {
		fn()
	}
}

// Scalar is a real valued parameter
// with bounds.
type Scalar struct {
	name string
	min  float64
	max  float64

	mu     sync.RWMutex
	value  float64
	stored float64

	ls listeners
}

// NewScalar returns a new scalar parameter.
func NewScalar(name string, value, min, max float64) (*Scalar, error) {
	if !(min <= max) {
		return nil, fmt.Errorf("%w: parameter %q: bounds [%v, %v]", ErrInvalid, name, min, max)
	}
	s := &Scalar{
		name: name,
		min:  min,
		max:  max,
	}
	if err := s.check(value); err != nil {
		return nil, err
	}
	s.value = value
	s.stored = value
	return s, nil
}

func (s *Scalar) check(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%w: parameter %q: value %v", ErrInvalid, s.name, v)
	}
	if v < s.min || v > s.max {
		return fmt.Errorf("%w: parameter %q: value %v outside [%v, %v]", ErrInvalid, s.name, v, s.min, s.max)
	}
	return nil
}

// Name returns the name of the parameter.
func (s *Scalar) Name() string {
	return s.name
}

// Bounds returns the bounds of the parameter.
func (s *Scalar) Bounds() (min, max float64) {
	return s.min, s.max
}

// Value returns the current value of the parameter.
func (s *Scalar) Value() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

// Set sets the value of the parameter.
func (s *Scalar) Set(v float64) error {
	if err := s.check(v); err != nil {
		return err
	}
	s.mu.Lock()
	s.value = v
	s.mu.Unlock()

	s.ls.notify()
	return nil
}

// Store saves the current value of the parameter.
func (s *Scalar) Store() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stored = s.value
}

// Restore sets the parameter
// to the last stored value.
func (s *Scalar) Restore() {
	s.mu.Lock()
	changed := s.value != s.stored
	s.value = s.stored
	s.mu.Unlock()

	if changed {
		s.ls.notify()
	}
}

// Reflect returns v
// reflected at the bounds of the parameter
// until it is inside the bounds.
func (s *Scalar) Reflect(v float64) float64 {
	return Reflect(v, s.min, s.max)
}

// OnChange adds a listener to the parameter.
func (s *Scalar) OnChange(fn Listener) {
	s.ls.add(fn)
}

// Reflect returns v reflected at min and max
// until it is inside the interval.
func Reflect(v, min, max float64) float64 {
	if math.IsNaN(v) || min == max {
		return min
	}
	if math.IsInf(v, 0) {
		return math.Max(min, math.Min(max, v))
	}
	if !math.IsInf(min, 0) && !math.IsInf(max, 0) {
		w := max - min
		r := math.Mod(v-min, 2*w)
		if r < 0 {
			r += 2 * w
		}
		if r > w {
			r = 2*w - r
		}
		return min + r
	}
	if v < min {
		return min + (min - v)
	}
	if v > max {
		return max - (v - max)
	}
	return v
}

// Vector is a parameter with a vector of real values.
type Vector struct {
	name string

	mu     sync.RWMutex
	value  []float64
	stored []float64

	ls listeners
}

// NewVector returns a new vector parameter.
func NewVector(name string, value []float64) (*Vector, error) {
	if len(value) == 0 {
		return nil, fmt.Errorf("%w: parameter %q: empty vector", ErrInvalid, name)
	}
	v := &Vector{
		name: name,
	}
	if err := v.check(value); err != nil {
		return nil, err
	}
	v.value = slices.Clone(value)
	v.stored = slices.Clone(value)
	return v, nil
}

func (v *Vector) check(x []float64) error {
	if v.value != nil && len(x) != len(v.value) {
		return fmt.Errorf("%w: parameter %q: vector of length %d, want %d", ErrInvalid, v.name, len(x), len(v.value))
	}
	for i, e := range x {
		if math.IsNaN(e) || math.IsInf(e, 0) {
			return fmt.Errorf("%w: parameter %q: element %d: value %v", ErrInvalid, v.name, i, e)
		}
	}
	return nil
}

// Name returns the name of the parameter.
func (v *Vector) Name() string {
	return v.name
}

// Dim returns the dimension of the vector.
func (v *Vector) Dim() int {
	return len(v.value)
}

// Values returns a copy of the current values.
func (v *Vector) Values() []float64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return slices.Clone(v.value)
}

// At returns the value of the i-th element.
func (v *Vector) At(i int) (float64, error) {
	if i < 0 || i >= len(v.value) {
		return 0, fmt.Errorf("parameter %q: index %d out of range [0, %d)", v.name, i, len(v.value))
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.value[i], nil
}

// Set sets the values of the vector.
// All values are updated at the same time.
func (v *Vector) Set(x []float64) error {
	if err := v.check(x); err != nil {
		return err
	}
	v.mu.Lock()
	copy(v.value, x)
	v.mu.Unlock()

	v.ls.notify()
	return nil
}

// Store saves the current values of the vector.
func (v *Vector) Store() {
	v.mu.Lock()
	defer v.mu.Unlock()
	copy(v.stored, v.value)
}

// Restore sets the vector
// to the last stored values.
func (v *Vector) Restore() {
	v.mu.Lock()
	changed := !slices.Equal(v.value, v.stored)
	copy(v.value, v.stored)
	v.mu.Unlock()

	if changed {
		v.ls.notify()
	}
}

// OnChange adds a listener to the parameter.
func (v *Vector) OnChange(fn Listener) {
	v.ls.add(fn)
}
