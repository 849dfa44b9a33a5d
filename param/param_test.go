// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

package param_test

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/js-arias/skygrid/param"
)

func TestScalar(t *testing.T) {
	s, err := param.NewScalar("precision", 1, 0, math.Inf(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var calls int
	s.OnChange(func() { calls++ })

	s.Store()
	if err := s.Set(2.5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v := s.Value(); v != 2.5 {
		t.Errorf("value: got %.2f, want %.2f", v, 2.5)
	}
	s.Restore()
	if v := s.Value(); v != 1 {
		t.Errorf("restored value: got %.2f, want %.2f", v, 1.0)
	}
	if calls != 2 {
		t.Errorf("listener: got %d calls, want %d", calls, 2)
	}

	if err := s.Set(-1); !errors.Is(err, param.ErrInvalid) {
		t.Errorf("out of bounds: got error %v, want %v", err, param.ErrInvalid)
	}
	if err := s.Set(math.NaN()); !errors.Is(err, param.ErrInvalid) {
		t.Errorf("NaN value: got error %v, want %v", err, param.ErrInvalid)
	}
	if v := s.Value(); v != 1 {
		t.Errorf("value after invalid set: got %.2f, want %.2f", v, 1.0)
	}
}

func TestReflect(t *testing.T) {
	tests := []struct {
		v, min, max float64
		want        float64
	}{
		{0.5, 0, 1, 0.5},
		{-0.25, 0, 1, 0.25},
		{1.25, 0, 1, 0.75},
		{2.25, 0, 1, 0.25},
		{-1.75, 0, 1, 0.25},
		{-3, 0, math.Inf(1), 3},
	}
	for _, test := range tests {
		got := param.Reflect(test.v, test.min, test.max)
		if math.Abs(got-test.want) > 1e-12 {
			t.Errorf("reflect %.2f in [%.2f, %.2f]: got %.4f, want %.4f", test.v, test.min, test.max, got, test.want)
		}
	}
}

func TestVector(t *testing.T) {
	v, err := param.NewVector("logpop", []float64{1, 2, 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var calls int
	v.OnChange(func() { calls++ })

	v.Store()
	if err := v.Set([]float64{4, 5, 6}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := v.Values(); !reflect.DeepEqual(got, []float64{4, 5, 6}) {
		t.Errorf("values: got %v, want %v", got, []float64{4, 5, 6})
	}
	v.Restore()
	if got := v.Values(); !reflect.DeepEqual(got, []float64{1, 2, 3}) {
		t.Errorf("restored values: got %v, want %v", got, []float64{1, 2, 3})
	}
	if calls != 2 {
		t.Errorf("listener: got %d calls, want %d", calls, 2)
	}

	if err := v.Set([]float64{1, 2}); !errors.Is(err, param.ErrInvalid) {
		t.Errorf("short vector: got error %v, want %v", err, param.ErrInvalid)
	}
	if err := v.Set([]float64{1, math.Inf(1), 2}); !errors.Is(err, param.ErrInvalid) {
		t.Errorf("infinite value: got error %v, want %v", err, param.ErrInvalid)
	}
	if _, err := v.At(3); err == nil {
		t.Errorf("index out of range: expecting error")
	}
}
