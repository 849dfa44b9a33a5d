// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

package project_test

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strings"
	"testing"

	"github.com/js-arias/skygrid/gridparam"
	"github.com/js-arias/skygrid/project"
)

type setPath struct {
	set  project.Dataset
	path string
}

func TestProject(t *testing.T) {
	p := project.New()

	sets := []setPath{
		{project.Grid, "grid.tab"},
		{project.GridParam, "grid-param.tab"},
		{project.Trees, "trees.tab"},
	}

	for _, s := range sets {
		p.Add(s.set, s.path)
	}
	testProject(t, p, sets)

	name := filepath.Join(t.TempDir(), "project-for-test.tab")
	p.SetName(name)
	if err := p.Write(); err != nil {
		t.Fatalf("error when writing data: %v", err)
	}

	np, err := project.Read(name)
	if err != nil {
		t.Fatalf("error when reading data: %v", err)
	}
	testProject(t, np, sets)

	if root := np.NameRoot(); root != strings.TrimSuffix(name, ".tab") {
		t.Errorf("name root: got %q, want %q", root, strings.TrimSuffix(name, ".tab"))
	}
}

func TestReadErrors(t *testing.T) {
	tests := map[string]struct {
		blob    string
		unknown bool
	}{
		"unknown dataset": {
			blob:    "dataset\tpath\ntrees\ttrees.tab\nrange\trange.tab\n",
			unknown: true,
		},
		"duplicated dataset": {
			blob: "dataset\tpath\ntrees\ttrees.tab\nTrees\tother.tab\n",
		},
		"empty path": {
			blob: "dataset\tpath\ngrid\t\n",
		},
		"missing field": {
			blob: "dataset\tfile\ngrid\tgrid.tab\n",
		},
	}

	dir := t.TempDir()
	for name, test := range tests {
		f := filepath.Join(dir, strings.ReplaceAll(name, " ", "-")+".tab")
		if err := os.WriteFile(f, []byte(test.blob), 0o644); err != nil {
			t.Fatalf("%s: unexpected error: %v", name, err)
		}
		_, err := project.Read(f)
		if err == nil {
			t.Errorf("%s: expecting error", name)
			continue
		}
		if test.unknown && !errors.Is(err, project.ErrUnknownDataset) {
			t.Errorf("%s: got error %v, want %v", name, err, project.ErrUnknownDataset)
		}
	}

	if d, err := project.ParseDataset(" GridParam "); err != nil || d != project.GridParam {
		t.Errorf("parse dataset: got %q, error %v, want %q", d, err, project.GridParam)
	}
}

var treeBlob = `# time tree
tree	node	parent	age	taxon
dinos	0	-1	20000000	
dinos	1	0	10000000	
dinos	2	1	0	Tyrannosaurus rex
dinos	3	1	0	Carnotaurus sastrei
dinos	4	0	0	Spinosaurus aegyptiacus
`

func TestGrid(t *testing.T) {
	dir := t.TempDir()
	treeFile := filepath.Join(dir, "trees.tab")
	if err := os.WriteFile(treeFile, []byte(treeBlob), 0o644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	p := project.New()
	p.SetName(filepath.Join(dir, "project.tab"))
	p.Add(project.Trees, treeFile)

	tc, err := p.Trees()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	gp, err := p.GridParam()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := gp.SetPoints(4); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// uniform grid up to the root
	pts, err := p.Grid(gp, tc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []int64{5_000_000, 10_000_000, 15_000_000, 20_000_000}
	if got := pts.Ages(); !reflect.DeepEqual(got, want) {
		t.Errorf("uniform grid: got %v, want %v", got, want)
	}

	// grid from file
	gridFile := filepath.Join(dir, "grid.tab")
	if err := os.WriteFile(gridFile, []byte("# grid\n3000000\n12000000\n"), 0o644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p.Add(project.Grid, gridFile)
	pts, err = p.Grid(gridparam.New(""), tc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, want := pts.Ages(), []int64{3_000_000, 12_000_000}; !reflect.DeepEqual(got, want) {
		t.Errorf("grid file: got %v, want %v", got, want)
	}

	c, err := p.Curve(gp, tc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, want := c.Knots(), []float64{0, 3, 12}; !reflect.DeepEqual(got, want) {
		t.Errorf("curve knots: got %v, want %v", got, want)
	}
}

func testProject(t testing.TB, p *project.Project, sets []setPath) {
	t.Helper()

	for _, s := range sets {
		if path := p.Path(s.set); path != s.path {
			t.Errorf("set %s: got path %q, want %q", s.set, path, s.path)
		}
	}
	datasets := make([]project.Dataset, 0, len(sets))
	for _, v := range sets {
		datasets = append(datasets, v.set)
	}
	slices.Sort(datasets)

	if ls := p.Sets(); !reflect.DeepEqual(ls, datasets) {
		t.Errorf("sets: got %v, want %v", ls, datasets)
	}
}
