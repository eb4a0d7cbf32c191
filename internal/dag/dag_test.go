package dag

import (
	"errors"
	"reflect"
	"testing"
)

// helper builds a DAG from a list of node specs.
// Each spec is (id, priority, deps...).
type nodeSpec struct {
	id       string
	priority int
	deps     []string
}

func buildDAG(t *testing.T, specs []nodeSpec) *DAG {
	t.Helper()
	d := New()
	for _, s := range specs {
		if err := d.AddNode(s.id, s.priority); err != nil {
			t.Fatalf("AddNode(%q): %v", s.id, err)
		}
	}
	for _, s := range specs {
		for _, dep := range s.deps {
			if err := d.AddEdge(s.id, dep); err != nil {
				t.Fatalf("AddEdge(%q, %q): %v", s.id, dep, err)
			}
		}
	}
	return d
}

// buildLinked is like buildDAG but uses Link, so cycles are allowed.
func buildLinked(t *testing.T, specs []nodeSpec) *DAG {
	t.Helper()
	d := New()
	for _, s := range specs {
		if err := d.AddNode(s.id, s.priority); err != nil {
			t.Fatalf("AddNode(%q): %v", s.id, err)
		}
	}
	for _, s := range specs {
		for _, dep := range s.deps {
			if err := d.Link(s.id, dep); err != nil {
				t.Fatalf("Link(%q, %q): %v", s.id, dep, err)
			}
		}
	}
	return d
}

// validTopologicalOrder checks that every dependency appears before
// its dependent in the ordering.
func validTopologicalOrder(d *DAG, order []string) bool {
	pos := make(map[string]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	for id, deps := range d.adjacency {
		for dep := range deps {
			if pos[dep] >= pos[id] {
				return false
			}
		}
	}
	return true
}

func TestNew(t *testing.T) {
	t.Parallel()
	d := New()
	if nodes := d.Nodes(); len(nodes) != 0 {
		t.Errorf("new DAG Nodes() = %v, want empty", nodes)
	}
}

func TestAddNode(t *testing.T) {
	t.Parallel()

	t.Run("basic add", func(t *testing.T) {
		t.Parallel()
		d := New()
		if err := d.AddNode("a", 1); err != nil {
			t.Fatalf("AddNode: %v", err)
		}
		if got := d.Nodes(); !reflect.DeepEqual(got, []string{"a"}) {
			t.Errorf("Nodes() = %v, want [a]", got)
		}
	})

	t.Run("duplicate", func(t *testing.T) {
		t.Parallel()
		d := New()
		_ = d.AddNode("a", 1)
		err := d.AddNode("a", 2)
		if !errors.Is(err, ErrDuplicateNode) {
			t.Errorf("got %v, want ErrDuplicateNode", err)
		}
	})
}

func TestAddEdge(t *testing.T) {
	t.Parallel()

	t.Run("basic edge", func(t *testing.T) {
		t.Parallel()
		d := New()
		_ = d.AddNode("a", 1)
		_ = d.AddNode("b", 1)
		if err := d.AddEdge("a", "b"); err != nil {
			t.Fatalf("AddEdge: %v", err)
		}
		if got := d.DepsFor("a"); !reflect.DeepEqual(got, []string{"b"}) {
			t.Errorf("DepsFor(a) = %v, want [b]", got)
		}
		if got := d.Descendants("b"); !reflect.DeepEqual(got, []string{"a"}) {
			t.Errorf("Descendants(b) = %v, want [a]", got)
		}
	})

	t.Run("self edge", func(t *testing.T) {
		t.Parallel()
		d := New()
		_ = d.AddNode("a", 1)
		err := d.AddEdge("a", "a")
		if !errors.Is(err, ErrSelfEdge) {
			t.Errorf("got %v, want ErrSelfEdge", err)
		}
	})

	t.Run("missing from node", func(t *testing.T) {
		t.Parallel()
		d := New()
		_ = d.AddNode("b", 1)
		err := d.AddEdge("a", "b")
		if !errors.Is(err, ErrNodeNotFound) {
			t.Errorf("got %v, want ErrNodeNotFound", err)
		}
	})

	t.Run("missing to node", func(t *testing.T) {
		t.Parallel()
		d := New()
		_ = d.AddNode("a", 1)
		err := d.AddEdge("a", "b")
		if !errors.Is(err, ErrNodeNotFound) {
			t.Errorf("got %v, want ErrNodeNotFound", err)
		}
	})

	t.Run("duplicate edge is no-op", func(t *testing.T) {
		t.Parallel()
		d := New()
		_ = d.AddNode("a", 1)
		_ = d.AddNode("b", 1)
		_ = d.AddEdge("a", "b")
		if err := d.AddEdge("a", "b"); err != nil {
			t.Errorf("duplicate AddEdge returned error: %v", err)
		}
	})
}

func TestCycleDetectionOnAddEdge(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		specs []nodeSpec
		from  string
		to    string
	}{
		{
			name:  "direct cycle A→B→A",
			specs: []nodeSpec{{"a", 1, []string{"b"}}, {"b", 1, nil}},
			from:  "b",
			to:    "a",
		},
		{
			name:  "transitive cycle A→B→C→A",
			specs: []nodeSpec{{"a", 1, []string{"b"}}, {"b", 1, []string{"c"}}, {"c", 1, nil}},
			from:  "c",
			to:    "a",
		},
		{
			name: "long chain cycle",
			specs: []nodeSpec{
				{"a", 1, []string{"b"}},
				{"b", 1, []string{"c"}},
				{"c", 1, []string{"d"}},
				{"d", 1, []string{"e"}},
				{"e", 1, nil},
			},
			from: "e",
			to:   "a",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := buildDAG(t, tt.specs)
			if err := d.CheckEdge(tt.from, tt.to); !errors.Is(err, ErrCycle) {
				t.Errorf("CheckEdge(%q, %q) = %v, want ErrCycle", tt.from, tt.to, err)
			}
			err := d.AddEdge(tt.from, tt.to)
			if !errors.Is(err, ErrCycle) {
				t.Errorf("AddEdge(%q, %q) = %v, want ErrCycle", tt.from, tt.to, err)
			}
			if cycle, ok := d.DetectCycle(); ok {
				t.Errorf("rejected edge left cycle %v", cycle)
			}
		})
	}
}

func TestCheckEdge_DoesNotMutate(t *testing.T) {
	t.Parallel()
	d := buildDAG(t, []nodeSpec{{"a", 1, nil}, {"b", 1, nil}})
	if err := d.CheckEdge("a", "b"); err != nil {
		t.Fatalf("CheckEdge: %v", err)
	}
	if deps := d.DepsFor("a"); len(deps) != 0 {
		t.Errorf("CheckEdge added an edge: %v", deps)
	}
}

func TestLink_AllowsCycles(t *testing.T) {
	t.Parallel()
	d := buildLinked(t, []nodeSpec{
		{"a", 1, []string{"b"}},
		{"b", 1, []string{"a"}},
	})
	if _, ok := d.DetectCycle(); !ok {
		t.Fatal("DetectCycle() found nothing for linked a↔b")
	}
	if err := d.Link("a", "missing"); !errors.Is(err, ErrNodeNotFound) {
		t.Errorf("Link to missing node = %v, want ErrNodeNotFound", err)
	}
}

func TestDescendants(t *testing.T) {
	t.Parallel()

	t.Run("linear chain", func(t *testing.T) {
		t.Parallel()
		d := buildDAG(t, []nodeSpec{
			{"d", 1, nil},
			{"c", 1, []string{"d"}},
			{"b", 1, []string{"c"}},
			{"a", 1, []string{"b"}},
		})
		if got, want := d.Descendants("d"), []string{"a", "b", "c"}; !reflect.DeepEqual(got, want) {
			t.Errorf("Descendants(d) = %v, want %v", got, want)
		}
	})

	t.Run("root has no descendants", func(t *testing.T) {
		t.Parallel()
		d := buildDAG(t, []nodeSpec{
			{"b", 1, nil},
			{"a", 1, []string{"b"}},
		})
		if got := d.Descendants("a"); len(got) != 0 {
			t.Errorf("Descendants(a) = %v, want empty", got)
		}
	})

	t.Run("self loop excludes the node itself", func(t *testing.T) {
		t.Parallel()
		d := buildLinked(t, []nodeSpec{
			{"a", 1, []string{"a"}},
			{"b", 1, []string{"a"}},
		})
		if got, want := d.Descendants("a"), []string{"b"}; !reflect.DeepEqual(got, want) {
			t.Errorf("Descendants(a) = %v, want %v", got, want)
		}
	})

	t.Run("nonexistent node", func(t *testing.T) {
		t.Parallel()
		if got := New().Descendants("x"); got != nil {
			t.Errorf("Descendants(x) = %v, want nil", got)
		}
	})
}

func TestDetectCycle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		specs     []nodeSpec
		wantCycle []string
	}{
		{
			name:  "acyclic diamond",
			specs: []nodeSpec{{"a", 1, []string{"b", "c"}}, {"b", 1, []string{"d"}}, {"c", 1, []string{"d"}}, {"d", 1, nil}},
		},
		{
			name:      "self loop",
			specs:     []nodeSpec{{"a", 1, []string{"a"}}},
			wantCycle: []string{"a", "a"},
		},
		{
			name:      "two node cycle",
			specs:     []nodeSpec{{"a", 1, []string{"b"}}, {"b", 1, []string{"a"}}},
			wantCycle: []string{"a", "b", "a"},
		},
		{
			name: "cycle behind an acyclic prefix",
			specs: []nodeSpec{
				{"a", 1, []string{"b"}},
				{"b", 1, []string{"c"}},
				{"c", 1, []string{"d"}},
				{"d", 1, []string{"b"}},
			},
			wantCycle: []string{"b", "c", "d", "b"},
		},
		{
			name:  "shared dependency is not a cycle",
			specs: []nodeSpec{{"a", 1, []string{"c"}}, {"b", 1, []string{"c"}}, {"c", 1, nil}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := buildLinked(t, tt.specs)
			cycle, ok := d.DetectCycle()
			if ok != (tt.wantCycle != nil) {
				t.Fatalf("DetectCycle() ok = %v, want %v (cycle %v)", ok, tt.wantCycle != nil, cycle)
			}
			if !reflect.DeepEqual(cycle, tt.wantCycle) {
				t.Errorf("DetectCycle() = %v, want %v", cycle, tt.wantCycle)
			}
		})
	}
}

func TestLayers(t *testing.T) {
	t.Parallel()

	t.Run("empty DAG", func(t *testing.T) {
		t.Parallel()
		layers, err := New().Layers()
		if err != nil {
			t.Fatalf("Layers: %v", err)
		}
		if layers != nil {
			t.Errorf("Layers on empty DAG = %v, want nil", layers)
		}
	})

	t.Run("diamond with priorities", func(t *testing.T) {
		t.Parallel()
		d := buildDAG(t, []nodeSpec{
			{"d", 3, nil},
			{"b", 2, []string{"d"}},
			{"c", 0, []string{"d"}},
			{"a", 1, []string{"b", "c"}},
			{"z", 1, nil},
		})
		layers, err := d.Layers()
		if err != nil {
			t.Fatalf("Layers: %v", err)
		}
		want := []Layer{
			{Number: 1, NodeIDs: []string{"z", "d"}},
			{Number: 2, NodeIDs: []string{"c", "b"}},
			{Number: 3, NodeIDs: []string{"a"}},
		}
		if !reflect.DeepEqual(layers, want) {
			t.Errorf("Layers() = %+v, want %+v", layers, want)
		}
	})

	t.Run("cycle", func(t *testing.T) {
		t.Parallel()
		d := buildLinked(t, []nodeSpec{{"a", 1, []string{"b"}}, {"b", 1, []string{"a"}}, {"c", 1, nil}})
		if _, err := d.Layers(); !errors.Is(err, ErrCycle) {
			t.Errorf("Layers() error = %v, want ErrCycle", err)
		}
	})
}

func TestLayers_DependenciesComeFirst(t *testing.T) {
	t.Parallel()
	d := buildDAG(t, []nodeSpec{
		{"schema", 2, nil},
		{"api", 1, []string{"schema"}},
		{"docs", 0, []string{"api"}},
		{"cli", 1, []string{"api", "schema"}},
		{"lint", 4, nil},
	})
	layers, err := d.Layers()
	if err != nil {
		t.Fatalf("Layers: %v", err)
	}
	var order []string
	for _, l := range layers {
		order = append(order, l.NodeIDs...)
	}
	if len(order) != len(d.Nodes()) {
		t.Fatalf("layers cover %d nodes, want %d", len(order), len(d.Nodes()))
	}
	if !validTopologicalOrder(d, order) {
		t.Errorf("flattened layers %v place a dependent before its dependency", order)
	}
}

func TestNodes_Sorted(t *testing.T) {
	t.Parallel()
	d := buildDAG(t, []nodeSpec{{"c", 1, nil}, {"a", 1, nil}, {"b", 1, nil}})
	if got, want := d.Nodes(), []string{"a", "b", "c"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Nodes() = %v, want %v", got, want)
	}
}
