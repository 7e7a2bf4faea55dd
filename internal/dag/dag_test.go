package dag

import (
	"reflect"
	"testing"
)

func TestGraph_AddNodeAndEdge(t *testing.T) {
	g := NewGraph()

	g.AddNode("a", "node A")
	g.AddNode("b", "node B")
	g.AddNode("c", "node C")

	if g.NodeCount() != 3 {
		t.Errorf("expected 3 nodes, got %d", g.NodeCount())
	}

	// b depends on a
	if err := g.AddEdge("a", "b"); err != nil {
		t.Errorf("failed to add edge: %v", err)
	}
	// c depends on b
	if err := g.AddEdge("b", "c"); err != nil {
		t.Errorf("failed to add edge: %v", err)
	}

	if g.EdgeCount() != 2 {
		t.Errorf("expected 2 edges, got %d", g.EdgeCount())
	}

	// Duplicate edges are ignored.
	if err := g.AddEdge("a", "b"); err != nil {
		t.Errorf("failed to re-add edge: %v", err)
	}
	if g.EdgeCount() != 2 {
		t.Errorf("expected duplicate edge to be ignored, got %d edges", g.EdgeCount())
	}
}

func TestGraph_AddNode_Replaces(t *testing.T) {
	g := NewGraph()
	g.AddNode("a", 1)
	g.AddNode("a", 2)

	if g.NodeCount() != 1 {
		t.Fatalf("expected 1 node, got %d", g.NodeCount())
	}
	node, ok := g.GetNode("a")
	if !ok {
		t.Fatal("node a not found")
	}
	if node.Data != 2 {
		t.Errorf("expected data to be replaced, got %v", node.Data)
	}
}

func TestGraph_AddEdge_InvalidNodes(t *testing.T) {
	g := NewGraph()
	g.AddNode("a", nil)

	if err := g.AddEdge("a", "nonexistent"); err == nil {
		t.Error("expected error for nonexistent child node")
	}
	if err := g.AddEdge("nonexistent", "a"); err == nil {
		t.Error("expected error for nonexistent parent node")
	}
}

func TestGraph_AddEdge_SelfLoop(t *testing.T) {
	g := NewGraph()
	g.AddNode("a", nil)

	if err := g.AddEdge("a", "a"); err == nil {
		t.Error("expected error for self-loop")
	}
}

func TestGraph_ParentsAndChildren(t *testing.T) {
	g := NewGraph()
	g.AddNode("a", nil)
	g.AddNode("b", nil)
	g.AddNode("c", nil)

	// b depends on a, c depends on both a and b
	g.AddEdge("a", "b")
	g.AddEdge("a", "c")
	g.AddEdge("b", "c")

	if parents := g.Parents("c"); len(parents) != 2 {
		t.Errorf("expected c to have 2 parents, got %d", len(parents))
	}
	if children := g.Children("a"); len(children) != 2 {
		t.Errorf("expected a to have 2 children, got %d", len(children))
	}
	if !g.HasNode("b") {
		t.Error("expected b to exist")
	}
	if g.HasNode("z") {
		t.Error("did not expect z to exist")
	}
}

func TestGraph_HasCycle_NoCycle(t *testing.T) {
	g := NewGraph()
	g.AddNode("a", nil)
	g.AddNode("b", nil)
	g.AddNode("c", nil)

	g.AddEdge("a", "b")
	g.AddEdge("b", "c")

	hasCycle, path := g.HasCycle()
	if hasCycle {
		t.Errorf("expected no cycle, but found: %v", path)
	}
}

func TestGraph_HasCycle_WithCycle(t *testing.T) {
	g := NewGraph()
	g.AddNode("a", nil)
	g.AddNode("b", nil)
	g.AddNode("c", nil)

	g.AddEdge("a", "b")
	g.AddEdge("b", "c")
	g.AddEdge("c", "a") // creates cycle

	hasCycle, path := g.HasCycle()
	if !hasCycle {
		t.Error("expected cycle to be detected")
	}
	if len(path) == 0 {
		t.Error("expected cycle path to be non-empty")
	}
}

func TestGraph_TopologicalSort_Simple(t *testing.T) {
	g := NewGraph()
	g.AddNode("a", nil)
	g.AddNode("b", nil)
	g.AddNode("c", nil)

	// b depends on a, c depends on b
	g.AddEdge("a", "b")
	g.AddEdge("b", "c")

	sorted, err := g.TopologicalSort()
	if err != nil {
		t.Fatalf("failed to sort: %v", err)
	}

	if len(sorted) != 3 {
		t.Fatalf("expected 3 nodes, got %d", len(sorted))
	}

	positions := make(map[string]int)
	for i, node := range sorted {
		positions[node.ID] = i
	}

	if positions["a"] >= positions["b"] {
		t.Error("a should come before b")
	}
	if positions["b"] >= positions["c"] {
		t.Error("b should come before c")
	}
}

func TestGraph_TopologicalSort_Diamond(t *testing.T) {
	// Diamond dependency: a -> b, a -> c, b -> d, c -> d
	g := NewGraph()
	g.AddNode("a", nil)
	g.AddNode("b", nil)
	g.AddNode("c", nil)
	g.AddNode("d", nil)

	g.AddEdge("a", "b")
	g.AddEdge("a", "c")
	g.AddEdge("b", "d")
	g.AddEdge("c", "d")

	sorted, err := g.TopologicalSort()
	if err != nil {
		t.Fatalf("failed to sort: %v", err)
	}

	positions := make(map[string]int)
	for i, node := range sorted {
		positions[node.ID] = i
	}

	if positions["a"] != 0 {
		t.Error("a should be first")
	}
	if positions["d"] != 3 {
		t.Error("d should be last")
	}
}

func TestGraph_TopologicalSort_Deterministic(t *testing.T) {
	build := func() *Graph {
		g := NewGraph()
		for _, id := range []string{"e", "c", "a", "d", "b"} {
			g.AddNode(id, nil)
		}
		g.AddEdge("a", "c")
		g.AddEdge("b", "c")
		g.AddEdge("c", "e")
		g.AddEdge("c", "d")
		return g
	}

	first, err := build().TopologicalSort()
	if err != nil {
		t.Fatalf("failed to sort: %v", err)
	}
	for i := 0; i < 10; i++ {
		next, err := build().TopologicalSort()
		if err != nil {
			t.Fatalf("failed to sort: %v", err)
		}
		for j := range first {
			if first[j].ID != next[j].ID {
				t.Fatalf("sort order changed between runs: %v vs %v", first, next)
			}
		}
	}
}

func TestGraph_TopologicalSort_WithCycle(t *testing.T) {
	g := NewGraph()
	g.AddNode("a", nil)
	g.AddNode("b", nil)

	g.AddEdge("a", "b")
	g.AddEdge("b", "a") // cycle

	if _, err := g.TopologicalSort(); err == nil {
		t.Error("expected error for cyclic graph")
	}
}

func TestGraph_ExecutionLevels(t *testing.T) {
	g := NewGraph()
	g.AddNode("raw1", nil)
	g.AddNode("raw2", nil)
	g.AddNode("staging1", nil)
	g.AddNode("staging2", nil)
	g.AddNode("mart", nil)

	g.AddEdge("raw1", "staging1")
	g.AddEdge("raw2", "staging2")
	g.AddEdge("staging1", "mart")
	g.AddEdge("staging2", "mart")

	levels, err := g.ExecutionLevels()
	if err != nil {
		t.Fatalf("failed to get levels: %v", err)
	}

	expected := [][]string{
		{"raw1", "raw2"},
		{"staging1", "staging2"},
		{"mart"},
	}
	if !reflect.DeepEqual(levels, expected) {
		t.Errorf("expected levels %v, got %v", expected, levels)
	}
}

func TestGraph_Descendants(t *testing.T) {
	g := NewGraph()
	g.AddNode("a", nil)
	g.AddNode("b", nil)
	g.AddNode("c", nil)
	g.AddNode("d", nil)

	// b depends on a, c depends on b, d is independent
	g.AddEdge("a", "b")
	g.AddEdge("b", "c")

	got := g.Descendants([]string{"a"})
	expected := []string{"b", "c"}
	if !reflect.DeepEqual(got, expected) {
		t.Errorf("expected descendants %v, got %v", expected, got)
	}

	if got := g.Descendants([]string{"d"}); len(got) != 0 {
		t.Errorf("expected no descendants for d, got %v", got)
	}

	// Unknown seeds are ignored.
	if got := g.Descendants([]string{"zzz"}); len(got) != 0 {
		t.Errorf("expected no descendants for unknown seed, got %v", got)
	}
}

func TestGraph_Ancestors(t *testing.T) {
	g := NewGraph()
	g.AddNode("a", nil)
	g.AddNode("b", nil)
	g.AddNode("c", nil)
	g.AddNode("d", nil)

	g.AddEdge("a", "b")
	g.AddEdge("b", "c")
	g.AddEdge("d", "c")

	got := g.Ancestors([]string{"c"})
	expected := []string{"a", "b", "d"}
	if !reflect.DeepEqual(got, expected) {
		t.Errorf("expected ancestors %v, got %v", expected, got)
	}

	if got := g.Ancestors([]string{"a"}); len(got) != 0 {
		t.Errorf("expected no ancestors for a, got %v", got)
	}
}

func TestGraph_ClosureIdempotent(t *testing.T) {
	g := NewGraph()
	for _, id := range []string{"a", "b", "c", "d"} {
		g.AddNode(id, nil)
	}
	g.AddEdge("a", "b")
	g.AddEdge("b", "c")
	g.AddEdge("b", "d")

	first := g.Descendants([]string{"a"})
	expanded := append([]string{"a"}, first...)
	second := g.Descendants(expanded)

	// Expanding an already-expanded set adds nothing new.
	set := make(map[string]bool)
	for _, id := range expanded {
		set[id] = true
	}
	for _, id := range second {
		if !set[id] {
			t.Errorf("closure expansion produced new node %q", id)
		}
	}
}

func TestGraph_RootsAndLeaves(t *testing.T) {
	g := NewGraph()
	g.AddNode("a", nil)
	g.AddNode("b", nil)
	g.AddNode("c", nil)

	g.AddEdge("a", "b")
	g.AddEdge("b", "c")

	if roots := g.Roots(); !reflect.DeepEqual(roots, []string{"a"}) {
		t.Errorf("expected roots [a], got %v", roots)
	}
	if leaves := g.Leaves(); !reflect.DeepEqual(leaves, []string{"c"}) {
		t.Errorf("expected leaves [c], got %v", leaves)
	}
}

func TestGraph_Subgraph(t *testing.T) {
	g := NewGraph()
	for _, id := range []string{"a", "b", "c", "d"} {
		g.AddNode(id, id)
	}
	g.AddEdge("a", "b")
	g.AddEdge("b", "c")
	g.AddEdge("c", "d")

	sub := g.Subgraph([]string{"b", "c"})

	if sub.NodeCount() != 2 {
		t.Errorf("expected 2 nodes in subgraph, got %d", sub.NodeCount())
	}
	if sub.EdgeCount() != 1 {
		t.Errorf("expected 1 edge in subgraph, got %d", sub.EdgeCount())
	}
	if !reflect.DeepEqual(sub.Children("b"), []string{"c"}) {
		t.Errorf("expected b -> c edge to survive, got %v", sub.Children("b"))
	}
	// Edges to excluded nodes are dropped.
	if len(sub.Children("c")) != 0 {
		t.Errorf("expected no children for c in subgraph, got %v", sub.Children("c"))
	}
}
