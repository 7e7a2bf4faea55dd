// Package dag provides directed acyclic graph operations for action
// dependencies. It supports cycle detection, topological sorting,
// execution levels, and transitive closure over dependency edges.
package dag

import (
	"fmt"
	"sort"
)

// Node represents a node in the DAG.
type Node struct {
	// ID is the unique identifier (action target key)
	ID string
	// Data holds arbitrary node data
	Data any
}

// Graph represents a directed acyclic graph. Edges point from a
// dependency to its dependents.
type Graph struct {
	nodes    map[string]*Node
	children map[string][]string // dependency -> dependents
	parents  map[string][]string // dependent -> dependencies
}

// NewGraph creates a new empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:    make(map[string]*Node),
		children: make(map[string][]string),
		parents:  make(map[string][]string),
	}
}

// AddNode adds a node to the graph. Re-adding an existing node only
// replaces its data.
func (g *Graph) AddNode(id string, data any) {
	if node, exists := g.nodes[id]; exists {
		node.Data = data
		return
	}
	g.nodes[id] = &Node{ID: id, Data: data}
	g.children[id] = []string{}
	g.parents[id] = []string{}
}

// AddEdge records that child depends on parent. Both nodes must
// already exist and self-loops are rejected.
func (g *Graph) AddEdge(parentID, childID string) error {
	if _, exists := g.nodes[parentID]; !exists {
		return fmt.Errorf("parent node %q does not exist", parentID)
	}
	if _, exists := g.nodes[childID]; !exists {
		return fmt.Errorf("child node %q does not exist", childID)
	}
	if parentID == childID {
		return fmt.Errorf("self-loop detected: %s", parentID)
	}

	if !contains(g.children[parentID], childID) {
		g.children[parentID] = append(g.children[parentID], childID)
	}
	if !contains(g.parents[childID], parentID) {
		g.parents[childID] = append(g.parents[childID], parentID)
	}
	return nil
}

// HasNode reports whether a node exists.
func (g *Graph) HasNode(id string) bool {
	_, exists := g.nodes[id]
	return exists
}

// GetNode returns a node by ID.
func (g *Graph) GetNode(id string) (*Node, bool) {
	node, exists := g.nodes[id]
	return node, exists
}

// Parents returns the dependencies of a node.
func (g *Graph) Parents(id string) []string {
	return g.parents[id]
}

// Children returns the dependents of a node.
func (g *Graph) Children(id string) []string {
	return g.children[id]
}

// NodeIDs returns all node IDs in sorted order.
func (g *Graph) NodeIDs() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// NodeCount returns the number of nodes in the graph.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// EdgeCount returns the number of edges in the graph.
func (g *Graph) EdgeCount() int {
	count := 0
	for _, deps := range g.children {
		count += len(deps)
	}
	return count
}

// HasCycle returns true if the graph contains a cycle, along with the
// cycle path.
func (g *Graph) HasCycle() (bool, []string) {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)
	cameFrom := make(map[string]string)

	var cyclePath []string

	var dfs func(id string) bool
	dfs = func(id string) bool {
		visited[id] = true
		recStack[id] = true

		for _, childID := range g.children[id] {
			if !visited[childID] {
				cameFrom[childID] = id
				if dfs(childID) {
					return true
				}
			} else if recStack[childID] {
				// Found a cycle, walk cameFrom back to the entry point.
				cyclePath = []string{childID}
				for curr := id; curr != childID; curr = cameFrom[curr] {
					cyclePath = append([]string{curr}, cyclePath...)
				}
				cyclePath = append([]string{childID}, cyclePath...)
				return true
			}
		}

		recStack[id] = false
		return false
	}

	for _, id := range g.NodeIDs() {
		if !visited[id] {
			if dfs(id) {
				return true, cyclePath
			}
		}
	}

	return false, nil
}

// TopologicalSort returns nodes in dependency order (dependencies
// before dependents). Ties break on node ID so the order is
// deterministic for a fixed graph. Returns an error if the graph
// contains a cycle.
func (g *Graph) TopologicalSort() ([]*Node, error) {
	if hasCycle, cyclePath := g.HasCycle(); hasCycle {
		return nil, fmt.Errorf("cycle detected: %v", cyclePath)
	}

	visited := make(map[string]bool)
	var result []*Node

	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true

		parents := append([]string(nil), g.parents[id]...)
		sort.Strings(parents)
		for _, parentID := range parents {
			visit(parentID)
		}

		result = append(result, g.nodes[id])
	}

	for _, id := range g.NodeIDs() {
		visit(id)
	}

	return result, nil
}

// ExecutionLevels groups node IDs by execution wave: nodes at level N
// can run in parallel once every node at level N-1 is done. Level 0
// holds nodes with no dependencies.
func (g *Graph) ExecutionLevels() ([][]string, error) {
	if hasCycle, cyclePath := g.HasCycle(); hasCycle {
		return nil, fmt.Errorf("cycle detected: %v", cyclePath)
	}

	assigned := make(map[string]int)

	var levelOf func(id string) int
	levelOf = func(id string) int {
		if level, ok := assigned[id]; ok {
			return level
		}

		parents := g.parents[id]
		if len(parents) == 0 {
			assigned[id] = 0
			return 0
		}

		maxParent := 0
		for _, parentID := range parents {
			if l := levelOf(parentID); l > maxParent {
				maxParent = l
			}
		}

		level := maxParent + 1
		assigned[id] = level
		return level
	}

	maxLevel := 0
	for id := range g.nodes {
		if l := levelOf(id); l > maxLevel {
			maxLevel = l
		}
	}

	levels := make([][]string, maxLevel+1)
	for id, level := range assigned {
		levels[level] = append(levels[level], id)
	}
	for i := range levels {
		sort.Strings(levels[i])
	}

	return levels, nil
}

// Descendants returns the transitive dependents of the seed nodes,
// sorted. Seeds appear in the result only when reachable from another
// seed.
func (g *Graph) Descendants(seedIDs []string) []string {
	return g.closure(seedIDs, g.children)
}

// Ancestors returns the transitive dependencies of the seed nodes,
// sorted. Seeds appear in the result only when reachable from another
// seed.
func (g *Graph) Ancestors(seedIDs []string) []string {
	return g.closure(seedIDs, g.parents)
}

func (g *Graph) closure(seedIDs []string, edges map[string][]string) []string {
	reached := make(map[string]bool)

	var walk func(id string)
	walk = func(id string) {
		for _, next := range edges[id] {
			if !reached[next] {
				reached[next] = true
				walk(next)
			}
		}
	}

	for _, id := range seedIDs {
		if _, exists := g.nodes[id]; exists {
			walk(id)
		}
	}

	result := make([]string, 0, len(reached))
	for id := range reached {
		result = append(result, id)
	}
	sort.Strings(result)
	return result
}

// Roots returns nodes with no dependencies.
func (g *Graph) Roots() []string {
	var roots []string
	for id := range g.nodes {
		if len(g.parents[id]) == 0 {
			roots = append(roots, id)
		}
	}
	sort.Strings(roots)
	return roots
}

// Leaves returns nodes with no dependents.
func (g *Graph) Leaves() []string {
	var leaves []string
	for id := range g.nodes {
		if len(g.children[id]) == 0 {
			leaves = append(leaves, id)
		}
	}
	sort.Strings(leaves)
	return leaves
}

// Subgraph returns a new graph containing only the specified nodes and
// the edges between them.
func (g *Graph) Subgraph(nodeIDs []string) *Graph {
	subgraph := NewGraph()
	keep := make(map[string]bool, len(nodeIDs))

	for _, id := range nodeIDs {
		keep[id] = true
		if node, exists := g.nodes[id]; exists {
			subgraph.AddNode(id, node.Data)
		}
	}

	for _, id := range nodeIDs {
		for _, childID := range g.children[id] {
			if keep[childID] {
				_ = subgraph.AddEdge(id, childID)
			}
		}
	}

	return subgraph
}

func contains(slice []string, str string) bool {
	for _, s := range slice {
		if s == str {
			return true
		}
	}
	return false
}
