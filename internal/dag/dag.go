// Package dag provides the dependency graph engine behind work item
// scheduling. It supports cycle-rejecting edge insertion, loose linking of
// edges read from hand-edited documents, DFS cycle detection and
// priority-aware dependency layering.
package dag

import (
	"errors"
	"fmt"
	"sort"
)

// ErrCycle is returned when the graph contains a dependency cycle.
var ErrCycle = errors.New("cycle detected")

// ErrNodeNotFound is returned when an operation references a non-existent node.
var ErrNodeNotFound = errors.New("node not found")

// ErrDuplicateNode is returned when adding a node that already exists.
var ErrDuplicateNode = errors.New("duplicate node")

// ErrSelfEdge is returned when an edge would create a self-loop.
var ErrSelfEdge = errors.New("self-referencing edge")

// Node represents a work item in the DAG.
type Node struct {
	ID       string
	Priority int // lower value = more urgent
}

// DAG represents a dependency graph of work items.
// Edges point from a node to its dependencies: if A depends on B,
// there is an edge from A to B.
//
// Edges added with AddEdge keep the graph acyclic. Edges added with Link are
// recorded as-is so that cycles already present in stored documents can be
// detected and reported instead of being lost.
type DAG struct {
	nodes map[string]*Node
	// adjacency maps nodeID → set of dependency IDs (forward edges).
	adjacency map[string]map[string]bool
	// reverse maps nodeID → set of dependent IDs (backward edges).
	reverse map[string]map[string]bool
}

// New creates an empty DAG.
func New() *DAG {
	return &DAG{
		nodes:     make(map[string]*Node),
		adjacency: make(map[string]map[string]bool),
		reverse:   make(map[string]map[string]bool),
	}
}

// AddNode adds a node with the given ID and priority. Returns
// ErrDuplicateNode if a node with that ID already exists.
func (d *DAG) AddNode(id string, priority int) error {
	if _, exists := d.nodes[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateNode, id)
	}
	d.nodes[id] = &Node{ID: id, Priority: priority}
	d.adjacency[id] = make(map[string]bool)
	d.reverse[id] = make(map[string]bool)
	return nil
}

// AddEdge adds a dependency edge: from depends on to. Both nodes must
// already exist. Returns an error if either node is missing, the edge
// would create a self-loop, or the edge would introduce a cycle.
func (d *DAG) AddEdge(from, to string) error {
	if err := d.CheckEdge(from, to); err != nil {
		return err
	}
	d.adjacency[from][to] = true
	d.reverse[to][from] = true
	return nil
}

// CheckEdge reports, without modifying the graph, why from → to could not be
// added by AddEdge. It returns nil when the edge is acceptable, including
// when it already exists.
func (d *DAG) CheckEdge(from, to string) error {
	if from == to {
		return fmt.Errorf("%w: %s", ErrSelfEdge, from)
	}
	if _, ok := d.nodes[from]; !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, from)
	}
	if _, ok := d.nodes[to]; !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, to)
	}
	if d.adjacency[from][to] {
		return nil
	}
	// A path to → ... → from plus the new edge from → to closes a cycle.
	if d.hasPath(to, from) {
		return fmt.Errorf("%w: edge %s → %s would create a cycle", ErrCycle, from, to)
	}
	return nil
}

// Link records from → to without cycle checking. Self-loops are accepted.
// Both nodes must exist.
func (d *DAG) Link(from, to string) error {
	if _, ok := d.nodes[from]; !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, from)
	}
	if _, ok := d.nodes[to]; !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, to)
	}
	d.adjacency[from][to] = true
	d.reverse[to][from] = true
	return nil
}

// Nodes returns all node IDs in the DAG, sorted alphabetically.
func (d *DAG) Nodes() []string {
	ids := make([]string, 0, len(d.nodes))
	for id := range d.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// DepsFor returns the direct dependencies of id, sorted.
func (d *DAG) DepsFor(id string) []string {
	return sortedKeys(d.adjacency[id])
}

// Descendants returns all transitive dependents of the given node
// (i.e., everything that transitively depends on it). The result is
// sorted alphabetically. Returns nil if the node has no dependents or
// does not exist.
func (d *DAG) Descendants(id string) []string {
	if _, ok := d.nodes[id]; !ok {
		return nil
	}
	visited := make(map[string]bool)
	d.collectDescendants(id, visited)
	delete(visited, id)
	if len(visited) == 0 {
		return nil
	}
	return sortedKeys(visited)
}

// hasPath reports whether there is a directed path from src to dst
// through the dependency graph (forward edges).
func (d *DAG) hasPath(src, dst string) bool {
	if src == dst {
		return false
	}
	visited := make(map[string]bool)
	queue := []string{src}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for dep := range d.adjacency[cur] {
			if dep == dst {
				return true
			}
			if !visited[dep] {
				visited[dep] = true
				queue = append(queue, dep)
			}
		}
	}
	return false
}

// collectDescendants walks reverse edges from id, collecting all reachable
// nodes (transitive dependents).
func (d *DAG) collectDescendants(id string, visited map[string]bool) {
	for dep := range d.reverse[id] {
		if !visited[dep] {
			visited[dep] = true
			d.collectDescendants(dep, visited)
		}
	}
}

// zeroDegreeNodes returns IDs from the in-degree map that have zero value.
func (d *DAG) zeroDegreeNodes(inDegree map[string]int) []string {
	var result []string
	for id, deg := range inDegree {
		if deg == 0 {
			result = append(result, id)
		}
	}
	return result
}

// prioritySorted returns a copy of ids sorted by priority ascending (most
// urgent first), with alphabetical ID as tiebreaker.
func (d *DAG) prioritySorted(ids []string) []string {
	if len(ids) <= 1 {
		return ids
	}
	sorted := make([]string, len(ids))
	copy(sorted, ids)
	sort.Slice(sorted, func(i, j int) bool {
		pi := d.nodes[sorted[i]].Priority
		pj := d.nodes[sorted[j]].Priority
		if pi != pj {
			return pi < pj
		}
		return sorted[i] < sorted[j]
	})
	return sorted
}

func sortedKeys(m map[string]bool) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
