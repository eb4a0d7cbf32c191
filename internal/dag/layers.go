package dag

import "fmt"

// Layer groups nodes whose dependencies are all satisfied by earlier
// layers. Nodes within a layer share no dependency edges.
type Layer struct {
	Number  int      `json:"number"` // 1-based layer number
	NodeIDs []string `json:"items"`  // most urgent first, then alphabetical
}

// Layers groups nodes into dependency layers using Kahn's algorithm.
// Layer 1 contains nodes with no dependencies, layer 2 contains nodes
// whose dependencies are all in layer 1, and so on. Returns ErrCycle if
// the graph contains a cycle.
func (d *DAG) Layers() ([]Layer, error) {
	inDegree := make(map[string]int, len(d.nodes))
	for id := range d.nodes {
		inDegree[id] = len(d.adjacency[id])
	}

	current := d.zeroDegreeNodes(inDegree)

	var layers []Layer
	visited := 0
	for len(current) > 0 {
		current = d.prioritySorted(current)
		layers = append(layers, Layer{
			Number:  len(layers) + 1,
			NodeIDs: current,
		})
		visited += len(current)

		var next []string
		for _, id := range current {
			for dependent := range d.reverse[id] {
				inDegree[dependent]--
				if inDegree[dependent] == 0 {
					next = append(next, dependent)
				}
			}
		}
		current = next
	}

	if visited != len(d.nodes) {
		return nil, fmt.Errorf("%w: not all nodes could be grouped into layers", ErrCycle)
	}
	return layers, nil
}
