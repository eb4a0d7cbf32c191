package dag

// visit states for DetectCycle.
const (
	unvisited = iota
	onStack
	finished
)

// frame is one level of the explicit DFS recursion stack.
type frame struct {
	id   string
	deps []string
	next int
}

// DetectCycle runs a depth-first traversal over dependency edges, keeping the
// active recursion stack. The first edge that points back into the stack
// closes a cycle; the cycle is returned as a path that starts and ends at the
// same node (e.g. [a b c a]). Traversal order is alphabetical, so the result
// is deterministic. Returns nil, false for an acyclic graph.
func (d *DAG) DetectCycle() ([]string, bool) {
	state := make(map[string]int, len(d.nodes))

	for _, root := range d.Nodes() {
		if state[root] != unvisited {
			continue
		}
		stack := []frame{{id: root, deps: d.DepsFor(root)}}
		state[root] = onStack

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if top.next >= len(top.deps) {
				state[top.id] = finished
				stack = stack[:len(stack)-1]
				continue
			}
			dep := top.deps[top.next]
			top.next++

			switch state[dep] {
			case onStack:
				return cyclePath(stack, dep), true
			case unvisited:
				state[dep] = onStack
				stack = append(stack, frame{id: dep, deps: d.DepsFor(dep)})
			}
		}
	}
	return nil, false
}

// cyclePath extracts the cycle from the recursion stack, from the first
// occurrence of start up to the top, then closes it with start again.
func cyclePath(stack []frame, start string) []string {
	var path []string
	for i := range stack {
		if stack[i].id == start || len(path) > 0 {
			path = append(path, stack[i].id)
		}
	}
	return append(path, start)
}
