package schedule

import (
	"sort"

	"github.com/papapumpkin/tempo/internal/dag"
	"github.com/papapumpkin/tempo/internal/work"
)

// Candidate is an item together with its qualified ref.
type Candidate struct {
	Ref  work.Ref  `json:"-"`
	Key  string    `json:"ref"`
	Item work.Item `json:"item"`
}

func newCandidate(specID string, it work.Item) Candidate {
	ref := work.Ref{SpecID: specID, ItemID: it.ID}
	return Candidate{Ref: ref, Key: ref.String(), Item: it}
}

// Poison describes a spec whose stored dependency edges contain a cycle.
type Poison struct {
	Spec  string   `json:"spec"`
	Cycle []string `json:"cycle"`
}

// Resolver answers dependency questions over a fixed set of plans. Each plan
// gets its own graph: an edge from every item to each of its effective
// dependencies, and from every container to each of its children. Edges are
// recorded as stored, so hand-edited cycles are detected rather than lost.
type Resolver struct {
	specs  []string
	plans  map[string]*work.Plan
	graphs map[string]*dag.DAG
	cycles map[string][]string
}

// NewResolver builds graphs for the given plans.
func NewResolver(plans ...*work.Plan) *Resolver {
	r := &Resolver{
		plans:  make(map[string]*work.Plan, len(plans)),
		graphs: make(map[string]*dag.DAG, len(plans)),
		cycles: make(map[string][]string),
	}
	for _, p := range plans {
		r.specs = append(r.specs, p.SpecID)
		r.plans[p.SpecID] = p
		g := buildGraph(p)
		r.graphs[p.SpecID] = g
		if cycle, ok := g.DetectCycle(); ok {
			r.cycles[p.SpecID] = cycle
		}
	}
	sort.Strings(r.specs)
	return r
}

func buildGraph(p *work.Plan) *dag.DAG {
	g := dag.New()
	items := p.Items()
	for _, it := range items {
		// Duplicate ids are rejected at load time.
		_ = g.AddNode(it.ID, it.Priority)
	}
	for _, it := range items {
		for _, dep := range p.EffectiveDeps(it.ID) {
			// Unknown ids have no node; they stay unsatisfied.
			_ = g.Link(it.ID, dep)
		}
		if it.ParentID != "" {
			_ = g.Link(it.ParentID, it.ID)
		}
	}
	return g
}

// Graph returns the dependency graph of a spec, or nil.
func (r *Resolver) Graph(specID string) *dag.DAG {
	return r.graphs[specID]
}

// Poisoned returns the specs whose stored edges contain a cycle, sorted.
func (r *Resolver) Poisoned() []Poison {
	var out []Poison
	for _, id := range r.specs {
		if c, ok := r.cycles[id]; ok {
			out = append(out, Poison{Spec: id, Cycle: c})
		}
	}
	return out
}

// Cycle returns the cycle that poisons specID, if any.
func (r *Resolver) Cycle(specID string) ([]string, bool) {
	c, ok := r.cycles[specID]
	return c, ok
}

// Satisfied reports whether every effective dependency of id exists and is
// done, and the spec is not poisoned. The first unsatisfied dependency is
// returned otherwise ("" when the cause is a cycle).
func (r *Resolver) Satisfied(specID, id string) (string, bool) {
	if _, poisoned := r.cycles[specID]; poisoned {
		return "", false
	}
	p := r.plans[specID]
	if p == nil {
		return "", false
	}
	for _, dep := range p.EffectiveDeps(id) {
		d := p.Find(dep)
		if d == nil || d.Status != work.StatusDone {
			return dep, false
		}
	}
	return "", true
}

// Unblocked returns every pending, dispatchable item whose dependencies are
// all done, in no particular order. Containers are never dispatchable.
func (r *Resolver) Unblocked() []Candidate {
	var out []Candidate
	for _, specID := range r.specs {
		p := r.plans[specID]
		for _, it := range p.Items() {
			if it.Status != work.StatusPending || p.IsContainer(it.ID) {
				continue
			}
			if _, ok := r.Satisfied(specID, it.ID); ok {
				out = append(out, newCandidate(specID, it))
			}
		}
	}
	return out
}

// AllDone reports whether every item is done. An empty set is all done.
func (r *Resolver) AllDone() bool {
	for _, p := range r.plans {
		for _, it := range p.Items() {
			if it.Status != work.StatusDone {
				return false
			}
		}
	}
	return true
}

// Blockers returns the union of unsatisfied dependency refs of pending
// items in specs that are not poisoned, sorted.
func (r *Resolver) Blockers() []string {
	set := make(map[string]bool)
	for _, specID := range r.specs {
		if _, poisoned := r.cycles[specID]; poisoned {
			continue
		}
		p := r.plans[specID]
		for _, it := range p.Items() {
			if it.Status != work.StatusPending {
				continue
			}
			for _, dep := range p.EffectiveDeps(it.ID) {
				if d := p.Find(dep); d == nil || d.Status != work.StatusDone {
					set[work.Ref{SpecID: specID, ItemID: dep}.String()] = true
				}
			}
		}
	}
	return sortedSet(set)
}

// InProgress returns the refs of items currently in progress, sorted.
func (r *Resolver) InProgress() []string {
	var out []string
	for _, specID := range r.specs {
		for _, it := range r.plans[specID].Items() {
			if it.Status == work.StatusInProgress {
				out = append(out, work.Ref{SpecID: specID, ItemID: it.ID}.String())
			}
		}
	}
	sort.Strings(out)
	return out
}

// Stranded returns the items of specID that transitively depend on id and
// therefore cannot run while id is not done, sorted.
func (r *Resolver) Stranded(specID, id string) []string {
	g := r.graphs[specID]
	if g == nil {
		return nil
	}
	return g.Descendants(id)
}

func sortedSet(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
