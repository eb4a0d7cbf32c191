package schedule

import (
	"context"
	"errors"
	"fmt"

	"github.com/papapumpkin/tempo/internal/dag"
	"github.com/papapumpkin/tempo/internal/telemetry"
	"github.com/papapumpkin/tempo/internal/work"
)

// NewItem describes an item to add to an approved spec.
type NewItem struct {
	ID          string
	Title       string
	Description string
	Priority    int
	DependsOn   []string
	ParentID    string
	Type        string
	Scope       []string
}

// AddItem appends a pending item to the spec's plan. Items of type
// "session" are stored with the sessions, everything else with the tasks.
func (s *Scheduler) AddItem(ctx context.Context, specID string, n NewItem) (work.Item, error) {
	ref := work.Ref{SpecID: specID, ItemID: n.ID}
	var created work.Item
	err := s.Store.UpdatePlan(ctx, specID, func(spec work.Spec, p *work.Plan) error {
		if spec.Status != work.SpecApproved {
			return fmt.Errorf("%w: spec %s is %s; items may only be added while approved",
				work.ErrInvalidTransition, specID, spec.Status)
		}
		if p.Find(n.ID) != nil {
			return fmt.Errorf("item %s already exists", ref)
		}
		if n.ParentID != "" {
			if err := checkParent(p, specID, n.ParentID); err != nil {
				return err
			}
		}
		now := s.now().UTC()
		it := work.Item{
			ID: n.ID, Title: n.Title, Description: n.Description,
			Status: work.StatusPending, Priority: n.Priority,
			DependsOn: dedupe(n.DependsOn), ParentID: n.ParentID,
			Type: n.Type, Scope: n.Scope, Created: now, Updated: now,
		}
		if err := work.Validate(ref.String(), &it); err != nil {
			return err
		}

		g := buildGraph(p)
		if err := g.AddNode(it.ID, it.Priority); err != nil {
			return err
		}
		if it.ParentID != "" {
			_ = g.Link(it.ParentID, it.ID)
		}
		for _, dep := range it.DependsOn {
			if p.Find(dep) == nil {
				return fmt.Errorf("dependency %s: %w", qualify(specID, dep), work.ErrNotFound)
			}
			if err := edgeErr(g.AddEdge(it.ID, dep), ref, dep); err != nil {
				return err
			}
		}

		if it.Type == "session" {
			p.Sessions = append(p.Sessions, it)
		} else {
			p.Tasks = append(p.Tasks, it)
		}
		created = it
		return nil
	})
	if err != nil {
		return work.Item{}, err
	}
	if err := s.Telemetry.Emit(telemetry.Event{Kind: telemetry.KindItemAdded, Spec: specID, Ref: ref.String()}); err != nil {
		fmt.Fprintf(s.logger(), "warning: %v\n", err)
	}
	return created, nil
}

// AddDependency records that ref depends on dep. An edge that would close a
// cycle, including a self-edge, is rejected with work.ErrCycleDetected and
// nothing is written.
func (s *Scheduler) AddDependency(ctx context.Context, ref work.Ref, dep string) error {
	err := s.Store.UpdatePlan(ctx, ref.SpecID, func(_ work.Spec, p *work.Plan) error {
		it, err := findItem(p, ref)
		if err != nil {
			return err
		}
		if p.Find(dep) == nil {
			return fmt.Errorf("dependency %s: %w", qualify(ref.SpecID, dep), work.ErrNotFound)
		}
		for _, d := range it.DependsOn {
			if d == dep {
				return nil
			}
		}
		if err := edgeErr(buildGraph(p).CheckEdge(ref.ItemID, dep), ref, dep); err != nil {
			return err
		}
		it.DependsOn = append(it.DependsOn, dep)
		it.Updated = s.now().UTC()
		return nil
	})
	if err != nil {
		return err
	}
	if err := s.Telemetry.Emit(telemetry.Event{
		Kind: telemetry.KindDependencyAdded, Spec: ref.SpecID, Ref: ref.String(),
		Data: map[string]string{"depends_on": dep},
	}); err != nil {
		fmt.Fprintf(s.logger(), "warning: %v\n", err)
	}
	return nil
}

// edgeErr maps a rejected graph edge onto the work error taxonomy.
func edgeErr(err error, ref work.Ref, dep string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, dag.ErrSelfEdge), errors.Is(err, dag.ErrCycle):
		return fmt.Errorf("%w: %s -> %s: %v", work.ErrCycleDetected, ref, dep, err)
	default:
		return fmt.Errorf("%w: %v", work.ErrNotFound, err)
	}
}

// CreateSpec writes a new draft spec with an empty plan.
func (s *Scheduler) CreateSpec(ctx context.Context, id, title, body string) (work.Spec, error) {
	now := s.now().UTC()
	spec := work.Spec{ID: id, Title: title, Status: work.SpecDraft, Created: now, Updated: now, Body: body}
	if err := s.Store.CreateSpec(ctx, spec); err != nil {
		return work.Spec{}, err
	}
	if err := s.Telemetry.Emit(telemetry.Event{Kind: telemetry.KindSpecCreated, Spec: id}); err != nil {
		fmt.Fprintf(s.logger(), "warning: %v\n", err)
	}
	return spec, nil
}

// TransitionSpec changes a spec's status. A spec becomes implemented only
// once every item in its plan is done.
func (s *Scheduler) TransitionSpec(ctx context.Context, id string, to work.SpecStatus) (work.Spec, error) {
	var from work.SpecStatus
	var updated work.Spec
	err := s.Store.UpdateSpec(ctx, id, func(spec *work.Spec) error {
		if !work.CanTransitionSpec(spec.Status, to) {
			return &work.TransitionError{Ref: id, From: string(spec.Status), To: string(to)}
		}
		if to == work.SpecImplemented {
			p, err := s.Store.LoadPlan(id)
			if err != nil {
				return err
			}
			if !NewResolver(p).AllDone() {
				return &work.TransitionError{Ref: id, From: string(spec.Status), To: string(to), Detail: "not every item is done"}
			}
		}
		from = spec.Status
		spec.Status = to
		spec.Updated = s.now().UTC()
		updated = *spec
		return nil
	})
	if err != nil {
		return work.Spec{}, err
	}
	if err := s.Telemetry.State(telemetry.KindSpecState, id, "", string(from), string(to), ""); err != nil {
		fmt.Fprintf(s.logger(), "warning: %v\n", err)
	}
	return updated, nil
}

// checkParent reports whether a new pending child may be attached to
// parentID. A finished or blocked container, and a leaf already running,
// cannot take new children.
func checkParent(p *work.Plan, specID, parentID string) error {
	parent := p.Find(parentID)
	if parent == nil {
		return fmt.Errorf("parent %s: %w", qualify(specID, parentID), work.ErrNotFound)
	}
	switch {
	case parent.Status == work.StatusDone || parent.Status == work.StatusBlocked:
		return fmt.Errorf("%w: parent %s is %s", work.ErrInvalidTransition, qualify(specID, parentID), parent.Status)
	case parent.Status == work.StatusInProgress && !p.IsContainer(parentID):
		return fmt.Errorf("%w: parent %s is an in-progress leaf", work.ErrInvalidTransition, qualify(specID, parentID))
	}
	if anc := closedAncestor(p, parentID); anc != nil {
		return fmt.Errorf("%w: container %s is %s", work.ErrInvalidTransition, qualify(specID, anc.ID), anc.Status)
	}
	return nil
}
