package schedule

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/papapumpkin/tempo/internal/telemetry"
	"github.com/papapumpkin/tempo/internal/work"
)

// Outcome reports what a transition did.
type Outcome struct {
	Ref  string      `json:"ref"`
	From work.Status `json:"from"`
	Item work.Item   `json:"item"`
	// Retrying is set by Fail when the item went back to pending.
	Retrying bool       `json:"retrying,omitempty"`
	RetryAt  *time.Time `json:"retry_at,omitempty"`
	// Cascaded lists containers whose status changed as a consequence.
	Cascaded []string `json:"cascaded,omitempty"`
	// Stranded lists items that depend on a blocked item and cannot run.
	Stranded []string `json:"stranded,omitempty"`
}

// FailOptions controls Fail.
type FailOptions struct {
	Retriable bool
	Reason    string
}

type change struct {
	id       string
	from, to work.Status
}

// Begin moves ref from pending to in_progress and persists it before
// returning. Its pending ancestors move to in_progress with it. When a
// Reserver is configured the item's scope is claimed first.
func (s *Scheduler) Begin(ctx context.Context, ref work.Ref) (Outcome, error) {
	var out Outcome
	var changes []change
	claimed := false
	err := s.Store.UpdatePlan(ctx, ref.SpecID, func(_ work.Spec, p *work.Plan) error {
		it, err := findItem(p, ref)
		if err != nil {
			return err
		}
		if p.IsContainer(it.ID) {
			return transitionErr(ref, it.Status, work.StatusInProgress, "containers start with their first child")
		}
		if !work.CanTransition(it.Status, work.StatusInProgress) {
			return transitionErr(ref, it.Status, work.StatusInProgress, "")
		}
		r := NewResolver(p)
		if cycle, poisoned := r.Cycle(ref.SpecID); poisoned {
			return transitionErr(ref, it.Status, work.StatusInProgress, "dependency cycle "+strings.Join(cycle, " -> "))
		}
		if dep, ok := r.Satisfied(ref.SpecID, it.ID); !ok {
			return transitionErr(ref, it.Status, work.StatusInProgress, "dependency "+dep+" is not done")
		}
		if anc := closedAncestor(p, it.ID); anc != nil {
			return transitionErr(ref, it.Status, work.StatusInProgress,
				fmt.Sprintf("container %s is %s", qualify(ref.SpecID, anc.ID), anc.Status))
		}
		if s.Reserver != nil && len(it.Scope) > 0 {
			if err := s.Reserver.Acquire(ctx, ref.String(), it.Scope); err != nil {
				return err
			}
			claimed = true
		}

		now := s.now().UTC()
		out.From = it.Status
		it.Status = work.StatusInProgress
		it.RetryAfter = nil
		it.Updated = now
		changes = append(changes, change{it.ID, out.From, it.Status})

		for _, anc := range ancestors(p, it.ID) {
			if anc.Status == work.StatusPending {
				changes = append(changes, change{anc.ID, anc.Status, work.StatusInProgress})
				anc.Status = work.StatusInProgress
				anc.Updated = now
				out.Cascaded = append(out.Cascaded, qualify(ref.SpecID, anc.ID))
			}
		}
		out.Ref = ref.String()
		out.Item = *it
		return nil
	})
	if err != nil {
		if claimed {
			s.release(ctx, ref)
		}
		return Outcome{}, err
	}
	s.emitChanges(ref.SpecID, changes, "")
	return out, nil
}

// Complete moves ref from in_progress to done and cascades done to every
// ancestor whose children are now all done.
func (s *Scheduler) Complete(ctx context.Context, ref work.Ref) (Outcome, error) {
	var out Outcome
	var changes []change
	err := s.Store.UpdatePlan(ctx, ref.SpecID, func(_ work.Spec, p *work.Plan) error {
		it, err := findItem(p, ref)
		if err != nil {
			return err
		}
		if p.IsContainer(it.ID) {
			return transitionErr(ref, it.Status, work.StatusDone, "containers finish when their last child completes")
		}
		if !work.CanTransition(it.Status, work.StatusDone) {
			return transitionErr(ref, it.Status, work.StatusDone, "")
		}
		now := s.now().UTC()
		out.From = it.Status
		it.Status = work.StatusDone
		it.RetryAfter = nil
		it.LastError = ""
		it.Updated = now
		changes = append(changes, change{it.ID, out.From, it.Status})

		for _, anc := range ancestors(p, it.ID) {
			if !work.CanTransition(anc.Status, work.StatusDone) || !childrenDone(p, anc.ID) {
				break
			}
			changes = append(changes, change{anc.ID, anc.Status, work.StatusDone})
			anc.Status = work.StatusDone
			anc.Updated = now
			out.Cascaded = append(out.Cascaded, qualify(ref.SpecID, anc.ID))
		}
		out.Ref = ref.String()
		out.Item = *it
		return nil
	})
	if err != nil {
		return Outcome{}, err
	}
	s.release(ctx, ref)
	s.emitChanges(ref.SpecID, changes, "")
	return out, nil
}

// Fail records a failed attempt of an in-progress item. A retriable failure
// within the retry budget returns the item to pending, cooling down per the
// back-off policy; otherwise the item is blocked and the items depending on
// it are reported as stranded.
func (s *Scheduler) Fail(ctx context.Context, ref work.Ref, opts FailOptions) (Outcome, error) {
	var out Outcome
	err := s.Store.UpdatePlan(ctx, ref.SpecID, func(_ work.Spec, p *work.Plan) error {
		it, err := findItem(p, ref)
		if err != nil {
			return err
		}
		if p.IsContainer(it.ID) {
			return transitionErr(ref, it.Status, work.StatusBlocked, "containers fail through their children")
		}
		if it.Status != work.StatusInProgress {
			return transitionErr(ref, it.Status, work.StatusBlocked, "only in-progress items can fail")
		}
		now := s.now().UTC()
		out.From = it.Status
		it.Attempts++
		it.LastError = opts.Reason
		it.Updated = now

		if opts.Retriable && it.Attempts < s.maxAttempts() {
			it.Status = work.StatusPending
			out.Retrying = true
			if d := s.Backoff.Delay(it.Attempts); d > 0 {
				at := now.Add(d)
				it.RetryAfter = &at
				out.RetryAt = &at
			}
		} else {
			it.Status = work.StatusBlocked
			it.RetryAfter = nil
			out.Stranded = qualifyAll(ref.SpecID, NewResolver(p).Stranded(ref.SpecID, it.ID))
		}
		out.Ref = ref.String()
		out.Item = *it
		return nil
	})
	if err != nil {
		return Outcome{}, err
	}
	s.release(ctx, ref)
	s.emit(telemetry.KindItemState, ref.SpecID, out.Ref, out.From, out.Item.Status, opts.Reason)
	if !out.Retrying {
		fmt.Fprintf(s.logger(), "%s blocked after %d attempt(s): %s\n", out.Ref, out.Item.Attempts, opts.Reason)
	}
	return out, nil
}

// Retry moves a blocked item back to pending with a fresh retry budget.
func (s *Scheduler) Retry(ctx context.Context, ref work.Ref) (Outcome, error) {
	var out Outcome
	err := s.Store.UpdatePlan(ctx, ref.SpecID, func(_ work.Spec, p *work.Plan) error {
		it, err := findItem(p, ref)
		if err != nil {
			return err
		}
		if it.Status != work.StatusBlocked || !work.CanTransition(it.Status, work.StatusPending) {
			return transitionErr(ref, it.Status, work.StatusPending, "only blocked items can be retried")
		}
		out.From = it.Status
		it.Status = work.StatusPending
		it.Attempts = 0
		it.RetryAfter = nil
		it.LastError = ""
		it.Updated = s.now().UTC()
		out.Ref = ref.String()
		out.Item = *it
		return nil
	})
	if err != nil {
		return Outcome{}, err
	}
	s.emit(telemetry.KindItemState, ref.SpecID, out.Ref, out.From, out.Item.Status, "retry")
	return out, nil
}

func (s *Scheduler) release(ctx context.Context, ref work.Ref) {
	if s.Reserver == nil {
		return
	}
	if err := s.Reserver.Release(ctx, ref.String()); err != nil {
		fmt.Fprintf(s.logger(), "warning: failed to release claims for %s: %v\n", ref, err)
	}
}

func (s *Scheduler) emitChanges(specID string, changes []change, reason string) {
	for _, c := range changes {
		s.emit(telemetry.KindItemState, specID, qualify(specID, c.id), c.from, c.to, reason)
	}
}

func findItem(p *work.Plan, ref work.Ref) (*work.Item, error) {
	it := p.Find(ref.ItemID)
	if it == nil {
		return nil, fmt.Errorf("item %s: %w", ref, work.ErrNotFound)
	}
	return it, nil
}

// ancestors returns pointers to id's parent, grandparent, and so on. The walk
// stops at an unknown parent or a repeated id.
func ancestors(p *work.Plan, id string) []*work.Item {
	var out []*work.Item
	seen := map[string]bool{id: true}
	cur := p.Find(id)
	for cur != nil && cur.ParentID != "" && !seen[cur.ParentID] {
		seen[cur.ParentID] = true
		cur = p.Find(cur.ParentID)
		if cur != nil {
			out = append(out, cur)
		}
	}
	return out
}

// closedAncestor returns the first ancestor of id that can no longer take
// running children, or nil.
func closedAncestor(p *work.Plan, id string) *work.Item {
	for _, anc := range ancestors(p, id) {
		if anc.Status == work.StatusDone || anc.Status == work.StatusBlocked {
			return anc
		}
	}
	return nil
}

func childrenDone(p *work.Plan, id string) bool {
	for _, child := range p.Children(id) {
		if c := p.Find(child); c == nil || c.Status != work.StatusDone {
			return false
		}
	}
	return true
}

func transitionErr(ref work.Ref, from, to work.Status, detail string) error {
	return &work.TransitionError{Ref: ref.String(), From: string(from), To: string(to), Detail: detail}
}

func qualify(specID, id string) string {
	return work.Ref{SpecID: specID, ItemID: id}.String()
}

func qualifyAll(specID string, ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = qualify(specID, id)
	}
	return out
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	var out []string
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
