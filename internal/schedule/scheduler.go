// Package schedule decides which work item may run next and applies the item
// state machine. Every call reads a fresh snapshot from the Store; nothing is
// cached between calls, so hand edits are always observed.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/papapumpkin/tempo/internal/scope"
	"github.com/papapumpkin/tempo/internal/telemetry"
	"github.com/papapumpkin/tempo/internal/work"
)

// DefaultMaxAttempts is the retry budget used when MaxAttempts is unset.
const DefaultMaxAttempts = 3

// Store is the document access the scheduler needs. Update methods run fn
// under the store lock against a freshly read document and persist the
// result only when fn succeeds.
type Store interface {
	ListSpecs() ([]work.Spec, []work.Skip, error)
	LoadSpec(id string) (work.Spec, error)
	LoadPlan(id string) (*work.Plan, error)
	CreateSpec(ctx context.Context, spec work.Spec) error
	UpdateSpec(ctx context.Context, id string, fn func(*work.Spec) error) error
	UpdatePlan(ctx context.Context, id string, fn func(work.Spec, *work.Plan) error) error
}

// Reserver holds file-scope reservations for in-progress items.
type Reserver interface {
	Acquire(ctx context.Context, ref string, patterns []string) error
	Release(ctx context.Context, ref string) error
}

// Backoff is the delay policy applied to retriable failures.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// Delay returns Base*2^(attempts-1), capped at Max. A zero Base disables
// back-off.
func (b Backoff) Delay(attempts int) time.Duration {
	if b.Base <= 0 || attempts <= 0 {
		return 0
	}
	d := b.Base
	for i := 1; i < attempts; i++ {
		d *= 2
		if b.Max > 0 && d >= b.Max {
			return b.Max
		}
	}
	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}

// Scheduler selects work and records transitions through a Store.
type Scheduler struct {
	Store       Store
	Reserver    Reserver // nil disables scope reservations
	Telemetry   *telemetry.Emitter
	Logger      io.Writer
	MaxAttempts int
	Backoff     Backoff
	Now         func() time.Time
}

// Reason explains an empty selection.
type Reason string

const (
	ReasonAllDone     Reason = "all_done"
	ReasonBlocked     Reason = "blocked"
	ReasonCoolingDown Reason = "cooling_down"
)

// Diagnosis describes why nothing could be selected.
type Diagnosis struct {
	Reason     Reason     `json:"reason,omitempty"`
	Blockers   []string   `json:"blockers,omitempty"`
	Poisoned   []Poison   `json:"poisoned,omitempty"`
	InProgress []string   `json:"in_progress,omitempty"`
	RetryAt    *time.Time `json:"retry_at,omitempty"`
}

// Selection is the result of SelectNext. Item is nil when Reason is set.
type Selection struct {
	Item *Candidate `json:"item,omitempty"`
	Diagnosis
	Skipped []work.Skip `json:"skipped,omitempty"`
}

// Conflict is a pair of wave members whose file scopes overlap.
type Conflict struct {
	A     string      `json:"a"`
	B     string      `json:"b"`
	Match scope.Match `json:"match"`
}

// Wave is the result of SelectWave.
type Wave struct {
	Items     []Candidate `json:"items,omitempty"`
	Priority  int         `json:"priority"`
	Conflicts []Conflict  `json:"conflicts,omitempty"`
	Diagnosis
	Skipped []work.Skip `json:"skipped,omitempty"`
}

// Snapshot is the state of the specs in one scope at one instant.
type Snapshot struct {
	Specs    []work.Spec
	Plans    []*work.Plan
	Skipped  []work.Skip
	Resolver *Resolver
}

// Snapshot loads every spec in scope (all specs when scope is empty).
// Plans that fail to load in an unscoped snapshot are skipped; a scoped
// snapshot surfaces the error.
func (s *Scheduler) Snapshot(ctx context.Context, scopeID string) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	snap := &Snapshot{}
	if scopeID != "" {
		spec, err := s.Store.LoadSpec(scopeID)
		if err != nil {
			return nil, err
		}
		plan, err := s.Store.LoadPlan(scopeID)
		if err != nil {
			return nil, err
		}
		snap.Specs = []work.Spec{spec}
		snap.Plans = []*work.Plan{plan}
	} else {
		specs, skips, err := s.Store.ListSpecs()
		if err != nil {
			return nil, err
		}
		snap.Skipped = skips
		for _, spec := range specs {
			plan, err := s.Store.LoadPlan(spec.ID)
			if err != nil {
				if errors.Is(err, work.ErrMalformedDocument) || errors.Is(err, work.ErrNotFound) {
					fmt.Fprintf(s.logger(), "warning: skipping plan for %s: %v\n", spec.ID, err)
					skip := work.Skip{ID: spec.ID, Err: err}
					var verr *work.ValidationError
					if errors.As(err, &verr) {
						skip.Path = verr.Path
					}
					snap.Skipped = append(snap.Skipped, skip)
					continue
				}
				return nil, err
			}
			snap.Specs = append(snap.Specs, spec)
			snap.Plans = append(snap.Plans, plan)
		}
	}
	snap.Resolver = NewResolver(snap.Plans...)
	return snap, nil
}

// eligible splits the unblocked items into those that may run now and the
// earliest time a cooling item becomes eligible.
func (s *Scheduler) eligible(r *Resolver) ([]Candidate, *time.Time, bool) {
	now := s.now()
	unblocked := r.Unblocked()
	var ready []Candidate
	var retryAt *time.Time
	for _, c := range unblocked {
		if c.Item.RetryAfter != nil && c.Item.RetryAfter.After(now) {
			if retryAt == nil || c.Item.RetryAfter.Before(*retryAt) {
				t := *c.Item.RetryAfter
				retryAt = &t
			}
			continue
		}
		ready = append(ready, c)
	}
	sort.Slice(ready, func(i, j int) bool {
		if ready[i].Item.Priority != ready[j].Item.Priority {
			return ready[i].Item.Priority < ready[j].Item.Priority
		}
		return ready[i].Key < ready[j].Key
	})
	return ready, retryAt, len(unblocked) > 0
}

func diagnose(r *Resolver, retryAt *time.Time, anyUnblocked bool) Diagnosis {
	switch {
	case anyUnblocked:
		return Diagnosis{Reason: ReasonCoolingDown, RetryAt: retryAt, InProgress: r.InProgress()}
	case r.AllDone():
		return Diagnosis{Reason: ReasonAllDone}
	default:
		return Diagnosis{
			Reason:     ReasonBlocked,
			Blockers:   r.Blockers(),
			Poisoned:   r.Poisoned(),
			InProgress: r.InProgress(),
		}
	}
}

// SelectNext returns the most urgent unblocked item in scope, breaking ties
// by ref. It does not modify the store.
func (s *Scheduler) SelectNext(ctx context.Context, scopeID string) (Selection, error) {
	snap, err := s.Snapshot(ctx, scopeID)
	if err != nil {
		return Selection{}, err
	}
	ready, retryAt, anyUnblocked := s.eligible(snap.Resolver)
	if len(ready) == 0 {
		return Selection{Diagnosis: diagnose(snap.Resolver, retryAt, anyUnblocked), Skipped: snap.Skipped}, nil
	}
	first := ready[0]
	return Selection{Item: &first, Skipped: snap.Skipped}, nil
}

// SelectWave returns every unblocked item sharing the minimum priority,
// ordered by ref, along with pairs whose file scopes overlap. It does not
// modify the store.
func (s *Scheduler) SelectWave(ctx context.Context, scopeID string) (Wave, error) {
	snap, err := s.Snapshot(ctx, scopeID)
	if err != nil {
		return Wave{}, err
	}
	ready, retryAt, anyUnblocked := s.eligible(snap.Resolver)
	if len(ready) == 0 {
		return Wave{Diagnosis: diagnose(snap.Resolver, retryAt, anyUnblocked), Skipped: snap.Skipped}, nil
	}
	w := Wave{Priority: ready[0].Item.Priority, Skipped: snap.Skipped}
	for _, c := range ready {
		if c.Item.Priority != w.Priority {
			break
		}
		w.Items = append(w.Items, c)
	}
	w.Conflicts = conflicts(w.Items)
	return w, nil
}

func conflicts(items []Candidate) []Conflict {
	var out []Conflict
	for i := 0; i < len(items); i++ {
		for j := i + 1; j < len(items); j++ {
			if m, ok := scope.Overlap(items[i].Item.Scope, items[j].Item.Scope); ok {
				out = append(out, Conflict{A: items[i].Key, B: items[j].Key, Match: m})
			}
		}
	}
	return out
}

func (s *Scheduler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Scheduler) maxAttempts() int {
	if s.MaxAttempts > 0 {
		return s.MaxAttempts
	}
	return DefaultMaxAttempts
}

// logger returns the effective log writer (io.Discard if Logger is nil).
func (s *Scheduler) logger() io.Writer {
	if s.Logger != nil {
		return s.Logger
	}
	return io.Discard
}

func (s *Scheduler) emit(kind, spec, ref string, from, to work.Status, reason string) {
	if err := s.Telemetry.State(kind, spec, ref, string(from), string(to), reason); err != nil {
		fmt.Fprintf(s.logger(), "warning: %v\n", err)
	}
}
