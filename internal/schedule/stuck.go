package schedule

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/papapumpkin/tempo/internal/claims"
	"github.com/papapumpkin/tempo/internal/dag"
	"github.com/papapumpkin/tempo/internal/work"
)

// ClaimLister is implemented by reservers that can enumerate their claims.
type ClaimLister interface {
	All(ctx context.Context) ([]claims.Claim, error)
	ClaimsFor(ctx context.Context, ref string) ([]string, error)
}

// StuckItem describes an in-progress item or a reservation that appears
// abandoned.
type StuckItem struct {
	Kind    string        `json:"kind"` // "item" or "claim"
	ID      string        `json:"id"`
	Age     time.Duration `json:"age"`
	Details string        `json:"details"`
}

// Stuck reports items that have been in progress for at least olderThan,
// and claims whose owner is no longer in progress. A stuck item's details
// name the patterns it still holds. Nothing is changed: failing a stuck item
// is the caller's decision.
func (s *Scheduler) Stuck(ctx context.Context, scopeID string, olderThan time.Duration) ([]StuckItem, error) {
	snap, err := s.Snapshot(ctx, scopeID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	lister, _ := s.Reserver.(ClaimLister)
	var out []StuckItem
	running := make(map[string]bool)
	for _, p := range snap.Plans {
		for _, it := range p.Items() {
			if it.Status != work.StatusInProgress {
				continue
			}
			ref := qualify(p.SpecID, it.ID)
			running[ref] = true
			if p.IsContainer(it.ID) {
				continue
			}
			age := now.Sub(it.Updated)
			if age < olderThan {
				continue
			}
			details := fmt.Sprintf("in progress since %s", it.Updated.Format(time.RFC3339))
			if it.Attempts > 0 {
				details += fmt.Sprintf(" (attempt %d)", it.Attempts+1)
			}
			if lister != nil {
				held, err := lister.ClaimsFor(ctx, ref)
				if err != nil {
					return nil, fmt.Errorf("listing claims for %s: %w", ref, err)
				}
				if len(held) > 0 {
					details += "; holds " + strings.Join(held, ", ")
				}
			}
			out = append(out, StuckItem{Kind: "item", ID: ref, Age: age, Details: details})
		}
	}

	if lister == nil {
		return out, nil
	}
	all, err := lister.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing claims: %w", err)
	}
	for _, c := range all {
		if running[c.Owner] {
			continue
		}
		if scopeID != "" && !strings.HasPrefix(c.Owner, scopeID+"/") {
			continue
		}
		out = append(out, StuckItem{
			Kind:    "claim",
			ID:      c.Pattern,
			Age:     now.Sub(c.ClaimedAt),
			Details: fmt.Sprintf("owner %s is not in progress", c.Owner),
		})
	}
	return out, nil
}

// Layers groups a spec's items into dependency layers: every item's
// dependencies lie in earlier layers. A poisoned spec has no layering and
// returns work.ErrCycleDetected.
func (s *Scheduler) Layers(ctx context.Context, specID string) ([]dag.Layer, error) {
	snap, err := s.Snapshot(ctx, specID)
	if err != nil {
		return nil, err
	}
	if cycle, ok := snap.Resolver.Cycle(specID); ok {
		return nil, fmt.Errorf("%w: %s", work.ErrCycleDetected, strings.Join(cycle, " -> "))
	}
	return snap.Resolver.Graph(specID).Layers()
}
