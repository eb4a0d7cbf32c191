package knowledge

import (
	"context"
	"errors"
	"path"
	"slices"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/papapumpkin/tempo/internal/scope"
	"github.com/papapumpkin/tempo/internal/telemetry"
	"github.com/papapumpkin/tempo/internal/work"
)

// summaryWidth bounds index summaries, in runes.
const summaryWidth = 80

// RebuildReport counts what Rebuild did.
type RebuildReport struct {
	Valid   int         `json:"valid"`
	Pruned  []string    `json:"pruned,omitempty"`
	Deleted []string    `json:"deleted,omitempty"`
	Skipped []work.Skip `json:"skipped,omitempty"`
	Index   *work.Index `json:"-"`
}

// Rebuild garbage-collects entries against the current tree. An entry whose
// anchors are all gone is deleted; one with some anchors gone is rewritten
// with the remaining anchors; the rest are counted valid. A non-empty
// within limits the pass to entries with an anchor overlapping that path.
// The index is regenerated from every surviving entry.
func (t *Tracker) Rebuild(ctx context.Context, within string) (RebuildReport, error) {
	var report RebuildReport
	entries, skips, err := t.Store.ListEntries()
	if err != nil {
		return report, err
	}
	report.Skipped = skips

	var kept []work.LogEntry
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if within != "" && !anchoredWithin(e, within) {
			kept = append(kept, e)
			continue
		}

		var present []string
		var failed error
		for _, a := range e.Anchors {
			ok, err := t.Oracle.Exists(a)
			if err != nil {
				failed = err
				break
			}
			if ok {
				present = append(present, a)
			}
		}

		switch {
		case failed != nil:
			t.warnf("skipping log entry %s: %v", e.ID, failed)
			report.Skipped = append(report.Skipped, work.Skip{Path: t.Store.EntryPath(e.ID), ID: e.ID, Err: failed})
			kept = append(kept, e)
		case len(present) == 0:
			if err := t.Store.DeleteEntry(ctx, e.ID); err != nil {
				if !errors.Is(err, work.ErrNotFound) {
					return report, err
				}
				report.Skipped = append(report.Skipped, work.Skip{Path: t.Store.EntryPath(e.ID), ID: e.ID, Err: err})
				continue
			}
			report.Deleted = append(report.Deleted, e.ID)
		case len(present) < len(e.Anchors):
			gone := missingAnchors(e.Anchors, present)
			err := t.Store.UpdateEntry(ctx, e.ID, func(cur *work.LogEntry) error {
				cur.Anchors = slices.DeleteFunc(cur.Anchors, func(a string) bool { return gone[a] })
				e = *cur
				return nil
			})
			if err != nil {
				return report, err
			}
			report.Pruned = append(report.Pruned, e.ID)
			kept = append(kept, e)
		default:
			report.Valid++
			kept = append(kept, e)
		}
	}

	idx := BuildIndex(kept)
	idx.Generated = t.now().UTC()
	if err := t.Store.SaveIndex(ctx, idx); err != nil {
		return report, err
	}
	report.Index = idx
	t.emit(telemetry.Event{Kind: telemetry.KindRebuild, Data: map[string]int{
		"valid":   report.Valid,
		"pruned":  len(report.Pruned),
		"deleted": len(report.Deleted),
		"skipped": len(report.Skipped),
	}})
	return report, nil
}

// Reindex regenerates the index from the stored entries without touching
// them.
func (t *Tracker) Reindex(ctx context.Context) (*work.Index, []work.Skip, error) {
	entries, skips, err := t.Store.ListEntries()
	if err != nil {
		return nil, nil, err
	}
	idx := BuildIndex(entries)
	idx.Generated = t.now().UTC()
	if err := t.Store.SaveIndex(ctx, idx); err != nil {
		return nil, nil, err
	}
	return idx, skips, nil
}

func anchoredWithin(e work.LogEntry, within string) bool {
	for _, a := range e.Anchors {
		if scope.Patterns(a, within) {
			return true
		}
	}
	return false
}

// BuildIndex groups entries by the directory of each anchor. Each directory
// lists its entries once, sorted by id. Generated is left zero.
func BuildIndex(entries []work.LogEntry) *work.Index {
	idx := &work.Index{Dirs: make(map[string][]work.IndexEntry)}
	for _, e := range entries {
		summary := Summary(e.Content)
		seen := make(map[string]bool)
		for _, a := range e.Anchors {
			dir := path.Dir(scope.Normalize(a))
			if seen[dir] {
				continue
			}
			seen[dir] = true
			idx.Dirs[dir] = append(idx.Dirs[dir], work.IndexEntry{ID: e.ID, Summary: summary})
		}
	}
	for _, list := range idx.Dirs {
		sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	}
	return idx
}

// Summary returns the first non-blank line of content with heading markers
// removed, truncated to a fixed width.
func Summary(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "#"))
		if line == "" {
			continue
		}
		if utf8.RuneCountInString(line) > summaryWidth {
			r := []rune(line)
			line = strings.TrimSpace(string(r[:summaryWidth-1])) + "…"
		}
		return line
	}
	return ""
}

func missingAnchors(all, present []string) map[string]bool {
	gone := make(map[string]bool)
	for _, a := range all {
		if !slices.Contains(present, a) {
			gone[a] = true
		}
	}
	return gone
}
