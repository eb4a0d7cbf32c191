// Package knowledge tracks whether log entries are still trustworthy. An
// entry is anchored to source paths; when an anchor changes after the entry
// was written or last verified the entry is stale, and when an anchor
// disappears it is orphaned.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/papapumpkin/tempo/internal/scope"
	"github.com/papapumpkin/tempo/internal/telemetry"
	"github.com/papapumpkin/tempo/internal/work"
)

// Freshness is the classification of a log entry.
type Freshness string

const (
	Fresh    Freshness = "fresh"
	Stale    Freshness = "stale"
	Orphaned Freshness = "orphaned"
	// Unknown means a timestamp could not be resolved. It is never
	// trustworthy.
	Unknown Freshness = "unknown"
)

// Store is the log entry access the tracker needs.
type Store interface {
	ListEntries() ([]work.LogEntry, []work.Skip, error)
	LoadEntry(id string) (work.LogEntry, error)
	CreateEntry(ctx context.Context, e work.LogEntry) error
	UpdateEntry(ctx context.Context, id string, fn func(*work.LogEntry) error) error
	DeleteEntry(ctx context.Context, id string) error
	EntryPath(id string) string
	SaveIndex(ctx context.Context, idx *work.Index) error
}

// Tracker classifies and maintains log entries.
type Tracker struct {
	Store     Store
	Oracle    *Oracle
	Telemetry *telemetry.Emitter
	Logger    io.Writer
	Now       func() time.Time
}

// Classification is the outcome of Classify for one entry.
type Classification struct {
	ID        string      `json:"id"`
	State     Freshness   `json:"state"`
	EntryTime time.Time   `json:"entry_time,omitzero"`
	Anchors   []AnchorRef `json:"anchors"`
	// Missing lists anchors that no longer exist.
	Missing []string `json:"missing,omitempty"`
	// Newer lists anchors changed after the entry time.
	Newer []string `json:"newer,omitempty"`
	Error string   `json:"error,omitempty"`
}

// Classify resolves the entry time and every anchor of id. Any missing
// anchor makes the entry Orphaned; otherwise an unresolvable timestamp makes
// it Unknown; otherwise it is Stale when an anchor is newer than the entry
// time and Fresh when none is.
func (t *Tracker) Classify(ctx context.Context, id string) (Classification, error) {
	e, err := t.Store.LoadEntry(id)
	if err != nil {
		return Classification{}, err
	}
	c := t.classify(ctx, e)
	t.emit(telemetry.Event{Kind: telemetry.KindEntryClassified, Ref: id, Data: map[string]string{"state": string(c.State)}})
	return c, nil
}

// ClassifyAll classifies every loadable entry, sorted by id. Entries that
// fail to load are returned as skips.
func (t *Tracker) ClassifyAll(ctx context.Context) ([]Classification, []work.Skip, error) {
	entries, skips, err := t.Store.ListEntries()
	if err != nil {
		return nil, nil, err
	}
	out := make([]Classification, 0, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		out = append(out, t.classify(ctx, e))
	}
	return out, skips, nil
}

func (t *Tracker) classify(ctx context.Context, e work.LogEntry) Classification {
	c := Classification{ID: e.ID}
	var errs []error

	entryPath := t.Store.EntryPath(e.ID)
	entryTime, ok, err := t.Oracle.LastModified(ctx, entryPath)
	switch {
	case err != nil:
		errs = append(errs, err)
	case !ok:
		errs = append(errs, fmt.Errorf("%w: entry file %s vanished", work.ErrTimestampUnresolvable, entryPath))
	default:
		c.EntryTime = entryTime
	}
	if e.VerifiedAt != nil && e.VerifiedAt.After(c.EntryTime) {
		c.EntryTime = *e.VerifiedAt
	}

	var newest time.Time
	for _, a := range e.Anchors {
		ref, err := t.Oracle.Resolve(ctx, a)
		c.Anchors = append(c.Anchors, ref)
		switch {
		case err != nil:
			errs = append(errs, err)
		case !ref.Exists:
			c.Missing = append(c.Missing, a)
		case ref.Time.After(newest):
			newest = ref.Time
		}
	}

	switch {
	case len(c.Missing) > 0:
		c.State = Orphaned
	case len(errs) > 0:
		c.State = Unknown
		c.Error = errors.Join(errs...).Error()
	case newest.After(c.EntryTime):
		c.State = Stale
		for _, ref := range c.Anchors {
			if ref.Time.After(c.EntryTime) {
				c.Newer = append(c.Newer, ref.Path)
			}
		}
	default:
		c.State = Fresh
	}
	return c
}

// Verify stamps verified_at with the current time and rewrites the entry.
// Content and anchors are unchanged, including edits that land while the
// stamp is written.
func (t *Tracker) Verify(ctx context.Context, id string) (work.LogEntry, error) {
	var e work.LogEntry
	err := t.Store.UpdateEntry(ctx, id, func(cur *work.LogEntry) error {
		now := t.now().UTC()
		cur.VerifiedAt = &now
		e = *cur
		return nil
	})
	if err != nil {
		return work.LogEntry{}, err
	}
	t.emit(telemetry.Event{Kind: telemetry.KindEntryVerified, Ref: id})
	return e, nil
}

// Record creates a new entry. An empty id gets a random UUID. At least one
// anchor is required.
func (t *Tracker) Record(ctx context.Context, content string, anchors []string, id string) (work.LogEntry, error) {
	if id == "" {
		id = uuid.NewString()
	}
	var clean []string
	seen := make(map[string]bool)
	for _, a := range anchors {
		n := scope.Normalize(a)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		clean = append(clean, n)
	}
	path := t.Store.EntryPath(id)
	if len(clean) == 0 {
		return work.LogEntry{}, &work.ValidationError{Path: path, Field: "anchors", Err: errors.New("at least one anchor is required")}
	}
	e := work.LogEntry{ID: id, Anchors: clean, Content: content}
	if err := t.Store.CreateEntry(ctx, e); err != nil {
		return work.LogEntry{}, err
	}
	t.emit(telemetry.Event{Kind: telemetry.KindEntryRecorded, Ref: id, Data: map[string]any{"anchors": clean}})
	return e, nil
}

func (t *Tracker) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

func (t *Tracker) warnf(format string, args ...any) {
	if t.Logger != nil {
		fmt.Fprintf(t.Logger, "warning: "+format+"\n", args...)
	}
}

func (t *Tracker) emit(evt telemetry.Event) {
	if err := t.Telemetry.Emit(evt); err != nil {
		t.warnf("%v", err)
	}
}
