package telemetry

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestNewEmitter_CreatesFileAndDir(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), ".tempo", FileName)

	em, err := NewEmitter(path)
	if err != nil {
		t.Fatalf("NewEmitter(%q): %v", path, err)
	}
	defer em.Close()

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected file to exist at %q: %v", path, err)
	}
}

func TestNewEmitter_ErrorOnBadPath(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := NewEmitter(filepath.Join(blocker, "events.jsonl"))
	if err == nil {
		t.Fatal("expected error for bad path, got nil")
	}
	if !strings.Contains(err.Error(), "telemetry: open") {
		t.Errorf("expected wrapped error, got: %v", err)
	}
}

func TestEmit_RoundTrip(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	em := NewWriterEmitter(&buf)

	events := []Event{
		{Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), Kind: KindSpecCreated, Spec: "auth"},
		{Timestamp: time.Date(2026, 1, 1, 0, 1, 0, 0, time.UTC), Kind: KindItemState, Spec: "auth", Ref: "auth/login", Data: Transition{From: "pending", To: "in_progress"}},
		{Timestamp: time.Date(2026, 1, 1, 0, 2, 0, 0, time.UTC), Kind: KindRebuild},
	}
	for _, evt := range events {
		if err := em.Emit(evt); err != nil {
			t.Fatalf("Emit: %v", err)
		}
	}

	decoded, err := Read(&buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(decoded) != len(events) {
		t.Fatalf("expected %d events, got %d", len(events), len(decoded))
	}
	for i, got := range decoded {
		if got.Kind != events[i].Kind || got.Ref != events[i].Ref || !got.Timestamp.Equal(events[i].Timestamp) {
			t.Errorf("event %d = %+v, want %+v", i, got, events[i])
		}
	}
	data, ok := decoded[1].Data.(map[string]any)
	if !ok || data["to"] != "in_progress" {
		t.Errorf("transition data = %#v", decoded[1].Data)
	}
}

func TestEmit_StampsZeroTimestamp(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	em := NewWriterEmitter(&buf)
	fixed := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	em.now = func() time.Time { return fixed }

	if err := em.State(KindItemState, "auth", "auth/login", "in_progress", "blocked", "boom"); err != nil {
		t.Fatalf("State: %v", err)
	}
	events, err := Read(&buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(events) != 1 || !events[0].Timestamp.Equal(fixed) {
		t.Fatalf("events = %+v, want one event at %v", events, fixed)
	}
}

func TestEmit_ConcurrentSafety(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "concurrent.jsonl")

	em, err := NewEmitter(path)
	if err != nil {
		t.Fatalf("NewEmitter: %v", err)
	}

	const n = 100
	var wg sync.WaitGroup
	wg.Add(n)
	for i := range n {
		go func(idx int) {
			defer wg.Done()
			evt := Event{Kind: KindItemState, Ref: "s/concurrent", Data: map[string]int{"idx": idx}}
			if err := em.Emit(evt); err != nil {
				t.Errorf("Emit from goroutine %d: %v", idx, err)
			}
		}(i)
	}
	wg.Wait()

	if err := em.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()
	events, err := Read(f)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(events) != n {
		t.Fatalf("expected %d events, got %d", n, len(events))
	}
}

func TestNilEmitter_NoOp(t *testing.T) {
	t.Parallel()
	var em *Emitter

	if err := em.Emit(Event{Kind: KindRebuild}); err != nil {
		t.Errorf("nil Emit: %v", err)
	}
	if err := em.State(KindItemState, "s", "s/a", "pending", "done", ""); err != nil {
		t.Errorf("nil State: %v", err)
	}
	if err := em.Close(); err != nil {
		t.Errorf("nil Close: %v", err)
	}
}

func TestEmit_AppendsToExistingFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "append.jsonl")

	for _, kind := range []string{KindSpecCreated, KindSpecState} {
		em, err := NewEmitter(path)
		if err != nil {
			t.Fatalf("NewEmitter: %v", err)
		}
		if err := em.Emit(Event{Kind: kind, Spec: "auth"}); err != nil {
			t.Fatalf("Emit: %v", err)
		}
		em.Close()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
}

func TestRead_BadLine(t *testing.T) {
	t.Parallel()
	in := `{"kind":"rebuild","ts":"2026-01-01T00:00:00Z"}` + "\n\nnot json\n"
	events, err := Read(strings.NewReader(in))
	if err == nil || !strings.Contains(err.Error(), "line 3") {
		t.Fatalf("Read error = %v, want line 3 error", err)
	}
	if len(events) != 1 {
		t.Errorf("events before the bad line = %d, want 1", len(events))
	}
}

func TestEventKinds_AreDistinct(t *testing.T) {
	t.Parallel()
	kinds := []string{
		KindItemAdded,
		KindItemState,
		KindSpecCreated,
		KindSpecState,
		KindDependencyAdded,
		KindClaimAcquired,
		KindClaimReleased,
		KindEntryRecorded,
		KindEntryClassified,
		KindEntryVerified,
		KindRebuild,
	}
	seen := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		if k == "" {
			t.Errorf("empty kind constant found")
		}
		if seen[k] {
			t.Errorf("duplicate kind: %q", k)
		}
		seen[k] = true
	}
}

func TestEvent_OmitsEmptyFields(t *testing.T) {
	t.Parallel()
	evt := Event{
		Timestamp: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Kind:      KindRebuild,
	}
	data, err := json.Marshal(evt)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	s := string(data)
	for _, field := range []string{`"spec"`, `"ref"`, `"data"`} {
		if strings.Contains(s, field) {
			t.Errorf("expected %s to be omitted, got: %s", field, s)
		}
	}
}
