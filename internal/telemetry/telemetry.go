// Package telemetry records every state change tempo makes as one JSON
// object per line: item and spec transitions, dependency edits, scope
// reservations, and knowledge classifications. The stream makes a store's
// history auditable after the fact.
package telemetry

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileName is the stream's file name inside the store directory.
const FileName = "events.jsonl"

// Event kinds identify the type of telemetry event.
const (
	KindItemAdded       = "item_added"
	KindItemState       = "item_state"
	KindSpecCreated     = "spec_created"
	KindSpecState       = "spec_state"
	KindDependencyAdded = "dependency_added"
	KindClaimAcquired   = "claim_acquired"
	KindClaimReleased   = "claim_released"
	KindEntryRecorded   = "entry_recorded"
	KindEntryClassified = "entry_classified"
	KindEntryVerified   = "entry_verified"
	KindRebuild         = "rebuild"
)

// Event represents a single telemetry record.
type Event struct {
	Timestamp time.Time `json:"ts"`
	Kind      string    `json:"kind"`
	Spec      string    `json:"spec,omitempty"`
	Ref       string    `json:"ref,omitempty"`
	Data      any       `json:"data,omitempty"`
}

// Transition is the Data payload of state events.
type Transition struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason,omitempty"`
}

// Emitter writes telemetry events as JSONL. It is safe for concurrent use by
// multiple goroutines. A nil *Emitter is a valid no-op emitter.
type Emitter struct {
	w   io.Writer
	c   io.Closer
	enc *json.Encoder
	mu  sync.Mutex
	now func() time.Time
}

// NewEmitter opens path for appending, creating it and its directory if
// needed.
func NewEmitter(path string) (*Emitter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("telemetry: open %s: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("telemetry: open %s: %w", path, err)
	}
	e := NewWriterEmitter(f)
	e.c = f
	return e, nil
}

// NewWriterEmitter returns an emitter that writes to w. Close does not close w.
func NewWriterEmitter(w io.Writer) *Emitter {
	return &Emitter{w: w, enc: json.NewEncoder(w), now: time.Now}
}

// Emit writes a single event. A zero Timestamp is set to the current time.
// Calling Emit on a nil Emitter is a no-op.
func (e *Emitter) Emit(evt Event) error {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if evt.Timestamp.IsZero() {
		evt.Timestamp = e.now().UTC()
	}
	if err := e.enc.Encode(evt); err != nil {
		return fmt.Errorf("telemetry: encode event: %w", err)
	}
	return nil
}

// State emits a transition event for ref.
func (e *Emitter) State(kind, spec, ref, from, to, reason string) error {
	return e.Emit(Event{Kind: kind, Spec: spec, Ref: ref, Data: Transition{From: from, To: to, Reason: reason}})
}

// Close closes the underlying file, if the emitter owns one. Calling Close on
// a nil Emitter is a no-op.
func (e *Emitter) Close() error {
	if e == nil || e.c == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.c.Close(); err != nil {
		return fmt.Errorf("telemetry: close: %w", err)
	}
	return nil
}

// Read decodes every event in r. Blank lines are ignored; the first
// undecodable line is an error naming its line number.
func Read(r io.Reader) ([]Event, error) {
	var events []Event
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Bytes()
		if len(text) == 0 {
			continue
		}
		var evt Event
		if err := json.Unmarshal(text, &evt); err != nil {
			return events, fmt.Errorf("telemetry: line %d: %w", line, err)
		}
		events = append(events, evt)
	}
	if err := scanner.Err(); err != nil {
		return events, fmt.Errorf("telemetry: read: %w", err)
	}
	return events, nil
}
