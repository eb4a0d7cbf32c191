// Package watch reports changes to the documents in a tempo store so that
// long-running callers can recompute selections after hand edits.
package watch

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Debounce is how long a file must be quiet before its change is reported.
const Debounce = 100 * time.Millisecond

// ChangeKind describes the type of file change detected.
type ChangeKind int

const (
	ChangeModified ChangeKind = iota // document written or created
	ChangeRemoved                    // document deleted
)

// String returns "modified" or "removed".
func (k ChangeKind) String() string {
	if k == ChangeRemoved {
		return "removed"
	}
	return "modified"
}

// Doc identifies which kind of document changed.
type Doc string

const (
	DocSpec  Doc = "spec"
	DocPlan  Doc = "plan"
	DocEntry Doc = "entry"
)

// Change represents a detected change in the store.
type Change struct {
	Kind ChangeKind
	Doc  Doc
	ID   string // document id, derived from the file name
	File string
}

// Watcher monitors the specs/ and log/ directories of a store using fsnotify.
type Watcher struct {
	Root    string
	Changes <-chan Change // Read-only external channel

	changes  chan Change // Internal write channel
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	watcher  *fsnotify.Watcher
}

// NewWatcher creates a new watcher for the store rooted at root.
func NewWatcher(root string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ch := make(chan Change, 16)
	return &Watcher{
		Root:    root,
		Changes: ch,
		changes: ch,
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
		watcher: fw,
	}, nil
}

// Start begins watching. Both document directories are created if missing.
func (w *Watcher) Start() error {
	for _, sub := range []string{"specs", "log"} {
		dir := filepath.Join(w.Root, sub)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		if err := w.watcher.Add(dir); err != nil {
			return err
		}
	}
	go w.loop()
	return nil
}

// Stop closes the watcher and channels. It does not wait for Changes to be
// drained: changes that do not fit in its buffer are dropped. Stop may be
// called more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.quit)
		w.watcher.Close()
		<-w.done // Wait for loop to exit
		close(w.changes)
	})
}

func (w *Watcher) loop() {
	defer close(w.done)

	pending := make(map[string]time.Time)
	ticker := time.NewTicker(Debounce)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				for file := range pending {
					if !w.emitChange(file) {
						break
					}
				}
				return
			}
			if _, _, ok := classify(event.Name); !ok {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
				event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				pending[event.Name] = time.Now()
			}

		case <-ticker.C:
			now := time.Now()
			for file, t := range pending {
				if now.Sub(t) >= Debounce {
					w.emitChange(file)
					delete(pending, file)
				}
			}

		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			// Watch errors are non-fatal.
		}
	}
}

// classify maps a file name to the document it stores. Temp files, the
// index and anything else are ignored.
func classify(name string) (Doc, string, bool) {
	base := filepath.Base(name)
	dir := filepath.Base(filepath.Dir(name))
	ext := filepath.Ext(base)
	id := strings.TrimSuffix(base, ext)
	if id == "" || strings.HasPrefix(base, ".") {
		return "", "", false
	}
	switch {
	case dir == "specs" && ext == ".md":
		return DocSpec, id, true
	case dir == "specs" && ext == ".json":
		return DocPlan, id, true
	case dir == "log" && ext == ".md":
		return DocEntry, id, true
	}
	return "", "", false
}

// emitChange delivers the change for file, giving up once Stop has been
// called and the buffer is full. It reports whether the change was sent.
func (w *Watcher) emitChange(file string) bool {
	doc, id, _ := classify(file)
	kind := ChangeModified
	if _, err := os.Stat(file); errors.Is(err, os.ErrNotExist) {
		kind = ChangeRemoved
	}
	c := Change{Kind: kind, Doc: doc, ID: id, File: file}
	select {
	case w.changes <- c:
		return true
	default:
	}
	select {
	case w.changes <- c:
		return true
	case <-w.quit:
		return false
	}
}
