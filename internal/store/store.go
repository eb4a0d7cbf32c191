// Package store persists tempo documents as plain files: spec frontmatter
// and JSON plans under specs/, log entries under log/, and the generated
// knowledge index. All filesystem access goes through an afero.Fs so the
// store runs unchanged against memory in tests.
package store

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// DefaultDir is the conventional store directory relative to the work dir.
const DefaultDir = ".tempo"

const (
	specsDir  = "specs"
	logDir    = "log"
	indexFile = "index.toml"
	lockFile  = ".lock"
)

// FileStore reads and writes documents below a single root directory.
type FileStore struct {
	fs   afero.Fs
	root string
	lock Locker

	// Logger receives warnings about skipped documents. Nil discards them.
	Logger io.Writer
}

// Option configures a FileStore.
type Option func(*FileStore)

// WithLocker replaces the store lock.
func WithLocker(l Locker) Option {
	return func(s *FileStore) { s.lock = l }
}

// WithLogger sets the warning writer.
func WithLogger(w io.Writer) Option {
	return func(s *FileStore) { s.Logger = w }
}

// New returns a store rooted at root on fs. Without WithLocker the store is
// guarded by an in-process lock only.
func New(fs afero.Fs, root string, opts ...Option) *FileStore {
	s := &FileStore{fs: fs, root: root}
	for _, o := range opts {
		o(s)
	}
	if s.lock == nil {
		s.lock = newMutexLocker()
	}
	return s
}

// Open returns a store on the OS filesystem, guarded by an advisory file
// lock at <root>/.lock so separate processes serialize their writes.
func Open(root string, opts ...Option) (*FileStore, error) {
	fs := afero.NewOsFs()
	if err := fs.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating store directory %s: %w", root, err)
	}
	opts = append([]Option{WithLocker(NewFileLocker(filepath.Join(root, lockFile)))}, opts...)
	return New(fs, root, opts...), nil
}

// Root returns the store directory.
func (s *FileStore) Root() string {
	return s.root
}

// Fs returns the filesystem the store writes to.
func (s *FileStore) Fs() afero.Fs {
	return s.fs
}

func (s *FileStore) specPath(id string) string {
	return filepath.Join(s.root, specsDir, id+".md")
}

func (s *FileStore) planPath(id string) string {
	return filepath.Join(s.root, specsDir, id+".json")
}

// EntryPath returns the file a log entry is stored in.
func (s *FileStore) EntryPath(id string) string {
	return filepath.Join(s.root, logDir, id+".md")
}

// IndexPath returns the location of the generated knowledge index.
func (s *FileStore) IndexPath() string {
	return filepath.Join(s.root, logDir, indexFile)
}

// writeAtomic writes data to a temp file next to path and renames it into
// place, creating parent directories as needed.
func (s *FileStore) writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}
	tmp := path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing temp file %s: %w", tmp, err)
	}
	if err := s.fs.Rename(tmp, path); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("renaming %s: %w", path, err)
	}
	return nil
}

// readFile reads path, mapping a missing file to notFound.
func (s *FileStore) readFile(path string, notFound error) ([]byte, error) {
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, notFound
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}

// listIDs returns the base names (without ext) of files in dir with the given
// extension, sorted. A missing directory yields no ids.
func (s *FileStore) listIDs(dir, ext string) ([]string, error) {
	infos, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}
	var ids []string
	for _, fi := range infos {
		if fi.IsDir() || filepath.Ext(fi.Name()) != ext {
			continue
		}
		ids = append(ids, fi.Name()[:len(fi.Name())-len(ext)])
	}
	return ids, nil
}

func (s *FileStore) warnf(format string, args ...any) {
	if s.Logger != nil {
		fmt.Fprintf(s.Logger, "warning: "+format+"\n", args...)
	}
}
