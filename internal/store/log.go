package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/papapumpkin/tempo/internal/work"
)

// LoadEntry reads and validates log/<id>.md.
func (s *FileStore) LoadEntry(id string) (work.LogEntry, error) {
	path := s.EntryPath(id)
	data, err := s.readFile(path, fmt.Errorf("log entry %q: %w", id, work.ErrNotFound))
	if err != nil {
		return work.LogEntry{}, err
	}
	var entry work.LogEntry
	body, err := parseFrontmatter(data, &entry)
	if err != nil {
		return work.LogEntry{}, &work.ValidationError{Path: path, Err: err}
	}
	entry.Content = body
	if err := work.Validate(path, &entry); err != nil {
		return work.LogEntry{}, err
	}
	if entry.ID != id {
		return work.LogEntry{}, &work.ValidationError{Path: path, Field: "id",
			Err: fmt.Errorf("id %q does not match file name", entry.ID)}
	}
	return entry, nil
}

// ListEntries returns every loadable log entry sorted by id. Entries that
// fail to load are returned as skips.
func (s *FileStore) ListEntries() ([]work.LogEntry, []work.Skip, error) {
	ids, err := s.listIDs(s.rootJoin(logDir), ".md")
	if err != nil {
		return nil, nil, err
	}
	var entries []work.LogEntry
	var skips []work.Skip
	for _, id := range ids {
		e, err := s.LoadEntry(id)
		if err != nil {
			if !errors.Is(err, work.ErrMalformedDocument) && !errors.Is(err, work.ErrNotFound) {
				return nil, nil, err
			}
			s.warnf("skipping log entry %s: %v", id, err)
			skips = append(skips, work.Skip{Path: s.EntryPath(id), ID: id, Err: err})
			continue
		}
		entries = append(entries, e)
	}
	return entries, skips, nil
}

// CreateEntry writes a new log entry. It fails if the id is taken.
func (s *FileStore) CreateEntry(ctx context.Context, e work.LogEntry) error {
	data, err := s.renderEntry(&e)
	if err != nil {
		return err
	}
	path := s.EntryPath(e.ID)
	return s.withLock(ctx, func() error {
		exists, err := s.exists(path)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("log entry %q already exists", e.ID)
		}
		return s.writeAtomic(path, data)
	})
}

// UpdateEntry re-reads the entry under the store lock, applies fn and writes
// the result. Returning an error from fn aborts the write. The id cannot be
// changed.
func (s *FileStore) UpdateEntry(ctx context.Context, id string, fn func(*work.LogEntry) error) error {
	return s.withLock(ctx, func() error {
		e, err := s.LoadEntry(id)
		if err != nil {
			return err
		}
		if err := fn(&e); err != nil {
			return err
		}
		e.ID = id
		data, err := s.renderEntry(&e)
		if err != nil {
			return err
		}
		return s.writeAtomic(s.EntryPath(id), data)
	})
}

func (s *FileStore) renderEntry(e *work.LogEntry) ([]byte, error) {
	if err := work.Validate(s.EntryPath(e.ID), e); err != nil {
		return nil, err
	}
	data, err := renderFrontmatter(e, e.Content)
	if err != nil {
		return nil, fmt.Errorf("log entry %q: %w", e.ID, err)
	}
	return data, nil
}

// DeleteEntry removes a log entry file.
func (s *FileStore) DeleteEntry(ctx context.Context, id string) error {
	path := s.EntryPath(id)
	return s.withLock(ctx, func() error {
		if err := s.fs.Remove(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("log entry %q: %w", id, work.ErrNotFound)
			}
			return fmt.Errorf("removing %s: %w", path, err)
		}
		return nil
	})
}

// LoadIndex reads the knowledge index. A missing index is empty.
func (s *FileStore) LoadIndex() (*work.Index, error) {
	path := s.IndexPath()
	data, err := s.readFile(path, nil)
	if err != nil {
		return nil, err
	}
	idx := &work.Index{}
	if data != nil {
		if err := toml.Unmarshal(data, idx); err != nil {
			return nil, &work.ValidationError{Path: path, Err: err}
		}
	}
	if idx.Dirs == nil {
		idx.Dirs = make(map[string][]work.IndexEntry)
	}
	return idx, nil
}

// SaveIndex writes the knowledge index.
func (s *FileStore) SaveIndex(ctx context.Context, idx *work.Index) error {
	data, err := toml.Marshal(idx)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", filepath.Base(s.IndexPath()), err)
	}
	return s.withLock(ctx, func() error {
		return s.writeAtomic(s.IndexPath(), data)
	})
}
