package knowledge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/papapumpkin/tempo/internal/work"
)

// Source names where an anchor timestamp came from.
type Source string

const (
	SourceGit   Source = "git"
	SourceMtime Source = "mtime"
)

// AnchorRef is the resolved state of one path.
type AnchorRef struct {
	Path   string    `json:"path"`
	Exists bool      `json:"exists"`
	Time   time.Time `json:"time,omitzero"`
	Source Source    `json:"source,omitempty"`
}

// Oracle dates paths: the last commit that touched a path when git knows it,
// the filesystem modification time otherwise.
type Oracle struct {
	Fs   afero.Fs
	Root string     // relative paths are resolved against Root
	Git  GitQuerier // nil means filesystem only
	// Logger receives a warning when git fails and mtime is used instead.
	Logger io.Writer
}

// NewOracle returns an Oracle over the OS filesystem rooted at dir.
func NewOracle(dir string, git GitQuerier) *Oracle {
	return &Oracle{Fs: afero.NewOsFs(), Root: dir, Git: git}
}

func (o *Oracle) abs(path string) string {
	if o.Root == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(o.Root, path)
}

func (o *Oracle) stat(path string) (os.FileInfo, bool, error) {
	info, err := o.Fs.Stat(o.abs(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("%w: %s: %v", work.ErrTimestampUnresolvable, path, err)
	}
	return info, true, nil
}

// Exists reports whether path exists without consulting git.
func (o *Oracle) Exists(path string) (bool, error) {
	_, ok, err := o.stat(path)
	return ok, err
}

// Resolve stats path and, when it exists, dates it. A missing path is not an
// error. Filesystem errors other than not-exist wrap
// work.ErrTimestampUnresolvable.
func (o *Oracle) Resolve(ctx context.Context, path string) (AnchorRef, error) {
	ref := AnchorRef{Path: path}
	info, ok, err := o.stat(path)
	if err != nil || !ok {
		return ref, err
	}
	ref.Exists = true

	if o.Git != nil {
		t, committed, err := o.Git.LastCommit(ctx, o.abs(path))
		switch {
		case err != nil && ctx.Err() != nil:
			return ref, fmt.Errorf("%w: %s: %v", work.ErrTimestampUnresolvable, path, ctx.Err())
		case err != nil:
			if o.Logger != nil {
				fmt.Fprintf(o.Logger, "warning: git unavailable for %s, using mtime: %v\n", path, err)
			}
		case committed:
			ref.Time, ref.Source = t, SourceGit
			return ref, nil
		}
	}
	ref.Time, ref.Source = info.ModTime(), SourceMtime
	return ref, nil
}

// LastModified returns the resolved timestamp of path and whether it exists.
// A missing path is (zero, false, nil).
func (o *Oracle) LastModified(ctx context.Context, path string) (time.Time, bool, error) {
	ref, err := o.Resolve(ctx, path)
	return ref.Time, ref.Exists, err
}
