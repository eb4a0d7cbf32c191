package knowledge

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// GitQuerier abstracts git operations for testability.
type GitQuerier interface {
	// LastCommit returns the committer timestamp of the newest commit touching
	// path. ok is false when the path has no history.
	LastCommit(ctx context.Context, path string) (t time.Time, ok bool, err error)
}

// CLIGitQuerier implements GitQuerier using git CLI commands.
type CLIGitQuerier struct {
	RepoDir string
	// Binary is the git executable; empty means "git" from PATH.
	Binary string
}

// run executes a git command and returns its trimmed stdout.
func (g *CLIGitQuerier) run(ctx context.Context, args ...string) (string, error) {
	bin := g.Binary
	if bin == "" {
		bin = "git"
	}
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = g.RepoDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %s: %w", strings.Join(args, " "), strings.TrimSpace(stderr.String()), err)
	}
	return strings.TrimSpace(stdout.String()), nil
}

// LastCommit runs git log -1 for path. Empty output means the path is
// untracked or uncommitted.
func (g *CLIGitQuerier) LastCommit(ctx context.Context, path string) (time.Time, bool, error) {
	output, err := g.run(ctx, "log", "-1", "--format=%cI", "--", path)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("last commit touching %s: %w", path, err)
	}
	if output == "" {
		return time.Time{}, false, nil
	}
	t, err := time.Parse(time.RFC3339, output)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parsing commit time %q: %w", output, err)
	}
	return t, true, nil
}
