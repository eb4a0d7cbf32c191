// Package claims keeps a SQLite ledger of the file scopes held by
// in-progress work items. Begin claims an item's scope patterns and is
// refused while another item holds an overlapping pattern; Complete and
// Fail release the item's claims.
package claims

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"github.com/papapumpkin/tempo/internal/scope"
	"github.com/papapumpkin/tempo/internal/work"
)

// FileName is the ledger's file name inside the store directory.
const FileName = "claims.db"

const schema = `
CREATE TABLE IF NOT EXISTS scope_claims (
    owner      TEXT NOT NULL,
    pattern    TEXT NOT NULL,
    claimed_at TEXT NOT NULL,
    PRIMARY KEY (owner, pattern)
);
CREATE INDEX IF NOT EXISTS scope_claims_owner ON scope_claims(owner);
`

// Claim is one pattern held by one item.
type Claim struct {
	Owner     string    `json:"owner"`
	Pattern   string    `json:"pattern"`
	ClaimedAt time.Time `json:"claimed_at"`
}

// ConflictError reports the claim that blocked a reservation.
type ConflictError struct {
	Ref    string
	Holder string
	Match  scope.Match
}

// Error describes the conflicting pair.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %s: %s holds %s", work.ErrScopeReserved, e.Ref, e.Holder, e.Match)
}

// Unwrap lets errors.Is match work.ErrScopeReserved.
func (e *ConflictError) Unwrap() error {
	return work.ErrScopeReserved
}

// Ledger is the SQLite-backed claim table.
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the ledger at path in WAL mode.
func Open(ctx context.Context, path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("claims: open database: %w", err)
	}
	// SQLite has a single writer; one pooled connection keeps the PRAGMAs
	// applied to every statement.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("claims: enable WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("claims: set busy timeout: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("claims: create schema: %w", err)
	}
	return &Ledger{db: db, now: time.Now}, nil
}

// Acquire records ref's patterns. If any pattern overlaps a pattern held by
// a different owner, nothing is recorded and a *ConflictError is returned.
// Re-acquiring the same patterns for the same owner is a no-op.
func (l *Ledger) Acquire(ctx context.Context, ref string, patterns []string) error {
	if len(patterns) == 0 {
		return nil
	}
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("claims: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	held, err := queryClaims(ctx, tx, "SELECT owner, pattern, claimed_at FROM scope_claims WHERE owner <> ? ORDER BY owner, pattern", ref)
	if err != nil {
		return err
	}
	for _, c := range held {
		if m, ok := scope.Overlap(patterns, []string{c.Pattern}); ok {
			return &ConflictError{Ref: ref, Holder: c.Owner, Match: m}
		}
	}

	ts := l.now().UTC().Format(time.RFC3339Nano)
	for _, p := range patterns {
		const q = `INSERT INTO scope_claims (owner, pattern, claimed_at) VALUES (?, ?, ?)
			ON CONFLICT(owner, pattern) DO NOTHING`
		if _, err := tx.ExecContext(ctx, q, ref, scope.Normalize(p), ts); err != nil {
			return fmt.Errorf("claims: claim %q for %s: %w", p, ref, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("claims: commit: %w", err)
	}
	return nil
}

// Release removes every claim held by ref. Releasing nothing is not an error.
func (l *Ledger) Release(ctx context.Context, ref string) error {
	if _, err := l.db.ExecContext(ctx, "DELETE FROM scope_claims WHERE owner = ?", ref); err != nil {
		return fmt.Errorf("claims: release %s: %w", ref, err)
	}
	return nil
}

// ClaimsFor returns the patterns held by ref, sorted.
func (l *Ledger) ClaimsFor(ctx context.Context, ref string) ([]string, error) {
	cs, err := queryClaims(ctx, l.db, "SELECT owner, pattern, claimed_at FROM scope_claims WHERE owner = ? ORDER BY pattern", ref)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, c := range cs {
		out = append(out, c.Pattern)
	}
	return out, nil
}

// All returns every claim ordered by owner then pattern.
func (l *Ledger) All(ctx context.Context) ([]Claim, error) {
	return queryClaims(ctx, l.db, "SELECT owner, pattern, claimed_at FROM scope_claims ORDER BY owner, pattern")
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryClaims(ctx context.Context, q querier, query string, args ...any) ([]Claim, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("claims: query: %w", err)
	}
	defer rows.Close()

	var out []Claim
	for rows.Next() {
		var c Claim
		var ts string
		if err := rows.Scan(&c.Owner, &c.Pattern, &ts); err != nil {
			return nil, fmt.Errorf("claims: scan: %w", err)
		}
		c.ClaimedAt, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("claims: parse timestamp %q: %w", ts, err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("claims: iterate: %w", err)
	}
	return out, nil
}
