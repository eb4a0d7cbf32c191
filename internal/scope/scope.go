// Package scope decides whether two sets of file scope patterns can touch
// the same files. Patterns are slash-separated paths relative to the work
// directory: plain files, directories, single-star globs, and "**" globs.
package scope

import (
	"path"
	"strings"
)

// Match is the first pair of patterns found to overlap.
type Match struct {
	A string `json:"a"`
	B string `json:"b"`
}

// String renders the match for messages, collapsing identical patterns.
func (m Match) String() string {
	if m.A == m.B {
		return m.A
	}
	return m.A + " / " + m.B
}

// Overlap reports whether any pattern in a overlaps any pattern in b and
// returns the first overlapping pair. Empty scopes never overlap.
func Overlap(a, b []string) (Match, bool) {
	for _, pa := range a {
		for _, pb := range b {
			if Patterns(pa, pb) {
				return Match{A: pa, B: pb}, true
			}
		}
	}
	return Match{}, false
}

// Patterns reports whether two scope patterns can refer to a common file.
func Patterns(a, b string) bool {
	ca, cb := normalize(a), normalize(b)
	if ca == "" || cb == "" {
		return false
	}
	if ca == cb || within(ca, cb) || within(cb, ca) {
		return true
	}
	if hasMeta(ca) || hasMeta(cb) {
		return globsOverlap(ca, cb)
	}
	return false
}

// Normalize cleans a pattern the way Patterns compares it. It returns "" for
// blank input.
func Normalize(p string) string {
	return normalize(p)
}

func normalize(p string) string {
	p = strings.TrimSpace(strings.ReplaceAll(p, "\\", "/"))
	if p == "" {
		return ""
	}
	return path.Clean(p)
}

// within reports whether child lies under the directory parent.
func within(parent, child string) bool {
	if parent == "." {
		return true
	}
	return strings.HasPrefix(child, strings.TrimSuffix(parent, "/")+"/")
}

func hasMeta(p string) bool {
	return strings.ContainsAny(p, "*?[")
}

func globsOverlap(a, b string) bool {
	da, db := staticPrefix(a), staticPrefix(b)

	if strings.Contains(a, "**") || strings.Contains(b, "**") {
		if da == db || within(da, db) || within(db, da) {
			return true
		}
	}

	// A literal may satisfy the other side's glob.
	if ok, _ := path.Match(a, b); ok {
		return true
	}
	if ok, _ := path.Match(b, a); ok {
		return true
	}

	if !strings.Contains(a, "*") && !strings.Contains(b, "*") {
		return false
	}
	if da == db {
		// Same directory: internal/*.go and internal/*.ts never meet.
		return sampleOverlap(a, b)
	}
	return within(da, db) || within(db, da)
}

// staticPrefix is the directory part of a pattern before its first
// metacharacter.
func staticPrefix(p string) string {
	i := strings.IndexAny(p, "*?[")
	if i < 0 {
		return p
	}
	if j := strings.LastIndex(p[:i], "/"); j >= 0 {
		return p[:j]
	}
	return "."
}

// sampleOverlap substitutes a fixed name for every star and checks each
// sample against the other pattern. Patterns using ? or [ are treated as
// overlapping.
func sampleOverlap(a, b string) bool {
	sa, sb := sample(a), sample(b)
	if sa == "" || sb == "" {
		return true
	}
	if ok, _ := path.Match(b, sa); ok {
		return true
	}
	ok, _ := path.Match(a, sb)
	return ok
}

func sample(p string) string {
	if strings.ContainsAny(p, "?[") {
		return ""
	}
	return strings.ReplaceAll(p, "*", "x")
}
