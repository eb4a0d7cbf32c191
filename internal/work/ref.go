package work

import (
	"fmt"
	"strings"
)

// Ref identifies an item across specs as "<spec>/<item>". Item ids are only
// unique within their spec, so unscoped operations key everything by Ref.
type Ref struct {
	SpecID string
	ItemID string
}

// String renders the ref as "<spec>/<item>".
func (r Ref) String() string {
	return r.SpecID + "/" + r.ItemID
}

// ParseRef parses "<spec>/<item>". When the input has no slash, defaultSpec is
// used as the spec; an empty default is an error. The spec part must be a
// valid slug, since it names files in the store.
func ParseRef(s, defaultSpec string) (Ref, error) {
	spec, item, ok := strings.Cut(s, "/")
	if !ok {
		if defaultSpec == "" {
			return Ref{}, fmt.Errorf("%w: %q is not of the form <spec>/<item>", ErrNotFound, s)
		}
		spec, item = defaultSpec, s
	}
	if !ValidSlug(spec) || item == "" || strings.Contains(item, "/") {
		return Ref{}, fmt.Errorf("%w: malformed ref %q", ErrNotFound, s)
	}
	return Ref{SpecID: spec, ItemID: item}, nil
}
