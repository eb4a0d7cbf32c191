// Package work defines the documents tempo tracks: specs, the work items
// generated from them, and the log entries that record knowledge anchored to
// source files. It also owns the status state machines and the error taxonomy
// shared by the scheduler and the staleness tracker.
package work

import (
	"encoding/json"
	"errors"
	"sort"
	"time"
)

// SpecStatus is the lifecycle state of a Spec.
type SpecStatus string

const (
	SpecDraft       SpecStatus = "draft"
	SpecInReview    SpecStatus = "in-review"
	SpecApproved    SpecStatus = "approved"
	SpecImplemented SpecStatus = "implemented"
	SpecDeprecated  SpecStatus = "deprecated"
)

// Status is the lifecycle state of a WorkItem.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusBlocked    Status = "blocked"
)

// Priority bounds. Lower values are more urgent.
const (
	PriorityHighest = 0
	PriorityLowest  = 4
)

// Spec is the human-readable metadata of a unit of planned work. It is stored
// as YAML frontmatter in <spec>.md.
type Spec struct {
	ID      string     `yaml:"id" json:"id" validate:"required,slug"`
	Title   string     `yaml:"title" json:"title" validate:"required"`
	Status  SpecStatus `yaml:"status" json:"status" validate:"required,oneof=draft in-review approved implemented deprecated"`
	Created time.Time  `yaml:"created" json:"created"`
	Updated time.Time  `yaml:"updated" json:"updated"`
	Body    string     `yaml:"-" json:"body,omitempty"`
}

// Item is a schedulable unit of work: a task or a session. Sessions are items
// whose children (tasks with ParentID pointing at them) carry the actual work.
type Item struct {
	ID          string     `json:"id" validate:"required,excludes=/"`
	Title       string     `json:"title" validate:"required"`
	Description string     `json:"description,omitempty"`
	Status      Status     `json:"status" validate:"required,oneof=pending in_progress done blocked"`
	Priority    int        `json:"priority" validate:"min=0,max=4"`
	DependsOn   []string   `json:"depends_on,omitempty" validate:"dive,required"`
	ParentID    string     `json:"parent_id,omitempty"`
	Type        string     `json:"type,omitempty"`
	Scope       []string   `json:"scope,omitempty" validate:"dive,required"`
	Attempts    int        `json:"attempts,omitempty" validate:"min=0"`
	RetryAfter  *time.Time `json:"retry_after,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
	Created     time.Time  `json:"created"`
	Updated     time.Time  `json:"updated"`
}

// Plan is the per-spec work document stored as <spec>.json.
type Plan struct {
	SpecID   string `json:"spec_id" validate:"required,slug"`
	Sessions []Item `json:"sessions" validate:"dive"`
	Tasks    []Item `json:"tasks" validate:"dive"`
}

// Items returns every session and task of the plan, sessions first.
func (p *Plan) Items() []Item {
	out := make([]Item, 0, len(p.Sessions)+len(p.Tasks))
	out = append(out, p.Sessions...)
	out = append(out, p.Tasks...)
	return out
}

// Find returns a pointer into the plan for the item with the given id, or nil.
func (p *Plan) Find(id string) *Item {
	for i := range p.Sessions {
		if p.Sessions[i].ID == id {
			return &p.Sessions[i]
		}
	}
	for i := range p.Tasks {
		if p.Tasks[i].ID == id {
			return &p.Tasks[i]
		}
	}
	return nil
}

// Children returns the ids of items whose ParentID is id, sorted.
func (p *Plan) Children(id string) []string {
	var ids []string
	for _, it := range p.Items() {
		if it.ParentID == id {
			ids = append(ids, it.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

// IsContainer reports whether any item in the plan names id as its parent.
func (p *Plan) IsContainer(id string) bool {
	for _, it := range p.Items() {
		if it.ParentID == id {
			return true
		}
	}
	return false
}

// EffectiveDeps returns the item's own dependencies followed by those
// inherited from its ancestors, deduplicated. Unknown parents end the walk.
func (p *Plan) EffectiveDeps(id string) []string {
	seen := make(map[string]bool)
	visited := make(map[string]bool)
	var deps []string
	for cur := p.Find(id); cur != nil && !visited[cur.ID]; {
		visited[cur.ID] = true
		for _, d := range cur.DependsOn {
			if !seen[d] {
				seen[d] = true
				deps = append(deps, d)
			}
		}
		if cur.ParentID == "" {
			break
		}
		cur = p.Find(cur.ParentID)
	}
	return deps
}

// LogEntry is a recorded discovery whose accuracy depends on its anchors.
// It is stored as <id>.md with YAML frontmatter and the content as body.
type LogEntry struct {
	ID         string     `yaml:"id" json:"id" validate:"required,slug"`
	Anchors    []string   `yaml:"anchors" json:"anchors" validate:"min=1,dive,required"`
	VerifiedAt *time.Time `yaml:"verified_at,omitempty" json:"verified_at,omitempty"`
	Content    string     `yaml:"-" json:"content"`
}

// Skip records a document that an aggregate operation could not use. In JSON
// the error is carried as its text under "reason".
type Skip struct {
	Path string `json:"path"`
	ID   string `json:"id,omitempty"`
	Err  error  `json:"-"`
}

type skipJSON struct {
	Path   string `json:"path"`
	ID     string `json:"id,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// MarshalJSON encodes the skip with its reason.
func (s Skip) MarshalJSON() ([]byte, error) {
	return json.Marshal(skipJSON{Path: s.Path, ID: s.ID, Reason: s.Reason()})
}

// UnmarshalJSON decodes a skip; a non-empty reason becomes a plain error.
func (s *Skip) UnmarshalJSON(data []byte) error {
	var v skipJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*s = Skip{Path: v.Path, ID: v.ID}
	if v.Reason != "" {
		s.Err = errors.New(v.Reason)
	}
	return nil
}

// Reason returns the skip error text, suitable for reports.
func (s Skip) Reason() string {
	if s.Err == nil {
		return ""
	}
	return s.Err.Error()
}
