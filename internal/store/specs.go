package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/papapumpkin/tempo/internal/work"
	"github.com/spf13/afero"
)

// LoadSpec reads and validates specs/<id>.md.
func (s *FileStore) LoadSpec(id string) (work.Spec, error) {
	path := s.specPath(id)
	data, err := s.readFile(path, fmt.Errorf("spec %q: %w", id, work.ErrNotFound))
	if err != nil {
		return work.Spec{}, err
	}
	var spec work.Spec
	body, err := parseFrontmatter(data, &spec)
	if err != nil {
		return work.Spec{}, &work.ValidationError{Path: path, Err: err}
	}
	spec.Body = body
	if err := work.Validate(path, &spec); err != nil {
		return work.Spec{}, err
	}
	if spec.ID != id {
		return work.Spec{}, &work.ValidationError{Path: path, Field: "id",
			Err: fmt.Errorf("id %q does not match file name", spec.ID)}
	}
	return spec, nil
}

// ListSpecs returns every loadable spec sorted by id. Specs that fail to load
// are returned as skips.
func (s *FileStore) ListSpecs() ([]work.Spec, []work.Skip, error) {
	ids, err := s.listIDs(s.rootJoin(specsDir), ".md")
	if err != nil {
		return nil, nil, err
	}
	var specs []work.Spec
	var skips []work.Skip
	for _, id := range ids {
		spec, err := s.LoadSpec(id)
		if err != nil {
			if !errors.Is(err, work.ErrMalformedDocument) && !errors.Is(err, work.ErrNotFound) {
				return nil, nil, err
			}
			s.warnf("skipping spec %s: %v", id, err)
			skips = append(skips, work.Skip{Path: s.specPath(id), ID: id, Err: err})
			continue
		}
		specs = append(specs, spec)
	}
	return specs, skips, nil
}

// CreateSpec writes a new spec. It fails if the id is taken.
func (s *FileStore) CreateSpec(ctx context.Context, spec work.Spec) error {
	path := s.specPath(spec.ID)
	if err := work.Validate(path, &spec); err != nil {
		return err
	}
	return s.withLock(ctx, func() error {
		exists, err := s.exists(path)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("spec %q already exists", spec.ID)
		}
		if err := s.writeSpec(spec); err != nil {
			return err
		}
		return s.writePlan(&work.Plan{SpecID: spec.ID})
	})
}

// UpdateSpec re-reads the spec under the store lock, applies fn and writes
// the result. Returning an error from fn aborts the write.
func (s *FileStore) UpdateSpec(ctx context.Context, id string, fn func(*work.Spec) error) error {
	return s.withLock(ctx, func() error {
		spec, err := s.LoadSpec(id)
		if err != nil {
			return err
		}
		if err := fn(&spec); err != nil {
			return err
		}
		if err := work.Validate(s.specPath(id), &spec); err != nil {
			return err
		}
		return s.writeSpec(spec)
	})
}

// LoadPlan reads specs/<id>.json. A spec without a plan file has an empty
// plan; a plan without its spec is ErrNotFound.
func (s *FileStore) LoadPlan(id string) (*work.Plan, error) {
	exists, err := s.exists(s.specPath(id))
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("spec %q: %w", id, work.ErrNotFound)
	}
	path := s.planPath(id)
	data, err := s.readFile(path, nil)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return &work.Plan{SpecID: id}, nil
	}
	var plan work.Plan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, &work.ValidationError{Path: path, Err: err}
	}
	if err := work.ValidatePlan(path, &plan); err != nil {
		return nil, err
	}
	if plan.SpecID != id {
		return nil, &work.ValidationError{Path: path, Field: "spec_id",
			Err: fmt.Errorf("spec_id %q does not match file name", plan.SpecID)}
	}
	return &plan, nil
}

// UpdatePlan loads the spec and its plan under the store lock, applies fn
// and writes the plan back. The spec is passed by value; fn must not rely on
// changes to it being saved.
func (s *FileStore) UpdatePlan(ctx context.Context, id string, fn func(work.Spec, *work.Plan) error) error {
	return s.withLock(ctx, func() error {
		spec, err := s.LoadSpec(id)
		if err != nil {
			return err
		}
		plan, err := s.LoadPlan(id)
		if err != nil {
			return err
		}
		if err := fn(spec, plan); err != nil {
			return err
		}
		if err := work.ValidatePlan(s.planPath(id), plan); err != nil {
			return err
		}
		return s.writePlan(plan)
	})
}

func (s *FileStore) writeSpec(spec work.Spec) error {
	data, err := renderFrontmatter(&spec, spec.Body)
	if err != nil {
		return fmt.Errorf("spec %q: %w", spec.ID, err)
	}
	return s.writeAtomic(s.specPath(spec.ID), data)
}

func (s *FileStore) writePlan(plan *work.Plan) error {
	if plan.Sessions == nil {
		plan.Sessions = []work.Item{}
	}
	if plan.Tasks == nil {
		plan.Tasks = []work.Item{}
	}
	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling plan %q: %w", plan.SpecID, err)
	}
	return s.writeAtomic(s.planPath(plan.SpecID), append(data, '\n'))
}

func (s *FileStore) exists(path string) (bool, error) {
	ok, err := afero.Exists(s.fs, path)
	if err != nil {
		return false, fmt.Errorf("checking %s: %w", path, err)
	}
	return ok, nil
}

func (s *FileStore) rootJoin(name string) string {
	return filepath.Join(s.root, name)
}
