package work

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
)

// slugPattern matches ids that are safe to use as file names and ref parts.
var slugPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		return slugPattern.MatchString(fl.Field().String())
	})
	return v
}

// ValidSlug reports whether id can be used as a spec or entry id.
func ValidSlug(id string) bool {
	return slugPattern.MatchString(id)
}

// Validate checks a loaded document against its struct tags. Failures are
// returned as *ValidationError, which matches ErrMalformedDocument.
func Validate(path string, doc any) error {
	err := validate.Struct(doc)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &ValidationError{
			Path:  path,
			Field: fe.Namespace(),
			Err:   fmt.Errorf("failed %q check (value %v)", fe.Tag(), fe.Value()),
		}
	}
	return &ValidationError{Path: path, Err: err}
}

// ValidatePlan validates the plan's fields and rejects duplicate item ids.
// Cyclic or dangling dependencies are not load errors: the resolver reports
// them when the graph is built.
func ValidatePlan(path string, p *Plan) error {
	if err := Validate(path, p); err != nil {
		return err
	}
	seen := make(map[string]bool)
	for _, it := range p.Items() {
		if seen[it.ID] {
			return &ValidationError{Path: path, Field: "id", Err: fmt.Errorf("duplicate item id %q", it.ID)}
		}
		seen[it.ID] = true
	}
	return nil
}
