package validation

import (
	"fmt"
	"strconv"
	"unicode"

	"github.com/chronomint/verscache/internal/codec"
	"github.com/chronomint/verscache/internal/errors"
	"github.com/chronomint/verscache/internal/model"
)

const maxIDLength = 512

// Validator validates query parameters before they reach the cache
type Validator struct {
	registry *codec.Registry
}

// NewValidator creates a new validator over the given registry
func NewValidator(registry *codec.Registry) *Validator {
	return &Validator{registry: registry}
}

// ValidateKind checks that the kind is registered
func (v *Validator) ValidateKind(kind string) error {
	if kind == "" {
		return errors.InvalidArgument("entity kind is required", nil)
	}
	if !v.registry.Supports(model.Kind(kind)) {
		return errors.UnsupportedKind(kind)
	}
	return nil
}

// ValidateID checks entity id constraints. The '!' separator is reserved by
// the key-value backend's keyspace layout.
func (v *Validator) ValidateID(id string) error {
	if id == "" {
		return errors.InvalidArgument("entity id is required", nil)
	}
	if len(id) > maxIDLength {
		return errors.InvalidArgument(
			fmt.Sprintf("entity id exceeds %d bytes", maxIDLength), nil)
	}
	for _, r := range id {
		if r == '!' || unicode.IsControl(r) {
			return errors.InvalidArgument(
				fmt.Sprintf("entity id contains invalid character %q", r), nil)
		}
	}
	return nil
}

// ParseVersion parses a version query parameter. An empty value means "as of
// now" and is returned as (NoVersion, nil); the caller substitutes the log's
// latest version.
func (v *Validator) ParseVersion(raw string) (model.Version, error) {
	if raw == "" {
		return model.NoVersion, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errors.InvalidArgument(fmt.Sprintf("version %q is not an integer", raw), err)
	}
	if n < 0 {
		return 0, errors.InvalidVersion(n, "must be non-negative")
	}
	return model.Version(n), nil
}
