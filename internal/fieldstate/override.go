package fieldstate

import (
	"errors"
	"fmt"

	"github.com/nexodify/periscan/internal/evidence"
)

// ErrUnknownField rejects overrides for keys outside the field registry.
var ErrUnknownField = errors.New("unknown field key")

// ApplyOverride replaces the state for key with a USER_PROVIDED value. The
// value runs through the same canonicalization as engine-produced values
// (lot labels, money parsing, placeholder collapsing), then the field loses
// all document provenance: the value's authority is the user. The caller is
// the only actor allowed to move a field into USER_PROVIDED.
func ApplyOverride(states map[string]FieldState, key string, value any) error {
	if states == nil {
		return errors.New("override: nil field-state map")
	}
	if !KnownKey(key) {
		return fmt.Errorf("override: %w: %s", ErrUnknownField, key)
	}
	canonical, ok := canonicalValue(key, value)
	if !ok {
		return fmt.Errorf("override: unsupported value shape for %s", key)
	}
	states[key] = FieldState{
		Status:     UserProvided,
		Value:      canonical,
		Evidence:   []evidence.Evidence{},
		SearchedIn: []evidence.Evidence{},
	}
	return nil
}
