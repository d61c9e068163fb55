// Package apperr declares the failure taxonomy shared by services and the
// HTTP boundary. Callers match with errors.Is / errors.As.
package apperr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrValidation     = errors.New("validation failed")
	ErrAuthentication = errors.New("authentication failed")
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrStorage        = errors.New("storage failure")
)

// FieldErrors maps an input field to what is wrong with it.
type FieldErrors map[string]string

func (f FieldErrors) Error() string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+f[k])
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

func (f FieldErrors) Is(target error) bool { return target == ErrValidation }

// Add records msg for field and returns f for chaining.
func (f FieldErrors) Add(field, msg string) FieldErrors {
	f[field] = msg
	return f
}

// OrNil returns nil when no field failed.
func (f FieldErrors) OrNil() error {
	if len(f) == 0 {
		return nil
	}
	return f
}

func NotFound(resource string) error {
	return fmt.Errorf("%s %w", resource, ErrNotFound)
}

func Conflict(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// Storage wraps a persistence error so it matches ErrStorage while keeping
// the cause for logs.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}

// Known reports whether err already belongs to the taxonomy.
func Known(err error) bool {
	for _, target := range []error{ErrValidation, ErrAuthentication, ErrNotFound, ErrConflict, ErrStorage} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
