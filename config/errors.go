package config

import (
	"fmt"

	"github.com/IvanBrykalov/rangecache/cache"
)

// FieldError names the configuration key that failed validation. It
// matches cache.ErrConfiguration under errors.Is.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// Unwrap returns cache.ErrConfiguration.
func (e *FieldError) Unwrap() error { return cache.ErrConfiguration }

func newFieldError(field, reason string) error {
	return &FieldError{Field: field, Reason: reason}
}
