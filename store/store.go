// Package store defines the keyed byte store that backs a range cache.
//
// The store is shared by every process pointed at it, keeps entries until
// their TTL runs out, and is treated as unreliable: an unavailable store
// degrades reads to upstream fetches instead of failing them.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable wraps every transport or server failure returned by a
// Store. Callers test for it with errors.Is.
var ErrUnavailable = errors.New("store: unavailable")

// Store is a keyed byte store with per-entry expiry. Values are opaque and
// returned byte-for-byte as written. Implementations must be safe for
// concurrent use.
type Store interface {
	// Get returns the value under key. (nil, false, nil) is a miss; a
	// non-nil error means the store could not answer.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set writes value under key. A non-positive ttl stores the entry
	// without expiry. Writes are best effort.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Exister is implemented by stores that can test for a key without
// transferring its value.
type Exister interface {
	Exists(ctx context.Context, key string) (bool, error)
}

// Unavailable wraps err so that errors.Is(err, ErrUnavailable) holds.
// It returns nil for a nil err and leaves already wrapped errors alone.
func Unavailable(err error) error {
	if err == nil || errors.Is(err, ErrUnavailable) {
		return err
	}
	return &unavailableError{err: err}
}

type unavailableError struct{ err error }

func (e *unavailableError) Error() string { return "store: unavailable: " + e.err.Error() }

func (e *unavailableError) Unwrap() []error { return []error{ErrUnavailable, e.err} }
