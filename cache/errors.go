package cache

import (
	"errors"
	"fmt"

	"github.com/IvanBrykalov/rangecache/policy"
	"github.com/IvanBrykalov/rangecache/store"
)

var (
	// ErrStoreUnavailable marks store failures. They are logged and counted
	// but never returned from a read.
	ErrStoreUnavailable = store.ErrUnavailable

	// ErrUpstreamFetchFailed wraps errors of the remote source. It reaches
	// every caller that joined the failed fetch.
	ErrUpstreamFetchFailed = errors.New("cache: upstream fetch failed")

	// ErrOutOfRange is returned for reads past the end of an object and for
	// chunk coordinates the index does not contain.
	ErrOutOfRange = policy.ErrOutOfRange

	// ErrConfiguration is returned by New and NewAsync for unusable Options.
	ErrConfiguration = errors.New("cache: invalid configuration")

	// ErrInvalidRequest is returned for malformed read arguments.
	ErrInvalidRequest = errors.New("cache: invalid request")

	// ErrClosed is returned by reads on a closed engine.
	ErrClosed = errors.New("cache: engine closed")
)

// OptionError names the option that made construction fail. It matches
// ErrConfiguration under errors.Is.
type OptionError struct {
	Option string
	Reason string
}

func (e *OptionError) Error() string {
	return fmt.Sprintf("cache: option %s: %s", e.Option, e.Reason)
}

// Is reports whether target is ErrConfiguration.
func (e *OptionError) Is(target error) bool { return target == ErrConfiguration }

func fetchError(path string, off, n int64, err error) error {
	return fmt.Errorf("%w: %s [%d,%d): %w", ErrUpstreamFetchFailed, path, off, off+n, err)
}
