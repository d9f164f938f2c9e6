package cache

import (
	"context"

	"github.com/IvanBrykalov/rangecache/chunk"
)

// Reader is the blocking access model, implemented by *Engine.
// All methods are safe for concurrent use by multiple goroutines.
type Reader interface {
	// Read returns the n bytes of path starting at off. Reads past the end
	// of the object fail with ErrOutOfRange.
	Read(ctx context.Context, path string, off, n int64) ([]byte, error)

	// ReadChunk returns the bytes of the chunk at coord of array. It
	// requires the chunk policy; unknown coordinates fail with
	// ErrOutOfRange.
	ReadChunk(ctx context.Context, array string, coord chunk.Coord) ([]byte, error)

	// Stats returns a snapshot of the engine counters.
	Stats() Stats

	// Close releases the store when it implements io.Closer. Later reads
	// fail with ErrClosed.
	Close() error
}

// AsyncReader is the non-blocking access model, implemented by
// *AsyncEngine. Submission never blocks; the returned Future completes
// when the read does.
type AsyncReader interface {
	Read(ctx context.Context, path string, off, n int64) *Future
	ReadChunk(ctx context.Context, array string, coord chunk.Coord) *Future
	Stats() Stats
	Close() error
}

var (
	_ Reader      = (*Engine)(nil)
	_ AsyncReader = (*AsyncEngine)(nil)
)
