package cache

import (
	"context"

	"golang.org/x/sync/semaphore"

	"github.com/IvanBrykalov/rangecache/chunk"
	"github.com/IvanBrykalov/rangecache/key"
	"github.com/IvanBrykalov/rangecache/policy"
)

// AsyncEngine is the non-blocking range cache. Every read returns a Future
// immediately; at most Options.MaxInFlight reads execute at once and the
// rest wait their turn in submission order. Construct it with NewAsync.
type AsyncEngine struct {
	core *engine
	sem  *semaphore.Weighted
	max  int64
}

// NewAsync constructs a non-blocking engine from opt. Configuration errors
// match ErrConfiguration, as with New.
func NewAsync(opt Options) (*AsyncEngine, error) {
	c, err := newEngine(opt)
	if err != nil {
		return nil, err
	}
	n := int64(c.opt.MaxInFlight)
	return &AsyncEngine{core: c, sem: semaphore.NewWeighted(n), max: n}, nil
}

// Read implements AsyncReader.
func (a *AsyncEngine) Read(ctx context.Context, path string, off, n int64) *Future {
	return a.submit(ctx, func() ([]byte, error) { return a.core.read(ctx, path, off, n) })
}

// ReadChunk implements AsyncReader.
func (a *AsyncEngine) ReadChunk(ctx context.Context, array string, coord chunk.Coord) *Future {
	return a.submit(ctx, func() ([]byte, error) { return a.core.readChunk(ctx, array, coord) })
}

// Stats implements AsyncReader.
func (a *AsyncEngine) Stats() Stats { return a.core.stats.snapshot() }

// Policy returns the caching policy the engine was built with.
func (a *AsyncEngine) Policy() policy.Kind { return a.core.planner.Kind() }

// Codec returns the key codec.
func (a *AsyncEngine) Codec() key.Codec { return a.core.codec }

// Close rejects new reads, waits for running ones and then releases the
// store. Reads still queued complete with ErrClosed.
func (a *AsyncEngine) Close() error {
	if !a.core.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := a.sem.Acquire(context.Background(), a.max); err == nil {
		defer a.sem.Release(a.max)
	}
	return a.core.closeStore()
}

func (a *AsyncEngine) submit(ctx context.Context, fn func() ([]byte, error)) *Future {
	f := newFuture()
	if a.core.closed.Load() {
		f.complete(nil, ErrClosed)
		return f
	}
	go func() {
		if err := a.sem.Acquire(ctx, 1); err != nil {
			f.complete(nil, err)
			return
		}
		defer a.sem.Release(1)
		f.complete(fn())
	}()
	return f
}

// Future is the pending result of an AsyncEngine read. It is safe for
// concurrent use; every method may be called any number of times.
type Future struct {
	done chan struct{}
	val  []byte
	err  error
}

func newFuture() *Future { return &Future{done: make(chan struct{})} }

func (f *Future) complete(b []byte, err error) {
	f.val, f.err = b, err
	close(f.done)
}

// Done returns a channel closed when the read has completed.
func (f *Future) Done() <-chan struct{} { return f.done }

// Wait blocks until the read completes or ctx is done. Giving up on a
// Future does not cancel the read; cancel the context passed to Read for
// that.
func (f *Future) Wait(ctx context.Context) ([]byte, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Result returns the outcome without blocking. ok is false while the read
// is still running.
func (f *Future) Result() (b []byte, ok bool, err error) {
	select {
	case <-f.done:
		return f.val, true, f.err
	default:
		return nil, false, nil
	}
}
