// Package singleflight coalesces concurrent fetches for the same cache key.
package singleflight

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/IvanBrykalov/rangecache/internal/util"
)

// Group coalesces concurrent calls for the same key so that fn is executed
// at most once per in-flight key. Other callers join the outstanding call
// and observe the identical result.
//
// Concurrency notes:
//   - The ticket table is split into power-of-two shards, each guarded by
//     its own mutex. Coalescing is exact per key because a key always maps
//     to the same shard.
//   - fn runs on its own goroutine. Every caller, the leader included, waits
//     on c.done or its own ctx. Cancelling a caller's ctx unblocks only that
//     caller; fn keeps running and its result reaches the remaining waiters.
//     fn must therefore not depend on any single caller's ctx.
//   - Publishing (val, err) happens-before close(c.done).
//   - The ticket is removed before the result is published, so a failed call
//     is never reused: the next Do for the key starts a fresh fn.
//
// The zero Group is ready to use.
type Group[V any] struct {
	// Shards overrides the number of ticket shards (rounded up to a power of
	// two). Must be set before first use; 0 picks a value from GOMAXPROCS.
	Shards int

	once   sync.Once
	shards []*shard[V]
}

type shard[V any] struct {
	mu sync.Mutex
	m  map[string]*call[V]
}

type call[V any] struct {
	done   chan struct{} // closed when val/err are published
	val    V
	err    error
	dups   int  // followers joined; guarded by shard.mu
	shared bool // dups > 0 at publish time
}

// PanicError is delivered to every waiter when fn panics.
type PanicError struct {
	Value any
	Stack []byte
}

func (p *PanicError) Error() string {
	return fmt.Sprintf("singleflight: fetch panicked: %v", p.Value)
}

func (g *Group[V]) init() {
	g.once.Do(func() {
		n := util.ShardCount(g.Shards)
		g.shards = make([]*shard[V], n)
		for i := range g.shards {
			g.shards[i] = &shard[V]{m: make(map[string]*call[V])}
		}
	})
}

func (g *Group[V]) shardFor(key string) *shard[V] {
	return g.shards[util.ShardOf(key, len(g.shards))]
}

// Do runs fn once for key among all concurrent callers and returns its
// result. shared reports whether the result was delivered to more than one
// caller. If ctx is done before the result is published, Do returns
// ctx.Err() and fn continues in the background.
func (g *Group[V]) Do(ctx context.Context, key string, fn func() (V, error)) (v V, shared bool, err error) {
	g.init()
	s := g.shardFor(key)

	s.mu.Lock()
	if c, ok := s.m[key]; ok {
		c.dups++
		s.mu.Unlock()
		return wait(ctx, c)
	}
	c := &call[V]{done: make(chan struct{})}
	s.m[key] = c
	s.mu.Unlock()

	go g.run(s, key, c, fn)
	return wait(ctx, c)
}

// InFlight returns the number of keys with an outstanding call.
func (g *Group[V]) InFlight() int {
	g.init()
	n := 0
	for _, s := range g.shards {
		s.mu.Lock()
		n += len(s.m)
		s.mu.Unlock()
	}
	return n
}

func (g *Group[V]) run(s *shard[V], key string, c *call[V], fn func() (V, error)) {
	var (
		v   V
		err error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = &PanicError{Value: r, Stack: debug.Stack()}
			}
		}()
		v, err = fn()
	}()

	s.mu.Lock()
	delete(s.m, key)
	c.val, c.err = v, err
	c.shared = c.dups > 0
	s.mu.Unlock()

	close(c.done)
}

func wait[V any](ctx context.Context, c *call[V]) (V, bool, error) {
	select {
	case <-c.done:
		return c.val, c.shared, c.err
	case <-ctx.Done():
		var zero V
		return zero, false, ctx.Err()
	}
}
