package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/IvanBrykalov/rangecache/source"
	"github.com/IvanBrykalov/rangecache/store"
)

var errStoreDown = errors.New("connection refused")

type memEntry struct {
	b   []byte
	ttl time.Duration
}

// memStore is a map-backed store.Store with failure injection.
type memStore struct {
	mu sync.Mutex
	m  map[string]memEntry

	gets, sets atomic.Int64
	failGet    atomic.Bool
	failSet    atomic.Bool
	closed     atomic.Bool
}

func newMemStore() *memStore { return &memStore{m: make(map[string]memEntry)} }

func (s *memStore) Get(_ context.Context, k string) ([]byte, bool, error) {
	s.gets.Add(1)
	if s.failGet.Load() {
		return nil, false, store.Unavailable(errStoreDown)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[k]
	return e.b, ok, nil
}

func (s *memStore) Set(_ context.Context, k string, v []byte, ttl time.Duration) error {
	s.sets.Add(1)
	if s.failSet.Load() {
		return store.Unavailable(errStoreDown)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[k] = memEntry{b: append([]byte(nil), v...), ttl: ttl}
	return nil
}

func (s *memStore) Close() error {
	s.closed.Store(true)
	return nil
}

func (s *memStore) entry(k string) (memEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[k]
	return e, ok
}

func (s *memStore) keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.m))
	for k := range s.m {
		out = append(out, k)
	}
	return out
}

// gatedSource holds every ReadRange until gate is closed (nil gate: no
// wait) and can be told to fail.
type gatedSource struct {
	*source.Memory
	gate    chan struct{}
	started atomic.Int64
	err     error
}

func (s *gatedSource) ReadRange(ctx context.Context, path string, off, n int64) ([]byte, error) {
	s.started.Add(1)
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.Memory.ReadRange(ctx, path, off, n)
}

// object returns n bytes where byte i is i%251, so every offset is
// distinguishable in assertions.
func object(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i % 251)
	}
	return b
}

func newMemorySource(objects map[string][]byte) *source.Memory {
	m := source.NewMemory()
	for p, b := range objects {
		m.Put(p, b)
	}
	return m
}

func newBlockEngine(t *testing.T, st store.Store, src source.Source, blockSize int64, mod ...func(*Options)) *Engine {
	t.Helper()
	opt := Options{BlockSize: blockSize, Store: st, Source: src}
	for _, m := range mod {
		m(&opt)
	}
	e, err := New(opt)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}
