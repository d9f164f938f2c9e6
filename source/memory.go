package source

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Memory is an in-process Source over byte slices. It counts reads and can
// simulate remote latency, which makes it useful for tests, benchmarks and
// examples.
type Memory struct {
	mu      sync.RWMutex
	objects map[string][]byte

	// Latency is slept before every read.
	Latency time.Duration

	reads     atomic.Int64
	readBytes atomic.Int64
	sizes     atomic.Int64
}

// NewMemory returns an empty Memory source.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

// Put stores data under path, replacing any previous object.
func (m *Memory) Put(path string, data []byte) {
	m.mu.Lock()
	m.objects[path] = data
	m.mu.Unlock()
}

// Size implements Source.
func (m *Memory) Size(ctx context.Context, path string) (int64, error) {
	m.sizes.Add(1)
	b, err := m.object(ctx, path)
	if err != nil {
		return 0, err
	}
	return int64(len(b)), nil
}

// ReadRange implements Source.
func (m *Memory) ReadRange(ctx context.Context, path string, off, n int64) ([]byte, error) {
	if off < 0 || n < 0 {
		return nil, fmt.Errorf("source: invalid range off=%d n=%d", off, n)
	}
	m.reads.Add(1)
	b, err := m.object(ctx, path)
	if err != nil {
		return nil, err
	}
	if off >= int64(len(b)) {
		return []byte{}, nil
	}
	end := min(off+n, int64(len(b)))
	out := make([]byte, end-off)
	copy(out, b[off:end])
	m.readBytes.Add(int64(len(out)))
	return out, nil
}

// Reads returns the number of ReadRange calls served.
func (m *Memory) Reads() int64 { return m.reads.Load() }

// ReadBytes returns the total number of bytes returned by ReadRange.
func (m *Memory) ReadBytes() int64 { return m.readBytes.Load() }

// SizeCalls returns the number of Size calls served.
func (m *Memory) SizeCalls() int64 { return m.sizes.Load() }

func (m *Memory) object(ctx context.Context, path string) ([]byte, error) {
	if m.Latency > 0 {
		t := time.NewTimer(m.Latency)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	m.mu.RLock()
	b, ok := m.objects[path]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return b, nil
}

var _ Source = (*Memory)(nil)
