package cache

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// One hundred goroutines read the same block while the fetch is held
// open. [0,39) stays inside block 0. The source must be read once and
// the store written once.
func TestRace_ConcurrentMissesCoalesce(t *testing.T) {
	st := newMemStore()
	data := object(100)
	src := &gatedSource{Memory: newMemorySource(map[string][]byte{"obj": data}), gate: make(chan struct{})}
	e := newBlockEngine(t, st, src, 40)

	const goroutines = 100
	start := make(chan struct{})
	var g errgroup.Group
	for i := 0; i < goroutines; i++ {
		g.Go(func() error {
			<-start
			b, err := e.Read(context.Background(), "obj", 0, 39)
			if err != nil {
				return err
			}
			assert.Equal(t, data[:39], b)
			return nil
		})
	}
	close(start)

	require.Eventually(t, func() bool { return src.started.Load() == 1 }, time.Second, time.Millisecond)
	close(src.gate)
	require.NoError(t, g.Wait())

	assert.Equal(t, int64(1), src.Reads(), "one upstream fetch")
	assert.Equal(t, int64(1), st.sets.Load(), "one store write")
	s := e.Stats()
	assert.Equal(t, int64(1), s.Fetches)
	assert.Equal(t, int64(goroutines), s.Hits+s.Misses)
}

// The reader that started a fetch gives up; the fetch completes for the
// other reader and is written to the store.
func TestRace_CancelledLeaderDoesNotCancelFetch(t *testing.T) {
	st := newMemStore()
	data := object(100)
	src := &gatedSource{Memory: newMemorySource(map[string][]byte{"obj": data}), gate: make(chan struct{})}
	e := newBlockEngine(t, st, src, 40)

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := e.Read(leaderCtx, "obj", 40, 39)
		leaderErr <- err
	}()
	require.Eventually(t, func() bool { return src.started.Load() == 1 }, time.Second, time.Millisecond)

	follower := make(chan []byte, 1)
	go func() {
		b, err := e.Read(context.Background(), "obj", 40, 39)
		assert.NoError(t, err)
		follower <- b
	}()

	cancel()
	assert.ErrorIs(t, <-leaderErr, context.Canceled)

	close(src.gate)
	assert.Equal(t, data[40:79], <-follower)
	assert.Equal(t, int64(1), src.started.Load())

	require.Eventually(t, func() bool {
		_, ok := st.entry("obj-1")
		return ok
	}, time.Second, time.Millisecond, "the detached fetch still populates the store")
}

// Mixed reads over many objects and offsets under -race.
func TestRace_MixedReads(t *testing.T) {
	st := newMemStore()
	objects := map[string][]byte{"a": object(4096), "b": object(1000), "c": object(77)}
	e := newBlockEngine(t, st, newMemorySource(objects), 64, func(o *Options) { o.UnitConcurrency = 4 })

	var failures atomic.Int64
	var g errgroup.Group
	for w := 0; w < 16; w++ {
		g.Go(func() error {
			for i := 0; i < 200; i++ {
				for p, data := range objects {
					size := int64(len(data))
					off := int64((w*131 + i*17) % int(size))
					n := min(int64(1+(i*29)%300), size-off)
					b, err := e.Read(context.Background(), p, off, n)
					if err != nil {
						return err
					}
					if string(b) != string(data[off:off+n]) {
						failures.Add(1)
					}
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Zero(t, failures.Load())
}
