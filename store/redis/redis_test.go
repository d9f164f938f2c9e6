package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IvanBrykalov/rangecache/store"
)

func newTestStore(t *testing.T, nx bool) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s := New(Options{Addr: mr.Addr(), SetIfAbsent: nx})
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestStore_GetSet(t *testing.T) {
	s, mr := newTestStore(t, false)
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "obj-0")
	require.NoError(t, err)
	assert.False(t, ok, "missing key is a miss, not an error")

	payload := []byte{0, 1, 2, 0xff, '-', 0}
	require.NoError(t, s.Set(ctx, "obj-0", payload, time.Minute))

	got, ok, err := s.Get(ctx, "obj-0")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, payload, got, "values are byte-transparent")

	assert.Equal(t, time.Minute, mr.TTL("obj-0"))
	ttl, err := s.TTL(ctx, "obj-0")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, ttl)

	exists, err := s.Exists(ctx, "obj-0")
	require.NoError(t, err)
	assert.True(t, exists)

	// Overwrite wins without NX.
	require.NoError(t, s.Set(ctx, "obj-0", []byte("new"), 0))
	got, _, _ = s.Get(ctx, "obj-0")
	assert.Equal(t, []byte("new"), got)
	assert.Zero(t, mr.TTL("obj-0"), "non-positive ttl stores without expiry")
}

func TestStore_Expiry(t *testing.T) {
	s, mr := newTestStore(t, false)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "obj-1", []byte("x"), 60*time.Second))
	mr.FastForward(61 * time.Second)

	_, ok, err := s.Get(ctx, "obj-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_SetIfAbsent(t *testing.T) {
	s, _ := newTestStore(t, true)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", []byte("first"), time.Minute))
	require.NoError(t, s.Set(ctx, "k", []byte("second"), time.Minute))

	got, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("first"), got)
}

func TestStore_Unavailable(t *testing.T) {
	s, mr := newTestStore(t, false)
	ctx := context.Background()
	mr.Close()

	_, _, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, store.ErrUnavailable)

	err = s.Set(ctx, "k", []byte("v"), time.Minute)
	assert.ErrorIs(t, err, store.ErrUnavailable)

	assert.ErrorIs(t, s.Ping(ctx), store.ErrUnavailable)
}

func TestStore_InjectedClientNotClosed(t *testing.T) {
	mr := miniredis.RunT(t)
	owner := New(Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = owner.Close() })

	s := New(Options{Client: owner.c})
	require.NoError(t, s.Close())
	require.NoError(t, owner.Ping(context.Background()), "injected client must stay usable")
}
