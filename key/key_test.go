package key

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodec_Block(t *testing.T) {
	t.Parallel()

	c := New("")
	assert.Equal(t, "obj-0", c.Block("obj", 0))
	assert.Equal(t, "obj-2", c.Block("obj", 2))
	assert.Equal(t, "s3://bucket/a.nc-123456789012", c.Block("s3://bucket/a.nc", 123456789012))

	p := New("fsspec-redis-cache")
	assert.Equal(t, "fsspec-redis-cache-obj-1", p.Block("obj", 1))
	assert.Equal(t, "fsspec-redis-cache", p.Prefix())
}

func TestCodec_ChunkAndSize(t *testing.T) {
	t.Parallel()

	c := New("")
	assert.Equal(t, "refs/temp-c0.1", c.Chunk("refs/temp", []int{0, 1}))
	assert.Equal(t, "refs/scalar-c", c.Chunk("refs/scalar", nil))
	assert.Equal(t, "obj-size", c.Size("obj"))
}

// Same inputs, same key; this is what lets instances share entries.
func TestCodec_Deterministic(t *testing.T) {
	t.Parallel()

	a, b := New("ns"), New("ns")
	for i := int64(0); i < 100; i++ {
		assert.Equal(t, a.Block("p", i), b.Block("p", i))
	}
	assert.Equal(t, a.Chunk("p", []int{3, 4}), b.Chunk("p", []int{3, 4}))
}

// Paths that share a numeric-looking suffix must not collide.
func TestCodec_NoCollisions(t *testing.T) {
	t.Parallel()

	c := New("")
	seen := map[string]string{}
	add := func(k, what string) {
		if prev, ok := seen[k]; ok {
			t.Fatalf("key %q produced by both %s and %s", k, prev, what)
		}
		seen[k] = what
	}

	add(c.Block("a-1", 0), "block(a-1,0)")
	add(c.Block("a", 10), "block(a,10)")
	add(c.Block("a-10", 0), "block(a-10,0)")
	add(c.Block("a", 1), "block(a,1)")
	add(c.Chunk("a", []int{1}), "chunk(a,[1])")
	add(c.Chunk("a-c1", nil), "chunk(a-c1,[])")
	add(c.Chunk("a", []int{1, 0}), "chunk(a,[1 0])")
	add(c.Chunk("a", []int{10}), "chunk(a,[10])")
	add(c.Size("a"), "size(a)")
	add(c.Block("a-size", 0), "block(a-size,0)")
}
