// Package key builds the cache keys under which units are stored in the
// shared keyed store.
//
// Keys are plain strings that operators can read back from the store:
//
//	<path>-<blockIndex>             block policy, e.g. "obj-0"
//	<path>-c<i0>.<i1>...            chunk policy, e.g. "refs/temp-c0.1"
//	<path>-size                     memoised object size
//
// A non-empty prefix is prepended as "<prefix>-". The text after the last
// '-' never contains a '-', so the path is always recoverable and two
// distinct (path, unit) pairs never share a key. Block suffixes are all
// digits, chunk suffixes start with 'c' and the size suffix is the literal
// "size", so the policies never collide either.
//
// Keys carry no process-local state; every instance sharing a store
// computes identical keys.
package key

import (
	"strconv"
	"strings"
)

// Codec encodes cache keys. The zero value uses no prefix.
type Codec struct {
	prefix string
}

// New returns a Codec that namespaces every key with prefix.
func New(prefix string) Codec {
	return Codec{prefix: prefix}
}

// Prefix returns the configured namespace.
func (c Codec) Prefix() string { return c.prefix }

// Block returns the key of block index of path. index must be >= 0.
func (c Codec) Block(path string, index int64) string {
	b := c.start(path, 20)
	b.WriteByte('-')
	b.WriteString(strconv.FormatInt(index, 10))
	return b.String()
}

// Chunk returns the key of the chunk at coord of path. Every coordinate
// component must be >= 0; a zero-dimensional chunk encodes as "c".
func (c Codec) Chunk(path string, coord []int) string {
	b := c.start(path, 2+4*len(coord))
	b.WriteString("-c")
	for i, x := range coord {
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(strconv.Itoa(x))
	}
	return b.String()
}

// Size returns the key under which the byte length of path is memoised.
func (c Codec) Size(path string) string {
	b := c.start(path, 5)
	b.WriteString("-size")
	return b.String()
}

func (c Codec) start(path string, extra int) *strings.Builder {
	b := &strings.Builder{}
	b.Grow(len(c.prefix) + 1 + len(path) + extra)
	if c.prefix != "" {
		b.WriteString(c.prefix)
		b.WriteByte('-')
	}
	b.WriteString(path)
	return b
}
