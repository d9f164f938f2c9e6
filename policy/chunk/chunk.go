// Package chunk implements the chunk caching policy: cache units are
// exactly the chunks listed in a chunk index, never re-tiled.
package chunk

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"sort"

	"github.com/IvanBrykalov/rangecache/chunk"
	"github.com/IvanBrykalov/rangecache/key"
	"github.com/IvanBrykalov/rangecache/policy"
)

// Planner plans reads against a chunk index.
type Planner struct {
	index *chunk.Index
	codec key.Codec
}

// New returns a chunk planner over index.
func New(index *chunk.Index, codec key.Codec) (*Planner, error) {
	if index == nil {
		return nil, errors.New("chunk: index is nil")
	}
	return &Planner{index: index, codec: codec}, nil
}

// Kind implements policy.Planner.
func (p *Planner) Kind() policy.Kind { return policy.KindChunk }

// Plan maps a byte range of a backing object onto the indexed chunks that
// intersect it, ascending by offset. Each unit is a whole chunk even when
// the request covers only part of it. A request touching bytes that no
// chunk covers fails with policy.ErrOutOfRange. The object size is never
// queried.
func (p *Planner) Plan(req policy.Request, _ policy.SizeFunc) (policy.Plan, error) {
	if req.Length == 0 {
		return policy.Plan{}, nil
	}
	if !req.Within(math.MaxInt64) {
		return policy.Plan{}, fmt.Errorf("%w: %d bytes at %d of %q overflow",
			policy.ErrOutOfRange, req.Length, req.Offset, req.Path)
	}
	entries := p.index.Entries(req.Path)
	if len(entries) == 0 {
		return policy.Plan{}, fmt.Errorf("%w: %q is not referenced by index %q",
			policy.ErrOutOfRange, req.Path, p.index.ID())
	}

	end := req.End()
	i := sort.Search(len(entries), func(i int) bool { return entries[i].End() > req.Offset })

	var units []policy.Unit
	cursor := req.Offset
	for ; i < len(entries) && entries[i].Offset < end; i++ {
		e := entries[i]
		if e.Length == 0 {
			continue
		}
		if e.Offset > cursor {
			break
		}
		units = append(units, p.unit(e))
		cursor = e.End()
	}
	if cursor < end {
		return policy.Plan{}, fmt.Errorf("%w: [%d,%d) of %q is not covered by indexed chunks (gap at %d)",
			policy.ErrOutOfRange, req.Offset, end, req.Path, cursor)
	}
	return policy.Plan{Units: units}, nil
}

// Unit resolves a single chunk coordinate of array to its cache unit.
// Coordinates absent from the index fail with policy.ErrOutOfRange; they
// are never treated as zero-filled.
func (p *Planner) Unit(array string, coord chunk.Coord) (policy.Unit, error) {
	ref, ok := p.index.Lookup(array, coord)
	if !ok {
		return policy.Unit{}, fmt.Errorf("%w: chunk %s of %q not in index %q",
			policy.ErrOutOfRange, coord, array, p.index.ID())
	}
	return p.unit(chunk.Entry{Array: array, Coord: coord, Ref: ref}), nil
}

func (p *Planner) unit(e chunk.Entry) policy.Unit {
	u := policy.Unit{
		Key:    p.codec.Chunk(chunkPath(p.index.ID(), e.Array), e.Coord),
		Path:   e.Source,
		Offset: e.Offset,
		Length: e.Length,
		Whole:  e.Whole,
	}
	if e.IsInline() {
		u.Inline = e.Inline
		u.Length = int64(len(e.Inline))
	}
	return u
}

// chunkPath joins an index id and an array name. The array is escaped so
// it never contains '/', which keeps the split point unique even when the
// id is a URL.
func chunkPath(id, array string) string {
	return id + "/" + url.PathEscape(array)
}

var _ policy.Planner = (*Planner)(nil)
