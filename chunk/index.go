// Package chunk maps logical chunk coordinates of chunked arrays to the
// byte ranges that hold them in backing objects.
//
// An Index is supplied fully formed at engine construction and is never
// mutated afterwards, so it is safe for concurrent use without locking.
package chunk

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrOverlap is returned by NewIndex when two entries of the same source
// partially overlap.
var ErrOverlap = errors.New("chunk: overlapping references")

// Coord is the position of a chunk in an array's chunk grid.
type Coord []int

// String renders c in the "i.j.k" form used by chunk keys.
func (c Coord) String() string {
	var b strings.Builder
	for i, x := range c {
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(strconv.Itoa(x))
	}
	return b.String()
}

// ParseCoord parses "i.j.k". The empty string is the zero-dimensional
// coordinate.
func ParseCoord(s string) (Coord, error) {
	if s == "" {
		return Coord{}, nil
	}
	parts := strings.Split(s, ".")
	c := make(Coord, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("chunk: invalid coordinate %q", s)
		}
		c[i] = n
	}
	return c, nil
}

// Ref locates the bytes of one chunk.
type Ref struct {
	// Source identifies the backing object (URL or store path).
	Source string
	Offset int64
	Length int64
	// Inline holds the chunk bytes when the index embeds them directly.
	// Inline refs have no Source and are never fetched or cached.
	Inline []byte
	// Whole marks a chunk that is the entire Source object. Its length is
	// only known once the object's size is asked for, so whole chunks are
	// reachable by coordinate but never take part in range planning.
	Whole bool
}

// IsInline reports whether the chunk is embedded in the index.
func (r Ref) IsInline() bool { return r.Inline != nil }

// End returns the exclusive end offset of the referenced range.
func (r Ref) End() int64 { return r.Offset + r.Length }

// Entry is a Ref together with the chunk it belongs to.
type Entry struct {
	Array string
	Coord Coord
	Ref
}

// Index is an immutable chunk lookup table.
type Index struct {
	id       string
	refs     map[string]Entry
	bySource map[string][]Entry
	meta     map[string][]byte
}

// NewIndex builds an Index identified by id from entries. id becomes part
// of every chunk cache key, so two indexes that address different bytes
// must use different ids.
//
// Entries of the same source that describe the identical range are
// accepted (only the first takes part in range planning); partial overlaps
// are rejected with ErrOverlap.
func NewIndex(id string, entries []Entry) (*Index, error) {
	if id == "" {
		return nil, errors.New("chunk: index id is empty")
	}
	ix := &Index{
		id:       id,
		refs:     make(map[string]Entry, len(entries)),
		bySource: make(map[string][]Entry),
		meta:     make(map[string][]byte),
	}
	for _, e := range entries {
		if !e.IsInline() {
			if e.Source == "" {
				return nil, fmt.Errorf("chunk: %s has no source", name(e.Array, e.Coord))
			}
			if !e.Whole && (e.Offset < 0 || e.Length < 0) {
				return nil, fmt.Errorf("chunk: %s has negative range", name(e.Array, e.Coord))
			}
		}
		k := name(e.Array, e.Coord)
		if _, dup := ix.refs[k]; dup {
			return nil, fmt.Errorf("chunk: duplicate reference %s", k)
		}
		ix.refs[k] = e
		if !e.IsInline() && !e.Whole {
			ix.bySource[e.Source] = append(ix.bySource[e.Source], e)
		}
	}

	for src, list := range ix.bySource {
		sort.SliceStable(list, func(i, j int) bool { return list[i].Offset < list[j].Offset })
		out := list[:0]
		for _, e := range list {
			if n := len(out); n > 0 {
				prev := out[n-1]
				if e.Offset == prev.Offset && e.Length == prev.Length {
					continue
				}
				if e.Offset < prev.End() {
					return nil, fmt.Errorf("%w: %s and %s in %s",
						ErrOverlap, name(prev.Array, prev.Coord), name(e.Array, e.Coord), src)
				}
			}
			out = append(out, e)
		}
		ix.bySource[src] = out
	}
	return ix, nil
}

// ID returns the identity of the index used in cache keys.
func (ix *Index) ID() string { return ix.id }

// Len returns the number of chunk references.
func (ix *Index) Len() int { return len(ix.refs) }

// Lookup resolves a chunk coordinate of array. ok is false when the
// coordinate lies outside the indexed shape.
func (ix *Index) Lookup(array string, coord Coord) (ref Ref, ok bool) {
	e, ok := ix.refs[name(array, coord)]
	return e.Ref, ok
}

// Entries returns the distinct ranges of source, ascending by offset.
// The returned slice must not be modified.
func (ix *Index) Entries(source string) []Entry {
	return ix.bySource[source]
}

// Sources returns the backing objects referenced by the index, sorted.
func (ix *Index) Sources() []string {
	out := make([]string, 0, len(ix.bySource))
	for s := range ix.bySource {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Metadata returns a non-chunk document (".zarray", ".zattrs", ...) stored
// in the index.
func (ix *Index) Metadata(key string) ([]byte, bool) {
	b, ok := ix.meta[key]
	return b, ok
}

func name(array string, c Coord) string {
	if array == "" {
		return c.String()
	}
	return array + "/" + c.String()
}
