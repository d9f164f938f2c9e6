// Package policy decides how a read request is decomposed into cache units.
//
// The unit-of-caching policy is a tagged variant chosen once when an engine
// is constructed: fixed-size blocks (package block) or source-defined
// chunks taken from a chunk index (package chunk).
package policy

import (
	"errors"
	"fmt"
	"strings"
)

// ErrOutOfRange is returned when a request addresses bytes outside the
// object or outside what the chunk index covers.
var ErrOutOfRange = errors.New("policy: range out of bounds")

// Kind discriminates caching policies.
type Kind uint8

const (
	// KindBlock caches fixed-size, source-independent blocks.
	KindBlock Kind = iota + 1
	// KindChunk caches exactly the chunks listed in a chunk index.
	KindChunk
)

// String returns the configuration name of k.
func (k Kind) String() string {
	switch k {
	case KindBlock:
		return "block"
	case KindChunk:
		return "chunk"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// ParseKind parses "block" or "chunk" (case-insensitive).
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "block":
		return KindBlock, nil
	case "chunk":
		return KindChunk, nil
	default:
		return 0, fmt.Errorf("policy: unknown kind %q (use block or chunk)", s)
	}
}

// Request is one caller read over a logical object.
type Request struct {
	Path   string
	Offset int64
	Length int64
}

// End returns the exclusive end offset of the request.
func (r Request) End() int64 { return r.Offset + r.Length }

// Within reports whether [Offset, End) lies inside an object of size bytes.
// It never computes End, so huge lengths cannot overflow into a pass.
func (r Request) Within(size int64) bool {
	return r.Offset >= 0 && r.Length >= 0 && r.Offset <= size && r.Length <= size-r.Offset
}

// Unit is one cacheable piece of a request.
type Unit struct {
	// Key is the store key of the unit.
	Key string
	// Path is the object the unit's bytes are read from.
	Path   string
	Offset int64
	Length int64
	// Inline carries bytes that need neither the store nor the source.
	Inline []byte
	// Whole marks a unit spanning all of Path; Length is filled in from
	// the object size before the unit is resolved.
	Whole bool
}

// End returns the exclusive end offset of the unit in its object.
func (u Unit) End() int64 { return u.Offset + u.Length }

// SizeFunc returns the byte length of the requested object. Planners call
// it only when they need it.
type SizeFunc func() (int64, error)

// Plan is the result of planning a request.
type Plan struct {
	// Units are disjoint and ascending by offset; their union covers the
	// request.
	Units []Unit
	// Bypass asks the engine to read the request straight from the source
	// without caching. Units is empty when Bypass is set.
	Bypass bool
}

// Planner turns requests into units. Implementations are immutable and
// safe for concurrent use.
type Planner interface {
	Kind() Kind
	Plan(req Request, size SizeFunc) (Plan, error)
}
