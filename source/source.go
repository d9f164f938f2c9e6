// Package source defines the remote, randomly accessible byte sources a
// range cache reads from.
package source

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

var (
	// ErrNotFound is returned when the requested object does not exist.
	ErrNotFound = errors.New("source: object not found")
	// ErrRangeNotSupported is returned when a remote cannot serve byte ranges.
	ErrRangeNotSupported = errors.New("source: range requests not supported")
)

// Source reads byte ranges of named objects. Implementations must be safe
// for concurrent use.
type Source interface {
	// Size returns the byte length of path.
	Size(ctx context.Context, path string) (int64, error)
	// ReadRange returns the n bytes of path starting at off. It returns
	// fewer bytes only when the object ends before off+n.
	ReadRange(ctx context.Context, path string, off, n int64) ([]byte, error)
}

// Mux routes paths to sources by URL scheme ("s3://bucket/key" goes to the
// source registered for "s3"). Paths without a scheme go to the default
// source.
type Mux struct {
	def     Source
	schemes map[string]Source
}

// NewMux returns a Mux that sends unqualified paths to def, which may be
// nil.
func NewMux(def Source) *Mux {
	return &Mux{def: def, schemes: make(map[string]Source)}
}

// Handle registers src for scheme. It must not be called concurrently
// with reads.
func (m *Mux) Handle(scheme string, src Source) {
	m.schemes[strings.ToLower(scheme)] = src
}

// Schemes returns the registered schemes, sorted.
func (m *Mux) Schemes() []string {
	out := make([]string, 0, len(m.schemes))
	for s := range m.schemes {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Size implements Source.
func (m *Mux) Size(ctx context.Context, path string) (int64, error) {
	src, err := m.route(path)
	if err != nil {
		return 0, err
	}
	return src.Size(ctx, path)
}

// ReadRange implements Source.
func (m *Mux) ReadRange(ctx context.Context, path string, off, n int64) ([]byte, error) {
	src, err := m.route(path)
	if err != nil {
		return nil, err
	}
	return src.ReadRange(ctx, path, off, n)
}

func (m *Mux) route(path string) (Source, error) {
	if scheme := Scheme(path); scheme != "" {
		if src, ok := m.schemes[scheme]; ok {
			return src, nil
		}
		return nil, fmt.Errorf("source: no source registered for scheme %q", scheme)
	}
	if m.def == nil {
		return nil, fmt.Errorf("source: no default source for %q", path)
	}
	return m.def, nil
}

// Scheme returns the lower-cased URL scheme of path, or "" when path is
// not an absolute URL.
func Scheme(path string) string {
	i := strings.Index(path, "://")
	if i <= 0 {
		return ""
	}
	u, err := url.Parse(path)
	if err != nil || u.Scheme == "" {
		return ""
	}
	return strings.ToLower(u.Scheme)
}

var _ Source = (*Mux)(nil)
