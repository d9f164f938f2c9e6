// Package http provides a source.Source backed by HTTP range requests.
package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/IvanBrykalov/rangecache/source"
)

// Source reads objects through HTTP range requests. Paths that are
// absolute http(s) URLs are requested as is; other paths are resolved
// against the base URL.
//
// The first request for a path records its size and validators (ETag,
// Last-Modified). Later range reads send them as If-Match and
// If-Unmodified-Since so that a changed object fails instead of mixing
// bytes of two versions.
type Source struct {
	base    string
	client  *nethttp.Client
	headers nethttp.Header

	mu   sync.Mutex
	meta map[string]objectMeta
}

type objectMeta struct {
	size         int64
	etag         string
	lastModified string
}

// Option configures a Source.
type Option func(*Source)

// WithClient sets the HTTP client used for requests.
func WithClient(client *nethttp.Client) Option {
	return func(s *Source) {
		s.client = client
	}
}

// WithHeaders sets additional headers on each request.
func WithHeaders(headers nethttp.Header) Option {
	return func(s *Source) {
		if headers == nil {
			return
		}
		s.headers = headers.Clone()
	}
}

// WithHeader sets a single header on each request.
func WithHeader(key, value string) Option {
	return func(s *Source) {
		if s.headers == nil {
			s.headers = make(nethttp.Header)
		}
		s.headers.Set(key, value)
	}
}

// New returns a Source resolving relative paths against base, which may
// be empty when every path is an absolute URL. It performs no requests.
func New(base string, opts ...Option) *Source {
	s := &Source{
		base:   strings.TrimRight(base, "/"),
		client: nethttp.DefaultClient,
		meta:   make(map[string]objectMeta),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = nethttp.DefaultClient
	}
	return s
}

// Size implements source.Source.
func (s *Source) Size(ctx context.Context, path string) (int64, error) {
	m, err := s.metadata(ctx, path)
	if err != nil {
		return 0, err
	}
	return m.size, nil
}

// ReadRange implements source.Source.
func (s *Source) ReadRange(ctx context.Context, path string, off, n int64) ([]byte, error) {
	if off < 0 || n < 0 {
		return nil, fmt.Errorf("http: read %s: invalid range off=%d n=%d", path, off, n)
	}
	if n == 0 {
		return []byte{}, nil
	}
	m, err := s.metadata(ctx, path)
	if err != nil {
		return nil, err
	}
	if off >= m.size {
		return []byte{}, nil
	}
	if n > m.size-off {
		n = m.size - off
	}

	req, err := s.newRequest(ctx, nethttp.MethodGet, path, m)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", off, off+n-1))

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http: read %s: %w", path, err)
	}
	defer drain(resp)

	switch resp.StatusCode {
	case nethttp.StatusPartialContent:
		// ok
	case nethttp.StatusRequestedRangeNotSatisfiable:
		return []byte{}, nil
	case nethttp.StatusPreconditionFailed:
		s.forget(path)
		return nil, fmt.Errorf("http: read %s: object changed since first access", path)
	case nethttp.StatusOK:
		return nil, fmt.Errorf("http: read %s: %w", path, source.ErrRangeNotSupported)
	default:
		return nil, statusError(path, resp)
	}

	buf := make([]byte, n)
	got, err := io.ReadFull(resp.Body, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("http: read %s: %w", path, err)
	}
	return buf[:got], nil
}

func (s *Source) metadata(ctx context.Context, path string) (objectMeta, error) {
	s.mu.Lock()
	m, ok := s.meta[path]
	s.mu.Unlock()
	if ok {
		return m, nil
	}

	m, err := s.rangeProbe(ctx, path)
	if err != nil {
		return objectMeta{}, err
	}
	s.mu.Lock()
	s.meta[path] = m
	s.mu.Unlock()
	return m, nil
}

// rangeProbe asks for the first byte; the Content-Range total carries the
// object size and the response proves range support.
func (s *Source) rangeProbe(ctx context.Context, path string) (objectMeta, error) {
	req, err := s.newRequest(ctx, nethttp.MethodGet, path, objectMeta{})
	if err != nil {
		return objectMeta{}, err
	}
	req.Header.Set("Range", "bytes=0-0")

	resp, err := s.client.Do(req)
	if err != nil {
		return objectMeta{}, fmt.Errorf("http: probe %s: %w", path, err)
	}
	defer drain(resp)

	m := objectMeta{
		etag:         resp.Header.Get("ETag"),
		lastModified: resp.Header.Get("Last-Modified"),
	}
	switch resp.StatusCode {
	case nethttp.StatusPartialContent:
		crange := resp.Header.Get("Content-Range")
		if crange == "" {
			return objectMeta{}, fmt.Errorf("http: probe %s: missing Content-Range", path)
		}
		m.size, err = parseContentRange(crange)
		if err != nil {
			return objectMeta{}, fmt.Errorf("http: probe %s: %w", path, err)
		}
	case nethttp.StatusRequestedRangeNotSatisfiable:
		// Empty objects cannot satisfy bytes=0-0.
		m.size = 0
	case nethttp.StatusOK:
		// Servers answer ranged requests for empty objects with a plain
		// empty 200.
		if resp.ContentLength != 0 {
			return objectMeta{}, fmt.Errorf("http: probe %s: %w", path, source.ErrRangeNotSupported)
		}
		m.size = 0
	default:
		return objectMeta{}, statusError(path, resp)
	}
	return m, nil
}

func (s *Source) forget(path string) {
	s.mu.Lock()
	delete(s.meta, path)
	s.mu.Unlock()
}

func (s *Source) url(path string) string {
	if scheme := source.Scheme(path); scheme == "http" || scheme == "https" {
		return path
	}
	if s.base == "" {
		return path
	}
	return s.base + "/" + strings.TrimLeft(path, "/")
}

func (s *Source) newRequest(ctx context.Context, method, path string, m objectMeta) (*nethttp.Request, error) {
	req, err := nethttp.NewRequestWithContext(ctx, method, s.url(path), nil)
	if err != nil {
		return nil, fmt.Errorf("http: %s: %w", path, err)
	}
	for key, values := range s.headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", "identity")
	}
	if m.etag != "" && req.Header.Get("If-Match") == "" {
		req.Header.Set("If-Match", m.etag)
	}
	if m.lastModified != "" && req.Header.Get("If-Unmodified-Since") == "" {
		req.Header.Set("If-Unmodified-Since", m.lastModified)
	}
	return req, nil
}

func statusError(path string, resp *nethttp.Response) error {
	if resp.StatusCode == nethttp.StatusNotFound || resp.StatusCode == nethttp.StatusGone {
		return fmt.Errorf("%w: %s (%s)", source.ErrNotFound, path, resp.Status)
	}
	return fmt.Errorf("http: %s: unexpected status %s", path, resp.Status)
}

func drain(resp *nethttp.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

func parseContentRange(value string) (int64, error) {
	value = strings.TrimSpace(value)
	if !strings.HasPrefix(value, "bytes ") {
		return 0, fmt.Errorf("invalid Content-Range %q", value)
	}
	parts := strings.SplitN(strings.TrimPrefix(value, "bytes "), "/", 2)
	if len(parts) != 2 || parts[1] == "*" {
		return 0, fmt.Errorf("invalid Content-Range %q", value)
	}
	size, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || size < 0 {
		return 0, fmt.Errorf("invalid Content-Range %q", value)
	}
	return size, nil
}

var _ source.Source = (*Source)(nil)
