// Package compress wraps a store.Store so that values are zstd-compressed
// at rest.
package compress

import (
	"context"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/IvanBrykalov/rangecache/store"
)

// DefaultMaxDecodedSize bounds the size of a single decompressed entry.
const DefaultMaxDecodedSize = 256 << 20

// Option configures a Store.
type Option func(*config)

type config struct {
	level      zstd.EncoderLevel
	maxDecoded uint64
	onCorrupt  func(key string, err error)
}

// WithLevel sets the zstd encoder level (default zstd.SpeedDefault).
func WithLevel(l zstd.EncoderLevel) Option {
	return func(c *config) { c.level = l }
}

// WithMaxDecodedSize bounds the decompressed size of one entry.
func WithMaxDecodedSize(n uint64) Option {
	return func(c *config) {
		if n > 0 {
			c.maxDecoded = n
		}
	}
}

// WithCorruptHook is called whenever a stored value cannot be decoded.
// Such values are reported to the caller as misses.
func WithCorruptHook(fn func(key string, err error)) Option {
	return func(c *config) { c.onCorrupt = fn }
}

// Store compresses values written to the wrapped store and decompresses
// values read from it.
type Store struct {
	next      store.Store
	enc       *zstd.Encoder
	dec       *zstd.Decoder
	onCorrupt func(string, error)
}

// New wraps next.
func New(next store.Store, opts ...Option) (*Store, error) {
	cfg := config{level: zstd.SpeedDefault, maxDecoded: DefaultMaxDecodedSize}
	for _, o := range opts {
		o(&cfg)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(cfg.level), zstd.WithEncoderConcurrency(1), zstd.WithZeroFrames(true))
	if err != nil {
		return nil, fmt.Errorf("compress: new encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(0), zstd.WithDecoderMaxMemory(cfg.maxDecoded))
	if err != nil {
		_ = enc.Close()
		return nil, fmt.Errorf("compress: new decoder: %w", err)
	}
	return &Store{next: next, enc: enc, dec: dec, onCorrupt: cfg.onCorrupt}, nil
}

// Get implements store.Store. An entry that is not a valid zstd frame is
// a miss, so the next populate replaces it.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, ok, err := s.next.Get(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	out, err := s.dec.DecodeAll(b, make([]byte, 0, 2*len(b)))
	if err != nil {
		if s.onCorrupt != nil {
			s.onCorrupt(key, err)
		}
		return nil, false, nil
	}
	return out, true, nil
}

// Set implements store.Store.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.next.Set(ctx, key, s.enc.EncodeAll(value, make([]byte, 0, len(value)/2+64)), ttl)
}

// Exists implements store.Exister when the wrapped store does.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	if ex, ok := s.next.(store.Exister); ok {
		return ex.Exists(ctx, key)
	}
	_, ok, err := s.next.Get(ctx, key)
	return ok, err
}

// Close releases the codec and closes the wrapped store when it has a
// Close method.
func (s *Store) Close() error {
	s.dec.Close()
	err := s.enc.Close()
	if c, ok := s.next.(interface{ Close() error }); ok {
		if cerr := c.Close(); cerr != nil {
			return cerr
		}
	}
	return err
}

var (
	_ store.Store   = (*Store)(nil)
	_ store.Exister = (*Store)(nil)
)
