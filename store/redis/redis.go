// Package redis implements store.Store on top of a Redis server using
// github.com/redis/go-redis/v9.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/IvanBrykalov/rangecache/store"
)

// Options configures a Store. Zero values are safe; defaults are applied
// in New:
//   - empty Addr => "localhost:6379"
//   - PoolSize <= 0 => go-redis default (10 per CPU)
type Options struct {
	Addr     string
	Password string
	DB       int
	PoolSize int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// SetIfAbsent writes with SET NX so that a unit populated by another
	// process first is not overwritten.
	SetIfAbsent bool

	// Client, when set, is used instead of dialing Addr. The Store does not
	// close an injected client.
	Client goredis.UniversalClient
}

// Store is a store.Store backed by Redis.
type Store struct {
	c     goredis.UniversalClient
	nx    bool
	owned bool
}

// New returns a Store for opt. It does not contact the server; use Ping to
// check connectivity.
func New(opt Options) *Store {
	if opt.Client != nil {
		return &Store{c: opt.Client, nx: opt.SetIfAbsent}
	}
	if opt.Addr == "" {
		opt.Addr = "localhost:6379"
	}
	c := goredis.NewClient(&goredis.Options{
		Addr:         opt.Addr,
		Password:     opt.Password,
		DB:           opt.DB,
		PoolSize:     opt.PoolSize,
		DialTimeout:  opt.DialTimeout,
		ReadTimeout:  opt.ReadTimeout,
		WriteTimeout: opt.WriteTimeout,
	})
	return &Store{c: c, nx: opt.SetIfAbsent, owned: true}
}

// Get implements store.Store.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := s.c.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, goredis.Nil):
		return nil, false, nil
	case err != nil:
		return nil, false, store.Unavailable(fmt.Errorf("redis get %q: %w", key, err))
	}
	return b, true, nil
}

// Set implements store.Store. A non-positive ttl keeps the entry until the
// server evicts it.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	var err error
	if s.nx {
		err = s.c.SetNX(ctx, key, value, ttl).Err()
	} else {
		err = s.c.Set(ctx, key, value, ttl).Err()
	}
	if err != nil {
		return store.Unavailable(fmt.Errorf("redis set %q: %w", key, err))
	}
	return nil
}

// Exists implements store.Exister.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.c.Exists(ctx, key).Result()
	if err != nil {
		return false, store.Unavailable(fmt.Errorf("redis exists %q: %w", key, err))
	}
	return n > 0, nil
}

// TTL returns the remaining lifetime of key. It is negative when the key
// has no expiry or does not exist (see the Redis TTL command).
func (s *Store) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := s.c.TTL(ctx, key).Result()
	if err != nil {
		return 0, store.Unavailable(fmt.Errorf("redis ttl %q: %w", key, err))
	}
	return d, nil
}

// Ping checks that the server answers.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.c.Ping(ctx).Err(); err != nil {
		return store.Unavailable(fmt.Errorf("redis ping: %w", err))
	}
	return nil
}

// Close releases the connection pool unless the client was injected.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.c.Close()
}

var (
	_ store.Store   = (*Store)(nil)
	_ store.Exister = (*Store)(nil)
)
