package config

import (
	"context"
	"fmt"
	"io"
	nethttp "net/http"
	"os"
	"strings"

	"github.com/IvanBrykalov/rangecache/cache"
	"github.com/IvanBrykalov/rangecache/chunk"
	"github.com/IvanBrykalov/rangecache/policy"
	"github.com/IvanBrykalov/rangecache/source"
	rchttp "github.com/IvanBrykalov/rangecache/source/http"
	"github.com/IvanBrykalov/rangecache/source/s3"
	"github.com/IvanBrykalov/rangecache/store"
	"github.com/IvanBrykalov/rangecache/store/compress"
	"github.com/IvanBrykalov/rangecache/store/redis"
)

// EngineOptions builds engine options from c: the store, the source and,
// under the chunk policy, the chunk index. Logger and Metrics are left for
// the caller. On error nothing is left open.
func (c *Config) EngineOptions(ctx context.Context) (cache.Options, error) {
	if _, err := policy.ParseKind(c.Policy); err != nil {
		return cache.Options{}, newFieldError("policy", err.Error())
	}
	st, err := c.NewStore()
	if err != nil {
		return cache.Options{}, err
	}
	return c.engineOptions(ctx, st)
}

// engineOptions completes the options around st and closes st when it
// fails.
func (c *Config) engineOptions(ctx context.Context, st store.Store) (opt cache.Options, err error) {
	defer func() {
		if err != nil {
			CloseStore(st)
		}
	}()

	kind, err := policy.ParseKind(c.Policy)
	if err != nil {
		return cache.Options{}, newFieldError("policy", err.Error())
	}
	src, err := c.NewSource()
	if err != nil {
		return cache.Options{}, err
	}
	opt = cache.Options{
		Policy:           kind,
		BlockSize:        c.BlockSize,
		MaxBlocksPerRead: c.MaxBlocksPerRead,
		Store:            st,
		Source:           src,
		Expiry:           c.Expiry.DurationValue(),
		KeyPrefix:        c.KeyPrefix,
		UnitConcurrency:  c.UnitConcurrency,
		MaxInFlight:      c.MaxInFlight,
		FetchTimeout:     c.FetchTimeout.DurationValue(),
		MemoizeSize:      c.MemoizeSize,
	}
	if kind == policy.KindChunk {
		ix, err := c.LoadChunkIndex(ctx)
		if err != nil {
			return cache.Options{}, err
		}
		opt.ChunkIndex = ix
	}
	return opt, nil
}

// CloseStore closes st when it holds resources.
func CloseStore(st store.Store) {
	if c, ok := st.(io.Closer); ok {
		_ = c.Close()
	}
}

// NewStore returns the Redis store, wrapped for compression when
// configured.
func (c *Config) NewStore() (store.Store, error) {
	var st store.Store = redis.New(redis.Options{
		Addr:         c.Store.Addr,
		Password:     c.Store.Password,
		DB:           c.Store.DB,
		PoolSize:     c.Store.PoolSize,
		DialTimeout:  c.Store.DialTimeout.DurationValue(),
		ReadTimeout:  c.Store.ReadTimeout.DurationValue(),
		WriteTimeout: c.Store.WriteTimeout.DurationValue(),
		SetIfAbsent:  c.Store.SetIfAbsent,
	})
	if c.Store.Compression == "zstd" {
		z, err := compress.New(st)
		if err != nil {
			return nil, err
		}
		st = z
	}
	return st, nil
}

// NewSource returns a source.Mux whose default source is the configured
// remote. Absolute http(s) URLs are always routable, and s3:// URLs are
// routable when the remote is S3, so chunk references may point at any of
// them.
func (c *Config) NewSource() (source.Source, error) {
	headers := make(nethttp.Header, len(c.Remote.Headers))
	for k, v := range c.Remote.Headers {
		headers.Set(k, v)
	}
	web := rchttp.New("", rchttp.WithHeaders(headers))

	var def source.Source
	switch c.Remote.Type {
	case "s3":
		s, err := s3.New(s3.Config{
			Endpoint:  c.Remote.Endpoint,
			Bucket:    c.Remote.Bucket,
			Prefix:    c.Remote.Prefix,
			Region:    c.Remote.Region,
			AccessKey: c.Remote.AccessKey,
			SecretKey: c.Remote.SecretKey,
			UseSSL:    c.Remote.UseSSL,
		})
		if err != nil {
			return nil, newFieldError("remote", err.Error())
		}
		def = s
	default:
		def = rchttp.New(c.Remote.Endpoint, rchttp.WithHeaders(headers))
	}

	m := source.NewMux(def)
	m.Handle("http", web)
	m.Handle("https", web)
	if c.Remote.Type == "s3" {
		m.Handle("s3", def)
	}
	return m, nil
}

// LoadChunkIndex reads the reference document named by ChunkIndex. A URL
// becomes the index id; a local document is identified by its digest.
func (c *Config) LoadChunkIndex(ctx context.Context) (*chunk.Index, error) {
	loc := strings.TrimSpace(c.ChunkIndex)
	if loc == "" {
		return nil, newFieldError("chunk_index", "is required under the chunk policy")
	}

	if scheme := source.Scheme(loc); scheme == "http" || scheme == "https" {
		req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodGet, loc, nil)
		if err != nil {
			return nil, newFieldError("chunk_index", err.Error())
		}
		resp, err := nethttp.DefaultClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("config: fetch chunk index: %w", err)
		}
		defer func() {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		}()
		if resp.StatusCode != nethttp.StatusOK {
			return nil, fmt.Errorf("config: fetch chunk index %s: %s", loc, resp.Status)
		}
		return chunk.LoadReferences(loc, resp.Body)
	}

	f, err := os.Open(loc)
	if err != nil {
		return nil, fmt.Errorf("config: open chunk index: %w", err)
	}
	defer f.Close()
	return chunk.LoadReferences("", f)
}
