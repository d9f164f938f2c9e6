package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IvanBrykalov/rangecache/cache"
	"github.com/IvanBrykalov/rangecache/policy"
	"github.com/IvanBrykalov/rangecache/source"
	"github.com/IvanBrykalov/rangecache/store"
	"github.com/IvanBrykalov/rangecache/store/compress"
	"github.com/IvanBrykalov/rangecache/store/redis"
)

func writeTempConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_TOML(t *testing.T) {
	path := writeTempConfig(t, "rangecache.toml", `
policy = "block"
block_size = 4194304
expiry = 60
key_prefix = "fsspec-redis-cache"
fetch_timeout = "30s"

[store]
addr = "redis:6379"
set_if_absent = true
compression = "zstd"

[remote]
type = "http"
endpoint = "https://data.example.com"

[remote.headers]
Authorization = "Bearer token"

[log]
level = "debug"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "block", cfg.Policy)
	assert.Equal(t, int64(4<<20), cfg.BlockSize)
	assert.Equal(t, 60*time.Second, cfg.Expiry.DurationValue())
	assert.Equal(t, 30*time.Second, cfg.FetchTimeout.DurationValue())
	assert.Equal(t, "fsspec-redis-cache", cfg.KeyPrefix)
	assert.Equal(t, "redis:6379", cfg.Store.Addr)
	assert.True(t, cfg.Store.SetIfAbsent)
	assert.Equal(t, "zstd", cfg.Store.Compression)
	assert.Equal(t, "Bearer token", cfg.Remote.Headers["authorization"])
	assert.Equal(t, "debug", cfg.Log.Level)

	// Defaults.
	assert.Equal(t, cache.DefaultUnitConcurrency, cfg.UnitConcurrency)
	assert.Equal(t, 5*time.Second, cfg.Store.DialTimeout.DurationValue())
	assert.Equal(t, "rangecache", cfg.Metrics.Namespace)
}

func TestLoad_DefaultExpiry(t *testing.T) {
	cfg, err := Load(writeTempConfig(t, "c.yaml", "block_size: 1024\n"))
	require.NoError(t, err)
	assert.Equal(t, cache.DefaultExpiry, cfg.Expiry.DurationValue())
	assert.Equal(t, "localhost:6379", cfg.Store.Addr)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("RANGECACHE_BLOCK_SIZE", "2048")
	t.Setenv("RANGECACHE_STORE_ADDR", "cache.internal:6380")
	t.Setenv("RANGECACHE_EXPIRY", "90s")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, int64(2048), cfg.BlockSize)
	assert.Equal(t, "cache.internal:6380", cfg.Store.Addr)
	assert.Equal(t, 90*time.Second, cfg.Expiry.DurationValue())
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		field   string
	}{
		{name: "missing block size", content: `policy = "block"`, field: "block_size"},
		{name: "chunk without index", content: `policy = "chunk"`, field: "chunk_index"},
		{name: "unknown policy", content: "policy = \"lru\"\nblock_size = 1", field: "policy"},
		{name: "bad compression", content: "block_size = 1\n[store]\ncompression = \"lz4\"", field: "store.compression"},
		{name: "s3 without endpoint", content: "block_size = 1\n[remote]\ntype = \"s3\"", field: "remote.endpoint"},
		{name: "bad log level", content: "block_size = 1\n[log]\nlevel = \"loud\"", field: "log.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeTempConfig(t, "c.toml", tt.content))
			require.ErrorIs(t, err, cache.ErrConfiguration)
			var fe *FieldError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tt.field, fe.Field)
		})
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	_, err := Load(writeTempConfig(t, "c.toml", "block_size = 1\nexpiry = \"boom\""))
	assert.ErrorIs(t, err, cache.ErrConfiguration)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("604800")))
	assert.Equal(t, 7*24*time.Hour, d.DurationValue())
	require.NoError(t, d.UnmarshalText([]byte("1m30s")))
	assert.Equal(t, 90*time.Second, d.DurationValue())
	assert.Error(t, d.UnmarshalText([]byte("soon")))
}

func TestEngineOptions_Block(t *testing.T) {
	cfg, err := Load(writeTempConfig(t, "c.toml", `
block_size = 40
expiry = "60s"
max_blocks_per_read = 16
[store]
compression = "zstd"
[remote]
endpoint = "http://127.0.0.1:1"
`))
	require.NoError(t, err)

	opt, err := cfg.EngineOptions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, policy.KindBlock, opt.Policy)
	assert.Equal(t, int64(40), opt.BlockSize)
	assert.Equal(t, 16, opt.MaxBlocksPerRead)
	assert.Equal(t, 60*time.Second, opt.Expiry)
	assert.IsType(t, &compress.Store{}, opt.Store)
	assert.IsType(t, &source.Mux{}, opt.Source)
	assert.Nil(t, opt.ChunkIndex)

	e, err := cache.New(opt)
	require.NoError(t, err)
	require.NoError(t, e.Close())
}

func TestEngineOptions_Chunk(t *testing.T) {
	refs := writeTempConfig(t, "refs.json", `{"version":1,"refs":{"temp/0.0":["s3://bucket/a.nc",0,10]}}`)
	cfg, err := Load(writeTempConfig(t, "c.toml", `
policy = "chunk"
chunk_index = "`+refs+`"
[remote]
type = "s3"
endpoint = "localhost:9000"
bucket = "bucket"
`))
	require.NoError(t, err)

	opt, err := cfg.EngineOptions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, policy.KindChunk, opt.Policy)
	require.NotNil(t, opt.ChunkIndex)
	assert.Equal(t, 1, opt.ChunkIndex.Len())
	assert.IsType(t, &redis.Store{}, opt.Store)

	mux, ok := opt.Source.(*source.Mux)
	require.True(t, ok)
	assert.Equal(t, []string{"http", "https", "s3"}, mux.Schemes())
}

type closeTracker struct {
	store.Store
	closed bool
}

func (c *closeTracker) Close() error {
	c.closed = true
	return nil
}

func TestEngineOptions_ClosesStoreOnFailure(t *testing.T) {
	cfg := &Config{Policy: "chunk", ChunkIndex: filepath.Join(t.TempDir(), "missing.json")}

	st := &closeTracker{}
	_, err := cfg.engineOptions(context.Background(), st)
	require.Error(t, err)
	assert.True(t, st.closed, "the store is closed when the chunk index cannot be loaded")

	cfg = &Config{Policy: "block", BlockSize: 40}
	st = &closeTracker{}
	_, err = cfg.engineOptions(context.Background(), st)
	require.NoError(t, err)
	assert.False(t, st.closed)
}
