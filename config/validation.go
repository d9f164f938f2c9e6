package config

import (
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/IvanBrykalov/rangecache/policy"
)

// Validate checks the semantic constraints that decoding cannot express.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config: nil configuration")
	}

	kind, err := policy.ParseKind(c.Policy)
	if err != nil {
		return newFieldError("policy", "must be block or chunk")
	}
	switch kind {
	case policy.KindBlock:
		if c.BlockSize <= 0 {
			return newFieldError("block_size", "must be > 0 under the block policy")
		}
	case policy.KindChunk:
		if strings.TrimSpace(c.ChunkIndex) == "" {
			return newFieldError("chunk_index", "is required under the chunk policy")
		}
	}
	if c.MaxBlocksPerRead < 0 {
		return newFieldError("max_blocks_per_read", "must be >= 0")
	}
	if c.UnitConcurrency < 0 {
		return newFieldError("unit_concurrency", "must be >= 0")
	}
	if c.MaxInFlight < 0 {
		return newFieldError("max_in_flight", "must be >= 0")
	}
	if c.FetchTimeout.DurationValue() < 0 {
		return newFieldError("fetch_timeout", "must be >= 0")
	}

	if c.Store.Addr == "" {
		return newFieldError("store.addr", "must not be empty")
	}
	if c.Store.DB < 0 {
		return newFieldError("store.db", "must be >= 0")
	}
	switch c.Store.Compression {
	case "", "none", "zstd":
	default:
		return newFieldError("store.compression", "must be none or zstd")
	}

	switch c.Remote.Type {
	case "http":
	case "s3":
		if c.Remote.Endpoint == "" {
			return newFieldError("remote.endpoint", "is required for s3")
		}
		if (c.Remote.AccessKey == "") != (c.Remote.SecretKey == "") {
			return newFieldError("remote.secret_key", "access_key and secret_key must be set together")
		}
	default:
		return newFieldError("remote.type", "must be http or s3")
	}

	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return newFieldError("log.level", err.Error())
	}
	if c.Log.MaxSize < 0 || c.Log.MaxBackups < 0 {
		return newFieldError("log.max_size", "rotation limits must be >= 0")
	}
	return nil
}
