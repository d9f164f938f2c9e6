// Package config loads engine configuration from a file and RANGECACHE_*
// environment variables.
package config

import (
	"strconv"
	"strings"
	"time"
)

// Config is the complete runtime configuration.
type Config struct {
	// Policy is "block" or "chunk".
	Policy           string   `mapstructure:"policy"`
	BlockSize        int64    `mapstructure:"block_size"`
	MaxBlocksPerRead int      `mapstructure:"max_blocks_per_read"`
	Expiry           Duration `mapstructure:"expiry"`
	KeyPrefix        string   `mapstructure:"key_prefix"`
	UnitConcurrency  int      `mapstructure:"unit_concurrency"`
	MaxInFlight      int      `mapstructure:"max_in_flight"`
	FetchTimeout     Duration `mapstructure:"fetch_timeout"`
	MemoizeSize      bool     `mapstructure:"memoize_size"`

	// ChunkIndex is a file path or http(s) URL of a reference document.
	// Required under the chunk policy.
	ChunkIndex string `mapstructure:"chunk_index"`

	Store   StoreConfig   `mapstructure:"store"`
	Remote  RemoteConfig  `mapstructure:"remote"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// StoreConfig configures the Redis store.
type StoreConfig struct {
	Addr         string   `mapstructure:"addr"`
	Password     string   `mapstructure:"password"`
	DB           int      `mapstructure:"db"`
	PoolSize     int      `mapstructure:"pool_size"`
	DialTimeout  Duration `mapstructure:"dial_timeout"`
	ReadTimeout  Duration `mapstructure:"read_timeout"`
	WriteTimeout Duration `mapstructure:"write_timeout"`
	SetIfAbsent  bool     `mapstructure:"set_if_absent"`
	// Compression is "none" or "zstd".
	Compression string `mapstructure:"compression"`
}

// RemoteConfig configures the upstream source.
type RemoteConfig struct {
	// Type is "http" or "s3".
	Type      string            `mapstructure:"type"`
	Endpoint  string            `mapstructure:"endpoint"`
	Bucket    string            `mapstructure:"bucket"`
	Prefix    string            `mapstructure:"prefix"`
	Region    string            `mapstructure:"region"`
	AccessKey string            `mapstructure:"access_key"`
	SecretKey string            `mapstructure:"secret_key"`
	UseSSL    bool              `mapstructure:"use_ssl"`
	Headers   map[string]string `mapstructure:"headers"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `mapstructure:"level"`
	// File enables rotation into the named file; empty logs to stdout.
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address of /metrics; empty disables it.
	Addr      string `mapstructure:"addr"`
	Namespace string `mapstructure:"namespace"`
}

// Duration decodes Go duration strings ("90s", "168h") as well as plain
// integer seconds.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := parseDuration(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// DurationValue returns d as a time.Duration.
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

func parseDuration(raw string) (Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if parsed, err := time.ParseDuration(raw); err == nil {
		return Duration(parsed), nil
	}
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, &FieldError{Field: "duration", Reason: "cannot parse " + strconv.Quote(raw)}
	}
	return Duration(time.Duration(seconds * float64(time.Second))), nil
}
