package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/IvanBrykalov/rangecache/cache"
)

// EnvPrefix prefixes environment overrides: RANGECACHE_BLOCK_SIZE,
// RANGECACHE_STORE_ADDR and so on.
const EnvPrefix = "RANGECACHE"

// Load reads the configuration file at path (TOML, YAML or JSON by
// extension), applies defaults and environment overrides and validates
// the result. An empty path uses defaults and the environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", cache.ErrConfiguration, err)
	}
	normalize(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("policy", "block")
	v.SetDefault("block_size", 0)
	v.SetDefault("max_blocks_per_read", 0)
	v.SetDefault("expiry", "168h")
	v.SetDefault("key_prefix", "")
	v.SetDefault("unit_concurrency", cache.DefaultUnitConcurrency)
	v.SetDefault("max_in_flight", cache.DefaultMaxInFlight)
	v.SetDefault("fetch_timeout", "0s")
	v.SetDefault("memoize_size", false)
	v.SetDefault("chunk_index", "")

	v.SetDefault("store.addr", "localhost:6379")
	v.SetDefault("store.password", "")
	v.SetDefault("store.db", 0)
	v.SetDefault("store.pool_size", 0)
	v.SetDefault("store.dial_timeout", "5s")
	v.SetDefault("store.read_timeout", "3s")
	v.SetDefault("store.write_timeout", "3s")
	v.SetDefault("store.set_if_absent", false)
	v.SetDefault("store.compression", "none")

	v.SetDefault("remote.type", "http")
	v.SetDefault("remote.endpoint", "")
	v.SetDefault("remote.bucket", "")
	v.SetDefault("remote.prefix", "")
	v.SetDefault("remote.region", "")
	v.SetDefault("remote.access_key", "")
	v.SetDefault("remote.secret_key", "")
	v.SetDefault("remote.use_ssl", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 10)
	v.SetDefault("log.compress", true)

	v.SetDefault("metrics.addr", "")
	v.SetDefault("metrics.namespace", "rangecache")
}

func normalize(c *Config) {
	c.Policy = strings.ToLower(strings.TrimSpace(c.Policy))
	c.Store.Compression = strings.ToLower(strings.TrimSpace(c.Store.Compression))
	c.Remote.Type = strings.ToLower(strings.TrimSpace(c.Remote.Type))
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return parseDuration(v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("unsupported duration type %T", v)
		}
	}
}
