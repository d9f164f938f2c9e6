package cache

import (
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/IvanBrykalov/rangecache/chunk"
	"github.com/IvanBrykalov/rangecache/policy"
	"github.com/IvanBrykalov/rangecache/source"
	"github.com/IvanBrykalov/rangecache/store"
)

// Defaults applied by New and NewAsync.
const (
	// DefaultExpiry is the lifetime of a stored unit: one week.
	DefaultExpiry = 7 * 24 * time.Hour
	// DefaultUnitConcurrency bounds concurrent unit resolution per read.
	DefaultUnitConcurrency = 8
	// DefaultMaxInFlight bounds concurrently running AsyncEngine reads.
	DefaultMaxInFlight = 64
)

// Options configures an engine. Zero values are safe except where noted;
// defaults are applied in New:
//   - Policy 0            => policy.KindBlock
//   - Expiry 0            => DefaultExpiry (negative stores without expiry)
//   - UnitConcurrency <= 0 => DefaultUnitConcurrency
//   - MaxInFlight <= 0     => DefaultMaxInFlight
//   - nil Metrics         => NoopMetrics
//   - nil Logger          => discard
type Options struct {
	// Policy selects the unit of caching.
	Policy policy.Kind

	// BlockSize is the block length in bytes. Required under the block
	// policy.
	BlockSize int64

	// MaxBlocksPerRead makes reads spanning more blocks bypass the cache
	// and go straight to the source. 0 disables the limit.
	MaxBlocksPerRead int

	// ChunkIndex lists the chunks of the source. Required under the chunk
	// policy.
	ChunkIndex *chunk.Index

	// Store holds cached units. Required.
	Store store.Store

	// Source serves bytes on a miss. Required.
	Source source.Source

	// Expiry is the TTL of every unit written to the store.
	Expiry time.Duration

	// KeyPrefix namespaces every key written to the store.
	KeyPrefix string

	// UnitConcurrency bounds how many units of one read are resolved at
	// once.
	UnitConcurrency int

	// MaxInFlight bounds how many AsyncEngine reads run at once. Further
	// reads queue without blocking the submitter.
	MaxInFlight int

	// FetchTimeout bounds each upstream read. Fetches run detached from
	// the caller's context, so this is the only limit on a shared fetch.
	// 0 disables the limit.
	FetchTimeout time.Duration

	// MemoizeSize stores object sizes next to their blocks so that other
	// processes skip the size query.
	MemoizeSize bool

	// CoordinatorShards overrides the number of fetch ticket shards.
	CoordinatorShards int

	// Observability
	Metrics Metrics
	Logger  logrus.FieldLogger
}

func (o *Options) applyDefaults() {
	if o.Policy == 0 {
		o.Policy = policy.KindBlock
	}
	if o.Expiry == 0 {
		o.Expiry = DefaultExpiry
	}
	if o.UnitConcurrency <= 0 {
		o.UnitConcurrency = DefaultUnitConcurrency
	}
	if o.MaxInFlight <= 0 {
		o.MaxInFlight = DefaultMaxInFlight
	}
	if o.Metrics == nil {
		o.Metrics = NoopMetrics{}
	}
	if o.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		o.Logger = l
	}
}

func (o *Options) validate() error {
	if o.Store == nil {
		return &OptionError{Option: "Store", Reason: "is required"}
	}
	if o.Source == nil {
		return &OptionError{Option: "Source", Reason: "is required"}
	}
	if o.MaxBlocksPerRead < 0 {
		return &OptionError{Option: "MaxBlocksPerRead", Reason: "must be >= 0"}
	}
	if o.FetchTimeout < 0 {
		return &OptionError{Option: "FetchTimeout", Reason: "must be >= 0"}
	}
	switch o.Policy {
	case policy.KindBlock:
		if o.BlockSize <= 0 {
			return &OptionError{Option: "BlockSize", Reason: "must be > 0 under the block policy"}
		}
	case policy.KindChunk:
		if o.ChunkIndex == nil {
			return &OptionError{Option: "ChunkIndex", Reason: "is required under the chunk policy"}
		}
	default:
		return &OptionError{Option: "Policy", Reason: "unknown kind " + o.Policy.String()}
	}
	return nil
}
