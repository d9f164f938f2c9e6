package cache

import (
	"time"

	"github.com/IvanBrykalov/rangecache/internal/util"
)

// Store operations reported to Metrics.StoreError.
const (
	OpGet = "get"
	OpSet = "set"
)

// Metrics exposes engine-level observability hooks.
// A NoopMetrics implementation is provided and used by default.
type Metrics interface {
	// Hit is called for a unit served from the store.
	Hit()
	// Miss is called for a unit absent from the store.
	Miss()
	// Fetch is called after a successful upstream read of n bytes.
	Fetch(n int, d time.Duration)
	// Shared is called when a caller received the bytes of a fetch it did
	// not lead.
	Shared()
	// StoreError is called for a failed store operation (OpGet, OpSet).
	StoreError(op string)
	// Bypass is called for a read served straight from the source.
	Bypass()
}

// NoopMetrics is a drop-in Metrics implementation that does nothing.
type NoopMetrics struct{}

func (NoopMetrics) Hit()                     {}
func (NoopMetrics) Miss()                    {}
func (NoopMetrics) Fetch(int, time.Duration) {}
func (NoopMetrics) Shared()                  {}
func (NoopMetrics) StoreError(string)        {}
func (NoopMetrics) Bypass()                  {}

// Ensure NoopMetrics implements the Metrics interface at compile time.
var _ Metrics = NoopMetrics{}

// Stats is a snapshot of engine counters.
type Stats struct {
	Hits         int64
	Misses       int64
	Fetches      int64
	FetchedBytes int64
	Shared       int64
	StoreErrors  int64
	Bypassed     int64
}

// HitRatio returns Hits/(Hits+Misses), or 0 before the first unit.
func (s Stats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

type counters struct {
	hits         util.Counter
	misses       util.Counter
	fetches      util.Counter
	fetchedBytes util.Counter
	shared       util.Counter
	storeErrors  util.Counter
	bypassed     util.Counter
}

func (c *counters) snapshot() Stats {
	return Stats{
		Hits:         c.hits.Load(),
		Misses:       c.misses.Load(),
		Fetches:      c.fetches.Load(),
		FetchedBytes: c.fetchedBytes.Load(),
		Shared:       c.shared.Load(),
		StoreErrors:  c.storeErrors.Load(),
		Bypassed:     c.bypassed.Load(),
	}
}
