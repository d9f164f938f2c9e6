package util

import (
	"math/bits"
	"runtime"
)

// MaxShards caps the number of fetch ticket shards.
const MaxShards = 256

// ShardCount normalizes a requested shard count to a power of two in
// [1, MaxShards]. n <= 0 picks twice GOMAXPROCS.
func ShardCount(n int) int {
	if n <= 0 {
		n = 2 * runtime.GOMAXPROCS(0)
	}
	if n >= MaxShards {
		return MaxShards
	}
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}

// ShardOf maps key onto one of shards buckets; shards must come from
// ShardCount.
func ShardOf(key string, shards int) int {
	if shards <= 1 {
		return 0
	}
	return int(Fnv64a(key) & uint64(shards-1))
}
