// Package util contains internal helpers (hashing, sharding, padding).
//revive:disable:var-naming  // allow 'util' as an internal helpers package name
package util

import (
	"encoding/binary"
	"encoding/hex"
)

const (
	fnvOffset64 = 14695981039346656037
	fnvPrime64  = 1099511628211
)

// Fnv64a hashes s using 64-bit FNV-1a without allocating.
// Used to pick a ticket shard for a cache key.
func Fnv64a(s string) uint64 {
	h := uint64(fnvOffset64)
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= fnvPrime64
	}
	return h
}

// Fnv64aBytes is the []byte counterpart of Fnv64a.
func Fnv64aBytes(b []byte) uint64 {
	h := uint64(fnvOffset64)
	for _, c := range b {
		h ^= uint64(c)
		h *= fnvPrime64
	}
	return h
}

// Digest returns the FNV-1a hash of b as 16 lowercase hex characters.
// The value is stable across processes and releases, so it may be embedded
// in shared cache keys.
func Digest(b []byte) string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], Fnv64aBytes(b))
	return hex.EncodeToString(buf[:])
}
