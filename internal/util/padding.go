package util

import (
	"sync/atomic"
	"unsafe"
)

// CacheLineSize is the assumed CPU cache line width.
const CacheLineSize = 64

// Counter is an atomic int64 occupying a whole cache line, so engine
// counters bumped from different reader goroutines never share a line.
type Counter struct {
	atomic.Int64
	_ [CacheLineSize - 8]byte
}

// Inc adds one.
func (c *Counter) Inc() { c.Add(1) }

var _ [CacheLineSize - int(unsafe.Sizeof(Counter{}))]byte
