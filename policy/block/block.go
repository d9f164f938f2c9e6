// Package block implements the fixed-size block caching policy.
package block

import (
	"errors"
	"fmt"

	"github.com/IvanBrykalov/rangecache/key"
	"github.com/IvanBrykalov/rangecache/policy"
)

// Planner tiles objects into blocks of a configured size. Block i covers
// [i*B, (i+1)*B); the last block of an object is clipped to its length.
type Planner struct {
	size      int64
	maxBlocks int
	codec     key.Codec
}

// Option configures a Planner.
type Option func(*Planner)

// WithMaxBlocksPerRead bypasses the cache for requests spanning more than
// n blocks, so large sequential scans do not flood the store. Values <= 0
// disable the limit.
func WithMaxBlocksPerRead(n int) Option {
	return func(p *Planner) { p.maxBlocks = n }
}

// New returns a block planner. blockSize must be > 0.
func New(blockSize int64, codec key.Codec, opts ...Option) (*Planner, error) {
	if blockSize <= 0 {
		return nil, errors.New("block: block size must be > 0")
	}
	p := &Planner{size: blockSize, codec: codec}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Kind implements policy.Planner.
func (p *Planner) Kind() policy.Kind { return policy.KindBlock }

// Plan emits the ascending run of blocks from the one holding req.Offset to
// the one holding req.End(). The block holding the first byte after the
// request is included when it exists, which warms the next block for
// sequential readers that stop on a block boundary.
//
// A request reaching past the object fails with policy.ErrOutOfRange;
// nothing is ever read past end-of-object.
func (p *Planner) Plan(req policy.Request, size policy.SizeFunc) (policy.Plan, error) {
	if req.Length == 0 {
		return policy.Plan{}, nil
	}
	objSize, err := size()
	if err != nil {
		return policy.Plan{}, err
	}
	if !req.Within(objSize) {
		return policy.Plan{}, fmt.Errorf("%w: %d bytes at %d of %q exceed size %d",
			policy.ErrOutOfRange, req.Length, req.Offset, req.Path, objSize)
	}

	first := req.Offset / p.size
	last := min(req.End()/p.size, (objSize-1)/p.size)
	count := last - first + 1

	if p.maxBlocks > 0 && count > int64(p.maxBlocks) {
		return policy.Plan{Bypass: true}, nil
	}

	units := make([]policy.Unit, 0, count)
	for i := first; i <= last; i++ {
		start := i * p.size
		end := min(start+p.size, objSize)
		units = append(units, policy.Unit{
			Key:    p.codec.Block(req.Path, i),
			Path:   req.Path,
			Offset: start,
			Length: end - start,
		})
	}
	return policy.Plan{Units: units}, nil
}

var _ policy.Planner = (*Planner)(nil)
