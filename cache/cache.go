package cache

import (
	"context"
	"fmt"
	"io"
	"math"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/rangecache/chunk"
	"github.com/IvanBrykalov/rangecache/internal/singleflight"
	"github.com/IvanBrykalov/rangecache/key"
	"github.com/IvanBrykalov/rangecache/policy"
	"github.com/IvanBrykalov/rangecache/policy/block"
	chunkpolicy "github.com/IvanBrykalov/rangecache/policy/chunk"
	"github.com/IvanBrykalov/rangecache/source"
	"github.com/IvanBrykalov/rangecache/store"
)

// Engine is the blocking range cache. Construct it with New.
type Engine struct {
	core *engine
}

// New constructs a blocking engine from opt.
// It fails with an error matching ErrConfiguration when a required option
// is missing or invalid; it never contacts the store or the source.
func New(opt Options) (*Engine, error) {
	c, err := newEngine(opt)
	if err != nil {
		return nil, err
	}
	return &Engine{core: c}, nil
}

// Read implements Reader.
func (e *Engine) Read(ctx context.Context, path string, off, n int64) ([]byte, error) {
	return e.core.read(ctx, path, off, n)
}

// ReadChunk implements Reader.
func (e *Engine) ReadChunk(ctx context.Context, array string, coord chunk.Coord) ([]byte, error) {
	return e.core.readChunk(ctx, array, coord)
}

// Stats implements Reader.
func (e *Engine) Stats() Stats { return e.core.stats.snapshot() }

// Policy returns the caching policy the engine was built with.
func (e *Engine) Policy() policy.Kind { return e.core.planner.Kind() }

// Codec returns the key codec, so operators can locate units in the store.
func (e *Engine) Codec() key.Codec { return e.core.codec }

// Close implements Reader.
func (e *Engine) Close() error { return e.core.close() }

// engine is shared by Engine and AsyncEngine.
type engine struct {
	opt     Options
	codec   key.Codec
	planner policy.Planner
	chunks  *chunkpolicy.Planner // nil under the block policy
	store   store.Store
	src     source.Source
	log     logrus.FieldLogger
	metrics Metrics

	units singleflight.Group[[]byte]
	sizes singleflight.Group[int64]

	stats  counters
	closed atomic.Bool
}

func newEngine(opt Options) (*engine, error) {
	opt.applyDefaults()
	if err := opt.validate(); err != nil {
		return nil, err
	}

	e := &engine{
		opt:     opt,
		codec:   key.New(opt.KeyPrefix),
		store:   opt.Store,
		src:     opt.Source,
		metrics: opt.Metrics,
		log:     opt.Logger.WithField("policy", opt.Policy.String()),
	}
	e.units.Shards = opt.CoordinatorShards
	e.sizes.Shards = opt.CoordinatorShards

	switch opt.Policy {
	case policy.KindBlock:
		p, err := block.New(opt.BlockSize, e.codec, block.WithMaxBlocksPerRead(opt.MaxBlocksPerRead))
		if err != nil {
			return nil, &OptionError{Option: "BlockSize", Reason: err.Error()}
		}
		e.planner = p
	case policy.KindChunk:
		p, err := chunkpolicy.New(opt.ChunkIndex, e.codec)
		if err != nil {
			return nil, &OptionError{Option: "ChunkIndex", Reason: err.Error()}
		}
		e.planner, e.chunks = p, p
	}
	return e, nil
}

func (e *engine) read(ctx context.Context, path string, off, n int64) ([]byte, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	if path == "" || off < 0 || n < 0 {
		return nil, fmt.Errorf("%w: path=%q off=%d n=%d", ErrInvalidRequest, path, off, n)
	}

	req := policy.Request{Path: path, Offset: off, Length: n}
	if !req.Within(math.MaxInt64) {
		return nil, fmt.Errorf("%w: %d bytes at %d of %q overflow", ErrOutOfRange, n, off, path)
	}
	plan, err := e.planner.Plan(req, func() (int64, error) { return e.size(ctx, path) })
	if err != nil {
		return nil, err
	}
	if plan.Bypass {
		return e.bypass(ctx, req)
	}
	if len(plan.Units) == 0 {
		return []byte{}, nil
	}

	parts := make([][]byte, len(plan.Units))
	if len(plan.Units) == 1 {
		if parts[0], err = e.resolve(ctx, plan.Units[0]); err != nil {
			return nil, err
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.opt.UnitConcurrency)
		for i, u := range plan.Units {
			g.Go(func() error {
				b, err := e.resolve(gctx, u)
				parts[i] = b
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}
	return assemble(req, plan.Units, parts)
}

func (e *engine) readChunk(ctx context.Context, array string, coord chunk.Coord) ([]byte, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	if e.chunks == nil {
		return nil, fmt.Errorf("%w: chunk reads require the chunk policy", ErrInvalidRequest)
	}
	u, err := e.chunks.Unit(array, coord)
	if err != nil {
		return nil, err
	}
	if u.Whole {
		if u.Length, err = e.size(ctx, u.Path); err != nil {
			return nil, err
		}
	}
	b, err := e.resolve(ctx, u)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

// assemble copies the requested window out of the resolved units, which
// are ascending and contiguous.
func assemble(req policy.Request, units []policy.Unit, parts [][]byte) ([]byte, error) {
	out := make([]byte, req.Length)
	end := req.End()
	filled := int64(0)
	for i, u := range units {
		lo, hi := max(req.Offset, u.Offset), min(end, u.End())
		if lo >= hi {
			continue
		}
		filled += int64(copy(out[lo-req.Offset:], parts[i][lo-u.Offset:hi-u.Offset]))
	}
	if filled != req.Length {
		return nil, fmt.Errorf("%w: %s [%d,%d) assembled %d bytes",
			ErrOutOfRange, req.Path, req.Offset, end, filled)
	}
	return out, nil
}

// resolve returns the bytes of u from the store or, on a miss, from the
// source. The returned slice may be shared with other callers and must not
// be modified.
func (e *engine) resolve(ctx context.Context, u policy.Unit) ([]byte, error) {
	if u.Inline != nil {
		return u.Inline, nil
	}
	log := e.log.WithFields(logrus.Fields{"key": u.Key, "path": u.Path})

	degraded := false
	b, ok, err := e.store.Get(ctx, u.Key)
	switch {
	case err != nil:
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		degraded = true
		e.storeError(log, OpGet, err)
	case ok && int64(len(b)) == u.Length:
		e.stats.hits.Inc()
		e.metrics.Hit()
		log.WithField("action", "hit").Debug("unit served from store")
		return b, nil
	case ok:
		log.WithFields(logrus.Fields{
			"action":   "length_mismatch",
			"expected": u.Length,
			"stored":   len(b),
		}).Warn("stored unit has wrong length, refetching")
	}

	e.stats.misses.Inc()
	e.metrics.Miss()
	log.WithField("action", "miss").Debug("unit not in store")

	b, shared, err := e.units.Do(ctx, u.Key, func() ([]byte, error) {
		return e.populate(ctx, u, !degraded)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		e.stats.shared.Inc()
		e.metrics.Shared()
	}
	return b, nil
}

// populate fetches u and writes it back. It runs once per coalesced key on
// a context detached from the caller.
func (e *engine) populate(ctx context.Context, u policy.Unit, write bool) ([]byte, error) {
	ctx, cancel := e.fetchContext(ctx)
	defer cancel()
	log := e.log.WithFields(logrus.Fields{"key": u.Key, "path": u.Path})

	if write {
		// Another process may have written the unit since our lookup.
		if b, ok, err := e.store.Get(ctx, u.Key); err == nil && ok && int64(len(b)) == u.Length {
			return b, nil
		}
	}

	start := time.Now()
	b, err := e.src.ReadRange(ctx, u.Path, u.Offset, u.Length)
	if err != nil {
		log.WithError(err).WithField("action", "fetch_failed").Warn("upstream read failed")
		return nil, fetchError(u.Path, u.Offset, u.Length, err)
	}
	if int64(len(b)) != u.Length {
		return nil, fetchError(u.Path, u.Offset, u.Length,
			fmt.Errorf("short read: got %d bytes", len(b)))
	}
	dur := time.Since(start)
	e.stats.fetches.Inc()
	e.stats.fetchedBytes.Add(int64(len(b)))
	e.metrics.Fetch(len(b), dur)
	log.WithFields(logrus.Fields{
		"action":   "fetch",
		"offset":   u.Offset,
		"length":   u.Length,
		"duration": dur,
	}).Debug("unit fetched")

	if write {
		if err := e.store.Set(ctx, u.Key, b, e.ttl()); err != nil {
			e.storeError(log, OpSet, err)
		}
	}
	return b, nil
}

// size returns the byte length of path. With Options.MemoizeSize the
// length is kept in the store next to the blocks of path.
func (e *engine) size(ctx context.Context, path string) (int64, error) {
	k := e.codec.Size(path)
	log := e.log.WithFields(logrus.Fields{"key": k, "path": path})

	write := e.opt.MemoizeSize
	var (
		b   []byte
		ok  bool
		err error
	)
	if write {
		b, ok, err = e.store.Get(ctx, k)
	}
	switch {
	case err != nil:
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		write = false
		e.storeError(log, OpGet, err)
	case ok:
		if n, perr := strconv.ParseInt(string(b), 10, 64); perr == nil && n >= 0 {
			return n, nil
		}
		log.WithField("action", "size_corrupt").Warn("stored size unreadable, refetching")
	}

	n, _, err := e.sizes.Do(ctx, k, func() (int64, error) {
		fctx, cancel := e.fetchContext(ctx)
		defer cancel()
		n, err := e.src.Size(fctx, path)
		if err != nil {
			return 0, fmt.Errorf("%w: size of %s: %w", ErrUpstreamFetchFailed, path, err)
		}
		if write {
			if err := e.store.Set(fctx, k, []byte(strconv.FormatInt(n, 10)), e.ttl()); err != nil {
				e.storeError(log, OpSet, err)
			}
		}
		return n, nil
	})
	return n, err
}

// bypass serves a read directly from the source without touching the
// store.
func (e *engine) bypass(ctx context.Context, req policy.Request) ([]byte, error) {
	e.stats.bypassed.Inc()
	e.metrics.Bypass()
	e.log.WithFields(logrus.Fields{
		"action": "bypass",
		"path":   req.Path,
		"offset": req.Offset,
		"length": req.Length,
	}).Debug("read spans too many blocks, bypassing cache")

	b, err := e.src.ReadRange(ctx, req.Path, req.Offset, req.Length)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fetchError(req.Path, req.Offset, req.Length, err)
	}
	if int64(len(b)) != req.Length {
		return nil, fetchError(req.Path, req.Offset, req.Length,
			fmt.Errorf("short read: got %d bytes", len(b)))
	}
	return b, nil
}

func (e *engine) fetchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithoutCancel(ctx)
	if e.opt.FetchTimeout > 0 {
		return context.WithTimeout(ctx, e.opt.FetchTimeout)
	}
	return context.WithCancel(ctx)
}

func (e *engine) ttl() time.Duration {
	if e.opt.Expiry < 0 {
		return 0
	}
	return e.opt.Expiry
}

func (e *engine) storeError(log logrus.FieldLogger, op string, err error) {
	e.stats.storeErrors.Inc()
	e.metrics.StoreError(op)
	log.WithError(store.Unavailable(err)).WithField("action", "store_"+op).Warn("store unavailable, continuing without cache")
}

func (e *engine) close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	return e.closeStore()
}

func (e *engine) closeStore() error {
	if c, ok := e.store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
