// Package cache implements a read-through range cache over a remote,
// randomly accessible byte source, backed by a shared external keyed store.
//
// Design
//
//   - Units: a read is decomposed into cache units by a policy chosen once
//     at construction (package policy): fixed-size blocks, or the chunks of
//     a chunk index. Every unit is stored under a deterministic key (package
//     key), so independent processes pointed at the same store share data.
//
//   - Resolution: each unit is looked up in the store first. On a miss the
//     unit is fetched from the source and written back with the configured
//     expiry. Store failures never fail a read; the unit is fetched and the
//     write is skipped.
//
//   - Coalescing: concurrent misses for one key inside a process share a
//     single upstream fetch. Cancelling one waiter never cancels a fetch
//     other waiters depend on. Failed fetches are never cached.
//
//   - Access models: Engine serves blocking reads; AsyncEngine returns a
//     Future per read and bounds how many reads run at once.
//
//   - Metrics: Options.Metrics receives hit, miss and fetch signals. The
//     default is NoopMetrics; package metrics/prom exports them to
//     Prometheus.
//
// Basic usage
//
//	e, err := cache.New(cache.Options{
//	    BlockSize: 4 << 20,
//	    Store:     redis.New(redis.Options{Addr: "localhost:6379"}),
//	    Source:    http.New("https://data.example.com"),
//	})
//	if err != nil {
//	    return err
//	}
//	defer e.Close()
//	b, err := e.Read(ctx, "dataset/part-0.bin", 30, 50)
//
// Chunk policy
//
//	ix, _ := chunk.LoadReferences("refs.json", f)
//	e, err := cache.New(cache.Options{
//	    Policy:     policy.KindChunk,
//	    ChunkIndex: ix,
//	    Store:      st,
//	    Source:     src,
//	})
//	b, err := e.ReadChunk(ctx, "temp", chunk.Coord{0, 1})
package cache
