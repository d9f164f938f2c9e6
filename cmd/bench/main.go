// Command bench runs a synthetic range-read workload against the engine,
// backed by an in-process Redis server and a simulated remote, and
// exposes optional pprof/Prometheus endpoints.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/IvanBrykalov/rangecache/cache"
	pmet "github.com/IvanBrykalov/rangecache/metrics/prom"
	"github.com/IvanBrykalov/rangecache/source"
	"github.com/IvanBrykalov/rangecache/store"
	"github.com/IvanBrykalov/rangecache/store/compress"
	"github.com/IvanBrykalov/rangecache/store/redis"
)

func main() {
	// ---- Flags ----
	var (
		objects    = flag.Int("objects", 64, "number of remote objects")
		objectSize = flag.Int64("object_size", 8<<20, "bytes per object")
		blockSize  = flag.Int64("block", 1<<20, "cache block size")
		readSize   = flag.Int64("read", 64<<10, "bytes per read")
		latency    = flag.Duration("latency", 20*time.Millisecond, "simulated remote latency per request")
		zstd       = flag.Bool("zstd", false, "compress stored blocks")

		workers  = flag.Int("workers", 2*runtime.GOMAXPROCS(0), "number of worker goroutines")
		duration = flag.Duration("duration", 10*time.Second, "benchmark duration")

		zipfS = flag.Float64("zipf_s", 1.1, "Zipf s > 1 (skew over objects)")
		zipfV = flag.Float64("zipf_v", 1.0, "Zipf v")
		seed  = flag.Int64("seed", time.Now().UnixNano(), "random seed")

		pprofAddr   = flag.String("pprof", "", "serve pprof at addr (e.g. :6060); empty = disabled")
		metricsAddr = flag.String("http", ":8080", "serve Prometheus metrics at addr; empty = disabled")
	)
	flag.Parse()

	// ---- pprof server (on DefaultServeMux) ----
	if *pprofAddr != "" {
		go func() {
			log.Printf("pprof: serving at %s", *pprofAddr)
			log.Println(http.ListenAndServe(*pprofAddr, nil))
		}()
	}

	// ---- Prometheus metrics (on DefaultServeMux) ----
	metrics := pmet.New(nil, "rangecache", "bench", nil)
	if *metricsAddr != "" {
		http.Handle("/metrics", promhttp.Handler())
		go func() {
			log.Printf("metrics: serving at %s", *metricsAddr)
			log.Println(http.ListenAndServe(*metricsAddr, nil))
		}()
	}

	// ---- Store and remote ----
	mr, err := miniredis.Run()
	if err != nil {
		log.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	var st store.Store = redis.New(redis.Options{Addr: mr.Addr(), PoolSize: 4 * *workers})
	if *zstd {
		z, err := compress.New(st)
		if err != nil {
			log.Fatalf("zstd: %v", err)
		}
		st = z
	}

	remote := source.NewMemory()
	remote.Latency = *latency
	payload := make([]byte, *objectSize)
	rand.New(rand.NewSource(*seed)).Read(payload)
	for i := 0; i < *objects; i++ {
		remote.Put("obj-"+strconv.Itoa(i)+".bin", payload)
	}

	// ---- Build engine ----
	e, err := cache.New(cache.Options{
		BlockSize: *blockSize,
		Store:     st,
		Source:    remote,
		Metrics:   metrics,
	})
	if err != nil {
		log.Fatalf("engine: %v", err)
	}
	defer func() { _ = e.Close() }()

	// ---- Snapshot flags for goroutines ----
	objMax := uint64(*objects - 1)
	maxOff := *objectSize - *readSize
	if maxOff < 0 {
		log.Fatalf("read size %d exceeds object size %d", *readSize, *objectSize)
	}
	seedBase := *seed
	zipfSVal := *zipfS
	zipfVVal := *zipfV
	workersN := *workers
	if workersN <= 0 {
		workersN = 1
	}

	// ---- Load generation ----
	var reads, failures, bytesRead uint64
	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(workersN)
	for w := 0; w < workersN; w++ {
		go func(id int) {
			defer wg.Done()

			// Each worker gets its own RNG + Zipf (rand.Rand is NOT goroutine-safe).
			localR := rand.New(rand.NewSource(seedBase + int64(id)*9973))
			localZipf := rand.NewZipf(localR, zipfSVal, zipfVVal, objMax)

			for ctx.Err() == nil {
				path := "obj-" + strconv.FormatUint(localZipf.Uint64(), 10) + ".bin"
				off := localR.Int63n(maxOff + 1)
				b, err := e.Read(ctx, path, off, *readSize)
				if err != nil {
					if ctx.Err() == nil {
						atomic.AddUint64(&failures, 1)
					}
					continue
				}
				atomic.AddUint64(&reads, 1)
				atomic.AddUint64(&bytesRead, uint64(len(b)))
			}
		}(w)
	}
	wg.Wait()
	elapsed := time.Since(start)

	// ---- Report ----
	s := e.Stats()
	readsN := atomic.LoadUint64(&reads)
	dedup := 0.0
	if s.Misses > 0 {
		dedup = float64(s.Shared) / float64(s.Misses) * 100
	}

	fmt.Printf("objects=%d size=%d block=%d read=%d workers=%d latency=%v dur=%v seed=%d\n",
		*objects, *objectSize, *blockSize, *readSize, workersN, *latency, elapsed, seedBase)
	fmt.Printf("reads=%d (%.0f reads/s, %.1f MiB/s)  failures=%d\n",
		readsN, float64(readsN)/elapsed.Seconds(),
		float64(atomic.LoadUint64(&bytesRead))/elapsed.Seconds()/(1<<20), atomic.LoadUint64(&failures))
	fmt.Printf("hits=%d  misses=%d  hit-rate=%.2f%%\n", s.Hits, s.Misses, s.HitRatio()*100)
	fmt.Printf("upstream fetches=%d (%d bytes)  shared=%d (%.2f%% of misses)  store errors=%d\n",
		s.Fetches, s.FetchedBytes, s.Shared, dedup, s.StoreErrors)
	fmt.Printf("remote requests=%d  store keys=%d\n", remote.Reads(), len(mr.Keys()))
}
