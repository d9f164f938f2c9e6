// Package prom exports cache.Metrics to Prometheus.
package prom

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/IvanBrykalov/rangecache/cache"
)

// Adapter implements cache.Metrics and exports Prometheus counters and a
// fetch latency histogram. Safe for concurrent use; all Prometheus metric
// types are goroutine-safe.
type Adapter struct {
	hits        prometheus.Counter
	misses      prometheus.Counter
	fetches     prometheus.Counter
	fetchBytes  prometheus.Counter
	fetchTime   prometheus.Histogram
	shared      prometheus.Counter
	storeErrors *prometheus.CounterVec
	bypassed    prometheus.Counter
}

// New constructs a Prometheus metrics adapter.
//   - reg:          registry to register metrics with (nil => prometheus.DefaultRegisterer)
//   - ns, sub:      Prometheus namespace and subsystem
//   - constLabels:  static labels applied to all metrics (may be nil)
func New(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        name,
			Help:        help,
			ConstLabels: constLabels,
		})
	}
	a := &Adapter{
		hits:       counter("hits_total", "Units served from the store"),
		misses:     counter("misses_total", "Units absent from the store"),
		fetches:    counter("upstream_fetches_total", "Upstream range reads"),
		fetchBytes: counter("upstream_fetch_bytes_total", "Bytes read from the upstream source"),
		fetchTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "upstream_fetch_duration_seconds",
			Help:        "Latency of upstream range reads",
			ConstLabels: constLabels,
			Buckets:     prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
		shared: counter("shared_fetches_total", "Reads that joined a fetch started by another reader"),
		storeErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "store_errors_total",
				Help:        "Failed store operations by op",
				ConstLabels: constLabels,
			},
			[]string{"op"},
		),
		bypassed: counter("bypassed_reads_total", "Reads served straight from the source"),
	}
	reg.MustRegister(a.hits, a.misses, a.fetches, a.fetchBytes, a.fetchTime, a.shared, a.storeErrors, a.bypassed)
	return a
}

// Hit increments the hit counter.
func (a *Adapter) Hit() { a.hits.Inc() }

// Miss increments the miss counter.
func (a *Adapter) Miss() { a.misses.Inc() }

// Fetch records one upstream read.
func (a *Adapter) Fetch(n int, d time.Duration) {
	a.fetches.Inc()
	a.fetchBytes.Add(float64(n))
	a.fetchTime.Observe(d.Seconds())
}

// Shared increments the coalesced fetch counter.
func (a *Adapter) Shared() { a.shared.Inc() }

// StoreError increments the store error counter with an op label.
func (a *Adapter) StoreError(op string) {
	a.storeErrors.WithLabelValues(opLabel(op)).Inc()
}

// Bypass increments the bypass counter.
func (a *Adapter) Bypass() { a.bypassed.Inc() }

// opLabel maps store operations to a stable label value.
func opLabel(op string) string {
	switch op {
	case cache.OpGet, cache.OpSet:
		return op
	default:
		return "other"
	}
}

// Compile-time check: ensure Adapter implements cache.Metrics.
var _ cache.Metrics = (*Adapter)(nil)
