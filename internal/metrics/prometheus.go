// Package metrics exposes Prometheus collectors for the allocation core.
//
// Two small collector groups exist: Allocation (allocator outcomes and
// eviction counts, on the hot `allocateNext` path) and Builder (per-category
// build throughput and shortfalls, on the much colder build path). Keeping
// them separate mirrors the teacher repo's split between hot-path and
// cold-path instrumentation (internal/metrics/prometheus.go in the teacher),
// without carrying over its VM/invocation-specific collectors, which have no
// analog here.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry wraps a dedicated prometheus.Registry for this process and the
// two collector groups built on top of it.
type Registry struct {
	registry   *prometheus.Registry
	Allocation *Allocation
	Builder    *Builder
}

// NewRegistry creates a Registry under namespace (default "satchel" if
// empty), registering Go/process collectors alongside the domain ones.
func NewRegistry(namespace string) *Registry {
	if namespace == "" {
		namespace = "satchel"
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	r := &Registry{
		registry:   reg,
		Allocation: newAllocation(namespace, reg),
		Builder:    newBuilder(namespace, reg),
	}
	return r
}

// Handler returns the promhttp handler serving this registry's collectors.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Allocation tracks allocator outcomes: successful allocations, pool
// exhaustion, and eviction counts, all labeled by category.
type Allocation struct {
	allocatedTotal *prometheus.CounterVec
	exhaustedTotal *prometheus.CounterVec
	evictedTotal   *prometheus.CounterVec
}

func newAllocation(namespace string, reg *prometheus.Registry) *Allocation {
	a := &Allocation{
		allocatedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "allocations_total",
			Help:      "Total number of sets successfully allocated to a user, by category.",
		}, []string{"category"}),
		exhaustedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "allocations_exhausted_total",
			Help:      "Total number of allocateNext calls that found no unseen set in the pool, by category.",
		}, []string{"category"}),
		evictedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evictions_total",
			Help:      "Total number of set-ids evicted from a user's ledger, by category.",
		}, []string{"category"}),
	}
	reg.MustRegister(a.allocatedTotal, a.exhaustedTotal, a.evictedTotal)
	return a
}

// Allocated records one successful allocation for category.
func (a *Allocation) Allocated(category string) {
	if a == nil {
		return
	}
	a.allocatedTotal.WithLabelValues(category).Inc()
}

// Exhausted records a pool-exhausted outcome for category.
func (a *Allocation) Exhausted(category string) {
	if a == nil {
		return
	}
	a.exhaustedTotal.WithLabelValues(category).Inc()
}

// Evicted records count set-ids evicted for category.
func (a *Allocation) Evicted(category string, count int) {
	if a == nil || count <= 0 {
		return
	}
	a.evictedTotal.WithLabelValues(category).Add(float64(count))
}

// Builder tracks set-builder throughput: sets produced, shortfalls, and
// batch duration, labeled by category.
type Builder struct {
	setsProducedTotal  *prometheus.CounterVec
	shortfallsTotal    *prometheus.CounterVec
	batchDurationSecs  *prometheus.HistogramVec
	poolDepth          *prometheus.GaugeVec
}

func newBuilder(namespace string, reg *prometheus.Registry) *Builder {
	b := &Builder{
		setsProducedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "builder_sets_produced_total",
			Help:      "Total number of sets produced by the builder, by category.",
		}, []string{"category"}),
		shortfallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "builder_shortfalls_total",
			Help:      "Total number of build runs that produced zero sets for a category due to insufficient items.",
		}, []string{"category"}),
		batchDurationSecs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "builder_batch_duration_seconds",
			Help:      "Wall-clock time to build one category's batch.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"category"}),
		poolDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_depth",
			Help:      "Current number of set-ids available in a category's pool.",
		}, []string{"category"}),
	}
	reg.MustRegister(b.setsProducedTotal, b.shortfallsTotal, b.batchDurationSecs, b.poolDepth)
	return b
}

// SetsProduced records n sets produced for category.
func (b *Builder) SetsProduced(category string, n int) {
	if b == nil || n <= 0 {
		return
	}
	b.setsProducedTotal.WithLabelValues(category).Add(float64(n))
}

// Shortfall records a zero-output build run for category.
func (b *Builder) Shortfall(category string) {
	if b == nil {
		return
	}
	b.shortfallsTotal.WithLabelValues(category).Inc()
}

// ObserveBatchDuration records how long building category's batch took.
func (b *Builder) ObserveBatchDuration(category string, seconds float64) {
	if b == nil {
		return
	}
	b.batchDurationSecs.WithLabelValues(category).Observe(seconds)
}

// SetPoolDepth records the current pool depth for category after enqueue.
func (b *Builder) SetPoolDepth(category string, depth int) {
	if b == nil {
		return
	}
	b.poolDepth.WithLabelValues(category).Set(float64(depth))
}
