// Package metrics implements the semantic cache's Metrics Registry
// (spec §4.7): atomic counters plus lock-free latency accumulators,
// exposed both programmatically (Snapshot) and as Prometheus text
// exposition (spec §6) via a dedicated *prometheus.Registry.
package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// latencyAccumulator is a lock-free sum+count pair used to derive a
// running average latency, the way §9's open question resolves it:
// the exposed gauge tracks the average since process start rather
// than a windowed average.
type latencyAccumulator struct {
	sumMicros int64
	count     int64
}

func (a *latencyAccumulator) observe(ms float64) {
	atomic.AddInt64(&a.sumMicros, int64(ms*1000))
	atomic.AddInt64(&a.count, 1)
}

func (a *latencyAccumulator) averageMs() float64 {
	count := atomic.LoadInt64(&a.count)
	if count == 0 {
		return 0
	}
	sum := atomic.LoadInt64(&a.sumMicros)
	return float64(sum) / float64(count) / 1000
}

// Registry is the semantic cache's metrics surface. All counters are
// atomic; label-keyed metrics (context bucket, tag) are registered
// lazily since their cardinality isn't known up front.
type Registry struct {
	reg    *prometheus.Registry
	prefix string

	totalQueries      prometheus.Counter
	hits              prometheus.Counter
	misses            prometheus.Counter
	errors            prometheus.Counter
	llmCallsAvoided   prometheus.Counter
	tokensSavedEst    prometheus.Counter
	l1Hits            prometheus.Counter
	l1Misses          prometheus.Counter
	l2Hits            prometheus.Counter
	l2Misses          prometheus.Counter
	staleServed       prometheus.Counter
	staleRefused      prometheus.Counter
	versionMismatches prometheus.Counter

	l1Latency latencyAccumulator
	l2Latency latencyAccumulator

	contextHits *prometheus.CounterVec
	tagInvalid  *prometheus.CounterVec
}

// New creates a Registry whose metric names carry the given prefix
// (defaults to "semantic_cache" per spec §6 if empty).
func New(prefix string) *Registry {
	if prefix == "" {
		prefix = "semantic_cache"
	}
	reg := prometheus.NewRegistry()
	r := &Registry{reg: reg, prefix: prefix}

	name := func(suffix string) string { return prefix + "_" + suffix }

	r.totalQueries = promauto.With(reg).NewCounter(prometheus.CounterOpts{Name: name("queries_total"), Help: "Total lookups issued to the cache."})
	r.hits = promauto.With(reg).NewCounter(prometheus.CounterOpts{Name: name("hits_total"), Help: "Lookups that returned a cached response."})
	r.misses = promauto.With(reg).NewCounter(prometheus.CounterOpts{Name: name("misses_total"), Help: "Lookups that found no usable entry."})
	r.errors = promauto.With(reg).NewCounter(prometheus.CounterOpts{Name: name("errors_total"), Help: "Lookups that failed due to a backend or embedding error."})
	r.llmCallsAvoided = promauto.With(reg).NewCounter(prometheus.CounterOpts{Name: name("llm_calls_avoided"), Help: "Upstream LLM calls avoided by a cache hit."})
	r.tokensSavedEst = promauto.With(reg).NewCounter(prometheus.CounterOpts{Name: name("tokens_saved_estimate_total"), Help: "Estimated tokens saved by cache hits (character-based estimate)."})
	r.l1Hits = promauto.With(reg).NewCounter(prometheus.CounterOpts{Name: name("l1_hits_total"), Help: "L1 store hits."})
	r.l1Misses = promauto.With(reg).NewCounter(prometheus.CounterOpts{Name: name("l1_misses_total"), Help: "L1 store misses."})
	r.l2Hits = promauto.With(reg).NewCounter(prometheus.CounterOpts{Name: name("l2_hits_total"), Help: "L2 backend hits."})
	r.l2Misses = promauto.With(reg).NewCounter(prometheus.CounterOpts{Name: name("l2_misses_total"), Help: "L2 backend misses."})
	r.staleServed = promauto.With(reg).NewCounter(prometheus.CounterOpts{Name: name("stale_served_total"), Help: "Entries served within the staleness tolerance window."})
	r.staleRefused = promauto.With(reg).NewCounter(prometheus.CounterOpts{Name: name("stale_refused_total"), Help: "Entries discarded for exceeding the staleness tolerance."})
	r.versionMismatches = promauto.With(reg).NewCounter(prometheus.CounterOpts{Name: name("version_mismatches_total"), Help: "Entries discarded for a stale cache_version."})

	promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{Name: name("l1_latency_ms"), Help: "Average L1 lookup latency since process start."}, r.l1Latency.averageMs)
	promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{Name: name("l2_latency_ms"), Help: "Average L2 lookup latency since process start."}, r.l2Latency.averageMs)
	promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{Name: name("hit_rate"), Help: "Overall hit rate percentage."}, r.hitRate)
	promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{Name: name("l1_hit_rate"), Help: "L1 hit rate percentage."}, r.l1HitRate)
	promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{Name: name("l2_hit_rate"), Help: "L2 hit rate percentage."}, r.l2HitRate)

	r.contextHits = promauto.With(reg).NewCounterVec(prometheus.CounterOpts{Name: name("context_hits_total"), Help: "Hits bucketed by the representative scope attribute."}, []string{"context_type"})
	r.tagInvalid = promauto.With(reg).NewCounterVec(prometheus.CounterOpts{Name: name("tag_invalidations_total"), Help: "Entries removed per invalidated tag."}, []string{"tag"})

	return r
}

// RecordQuery marks the start of a lookup.
func (r *Registry) RecordQuery() { r.totalQueries.Inc() }

// RecordHit marks a surviving cache hit and its avoided-LLM-call
// accounting.
func (r *Registry) RecordHit() {
	r.hits.Inc()
	r.llmCallsAvoided.Inc()
}

// RecordMiss marks a lookup that found nothing usable.
func (r *Registry) RecordMiss() { r.misses.Inc() }

// RecordError marks a lookup that failed due to a backend/embedding
// error (never propagated to the caller per spec §7).
func (r *Registry) RecordError() { r.errors.Inc() }

// AddTokensSavedEstimate adds to the additive tokens-saved estimate.
func (r *Registry) AddTokensSavedEstimate(n int) {
	if n > 0 {
		r.tokensSavedEst.Add(float64(n))
	}
}

// RecordL1 records an L1 outcome and its latency in milliseconds.
func (r *Registry) RecordL1(hit bool, latencyMs float64) {
	r.l1Latency.observe(latencyMs)
	if hit {
		r.l1Hits.Inc()
	} else {
		r.l1Misses.Inc()
	}
}

// RecordL2 records an L2 outcome and its latency in milliseconds.
func (r *Registry) RecordL2(hit bool, latencyMs float64) {
	r.l2Latency.observe(latencyMs)
	if hit {
		r.l2Hits.Inc()
	} else {
		r.l2Misses.Inc()
	}
}

// RecordContextHit increments the per-scope-bucket hit counter keyed
// by context_hit_key_field (or "_none_" when absent).
func (r *Registry) RecordContextHit(bucket string) {
	if bucket == "" {
		bucket = "_none_"
	}
	r.contextHits.WithLabelValues(bucket).Inc()
}

// RecordTagInvalidation records the number of entries removed for a
// given tag during invalidation.
func (r *Registry) RecordTagInvalidation(tag string, count int) {
	if count > 0 {
		r.tagInvalid.WithLabelValues(tag).Add(float64(count))
	}
}

// RecordStaleServed marks a stale-but-within-tolerance hit.
func (r *Registry) RecordStaleServed() { r.staleServed.Inc() }

// RecordStaleRefused marks a discard for exceeding staleness tolerance.
func (r *Registry) RecordStaleRefused() { r.staleRefused.Inc() }

// RecordVersionMismatch marks a discard for a stale cache_version.
func (r *Registry) RecordVersionMismatch() { r.versionMismatches.Inc() }

func (r *Registry) hitRate() float64 {
	hits := getCounterValue(r.hits)
	total := hits + getCounterValue(r.misses)
	if total == 0 {
		return 0
	}
	return hits / total * 100
}

func (r *Registry) l1HitRate() float64 {
	hits := getCounterValue(r.l1Hits)
	total := hits + getCounterValue(r.l1Misses)
	if total == 0 {
		return 0
	}
	return hits / total * 100
}

func (r *Registry) l2HitRate() float64 {
	hits := getCounterValue(r.l2Hits)
	total := hits + getCounterValue(r.l2Misses)
	if total == 0 {
		return 0
	}
	return hits / total * 100
}

func getCounterValue(c prometheus.Counter) float64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil || m.Counter == nil {
		return 0
	}
	return m.Counter.GetValue()
}

// Handler returns the Prometheus text-exposition HTTP handler for
// this registry's own metric set (spec §6).
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Snapshot is a point-in-time view of the registry, used by
// Manager.GetMetrics for programmatic (non-Prometheus) consumers.
type Snapshot struct {
	TotalQueries      float64
	Hits              float64
	Misses            float64
	Errors            float64
	LLMCallsAvoided   float64
	L1Hits            float64
	L1Misses          float64
	L2Hits            float64
	L2Misses          float64
	L1LatencyMs       float64
	L2LatencyMs       float64
	HitRate           float64
	L1HitRate         float64
	L2HitRate         float64
	StaleServed       float64
	StaleRefused      float64
	VersionMismatches float64
}

// Snapshot reads the current counter values without touching the
// Prometheus exposition path.
func (r *Registry) Snapshot() Snapshot {
	return Snapshot{
		TotalQueries:      getCounterValue(r.totalQueries),
		Hits:              getCounterValue(r.hits),
		Misses:            getCounterValue(r.misses),
		Errors:            getCounterValue(r.errors),
		LLMCallsAvoided:   getCounterValue(r.llmCallsAvoided),
		L1Hits:            getCounterValue(r.l1Hits),
		L1Misses:          getCounterValue(r.l1Misses),
		L2Hits:            getCounterValue(r.l2Hits),
		L2Misses:          getCounterValue(r.l2Misses),
		L1LatencyMs:       r.l1Latency.averageMs(),
		L2LatencyMs:       r.l2Latency.averageMs(),
		HitRate:           r.hitRate(),
		L1HitRate:         r.l1HitRate(),
		L2HitRate:         r.l2HitRate(),
		StaleServed:       getCounterValue(r.staleServed),
		StaleRefused:      getCounterValue(r.staleRefused),
		VersionMismatches: getCounterValue(r.versionMismatches),
	}
}
