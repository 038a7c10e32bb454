package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/SebastianCielma/RAG/internal/ragerr"
)

// DefaultCacheSize bounds the embedding cache when no capacity is configured.
const DefaultCacheSize = 1000

// CachingEncoder wraps an Embedder with a bounded, content-addressed
// vector cache. Texts are keyed by a hash of their content, so identical
// texts are embedded at most once per cache lifetime. Eviction is strictly
// insertion-order (oldest entry first) — the cache guarantees bounded
// memory, not an optimal hit rate.
//
// Cached vectors are returned by reference; callers must not mutate the
// slices they receive.
type CachingEncoder struct {
	inner    Embedder
	capacity int

	mu      sync.Mutex
	entries map[string][]float32
	order   []string // insertion order, oldest first

	metrics *cacheMetrics
}

// NewCachingEncoder wraps inner with a cache of the given capacity
// (<= 0 selects DefaultCacheSize). Cache metrics are registered on reg;
// a nil registerer disables them.
func NewCachingEncoder(inner Embedder, capacity int, reg prometheus.Registerer) *CachingEncoder {
	if capacity <= 0 {
		capacity = DefaultCacheSize
	}
	return &CachingEncoder{
		inner:    inner,
		capacity: capacity,
		entries:  make(map[string][]float32, capacity),
		metrics:  newCacheMetrics(reg),
	}
}

// Embed returns one vector per input text, serving repeats from the cache
// and batch-encoding only the misses through the wrapped embedder. Output
// order matches input order. An empty batch is rejected: embedding nothing
// is meaningless and almost always a caller bug.
func (c *CachingEncoder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ragerr.New(ragerr.KindValidation, "embedding an empty batch")
	}

	out := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	var missIdx []int

	c.mu.Lock()
	for i, t := range texts {
		keys[i] = cacheKey(t)
		if vec, ok := c.entries[keys[i]]; ok {
			out[i] = vec
		} else {
			missIdx = append(missIdx, i)
		}
	}
	c.mu.Unlock()

	c.metrics.hits.Add(float64(len(texts) - len(missIdx)))
	c.metrics.misses.Add(float64(len(missIdx)))

	if len(missIdx) == 0 {
		return out, nil
	}

	missTexts := make([]string, len(missIdx))
	for j, i := range missIdx {
		missTexts[j] = texts[i]
	}

	vecs, err := c.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missTexts) {
		return nil, ragerr.Newf(ragerr.KindEmbedding,
			"embedder returned %d vectors for %d texts", len(vecs), len(missTexts))
	}

	c.mu.Lock()
	for j, i := range missIdx {
		out[i] = vecs[j]
		c.put(keys[i], vecs[j])
	}
	c.metrics.size.Set(float64(len(c.entries)))
	c.mu.Unlock()

	return out, nil
}

// put inserts a vector under key, evicting the oldest entry at capacity.
// Re-inserting an existing key (duplicate texts in one batch) refreshes
// the value without growing the order queue. Callers hold c.mu.
func (c *CachingEncoder) put(key string, vec []float32) {
	if _, ok := c.entries[key]; ok {
		c.entries[key] = vec
		return
	}
	if len(c.order) >= c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
		c.metrics.evictions.Inc()
	}
	c.entries[key] = vec
	c.order = append(c.order, key)
}

// Warmup performs one discarded encode against the backend so the first
// real request does not pay model load latency. The result is not cached.
func (c *CachingEncoder) Warmup(ctx context.Context) error {
	if _, err := c.inner.Embed(ctx, []string{"warmup"}); err != nil {
		return err
	}
	return nil
}

// CacheLen returns the current number of cached entries.
func (c *CachingEncoder) CacheLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Capacity returns the configured cache bound.
func (c *CachingEncoder) Capacity() int { return c.capacity }

// ClearCache drops every cached vector.
func (c *CachingEncoder) ClearCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string][]float32, c.capacity)
	c.order = nil
	c.metrics.size.Set(0)
}

// Dimensions returns the wrapped embedder's vector width.
func (c *CachingEncoder) Dimensions() int { return c.inner.Dimensions() }

// Name identifies the wrapped backend.
func (c *CachingEncoder) Name() string { return c.inner.Name() }

// cacheKey hashes text content to a short stable key.
func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])[:16]
}

// cacheMetrics tracks cache effectiveness.
type cacheMetrics struct {
	hits      prometheus.Counter
	misses    prometheus.Counter
	evictions prometheus.Counter
	size      prometheus.Gauge
}

// newCacheMetrics registers the cache metrics on reg. A nil registerer
// yields working but unregistered metrics, which keeps tests hermetic.
func newCacheMetrics(reg prometheus.Registerer) *cacheMetrics {
	f := promauto.With(reg)
	return &cacheMetrics{
		hits: f.NewCounter(prometheus.CounterOpts{
			Namespace: "rag", Subsystem: "embed_cache", Name: "hits_total",
			Help: "Embedding cache hits.",
		}),
		misses: f.NewCounter(prometheus.CounterOpts{
			Namespace: "rag", Subsystem: "embed_cache", Name: "misses_total",
			Help: "Embedding cache misses.",
		}),
		evictions: f.NewCounter(prometheus.CounterOpts{
			Namespace: "rag", Subsystem: "embed_cache", Name: "evictions_total",
			Help: "Entries evicted due to the capacity bound.",
		}),
		size: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "rag", Subsystem: "embed_cache", Name: "entries",
			Help: "Current number of cached embeddings.",
		}),
	}
}
