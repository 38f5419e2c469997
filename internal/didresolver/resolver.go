// Package didresolver maps opaque Bluesky author identifiers to
// human-readable handles, with a bounded LRU+TTL cache, batched upstream
// fetches, and in-flight request deduplication.
package didresolver

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Result is one entry of a ResolveHandles response.
type Result struct {
	ID        string
	Handle    string
	Found     bool
	FromCache bool
}

// Metrics is a point-in-time snapshot of resolver counters.
type Metrics struct {
	TotalRequests int64
	CacheHits     int64
	CacheMisses   int64
	Failures      int64
	CacheSize     int
	HitRate       float64
}

// Config configures a Resolver.
type Config struct {
	APIBaseURL       string
	MaxCacheSize     int
	CacheTTL         time.Duration
	BatchSize        int
	RequestTimeout   time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxCacheSize <= 0 {
		c.MaxCacheSize = 10000
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 25
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 5 * time.Second
	}
	return c
}

// Resolver maps opaque Bluesky author ids to human-readable handles.
type Resolver struct {
	cfg    Config
	cache  *cache
	client *xrpcClient
	group  singleflight.Group

	mu            sync.Mutex
	totalRequests int64
	cacheHits     int64
	cacheMisses   int64
	failures      int64

	sweepTicker *time.Ticker
	sweepDone   chan struct{}
}

// NewResolver constructs a Resolver. Call StartSweep to enable periodic TTL
// eviction in the background.
func NewResolver(cfg Config) (*Resolver, error) {
	cfg = cfg.withDefaults()
	c, err := newCache(cfg.MaxCacheSize, cfg.CacheTTL)
	if err != nil {
		return nil, err
	}
	return &Resolver{
		cfg:    cfg,
		cache:  c,
		client: newXRPCClient(cfg.APIBaseURL, cfg.RequestTimeout),
	}, nil
}

// ResolveHandle resolves id to a handle, or returns id itself on failure
// (consumers see the identifier instead of an error).
func (r *Resolver) ResolveHandle(ctx context.Context, id string) string {
	handle, ok := r.ResolveHandleOrNull(ctx, id)
	if !ok {
		return id
	}
	return handle
}

// ResolveHandleOrNull resolves id to a handle, or returns ("", false) on
// failure or validation rejection.
func (r *Resolver) ResolveHandleOrNull(ctx context.Context, id string) (string, bool) {
	if !validID(id) {
		return "", false
	}

	r.mu.Lock()
	r.totalRequests++
	r.mu.Unlock()

	if handle, ok := r.cache.get(id); ok {
		r.mu.Lock()
		r.cacheHits++
		r.mu.Unlock()
		return handle, true
	}

	r.mu.Lock()
	r.cacheMisses++
	r.mu.Unlock()

	handleIface, err, _ := r.group.Do(id, func() (interface{}, error) {
		reqCtx, cancel := context.WithTimeout(ctx, r.cfg.RequestTimeout)
		defer cancel()
		return r.client.getProfile(reqCtx, id)
	})
	if err != nil {
		r.recordFailure(1, err)
		return "", false
	}

	handle := handleIface.(string)
	r.cache.set(id, handle)
	return handle, true
}

// ResolveHandles resolves many ids at once, chunking uncached ids into
// batched upstream requests bounded by cfg.BatchSize.
func (r *Resolver) ResolveHandles(ctx context.Context, ids []string) []Result {
	results := make([]Result, len(ids))
	var uncachedIdx []int

	for i, id := range ids {
		r.mu.Lock()
		r.totalRequests++
		r.mu.Unlock()

		if !validID(id) {
			results[i] = Result{ID: id, Found: false}
			continue
		}
		if handle, ok := r.cache.get(id); ok {
			r.mu.Lock()
			r.cacheHits++
			r.mu.Unlock()
			results[i] = Result{ID: id, Handle: handle, Found: true, FromCache: true}
			continue
		}
		r.mu.Lock()
		r.cacheMisses++
		r.mu.Unlock()
		uncachedIdx = append(uncachedIdx, i)
	}

	for _, idx := range uncachedIdx {
		results[idx].ID = ids[idx]
	}

	for start := 0; start < len(uncachedIdx); start += r.cfg.BatchSize {
		end := start + r.cfg.BatchSize
		if end > len(uncachedIdx) {
			end = len(uncachedIdx)
		}
		r.resolveBatch(ctx, uncachedIdx[start:end], results)
	}

	return results
}

func (r *Resolver) resolveBatch(ctx context.Context, chunkIdx []int, results []Result) {
	ids := make([]string, len(chunkIdx))
	for i, idx := range chunkIdx {
		ids[i] = results[idx].ID
	}

	batchTimeout := 2 * r.cfg.RequestTimeout
	reqCtx, cancel := context.WithTimeout(ctx, batchTimeout)
	defer cancel()

	handles, err := r.client.getProfiles(reqCtx, ids)
	if err != nil {
		r.recordFailure(int64(len(ids)), err)
		for _, idx := range chunkIdx {
			results[idx] = Result{ID: results[idx].ID, Found: false}
		}
		return
	}

	for _, idx := range chunkIdx {
		id := results[idx].ID
		handle, ok := handles[id]
		if !ok {
			results[idx] = Result{ID: id, Found: false}
			continue
		}
		r.cache.set(id, handle)
		results[idx] = Result{ID: id, Handle: handle, Found: true}
	}
}

// WarmCache resolves and caches ids without returning results.
func (r *Resolver) WarmCache(ctx context.Context, ids []string) {
	r.ResolveHandles(ctx, ids)
}

// GetMetrics returns a point-in-time snapshot.
func (r *Resolver) GetMetrics() Metrics {
	r.mu.Lock()
	defer r.mu.Unlock()

	hitRate := 0.0
	if total := r.cacheHits + r.cacheMisses; total > 0 {
		hitRate = roundTo3(float64(r.cacheHits) / float64(total))
	}

	return Metrics{
		TotalRequests: r.totalRequests,
		CacheHits:     r.cacheHits,
		CacheMisses:   r.cacheMisses,
		Failures:      r.failures,
		CacheSize:     r.cache.len(),
		HitRate:       hitRate,
	}
}

// StartSweep begins a periodic background TTL eviction pass.
func (r *Resolver) StartSweep(interval time.Duration) {
	r.sweepTicker = time.NewTicker(interval)
	r.sweepDone = make(chan struct{})
	ticker := r.sweepTicker
	done := r.sweepDone

	go func() {
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				r.cache.sweep()
			}
		}
	}()
}

// StopSweep stops the periodic TTL eviction pass.
func (r *Resolver) StopSweep() {
	if r.sweepTicker != nil {
		r.sweepTicker.Stop()
		close(r.sweepDone)
	}
}

// recordFailure applies the failure policy: validation failures never reach
// here (they return before incrementing); a 429 increments failures by the
// full batch size (count), matching the "do not retry synchronously" rule;
// every other failure kind also counts, at the same granularity the caller
// passed in.
func (r *Resolver) recordFailure(count int64, _ error) {
	r.mu.Lock()
	r.failures += count
	r.mu.Unlock()
}

// validID rejects empty ids and ids with no scheme prefix, without counting
// as an upstream failure.
func validID(id string) bool {
	if id == "" {
		return false
	}
	return strings.Contains(id, ":")
}

func roundTo3(v float64) float64 {
	return float64(int(v*1000+0.5)) / 1000
}
