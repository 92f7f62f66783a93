// Package cache implements the per-run result cache (C7): a sharded
// concurrent map from normalized domain to the last emitted Record, with
// in-flight coalescing so two concurrent probes for the same domain share
// one outcome instead of duplicating work.
package cache

import (
	"context"
	"hash/fnv"
	"math/rand"
	"sync"

	"github.com/sentri-project/sentri/internal/domain"
	"github.com/sentri-project/sentri/internal/model"
)

const shardCount = 32

// DefaultCapacity is the default bound on total cached entries (§4.7).
const DefaultCapacity = 100_000

type entry struct {
	done    chan struct{}
	record  model.Record
	aborted bool
}

type shard struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// Cache is the process-wide, in-memory result cache. It is never persisted
// and is discarded at process exit.
type Cache struct {
	shards   []*shard
	capacity int
	size     int64
	sizeMu   sync.Mutex
	rng      *rand.Rand
	rngMu    sync.Mutex
}

// New builds a Cache bounded at capacity entries (0 means DefaultCapacity).
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	shards := make([]*shard, shardCount)
	for i := range shards {
		shards[i] = &shard{entries: make(map[string]*entry)}
	}
	return &Cache{
		shards:   shards,
		capacity: capacity,
		rng:      rand.New(rand.NewSource(1)),
	}
}

func (c *Cache) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return c.shards[h.Sum32()%uint32(len(c.shards))]
}

// GetOrStart returns a cached Record if one already exists for key. If
// none exists (or the prior in-flight attempt was aborted), it registers
// key as in-flight and returns hit=false with a *Handle on which exactly
// one method must be called — Finish to publish a Record, or Abort to drop
// the marker so the next caller starts fresh (§5's cancellation
// contract). If another probe is already in flight for key, GetOrStart
// blocks (respecting ctx) until it finishes.
func (c *Cache) GetOrStart(ctx context.Context, key string) (record model.Record, hit bool, handle *Handle, err error) {
	s := c.shardFor(key)

	for {
		s.mu.Lock()
		e, exists := s.entries[key]
		if !exists {
			e = &entry{done: make(chan struct{})}
			s.entries[key] = e
			s.mu.Unlock()
			c.trackInsert()
			return model.Record{}, false, &Handle{cache: c, shard: s, key: key, e: e}, nil
		}
		s.mu.Unlock()

		select {
		case <-e.done:
			s.mu.Lock()
			r, aborted := e.record, e.aborted
			s.mu.Unlock()
			if aborted {
				continue // retry from scratch, per §5
			}
			return r, true, nil, nil
		case <-ctx.Done():
			return model.Record{}, false, nil, ctx.Err()
		}
	}
}

// Handle is the single-use publication token returned by GetOrStart for a
// cache miss.
type Handle struct {
	cache *Cache
	shard *shard
	key   string
	e     *entry
}

// Finish publishes r for this key and wakes any waiters.
func (h *Handle) Finish(r model.Record) {
	h.shard.mu.Lock()
	h.e.record = r
	h.shard.mu.Unlock()
	close(h.e.done)
}

// Abort drops the in-flight marker without publishing a Record, so the
// next caller (or a currently-waiting duplicate) restarts the probe.
func (h *Handle) Abort() {
	h.shard.mu.Lock()
	h.e.aborted = true
	delete(h.shard.entries, h.key)
	h.shard.mu.Unlock()
	close(h.e.done)

	h.cache.sizeMu.Lock()
	h.cache.size--
	h.cache.sizeMu.Unlock()
}

func (c *Cache) trackInsert() {
	c.sizeMu.Lock()
	c.size++
	full := c.size > int64(c.capacity)
	c.sizeMu.Unlock()
	if full {
		c.evictRandom()
	}
}

func (c *Cache) evictRandom() {
	c.rngMu.Lock()
	start := c.rng.Intn(len(c.shards))
	c.rngMu.Unlock()

	// Start at a random shard and move on until a finished entry is found;
	// in-flight entries are never evicted.
	for i := 0; i < len(c.shards); i++ {
		s := c.shards[(start+i)%len(c.shards)]
		s.mu.Lock()
		for k, e := range s.entries {
			select {
			case <-e.done:
				delete(s.entries, k)
				s.mu.Unlock()
				c.sizeMu.Lock()
				c.size--
				c.sizeMu.Unlock()
				return
			default:
			}
		}
		s.mu.Unlock()
	}
}

// Len reports the current entry count, for tests and diagnostics.
func (c *Cache) Len() int {
	c.sizeMu.Lock()
	defer c.sizeMu.Unlock()
	return int(c.size)
}

// Prober is the C8 collaborator a CachingProber wraps. probe.Prober
// satisfies this without either package importing the other.
type Prober interface {
	Probe(ctx context.Context, raw string) model.Record
}

// CachingProber decorates a Prober with the result cache (C7), giving the
// batch engine and single-domain mode the same cache-hit short-circuit and
// in-flight coalescing behavior from one shared instance.
type CachingProber struct {
	cache *Cache
	inner Prober
}

func NewCachingProber(c *Cache, inner Prober) *CachingProber {
	return &CachingProber{cache: c, inner: inner}
}

// cacheKey normalizes raw to a Domain so that case/whitespace variants of
// the same domain share one cache entry. Inputs that fail validation key on
// the raw string itself — the inner Prober will reject them the same way on
// every call, so coalescing them still short-circuits repeats.
func cacheKey(raw string) string {
	if d, err := domain.Validate(raw); err == nil {
		return d.String()
	}
	return raw
}

func (p *CachingProber) Probe(ctx context.Context, raw string) model.Record {
	rec, hit, handle, err := p.cache.GetOrStart(ctx, cacheKey(raw))
	if err != nil {
		return model.NewErrorRecord(raw, 0, err.Error())
	}
	if hit {
		return rec
	}
	rec = p.inner.Probe(ctx, raw)
	handle.Finish(rec)
	return rec
}
