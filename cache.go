package resolvd

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/jmhodges/clock"
	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"
)

// cacheEntry is the internal record behind a CacheKey: an RRSet tagged with
// a validation verdict and an absolute expiry, per spec.md §3.
type cacheEntry struct {
	records   []dns.RR
	verdict   Verdict
	expiresAt time.Time
}

func (ce *cacheEntry) expired(now time.Time) bool {
	return !now.Before(ce.expiresAt)
}

// Cache is the concurrent, TTL-bounded answer cache (C1). It generalizes the
// teacher's BasicCache (solvere/cache.go) from a question-hash-only key to
// the spec's (owner,type,class) CacheKey, and replaces the teacher's
// unconditional overwrite-on-Add with "later expiry wins" (spec.md §4.1,
// §9 Open Questions).
type Cache struct {
	mu      sync.Mutex
	entries map[CacheKey]*cacheEntry
	lru     *simplelru.LRU[CacheKey, struct{}] // nil when unbounded
	clk     clock.Clock
	log     logrus.FieldLogger
	metrics *cacheMetrics
	ttlCap  time.Duration // 0 = uncapped
}

// CacheOption configures a Cache at construction time.
type CacheOption func(*Cache)

// WithClock injects a clock for deterministic tests (the teacher's
// jmhodges/clock dependency, used the same way in solvere/cache_test.go).
func WithClock(clk clock.Clock) CacheOption {
	return func(c *Cache) { c.clk = clk }
}

// WithCacheLogger attaches a logger; defaults to the standard logrus logger.
func WithCacheLogger(log logrus.FieldLogger) CacheOption {
	return func(c *Cache) { c.log = log }
}

// WithMaxEntries bounds the cache to an LRU of at most n keys. n<=0 means
// unbounded, matching the teacher's original behavior (spec.md §9: "Source
// imposes no cache size cap; real deployments should" — the policy chosen
// here is LRU, see DESIGN.md).
func WithMaxEntries(n int) CacheOption {
	return func(c *Cache) {
		if n <= 0 {
			c.lru = nil
			return
		}
		l, err := simplelru.NewLRU[CacheKey, struct{}](n, func(key CacheKey, _ struct{}) {
			delete(c.entries, key)
			c.metrics.observeEviction()
		})
		if err != nil {
			c.lru = nil
			return
		}
		c.lru = l
	}
}

// WithTTLCap bounds every inserted entry's lifetime to
// expires_at_utc = insertion_time + min(ttl, cap) (spec.md §3). cap<=0 means
// uncapped.
func WithTTLCap(cap time.Duration) CacheOption {
	return func(c *Cache) { c.ttlCap = cap }
}

// NewCache returns an initialized Cache and starts its background sweep
// loop if sweepInterval > 0 (mirrors solvere's NewBasicCache ticker).
func NewCache(sweepInterval time.Duration, opts ...CacheOption) *Cache {
	c := &Cache{
		entries: make(map[CacheKey]*cacheEntry),
		clk:     clock.Default(),
		log:     logrus.StandardLogger(),
		metrics: newCacheMetrics(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if sweepInterval > 0 {
		go c.sweepLoop(sweepInterval)
	}
	return c
}

func (c *Cache) sweepLoop(interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for range t.C {
		c.Sweep()
	}
}

// Insert stores records under key with the given verdict and ttlSeconds.
// Atomic: a new entry supersedes an existing one only if its computed
// expires_at_utc is strictly later (spec.md §4.1); otherwise it is dropped
// without error.
func (c *Cache) Insert(key CacheKey, records []dns.RR, verdict Verdict, ttlSeconds int) {
	if ttlSeconds <= 0 {
		return
	}
	ttl := time.Duration(ttlSeconds) * time.Second
	if c.ttlCap > 0 && ttl > c.ttlCap {
		ttl = c.ttlCap
	}
	now := c.clk.Now().UTC()
	newExpiry := now.Add(ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, present := c.entries[key]; present {
		if !newExpiry.After(existing.expiresAt) {
			return
		}
	}
	c.entries[key] = &cacheEntry{records: records, verdict: verdict, expiresAt: newExpiry}
	if c.lru != nil {
		c.lru.Add(key, struct{}{})
	}
	c.metrics.observeInsert()
	c.log.WithFields(logrus.Fields{
		"owner": key.Owner, "type": dns.TypeToString[key.Type], "ttl": ttlSeconds, "verdict": verdict,
	}).Debug("cache insert")
}

// Get returns the records cached under key whose concrete Go type is T,
// cloned with ttl recomputed as max(0, expires_at_utc-now), and the cached
// verdict. The final bool is false on miss or expiry (spec.md §4.1); an
// expired entry is evicted in-line.
func Get[T dns.RR](c *Cache, key CacheKey) ([]T, Verdict, bool) {
	raw, verdict, ok := c.GetRaw(key)
	if !ok {
		return nil, Unsigned, false
	}
	out := make([]T, 0, len(raw))
	for _, r := range raw {
		if t, ok := r.(T); ok {
			out = append(out, t)
		}
	}
	return out, verdict, true
}

// GetRaw returns every cached record regardless of concrete type, for
// callers (like the referral engine) that need the whole answer set rather
// than a single typed RRSet.
func (c *Cache) GetRaw(key CacheKey) ([]dns.RR, Verdict, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, present := c.entries[key]
	if !present {
		c.metrics.observeMiss()
		return nil, Unsigned, false
	}
	now := c.clk.Now().UTC()
	if entry.expired(now) {
		delete(c.entries, key)
		if c.lru != nil {
			c.lru.Remove(key)
		}
		c.metrics.observeMiss()
		return nil, Unsigned, false
	}
	if c.lru != nil {
		c.lru.Get(key) // touch for recency
	}
	remaining := uint32(entry.expiresAt.Sub(now) / time.Second)
	out := make([]dns.RR, 0, len(entry.records))
	for _, r := range entry.records {
		cp := dns.Copy(r)
		cp.Header().Ttl = remaining
		out = append(out, cp)
	}
	c.metrics.observeHit()
	return out, entry.verdict, true
}

// Sweep evicts every entry past expiry. Safe to call concurrently with
// Insert/Get (spec.md §4.1).
func (c *Cache) Sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clk.Now().UTC()
	for k, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, k)
			if c.lru != nil {
				c.lru.Remove(k) // the LRU's evict callback counts the eviction
			} else {
				c.metrics.observeEviction()
			}
		}
	}
}

// Flush discards every cache entry.
func (c *Cache) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[CacheKey]*cacheEntry)
	if c.lru != nil {
		c.lru.Purge()
	}
}

// Len reports the number of entries currently stored, including any not yet
// lazily evicted past expiry.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
