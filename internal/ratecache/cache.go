// Package ratecache holds formatted carrier quotes in memory, keyed by
// rounded parcel weight and destination ZIP.
//
// Entries expire after a TTL. Reads treat an expired entry as a miss but never
// delete it; removal is left to Sweep, which Run calls on a fixed period
// regardless of traffic.
package ratecache

import (
    "context"
    "math"
    "strconv"
    "sync"
    "time"

    "go.uber.org/atomic"

    "shipestimate/internal/rate"
)

const (
    DefaultTTL        = 15 * time.Minute
    DefaultSweepEvery = 10 * time.Minute
    DefaultMaxEntries = 10000
)

// Key identifies a cached quote set. sku and quantity are not part of it;
// only the total weight and destination reach the provider.
type Key struct {
    WeightOz int64
    Zip      string
}

// MaxKeyOz is the largest weight a key can hold; heavier weights share it.
const MaxKeyOz = 1 << 53

// NewKey rounds weightOz half-up to the nearest whole ounce, clamped to
// [0, MaxKeyOz]. NaN maps to 0.
func NewKey(weightOz float64, zip string) Key {
    oz := math.Round(weightOz)
    switch {
    case math.IsNaN(oz) || oz < 0:
        oz = 0
    case oz > MaxKeyOz:
        oz = MaxKeyOz
    }
    return Key{WeightOz: int64(oz), Zip: zip}
}

func (k Key) String() string {
    return strconv.FormatInt(k.WeightOz, 10) + ":" + k.Zip
}

// CachedRates is a stored quote set and its expiry.
type CachedRates struct {
    Rates     []rate.FormattedRate
    ExpiresAt time.Time
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
    Entries int    `json:"entries"`
    Hits    uint64 `json:"hits"`
    Misses  uint64 `json:"misses"`
    Sets    uint64 `json:"sets"`
    Swept   uint64 `json:"swept"`
    Evicted uint64 `json:"evicted"`
}

type Cache struct {
    mu         sync.RWMutex
    entries    map[Key]CachedRates
    ttl        time.Duration
    sweepEvery time.Duration
    maxEntries int
    now        func() time.Time

    hits    atomic.Uint64
    misses  atomic.Uint64
    sets    atomic.Uint64
    swept   atomic.Uint64
    evicted atomic.Uint64
}

type Option func(*Cache)

func WithTTL(d time.Duration) Option {
    return func(c *Cache) { c.ttl = d }
}

func WithSweepEvery(d time.Duration) Option {
    return func(c *Cache) { c.sweepEvery = d }
}

// WithMaxEntries bounds the cache; n <= 0 disables the bound.
func WithMaxEntries(n int) Option {
    return func(c *Cache) { c.maxEntries = n }
}

func WithClock(now func() time.Time) Option {
    return func(c *Cache) { c.now = now }
}

func New(opts ...Option) *Cache {
    c := &Cache{
        entries:    make(map[Key]CachedRates),
        ttl:        DefaultTTL,
        sweepEvery: DefaultSweepEvery,
        maxEntries: DefaultMaxEntries,
        now:        time.Now,
    }
    for _, opt := range opts {
        opt(c)
    }
    return c
}

func (c *Cache) TTL() time.Duration { return c.ttl }

// Get returns the entry for (weightOz, zip) if present and unexpired.
func (c *Cache) Get(weightOz float64, zip string) (CachedRates, bool) {
    key := NewKey(weightOz, zip)
    now := c.now()

    c.mu.RLock()
    ent, ok := c.entries[key]
    c.mu.RUnlock()

    if !ok || !now.Before(ent.ExpiresAt) {
        c.misses.Inc()
        return CachedRates{}, false
    }
    c.hits.Inc()
    return ent, true
}

// Set stores rates for (weightOz, zip), replacing any previous entry.
func (c *Cache) Set(weightOz float64, zip string, rates []rate.FormattedRate) CachedRates {
    key := NewKey(weightOz, zip)
    now := c.now()
    ent := CachedRates{Rates: rates, ExpiresAt: now.Add(c.ttl)}

    c.mu.Lock()
    defer c.mu.Unlock()

    if _, exists := c.entries[key]; !exists && c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
        c.sweepLocked(now)
        if len(c.entries) >= c.maxEntries {
            c.evictSoonestLocked()
        }
    }
    c.entries[key] = ent
    c.sets.Inc()
    return ent
}

// Sweep removes every entry whose expiry is at or before now.
func (c *Cache) Sweep() int {
    now := c.now()
    c.mu.Lock()
    defer c.mu.Unlock()
    return c.sweepLocked(now)
}

func (c *Cache) sweepLocked(now time.Time) int {
    removed := 0
    for k, ent := range c.entries {
        if !ent.ExpiresAt.After(now) {
            delete(c.entries, k)
            removed++
        }
    }
    c.swept.Add(uint64(removed))
    return removed
}

func (c *Cache) evictSoonestLocked() {
    var (
        victim  Key
        soonest time.Time
        found   bool
    )
    for k, ent := range c.entries {
        if !found || ent.ExpiresAt.Before(soonest) {
            victim, soonest, found = k, ent.ExpiresAt, true
        }
    }
    if found {
        delete(c.entries, victim)
        c.evicted.Inc()
    }
}

func (c *Cache) Len() int {
    c.mu.RLock()
    defer c.mu.RUnlock()
    return len(c.entries)
}

func (c *Cache) Stats() Stats {
    return Stats{
        Entries: c.Len(),
        Hits:    c.hits.Load(),
        Misses:  c.misses.Load(),
        Sets:    c.sets.Load(),
        Swept:   c.swept.Load(),
        Evicted: c.evicted.Load(),
    }
}

// Run sweeps on every tick until ctx is done. It blocks; start it in a goroutine.
func (c *Cache) Run(ctx context.Context) {
    if c.sweepEvery <= 0 {
        return
    }
    t := time.NewTicker(c.sweepEvery)
    defer t.Stop()
    for {
        select {
        case <-ctx.Done():
            return
        case <-t.C:
            c.Sweep()
        }
    }
}
