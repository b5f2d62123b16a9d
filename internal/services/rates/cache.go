package rates

import (
	"fmt"
	"math"
	"sync"
	"time"

	"MarketBoard/internal/domain/models"
)

// DefaultVehicle is the currency used to synthesize cross rates.
const DefaultVehicle = "USD"

// Cache holds currency rates with per-entry TTL. It never invents values:
// lookups either use unexpired entries or report a miss.
type Cache struct {
	mu          sync.RWMutex
	entries     map[models.CurrencyPair]models.RateEntry
	vehicle     string
	now         func() time.Time
	lastRefresh time.Time
}

// Option configures Cache.
type Option func(*Cache)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithVehicle sets the cross-rate vehicle currency.
func WithVehicle(code string) Option {
	return func(c *Cache) {
		if code != "" {
			c.vehicle = code
		}
	}
}

// NewCache creates an empty cache.
func NewCache(opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[models.CurrencyPair]models.RateEntry),
		vehicle: DefaultVehicle,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Put overwrites the entry for pair with a fresh timestamp.
func (c *Cache) Put(pair models.CurrencyPair, rate float64, ttl time.Duration) error {
	return c.PutFrom(pair, rate, ttl, "")
}

// PutFrom is Put with the originating source recorded.
func (c *Cache) PutFrom(pair models.CurrencyPair, rate float64, ttl time.Duration, source string) error {
	if math.IsNaN(rate) || math.IsInf(rate, 0) || rate <= 0 {
		return fmt.Errorf("rate %s: invalid value %v", pair, rate)
	}
	if ttl <= 0 {
		return fmt.Errorf("rate %s: ttl must be positive", pair)
	}
	now := c.now()
	c.mu.Lock()
	c.entries[pair] = models.RateEntry{Pair: pair.String(), Rate: rate, Timestamp: now, TTL: ttl, Source: source}
	c.lastRefresh = now
	c.mu.Unlock()
	return nil
}

// Get resolves pair from a direct entry, its inverse, or a cross through the
// vehicle currency. Every leg used must be unexpired.
func (c *Cache) Get(pair models.CurrencyPair) (float64, bool) {
	if pair.Base == pair.Quote {
		return 1, true
	}
	now := c.now()
	c.mu.RLock()
	defer c.mu.RUnlock()

	if r, ok := c.legLocked(pair, now); ok {
		return r, true
	}
	v := c.vehicle
	if pair.Base == v || pair.Quote == v {
		return 0, false
	}
	first, ok := c.legLocked(models.CurrencyPair{Base: pair.Base, Quote: v}, now)
	if !ok {
		return 0, false
	}
	second, ok := c.legLocked(models.CurrencyPair{Base: v, Quote: pair.Quote}, now)
	if !ok {
		return 0, false
	}
	return first * second, true
}

// legLocked returns a direct or inverted fresh rate. Caller holds mu.
func (c *Cache) legLocked(pair models.CurrencyPair, now time.Time) (float64, bool) {
	if e, ok := c.entries[pair]; ok && e.FreshAt(now) {
		return e.Rate, true
	}
	if e, ok := c.entries[pair.Inverse()]; ok && e.FreshAt(now) {
		return 1 / e.Rate, true
	}
	return 0, false
}

// Entry returns the raw entry for pair, fresh or not.
func (c *Cache) Entry(pair models.CurrencyPair) (models.RateEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[pair]
	return e, ok
}

// Age is the time since the most recent Put, or zero if nothing was stored.
func (c *Cache) Age() time.Duration {
	c.mu.RLock()
	last := c.lastRefresh
	c.mu.RUnlock()
	if last.IsZero() {
		return 0
	}
	return c.now().Sub(last)
}

// Snapshot copies all entries.
func (c *Cache) Snapshot() []models.RateEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.RateEntry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	return out
}

// Restore loads entries keeping their original timestamps, so expired
// entries stay unusable. Newer in-memory entries win.
func (c *Cache) Restore(entries []models.RateEntry) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range entries {
		pair, err := models.ParsePair(e.Pair)
		if err != nil || e.Rate <= 0 || e.TTL <= 0 {
			continue
		}
		if cur, ok := c.entries[pair]; ok && !cur.Timestamp.Before(e.Timestamp) {
			continue
		}
		c.entries[pair] = e
		if e.Timestamp.After(c.lastRefresh) {
			c.lastRefresh = e.Timestamp
		}
		n++
	}
	return n
}
