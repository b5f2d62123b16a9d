package rates

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"MarketBoard/internal/domain/models"
	"MarketBoard/internal/domain/repository"
	applogger "MarketBoard/pkg/logger"
)

// EmergencySource labels entries written from static fallback constants.
const EmergencySource = "emergency"

// ResultHook observes every source call, success or failure.
type ResultHook func(source string, err error)

// Refresher re-resolves tracked pairs: sources in order, then emergency constants.
type Refresher struct {
	cache     *Cache
	sources   []repository.RateSource
	store     repository.RateStore
	pairs     []models.CurrencyPair
	emergency map[models.CurrencyPair]float64
	ttl       time.Duration
	timeout   time.Duration
	hook      ResultHook
	logger    *applogger.Logger
}

// RefresherOption configures Refresher.
type RefresherOption func(*Refresher)

// WithSources sets the ordered rate sources (primary first).
func WithSources(sources ...repository.RateSource) RefresherOption {
	return func(r *Refresher) { r.sources = sources }
}

// WithStore persists a snapshot after every refresh.
func WithStore(store repository.RateStore) RefresherOption {
	return func(r *Refresher) { r.store = store }
}

// WithEmergencyRates sets the static last-resort rates.
func WithEmergencyRates(rates map[models.CurrencyPair]float64) RefresherOption {
	return func(r *Refresher) { r.emergency = rates }
}

// WithFetchTimeout bounds each source call.
func WithFetchTimeout(d time.Duration) RefresherOption {
	return func(r *Refresher) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithResultHook registers a callback for source outcomes.
func WithResultHook(h ResultHook) RefresherOption {
	return func(r *Refresher) { r.hook = h }
}

// NewRefresher creates a refresher writing into cache with the given TTL.
func NewRefresher(cache *Cache, ttl time.Duration, logger *applogger.Logger, opts ...RefresherOption) *Refresher {
	r := &Refresher{
		cache:   cache,
		ttl:     ttl,
		timeout: 5 * time.Second,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OnResult replaces the result hook. Call before the first Refresh.
func (r *Refresher) OnResult(h ResultHook) { r.hook = h }

// SourceIDs lists the configured sources in order.
func (r *Refresher) SourceIDs() []string {
	out := make([]string, 0, len(r.sources))
	for _, src := range r.sources {
		out = append(out, src.ID())
	}
	return out
}

// Track adds pairs to refresh. Identity pairs are ignored.
func (r *Refresher) Track(pairs ...models.CurrencyPair) {
	seen := make(map[models.CurrencyPair]bool, len(r.pairs))
	for _, p := range r.pairs {
		seen[p] = true
	}
	for _, p := range pairs {
		if p.Base == p.Quote || seen[p] {
			continue
		}
		seen[p] = true
		r.pairs = append(r.pairs, p)
	}
}

// Pairs returns the tracked pairs.
func (r *Refresher) Pairs() []models.CurrencyPair {
	out := make([]models.CurrencyPair, len(r.pairs))
	copy(out, r.pairs)
	return out
}

// Restore loads the persisted snapshot into the cache.
func (r *Refresher) Restore(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	entries, err := r.store.LoadRates(ctx)
	if err != nil {
		return fmt.Errorf("load rate snapshot: %w", err)
	}
	n := r.cache.Restore(entries)
	r.logger.Info("rate snapshot restored", applogger.Int("entries", n))
	return nil
}

// Refresh resolves every tracked pair. The returned error wraps
// models.ErrStaleRate for pairs left without any usable rate.
func (r *Refresher) Refresh(ctx context.Context) error {
	pending := make(map[models.CurrencyPair]bool, len(r.pairs))
	for _, p := range r.pairs {
		pending[p] = true
	}

	for _, src := range r.sources {
		if len(pending) == 0 {
			break
		}
		for base, quotes := range groupByBase(pending) {
			got, err := r.fetch(ctx, src, base, quotes)
			if r.hook != nil {
				r.hook(src.ID(), err)
			}
			if err != nil {
				r.logger.Warn("rate source failed",
					applogger.Source(src.ID()),
					applogger.String("base", base),
					applogger.Error(err),
				)
				continue
			}
			for quote, rate := range got {
				pair := models.CurrencyPair{Base: base, Quote: quote}
				if !pending[pair] {
					continue
				}
				if err := r.cache.PutFrom(pair, rate, r.ttl, src.ID()); err != nil {
					r.logger.Warn("rate rejected", applogger.Source(src.ID()), applogger.Error(err))
					continue
				}
				delete(pending, pair)
			}
		}
	}

	var stale []error
	for _, pair := range sortedPairs(pending) {
		if _, ok := r.cache.Get(pair); ok {
			continue
		}
		if rate, ok := r.emergency[pair]; ok {
			if err := r.cache.PutFrom(pair, rate, r.ttl, EmergencySource); err == nil {
				r.logger.Warn("using emergency rate",
					applogger.String("pair", pair.String()),
					applogger.Float64("rate", rate),
				)
				continue
			}
		}
		stale = append(stale, fmt.Errorf("%w: %s", models.ErrStaleRate, pair))
	}

	if r.store != nil {
		if err := r.store.SaveRates(ctx, r.cache.Snapshot()); err != nil {
			r.logger.Warn("save rate snapshot failed", applogger.Error(err))
		}
	}

	if len(stale) > 0 {
		err := errors.Join(stale...)
		r.logger.Error("rates unavailable", applogger.Error(err))
		return err
	}
	return nil
}

func (r *Refresher) fetch(ctx context.Context, src repository.RateSource, base string, quotes []string) (map[string]float64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	got, err := src.FetchRates(ctx, base, quotes)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrTransientProvider, src.ID(), err)
	}
	return got, nil
}

func groupByBase(pending map[models.CurrencyPair]bool) map[string][]string {
	out := make(map[string][]string)
	for p := range pending {
		out[p.Base] = append(out[p.Base], p.Quote)
	}
	for _, q := range out {
		sort.Strings(q)
	}
	return out
}

func sortedPairs(m map[models.CurrencyPair]bool) []models.CurrencyPair {
	out := make([]models.CurrencyPair, 0, len(m))
	for p := range m {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
