package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"

	"MarketBoard/internal/domain/models"
	"MarketBoard/internal/domain/repository"
	"MarketBoard/internal/services/rates"
	"MarketBoard/internal/services/signals"
	"MarketBoard/internal/services/timeseries"
	applogger "MarketBoard/pkg/logger"
	"MarketBoard/pkg/schedule"
)

// PointSink takes points and signals off the ingest path. Implementations
// must not block.
type PointSink interface {
	EnqueuePoint(p models.MarketDataPoint)
	EnqueueSignal(s models.MarketSignal)
}

// AggregatorOptions are the core timing and currency settings.
type AggregatorOptions struct {
	HomeCurrency        string        `yaml:"home_currency" default:"CAD" validate:"required,len=3"`
	VehicleCurrency     string        `yaml:"vehicle_currency" default:"USD" validate:"required,len=3"`
	RateTTL             time.Duration `yaml:"rate_ttl" default:"5m" validate:"gt=0"`
	RateRefreshInterval time.Duration `yaml:"rate_refresh_interval"`
	HealthCheckInterval time.Duration `yaml:"health_check_interval" default:"30s" validate:"gt=0"`
	DegradedAfter       time.Duration `yaml:"degraded_after" default:"60s" validate:"gt=0"`
	ErrorAfter          time.Duration `yaml:"error_after" default:"300s" validate:"gtfield=DegradedAfter"`
	ErrorThreshold      int           `yaml:"error_threshold" default:"3" validate:"gte=1"`
	FetchTimeout        time.Duration `yaml:"fetch_timeout" default:"5s" validate:"gt=0"`
	BufferCapacity      int           `yaml:"buffer_capacity" default:"5000" validate:"gte=2"`
	VolatilityWindow    int           `yaml:"volatility_window" default:"20" validate:"gte=2"`
	WarmStart           int           `yaml:"warm_start" validate:"gte=0"`
}

// refreshInterval keeps a margin below the TTL so tracked pairs never lapse
// between two successful refreshes.
func (o AggregatorOptions) refreshInterval() time.Duration {
	if o.RateRefreshInterval > 0 {
		return o.RateRefreshInterval
	}
	return o.RateTTL * 4 / 5
}

// AggregatorOption configures optional collaborators.
type AggregatorOption func(*Aggregator)

// WithRateCache shares an existing rate cache.
func WithRateCache(c *rates.Cache) AggregatorOption {
	return func(a *Aggregator) { a.cache = c }
}

// WithRefresher sets the rate refresh chain. It must write into the same cache.
func WithRefresher(r *rates.Refresher) AggregatorOption {
	return func(a *Aggregator) { a.refresher = r }
}

// WithDetector sets the signal detector.
func WithDetector(d *signals.Detector) AggregatorOption {
	return func(a *Aggregator) { a.detector = d }
}

// WithCadencePolicy sets the poll cadence policy.
func WithCadencePolicy(p *CadencePolicy) AggregatorOption {
	return func(a *Aggregator) { a.cadence = p }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m repository.Metrics) AggregatorOption {
	return func(a *Aggregator) {
		if m != nil {
			a.metrics = m
		}
	}
}

// WithSink forwards points and signals downstream.
func WithSink(s PointSink) AggregatorOption {
	return func(a *Aggregator) { a.sink = s }
}

// WithStorage enables buffer warm start from history.
func WithStorage(s repository.Storage) AggregatorOption {
	return func(a *Aggregator) { a.storage = s }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) AggregatorOption {
	return func(a *Aggregator) {
		if now != nil {
			a.now = now
		}
	}
}

type symbolState struct {
	mu     sync.Mutex
	inst   models.Instrument
	buf    *timeseries.Buffer
	latest *models.MarketDataPoint
	subs   subscriberSet
}

type routeKey struct {
	source string
	symbol string
}

// Aggregator owns the instrument catalog, per-symbol buffers and provider
// health. It normalizes every quote into the home currency and fans points
// out to subscribers.
type Aggregator struct {
	opts      AggregatorOptions
	logger    *applogger.Logger
	metrics   repository.Metrics
	cache     *rates.Cache
	refresher *rates.Refresher
	detector  *signals.Detector
	cadence   *CadencePolicy
	storage   repository.Storage
	sink      PointSink
	now       func() time.Time

	providers map[string]repository.ProviderAdapter
	symbols   map[string]*symbolState
	order     []string
	routes    map[routeKey][]*symbolState
	health    *healthTable
	norm      *normalizer

	listenMu  sync.RWMutex
	listeners []func(models.MarketSignal)
	extenders []func(models.MarketSignal)

	lifeMu  sync.RWMutex
	started bool
	closed  bool
	group   *schedule.Group
}

// NewAggregator validates the catalog and wires the core. Catalog problems
// come back as *models.ConfigurationError.
func NewAggregator(
	opts AggregatorOptions,
	catalog []models.Instrument,
	providers []repository.ProviderAdapter,
	logger *applogger.Logger,
	options ...AggregatorOption,
) (*Aggregator, error) {
	if err := defaults.Set(&opts); err != nil {
		return nil, &models.ConfigurationError{Field: "aggregator", Reason: "defaults", Err: err}
	}
	opts.HomeCurrency = strings.ToUpper(opts.HomeCurrency)
	opts.VehicleCurrency = strings.ToUpper(opts.VehicleCurrency)
	validate := validator.New()
	if err := validate.Struct(opts); err != nil {
		return nil, &models.ConfigurationError{Field: "aggregator", Reason: "invalid options", Err: err}
	}

	a := &Aggregator{
		opts:      opts,
		logger:    logger.With("aggregator"),
		metrics:   repository.NopMetrics{},
		now:       time.Now,
		providers: make(map[string]repository.ProviderAdapter, len(providers)),
		symbols:   make(map[string]*symbolState, len(catalog)),
		routes:    make(map[routeKey][]*symbolState),
	}
	for _, opt := range options {
		opt(a)
	}
	if a.cache == nil {
		a.cache = rates.NewCache(rates.WithClock(a.now), rates.WithVehicle(opts.VehicleCurrency))
	}
	if a.refresher == nil {
		a.refresher = rates.NewRefresher(a.cache, opts.RateTTL, a.logger, rates.WithFetchTimeout(opts.FetchTimeout))
	}
	if a.detector == nil {
		a.detector = signals.NewDetector(signals.DefaultConfig())
	}
	if a.cadence == nil {
		a.cadence = NewCadencePolicy("")
	}
	a.health = newHealthTable(opts.ErrorThreshold, opts.DegradedAfter, opts.ErrorAfter, a.metrics)
	a.norm = &normalizer{
		home:   opts.HomeCurrency,
		cache:  a.cache,
		fx:     newFXTable(opts.VehicleCurrency),
		maxAge: opts.RateTTL,
	}

	for i, p := range providers {
		if p == nil || p.ID() == "" {
			return nil, &models.ConfigurationError{Field: fmt.Sprintf("providers[%d]", i), Reason: "missing id"}
		}
		if _, dup := a.providers[p.ID()]; dup {
			return nil, &models.ConfigurationError{Field: "providers", Reason: "duplicate id " + p.ID()}
		}
		a.providers[p.ID()] = p
	}

	for i, raw := range catalog {
		inst, err := a.checkInstrument(validate, raw)
		if err != nil {
			return nil, &models.ConfigurationError{Field: fmt.Sprintf("catalog[%d]", i), Reason: err.Error()}
		}
		if _, dup := a.symbols[inst.Symbol]; dup {
			return nil, &models.ConfigurationError{Field: fmt.Sprintf("catalog[%d]", i), Reason: "duplicate symbol " + inst.Symbol}
		}
		st := &symbolState{
			inst: inst,
			buf:  timeseries.New(opts.BufferCapacity, timeseries.WithVolatilityWindow(opts.VolatilityWindow)),
		}
		a.symbols[inst.Symbol] = st
		a.order = append(a.order, inst.Symbol)
		k := routeKey{source: inst.Source, symbol: inst.UpstreamSymbol()}
		a.routes[k] = append(a.routes[k], st)
		if inst.QuoteCurrency != opts.HomeCurrency {
			a.refresher.Track(models.NewPair(inst.QuoteCurrency, opts.HomeCurrency))
		}
	}
	return a, nil
}

func (a *Aggregator) checkInstrument(validate *validator.Validate, inst models.Instrument) (models.Instrument, error) {
	inst = inst.Normalize()
	if err := defaults.Set(&inst); err != nil {
		return inst, err
	}
	if err := validate.Struct(inst); err != nil {
		return inst, err
	}
	if _, ok := a.providers[inst.Source]; !ok {
		return inst, fmt.Errorf("%s: unknown source %q", inst.Symbol, inst.Source)
	}
	if inst.UpdateInterval <= 0 {
		return inst, fmt.Errorf("%s: update interval must be positive", inst.Symbol)
	}
	return inst, nil
}

// Start schedules every dashboard instrument, the rate refresh, and the
// health check. It returns once the background work is launched.
func (a *Aggregator) Start(ctx context.Context) error {
	a.lifeMu.Lock()
	defer a.lifeMu.Unlock()
	if a.closed {
		return errors.New("aggregator stopped")
	}
	if a.started {
		return nil
	}
	a.started = true
	a.group = schedule.NewGroup(ctx, schedule.WithPanicHandler(func(name string, v any) {
		a.metrics.RecordError("job_panic")
		a.logger.Error("background job panicked", applogger.String("job", name), applogger.Any("panic", v))
	}))
	now := a.now()

	if err := a.startRates(ctx, now); err != nil {
		return err
	}
	a.warmStart(ctx)

	byProvider := make(map[string][]*symbolState)
	for _, sym := range a.order {
		st := a.symbols[sym]
		if !st.inst.ShowInDashboard {
			continue
		}
		byProvider[st.inst.Source] = append(byProvider[st.inst.Source], st)
	}
	ids := make([]string, 0, len(byProvider))
	for id := range byProvider {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		a.startProvider(a.providers[id], byProvider[id], now)
	}

	if err := a.group.Every("health", a.opts.HealthCheckInterval, false, func(context.Context) {
		a.CheckHealth(a.now())
	}); err != nil {
		return err
	}
	a.logger.Info("aggregator started",
		applogger.Int("instruments", len(a.order)),
		applogger.Int("providers", len(ids)),
		applogger.String("home", a.opts.HomeCurrency),
	)
	return nil
}

func (a *Aggregator) startRates(ctx context.Context, now time.Time) error {
	interval := a.opts.refreshInterval()
	for _, id := range a.refresher.SourceIDs() {
		a.health.register(id, max(a.opts.DegradedAfter, 2*interval), max(a.opts.ErrorAfter, 4*interval), false, now)
	}
	a.refresher.OnResult(func(source string, err error) {
		if err != nil {
			a.health.failure(source, err)
			a.metrics.RecordIngest(source, "error")
			return
		}
		a.health.success(source, a.now())
		a.metrics.RecordIngest(source, "ok")
	})
	if err := a.refresher.Restore(ctx); err != nil {
		a.logger.Warn("rate snapshot restore failed", applogger.Error(err))
	}
	if len(a.refresher.Pairs()) == 0 {
		return nil
	}
	return a.group.Every("rates", interval, true, func(ctx context.Context) {
		start := time.Now()
		if err := a.refresher.Refresh(ctx); err != nil {
			a.metrics.RecordError("rates_stale")
		}
		a.metrics.RecordLatency("rate_refresh", time.Since(start).Seconds())
	})
}

// warmStart seeds buffers from stored history. Latest points are left empty
// so the first delivery to subscribers is live data.
func (a *Aggregator) warmStart(ctx context.Context) {
	if a.storage == nil || a.opts.WarmStart <= 0 {
		return
	}
	for _, sym := range a.order {
		st := a.symbols[sym]
		if !st.inst.ShowInDashboard {
			continue
		}
		points, err := a.storage.LatestN(ctx, sym, a.opts.WarmStart)
		if err != nil {
			a.logger.Warn("warm start failed", applogger.Symbol(sym), applogger.Error(err))
			continue
		}
		st.mu.Lock()
		for _, p := range points {
			if v, ok := p.HomePrice(); ok {
				st.buf.Push(v, p.Timestamp)
			}
		}
		st.mu.Unlock()
	}
}

func (a *Aggregator) startProvider(p repository.ProviderAdapter, states []*symbolState, now time.Time) {
	id := p.ID()
	mode := p.Mode()
	a.health.register(id, a.opts.DegradedAfter, a.opts.ErrorAfter, mode == models.FetchPoll, now)

	if mode == models.FetchPush {
		if sub, ok := p.(repository.Subscribable); ok {
			symbols := make([]string, 0, len(states))
			for _, st := range states {
				symbols = append(symbols, st.inst.UpstreamSymbol())
			}
			sub.Track(symbols...)
		}
		p.OnUpdate(a.Ingest)
	}
	a.group.Go("connect:"+id, func(ctx context.Context) {
		a.connect(ctx, p)
	})
	if mode != models.FetchPoll {
		return
	}
	for _, st := range states {
		st := st
		base := st.inst.UpdateInterval
		a.group.EveryFunc("poll:"+st.inst.Symbol, func() time.Duration {
			return a.cadence.Interval(base, a.now())
		}, true, func(ctx context.Context) {
			a.poll(ctx, p, st)
		})
	}
}

// connect retries until the provider accepts or the group stops.
func (a *Aggregator) connect(ctx context.Context, p repository.ProviderAdapter) {
	backoff := time.Second
	for {
		err := p.Connect(ctx)
		if err == nil {
			a.health.setConnected(p.ID(), true)
			return
		}
		if ctx.Err() != nil {
			return
		}
		a.health.setConnected(p.ID(), false)
		a.health.failure(p.ID(), fmt.Errorf("%w: connect: %v", models.ErrTransientProvider, err))
		a.metrics.RecordError("connect")
		a.logger.Warn("provider connect failed",
			applogger.Source(p.ID()),
			applogger.Duration("retry_in", backoff),
			applogger.Error(err),
		)
		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (a *Aggregator) poll(ctx context.Context, p repository.ProviderAdapter, st *symbolState) {
	fctx, cancel := context.WithTimeout(ctx, a.opts.FetchTimeout)
	defer cancel()
	q, err := p.FetchOnce(fctx, st.inst)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrRateLimited):
			a.metrics.RecordIngest(p.ID(), "throttled")
		case ctx.Err() != nil:
		default:
			if !errors.Is(err, models.ErrTransientProvider) {
				err = fmt.Errorf("%w: %v", models.ErrTransientProvider, err)
			}
			a.health.failure(p.ID(), err)
			a.metrics.RecordIngest(p.ID(), "error")
			a.logger.Warn("fetch failed", applogger.Source(p.ID()), applogger.Symbol(st.inst.Symbol), applogger.Error(err))
		}
		return
	}
	if q.Source == "" {
		q.Source = p.ID()
	}
	if q.Symbol == "" {
		q.Symbol = st.inst.UpstreamSymbol()
	}

	a.lifeMu.RLock()
	defer a.lifeMu.RUnlock()
	if a.closed {
		return
	}
	a.ingest(st, q)
}

// Ingest routes a provider quote by (source, upstream symbol). Push adapters
// call it from their read loops. Invalid or unknown quotes are counted and
// dropped; nothing is delivered after Stop.
func (a *Aggregator) Ingest(q models.RawQuote) {
	a.lifeMu.RLock()
	defer a.lifeMu.RUnlock()
	if a.closed {
		return
	}
	if err := q.Validate(); err != nil {
		a.reject(q.Source, err)
		a.logger.Debug("quote rejected", applogger.Source(q.Source), applogger.Error(err))
		return
	}
	states := a.routes[routeKey{source: q.Source, symbol: q.Symbol}]
	if len(states) == 0 {
		a.metrics.RecordIngest(q.Source, "unrouted")
		return
	}
	for _, st := range states {
		a.ingest(st, q)
	}
}

// reject counts an invalid quote. Only configured providers get a health
// entry; anything else would linger in the table and skew Overall.
func (a *Aggregator) reject(source string, err error) {
	a.metrics.RecordIngest(source, "invalid")
	if _, ok := a.providers[source]; ok {
		a.health.failure(source, err)
	}
}

func (a *Aggregator) ingest(st *symbolState, q models.RawQuote) {
	if err := q.Validate(); err != nil {
		a.reject(q.Source, err)
		return
	}
	start := time.Now()
	now := a.now()
	inst := st.inst

	if inst.Category == models.CategoryForex {
		pair := models.NewPair(inst.BaseCurrency, inst.QuoteCurrency)
		if err := a.cache.PutFrom(pair, q.Price, a.opts.RateTTL, q.Source); err == nil {
			a.norm.fx.observe(q.Source, pair, q.Price, now)
		}
	}

	price, convErr := a.norm.convert(inst, q, now)
	point := models.MarketDataPoint{
		Symbol:           inst.Symbol,
		Category:         inst.Category,
		RawPrice:         q.Price,
		RawCurrency:      firstNonEmpty(q.Currency, inst.QuoteCurrency),
		PriceHome:        price,
		HomeCurrency:     a.opts.HomeCurrency,
		Available:        convErr == nil,
		Timestamp:        q.Timestamp,
		Source:           q.Source,
		Change24h:        q.Extras.Change24h,
		ChangePercent24h: q.Extras.ChangePercent24h,
		Volume24h:        q.Extras.Volume24h,
		High24h:          q.Extras.High24h,
		Low24h:           q.Extras.Low24h,
	}

	if convErr != nil {
		a.health.failure(q.Source, convErr)
		a.metrics.RecordIngest(q.Source, "unavailable")
		a.logger.Warn("price unavailable", applogger.Symbol(inst.Symbol), applogger.Source(q.Source), applogger.Error(convErr))
	} else {
		a.health.success(q.Source, now)
		a.metrics.RecordIngest(q.Source, "ok")
		a.metrics.RecordLastPrice(inst.Symbol, price)
	}

	var fired, extended []models.MarketSignal
	st.mu.Lock()
	if point.Available {
		st.buf.Push(price, q.Timestamp)
		fired, extended = a.detector.Evaluate(inst.Symbol, st.buf, now)
	}
	p := point
	st.latest = &p
	for _, sub := range st.subs.subs {
		a.deliver(sub, point)
	}
	st.mu.Unlock()

	for _, sig := range fired {
		a.emitSignal(sig)
	}
	if len(extended) > 0 {
		a.listenMu.RLock()
		extenders := a.extenders
		a.listenMu.RUnlock()
		for _, sig := range extended {
			a.notify(extenders, sig)
		}
	}
	if a.sink != nil {
		a.sink.EnqueuePoint(point)
	}
	a.metrics.RecordLatency("ingest", time.Since(start).Seconds())
}

func (a *Aggregator) deliver(sub Subscriber, p models.MarketDataPoint) {
	defer func() {
		if r := recover(); r != nil {
			a.metrics.RecordError("subscriber_panic")
			a.logger.Error("subscriber panicked", applogger.Symbol(p.Symbol), applogger.Any("panic", r))
		}
	}()
	sub.OnPoint(p)
}

func (a *Aggregator) emitSignal(sig models.MarketSignal) {
	a.metrics.RecordSignal(sig.Type)
	a.logger.Info("signal",
		applogger.Symbol(sig.Symbol),
		applogger.String("type", string(sig.Type)),
		applogger.Int("priority", sig.Priority),
		applogger.Float64("magnitude", sig.Magnitude),
	)
	a.listenMu.RLock()
	listeners := a.listeners
	a.listenMu.RUnlock()
	a.notify(listeners, sig)
	if a.sink != nil {
		a.sink.EnqueueSignal(sig)
	}
}

func (a *Aggregator) notify(fns []func(models.MarketSignal), sig models.MarketSignal) {
	for _, fn := range fns {
		func() {
			defer func() {
				if r := recover(); r != nil {
					a.metrics.RecordError("signal_listener_panic")
					a.logger.Error("signal listener panicked", applogger.Any("panic", r))
				}
			}()
			fn(sig)
		}()
	}
}

// OnSignal registers a listener for newly started signals.
func (a *Aggregator) OnSignal(fn func(models.MarketSignal)) {
	if fn == nil {
		return
	}
	a.listenMu.Lock()
	defer a.listenMu.Unlock()
	a.listeners = append(a.listeners[:len(a.listeners):len(a.listeners)], fn)
}

// OnSignalExtended registers a listener for active signals whose window grew.
// The signal carries its original ID and the lengthened Duration.
func (a *Aggregator) OnSignalExtended(fn func(models.MarketSignal)) {
	if fn == nil {
		return
	}
	a.listenMu.Lock()
	defer a.listenMu.Unlock()
	a.extenders = append(a.extenders[:len(a.extenders):len(a.extenders)], fn)
}

// Subscribe registers sub for symbol and delivers the current point, if any,
// before returning. Registering the same subscriber again is a no-op. The
// returned func unsubscribes. Subscribers run on the ingest path under the
// symbol's lock and must not call Subscribe, unsubscribe or Stop.
func (a *Aggregator) Subscribe(symbol string, sub Subscriber) (func(), error) {
	if err := checkComparable(sub); err != nil {
		return nil, err
	}
	st, ok := a.symbols[symbol]
	if !ok {
		return nil, fmt.Errorf("%w %q", models.ErrUnknownSymbol, symbol)
	}
	a.lifeMu.RLock()
	closed := a.closed
	a.lifeMu.RUnlock()
	if closed {
		return nil, errors.New("aggregator stopped")
	}

	st.mu.Lock()
	if st.subs.add(sub) && st.latest != nil {
		a.deliver(sub, *st.latest)
	}
	st.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			st.mu.Lock()
			st.subs.remove(sub)
			st.mu.Unlock()
		})
	}, nil
}

// CheckHealth applies the silence windows at now and returns the status.
// Poll sources get windows stretched by the current cadence.
func (a *Aggregator) CheckHealth(now time.Time) models.HealthStatus {
	scale := 1 / a.cadence.Multiplier(now)
	a.health.check(now, scale)
	return a.GetHealthStatus()
}

// GetHealthStatus returns per-source health, the overall state and the rate cache age.
func (a *Aggregator) GetHealthStatus() models.HealthStatus {
	per := a.health.snapshot()
	return models.HealthStatus{
		Overall:   overall(per),
		PerSource: per,
		CacheAge:  a.cache.Age(),
	}
}

// Latest returns the most recent point for symbol.
func (a *Aggregator) Latest(symbol string) (models.MarketDataPoint, bool) {
	st, ok := a.symbols[symbol]
	if !ok {
		return models.MarketDataPoint{}, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.latest == nil {
		return models.MarketDataPoint{}, false
	}
	return *st.latest, true
}

// Snapshot returns the latest point of every symbol that has one, in catalog order.
func (a *Aggregator) Snapshot() []models.MarketDataPoint {
	out := make([]models.MarketDataPoint, 0, len(a.order))
	for _, sym := range a.order {
		if p, ok := a.Latest(sym); ok {
			out = append(out, p)
		}
	}
	return out
}

// Series copies up to n of the most recent normalized samples.
func (a *Aggregator) Series(symbol string, n int) ([]timeseries.Sample, error) {
	st, ok := a.symbols[symbol]
	if !ok {
		return nil, fmt.Errorf("%w %q", models.ErrUnknownSymbol, symbol)
	}
	return st.buf.CopyLastN(nil, n), nil
}

// Stats returns buffer statistics and the min/max over the held samples.
func (a *Aggregator) Stats(symbol string, window int) (timeseries.Stats, [2]float64, error) {
	st, ok := a.symbols[symbol]
	if !ok {
		return timeseries.Stats{}, [2]float64{}, fmt.Errorf("%w %q", models.ErrUnknownSymbol, symbol)
	}
	lo, hi := st.buf.MinMax()
	return st.buf.Stats(window), [2]float64{lo, hi}, nil
}

// ActiveSignals lists signals still active now.
func (a *Aggregator) ActiveSignals() []models.MarketSignal {
	return a.detector.Active(a.now())
}

// Instruments returns the validated catalog in load order.
func (a *Aggregator) Instruments() []models.Instrument {
	out := make([]models.Instrument, 0, len(a.order))
	for _, sym := range a.order {
		out = append(out, a.symbols[sym].inst)
	}
	return out
}

// HomeCurrency is the normalization target.
func (a *Aggregator) HomeCurrency() string { return a.opts.HomeCurrency }

// Stop cancels all timers, waits for in-flight jobs and disconnects every
// provider. No subscriber or listener runs after Stop returns.
func (a *Aggregator) Stop() {
	a.lifeMu.Lock()
	if a.closed {
		a.lifeMu.Unlock()
		return
	}
	a.closed = true
	group := a.group
	a.lifeMu.Unlock()

	if group != nil {
		group.Stop()
	}
	ids := make([]string, 0, len(a.providers))
	for id := range a.providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := a.providers[id].Disconnect(); err != nil {
			a.logger.Warn("provider disconnect failed", applogger.Source(id), applogger.Error(err))
		}
	}
	a.logger.Info("aggregator stopped")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
