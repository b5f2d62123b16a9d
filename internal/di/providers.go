package di

import (
	"context"
	"fmt"
	"strings"
	"time"

	"MarketBoard/internal/domain/models"
	"MarketBoard/internal/domain/repository"
	"MarketBoard/internal/handler/api"
	mid "MarketBoard/internal/middleware"
	internalrepo "MarketBoard/internal/repository"
	"MarketBoard/internal/service/providers/finnhub"
	"MarketBoard/internal/service/providers/kafkafeed"
	"MarketBoard/internal/service/providers/restquote"
	"MarketBoard/internal/service/ratelimit"
	"MarketBoard/internal/service/ratesource"
	"MarketBoard/internal/services/rates"
	"MarketBoard/internal/services/rotation"
	"MarketBoard/internal/services/signals"
	"MarketBoard/internal/usecase"
	"MarketBoard/pkg/cache"
	pkgch "MarketBoard/pkg/clickhouse"
	"MarketBoard/pkg/config"
	xhttp "MarketBoard/pkg/http"
	pkgkafka "MarketBoard/pkg/kafka"
	applogger "MarketBoard/pkg/logger"
	"MarketBoard/pkg/metrics"
	"MarketBoard/pkg/server"
)

// UpstreamLimiter is the token bucket shared by quote providers and rate
// sources, keyed by their ids.
type UpstreamLimiter struct{ *ratelimit.Limiter }

// ProvideKafkaProducer creates a Kafka producer, or nil when disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Producer.Enabled {
		return nil, nil
	}
	p := cfg.Kafka.Producer
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(p.Compression),
		pkgkafka.WithDelivery(p.RequiredAcks, p.MaxAttempts, p.Async),
		pkgkafka.WithBatching(p.BatchSize, p.BatchBytes, p.Linger),
		pkgkafka.WithTimeouts(p.WriteTimeout, p.ReadTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideLogger builds the root logger. Error and warn entries are
// aggregated to the logs topic when collection is on and a producer exists.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	if cfg.Log.Collect.Enabled && producer != nil {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   cfg.Log.Collect.Interval,
			CountThreshold: cfg.Log.Collect.Threshold,
			Topic:          cfg.Kafka.Topics.Logs,
			Publisher:      producer,
		})
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient connects to ClickHouse, or returns nil when disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	c := cfg.ClickHouse
	client, err := pkgch.NewClient(
		pkgch.WithHost(c.Host),
		pkgch.WithPort(c.Port),
		pkgch.WithDatabase(c.Database),
		pkgch.WithCredentials(c.User, c.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(c.UseHTTP),
		pkgch.WithAsyncInsert(c.AsyncInsert, c.WaitForAsync),
		pkgch.WithTimeouts(c.DialTimeout, c.ReadTimeout),
		pkgch.WithMaxExecutionTime(c.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvidePointStorage creates the point history table and store.
func ProvidePointStorage(client *pkgch.Client, cfg *config.Config) (repository.Storage, error) {
	if client == nil {
		return nil, nil
	}
	store := internalrepo.NewClickHouseStorage(client.DB(), client.Database(), cfg.ClickHouse.Table)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return store, nil
}

// ProvidePublisher creates the Kafka point and signal publisher.
func ProvidePublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.Publisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.Topics.Points, cfg.Kafka.Topics.Signals)
}

// ProvideRedisCache connects to Redis, or returns nil when disabled.
func ProvideRedisCache(cfg *config.Config) (*cache.RedisCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Host, cfg.Redis.Port),
		cache.WithRedisAuth(cfg.Redis.Password, cfg.Redis.DB),
		cache.WithRedisPoolSize(cfg.Redis.PoolSize),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return rc, nil
}

// ProvideSnapshotCache fronts Redis with a small memory layer.
func ProvideSnapshotCache(rc *cache.RedisCache) *cache.LayeredCache {
	if rc == nil {
		return nil
	}
	return cache.NewLayeredCache(rc, cache.WithLayeredMemorySize(16), cache.WithLayeredMemoryTTL(time.Minute))
}

// ProvideRateStore persists rate snapshots across restarts.
func ProvideRateStore(lc *cache.LayeredCache, cfg *config.Config) repository.RateStore {
	if lc == nil {
		return nil
	}
	return internalrepo.NewRateSnapshotStore(lc, cfg.Rates.SnapshotRetention)
}

func ProvideUpstreamLimiter() UpstreamLimiter {
	return UpstreamLimiter{ratelimit.New()}
}

// ProvideRateSources builds the rate sources in configured order.
func ProvideRateSources(cfg *config.Config, limiter UpstreamLimiter) []repository.RateSource {
	out := make([]repository.RateSource, 0, len(cfg.Rates.Sources))
	for _, s := range cfg.Rates.Sources {
		opts := []ratesource.Option{
			ratesource.WithAPIKey(s.APIKey, s.KeyParam),
			ratesource.WithRateLimit(limiter.Limiter, s.RateLimit.Burst, s.RateLimit.PerSecond),
		}
		if s.Path != "" {
			opts = append(opts, ratesource.WithPath(s.Path))
		}
		out = append(out, ratesource.New(s.ID, s.BaseURL, opts...))
	}
	return out
}

// ProvideProviders builds every configured quote provider.
func ProvideProviders(
	cfg *config.Config,
	limiter UpstreamLimiter,
	m repository.Metrics,
	logger *applogger.Logger,
) []repository.ProviderAdapter {
	var out []repository.ProviderAdapter

	if fh := cfg.Providers.Finnhub; fh.Enabled {
		out = append(out, finnhub.New(fh.APIKey,
			finnhub.WithID(fh.ID),
			finnhub.WithWebsocketURL(fh.WebSocketURL),
			finnhub.WithRestURL(fh.RestURL),
			finnhub.WithMode(models.FetchMode(fh.Mode)),
			finnhub.WithReconnect(fh.ReconnectDelay, fh.PingInterval),
			finnhub.WithRateLimit(limiter.Limiter, fh.RateLimit.Burst, fh.RateLimit.PerSecond),
			finnhub.WithLogger(logger),
		))
	}

	for _, rp := range cfg.Providers.Rest {
		out = append(out, restquote.New(rp.ID, rp.BaseURL,
			restquote.WithAPIKey(rp.APIKey, rp.KeyHeader),
			restquote.WithRateLimit(limiter.Limiter, rp.RateLimit.Burst, rp.RateLimit.PerSecond),
		))
	}

	kc := cfg.Kafka.Consumer
	for _, kf := range cfg.Providers.KafkaFeeds {
		group := kf.GroupID
		if group == "" {
			group = kc.GroupID + "." + strings.ToLower(kf.ID)
		}
		out = append(out, kafkafeed.New(kf.ID, kf.Topic, m, logger,
			pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
			pkgkafka.WithConsumerGroupID(group),
			pkgkafka.WithConsumerBufferSize(kc.BufferSize),
			pkgkafka.WithConsumerRetry(kc.RetryMax, kc.BackoffMin, kc.BackoffMax),
			pkgkafka.WithConsumerFetch(kc.MinBytes, kc.MaxBytes),
		))
	}
	return out
}

// ProvideRateCache creates the shared FX cache.
func ProvideRateCache(cfg *config.Config) *rates.Cache {
	return rates.NewCache(rates.WithVehicle(cfg.Market.VehicleCurrency))
}

// ProvideRefresher wires sources, the snapshot store and emergency rates.
func ProvideRefresher(
	cfg *config.Config,
	rc *rates.Cache,
	sources []repository.RateSource,
	store repository.RateStore,
	logger *applogger.Logger,
) (*rates.Refresher, error) {
	emergency, err := cfg.EmergencyRates()
	if err != nil {
		return nil, err
	}
	opts := []rates.RefresherOption{
		rates.WithSources(sources...),
		rates.WithEmergencyRates(emergency),
		rates.WithFetchTimeout(cfg.Market.FetchTimeout),
	}
	if store != nil {
		opts = append(opts, rates.WithStore(store))
	}
	return rates.NewRefresher(rc, cfg.Market.RateTTL, logger.With("rates"), opts...), nil
}

func ProvideDetector(cfg *config.Config) *signals.Detector {
	return signals.NewDetector(cfg.Signals)
}

func ProvideCadencePolicy(cfg *config.Config) *usecase.CadencePolicy {
	return usecase.NewCadencePolicy(cfg.Cadence.MIC,
		usecase.WithMultipliers(cfg.Cadence.OffHoursMultiplier, cfg.Cadence.WeekendMultiplier),
	)
}

// ProvideSinkPipeline buffers points and signals between the aggregator and
// the downstream stores.
func ProvideSinkPipeline(
	store repository.Storage,
	pub repository.Publisher,
	m repository.Metrics,
	logger *applogger.Logger,
	cfg *config.Config,
) *mid.SinkPipeline {
	b := cfg.Backend
	return mid.NewSinkPipeline(store, pub, m, logger,
		mid.WithMaxRPS(b.MaxRPS),
		mid.WithBufferSize(b.BufferSize),
		mid.WithBatch(b.BatchSize, b.BatchTimeout),
		mid.WithMaxRetries(b.MaxRetries),
	)
}

// ProvideAggregator validates the catalog and assembles the core.
func ProvideAggregator(
	cfg *config.Config,
	providers []repository.ProviderAdapter,
	logger *applogger.Logger,
	m repository.Metrics,
	rc *rates.Cache,
	refresher *rates.Refresher,
	detector *signals.Detector,
	cadence *usecase.CadencePolicy,
	sink *mid.SinkPipeline,
	store repository.Storage,
) (*usecase.Aggregator, error) {
	opts := []usecase.AggregatorOption{
		usecase.WithRateCache(rc),
		usecase.WithRefresher(refresher),
		usecase.WithDetector(detector),
		usecase.WithCadencePolicy(cadence),
		usecase.WithMetrics(m),
		usecase.WithSink(sink),
	}
	if store != nil {
		opts = append(opts, usecase.WithStorage(store))
	}
	return usecase.NewAggregator(cfg.Market, cfg.Instruments, providers, logger, opts...)
}

// ProvideRotationScheduler initializes every configured rotation group.
func ProvideRotationScheduler(cfg *config.Config, logger *applogger.Logger, m repository.Metrics) (*rotation.Scheduler, error) {
	loc, err := time.LoadLocation(cfg.Rotation.Timezone)
	if err != nil {
		return nil, fmt.Errorf("rotation timezone: %w", err)
	}
	log := logger.With("rotation")
	s := rotation.NewScheduler(logger,
		rotation.WithLocation(loc),
		rotation.WithMetrics(m),
		rotation.WithOutput(func(group string, ids []string) {
			log.Debug("rotated", applogger.String("group", group), applogger.Strings("slots", ids))
		}),
	)
	for _, g := range cfg.Rotation.Groups {
		if err := s.Initialize(g.Name, g.Items, g.GroupConfig); err != nil {
			return nil, fmt.Errorf("rotation group %s: %w", g.Name, err)
		}
	}
	return s, nil
}

func ProvideStatusHandler(cfg *config.Config, logger *applogger.Logger, agg *usecase.Aggregator, rot *rotation.Scheduler) *api.StatusHandler {
	var opts []api.StatusOption
	if rl := cfg.Server.RateLimit; rl.Burst > 0 {
		opts = append(opts, api.WithClientRateLimit(ratelimit.New(), rl.Burst, rl.PerSecond))
	}
	return api.NewStatusHandler(logger, agg, rot, opts...)
}

func ProvideHTTPServer(cfg *config.Config, logger *applogger.Logger, h *api.StatusHandler) *xhttp.Server {
	return xhttp.NewServer([]xhttp.Routes{h},
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(cfg.Server.CORSOrigins...),
		xhttp.WithServerLogger(logger),
		xhttp.WithSlowThreshold(cfg.Server.SlowRequest),
	)
}

// ProvideApp creates the application server. Infrastructure clients close
// after the sink drains: producer, then ClickHouse, then the caches.
func ProvideApp(
	cfg *config.Config,
	logger *applogger.Logger,
	agg *usecase.Aggregator,
	rot *rotation.Scheduler,
	sink *mid.SinkPipeline,
	httpServer *xhttp.Server,
	producer *pkgkafka.Producer,
	chClient *pkgch.Client,
	rc *cache.RedisCache,
	lc *cache.LayeredCache,
) *server.App {
	var opts []server.Option
	if producer != nil {
		opts = append(opts, server.WithCloser("kafka producer", producer.Close))
	}
	if chClient != nil {
		opts = append(opts, server.WithCloser("clickhouse", chClient.Close))
	}
	if lc != nil {
		opts = append(opts, server.WithCloser("snapshot cache", lc.Close))
	}
	if rc != nil {
		opts = append(opts, server.WithCloser("redis", rc.Close))
	}
	return server.New(cfg, logger, agg, rot, sink, httpServer, opts...)
}
