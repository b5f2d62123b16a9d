//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"MarketBoard/pkg/config"
	"MarketBoard/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Infrastructure clients
		ProvideKafkaProducer,
		ProvideLogger,
		ProvideMetrics,
		ProvideClickHouseClient,
		ProvideRedisCache,
		ProvideSnapshotCache,

		// Repositories
		ProvidePointStorage,
		ProvidePublisher,
		ProvideRateStore,

		// Upstreams
		ProvideUpstreamLimiter,
		ProvideRateSources,
		ProvideProviders,

		// Core
		ProvideRateCache,
		ProvideRefresher,
		ProvideDetector,
		ProvideCadencePolicy,
		ProvideSinkPipeline,
		ProvideAggregator,
		ProvideRotationScheduler,

		// Delivery
		ProvideStatusHandler,
		ProvideHTTPServer,
		ProvideApp,
	)
	return &server.App{}, nil
}
