//go:build wireinject
// +build wireinject

package di

import (
	"EdgeScan/pkg/config"
	"EdgeScan/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideRedisCache,
		ProvideKafkaProducer,

		// Repositories
		ProvideCandleStore,
		ProvideResultCache,
		ProvideEventPublisher,

		// Engine and use cases
		ProvideOptimizer,
		ProvideSeriesUseCase,
		ProvideBacktestUseCase,
		ProvideTaskManager,

		// Surfaces
		ProvideRateLimiter,
		ProvideOptimizeHandler,
		ProvideHTTPServer,
		ProvideIntake,
		ProvideKafkaConsumer,
		ProvideRedisQueue,

		ProvideApp,
	)
	return &server.App{}, nil
}
