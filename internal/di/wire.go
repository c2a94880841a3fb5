//go:build wireinject
// +build wireinject

package di

import (
	"BarFeed/internal/domain/repository"
	"BarFeed/pkg/config"
	"BarFeed/pkg/metrics"
	"BarFeed/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Metrics
		ProvideRegistry,
		ProvideMetrics,
		wire.Bind(new(repository.Metrics), new(*metrics.Recorder)),

		// Infrastructure clients
		ProvideKafkaProducer,
		ProvideLogger,
		ProvideMarketStore,
		ProvideCache,
		ProvideRateLimiter,

		// Use cases
		ProvideWindowLoader,
		ProvideStreamEngine,
		ProvideCommandHandler,

		// Transport
		ProvideHub,
		ProvideHandlers,
		ProvideHTTPServer,
		ProvideKafkaConsumer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
