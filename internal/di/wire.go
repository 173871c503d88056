//go:build wireinject
// +build wireinject

package di

import (
	"RegimeDesk/internal/usecase"
	"RegimeDesk/pkg/config"
	"RegimeDesk/pkg/logger"
	"RegimeDesk/pkg/server"

	"github.com/google/wire"
	"github.com/prometheus/client_golang/prometheus"
)

// InitializeListener wires up the listener and returns the application.
// Wire will generate the implementation of this function.
func InitializeListener(cfg *config.Config, l *logger.Logger, reg *prometheus.Registry) (*server.App, error) {
	wire.Build(
		// Metrics
		ProvideMetrics,

		// State on disk
		ProvideStateStore,
		ProvideCounter,
		ProvideEnvelopeFactory,
		ProvideCrashReporter,

		// Price sources
		ProvideStreamSource,
		ProvidePriceSource,

		// Use cases
		ProvideIngestor,
		ProvideScheduler,

		// Application server
		ProvideHTTPServer,
		ProvideApp,
	)
	return &server.App{}, nil
}

// InitializeRelay wires up the spine relay for the configured backend.
func InitializeRelay(cfg *config.Config, l *logger.Logger, reg *prometheus.Registry) (*usecase.Relay, error) {
	wire.Build(
		ProvideMetrics,
		ProvideStateStore,
		ProvideSink,
		ProvideRelay,
	)
	return &usecase.Relay{}, nil
}
