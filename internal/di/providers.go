package di

import (
	"context"
	"fmt"
	"os"
	"time"

	"RegimeDesk/internal/domain/models"
	"RegimeDesk/internal/domain/repository"
	"RegimeDesk/internal/handler/api"
	internalrepo "RegimeDesk/internal/repository"
	"RegimeDesk/internal/service/binance"
	"RegimeDesk/internal/service/diagnostics"
	"RegimeDesk/internal/services/sequence"
	"RegimeDesk/internal/usecase"
	pkgcache "RegimeDesk/pkg/cache"
	pkgch "RegimeDesk/pkg/clickhouse"
	"RegimeDesk/pkg/config"
	xhttp "RegimeDesk/pkg/http"
	pkgkafka "RegimeDesk/pkg/kafka"
	"RegimeDesk/pkg/logger"
	"RegimeDesk/pkg/metrics"
	"RegimeDesk/pkg/server"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// ProvideLogger builds the process logger from the log section.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
}

// ProvideRegistry creates the registry served on /metrics.
func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics(reg *prometheus.Registry) repository.Metrics {
	return metrics.NewWithRegisterer(reg)
}

func ProvideStateStore(cfg *config.Config) *internalrepo.StateStore {
	return internalrepo.NewStateStore(internalrepo.NewLayout(cfg.BaseDir()))
}

func ProvideCounter(store *internalrepo.StateStore) (*sequence.Counter, error) {
	return sequence.NewCounter(store.Layout.SequenceMeta())
}

// ProvideEnvelopeFactory stamps listener envelopes with this host's name.
func ProvideEnvelopeFactory(cfg *config.Config) models.EnvelopeFactory {
	return NewEnvelopeFactory(models.SourceListener, cfg.Version)
}

// NewEnvelopeFactory is shared with the watchdog binary.
func NewEnvelopeFactory(source, version string) models.EnvelopeFactory {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return models.EnvelopeFactory{Source: source, Version: version, Host: host}
}

// ProvideStreamSource returns nil unless the stream source is configured.
func ProvideStreamSource(cfg *config.Config, l *logger.Logger) *binance.StreamSource {
	if cfg.Listener.Source != "stream" {
		return nil
	}
	return binance.NewStreamSource(cfg.Binance.StreamURL, cfg.Listener.Assets,
		binance.WithMaxAge(cfg.Binance.MaxAge),
		binance.WithReconnectDelay(cfg.Binance.ReconnectDelay),
		binance.WithLogger(l),
	)
}

// ProvidePriceSource prefers the stream cache when one is running.
func ProvidePriceSource(cfg *config.Config, stream *binance.StreamSource) repository.PriceSource {
	if stream != nil {
		return stream
	}
	return binance.NewRestSource(cfg.Binance.RestURL,
		binance.WithHTTPClient(xhttp.NewClient(xhttp.WithTimeout(cfg.Binance.Timeout))),
		binance.WithRateLimit(cfg.Binance.RateLimit, cfg.Binance.Burst),
	)
}

func ProvideCrashReporter(cfg *config.Config, store *internalrepo.StateStore) *diagnostics.Reporter {
	return diagnostics.NewReporter(store.Layout, cfg.Version)
}

// ProvideIngestor creates the ingestion use case.
func ProvideIngestor(
	cfg *config.Config,
	source repository.PriceSource,
	store *internalrepo.StateStore,
	counter *sequence.Counter,
	factory models.EnvelopeFactory,
	m repository.Metrics,
	l *logger.Logger,
	reporter *diagnostics.Reporter,
) (*usecase.Ingestor, error) {
	return usecase.NewIngestor(usecase.IngestorConfigFrom(cfg), source, store.Spine, store, counter, factory,
		usecase.WithIngestorMetrics(m),
		usecase.WithIngestorLogger(l.With(logger.String("component", "ingestor"))),
		usecase.WithCrashReporter(reporter),
	)
}

func ProvideScheduler(cfg *config.Config, l *logger.Logger) (*usecase.Scheduler, error) {
	return usecase.NewScheduler(cfg.Listener.Cadence, usecase.WithSchedulerLogger(l))
}

// ProvideHTTPServer returns nil when the status API is disabled.
func ProvideHTTPServer(cfg *config.Config, l *logger.Logger, reg *prometheus.Registry, ingestor *usecase.Ingestor, store *internalrepo.StateStore) *xhttp.Server {
	if !cfg.Server.Enabled {
		return nil
	}
	h := api.NewStatusHandler(l, ingestor, store.Spine, 2*time.Second)
	return xhttp.NewServer(h,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithLogger(l),
		xhttp.WithRegistry(reg),
		xhttp.WithRateLimit(cfg.Server.RateLimit, cfg.Server.Burst),
	)
}

// ProvideApp creates the listener application.
func ProvideApp(
	ingestor *usecase.Ingestor,
	scheduler *usecase.Scheduler,
	stream *binance.StreamSource,
	httpServer *xhttp.Server,
	l *logger.Logger,
) *server.App {
	opts := []server.Option{server.WithLogger(l)}
	if stream != nil {
		opts = append(opts, server.WithBackground(stream))
	}
	if httpServer != nil {
		opts = append(opts, server.WithHTTPServer(httpServer))
	}
	return server.New(ingestor, scheduler, opts...)
}

// ProvideSink connects the configured relay backend.
func ProvideSink(cfg *config.Config) (repository.Sink, error) {
	if err := cfg.ValidateRelay(); err != nil {
		return nil, err
	}
	switch cfg.Relay.Backend {
	case "kafka":
		producer, err := pkgkafka.NewProducer(
			pkgkafka.WithBrokers(cfg.Kafka.Brokers),
			pkgkafka.WithCompression(cfg.Kafka.Compression),
			pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
			pkgkafka.WithBatching(cfg.Relay.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
			pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
			pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
			pkgkafka.WithHashByKey(true),
		)
		if err != nil {
			return nil, fmt.Errorf("kafka producer: %w", err)
		}
		return internalrepo.NewKafkaSink(producer, cfg.Kafka.Topic), nil

	case "clickhouse":
		client, err := pkgch.NewClient(
			pkgch.WithHost(cfg.ClickHouse.Host),
			pkgch.WithPort(cfg.ClickHouse.Port),
			pkgch.WithDatabase(cfg.ClickHouse.Database),
			pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
			pkgch.WithMaxConnections(4, 2),
			pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
			pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		)
		if err != nil {
			return nil, fmt.Errorf("clickhouse client: %w", err)
		}
		sink := internalrepo.NewClickHouseSink(client, cfg.ClickHouse.Table)

		// Initialize schema
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := sink.Init(ctx); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("clickhouse schema: %w", err)
		}
		return sink, nil

	default:
		client, err := pkgcache.NewRedisClient(
			pkgcache.WithRedisHost(cfg.Redis.Host),
			pkgcache.WithRedisPort(cfg.Redis.Port),
			pkgcache.WithRedisPassword(cfg.Redis.Password),
			pkgcache.WithRedisDB(cfg.Redis.DB),
			pkgcache.WithRedisPrefix(cfg.Redis.Prefix),
		)
		if err != nil {
			return nil, fmt.Errorf("redis client: %w", err)
		}
		return internalrepo.NewRedisStreamSink(client, cfg.Redis.Stream, cfg.Redis.MaxLen), nil
	}
}

// ProvideRelay creates the spine relay use case.
func ProvideRelay(cfg *config.Config, store *internalrepo.StateStore, sink repository.Sink, m repository.Metrics, l *logger.Logger) *usecase.Relay {
	return usecase.NewRelay(store, sink, cfg.Relay.BatchSize, cfg.Relay.PollInterval,
		usecase.WithRelayMetrics(m),
		usecase.WithRelayLogger(l.With(logger.String("component", "relay"), logger.String("sink", sink.Name()))),
	)
}
