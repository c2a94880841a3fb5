package di

import (
	"context"
	"fmt"
	"time"

	"BarFeed/internal/domain/repository"
	"BarFeed/internal/handler/api"
	internalrepo "BarFeed/internal/repository"
	icache "BarFeed/internal/service/cache"
	"BarFeed/internal/service/ratelimit"
	"BarFeed/internal/usecase"
	pkgch "BarFeed/pkg/clickhouse"
	"BarFeed/pkg/config"
	xhttp "BarFeed/pkg/http"
	pkgkafka "BarFeed/pkg/kafka"
	applogger "BarFeed/pkg/logger"
	"BarFeed/pkg/metrics"
	"BarFeed/pkg/server"
	pkgsqlite "BarFeed/pkg/sqlite"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const connectTimeout = 10 * time.Second

// ProvideRegistry creates the Prometheus registry every component
// registers on, with Go runtime and process collectors attached.
func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics(reg *prometheus.Registry) *metrics.Recorder {
	return metrics.New(reg)
}

// ProvideKafkaProducer returns nil when no brokers are configured.
func ProvideKafkaProducer(cfg *config.Config, reg *prometheus.Registry) (*pkgkafka.Producer, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, nil
	}
	p := cfg.Kafka.Producer
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(p.Compression),
		pkgkafka.WithRequiredAcks(p.RequiredAcks),
		pkgkafka.WithMaxAttempts(p.MaxAttempts),
		pkgkafka.WithBatchTimeout(p.BatchTimeout),
		pkgkafka.WithWriteTimeout(p.WriteTimeout),
		pkgkafka.WithProducerRegisterer(reg),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideLogger builds the root logger. The error collector is attached
// here, before any component derives a child logger from it.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, error) {
	log, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	if cfg.Log.Collector.Enabled && producer != nil {
		log.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   cfg.Log.Collector.FlushInterval,
			CountThreshold: cfg.Log.Collector.CountThreshold,
			Topic:          cfg.Kafka.LogTopic,
			Publisher:      producer,
		})
	}
	return log, nil
}

// ProvideMarketStore opens the configured backend and wraps it in the SQL
// market store.
func ProvideMarketStore(cfg *config.Config, m repository.Metrics, log *applogger.Logger) (repository.MarketStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	switch cfg.Store.Type {
	case "sqlite":
		client, err := pkgsqlite.NewClient(ctx, pkgsqlite.WithPath(cfg.SQLite.Path))
		if err != nil {
			return nil, fmt.Errorf("sqlite client: %w", err)
		}
		dialect := internalrepo.SQLiteDialect()
		if cfg.Store.InitSchema {
			if err := client.InitSchema(ctx, dialect.Schema()); err != nil {
				_ = client.Close()
				return nil, fmt.Errorf("sqlite schema: %w", err)
			}
		}
		return internalrepo.NewSQLMarketStore(client.DB(), dialect, client, m, log), nil

	default:
		ch := cfg.ClickHouse
		client, err := pkgch.NewClient(ctx,
			pkgch.WithHost(ch.Host),
			pkgch.WithPort(ch.Port),
			pkgch.WithDatabase(ch.Database),
			pkgch.WithCredentials(ch.User, ch.Password),
			pkgch.WithMaxConnections(ch.MaxOpenConns, ch.MaxIdleConns),
			pkgch.WithHTTP(ch.UseHTTP),
			pkgch.WithTimeouts(ch.DialTimeout, ch.ReadTimeout),
			pkgch.WithMaxExecutionTime(ch.MaxExecutionTime),
		)
		if err != nil {
			return nil, fmt.Errorf("clickhouse client: %w", err)
		}
		dialect := internalrepo.ClickHouseDialect(ch.Database)
		if cfg.Store.InitSchema {
			if err := client.InitSchema(ctx, dialect.Schema()); err != nil {
				_ = client.Close()
				return nil, fmt.Errorf("clickhouse schema: %w", err)
			}
		}
		return internalrepo.NewSQLMarketStore(client.DB(), dialect, client, m, log), nil
	}
}

// ProvideCache creates the chart window cache.
func ProvideCache(cfg *config.Config) (icache.BytesCache, error) {
	switch cfg.Cache.Type {
	case "redis":
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()
		r := cfg.Cache.Redis
		c, err := icache.NewRedisCache(ctx, icache.RedisConfig{
			Addr:      r.Addr,
			Password:  r.Password,
			DB:        r.DB,
			KeyPrefix: r.KeyPrefix,
		})
		if err != nil {
			return nil, fmt.Errorf("redis cache: %w", err)
		}
		return c, nil
	case "none":
		return icache.NopCache{}, nil
	default:
		return icache.NewTTLCache(), nil
	}
}

func ProvideRateLimiter(cfg *config.Config) *ratelimit.Limiter {
	return ratelimit.New(cfg.Chart.RateLimit.PerSecond, cfg.Chart.RateLimit.Burst)
}

func ProvideWindowLoader(cfg *config.Config, store repository.MarketStore, m repository.Metrics, log *applogger.Logger) *usecase.WindowLoader {
	return usecase.NewWindowLoader(store, m, log, usecase.WithMaxRawRows(cfg.Chart.MaxRawRows))
}

func ProvideStreamEngine(cfg *config.Config, store repository.MarketStore, m repository.Metrics, log *applogger.Logger) *usecase.StreamEngine {
	return usecase.NewStreamEngine(store, nil, m, log,
		usecase.WithPollInterval(cfg.Stream.PollInterval),
		usecase.WithQueryTimeout(cfg.Stream.QueryTimeout),
	)
}

func ProvideHub(cfg *config.Config, engine *usecase.StreamEngine, m repository.Metrics, log *applogger.Logger) *api.Hub {
	ws := cfg.Stream.WebSocket
	return api.NewHub(engine, m, log,
		api.WithSendBuffer(ws.SendBuffer),
		api.WithWriteTimeout(ws.WriteTimeout),
		api.WithPingInterval(ws.PingInterval),
		api.WithAllowedOrigins(cfg.Server.CORSOrigins),
	)
}

// ProvideHandlers collects every route group the HTTP server exposes.
func ProvideHandlers(
	cfg *config.Config,
	loader *usecase.WindowLoader,
	engine *usecase.StreamEngine,
	hub *api.Hub,
	cache icache.BytesCache,
	limiter *ratelimit.Limiter,
	store repository.MarketStore,
	m repository.Metrics,
	log *applogger.Logger,
) []xhttp.Handler {
	chart := api.NewChartHandler(loader, m, log,
		api.WithWindowCache(cache, cfg.Cache.TTL),
		api.WithRateLimiter(limiter),
		api.WithLimits(cfg.Chart.DefaultLimit, cfg.Chart.MaxLimit),
	)
	return []xhttp.Handler{
		chart,
		api.NewStreamHandler(engine, hub, log),
		api.NewHealthHandler(store),
	}
}

func ProvideHTTPServer(cfg *config.Config, handlers []xhttp.Handler, rec *metrics.Recorder, reg *prometheus.Registry, log *applogger.Logger) *xhttp.Server {
	s := cfg.Server
	opts := []xhttp.ServerOption{
		xhttp.WithPort(s.Port),
		xhttp.WithTimeouts(s.ReadTimeout, s.WriteTimeout, s.ShutdownTimeout),
		xhttp.WithSlowRequest(s.SlowRequest),
	}
	if len(s.CORSOrigins) > 0 {
		opts = append(opts, xhttp.WithCORS(s.CORSOrigins))
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetrics(rec, cfg.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	}
	return xhttp.NewServer(log, handlers, opts...)
}

func ProvideCommandHandler(cfg *config.Config, engine *usecase.StreamEngine, m repository.Metrics, log *applogger.Logger) *usecase.SubscriptionCommandHandler {
	return usecase.NewSubscriptionCommandHandler(cfg.Kafka.Commands.Topic, engine, m, log)
}

// ProvideKafkaConsumer returns nil unless the command topic is enabled.
func ProvideKafkaConsumer(cfg *config.Config, reg *prometheus.Registry, log *applogger.Logger) (*pkgkafka.Consumer, error) {
	cmd := cfg.Kafka.Commands
	if !cmd.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cmd.GroupID),
		pkgkafka.WithConsumerWorkers(cmd.Workers),
		pkgkafka.WithConsumerBufferSize(cmd.BufferSize),
		pkgkafka.WithConsumerRetry(cmd.RetryMax, cmd.BackoffMin, cmd.BackoffMax),
		pkgkafka.WithConsumerDLQ(cmd.DLQTopic),
		pkgkafka.WithConsumerLogger(log),
		pkgkafka.WithConsumerRegisterer(reg),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

func ProvideApp(
	cfg *config.Config,
	log *applogger.Logger,
	httpServer *xhttp.Server,
	engine *usecase.StreamEngine,
	hub *api.Hub,
	consumer *pkgkafka.Consumer,
	commands *usecase.SubscriptionCommandHandler,
	cache icache.BytesCache,
	store repository.MarketStore,
	producer *pkgkafka.Producer,
) *server.App {
	return server.New(cfg, log, server.Components{
		HTTP:     httpServer,
		Engine:   engine,
		Hub:      hub,
		Consumer: consumer,
		Commands: commands,
		Cache:    cache,
		Store:    store,
		Producer: producer,
	})
}
