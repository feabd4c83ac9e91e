package di

import (
	"context"
	"fmt"
	"time"

	"EdgeScan/internal/domain/repository"
	"EdgeScan/internal/handler/api"
	"EdgeScan/internal/handler/intake"
	internalrepo "EdgeScan/internal/repository"
	"EdgeScan/internal/service/ratelimit"
	"EdgeScan/internal/services/optimizer"
	"EdgeScan/internal/usecase"
	"EdgeScan/pkg/cache"
	pkgch "EdgeScan/pkg/clickhouse"
	"EdgeScan/pkg/config"
	xhttp "EdgeScan/pkg/http"
	pkgkafka "EdgeScan/pkg/kafka"
	applogger "EdgeScan/pkg/logger"
	"EdgeScan/pkg/metrics"
	"EdgeScan/pkg/queue"
	"EdgeScan/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: cfg.Log.TimeFormat,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New(nil)
}

// ProvideClickHouseClient creates a ClickHouse client, or nil when the candle store is off.
func ProvideClickHouseClient(cfg *config.Config, l *applogger.Logger) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithCompression(cfg.ClickHouse.Compress),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	if cfg.ClickHouse.InitSchema {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := client.InitSchema(ctx, internalrepo.CandleSchema(cfg.ClickHouse.Database)); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("clickhouse schema: %w", err)
		}
		l.Info("clickhouse schema ready", applogger.String("database", cfg.ClickHouse.Database))
	}
	return client, nil
}

// ProvideCandleStore exposes stored series; nil leaves payloads to embed theirs.
func ProvideCandleStore(ch *pkgch.Client, cfg *config.Config, l *applogger.Logger) repository.CandleStore {
	if ch == nil {
		return nil
	}
	store := internalrepo.NewCHCandleStore(ch, cfg.ClickHouse.Database)
	store.SetLogger(l)
	return store
}

// ProvideRedisCache creates the Redis client, or nil when caching is off.
func ProvideRedisCache(cfg *config.Config) (*cache.RedisCache, error) {
	if !cfg.Cache.Enabled {
		return nil, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Cache.Host, cfg.Cache.Port),
		cache.WithRedisAuth(cfg.Cache.Password, cfg.Cache.DB),
		cache.WithRedisPool(cfg.Cache.PoolSize, cfg.Cache.MinIdleConns, cfg.Cache.PoolTimeout),
		cache.WithRedisPrefix(cfg.Cache.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return rc, nil
}

// ProvideResultCache layers an in-process LRU over Redis when configured.
func ProvideResultCache(rc *cache.RedisCache, cfg *config.Config) repository.ResultCache {
	if rc == nil {
		return nil
	}
	var svc cache.Service = rc
	if cfg.Cache.Layered {
		svc = cache.NewLayeredCache(rc,
			cache.WithLayeredMemorySize(cfg.Cache.MemorySize),
			cache.WithLayeredMemoryTTL(cfg.Cache.MemoryTTL),
		)
	}
	return internalrepo.NewCachedResults(svc)
}

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is off.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Producer.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.Producer.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideEventPublisher sends task events to Kafka.
func ProvideEventPublisher(p *pkgkafka.Producer, cfg *config.Config) repository.EventPublisher {
	if p == nil {
		return nil
	}
	return internalrepo.NewKafkaEventPublisher(p, cfg.Kafka.EventsTopic, cfg.Kafka.SendProgress)
}

// ProvideOptimizer creates the combinatorial optimizer.
func ProvideOptimizer(cfg *config.Config, l *applogger.Logger, m repository.Metrics) *optimizer.Optimizer {
	return optimizer.New(
		optimizer.WithLogger(l),
		optimizer.WithMetrics(m),
		optimizer.WithMaxRobust(cfg.Engine.MaxRobust),
		optimizer.WithProgressEvery(cfg.Engine.ProgressEvery),
	)
}

// ProvideSeriesUseCase resolves embedded or stored series.
func ProvideSeriesUseCase(store repository.CandleStore, cfg *config.Config) *usecase.SeriesUseCase {
	return usecase.NewSeriesUseCase(store, cfg.Engine.MaxBars)
}

// ProvideBacktestUseCase creates the single-configuration backtest use case.
func ProvideBacktestUseCase(series *usecase.SeriesUseCase, m repository.Metrics) *usecase.BacktestUseCase {
	return usecase.NewBacktestUseCase(series, m)
}

// ProvideTaskManager creates the optimization task registry.
func ProvideTaskManager(
	l *applogger.Logger,
	opt *optimizer.Optimizer,
	series *usecase.SeriesUseCase,
	pub repository.EventPublisher,
	results repository.ResultCache,
	m repository.Metrics,
	cfg *config.Config,
) *usecase.TaskManager {
	return usecase.NewTaskManager(l, opt, series, pub, results, m, usecase.ManagerConfig{
		MaxRunning: cfg.Tasks.MaxRunning,
		Retention:  cfg.Tasks.Retention,
		CacheTTL:   cfg.Cache.TTL,
		SubBuffer:  cfg.Tasks.SubBuffer,
	})
}

// ProvideRateLimiter limits task starts per client address.
func ProvideRateLimiter(cfg *config.Config) *ratelimit.Limiter {
	return ratelimit.New(cfg.Tasks.RateBurst, cfg.Tasks.RatePerSecond)
}

// ProvideOptimizeHandler creates the REST and WebSocket handler.
func ProvideOptimizeHandler(l *applogger.Logger, tasks *usecase.TaskManager, bt *usecase.BacktestUseCase, rl *ratelimit.Limiter) *api.OptimizeHandler {
	return api.NewOptimizeHandler(l, tasks, bt, rl)
}

// ProvideHTTPServer creates the echo server with routes registered.
func ProvideHTTPServer(cfg *config.Config, l *applogger.Logger, h *api.OptimizeHandler) *xhttp.Server {
	return xhttp.NewServer(l, h,
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithSlowThreshold(cfg.Server.SlowThreshold),
		xhttp.WithCORS(cfg.Server.CORS),
		xhttp.WithMetrics(cfg.Metrics.Enabled),
	)
}

// ProvideIntake accepts optimization requests from Kafka or the Redis queue.
func ProvideIntake(l *applogger.Logger, tasks *usecase.TaskManager, cfg *config.Config) *intake.OptimizeIntake {
	return intake.NewOptimizeIntake(l, tasks, cfg.Kafka.RequestsTopic)
}

// ProvideKafkaConsumer creates the request consumer, or nil without a requests topic.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled || cfg.Kafka.RequestsTopic == "" {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideRedisQueue creates the Redis job consumer, or nil when the queue is off.
func ProvideRedisQueue(cfg *config.Config, l *applogger.Logger, rc *cache.RedisCache, in *intake.OptimizeIntake) *queue.RedisQueue {
	if !cfg.Queue.Enabled || rc == nil {
		return nil
	}
	return queue.NewRedisConsumer(l, queueConfig(cfg), rc.Client(), []queue.Job{in.Job()}, queue.WithKeyPrefix(cfg.Queue.Prefix))
}

func queueConfig(cfg *config.Config) queue.QueueConfig {
	return queue.QueueConfig{
		Workers:    cfg.Queue.Workers,
		RetryLimit: cfg.Queue.RetryLimit,
		RetryDelay: cfg.Queue.RetryDelay,
	}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	srv *xhttp.Server,
	tasks *usecase.TaskManager,
	consumer *pkgkafka.Consumer,
	in *intake.OptimizeIntake,
	q *queue.RedisQueue,
	ch *pkgch.Client,
	rc *cache.RedisCache,
	producer *pkgkafka.Producer,
) *server.App {
	opts := []server.Option{server.WithShutdownTimeout(cfg.Server.ShutdownTimeout)}
	if consumer != nil {
		consumer.WithConsumerHook(pkgkafka.NoopHook{})
		opts = append(opts, server.WithConsumer(consumer, in))
	}
	if q != nil {
		opts = append(opts, server.WithQueue(q))
	}
	// closed in reverse: producer last so the log collector can flush through it
	if producer != nil {
		opts = append(opts, server.WithCloser("kafka producer", producer))
		if cfg.Log.Collector.Enabled {
			l.AddCollector(&applogger.CollectionConfig{
				TimeInterval:   cfg.Log.Collector.Interval,
				CountThreshold: cfg.Log.Collector.CountThreshold,
				Topic:          cfg.Log.Collector.Topic,
				Publisher:      internalrepo.NewKafkaLogPublisher(producer),
				IncludeWarn:    cfg.Log.Collector.IncludeWarn,
			})
			opts = append(opts, server.WithCloser("log collector", closerFunc(func() error {
				l.RemoveCollector()
				return nil
			})))
		}
	}
	if rc != nil {
		opts = append(opts, server.WithCloser("redis", rc))
	}
	if ch != nil {
		opts = append(opts, server.WithCloser("clickhouse", ch))
	}
	return server.New(l, srv, tasks, opts...)
}
