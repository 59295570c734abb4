package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/internal/indexer/snapshot"
	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/internal/records"
	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/internal/searcher/reload"
	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/lexical-ranker/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	corpusPath := flag.String("corpus", "", "newline-delimited corpus file used when postgres is disabled")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service",
		"port", cfg.Server.Port,
		"snapshot_backend", cfg.Snapshot.Backend,
		"k1", cfg.BM25.K1,
		"b", cfg.BM25.B,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(nil)
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	var pg *postgres.Client
	if cfg.Postgres.Enabled {
		pg, err = postgres.New(cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		slog.Info("postgres connected", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	}

	var redisClient *pkgredis.Client
	var kv snapshot.KV
	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, falling back to the local search cache", "error", err)
			redisClient = nil
		} else {
			defer redisClient.Close()
			kv = redisClient
		}
	}

	var source records.Source
	switch {
	case pg != nil:
		source, err = records.NewPostgresSource(pg, cfg.Records)
		if err != nil {
			slog.Error("invalid records config", "error", err)
			os.Exit(1)
		}
	case *corpusPath != "":
		source = records.NewFileSource(*corpusPath)
	default:
		slog.Warn("no record source configured, rebuilds will fail until one is set")
	}

	store, err := snapshot.Open(ctx, cfg.Snapshot, kv, pg)
	if err != nil {
		slog.Error("failed to open snapshot store", "error", err)
		os.Exit(1)
	}

	engineOpts, err := indexer.OptionsFromConfig(cfg.BM25)
	if err != nil {
		slog.Error("invalid bm25 config", "error", err)
		os.Exit(1)
	}

	breaker := resilience.NewCircuitBreaker("snapshot-store", resilience.CircuitBreakerConfig{
		FailureThreshold:    5,
		HalfOpenMaxRequests: 1,
		OnStateChange: func(name string, _, to resilience.State) {
			m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		},
	})

	var queryCache *cache.QueryCache
	opts := executor.Options{
		Source:  source,
		Store:   store,
		Engine:  engineOpts,
		Metrics: m,
		Breaker: breaker,
	}
	switch {
	case redisClient != nil:
		queryCache = cache.New(redisClient, cfg.Redis, m)
		slog.Info("search cache enabled",
			"backend", "redis",
			"addr", cfg.Redis.Addr,
			"ttl", cfg.Redis.CacheTTL,
		)
	case cfg.Search.LocalCacheSize > 0:
		queryCache = cache.New(cache.NewLocalBackend(cfg.Search.LocalCacheSize, cfg.Search.LocalCacheTTL), cfg.Redis, m)
		slog.Info("search cache enabled",
			"backend", "local",
			"size", cfg.Search.LocalCacheSize,
			"ttl", cfg.Search.LocalCacheTTL,
		)
	}
	if queryCache != nil {
		opts.Invalidator = queryCache
	}

	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		producer = kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexFitted)
		defer producer.Close()
		opts.Publisher = producer
	}

	exec := executor.New(opts)

	err = resilience.WithTimeout(ctx, cfg.Snapshot.LoadTimeout, "snapshot-restore", func(ctx context.Context) error {
		restored, err := exec.Restore(ctx)
		if err != nil {
			return err
		}
		if !restored {
			slog.Info("no snapshot found, serving unfitted until the first rebuild")
		}
		return nil
	})
	if err != nil {
		slog.Error("failed to restore snapshot, serving unfitted", "error", err)
	}

	if cfg.Snapshot.Watch {
		watcher := reload.New(cfg.Snapshot.Dir, exec, reload.WithDebounce(cfg.Snapshot.WatchDebounce))
		if err := watcher.Start(ctx); err != nil {
			slog.Error("failed to watch snapshot directory", "error", err)
			os.Exit(1)
		}
	}

	if cfg.Kafka.Enabled {
		rebuildHandler := consumer.NewHandler(exec)
		kafkaConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.CorpusRebuild, rebuildHandler.HandleMessage())
		rebuildConsumer := consumer.New(kafkaConsumer)
		go func() {
			if err := rebuildConsumer.Start(ctx); err != nil {
				slog.Error("rebuild consumer error", "error", err)
			}
		}()
		slog.Info("consuming rebuild requests",
			"topic", cfg.Kafka.Topics.CorpusRebuild,
			"group", cfg.Kafka.ConsumerGroup,
		)
	}

	checker := health.NewChecker()
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		stats := exec.Stats()
		if !stats.Fitted {
			return health.ComponentHealth{Status: health.StatusDown, Message: "not fitted"}
		}
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("generation %d, %d documents", stats.Generation, stats.Documents),
		}
	})
	if redisClient != nil {
		checker.Register("redis", health.PingCheck(redisClient.Ping, false))
	}
	if pg != nil {
		checker.Register("postgres", health.PingCheck(pg.Ping, true))
	}

	h := handler.New(exec, queryCache, m, cfg.Search.DefaultLimit, cfg.Search.MaxResults)

	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Metrics(m)(chain)
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("search service stopped")
}
