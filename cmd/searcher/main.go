package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/indexer/construct"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/indexer/watcher"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/searcher/planner"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/pkg/grpc"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/search-index-core/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/pkg/tracing"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults apply when empty)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service", "port", cfg.Server.Port, "data_dir", cfg.Index.DataDir)

	if err := run(cfg); err != nil {
		slog.Error("search service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("search service stopped")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(nil)
	if cfg.Metrics.Enabled {
		shutdownMetrics, err := metrics.StartServer(cfg.Metrics.Port)
		if err != nil {
			return err
		}
		defer shutdownMetrics(context.Background())
	}

	index, err := indexer.NewIndex(cfg.Index, m)
	if err != nil {
		return err
	}
	defer index.Close()
	if err := index.Init(ctx); err != nil {
		// The service still starts; queries answer empty until a switch
		// succeeds.
		slog.Warn("initial index load failed", "error", err)
	}

	var redisClient *pkgredis.Client
	var shared cache.Store
	if cfg.Cache.Enabled {
		redisClient, err = pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, shared result cache disabled", "error", err)
		} else {
			defer redisClient.Close()
			shared = cache.RedisStore{Client: redisClient}
		}
	}
	queryCache, err := cache.New(cfg.Cache, shared, m)
	if err != nil {
		return fmt.Errorf("creating result cache: %w", err)
	}
	defer queryCache.Close()
	index.OnSwitch(func(gen *indexer.Generation) {
		queryCache.Purge()
		slog.Info("result cache purged after switch", "generation", gen.ID())
		go func(id string) {
			purgeCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
			defer cancel()
			if _, err := queryCache.PurgeShared(purgeCtx, id); err != nil {
				slog.Warn("shared cache purge failed", "generation", id, "error", err)
			}
		}(gen.ID())
	})

	sets := planner.NewSearchSets(cfg.Query.SearchSets)
	exec := executor.New(index, planner.New(cfg.Query.PriorityPathThreshold, sets), cfg.Query, m)
	defer exec.Close()
	h := handler.New(index, exec, queryCache, m)

	if cfg.Index.WatchForGenerations {
		w, err := watcher.New(cfg.Index.DataDir, index, 0)
		if err != nil {
			return fmt.Errorf("creating generation watcher: %w", err)
		}
		go func() {
			if err := w.Run(ctx); err != nil {
				slog.Error("generation watcher stopped", "error", err)
			}
		}()
	}

	var pg *postgres.Client
	if cfg.Kafka.Enabled {
		pg, err = postgres.New(cfg.Postgres)
		if err != nil {
			slog.Warn("postgres unavailable, construct commands use neutral domain ranks", "error", err)
		} else {
			defer pg.Close()
		}
		startControlConsumer(ctx, cfg, index, pg, m)
	}

	checker := health.NewChecker()
	checker.Register("index", health.IndexCheck(index))
	var redisPing func(context.Context) error
	if redisClient != nil {
		redisPing = redisClient.Ping
	}
	checker.Register("redis", health.PingCheck(redisPing))
	if pg != nil {
		checker.Register("postgres", health.PingCheck(pg.Ping))
	}

	mux := http.NewServeMux()
	h.Routes(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RateLimit(cfg.Query.RateLimitPerSecond, cfg.Query.RateLimitBurst)(chain)
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	if cfg.Tracing.Enabled {
		chain = middleware.Tracing(tracing.NewSampler(cfg.Tracing.SampleRate))(chain)
	}
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	var rpc *grpc.Server
	if cfg.RPC.Enabled {
		rpc = grpc.NewServer()
		h.RegisterRPC(rpc)
		go func() {
			if err := rpc.Serve(cfg.RPC.Addr); err != nil {
				slog.Error("rpc server error", "error", err)
			}
		}()
	}

	go reportPendingCloses(ctx, index, m)

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		if rpc != nil {
			rpc.Stop()
		}
	}()

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// startControlConsumer applies switch and construct commands from Kafka
// and reports their outcome on the events topic.
func startControlConsumer(ctx context.Context, cfg *config.Config, index *indexer.Index, pg *postgres.Client, m *metrics.Metrics) {
	events := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexEvents)
	var ranks construct.DomainRanks = construct.StaticRanks{}
	if pg != nil {
		ranks = construct.NewPostgresRanks(pg.DB)
	}
	build := func(ctx context.Context, journals []string) error {
		_, err := construct.Convert(ctx, construct.Options{DataDir: cfg.Index.DataDir, Ranks: ranks}, journals)
		status := "ok"
		if err != nil {
			status = "failed"
		}
		m.ConstructionsTotal.WithLabelValues(status).Inc()
		return err
	}
	control := consumer.NewHandler(index, build, events)
	ic := consumer.New(kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.IndexControl, control.Handle))

	go func() {
		defer events.Close()
		if err := ic.Start(ctx); err != nil && ctx.Err() == nil {
			slog.Error("index control consumer stopped", "error", err)
		}
	}()
	slog.Info("index control consumer started",
		"topic", cfg.Kafka.Topics.IndexControl,
		"group", cfg.Kafka.ConsumerGroup,
	)
}

func reportPendingCloses(ctx context.Context, index *indexer.Index, m *metrics.Metrics) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.PendingCloses.Set(float64(index.Status().PendingCloses))
		}
	}
}
