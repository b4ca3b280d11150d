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

	"github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/internal/accel"
	"github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/internal/api"
	"github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/internal/cache"
	"github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/internal/store"
	"github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/pkg/redis"
)

const version = "1.0.0"

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	if err := run(cfg); err != nil {
		slog.Error("match api stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("match api stopped")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("starting match api",
		"port", cfg.Server.Port,
		"store", cfg.Store.Driver,
		"cache_strategy", cfg.Cache.Strategy,
		"rebuild_trigger", cfg.Index.RebuildTrigger,
	)

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(nil)
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	matches, err := store.Open(ctx, *cfg, m)
	if err != nil {
		return fmt.Errorf("opening match store: %w", err)
	}
	defer matches.Close()
	slog.Info("match store ready", "driver", cfg.Store.Driver)

	// Redis is only dialled when the shared cache strategy asks for it.
	var redisClient *pkgredis.Client
	if cfg.Cache.Strategy == config.CacheStrategyRedis {
		redisClient, err = pkgredis.NewClient(cfg.Redis)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer redisClient.Close()
	}
	resultCache, err := cache.New(cfg.Cache, cfg.Redis, redisClient, m)
	if err != nil {
		return fmt.Errorf("building result cache: %w", err)
	}

	deps := accel.Deps{Store: matches, Cache: resultCache, Metrics: m}
	var producers []*kafka.Producer
	if cfg.Kafka.Enabled {
		ingested := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.MatchIngested)
		invalidate := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.CacheInvalidate)
		producers = append(producers, ingested, invalidate)
		deps.IngestPublisher = ingested
		deps.InvalidatePublisher = invalidate
	}
	svc := accel.New(*cfg, deps)
	defer func() {
		if err := svc.Close(); err != nil {
			slog.Error("closing acceleration service", "error", err)
		}
		for _, p := range producers {
			if err := p.Close(); err != nil {
				slog.Error("closing kafka producer", "topic", p.Topic(), "error", err)
			}
		}
	}()

	if cfg.Kafka.Enabled {
		// Every instance must see every event, so each one consumes in its
		// own group.
		kcfg := cfg.Kafka
		kcfg.ConsumerGroup = fmt.Sprintf("%s-%s", cfg.Kafka.ConsumerGroup, svc.ID())
		svc.AddRunner(kafka.NewConsumer(kcfg, cfg.Kafka.Topics.MatchIngested, svc.HandleMatchIngested))
		svc.AddRunner(kafka.NewConsumer(kcfg, cfg.Kafka.Topics.CacheInvalidate, svc.HandleInvalidation))
		slog.Info("kafka events enabled",
			"brokers", cfg.Kafka.Brokers,
			"group", kcfg.ConsumerGroup,
			"ingested_topic", cfg.Kafka.Topics.MatchIngested,
			"invalidate_topic", cfg.Kafka.Topics.CacheInvalidate,
		)
	}
	svc.Start(ctx)

	checker := health.NewChecker(0)
	checker.Register("store", health.Ping(matches.Ping, health.StatusDown))
	checker.Register("index", health.Ready(svc.Index().Ready, health.StatusDegraded, "index not built, serving from store scans"))
	if redisClient != nil {
		checker.Register("redis", health.Ping(redisClient.Ping, health.StatusDown))
	}

	handler := api.NewHandler(svc, version)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      api.NewRouter(handler, checker, *cfg, m),
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

	slog.Info("match api listening", "addr", server.Addr, "instance", svc.ID())
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving http: %w", err)
	}
	return nil
}
