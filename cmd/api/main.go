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

	"github.com/your-org/facegate/internal/api"
	"github.com/your-org/facegate/internal/api/handlers"
	"github.com/your-org/facegate/internal/api/ws"
	"github.com/your-org/facegate/internal/config"
	"github.com/your-org/facegate/internal/identity"
	"github.com/your-org/facegate/internal/lock"
	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/internal/observability"
	"github.com/your-org/facegate/internal/queue"
	"github.com/your-org/facegate/internal/storage"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting facegate API service",
		"port", cfg.Server.Port,
		"driver", cfg.Database.Driver,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Datastore
	store, err := storage.Open(ctx, cfg)
	if err != nil {
		slog.Error("open datastore", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	checks := []handlers.ReadinessCheck{{Name: "datastore", Ping: store.Ping}}

	// Snapshots (optional)
	var snapshots *storage.SnapshotStore
	if cfg.MinIO.Endpoint != "" {
		snapshots, err = storage.NewSnapshotStore(cfg.MinIO)
		if err != nil {
			slog.Error("connect to minio", "error", err)
			os.Exit(1)
		}
		if err := snapshots.EnsureBucket(ctx); err != nil {
			slog.Warn("ensure minio bucket", "error", err)
		}
		checks = append(checks, handlers.ReadinessCheck{Name: "minio", Ping: snapshots.Ping})
	}

	// WebSocket hub
	hub := ws.NewHub()
	go hub.Run(ctx)

	// NATS (optional). Without it the hub receives decisions directly.
	var (
		publisher  identity.DecisionPublisher = hub
		promotions identity.PromotionPublisher
	)
	if cfg.NATS.URL != "" {
		producer, err := queue.NewProducer(cfg.NATS.URL)
		if err != nil {
			slog.Error("connect to nats", "error", err)
			os.Exit(1)
		}
		defer producer.Close()

		if err := producer.EnsureStreams(ctx); err != nil {
			slog.Warn("ensure nats streams", "error", err)
		}
		publisher = producer
		promotions = producer
		checks = append(checks, handlers.ReadinessCheck{
			Name: "nats",
			Ping: func(context.Context) error { return producer.Ping() },
		})

		consumer, err := queue.NewConsumer(cfg.NATS.URL)
		if err != nil {
			slog.Error("create decision consumer", "error", err)
			os.Exit(1)
		}
		defer consumer.Close()

		err = consumer.ConsumeDecisions(ctx, feedConsumerName(), "", func(_ context.Context, d models.AccessDecision) error {
			hub.BroadcastDecision(d)
			return nil
		})
		if err != nil {
			slog.Warn("start decision consumer", "error", err)
		}
	}

	// Redis sweep lock (optional)
	var locker identity.Locker
	if cfg.Database.Driver != "memory" {
		rdb, err := lock.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, sweep lock limited to this process", "error", err)
		} else {
			defer rdb.Close()
			locker = lock.NewRedisLocker(rdb)
			checks = append(checks, handlers.ReadinessCheck{
				Name: "redis",
				Ping: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
			})
		}
	}

	// Identity engine
	decisions := identity.NewDecisionLogger(store)
	decisions.Publisher = publisher

	resolver := identity.NewResolver(identity.NewResolverConfig(cfg), store, store, store, decisions)
	if snapshots != nil {
		resolver.Snapshots = snapshots
	}

	actions := identity.NewActionHandler(store, cfg.Observed.ExtendTTL)
	actions.Promotions = promotions

	sweeper := identity.NewSweeper(store, locker, cfg.Sweeper.Interval, cfg.Sweeper.LockTTL)
	if cfg.Sweeper.Enabled {
		go sweeper.Run(ctx)
	}

	routerCfg := api.RouterConfig{
		AgentKey:  cfg.Server.AgentKey,
		AdminKey:  cfg.Server.AdminKey,
		Resolver:  resolver,
		Directory: identity.NewDirectory(store, cfg.Observed.HighRiskDenials),
		Observed:  store,
		Actions:   actions,
		Sweeper:   sweeper,
		Decisions: store,
		Checks:    checks,
		Hub:       hub,
	}
	if snapshots != nil {
		routerCfg.Snapshots = snapshots
	}
	router := api.NewRouter(routerCfg)

	// Start HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down API server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}
	cancel()

	slog.Info("API server stopped")
}

// feedConsumerName is unique per instance so every API replica sees every decision.
func feedConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = fmt.Sprintf("pid-%d", os.Getpid())
	}
	return "api-ws-" + queue.SubjectToken(host)
}
