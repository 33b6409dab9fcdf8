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

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/facegate/internal/config"
	"github.com/your-org/facegate/internal/identity"
	"github.com/your-org/facegate/internal/jobs"
	"github.com/your-org/facegate/internal/lock"
	"github.com/your-org/facegate/internal/observability"
	"github.com/your-org/facegate/internal/storage"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	metricsAddr := flag.String("metrics-addr", ":8082", "address for /metrics and /healthz")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	if cfg.Database.Driver == "memory" {
		logger.Error("the sweep worker needs a shared datastore; memory driver is not supported")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting facegate sweep worker", "interval", cfg.Sweeper.Interval.String())

	store, err := storage.Open(ctx, cfg)
	if err != nil {
		logger.Error("open datastore", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	rdb, err := lock.NewClient(ctx, cfg.Redis)
	if err != nil {
		logger.Error("connect to redis", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Warn("redis close", "error", err)
		}
	}()

	sweeper := identity.NewSweeper(store, lock.NewRedisLocker(rdb), cfg.Sweeper.Interval, cfg.Sweeper.LockTTL)
	sweepJob := jobs.NewSweepJob(sweeper, logger)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: jobs.RedisOpts(cfg.Redis),
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskObservedSweep, Handler: sweepJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{
				Spec:    "@every " + cfg.Sweeper.Interval.String(),
				Task:    jobs.NewSweepTask(),
				Options: []asynq.Option{asynq.MaxRetry(0), asynq.Unique(cfg.Sweeper.Interval)},
			},
		},
	})
	if err != nil {
		logger.Error("init worker", "error", err)
		os.Exit(1)
	}

	// Metrics server
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		logger.Info("worker metrics listening", "addr", *metricsAddr)
		if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
			logger.Error("metrics server error", "error", err)
		}
	}()

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", "error", err)
		os.Exit(1)
	}
	logger.Info("sweep worker stopped")
}
