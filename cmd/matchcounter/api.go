package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NamiraNet/matchcounter/internal/api"
	"github.com/NamiraNet/matchcounter/internal/logger"
	"github.com/NamiraNet/matchcounter/internal/metrics"
	"github.com/NamiraNet/matchcounter/internal/search"
	workerpool "github.com/NamiraNet/matchcounter/internal/worker"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func newAPICmd() *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "api",
		Short: "Start the API server",
		Long:  `Start the matchcounter API server. Searches run as jobs on one shared worker pool and are polled by job ID.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			return runAPIServer()
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", cfg.Server.Port, "Port to run the service on")
	return cmd
}

func runAPIServer() error {
	log, err := logger.InitForAPI(cfg.App.LogLevel, cfg.App.LogFile)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	// worker instance shared by every search job
	pool := workerpool.NewWorkerPool(workerpool.WorkerPoolConfig{
		MaxWorkers:  cfg.Worker.MaxWorkers,
		IdleTimeout: cfg.Worker.IdleTimeout,
	}, workerpool.WithLogger(log), workerpool.WithResultHandler(m.ObserveTask))
	metrics.RegisterPool(registry, pool)

	searcher := search.NewSearcher(pool, search.Options{
		FollowSymlinks: cfg.Search.FollowSymlinks,
		MaxOpenFiles:   cfg.Search.MaxOpenFiles,
		MaxLineBytes:   cfg.Search.MaxLineBytes,
		Logger:         log,
		Observer:       m,
	})

	store, closeStore, err := newJobStore(log)
	if err != nil {
		return err
	}
	defer closeStore()

	var limiter *rate.Limiter
	if cfg.API.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.API.RateLimit), max(cfg.API.RateBurst, 1))
	}

	versionInfo := api.VersionInfo{
		Version:   version,
		Commit:    commit,
		Date:      date,
		GoVersion: goVersion,
		Platform:  platform,
	}

	allowedRoot := cfg.API.AllowedRoot
	if allowedRoot == "" {
		allowedRoot = cfg.Search.Root
	}
	if allowedRoot != "" {
		log.Info("Searches confined to directory", zap.String("allowed_root", allowedRoot))
	}

	handler := api.NewHandler(searcher, pool, store, limiter, allowedRoot, log, versionInfo)
	router := api.NewRouter(handler, registry)

	serverAddr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("Server starting",
			zap.String("address", server.Addr),
			zap.Int("max_workers", cfg.Worker.MaxWorkers),
			zap.Duration("read_timeout", cfg.Server.ReadTimeout),
			zap.Duration("write_timeout", cfg.Server.WriteTimeout),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-quit:
	}

	log.Info("Server shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := handler.Wait(ctx); err != nil {
		log.Error("Search jobs still running at shutdown", zap.Error(err))
	}
	if err := pool.Stop(ctx); err != nil {
		log.Error("Worker pool did not drain", zap.Error(err))
		return err
	}
	return nil
}

// newJobStore keeps jobs in Redis when REDIS_ADDR is set and in memory
// otherwise.
func newJobStore(log *zap.Logger) (api.JobStore, func(), error) {
	if cfg.Redis.Addr == "" {
		log.Info("Using in-memory job store")
		return api.NewMemoryJobStore(), func() {}, nil
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		_ = redisClient.Close()
		return nil, nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	log.Info("Connected to Redis successfully",
		zap.String("addr", cfg.Redis.Addr),
		zap.Duration("result_ttl", cfg.Redis.ResultTTL))

	return api.NewRedisJobStore(redisClient, cfg.Redis.ResultTTL), func() {
		if err := redisClient.Close(); err != nil {
			log.Warn("Failed to close Redis client", zap.Error(err))
		}
	}, nil
}
