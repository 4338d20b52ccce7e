package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/imyashkale/provisioner/internal/config"
	"github.com/imyashkale/provisioner/internal/database"
	"github.com/imyashkale/provisioner/internal/handlers"
	"github.com/imyashkale/provisioner/internal/logger"
	"github.com/imyashkale/provisioner/internal/metrics"
	"github.com/imyashkale/provisioner/internal/middleware"
	"github.com/imyashkale/provisioner/internal/queue"
	"github.com/imyashkale/provisioner/internal/repository"
	"github.com/imyashkale/provisioner/internal/router"
	"github.com/imyashkale/provisioner/internal/secrets"
	"github.com/imyashkale/provisioner/internal/seed"
	"github.com/imyashkale/provisioner/internal/services"
	"github.com/imyashkale/provisioner/internal/sqlstore"
	"github.com/prometheus/client_golang/prometheus"
)

const shutdownTimeout = 30 * time.Second

func main() {

	ctx := context.Background()

	// Load application configuration
	cfg := config.New()
	logger.Init(cfg.LogLevel)
	logger.Info("Configuration loaded successfully")

	store, err := openStore(ctx, cfg)
	if err != nil {
		logger.Fatalf("Failed to initialize storage: %v", err)
	}
	logger.WithField("backend", cfg.StorageBackend).Info("Storage initialized")

	cipher, err := secrets.NewCipher(cfg.CredentialsEncryptionKey)
	if err != nil {
		logger.Fatalf("Failed to initialize credentials cipher: %v", err)
	}

	if cfg.SeedFile != "" {
		if err := seed.ApplyFile(ctx, store.Seed(), cfg.SeedFile); err != nil {
			logger.Fatalf("Failed to apply seed file %s: %v", cfg.SeedFile, err)
		}
	}

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Fatalf("Failed to register metrics: %v", err)
	}

	// Initialize job queue and deployment workers
	jobQueue := queue.NewJobQueue(cfg.QueueSize)
	executor := services.NewDeploymentExecutor(
		store.Instances(),
		store.DeploymentLogs(),
		services.NewExecRunner(),
		cfg.DeployScriptPath,
		cfg.DeployTimeout,
	)

	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	workerPool := queue.NewWorkerPool(jobQueue, cfg.WorkerCount)
	workerPool.Start(workerCtx, executor.Execute)
	logger.WithFields(map[string]interface{}{
		"workers": cfg.WorkerCount,
		"queue":   cfg.QueueSize,
		"script":  cfg.DeployScriptPath,
	}).Info("Deployment workers started")

	orchestrator := services.NewOrchestrator(store, cipher, jobQueue, services.OrchestratorOptions{
		ContainerPrefix:    cfg.ContainerPrefix,
		AllocationAttempts: cfg.AllocationAttempts,
	})

	limiter := newRateLimiter(cfg)

	// Setup router
	r := router.Setup(router.Handlers{
		Health:         handlers.NewHealthHandler(store),
		Me:             handlers.NewMeHandler(store.Clients()),
		Instances:      handlers.NewInstanceHandler(orchestrator, store, cipher),
		DeploymentLogs: handlers.NewDeploymentLogHandler(store),
	}, router.Options{
		JWTSecret:       cfg.JWTSecret,
		RateLimiter:     limiter,
		CreateRateLimit: cfg.CreateRateLimit,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("Starting server on :%s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logger.Info("Shutting down server gracefully...")

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("HTTP server shutdown failed")
	}

	// Stop accepting jobs and let workers drain what is buffered
	drained := make(chan struct{})
	go func() {
		workerPool.Stop()
		close(drained)
	}()

	select {
	case <-drained:
		logger.Info("All workers stopped")
	case <-shutdownCtx.Done():
		logger.Warnf("Workers still busy after %s, interrupting deployments", shutdownTimeout)
		cancelWorkers()
		<-drained
	}

	limiter.Close()
	if err := store.Close(); err != nil {
		logger.WithError(err).Warn("Failed to close storage")
	}
	logger.Info("Shutdown complete")
}

func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	if cfg.StorageBackend == config.BackendDynamoDB {
		dbConfig := database.NewConfig(cfg)
		logger.WithFields(map[string]interface{}{
			"region":    dbConfig.Region,
			"instances": dbConfig.Tables.Instances,
		}).Info("Initializing DynamoDB client")

		client, err := database.NewClient(ctx, dbConfig)
		if err != nil {
			return nil, err
		}
		return repository.NewDynamoStore(client), nil
	}

	store, err := sqlstore.Open(sqlstore.Options{
		Driver:    cfg.StorageBackend,
		DSN:       cfg.SQLDSN(),
		PortFloor: cfg.PortFloor,
	})
	if err != nil {
		return nil, err
	}
	return store, nil
}

func newRateLimiter(cfg *config.Config) middleware.RateLimiter {
	if cfg.RedisAddr == "" {
		return middleware.NewMemoryRateLimiter()
	}

	limiter, err := middleware.NewRedisRateLimiter(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.WithError(err).Warn("Redis unavailable, falling back to in-memory rate limiting")
		return middleware.NewMemoryRateLimiter()
	}
	logger.WithField("addr", cfg.RedisAddr).Info("Using Redis rate limiter")
	return limiter
}
