package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/proofline-hq/proofline/pkg/api"
	"github.com/proofline-hq/proofline/pkg/chain"
	"github.com/proofline-hq/proofline/pkg/circuitbreaker"
	"github.com/proofline-hq/proofline/pkg/config"
	"github.com/proofline-hq/proofline/pkg/database"
	"github.com/proofline-hq/proofline/pkg/events"
	"github.com/proofline-hq/proofline/pkg/health"
	"github.com/proofline-hq/proofline/pkg/intentstore"
	"github.com/proofline-hq/proofline/pkg/logger"
	"github.com/proofline-hq/proofline/pkg/queue"
	"github.com/proofline-hq/proofline/pkg/signer"
	"github.com/proofline-hq/proofline/pkg/sweeper"
	"github.com/proofline-hq/proofline/pkg/worker"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// Load configuration from environment variables
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger := logger.NewStdLogger(cfg.LoggerConfig.Coloring, cfg.LoggerConfig.Level)

	// Set up context with cancellation on SIGINT/SIGTERM
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Fast store connection
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Invalid Redis URL: %v", err)
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()

	// Durable store connection
	db, err := database.Connect(cfg.MySQLDSN)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
	orderDB := database.NewOrderDatabase(db)

	sig := signer.New(cfg.SignatureSecret, cfg.IndexSecret)
	store := intentstore.New(rdb, sig, appLogger)
	bus := events.NewRedisBus(rdb, appLogger)
	breaker := circuitbreaker.NewCircuitBreaker(
		cfg.CircuitBreaker.Enabled,
		cfg.CircuitBreaker.Threshold,
		cfg.CircuitBreaker.WindowDuration,
		cfg.CircuitBreaker.ResetTimeout,
	)

	// Ingest queue shares the fast store's Redis backend
	queueRedisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Invalid Redis URL for queue: %v", err)
	}
	enqueuer := queue.NewEnqueuer(queueRedisOpt, cfg.MaxRetries, cfg.JobTimeout, appLogger)
	defer enqueuer.Close()

	var wg sync.WaitGroup

	// Match-and-verify workers
	queueServer := queue.NewServer(queueRedisOpt, cfg.WorkerConcurrency, appLogger)
	mux := asynq.NewServeMux()
	mux.Handle(queue.TypeTransferObserved, worker.New(store, sig, bus, appLogger))
	if err := queueServer.Start(mux); err != nil {
		log.Fatalf("Failed to start queue server: %v", err)
	}

	// Settlement sweeper
	sweep := sweeper.New(store, orderDB, breaker, cfg.SweepInterval, cfg.SweepBatchSize, appLogger)
	wg.Add(1)
	go func() {
		defer wg.Done()
		sweep.Run(ctx)
	}()

	// Chain listeners
	for _, chainConfig := range cfg.Chains {
		listener, err := chain.NewListener(ctx, chainConfig, enqueuer, appLogger)
		if err != nil {
			log.Fatalf("Failed to create listener for chain %d: %v", chainConfig.ChainID, err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			listener.Run(ctx)
		}()
	}

	// Intake API
	apiServer := api.NewServer(orderDB, store, sig, appLogger)
	go func() {
		if err := apiServer.Listen(cfg.APIPort); err != nil {
			appLogger.Error("API server error: %v", err)
			cancel()
		}
	}()

	// Health and metrics server
	healthServer := health.NewServer(cfg.MetricsPort, cfg.Chains, store, orderDB, breaker, appLogger)
	go func() {
		if err := healthServer.Start(); err != nil {
			appLogger.Error("Health server error: %v", err)
			cancel()
		}
	}()

	// Set up signal handling for graceful shutdown
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signalCh
		appLogger.Notice("Received termination signal, shutting down gracefully...")
		cancel()
	}()

	appLogger.Info("Reconciliation service started with %d chains", len(cfg.Chains))
	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("API shutdown error: %v", err)
	}
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Health server shutdown error: %v", err)
	}

	// Let in-flight tasks finish before closing the queue
	queueServer.Shutdown()
	wg.Wait()

	appLogger.Info("Reconciliation service stopped")
}
