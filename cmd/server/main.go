/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the credit reward engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse flags and environment (config package)
  2. Open the SQLite event store and Bolt idempotency cache
  3. Connect the balance ledger and eligibility source (or their dev
     stand-ins when no address/DSN is configured)
  4. Build the engine and register the reward catalog
  5. Start the settlement scheduler and HTTP server

DEV MODE:
  With no -l flag the ledger is an in-memory recorder and transfers are
  inspectable at /api/admin/transfers. With no -d flag the eligibility
  source is an empty static map; owner lookups will fail, so supply
  owner ids in the trigger payloads.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections (30s drain)
  2. Stop the scheduler, waiting for an in-flight sweep
  3. Close the cache and event store

SEE ALSO:
  - config/config.go: Flags and environment variables
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/warp/credit-engine/api"
	"github.com/warp/credit-engine/cache/bolt"
	"github.com/warp/credit-engine/catalog"
	"github.com/warp/credit-engine/config"
	"github.com/warp/credit-engine/eligibility"
	"github.com/warp/credit-engine/ledger"
	"github.com/warp/credit-engine/reward"
	"github.com/warp/credit-engine/store/sqlite"
)

func main() {
	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		log.Fatal("failed to parse configuration", zap.Error(err))
	}

	// Event store and idempotency cache
	store, err := sqlite.New(cfg.EventDBPath)
	if err != nil {
		log.Fatal("failed to open event store", zap.String("path", cfg.EventDBPath), zap.Error(err))
	}
	defer store.Close()

	cache, err := bolt.New(cfg.CachePath)
	if err != nil {
		log.Fatal("failed to open idempotency cache", zap.String("path", cfg.CachePath), zap.Error(err))
	}
	defer cache.Close()

	// Balance ledger: the real service, or the dev recorder
	var led reward.Ledger
	var recorder *ledger.Recorder
	if cfg.LedgerAddress != "" {
		led = ledger.NewClient(cfg.LedgerAddress)
	} else {
		recorder = ledger.NewRecorder()
		led = recorder
		log.Warn("no ledger address configured, recording transfers in memory")
	}

	// Eligibility source: the community database, or the static dev map
	var elig catalog.Eligibility
	if cfg.EligibilityDSN != "" {
		pg, err := eligibility.NewPostgres(context.Background(), cfg.EligibilityDSN)
		if err != nil {
			log.Fatal("failed to connect eligibility database", zap.Error(err))
		}
		defer pg.Close()
		elig = pg
	} else {
		elig = eligibility.NewStatic()
		log.Warn("no eligibility DSN configured, using empty static source")
	}

	// Engine and catalog
	engine := reward.NewEngine(store, cache, led,
		reward.WithLogger(log),
		reward.WithChunkSize(cfg.SettleChunkSize))

	cat, err := catalog.New(engine, elig, nil)
	if err != nil {
		log.Fatal("failed to register reward catalog", zap.Error(err))
	}

	// HTTP surface and scheduler
	handler := api.NewHandler(engine, cat, store, log)
	handler.Recorder = recorder

	scheduler := api.NewSettlementScheduler(engine, log)
	scheduler.SweepInterval = cfg.SettleInterval
	scheduler.Start()
	defer scheduler.Stop()

	server := &http.Server{
		Addr:         cfg.RunAddress,
		Handler:      api.NewRouter(handler),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("server starting", zap.String("address", cfg.RunAddress))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
