package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/caglarilhan/borsailhanos-sub000/internal/config"
	"github.com/caglarilhan/borsailhanos-sub000/internal/database"
	"github.com/caglarilhan/borsailhanos-sub000/internal/journal"
	"github.com/caglarilhan/borsailhanos-sub000/internal/logger"
	"github.com/caglarilhan/borsailhanos-sub000/internal/oracle"
	"github.com/caglarilhan/borsailhanos-sub000/internal/paper"
	"github.com/caglarilhan/borsailhanos-sub000/internal/trader"
)

func main() {
	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		panic(fmt.Sprintf("could not load config: %v", err))
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("Configuration loaded")

	// Initialize journal database
	db, err := database.NewDatabase(cfg.Database.DSN)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connection successful and schema migrated.")
	store := journal.NewStore(db, log)

	// Initialize price oracle
	quotes, err := newOracle(&cfg.Oracle, log)
	if err != nil {
		log.Fatal("Failed to build price oracle", zap.Error(err))
	}

	// Initialize the paper-trading ledger
	engine, err := paper.NewEngine(log, &cfg.Paper, quotes, store)
	if err != nil {
		log.Fatal("Failed to build ledger", zap.Error(err))
	}
	restoreLedger(engine, store, log)

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
		<-sigchan
		log.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	// Start the HTTP API and run the tick loop until shutdown
	apiServer := trader.NewAPIServer(cfg.Server.Port, engine, store, log)
	apiServer.Start()

	runner := trader.NewRunner(log, &cfg.Trader, engine, quotes, store)
	runner.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := apiServer.Stop(shutdownCtx); err != nil {
		log.Error("API server shutdown failed", zap.Error(err))
	}
	saveFinalSnapshot(engine, store, log)

	log.Info("Ledger has been shut down.")
}

// newOracle builds the configured price source. Both implementations serve
// the engine's single lookups and the runner's bulk fetches.
func newOracle(cfg *config.Oracle, log *zap.Logger) (oracle.Oracle, error) {
	switch cfg.Provider {
	case "static":
		return oracle.NewStatic(cfg.StaticPrices)
	case "http", "":
		return oracle.NewClient(cfg, log), nil
	}
	return nil, fmt.Errorf("unknown oracle provider %q", cfg.Provider)
}

// restoreLedger reloads the last persisted snapshot, if any. A missing
// snapshot is a fresh start; a corrupt one aborts startup rather than trade
// on a wrong book.
func restoreLedger(engine *paper.Engine, store *journal.Store, log *zap.Logger) {
	data, err := store.LatestSnapshot(engine.Name())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Info("No snapshot found, starting with a fresh ledger")
			return
		}
		log.Fatal("Failed to load snapshot", zap.Error(err))
	}
	if err := engine.Restore(data); err != nil {
		log.Fatal("Snapshot is not usable", zap.Error(err))
	}
}

func saveFinalSnapshot(engine *paper.Engine, store *journal.Store, log *zap.Logger) {
	data, err := engine.Snapshot()
	if err != nil {
		log.Error("Failed to take final snapshot", zap.Error(err))
		return
	}
	if err := store.SaveSnapshot(engine.Name(), time.Now(), data); err != nil {
		log.Error("Failed to persist final snapshot", zap.Error(err))
		return
	}
	log.Info("Final snapshot persisted")
}
