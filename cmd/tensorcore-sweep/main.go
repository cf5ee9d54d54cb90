// cmd/tensorcore-sweep computes all five signals for every known domain.
//
// Startup sequence:
//  1. Load configuration from environment variables (plus optional YAML).
//  2. Open the configured storage backend and apply pending migrations.
//  3. Wire the five engines behind a circuit-breaker-wrapped read path.
//  4. Run the batch sweep, then the memory decay sweep.
//
// The process is intended to run under a scheduler (cron, systemd timer);
// it exits non-zero only when the sweep itself cannot start. Per-domain
// failures are logged and skipped.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/modelmind/tensorcore/internal/config"
	"github.com/modelmind/tensorcore/internal/engine"
	"github.com/modelmind/tensorcore/internal/storage"
	"github.com/modelmind/tensorcore/internal/storage/postgres"
	"github.com/modelmind/tensorcore/internal/storage/sqlite"
)

func main() {
	log.SetPrefix("tensorcore-sweep: ")
	log.SetFlags(log.LstdFlags)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	if err := migrate(store, cfg.Storage); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("received shutdown signal")
		cancel()
	}()

	// Reads go through the breaker so a failing database trips fast
	// instead of timing out once per domain.
	reads := storage.NewBreakerStore(store)

	memory := engine.NewMemoryEngine(reads, store, engine.MemoryConfig{
		LookbackDays: cfg.Tensor.LookbackDays,
		EmbeddingDim: cfg.Tensor.EmbeddingDim,
	})
	sentiment := engine.NewSentimentEngine(reads, store, nil, engine.SentimentConfig{
		LookbackDays: cfg.Tensor.LookbackDays,
		EmbeddingDim: cfg.Tensor.EmbeddingDim,
	})
	grounding := engine.NewGroundingEngine(reads, store, nil, nil, engine.GroundingConfig{
		LookbackDays: cfg.Tensor.LookbackDays,
		EmbeddingDim: cfg.Tensor.EmbeddingDim,
	})
	drift := engine.NewDriftEngine(reads, store, engine.DriftConfig{
		WindowDays: cfg.Tensor.DriftWindowDays,
	})
	consensus := engine.NewConsensusEngine(reads, store, engine.ConsensusConfig{
		LookbackDays: cfg.Tensor.LookbackDays,
	})

	sweeper := engine.NewSweeper(reads, memory, sentiment, grounding, drift, consensus, engine.SweepConfig{
		Concurrency:     cfg.Sweep.Concurrency,
		StoreRatePerSec: int(cfg.Sweep.StoreRatePerSec),
	})

	start := time.Now()
	stats, err := sweeper.Run(ctx)
	if err != nil {
		log.Fatalf("sweep failed: %v", err)
	}
	log.Printf("sweep finished: %d domains, %d failed, took %s",
		stats.Domains, stats.Failed, time.Since(start).Round(time.Millisecond))

	decay := engine.NewDecaySweeper(store, time.Duration(cfg.Sweep.DecayStaleHours)*time.Hour)
	decayed, err := decay.Run(ctx)
	if err != nil {
		log.Fatalf("decay sweep failed: %v", err)
	}
	log.Printf("decay sweep finished: %d tensors aged", decayed)
}

// openStore opens the configured backend. SQLite creates its parent
// directory on demand; Postgres validates connectivity with a ping.
func openStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Engine {
	case "sqlite":
		if dir := filepath.Dir(cfg.Storage.DSN); dir != "." {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, err
			}
		}
		return sqlite.New(cfg.Storage.DSN)
	case "postgres":
		return postgres.New(cfg.Storage.DSN, cfg.Tensor.EmbeddingDim)
	default:
		return nil, errors.New("unknown storage engine " + cfg.Storage.Engine)
	}
}

// migrate applies pending SQL migrations when the backend is SQLite and a
// migrations directory is present. The migration files are written in the
// SQLite dialect; the postgres backend applies its embedded schema on open.
// The embedded schema covers fresh SQLite databases too, so a missing
// directory is not an error.
func migrate(store storage.Store, cfg config.StorageConfig) error {
	if cfg.Engine != "sqlite" {
		return nil
	}
	if _, err := os.Stat(cfg.MigrationsDir); os.IsNotExist(err) {
		return nil
	}

	type dbAccessor interface{ DB() *sql.DB }
	accessor, ok := store.(dbAccessor)
	if !ok {
		return nil
	}

	mgr, err := storage.NewMigrationManager(accessor.DB(), cfg.MigrationsDir)
	if err != nil {
		return err
	}
	return mgr.Up()
}
