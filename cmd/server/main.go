// Package main is the entry point for the qforge quantum circuit simulation
// service. It wires the state-vector engine, the execution router, the
// SQLite-backed job queue, and the HTTP API into one process.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/qforge-dev/qforge/internal/archive"
	"github.com/qforge-dev/qforge/internal/config"
	"github.com/qforge-dev/qforge/internal/events"
	"github.com/qforge-dev/qforge/internal/queue"
	"github.com/qforge-dev/qforge/internal/router"
	"github.com/qforge-dev/qforge/internal/server"
	"github.com/qforge-dev/qforge/internal/storage"
	"github.com/qforge-dev/qforge/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: true,
	})

	log.Info().Msg("Starting qforge")

	// Jobs are ephemeral coordination state; results must survive restarts.
	jobsDB, err := storage.New(storage.Config{
		Path:    filepath.Join(cfg.DataDir, "jobs.db"),
		Profile: storage.ProfileCache,
		Name:    "jobs",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open jobs database")
	}
	defer jobsDB.Close()

	resultsDB, err := storage.New(storage.Config{
		Path:    filepath.Join(cfg.DataDir, "results.db"),
		Profile: storage.ProfileStandard,
		Name:    "results",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open results database")
	}
	defer resultsDB.Close()

	for _, db := range []*storage.DB{jobsDB, resultsDB} {
		if err := db.Migrate(); err != nil {
			log.Fatal().Err(err).Str("database", db.Name()).Msg("Failed to apply schema")
		}
	}

	bus := events.NewBus(log)
	results := storage.NewResultStore(resultsDB, log)

	routes := router.New(router.Config{
		ClientMaxQubits:   cfg.ClientMaxQubits,
		ClientMemoryBytes: cfg.ClientMemoryBytes,
		ServerMaxQubits:   cfg.ServerMaxQubits,
		ServerMemoryBytes: cfg.ServerMemoryBytes,
	}, log)

	manager := queue.NewManager(jobsDB, bus, log)

	// Jobs stranded in the running state by a crash or restart go back to
	// the queue before any worker can claim new work.
	if _, err := manager.RecoverAbandoned(); err != nil {
		log.Fatal().Err(err).Msg("Failed to recover abandoned jobs")
	}

	pool := queue.NewWorkerPool(queue.PoolConfig{
		Workers:              cfg.Workers,
		EngineWorkers:        cfg.EngineWorkers,
		AmplitudeLimitQubits: cfg.AmplitudeLimitQubits,
	}, manager, results, routes, bus, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	janitor := queue.NewJanitor(manager, results, jobsDB, resultsDB, cfg.JobRetentionHours, log)
	if err := janitor.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start janitor")
	}

	if cfg.Archive.Enabled() {
		client, err := archive.NewClient(archive.Config{
			Endpoint:        cfg.Archive.Endpoint,
			Region:          cfg.Archive.Region,
			AccessKeyID:     cfg.Archive.AccessKeyID,
			SecretAccessKey: cfg.Archive.SecretAccessKey,
			Bucket:          cfg.Archive.Bucket,
		}, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize result archive")
		}
		archiver := archive.NewArchiver(client, results, log)
		bus.Subscribe(events.JobCompleted, func(event *events.Event) {
			data, ok := event.Typed.(*events.JobStatusData)
			if !ok || data.ResultRef == "" {
				return
			}
			go func(ref string) {
				uploadCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
				defer cancel()
				if err := archiver.ArchiveResult(uploadCtx, ref); err != nil {
					log.Error().Err(err).Str("ref", ref).Msg("Result archival failed")
				}
			}(data.ResultRef)
		})
		log.Info().Str("bucket", cfg.Archive.Bucket).Msg("Result archival enabled")
	}

	srv := server.New(server.Config{
		Log:       log,
		Config:    cfg,
		Router:    routes,
		Manager:   manager,
		Pool:      pool,
		Results:   results,
		Bus:       bus,
		JobsDB:    jobsDB,
		ResultsDB: resultsDB,
	})

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Error().Err(err).Msg("HTTP server failed")
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP shutdown failed")
	}

	janitor.Stop()
	cancel()
	pool.Stop()

	log.Info().Msg("qforge stopped")
}
