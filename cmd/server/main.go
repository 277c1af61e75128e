// Package main is the entry point for the Strata layered portfolio service.
// It manages a three-layer portfolio (foundation, growth, upside), validates
// every action against structural boundaries, and records an append-only
// history of everything that changed the portfolio.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/blumarkets/strata/internal/config"
	"github.com/blumarkets/strata/internal/di"
	"github.com/blumarkets/strata/internal/scheduler"
	"github.com/blumarkets/strata/internal/server"
	"github.com/blumarkets/strata/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Msg("Starting Strata")

	container, jobs, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer container.Close()

	// Settings DB values take precedence over environment variables, so
	// backup credentials can be rotated without a redeploy.
	if err := cfg.UpdateFromSettings(container.SettingsRepo); err != nil {
		log.Warn().Err(err).Msg("Failed to update config from settings DB, using environment variables")
	}

	srv := server.New(server.Config{
		Log:       log,
		Config:    cfg,
		Container: container,
		Port:      cfg.Port,
		DevMode:   cfg.DevMode,
	})
	srv.SetJobs(jobs.ProtectionSweep, jobs.Checkpoint, jobs.LocalBackup, jobs.S3Backup)

	// Start server in goroutine so the scheduler can start concurrently
	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	var sched *scheduler.Scheduler
	if cfg.SchedulerEnabled {
		sched = scheduler.New(log)

		// Expired protections are already invisible at read time; the sweep
		// just keeps the table small.
		if err := sched.AddJob("0 0 * * * *", jobs.ProtectionSweep); err != nil {
			log.Fatal().Err(err).Msg("Failed to schedule protection sweep")
		}
		if err := sched.AddJob("0 30 * * * *", jobs.Checkpoint); err != nil {
			log.Fatal().Err(err).Msg("Failed to schedule WAL checkpoint")
		}
		if err := sched.AddJob("0 0 2 * * *", jobs.LocalBackup); err != nil {
			log.Fatal().Err(err).Msg("Failed to schedule local backup")
		}
		if jobs.S3Backup != nil {
			if err := sched.AddJob("0 30 3 * * *", jobs.S3Backup); err != nil {
				log.Fatal().Err(err).Msg("Failed to schedule remote backup")
			}
		}

		sched.Start()
	} else {
		log.Info().Msg("Scheduler disabled")
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	if sched != nil {
		sched.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
