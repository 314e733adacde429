package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"evrental-backend/internal/app"
	"evrental-backend/internal/config"
	"evrental-backend/internal/jobs"
	"evrental-backend/internal/logger"
	"evrental-backend/internal/scheduler"
)

func main() {
	// Parse command-line flags
	configPath := pflag.StringP("config", "c", "config/config.dev.yaml", "Path to configuration file")
	runOnce := pflag.String("run-once", "", "Run a specific job once and exit (e.g. 'expire-holds', 'reconcile-payments', 'all')")
	timeout := pflag.Duration("job-timeout", time.Minute, "Upper bound for a single job run")
	pflag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting EV rental cronjob runner...", "log_level", cfg.Log.Level, "storage", cfg.Storage.Driver)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err)
		log.Fatalf("Failed to initialize backend: %v", err)
	}
	defer a.Close()

	jobRunner := jobs.NewJobRunner(a.Reservations, a.Payments, *timeout)

	// Check if running a single job
	if *runOnce != "" {
		logger.Info("Running job once", "job", *runOnce)
		if err := jobRunner.Run(*runOnce); err != nil {
			logger.Error("Unknown job name", "job", *runOnce)
			fmt.Printf("Available jobs:\n  - %s\n", strings.Join(jobRunner.Names(), "\n  - "))
			a.Close()
			os.Exit(1)
		}
		logger.Info("Job execution completed", "job", *runOnce)
		return
	}

	cronScheduler, err := scheduler.NewScheduler(jobRunner, cfg.Scheduler)
	if err != nil {
		log.Fatalf("Failed to schedule jobs: %v", err)
	}
	cronScheduler.Start()
	logger.Info("Cronjob scheduler is running. Press Ctrl+C to stop.")

	<-ctx.Done()

	// Graceful shutdown
	logger.Info("Shutting down cronjob scheduler...")
	cronScheduler.Stop()
	logger.Info("Cronjob scheduler stopped. Goodbye!")
}
