package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	grpcapi "evrental-backend/internal/api/grpc"
	httpapi "evrental-backend/internal/api/http"
	"evrental-backend/internal/app"
	"evrental-backend/internal/config"
	"evrental-backend/internal/jobs"
	"evrental-backend/internal/logger"
	"evrental-backend/internal/scheduler"
)

func main() {
	// Parse command-line flags
	configPath := pflag.StringP("config", "c", "config/config.dev.yaml", "Path to configuration file")
	withJobs := pflag.Bool("with-jobs", false, "Run the background sweeps in this process instead of the cronjob runner")
	pflag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting EV rental backend...", "log_level", cfg.Log.Level, "log_format", cfg.Log.Format)
	logger.Info("Server configuration", "address", cfg.GetServerAddress(), "grpc", cfg.GetGRPCAddress(), "storage", cfg.Storage.Driver, "payment", cfg.Payment.Provider)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err)
		log.Fatalf("Failed to initialize backend: %v", err)
	}
	defer a.Close()

	if err := a.StartPaymentConsumer(ctx); err != nil {
		logger.Error("Failed to start payment consumer", "error", err)
		log.Fatalf("Failed to start payment consumer: %v", err)
	}

	var cronScheduler *scheduler.Scheduler
	if *withJobs {
		jobRunner := jobs.NewJobRunner(a.Reservations, a.Payments, time.Minute)
		cronScheduler, err = scheduler.NewScheduler(jobRunner, cfg.Scheduler)
		if err != nil {
			log.Fatalf("Failed to schedule jobs: %v", err)
		}
		cronScheduler.Start()
	}

	// gRPC health
	var health *grpcapi.HealthServer
	if addr := cfg.GetGRPCAddress(); addr != "" {
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			logger.Error("Failed to listen", "error", err, "address", addr)
			log.Fatalf("Failed to listen: %v", err)
		}
		health = grpcapi.NewHealthServer(a.Probes(), 10*time.Second)
		go health.Watch(ctx)
		go func() {
			logger.Info("gRPC health server listening", "address", addr)
			if err := health.Serve(lis); err != nil {
				logger.Error("gRPC health server error", "error", err)
			}
		}()
	}

	// HTTP API
	handler := httpapi.NewHandler(a.Reservations, a.Payments, a.Notifications, a.Store.Contracts(), a.Docs, a.Hub)
	srv := &http.Server{
		Addr:              cfg.GetServerAddress(),
		Handler:           httpapi.NewRouter(handler, httpapi.NewAuthMiddleware(a.Tokens)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("HTTP server listening", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown failed", "error", err)
	}
	if health != nil {
		health.Shutdown()
	}
	if cronScheduler != nil {
		cronScheduler.Stop()
	}
	logger.Info("Server stopped")
}
