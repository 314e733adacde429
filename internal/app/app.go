// Package app assembles the reservation backend from configuration. Both the
// API server and the cronjob runner build the same graph.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/lib/pq"
	amqp "github.com/rabbitmq/amqp091-go"

	grpcapi "evrental-backend/internal/api/grpc"
	httpapi "evrental-backend/internal/api/http"
	"evrental-backend/internal/config"
	"evrental-backend/internal/logger"
	"evrental-backend/internal/messaging"
	"evrental-backend/internal/payment"
	"evrental-backend/internal/repository"
	"evrental-backend/internal/repository/boltdb"
	"evrental-backend/internal/repository/postgres"
	"evrental-backend/internal/security"
	"evrental-backend/internal/service"
	"evrental-backend/internal/storage"
	"evrental-backend/internal/utils"
)

type store interface {
	repository.Store
	Close() error
}

// App holds every long-lived component. Close releases them in reverse order
// of construction.
type App struct {
	Config        *config.Config
	Store         repository.Store
	Docs          storage.DocumentStore
	Gateway       payment.Gateway
	Hub           *httpapi.Hub
	Tokens        security.TokenManager
	Reservations  service.ReservationService
	Payments      service.PaymentListener
	Notifications service.NotificationService

	db      *sql.DB
	broker  *amqp.Connection
	closers []func() error
}

// New connects storage and the broker and wires the services.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}
	if err := a.build(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.Config

	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	a.Store = st
	a.closers = append(a.closers, st.Close)

	docs, err := storage.NewLocalDocumentStore(cfg.Contract.BaseURL, cfg.Contract.Dir)
	if err != nil {
		return err
	}
	a.Docs = docs
	a.Gateway = newGateway(cfg.Payment)
	a.Hub = httpapi.NewHub()
	a.Tokens = security.NewTokenManager(cfg.JWT.Secret, time.Duration(cfg.JWT.AccessTokenExpiry)*time.Minute)

	sinks := []service.EventSink{service.NewNotificationSink(st.Notifications()), a.Hub}
	if cfg.SendGrid.APIKey != "" {
		emailSvc := service.NewEmailService(cfg.SendGrid.APIKey, cfg.SendGrid.From, cfg.SendGrid.FromName)
		sinks = append(sinks, service.NewEmailSink(st.Customers(), emailSvc))
		logger.Info("Confirmation e-mail enabled", "from", cfg.SendGrid.From)
	}
	if cfg.RabbitMQ.URL != "" {
		publisher, err := a.connectBroker(ctx)
		if err != nil {
			return err
		}
		sinks = append(sinks, publisher)
	}

	policy := service.DefaultReservationPolicy()
	policy.MinDuration = cfg.MinDuration()
	policy.HoldGrace = cfg.HoldGrace()
	policy.ReturnURL = cfg.Payment.ReturnURL
	policy.SweepBatchSize = cfg.Reservation.SweepBatchSize
	policy.Pricing = utils.PricingPolicy{
		DepositPercent:     cfg.Pricing.DepositPercent,
		ServiceFeePercent:  cfg.Pricing.ServiceFeePercent,
		ServiceFeeMinCents: cfg.Pricing.ServiceFeeMinCents,
		BillingUnit:        cfg.BillingUnit(),
	}

	availability := service.NewAvailabilityIndex(st.Vehicles(), st.Catalog())
	issuer := service.NewContractIssuer(st, docs, policy.Now)
	a.Reservations = service.NewReservationService(st, availability, a.Gateway, issuer, service.NewNotifier(sinks...), policy)
	a.Payments = service.NewPaymentListener(st.Reservations(), a.Reservations, a.Gateway, payment.RetryPolicy{
		MaxAttempts: cfg.Payment.VerifyMaxAttempts,
		BaseDelay:   time.Duration(cfg.Payment.VerifyBackoffMs) * time.Millisecond,
		MaxDelay:    time.Duration(cfg.Payment.VerifyMaxDelayMs) * time.Millisecond,
	}, cfg.Reservation.SweepBatchSize, policy.Now)
	a.Notifications = service.NewNotificationService(st.Notifications())
	return nil
}

func (a *App) openStore(ctx context.Context) (store, error) {
	cfg := a.Config
	switch cfg.Storage.Driver {
	case "bolt":
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.BoltPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		st, err := boltdb.Open(cfg.Storage.BoltPath)
		if err != nil {
			return nil, err
		}
		if cfg.Storage.SeedFile != "" {
			fleet, err := boltdb.LoadFleet(cfg.Storage.SeedFile)
			if err == nil {
				err = st.Seed(ctx, fleet)
			}
			if err != nil {
				st.Close()
				return nil, err
			}
		}
		logger.Info("Bolt store opened", "path", cfg.Storage.BoltPath)
		return st, nil
	default:
		db, err := sql.Open("postgres", cfg.GetDatabaseConnectionString())
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
		a.db = db
		logger.Info("Database connection established", "host", cfg.Database.Host, "database", cfg.Database.Database)
		return postgres.NewStore(db), nil
	}
}

func newGateway(cfg config.PaymentConfig) payment.Gateway {
	if cfg.Provider == "http" {
		return payment.NewHTTPGateway(cfg.BaseURL, cfg.APIKey, time.Duration(cfg.TimeoutSeconds)*time.Second)
	}
	logger.Warn("Using sandbox payment processor; every checkout verifies as paid")
	return payment.NewSandbox(cfg.ReturnURL, true)
}

// connectBroker declares the topology and returns the event publisher. The
// publisher and the payment consumer use separate channels.
func (a *App) connectBroker(ctx context.Context) (*messaging.EventPublisher, error) {
	cfg := a.Config.RabbitMQ
	conn, err := messaging.Connect(ctx, cfg.URL, 5, 2*time.Second)
	if err != nil {
		return nil, err
	}
	a.broker = conn
	a.closers = append(a.closers, conn.Close)

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if err := messaging.DeclareTopology(ch, cfg.PaymentQueue, cfg.EventsExchange); err != nil {
		return nil, err
	}
	logger.Info("RabbitMQ connected", "queue", cfg.PaymentQueue, "exchange", cfg.EventsExchange)
	return messaging.NewEventPublisher(ch, cfg.EventsExchange), nil
}

// StartPaymentConsumer consumes processor push messages until ctx is done. It
// is a no-op without a broker.
func (a *App) StartPaymentConsumer(ctx context.Context) error {
	if a.broker == nil {
		logger.Info("RabbitMQ not configured; payment push channel disabled")
		return nil
	}
	ch, err := a.broker.Channel()
	if err != nil {
		return fmt.Errorf("failed to open consumer channel: %w", err)
	}
	cfg := a.Config.RabbitMQ
	return messaging.NewPaymentConsumer(a.Payments, ch, cfg.PaymentQueue, cfg.Prefetch).Start(ctx)
}

// Probes returns the dependency checks published by the health server.
func (a *App) Probes() map[string]grpcapi.Probe {
	probes := map[string]grpcapi.Probe{
		"storage": func(ctx context.Context) error {
			if a.db != nil {
				return a.db.PingContext(ctx)
			}
			_, err := a.Store.Catalog().ListStations(ctx)
			return err
		},
	}
	if a.broker != nil {
		probes["broker"] = func(context.Context) error {
			if a.broker.IsClosed() {
				return amqp.ErrClosed
			}
			return nil
		}
	}
	return probes
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
