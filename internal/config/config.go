package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Storage     StorageConfig     `yaml:"storage"`
	RabbitMQ    RabbitMQConfig    `yaml:"rabbitmq"`
	Payment     PaymentConfig     `yaml:"payment"`
	Reservation ReservationConfig `yaml:"reservation"`
	Pricing     PricingConfig     `yaml:"pricing"`
	JWT         JWTConfig         `yaml:"jwt"`
	Contract    ContractConfig    `yaml:"contract"`
	SendGrid    SendGridConfig    `yaml:"sendgrid"`
	Log         LogConfig         `yaml:"log"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
}

// ServerConfig contains HTTP and gRPC listener settings
type ServerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	GRPCPort int    `yaml:"grpc_port"`
	BaseURL  string `yaml:"base_url"`
}

// DatabaseConfig contains PostgreSQL connection settings
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
}

// StorageConfig selects the repository backend
type StorageConfig struct {
	Driver   string `yaml:"driver"`    // "postgres" or "bolt"
	BoltPath string `yaml:"bolt_path"` // For bolt driver
	SeedFile string `yaml:"seed_file"` // Fleet YAML loaded into bolt on start
}

// RabbitMQConfig contains broker settings for payment events and reservation events
type RabbitMQConfig struct {
	URL            string `yaml:"url"`
	PaymentQueue   string `yaml:"payment_queue"`
	EventsExchange string `yaml:"events_exchange"`
	Prefetch       int    `yaml:"prefetch"`
}

// PaymentConfig contains payment processor settings
type PaymentConfig struct {
	Provider          string `yaml:"provider"` // "http" or "sandbox"
	BaseURL           string `yaml:"base_url"`
	APIKey            string `yaml:"api_key"`
	ReturnURL         string `yaml:"return_url"`
	TimeoutSeconds    int    `yaml:"timeout_seconds"`
	VerifyMaxAttempts int    `yaml:"verify_max_attempts"`
	VerifyBackoffMs   int    `yaml:"verify_backoff_ms"`
	VerifyMaxDelayMs  int    `yaml:"verify_max_delay_ms"`
}

// ReservationConfig contains reservation policy settings
type ReservationConfig struct {
	MinDurationMinutes int `yaml:"min_duration_minutes"`
	HoldGraceMinutes   int `yaml:"hold_grace_minutes"`
	SweepBatchSize     int `yaml:"sweep_batch_size"`
}

// PricingConfig contains cost preview settings
type PricingConfig struct {
	DepositPercent     int64 `yaml:"deposit_percent"`
	ServiceFeePercent  int64 `yaml:"service_fee_percent"`
	ServiceFeeMinCents int64 `yaml:"service_fee_min_cents"`
	BillingUnitMinutes int   `yaml:"billing_unit_minutes"`
}

// JWTConfig contains JWT token settings
type JWTConfig struct {
	Secret            string `yaml:"secret"`
	AccessTokenExpiry int    `yaml:"access_token_expiry_minutes"`
}

// ContractConfig contains contract document settings
type ContractConfig struct {
	Dir     string `yaml:"dir"`
	BaseURL string `yaml:"base_url"`
}

// SendGridConfig contains confirmation e-mail settings. An empty API key
// disables e-mail.
type SendGridConfig struct {
	APIKey   string `yaml:"api_key"`
	From     string `yaml:"from"`
	FromName string `yaml:"from_name"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "text"
}

// SchedulerConfig contains cron schedule settings
type SchedulerConfig struct {
	ExpireHolds           string `yaml:"expire_holds"`
	ReconcilePayments     string `yaml:"reconcile_payments"`
	IssueMissingContracts string `yaml:"issue_missing_contracts"`
}

// Load reads configuration from a YAML file
func Load(configPath string) (*Config, error) {
	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override with environment variables if present
	cfg.overrideWithEnv()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// overrideWithEnv overrides config values with environment variables
func (c *Config) overrideWithEnv() {
	// Database
	if val := os.Getenv("DB_HOST"); val != "" {
		c.Database.Host = val
	}
	if val := os.Getenv("DB_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Database.Port)
	}
	if val := os.Getenv("DB_USER"); val != "" {
		c.Database.User = val
	}
	if val := os.Getenv("DB_PASSWORD"); val != "" {
		c.Database.Password = val
	}
	if val := os.Getenv("DB_NAME"); val != "" {
		c.Database.Database = val
	}
	if val := os.Getenv("DB_SSL_MODE"); val != "" {
		c.Database.SSLMode = val
	}

	// Storage
	if val := os.Getenv("STORAGE_DRIVER"); val != "" {
		c.Storage.Driver = val
	}
	if val := os.Getenv("BOLT_PATH"); val != "" {
		c.Storage.BoltPath = val
	}

	// RabbitMQ
	if val := os.Getenv("RABBITMQ_URL"); val != "" {
		c.RabbitMQ.URL = val
	}

	// Payment
	if val := os.Getenv("PAYMENT_BASE_URL"); val != "" {
		c.Payment.BaseURL = val
	}
	if val := os.Getenv("PAYMENT_API_KEY"); val != "" {
		c.Payment.APIKey = val
	}

	// JWT
	if val := os.Getenv("JWT_SECRET"); val != "" {
		c.JWT.Secret = val
	}

	// SendGrid
	if val := os.Getenv("SENDGRID_API_KEY"); val != "" {
		c.SendGrid.APIKey = val
	}

	// Server
	if val := os.Getenv("SERVER_HOST"); val != "" {
		c.Server.Host = val
	}
	if val := os.Getenv("SERVER_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Server.Port)
	}

	// Log
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = val
	}

	// Set defaults for log if not configured
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks if the configuration is valid and fills in defaults
func (c *Config) Validate() error {
	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.GRPCPort < 0 || c.Server.GRPCPort > 65535 {
		return fmt.Errorf("invalid grpc port: %d", c.Server.GRPCPort)
	}
	if c.Server.BaseURL == "" {
		c.Server.BaseURL = fmt.Sprintf("http://%s:%d", c.Server.Host, c.Server.Port)
	}

	// Storage validation
	switch c.Storage.Driver {
	case "", "postgres":
		c.Storage.Driver = "postgres"
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
		if c.Database.SSLMode == "" {
			c.Database.SSLMode = "disable"
		}
	case "bolt":
		if c.Storage.BoltPath == "" {
			c.Storage.BoltPath = "data/evrental.db"
		}
	default:
		return fmt.Errorf("unsupported storage driver: %s", c.Storage.Driver)
	}

	// RabbitMQ defaults
	if c.RabbitMQ.PaymentQueue == "" {
		c.RabbitMQ.PaymentQueue = "payment_events"
	}
	if c.RabbitMQ.EventsExchange == "" {
		c.RabbitMQ.EventsExchange = "reservation_events"
	}
	if c.RabbitMQ.Prefetch <= 0 {
		c.RabbitMQ.Prefetch = 10
	}

	// Payment validation
	switch c.Payment.Provider {
	case "", "sandbox":
		c.Payment.Provider = "sandbox"
	case "http":
		if c.Payment.BaseURL == "" {
			return fmt.Errorf("payment base url is required for http provider")
		}
	default:
		return fmt.Errorf("unsupported payment provider: %s", c.Payment.Provider)
	}
	if c.Payment.TimeoutSeconds <= 0 {
		c.Payment.TimeoutSeconds = 10
	}
	if c.Payment.VerifyMaxAttempts <= 0 {
		c.Payment.VerifyMaxAttempts = 3
	}
	if c.Payment.VerifyBackoffMs <= 0 {
		c.Payment.VerifyBackoffMs = 200
	}
	if c.Payment.VerifyMaxDelayMs <= 0 {
		c.Payment.VerifyMaxDelayMs = 2000
	}

	// Reservation defaults
	if c.Reservation.MinDurationMinutes <= 0 {
		c.Reservation.MinDurationMinutes = 180 // 3 hours
	}
	if c.Reservation.HoldGraceMinutes <= 0 {
		c.Reservation.HoldGraceMinutes = 15
	}
	if c.Reservation.SweepBatchSize <= 0 {
		c.Reservation.SweepBatchSize = 100
	}

	// Pricing validation
	if c.Pricing.DepositPercent < 0 || c.Pricing.ServiceFeePercent < 0 || c.Pricing.ServiceFeeMinCents < 0 {
		return fmt.Errorf("pricing constants must not be negative")
	}
	if c.Pricing.DepositPercent == 0 {
		c.Pricing.DepositPercent = 10
	}
	if c.Pricing.ServiceFeePercent == 0 {
		c.Pricing.ServiceFeePercent = 5
	}
	if c.Pricing.BillingUnitMinutes <= 0 {
		c.Pricing.BillingUnitMinutes = 60
	}

	// JWT validation
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT secret is required")
	}
	if len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT secret must be at least 32 characters")
	}
	if c.JWT.AccessTokenExpiry <= 0 {
		c.JWT.AccessTokenExpiry = 60
	}

	// Contract defaults
	if c.Contract.Dir == "" {
		c.Contract.Dir = "data/contracts"
	}
	if c.Contract.BaseURL == "" {
		c.Contract.BaseURL = c.Server.BaseURL
	}

	// SendGrid validation
	if c.SendGrid.APIKey != "" && c.SendGrid.From == "" {
		return fmt.Errorf("sendgrid sender address is required when an API key is set")
	}

	// Scheduler defaults
	if c.Scheduler.ExpireHolds == "" {
		c.Scheduler.ExpireHolds = "*/30 * * * * *" // Every 30 seconds
	}
	if c.Scheduler.ReconcilePayments == "" {
		c.Scheduler.ReconcilePayments = "0 */2 * * * *" // Every 2 minutes
	}
	if c.Scheduler.IssueMissingContracts == "" {
		c.Scheduler.IssueMissingContracts = "0 */10 * * * *" // Every 10 minutes
	}

	return nil
}

// GetDatabaseConnectionString returns a PostgreSQL connection string
func (c *Config) GetDatabaseConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		c.Database.SSLMode,
	)
}

// GetServerAddress returns the HTTP server address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// GetGRPCAddress returns the gRPC health server address, or "" when disabled
func (c *Config) GetGRPCAddress() string {
	if c.Server.GRPCPort == 0 {
		return ""
	}
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.GRPCPort)
}

// HoldGrace returns the payment hold duration
func (c *Config) HoldGrace() time.Duration {
	return time.Duration(c.Reservation.HoldGraceMinutes) * time.Minute
}

// MinDuration returns the minimum rental duration
func (c *Config) MinDuration() time.Duration {
	return time.Duration(c.Reservation.MinDurationMinutes) * time.Minute
}

// BillingUnit returns the pricing billing unit
func (c *Config) BillingUnit() time.Duration {
	return time.Duration(c.Pricing.BillingUnitMinutes) * time.Minute
}
