package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/flomify/flomify/internal/pkg/env"
)

// ErrInvalidConfig is returned when required settings are missing or malformed.
var ErrInvalidConfig = errors.New("invalid configuration")

const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"

	DefaultLemonSqueezyAPIURL = "https://api.lemonsqueezy.com"
)

type Config struct {
	App      AppConfig      `validate:"required"`
	Database DatabaseConfig `validate:"required"`
	Cache    CacheConfig    `validate:"required"`
	Billing  BillingConfig  `validate:"required"`
	Auth     AuthConfig     `validate:"required"`
	Queue    QueueConfig    `validate:"required"`
	Monitor  MonitorConfig
}

type AppConfig struct {
	Env         string `validate:"required,oneof=dev prod test"`
	Host        string
	Port        string `validate:"required,numeric"`
	ClientURL   string `validate:"required,url"`
	CORSOrigins string
}

type DatabaseConfig struct {
	Driver   string `validate:"required,oneof=postgres mysql"`
	Host     string `validate:"required"`
	Port     string `validate:"required,numeric"`
	User     string `validate:"required"`
	Password string
	Name     string `validate:"required"`
	SSLMode  string
}

type CacheConfig struct {
	Host     string `validate:"required"`
	Port     int    `validate:"required,min=1,max=65535"`
	Password string
	DB       int `validate:"min=0,max=15"`
}

// BillingConfig holds the billing provider credentials. It is injected into
// the webhook verifier and the checkout client.
type BillingConfig struct {
	WebhookSecret string `validate:"required"`
	APIKey        string `validate:"required"`
	StoreID       string `validate:"required"`
	VariantID     string `validate:"required"`
	APIURL        string `validate:"required,url"`
}

type AuthConfig struct {
	JWTSecret string `validate:"required,min=16"`
}

type QueueConfig struct {
	Workers              int           `validate:"min=1,max=64"`
	ExpirySweepInterval  time.Duration `validate:"required"`
	CounterFlushInterval time.Duration `validate:"required"`
}

type MonitorConfig struct {
	User     string
	Password string
}

// Load builds the configuration from the loaded .env file and the process
// environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Env:         env.GetEnv("APP_ENV", "prod"),
			Host:        env.GetEnv("APP_HOST", "0.0.0.0"),
			Port:        env.GetEnv("APP_PORT", env.GetEnv("PORT", "8080")),
			ClientURL:   strings.TrimRight(env.GetEnv("CLIENT_URL", ""), "/"),
			CORSOrigins: env.GetEnv("CORS_ORIGINS", ""),
		},
		Database: DatabaseConfig{
			Driver:   strings.ToLower(env.GetEnv("DB_DRIVER", DriverPostgres)),
			Host:     env.GetEnv("DB_HOST", "127.0.0.1"),
			User:     env.GetEnv("DB_USER", ""),
			Password: env.GetEnv("DB_PASSWORD", ""),
			Name:     env.GetEnv("DB_NAME", ""),
			SSLMode:  env.GetEnv("DB_SSLMODE", "require"),
		},
		Cache: CacheConfig{
			Host:     env.GetEnv("CACHE_HOST", "localhost"),
			Password: env.GetEnv("CACHE_PASSWORD", ""),
		},
		Billing: BillingConfig{
			WebhookSecret: strings.TrimSpace(env.GetEnv("LEMONSQUEEZY_WEBHOOK_SECRET", "")),
			APIKey:        strings.TrimSpace(env.GetEnv("LEMONSQUEEZY_API_KEY", "")),
			StoreID:       strings.TrimSpace(env.GetEnv("LEMONSQUEEZY_STORE_ID", "")),
			VariantID:     strings.TrimSpace(env.GetEnv("LEMONSQUEEZY_VARIANT_ID", "")),
			APIURL:        strings.TrimRight(env.GetEnv("LEMONSQUEEZY_API_URL", DefaultLemonSqueezyAPIURL), "/"),
		},
		Auth: AuthConfig{
			JWTSecret: env.GetEnv("AUTH_JWT_SECRET", ""),
		},
		Monitor: MonitorConfig{
			User:     env.GetEnv("MONITOR_USER", ""),
			Password: env.GetEnv("MONITOR_PASSWORD", ""),
		},
	}

	var errs []error
	defaultDBPort := "5432"
	if cfg.Database.Driver == DriverMySQL {
		defaultDBPort = "3306"
	}
	cfg.Database.Port = env.GetEnv("DB_PORT", defaultDBPort)

	cfg.Cache.Port = intSetting("CACHE_PORT", 6379, &errs)
	cfg.Cache.DB = intSetting("CACHE_DB", 0, &errs)
	cfg.Queue.Workers = intSetting("JOBQUEUE_WORKERS", 3, &errs)
	cfg.Queue.ExpirySweepInterval = durationSetting("SUBSCRIPTION_EXPIRY_INTERVAL", 15*time.Minute, &errs)
	cfg.Queue.CounterFlushInterval = durationSetting("COUNTER_FLUSH_INTERVAL", 5*time.Second, &errs)

	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that every required setting is present.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// IsDev reports whether the app runs in development mode.
func (c *Config) IsDev() bool {
	return c.App.Env == "dev"
}

// ListenAddr returns the host:port the HTTP server binds to.
func (c *Config) ListenAddr() string {
	return c.App.Host + ":" + c.App.Port
}

// DSN returns the data source name for the configured database driver.
func (d DatabaseConfig) DSN() string {
	if d.Driver == DriverMySQL {
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			d.User, d.Password, d.Host, d.Port, d.Name)
	}
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		d.Host, d.User, d.Password, d.Name, d.Port, sslMode)
}

// MigrateURL returns the database URL used by golang-migrate.
func (d DatabaseConfig) MigrateURL() string {
	if d.Driver == DriverMySQL {
		return fmt.Sprintf("mysql://%s:%s@tcp(%s:%s)/%s?multiStatements=true", d.User, d.Password, d.Host, d.Port, d.Name)
	}
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", d.User, d.Password, d.Host, d.Port, d.Name, sslMode)
}

// Addr returns the Redis address.
func (c CacheConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func intSetting(key string, def int, errs *[]error) int {
	raw := strings.TrimSpace(env.GetEnv(key, ""))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %q is not an integer", key, raw))
		return def
	}
	return v
}

func durationSetting(key string, def time.Duration, errs *[]error) time.Duration {
	raw := strings.TrimSpace(env.GetEnv(key, ""))
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %q is not a duration", key, raw))
		return def
	}
	return v
}
