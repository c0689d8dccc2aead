package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flomify/flomify/internal/pkg/env"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	env.Env = map[string]string{}
	t.Cleanup(func() { env.Env = nil })

	t.Setenv("APP_ENV", "test")
	t.Setenv("CLIENT_URL", "https://flomify.example/")
	t.Setenv("DB_USER", "flomify")
	t.Setenv("DB_NAME", "flomify")
	t.Setenv("LEMONSQUEEZY_WEBHOOK_SECRET", "whsec")
	t.Setenv("LEMONSQUEEZY_API_KEY", "key")
	t.Setenv("LEMONSQUEEZY_STORE_ID", "1")
	t.Setenv("LEMONSQUEEZY_VARIANT_ID", "2")
	t.Setenv("AUTH_JWT_SECRET", "0123456789abcdef")
}

func TestLoad(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://flomify.example", cfg.App.ClientURL)
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, "5432", cfg.Database.Port)
	assert.Equal(t, 6379, cfg.Cache.Port)
	assert.Equal(t, 3, cfg.Queue.Workers)
	assert.Equal(t, 15*time.Minute, cfg.Queue.ExpirySweepInterval)
	assert.Equal(t, DefaultLemonSqueezyAPIURL, cfg.Billing.APIURL)
	assert.Equal(t, "0.0.0.0:8080", cfg.ListenAddr())
}

func TestLoad_MySQLDefaults(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DB_DRIVER", "MySQL")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverMySQL, cfg.Database.Driver)
	assert.Equal(t, "3306", cfg.Database.Port)
	assert.Contains(t, cfg.Database.DSN(), "@tcp(127.0.0.1:3306)/flomify")
	assert.Contains(t, cfg.Database.MigrateURL(), "mysql://")
}

func TestLoad_FailsFast(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		missing string
	}{
		{"missing webhook secret", "LEMONSQUEEZY_WEBHOOK_SECRET", "", "WebhookSecret"},
		{"missing api key", "LEMONSQUEEZY_API_KEY", "", "APIKey"},
		{"missing variant", "LEMONSQUEEZY_VARIANT_ID", "", "VariantID"},
		{"short jwt secret", "AUTH_JWT_SECRET", "short", "JWTSecret"},
		{"unknown driver", "DB_DRIVER", "sqlite", "Driver"},
		{"bad worker count", "JOBQUEUE_WORKERS", "many", "JOBQUEUE_WORKERS"},
		{"bad interval", "SUBSCRIPTION_EXPIRY_INTERVAL", "soon", "SUBSCRIPTION_EXPIRY_INTERVAL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(tt.key, tt.value)

			cfg, err := Load()
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.missing)
		})
	}
}

func TestDatabaseConfig_PostgresDSN(t *testing.T) {
	d := DatabaseConfig{Driver: DriverPostgres, Host: "db", Port: "5432", User: "u", Password: "p", Name: "n"}
	assert.Equal(t, "host=db user=u password=p dbname=n port=5432 sslmode=require TimeZone=UTC", d.DSN())
	assert.Equal(t, "postgres://u:p@db:5432/n?sslmode=require", d.MigrateURL())
}
