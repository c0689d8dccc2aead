package database

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/flomify/flomify/app/models"
	"github.com/flomify/flomify/internal/pkg/config"
)

const maxRetries = 5
const retryDelay = 5 * time.Second

var DB *gorm.DB

// GetDB returns the shared database handle set up by SetupDatabase.
func GetDB() *gorm.DB {
	return DB
}

// Dialector returns the gorm dialector for the configured driver.
func Dialector(cfg config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return postgres.New(postgres.Config{
			DSN:                  cfg.DSN(),
			PreferSimpleProtocol: true, // hosted poolers run in transaction mode
		}), nil
	case config.DriverMySQL:
		return mysql.New(mysql.Config{
			DSN:                       cfg.DSN(),
			DefaultStringSize:         256,
			DisableDatetimePrecision:  true,
			DontSupportRenameIndex:    true,
			DontSupportRenameColumn:   true,
			SkipInitializeWithVersion: false,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// SetupDatabase connects with retries and, when autoMigrate is set, migrates
// the schema. Production schemas are managed by cmd/migrate.
func SetupDatabase(cfg config.DatabaseConfig, autoMigrate bool) error {
	dialector, err := Dialector(cfg)
	if err != nil {
		return err
	}

	gormCfg := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	var db *gorm.DB
	for i := 0; i < maxRetries; i++ {
		db, err = gorm.Open(dialector, gormCfg)
		if err == nil {
			break
		}
		log.Warnf("[Database] Failed to connect to %s (try %d/%d): %v", cfg.Driver, i+1, maxRetries, err)
		if i < maxRetries-1 {
			log.Infof("[Database] Retrying in %v...", retryDelay)
			time.Sleep(retryDelay)
		}
	}
	if err != nil {
		return fmt.Errorf("connect %s: %w", cfg.Driver, err)
	}

	if autoMigrate {
		if err := Migrate(db); err != nil {
			return err
		}
	}

	DB = db
	log.Infof("[Database] Connected to %s at %s:%s", cfg.Driver, cfg.Host, cfg.Port)
	return nil
}

// Migrate creates or updates all tables owned by this service.
func Migrate(db *gorm.DB) error {
	if err := db.SetupJoinTable(&models.Item{}, "Tags", &models.ItemTag{}); err != nil {
		return fmt.Errorf("setup item tags join table: %w", err)
	}
	if err := db.AutoMigrate(
		&models.Category{},
		&models.Tag{},
		&models.Item{},
		&models.ItemTag{},
		&models.Subscription{},
		&models.BillingWebhookEvent{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
