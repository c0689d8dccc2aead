package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/gofiber/fiber/v2/log"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/flomify/flomify/internal/pkg/config"
	"github.com/flomify/flomify/internal/pkg/env"
)

func main() {
	env.SetupEnvFile()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[Migrate] %v", err)
	}
	db := cfg.Database

	log.Infof("[Migrate] Connecting to %s database %s@%s:%s/%s", db.Driver, db.User, db.Host, db.Port, db.Name)

	m, err := migrate.New(migrationsSource(db.Driver), db.MigrateURL())
	if err != nil {
		log.Fatalf("[Migrate] Failed to initialize migrations: %v", err)
	}

	defer func() {
		if sourceErr, dbErr := m.Close(); sourceErr != nil || dbErr != nil {
			log.Errorf("[Migrate] Failed to close migration resources: %v, %v", sourceErr, dbErr)
		}
	}()

	switch command {
	case "up":
		err := m.Up()
		switch {
		case errors.Is(err, migrate.ErrNoChange):
			log.Info("[Migrate] No changes: database is up to date")
		case err != nil:
			log.Fatalf("[Migrate] Failed to apply migrations: %v", err)
		default:
			log.Info("[Migrate] Migrations applied")
		}

	case "down":
		if err := m.Steps(-1); err != nil {
			log.Fatalf("[Migrate] Failed to roll back the last migration: %v", err)
		}
		log.Info("[Migrate] Rolled back the last migration")

	case "goto":
		if len(os.Args) < 3 {
			log.Fatal("[Migrate] Missing version number")
		}
		version, err := strconv.ParseUint(os.Args[2], 10, 64)
		if err != nil {
			log.Fatalf("[Migrate] Invalid version number: %v", err)
		}

		err = m.Migrate(uint(version))
		switch {
		case errors.Is(err, migrate.ErrNoChange):
			log.Infof("[Migrate] No changes: database is already at version %d", version)
		case err != nil:
			log.Fatalf("[Migrate] Failed to migrate to version %d: %v", version, err)
		default:
			log.Infof("[Migrate] Migrated to version %d", version)
		}

	case "status":
		version, dirty, err := m.Version()
		if err != nil {
			if errors.Is(err, migrate.ErrNilVersion) {
				log.Info("[Migrate] No migrations applied yet")
				return
			}
			log.Fatalf("[Migrate] Failed to read migration version: %v", err)
		}
		dirtyStatus := ""
		if dirty {
			dirtyStatus = " (dirty)"
		}
		log.Infof("[Migrate] Current version: %d%s", version, dirtyStatus)

	default:
		printUsage()
		os.Exit(1)
	}
}

// migrationsSource picks the SQL dialect directory for driver.
func migrationsSource(driver string) string {
	if driver == config.DriverMySQL {
		return "file://migrations/mysql"
	}
	return "file://migrations/postgres"
}

func printUsage() {
	fmt.Println("Usage: go run ./cmd/migrate [command]")
	fmt.Println("Commands:")
	fmt.Println("  up     - apply all pending migrations")
	fmt.Println("  down   - roll back the last migration")
	fmt.Println("  goto N - migrate to version N")
	fmt.Println("  status - show the current migration version")
}
