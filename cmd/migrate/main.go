package main

// Run database migrations for the configured run store:
//   go run ./cmd/migrate

import (
	"context"
	"database/sql"
	"log"
	"os"

	"annotation-backend/internal/shared/config"
	"annotation-backend/internal/shared/storage/db"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	var (
		sqlDB  *sql.DB
		driver string
		err    error
	)
	switch cfg.RunStore {
	case config.RunStoreSQLite:
		driver = db.DriverSQLite
		sqlDB, err = db.ConnectSQLite(ctx, cfg.SQLitePath, db.OptionsFromEnv(db.DefaultSQLiteOptions()))
	case config.RunStorePostgres:
		driver = db.DriverPostgres
		sqlDB, err = db.Connect(ctx, cfg.DatabaseURL, db.OptionsFromEnv(db.DefaultMigrateOptions()))
	default:
		log.Printf("RUN_STORE=%s has no database; nothing to migrate", cfg.RunStore)
		return
	}
	if err != nil {
		log.Printf("failed to connect database: %v", err)
		os.Exit(1)
	}
	defer sqlDB.Close()

	if err := db.RunMigrations(ctx, sqlDB, driver); err != nil {
		log.Printf("failed to run migrations: %v", err)
		os.Exit(1)
	}
	log.Printf("migrations applied driver=%s", driver)
}
