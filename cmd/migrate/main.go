package main

import (
	"context"
	"log"
	"time"

	"github.com/api-sage/settlement-ledger/internal/adapter/repository/postgres"
	"github.com/api-sage/settlement-ledger/internal/adapter/repository/sqlite"
	"github.com/api-sage/settlement-ledger/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch cfg.StoreDriver {
	case config.DriverPostgres:
		if err := postgres.RunMigrations(ctx, cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
			log.Fatalf("run migrations: %v", err)
		}
	case config.DriverSQLite:
		db, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			log.Fatalf("open sqlite store: %v", err)
		}
		defer db.Close()
	default:
		log.Printf("store driver %q needs no migrations", cfg.StoreDriver)
		return
	}

	log.Println("initial migrations completed successfully")
}
