package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

type Config struct {
	StoreDriver   string `yaml:"storeDriver"`
	DatabaseURL   string `yaml:"databaseURL"`
	SQLitePath    string `yaml:"sqlitePath"`
	MigrationsDir string `yaml:"migrationsDir"`
}

// Load reads configuration from an optional YAML file (LEDGER_CONFIG), with
// environment variables taking precedence. A .env file is honoured when
// present.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		StoreDriver:   DriverSQLite,
		SQLitePath:    filepath.Join("data", "ledger.db"),
		MigrationsDir: "migrations",
	}

	if path := strings.TrimSpace(os.Getenv("LEDGER_CONFIG")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %q: %w", path, err)
		}
	}

	if v := strings.TrimSpace(os.Getenv("STORE_DRIVER")); v != "" {
		cfg.StoreDriver = v
	}
	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		cfg.DatabaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("SQLITE_PATH")); v != "" {
		cfg.SQLitePath = v
	}
	if v := strings.TrimSpace(os.Getenv("MIGRATIONS_DIR")); v != "" {
		cfg.MigrationsDir = v
	}

	switch cfg.StoreDriver {
	case DriverPostgres, DriverSQLite, DriverMemory:
	default:
		return Config{}, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}

	if cfg.StoreDriver == DriverPostgres && cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL must be set for the postgres driver")
	}

	return cfg, nil
}
