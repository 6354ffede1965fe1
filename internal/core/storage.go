package core

import (
	"context"
	"fmt"

	"btxclinic/internal/infra/persistence/memory"
	"btxclinic/internal/infra/persistence/postgres"
	"btxclinic/internal/infra/persistence/sqlite"
	"btxclinic/pkg/domain"
)

// StorageDriver identifies a concrete state store implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// StorageConfig selects and parameterizes the state store.
type StorageConfig struct {
	Driver      StorageDriver
	SQLitePath  string
	PostgresDSN string
}

// OpenStateStore builds the configured state store. An empty driver selects
// sqlite.
func OpenStateStore(ctx context.Context, cfg StorageConfig) (domain.StateStore, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = StorageSQLite
	}
	switch driver {
	case StorageMemory:
		return memory.NewStore(), nil
	case StorageSQLite:
		store, err := sqlite.NewStore(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return store, nil
	case StoragePostgres:
		store, err := postgres.NewStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}

// ParseStorageDriver validates a driver name.
func ParseStorageDriver(raw string) (StorageDriver, error) {
	switch d := StorageDriver(raw); d {
	case StorageMemory, StorageSQLite, StoragePostgres:
		return d, nil
	case "":
		return StorageSQLite, nil
	default:
		return "", fmt.Errorf("unknown storage driver %s", raw)
	}
}
