package core

import (
	"context"
	"fmt"
	"io"

	"cadcore/internal/config"
	"cadcore/internal/infra/persistence/memory"
	"cadcore/internal/infra/persistence/postgres"
	"cadcore/internal/infra/persistence/sqlite"
	"cadcore/pkg/domain"
)

// StorageDriver identifies a concrete document store implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// OpenDocumentStore selects a backend from the storage configuration.
// Defaults to sqlite when the driver is unset.
func OpenDocumentStore(ctx context.Context, cfg config.StorageConfig) (domain.DocumentStore, error) {
	driver := StorageDriver(cfg.Driver)
	if driver == "" {
		driver = StorageSQLite
	}
	switch driver {
	case StorageMemory:
		return memory.New(), nil
	case StorageSQLite:
		s, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case StoragePostgres:
		s, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %s", cfg.Driver)
	}
}

// CloseDocumentStore releases stores that hold a connection.
func CloseDocumentStore(s domain.DocumentStore) error {
	if c, ok := s.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
