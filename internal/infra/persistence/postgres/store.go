// Package postgres persists documents in Postgres through the pgx
// database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver

	"cadcore/internal/entitymodel/sqlbundle"
	"cadcore/internal/infra/persistence/sqldoc"
	"cadcore/pkg/domain"
)

var _ domain.DocumentStore = (*Store)(nil)

const (
	driverName = "pgx"
	// DefaultDSN is used when Open receives an empty DSN.
	DefaultDSN = "postgres://localhost/cadcore?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store is a Postgres-backed document store.
type Store struct {
	*sqldoc.Store
}

// Open connects to dsn, pings the server and applies the schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = DefaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(driverName, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	inner, err := sqldoc.Open(ctx, db, sqldoc.Dialect{
		Name:        "postgres",
		DDL:         sqlbundle.Postgres(),
		Placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{Store: inner}, nil
}

// OverrideSQLOpen swaps the sql.Open function for tests and returns a restore
// function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
