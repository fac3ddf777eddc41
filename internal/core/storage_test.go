package core

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"cadcore/internal/config"
	"cadcore/internal/infra/persistence/postgres"
	pgstub "cadcore/internal/infra/persistence/postgres/testutil"
	"cadcore/internal/infra/persistence/sqlite"
)

func TestOpenDocumentStoreDefaultsToSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "docs.db")
	st, err := OpenDocumentStore(context.Background(), config.StorageConfig{SQLitePath: path})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = CloseDocumentStore(st) }()
	s, ok := st.(*sqlite.Store)
	if !ok {
		t.Fatalf("expected *sqlite.Store, got %T", st)
	}
	if s.Path() != path {
		t.Fatalf("expected path %s, got %s", path, s.Path())
	}
}

func TestOpenDocumentStorePostgres(t *testing.T) {
	db, _ := pgstub.NewStubDB()
	var dsn string
	restore := postgres.OverrideSQLOpen(func(_, d string) (*sql.DB, error) {
		dsn = d
		return db, nil
	})
	defer restore()

	st, err := OpenDocumentStore(context.Background(), config.StorageConfig{Driver: "postgres", PostgresDSN: "postgres://db/cad"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, ok := st.(*postgres.Store); !ok {
		t.Fatalf("expected *postgres.Store, got %T", st)
	}
	if dsn != "postgres://db/cad" {
		t.Fatalf("dsn not passed through: %q", dsn)
	}
	if err := CloseDocumentStore(st); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestOpenDocumentStorePostgresPingFailure(t *testing.T) {
	db, conn := pgstub.NewStubDB()
	conn.FailPing = true
	restore := postgres.OverrideSQLOpen(func(string, string) (*sql.DB, error) { return db, nil })
	defer restore()
	if _, err := OpenDocumentStore(context.Background(), config.StorageConfig{Driver: "postgres"}); err == nil {
		t.Fatalf("expected ping failure")
	}
}

func TestOpenDocumentStoreUnknownDriver(t *testing.T) {
	st, err := OpenDocumentStore(context.Background(), config.StorageConfig{Driver: "gibberish"})
	if err == nil || st != nil {
		t.Fatalf("expected error for unknown driver, got store=%v err=%v", st, err)
	}
}
