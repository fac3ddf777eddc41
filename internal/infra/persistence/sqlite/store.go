// Package sqlite persists documents in a SQLite file using the pure Go
// modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"cadcore/internal/entitymodel/sqlbundle"
	"cadcore/internal/infra/persistence/sqldoc"
	"cadcore/pkg/domain"
)

// DefaultPath is used when Open receives an empty path.
const DefaultPath = "cadcore.db"

var _ domain.DocumentStore = (*Store)(nil)

// Store is a SQLite-backed document store.
type Store struct {
	*sqldoc.Store
	path string
}

// Open creates or opens the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	inner, err := sqldoc.Open(ctx, db, sqldoc.Dialect{
		Name:        "sqlite",
		DDL:         sqlbundle.SQLite(),
		Placeholder: func(int) string { return "?" },
		EncodeTime:  func(t time.Time) any { return t.UTC().Format(time.RFC3339Nano) },
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{Store: inner, path: path}, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }
