package postgres

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"cadcore/internal/infra/persistence/persistencetest"
	"cadcore/internal/infra/persistence/postgres/testutil"
)

func openStub(t *testing.T) (*Store, *testutil.StubConn) {
	t.Helper()
	db, conn := testutil.NewStubDB()
	var gotDriver, gotDSN string
	restore := OverrideSQLOpen(func(driver, dsn string) (*sql.DB, error) {
		gotDriver, gotDSN = driver, dsn
		return db, nil
	})
	t.Cleanup(restore)
	s, err := Open(context.Background(), "")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if gotDriver != "pgx" || gotDSN != DefaultDSN {
		t.Fatalf("unexpected open args %s %s", gotDriver, gotDSN)
	}
	return s, conn
}

func TestStoreContract(t *testing.T) {
	s, _ := openStub(t)
	persistencetest.Run(t, s)
}

func TestOpenAppliesSchemaAndDollarPlaceholders(t *testing.T) {
	s, conn := openStub(t)
	var ddl int
	for _, stmt := range conn.Execs {
		if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(stmt)), "CREATE") {
			ddl++
		}
	}
	if ddl != 3 {
		t.Fatalf("expected 3 ddl statements, got %d", ddl)
	}
	if err := s.Save(context.Background(), persistencetest.Fixture("p", fixtureTime())); err != nil {
		t.Fatalf("save: %v", err)
	}
	last := conn.Execs[len(conn.Execs)-1]
	if !strings.Contains(last, "$4") {
		t.Fatalf("expected dollar placeholders in %q", last)
	}
	if rows := conn.Rows("document_state"); len(rows) != 6 {
		t.Fatalf("expected one row per bucket, got %d", len(rows))
	}
}

func TestOpenPingFailure(t *testing.T) {
	db, conn := testutil.NewStubDB()
	conn.FailPing = true
	restore := OverrideSQLOpen(func(string, string) (*sql.DB, error) { return db, nil })
	defer restore()
	if _, err := Open(context.Background(), "postgres://x"); err == nil || !strings.Contains(err.Error(), "ping") {
		t.Fatalf("expected ping error, got %v", err)
	}
}

func TestSaveRollsBackOnFailure(t *testing.T) {
	s, conn := openStub(t)
	conn.FailTables = map[string]bool{"document_state": true}
	if err := s.Save(context.Background(), persistencetest.Fixture("f", fixtureTime())); err == nil {
		t.Fatalf("expected write failure")
	}
}

func fixtureTime() time.Time { return time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC) }
