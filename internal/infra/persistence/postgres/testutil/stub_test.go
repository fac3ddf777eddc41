package testutil

import (
	"context"
	"testing"
)

func TestStubFiltersByPredicate(t *testing.T) {
	ctx := context.Background()
	db, conn := NewStubDB()
	for _, id := range []string{"a", "b"} {
		if _, err := db.ExecContext(ctx, "INSERT INTO docs (id, name) VALUES ($1,$2)", id, "doc "+id); err != nil {
			t.Fatalf("insert %s: %v", id, err)
		}
	}
	if _, err := db.ExecContext(ctx, "INSERT INTO docs (id, name) VALUES ($1,$2)", "a", "dup"); err == nil {
		t.Fatalf("expected duplicate key without ON CONFLICT")
	}
	if _, err := db.ExecContext(ctx, "INSERT INTO docs (id, name) VALUES ($1,$2) ON CONFLICT (id) DO UPDATE SET name=excluded.name", "a", "renamed"); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	var name string
	if err := db.QueryRowContext(ctx, "SELECT name FROM docs WHERE id = $1", "a").Scan(&name); err != nil {
		t.Fatalf("select: %v", err)
	}
	if name != "renamed" {
		t.Fatalf("expected upserted name, got %q", name)
	}

	res, err := db.ExecContext(ctx, "DELETE FROM docs WHERE id = $1", "b")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		t.Fatalf("expected 1 row deleted, got %d", n)
	}
	if rows := conn.Rows("docs"); len(rows) != 1 || rows[0]["id"] != "a" {
		t.Fatalf("unexpected rows %v", rows)
	}
}
