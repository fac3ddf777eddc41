// Package sqldoc implements domain.DocumentStore over database/sql. Each
// document is one row in documents plus one JSON payload per bucket in
// document_state, written in a single transaction.
package sqldoc

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"cadcore/internal/entitymodel/sqlbundle"
	"cadcore/pkg/domain"
)

// Dialect captures what differs between SQL engines.
type Dialect struct {
	Name string
	// DDL is applied statement by statement on open.
	DDL string
	// Placeholder renders the nth (1-based) bind parameter.
	Placeholder func(n int) string
	// EncodeTime converts timestamps before binding.
	EncodeTime func(time.Time) any
}

// Buckets lists the document_state payload rows of one document.
var Buckets = []string{"lines", "models", "materials", "textures", "geometries", "layers"}

// BucketKey returns the document_state primary key of a bucket.
func BucketKey(docID, bucket string) string { return docID + ":" + bucket }

// Store is a DocumentStore over a *sql.DB.
type Store struct {
	db      *sql.DB
	dialect Dialect
	mu      sync.Mutex

	upsertDoc    string
	clearState   string
	insertState  string
	selectDoc    string
	selectState  string
	listDocs     string
	deleteDoc    string
	deleteStates string
}

// Open applies the dialect DDL and returns a ready store.
func Open(ctx context.Context, db *sql.DB, d Dialect) (*Store, error) {
	if d.EncodeTime == nil {
		d.EncodeTime = func(t time.Time) any { return t.UTC() }
	}
	for _, stmt := range sqlbundle.SplitStatements(d.DDL) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("%s ddl: %w", d.Name, err)
		}
	}
	p := d.Placeholder
	return &Store{
		db:      db,
		dialect: d,
		upsertDoc: fmt.Sprintf(`INSERT INTO documents (id, name, created_at, updated_at, entity_count, layer_count) VALUES (%s,%s,%s,%s,%s,%s)
ON CONFLICT (id) DO UPDATE SET name=excluded.name, created_at=excluded.created_at, updated_at=excluded.updated_at, entity_count=excluded.entity_count, layer_count=excluded.layer_count`,
			p(1), p(2), p(3), p(4), p(5), p(6)),
		clearState:   fmt.Sprintf(`DELETE FROM document_state WHERE document_id = %s`, p(1)),
		insertState:  fmt.Sprintf(`INSERT INTO document_state (bucket_key, document_id, bucket, payload) VALUES (%s,%s,%s,%s)`, p(1), p(2), p(3), p(4)),
		selectDoc:    fmt.Sprintf(`SELECT id, name, created_at, updated_at FROM documents WHERE id = %s`, p(1)),
		selectState:  fmt.Sprintf(`SELECT bucket, payload FROM document_state WHERE document_id = %s`, p(1)),
		listDocs:     `SELECT id, name, created_at, updated_at, entity_count, layer_count FROM documents`,
		deleteDoc:    fmt.Sprintf(`DELETE FROM documents WHERE id = %s`, p(1)),
		deleteStates: fmt.Sprintf(`DELETE FROM document_state WHERE document_id = %s`, p(1)),
	}, nil
}

// DB exposes the handle for tests and maintenance commands.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

func payloads(st domain.DocumentState) map[string]any {
	set := st.Entities.Clone()
	layers := st.Layers
	if layers == nil {
		layers = []domain.Layer{}
	}
	return map[string]any{
		"lines":      set.Lines,
		"models":     set.Models,
		"materials":  set.Materials,
		"textures":   set.Textures,
		"geometries": set.Geometries,
		"layers":     layers,
	}
}

// Save implements domain.DocumentStore.
func (s *Store) Save(ctx context.Context, st domain.DocumentState) (retErr error) {
	if st.ID == "" {
		return errors.New("save: document id required")
	}
	buckets := payloads(st)
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	enc := s.dialect.EncodeTime
	if _, err := tx.ExecContext(ctx, s.upsertDoc, st.ID, st.Name, enc(st.CreatedAt), enc(st.UpdatedAt), st.Entities.Len(), len(st.Layers)); err != nil {
		return fmt.Errorf("upsert document %s: %w", st.ID, err)
	}
	if _, err := tx.ExecContext(ctx, s.clearState, st.ID); err != nil {
		return fmt.Errorf("clear state %s: %w", st.ID, err)
	}
	for _, bucket := range Buckets {
		raw, err := json.Marshal(buckets[bucket])
		if err != nil {
			return fmt.Errorf("encode %s: %w", bucket, err)
		}
		if _, err := tx.ExecContext(ctx, s.insertState, BucketKey(st.ID, bucket), st.ID, bucket, raw); err != nil {
			return fmt.Errorf("write %s: %w", BucketKey(st.ID, bucket), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Load implements domain.DocumentStore.
func (s *Store) Load(ctx context.Context, id string) (domain.DocumentState, error) {
	var st domain.DocumentState
	var created, updated timeValue
	err := s.db.QueryRowContext(ctx, s.selectDoc, id).Scan(&st.ID, &st.Name, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DocumentState{}, domain.ErrDocumentNotFound{ID: id}
	}
	if err != nil {
		return domain.DocumentState{}, fmt.Errorf("select document %s: %w", id, err)
	}
	st.CreatedAt, st.UpdatedAt = created.t, updated.t

	targets := map[string]any{
		"lines":      &st.Entities.Lines,
		"models":     &st.Entities.Models,
		"materials":  &st.Entities.Materials,
		"textures":   &st.Entities.Textures,
		"geometries": &st.Entities.Geometries,
		"layers":     &st.Layers,
	}
	rows, err := s.db.QueryContext(ctx, s.selectState, id)
	if err != nil {
		return domain.DocumentState{}, fmt.Errorf("select state %s: %w", id, err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return domain.DocumentState{}, fmt.Errorf("scan state: %w", err)
		}
		target, ok := targets[bucket]
		if !ok || len(payload) == 0 {
			continue
		}
		if err := json.Unmarshal(payload, target); err != nil {
			return domain.DocumentState{}, fmt.Errorf("decode %s: %w", BucketKey(id, bucket), err)
		}
	}
	if err := rows.Err(); err != nil {
		return domain.DocumentState{}, fmt.Errorf("iterate state: %w", err)
	}
	return st.Clone(), nil
}

// List implements domain.DocumentStore, most recently updated first.
func (s *Store) List(ctx context.Context) ([]domain.DocumentSummary, error) {
	rows, err := s.db.QueryContext(ctx, s.listDocs)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.DocumentSummary
	for rows.Next() {
		var sum domain.DocumentSummary
		var created, updated timeValue
		if err := rows.Scan(&sum.ID, &sum.Name, &created, &updated, &sum.Entities, &sum.Layers); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		sum.CreatedAt, sum.UpdatedAt = created.t, updated.t
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	domain.SortSummaries(out)
	return out, nil
}

// Delete implements domain.DocumentStore.
func (s *Store) Delete(ctx context.Context, id string) (_ bool, retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err := tx.ExecContext(ctx, s.deleteStates, id); err != nil {
		return false, fmt.Errorf("delete state %s: %w", id, err)
	}
	res, err := tx.ExecContext(ctx, s.deleteDoc, id)
	if err != nil {
		return false, fmt.Errorf("delete document %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return n > 0, nil
}

// timeValue scans TIMESTAMPTZ columns as well as RFC 3339 text.
type timeValue struct{ t time.Time }

func (v *timeValue) Scan(src any) error {
	switch x := src.(type) {
	case nil:
		v.t = time.Time{}
	case time.Time:
		v.t = x.UTC()
	case string:
		return v.parse(x)
	case []byte:
		return v.parse(string(x))
	default:
		return fmt.Errorf("unsupported time value %T", src)
	}
	return nil
}

func (v *timeValue) parse(s string) error {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return err
	}
	v.t = t.UTC()
	return nil
}
