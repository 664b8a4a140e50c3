// Package pgstore implements the store.Client contract on PostgreSQL. Each
// document is one row in a nodes table keyed by its slash path, with the body
// held as JSONB so partial updates can merge nested fields server-side.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nagaralert/nagaralert/internal/config"
	"github.com/nagaralert/nagaralert/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS nodes (
	path       text PRIMARY KEY,
	parent     text NOT NULL,
	doc        jsonb NOT NULL,
	updated_at timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS nodes_parent_idx ON nodes (parent);
`

// Store is a PostgreSQL-backed store.Client.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Open connects to PostgreSQL and ensures the nodes table exists.
func Open(ctx context.Context, log *slog.Logger, cfg config.PostgresConfig) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode)
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &Store{pool: pool, logger: log.With(slog.String("service", "pgstore"))}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

func parentOf(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return ""
	}
	return path[:idx]
}

func (s *Store) Get(ctx context.Context, path string, out any) error {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT doc FROM nodes WHERE path = $1`, path).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (s *Store) Set(ctx context.Context, path string, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO nodes (path, parent, doc) VALUES ($1, $2, $3)
		ON CONFLICT (path) DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()`,
		path, parentOf(path), raw)
	if err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	return nil
}

// Update merges fields into the document at path inside a row-locked
// transaction so concurrent partial updates cannot drop each other.
func (s *Store) Update(ctx context.Context, path string, fields map[string]any) error {
	return s.Transaction(ctx, path, func(current json.RawMessage) (any, error) {
		doc := make(map[string]any)
		if len(current) > 0 {
			if err := json.Unmarshal(current, &doc); err != nil {
				return nil, fmt.Errorf("decode %s: %w", path, err)
			}
		}
		return store.MergeFields(doc, fields), nil
	})
}

func (s *Store) Push(ctx context.Context, parent string, doc any) (string, error) {
	id := uuid.NewString()
	if err := s.Set(ctx, parent+"/"+id, doc); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) List(ctx context.Context, parent string) (map[string]json.RawMessage, error) {
	rows, err := s.pool.Query(ctx, `SELECT path, doc FROM nodes WHERE parent = $1`, parent)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", parent, err)
	}
	defer rows.Close()
	return collectChildren(rows, parent)
}

func (s *Store) Query(ctx context.Context, parent, field, equals string) (map[string]json.RawMessage, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT path, doc FROM nodes WHERE parent = $1 AND doc->>$2 = $3`,
		parent, field, equals)
	if err != nil {
		return nil, fmt.Errorf("query %s by %s: %w", parent, field, err)
	}
	defer rows.Close()
	return collectChildren(rows, parent)
}

func collectChildren(rows pgx.Rows, parent string) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage)
	for rows.Next() {
		var path string
		var raw []byte
		if err := rows.Scan(&path, &raw); err != nil {
			return nil, fmt.Errorf("scan child of %s: %w", parent, err)
		}
		out[strings.TrimPrefix(path, parent+"/")] = json.RawMessage(raw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate children of %s: %w", parent, err)
	}
	return out, nil
}

// Transaction locks the row at path, applies fn, and writes the result.
func (s *Store) Transaction(ctx context.Context, path string, fn func(current json.RawMessage) (any, error)) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var raw []byte
	err = tx.QueryRow(ctx, `SELECT doc FROM nodes WHERE path = $1 FOR UPDATE`, path).Scan(&raw)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("lock %s: %w", path, err)
	}

	next, err := fn(json.RawMessage(raw))
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO nodes (path, parent, doc) VALUES ($1, $2, $3)
		ON CONFLICT (path) DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()`,
		path, parentOf(path), encoded); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return tx.Commit(ctx)
}

func (s *Store) Delete(ctx context.Context, path string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM nodes WHERE path = $1`, path); err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	return nil
}
