// Package postgres keeps document collections in a single PostgreSQL table,
// one JSONB row per record.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ball-and-four/newwons/storage"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

const schema = `CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	doc_id TEXT NOT NULL,
	data JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (collection, doc_id)
)`

const (
	queryInsert  = `INSERT INTO documents (collection, doc_id, data) VALUES ($1, $2, $3)`
	queryList    = `SELECT doc_id, data FROM documents WHERE collection = $1 ORDER BY created_at, doc_id`
	queryGet     = `SELECT data FROM documents WHERE collection = $1 AND doc_id = $2`
	queryMerge   = `UPDATE documents SET data = data || $3::jsonb WHERE collection = $1 AND doc_id = $2`
	queryDelete  = `DELETE FROM documents WHERE collection = $1 AND doc_id = $2`
	queryUpsert  = `INSERT INTO documents (collection, doc_id, data) VALUES ($1, $2, $3) ON CONFLICT (collection, doc_id) DO UPDATE SET data = EXCLUDED.data`
	queryUpmerge = `INSERT INTO documents (collection, doc_id, data) VALUES ($1, $2, $3) ON CONFLICT (collection, doc_id) DO UPDATE SET data = documents.data || EXCLUDED.data`
)

// Store implements storage.DocumentStore on top of database/sql.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open connects to dsn with the lib/pq driver and verifies the connection.
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ping: %w", storage.ErrStorageUnavailable, err)
	}
	return New(db, logger), nil
}

// New wraps an existing connection pool.
func New(db *sql.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// Migrate creates the documents table if it does not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate documents table: %w", err)
	}
	s.logger.Info("documents table ready")
	return nil
}

// Close closes the underlying pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", storage.ErrStorageUnavailable, op, err)
}

func encode(fields storage.Fields) ([]byte, error) {
	if fields == nil {
		fields = storage.Fields{}
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrInvalidInput, err)
	}
	return data, nil
}

func decode(data []byte) (storage.Fields, error) {
	fields := storage.Fields{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return fields, nil
}

func (s *Store) Add(ctx context.Context, collection string, fields storage.Fields) (string, error) {
	if collection == "" {
		return "", storage.ErrInvalidInput
	}
	data, err := encode(fields)
	if err != nil {
		return "", err
	}
	handle := uuid.NewString()
	if _, err := s.db.ExecContext(ctx, queryInsert, collection, handle, data); err != nil {
		return "", unavailable("insert", err)
	}
	return handle, nil
}

func (s *Store) List(ctx context.Context, collection string) ([]storage.Document, error) {
	rows, err := s.db.QueryContext(ctx, queryList, collection)
	if err != nil {
		return nil, unavailable("list", err)
	}
	defer rows.Close()

	docs := []storage.Document{}
	for rows.Next() {
		var (
			handle string
			data   []byte
		)
		if err := rows.Scan(&handle, &data); err != nil {
			return nil, unavailable("scan", err)
		}
		fields, err := decode(data)
		if err != nil {
			s.logger.Warn("skipping undecodable document",
				"collection", collection,
				"handle", handle,
				"error", err)
			continue
		}
		docs = append(docs, storage.Document{Handle: handle, Fields: fields})
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list", err)
	}
	return docs, nil
}

func (s *Store) Get(ctx context.Context, collection, handle string) (*storage.Document, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, queryGet, collection, handle).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s/%s", storage.ErrNotFound, collection, handle)
	}
	if err != nil {
		return nil, unavailable("get", err)
	}
	fields, err := decode(data)
	if err != nil {
		return nil, err
	}
	return &storage.Document{Handle: handle, Fields: fields}, nil
}

func (s *Store) Update(ctx context.Context, collection, handle string, fields storage.Fields) error {
	data, err := encode(fields)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, queryMerge, collection, handle, data)
	if err != nil {
		return unavailable("update", err)
	}
	return expectRow(res, collection, handle)
}

func (s *Store) Set(ctx context.Context, collection, handle string, fields storage.Fields, merge bool) error {
	if collection == "" || handle == "" {
		return storage.ErrInvalidInput
	}
	data, err := encode(fields)
	if err != nil {
		return err
	}
	query := queryUpsert
	if merge {
		query = queryUpmerge
	}
	if _, err := s.db.ExecContext(ctx, query, collection, handle, data); err != nil {
		return unavailable("set", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, handle string) error {
	res, err := s.db.ExecContext(ctx, queryDelete, collection, handle)
	if err != nil {
		return unavailable("delete", err)
	}
	return expectRow(res, collection, handle)
}

func expectRow(res sql.Result, collection, handle string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable("rows affected", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s/%s", storage.ErrNotFound, collection, handle)
	}
	return nil
}
