// Package postgres implements [resultstore.Store] on PostgreSQL.
//
// Each block is one row keyed by (run_id, block_id). The full
// [types.GenerationResult] is kept as JSONB; offset, length, best index and
// error are duplicated into columns so unmatched blocks can be queried
// without decoding the document.
package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MrWong99/cadence/internal/resultstore"
	"github.com/MrWong99/cadence/pkg/types"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is bumped whenever schema.sql changes incompatibly.
const schemaVersion = 1

// ErrSchemaMismatch is returned by [Store.Migrate] when the database was
// created by a different schema version.
var ErrSchemaMismatch = errors.New("postgres: schema version mismatch")

// DB is the database interface used by [Store]. Both *pgxpool.Pool and
// *pgx.Conn satisfy it.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store is a [resultstore.Store] backed by PostgreSQL.
type Store struct {
	db   DB
	pool *pgxpool.Pool
}

var _ resultstore.Store = (*Store)(nil)

// New wraps an existing connection or pool. The caller runs [Store.Migrate].
func New(db DB) *Store {
	return &Store{db: db}
}

// Open connects to dsn, verifies the connection and migrates the schema.
// Close releases the pool.
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	s := &Store{db: pool, pool: pool}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the pool opened by [Open]. It is a no-op for stores built
// with [New].
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping reports whether the database answers. It backs the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	var one int
	if err := s.db.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("postgres: ping: %w", err)
	}
	return nil
}

// Migrate creates the tables if needed and checks the recorded schema
// version.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("postgres: create schema: %w", err)
	}

	var version int
	err := s.db.QueryRow(ctx, "SELECT version FROM cadence_schema_version LIMIT 1").Scan(&version)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		if _, err := s.db.Exec(ctx, "INSERT INTO cadence_schema_version (version) VALUES ($1)", schemaVersion); err != nil {
			return fmt.Errorf("postgres: record schema version: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("postgres: read schema version: %w", err)
	case version != schemaVersion:
		return fmt.Errorf("%w: database has version %d, expected %d", ErrSchemaMismatch, version, schemaVersion)
	}
	return nil
}

// Save implements [resultstore.Store].
func (s *Store) Save(ctx context.Context, runID string, res types.GenerationResult) error {
	if runID == "" {
		return fmt.Errorf("postgres: empty run id")
	}
	doc, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("postgres: marshal result: %w", err)
	}

	const query = `
		INSERT INTO generation_results (
			run_id, block_id, offset_ms, length_ms, best, attempts, error, result
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (run_id, block_id) DO UPDATE SET
			offset_ms = EXCLUDED.offset_ms,
			length_ms = EXCLUDED.length_ms,
			best = EXCLUDED.best,
			attempts = EXCLUDED.attempts,
			error = EXCLUDED.error,
			result = EXCLUDED.result,
			updated_at = now()`

	_, err = s.db.Exec(ctx, query,
		runID, res.BlockID, res.Block.Offset.Milliseconds(), res.Block.Length.Milliseconds(),
		res.Best, res.Attempts, res.Err, doc,
	)
	if err != nil {
		return fmt.Errorf("postgres: save run %q block %d: %w", runID, res.BlockID, err)
	}
	return nil
}

// Get implements [resultstore.Store].
func (s *Store) Get(ctx context.Context, runID string, blockID int) (resultstore.Record, error) {
	const query = `
		SELECT run_id, offset_ms, length_ms, result, updated_at
		FROM generation_results
		WHERE run_id = $1 AND block_id = $2`

	rec, err := scanRecord(s.db.QueryRow(ctx, query, runID, blockID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return resultstore.Record{}, fmt.Errorf("%w: run %q block %d", resultstore.ErrNotFound, runID, blockID)
		}
		return resultstore.Record{}, fmt.Errorf("postgres: get run %q block %d: %w", runID, blockID, err)
	}
	return rec, nil
}

// List implements [resultstore.Store].
func (s *Store) List(ctx context.Context, runID string) ([]resultstore.Record, error) {
	const query = `
		SELECT run_id, offset_ms, length_ms, result, updated_at
		FROM generation_results
		WHERE run_id = $1
		ORDER BY block_id`

	rows, err := s.db.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list run %q: %w", runID, err)
	}
	defer rows.Close()

	out := []resultstore.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: list run %q: %w", runID, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list run %q: %w", runID, err)
	}
	return out, nil
}

// scanRecord decodes one row. Offset and length are not part of the JSON
// document and are restored from their columns.
func scanRecord(row pgx.Row) (resultstore.Record, error) {
	var (
		rec             resultstore.Record
		offsetMS, lenMS int64
		doc             []byte
		updatedAt       time.Time
	)
	if err := row.Scan(&rec.RunID, &offsetMS, &lenMS, &doc, &updatedAt); err != nil {
		return resultstore.Record{}, err
	}
	if err := json.Unmarshal(doc, &rec.Result); err != nil {
		return resultstore.Record{}, fmt.Errorf("decode result: %w", err)
	}
	rec.Result.Block.Offset = time.Duration(offsetMS) * time.Millisecond
	rec.Result.Block.Length = time.Duration(lenMS) * time.Millisecond
	rec.UpdatedAt = updatedAt
	return rec, nil
}
