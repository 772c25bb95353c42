// Package store persists console records in SQLite. Every record is kept as a
// JSON document in a data column, next to the few columns queries filter on.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/autopeer-io/syncpeer/internal/console/core"
	"github.com/autopeer-io/syncpeer/pkg/log"
	"github.com/autopeer-io/syncpeer/pkg/options"
)

var _ core.Repository = (*SQLiteStore)(nil)

// SQLiteStore implements core.Repository.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens the database described by opts and applies the schema.
func Open(ctx context.Context, opts *options.SQLiteOptions) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d", opts.Path, opts.BusyTimeoutMS)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection serialises writers and keeps :memory: databases whole.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	log.Info("Record store opened", "path", opts.Path)
	return s, nil
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS agents (
		id TEXT PRIMARY KEY,
		ip_address TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		data TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tests (
		id TEXT PRIMARY KEY,
		created_at INTEGER NOT NULL,
		data TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS executions (
		id TEXT PRIMARY KEY,
		config_id TEXT NOT NULL,
		status TEXT NOT NULL,
		start_time INTEGER NOT NULL,
		data TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_agents_ip ON agents(ip_address);
	CREATE INDEX IF NOT EXISTS idx_executions_status ON executions(status);
	CREATE INDEX IF NOT EXISTS idx_executions_start ON executions(start_time);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Agent() core.AgentRepository {
	return &agentRepository{db: s.db}
}

func (s *SQLiteStore) Test() core.TestRepository {
	return &testRepository{db: s.db}
}

func (s *SQLiteStore) Execution() core.ExecutionRepository {
	return &executionRepository{db: s.db}
}

// getOne scans the data column of the single row returned by query into v.
func getOne(ctx context.Context, db *sql.DB, kind string, v any, query string, args ...any) error {
	var data string
	err := db.QueryRowContext(ctx, query, args...).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", kind, core.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("query %s: %w", kind, err)
	}
	if err := json.Unmarshal([]byte(data), v); err != nil {
		return fmt.Errorf("unmarshal %s: %w", kind, err)
	}
	return nil
}

// list decodes the data column of every row.
func list[T any](ctx context.Context, db *sql.DB, kind string, query string, args ...any) ([]*T, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	defer rows.Close()

	results := []*T{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		item := new(T)
		if err := json.Unmarshal([]byte(data), item); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", kind, err)
		}
		results = append(results, item)
	}
	return results, rows.Err()
}

// insert runs an INSERT ... ON CONFLICT DO NOTHING statement and maps an
// ignored row to ErrConflict.
func insert(ctx context.Context, db *sql.DB, kind string, query string, args ...any) error {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("insert %s: %w", kind, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%s: %w", kind, core.ErrConflict)
	}
	return nil
}

// update runs an UPDATE statement and maps a missing row to ErrNotFound.
func update(ctx context.Context, db *sql.DB, kind string, query string, args ...any) error {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", kind, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%s: %w", kind, core.ErrNotFound)
	}
	return nil
}

func marshal(kind string, v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", kind, err)
	}
	return string(data), nil
}
