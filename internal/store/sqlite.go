package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

// SQLiteBackend stores all collections in one sqlite file so that separate
// processes on the same machine share state.
type SQLiteBackend struct {
	db     *sql.DB
	path   string
	now    func() time.Time
	logger *zerolog.Logger
}

func NewSQLiteBackend(path string, logger *zerolog.Logger) (*SQLiteBackend, error) {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection per process; cross-process writers are serialized by sqlite locks.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("sqlite store initialized")
	return &SQLiteBackend{db: db, path: path, now: time.Now, logger: logger}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS records (
            collection TEXT NOT NULL,
            id TEXT NOT NULL,
            version INTEGER NOT NULL,
            data BLOB NOT NULL,
            updated_at INTEGER NOT NULL,
            PRIMARY KEY (collection, id)
        )`,
		`CREATE INDEX IF NOT EXISTS idx_records_updated_at ON records(collection, updated_at)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

// Path returns the sqlite file backing the store.
func (s *SQLiteBackend) Path() string { return s.path }

func (s *SQLiteBackend) Load(ctx context.Context, collection string) (map[string]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, version, data, updated_at FROM records WHERE collection = ?`, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to load collection: %w", err)
	}
	defer rows.Close()

	out := make(map[string]Record)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out[rec.ID] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQLiteBackend) Replace(ctx context.Context, collection string, records map[string]Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	versions := make(map[string]int64)
	rows, err := tx.QueryContext(ctx, `SELECT id, version FROM records WHERE collection = ?`, collection)
	if err != nil {
		return fmt.Errorf("failed to read versions: %w", err)
	}
	for rows.Next() {
		var id string
		var version int64
		if err := rows.Scan(&id, &version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan version: %w", err)
		}
		versions[id] = version
	}
	rows.Close()

	if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE collection = ?`, collection); err != nil {
		return fmt.Errorf("failed to clear collection: %w", err)
	}

	now := s.now().UnixNano()
	for id, rec := range records {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO records (collection, id, version, data, updated_at) VALUES (?, ?, ?, ?, ?)`,
			collection, id, versions[id]+1, rec.Data, now)
		if err != nil {
			return fmt.Errorf("failed to insert record %s: %w", id, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteBackend) Get(ctx context.Context, collection, id string) (Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, version, data, updated_at FROM records WHERE collection = ? AND id = ?`, collection, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	return rec, err
}

func (s *SQLiteBackend) CompareAndSwap(ctx context.Context, collection string, rec Record, expectedVersion int64) (Record, error) {
	now := s.now()
	stored := Record{ID: rec.ID, Version: expectedVersion + 1, Data: cloneBytes(rec.Data), UpdatedAt: now}

	if expectedVersion == 0 {
		result, err := s.db.ExecContext(ctx,
			`INSERT INTO records (collection, id, version, data, updated_at) VALUES (?, ?, 1, ?, ?)
             ON CONFLICT(collection, id) DO NOTHING`,
			collection, rec.ID, rec.Data, now.UnixNano())
		if err != nil {
			return Record{}, fmt.Errorf("failed to insert record: %w", err)
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			return Record{}, ErrConflict
		}
		return stored, nil
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE records SET data = ?, version = version + 1, updated_at = ?
         WHERE collection = ? AND id = ? AND version = ?`,
		rec.Data, now.UnixNano(), collection, rec.ID, expectedVersion)
	if err != nil {
		return Record{}, fmt.Errorf("failed to update record: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		if _, err := s.Get(ctx, collection, rec.ID); errors.Is(err, ErrNotFound) {
			return Record{}, ErrNotFound
		}
		return Record{}, ErrVersionConflict
	}
	return stored, nil
}

func (s *SQLiteBackend) Delete(ctx context.Context, collection, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE collection = ? AND id = ?`, collection, id)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return nil
}

func (s *SQLiteBackend) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteBackend) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (Record, error) {
	var rec Record
	var updatedAt int64
	if err := row.Scan(&rec.ID, &rec.Version, &rec.Data, &updatedAt); err != nil {
		return Record{}, err
	}
	rec.UpdatedAt = time.Unix(0, updatedAt)
	return rec, nil
}
