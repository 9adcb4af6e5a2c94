package iotanomaly

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	// SQLite driver using pure Go implementation
	_ "modernc.org/sqlite"
)

// SQLiteBackendConfig configures the SQLite storage backend.
type SQLiteBackendConfig struct {
	// Path to the SQLite database file
	Path string

	// JournalMode sets the SQLite journal mode (WAL, DELETE, TRUNCATE, etc.)
	JournalMode string

	// BusyTimeout is the timeout for acquiring locks in milliseconds
	BusyTimeout int

	// MaxConnections is the max number of database connections
	MaxConnections int
}

// DefaultSQLiteBackendConfig returns default configuration.
func DefaultSQLiteBackendConfig() SQLiteBackendConfig {
	return SQLiteBackendConfig{
		Path:           "runs.db",
		JournalMode:    "WAL",
		BusyTimeout:    5000,
		MaxConnections: 4,
	}
}

// SQLiteBackend implements StorageBackend with a single blob table, so stored runs
// can be inspected with standard SQLite tools.
type SQLiteBackend struct {
	db     *sql.DB
	config SQLiteBackendConfig
	mu     sync.RWMutex
	closed bool

	insertStmt *sql.Stmt
	selectStmt *sql.Stmt
	deleteStmt *sql.Stmt
	existsStmt *sql.Stmt
}

// NewSQLiteBackend opens or creates the database at config.Path.
func NewSQLiteBackend(config SQLiteBackendConfig) (*SQLiteBackend, error) {
	def := DefaultSQLiteBackendConfig()
	if config.Path == "" {
		config.Path = def.Path
	}
	if config.JournalMode == "" {
		config.JournalMode = def.JournalMode
	}
	if config.BusyTimeout <= 0 {
		config.BusyTimeout = def.BusyTimeout
	}
	if config.MaxConnections <= 0 {
		config.MaxConnections = def.MaxConnections
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(%s)&_pragma=busy_timeout(%d)",
		config.Path, config.JournalMode, config.BusyTimeout)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	db.SetMaxOpenConns(config.MaxConnections)

	backend := &SQLiteBackend{db: db, config: config}
	if err := backend.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := backend.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}
	return backend, nil
}

func (s *SQLiteBackend) initSchema() error {
	const schema = `
		CREATE TABLE IF NOT EXISTS blobs (
			key TEXT PRIMARY KEY,
			data BLOB NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			size INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_blobs_created ON blobs(created_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (s *SQLiteBackend) prepareStatements() error {
	var err error

	s.insertStmt, err = s.db.Prepare(`
		INSERT INTO blobs (key, data, created_at, updated_at, size)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at, size = excluded.size
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert statement: %w", err)
	}
	if s.selectStmt, err = s.db.Prepare(`SELECT data FROM blobs WHERE key = ?`); err != nil {
		return fmt.Errorf("failed to prepare select statement: %w", err)
	}
	if s.deleteStmt, err = s.db.Prepare(`DELETE FROM blobs WHERE key = ?`); err != nil {
		return fmt.Errorf("failed to prepare delete statement: %w", err)
	}
	if s.existsStmt, err = s.db.Prepare(`SELECT 1 FROM blobs WHERE key = ? LIMIT 1`); err != nil {
		return fmt.Errorf("failed to prepare exists statement: %w", err)
	}
	return nil
}

func (s *SQLiteBackend) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Read reads a blob from storage.
func (s *SQLiteBackend) Read(ctx context.Context, key string) ([]byte, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	var data []byte
	err := s.selectStmt.QueryRowContext(ctx, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", key, os.ErrNotExist)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read blob: %w", err)
	}
	return data, nil
}

// Write inserts or replaces a blob, keeping its original creation time.
func (s *SQLiteBackend) Write(ctx context.Context, key string, data []byte) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	now := time.Now().UnixNano()
	if _, err := s.insertStmt.ExecContext(ctx, key, data, now, now, len(data)); err != nil {
		return fmt.Errorf("failed to write blob: %w", err)
	}
	return nil
}

// Delete removes a blob from storage.
func (s *SQLiteBackend) Delete(ctx context.Context, key string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if _, err := s.deleteStmt.ExecContext(ctx, key); err != nil {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}

// List returns all keys matching a prefix, sorted.
func (s *SQLiteBackend) List(ctx context.Context, prefix string) ([]string, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM blobs WHERE key LIKE ? ESCAPE '\' ORDER BY key`, likePrefix(prefix))
	if err != nil {
		return nil, fmt.Errorf("failed to list blobs: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// Exists checks if a blob exists.
func (s *SQLiteBackend) Exists(ctx context.Context, key string) (bool, error) {
	if err := s.checkOpen(); err != nil {
		return false, err
	}
	var exists int
	err := s.existsStmt.QueryRowContext(ctx, key).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check existence: %w", err)
	}
	return true, nil
}

// Close releases any resources.
func (s *SQLiteBackend) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	for _, stmt := range []*sql.Stmt{s.insertStmt, s.selectStmt, s.deleteStmt, s.existsStmt} {
		if stmt != nil {
			stmt.Close()
		}
	}
	return s.db.Close()
}

func likePrefix(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix) + "%"
}
