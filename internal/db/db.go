package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a row does not exist
var ErrNotFound = errors.New("not found")

// NoGuard disables the version guard on updates
const NoGuard int64 = -1

// execer is satisfied by *sql.DB and *sql.Tx
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB wraps the SQLite database connection
type DB struct {
	*sql.DB
	queries

	path string

	mu          sync.Mutex
	subscribers map[int]func()
	nextSub     int
}

// Tx is a store bound to an open transaction
type Tx struct {
	queries
	tx *sql.Tx
}

// DefaultDBPath returns the default database path (~/.ironnotes/notes.db)
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".ironnotes", "notes.db"), nil
}

// Open opens or creates the SQLite database
func Open(dbPath string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	sqlDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps PRAGMAs in effect and serializes writers.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA recursive_triggers = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	db := &DB{
		DB:          sqlDB,
		queries:     queries{q: sqlDB},
		path:        dbPath,
		subscribers: make(map[int]func()),
	}

	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

// OpenDefault opens the database at the default path
func OpenDefault() (*DB, error) {
	path, err := DefaultDBPath()
	if err != nil {
		return nil, err
	}
	return Open(path)
}

// Path returns the database file path
func (db *DB) Path() string {
	return db.path
}

// WithTx runs fn inside a transaction, committing when fn returns nil
func (db *DB) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(&Tx{queries: queries{q: sqlTx}, tx: sqlTx}); err != nil {
		sqlTx.Rollback()
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Subscribe registers fn to run on every NotifyChange. The returned func unregisters it.
func (db *DB) Subscribe(fn func()) func() {
	db.mu.Lock()
	defer db.mu.Unlock()

	id := db.nextSub
	db.nextSub++
	db.subscribers[id] = fn

	return func() {
		db.mu.Lock()
		delete(db.subscribers, id)
		db.mu.Unlock()
	}
}

// NotifyChange tells subscribers that rows changed
func (db *DB) NotifyChange() {
	db.mu.Lock()
	fns := make([]func(), 0, len(db.subscribers))
	for _, fn := range db.subscribers {
		fns = append(fns, fn)
	}
	db.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// NowMillis returns the current time in milliseconds since the epoch
func NowMillis() int64 {
	return time.Now().UnixMilli()
}
