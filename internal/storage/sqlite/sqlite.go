// Package sqlite opens the SQLite backend (pure Go, via ncruces/go-sqlite3
// running on wazero).
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	sqlite3 "github.com/ncruces/go-sqlite3"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/tetratelabs/wazero"

	"github.com/tracklog/tracklog/internal/storage/sqlstore"
)

// Dialect is the SQLite flavour of the shared SQL store.
var Dialect = &sqlstore.Dialect{
	Name:   "sqlite",
	Schema: sqlstore.SQLiteSchema,
	// IMMEDIATE takes the write lock up front so two writers never
	// deadlock upgrading from a read lock.
	Begin:     "BEGIN IMMEDIATE",
	Retryable: IsBusyError,
	OnClose: func(db *sql.DB) {
		// Flush the WAL so writes are not stranded between CLI invocations.
		_, _ = db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	},
}

// IsBusyError reports whether err is SQLITE_BUSY or SQLITE_LOCKED.
func IsBusyError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, sqlite3.BUSY) || errors.Is(err, sqlite3.LOCKED) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}

// setupWASMCache configures WASM compilation caching to reduce SQLite startup time.
// Returns the cache directory path (empty string if using in-memory cache).
//
// The cache lives under os.UserCacheDir()/tracklog/wasm and is keyed by
// wazero version, so stale entries are harmless.
func setupWASMCache() string {
	cacheDir := ""
	if userCache, err := os.UserCacheDir(); err == nil {
		cacheDir = filepath.Join(userCache, "tracklog", "wasm")
	}

	var cache wazero.CompilationCache
	if cacheDir != "" {
		if c, err := wazero.NewCompilationCacheWithDir(cacheDir); err == nil {
			cache = c
		}
	}
	if cache == nil {
		cache = wazero.NewCompilationCache()
		cacheDir = ""
	}

	sqlite3.RuntimeConfig = wazero.NewRuntimeConfig().WithCompilationCache(cache)
	return cacheDir
}

func init() {
	_ = setupWASMCache()
}

// New opens (creating if needed) the database at path. ":memory:" opens a
// private in-memory database on a single connection.
func New(ctx context.Context, path string, opts ...sqlstore.Option) (*sqlstore.Store, error) {
	const pragmas = "_pragma=foreign_keys(ON)&_pragma=busy_timeout(30000)"

	isInMemory := path == ":memory:"
	var connStr string
	if isInMemory {
		connStr = "file::memory:?" + pragmas
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		connStr = "file:" + path + "?" + pragmas
	}

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if isInMemory {
		// Each connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		// WAL allows one writer and many readers; cap the pool so writers
		// queue on busy_timeout instead of piling up goroutines.
		db.SetMaxOpenConns(runtime.NumCPU() + 1)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(0)
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	absPath := path
	if !isInMemory {
		if absPath, err = filepath.Abs(path); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to get absolute path: %w", err)
		}
	}

	store, err := sqlstore.New(ctx, db, Dialect, absPath, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}
