// Package dolt connects to a running dolt sql-server (MySQL protocol) so
// several machines can share one versioned issue database.
package dolt

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-sql-driver/mysql"

	"github.com/tracklog/tracklog/internal/storage/sqlstore"
)

// Defaults match a stock `dolt sql-server`.
const (
	DefaultHost     = "127.0.0.1"
	DefaultPort     = 3307
	DefaultUser     = "root"
	DefaultDatabase = "tracklog"

	// serverRetryMaxElapsed bounds the initial connection attempts while the
	// server is starting up.
	serverRetryMaxElapsed = 30 * time.Second
)

// MySQL server error numbers worth retrying.
const (
	errLockDeadlock    = 1213
	errLockWaitTimeout = 1205
)

// Config locates the server.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

func (c Config) withDefaults() Config {
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.User == "" {
		c.User = DefaultUser
	}
	if c.Database == "" {
		c.Database = DefaultDatabase
	}
	return c
}

// DSN renders the go-sql-driver/mysql connection string. An empty database
// connects without selecting one.
func (c Config) DSN(database string) string {
	mc := mysql.NewConfig()
	mc.User = c.User
	mc.Passwd = c.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	mc.DBName = database
	mc.ParseTime = true
	mc.MultiStatements = false
	return mc.FormatDSN()
}

// String describes the server without credentials.
func (c Config) String() string {
	return fmt.Sprintf("dolt://%s@%s/%s", c.User, net.JoinHostPort(c.Host, strconv.Itoa(c.Port)), c.Database)
}

// Dialect is the MySQL flavour of the shared SQL store.
var Dialect = &sqlstore.Dialect{
	Name:      "dolt",
	Schema:    sqlstore.MySQLSchema,
	Begin:     "START TRANSACTION",
	Retryable: isRetryableError,
}

// isRetryableError returns true if the error is a transient lock or
// connection error that should be retried.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, mysql.ErrInvalidConn) {
		return true
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == errLockDeadlock || me.Number == errLockWaitTimeout
	}
	errStr := strings.ToLower(err.Error())
	for _, transient := range []string{
		"driver: bad connection",
		"invalid connection",
		"broken pipe",
		"connection reset",
		"connection refused",
		"database is read only",
	} {
		if strings.Contains(errStr, transient) {
			return true
		}
	}
	return false
}

func newServerRetryBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = serverRetryMaxElapsed
	return bo
}

// withRetry retries op on transient server errors.
func withRetry(ctx context.Context, op func() error) error {
	return backoff.Retry(func() error {
		err := op()
		if err != nil && isRetryableError(err) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}, backoff.WithContext(newServerRetryBackoff(), ctx))
}

// New connects to the server, creates the database if needed and applies
// the schema.
func New(ctx context.Context, cfg Config, opts ...sqlstore.Option) (*sqlstore.Store, error) {
	cfg = cfg.withDefaults()

	if err := ensureDatabase(ctx, cfg); err != nil {
		return nil, err
	}

	db, err := sql.Open("mysql", cfg.DSN(cfg.Database))
	if err != nil {
		return nil, fmt.Errorf("failed to open dolt connection: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := withRetry(ctx, func() error { return db.PingContext(ctx) }); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to reach dolt server %s: %w", cfg, err)
	}

	store, err := sqlstore.New(ctx, db, Dialect, cfg.String(), opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func ensureDatabase(ctx context.Context, cfg Config) error {
	db, err := sql.Open("mysql", cfg.DSN(""))
	if err != nil {
		return fmt.Errorf("failed to open dolt connection: %w", err)
	}
	defer func() { _ = db.Close() }()

	// Identifier quoting: backticks doubled inside the name.
	name := "`" + strings.ReplaceAll(cfg.Database, "`", "``") + "`"
	err = withRetry(ctx, func() error {
		_, err := db.ExecContext(ctx, "CREATE DATABASE IF NOT EXISTS "+name)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to create database %s: %w", cfg.Database, err)
	}
	return nil
}
