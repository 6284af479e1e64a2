// Package postgres implements the PostgreSQL persistence layer for the
// bot's settings store: key/value settings, admins and their audit
// trail, the API credential rotation pool, country configuration,
// managed accounts, and daily topic records.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrConnectionClosed indicates the connection pool is closed.
	ErrConnectionClosed = errors.New("postgres: connection pool is closed")

	// ErrTransactionFailed indicates a transaction failure.
	ErrTransactionFailed = errors.New("postgres: transaction failed")

	// ErrNoRows is returned when a query returns no rows.
	ErrNoRows = pgx.ErrNoRows
)

// ══════════════════════════════════════════════════════════════════════════════
// CONNECTION POOL
// ══════════════════════════════════════════════════════════════════════════════

// PoolOptions tune the pgx connection pool.
type PoolOptions struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// DefaultPoolOptions returns sensible pool defaults.
func DefaultPoolOptions() PoolOptions {
	return PoolOptions{
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}
}

// Connection represents a PostgreSQL connection pool.
type Connection struct {
	pool   *pgxpool.Pool
	closed bool
	mu     sync.RWMutex
}

// NewConnectionFromURL creates a connection pool from a database URL.
func NewConnectionFromURL(ctx context.Context, databaseURL string, opts PoolOptions) (*Connection, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to parse database URL: %w", err)
	}

	if opts.MaxConns > 0 {
		poolConfig.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		poolConfig.MinConns = opts.MinConns
	}
	if opts.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = opts.MaxConnLifetime
	}
	if opts.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = opts.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to create connection pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: failed to ping database: %w", err)
	}

	return &Connection{pool: pool}, nil
}

// Pool returns the underlying connection pool.
func (c *Connection) Pool() *pgxpool.Pool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pool
}

// Close closes the connection pool.
func (c *Connection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.closed = true
	c.pool.Close()
}

// Ping checks if the database connection is alive.
func (c *Connection) Ping(ctx context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return ErrConnectionClosed
	}

	return c.pool.Ping(ctx)
}

// ══════════════════════════════════════════════════════════════════════════════
// QUERY HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// Querier is an interface that both *pgxpool.Pool and pgx.Tx implement.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// Exec executes a query that doesn't return rows.
func (c *Connection) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return pgconn.CommandTag{}, ErrConnectionClosed
	}

	return c.pool.Exec(ctx, sql, args...)
}

// Query executes a query that returns rows.
func (c *Connection) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, ErrConnectionClosed
	}

	return c.pool.Query(ctx, sql, args...)
}

// QueryRow executes a query that returns a single row.
func (c *Connection) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.pool.QueryRow(ctx, sql, args...)
}

// WithTx executes a function within a transaction.
// The transaction is committed if the function returns nil, rolled back otherwise.
func (c *Connection) WithTx(ctx context.Context, fn func(pgx.Tx) error) error {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return ErrConnectionClosed
	}
	tx, err := c.pool.Begin(ctx)
	c.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransactionFailed, err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("tx error: %v, rollback error: %w", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit error: %w", err)
	}

	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// IsUniqueViolation checks if the error is a unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

// IsNoRows checks if the error is a "no rows" error.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
