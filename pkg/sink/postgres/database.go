// Package postgres implements the relational-storage sink. Events map to
// eagilog.* stored procedure calls; while the database connection is down
// every stream keeps its own FIFO backlog, which is drained in order once
// the factory reconnects.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5"
	_ "github.com/lib/pq"
)

// Config holds the SQL sink settings.
type Config struct {
	// ConnString is a postgres:// connection string.
	ConnString string
	// MigrationsPath is the golang-migrate source URL for the eagilog
	// schema, e.g. "file://migrations".
	MigrationsPath string
	// BatchSize is the interval aggregation threshold.
	BatchSize int
	// ConnectTimeout bounds a single connect or reconnect attempt.
	ConnectTimeout time.Duration
	// BackoffInitial and BackoffMax bound the reconnect backoff window.
	BackoffInitial time.Duration
	BackoffMax     time.Duration
}

// DefaultConfig returns the sink defaults: the conventional local eagilog
// database, 1000-sample batches and a 1s..1min backoff.
func DefaultConfig() Config {
	return Config{
		ConnString:     "postgres://eagilog@localhost/eagilog",
		MigrationsPath: "file://migrations",
		BatchSize:      1000,
		ConnectTimeout: 10 * time.Second,
		BackoffInitial: time.Second,
		BackoffMax:     time.Minute,
	}
}

// dbConn is the factory's view of the database connection: textual
// parameterized calls, an explicit health state and a reconnect operation.
type dbConn interface {
	// IsOK reports whether the connection is believed healthy.
	IsOK() bool
	// Exec runs a statement; false means it did not take effect.
	Exec(ctx context.Context, sql string, args ...string) bool
	// QueryValue runs a single-value query and returns the textual result.
	QueryValue(ctx context.Context, sql string, args ...string) (string, bool)
	// Reconnect drops the old connection and dials again.
	Reconnect(ctx context.Context) bool
	Close(ctx context.Context) error
}

// pgxConn implements dbConn on a single *pgx.Conn. A pool would hide the
// connection health the backlog protocol is built around, so one mutable
// connection is used, matching the single-threaded sink model.
type pgxConn struct {
	connString string
	timeout    time.Duration
	conn       *pgx.Conn
	healthy    bool
}

func newPgxConn(ctx context.Context, connString string, timeout time.Duration) *pgxConn {
	c := &pgxConn{connString: connString, timeout: timeout}
	c.Reconnect(ctx)
	return c
}

func (c *pgxConn) IsOK() bool {
	return c.healthy && c.conn != nil && !c.conn.IsClosed()
}

func (c *pgxConn) Reconnect(ctx context.Context) bool {
	if c.conn != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		_ = c.conn.Close(closeCtx)
		cancel()
		c.conn = nil
	}
	dialCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	conn, err := pgx.Connect(dialCtx, c.connString)
	if err != nil {
		c.healthy = false
		return false
	}
	c.conn = conn
	c.healthy = true
	return true
}

func (c *pgxConn) Exec(ctx context.Context, query string, args ...string) bool {
	if !c.IsOK() {
		return false
	}
	_, err := c.conn.Exec(ctx, query, textArgs(args)...)
	if err != nil {
		c.checkHealth(ctx)
		return false
	}
	return true
}

func (c *pgxConn) QueryValue(ctx context.Context, query string, args ...string) (string, bool) {
	if !c.IsOK() {
		return "", false
	}
	var value string
	if err := c.conn.QueryRow(ctx, query, textArgs(args)...).Scan(&value); err != nil {
		c.checkHealth(ctx)
		return "", false
	}
	return value, true
}

// checkHealth decides after a failed statement whether the connection
// itself is gone. A statement can fail on a healthy connection (constraint
// violation); only a failed ping demotes the connection.
func (c *pgxConn) checkHealth(ctx context.Context) {
	if c.conn == nil || c.conn.IsClosed() {
		c.healthy = false
		return
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.conn.Ping(pingCtx); err != nil {
		c.healthy = false
	}
}

func (c *pgxConn) Close(ctx context.Context) error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close(ctx)
	c.conn = nil
	c.healthy = false
	return err
}

func textArgs(args []string) []any {
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = a
	}
	return out
}

// MigrateToLatest applies all pending eagilog schema migrations. It uses a
// dedicated database/sql connection so a broken sink connection does not
// block schema management.
func MigrateToLatest(cfg Config) error {
	db, err := sql.Open("postgres", cfg.ConnString)
	if err != nil {
		return fmt.Errorf("failed to open migration connection: %w", err)
	}
	defer db.Close()

	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(cfg.MigrationsPath, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}
