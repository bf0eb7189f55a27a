// Package store implements the SQLite storage gateway: connection pool,
// schema, parameterized query execution with debug timing, transactional
// scoping, and the acting-user context used for row-level authorization.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Options bound the connection pool.
type Options struct {
	MaxOpenConns  int
	MaxIdleConns  int
	BusyTimeoutMS int
}

// DefaultOptions returns pool bounds suitable for a single-process server.
func DefaultOptions() Options {
	return Options{MaxOpenConns: 10, MaxIdleConns: 2, BusyTimeoutMS: 5000}
}

// Store wraps a sql.DB with gateway-specific operations.
type Store struct {
	conn   *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the SQLite database, applies the schema, and
// configures the connection pool.
func Open(dsn string, opts Options, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := sql.Open("sqlite3",
		fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_foreign_keys=on", dsn, opts.BusyTimeoutMS))
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	conn.SetMaxOpenConns(opts.MaxOpenConns)
	conn.SetMaxIdleConns(opts.MaxIdleConns)
	conn.SetConnMaxIdleTime(5 * time.Minute)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply fts schema: %w", err)
	}
	return &Store{conn: conn, logger: logger}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Ping verifies the store is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

// Stats reports connection pool statistics for the health surface.
func (s *Store) Stats() sql.DBStats {
	return s.conn.Stats()
}

// Exec runs a parameterized statement outside a transaction.
func (s *Store) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	defer s.timed("exec", query)()
	return s.conn.ExecContext(ctx, query, args...)
}

// Query runs a parameterized query outside a transaction.
func (s *Store) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	defer s.timed("query", query)()
	return s.conn.QueryContext(ctx, query, args...)
}

// QueryRow runs a single-row query outside a transaction.
func (s *Store) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	defer s.timed("query_row", query)()
	return s.conn.QueryRowContext(ctx, query, args...)
}

// timed logs query duration at debug granularity.
func (s *Store) timed(op, query string) func() {
	start := time.Now()
	return func() {
		s.logger.Debug("store: query executed",
			slog.String("op", op),
			slog.String("query", compact(query)),
			slog.Duration("elapsed", time.Since(start)))
	}
}

// compact trims a SQL string for log output.
func compact(q string) string {
	const max = 120
	out := make([]byte, 0, len(q))
	space := true
	for i := 0; i < len(q); i++ {
		c := q[i]
		if c == '\n' || c == '\t' || c == ' ' {
			if !space {
				out = append(out, ' ')
				space = true
			}
			continue
		}
		space = false
		out = append(out, c)
	}
	if len(out) > max {
		out = out[:max]
	}
	return string(out)
}
