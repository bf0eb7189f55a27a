package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Tx is a transaction-scoped handle. The acting user is established when
// the transaction begins and never inherited from prior connection state,
// so row-level filters always evaluate against the right identity.
type Tx struct {
	tx      *sql.Tx
	ctx     context.Context
	actorID string
	logger  *slog.Logger
}

// ActorID returns the acting user for this transaction. Empty means the
// operation runs unauthenticated (auth disabled).
func (t *Tx) ActorID() string { return t.actorID }

// Exec runs a parameterized statement inside the transaction.
func (t *Tx) Exec(query string, args ...any) (sql.Result, error) {
	defer t.timed("exec", query)()
	return t.tx.ExecContext(t.ctx, query, args...)
}

// Query runs a parameterized query inside the transaction.
func (t *Tx) Query(query string, args ...any) (*sql.Rows, error) {
	defer t.timed("query", query)()
	return t.tx.QueryContext(t.ctx, query, args...)
}

// QueryRow runs a single-row query inside the transaction.
func (t *Tx) QueryRow(query string, args ...any) *sql.Row {
	defer t.timed("query_row", query)()
	return t.tx.QueryRowContext(t.ctx, query, args...)
}

func (t *Tx) timed(op, query string) func() {
	start := time.Now()
	return func() {
		t.logger.Debug("store: tx query executed",
			slog.String("op", op),
			slog.String("query", compact(query)),
			slog.String("actor", t.actorID),
			slog.Duration("elapsed", time.Since(start)))
	}
}

// WithTx runs fn inside a transaction with actorID as the acting user.
// Any error from fn rolls back every write performed through the scoped
// handle; the error propagates unmodified.
func (s *Store) WithTx(ctx context.Context, actorID string, fn func(*Tx) error) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	scoped := &Tx{tx: tx, ctx: ctx, actorID: actorID, logger: s.logger}
	if err := fn(scoped); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}
