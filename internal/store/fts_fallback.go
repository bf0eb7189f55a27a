//go:build !sqlite_fts5

package store

import "database/sql"

// FTSEnabled reports whether ranked FTS5 search is compiled in.
const FTSEnabled = false

func initFTS(_ *sql.DB) error {
	// FTS5 not available; search uses LIKE fallback on context_items.
	return nil
}

// FTSUpsert is a no-op without FTS5; content already lives in context_items.
func (t *Tx) FTSUpsert(_, _, _ string, _ []string) error { return nil }

// FTSDelete is a no-op without FTS5.
func (t *Tx) FTSDelete(_ string) {}
