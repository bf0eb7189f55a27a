//go:build sqlite_fts5

package store

import (
	"database/sql"
	"fmt"
	"strings"
)

// FTSEnabled reports whether ranked FTS5 search is compiled in.
const FTSEnabled = true

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS items_fts USING fts5(
			item_id UNINDEXED,
			title,
			content,
			tags,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

// FTSUpsert replaces the FTS row for an item inside the caller's transaction.
func (t *Tx) FTSUpsert(itemID, title, content string, tags []string) error {
	_, _ = t.Exec(`DELETE FROM items_fts WHERE item_id = ?`, itemID)
	_, err := t.Exec(`INSERT INTO items_fts (item_id, title, content, tags) VALUES (?, ?, ?, ?)`,
		itemID, title, content, strings.Join(tags, " "))
	if err != nil {
		return fmt.Errorf("store: upsert fts: %w", err)
	}
	return nil
}

// FTSDelete removes the FTS row for an item inside the caller's transaction.
func (t *Tx) FTSDelete(itemID string) {
	_, _ = t.Exec(`DELETE FROM items_fts WHERE item_id = ?`, itemID)
}
