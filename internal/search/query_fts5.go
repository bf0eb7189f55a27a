//go:build sqlite_fts5

package search

import "github.com/starford/muninn/internal/store"

// buildQuery composes the FTS5 query. Clause order is fixed: text match,
// then collection restriction, then tag intersection; the Filter keeps
// each clause's parameters bound to it, so optional filters cannot shift
// placeholder positions.
func buildQuery(req Request) (string, []any) {
	f := &store.Filter{}
	f.Add(`items_fts MATCH ?`, req.Query)
	f.Add(`i.is_active = 1`)
	f.In(`i.collection_id`, req.CollectionIDs)
	for _, tag := range req.Tags {
		f.Add(`i.tags LIKE ?`, `%"`+tag+`"%`)
	}

	query, args := f.SQL(`
		SELECT i.id,
		       i.collection_id,
		       i.title,
		       snippet(items_fts, 2, '<b>', '</b>', '...', 64),
		       -bm25(items_fts)
		FROM items_fts
		JOIN context_items i ON i.id = items_fts.item_id`)
	query += ` ORDER BY rank LIMIT ?`
	args = append(args, req.Limit)
	return query, args
}
