//go:build !sqlite_fts5

package search

import "github.com/starford/muninn/internal/store"

// buildQuery composes the LIKE fallback used when FTS5 is not compiled
// in. Clause order matches the FTS5 path: text match, then collection
// restriction, then tag intersection.
func buildQuery(req Request) (string, []any) {
	like := "%" + req.Query + "%"

	f := &store.Filter{}
	f.Add(`(i.title LIKE ? OR i.content LIKE ? OR i.tags LIKE ?)`, like, like, like)
	f.Add(`i.is_active = 1`)
	f.In(`i.collection_id`, req.CollectionIDs)
	for _, tag := range req.Tags {
		f.Add(`i.tags LIKE ?`, `%"`+tag+`"%`)
	}

	query, args := f.SQL(`
		SELECT i.id,
		       i.collection_id,
		       i.title,
		       substr(i.content, 1, 200),
		       0.0
		FROM context_items i`)
	query += ` ORDER BY i.updated_at DESC LIMIT ?`
	args = append(args, req.Limit)
	return query, args
}
