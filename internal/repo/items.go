package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/starford/muninn/internal/apperr"
	"github.com/starford/muninn/internal/digest"
	"github.com/starford/muninn/internal/models"
	"github.com/starford/muninn/internal/store"
)

// CreateItemParams carries the fields for a new context item.
type CreateItemParams struct {
	CollectionID string
	Title        string
	Content      string
	ContentType  string
	SourceURL    string
	SourceType   models.SourceType
	Tags         []string
	Metadata     map[string]any
}

// UpdateItemParams carries a partial update. Nil pointers/slices leave the
// corresponding field unchanged.
type UpdateItemParams struct {
	Title         *string
	Content       *string
	Tags          []string
	Metadata      map[string]any
	ChangeSummary string
}

func (p UpdateItemParams) empty() bool {
	return p.Title == nil && p.Content == nil && p.Tags == nil && p.Metadata == nil
}

const itemColumns = `id, collection_id, title, content, content_type, source_url, source_type,
	content_hash, size_bytes, tags, metadata, version, is_active, created_by, updated_by,
	created_at, updated_at`

func scanItem(scan func(dest ...any) error) (*models.ContextItem, error) {
	var it models.ContextItem
	var active int
	var tags string
	var metadata sql.NullString
	err := scan(&it.ID, &it.CollectionID, &it.Title, &it.Content, &it.ContentType,
		&it.SourceURL, &it.SourceType, &it.ContentHash, &it.Size, &tags, &metadata,
		&it.Version, &active, &it.CreatedBy, &it.UpdatedBy, &it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		return nil, err
	}
	it.IsActive = active != 0
	it.Tags = decodeTags(tags)
	it.Metadata = decodeMetadata(metadata)
	return &it, nil
}

// CreateItem inserts an item at version 1 together with its first version
// snapshot, atomically. Content is deduplicated by hash among active
// items: the advisory pre-check gives a clean error message, the partial
// unique index settles races.
func (r *Repository) CreateItem(ctx context.Context, actorID string, p CreateItemParams) (*models.ContextItem, error) {
	hash := digest.SumString(p.Content)
	id := uuid.New().String()

	err := r.db.WithTx(ctx, actorID, func(tx *store.Tx) error {
		var exists int
		err := tx.QueryRow(`SELECT COUNT(*) FROM collections WHERE id = ?`, p.CollectionID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("repo: check collection: %w", err)
		}
		if exists == 0 {
			return apperr.New(apperr.KindNotFound, "collection %s not found", p.CollectionID)
		}

		var dup string
		err = tx.QueryRow(`SELECT id FROM context_items WHERE content_hash = ? AND is_active = 1`, hash).Scan(&dup)
		if err == nil {
			return apperr.New(apperr.KindDuplicateContent, "identical content already exists as item %s", dup)
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("repo: duplicate pre-check: %w", err)
		}

		_, err = tx.Exec(`
			INSERT INTO context_items (id, collection_id, title, content, content_type, source_url,
				source_type, content_hash, size_bytes, tags, metadata, version, created_by, updated_by)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
		`, id, p.CollectionID, p.Title, p.Content, p.ContentType, p.SourceURL, string(p.SourceType),
			hash, int64(len(p.Content)), encodeTags(p.Tags), encodeMetadata(p.Metadata), actorID, actorID)
		if isUniqueViolation(err) {
			return apperr.New(apperr.KindDuplicateContent, "identical content already exists")
		}
		if err != nil {
			return fmt.Errorf("repo: insert item: %w", err)
		}

		if err := insertVersion(tx, id, 1, p.Title, p.Content, p.Metadata, "initial version", actorID); err != nil {
			return err
		}
		if err := tx.FTSUpsert(id, p.Title, p.Content, p.Tags); err != nil {
			return err
		}

		r.dataChange(tx, "context_item", id, "create", nil, map[string]any{
			"collection_id": p.CollectionID,
			"title":         p.Title,
			"content_hash":  hash,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.GetItem(ctx, id, false)
}

// UpdateItem applies a partial update, bumping the version by exactly one
// and writing the matching version snapshot atomically. Supplying no
// fields is rejected with NoChanges.
func (r *Repository) UpdateItem(ctx context.Context, actorID, itemID string, p UpdateItemParams) (*models.ContextItem, error) {
	if p.empty() {
		return nil, apperr.New(apperr.KindNoChanges, "no fields supplied for update")
	}

	err := r.db.WithTx(ctx, actorID, func(tx *store.Tx) error {
		current, err := scanItem(tx.QueryRow(
			`SELECT `+itemColumns+` FROM context_items WHERE id = ? AND is_active = 1`, itemID).Scan)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.New(apperr.KindNotFound, "item %s not found", itemID)
		}
		if err != nil {
			return fmt.Errorf("repo: load item: %w", err)
		}

		next := *current
		if p.Title != nil {
			next.Title = *p.Title
		}
		if p.Content != nil {
			next.Content = *p.Content
			next.ContentHash = digest.SumString(*p.Content)
			next.Size = int64(len(*p.Content))
		}
		if p.Tags != nil {
			next.Tags = p.Tags
		}
		if p.Metadata != nil {
			next.Metadata = p.Metadata
		}
		next.Version = current.Version + 1

		_, err = tx.Exec(`
			UPDATE context_items
			SET title = ?, content = ?, content_hash = ?, size_bytes = ?, tags = ?, metadata = ?,
				version = ?, updated_by = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`, next.Title, next.Content, next.ContentHash, next.Size, encodeTags(next.Tags),
			encodeMetadata(next.Metadata), next.Version, actorID, itemID)
		if isUniqueViolation(err) {
			return apperr.New(apperr.KindDuplicateContent, "identical content already exists")
		}
		if err != nil {
			return fmt.Errorf("repo: update item: %w", err)
		}

		if err := insertVersion(tx, itemID, next.Version, next.Title, next.Content, next.Metadata, p.ChangeSummary, actorID); err != nil {
			return err
		}
		if err := tx.FTSUpsert(itemID, next.Title, next.Content, next.Tags); err != nil {
			return err
		}

		r.dataChange(tx, "context_item", itemID, "update", map[string]any{
			"version": current.Version,
			"title":   current.Title,
		}, map[string]any{
			"version": next.Version,
			"title":   next.Title,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.cache.Delete("item:" + itemID)
	return r.GetItem(ctx, itemID, false)
}

// GetItem returns the active item, optionally with all version snapshots
// newest-first. The cache is consulted for the plain read; cache failures
// degrade to a store read.
func (r *Repository) GetItem(ctx context.Context, itemID string, includeVersions bool) (*models.ContextItem, error) {
	cacheKey := "item:" + itemID
	if !includeVersions {
		if raw, ok := r.cache.Get(cacheKey); ok {
			var it models.ContextItem
			if err := json.Unmarshal(raw, &it); err == nil {
				return &it, nil
			}
		}
	}

	it, err := scanItem(r.db.QueryRow(ctx,
		`SELECT `+itemColumns+` FROM context_items WHERE id = ? AND is_active = 1`, itemID).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.KindNotFound, "item %s not found", itemID)
	}
	if err != nil {
		return nil, fmt.Errorf("repo: get item: %w", err)
	}

	if includeVersions {
		versions, err := r.listVersions(ctx, itemID)
		if err != nil {
			return nil, err
		}
		it.Versions = versions
		return it, nil
	}

	if raw, err := json.Marshal(it); err == nil {
		r.cache.Set(cacheKey, raw)
	}
	return it, nil
}

// DeleteItem soft-deletes an item, freeing its content hash for
// re-creation per the active-scope uniqueness rule.
func (r *Repository) DeleteItem(ctx context.Context, actorID, itemID string) error {
	err := r.db.WithTx(ctx, actorID, func(tx *store.Tx) error {
		res, err := tx.Exec(`
			UPDATE context_items SET is_active = 0, updated_by = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ? AND is_active = 1
		`, actorID, itemID)
		if err != nil {
			return fmt.Errorf("repo: deactivate item: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperr.New(apperr.KindNotFound, "item %s not found", itemID)
		}
		tx.FTSDelete(itemID)
		r.dataChange(tx, "context_item", itemID, "delete", nil, nil)
		return nil
	})
	if err != nil {
		return err
	}
	r.cache.Delete("item:" + itemID)
	return nil
}

// ListItems returns active items of a collection, newest-first.
func (r *Repository) ListItems(ctx context.Context, collectionID string, limit, offset int) ([]models.ContextItem, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `
		SELECT `+itemColumns+` FROM context_items
		WHERE collection_id = ? AND is_active = 1
		ORDER BY created_at DESC LIMIT ? OFFSET ?
	`, collectionID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("repo: list items: %w", err)
	}
	defer rows.Close()

	out := []models.ContextItem{}
	for rows.Next() {
		it, err := scanItem(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *it)
	}
	return out, rows.Err()
}

func (r *Repository) listVersions(ctx context.Context, itemID string) ([]models.ItemVersion, error) {
	rows, err := r.db.Query(ctx, `
		SELECT item_id, version, title, content, metadata, change_summary, created_by, created_at
		FROM item_versions WHERE item_id = ? ORDER BY version DESC
	`, itemID)
	if err != nil {
		return nil, fmt.Errorf("repo: list versions: %w", err)
	}
	defer rows.Close()

	var out []models.ItemVersion
	for rows.Next() {
		var v models.ItemVersion
		var metadata sql.NullString
		if err := rows.Scan(&v.ItemID, &v.Version, &v.Title, &v.Content, &metadata,
			&v.ChangeSummary, &v.CreatedBy, &v.CreatedAt); err != nil {
			return nil, err
		}
		v.Metadata = decodeMetadata(metadata)
		out = append(out, v)
	}
	return out, rows.Err()
}

func insertVersion(tx *store.Tx, itemID string, version int, title, content string, metadata map[string]any, summary, actorID string) error {
	_, err := tx.Exec(`
		INSERT INTO item_versions (item_id, version, title, content, metadata, change_summary, created_by)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, itemID, version, title, content, encodeMetadata(metadata), summary, actorID)
	if err != nil {
		return fmt.Errorf("repo: insert version: %w", err)
	}
	return nil
}

// WarmCache is a best-effort prefetch of recently updated items, used at
// startup when caching is enabled.
func (r *Repository) WarmCache(ctx context.Context, n int) {
	items, err := r.db.Query(ctx, `
		SELECT `+itemColumns+` FROM context_items WHERE is_active = 1
		ORDER BY updated_at DESC LIMIT ?
	`, n)
	if err != nil {
		r.logger.Debug("repo: cache warm skipped", slog.String("error", err.Error()))
		return
	}
	defer items.Close()
	for items.Next() {
		it, err := scanItem(items.Scan)
		if err != nil {
			return
		}
		if raw, err := json.Marshal(it); err == nil {
			r.cache.Set("item:"+it.ID, raw)
		}
	}
}
