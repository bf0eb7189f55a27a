package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/starford/muninn/internal/apperr"
	"github.com/starford/muninn/internal/models"
	"github.com/starford/muninn/internal/store"
)

// CollectionFilters narrow a collection listing.
type CollectionFilters struct {
	Tags          []string
	IncludePublic bool
}

const collectionColumns = `c.id, c.name, c.description, c.owner_id, c.is_public, c.tags, c.metadata,
	c.created_at, c.updated_at,
	(SELECT COUNT(*) FROM context_items i WHERE i.collection_id = c.id AND i.is_active = 1)`

func scanCollection(scan func(dest ...any) error) (*models.Collection, error) {
	var c models.Collection
	var public int
	var tags string
	var metadata sql.NullString
	err := scan(&c.ID, &c.Name, &c.Description, &c.OwnerID, &public, &tags, &metadata,
		&c.CreatedAt, &c.UpdatedAt, &c.ItemCount)
	if err != nil {
		return nil, err
	}
	c.IsPublic = public != 0
	c.Tags = decodeTags(tags)
	c.Metadata = decodeMetadata(metadata)
	return &c, nil
}

// CreateCollection inserts a collection owned by the actor. Collection
// names are unique per owner; the store enforces it.
func (r *Repository) CreateCollection(ctx context.Context, actorID, name, description string, isPublic bool, tags []string, metadata map[string]any) (*models.Collection, error) {
	id := uuid.New().String()
	err := r.db.WithTx(ctx, actorID, func(tx *store.Tx) error {
		public := 0
		if isPublic {
			public = 1
		}
		_, err := tx.Exec(`
			INSERT INTO collections (id, name, description, owner_id, is_public, tags, metadata)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, id, name, description, actorID, public, encodeTags(tags), encodeMetadata(metadata))
		if isUniqueViolation(err) {
			return apperr.New(apperr.KindValidation, "collection %q already exists for this owner", name)
		}
		if err != nil {
			return fmt.Errorf("repo: insert collection: %w", err)
		}
		r.dataChange(tx, "collection", id, "create", nil, map[string]any{
			"name":      name,
			"is_public": isPublic,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.GetCollection(ctx, id)
}

// GetCollection loads one collection with its live active-item count.
func (r *Repository) GetCollection(ctx context.Context, id string) (*models.Collection, error) {
	row := r.db.QueryRow(ctx, `SELECT `+collectionColumns+` FROM collections c WHERE c.id = ?`, id)
	c, err := scanCollection(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.KindNotFound, "collection %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("repo: get collection: %w", err)
	}
	return c, nil
}

// ListCollections returns collections visible to the actor, newest-first:
// owned collections, explicitly granted ones, and (optionally) public
// ones. Tag filters intersect.
func (r *Repository) ListCollections(ctx context.Context, actorID string, filters CollectionFilters, limit, offset int) ([]models.Collection, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	f := &store.Filter{}
	visibility := `(c.owner_id = ?
		OR EXISTS (SELECT 1 FROM permissions p WHERE p.collection_id = c.id AND p.user_id = ?)`
	args := []any{actorID, actorID}
	if filters.IncludePublic {
		visibility += ` OR c.is_public = 1`
	}
	visibility += `)`
	f.Add(visibility, args...)
	for _, tag := range filters.Tags {
		f.Add(`c.tags LIKE ?`, `%"`+tag+`"%`)
	}

	query, qargs := f.SQL(`SELECT ` + collectionColumns + ` FROM collections c`)
	query += ` ORDER BY c.created_at DESC LIMIT ? OFFSET ?`
	qargs = append(qargs, limit, offset)

	rows, err := r.db.Query(ctx, query, qargs...)
	if err != nil {
		return nil, fmt.Errorf("repo: list collections: %w", err)
	}
	defer rows.Close()

	out := []models.Collection{}
	for rows.Next() {
		c, err := scanCollection(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}
