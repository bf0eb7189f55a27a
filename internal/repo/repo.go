// Package repo implements the context repository: collections and
// versioned, deduplicated context items over the storage gateway.
package repo

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/mattn/go-sqlite3"

	"github.com/starford/muninn/internal/audit"
	"github.com/starford/muninn/internal/cache"
	"github.com/starford/muninn/internal/store"
)

// Repository coordinates item and collection persistence.
type Repository struct {
	db       *store.Store
	cache    cache.Cache
	recorder *audit.Recorder
	logger   *slog.Logger
}

// New creates a repository. cache may be cache.Disabled{}; recorder may be
// nil when auditing is off.
func New(db *store.Store, c cache.Cache, recorder *audit.Recorder, logger *slog.Logger) *Repository {
	if c == nil {
		c = cache.Disabled{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{db: db, cache: c, recorder: recorder, logger: logger}
}

// isUniqueViolation reports whether err is the store's uniqueness
// constraint firing; the constraint is the final arbiter for
// duplicate-create races.
func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func encodeTags(tags []string) string {
	if tags == nil {
		tags = []string{}
	}
	b, _ := json.Marshal(tags)
	return string(b)
}

func encodeMetadata(m map[string]any) string {
	if m == nil {
		return "{}"
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func decodeTags(s string) []string {
	var tags []string
	if err := json.Unmarshal([]byte(s), &tags); err != nil || tags == nil {
		return []string{}
	}
	return tags
}

func decodeMetadata(s sql.NullString) map[string]any {
	if !s.Valid || s.String == "" || s.String == "{}" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s.String), &m); err != nil {
		return nil
	}
	return m
}

func (r *Repository) dataChange(tx *store.Tx, resourceType, resourceID, verb string, oldValue, newValue map[string]any) {
	if r.recorder == nil {
		return
	}
	r.recorder.DataChangeTx(tx, resourceType, resourceID, verb, oldValue, newValue)
}
