package auth

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/starford/muninn/internal/models"
)

// HasPermission evaluates whether user may perform action on a collection.
// Precedence: admin role, then readonly restriction, then ownership, then
// the explicit grant. Any resolution error fails closed (false), never an
// exception to the caller.
func (s *Service) HasPermission(ctx context.Context, user *models.User, collectionID string, action models.Action) bool {
	if user == nil {
		return false
	}
	if user.Role == models.RoleAdmin {
		return true
	}
	if user.Role == models.RoleReadonly && action != models.ActionRead {
		return false
	}

	var ownerID string
	err := s.db.QueryRow(ctx, `SELECT owner_id FROM collections WHERE id = ?`, collectionID).Scan(&ownerID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("auth: owner lookup failed",
				slog.String("collection_id", collectionID),
				slog.String("error", err.Error()))
		}
		return false
	}
	// The owner always has implicit admin-level access.
	if ownerID == user.ID {
		return true
	}

	var level string
	err = s.db.QueryRow(ctx,
		`SELECT level FROM permissions WHERE collection_id = ? AND user_id = ?`,
		collectionID, user.ID).Scan(&level)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("auth: grant lookup failed",
				slog.String("collection_id", collectionID),
				slog.String("error", err.Error()))
		}
		return false
	}
	return levelAllows(models.PermissionLevel(level), action)
}

// levelAllows maps grant levels to permitted actions: read permits read,
// write permits read+write, admin permits all three.
func levelAllows(level models.PermissionLevel, action models.Action) bool {
	switch level {
	case models.PermissionAdmin:
		return true
	case models.PermissionWrite:
		return action == models.ActionRead || action == models.ActionWrite
	case models.PermissionRead:
		return action == models.ActionRead
	default:
		return false
	}
}

// Grant records an explicit (collection, user, level) permission,
// replacing any prior grant for the pair.
func (s *Service) Grant(ctx context.Context, collectionID, userID string, level models.PermissionLevel) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO permissions (collection_id, user_id, level)
		VALUES (?, ?, ?)
		ON CONFLICT(collection_id, user_id) DO UPDATE SET level = excluded.level
	`, collectionID, userID, string(level))
	return err
}

// Revoke removes the explicit grant for a (collection, user) pair.
func (s *Service) Revoke(ctx context.Context, collectionID, userID string) error {
	_, err := s.db.Exec(ctx,
		`DELETE FROM permissions WHERE collection_id = ? AND user_id = ?`, collectionID, userID)
	return err
}
