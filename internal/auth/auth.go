// Package auth resolves credentials to identities and evaluates
// per-collection permissions.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/starford/muninn/internal/apperr"
	"github.com/starford/muninn/internal/digest"
	"github.com/starford/muninn/internal/models"
	"github.com/starford/muninn/internal/store"
)

const (
	maxFailedAttempts = 5
	lockoutWindow     = 30 * time.Minute
)

// SecurityLogger receives auth anomaly events. Satisfied by the audit
// recorder; failures on its side never affect authentication outcomes.
type SecurityLogger interface {
	LogSecurityEvent(actorID, event string, metadata map[string]any)
}

// Service authenticates callers and evaluates permissions.
type Service struct {
	db       *store.Store
	security SecurityLogger
	logger   *slog.Logger
}

// New creates an auth service.
func New(db *store.Store, security SecurityLogger, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{db: db, security: security, logger: logger}
}

const userColumns = `id, username, email, password_hash, api_key_hash, role, is_active,
	failed_attempts, locked_until, last_login_at, created_at, updated_at`

func scanUser(row *sql.Row) (*models.User, error) {
	var u models.User
	var active int
	var locked, lastLogin sql.NullTime
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.APIKeyHash,
		&u.Role, &active, &u.FailedAttempts, &locked, &lastLogin, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.IsActive = active != 0
	if locked.Valid {
		u.LockedUntil = &locked.Time
	}
	if lastLogin.Valid {
		u.LastLoginAt = &lastLogin.Time
	}
	return &u, nil
}

// Authenticate resolves an API key to an active user. An unknown or
// inactive credential returns (nil, nil) after emitting a security event;
// it is never an error.
func (s *Service) Authenticate(ctx context.Context, apiKey string) (*models.User, error) {
	if apiKey == "" {
		return nil, nil
	}
	keyHash := digest.SumString(apiKey)
	u, err := scanUser(s.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE api_key_hash = ? AND is_active = 1`, keyHash))
	if errors.Is(err, sql.ErrNoRows) {
		if s.security != nil {
			s.security.LogSecurityEvent("", "api_key_rejected", map[string]any{"reason": "unknown_key"})
		}
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("auth: lookup api key: %w", err)
	}

	if _, err := s.db.Exec(ctx,
		`UPDATE users SET last_login_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		u.ID); err != nil {
		s.logger.Warn("auth: last login update failed", slog.String("error", err.Error()))
	}
	return u, nil
}

// CheckPassword verifies a username/password pair with lockout handling:
// five consecutive failures lock the account for thirty minutes, during
// which every check fails closed without consulting the hash. A successful
// check resets the counter and clears the lock.
func (s *Service) CheckPassword(ctx context.Context, username, password string) (*models.User, error) {
	u, err := scanUser(s.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ? AND is_active = 1`, username))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.KindAuthentication, "invalid credentials")
	}
	if err != nil {
		return nil, fmt.Errorf("auth: lookup user: %w", err)
	}

	if u.LockedUntil != nil && time.Now().Before(*u.LockedUntil) {
		if s.security != nil {
			s.security.LogSecurityEvent(u.ID, "login_while_locked", map[string]any{"username": username})
		}
		return nil, apperr.New(apperr.KindAuthentication, "account locked")
	}

	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, s.recordFailedAttempt(ctx, u)
	}

	if _, err := s.db.Exec(ctx,
		`UPDATE users SET failed_attempts = 0, locked_until = NULL,
			last_login_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		u.ID); err != nil {
		s.logger.Warn("auth: reset failed attempts failed", slog.String("error", err.Error()))
	}
	return u, nil
}

func (s *Service) recordFailedAttempt(ctx context.Context, u *models.User) error {
	attempts := u.FailedAttempts + 1
	if attempts >= maxFailedAttempts {
		lockUntil := time.Now().Add(lockoutWindow)
		if _, err := s.db.Exec(ctx,
			`UPDATE users SET failed_attempts = ?, locked_until = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
			attempts, lockUntil, u.ID); err != nil {
			s.logger.Warn("auth: lockout update failed", slog.String("error", err.Error()))
		}
		if s.security != nil {
			s.security.LogSecurityEvent(u.ID, "account_locked", map[string]any{
				"username": u.Username,
				"attempts": attempts,
			})
		}
		return apperr.New(apperr.KindAuthentication, "account locked")
	}
	if _, err := s.db.Exec(ctx,
		`UPDATE users SET failed_attempts = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		attempts, u.ID); err != nil {
		s.logger.Warn("auth: failed attempt update failed", slog.String("error", err.Error()))
	}
	return apperr.New(apperr.KindAuthentication, "invalid credentials")
}

// Register creates a new active user with a bcrypt-hashed password.
func (s *Service) Register(ctx context.Context, username, email, password string, role models.Role) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("auth: hash password: %w", err)
	}
	id := uuid.New().String()
	if _, err := s.db.Exec(ctx,
		`INSERT INTO users (id, username, email, password_hash, role) VALUES (?, ?, ?, ?, ?)`,
		id, username, email, string(hash), string(role)); err != nil {
		return nil, fmt.Errorf("auth: create user: %w", err)
	}
	return s.GetUser(ctx, id)
}

// IssueAPIKey generates a fresh API key for a user and stores its digest.
// The plaintext key is returned once and never persisted.
func (s *Service) IssueAPIKey(ctx context.Context, userID string) (string, error) {
	key := "mnn_" + uuid.New().String()
	if _, err := s.db.Exec(ctx,
		`UPDATE users SET api_key_hash = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND is_active = 1`,
		digest.SumString(key), userID); err != nil {
		return "", fmt.Errorf("auth: rotate api key: %w", err)
	}
	return key, nil
}

// GetUser loads a user by id.
func (s *Service) GetUser(ctx context.Context, id string) (*models.User, error) {
	u, err := scanUser(s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.KindNotFound, "user %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("auth: get user: %w", err)
	}
	return u, nil
}

// EnsureBootstrapUser creates the initial admin when the user table is
// empty, so a fresh deployment is usable without manual SQL.
func (s *Service) EnsureBootstrapUser(ctx context.Context, username, email, password, apiKey string) error {
	var count int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return fmt.Errorf("auth: count users: %w", err)
	}
	if count > 0 {
		return nil
	}
	u, err := s.Register(ctx, username, email, password, models.RoleAdmin)
	if err != nil {
		return err
	}
	if apiKey != "" {
		if _, err := s.db.Exec(ctx,
			`UPDATE users SET api_key_hash = ? WHERE id = ?`, digest.SumString(apiKey), u.ID); err != nil {
			return fmt.Errorf("auth: set bootstrap api key: %w", err)
		}
	}
	s.logger.Info("auth: bootstrap admin created", slog.String("username", username))
	return nil
}
