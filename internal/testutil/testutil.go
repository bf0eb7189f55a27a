// Package testutil provides shared test helpers for setting up stores and fixtures.
package testutil

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/starford/muninn/internal/models"
	"github.com/starford/muninn/internal/store"
)

// Logger returns a debug-level logger writing to stderr for test runs.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// TestStore creates a temporary SQLite store that is automatically cleaned up.
func TestStore(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "muninn-test.db")

	db, err := store.Open(path, store.DefaultOptions(), Logger())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// SeedUser inserts a user with the given role and returns it.
func SeedUser(t *testing.T, db *store.Store, username string, role models.Role) *models.User {
	t.Helper()
	u := &models.User{
		ID:       uuid.NewString(),
		Username: username,
		Email:    username + "@example.com",
		Role:     role,
		IsActive: true,
	}
	_, err := db.Exec(context.Background(), `
		INSERT INTO users (id, username, email, role, is_active)
		VALUES (?, ?, ?, ?, 1)`,
		u.ID, u.Username, u.Email, string(u.Role))
	if err != nil {
		t.Fatal(err)
	}
	return u
}

// SeedCollection inserts a collection owned by ownerID and returns its ID.
func SeedCollection(t *testing.T, db *store.Store, ownerID, name string) string {
	t.Helper()
	id := uuid.NewString()
	_, err := db.Exec(context.Background(), `
		INSERT INTO collections (id, name, owner_id)
		VALUES (?, ?, ?)`,
		id, name, ownerID)
	if err != nil {
		t.Fatal(err)
	}
	return id
}
