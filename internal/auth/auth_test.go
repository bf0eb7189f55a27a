package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/starford/muninn/internal/apperr"
	"github.com/starford/muninn/internal/models"
	"github.com/starford/muninn/internal/store"
	"github.com/starford/muninn/internal/testutil"
)

func testService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	db := testutil.TestStore(t)
	return New(db, nil, testutil.Logger()), db
}

func TestRegisterAndAuthenticate(t *testing.T) {
	s, _ := testService(t)
	ctx := context.Background()

	u, err := s.Register(ctx, "alice", "alice@example.com", "s3cret", models.RoleUser)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if u.Role != models.RoleUser || !u.IsActive {
		t.Errorf("user = %+v", u)
	}

	key, err := s.IssueAPIKey(ctx, u.ID)
	if err != nil {
		t.Fatalf("IssueAPIKey: %v", err)
	}

	got, err := s.Authenticate(ctx, key)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if got == nil || got.ID != u.ID {
		t.Fatalf("Authenticate = %+v, want user %s", got, u.ID)
	}
}

func TestAuthenticateUnknownKey(t *testing.T) {
	s, _ := testService(t)
	u, err := s.Authenticate(context.Background(), "mnn_not-a-real-key")
	if err != nil {
		t.Fatalf("unknown key must not error: %v", err)
	}
	if u != nil {
		t.Fatalf("unknown key resolved to %+v", u)
	}
}

func TestAuthenticateEmptyKey(t *testing.T) {
	s, _ := testService(t)
	u, err := s.Authenticate(context.Background(), "")
	if err != nil || u != nil {
		t.Fatalf("empty key = %+v, %v; want nil, nil", u, err)
	}
}

func TestAuthenticateInactiveUser(t *testing.T) {
	s, db := testService(t)
	ctx := context.Background()

	u, err := s.Register(ctx, "bob", "bob@example.com", "pw", models.RoleUser)
	if err != nil {
		t.Fatal(err)
	}
	key, err := s.IssueAPIKey(ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(ctx, `UPDATE users SET is_active = 0 WHERE id = ?`, u.ID); err != nil {
		t.Fatal(err)
	}

	got, err := s.Authenticate(ctx, key)
	if err != nil || got != nil {
		t.Fatalf("inactive user = %+v, %v; want nil, nil", got, err)
	}
}

func TestCheckPassword(t *testing.T) {
	s, _ := testService(t)
	ctx := context.Background()

	u, err := s.Register(ctx, "carol", "carol@example.com", "correct horse", models.RoleUser)
	if err != nil {
		t.Fatal(err)
	}

	got, err := s.CheckPassword(ctx, "carol", "correct horse")
	if err != nil {
		t.Fatalf("CheckPassword: %v", err)
	}
	if got.ID != u.ID {
		t.Errorf("got user %s, want %s", got.ID, u.ID)
	}

	if _, err := s.CheckPassword(ctx, "carol", "wrong"); !errors.Is(err, apperr.ErrAuthentication) {
		t.Fatalf("wrong password err = %v, want authentication_failure", err)
	}
	if _, err := s.CheckPassword(ctx, "nobody", "x"); !errors.Is(err, apperr.ErrAuthentication) {
		t.Fatalf("unknown user err = %v, want authentication_failure", err)
	}
}

func TestLockoutAfterRepeatedFailures(t *testing.T) {
	s, db := testService(t)
	ctx := context.Background()

	u, err := s.Register(ctx, "dave", "dave@example.com", "hunter2", models.RoleUser)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < maxFailedAttempts; i++ {
		if _, err := s.CheckPassword(ctx, "dave", "wrong"); err == nil {
			t.Fatalf("attempt %d unexpectedly succeeded", i+1)
		}
	}

	// The account is now locked; even the correct password fails closed.
	if _, err := s.CheckPassword(ctx, "dave", "hunter2"); !errors.Is(err, apperr.ErrAuthentication) {
		t.Fatalf("locked account err = %v, want authentication_failure", err)
	}

	// Expire the lock and verify a success resets the state machine.
	past := time.Now().Add(-time.Minute)
	if _, err := db.Exec(ctx, `UPDATE users SET locked_until = ? WHERE id = ?`, past, u.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CheckPassword(ctx, "dave", "hunter2"); err != nil {
		t.Fatalf("post-expiry check: %v", err)
	}

	fresh, err := s.GetUser(ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if fresh.FailedAttempts != 0 || fresh.LockedUntil != nil {
		t.Errorf("state after success = attempts %d, locked %v; want reset", fresh.FailedAttempts, fresh.LockedUntil)
	}
}

func TestIssueAPIKeyRotates(t *testing.T) {
	s, _ := testService(t)
	ctx := context.Background()

	u, err := s.Register(ctx, "erin", "erin@example.com", "pw", models.RoleUser)
	if err != nil {
		t.Fatal(err)
	}
	first, err := s.IssueAPIKey(ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.IssueAPIKey(ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if first == second {
		t.Fatal("rotation returned the same key")
	}
	if got, _ := s.Authenticate(ctx, first); got != nil {
		t.Error("old key should no longer resolve")
	}
	if got, _ := s.Authenticate(ctx, second); got == nil {
		t.Error("new key should resolve")
	}
}

func TestEnsureBootstrapUser(t *testing.T) {
	s, db := testService(t)
	ctx := context.Background()

	if err := s.EnsureBootstrapUser(ctx, "admin", "admin@localhost", "pw", "mnn_boot"); err != nil {
		t.Fatalf("EnsureBootstrapUser: %v", err)
	}
	admin, err := s.Authenticate(ctx, "mnn_boot")
	if err != nil || admin == nil {
		t.Fatalf("bootstrap key = %+v, %v", admin, err)
	}
	if admin.Role != models.RoleAdmin {
		t.Errorf("role = %q, want admin", admin.Role)
	}

	// A second call with users present is a no-op.
	if err := s.EnsureBootstrapUser(ctx, "admin2", "a2@localhost", "pw", ""); err != nil {
		t.Fatal(err)
	}
	var count int
	if err := db.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("user count = %d, want 1", count)
	}
}
