package authcore

import (
	"context"
	"errors"
	"testing"
)

func TestChangePasswordSuccessInvalidatesSessions(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	hasher := newTestHasher(t)
	store := newMockUserStore(seedUser(t, hasher, "u1", "alice@example.com", "old-password-123"))
	engine := newTestEngine(t, rdb, store, testConfig())
	engine.passwordHash = hasher

	result, err := engine.Login(ctx, "alice@example.com", "old-password-123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if err := engine.ChangePassword(ctx, "u1", "old-password-123", "new-password-123"); err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}

	// The caller's own refresh chain dies with the rest.
	if _, err := engine.Refresh(ctx, result.Tokens.RefreshToken); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected ErrRefreshInvalid after change, got %v", err)
	}

	if _, err := engine.Login(ctx, "alice@example.com", "old-password-123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected old password rejected, got %v", err)
	}
	if _, err := engine.Login(ctx, "alice@example.com", "new-password-123"); err != nil {
		t.Fatalf("login with new password failed: %v", err)
	}
}

func TestChangePasswordWrongOldPassword(t *testing.T) {
	_, rdb := newTestRedis(t)

	hasher := newTestHasher(t)
	store := newMockUserStore(seedUser(t, hasher, "u1", "alice@example.com", "old-password-123"))
	engine := newTestEngine(t, rdb, store, testConfig())
	engine.passwordHash = hasher

	err := engine.ChangePassword(context.Background(), "u1", "not-the-password", "new-password-123")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if store.updateHashCalls != 0 {
		t.Fatalf("expected no hash update, got %d calls", store.updateHashCalls)
	}
}

func TestChangePasswordRejectsReuse(t *testing.T) {
	_, rdb := newTestRedis(t)

	hasher := newTestHasher(t)
	store := newMockUserStore(seedUser(t, hasher, "u1", "alice@example.com", "old-password-123"))
	engine := newTestEngine(t, rdb, store, testConfig())
	engine.passwordHash = hasher

	err := engine.ChangePassword(context.Background(), "u1", "old-password-123", "old-password-123")
	if !errors.Is(err, ErrPasswordReuse) {
		t.Fatalf("expected ErrPasswordReuse, got %v", err)
	}
}

func TestChangePasswordEnforcesPolicy(t *testing.T) {
	_, rdb := newTestRedis(t)

	hasher := newTestHasher(t)
	store := newMockUserStore(seedUser(t, hasher, "u1", "alice@example.com", "old-password-123"))
	engine := newTestEngine(t, rdb, store, testConfig())
	engine.passwordHash = hasher

	err := engine.ChangePassword(context.Background(), "u1", "old-password-123", "short")
	if !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("expected ErrPasswordPolicy, got %v", err)
	}
}

func TestChangePasswordValidatesInput(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := newMockUserStore()
	engine := newTestEngine(t, rdb, store, testConfig())

	for _, tc := range []struct{ id, old, new string }{
		{"", "old-password-123", "new-password-123"},
		{"u1", "", "new-password-123"},
		{"u1", "old-password-123", ""},
	} {
		if err := engine.ChangePassword(context.Background(), tc.id, tc.old, tc.new); !errors.Is(err, ErrValidation) {
			t.Fatalf("expected ErrValidation for %+v, got %v", tc, err)
		}
	}
}

func TestChangePasswordUnknownAndDisabledUser(t *testing.T) {
	_, rdb := newTestRedis(t)

	hasher := newTestHasher(t)
	user := seedUser(t, hasher, "u1", "alice@example.com", "old-password-123")
	user.IsActive = false
	store := newMockUserStore(user)
	engine := newTestEngine(t, rdb, store, testConfig())
	engine.passwordHash = hasher

	if err := engine.ChangePassword(context.Background(), "nope", "old-password-123", "new-password-123"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if err := engine.ChangePassword(context.Background(), "u1", "old-password-123", "new-password-123"); !errors.Is(err, ErrAccountDisabled) {
		t.Fatalf("expected ErrAccountDisabled, got %v", err)
	}
}
