package authcore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tauinbox/client-server-starter-app-sub001/internal"
)

func TestPasswordResetRoundTrip(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	hasher := newTestHasher(t)
	store := newMockUserStore(seedUser(t, hasher, "u1", "alice@example.com", "old-password-123"))
	engine := newTestEngine(t, rdb, store, testConfig())
	engine.passwordHash = hasher

	login, err := engine.Login(ctx, "alice@example.com", "old-password-123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	challenge, err := engine.RequestPasswordReset(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	if challenge == "" {
		t.Fatal("expected a challenge")
	}

	if err := engine.ConfirmPasswordReset(ctx, challenge, "new-password-123"); err != nil {
		t.Fatalf("ConfirmPasswordReset failed: %v", err)
	}

	// Every pre-reset credential is dead: sessions, access tokens, and the
	// old password.
	if _, err := engine.Refresh(ctx, login.Tokens.RefreshToken); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected ErrRefreshInvalid after reset, got %v", err)
	}
	if _, err := engine.ValidateAccess(ctx, login.Tokens.AccessToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid after reset, got %v", err)
	}
	if _, err := engine.Login(ctx, "alice@example.com", "old-password-123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected old password rejected, got %v", err)
	}
	if _, err := engine.Login(ctx, "alice@example.com", "new-password-123"); err != nil {
		t.Fatalf("login with reset password failed: %v", err)
	}
}

func TestPasswordResetReleasesLockout(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	hasher := newTestHasher(t)
	user := seedUser(t, hasher, "u1", "alice@example.com", "old-password-123")
	until := time.Now().Add(10 * time.Minute)
	user.LockedUntil = &until
	user.FailedLoginAttempts = 5

	store := newMockUserStore(user)
	engine := newTestEngine(t, rdb, store, testConfig())
	engine.passwordHash = hasher

	challenge, err := engine.RequestPasswordReset(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	if err := engine.ConfirmPasswordReset(ctx, challenge, "new-password-123"); err != nil {
		t.Fatalf("ConfirmPasswordReset failed: %v", err)
	}

	if store.users["u1"].LockedUntil != nil {
		t.Fatal("expected lockout released by reset")
	}
	if _, err := engine.Login(ctx, "alice@example.com", "new-password-123"); err != nil {
		t.Fatalf("login after reset failed: %v", err)
	}
}

func TestPasswordResetChallengeIsSingleUse(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	hasher := newTestHasher(t)
	store := newMockUserStore(seedUser(t, hasher, "u1", "alice@example.com", "old-password-123"))
	engine := newTestEngine(t, rdb, store, testConfig())
	engine.passwordHash = hasher

	challenge, err := engine.RequestPasswordReset(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	if err := engine.ConfirmPasswordReset(ctx, challenge, "new-password-123"); err != nil {
		t.Fatalf("first confirm failed: %v", err)
	}

	if err := engine.ConfirmPasswordReset(ctx, challenge, "another-password-123"); !errors.Is(err, ErrResetInvalid) {
		t.Fatalf("expected ErrResetInvalid on replay, got %v", err)
	}
}

func TestPasswordResetUnknownEmailReturnsDecoyChallenge(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	store := newMockUserStore()
	engine := newTestEngine(t, rdb, store, testConfig())

	challenge, err := engine.RequestPasswordReset(ctx, "ghost@example.com")
	if err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	if challenge == "" {
		t.Fatal("expected a decoy challenge for unknown email")
	}

	// The decoy was never persisted; redeeming it fails like any bad token.
	if err := engine.ConfirmPasswordReset(ctx, challenge, "new-password-123"); !errors.Is(err, ErrResetInvalid) {
		t.Fatalf("expected ErrResetInvalid for decoy, got %v", err)
	}
}

func TestPasswordResetWrongSecretBurnsAttempts(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	cfg := testConfig()
	cfg.PasswordReset.MaxAttempts = 2

	hasher := newTestHasher(t)
	store := newMockUserStore(seedUser(t, hasher, "u1", "alice@example.com", "old-password-123"))
	engine := newTestEngine(t, rdb, store, cfg)
	engine.passwordHash = hasher

	challenge, err := engine.RequestPasswordReset(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}

	resetID, _, err := internal.DecodeOpaqueToken(challenge)
	if err != nil {
		t.Fatalf("DecodeOpaqueToken failed: %v", err)
	}
	wrongSecret, err := internal.NewOpaqueSecret()
	if err != nil {
		t.Fatalf("NewOpaqueSecret failed: %v", err)
	}
	forged, err := internal.EncodeOpaqueToken(resetID, wrongSecret)
	if err != nil {
		t.Fatalf("EncodeOpaqueToken failed: %v", err)
	}

	if err := engine.ConfirmPasswordReset(ctx, forged, "new-password-123"); !errors.Is(err, ErrResetInvalid) {
		t.Fatalf("expected ErrResetInvalid on first wrong secret, got %v", err)
	}
	if err := engine.ConfirmPasswordReset(ctx, forged, "new-password-123"); !errors.Is(err, ErrResetAttempts) {
		t.Fatalf("expected ErrResetAttempts once the budget is spent, got %v", err)
	}

	// The attempt cap destroyed the record; the genuine challenge is gone too.
	if err := engine.ConfirmPasswordReset(ctx, challenge, "new-password-123"); !errors.Is(err, ErrResetInvalid) {
		t.Fatalf("expected ErrResetInvalid after destruction, got %v", err)
	}
}

func TestPasswordResetDisabledFlow(t *testing.T) {
	_, rdb := newTestRedis(t)

	cfg := testConfig()
	cfg.PasswordReset.Enabled = false

	store := newMockUserStore()
	engine := newTestEngine(t, rdb, store, cfg)

	if _, err := engine.RequestPasswordReset(context.Background(), "alice@example.com"); !errors.Is(err, ErrResetDisabled) {
		t.Fatalf("expected ErrResetDisabled, got %v", err)
	}
	if err := engine.ConfirmPasswordReset(context.Background(), "whatever", "new-password-123"); !errors.Is(err, ErrResetDisabled) {
		t.Fatalf("expected ErrResetDisabled, got %v", err)
	}
}

func TestPasswordResetConfirmEnforcesPolicyBeforeRedemption(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	hasher := newTestHasher(t)
	store := newMockUserStore(seedUser(t, hasher, "u1", "alice@example.com", "old-password-123"))
	engine := newTestEngine(t, rdb, store, testConfig())
	engine.passwordHash = hasher

	challenge, err := engine.RequestPasswordReset(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}

	// A weak password must not consume the single-use challenge.
	if err := engine.ConfirmPasswordReset(ctx, challenge, "short"); !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("expected ErrPasswordPolicy, got %v", err)
	}
	if err := engine.ConfirmPasswordReset(ctx, challenge, "new-password-123"); err != nil {
		t.Fatalf("challenge should survive a policy rejection: %v", err)
	}
}
