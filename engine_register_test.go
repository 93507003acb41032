package authcore

import (
	"context"
	"errors"
	"testing"
)

func TestRegisterCreatesAccountWithDefaultRole(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	store := newMockUserStore()
	engine := newTestEngine(t, rdb, store, testConfig())

	result, err := engine.Register(ctx, RegisterInput{
		Email:    "Bob@Example.com",
		Name:     "  Bob  ",
		Password: "strong-password-1",
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if result.Profile.Email != "bob@example.com" {
		t.Fatalf("expected normalized email, got %q", result.Profile.Email)
	}
	if result.Profile.Name != "Bob" {
		t.Fatalf("expected trimmed name, got %q", result.Profile.Name)
	}
	if len(result.Profile.Roles) != 1 || result.Profile.Roles[0] != "user" {
		t.Fatalf("expected default role, got %v", result.Profile.Roles)
	}
	if result.Tokens == nil || result.Tokens.AccessToken == "" {
		t.Fatal("expected auto-login tokens")
	}

	if _, err := engine.ValidateAccess(ctx, result.Tokens.AccessToken); err != nil {
		t.Fatalf("auto-login token rejected: %v", err)
	}

	if _, err := engine.Login(ctx, "bob@example.com", "strong-password-1"); err != nil {
		t.Fatalf("login with registered credentials failed: %v", err)
	}
}

func TestRegisterMintsVerificationChallenge(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	store := newMockUserStore()
	engine := newTestEngine(t, rdb, store, verificationConfig())

	result, err := engine.Register(ctx, RegisterInput{Email: "bob@example.com", Password: "strong-password-1"})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if result.VerificationChallenge == "" {
		t.Fatal("expected a verification challenge on registration")
	}
	if result.Tokens != nil {
		t.Fatal("unverified account must not auto-login")
	}

	// The registration challenge redeems without a separate request call.
	if err := engine.ConfirmEmailVerification(ctx, result.VerificationChallenge); err != nil {
		t.Fatalf("ConfirmEmailVerification failed: %v", err)
	}
	if _, err := engine.Login(ctx, "bob@example.com", "strong-password-1"); err != nil {
		t.Fatalf("login after verification failed: %v", err)
	}
}

func TestRegisterChallengeEmptyWhenVerificationDisabled(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	store := newMockUserStore()
	engine := newTestEngine(t, rdb, store, testConfig())

	result, err := engine.Register(ctx, RegisterInput{Email: "bob@example.com", Password: "strong-password-1"})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if result.VerificationChallenge != "" {
		t.Fatalf("unexpected challenge with verification disabled: %q", result.VerificationChallenge)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	store := newMockUserStore()
	engine := newTestEngine(t, rdb, store, testConfig())

	input := RegisterInput{Email: "bob@example.com", Password: "strong-password-1"}
	if _, err := engine.Register(ctx, input); err != nil {
		t.Fatalf("first Register failed: %v", err)
	}

	input.Password = "strong-password-1"
	if _, err := engine.Register(ctx, input); !errors.Is(err, ErrAccountExists) {
		t.Fatalf("expected ErrAccountExists, got %v", err)
	}

	// Case variants collide too.
	input.Email = "BOB@example.com"
	input.Password = "strong-password-1"
	if _, err := engine.Register(ctx, input); !errors.Is(err, ErrAccountExists) {
		t.Fatalf("expected ErrAccountExists for case variant, got %v", err)
	}
}

func TestRegisterRejectsWeakPassword(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := newMockUserStore()
	engine := newTestEngine(t, rdb, store, testConfig())

	_, err := engine.Register(context.Background(), RegisterInput{
		Email:    "bob@example.com",
		Password: "short",
	})
	if !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("expected ErrPasswordPolicy, got %v", err)
	}
}

func TestRegisterRejectsMalformedEmail(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := newMockUserStore()
	engine := newTestEngine(t, rdb, store, testConfig())

	for _, email := range []string{"", "no-at-sign", "@leading", "trailing@", "two words@example.com"} {
		_, err := engine.Register(context.Background(), RegisterInput{
			Email:    email,
			Password: "strong-password-1",
		})
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("expected ErrValidation for %q, got %v", email, err)
		}
	}
}

func TestRegisterRejectsUnknownRole(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := newMockUserStore()
	engine := newTestEngine(t, rdb, store, testConfig())

	_, err := engine.Register(context.Background(), RegisterInput{
		Email:    "bob@example.com",
		Password: "strong-password-1",
		Roles:    []string{"superuser"},
	})
	if !errors.Is(err, ErrRoleNotFound) {
		t.Fatalf("expected ErrRoleNotFound, got %v", err)
	}
}

func TestRegisterWithholdsTokensUntilVerification(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	cfg := testConfig()
	cfg.EmailVerification.Enabled = true
	cfg.EmailVerification.RequireForLogin = true

	store := newMockUserStore()
	engine := newTestEngine(t, rdb, store, cfg)

	result, err := engine.Register(ctx, RegisterInput{
		Email:    "bob@example.com",
		Password: "strong-password-1",
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if result.Tokens != nil {
		t.Fatal("expected no tokens while verification is pending")
	}
	if result.Profile.EmailVerified {
		t.Fatal("expected account to start unverified")
	}

	if _, err := engine.Login(ctx, "bob@example.com", "strong-password-1"); !errors.Is(err, ErrAccountUnverified) {
		t.Fatalf("expected ErrAccountUnverified, got %v", err)
	}
}

func TestLinkExternalUserCreatesPasswordlessAccount(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	store := newMockUserStore()
	engine := newTestEngine(t, rdb, store, testConfig())

	input := ExternalLinkInput{
		Provider:      "github",
		ExternalID:    "gh-123",
		Email:         "carol@example.com",
		Name:          "Carol",
		EmailVerified: true,
	}

	profile, err := engine.LinkExternalUser(ctx, input)
	if err != nil {
		t.Fatalf("LinkExternalUser failed: %v", err)
	}
	if profile.Email != "carol@example.com" {
		t.Fatalf("unexpected email: %q", profile.Email)
	}

	// Linking the same identity again returns the existing account.
	again, err := engine.LinkExternalUser(ctx, input)
	if err != nil {
		t.Fatalf("second LinkExternalUser failed: %v", err)
	}
	if again.ID != profile.ID {
		t.Fatalf("expected idempotent link, got %q vs %q", again.ID, profile.ID)
	}

	// A passwordless account fails every password login.
	if _, err := engine.Login(ctx, "carol@example.com", "any-password-1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLinkExternalUserConflictsWithPasswordAccount(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	store := newMockUserStore()
	engine := newTestEngine(t, rdb, store, testConfig())

	if _, err := engine.Register(ctx, RegisterInput{Email: "carol@example.com", Password: "strong-password-1"}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	_, err := engine.LinkExternalUser(ctx, ExternalLinkInput{
		Provider:   "github",
		ExternalID: "gh-123",
		Email:      "carol@example.com",
	})
	if !errors.Is(err, ErrAccountExists) {
		t.Fatalf("expected ErrAccountExists, got %v", err)
	}
}

func TestLinkExternalUserRequiresProvider(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := newMockUserStore()
	engine := newTestEngine(t, rdb, store, testConfig())

	_, err := engine.LinkExternalUser(context.Background(), ExternalLinkInput{Email: "carol@example.com"})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}
