package authcore

import (
	"context"
	"errors"
	"testing"
)

func TestGetActiveSessionCountTracksLoginsAndLogouts(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	hasher := newTestHasher(t)
	store := newMockUserStore(seedUser(t, hasher, "u1", "alice@example.com", "correct-horse-1"))
	engine := newTestEngine(t, rdb, store, testConfig())

	count, err := engine.GetActiveSessionCount(ctx, "u1")
	if err != nil {
		t.Fatalf("GetActiveSessionCount failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 sessions before login, got %d", count)
	}

	first := loginTestUser(t, engine)
	loginTestUser(t, engine)

	count, err = engine.GetActiveSessionCount(ctx, "u1")
	if err != nil {
		t.Fatalf("GetActiveSessionCount failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 sessions, got %d", count)
	}

	if err := engine.LogoutByAccessToken(ctx, first.Tokens.AccessToken); err != nil {
		t.Fatalf("LogoutByAccessToken failed: %v", err)
	}

	count, err = engine.GetActiveSessionCount(ctx, "u1")
	if err != nil {
		t.Fatalf("GetActiveSessionCount failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 session after logout, got %d", count)
	}

	if _, err := engine.GetActiveSessionCount(ctx, ""); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("empty user id: got %v, want ErrUserNotFound", err)
	}
}

func TestListActiveSessionsReturnsSafeViews(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	hasher := newTestHasher(t)
	store := newMockUserStore(seedUser(t, hasher, "u1", "alice@example.com", "correct-horse-1"))
	engine := newTestEngine(t, rdb, store, testConfig())

	loginTestUser(t, engine)
	loginTestUser(t, engine)

	sessions, err := engine.ListActiveSessions(ctx, "u1")
	if err != nil {
		t.Fatalf("ListActiveSessions failed: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	for _, info := range sessions {
		if info.SessionID == "" || info.UserID != "u1" || info.Email != "alice@example.com" {
			t.Fatalf("unexpected session view: %+v", info)
		}
		if info.ExpiresAt <= info.CreatedAt {
			t.Fatalf("expiry not after creation: %+v", info)
		}
	}
}

func TestListActiveSessionsSkipsVanishedEntries(t *testing.T) {
	mr, rdb := newTestRedis(t)
	ctx := context.Background()

	hasher := newTestHasher(t)
	store := newMockUserStore(seedUser(t, hasher, "u1", "alice@example.com", "correct-horse-1"))
	engine := newTestEngine(t, rdb, store, testConfig())

	loginTestUser(t, engine)
	loginTestUser(t, engine)

	sessions, err := engine.ListActiveSessions(ctx, "u1")
	if err != nil {
		t.Fatalf("ListActiveSessions failed: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}

	// Drop one session blob behind the index, as TTL expiry would.
	mr.Del("ac:" + sessions[0].SessionID)

	sessions, err = engine.ListActiveSessions(ctx, "u1")
	if err != nil {
		t.Fatalf("ListActiveSessions failed: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected vanished entry to be skipped, got %d sessions", len(sessions))
	}
}

func TestHealthReportsRedisAvailability(t *testing.T) {
	mr, rdb := newTestRedis(t)
	ctx := context.Background()

	hasher := newTestHasher(t)
	store := newMockUserStore(seedUser(t, hasher, "u1", "alice@example.com", "correct-horse-1"))
	engine := newTestEngine(t, rdb, store, testConfig())

	status := engine.Health(ctx)
	if !status.RedisAvailable {
		t.Fatal("expected healthy redis")
	}
	if status.RedisLatency <= 0 {
		t.Fatalf("expected positive latency, got %v", status.RedisLatency)
	}

	mr.Close()

	status = engine.Health(ctx)
	if status.RedisAvailable {
		t.Fatal("expected unhealthy redis after shutdown")
	}
}

func TestSecurityReportReflectsConfig(t *testing.T) {
	_, rdb := newTestRedis(t)

	cfg := testConfig()
	cfg.EmailVerification.Enabled = true
	store := newMockUserStore()
	engine := newTestEngine(t, rdb, store, cfg)

	report := engine.SecurityReport()
	if report.SigningAlgorithm != "hs256" {
		t.Fatalf("unexpected algorithm: %q", report.SigningAlgorithm)
	}
	if report.AccessTTL != cfg.JWT.AccessTTL || report.RefreshTTL != cfg.JWT.RefreshTTL {
		t.Fatalf("token TTLs not reported: %+v", report)
	}
	if report.LockoutThreshold != cfg.Lockout.Threshold || report.LockoutWindow != cfg.Lockout.Window {
		t.Fatalf("lockout settings not reported: %+v", report)
	}
	if report.Argon2.Memory != cfg.Password.Memory || report.Argon2.KeyLength != cfg.Password.KeyLength {
		t.Fatalf("argon2 settings not reported: %+v", report)
	}
	if !report.RefreshRotationEnabled || !report.RefreshReuseDetectionEnabled {
		t.Fatalf("rotation flags not reported: %+v", report)
	}
	if !report.EmailVerificationActive || !report.PasswordResetActive {
		t.Fatalf("flow flags not reported: %+v", report)
	}
}
