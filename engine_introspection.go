package authcore

import (
	"context"
	"time"
)

// SessionInfo is the safe introspection view for a session.
// It intentionally excludes refresh hashes and token material.
type SessionInfo struct {
	SessionID string
	UserID    string
	Email     string
	Roles     []string
	CreatedAt int64
	ExpiresAt int64
}

// HealthStatus is an on-demand backend health result.
type HealthStatus struct {
	RedisAvailable bool
	RedisLatency   time.Duration
}

// GetActiveSessionCount describes the getactivesessioncount operation and its observable behavior.
//
// GetActiveSessionCount may return an error when input validation, dependency calls, or security checks fail.
// GetActiveSessionCount does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) GetActiveSessionCount(ctx context.Context, userID string) (int, error) {
	if e == nil || e.sessionStore == nil {
		return 0, ErrEngineNotReady
	}
	if userID == "" {
		return 0, ErrUserNotFound
	}

	return e.sessionStore.ActiveSessionCount(ctx, userID)
}

// ListActiveSessions describes the listactivesessions operation and its observable behavior.
//
// ListActiveSessions may return an error when input validation, dependency calls, or security checks fail.
// ListActiveSessions does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ListActiveSessions(ctx context.Context, userID string) ([]SessionInfo, error) {
	if e == nil || e.sessionStore == nil {
		return nil, ErrEngineNotReady
	}
	if userID == "" {
		return nil, ErrUserNotFound
	}

	sessionIDs, err := e.sessionStore.ActiveSessionIDs(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]SessionInfo, 0, len(sessionIDs))
	for _, sessionID := range sessionIDs {
		sess, err := e.sessionStore.Get(ctx, sessionID)
		if err != nil {
			// Expired or concurrently removed entries are skipped, not errors.
			continue
		}
		out = append(out, SessionInfo{
			SessionID: sess.SessionID,
			UserID:    sess.UserID,
			Email:     sess.Email,
			Roles:     append([]string(nil), sess.Roles...),
			CreatedAt: sess.CreatedAt,
			ExpiresAt: sess.ExpiresAt,
		})
	}

	return out, nil
}

// Health describes the health operation and its observable behavior.
//
// Health may return an error when input validation, dependency calls, or security checks fail.
// Health does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Health(ctx context.Context) HealthStatus {
	if e == nil || e.sessionStore == nil {
		return HealthStatus{}
	}

	latency, err := e.sessionStore.Ping(ctx)
	return HealthStatus{
		RedisAvailable: err == nil,
		RedisLatency:   latency,
	}
}

// SecurityReport describes the securityreport operation and its observable behavior.
//
// SecurityReport may return an error when input validation, dependency calls, or security checks fail.
// SecurityReport does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	return SecurityReport{
		ProductionMode:   e.config.Security.ProductionMode,
		SigningAlgorithm: e.config.JWT.SigningMethod,
		AccessTTL:        e.config.JWT.AccessTTL,
		RefreshTTL:       e.config.JWT.RefreshTTL,
		Argon2: PasswordConfigReport{
			Memory:      e.config.Password.Memory,
			Time:        e.config.Password.Time,
			Parallelism: e.config.Password.Parallelism,
			SaltLength:  e.config.Password.SaltLength,
			KeyLength:   e.config.Password.KeyLength,
		},
		LockoutThreshold:             e.config.Lockout.Threshold,
		LockoutWindow:                e.config.Lockout.Window,
		RefreshRotationEnabled:       e.config.Security.EnforceRefreshRotation,
		RefreshReuseDetectionEnabled: e.config.Security.EnforceRefreshReuseDetection,
		RateLimitingActive: e.config.RateLimit.EnableIdentifierThrottle ||
			e.config.RateLimit.EnableIPThrottle ||
			e.config.RateLimit.EnableRefreshThrottle,
		EmailVerificationActive: e.config.EmailVerification.Enabled,
		PasswordResetActive:     e.config.PasswordReset.Enabled,
	}
}
