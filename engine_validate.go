package authcore

import (
	"context"
	"time"
)

// ValidateAccess describes the validateaccess operation and its observable behavior.
//
// ValidateAccess may return an error when input validation, dependency calls, or security checks fail.
// ValidateAccess does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ValidateAccess(ctx context.Context, tokenStr string) (*AuthResult, error) {
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}

	if e.metrics != nil && e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() {
			e.metrics.Observe(MetricValidateLatency, time.Since(start))
		}()
	}

	claims, err := e.jwtManager.ParseAccess(tokenStr)
	if err != nil {
		return nil, ErrTokenInvalid
	}
	if claims.UID == "" || claims.IssuedAt == nil || claims.ExpiresAt == nil {
		return nil, ErrTokenInvalid
	}

	// Every failure below collapses to ErrTokenInvalid: callers of a token
	// check learn nothing about why the subject was rejected.
	user, err := e.users.GetByID(ctx, claims.UID)
	if err != nil {
		return nil, ErrTokenInvalid
	}
	if user.DeletedAt != nil || !user.IsActive {
		return nil, ErrTokenInvalid
	}

	// Revocation watermark: only tokens issued strictly after the watermark
	// survive. A token minted in the same instant as the revocation is
	// treated as revoked.
	if user.TokenRevokedAt != nil && !claims.IssuedAt.Time.After(*user.TokenRevokedAt) {
		return nil, ErrTokenInvalid
	}

	return &AuthResult{
		UserID:    user.ID,
		Email:     user.Email,
		Roles:     append([]string(nil), user.Roles...),
		SessionID: claims.SID,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
