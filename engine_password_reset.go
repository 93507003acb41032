package authcore

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"math/big"
	"time"

	"github.com/tauinbox/client-server-starter-app-sub001/internal"
	"github.com/tauinbox/client-server-starter-app-sub001/internal/stores"
)

// RequestPasswordReset describes the requestpasswordreset operation and its observable behavior.
//
// RequestPasswordReset may return an error when input validation, dependency calls, or security checks fail.
// RequestPasswordReset does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	if e == nil || e.resetStore == nil || e.users == nil {
		return "", ErrEngineNotReady
	}
	if !e.config.PasswordReset.Enabled {
		return "", ErrResetDisabled
	}

	identifier := normalizeEmail(email)
	if err := validateEmail(identifier); err != nil {
		return "", err
	}

	resetID, challenge, secretHash, err := e.generateResetChallenge()
	if err != nil {
		return "", err
	}

	user, err := e.users.GetByEmail(ctx, identifier)
	if err != nil || user.DeletedAt != nil || !user.IsActive {
		if err != nil && !errors.Is(err, ErrUserNotFound) {
			return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		// Unknown or unusable account: hand back a decoy challenge that was
		// never persisted, with a random delay so the latency profile
		// matches a real request. The caller cannot tell the difference.
		if err := e.sleepEnumerationDelay(ctx); err != nil {
			return "", err
		}
		e.metricInc(MetricPasswordResetRequest)
		e.emitAudit(ctx, auditEventPasswordResetRequest, true, "", "", "", nil, func() map[string]string {
			return map[string]string{
				"identifier": identifier,
				"known":      "false",
			}
		})
		return challenge, nil
	}

	now := time.Now()
	record := &stores.PasswordResetRecord{
		UserID:     user.ID,
		SecretHash: secretHash,
		ExpiresAt:  now.Add(e.config.PasswordReset.ResetTTL).Unix(),
	}
	if err := e.resetStore.Save(ctx, resetID, record, e.config.PasswordReset.ResetTTL); err != nil {
		return "", fmt.Errorf("%w: %v", ErrResetUnavailable, err)
	}

	e.metricInc(MetricPasswordResetRequest)
	e.emitAudit(ctx, auditEventPasswordResetRequest, true, user.ID, user.ID, "", nil, func() map[string]string {
		return map[string]string{
			"identifier": identifier,
			"known":      "true",
		}
	})

	return challenge, nil
}

// ConfirmPasswordReset describes the confirmpasswordreset operation and its observable behavior.
//
// ConfirmPasswordReset may return an error when input validation, dependency calls, or security checks fail.
// ConfirmPasswordReset does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ConfirmPasswordReset(ctx context.Context, challenge, newPassword string) error {
	if e == nil || e.resetStore == nil || e.passwordHash == nil {
		return ErrEngineNotReady
	}
	if !e.config.PasswordReset.Enabled {
		return ErrResetDisabled
	}

	if err := e.passwordPolicy.Check(newPassword); err != nil {
		return fmt.Errorf("%w: %v", ErrPasswordPolicy, err)
	}

	resetID, secret, err := internal.DecodeOpaqueToken(challenge)
	if err != nil {
		e.metricInc(MetricPasswordResetConfirmFailure)
		e.emitAudit(ctx, auditEventPasswordResetFailure, false, "", "", "", ErrResetInvalid, func() map[string]string {
			return map[string]string{
				"reason": "decode_failed",
			}
		})
		return ErrResetInvalid
	}

	record, err := e.resetStore.Consume(ctx, resetID, internal.HashOpaqueSecret(secret), e.config.PasswordReset.MaxAttempts)
	if err != nil {
		switch {
		case errors.Is(err, stores.ErrResetAttemptsExceeded):
			e.metricInc(MetricPasswordResetAttemptsExceeded)
			e.emitAudit(ctx, auditEventPasswordResetFailure, false, "", "", "", ErrResetAttempts, nil)
			return ErrResetAttempts
		case errors.Is(err, stores.ErrResetNotFound), errors.Is(err, stores.ErrResetSecretMismatch):
			e.metricInc(MetricPasswordResetConfirmFailure)
			e.emitAudit(ctx, auditEventPasswordResetFailure, false, "", "", "", ErrResetInvalid, nil)
			return ErrResetInvalid
		default:
			return fmt.Errorf("%w: %v", ErrResetUnavailable, err)
		}
	}

	user, err := e.users.GetByID(ctx, record.UserID)
	if err != nil || user.DeletedAt != nil {
		e.metricInc(MetricPasswordResetConfirmFailure)
		e.emitAudit(ctx, auditEventPasswordResetFailure, false, record.UserID, record.UserID, "", ErrResetInvalid, func() map[string]string {
			return map[string]string{
				"reason": "user_unavailable",
			}
		})
		return ErrResetInvalid
	}

	newHash, err := e.passwordHash.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPasswordPolicy, err)
	}
	newPassword = ""

	if err := e.users.UpdatePasswordHash(ctx, user.ID, newHash); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	// A successful reset proves control of the account's email, so any
	// standing lockout is released along with every open session and token.
	if err := e.users.ClearLockout(ctx, user.ID); err != nil {
		log.Print("authcore: lockout clear failed after password reset")
	}
	now := time.Now()
	if err := e.users.SetTokenRevokedAt(ctx, user.ID, now); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := e.sessionStore.DeleteAllForUser(ctx, user.ID); err != nil {
		log.Print("authcore: session invalidation failed after password reset")
		return fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
	}
	e.metricInc(MetricSessionInvalidated)

	e.metricInc(MetricPasswordResetConfirmSuccess)
	e.emitAudit(ctx, auditEventPasswordResetConfirm, true, user.ID, user.ID, "", nil, nil)

	return nil
}

func (e *Engine) generateResetChallenge() (string, string, [32]byte, error) {
	var emptyHash [32]byte

	id, err := internal.NewSessionID()
	if err != nil {
		return "", "", emptyHash, err
	}

	secret, err := internal.NewOpaqueSecret()
	if err != nil {
		return "", "", emptyHash, err
	}

	challenge, err := internal.EncodeOpaqueToken(id.String(), secret)
	if err != nil {
		return "", "", emptyHash, err
	}

	return id.String(), challenge, internal.HashOpaqueSecret(secret), nil
}

func (e *Engine) sleepEnumerationDelay(ctx context.Context) error {
	maxDelay := e.config.PasswordReset.EnumerationDelayMax
	if maxDelay <= 0 {
		return nil
	}

	n, err := rand.Int(rand.Reader, big.NewInt(int64(maxDelay)))
	if err != nil {
		return err
	}

	timer := time.NewTimer(time.Duration(n.Int64()))
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
