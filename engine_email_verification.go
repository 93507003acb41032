package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tauinbox/client-server-starter-app-sub001/internal"
	"github.com/tauinbox/client-server-starter-app-sub001/internal/stores"
)

// RequestEmailVerification describes the requestemailverification operation and its observable behavior.
//
// RequestEmailVerification may return an error when input validation, dependency calls, or security checks fail.
// RequestEmailVerification does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) RequestEmailVerification(ctx context.Context, email string) (string, error) {
	if e == nil || e.verificationStore == nil || e.users == nil {
		return "", ErrEngineNotReady
	}
	if !e.config.EmailVerification.Enabled {
		return "", ErrVerificationDisabled
	}

	identifier := normalizeEmail(email)
	if err := validateEmail(identifier); err != nil {
		return "", err
	}

	verificationID, challenge, secretHash, err := e.generateResetChallenge()
	if err != nil {
		return "", err
	}

	user, err := e.users.GetByEmail(ctx, identifier)
	if err != nil || user.DeletedAt != nil || !user.IsActive || user.EmailVerified {
		if err != nil && !errors.Is(err, ErrUserNotFound) {
			return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		// Unknown, unusable, or already-verified account: the decoy keeps
		// the response shape identical for every input.
		if err := e.sleepEnumerationDelay(ctx); err != nil {
			return "", err
		}
		e.metricInc(MetricEmailVerificationRequest)
		e.emitAudit(ctx, auditEventEmailVerificationRequest, true, "", "", "", nil, func() map[string]string {
			return map[string]string{
				"identifier": identifier,
				"known":      "false",
			}
		})
		return challenge, nil
	}

	now := time.Now()
	record := &stores.EmailVerificationRecord{
		UserID:     user.ID,
		SecretHash: secretHash,
		ExpiresAt:  now.Add(e.config.EmailVerification.VerificationTTL).Unix(),
	}
	// Save replaces the user's outstanding record, so resending always
	// leaves exactly one redeemable token.
	if err := e.verificationStore.Save(ctx, verificationID, record, e.config.EmailVerification.VerificationTTL); err != nil {
		return "", fmt.Errorf("%w: %v", ErrVerificationUnavailable, err)
	}

	e.metricInc(MetricEmailVerificationRequest)
	e.emitAudit(ctx, auditEventEmailVerificationRequest, true, user.ID, user.ID, "", nil, func() map[string]string {
		return map[string]string{
			"identifier": identifier,
			"known":      "true",
		}
	})

	return challenge, nil
}

// mintVerificationChallenge issues a fresh verification record for the user
// and returns the opaque challenge. Any outstanding record for the user is
// replaced, so at most one challenge is redeemable at a time.
func (e *Engine) mintVerificationChallenge(ctx context.Context, userID string) (string, error) {
	verificationID, challenge, secretHash, err := e.generateResetChallenge()
	if err != nil {
		return "", err
	}

	record := &stores.EmailVerificationRecord{
		UserID:     userID,
		SecretHash: secretHash,
		ExpiresAt:  time.Now().Add(e.config.EmailVerification.VerificationTTL).Unix(),
	}
	if err := e.verificationStore.Save(ctx, verificationID, record, e.config.EmailVerification.VerificationTTL); err != nil {
		return "", fmt.Errorf("%w: %v", ErrVerificationUnavailable, err)
	}
	return challenge, nil
}

// ConfirmEmailVerification describes the confirmemailverification operation and its observable behavior.
//
// ConfirmEmailVerification may return an error when input validation, dependency calls, or security checks fail.
// ConfirmEmailVerification does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ConfirmEmailVerification(ctx context.Context, challenge string) error {
	if e == nil || e.verificationStore == nil || e.users == nil {
		return ErrEngineNotReady
	}
	if !e.config.EmailVerification.Enabled {
		return ErrVerificationDisabled
	}

	verificationID, secret, err := internal.DecodeOpaqueToken(challenge)
	if err != nil {
		e.metricInc(MetricEmailVerificationFailure)
		e.emitAudit(ctx, auditEventEmailVerificationFailure, false, "", "", "", ErrVerificationInvalid, func() map[string]string {
			return map[string]string{
				"reason": "decode_failed",
			}
		})
		return ErrVerificationInvalid
	}

	record, err := e.verificationStore.Consume(ctx, verificationID, internal.HashOpaqueSecret(secret), e.config.EmailVerification.MaxAttempts)
	if err != nil {
		switch {
		case errors.Is(err, stores.ErrVerificationAttemptsExceeded):
			e.metricInc(MetricEmailVerificationFailure)
			e.emitAudit(ctx, auditEventEmailVerificationFailure, false, "", "", "", ErrVerificationAttempts, nil)
			return ErrVerificationAttempts
		case errors.Is(err, stores.ErrVerificationNotFound), errors.Is(err, stores.ErrVerificationSecretMismatch):
			e.metricInc(MetricEmailVerificationFailure)
			e.emitAudit(ctx, auditEventEmailVerificationFailure, false, "", "", "", ErrVerificationInvalid, nil)
			return ErrVerificationInvalid
		default:
			return fmt.Errorf("%w: %v", ErrVerificationUnavailable, err)
		}
	}

	user, err := e.users.GetByID(ctx, record.UserID)
	if err != nil || user.DeletedAt != nil {
		e.metricInc(MetricEmailVerificationFailure)
		e.emitAudit(ctx, auditEventEmailVerificationFailure, false, record.UserID, record.UserID, "", ErrVerificationInvalid, func() map[string]string {
			return map[string]string{
				"reason": "user_unavailable",
			}
		})
		return ErrVerificationInvalid
	}

	if !user.EmailVerified {
		if err := e.users.SetEmailVerified(ctx, user.ID, true); err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}

	e.metricInc(MetricEmailVerificationSuccess)
	e.emitAudit(ctx, auditEventEmailVerificationConfirm, true, user.ID, user.ID, "", nil, nil)

	return nil
}
