package authcore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
)

// GetProfile describes the getprofile operation and its observable behavior.
//
// GetProfile may return an error when input validation, dependency calls, or security checks fail.
// GetProfile does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	if e == nil || e.users == nil {
		return nil, ErrEngineNotReady
	}
	if userID == "" {
		return nil, fmt.Errorf("%w: user id required", ErrValidation)
	}

	user, err := e.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if user.DeletedAt != nil {
		return nil, ErrUserNotFound
	}

	profile := profileFromUser(user)
	return &profile, nil
}

// UpdateProfile describes the updateprofile operation and its observable behavior.
//
// UpdateProfile may return an error when input validation, dependency calls, or security checks fail.
// UpdateProfile does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) (*Profile, error) {
	if e == nil || e.users == nil {
		return nil, ErrEngineNotReady
	}
	if userID == "" {
		return nil, fmt.Errorf("%w: user id required", ErrValidation)
	}
	if update.Name == nil && update.Email == nil {
		return nil, fmt.Errorf("%w: nothing to update", ErrValidation)
	}

	if update.Email != nil {
		normalized := normalizeEmail(*update.Email)
		if err := validateEmail(normalized); err != nil {
			return nil, err
		}
		update.Email = &normalized
	}
	if update.Name != nil {
		trimmed := strings.TrimSpace(*update.Name)
		update.Name = &trimmed
	}

	user, err := e.users.UpdateProfile(ctx, userID, update)
	if err != nil {
		switch {
		case errors.Is(err, ErrUserNotFound):
			return nil, ErrUserNotFound
		case errors.Is(err, ErrAccountExists):
			return nil, ErrAccountExists
		default:
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}

	e.emitAudit(ctx, auditEventProfileUpdated, true, userID, userID, "", nil, func() map[string]string {
		details := map[string]string{}
		if update.Name != nil {
			details["name_changed"] = "true"
		}
		if update.Email != nil {
			details["email_changed"] = "true"
		}
		return details
	})

	profile := profileFromUser(user)
	return &profile, nil
}

// ChangePassword describes the changepassword operation and its observable behavior.
//
// ChangePassword may return an error when input validation, dependency calls, or security checks fail.
// ChangePassword does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if e == nil || e.passwordHash == nil {
		return ErrEngineNotReady
	}
	if userID == "" || oldPassword == "" || newPassword == "" {
		return fmt.Errorf("%w: all fields required", ErrValidation)
	}

	if err := e.passwordPolicy.Check(newPassword); err != nil {
		return fmt.Errorf("%w: %v", ErrPasswordPolicy, err)
	}

	user, err := e.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if user.DeletedAt != nil {
		return ErrUserNotFound
	}
	if !user.IsActive {
		return ErrAccountDisabled
	}

	oldOK, err := e.passwordHash.Verify(oldPassword, user.PasswordHash)
	if err != nil || !oldOK {
		e.metricInc(MetricPasswordChangeInvalidOld)
		e.emitAudit(ctx, auditEventPasswordChangeInvalidOld, false, userID, userID, "", ErrInvalidCredentials, nil)
		return ErrInvalidCredentials
	}

	samePassword, err := e.passwordHash.Verify(newPassword, user.PasswordHash)
	if err == nil && samePassword {
		e.emitAudit(ctx, auditEventPasswordChangeReuse, false, userID, userID, "", ErrPasswordReuse, nil)
		return ErrPasswordReuse
	}

	newHash, err := e.passwordHash.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPasswordPolicy, err)
	}

	if err := e.users.UpdatePasswordHash(ctx, userID, newHash); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	// The caller proved possession of the old password, so their own
	// session dies with the rest.
	if err := e.sessionStore.DeleteAllForUser(ctx, userID); err != nil {
		log.Print("authcore: session invalidation failed after password change")
		return fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
	}
	e.metricInc(MetricSessionInvalidated)

	if e.loginThrottleActive() {
		// Limiter reset is best-effort and must not block successful password change.
		if err := e.rateLimiter.ResetLogin(ctx, normalizeEmail(user.Email), clientIPFromContext(ctx)); err != nil {
			log.Print("authcore: login limiter reset failed after password change")
		}
	}

	oldPassword = ""
	newPassword = ""
	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditEventPasswordChangeSuccess, true, userID, userID, "", nil, nil)

	return nil
}
