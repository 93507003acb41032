package authcore

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCredentials is the single undifferentiated login failure:
	// unknown email, wrong password, and soft-deleted accounts all collapse
	// into it to prevent account enumeration.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserNotFound is returned by lookups that are allowed to be specific
	// (admin operations on a known identifier).
	ErrUserNotFound = errors.New("user not found")
	// ErrAccountExists is returned by registration on a duplicate email.
	ErrAccountExists = errors.New("account already exists")
	// ErrAccountUnverified is returned when credentials are correct but the
	// email address has not been verified yet.
	ErrAccountUnverified = errors.New("account unverified")
	// ErrAccountDisabled is returned when the account has been deactivated
	// by an administrator.
	ErrAccountDisabled = errors.New("account disabled")
	// ErrAccountLocked is the sentinel matched by [LockedError]; use
	// errors.Is against it and errors.As for the retry-after value.
	ErrAccountLocked = errors.New("account temporarily locked")
	// ErrAccountDeleted marks soft-deleted accounts on paths that already
	// hold a valid identifier.
	ErrAccountDeleted = errors.New("account deleted")
	// ErrValidation is the taxonomy root for malformed input.
	ErrValidation = errors.New("invalid input")
	// ErrPasswordPolicy is returned when a new password fails the configured
	// complexity policy.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrPasswordReuse rejects password changes that keep the old password.
	ErrPasswordReuse = errors.New("new password must be different from current password")
	// ErrTokenInvalid is the single undifferentiated access-token failure:
	// malformed, bad signature, expired, and revoked all collapse into it.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrRefreshInvalid is the single undifferentiated refresh failure:
	// unknown, expired, and already-redeemed tokens all collapse into it.
	ErrRefreshInvalid = errors.New("invalid refresh token")
	// ErrRefreshReuse marks a rotation that presented a stale secret for a
	// live session. It is always returned joined with [ErrRefreshInvalid],
	// so hosts matching the undifferentiated sentinel handle replays too;
	// match ErrRefreshReuse only for reuse-specific handling.
	ErrRefreshReuse = errors.New("refresh token reuse detected")
	// ErrPermissionDenied is returned when the subject is authenticated but
	// holds no grant covering the requested action.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrLoginRateLimited is returned when the login throttle rejects the
	// attempt before credentials are evaluated.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrRefreshRateLimited is returned when the refresh throttle rejects
	// the rotation attempt.
	ErrRefreshRateLimited = errors.New("refresh rate limited")
	// ErrResetDisabled is returned when the password reset flow is not
	// enabled in the configuration.
	ErrResetDisabled = errors.New("password reset disabled")
	// ErrResetInvalid is the generic "invalid or expired token" failure for
	// password reset redemption.
	ErrResetInvalid = errors.New("password reset token invalid or expired")
	// ErrResetAttempts is returned when a reset record exhausted its
	// wrong-secret attempt budget.
	ErrResetAttempts = errors.New("password reset attempts exceeded")
	// ErrResetUnavailable wraps backend failures on the reset path.
	ErrResetUnavailable = errors.New("password reset backend unavailable")
	// ErrVerificationDisabled is returned when the email verification flow
	// is not enabled in the configuration.
	ErrVerificationDisabled = errors.New("email verification disabled")
	// ErrVerificationInvalid is the generic "invalid or expired token"
	// failure for email verification redemption.
	ErrVerificationInvalid = errors.New("verification token invalid or expired")
	// ErrVerificationAttempts is returned when a verification record
	// exhausted its wrong-secret attempt budget.
	ErrVerificationAttempts = errors.New("verification attempts exceeded")
	// ErrVerificationUnavailable wraps backend failures on the verification
	// path.
	ErrVerificationUnavailable = errors.New("verification backend unavailable")
	// ErrSessionUnavailable wraps session store backend failures.
	ErrSessionUnavailable = errors.New("session backend unavailable")
	// ErrStoreUnavailable is the taxonomy root for persistence failures
	// surfaced by UserStore implementations.
	ErrStoreUnavailable = errors.New("user store unavailable")
	// ErrRoleNotFound is returned by role administration on unknown names.
	ErrRoleNotFound = errors.New("role not found")
	// ErrRoleExists is returned when creating a role whose name is already
	// taken by a non-deleted role.
	ErrRoleExists = errors.New("role already exists")
	// ErrSystemRole rejects rename/delete of built-in roles.
	ErrSystemRole = errors.New("system role cannot be modified")
	// ErrEngineNotReady is returned when an Engine method is invoked before
	// Build wired its dependencies.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// LockedError reports that an account is inside its lockout window. It
// matches [ErrAccountLocked] under errors.Is so callers can branch on the
// taxonomy without losing the retry-after value.
type LockedError struct {
	RetryAfter time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account temporarily locked, retry after %s", e.RetryAfter.Round(time.Second))
}

func (e *LockedError) Is(target error) bool {
	return target == ErrAccountLocked
}

func lockedError(until time.Time, now time.Time) error {
	retry := until.Sub(now)
	if retry < 0 {
		retry = 0
	}
	return &LockedError{RetryAfter: retry}
}
