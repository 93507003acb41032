package authcore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/tauinbox/client-server-starter-app-sub001/internal"
	"github.com/tauinbox/client-server-starter-app-sub001/session"
)

// Login describes the login operation and its observable behavior.
//
// Login may return an error when input validation, dependency calls, or security checks fail.
// Login does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	if e == nil || e.passwordHash == nil {
		return nil, ErrEngineNotReady
	}

	ip := clientIPFromContext(ctx)
	identifier := normalizeEmail(email)

	if e.loginThrottleActive() {
		if err := e.rateLimiter.CheckLogin(ctx, identifier, ip); err != nil {
			e.metricInc(MetricLoginRateLimited)
			e.emitAudit(ctx, auditEventLoginRateLimited, false, "", "", "", ErrLoginRateLimited, func() map[string]string {
				return map[string]string{
					"identifier": identifier,
				}
			})
			return nil, ErrLoginRateLimited
		}
	}

	if identifier == "" || password == "" {
		if err := e.incrementLoginThrottle(ctx, identifier, ip); err != nil {
			return nil, err
		}
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", "", "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{
				"identifier": identifier,
				"reason":     "empty_input",
			}
		})
		return nil, ErrInvalidCredentials
	}

	user, err := e.users.GetByEmail(ctx, identifier)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if err := e.incrementLoginThrottle(ctx, identifier, ip); err != nil {
			return nil, err
		}
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", "", "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{
				"identifier": identifier,
				"reason":     "user_not_found",
			}
		})
		return nil, ErrInvalidCredentials
	}

	if user.DeletedAt != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.ID, "", "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{
				"identifier": identifier,
				"reason":     "account_deleted",
			}
		})
		return nil, ErrInvalidCredentials
	}

	now := time.Now()

	// Locked accounts are rejected before password verification so a lock
	// cannot be probed for the correct password, and a failed attempt
	// against a locked account never extends the lock.
	if e.config.Lockout.Enabled && user.Locked(now) {
		e.metricInc(MetricLoginLocked)
		lockErr := lockedError(*user.LockedUntil, now)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.ID, "", "", lockErr, func() map[string]string {
			return map[string]string{
				"identifier": identifier,
				"reason":     "account_locked",
			}
		})
		return nil, lockErr
	}

	ok, verifyErr := e.passwordHash.Verify(password, user.PasswordHash)
	if verifyErr != nil || !ok {
		if err := e.incrementLoginThrottle(ctx, identifier, ip); err != nil {
			return nil, err
		}
		if lockErr := e.recordLoginFailure(ctx, user, identifier, now); lockErr != nil {
			return nil, lockErr
		}
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.ID, "", "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{
				"identifier": identifier,
				"reason":     "password_mismatch",
			}
		})
		return nil, ErrInvalidCredentials
	}

	if !user.IsActive {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.ID, "", "", ErrAccountDisabled, func() map[string]string {
			return map[string]string{
				"identifier": identifier,
				"reason":     "account_disabled",
			}
		})
		return nil, ErrAccountDisabled
	}

	// The unverified check runs after password verification so the error is
	// only ever revealed to a caller holding the correct credentials.
	if e.config.EmailVerification.RequireForLogin && !user.EmailVerified {
		e.metricInc(MetricLoginUnverified)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.ID, "", "", ErrAccountUnverified, func() map[string]string {
			return map[string]string{
				"identifier": identifier,
				"reason":     "pending_verification",
			}
		})
		return nil, ErrAccountUnverified
	}

	if user.FailedLoginAttempts > 0 || user.LockedUntil != nil {
		// Clear is best-effort; a stale counter only survives until the
		// next failed attempt restarts it.
		if err := e.users.ClearLockout(ctx, user.ID); err != nil {
			log.Print("authcore: lockout clear failed")
		}
	}

	if e.config.Password.UpgradeOnLogin {
		if needsUpgrade, err := e.passwordHash.NeedsUpgrade(user.PasswordHash); err == nil && needsUpgrade {
			if upgradedHash, err := e.passwordHash.Hash(password); err == nil {
				// Rehash update is best-effort and must not block successful login.
				if err := e.users.UpdatePasswordHash(ctx, user.ID, upgradedHash); err != nil {
					log.Print("authcore: password hash upgrade update failed")
				}
			} else {
				log.Print("authcore: password hash upgrade generation failed")
			}
		}
	}
	password = ""

	tokens, sess, err := e.createSession(ctx, user)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.ID, "", "", err, func() map[string]string {
			return map[string]string{
				"identifier": identifier,
				"reason":     "session_creation_failed",
			}
		})
		return nil, err
	}

	if e.loginThrottleActive() {
		if err := e.rateLimiter.ResetLogin(ctx, identifier, ip); err != nil {
			log.Print("authcore: login throttle reset failed")
		}
	}

	e.metricInc(MetricSessionCreated)
	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, user.ID, "", sess.SessionID, nil, func() map[string]string {
		return map[string]string{
			"identifier": identifier,
		}
	})

	return &LoginResult{
		Tokens:  tokens,
		Profile: profileFromUser(user),
	}, nil
}

// recordLoginFailure advances the persistent failure counter and trips the
// lock when the threshold is crossed. Returns a non-nil error only when the
// account transitioned into the locked state on this attempt.
func (e *Engine) recordLoginFailure(ctx context.Context, user *User, identifier string, now time.Time) error {
	if !e.config.Lockout.Enabled {
		return nil
	}

	count, err := e.users.RecordLoginFailure(ctx, user.ID, now)
	if err != nil {
		log.Print("authcore: login failure count update failed")
		return nil
	}

	if count < e.config.Lockout.Threshold {
		return nil
	}

	until := now.Add(e.config.Lockout.Window)
	if err := e.users.LockUser(ctx, user.ID, until); err != nil {
		log.Print("authcore: account lock update failed")
		return nil
	}

	e.metricInc(MetricAccountLocked)
	e.emitAudit(ctx, auditEventAccountLocked, false, user.ID, "", "", ErrAccountLocked, func() map[string]string {
		return map[string]string{
			"identifier": identifier,
			"attempts":   strconv.Itoa(count),
		}
	})

	return lockedError(until, now)
}

func (e *Engine) createSession(ctx context.Context, user *User) (TokenPair, *session.Session, error) {
	sid, err := internal.NewSessionID()
	if err != nil {
		return TokenPair{}, nil, err
	}
	sessionID := sid.String()

	refreshSecret, err := internal.NewRefreshSecret()
	if err != nil {
		return TokenPair{}, nil, err
	}

	now := time.Now()
	lifetime := e.config.JWT.RefreshTTL

	sess := &session.Session{
		SessionID:   sessionID,
		UserID:      user.ID,
		Email:       user.Email,
		Roles:       append([]string(nil), user.Roles...),
		RefreshHash: internal.HashRefreshSecret(refreshSecret),
		CreatedAt:   now.Unix(),
		ExpiresAt:   now.Add(lifetime).Unix(),
	}

	if err := e.sessionStore.Save(ctx, sess, lifetime); err != nil {
		return TokenPair{}, nil, fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
	}

	access, err := e.issueAccessToken(sess)
	if err != nil {
		return TokenPair{}, nil, err
	}

	refresh, err := internal.EncodeRefreshToken(sessionID, refreshSecret)
	if err != nil {
		return TokenPair{}, nil, err
	}

	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  now.Add(e.config.JWT.AccessTTL),
		RefreshExpiresAt: time.Unix(sess.ExpiresAt, 0),
	}, sess, nil
}

func (e *Engine) issueAccessToken(sess *session.Session) (string, error) {
	access, err := e.jwtManager.CreateAccess(sess.UserID, sess.SessionID, sess.Email, sess.Roles)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	return access, nil
}

func (e *Engine) loginThrottleActive() bool {
	return e.rateLimiter != nil &&
		(e.config.RateLimit.EnableIdentifierThrottle || e.config.RateLimit.EnableIPThrottle)
}

func (e *Engine) incrementLoginThrottle(ctx context.Context, identifier, ip string) error {
	if !e.loginThrottleActive() {
		return nil
	}
	if err := e.rateLimiter.IncrementLogin(ctx, identifier, ip); err != nil {
		e.metricInc(MetricLoginRateLimited)
		e.emitAudit(ctx, auditEventLoginRateLimited, false, "", "", "", ErrLoginRateLimited, func() map[string]string {
			return map[string]string{
				"identifier": identifier,
			}
		})
		return ErrLoginRateLimited
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func profileFromUser(u *User) Profile {
	return Profile{
		ID:            u.ID,
		Email:         u.Email,
		Name:          u.Name,
		Roles:         append([]string(nil), u.Roles...),
		IsActive:      u.IsActive,
		EmailVerified: u.EmailVerified,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
}
