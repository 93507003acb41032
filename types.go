package authcore

import (
	"context"
	"io"
	"time"

	internalaudit "github.com/tauinbox/client-server-starter-app-sub001/internal/audit"
	internalmetrics "github.com/tauinbox/client-server-starter-app-sub001/internal/metrics"
)

// User is the full account record exchanged with a [UserStore]. It carries
// the credential hash, verification and lifecycle flags, lockout state, the
// revocation watermark, and the assigned role names.
type User struct {
	ID            string
	Email         string
	Name          string
	PasswordHash  string
	Roles         []string
	IsActive      bool
	EmailVerified bool

	// FailedLoginAttempts and LockedUntil hold the lockout state machine.
	// LockedUntil is nil when the account is not locked.
	FailedLoginAttempts int
	LockedUntil         *time.Time

	// TokenRevokedAt is the access-token revocation watermark. Tokens issued
	// at or before this instant are rejected by [Engine.ValidateAccess].
	// Nil means no revocation has happened.
	TokenRevokedAt *time.Time

	// ExternalProvider is non-empty for accounts created through
	// [Engine.LinkExternalUser]. Such accounts may carry an empty
	// PasswordHash and fail every password login.
	ExternalProvider string
	ExternalID       string

	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// Locked reports whether the account is inside an unexpired lockout window.
func (u *User) Locked(now time.Time) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(now)
}

// Profile is the caller-visible subset of [User] returned by
// [Engine.GetProfile] and the admin read operations.
type Profile struct {
	ID            string
	Email         string
	Name          string
	Roles         []string
	IsActive      bool
	EmailVerified bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CreateUserInput is the input for [UserStore.Create]. ID and timestamps are
// assigned by the engine before the call.
type CreateUserInput struct {
	ID               string
	Email            string
	Name             string
	PasswordHash     string
	Roles            []string
	EmailVerified    bool
	ExternalProvider string
	ExternalID       string
	CreatedAt        time.Time
}

// ProfileUpdate carries the mutable profile fields for
// [UserStore.UpdateProfile]. Nil pointers mean "leave unchanged".
type ProfileUpdate struct {
	Name  *string
	Email *string
}

// UserStore is the interface callers implement to integrate the engine with
// their user database. Mutating methods that participate in the lockout
// state machine carry atomicity contracts documented per method; the
// engine never wraps them in its own locks.
type UserStore interface {
	GetByID(ctx context.Context, id string) (*User, error)
	// GetByEmail resolves case-insensitively and must return
	// [ErrUserNotFound] for unknown addresses.
	GetByEmail(ctx context.Context, email string) (*User, error)
	// Create must return [ErrAccountExists] when the email is already taken
	// by a non-deleted account.
	Create(ctx context.Context, input CreateUserInput) (*User, error)
	UpdateProfile(ctx context.Context, id string, update ProfileUpdate) (*User, error)
	UpdatePasswordHash(ctx context.Context, id string, hash string) error
	SetEmailVerified(ctx context.Context, id string, verified bool) error
	SetActive(ctx context.Context, id string, active bool) error
	SetTokenRevokedAt(ctx context.Context, id string, at time.Time) error

	// RecordLoginFailure atomically advances the failure counter and returns
	// the new count. If a previous lockout window has already expired at
	// now, the implementation clears it and restarts the count at 1 in the
	// same operation. Concurrent calls must never lose an increment.
	RecordLoginFailure(ctx context.Context, id string, now time.Time) (int, error)
	LockUser(ctx context.Context, id string, until time.Time) error
	// ClearLockout zeroes the failure counter and removes the lock window.
	ClearLockout(ctx context.Context, id string) error

	SetRoles(ctx context.Context, id string, roles []string) error
	SoftDelete(ctx context.Context, id string, at time.Time) error
}

// RegisterInput is the input for [Engine.Register].
type RegisterInput struct {
	Email    string
	Name     string
	Password string
	// Roles is optional; when empty the configured default role is assigned.
	Roles []string
}

// RegisterResult is returned by [Engine.Register]. Tokens is nil when
// auto-login is disabled or the account still awaits email verification.
// VerificationChallenge carries the opaque email-verification token minted
// for the new account; it is empty when verification is disabled. The host
// delivers it out of band (email), never in the HTTP response.
type RegisterResult struct {
	Profile               Profile
	Tokens                *TokenPair
	VerificationChallenge string
}

// ExternalLinkInput is the input for [Engine.LinkExternalUser]. The identity
// comes from an external OAuth provider; the created account carries no
// password hash and fails every password login.
type ExternalLinkInput struct {
	Provider      string
	ExternalID    string
	Email         string
	Name          string
	EmailVerified bool
}

// TokenPair holds a signed access token and the opaque refresh token that
// can later be exchanged through [Engine.Refresh].
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	// AccessExpiresAt and RefreshExpiresAt are informational for the caller
	// (cookie lifetimes, client hints); the authoritative values live in
	// the token and the session record.
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// AuthResult is returned by [Engine.ValidateAccess]. It identifies the
// authenticated subject after signature, lifetime, watermark, and account
// state checks have all passed.
type AuthResult struct {
	UserID    string
	Email     string
	Roles     []string
	SessionID string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// LoginResult is returned by [Engine.Login] and [Engine.Register] (when
// auto-login is active). It bundles the token pair with the subject's
// profile so callers render one round trip.
type LoginResult struct {
	Tokens  TokenPair
	Profile Profile
}

// SecurityReport is a read-only snapshot of the engine's security posture,
// returned by [Engine.SecurityReport].
type SecurityReport struct {
	ProductionMode               bool
	SigningAlgorithm             string
	AccessTTL                    time.Duration
	RefreshTTL                   time.Duration
	Argon2                       PasswordConfigReport
	LockoutThreshold             int
	LockoutWindow                time.Duration
	RefreshRotationEnabled       bool
	RefreshReuseDetectionEnabled bool
	RateLimitingActive           bool
	EmailVerificationActive      bool
	PasswordResetActive          bool
}

// PasswordConfigReport contains the Argon2 parameters active in the engine.
type PasswordConfigReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// MetricID identifies a specific counter or histogram in the in-process
// metrics system.
type MetricID = internalmetrics.MetricID

const (
	// MetricLoginSuccess is an exported constant or variable used by the authentication engine.
	MetricLoginSuccess = MetricID(internalmetrics.MetricLoginSuccess)
	// MetricLoginFailure is an exported constant or variable used by the authentication engine.
	MetricLoginFailure = MetricID(internalmetrics.MetricLoginFailure)
	// MetricLoginRateLimited is an exported constant or variable used by the authentication engine.
	MetricLoginRateLimited = MetricID(internalmetrics.MetricLoginRateLimited)
	// MetricLoginLocked is an exported constant or variable used by the authentication engine.
	MetricLoginLocked = MetricID(internalmetrics.MetricLoginLocked)
	// MetricLoginUnverified is an exported constant or variable used by the authentication engine.
	MetricLoginUnverified = MetricID(internalmetrics.MetricLoginUnverified)
	// MetricAccountLocked is an exported constant or variable used by the authentication engine.
	MetricAccountLocked = MetricID(internalmetrics.MetricAccountLocked)
	// MetricRefreshSuccess is an exported constant or variable used by the authentication engine.
	MetricRefreshSuccess = MetricID(internalmetrics.MetricRefreshSuccess)
	// MetricRefreshFailure is an exported constant or variable used by the authentication engine.
	MetricRefreshFailure = MetricID(internalmetrics.MetricRefreshFailure)
	// MetricRefreshReuseDetected is an exported constant or variable used by the authentication engine.
	MetricRefreshReuseDetected = MetricID(internalmetrics.MetricRefreshReuseDetected)
	// MetricRefreshRateLimited is an exported constant or variable used by the authentication engine.
	MetricRefreshRateLimited = MetricID(internalmetrics.MetricRefreshRateLimited)
	// MetricSessionCreated is an exported constant or variable used by the authentication engine.
	MetricSessionCreated = MetricID(internalmetrics.MetricSessionCreated)
	// MetricSessionInvalidated is an exported constant or variable used by the authentication engine.
	MetricSessionInvalidated = MetricID(internalmetrics.MetricSessionInvalidated)
	// MetricLogout is an exported constant or variable used by the authentication engine.
	MetricLogout = MetricID(internalmetrics.MetricLogout)
	// MetricLogoutAll is an exported constant or variable used by the authentication engine.
	MetricLogoutAll = MetricID(internalmetrics.MetricLogoutAll)
	// MetricRegisterSuccess is an exported constant or variable used by the authentication engine.
	MetricRegisterSuccess = MetricID(internalmetrics.MetricRegisterSuccess)
	// MetricRegisterDuplicate is an exported constant or variable used by the authentication engine.
	MetricRegisterDuplicate = MetricID(internalmetrics.MetricRegisterDuplicate)
	// MetricPasswordChangeSuccess is an exported constant or variable used by the authentication engine.
	MetricPasswordChangeSuccess = MetricID(internalmetrics.MetricPasswordChangeSuccess)
	// MetricPasswordChangeInvalidOld is an exported constant or variable used by the authentication engine.
	MetricPasswordChangeInvalidOld = MetricID(internalmetrics.MetricPasswordChangeInvalidOld)
	// MetricPasswordResetRequest is an exported constant or variable used by the authentication engine.
	MetricPasswordResetRequest = MetricID(internalmetrics.MetricPasswordResetRequest)
	// MetricPasswordResetConfirmSuccess is an exported constant or variable used by the authentication engine.
	MetricPasswordResetConfirmSuccess = MetricID(internalmetrics.MetricPasswordResetConfirmSuccess)
	// MetricPasswordResetConfirmFailure is an exported constant or variable used by the authentication engine.
	MetricPasswordResetConfirmFailure = MetricID(internalmetrics.MetricPasswordResetConfirmFailure)
	// MetricPasswordResetAttemptsExceeded is an exported constant or variable used by the authentication engine.
	MetricPasswordResetAttemptsExceeded = MetricID(internalmetrics.MetricPasswordResetAttemptsExceeded)
	// MetricEmailVerificationRequest is an exported constant or variable used by the authentication engine.
	MetricEmailVerificationRequest = MetricID(internalmetrics.MetricEmailVerificationRequest)
	// MetricEmailVerificationSuccess is an exported constant or variable used by the authentication engine.
	MetricEmailVerificationSuccess = MetricID(internalmetrics.MetricEmailVerificationSuccess)
	// MetricEmailVerificationFailure is an exported constant or variable used by the authentication engine.
	MetricEmailVerificationFailure = MetricID(internalmetrics.MetricEmailVerificationFailure)
	// MetricPermissionDenied is an exported constant or variable used by the authentication engine.
	MetricPermissionDenied = MetricID(internalmetrics.MetricPermissionDenied)
	// MetricValidateLatency is an exported constant or variable used by the authentication engine.
	MetricValidateLatency = MetricID(internalmetrics.MetricValidateLatency)

	metricIDCount = internalmetrics.MetricIDCount
)

// Metrics holds atomic counters and optional latency histograms.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time deep copy of all metrics.
type MetricsSnapshot = internalmetrics.Snapshot

// NewMetrics creates a new [Metrics] instance configured by the given
// [MetricsConfig]. When Enabled is false, all operations are no-ops.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(internalmetrics.Config{
		Enabled:       cfg.Enabled,
		EnableLatency: cfg.EnableLatencyHistograms,
	})
}
