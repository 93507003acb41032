package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	authcore "github.com/tauinbox/client-server-starter-app-sub001"
)

// UserStore is the PostgreSQL-backed [authcore.UserStore].
type UserStore struct {
	db *sql.DB
}

var _ authcore.UserStore = (*UserStore)(nil)

const userColumns = `id, email, name, password_hash, roles, is_active, email_verified,
	failed_login_attempts, locked_until, token_revoked_at,
	external_provider, external_id, created_at, updated_at, deleted_at`

func scanUser(row interface{ Scan(...any) error }) (*authcore.User, error) {
	var (
		user     authcore.User
		rawRoles []byte
	)
	err := row.Scan(
		&user.ID, &user.Email, &user.Name, &user.PasswordHash, &rawRoles,
		&user.IsActive, &user.EmailVerified,
		&user.FailedLoginAttempts, &user.LockedUntil, &user.TokenRevokedAt,
		&user.ExternalProvider, &user.ExternalID,
		&user.CreatedAt, &user.UpdatedAt, &user.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(rawRoles) > 0 {
		if err := json.Unmarshal(rawRoles, &user.Roles); err != nil {
			return nil, fmt.Errorf("decode roles: %w", err)
		}
	}
	return &user, nil
}

// GetByID returns the user, including soft-deleted rows; callers inspect
// DeletedAt themselves.
func (s *UserStore) GetByID(ctx context.Context, id string) (*authcore.User, error) {
	row := s.db.QueryRowContext(ctx, `select `+userColumns+` from users where id = $1`, id)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, authcore.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetByEmail resolves case-insensitively among live accounts.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*authcore.User, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+userColumns+` from users
		where lower(email) = lower($1) and deleted_at is null
	`, email)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, authcore.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Create inserts a new user row, mapping the partial unique index violation
// to [authcore.ErrAccountExists].
func (s *UserStore) Create(ctx context.Context, input authcore.CreateUserInput) (*authcore.User, error) {
	rawRoles, err := json.Marshal(input.Roles)
	if err != nil {
		return nil, fmt.Errorf("encode roles: %w", err)
	}

	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	row := s.db.QueryRowContext(ctx, `
		insert into users (id, email, name, password_hash, roles, email_verified,
			external_provider, external_id, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		returning `+userColumns+`
	`, input.ID, input.Email, input.Name, input.PasswordHash, rawRoles,
		input.EmailVerified, input.ExternalProvider, input.ExternalID, createdAt)

	user, err := scanUser(row)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return nil, authcore.ErrAccountExists
		}
		return nil, err
	}
	return user, nil
}

// UpdateProfile applies the non-nil fields and returns the updated row.
func (s *UserStore) UpdateProfile(ctx context.Context, id string, update authcore.ProfileUpdate) (*authcore.User, error) {
	row := s.db.QueryRowContext(ctx, `
		update users set
			name = coalesce($2, name),
			email = coalesce($3, email),
			updated_at = now()
		where id = $1
		returning `+userColumns+`
	`, id, update.Name, update.Email)

	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, authcore.ErrUserNotFound
	}
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return nil, authcore.ErrAccountExists
		}
		return nil, err
	}
	return user, nil
}

// UpdatePasswordHash replaces the stored credential hash.
func (s *UserStore) UpdatePasswordHash(ctx context.Context, id string, hash string) error {
	return s.exec(ctx, `update users set password_hash = $2, updated_at = now() where id = $1`, id, hash)
}

// SetEmailVerified flips the verification flag.
func (s *UserStore) SetEmailVerified(ctx context.Context, id string, verified bool) error {
	return s.exec(ctx, `update users set email_verified = $2, updated_at = now() where id = $1`, id, verified)
}

// SetActive flips the active flag.
func (s *UserStore) SetActive(ctx context.Context, id string, active bool) error {
	return s.exec(ctx, `update users set is_active = $2, updated_at = now() where id = $1`, id, active)
}

// SetTokenRevokedAt moves the revocation watermark.
func (s *UserStore) SetTokenRevokedAt(ctx context.Context, id string, at time.Time) error {
	return s.exec(ctx, `update users set token_revoked_at = $2, updated_at = now() where id = $1`, id, at)
}

// RecordLoginFailure advances the failure counter in one statement. An
// expired lock window is cleared and the count restarts at 1 in the same
// update, so concurrent failures never lose an increment.
func (s *UserStore) RecordLoginFailure(ctx context.Context, id string, now time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		update users set
			failed_login_attempts = case
				when locked_until is not null and locked_until <= $2 then 1
				else failed_login_attempts + 1
			end,
			locked_until = case
				when locked_until is not null and locked_until <= $2 then null
				else locked_until
			end,
			updated_at = $2
		where id = $1
		returning failed_login_attempts
	`, id, now).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, authcore.ErrUserNotFound
	}
	if err != nil {
		return 0, err
	}
	return count, nil
}

// LockUser sets the lockout window end.
func (s *UserStore) LockUser(ctx context.Context, id string, until time.Time) error {
	return s.exec(ctx, `update users set locked_until = $2, updated_at = now() where id = $1`, id, until)
}

// ClearLockout zeroes the failure counter and removes the lock window.
func (s *UserStore) ClearLockout(ctx context.Context, id string) error {
	return s.exec(ctx, `
		update users set failed_login_attempts = 0, locked_until = null, updated_at = now()
		where id = $1
	`, id)
}

// SetRoles replaces the role assignment.
func (s *UserStore) SetRoles(ctx context.Context, id string, roles []string) error {
	rawRoles, err := json.Marshal(roles)
	if err != nil {
		return fmt.Errorf("encode roles: %w", err)
	}
	return s.exec(ctx, `update users set roles = $2, updated_at = now() where id = $1`, id, rawRoles)
}

// SoftDelete marks the row deleted; the partial unique index frees the
// email for reuse.
func (s *UserStore) SoftDelete(ctx context.Context, id string, at time.Time) error {
	return s.exec(ctx, `
		update users set deleted_at = $2, is_active = false, updated_at = $2
		where id = $1 and deleted_at is null
	`, id, at)
}

func (s *UserStore) exec(ctx context.Context, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return authcore.ErrUserNotFound
	}
	return nil
}
