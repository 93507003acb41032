package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	authcore "github.com/tauinbox/client-server-starter-app-sub001"
)

// Store is an in-memory [authcore.UserStore]. The zero value is not usable;
// call [New].
type Store struct {
	mu      sync.Mutex
	byID    map[string]*authcore.User
	byEmail map[string]string
}

// New creates an empty in-memory user store.
func New() *Store {
	return &Store{
		byID:    make(map[string]*authcore.User),
		byEmail: make(map[string]string),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func cloneUser(u *authcore.User) *authcore.User {
	out := *u
	out.Roles = append([]string(nil), u.Roles...)
	if u.LockedUntil != nil {
		t := *u.LockedUntil
		out.LockedUntil = &t
	}
	if u.TokenRevokedAt != nil {
		t := *u.TokenRevokedAt
		out.TokenRevokedAt = &t
	}
	if u.DeletedAt != nil {
		t := *u.DeletedAt
		out.DeletedAt = &t
	}
	return &out
}

// GetByID returns the user or [authcore.ErrUserNotFound].
func (s *Store) GetByID(_ context.Context, id string) (*authcore.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.byID[id]
	if !ok {
		return nil, authcore.ErrUserNotFound
	}
	return cloneUser(user), nil
}

// GetByEmail resolves case-insensitively.
func (s *Store) GetByEmail(_ context.Context, email string) (*authcore.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[normalizeEmail(email)]
	if !ok {
		return nil, authcore.ErrUserNotFound
	}
	user, ok := s.byID[id]
	if !ok {
		return nil, authcore.ErrUserNotFound
	}
	return cloneUser(user), nil
}

// Create stores a new user, rejecting duplicate emails with
// [authcore.ErrAccountExists].
func (s *Store) Create(_ context.Context, input authcore.CreateUserInput) (*authcore.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := normalizeEmail(input.Email)
	if existingID, ok := s.byEmail[email]; ok {
		if existing, found := s.byID[existingID]; found && existing.DeletedAt == nil {
			return nil, authcore.ErrAccountExists
		}
	}

	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	user := &authcore.User{
		ID:               input.ID,
		Email:            email,
		Name:             input.Name,
		PasswordHash:     input.PasswordHash,
		Roles:            append([]string(nil), input.Roles...),
		IsActive:         true,
		EmailVerified:    input.EmailVerified,
		ExternalProvider: input.ExternalProvider,
		ExternalID:       input.ExternalID,
		CreatedAt:        createdAt,
		UpdatedAt:        createdAt,
	}

	s.byID[user.ID] = user
	s.byEmail[email] = user.ID

	return cloneUser(user), nil
}

// UpdateProfile applies the non-nil fields and returns the updated user.
func (s *Store) UpdateProfile(_ context.Context, id string, update authcore.ProfileUpdate) (*authcore.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.byID[id]
	if !ok {
		return nil, authcore.ErrUserNotFound
	}

	if update.Email != nil {
		email := normalizeEmail(*update.Email)
		if existingID, taken := s.byEmail[email]; taken && existingID != id {
			return nil, authcore.ErrAccountExists
		}
		delete(s.byEmail, user.Email)
		user.Email = email
		s.byEmail[email] = id
	}
	if update.Name != nil {
		user.Name = *update.Name
	}
	user.UpdatedAt = time.Now()

	return cloneUser(user), nil
}

// UpdatePasswordHash replaces the stored credential hash.
func (s *Store) UpdatePasswordHash(_ context.Context, id string, hash string) error {
	return s.mutate(id, func(u *authcore.User) {
		u.PasswordHash = hash
	})
}

// SetEmailVerified flips the verification flag.
func (s *Store) SetEmailVerified(_ context.Context, id string, verified bool) error {
	return s.mutate(id, func(u *authcore.User) {
		u.EmailVerified = verified
	})
}

// SetActive flips the active flag.
func (s *Store) SetActive(_ context.Context, id string, active bool) error {
	return s.mutate(id, func(u *authcore.User) {
		u.IsActive = active
	})
}

// SetTokenRevokedAt moves the revocation watermark.
func (s *Store) SetTokenRevokedAt(_ context.Context, id string, at time.Time) error {
	return s.mutate(id, func(u *authcore.User) {
		t := at
		u.TokenRevokedAt = &t
	})
}

// RecordLoginFailure atomically advances the failure counter. An expired
// lock window is cleared and the count restarts at 1 in the same operation.
func (s *Store) RecordLoginFailure(_ context.Context, id string, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.byID[id]
	if !ok {
		return 0, authcore.ErrUserNotFound
	}

	if user.LockedUntil != nil && !user.LockedUntil.After(now) {
		user.LockedUntil = nil
		user.FailedLoginAttempts = 0
	}

	user.FailedLoginAttempts++
	user.UpdatedAt = now

	return user.FailedLoginAttempts, nil
}

// LockUser sets the lockout window end.
func (s *Store) LockUser(_ context.Context, id string, until time.Time) error {
	return s.mutate(id, func(u *authcore.User) {
		t := until
		u.LockedUntil = &t
	})
}

// ClearLockout zeroes the failure counter and removes the lock window.
func (s *Store) ClearLockout(_ context.Context, id string) error {
	return s.mutate(id, func(u *authcore.User) {
		u.FailedLoginAttempts = 0
		u.LockedUntil = nil
	})
}

// SetRoles replaces the role assignment.
func (s *Store) SetRoles(_ context.Context, id string, roles []string) error {
	return s.mutate(id, func(u *authcore.User) {
		u.Roles = append([]string(nil), roles...)
	})
}

// SoftDelete marks the user deleted, freeing the email for reuse.
func (s *Store) SoftDelete(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.byID[id]
	if !ok {
		return authcore.ErrUserNotFound
	}

	t := at
	user.DeletedAt = &t
	user.IsActive = false
	user.UpdatedAt = at
	delete(s.byEmail, user.Email)

	return nil
}

func (s *Store) mutate(id string, fn func(*authcore.User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.byID[id]
	if !ok {
		return authcore.ErrUserNotFound
	}
	fn(user)
	user.UpdatedAt = time.Now()
	return nil
}
