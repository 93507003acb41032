package rbac

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore is an in-memory [Store] guarded by a RWMutex. It backs tests and
// single-process deployments; production setups use store/pg.
type MemStore struct {
	mu    sync.RWMutex
	roles map[string]*Role // keyed by lowercase name
}

// NewMemStore creates an empty [MemStore].
func NewMemStore() *MemStore {
	return &MemStore{
		roles: make(map[string]*Role),
	}
}

// NewMemStoreWithDefaults creates a [MemStore] seeded with the built-in
// system roles: adminRole (no explicit grants; the resolver short-circuits
// it) and defaultRole with self-service grants over the "profile" resource.
func NewMemStoreWithDefaults(adminRole, defaultRole string) *MemStore {
	s := NewMemStore()
	now := time.Now().UTC()

	s.roles[strings.ToLower(adminRole)] = &Role{
		ID:          uuid.NewString(),
		Name:        adminRole,
		Description: "full administrative access",
		IsSystem:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.roles[strings.ToLower(defaultRole)] = &Role{
		ID:          uuid.NewString(),
		Name:        defaultRole,
		Description: "standard account",
		IsSystem:    true,
		Grants: []Grant{
			{Action: "read", Resource: "profile", Condition: OwnerEquals("user_id")},
			{Action: "update", Resource: "profile", Condition: OwnerEquals("user_id")},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	return s
}

func (s *MemStore) GetRole(_ context.Context, name string) (*Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	role, ok := s.roles[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return cloneRole(role), nil
}

func (s *MemStore) ListRoles(_ context.Context) ([]*Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Role, 0, len(s.roles))
	for _, role := range s.roles {
		out = append(out, cloneRole(role))
	}
	return out, nil
}

func (s *MemStore) CreateRole(_ context.Context, role *Role) (*Role, error) {
	if role == nil || strings.TrimSpace(role.Name) == "" {
		return nil, fmt.Errorf("%w: role name is required", ErrNotFound)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(role.Name)
	if _, ok := s.roles[key]; ok {
		return nil, fmt.Errorf("%w: %s", ErrExists, role.Name)
	}

	stored := cloneRole(role)
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	stored.CreatedAt = now
	stored.UpdatedAt = now

	s.roles[key] = stored
	return cloneRole(stored), nil
}

func (s *MemStore) UpdateRole(_ context.Context, name string, update RoleUpdate) (*Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(name)
	role, ok := s.roles[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	if update.Name != nil && !strings.EqualFold(*update.Name, role.Name) {
		if role.IsSystem {
			return nil, fmt.Errorf("%w: %s", ErrSystemRole, role.Name)
		}
		newKey := strings.ToLower(*update.Name)
		if _, taken := s.roles[newKey]; taken {
			return nil, fmt.Errorf("%w: %s", ErrExists, *update.Name)
		}
		delete(s.roles, key)
		role.Name = *update.Name
		key = newKey
		s.roles[key] = role
	}
	if update.Description != nil {
		role.Description = *update.Description
	}
	role.UpdatedAt = time.Now().UTC()

	return cloneRole(role), nil
}

func (s *MemStore) DeleteRole(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(name)
	role, ok := s.roles[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if role.IsSystem {
		return fmt.Errorf("%w: %s", ErrSystemRole, role.Name)
	}

	delete(s.roles, key)
	return nil
}

func (s *MemStore) SetRoleGrants(_ context.Context, name string, grants []Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	role, ok := s.roles[strings.ToLower(name)]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	role.Grants = cloneGrants(grants)
	role.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemStore) GrantsForRoles(_ context.Context, names []string) ([]Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Grant
	for _, name := range names {
		role, ok := s.roles[strings.ToLower(name)]
		if !ok {
			continue
		}
		out = append(out, cloneGrants(role.Grants)...)
	}
	return out, nil
}

func cloneRole(role *Role) *Role {
	out := *role
	out.Grants = cloneGrants(role.Grants)
	return &out
}

func cloneGrants(grants []Grant) []Grant {
	if len(grants) == 0 {
		return nil
	}
	out := make([]Grant, len(grants))
	copy(out, grants)
	for i, g := range grants {
		if g.Condition != nil {
			c := *g.Condition
			out[i].Condition = &c
		}
	}
	return out
}
