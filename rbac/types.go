package rbac

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned for lookups of unknown role names.
	ErrNotFound = errors.New("role not found")
	// ErrExists is returned when creating a role whose name is taken.
	ErrExists = errors.New("role already exists")
	// ErrSystemRole rejects rename and delete of built-in roles.
	ErrSystemRole = errors.New("system role cannot be modified")
	// ErrInvalidPredicate is returned when a grant carries a condition
	// outside the closed predicate set.
	ErrInvalidPredicate = errors.New("invalid grant predicate")
)

// Role is a named bundle of grants. System roles are seeded at startup and
// reject rename and delete; their grant sets may still be replaced.
type Role struct {
	ID          string
	Name        string
	Description string
	IsSystem    bool
	Grants      []Grant
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Grant permits one action on one resource, optionally narrowed by a
// condition evaluated against a resource instance.
type Grant struct {
	Action    string
	Resource  string
	Condition *Predicate
}

// PredicateKind enumerates the closed set of grant conditions. New kinds
// require a resolver change; conditions are never interpreted dynamically.
type PredicateKind uint8

const (
	// PredicateOwnerEquals holds when the named instance field equals the
	// subject's user id.
	PredicateOwnerEquals PredicateKind = iota + 1
)

// Predicate is a declarative grant condition.
type Predicate struct {
	Kind  PredicateKind
	Field string
}

// OwnerEquals builds the owner-match predicate over the given instance field.
func OwnerEquals(field string) *Predicate {
	return &Predicate{Kind: PredicateOwnerEquals, Field: field}
}

// Eval interprets the predicate against a resource instance. A nil instance
// fails closed: a condition that cannot be checked never grants access.
func (p *Predicate) Eval(subjectID string, instance map[string]any) (bool, error) {
	if p == nil {
		return true, nil
	}

	switch p.Kind {
	case PredicateOwnerEquals:
		if instance == nil {
			return false, nil
		}
		raw, ok := instance[p.Field]
		if !ok {
			return false, nil
		}
		value, ok := raw.(string)
		if !ok {
			return false, nil
		}
		return value == subjectID, nil
	default:
		return false, fmt.Errorf("%w: kind %d", ErrInvalidPredicate, p.Kind)
	}
}

// RoleUpdate carries the mutable role fields. Nil pointers mean "leave
// unchanged".
type RoleUpdate struct {
	Name        *string
	Description *string
}

// Store is the persistence interface for roles and grants. Implementations:
// [MemStore] and store/pg.
type Store interface {
	GetRole(ctx context.Context, name string) (*Role, error)
	ListRoles(ctx context.Context) ([]*Role, error)
	CreateRole(ctx context.Context, role *Role) (*Role, error)
	UpdateRole(ctx context.Context, name string, update RoleUpdate) (*Role, error)
	DeleteRole(ctx context.Context, name string) error
	SetRoleGrants(ctx context.Context, name string, grants []Grant) error
	// GrantsForRoles returns the union of grants held by the named roles.
	// Unknown names are skipped, not errors: a user may reference a role
	// deleted moments ago.
	GrantsForRoles(ctx context.Context, names []string) ([]Grant, error)
}
