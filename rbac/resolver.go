package rbac

import (
	"context"
	"strings"
)

// Wildcard matches any action or resource in a grant.
const Wildcard = "*"

// Subject is the authenticated principal a permission check runs for.
type Subject struct {
	UserID string
	Roles  []string
}

// Resolver answers permission checks by loading the subject's grants from
// the [Store] on every call. There is deliberately no grant cache: role
// edits take effect on the next check.
type Resolver struct {
	store     Store
	adminRole string
}

// NewResolver creates a [Resolver]. adminRole short-circuits every check to
// allow.
func NewResolver(store Store, adminRole string) *Resolver {
	return &Resolver{
		store:     store,
		adminRole: adminRole,
	}
}

// Can reports whether the subject may perform action on resource. instance
// carries the resource fields for conditional grants; a conditional grant
// with a nil instance fails closed. Store errors surface to the caller and
// must be treated as deny.
func (r *Resolver) Can(
	ctx context.Context,
	subject Subject,
	action, resource string,
	instance map[string]any,
) (bool, error) {
	if subject.UserID == "" || action == "" || resource == "" {
		return false, nil
	}

	for _, role := range subject.Roles {
		if strings.EqualFold(role, r.adminRole) {
			return true, nil
		}
	}

	grants, err := r.store.GrantsForRoles(ctx, subject.Roles)
	if err != nil {
		return false, err
	}

	for _, grant := range grants {
		if !matches(grant.Action, action) || !matches(grant.Resource, resource) {
			continue
		}

		ok, err := grant.Condition.Eval(subject.UserID, instance)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}

	return false, nil
}

func matches(pattern, value string) bool {
	return pattern == Wildcard || strings.EqualFold(pattern, value)
}
