package authcore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tauinbox/client-server-starter-app-sub001/rbac"
)

// Actions and resources used by the admin surface's permission checks.
const (
	ActionRead   = "read"
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"

	ResourceUser = "user"
	ResourceRole = "role"
)

// AdminUserUpdate carries the user fields an administrator may change. Nil
// pointers mean "leave unchanged".
type AdminUserUpdate struct {
	Name          *string
	Email         *string
	IsActive      *bool
	EmailVerified *bool
}

// Can describes the can operation and its observable behavior.
//
// Can may return an error when input validation, dependency calls, or security checks fail.
// Can does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Can(ctx context.Context, actorID, action, resource string, instance map[string]any) (bool, error) {
	if e == nil || e.resolver == nil {
		return false, ErrEngineNotReady
	}

	actor, err := e.loadActor(ctx, actorID)
	if err != nil {
		return false, err
	}

	return e.resolver.Can(ctx, rbac.Subject{UserID: actor.ID, Roles: actor.Roles}, action, resource, instance)
}

// GetUser describes the getuser operation and its observable behavior.
//
// GetUser may return an error when input validation, dependency calls, or security checks fail.
// GetUser does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) GetUser(ctx context.Context, actorID, targetID string) (*Profile, error) {
	if err := e.authorize(ctx, actorID, ActionRead, ResourceUser, userInstance(targetID)); err != nil {
		return nil, err
	}

	user, err := e.users.GetByID(ctx, targetID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	profile := profileFromUser(user)
	return &profile, nil
}

// UpdateUser describes the updateuser operation and its observable behavior.
//
// UpdateUser may return an error when input validation, dependency calls, or security checks fail.
// UpdateUser does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) UpdateUser(ctx context.Context, actorID, targetID string, update AdminUserUpdate) (*Profile, error) {
	if err := e.authorize(ctx, actorID, ActionUpdate, ResourceUser, userInstance(targetID)); err != nil {
		return nil, err
	}

	if update.Name != nil || update.Email != nil {
		profileUpdate := ProfileUpdate{Name: update.Name}
		if update.Email != nil {
			normalized := normalizeEmail(*update.Email)
			if err := validateEmail(normalized); err != nil {
				return nil, err
			}
			profileUpdate.Email = &normalized
		}
		if _, err := e.users.UpdateProfile(ctx, targetID, profileUpdate); err != nil {
			switch {
			case errors.Is(err, ErrUserNotFound):
				return nil, ErrUserNotFound
			case errors.Is(err, ErrAccountExists):
				return nil, ErrAccountExists
			default:
				return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
			}
		}
	}

	if update.IsActive != nil {
		if err := e.users.SetActive(ctx, targetID, *update.IsActive); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		// Disabling an account revokes its outstanding tokens immediately
		// instead of waiting for access-token expiry.
		if !*update.IsActive {
			if err := e.users.SetTokenRevokedAt(ctx, targetID, time.Now()); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
			}
			if err := e.sessionStore.DeleteAllForUser(ctx, targetID); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
			}
			e.metricInc(MetricSessionInvalidated)
		}
	}

	if update.EmailVerified != nil {
		if err := e.users.SetEmailVerified(ctx, targetID, *update.EmailVerified); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}

	user, err := e.users.GetByID(ctx, targetID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.emitAudit(ctx, auditEventAdminUserUpdated, true, actorID, targetID, "", nil, func() map[string]string {
		details := map[string]string{}
		if update.Name != nil || update.Email != nil {
			details["profile_changed"] = "true"
		}
		if update.IsActive != nil {
			details["is_active"] = fmt.Sprintf("%t", *update.IsActive)
		}
		if update.EmailVerified != nil {
			details["email_verified"] = fmt.Sprintf("%t", *update.EmailVerified)
		}
		return details
	})

	profile := profileFromUser(user)
	return &profile, nil
}

// SetUserRoles describes the setuserroles operation and its observable behavior.
//
// SetUserRoles may return an error when input validation, dependency calls, or security checks fail.
// SetUserRoles does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) SetUserRoles(ctx context.Context, actorID, targetID string, roles []string) error {
	if err := e.authorize(ctx, actorID, ActionUpdate, ResourceUser, userInstance(targetID)); err != nil {
		return err
	}

	for _, role := range roles {
		if _, err := e.roles.GetRole(ctx, role); err != nil {
			return fmt.Errorf("%w: %s", ErrRoleNotFound, role)
		}
	}

	if err := e.users.SetRoles(ctx, targetID, roles); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.emitAudit(ctx, auditEventAdminRolesAssigned, true, actorID, targetID, "", nil, func() map[string]string {
		return map[string]string{
			"roles": strings.Join(roles, ","),
		}
	})

	return nil
}

// UnlockUser describes the unlockuser operation and its observable behavior.
//
// UnlockUser may return an error when input validation, dependency calls, or security checks fail.
// UnlockUser does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) UnlockUser(ctx context.Context, actorID, targetID string) error {
	if err := e.authorize(ctx, actorID, ActionUpdate, ResourceUser, userInstance(targetID)); err != nil {
		return err
	}

	if err := e.users.ClearLockout(ctx, targetID); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.emitAudit(ctx, auditEventAccountUnlocked, true, actorID, targetID, "", nil, nil)
	return nil
}

// DeleteUser describes the deleteuser operation and its observable behavior.
//
// DeleteUser may return an error when input validation, dependency calls, or security checks fail.
// DeleteUser does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) DeleteUser(ctx context.Context, actorID, targetID string) error {
	if err := e.authorize(ctx, actorID, ActionDelete, ResourceUser, userInstance(targetID)); err != nil {
		return err
	}

	now := time.Now()
	if err := e.users.SoftDelete(ctx, targetID, now); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if err := e.users.SetTokenRevokedAt(ctx, targetID, now); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := e.sessionStore.DeleteAllForUser(ctx, targetID); err != nil {
		return fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
	}
	e.metricInc(MetricSessionInvalidated)

	e.emitAudit(ctx, auditEventAdminUserDeleted, true, actorID, targetID, "", nil, nil)
	return nil
}

// CreateRole describes the createrole operation and its observable behavior.
//
// CreateRole may return an error when input validation, dependency calls, or security checks fail.
// CreateRole does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) CreateRole(ctx context.Context, actorID string, role *rbac.Role) (*rbac.Role, error) {
	if err := e.authorize(ctx, actorID, ActionCreate, ResourceRole, nil); err != nil {
		return nil, err
	}
	if role == nil || strings.TrimSpace(role.Name) == "" {
		return nil, fmt.Errorf("%w: role name required", ErrValidation)
	}

	created, err := e.roles.CreateRole(ctx, role)
	if err != nil {
		return nil, mapRoleStoreError(err)
	}

	e.emitAudit(ctx, auditEventRoleCreated, true, actorID, created.Name, "", nil, nil)
	return created, nil
}

// UpdateRole describes the updaterole operation and its observable behavior.
//
// UpdateRole may return an error when input validation, dependency calls, or security checks fail.
// UpdateRole does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) UpdateRole(ctx context.Context, actorID, name string, update rbac.RoleUpdate) (*rbac.Role, error) {
	if err := e.authorize(ctx, actorID, ActionUpdate, ResourceRole, nil); err != nil {
		return nil, err
	}

	updated, err := e.roles.UpdateRole(ctx, name, update)
	if err != nil {
		return nil, mapRoleStoreError(err)
	}

	e.emitAudit(ctx, auditEventRoleUpdated, true, actorID, name, "", nil, nil)
	return updated, nil
}

// DeleteRole describes the deleterole operation and its observable behavior.
//
// DeleteRole may return an error when input validation, dependency calls, or security checks fail.
// DeleteRole does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) DeleteRole(ctx context.Context, actorID, name string) error {
	if err := e.authorize(ctx, actorID, ActionDelete, ResourceRole, nil); err != nil {
		return err
	}

	if err := e.roles.DeleteRole(ctx, name); err != nil {
		return mapRoleStoreError(err)
	}

	e.emitAudit(ctx, auditEventRoleDeleted, true, actorID, name, "", nil, nil)
	return nil
}

// SetRoleGrants describes the setrolegrants operation and its observable behavior.
//
// SetRoleGrants may return an error when input validation, dependency calls, or security checks fail.
// SetRoleGrants does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) SetRoleGrants(ctx context.Context, actorID, name string, grants []rbac.Grant) error {
	if err := e.authorize(ctx, actorID, ActionUpdate, ResourceRole, nil); err != nil {
		return err
	}

	if err := e.roles.SetRoleGrants(ctx, name, grants); err != nil {
		return mapRoleStoreError(err)
	}

	e.emitAudit(ctx, auditEventRoleGrantsReplaced, true, actorID, name, "", nil, func() map[string]string {
		return map[string]string{
			"grant_count": fmt.Sprintf("%d", len(grants)),
		}
	})
	return nil
}

// ListRoles describes the listroles operation and its observable behavior.
//
// ListRoles may return an error when input validation, dependency calls, or security checks fail.
// ListRoles does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ListRoles(ctx context.Context, actorID string) ([]*rbac.Role, error) {
	if err := e.authorize(ctx, actorID, ActionRead, ResourceRole, nil); err != nil {
		return nil, err
	}

	roles, err := e.roles.ListRoles(ctx)
	if err != nil {
		return nil, mapRoleStoreError(err)
	}
	return roles, nil
}

func (e *Engine) authorize(ctx context.Context, actorID, action, resource string, instance map[string]any) error {
	if e == nil || e.resolver == nil || e.users == nil {
		return ErrEngineNotReady
	}

	actor, err := e.loadActor(ctx, actorID)
	if err != nil {
		return err
	}

	ok, err := e.resolver.Can(ctx, rbac.Subject{UserID: actor.ID, Roles: actor.Roles}, action, resource, instance)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !ok {
		e.metricInc(MetricPermissionDenied)
		e.emitAudit(ctx, auditEventPermissionDenied, false, actorID, resource, "", ErrPermissionDenied, func() map[string]string {
			return map[string]string{
				"action":   action,
				"resource": resource,
			}
		})
		return ErrPermissionDenied
	}
	return nil
}

func (e *Engine) loadActor(ctx context.Context, actorID string) (*User, error) {
	if actorID == "" {
		return nil, ErrPermissionDenied
	}
	actor, err := e.users.GetByID(ctx, actorID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrPermissionDenied
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if actor.DeletedAt != nil || !actor.IsActive {
		return nil, ErrPermissionDenied
	}
	return actor, nil
}

func mapRoleStoreError(err error) error {
	switch {
	case errors.Is(err, rbac.ErrNotFound):
		return ErrRoleNotFound
	case errors.Is(err, rbac.ErrExists):
		return ErrRoleExists
	case errors.Is(err, rbac.ErrSystemRole):
		return ErrSystemRole
	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}

func userInstance(targetID string) map[string]any {
	return map[string]any{"user_id": targetID}
}
