package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tauinbox/client-server-starter-app-sub001/rbac"
)

// RoleStore is the PostgreSQL-backed [rbac.Store].
type RoleStore struct {
	db *sql.DB
}

var _ rbac.Store = (*RoleStore)(nil)

// grantJSON is the storage shape of a grant inside the roles.grants column.
type grantJSON struct {
	Action    string         `json:"action"`
	Resource  string         `json:"resource"`
	Condition *predicateJSON `json:"condition,omitempty"`
}

type predicateJSON struct {
	Kind  uint8  `json:"kind"`
	Field string `json:"field"`
}

func encodeGrants(grants []rbac.Grant) ([]byte, error) {
	out := make([]grantJSON, 0, len(grants))
	for _, grant := range grants {
		encoded := grantJSON{Action: grant.Action, Resource: grant.Resource}
		if grant.Condition != nil {
			encoded.Condition = &predicateJSON{
				Kind:  uint8(grant.Condition.Kind),
				Field: grant.Condition.Field,
			}
		}
		out = append(out, encoded)
	}
	return json.Marshal(out)
}

func decodeGrants(raw []byte) ([]rbac.Grant, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var stored []grantJSON
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("decode grants: %w", err)
	}
	out := make([]rbac.Grant, 0, len(stored))
	for _, encoded := range stored {
		grant := rbac.Grant{Action: encoded.Action, Resource: encoded.Resource}
		if encoded.Condition != nil {
			grant.Condition = &rbac.Predicate{
				Kind:  rbac.PredicateKind(encoded.Condition.Kind),
				Field: encoded.Condition.Field,
			}
		}
		out = append(out, grant)
	}
	return out, nil
}

const roleColumns = `id, name, description, is_system, grants, created_at, updated_at`

func scanRole(row interface{ Scan(...any) error }) (*rbac.Role, error) {
	var (
		role      rbac.Role
		rawGrants []byte
	)
	err := row.Scan(&role.ID, &role.Name, &role.Description, &role.IsSystem,
		&rawGrants, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		return nil, err
	}
	grants, err := decodeGrants(rawGrants)
	if err != nil {
		return nil, err
	}
	role.Grants = grants
	return &role, nil
}

// GetRole resolves a role case-insensitively by name.
func (s *RoleStore) GetRole(ctx context.Context, name string) (*rbac.Role, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+roleColumns+` from roles where lower(name) = lower($1)
	`, name)
	role, err := scanRole(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, rbac.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return role, nil
}

// ListRoles returns every role ordered by name.
func (s *RoleStore) ListRoles(ctx context.Context) ([]*rbac.Role, error) {
	rows, err := s.db.QueryContext(ctx, `select `+roleColumns+` from roles order by lower(name)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*rbac.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// CreateRole inserts a role, mapping the unique name index violation to
// [rbac.ErrExists].
func (s *RoleStore) CreateRole(ctx context.Context, role *rbac.Role) (*rbac.Role, error) {
	rawGrants, err := encodeGrants(role.Grants)
	if err != nil {
		return nil, err
	}

	id := role.ID
	if id == "" {
		id = newID()
	}

	row := s.db.QueryRowContext(ctx, `
		insert into roles (id, name, description, is_system, grants)
		values ($1, $2, $3, $4, $5)
		returning `+roleColumns+`
	`, id, role.Name, role.Description, role.IsSystem, rawGrants)

	created, err := scanRole(row)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return nil, rbac.ErrExists
		}
		return nil, err
	}
	return created, nil
}

// UpdateRole applies the non-nil fields. System roles reject rename.
func (s *RoleStore) UpdateRole(ctx context.Context, name string, update rbac.RoleUpdate) (*rbac.Role, error) {
	current, err := s.GetRole(ctx, name)
	if err != nil {
		return nil, err
	}
	if update.Name != nil && current.IsSystem {
		return nil, rbac.ErrSystemRole
	}

	row := s.db.QueryRowContext(ctx, `
		update roles set
			name = coalesce($2, name),
			description = coalesce($3, description),
			updated_at = now()
		where id = $1
		returning `+roleColumns+`
	`, current.ID, update.Name, update.Description)

	updated, err := scanRole(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, rbac.ErrNotFound
	}
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return nil, rbac.ErrExists
		}
		return nil, err
	}
	return updated, nil
}

// DeleteRole removes a role. System roles reject delete.
func (s *RoleStore) DeleteRole(ctx context.Context, name string) error {
	result, err := s.db.ExecContext(ctx, `
		delete from roles where lower(name) = lower($1) and not is_system
	`, name)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// Distinguish missing from protected.
		if _, getErr := s.GetRole(ctx, name); getErr == nil {
			return rbac.ErrSystemRole
		}
		return rbac.ErrNotFound
	}
	return nil
}

// SetRoleGrants replaces the grant set. Allowed for system roles.
func (s *RoleStore) SetRoleGrants(ctx context.Context, name string, grants []rbac.Grant) error {
	rawGrants, err := encodeGrants(grants)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		update roles set grants = $2, updated_at = now() where lower(name) = lower($1)
	`, name, rawGrants)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return rbac.ErrNotFound
	}
	return nil
}

// GrantsForRoles returns the union of grants held by the named roles.
// Unknown names are skipped.
func (s *RoleStore) GrantsForRoles(ctx context.Context, names []string) ([]rbac.Grant, error) {
	var out []rbac.Grant
	for _, name := range names {
		role, err := s.GetRole(ctx, name)
		if errors.Is(err, rbac.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, role.Grants...)
	}
	return out, nil
}
