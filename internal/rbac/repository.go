package rbac

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"github.com/inkpress/inkpress/internal/platform/db"
	"github.com/inkpress/inkpress/internal/shared"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Repository loads roles and permissions from PostgreSQL.
type Repository struct {
	db db.DBTX
}

// NewRepository constructs a Repository.
func NewRepository(conn db.DBTX) *Repository {
	return &Repository{db: conn}
}

type principalRow struct {
	ID    int64  `db:"id"`
	Name  string `db:"name"`
	Email string `db:"email"`
}

type rolePermissionRow struct {
	RoleID int64  `db:"role_id"`
	Name   string `db:"name"`
}

// LoadPrincipal reads the user and its current role assignment.
func (r *Repository) LoadPrincipal(ctx context.Context, userID int64) (*Principal, error) {
	query, args, err := psql.Select("id", "name", "email").
		From("users").
		Where(sq.Eq{"id": userID, "is_active": true}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("rbac: build principal query: %w", err)
	}
	var row principalRow
	if err := pgxscan.Get(ctx, r.db, &row, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("rbac: load principal: %w", err)
	}
	roles, err := r.rolesForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Principal{UserID: row.ID, Name: row.Name, Email: row.Email, Roles: roles}, nil
}

func (r *Repository) rolesForUser(ctx context.Context, userID int64) ([]Role, error) {
	query, args, err := psql.Select("r.id", "r.name", "r.description", "r.created_at").
		From("roles r").
		Join("user_roles ur ON ur.role_id = r.id").
		Where(sq.Eq{"ur.user_id": userID}).
		OrderBy("r.name").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("rbac: build roles query: %w", err)
	}
	return r.selectRoles(ctx, query, args)
}

// ListRoles returns every role with its permissions, ordered by name.
func (r *Repository) ListRoles(ctx context.Context) ([]Role, error) {
	query, args, err := psql.Select("id", "name", "description", "created_at").
		From("roles").
		OrderBy("name").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("rbac: build roles query: %w", err)
	}
	return r.selectRoles(ctx, query, args)
}

func (r *Repository) selectRoles(ctx context.Context, query string, args []any) ([]Role, error) {
	var roles []Role
	if err := pgxscan.Select(ctx, r.db, &roles, query, args...); err != nil {
		return nil, fmt.Errorf("rbac: select roles: %w", err)
	}
	if len(roles) == 0 {
		return roles, nil
	}
	ids := make([]int64, len(roles))
	for i, role := range roles {
		ids[i] = role.ID
	}
	permQuery, permArgs, err := psql.Select("rp.role_id", "p.name").
		From("role_permissions rp").
		Join("permissions p ON p.id = rp.permission_id").
		Where(sq.Eq{"rp.role_id": ids}).
		OrderBy("p.id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("rbac: build role permissions query: %w", err)
	}
	var rows []rolePermissionRow
	if err := pgxscan.Select(ctx, r.db, &rows, permQuery, permArgs...); err != nil {
		return nil, fmt.Errorf("rbac: select role permissions: %w", err)
	}
	byRole := make(map[int64][]string, len(roles))
	for _, row := range rows {
		byRole[row.RoleID] = append(byRole[row.RoleID], row.Name)
	}
	for i := range roles {
		roles[i].Permissions = byRole[roles[i].ID]
	}
	return roles, nil
}

// ListPermissions returns all permissions ordered by id (seed order).
func (r *Repository) ListPermissions(ctx context.Context) ([]Permission, error) {
	query, args, err := psql.Select("id", "name", "description").
		From("permissions").
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("rbac: build permissions query: %w", err)
	}
	var perms []Permission
	if err := pgxscan.Select(ctx, r.db, &perms, query, args...); err != nil {
		return nil, fmt.Errorf("rbac: select permissions: %w", err)
	}
	return perms, nil
}

// Seed creates the fixed permission set and default roles. Existing rows are kept.
func (r *Repository) Seed(ctx context.Context) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		permIDs := make(map[string]int64)
		for _, name := range AllPermissions() {
			var id int64
			err := tx.QueryRow(ctx, `INSERT INTO permissions (name) VALUES ($1)
ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name RETURNING id`, name).Scan(&id)
			if err != nil {
				return fmt.Errorf("rbac: seed permission %q: %w", name, err)
			}
			permIDs[name] = id
		}
		for _, def := range DefaultRoles() {
			var roleID int64
			err := tx.QueryRow(ctx, `INSERT INTO roles (name) VALUES ($1)
ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name RETURNING id`, def.Name).Scan(&roleID)
			if err != nil {
				return fmt.Errorf("rbac: seed role %q: %w", def.Name, err)
			}
			for _, perm := range def.Permissions {
				permID, ok := permIDs[perm]
				if !ok {
					return errors.New("rbac: seed references unknown permission " + perm)
				}
				if _, err := tx.Exec(ctx, `INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)
ON CONFLICT DO NOTHING`, roleID, permID); err != nil {
					return fmt.Errorf("rbac: seed role permission: %w", err)
				}
			}
		}
		return nil
	})
}
