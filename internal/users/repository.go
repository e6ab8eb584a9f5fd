package users

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"github.com/inkpress/inkpress/internal/platform/db"
	"github.com/inkpress/inkpress/internal/shared"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	db db.DBTX
}

// NewRepository constructs a repository.
func NewRepository(conn db.DBTX) *Repository {
	return &Repository{db: conn}
}

type userRow struct {
	ID           int64     `db:"id"`
	Name         string    `db:"name"`
	Email        string    `db:"email"`
	PasswordHash string    `db:"password_hash"`
	IsActive     bool      `db:"is_active"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

type userRoleRow struct {
	UserID int64  `db:"user_id"`
	Name   string `db:"name"`
}

var userColumns = []string{"u.id", "u.name", "u.email", "u.password_hash", "u.is_active", "u.created_at", "u.updated_at"}

// Get fetches a user with its role names.
func (r *Repository) Get(ctx context.Context, id int64) (*User, error) {
	query, args, err := psql.Select(userColumns...).
		From("users u").
		Where(sq.Eq{"u.id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("users: build get query: %w", err)
	}
	var row userRow
	if err := pgxscan.Get(ctx, r.db, &row, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("users: get: %w", err)
	}
	users := []User{row.toUser()}
	if err := r.attachRoles(ctx, users); err != nil {
		return nil, err
	}
	return &users[0], nil
}

func (row userRow) toUser() User {
	return User{
		ID:           row.ID,
		Name:         row.Name,
		Email:        row.Email,
		PasswordHash: row.PasswordHash,
		IsActive:     row.IsActive,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
}

// List returns one page of users, newest first, and the total match count.
func (r *Repository) List(ctx context.Context, filter Filter, page shared.Page) ([]User, int, error) {
	where := sq.And{}
	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		where = append(where, sq.Or{
			sq.ILike{"u.name": pattern},
			sq.ILike{"u.email": pattern},
		})
	}
	if filter.Role != "" {
		// Nested builders keep the ? format; the outer builder numbers them.
		sub := sq.Select("1").
			From("user_roles ur").
			Join("roles r ON r.id = ur.role_id").
			Where("ur.user_id = u.id").
			Where(sq.Eq{"r.name": filter.Role})
		where = append(where, sq.Expr("EXISTS (?)", sub))
	}

	countQuery, countArgs, err := psql.Select("COUNT(*)").From("users u").Where(where).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("users: build count: %w", err)
	}
	var total int
	if err := r.db.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("users: count: %w", err)
	}
	if total == 0 {
		return []User{}, 0, nil
	}

	query, args, err := psql.Select(userColumns...).
		From("users u").
		Where(where).
		OrderBy("u.created_at DESC", "u.id DESC").
		Limit(page.Limit()).
		Offset(page.Offset()).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("users: build list: %w", err)
	}
	var rows []userRow
	if err := pgxscan.Select(ctx, r.db, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("users: list: %w", err)
	}
	users := make([]User, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.toUser())
	}
	if err := r.attachRoles(ctx, users); err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (r *Repository) attachRoles(ctx context.Context, users []User) error {
	if len(users) == 0 {
		return nil
	}
	ids := make([]int64, len(users))
	for i, u := range users {
		ids[i] = u.ID
	}
	query, args, err := psql.Select("ur.user_id", "r.name").
		From("user_roles ur").
		Join("roles r ON r.id = ur.role_id").
		Where(sq.Eq{"ur.user_id": ids}).
		OrderBy("r.name").
		ToSql()
	if err != nil {
		return fmt.Errorf("users: build roles query: %w", err)
	}
	var rows []userRoleRow
	if err := pgxscan.Select(ctx, r.db, &rows, query, args...); err != nil {
		return fmt.Errorf("users: select roles: %w", err)
	}
	byUser := make(map[int64][]string, len(users))
	for _, row := range rows {
		byUser[row.UserID] = append(byUser[row.UserID], row.Name)
	}
	for i := range users {
		users[i].Roles = byUser[users[i].ID]
	}
	return nil
}

// EmailTaken reports whether another user already uses email.
func (r *Repository) EmailTaken(ctx context.Context, email string, exceptID int64) (bool, error) {
	cond := sq.And{sq.Expr("LOWER(email) = LOWER(?)", email)}
	if exceptID != 0 {
		cond = append(cond, sq.NotEq{"id": exceptID})
	}
	query, args, err := psql.Select("1").From("users").Where(cond).Prefix("SELECT EXISTS (").Suffix(")").ToSql()
	if err != nil {
		return false, fmt.Errorf("users: build email query: %w", err)
	}
	var taken bool
	if err := r.db.QueryRow(ctx, query, args...).Scan(&taken); err != nil {
		return false, fmt.Errorf("users: email taken: %w", err)
	}
	return taken, nil
}

// Create inserts the user and assigns roleIDs in one transaction.
func (r *Repository) Create(ctx context.Context, user *User, roleIDs []int64) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		query, args, err := psql.Insert("users").
			Columns("name", "email", "password_hash", "is_active").
			Values(user.Name, user.Email, user.PasswordHash, user.IsActive).
			Suffix("RETURNING id, created_at, updated_at").
			ToSql()
		if err != nil {
			return fmt.Errorf("users: build insert: %w", err)
		}
		if err := tx.QueryRow(ctx, query, args...).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt); err != nil {
			return fmt.Errorf("users: insert: %w", err)
		}
		return syncRoles(ctx, tx, user.ID, roleIDs)
	})
}

// Update writes profile fields and replaces the role assignment.
func (r *Repository) Update(ctx context.Context, user *User, roleIDs []int64) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		query, args, err := psql.Update("users").
			Set("name", user.Name).
			Set("email", user.Email).
			Set("password_hash", user.PasswordHash).
			Set("updated_at", sq.Expr("NOW()")).
			Where(sq.Eq{"id": user.ID}).
			ToSql()
		if err != nil {
			return fmt.Errorf("users: build update: %w", err)
		}
		tag, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("users: update: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		return syncRoles(ctx, tx, user.ID, roleIDs)
	})
}

func syncRoles(ctx context.Context, tx pgx.Tx, userID int64, roleIDs []int64) error {
	if _, err := tx.Exec(ctx, "DELETE FROM user_roles WHERE user_id = $1", userID); err != nil {
		return fmt.Errorf("users: clear roles: %w", err)
	}
	if len(roleIDs) == 0 {
		return nil
	}
	insert := psql.Insert("user_roles").Columns("user_id", "role_id")
	for _, id := range roleIDs {
		insert = insert.Values(userID, id)
	}
	query, args, err := insert.Suffix("ON CONFLICT DO NOTHING").ToSql()
	if err != nil {
		return fmt.Errorf("users: build role insert: %w", err)
	}
	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("users: assign roles: %w", err)
	}
	return nil
}

// Delete removes a user; posts and role links cascade.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	query, args, err := psql.Delete("users").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("users: build delete: %w", err)
	}
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("users: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

var _ RepositoryPort = (*Repository)(nil)
