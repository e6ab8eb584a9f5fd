package auth

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"github.com/inkpress/inkpress/internal/platform/db"
	"github.com/inkpress/inkpress/internal/shared"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Repository defines persistence operations for auth module.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error
	DeleteSession(ctx context.Context, id string) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	db db.DBTX
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(conn db.DBTX) *PGRepository {
	return &PGRepository{db: conn}
}

// FindByEmail fetches a user by email, ignoring case.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	query, args, err := psql.Select("id", "name", "email", "password_hash", "is_active", "created_at", "updated_at").
		From("users").
		Where(sq.Expr("LOWER(email) = LOWER(?)", email)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("auth: build user query: %w", err)
	}
	var user User
	if err := pgxscan.Get(ctx, r.db, &user, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("auth: find user: %w", err)
	}
	return &user, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// CreateSession persists a new login session in the database for auditing.
func (r *PGRepository) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	query, args, err := psql.Insert("sessions").
		Columns("id", "user_id", "created_at", "expires_at", "ip", "user_agent").
		Values(id, userID, time.Now().UTC(), expiresAt.UTC(), nullable(ip), nullable(ua)).
		Suffix("ON CONFLICT (id) DO UPDATE SET user_id = EXCLUDED.user_id, expires_at = EXCLUDED.expires_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("auth: build session insert: %w", err)
	}
	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("auth: create session: %w", err)
	}
	return nil
}

// DeleteSession removes a session record from the database.
func (r *PGRepository) DeleteSession(ctx context.Context, id string) error {
	query, args, err := psql.Delete("sessions").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("auth: build session delete: %w", err)
	}
	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("auth: delete session: %w", err)
	}
	return nil
}

var _ Repository = (*PGRepository)(nil)
