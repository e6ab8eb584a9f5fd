package posts

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

var postColumns = []string{
	"p.id", "p.user_id", "p.title", "p.slug", "p.excerpt", "p.content",
	"p.status", "p.featured_image", "p.published_at", "p.created_at", "p.updated_at",
	"u.name AS author_name",
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	db db.DBTX
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(conn db.DBTX) *PGRepository {
	return &PGRepository{db: conn}
}

type postRow struct {
	ID            int64      `db:"id"`
	UserID        int64      `db:"user_id"`
	Title         string     `db:"title"`
	Slug          string     `db:"slug"`
	Excerpt       string     `db:"excerpt"`
	Content       string     `db:"content"`
	Status        string     `db:"status"`
	FeaturedImage *string    `db:"featured_image"`
	PublishedAt   *time.Time `db:"published_at"`
	CreatedAt     time.Time  `db:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at"`
	AuthorName    string     `db:"author_name"`
}

func (r postRow) toPost() Post {
	post := Post{
		ID:          r.ID,
		UserID:      r.UserID,
		Title:       r.Title,
		Slug:        r.Slug,
		Excerpt:     r.Excerpt,
		Content:     r.Content,
		Status:      Status(r.Status),
		PublishedAt: r.PublishedAt,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
		AuthorName:  r.AuthorName,
	}
	if r.FeaturedImage != nil {
		post.FeaturedImage = *r.FeaturedImage
	}
	return post
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Get fetches a post with its author name.
func (r *PGRepository) Get(ctx context.Context, id int64) (*Post, error) {
	query, args, err := psql.Select(postColumns...).
		From("posts p").
		Join("users u ON u.id = p.user_id").
		Where(sq.Eq{"p.id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("posts: build get query: %w", err)
	}
	var row postRow
	if err := pgxscan.Get(ctx, r.db, &row, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("posts: get: %w", err)
	}
	post := row.toPost()
	return &post, nil
}

// Save inserts a post when its ID is zero and updates it otherwise. The owner
// column is written on insert only.
func (r *PGRepository) Save(ctx context.Context, post *Post) error {
	if post.ID == 0 {
		return r.insert(ctx, post)
	}
	return r.update(ctx, post)
}

func (r *PGRepository) insert(ctx context.Context, post *Post) error {
	query, args, err := psql.Insert("posts").
		Columns("user_id", "title", "slug", "excerpt", "content", "status",
			"featured_image", "published_at", "created_at", "updated_at").
		Values(post.UserID, post.Title, post.Slug, post.Excerpt, post.Content, string(post.Status),
			nullable(post.FeaturedImage), post.PublishedAt, post.CreatedAt, post.UpdatedAt).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return fmt.Errorf("posts: build insert: %w", err)
	}
	if err := r.db.QueryRow(ctx, query, args...).Scan(&post.ID); err != nil {
		return fmt.Errorf("posts: insert: %w", err)
	}
	return nil
}

func (r *PGRepository) update(ctx context.Context, post *Post) error {
	query, args, err := psql.Update("posts").
		SetMap(map[string]any{
			"title":          post.Title,
			"slug":           post.Slug,
			"excerpt":        post.Excerpt,
			"content":        post.Content,
			"status":         string(post.Status),
			"featured_image": nullable(post.FeaturedImage),
			"published_at":   post.PublishedAt,
			"updated_at":     post.UpdatedAt,
		}).
		Where(sq.Eq{"id": post.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("posts: build update: %w", err)
	}
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("posts: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Delete removes a post.
func (r *PGRepository) Delete(ctx context.Context, id int64) error {
	query, args, err := psql.Delete("posts").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("posts: build delete: %w", err)
	}
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("posts: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// List returns one page of posts matching filter, newest first, and the total
// number of matches.
func (r *PGRepository) List(ctx context.Context, filter Filter, page shared.Page) ([]Post, int, error) {
	where := filterConditions(filter)

	countQuery, countArgs, err := psql.Select("COUNT(*)").
		From("posts p").
		Where(where).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("posts: build count: %w", err)
	}
	var total int
	if err := r.db.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("posts: count: %w", err)
	}
	if total == 0 {
		return []Post{}, 0, nil
	}

	query, args, err := psql.Select(postColumns...).
		From("posts p").
		Join("users u ON u.id = p.user_id").
		Where(where).
		OrderBy("p.created_at DESC", "p.id DESC").
		Limit(page.Limit()).
		Offset(page.Offset()).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("posts: build list: %w", err)
	}
	var rows []postRow
	if err := pgxscan.Select(ctx, r.db, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("posts: list: %w", err)
	}
	out := make([]Post, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toPost())
	}
	return out, total, nil
}

func filterConditions(filter Filter) sq.And {
	where := sq.And{}
	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		where = append(where, sq.Or{
			sq.ILike{"p.title": pattern},
			sq.ILike{"p.content": pattern},
		})
	}
	if filter.Status != "" {
		where = append(where, sq.Eq{"p.status": string(filter.Status)})
	}
	if filter.OwnerID != 0 {
		where = append(where, sq.Eq{"p.user_id": filter.OwnerID})
	}
	return where
}

var _ Repository = (*PGRepository)(nil)
