package posts

import "time"

// Status is the lifecycle state of a post.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
)

// Statuses lists every lifecycle state.
func Statuses() []Status {
	return []Status{StatusDraft, StatusPublished, StatusArchived}
}

// ParseStatus accepts only the three lifecycle states.
func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusDraft, StatusPublished, StatusArchived:
		return Status(s), true
	}
	return "", false
}

// Post is a blog post owned by exactly one user.
type Post struct {
	ID            int64
	UserID        int64
	Title         string
	Slug          string
	Excerpt       string
	Content       string
	Status        Status
	FeaturedImage string
	PublishedAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time

	// AuthorName is read from the owning user; never written.
	AuthorName string
}

// OwnerID implements rbac.Resource.
func (p *Post) OwnerID() int64 {
	return p.UserID
}

// Filter narrows post listings.
type Filter struct {
	Search  string
	Status  Status
	OwnerID int64
}
