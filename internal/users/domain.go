package users

import (
	"time"

	"github.com/inkpress/inkpress/internal/rbac"
)

// User represents a user account for management.
type User struct {
	ID           int64
	Email        string
	Name         string
	PasswordHash string
	IsActive     bool
	Roles        []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasRole reports whether the user is assigned the named role.
func (u User) HasRole(name string) bool {
	for _, r := range u.Roles {
		if r == name {
			return true
		}
	}
	return false
}

// OwnerID implements rbac.Resource; a user owns its own account.
func (u *User) OwnerID() int64 {
	return u.ID
}

var _ rbac.Resource = (*User)(nil)

// Filter narrows user listings.
type Filter struct {
	Search string
	Role   string
}

// Input carries the editable fields of a user form. Password is optional on
// edit and keeps the current hash when blank.
type Input struct {
	Name     string   `form:"name" validate:"required,max=255"`
	Email    string   `form:"email" validate:"required,email,max=255"`
	Password string   `form:"password" validate:"omitempty,min=8"`
	Roles    []string `form:"roles" validate:"required,min=1"`
}
