package rbac

import (
	"sort"
	"time"
)

// Role represents a named permission bundle.
type Role struct {
	ID          int64
	Name        string
	Description string
	Permissions []string
	CreatedAt   time.Time
}

// Permission represents an atomic capability.
type Permission struct {
	ID          int64
	Name        string
	Description string
}

// Principal describes the authenticated actor with its current role assignment.
type Principal struct {
	UserID int64
	Name   string
	Email  string
	Roles  []Role
}

// HasRole reports whether the principal is assigned the named role.
func (p *Principal) HasRole(name string) bool {
	if p == nil {
		return false
	}
	for _, r := range p.Roles {
		if r.Name == name {
			return true
		}
	}
	return false
}

// Grants computes the union of permissions across the assigned roles.
func (p *Principal) Grants() Grants {
	grants := make(Grants)
	if p == nil {
		return grants
	}
	for _, r := range p.Roles {
		for _, name := range r.Permissions {
			if g, ok := ParsePermission(name); ok {
				grants.add(g)
			}
		}
	}
	return grants
}

// PermissionNames returns the sorted union of known permission names held.
func (p *Principal) PermissionNames() []string {
	if p == nil {
		return nil
	}
	set := make(map[string]struct{})
	for _, r := range p.Roles {
		for _, name := range r.Permissions {
			if _, ok := ParsePermission(name); ok {
				set[name] = struct{}{}
			}
		}
	}
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RoleNames returns the assigned role names.
func (p *Principal) RoleNames() []string {
	if p == nil {
		return nil
	}
	names := make([]string, 0, len(p.Roles))
	for _, r := range p.Roles {
		names = append(names, r.Name)
	}
	return names
}
