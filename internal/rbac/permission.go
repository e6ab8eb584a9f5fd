package rbac

import "strings"

// Action names a capability checked by Can. Ownership-scoped actions pair with a Scope.
type Action string

const (
	ActionCreatePosts  Action = "create posts"
	ActionEditPosts    Action = "edit posts"
	ActionDeletePosts  Action = "delete posts"
	ActionPublishPosts Action = "publish posts"
	ActionManageUsers  Action = "manage users"
	ActionManageRoles  Action = "manage roles"
)

// Scope is ordered: ScopeAll subsumes ScopeOwn.
type Scope uint8

const (
	ScopeNone Scope = iota
	ScopeOwn
	ScopeAll
)

func (s Scope) String() string {
	switch s {
	case ScopeOwn:
		return "own"
	case ScopeAll:
		return "all"
	default:
		return "none"
	}
}

// Permission names as stored in the permissions table.
const (
	PermCreatePosts    = "create posts"
	PermEditOwnPosts   = "edit own posts"
	PermEditAllPosts   = "edit all posts"
	PermDeleteOwnPosts = "delete own posts"
	PermDeleteAllPosts = "delete all posts"
	PermPublishPosts   = "publish posts"
	PermManageUsers    = "manage users"
	PermManageRoles    = "manage roles"
)

// Role names created by the seeder.
const (
	RoleAdmin      = "admin"
	RoleEditor     = "editor"
	RoleAuthor     = "author"
	RoleSubscriber = "subscriber"
)

// Grant is the parsed form of a permission string.
type Grant struct {
	Action Action
	Scope  Scope
}

var catalogue = []struct {
	name  string
	grant Grant
}{
	{PermCreatePosts, Grant{ActionCreatePosts, ScopeAll}},
	{PermEditOwnPosts, Grant{ActionEditPosts, ScopeOwn}},
	{PermEditAllPosts, Grant{ActionEditPosts, ScopeAll}},
	{PermDeleteOwnPosts, Grant{ActionDeletePosts, ScopeOwn}},
	{PermDeleteAllPosts, Grant{ActionDeletePosts, ScopeAll}},
	{PermPublishPosts, Grant{ActionPublishPosts, ScopeAll}},
	{PermManageUsers, Grant{ActionManageUsers, ScopeAll}},
	{PermManageRoles, Grant{ActionManageRoles, ScopeAll}},
}

var grantsByName = func() map[string]Grant {
	m := make(map[string]Grant, len(catalogue))
	for _, entry := range catalogue {
		m[entry.name] = entry.grant
	}
	return m
}()

// ParsePermission maps a permission string to its grant. Unknown names report false.
func ParsePermission(name string) (Grant, bool) {
	g, ok := grantsByName[strings.ToLower(strings.TrimSpace(name))]
	return g, ok
}

// AllPermissions returns the fixed permission set in seed order.
func AllPermissions() []string {
	names := make([]string, 0, len(catalogue))
	for _, entry := range catalogue {
		names = append(names, entry.name)
	}
	return names
}

// RoleDefinition is a seeded role and its permission names.
type RoleDefinition struct {
	Name        string
	Permissions []string
}

// DefaultRoles lists the roles created at install time.
func DefaultRoles() []RoleDefinition {
	return []RoleDefinition{
		{Name: RoleAdmin, Permissions: AllPermissions()},
		{Name: RoleEditor, Permissions: []string{PermCreatePosts, PermEditAllPosts, PermDeleteAllPosts, PermPublishPosts}},
		{Name: RoleAuthor, Permissions: []string{PermCreatePosts, PermEditOwnPosts, PermDeleteOwnPosts}},
		{Name: RoleSubscriber, Permissions: nil},
	}
}

// Grants is an effective permission set keyed by action, holding the widest scope.
type Grants map[Action]Scope

func (g Grants) add(grant Grant) {
	if grant.Scope > g[grant.Action] {
		g[grant.Action] = grant.Scope
	}
}

// Scope returns the widest scope held for action.
func (g Grants) Scope(action Action) Scope {
	return g[action]
}
