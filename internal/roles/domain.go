package roles

import "github.com/inkpress/inkpress/internal/rbac"

// Row is one role with its grant for every known permission.
type Row struct {
	Role    rbac.Role
	Granted map[string]bool
}

// Matrix lays roles against the permission catalogue.
type Matrix struct {
	Permissions []string
	Rows        []Row
}
