package roles

import (
	"context"

	"github.com/inkpress/inkpress/internal/rbac"
)

// RepositoryPort defines data access methods for roles.
type RepositoryPort interface {
	ListRoles(ctx context.Context) ([]rbac.Role, error)
}

// Service handles role business logic.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// ListRoles returns all roles.
func (s *Service) ListRoles(ctx context.Context) ([]rbac.Role, error) {
	return s.repo.ListRoles(ctx)
}

// Matrix returns every role against the fixed permission set in seed order.
// Stored permission names outside the catalogue are ignored.
func (s *Service) Matrix(ctx context.Context) (Matrix, error) {
	roles, err := s.repo.ListRoles(ctx)
	if err != nil {
		return Matrix{}, err
	}
	m := Matrix{Permissions: rbac.AllPermissions(), Rows: make([]Row, 0, len(roles))}
	for _, role := range roles {
		granted := make(map[string]bool, len(m.Permissions))
		for _, name := range role.Permissions {
			if _, ok := rbac.ParsePermission(name); ok {
				granted[name] = true
			}
		}
		m.Rows = append(m.Rows, Row{Role: role, Granted: granted})
	}
	return m, nil
}
