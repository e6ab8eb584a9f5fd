package rbac

import (
	"context"
)

// Store defines the persistence needed by Service.
type Store interface {
	LoadPrincipal(ctx context.Context, userID int64) (*Principal, error)
	ListRoles(ctx context.Context) ([]Role, error)
	ListPermissions(ctx context.Context) ([]Permission, error)
}

// Service exposes role and permission lookups. Nothing is cached between calls
// so role changes take effect on the next request.
type Service struct {
	store Store
}

// NewService constructs a Service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// LoadPrincipal fetches the user with its current roles and permissions.
func (s *Service) LoadPrincipal(ctx context.Context, userID int64) (*Principal, error) {
	return s.store.LoadPrincipal(ctx, userID)
}

// ListRoles returns all roles with their permissions.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.store.ListRoles(ctx)
}

// ListPermissions returns the permission catalogue.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.store.ListPermissions(ctx)
}
