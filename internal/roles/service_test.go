package roles

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkpress/inkpress/internal/rbac"
)

type stubRoles struct {
	roles []rbac.Role
	err   error
}

func (s stubRoles) ListRoles(context.Context) ([]rbac.Role, error) { return s.roles, s.err }

func TestMatrix(t *testing.T) {
	svc := NewService(stubRoles{roles: []rbac.Role{
		{ID: 1, Name: rbac.RoleAuthor, Permissions: []string{rbac.PermCreatePosts, rbac.PermEditOwnPosts, "launch rockets"}},
		{ID: 2, Name: rbac.RoleSubscriber},
	}})

	m, err := svc.Matrix(context.Background())
	require.NoError(t, err)
	assert.Equal(t, rbac.AllPermissions(), m.Permissions)
	require.Len(t, m.Rows, 2)
	assert.True(t, m.Rows[0].Granted[rbac.PermCreatePosts])
	assert.False(t, m.Rows[0].Granted[rbac.PermPublishPosts])
	assert.NotContains(t, m.Rows[0].Granted, "launch rockets")
	assert.Empty(t, m.Rows[1].Granted)
}

func TestMatrixPropagatesErrors(t *testing.T) {
	_, err := NewService(stubRoles{err: errors.New("boom")}).Matrix(context.Background())
	assert.Error(t, err)
}
