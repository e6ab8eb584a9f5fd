package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/inkpress/inkpress/internal/rbac"
	"github.com/inkpress/inkpress/internal/users"
)

type memoryUsers struct {
	taken   bool
	created *users.User
	roleIDs []int64
}

func (m *memoryUsers) EmailTaken(context.Context, string, int64) (bool, error) { return m.taken, nil }

func (m *memoryUsers) Create(_ context.Context, u *users.User, roleIDs []int64) error {
	u.ID = 1
	m.created = u
	m.roleIDs = roleIDs
	return nil
}

type staticRoles []rbac.Role

func (s staticRoles) ListRoles(context.Context) ([]rbac.Role, error) { return s, nil }

func TestSeedAdmin(t *testing.T) {
	roles := staticRoles{{ID: 3, Name: rbac.RoleEditor}, {ID: 9, Name: rbac.RoleAdmin}}
	acct := adminAccount{Name: "Admin", Email: "admin@example.com", Password: "s3cret-pass"}

	t.Run("Should create an active admin", func(t *testing.T) {
		store := &memoryUsers{}
		created, err := seedAdmin(context.Background(), store, roles, acct)
		require.NoError(t, err)
		assert.True(t, created)
		require.NotNil(t, store.created)
		assert.True(t, store.created.IsActive)
		assert.Equal(t, []int64{9}, store.roleIDs)
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(store.created.PasswordHash), []byte("s3cret-pass")))
	})
	t.Run("Should skip an existing email", func(t *testing.T) {
		store := &memoryUsers{taken: true}
		created, err := seedAdmin(context.Background(), store, roles, acct)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Nil(t, store.created)
	})
	t.Run("Should fail without the admin role", func(t *testing.T) {
		_, err := seedAdmin(context.Background(), &memoryUsers{}, staticRoles{}, acct)
		assert.Error(t, err)
	})
}
