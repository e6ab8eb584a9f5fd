package users

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/inkpress/inkpress/internal/rbac"
	"github.com/inkpress/inkpress/internal/shared"
)

type fakeRepo struct {
	users    map[int64]*User
	roleIDs  map[int64][]int64
	nextID   int64
	emailErr error
}

func newFakeRepo(seed ...User) *fakeRepo {
	r := &fakeRepo{users: map[int64]*User{}, roleIDs: map[int64][]int64{}, nextID: 100}
	for i := range seed {
		u := seed[i]
		r.users[u.ID] = &u
	}
	return r
}

func (r *fakeRepo) Get(_ context.Context, id int64) (*User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *fakeRepo) List(context.Context, Filter, shared.Page) ([]User, int, error) {
	out := make([]User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, *u)
	}
	return out, len(out), nil
}

func (r *fakeRepo) EmailTaken(_ context.Context, email string, exceptID int64) (bool, error) {
	if r.emailErr != nil {
		return false, r.emailErr
	}
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) && u.ID != exceptID {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeRepo) Create(_ context.Context, u *User, roleIDs []int64) error {
	r.nextID++
	u.ID = r.nextID
	cp := *u
	r.users[u.ID] = &cp
	r.roleIDs[u.ID] = roleIDs
	return nil
}

func (r *fakeRepo) Update(_ context.Context, u *User, roleIDs []int64) error {
	if _, ok := r.users[u.ID]; !ok {
		return shared.ErrNotFound
	}
	cp := *u
	r.users[u.ID] = &cp
	r.roleIDs[u.ID] = roleIDs
	return nil
}

func (r *fakeRepo) Delete(_ context.Context, id int64) error {
	if _, ok := r.users[id]; !ok {
		return shared.ErrNotFound
	}
	delete(r.users, id)
	return nil
}

type catalog struct{}

func (catalog) ListRoles(context.Context) ([]rbac.Role, error) {
	var out []rbac.Role
	for i, def := range rbac.DefaultRoles() {
		out = append(out, rbac.Role{ID: int64(i + 1), Name: def.Name, Permissions: def.Permissions})
	}
	return out, nil
}

type auditTrail []shared.AuditLog

func (a *auditTrail) Record(_ context.Context, log shared.AuditLog) error {
	*a = append(*a, log)
	return nil
}

func actor(id int64, role string) *rbac.Principal {
	for _, def := range rbac.DefaultRoles() {
		if def.Name == role {
			return &rbac.Principal{UserID: id, Roles: []rbac.Role{{Name: role, Permissions: def.Permissions}}}
		}
	}
	return &rbac.Principal{UserID: id}
}

func newService(repo *fakeRepo, audit *auditTrail) *Service {
	return NewService(repo, catalog{}, rbac.Authorizer{}, audit, nil).WithHashCost(bcrypt.MinCost)
}

func TestServiceCreate(t *testing.T) {
	admin := actor(1, rbac.RoleAdmin)

	t.Run("Should create an active user with hashed password and roles", func(t *testing.T) {
		repo := newFakeRepo()
		audit := &auditTrail{}
		user, flash, err := newService(repo, audit).Create(context.Background(), admin, Input{
			Name:     "  Grace ",
			Email:    "grace@example.com",
			Password: "supersecret",
			Roles:    []string{rbac.RoleEditor, rbac.RoleEditor, rbac.RoleAuthor},
		})
		require.NoError(t, err)
		assert.Equal(t, "User created successfully!", flash.Message)
		assert.Equal(t, "Grace", user.Name)
		assert.True(t, user.IsActive)
		assert.Equal(t, []int64{2, 3}, repo.roleIDs[user.ID])
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("supersecret")))
		require.Len(t, *audit, 1)
		assert.Equal(t, "user.created", (*audit)[0].Action)
	})
	t.Run("Should report every invalid field", func(t *testing.T) {
		_, _, err := newService(newFakeRepo(), &auditTrail{}).Create(context.Background(), admin, Input{
			Email:    "not-an-email",
			Password: "short",
		})
		require.ErrorIs(t, err, shared.ErrValidation)
		fields := shared.FieldErrors(err)
		assert.Equal(t, "The name field is required.", fields["name"])
		assert.Equal(t, "The email field must be a valid email address.", fields["email"])
		assert.Equal(t, "The password field must be at least 8 characters.", fields["password"])
		assert.Equal(t, "The roles field is required.", fields["roles"])
	})
	t.Run("Should require a password", func(t *testing.T) {
		_, _, err := newService(newFakeRepo(), &auditTrail{}).Create(context.Background(), admin, Input{
			Name: "Grace", Email: "grace@example.com", Roles: []string{rbac.RoleAuthor},
		})
		assert.Equal(t, "The password field is required.", shared.FieldErrors(err)["password"])
	})
	t.Run("Should reject taken emails ignoring case", func(t *testing.T) {
		repo := newFakeRepo(User{ID: 5, Email: "Grace@Example.com"})
		_, _, err := newService(repo, &auditTrail{}).Create(context.Background(), admin, Input{
			Name: "Grace", Email: "grace@example.com", Password: "supersecret", Roles: []string{rbac.RoleAuthor},
		})
		assert.Equal(t, "The email has already been taken.", shared.FieldErrors(err)["email"])
	})
	t.Run("Should reject unknown roles", func(t *testing.T) {
		_, _, err := newService(newFakeRepo(), &auditTrail{}).Create(context.Background(), admin, Input{
			Name: "Grace", Email: "grace@example.com", Password: "supersecret", Roles: []string{"overlord"},
		})
		assert.Equal(t, "The selected roles is invalid.", shared.FieldErrors(err)["roles"])
	})
	t.Run("Should forbid principals without manage users", func(t *testing.T) {
		_, _, err := newService(newFakeRepo(), &auditTrail{}).Create(context.Background(), actor(2, rbac.RoleEditor), Input{})
		assert.ErrorIs(t, err, shared.ErrForbidden)
	})
}

func TestServiceUpdate(t *testing.T) {
	admin := actor(1, rbac.RoleAdmin)
	existing := User{ID: 7, Name: "Grace", Email: "grace@example.com", PasswordHash: "old-hash", IsActive: true, Roles: []string{rbac.RoleAuthor}}

	t.Run("Should keep the password when left blank and sync roles", func(t *testing.T) {
		repo := newFakeRepo(existing)
		user, flash, err := newService(repo, &auditTrail{}).Update(context.Background(), admin, 7, Input{
			Name: "Grace H", Email: "grace@example.com", Roles: []string{rbac.RoleEditor},
		})
		require.NoError(t, err)
		assert.Equal(t, "User updated successfully!", flash.Message)
		assert.Equal(t, "old-hash", user.PasswordHash)
		assert.Equal(t, []int64{2}, repo.roleIDs[7])
		assert.Equal(t, "Grace H", repo.users[7].Name)
	})
	t.Run("Should rehash a new password", func(t *testing.T) {
		repo := newFakeRepo(existing)
		user, _, err := newService(repo, &auditTrail{}).Update(context.Background(), admin, 7, Input{
			Name: "Grace", Email: "grace@example.com", Password: "brand-new-pass", Roles: []string{rbac.RoleAuthor},
		})
		require.NoError(t, err)
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("brand-new-pass")))
	})
	t.Run("Should allow keeping the same email but not another user's", func(t *testing.T) {
		repo := newFakeRepo(existing, User{ID: 8, Email: "ada@example.com"})
		_, _, err := newService(repo, &auditTrail{}).Update(context.Background(), admin, 7, Input{
			Name: "Grace", Email: "ada@example.com", Roles: []string{rbac.RoleAuthor},
		})
		assert.Equal(t, "The email has already been taken.", shared.FieldErrors(err)["email"])
	})
	t.Run("Should report missing users", func(t *testing.T) {
		_, _, err := newService(newFakeRepo(), &auditTrail{}).Update(context.Background(), admin, 99, Input{})
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestServiceDelete(t *testing.T) {
	admin := actor(1, rbac.RoleAdmin)

	t.Run("Should refuse self deletion with a flash", func(t *testing.T) {
		repo := newFakeRepo(User{ID: 1})
		flash, err := newService(repo, &auditTrail{}).Delete(context.Background(), admin, 1)
		assert.ErrorIs(t, err, shared.ErrSelfDeletion)
		assert.Equal(t, shared.FlashError, flash.Kind)
		assert.Equal(t, "You cannot delete your own account!", flash.Message)
		assert.Contains(t, repo.users, int64(1))
	})
	t.Run("Should delete other users and audit it", func(t *testing.T) {
		repo := newFakeRepo(User{ID: 4})
		audit := &auditTrail{}
		flash, err := newService(repo, audit).Delete(context.Background(), admin, 4)
		require.NoError(t, err)
		assert.Equal(t, "User deleted successfully!", flash.Message)
		assert.NotContains(t, repo.users, int64(4))
		require.Len(t, *audit, 1)
		assert.Equal(t, int64(4), (*audit)[0].EntityID)
	})
}

func TestServiceSurfacesEmailLookupFailures(t *testing.T) {
	repo := newFakeRepo(User{ID: 5, Name: "Grace", Email: "grace@example.com"})
	repo.emailErr = errors.New("connection reset")
	svc := newService(repo, &auditTrail{})
	admin := actor(1, rbac.RoleAdmin)

	_, _, err := svc.Create(context.Background(), admin, Input{Name: "Ada", Email: "ada@example.com", Password: "supersecret", Roles: []string{rbac.RoleAuthor}})
	require.Error(t, err)
	assert.NotErrorIs(t, err, shared.ErrValidation)

	_, _, err = svc.Update(context.Background(), admin, 5, Input{Name: "Grace", Email: "grace@example.com", Roles: []string{rbac.RoleAuthor}})
	require.Error(t, err)
	assert.NotErrorIs(t, err, shared.ErrValidation)
	assert.Equal(t, "Grace", repo.users[5].Name)
}
