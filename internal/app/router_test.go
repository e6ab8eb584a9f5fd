package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkpress/inkpress/internal/auth"
	"github.com/inkpress/inkpress/internal/media"
	"github.com/inkpress/inkpress/internal/posts"
	"github.com/inkpress/inkpress/internal/rbac"
	"github.com/inkpress/inkpress/internal/roles"
	"github.com/inkpress/inkpress/internal/shared"
	_ "github.com/inkpress/inkpress/internal/testing/guard"
	"github.com/inkpress/inkpress/internal/users"
	"github.com/inkpress/inkpress/internal/view"
	"github.com/inkpress/inkpress/jobs"
)

type directory struct {
	principals map[int64]*rbac.Principal
}

func (d directory) LoadPrincipal(_ context.Context, id int64) (*rbac.Principal, error) {
	p, ok := d.principals[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return p, nil
}

func (d directory) ListRoles(context.Context) ([]rbac.Role, error) {
	out := make([]rbac.Role, 0, len(rbac.DefaultRoles()))
	for i, def := range rbac.DefaultRoles() {
		out = append(out, rbac.Role{ID: int64(i + 1), Name: def.Name, Permissions: def.Permissions})
	}
	return out, nil
}

func (d directory) ListPermissions(context.Context) ([]rbac.Permission, error) {
	var out []rbac.Permission
	for i, name := range rbac.AllPermissions() {
		out = append(out, rbac.Permission{ID: int64(i + 1), Name: name})
	}
	return out, nil
}

func principal(id int64, role string) *rbac.Principal {
	for _, def := range rbac.DefaultRoles() {
		if def.Name == role {
			return &rbac.Principal{UserID: id, Name: "Ada", Roles: []rbac.Role{{Name: role, Permissions: def.Permissions}}}
		}
	}
	return &rbac.Principal{UserID: id, Name: "Ada"}
}

type harness struct {
	handler  http.Handler
	sessions *shared.SessionManager
	fs       afero.Fs
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	sessions := shared.NewSessionManager(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "inkpress_session", time.Hour, false)
	csrf := shared.NewCSRFManager("csrf-secret")
	templates, err := view.NewEngine()
	require.NoError(t, err)

	dir := directory{principals: map[int64]*rbac.Principal{
		1: principal(1, rbac.RoleAdmin),
		2: principal(2, rbac.RoleSubscriber),
	}}
	rbacService := rbac.NewService(dir)
	guard := rbac.Middleware{Loader: rbacService}

	fs := afero.NewMemMapFs()
	local := media.NewLocalStorage(fs, "/public", "/media/")

	h := NewRouter(RouterParams{
		Logger:             nil,
		Config:             &Config{AppEnv: "test"},
		Templates:          templates,
		SessionManager:     sessions,
		CSRFManager:        csrf,
		RBACMiddleware:     guard,
		AuthHandler:        auth.NewHandler(nil, auth.NewService(nil), templates, sessions, csrf),
		PostsHandler:       posts.NewHandler(nil, nil, templates, csrf, guard, posts.Options{}),
		UsersHandler:       users.NewHandler(nil, nil, templates, csrf, guard),
		RolesHandler:       roles.NewHandler(nil, roles.NewService(rbacService), templates, csrf, guard),
		PermissionsHandler: rbac.NewPermissionsHandler(nil, rbacService, templates, csrf, guard),
		JobHandler:         jobs.NewHandler(nil, nil),
		Media:              local,
	})
	return &harness{handler: h, sessions: sessions, fs: fs}
}

// login persists a session bound to userID and returns its cookie.
func (h *harness) login(t *testing.T, userID int64) *http.Cookie {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := h.sessions.Load(context.Background(), req)
	require.NoError(t, err)
	sess.SetUser(userID)
	rr := httptest.NewRecorder()
	require.NoError(t, h.sessions.Commit(context.Background(), rr, sess))
	cookies := rr.Result().Cookies()
	require.NotEmpty(t, cookies)
	return cookies[0]
}

func (h *harness) get(path string, cookie *http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rr := httptest.NewRecorder()
	h.handler.ServeHTTP(rr, req)
	return rr
}

func TestRouterPublicEndpoints(t *testing.T) {
	h := newHarness(t)

	t.Run("Should report health", func(t *testing.T) {
		rr := h.get("/healthz", nil)
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	})
	t.Run("Should serve static assets with cache headers", func(t *testing.T) {
		rr := h.get("/static/css/app.css", nil)
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "public, max-age=3600", rr.Header().Get("Cache-Control"))
	})
	t.Run("Should serve stored media", func(t *testing.T) {
		require.NoError(t, afero.WriteFile(h.fs, "/public/posts/a.txt", []byte("hello"), 0o644))
		rr := h.get("/media/posts/a.txt", nil)
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "hello", rr.Body.String())
	})
	t.Run("Should render the login form and issue a session cookie", func(t *testing.T) {
		rr := h.get("/auth/login", nil)
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), "<form")
		assert.Contains(t, rr.Header().Get("Set-Cookie"), "inkpress_session=")
		assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	})
}

func TestRouterRequiresLogin(t *testing.T) {
	h := newHarness(t)
	for _, path := range []string{"/", "/posts", "/users", "/roles", "/permissions"} {
		rr := h.get(path, nil)
		assert.Equal(t, http.StatusSeeOther, rr.Code, path)
		assert.Equal(t, "/auth/login", rr.Header().Get("Location"), path)
	}
}

func TestRouterAuthorization(t *testing.T) {
	h := newHarness(t)

	t.Run("Should forbid subscribers from management pages", func(t *testing.T) {
		cookie := h.login(t, 2)
		for _, path := range []string{"/posts", "/posts/new", "/users", "/roles", "/permissions", "/jobs/health"} {
			assert.Equal(t, http.StatusForbidden, h.get(path, cookie).Code, path)
		}
	})
	t.Run("Should render the dashboard with role aware navigation", func(t *testing.T) {
		rr := h.get("/", h.login(t, 2))
		require.Equal(t, http.StatusOK, rr.Code)
		body := rr.Body.String()
		assert.Contains(t, body, "Welcome, Ada")
		assert.NotContains(t, body, `href="/users"`)
	})
	t.Run("Should let admins view the role matrix", func(t *testing.T) {
		cookie := h.login(t, 1)
		rr := h.get("/roles", cookie)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), "manage roles")
		assert.Contains(t, h.get("/", cookie).Body.String(), `href="/users"`)
		assert.Equal(t, http.StatusOK, h.get("/jobs/health", cookie).Code)
	})
	t.Run("Should redirect sessions whose user vanished", func(t *testing.T) {
		rr := h.get("/", h.login(t, 99))
		assert.Equal(t, http.StatusSeeOther, rr.Code)
	})
}

func TestRouterRejectsMissingCSRFToken(t *testing.T) {
	h := newHarness(t)
	cookie := h.login(t, 1)

	form := url.Values{"title": {"Hello"}}
	req := httptest.NewRequest(http.MethodPost, "/posts", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(cookie)
	rr := httptest.NewRecorder()
	h.handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
}
