package app

import (
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/inkpress/inkpress/internal/auth"
	"github.com/inkpress/inkpress/internal/observability"
	"github.com/inkpress/inkpress/internal/platform/httpx"
	"github.com/inkpress/inkpress/internal/posts"
	"github.com/inkpress/inkpress/internal/rbac"
	"github.com/inkpress/inkpress/internal/roles"
	"github.com/inkpress/inkpress/internal/shared"
	"github.com/inkpress/inkpress/internal/users"
	"github.com/inkpress/inkpress/internal/view"
	"github.com/inkpress/inkpress/jobs"
	"github.com/inkpress/inkpress/web"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	Templates          *view.Engine
	SessionManager     *shared.SessionManager
	CSRFManager        *shared.CSRFManager
	RBACMiddleware     rbac.Middleware
	AuthHandler        *auth.Handler
	PostsHandler       *posts.Handler
	UsersHandler       *users.Handler
	RolesHandler       *roles.Handler
	PermissionsHandler *rbac.PermissionsHandler
	JobHandler         *jobs.Handler
	Metrics            *observability.Metrics

	// Media serves locally stored uploads when set; mounted under its prefix.
	Media MediaServer
}

// MediaServer is implemented by storages that serve their own files.
type MediaServer interface {
	Prefix() string
	Handler() http.Handler
}

// NewRouter constructs the chi.Router with Inkpress defaults.
func NewRouter(params RouterParams) http.Handler {
	if params.Logger == nil {
		params.Logger = slog.Default()
	}
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	if !InTestMode() {
		r.Use(chimw.Logger)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}
	if params.Media != nil {
		prefix := params.Media.Prefix()
		r.Handle(prefix+"*", staticCacheHandler(http.StripPrefix(prefix, params.Media.Handler())))
	}

	r.Route("/auth", params.AuthHandler.MountRoutes)

	r.Group(func(r chi.Router) {
		r.Use(params.RBACMiddleware.Authenticate)

		r.Get("/", homeHandler(params))
		r.Route("/posts", params.PostsHandler.MountRoutes)
		r.Route("/users", params.UsersHandler.MountRoutes)
		r.Route("/roles", params.RolesHandler.MountRoutes)
		r.Route("/permissions", params.PermissionsHandler.MountRoutes)
		if params.JobHandler != nil {
			r.Route("/jobs", func(r chi.Router) {
				r.Use(params.RBACMiddleware.Require(rbac.ActionManageRoles))
				params.JobHandler.MountRoutes(r)
			})
		}
	})

	return r
}

type homePageData struct {
	Roles       []string
	Permissions []string
}

// homeHandler renders the dashboard for the signed-in principal.
func homeHandler(params RouterParams) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		p := rbac.PrincipalFromContext(r.Context())
		csrfToken, _ := params.CSRFManager.EnsureToken(sess)
		data := view.TemplateData{
			Title:       "Dashboard",
			CSRFToken:   csrfToken,
			Flash:       sess.PopFlash(),
			CurrentPath: r.URL.Path,
			Abilities:   rbac.Abilities(p),
		}
		if p != nil {
			data.UserName = p.Name
			data.Data = homePageData{Roles: p.RoleNames(), Permissions: p.PermissionNames()}
		}
		if err := params.Templates.Render(w, "pages/home.html", data); err != nil {
			params.Logger.Error("render home", slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
	}
}

// staticCacheHandler wraps a file server with Cache-Control headers.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
