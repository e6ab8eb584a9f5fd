package roles

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/inkpress/inkpress/internal/rbac"
	"github.com/inkpress/inkpress/internal/shared"
	"github.com/inkpress/inkpress/internal/view"
)

// Handler manages role listing endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	guard     rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager, guard rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, templates: templates, csrf: csrf, guard: guard}
}

// MountRoutes registers role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(rbac.ActionManageRoles))
		r.Get("/", h.listRoles)
	})
}

type formErrors map[string]string

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	matrix, err := h.service.Matrix(r.Context())
	if err != nil {
		h.logger.Error("list roles", slog.Any("error", err))
		h.render(w, r, "pages/roles/list.html", map[string]any{"Errors": formErrors{"general": shared.UserSafeMessage(err)}}, http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/roles/list.html", map[string]any{"Matrix": matrix}, http.StatusOK)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template string, data map[string]any, status int) {
	sess := shared.SessionFromContext(r.Context())
	p := rbac.PrincipalFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(sess)
	viewData := view.TemplateData{
		Title:       "Roles",
		CSRFToken:   csrfToken,
		Flash:       sess.PopFlash(),
		CurrentPath: r.URL.Path,
		Abilities:   rbac.Abilities(p),
		Data:        data,
	}
	if p != nil {
		viewData.UserName = p.Name
	}
	if err := h.templates.RenderStatus(w, status, template, viewData); err != nil {
		h.logger.Error("render template", slog.Any("error", err))
	}
}
