package users

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/inkpress/inkpress/internal/platform/httpx"
	"github.com/inkpress/inkpress/internal/rbac"
	"github.com/inkpress/inkpress/internal/shared"
	"github.com/inkpress/inkpress/internal/view"
)

// Handler manages user management endpoints.
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

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(rbac.ActionManageUsers))
		r.Get("/", h.listUsers)
		r.Get("/new", h.showCreateUserForm)
		r.Post("/", h.createUser)
		r.Get("/{id}/edit", h.showEditUserForm)
		r.Post("/{id}", h.updateUser)
		r.Post("/{id}/delete", h.deleteUser)
	})
}

type formErrors map[string]string

type userListRow struct {
	User
	IsSelf bool
}

type listPageData struct {
	Users      []userListRow
	Roles      []rbac.Role
	Search     string
	Role       string
	Pagination shared.Pagination
}

type formPageData struct {
	User   *User
	Form   Input
	Roles  []rbac.Role
	Errors formErrors
	Action string
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	actor := rbac.PrincipalFromContext(r.Context())
	q := r.URL.Query()
	filter := Filter{Search: strings.TrimSpace(q.Get("search")), Role: strings.TrimSpace(q.Get("role"))}
	page := shared.PageFromQuery(q, shared.DefaultPerPage)

	list, total, err := h.service.List(r.Context(), actor, filter, page)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	roles, err := h.service.Roles(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	rows := make([]userListRow, 0, len(list))
	for _, u := range list {
		rows = append(rows, userListRow{User: u, IsSelf: actor != nil && u.ID == actor.UserID})
	}
	h.render(w, r, http.StatusOK, "pages/users/index.html", "Users", listPageData{
		Users:      rows,
		Roles:      roles,
		Search:     filter.Search,
		Role:       filter.Role,
		Pagination: shared.NewPagination(page, total),
	})
}

func (h *Handler) showCreateUserForm(w http.ResponseWriter, r *http.Request) {
	h.renderForm(w, r, http.StatusOK, "Create User", nil, Input{}, nil)
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	in, ok := parseInput(w, r)
	if !ok {
		return
	}
	_, flash, err := h.service.Create(r.Context(), rbac.PrincipalFromContext(r.Context()), in)
	if err != nil {
		if errors.Is(err, shared.ErrValidation) {
			h.renderForm(w, r, http.StatusUnprocessableEntity, "Create User", nil, in, shared.FieldErrors(err))
			return
		}
		h.fail(w, r, err)
		return
	}
	h.redirectWithFlash(w, r, "/users", flash)
}

func (h *Handler) showEditUserForm(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	user, err := h.service.Get(r.Context(), rbac.PrincipalFromContext(r.Context()), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	form := Input{Name: user.Name, Email: user.Email, Roles: user.Roles}
	h.renderForm(w, r, http.StatusOK, "Edit User", user, form, nil)
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	in, ok := parseInput(w, r)
	if !ok {
		return
	}
	actor := rbac.PrincipalFromContext(r.Context())
	_, flash, err := h.service.Update(r.Context(), actor, id, in)
	if err != nil {
		if errors.Is(err, shared.ErrValidation) {
			user, loadErr := h.service.Get(r.Context(), actor, id)
			if loadErr != nil {
				h.fail(w, r, loadErr)
				return
			}
			in.Password = ""
			h.renderForm(w, r, http.StatusUnprocessableEntity, "Edit User", user, in, shared.FieldErrors(err))
			return
		}
		h.fail(w, r, err)
		return
	}
	h.redirectWithFlash(w, r, "/users", flash)
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	flash, err := h.service.Delete(r.Context(), rbac.PrincipalFromContext(r.Context()), id)
	if err != nil && !errors.Is(err, shared.ErrSelfDeletion) {
		h.fail(w, r, err)
		return
	}
	h.redirectWithFlash(w, r, "/users", flash)
}

func parseInput(w http.ResponseWriter, r *http.Request) (Input, bool) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return Input{}, false
	}
	return Input{
		Name:     r.PostFormValue("name"),
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
		Roles:    r.PostForm["roles"],
	}, true
}

func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.NotFound(w, r)
		return 0, false
	}
	return id, true
}

func (h *Handler) renderForm(w http.ResponseWriter, r *http.Request, status int, title string, user *User, form Input, errs formErrors) {
	roles, err := h.service.Roles(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	action := "/users"
	if user != nil {
		action = fmt.Sprintf("/users/%d", user.ID)
	}
	h.render(w, r, status, "pages/users/form.html", title, formPageData{
		User:   user,
		Form:   form,
		Roles:  roles,
		Errors: errs,
		Action: action,
	})
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, template, title string, data any) {
	sess := shared.SessionFromContext(r.Context())
	actor := rbac.PrincipalFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(sess)
	viewData := view.TemplateData{
		Title:       title,
		CSRFToken:   csrfToken,
		Flash:       sess.PopFlash(),
		CurrentPath: r.URL.Path,
		Abilities:   rbac.Abilities(actor),
		Data:        data,
	}
	if actor != nil {
		viewData.UserName = actor.Name
	}
	if err := h.templates.RenderStatus(w, status, template, viewData); err != nil {
		h.logger.Error("render template", slog.String("template", template), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := httpx.StatusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("users request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	http.Error(w, shared.UserSafeMessage(err), status)
}

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, location string, flash shared.FlashMessage) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(flash)
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}
