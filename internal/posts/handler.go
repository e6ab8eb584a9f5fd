package posts

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/inkpress/inkpress/internal/media"
	"github.com/inkpress/inkpress/internal/platform/httpx"
	"github.com/inkpress/inkpress/internal/rbac"
	"github.com/inkpress/inkpress/internal/shared"
	"github.com/inkpress/inkpress/internal/view"
)

// Handler exposes post management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	guard     rbac.Middleware
	opts      Options
}

// Options tunes listing and upload limits.
type Options struct {
	PerPage   int
	MaxUpload int64
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager, guard rbac.Middleware, opts Options) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxUpload <= 0 {
		opts.MaxUpload = media.DefaultMaxBytes
	}
	if opts.PerPage <= 0 {
		opts.PerPage = shared.DefaultPerPage
	}
	return &Handler{
		logger:    logger,
		service:   service,
		templates: templates,
		csrf:      csrf,
		guard:     guard,
		opts:      opts,
	}
}

// MountRoutes registers post routes. Per-post routes are authorized by the
// service against the loaded post.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(rbac.ActionCreatePosts))
		r.Get("/", h.index)
		r.Get("/new", h.showCreate)
		r.Post("/", h.create)
	})
	r.Get("/{id}/edit", h.showEdit)
	r.Post("/{id}", h.update)
	r.Post("/{id}/delete", h.delete)
}

type postListRow struct {
	Post
	ImageURL  string
	CanEdit   bool
	CanDelete bool
}

type indexPageData struct {
	Posts      []postListRow
	Search     string
	Status     string
	Statuses   []Status
	Pagination shared.Pagination
}

type formPageData struct {
	Post     *Post
	ImageURL string
	Form     Input
	Statuses []Status
	Errors   map[string]string
	Action   string
}

func (h *Handler) index(w http.ResponseWriter, r *http.Request) {
	p := rbac.PrincipalFromContext(r.Context())
	q := r.URL.Query()
	filter := Filter{Search: strings.TrimSpace(q.Get("search"))}
	if status, ok := ParseStatus(q.Get("status")); ok {
		filter.Status = status
	}
	page := shared.PageFromQuery(q, h.opts.PerPage)

	list, total, err := h.service.List(r.Context(), p, filter, page)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	rows := make([]postListRow, 0, len(list))
	for i := range list {
		post := &list[i]
		rows = append(rows, postListRow{
			Post:      *post,
			ImageURL:  h.service.ImageURL(post.FeaturedImage),
			CanEdit:   rbac.Can(p, rbac.ActionEditPosts, post),
			CanDelete: rbac.Can(p, rbac.ActionDeletePosts, post),
		})
	}
	h.render(w, r, http.StatusOK, "pages/posts/index.html", "Posts", indexPageData{
		Posts:      rows,
		Search:     filter.Search,
		Status:     string(filter.Status),
		Statuses:   Statuses(),
		Pagination: shared.NewPagination(page, total),
	})
}

func (h *Handler) showCreate(w http.ResponseWriter, r *http.Request) {
	p := rbac.PrincipalFromContext(r.Context())
	h.render(w, r, http.StatusOK, "pages/posts/form.html", "New Post", formPageData{
		Form:     Input{Status: string(StatusDraft)},
		Statuses: StatusOptions(p, nil),
		Action:   "/posts",
	})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	p := rbac.PrincipalFromContext(r.Context())
	in, err := h.readInput(r)
	var flash shared.FlashMessage
	if err == nil {
		_, flash, err = h.service.Create(r.Context(), p, in)
	}
	if err != nil {
		if errors.Is(err, shared.ErrValidation) {
			h.render(w, r, http.StatusUnprocessableEntity, "pages/posts/form.html", "New Post", formPageData{
				Form:     in,
				Statuses: StatusOptions(p, nil),
				Errors:   shared.FieldErrors(err),
				Action:   "/posts",
			})
			return
		}
		h.fail(w, r, err)
		return
	}
	redirectWithFlash(w, r, "/posts", flash)
}

func (h *Handler) showEdit(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	p := rbac.PrincipalFromContext(r.Context())
	post, err := h.service.ForEdit(r.Context(), p, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "pages/posts/form.html", "Edit Post", formPageData{
		Post:     post,
		ImageURL: h.service.ImageURL(post.FeaturedImage),
		Form: Input{
			Title:   post.Title,
			Excerpt: post.Excerpt,
			Content: post.Content,
			Status:  string(post.Status),
		},
		Statuses: StatusOptions(p, post),
		Action:   fmt.Sprintf("/posts/%d", post.ID),
	})
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	p := rbac.PrincipalFromContext(r.Context())
	in, err := h.readInput(r)
	var flash shared.FlashMessage
	if err == nil {
		_, flash, err = h.service.Update(r.Context(), p, id, in)
	}
	if err != nil {
		if errors.Is(err, shared.ErrValidation) {
			post, loadErr := h.service.ForEdit(r.Context(), p, id)
			if loadErr != nil {
				h.fail(w, r, loadErr)
				return
			}
			h.render(w, r, http.StatusUnprocessableEntity, "pages/posts/form.html", "Edit Post", formPageData{
				Post:     post,
				ImageURL: h.service.ImageURL(post.FeaturedImage),
				Form:     in,
				Statuses: StatusOptions(p, post),
				Errors:   shared.FieldErrors(err),
				Action:   fmt.Sprintf("/posts/%d", post.ID),
			})
			return
		}
		h.fail(w, r, err)
		return
	}
	redirectWithFlash(w, r, "/posts", flash)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	flash, err := h.service.Delete(r.Context(), rbac.PrincipalFromContext(r.Context()), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	redirectWithFlash(w, r, "/posts", flash)
}

func (h *Handler) readInput(r *http.Request) (Input, error) {
	if err := r.ParseMultipartForm(h.opts.MaxUpload + (1 << 20)); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return Input{}, shared.NewValidationError("featured_image", "The featured image failed to upload.")
	}
	in := Input{
		Title:   r.PostFormValue("title"),
		Excerpt: r.PostFormValue("excerpt"),
		Content: r.PostFormValue("content"),
		Status:  r.PostFormValue("status"),
	}
	file, header, err := r.FormFile("featured_image")
	switch {
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
		return in, nil
	case err != nil:
		return in, fmt.Errorf("posts: read upload: %w", err)
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, h.opts.MaxUpload+1))
	if err != nil {
		return in, fmt.Errorf("posts: read upload: %w", err)
	}
	if len(data) > 0 {
		in.Image = &media.Upload{Filename: header.Filename, Data: data}
	}
	return in, nil
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, name, title string, data any) {
	sess := shared.SessionFromContext(r.Context())
	p := rbac.PrincipalFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(sess)
	viewData := view.TemplateData{
		Title:       title,
		CSRFToken:   csrfToken,
		Flash:       sess.PopFlash(),
		CurrentPath: r.URL.Path,
		Abilities:   rbac.Abilities(p),
		Data:        data,
	}
	if p != nil {
		viewData.UserName = p.Name
	}
	if err := h.templates.RenderStatus(w, status, name, viewData); err != nil {
		h.logger.Error("render posts", slog.String("template", name), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := httpx.StatusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("posts request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	http.Error(w, shared.UserSafeMessage(err), status)
}

func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.NotFound(w, r)
		return 0, false
	}
	return id, true
}

func redirectWithFlash(w http.ResponseWriter, r *http.Request, to string, flash shared.FlashMessage) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(flash)
	}
	http.Redirect(w, r, to, http.StatusSeeOther)
}
