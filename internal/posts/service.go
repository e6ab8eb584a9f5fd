package posts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/inkpress/inkpress/internal/media"
	"github.com/inkpress/inkpress/internal/rbac"
	"github.com/inkpress/inkpress/internal/shared"
)

// Repository defines persistence operations for posts.
type Repository interface {
	Get(ctx context.Context, id int64) (*Post, error)
	Save(ctx context.Context, post *Post) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, filter Filter, page shared.Page) ([]Post, int, error)
}

// MediaPurger retries deletion of stored files out of band.
type MediaPurger interface {
	EnqueueMediaPurge(ctx context.Context, ref string) error
}

// TransitionObserver is told about every applied status change.
type TransitionObserver interface {
	ObserveTransition(from, to string)
}

// Input carries the editable fields of a post form.
type Input struct {
	Title   string        `form:"title" validate:"required,min=3,max=255"`
	Excerpt string        `form:"excerpt" validate:"max=500"`
	Content string        `form:"content" validate:"required,min=10"`
	Status  string        `form:"status" validate:"required"`
	Image   *media.Upload `form:"featured_image" validate:"-"`
}

// Deps groups Service collaborators.
type Deps struct {
	Repo        Repository
	Storage     media.Storage
	Purger      MediaPurger
	Authorizer  rbac.Authorizer
	Auditor     shared.Auditor
	Slugifier   Slugifier
	Transitions TransitionObserver
	Logger      *slog.Logger
	MaxUpload   int64
	Now         func() time.Time
}

// Service implements post authoring rules.
type Service struct {
	repo        Repository
	storage     media.Storage
	purger      MediaPurger
	authz       rbac.Authorizer
	audit       shared.Auditor
	slugs       Slugifier
	transitions TransitionObserver
	logger      *slog.Logger
	maxUpload   int64
	now         func() time.Time
	validate    *validator.Validate
}

// NewService constructs a Service.
func NewService(deps Deps) *Service {
	s := &Service{
		repo:        deps.Repo,
		storage:     deps.Storage,
		purger:      deps.Purger,
		authz:       deps.Authorizer,
		audit:       deps.Auditor,
		slugs:       deps.Slugifier,
		transitions: deps.Transitions,
		logger:      deps.Logger,
		maxUpload:   deps.MaxUpload,
		now:         deps.Now,
		validate:    shared.NewValidator(),
	}
	if s.audit == nil {
		s.audit = shared.NopAuditor{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// List returns a page of posts visible to p. Principals holding the author
// role only see their own posts.
func (s *Service) List(ctx context.Context, p *rbac.Principal, filter Filter, page shared.Page) ([]Post, int, error) {
	if p == nil {
		return nil, 0, shared.ErrForbidden
	}
	if p.HasRole(rbac.RoleAuthor) {
		filter.OwnerID = p.UserID
	}
	return s.repo.List(ctx, filter, page)
}

// ForEdit loads a post that p may edit.
func (s *Service) ForEdit(ctx context.Context, p *rbac.Principal, id int64) (*Post, error) {
	post, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorizeEdit(s.authz, p, post); err != nil {
		return nil, err
	}
	return post, nil
}

// Create stores a new post owned by p.
func (s *Service) Create(ctx context.Context, p *rbac.Principal, in Input) (*Post, shared.FlashMessage, error) {
	status, verr := s.validateInput(in, StatusDraft, StatusPublished)
	if verr != nil {
		return nil, shared.FlashMessage{}, verr
	}
	if err := authorizeCreate(s.authz, p, status); err != nil {
		return nil, shared.FlashMessage{}, err
	}

	ref, err := s.storeImage(ctx, in.Image)
	if err != nil {
		return nil, shared.FlashMessage{}, err
	}

	now := s.now()
	post := &Post{
		UserID:        p.UserID,
		Title:         strings.TrimSpace(in.Title),
		Excerpt:       strings.TrimSpace(in.Excerpt),
		Content:       in.Content,
		Status:        StatusDraft,
		FeaturedImage: ref,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	post.Slug = s.slugs.Make(post.Title)
	applyStatus(post, status, now)

	if err := s.repo.Save(ctx, post); err != nil {
		s.discard(ctx, ref)
		return nil, shared.FlashMessage{}, err
	}
	s.record(ctx, p, "post.created", post, map[string]any{"status": string(post.Status)})
	if status != StatusDraft {
		s.observe(StatusDraft, status)
	}
	return post, shared.Success("Post created successfully!"), nil
}

// Update edits post id on behalf of p. Unauthorized requests leave the post untouched.
func (s *Service) Update(ctx context.Context, p *rbac.Principal, id int64, in Input) (*Post, shared.FlashMessage, error) {
	post, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, shared.FlashMessage{}, err
	}
	if err := authorizeEdit(s.authz, p, post); err != nil {
		return nil, shared.FlashMessage{}, err
	}
	status, verr := s.validateInput(in, Statuses()...)
	if verr != nil {
		return nil, shared.FlashMessage{}, verr
	}
	if err := authorizeTransition(s.authz, p, post, status); err != nil {
		return nil, shared.FlashMessage{}, err
	}

	ref, err := s.storeImage(ctx, in.Image)
	if err != nil {
		return nil, shared.FlashMessage{}, err
	}

	previousStatus := post.Status
	previousImage := post.FeaturedImage
	now := s.now()
	post.Title = strings.TrimSpace(in.Title)
	post.Slug = s.slugs.Make(post.Title)
	post.Excerpt = strings.TrimSpace(in.Excerpt)
	post.Content = in.Content
	if ref != "" {
		post.FeaturedImage = ref
	}
	applyStatus(post, status, now)
	post.UpdatedAt = now

	if err := s.repo.Save(ctx, post); err != nil {
		s.discard(ctx, ref)
		return nil, shared.FlashMessage{}, err
	}
	if ref != "" && previousImage != "" && previousImage != ref {
		s.discard(ctx, previousImage)
	}

	meta := map[string]any{"status": string(post.Status)}
	if previousStatus != post.Status {
		meta["from"] = string(previousStatus)
		s.observe(previousStatus, post.Status)
	}
	s.record(ctx, p, "post.updated", post, meta)
	return post, shared.Success("Post updated successfully!"), nil
}

// Delete removes post id on behalf of p together with its featured image.
func (s *Service) Delete(ctx context.Context, p *rbac.Principal, id int64) (shared.FlashMessage, error) {
	post, err := s.repo.Get(ctx, id)
	if err != nil {
		return shared.FlashMessage{}, err
	}
	if err := s.authz.Authorize(p, rbac.ActionDeletePosts, post); err != nil {
		return shared.FlashMessage{}, err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return shared.FlashMessage{}, err
	}
	s.discard(ctx, post.FeaturedImage)
	s.record(ctx, p, "post.deleted", post, nil)
	return shared.Success("Post deleted successfully!"), nil
}

// ImageURL resolves a featured image reference.
func (s *Service) ImageURL(ref string) string {
	if s.storage == nil || ref == "" {
		return ""
	}
	return s.storage.URL(ref)
}

func (s *Service) validateInput(in Input, allowed ...Status) (Status, error) {
	verr := shared.ValidateStruct(s.validate, in)
	if verr == nil {
		verr = &shared.ValidationError{}
	}
	status, ok := ParseStatus(in.Status)
	if ok {
		ok = false
		for _, a := range allowed {
			if a == status {
				ok = true
				break
			}
		}
	}
	if !ok && in.Status != "" {
		verr.Add("status", "The selected status is invalid.")
	}
	if in.Image != nil {
		if err := media.Validate(*in.Image, s.uploadLimit()); err != nil {
			switch {
			case errors.Is(err, media.ErrTooLarge):
				verr.Add("featured_image", fmt.Sprintf("The featured image field must not be greater than %d kilobytes.", s.uploadLimit()/1024))
			default:
				verr.Add("featured_image", "The featured image field must be an image.")
			}
		}
	}
	if !verr.Empty() {
		return "", verr
	}
	return status, nil
}

func (s *Service) uploadLimit() int64 {
	if s.maxUpload <= 0 {
		return media.DefaultMaxBytes
	}
	return s.maxUpload
}

func (s *Service) storeImage(ctx context.Context, upload *media.Upload) (string, error) {
	if upload == nil {
		return "", nil
	}
	if s.storage == nil {
		return "", errors.New("posts: media storage not configured")
	}
	return s.storage.Store(ctx, *upload)
}

// discard removes a stored file, falling back to a queued purge on failure.
func (s *Service) discard(ctx context.Context, ref string) {
	if ref == "" || s.storage == nil {
		return
	}
	err := s.storage.Delete(ctx, ref)
	if err == nil {
		return
	}
	s.logger.Warn("delete featured image", slog.String("ref", ref), slog.Any("error", err))
	if s.purger == nil {
		return
	}
	if err := s.purger.EnqueueMediaPurge(ctx, ref); err != nil {
		s.logger.Error("enqueue media purge", slog.String("ref", ref), slog.Any("error", err))
	}
}

func (s *Service) record(ctx context.Context, p *rbac.Principal, action string, post *Post, meta map[string]any) {
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  p.UserID,
		Action:   action,
		Entity:   "post",
		EntityID: post.ID,
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("audit post", slog.String("action", action), slog.Any("error", err))
	}
}

func (s *Service) observe(from, to Status) {
	if s.transitions != nil {
		s.transitions.ObserveTransition(string(from), string(to))
	}
}
