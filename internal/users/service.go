package users

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/inkpress/inkpress/internal/rbac"
	"github.com/inkpress/inkpress/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	Get(ctx context.Context, id int64) (*User, error)
	List(ctx context.Context, filter Filter, page shared.Page) ([]User, int, error)
	EmailTaken(ctx context.Context, email string, exceptID int64) (bool, error)
	Create(ctx context.Context, user *User, roleIDs []int64) error
	Update(ctx context.Context, user *User, roleIDs []int64) error
	Delete(ctx context.Context, id int64) error
}

// RoleCatalog lists assignable roles.
type RoleCatalog interface {
	ListRoles(ctx context.Context) ([]rbac.Role, error)
}

// Service handles user business logic.
type Service struct {
	repo     RepositoryPort
	roles    RoleCatalog
	authz    rbac.Authorizer
	audit    shared.Auditor
	logger   *slog.Logger
	validate *validator.Validate
	hashCost int
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, roles RoleCatalog, authz rbac.Authorizer, audit shared.Auditor, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.NopAuditor{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		roles:    roles,
		authz:    authz,
		audit:    audit,
		logger:   logger,
		validate: shared.NewValidator(),
		hashCost: bcrypt.DefaultCost,
	}
}

// WithHashCost overrides the bcrypt cost, mainly for tests.
func (s *Service) WithHashCost(cost int) *Service {
	s.hashCost = cost
	return s
}

// List returns a page of users.
func (s *Service) List(ctx context.Context, actor *rbac.Principal, filter Filter, page shared.Page) ([]User, int, error) {
	if err := s.authz.Authorize(actor, rbac.ActionManageUsers, nil); err != nil {
		return nil, 0, err
	}
	return s.repo.List(ctx, filter, page)
}

// Get loads a single user for editing.
func (s *Service) Get(ctx context.Context, actor *rbac.Principal, id int64) (*User, error) {
	if err := s.authz.Authorize(actor, rbac.ActionManageUsers, nil); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}

// Roles returns the assignable roles.
func (s *Service) Roles(ctx context.Context) ([]rbac.Role, error) {
	return s.roles.ListRoles(ctx)
}

// Create registers a new account with the selected roles.
func (s *Service) Create(ctx context.Context, actor *rbac.Principal, in Input) (*User, shared.FlashMessage, error) {
	if err := s.authz.Authorize(actor, rbac.ActionManageUsers, nil); err != nil {
		return nil, shared.FlashMessage{}, err
	}
	in = normalize(in)
	verr, err := s.check(ctx, in, 0)
	if err != nil {
		return nil, shared.FlashMessage{}, err
	}
	if in.Password == "" {
		verr.Add("password", "The password field is required.")
	}
	roleIDs, err := s.resolveRoles(ctx, in.Roles, verr)
	if err != nil {
		return nil, shared.FlashMessage{}, err
	}
	if !verr.Empty() {
		return nil, shared.FlashMessage{}, verr
	}

	hash, err := s.hash(in.Password)
	if err != nil {
		return nil, shared.FlashMessage{}, err
	}
	user := &User{Name: in.Name, Email: in.Email, PasswordHash: hash, IsActive: true, Roles: in.Roles}
	if err := s.repo.Create(ctx, user, roleIDs); err != nil {
		return nil, shared.FlashMessage{}, err
	}
	s.record(ctx, actor, "user.created", user.ID, map[string]any{"roles": user.Roles})
	return user, shared.Success("User created successfully!"), nil
}

// Update edits an account and syncs its roles. A blank password keeps the
// current one.
func (s *Service) Update(ctx context.Context, actor *rbac.Principal, id int64, in Input) (*User, shared.FlashMessage, error) {
	if err := s.authz.Authorize(actor, rbac.ActionManageUsers, nil); err != nil {
		return nil, shared.FlashMessage{}, err
	}
	user, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, shared.FlashMessage{}, err
	}
	in = normalize(in)
	verr, err := s.check(ctx, in, user.ID)
	if err != nil {
		return nil, shared.FlashMessage{}, err
	}
	roleIDs, err := s.resolveRoles(ctx, in.Roles, verr)
	if err != nil {
		return nil, shared.FlashMessage{}, err
	}
	if !verr.Empty() {
		return nil, shared.FlashMessage{}, verr
	}

	user.Name = in.Name
	user.Email = in.Email
	user.Roles = in.Roles
	if in.Password != "" {
		hash, err := s.hash(in.Password)
		if err != nil {
			return nil, shared.FlashMessage{}, err
		}
		user.PasswordHash = hash
	}
	if err := s.repo.Update(ctx, user, roleIDs); err != nil {
		return nil, shared.FlashMessage{}, err
	}
	s.record(ctx, actor, "user.updated", user.ID, map[string]any{"roles": user.Roles})
	return user, shared.Success("User updated successfully!"), nil
}

// Delete removes an account. Managers cannot delete themselves; the returned
// flash carries the refusal.
func (s *Service) Delete(ctx context.Context, actor *rbac.Principal, id int64) (shared.FlashMessage, error) {
	if err := s.authz.Authorize(actor, rbac.ActionManageUsers, nil); err != nil {
		return shared.FlashMessage{}, err
	}
	if actor.UserID == id {
		return shared.Failure(shared.UserSafeMessage(shared.ErrSelfDeletion)), shared.ErrSelfDeletion
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return shared.FlashMessage{}, err
	}
	s.record(ctx, actor, "user.deleted", id, nil)
	return shared.Success("User deleted successfully!"), nil
}

func normalize(in Input) Input {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	var roles []string
	seen := make(map[string]struct{}, len(in.Roles))
	for _, r := range in.Roles {
		r = strings.TrimSpace(r)
		if _, dup := seen[r]; r == "" || dup {
			continue
		}
		seen[r] = struct{}{}
		roles = append(roles, r)
	}
	in.Roles = roles
	return in
}

// check runs field rules and the unique email rule. The returned
// ValidationError is never nil; err reports a failed uniqueness lookup.
func (s *Service) check(ctx context.Context, in Input, exceptID int64) (*shared.ValidationError, error) {
	verr := shared.ValidateStruct(s.validate, in)
	if verr == nil {
		verr = &shared.ValidationError{}
	}
	if _, bad := verr.Fields["email"]; !bad && in.Email != "" {
		taken, err := s.repo.EmailTaken(ctx, in.Email, exceptID)
		if err != nil {
			return nil, err
		}
		if taken {
			verr.Add("email", "The email has already been taken.")
		}
	}
	return verr, nil
}

func (s *Service) resolveRoles(ctx context.Context, names []string, verr *shared.ValidationError) ([]int64, error) {
	if len(names) == 0 {
		return nil, nil
	}
	known, err := s.roles.ListRoles(ctx)
	if err != nil {
		return nil, fmt.Errorf("users: list roles: %w", err)
	}
	byName := make(map[string]int64, len(known))
	for _, r := range known {
		byName[r.Name] = r.ID
	}
	ids := make([]int64, 0, len(names))
	for _, name := range names {
		id, ok := byName[name]
		if !ok {
			verr.Add("roles", "The selected roles is invalid.")
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *Service) hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return "", fmt.Errorf("users: hash password: %w", err)
	}
	return string(hash), nil
}

func (s *Service) record(ctx context.Context, actor *rbac.Principal, action string, id int64, meta map[string]any) {
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.UserID,
		Action:   action,
		Entity:   "user",
		EntityID: id,
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("audit user", slog.String("action", action), slog.Any("error", err))
	}
}
