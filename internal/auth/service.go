package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/inkpress/inkpress/internal/shared"
)

// maxUserAgent bounds the stored user agent.
const maxUserAgent = 512

// Client describes where a login came from.
type Client struct {
	IP        string
	UserAgent string
}

// Service checks credentials and keeps the login audit rows in sync with
// Redis sessions.
type Service struct {
	repo Repository
	now  func() time.Time

	padOnce sync.Once
	padHash []byte
}

// NewService constructs a new Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// WithClock overrides the clock used for session expiry.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Authenticate resolves email/password credentials to an active user.
// Unknown emails, wrong passwords and inactive accounts all yield
// shared.ErrInvalidCredentials; lookup failures are returned as is.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.repo.FindByEmail(ctx, email)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		// Unknown accounts still pay for one bcrypt comparison.
		_ = bcrypt.CompareHashAndPassword(s.timingPad(), []byte(password))
		return nil, shared.ErrInvalidCredentials
	case err != nil:
		return nil, fmt.Errorf("auth: authenticate: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

func (s *Service) timingPad() []byte {
	s.padOnce.Do(func() {
		s.padHash, _ = bcrypt.GenerateFromPassword([]byte("inkpress"), bcrypt.DefaultCost)
	})
	return s.padHash
}

// RecordLogin stores the audit row for a session bound to userID. The row
// expires together with the Redis session after ttl.
func (s *Service) RecordLogin(ctx context.Context, sessionID string, userID int64, ttl time.Duration, client Client) error {
	ua := client.UserAgent
	if len(ua) > maxUserAgent {
		ua = ua[:maxUserAgent]
	}
	return s.repo.CreateSession(ctx, sessionID, userID, s.now().Add(ttl), strings.TrimSpace(client.IP), ua)
}

// RecordLogout deletes the audit row of a session.
func (s *Service) RecordLogout(ctx context.Context, sessionID string) error {
	return s.repo.DeleteSession(ctx, sessionID)
}
