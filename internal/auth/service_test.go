package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/inkpress/inkpress/internal/shared"
)

type sessionRow struct {
	userID    int64
	expiresAt time.Time
	ip, ua    string
}

type memRepo struct {
	users    map[string]*User
	lookups  []string
	err      error
	sessions map[string]sessionRow
}

func (m *memRepo) FindByEmail(_ context.Context, email string) (*User, error) {
	m.lookups = append(m.lookups, email)
	if m.err != nil {
		return nil, m.err
	}
	u, ok := m.users[email]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return u, nil
}

func (m *memRepo) CreateSession(_ context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	if m.sessions == nil {
		m.sessions = map[string]sessionRow{}
	}
	m.sessions[id] = sessionRow{userID: userID, expiresAt: expiresAt, ip: ip, ua: ua}
	return nil
}

func (m *memRepo) DeleteSession(_ context.Context, id string) error {
	delete(m.sessions, id)
	return nil
}

func hashed(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func TestServiceAuthenticate(t *testing.T) {
	repo := &memRepo{users: map[string]*User{
		"ada@example.com":  {ID: 1, Email: "ada@example.com", PasswordHash: hashed(t, "correctpass"), IsActive: true},
		"gone@example.com": {ID: 2, Email: "gone@example.com", PasswordHash: hashed(t, "correctpass")},
	}}
	svc := NewService(repo)

	user, err := svc.Authenticate(context.Background(), "  ADA@example.com ", "correctpass")
	require.NoError(t, err)
	assert.Equal(t, int64(1), user.ID)
	assert.Equal(t, "ada@example.com", repo.lookups[0])

	_, err = svc.Authenticate(context.Background(), "ada@example.com", "wrongpass")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)

	_, err = svc.Authenticate(context.Background(), "gone@example.com", "correctpass")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)

	_, err = svc.Authenticate(context.Background(), "nobody@example.com", "correctpass")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestServiceAuthenticateSurfacesLookupFailures(t *testing.T) {
	svc := NewService(&memRepo{err: errors.New("connection refused")})

	_, err := svc.Authenticate(context.Background(), "ada@example.com", "correctpass")
	require.Error(t, err)
	assert.NotErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestServiceRecordLogin(t *testing.T) {
	repo := &memRepo{}
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := NewService(repo).WithClock(func() time.Time { return now })

	err := svc.RecordLogin(context.Background(), "sess-1", 7, time.Hour, Client{IP: " 10.0.0.1 ", UserAgent: strings.Repeat("x", 600)})
	require.NoError(t, err)
	row := repo.sessions["sess-1"]
	assert.Equal(t, int64(7), row.userID)
	assert.Equal(t, now.Add(time.Hour), row.expiresAt)
	assert.Equal(t, "10.0.0.1", row.ip)
	assert.Len(t, row.ua, maxUserAgent)

	require.NoError(t, svc.RecordLogout(context.Background(), "sess-1"))
	assert.Empty(t, repo.sessions)
}
