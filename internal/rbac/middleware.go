package rbac

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/inkpress/inkpress/internal/shared"
)

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in context.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal stored by Authenticate.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalContextKey{}).(*Principal)
	return p
}

// PrincipalLoader resolves a session user id to a principal.
type PrincipalLoader interface {
	LoadPrincipal(ctx context.Context, userID int64) (*Principal, error)
}

// Middleware wires RBAC authorization helpers for HTTP handlers.
type Middleware struct {
	Loader     PrincipalLoader
	Authorizer Authorizer
	Logger     *slog.Logger
	LoginPath  string
}

// Authenticate loads the principal for the session user on every request and
// redirects anonymous visitors to the login page.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		userID, ok := sess.UserID()
		if !ok {
			http.Redirect(w, r, m.loginPath(), http.StatusSeeOther)
			return
		}
		principal, err := m.Loader.LoadPrincipal(r.Context(), userID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				http.Redirect(w, r, m.loginPath(), http.StatusSeeOther)
				return
			}
			m.logError("rbac load principal", err)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), principal)))
	})
}

// Require ensures the current principal may perform a global action.
func (m Middleware) Require(action Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m.Authorizer.Can(PrincipalFromContext(r.Context()), action, nil) {
				next.ServeHTTP(w, r)
				return
			}
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		})
	}
}

func (m Middleware) loginPath() string {
	if m.LoginPath != "" {
		return m.LoginPath
	}
	return "/auth/login"
}

func (m Middleware) logError(msg string, err error) {
	if m.Logger != nil {
		m.Logger.Error(msg, slog.Any("error", err))
	}
}
