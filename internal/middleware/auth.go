// Package middleware provides HTTP middleware for the API server.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/aisaas/backend/infra/clerk"
	"github.com/aisaas/backend/internal/errors"
	"github.com/aisaas/backend/internal/httputil"
	"github.com/aisaas/backend/internal/logging"
	"github.com/aisaas/backend/internal/usage"
)

type contextKey string

const (
	sessionKey contextKey = "session"
	accountKey contextKey = "account"
)

// SessionVerifier validates a bearer session token.
type SessionVerifier interface {
	Verify(token string) (clerk.Session, error)
}

// AuthMiddleware requires a valid session on every request it wraps.
type AuthMiddleware struct {
	verifier SessionVerifier
	logger   *logging.Logger
}

// NewAuthMiddleware creates a new authentication middleware.
func NewAuthMiddleware(verifier SessionVerifier, logger *logging.Logger) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier, logger: logger}
}

// Handler returns the middleware handler.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			m.respondError(w, r, errors.Unauthorized(""))
			return
		}

		session, err := m.verifier.Verify(token)
		if err != nil {
			m.respondError(w, r, errors.InvalidToken(err))
			return
		}

		ctx := logging.WithUserID(r.Context(), session.UserID)
		ctx = WithSession(ctx, session)

		m.logger.WithContext(ctx).WithField("plan", session.Plan).Debug("Authentication successful")
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) respondError(w http.ResponseWriter, r *http.Request, err *errors.ServiceError) {
	m.logger.LogSecurityEvent(r.Context(), "authentication_failed", map[string]interface{}{
		"path":   r.URL.Path,
		"method": r.Method,
		"reason": err.Error(),
	})
	httputil.WriteError(w, r, err)
}

func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// UsageLoader resolves the plan and usage of a session.
type UsageLoader interface {
	Load(ctx context.Context, session clerk.Session) (usage.Account, error)
}

// UsageMiddleware loads the caller's account after authentication.
type UsageMiddleware struct {
	loader UsageLoader
	logger *logging.Logger
}

// NewUsageMiddleware creates a middleware that attaches a usage.Account to
// the request context.
func NewUsageMiddleware(loader UsageLoader, logger *logging.Logger) *UsageMiddleware {
	return &UsageMiddleware{loader: loader, logger: logger}
}

// Handler returns the middleware handler.
func (m *UsageMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, ok := SessionFrom(r.Context())
		if !ok {
			httputil.WriteError(w, r, errors.Unauthorized(""))
			return
		}

		acct, err := m.loader.Load(r.Context(), session)
		if err != nil {
			m.logger.WithContext(r.Context()).WithError(err).Error("Failed to load usage")
			httputil.WriteError(w, r, errors.Internal("Could not load your plan details. Please try again.", err))
			return
		}

		next.ServeHTTP(w, r.WithContext(WithAccount(r.Context(), acct)))
	})
}

// WithSession stores a verified session in ctx.
func WithSession(ctx context.Context, s clerk.Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// SessionFrom returns the verified session, if any.
func SessionFrom(ctx context.Context) (clerk.Session, bool) {
	s, ok := ctx.Value(sessionKey).(clerk.Session)
	return s, ok
}

// WithAccount stores the caller's account in ctx.
func WithAccount(ctx context.Context, a usage.Account) context.Context {
	return context.WithValue(ctx, accountKey, a)
}

// AccountFrom returns the caller's account, if loaded.
func AccountFrom(ctx context.Context) (usage.Account, bool) {
	a, ok := ctx.Value(accountKey).(usage.Account)
	return a, ok
}

// GetUserID extracts the authenticated user ID from context.
func GetUserID(ctx context.Context) string {
	return logging.GetUserID(ctx)
}
