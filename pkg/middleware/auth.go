package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/platinummonkey/agora/pkg/auth"
	"github.com/platinummonkey/agora/pkg/contextkeys"
	"github.com/platinummonkey/agora/pkg/httputil"
	"github.com/platinummonkey/agora/pkg/observability"
	"github.com/platinummonkey/agora/pkg/session"
)

// UserLoader loads the account behind a session
type UserLoader interface {
	GetUser(ctx context.Context, id int64) (*auth.User, error)
}

// SessionMiddleware resolves the session cookie into an auth context.
// Requests without a usable session continue anonymously.
type SessionMiddleware struct {
	sessions *session.Manager
	users    UserLoader
}

// NewSessionMiddleware creates a new session middleware
func NewSessionMiddleware(sessions *session.Manager, users UserLoader) *SessionMiddleware {
	return &SessionMiddleware{
		sessions: sessions,
		users:    users,
	}
}

// Handler wraps an HTTP handler with session resolution
func (m *SessionMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := m.sessions.Resolve(r)
		if err != nil {
			log := observability.FromContext(r.Context()).WithError(err)
			switch {
			case errors.Is(err, session.ErrInvalidToken), errors.Is(err, session.ErrExpired), errors.Is(err, session.ErrRevoked):
				log.Debug("Discarding unusable session")
				m.sessions.ClearCookie(w)
			case errors.Is(err, session.ErrUnavailable):
				// the cookie is kept so the session resumes once the store recovers
				log.Warn("Session store unavailable, serving request anonymously")
			}
			next.ServeHTTP(w, r)
			return
		}

		user, err := m.users.GetUser(r.Context(), sess.UserID)
		if err != nil {
			if !errors.Is(err, auth.ErrUserNotFound) {
				observability.FromContext(r.Context()).WithError(err).Error("Failed to load session user")
			}
			next.ServeHTTP(w, r)
			return
		}
		if !user.CanSignIn() {
			m.sessions.ClearCookie(w)
			next.ServeHTTP(w, r)
			return
		}

		authCtx := &auth.AuthContext{
			User:      user,
			SessionID: sess.ID,
			ExpiresAt: sess.ExpiresAt,
		}
		ctx := auth.NewContext(r.Context(), authCtx)
		ctx = contextkeys.UserID.With(ctx, strconv.FormatInt(user.ID, 10))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetAuthContext extracts auth context from request
func GetAuthContext(r *http.Request) *auth.AuthContext {
	return AuthFromContext(r.Context())
}

// AuthFromContext extracts auth context from a context
func AuthFromContext(ctx context.Context) *auth.AuthContext {
	return auth.FromContext(ctx)
}

// RequireAuth rejects anonymous requests with 401
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetAuthContext(r) == nil {
			httputil.WriteUnauthorized(w, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
