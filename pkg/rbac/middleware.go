package rbac

import (
	"errors"
	"net/http"
	"strings"

	"github.com/platinummonkey/agora/pkg/httputil"
	"github.com/platinummonkey/agora/pkg/middleware"
	"github.com/platinummonkey/agora/pkg/observability"
	"github.com/platinummonkey/agora/pkg/permissions"
)

// DecisionRecorder receives the outcome of every permission check
type DecisionRecorder interface {
	RecordPermissionDecision(requirement string, allowed bool)
	RecordResolutionFailure()
}

type noopRecorder struct{}

func (noopRecorder) RecordPermissionDecision(string, bool) {}
func (noopRecorder) RecordResolutionFailure()              {}

// PermissionMiddleware enforces permission requirements on API routes.
// Permissions are resolved per request; nothing is shared across requests.
type PermissionMiddleware struct {
	resolver PermissionResolver
	recorder DecisionRecorder
}

// NewPermissionMiddleware creates a new permission middleware. recorder may be nil.
func NewPermissionMiddleware(resolver PermissionResolver, recorder DecisionRecorder) *PermissionMiddleware {
	if recorder == nil {
		recorder = noopRecorder{}
	}
	return &PermissionMiddleware{
		resolver: resolver,
		recorder: recorder,
	}
}

// Resolver returns the resolver checkers are built with
func (pm *PermissionMiddleware) Resolver() PermissionResolver {
	return pm.resolver
}

// Load resolves the authenticated user's permissions once and stores the
// checker in the request context. Anonymous requests pass through untouched.
func (pm *PermissionMiddleware) Load(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authCtx := middleware.GetAuthContext(r)
		if authCtx == nil || CheckerFromContext(r.Context()) != nil {
			next.ServeHTTP(w, r)
			return
		}

		checker := pm.newReadyChecker(r, authCtx.UserID())
		defer checker.Dispose()

		ctx := checkerKey.With(r.Context(), checker)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CheckerFor returns the request's checker, resolving one if Load did not run.
// It returns nil for anonymous requests.
func (pm *PermissionMiddleware) CheckerFor(r *http.Request) *Checker {
	if c := CheckerFromContext(r.Context()); c != nil {
		return c
	}
	authCtx := middleware.GetAuthContext(r)
	if authCtx == nil {
		return nil
	}
	return pm.newReadyChecker(r, authCtx.UserID())
}

// StartChecker returns a checker whose first refresh runs in the background.
// The caller owns the checker and must Dispose it. A refresh that ends
// because the request went away or the checker was disposed is not a failure.
func (pm *PermissionMiddleware) StartChecker(r *http.Request, userID int64) *Checker {
	ctx := r.Context()
	logger := observability.FromContext(ctx)
	checker := NewChecker(pm.resolver, userID)
	done := checker.RefreshAsync(ctx)
	observability.Go(logger, "permission refresh", func() {
		err := <-done
		if err == nil || errors.Is(err, ErrDisposed) || ctx.Err() != nil || checker.State() == StateDisposed {
			return
		}
		pm.resolutionFailed(logger, err)
	})
	return checker
}

func (pm *PermissionMiddleware) newReadyChecker(r *http.Request, userID int64) *Checker {
	checker := NewChecker(pm.resolver, userID)
	if err := checker.Refresh(r.Context()); err != nil {
		pm.resolutionFailed(observability.FromContext(r.Context()), err)
	}
	return checker
}

func (pm *PermissionMiddleware) resolutionFailed(logger *observability.Logger, err error) {
	logger.WithError(err).Error("Failed to resolve permissions")
	pm.recorder.RecordResolutionFailure()
}

// RequirePermission creates middleware that requires a specific permission
func (pm *PermissionMiddleware) RequirePermission(p permissions.Permission) func(http.Handler) http.Handler {
	return pm.require([]permissions.Permission{p}, false)
}

// RequireAnyPermission creates middleware that requires any of the specified permissions
func (pm *PermissionMiddleware) RequireAnyPermission(ps ...permissions.Permission) func(http.Handler) http.Handler {
	return pm.require(ps, false)
}

// RequireAllPermissions creates middleware that requires all of the specified permissions
func (pm *PermissionMiddleware) RequireAllPermissions(ps ...permissions.Permission) func(http.Handler) http.Handler {
	return pm.require(ps, true)
}

func (pm *PermissionMiddleware) require(ps []permissions.Permission, requireAll bool) func(http.Handler) http.Handler {
	label := requirementLabel(ps, requireAll)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			checker := pm.CheckerFor(r)
			if checker == nil {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}

			allowed := checker.Snapshot().Allows(ps, requireAll)
			pm.recorder.RecordPermissionDecision(label, allowed)
			if !allowed {
				httputil.WriteForbidden(w, "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func requirementLabel(ps []permissions.Permission, requireAll bool) string {
	parts := make([]string, len(ps))
	for i, p := range ps {
		parts[i] = string(p)
	}
	sep := "|"
	if requireAll {
		sep = "&"
	}
	return strings.Join(parts, sep)
}
