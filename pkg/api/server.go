package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/agora/pkg/audit"
	"github.com/platinummonkey/agora/pkg/auth"
	"github.com/platinummonkey/agora/pkg/config"
	"github.com/platinummonkey/agora/pkg/httputil"
	"github.com/platinummonkey/agora/pkg/middleware"
	"github.com/platinummonkey/agora/pkg/observability"
	"github.com/platinummonkey/agora/pkg/rbac"
	"github.com/platinummonkey/agora/pkg/session"
	"github.com/platinummonkey/agora/pkg/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Dependencies are the services the API is built on
type Dependencies struct {
	Logger   *observability.Logger
	Metrics  *observability.Metrics // optional
	Auth     *auth.Service
	Sessions *session.Manager
	Roles    *rbac.Store
	Storage  *storage.Registry
	Audit    audit.Logger // optional

	// SignInLimiter throttles sign-in attempts per client IP
	SignInLimiter middleware.Limiter

	// DefaultRole is assigned to accounts on approval. Empty disables it.
	DefaultRole string
}

// Server represents our HTTP server
type Server struct {
	cfg     config.ServerConfig
	deps    Dependencies
	router  *mux.Router
	pm      *rbac.PermissionMiddleware
	handler http.Handler

	authHandlers *AuthHandlers
	userHandlers *UserHandlers
	fileHandlers *FileHandlers
	roleHandlers *rbac.Handlers
	pages        *Pages
}

// NewServer creates a new server with all routes and middleware installed
func NewServer(cfg config.ServerConfig, deps Dependencies) (*Server, error) {
	if deps.Logger == nil {
		deps.Logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	if deps.Audit == nil {
		deps.Audit = audit.NewNoOpLogger()
	}
	if deps.SignInLimiter == nil {
		deps.SignInLimiter = middleware.NewRateLimiter(middleware.DefaultRateLimitConfig())
	}

	var recorder rbac.DecisionRecorder
	if deps.Metrics != nil {
		recorder = deps.Metrics
	}

	pages, err := NewPages(cfg.PageFallback)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:    cfg,
		deps:   deps,
		router: mux.NewRouter(),
		pm:     rbac.NewPermissionMiddleware(rbac.NewResolver(deps.Roles), recorder),
		pages:  pages,
	}
	s.authHandlers = NewAuthHandlers(deps.Auth, deps.Sessions, s.pm, deps.Metrics)
	s.userHandlers = NewUserHandlers(deps.Auth, deps.Roles, deps.DefaultRole)
	s.fileHandlers = NewFileHandlers(deps.Storage, cfg.MaxUploadBytes)
	s.roleHandlers = rbac.NewHandlers(deps.Roles, deps.Auth.Store())
	pages.authHandlers = s.authHandlers

	s.setupRoutes()
	s.handler = s.buildHandler()
	return s, nil
}

// setupRoutes configures all the routes
func (s *Server) setupRoutes() {
	if s.deps.Metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(s.deps.Metrics))
	}
	s.router.Use(audit.Middleware(s.deps.Audit))
	s.router.Use(middleware.NewSessionMiddleware(s.deps.Sessions, s.deps.Auth.Store()).Handler)

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(s.pm.Load)

	s.authHandlers.RegisterRoutes(api.PathPrefix("/auth").Subrouter(), s.deps.SignInLimiter)

	admin := api.PathPrefix("/admin").Subrouter()
	s.roleHandlers.RegisterRoutes(admin, s.pm)
	s.userHandlers.RegisterRoutes(admin, s.pm)

	s.fileHandlers.RegisterRoutes(api.PathPrefix("/files").Subrouter(), s.pm)

	api.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteNotFoundError(w, "not found")
	})

	s.pages.RegisterRoutes(s.router, s.pm, s.deps.SignInLimiter)
}

// buildHandler wraps the router with the middleware that must also run for
// unmatched routes
func (s *Server) buildHandler() http.Handler {
	chain := httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.LoggerMiddleware(s.deps.Logger),
		httputil.RecoveryMiddleware,
		httputil.LoggingMiddleware,
		middleware.SecurityHeaders(middleware.SecurityConfig{
			SSLRedirect: s.cfg.SSLRedirect,
			IsDev:       s.cfg.Development,
		}),
		httputil.CORSMiddleware(s.cfg.AllowedOrigins),
	)
	return otelhttp.NewHandler(chain(s.router), "agora",
		otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
			return "HTTP " + r.Method
		}),
	)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Router exposes the router for additional routes
func (s *Server) Router() *mux.Router {
	return s.router
}

// PermissionMiddleware returns the middleware guarding the API routes
func (s *Server) PermissionMiddleware() *rbac.PermissionMiddleware {
	return s.pm
}

// RouteRegistrar is an interface for types that can register routes
type RouteRegistrar interface {
	RegisterRoutes(router *mux.Router)
}

// RegisterRoutes registers routes from a RouteRegistrar
func (s *Server) RegisterRoutes(registrar RouteRegistrar) {
	registrar.RegisterRoutes(s.router)
}
