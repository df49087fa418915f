package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/agora/pkg/audit"
	"github.com/platinummonkey/agora/pkg/auth"
	"github.com/platinummonkey/agora/pkg/httputil"
	"github.com/platinummonkey/agora/pkg/middleware"
	"github.com/platinummonkey/agora/pkg/observability"
	"github.com/platinummonkey/agora/pkg/permissions"
	"github.com/platinummonkey/agora/pkg/rbac"
	"github.com/platinummonkey/agora/pkg/session"
)

// SignInRecorder counts sign-in outcomes
type SignInRecorder interface {
	RecordSignIn(result string)
}

type noopSignInRecorder struct{}

func (noopSignInRecorder) RecordSignIn(string) {}

// AuthHandlers handles registration, sign-in and session introspection
type AuthHandlers struct {
	auth     *auth.Service
	sessions *session.Manager
	pm       *rbac.PermissionMiddleware
	metrics  SignInRecorder
}

// NewAuthHandlers creates a new auth handlers instance. metrics may be nil.
func NewAuthHandlers(svc *auth.Service, sessions *session.Manager, pm *rbac.PermissionMiddleware, metrics *observability.Metrics) *AuthHandlers {
	h := &AuthHandlers{
		auth:     svc,
		sessions: sessions,
		pm:       pm,
		metrics:  noopSignInRecorder{},
	}
	if metrics != nil {
		h.metrics = metrics
	}
	return h
}

// RegisterRoutes registers authentication routes on a router mounted at /api/auth
func (h *AuthHandlers) RegisterRoutes(router *mux.Router, limiter middleware.Limiter) {
	router.HandleFunc("/register", h.register).Methods(http.MethodPost)
	router.Handle("/signin", limiter.Handler(http.HandlerFunc(h.signIn))).Methods(http.MethodPost)
	router.HandleFunc("/signout", h.signOut).Methods(http.MethodPost)
	router.Handle("/me", middleware.RequireAuth(http.HandlerFunc(h.me))).Methods(http.MethodGet)
	router.HandleFunc("/debug", h.debug).Methods(http.MethodGet)
}

// SignInRequest is the body of POST /api/auth/signin
type SignInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// DebugResponse describes the caller's identity and effective permissions
type DebugResponse struct {
	Authenticated    bool     `json:"authenticated"`
	UserID           *int64   `json:"userId,omitempty"`
	Roles            []string `json:"roles"`
	Permissions      []string `json:"permissions"`
	HasAdminAccess   bool     `json:"hasAdminAccess"`
	ResolutionFailed bool     `json:"resolutionFailed,omitempty"`
}

// register handles POST /api/auth/register
func (h *AuthHandlers) register(w http.ResponseWriter, r *http.Request) {
	var in auth.RegisterInput
	if !httputil.ParseAndValidate(w, r, &in) {
		return
	}

	user, err := h.auth.Register(r.Context(), in)
	if errors.Is(err, auth.ErrEmailTaken) {
		httputil.WriteConflict(w, "email already registered")
		return
	}
	if err != nil {
		httputil.WriteInternalError(w, r, err, "Failed to register user")
		return
	}

	audit.Record(r, audit.EventTypeAuthRegister, audit.EventStatusSuccess,
		audit.ResourceTypeUser, strconv.FormatInt(user.ID, 10), "account registered, awaiting approval")

	httputil.WriteCreated(w, map[string]interface{}{
		"success": true,
		"user":    user,
		"message": "account created and awaiting approval",
	})
}

// signIn handles POST /api/auth/signin
func (h *AuthHandlers) signIn(w http.ResponseWriter, r *http.Request) {
	var req SignInRequest
	if !httputil.ParseAndValidate(w, r, &req) {
		return
	}

	user, status, msg := h.startSession(w, r, req.Email, req.Password)
	if user == nil {
		httputil.WriteErrorMessage(w, status, msg)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{
		"success": true,
		"user":    user,
	})
}

// startSession checks credentials and sets the session cookie. On failure it
// returns a nil user with the status and message to report.
func (h *AuthHandlers) startSession(w http.ResponseWriter, r *http.Request, email, password string) (*auth.User, int, string) {
	log := observability.FromContext(r.Context())

	user, err := h.auth.Authenticate(r.Context(), email, password)
	if err != nil {
		var (
			status int
			msg    string
			result string
		)
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			status, msg, result = http.StatusUnauthorized, "invalid email or password", "invalid"
		case errors.Is(err, auth.ErrUserNotApproved):
			status, msg, result = http.StatusForbidden, "account is awaiting approval", "not_approved"
		case errors.Is(err, auth.ErrUserInactive):
			status, msg, result = http.StatusForbidden, "account is disabled", "inactive"
		default:
			log.WithError(err).Error("Failed to authenticate user")
			h.metrics.RecordSignIn("error")
			return nil, http.StatusInternalServerError, "internal error"
		}
		h.metrics.RecordSignIn(result)

		event := audit.NewEvent(r, audit.EventTypeAuthLoginFailed, audit.EventStatusFailure)
		event.ResourceType = audit.ResourceTypeSession
		event.Username = email
		event.Message = msg
		audit.Emit(r.Context(), event)
		return nil, status, msg
	}

	token, sess, err := h.sessions.Issue(user.ID)
	if err != nil {
		log.WithError(err).Error("Failed to issue session")
		h.metrics.RecordSignIn("error")
		return nil, http.StatusInternalServerError, "internal error"
	}
	h.sessions.SetCookie(w, token, sess)
	h.metrics.RecordSignIn("success")

	event := audit.NewEvent(r, audit.EventTypeAuthLogin, audit.EventStatusSuccess)
	event.UserID = &user.ID
	event.Username = user.Email
	event.ResourceType = audit.ResourceTypeSession
	event.ResourceID = sess.ID
	event.Message = "signed in"
	audit.Emit(r.Context(), event)

	return user, http.StatusOK, ""
}

// signOut handles POST /api/auth/signout
func (h *AuthHandlers) signOut(w http.ResponseWriter, r *http.Request) {
	if err := h.endSession(w, r); err != nil {
		httputil.WriteInternalError(w, r, err, "Failed to revoke session")
		return
	}
	httputil.WriteOK(w)
}

// endSession clears the cookie and revokes the token when the request
// carried a valid one
func (h *AuthHandlers) endSession(w http.ResponseWriter, r *http.Request) error {
	h.sessions.ClearCookie(w)

	authCtx := middleware.GetAuthContext(r)
	if authCtx == nil {
		return nil
	}

	sess := &session.Session{
		ID:        authCtx.SessionID,
		UserID:    authCtx.UserID(),
		ExpiresAt: authCtx.ExpiresAt,
	}
	if err := h.sessions.Revoke(r.Context(), sess); err != nil {
		return err
	}

	audit.Record(r, audit.EventTypeAuthLogout, audit.EventStatusSuccess,
		audit.ResourceTypeSession, authCtx.SessionID, "signed out")
	return nil
}

// me handles GET /api/auth/me
func (h *AuthHandlers) me(w http.ResponseWriter, r *http.Request) {
	authCtx := middleware.GetAuthContext(r)
	httputil.WriteSuccess(w, map[string]interface{}{
		"user":       authCtx.User,
		"expires_at": authCtx.ExpiresAt,
	})
}

// debug handles GET /api/auth/debug
func (h *AuthHandlers) debug(w http.ResponseWriter, r *http.Request) {
	resp := DebugResponse{
		Roles:       []string{},
		Permissions: []string{},
	}

	checker := h.pm.CheckerFor(r)
	if checker == nil {
		httputil.WriteSuccess(w, resp)
		return
	}

	userID := checker.UserID()
	snap := checker.Snapshot()
	resp.Authenticated = true
	resp.UserID = &userID
	if snap.Roles != nil {
		resp.Roles = snap.Roles
	}
	resp.Permissions = snap.Permissions.Strings()
	resp.HasAdminAccess = snap.Allows([]permissions.Permission{permissions.AdminAccess}, false)
	resp.ResolutionFailed = snap.Err != nil

	httputil.WriteSuccess(w, resp)
}
