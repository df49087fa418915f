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
)

const maxUserPageSize = 200

// UserHandlers handles account review and activation
type UserHandlers struct {
	auth        *auth.Service
	roles       *rbac.Store
	defaultRole string
}

// NewUserHandlers creates user admin handlers. Approved accounts receive
// defaultRole unless it is empty.
func NewUserHandlers(svc *auth.Service, roles *rbac.Store, defaultRole string) *UserHandlers {
	return &UserHandlers{
		auth:        svc,
		roles:       roles,
		defaultRole: defaultRole,
	}
}

// RegisterRoutes registers the user admin routes on a router mounted at /api/admin
func (h *UserHandlers) RegisterRoutes(router *mux.Router, pm *rbac.PermissionMiddleware) {
	adminOnly := pm.RequirePermission(permissions.AdminAccess)
	anyUserAdmin := pm.RequireAnyPermission(permissions.ApproveUsers, permissions.ManageUsers)
	approve := pm.RequireAllPermissions(permissions.AdminAccess, permissions.ApproveUsers)
	manage := pm.RequireAllPermissions(permissions.AdminAccess, permissions.ManageUsers)

	router.Handle("/users", adminOnly(anyUserAdmin(http.HandlerFunc(h.listUsers)))).Methods(http.MethodGet)
	router.Handle("/users/{id}", adminOnly(anyUserAdmin(http.HandlerFunc(h.getUser)))).Methods(http.MethodGet)
	router.Handle("/users/{id}/approve", approve(http.HandlerFunc(h.approveUser))).Methods(http.MethodPost)
	router.Handle("/users/{id}/reject", approve(http.HandlerFunc(h.rejectUser))).Methods(http.MethodPost)
	router.Handle("/users/{id}/active", manage(http.HandlerFunc(h.setActive))).Methods(http.MethodPut)
}

// SetActiveRequest is the body of PUT /api/admin/users/{id}/active
type SetActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}

// listUsers handles GET /api/admin/users
func (h *UserHandlers) listUsers(w http.ResponseWriter, r *http.Request) {
	filter := auth.ListFilter{
		Status: auth.Status(r.URL.Query().Get("status")),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		httputil.WriteBadRequest(w, "status must be pending, approved or rejected")
		return
	}

	page, err := httputil.ParsePage(r, 50, maxUserPageSize)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	filter.Limit = page.Limit
	filter.Offset = page.Offset

	users, err := h.auth.Store().ListUsers(r.Context(), filter)
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, users)
}

// getUser handles GET /api/admin/users/{id}
func (h *UserHandlers) getUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.PathID(w, r, "id")
	if !ok {
		return
	}

	user, err := h.auth.Store().GetUser(r.Context(), userID)
	if err != nil {
		h.writeUserError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, user)
}

// approveUser handles POST /api/admin/users/{id}/approve
func (h *UserHandlers) approveUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.PathID(w, r, "id")
	if !ok {
		return
	}

	before, err := h.auth.Store().GetUser(r.Context(), userID)
	if err != nil {
		h.writeUserError(w, r, err)
		return
	}
	user, err := h.auth.Approve(r.Context(), userID, middleware.GetAuthContext(r).UserID())
	if err != nil {
		h.writeUserError(w, r, err)
		return
	}

	if h.defaultRole != "" {
		if err := rbac.EnsureAssignment(r.Context(), h.roles, user.ID, h.defaultRole); err != nil {
			// the account stays approved; an admin can assign roles by hand
			observability.FromContext(r.Context()).WithError(err).
				WithField("role", h.defaultRole).
				Error("Failed to assign default role")
		}
	}

	h.recordReview(r, audit.EventTypeAdminUserApprove, before, user, "account approved")
	httputil.WriteSuccess(w, user)
}

// rejectUser handles POST /api/admin/users/{id}/reject
func (h *UserHandlers) rejectUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.PathID(w, r, "id")
	if !ok {
		return
	}

	before, err := h.auth.Store().GetUser(r.Context(), userID)
	if err != nil {
		h.writeUserError(w, r, err)
		return
	}
	user, err := h.auth.Reject(r.Context(), userID, middleware.GetAuthContext(r).UserID())
	if err != nil {
		h.writeUserError(w, r, err)
		return
	}

	h.recordReview(r, audit.EventTypeAdminUserReject, before, user, "account rejected")
	httputil.WriteSuccess(w, user)
}

// setActive handles PUT /api/admin/users/{id}/active
func (h *UserHandlers) setActive(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.PathID(w, r, "id")
	if !ok {
		return
	}
	var req SetActiveRequest
	if !httputil.ParseAndValidate(w, r, &req) {
		return
	}
	if !*req.Active && userID == middleware.GetAuthContext(r).UserID() {
		httputil.WriteBadRequest(w, "cannot deactivate your own account")
		return
	}

	before, err := h.auth.Store().GetUser(r.Context(), userID)
	if err != nil {
		h.writeUserError(w, r, err)
		return
	}
	user, err := h.auth.SetActive(r.Context(), userID, *req.Active)
	if err != nil {
		h.writeUserError(w, r, err)
		return
	}

	eventType, msg := audit.EventTypeAdminUserActivate, "account activated"
	if !user.IsActive {
		eventType, msg = audit.EventTypeAdminUserDeactivate, "account deactivated"
	}
	h.recordReview(r, eventType, before, user, msg)
	httputil.WriteSuccess(w, user)
}

func (h *UserHandlers) recordReview(r *http.Request, eventType audit.EventType, before, after *auth.User, msg string) {
	event := audit.NewEvent(r, eventType, audit.EventStatusSuccess)
	event.ResourceType = audit.ResourceTypeUser
	event.ResourceID = strconv.FormatInt(after.ID, 10)
	event.Message = msg
	event.Changes = &audit.ChangeDetails{
		Before: userSnapshot(before),
		After:  userSnapshot(after),
	}
	audit.Emit(r.Context(), event)
}

func (h *UserHandlers) writeUserError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrUserNotFound):
		httputil.WriteNotFoundError(w, "user not found")
	case errors.Is(err, auth.ErrInvalidStatus):
		httputil.WriteConflict(w, "approved accounts cannot be rejected; deactivate them instead")
	default:
		h.internalError(w, r, err)
	}
}

func (h *UserHandlers) internalError(w http.ResponseWriter, r *http.Request, err error) {
	httputil.WriteInternalError(w, r, err, "User admin request failed")
}

func userSnapshot(u *auth.User) map[string]interface{} {
	return map[string]interface{}{
		"status":    u.Status,
		"is_active": u.IsActive,
	}
}
