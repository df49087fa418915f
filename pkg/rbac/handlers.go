package rbac

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/platinummonkey/agora/pkg/audit"
	"github.com/platinummonkey/agora/pkg/auth"
	"github.com/platinummonkey/agora/pkg/httputil"
	"github.com/platinummonkey/agora/pkg/middleware"
	"github.com/platinummonkey/agora/pkg/observability"
	"github.com/platinummonkey/agora/pkg/permissions"
)

// UserLookup checks that assignment targets exist
type UserLookup interface {
	GetUser(ctx context.Context, id int64) (*auth.User, error)
}

// Handlers provides HTTP handlers for role and assignment administration
type Handlers struct {
	store    *Store
	resolver *Resolver
	users    UserLookup
	validate *validator.Validate
}

// NewHandlers creates new RBAC handlers
func NewHandlers(store *Store, users UserLookup) *Handlers {
	return &Handlers{
		store:    store,
		resolver: NewResolver(store),
		users:    users,
		validate: validator.New(),
	}
}

// RegisterRoutes registers the admin routes on router, which is expected to be
// mounted under /api/admin
func (h *Handlers) RegisterRoutes(router *mux.Router, pm *PermissionMiddleware) {
	adminOnly := pm.RequirePermission(permissions.AdminAccess)
	manageRoles := pm.RequireAllPermissions(permissions.AdminAccess, permissions.ManageRoles)

	router.Handle("/permissions", adminOnly(http.HandlerFunc(h.ListPermissions))).Methods(http.MethodGet)

	router.Handle("/roles", manageRoles(http.HandlerFunc(h.ListRoles))).Methods(http.MethodGet)
	router.Handle("/roles", manageRoles(http.HandlerFunc(h.CreateRole))).Methods(http.MethodPost)
	router.Handle("/roles/{id}", manageRoles(http.HandlerFunc(h.GetRole))).Methods(http.MethodGet)
	router.Handle("/roles/{id}", manageRoles(http.HandlerFunc(h.UpdateRole))).Methods(http.MethodPut)
	router.Handle("/roles/{id}", manageRoles(http.HandlerFunc(h.DeleteRole))).Methods(http.MethodDelete)

	router.Handle("/users/{id}/roles", manageRoles(http.HandlerFunc(h.GetUserRoles))).Methods(http.MethodGet)
	router.Handle("/users/{id}/roles", manageRoles(http.HandlerFunc(h.AssignRole))).Methods(http.MethodPost)
	router.Handle("/users/{id}/roles/{role_id}", manageRoles(http.HandlerFunc(h.RevokeRole))).Methods(http.MethodDelete)
	router.Handle("/users/{id}/permissions", manageRoles(http.HandlerFunc(h.GetUserPermissions))).Methods(http.MethodGet)
}

// PermissionInfo describes one registry entry
type PermissionInfo struct {
	Name      string                `json:"name"`
	Namespace permissions.Namespace `json:"namespace"`
}

// RoleRequest is the body of role create and update requests
type RoleRequest struct {
	Name        string   `json:"name" validate:"required,min=2,max=100"`
	DisplayName string   `json:"display_name" validate:"max=200"`
	Description string   `json:"description" validate:"max=1000"`
	Permissions []string `json:"permissions"`
}

// AssignRoleRequest is the body of a role assignment request
type AssignRoleRequest struct {
	RoleID int64 `json:"role_id" validate:"required,gt=0"`
}

// ListPermissions returns the permission registry grouped by namespace
func (h *Handlers) ListPermissions(w http.ResponseWriter, r *http.Request) {
	out := map[permissions.Namespace][]PermissionInfo{}
	for _, ns := range []permissions.Namespace{permissions.NamespaceGeneral, permissions.NamespaceAdmin} {
		infos := []PermissionInfo{}
		for _, p := range permissions.InNamespace(ns) {
			infos = append(infos, PermissionInfo{Name: string(p), Namespace: ns})
		}
		out[ns] = infos
	}
	httputil.WriteSuccess(w, out)
}

// ListRoles lists all roles
func (h *Handlers) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.store.ListRoles(r.Context())
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, roles)
}

// GetRole retrieves a specific role
func (h *Handlers) GetRole(w http.ResponseWriter, r *http.Request) {
	roleID, ok := httputil.PathID(w, r, "id")
	if !ok {
		return
	}

	role, err := h.store.GetRole(r.Context(), roleID)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, role)
}

// CreateRole creates a new custom role
func (h *Handlers) CreateRole(w http.ResponseWriter, r *http.Request) {
	var req RoleRequest
	if !httputil.ReadJSON(w, r, &req) {
		return
	}
	perms, ok := h.validateRole(w, &req)
	if !ok {
		return
	}

	role := &Role{
		Name:        req.Name,
		DisplayName: req.DisplayName,
		Description: req.Description,
		Permissions: perms,
	}
	if authCtx := middleware.GetAuthContext(r); authCtx != nil {
		id := authCtx.UserID()
		role.CreatedBy = &id
	}

	if err := h.store.CreateRole(r.Context(), role); err != nil {
		h.writeStoreError(w, r, err)
		return
	}

	event := audit.NewEvent(r, audit.EventTypeAuthzRoleCreate, audit.EventStatusSuccess)
	event.ResourceType = audit.ResourceTypeRole
	event.ResourceID = strconv.FormatInt(role.ID, 10)
	event.Message = "role created"
	event.Changes = &audit.ChangeDetails{After: roleSnapshot(role)}
	audit.Emit(r.Context(), event)

	httputil.WriteCreated(w, role)
}

// UpdateRole updates an existing role. Built-in roles may be edited but not renamed.
func (h *Handlers) UpdateRole(w http.ResponseWriter, r *http.Request) {
	roleID, ok := httputil.PathID(w, r, "id")
	if !ok {
		return
	}

	var req RoleRequest
	if !httputil.ReadJSON(w, r, &req) {
		return
	}
	perms, ok := h.validateRole(w, &req)
	if !ok {
		return
	}

	existing, err := h.store.GetRole(r.Context(), roleID)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	if existing.IsBuiltIn && req.Name != existing.Name {
		httputil.WriteBadRequest(w, "built-in roles cannot be renamed")
		return
	}
	before := roleSnapshot(existing)

	updated := *existing
	updated.Name = req.Name
	updated.DisplayName = req.DisplayName
	updated.Description = req.Description
	updated.Permissions = perms
	if err := h.store.UpdateRole(r.Context(), &updated); err != nil {
		h.writeStoreError(w, r, err)
		return
	}

	event := audit.NewEvent(r, audit.EventTypeAuthzRoleUpdate, audit.EventStatusSuccess)
	event.ResourceType = audit.ResourceTypeRole
	event.ResourceID = strconv.FormatInt(roleID, 10)
	event.Message = "role updated"
	event.Changes = &audit.ChangeDetails{Before: before, After: roleSnapshot(&updated)}
	audit.Emit(r.Context(), event)

	role, err := h.store.GetRole(r.Context(), roleID)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, role)
}

// DeleteRole deletes a custom role and its assignments
func (h *Handlers) DeleteRole(w http.ResponseWriter, r *http.Request) {
	roleID, ok := httputil.PathID(w, r, "id")
	if !ok {
		return
	}

	role, err := h.store.GetRole(r.Context(), roleID)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	if role.IsBuiltIn {
		httputil.WriteBadRequest(w, ErrBuiltInRole.Error())
		return
	}

	if err := h.store.DeleteRole(r.Context(), roleID); err != nil {
		h.writeStoreError(w, r, err)
		return
	}

	audit.Record(r, audit.EventTypeAuthzRoleDelete, audit.EventStatusSuccess,
		audit.ResourceTypeRole, strconv.FormatInt(roleID, 10), fmt.Sprintf("role %s deleted", role.Name))
	httputil.WriteNoContent(w)
}

// GetUserRoles lists a user's role assignments
func (h *Handlers) GetUserRoles(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userFromPath(w, r)
	if !ok {
		return
	}

	assignments, err := h.store.ListAssignments(r.Context(), userID)
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, assignments)
}

// AssignRole assigns a role to a user
func (h *Handlers) AssignRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userFromPath(w, r)
	if !ok {
		return
	}

	var req AssignRoleRequest
	if !httputil.ReadJSON(w, r, &req) {
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httputil.WriteValidationError(w, "role_id is required")
		return
	}

	assignment := &UserRole{UserID: userID, RoleID: req.RoleID}
	if authCtx := middleware.GetAuthContext(r); authCtx != nil {
		id := authCtx.UserID()
		assignment.GrantedBy = &id
	}

	if err := h.store.AssignRole(r.Context(), assignment); err != nil {
		h.writeStoreError(w, r, err)
		return
	}

	event := audit.NewEvent(r, audit.EventTypeAuthzRoleAssign, audit.EventStatusSuccess)
	event.ResourceType = audit.ResourceTypeUser
	event.ResourceID = strconv.FormatInt(userID, 10)
	event.Message = "role assigned"
	event.Metadata["role_id"] = req.RoleID
	audit.Emit(r.Context(), event)

	httputil.WriteCreated(w, assignment)
}

// RevokeRole removes a role from a user
func (h *Handlers) RevokeRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.PathID(w, r, "id")
	if !ok {
		return
	}
	roleID, ok := httputil.PathID(w, r, "role_id")
	if !ok {
		return
	}

	if err := h.store.RevokeRole(r.Context(), userID, roleID); err != nil {
		h.writeStoreError(w, r, err)
		return
	}

	event := audit.NewEvent(r, audit.EventTypeAuthzRoleRevoke, audit.EventStatusSuccess)
	event.ResourceType = audit.ResourceTypeUser
	event.ResourceID = strconv.FormatInt(userID, 10)
	event.Message = "role revoked"
	event.Metadata["role_id"] = roleID
	audit.Emit(r.Context(), event)

	httputil.WriteNoContent(w)
}

// GetUserPermissions returns a user's roles and effective permission set
func (h *Handlers) GetUserPermissions(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userFromPath(w, r)
	if !ok {
		return
	}

	res, err := h.resolver.Resolve(r.Context(), userID)
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{
		"user_id":     userID,
		"roles":       res.RoleNames(),
		"permissions": res.Permissions.Strings(),
	})
}

// validateRole checks the request shape and the permission identifiers.
// Identifiers outside the registry are rejected here so they never reach storage.
func (h *Handlers) validateRole(w http.ResponseWriter, req *RoleRequest) (PermissionList, bool) {
	if err := h.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			httputil.WriteValidationError(w, fmt.Sprintf("invalid field %s", verrs[0].Field()))
			return nil, false
		}
		httputil.WriteValidationError(w, "invalid role")
		return nil, false
	}

	perms, err := permissions.ParseAll(req.Permissions)
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return nil, false
	}

	list := make(PermissionList, len(perms))
	for i, p := range perms {
		list[i] = string(p)
	}
	return list, true
}

func (h *Handlers) userFromPath(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, ok := httputil.PathID(w, r, "id")
	if !ok {
		return 0, false
	}
	if _, err := h.users.GetUser(r.Context(), userID); err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			httputil.WriteNotFoundError(w, "user not found")
		} else {
			h.internalError(w, r, err)
		}
		return 0, false
	}
	return userID, true
}

func (h *Handlers) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrRoleNotFound):
		httputil.WriteNotFoundError(w, "role not found")
	case errors.Is(err, ErrAssignmentNotFound):
		httputil.WriteNotFoundError(w, "role assignment not found")
	case errors.Is(err, ErrRoleExists):
		httputil.WriteConflict(w, "role already exists")
	case errors.Is(err, ErrAssignmentExists):
		httputil.WriteConflict(w, "role already assigned")
	default:
		h.internalError(w, r, err)
	}
}

func (h *Handlers) internalError(w http.ResponseWriter, r *http.Request, err error) {
	observability.FromContext(r.Context()).WithError(err).Error("RBAC request failed")
	httputil.WriteErrorMessage(w, http.StatusInternalServerError, "internal error")
}

func roleSnapshot(role *Role) map[string]interface{} {
	return map[string]interface{}{
		"name":        role.Name,
		"permissions": []string(role.Permissions),
	}
}
