package rbac

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/agora/pkg/audit"
	"github.com/platinummonkey/agora/pkg/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedAudit struct {
	events []*audit.AuditEvent
}

func (c *capturedAudit) Log(ctx context.Context, event *audit.AuditEvent) error {
	c.events = append(c.events, event)
	return nil
}

func (c *capturedAudit) Close() error { return nil }

func (c *capturedAudit) types() []audit.EventType {
	out := make([]audit.EventType, len(c.events))
	for i, e := range c.events {
		out[i] = e.EventType
	}
	return out
}

type adminFixture struct {
	store  *Store
	router http.Handler
	audit  *capturedAudit
	admin  *auth.User
	user   *auth.User
}

func newAdminFixture(t *testing.T) *adminFixture {
	t.Helper()
	ctx := context.Background()
	db := newTestDB(t)
	store := NewStore(db)
	users := auth.NewStore(db)

	seed, err := DefaultSeed()
	require.NoError(t, err)
	_, err = ApplySeed(ctx, store, seed)
	require.NoError(t, err)

	admin := createUser(t, db, "admin@example.com")
	require.NoError(t, EnsureAssignment(ctx, store, admin.ID, "admin"))
	user := createUser(t, db, "user@example.com")

	pm := NewPermissionMiddleware(NewResolver(store), nil)
	router := mux.NewRouter()
	NewHandlers(store, users).RegisterRoutes(router.PathPrefix("/api/admin").Subrouter(), pm)

	captured := &capturedAudit{}
	return &adminFixture{
		store:  store,
		router: audit.Middleware(captured)(router),
		audit:  captured,
		admin:  admin,
		user:   user,
	}
}

func (f *adminFixture) do(t *testing.T, as *auth.User, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if as != nil {
		req = asUser(req, as.ID)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestHandlers_RequireAdminPermissions(t *testing.T) {
	f := newAdminFixture(t)

	assert.Equal(t, http.StatusUnauthorized, f.do(t, nil, http.MethodGet, "/api/admin/roles", "").Code)
	assert.Equal(t, http.StatusForbidden, f.do(t, f.user, http.MethodGet, "/api/admin/roles", "").Code)
	assert.Equal(t, http.StatusForbidden, f.do(t, f.user, http.MethodGet, "/api/admin/permissions", "").Code)
	assert.Equal(t, http.StatusOK, f.do(t, f.admin, http.MethodGet, "/api/admin/roles", "").Code)
}

func TestHandlers_ListPermissions(t *testing.T) {
	f := newAdminFixture(t)

	rec := f.do(t, f.admin, http.MethodGet, "/api/admin/permissions", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string][]PermissionInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Contains(t, body, "general")
	require.Contains(t, body, "admin")

	var admin []string
	for _, p := range body["admin"] {
		admin = append(admin, p.Name)
	}
	assert.Contains(t, admin, "admin_access")
	assert.NotContains(t, admin, "view_forum")
}

func TestHandlers_RoleLifecycle(t *testing.T) {
	f := newAdminFixture(t)

	rec := f.do(t, f.admin, http.MethodPost, "/api/admin/roles",
		`{"name":"archivist","display_name":"Archivist","permissions":["view_documents","view_files","view_files"]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created Role
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, PermissionList{"view_documents", "view_files"}, created.Permissions)
	require.NotNil(t, created.CreatedBy)
	assert.Equal(t, f.admin.ID, *created.CreatedBy)

	rolePath := fmt.Sprintf("/api/admin/roles/%d", created.ID)
	rec = f.do(t, f.admin, http.MethodGet, rolePath, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, f.admin, http.MethodPost, "/api/admin/roles", `{"name":"archivist"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, f.admin, http.MethodPut, rolePath,
		`{"name":"archivist","description":"Keeps records","permissions":["view_documents"]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated Role
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, "Keeps records", updated.Description)
	assert.Equal(t, PermissionList{"view_documents"}, updated.Permissions)

	rec = f.do(t, f.admin, http.MethodDelete, rolePath, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, f.admin, http.MethodGet, rolePath, "").Code)

	assert.Equal(t, []audit.EventType{
		audit.EventTypeAuthzRoleCreate,
		audit.EventTypeAuthzRoleUpdate,
		audit.EventTypeAuthzRoleDelete,
	}, f.audit.types())
	require.NotNil(t, f.audit.events[1].Changes)
	assert.Equal(t, []string{"view_documents", "view_files"}, f.audit.events[1].Changes.Before["permissions"])
}

func TestHandlers_RejectUnknownPermissions(t *testing.T) {
	f := newAdminFixture(t)

	rec := f.do(t, f.admin, http.MethodPost, "/api/admin/roles",
		`{"name":"rocketeer","permissions":["view_forum","launch_rockets"]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "launch_rockets")

	_, err := f.store.GetRoleByName(context.Background(), "rocketeer")
	assert.ErrorIs(t, err, ErrRoleNotFound, "nothing is written")

	member, err := f.store.GetRoleByName(context.Background(), "member")
	require.NoError(t, err)
	rec = f.do(t, f.admin, http.MethodPut, fmt.Sprintf("/api/admin/roles/%d", member.ID),
		`{"name":"member","permissions":["launch_rockets"]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlers_RoleValidation(t *testing.T) {
	f := newAdminFixture(t)

	tests := []struct {
		name string
		body string
	}{
		{"missing name", `{"permissions":["view_forum"]}`},
		{"short name", `{"name":"x"}`},
		{"malformed json", `{"name":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, f.admin, http.MethodPost, "/api/admin/roles", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}

	assert.Equal(t, http.StatusBadRequest, f.do(t, f.admin, http.MethodGet, "/api/admin/roles/abc", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, f.admin, http.MethodGet, "/api/admin/roles/9999", "").Code)
}

func TestHandlers_BuiltInRoles(t *testing.T) {
	f := newAdminFixture(t)
	member, err := f.store.GetRoleByName(context.Background(), "member")
	require.NoError(t, err)
	path := fmt.Sprintf("/api/admin/roles/%d", member.ID)

	assert.Equal(t, http.StatusBadRequest, f.do(t, f.admin, http.MethodDelete, path, "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, f.admin, http.MethodPut, path, `{"name":"members"}`).Code)

	rec := f.do(t, f.admin, http.MethodPut, path, `{"name":"member","permissions":["view_forum"]}`)
	assert.Equal(t, http.StatusOK, rec.Code, "built-in permissions remain editable")
}

func TestHandlers_Assignments(t *testing.T) {
	f := newAdminFixture(t)
	editor, err := f.store.GetRoleByName(context.Background(), "editor")
	require.NoError(t, err)

	rolesPath := fmt.Sprintf("/api/admin/users/%d/roles", f.user.ID)
	permsPath := fmt.Sprintf("/api/admin/users/%d/permissions", f.user.ID)

	rec := f.do(t, f.admin, http.MethodPost, rolesPath, fmt.Sprintf(`{"role_id":%d}`, editor.ID))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, http.StatusConflict, f.do(t, f.admin, http.MethodPost, rolesPath, fmt.Sprintf(`{"role_id":%d}`, editor.ID)).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, f.admin, http.MethodPost, rolesPath, `{"role_id":9999}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, f.admin, http.MethodPost, rolesPath, `{}`).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, f.admin, http.MethodPost, "/api/admin/users/9999/roles", fmt.Sprintf(`{"role_id":%d}`, editor.ID)).Code)

	rec = f.do(t, f.admin, http.MethodGet, rolesPath, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var assignments []UserRole
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &assignments))
	require.Len(t, assignments, 1)
	assert.Equal(t, "editor", assignments[0].Role.Name)

	rec = f.do(t, f.admin, http.MethodGet, permsPath, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var perms struct {
		Roles       []string `json:"roles"`
		Permissions []string `json:"permissions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &perms))
	assert.Equal(t, []string{"editor"}, perms.Roles)
	assert.Contains(t, perms.Permissions, "upload_files")

	rec = f.do(t, f.admin, http.MethodDelete, fmt.Sprintf("%s/%d", rolesPath, editor.ID), "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = f.do(t, f.admin, http.MethodDelete, fmt.Sprintf("%s/%d", rolesPath, editor.ID), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	assert.Equal(t, []audit.EventType{audit.EventTypeAuthzRoleAssign, audit.EventTypeAuthzRoleRevoke}, f.audit.types())
}
