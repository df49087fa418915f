package rbac

import (
	"context"
	"testing"

	"github.com/platinummonkey/agora/pkg/auth"
	"github.com/platinummonkey/agora/pkg/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	return database.NewTestDB(t, append(auth.Models(), Models()...)...)
}

func createUser(t *testing.T, db *gorm.DB, email string) *auth.User {
	t.Helper()
	user := &auth.User{Email: email, Name: email, IsActive: true, Status: auth.StatusApproved}
	require.NoError(t, auth.NewStore(db).CreateUser(context.Background(), user))
	return user
}

func createRole(t *testing.T, store *Store, name string, perms ...string) *Role {
	t.Helper()
	role := &Role{Name: name, DisplayName: name, Permissions: PermissionList(perms)}
	require.NoError(t, store.CreateRole(context.Background(), role))
	return role
}

func TestStore_RoleCRUD(t *testing.T) {
	ctx := context.Background()
	store := NewStore(newTestDB(t))

	role := createRole(t, store, "reviewer", "view_forum", "view_documents")
	assert.NotZero(t, role.ID)

	got, err := store.GetRole(ctx, role.ID)
	require.NoError(t, err)
	assert.Equal(t, PermissionList{"view_forum", "view_documents"}, got.Permissions)

	byName, err := store.GetRoleByName(ctx, "reviewer")
	require.NoError(t, err)
	assert.Equal(t, role.ID, byName.ID)

	err = store.CreateRole(ctx, &Role{Name: "reviewer"})
	assert.ErrorIs(t, err, ErrRoleExists)

	got.Description = "Reviews documents"
	got.Permissions = PermissionList{"view_documents"}
	require.NoError(t, store.UpdateRole(ctx, got))

	updated, err := store.GetRole(ctx, role.ID)
	require.NoError(t, err)
	assert.Equal(t, "Reviews documents", updated.Description)
	assert.Equal(t, PermissionList{"view_documents"}, updated.Permissions)

	other := createRole(t, store, "other")
	other.Name = "reviewer"
	assert.ErrorIs(t, store.UpdateRole(ctx, other), ErrRoleExists)

	assert.ErrorIs(t, store.UpdateRole(ctx, &Role{ID: 9999, Name: "ghost"}), ErrRoleNotFound)

	roles, err := store.ListRoles(ctx)
	require.NoError(t, err)
	require.Len(t, roles, 2)
	assert.Equal(t, "other", roles[0].Name)

	count, err := store.CountRoles(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	require.NoError(t, store.DeleteRole(ctx, role.ID))
	_, err = store.GetRole(ctx, role.ID)
	assert.ErrorIs(t, err, ErrRoleNotFound)
	assert.ErrorIs(t, store.DeleteRole(ctx, role.ID), ErrRoleNotFound)
}

func TestStore_Assignments(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	store := NewStore(db)

	user := createUser(t, db, "ada@example.com")
	admin := createUser(t, db, "admin@example.com")
	member := createRole(t, store, "member", "view_forum")
	editor := createRole(t, store, "editor", "upload_files")

	grantedBy := admin.ID
	require.NoError(t, store.AssignRole(ctx, &UserRole{UserID: user.ID, RoleID: member.ID, GrantedBy: &grantedBy}))
	require.NoError(t, store.AssignRole(ctx, &UserRole{UserID: user.ID, RoleID: editor.ID}))
	assert.ErrorIs(t, store.AssignRole(ctx, &UserRole{UserID: user.ID, RoleID: member.ID}), ErrAssignmentExists)
	assert.ErrorIs(t, store.AssignRole(ctx, &UserRole{UserID: user.ID, RoleID: 4242}), ErrRoleNotFound)

	roles, err := store.GetUserRoles(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, roles, 2)
	assert.Equal(t, "member", roles[0].Name)
	assert.Equal(t, "editor", roles[1].Name)

	assignments, err := store.ListAssignments(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, assignments, 2)
	require.NotNil(t, assignments[0].Role)
	assert.Equal(t, "member", assignments[0].Role.Name)
	require.NotNil(t, assignments[0].GrantedBy)
	assert.Equal(t, admin.ID, *assignments[0].GrantedBy)
	assert.False(t, assignments[0].GrantedAt.IsZero())

	require.NoError(t, store.RevokeRole(ctx, user.ID, member.ID))
	assert.ErrorIs(t, store.RevokeRole(ctx, user.ID, member.ID), ErrAssignmentNotFound)

	require.NoError(t, store.DeleteRole(ctx, editor.ID))
	roles, err = store.GetUserRoles(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, roles, "deleting a role removes its assignments")
}

func TestPermissionList_Scan(t *testing.T) {
	var l PermissionList
	require.NoError(t, l.Scan(`["view_forum","admin_access"]`))
	assert.Equal(t, PermissionList{"view_forum", "admin_access"}, l)

	require.NoError(t, l.Scan([]byte(`[]`)))
	assert.Empty(t, l)

	require.NoError(t, l.Scan(nil))
	assert.Equal(t, PermissionList{}, l)

	assert.Error(t, l.Scan(42))
	assert.Error(t, l.Scan("not json"))

	v, err := PermissionList(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", v)
}
