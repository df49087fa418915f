package rbac

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/platinummonkey/agora/pkg/permissions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSeed(t *testing.T) {
	seed, err := DefaultSeed()
	require.NoError(t, err)

	names := make([]string, len(seed.Roles))
	for i, r := range seed.Roles {
		names[i] = r.Name
	}
	assert.Equal(t, []string{"member", "editor", "moderator", "admin"}, names)

	admin := seed.Roles[3]
	assert.ElementsMatch(t, permissions.All(), permissions.NewSet(admin.Permissions...).Sorted(),
		"admin holds every registered permission")
}

func TestLoadSeed_Validation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown permission", "roles:\n  - name: x\n    permissions: [launch_rockets]\n"},
		{"missing name", "roles:\n  - permissions: [view_forum]\n"},
		{"duplicate", "roles:\n  - name: a\n  - name: a\n"},
		{"unknown field", "roles:\n  - name: a\n    colour: blue\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadSeed(strings.NewReader(tt.yaml))
			assert.Error(t, err)
		})
	}

	seed, err := LoadSeed(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, seed.Roles)
}

func TestLoadSeedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roles.yaml")
	require.NoError(t, os.WriteFile(path, []byte("roles:\n  - name: reader\n    permissions: [view_documents]\n"), 0o600))

	seed, err := LoadSeedFile(path)
	require.NoError(t, err)
	require.Len(t, seed.Roles, 1)
	assert.Equal(t, "reader", seed.Roles[0].Name)

	_, err = LoadSeedFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	def, err := LoadSeedFile("")
	require.NoError(t, err)
	assert.Len(t, def.Roles, 4)
}

func TestApplySeed_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := NewStore(newTestDB(t))
	seed, err := DefaultSeed()
	require.NoError(t, err)

	res, err := ApplySeed(ctx, store, seed)
	require.NoError(t, err)
	assert.Equal(t, []string{"admin", "editor", "member", "moderator"}, res.Created)
	assert.Empty(t, res.Existing)

	member, err := store.GetRoleByName(ctx, "member")
	require.NoError(t, err)
	assert.True(t, member.IsBuiltIn)
	member.Permissions = PermissionList{"view_forum"}
	require.NoError(t, store.UpdateRole(ctx, member))

	res, err = ApplySeed(ctx, store, seed)
	require.NoError(t, err)
	assert.Empty(t, res.Created)
	assert.Len(t, res.Existing, 4)

	member, err = store.GetRoleByName(ctx, "member")
	require.NoError(t, err)
	assert.Equal(t, PermissionList{"view_forum"}, member.Permissions, "edits survive reseeding")

	count, err := store.CountRoles(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)
}

func TestEnsureAssignment(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	store := NewStore(db)
	user := createUser(t, db, "root@example.com")
	createRole(t, store, "admin", "admin_access")

	require.NoError(t, EnsureAssignment(ctx, store, user.ID, "admin"))
	require.NoError(t, EnsureAssignment(ctx, store, user.ID, "admin"))
	assert.ErrorIs(t, EnsureAssignment(ctx, store, user.ID, "nobody"), ErrRoleNotFound)

	roles, err := store.GetUserRoles(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, roles, 1)
}
