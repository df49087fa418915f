package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/platinummonkey/agora/pkg/audit"
	"github.com/platinummonkey/agora/pkg/auth"
	"github.com/platinummonkey/agora/pkg/config"
	"github.com/platinummonkey/agora/pkg/database"
	"github.com/platinummonkey/agora/pkg/observability"
	"github.com/platinummonkey/agora/pkg/rbac"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func quietLogger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, io.Discard)
}

func TestSeedRoles_FromFile(t *testing.T) {
	ctx := context.Background()
	db := database.NewTestDB(t, rbac.Models()...)
	roles := rbac.NewStore(db)

	seedFile := filepath.Join(t.TempDir(), "roles.yaml")
	require.NoError(t, os.WriteFile(seedFile, []byte(`roles:
  - name: reader
    display_name: Reader
    permissions: [view_documents]
`), 0o600))

	require.NoError(t, seedRoles(ctx, config.RolesConfig{SeedFile: seedFile}, roles, quietLogger()))

	role, err := roles.GetRoleByName(ctx, "reader")
	require.NoError(t, err)
	assert.Equal(t, "Reader", role.DisplayName)

	n, err := roles.CountRoles(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSeedRoles_MissingFile(t *testing.T) {
	db := database.NewTestDB(t, rbac.Models()...)

	err := seedRoles(context.Background(), config.RolesConfig{SeedFile: "/nonexistent/roles.yaml"}, rbac.NewStore(db), quietLogger())

	assert.Error(t, err)
}

func TestBootstrapAdmin(t *testing.T) {
	ctx := context.Background()
	db := database.NewTestDB(t, append(auth.Models(), rbac.Models()...)...)
	svc := auth.NewService(auth.NewStore(db), bcrypt.MinCost)
	roles := rbac.NewStore(db)
	seed, err := rbac.DefaultSeed()
	require.NoError(t, err)
	_, err = rbac.ApplySeed(ctx, roles, seed)
	require.NoError(t, err)

	cfg := config.BootstrapConfig{Email: "root@example.com", Name: "Root", Password: "a long password"}
	require.NoError(t, bootstrapAdmin(ctx, cfg, svc, roles, quietLogger()))
	// a restart finds the account and keeps a single assignment
	require.NoError(t, bootstrapAdmin(ctx, cfg, svc, roles, quietLogger()))

	user, err := svc.Authenticate(ctx, "root@example.com", "a long password")
	require.NoError(t, err)
	assigned, err := roles.GetUserRoles(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, assigned, 1)
	assert.Equal(t, "admin", assigned[0].Name)

	require.NoError(t, bootstrapAdmin(ctx, config.BootstrapConfig{}, svc, roles, quietLogger()))
}

func TestOpenBackends_Local(t *testing.T) {
	ctx := context.Background()
	cfg := config.StorageConfig{
		Backends:  []string{config.BackendLocal},
		LocalRoot: filepath.Join(t.TempDir(), "files"),
	}
	metrics := observability.NewMetrics()

	backends, closers, err := openBackends(ctx, cfg, metrics)
	require.NoError(t, err)
	t.Cleanup(func() {
		for _, c := range closers {
			c()
		}
	})

	assert.Equal(t, []string{"local"}, backends.registry.Names())
	assert.Empty(t, backends.checks)

	gw, ok := backends.registry.Get("local")
	require.True(t, ok)
	_, err = gw.List(ctx, "/")
	require.NoError(t, err)
}

func TestOpenBackends_WithoutMetrics(t *testing.T) {
	cfg := config.StorageConfig{
		Backends:  []string{config.BackendLocal},
		LocalRoot: t.TempDir(),
	}

	backends, closers, err := openBackends(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		for _, c := range closers {
			c()
		}
	})

	gw, ok := backends.registry.Get("local")
	require.True(t, ok)
	_, err = gw.List(context.Background(), "")
	assert.NoError(t, err)
}

func TestOpenBackends_Unknown(t *testing.T) {
	_, _, err := openBackends(context.Background(), config.StorageConfig{Backends: []string{"ftp"}}, nil)

	assert.EqualError(t, err, `unknown storage backend "ftp"`)
}

func TestNewAuditLogger(t *testing.T) {
	structured, err := newAuditLogger(audit.FileLoggerConfig{}, quietLogger())
	require.NoError(t, err)
	assert.IsType(t, &audit.StructuredLogger{}, structured)

	dir := t.TempDir()
	multi, err := newAuditLogger(audit.FileLoggerConfig{BasePath: dir, MaxSize: 1 << 20, MaxFiles: 2}, quietLogger())
	require.NoError(t, err)
	assert.IsType(t, audit.Tee{}, multi)
	require.NoError(t, multi.Log(context.Background(), &audit.AuditEvent{EventType: audit.EventTypeAuthLogin}))
	require.NoError(t, multi.Close())

	_, err = os.Stat(filepath.Join(dir, "audit.log"))
	assert.NoError(t, err)
}
