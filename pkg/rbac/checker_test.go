package rbac

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/platinummonkey/agora/pkg/permissions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gatedResolver blocks every Resolve call until the test releases it
type gatedResolver struct {
	mu    sync.Mutex
	calls []chan resolveResult
	ready chan struct{}
}

type resolveResult struct {
	perms []string
	err   error
}

func newGatedResolver() *gatedResolver {
	return &gatedResolver{ready: make(chan struct{}, 16)}
}

func (g *gatedResolver) Resolve(ctx context.Context, userID int64) (*Resolution, error) {
	ch := make(chan resolveResult, 1)
	g.mu.Lock()
	g.calls = append(g.calls, ch)
	g.mu.Unlock()
	g.ready <- struct{}{}

	res := <-ch
	if res.err != nil {
		return nil, res.err
	}
	role := Role{Name: "r", Permissions: PermissionList(res.perms)}
	return &Resolution{UserID: userID, Roles: []Role{role}, Permissions: Resolve([]Role{role})}, nil
}

func (g *gatedResolver) waitCall(t *testing.T) {
	t.Helper()
	select {
	case <-g.ready:
	case <-time.After(2 * time.Second):
		t.Fatal("resolver was not called")
	}
}

func (g *gatedResolver) release(i int, res resolveResult) {
	g.mu.Lock()
	ch := g.calls[i]
	g.mu.Unlock()
	ch <- res
}

type staticResolver struct {
	perms []string
	err   error
}

func (s staticResolver) Resolve(ctx context.Context, userID int64) (*Resolution, error) {
	if s.err != nil {
		return nil, s.err
	}
	role := Role{Name: "static", Permissions: PermissionList(s.perms)}
	return &Resolution{UserID: userID, Roles: []Role{role}, Permissions: Resolve([]Role{role})}, nil
}

func TestChecker_UninitializedDeniesEverything(t *testing.T) {
	c := NewChecker(staticResolver{perms: []string{"view_forum"}}, 1)

	assert.Equal(t, StateUninitialized, c.State())
	assert.False(t, c.HasPermission(permissions.ViewForum))
	assert.False(t, c.HasAny(permissions.ViewForum))
	assert.False(t, c.HasAll(), "vacuous truth only once ready")
}

func TestChecker_FailClosedWhileLoading(t *testing.T) {
	g := newGatedResolver()
	c := NewChecker(g, 1)

	done := c.RefreshAsync(context.Background())
	g.waitCall(t)

	assert.Equal(t, StateLoading, c.State())
	assert.False(t, c.HasPermission(permissions.AdminAccess))
	assert.False(t, c.HasAll())

	g.release(0, resolveResult{perms: []string{"admin_access"}})
	require.NoError(t, <-done)

	assert.Equal(t, StateReady, c.State())
	assert.True(t, c.HasPermission(permissions.AdminAccess))
	assert.True(t, c.HasAll())
	assert.False(t, c.HasAny())
}

func TestChecker_Predicates(t *testing.T) {
	c := NewChecker(staticResolver{perms: []string{"view_forum", "create_posts"}}, 1)
	require.NoError(t, c.Refresh(context.Background()))

	assert.True(t, c.HasPermission(permissions.ViewForum))
	assert.False(t, c.HasPermission(permissions.AdminAccess))
	assert.True(t, c.HasAny(permissions.AdminAccess, permissions.CreatePosts))
	assert.False(t, c.HasAny(permissions.AdminAccess, permissions.ManageRoles))
	assert.True(t, c.HasAll(permissions.ViewForum, permissions.CreatePosts))
	assert.False(t, c.HasAll(permissions.ViewForum, permissions.AdminAccess))
	assert.Equal(t, []string{"static"}, c.Snapshot().Roles)
}

func TestChecker_LatestRefreshWins(t *testing.T) {
	g := newGatedResolver()
	c := NewChecker(g, 1)

	first := c.RefreshAsync(context.Background())
	g.waitCall(t)
	second := c.RefreshAsync(context.Background())
	g.waitCall(t)

	g.release(1, resolveResult{perms: []string{"view_documents"}})
	require.NoError(t, <-second)
	assert.True(t, c.HasPermission(permissions.ViewDocuments))

	// the superseded refresh completes last and must be discarded
	g.release(0, resolveResult{perms: []string{"admin_access"}})
	require.NoError(t, <-first)

	assert.Equal(t, StateReady, c.State())
	assert.True(t, c.HasPermission(permissions.ViewDocuments))
	assert.False(t, c.HasPermission(permissions.AdminAccess))
}

func TestChecker_SupersededWhileLatestStillLoading(t *testing.T) {
	g := newGatedResolver()
	c := NewChecker(g, 1)

	first := c.RefreshAsync(context.Background())
	g.waitCall(t)
	second := c.RefreshAsync(context.Background())
	g.waitCall(t)

	g.release(0, resolveResult{perms: []string{"admin_access"}})
	require.NoError(t, <-first)
	assert.Equal(t, StateLoading, c.State(), "an older result must not make the checker ready")
	assert.False(t, c.HasPermission(permissions.AdminAccess))

	g.release(1, resolveResult{perms: []string{"view_forum"}})
	require.NoError(t, <-second)
	assert.True(t, c.HasPermission(permissions.ViewForum))
}

func TestChecker_FailedRefreshFailsClosed(t *testing.T) {
	g := newGatedResolver()
	c := NewChecker(g, 1)

	done := c.RefreshAsync(context.Background())
	g.waitCall(t)
	g.release(0, resolveResult{perms: []string{"view_forum"}})
	require.NoError(t, <-done)
	require.True(t, c.HasPermission(permissions.ViewForum))

	boom := errors.New("db unavailable")
	done = c.RefreshAsync(context.Background())
	g.waitCall(t)
	g.release(1, resolveResult{err: boom})
	assert.ErrorIs(t, <-done, boom)

	assert.Equal(t, StateReady, c.State())
	assert.ErrorIs(t, c.Err(), boom)
	assert.False(t, c.HasPermission(permissions.ViewForum), "a failed refresh does not keep the stale set")
	assert.True(t, c.HasAll())
}

func TestChecker_RefreshReflectsAssignmentChanges(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	store := NewStore(db)
	user := createUser(t, db, "lin@example.com")
	editor := createRole(t, store, "editor", "upload_files")

	c := NewChecker(NewResolver(store), user.ID)
	require.NoError(t, c.Refresh(ctx))
	assert.False(t, c.HasPermission(permissions.UploadFiles))

	require.NoError(t, store.AssignRole(ctx, &UserRole{UserID: user.ID, RoleID: editor.ID}))
	assert.False(t, c.HasPermission(permissions.UploadFiles), "no change until refresh")

	require.NoError(t, c.Refresh(ctx))
	assert.True(t, c.HasPermission(permissions.UploadFiles))
}

func TestChecker_Watch(t *testing.T) {
	g := newGatedResolver()
	c := NewChecker(g, 1)

	updates, cancel := c.Watch()
	defer cancel()

	snap := <-updates
	assert.Equal(t, StateUninitialized, snap.State)

	done := c.RefreshAsync(context.Background())
	g.waitCall(t)
	g.release(0, resolveResult{perms: []string{"view_files"}})
	require.NoError(t, <-done)

	// intermediate snapshots may be coalesced; the latest one is always delivered
	var last Snapshot
	for last.State != StateReady {
		select {
		case last = <-updates:
		case <-time.After(2 * time.Second):
			t.Fatal("no ready snapshot delivered")
		}
	}
	assert.True(t, last.Allows([]permissions.Permission{permissions.ViewFiles}, true))

	cancel()
	_, open := <-updates
	assert.False(t, open)
}

func TestChecker_Dispose(t *testing.T) {
	c := NewChecker(staticResolver{perms: []string{"view_forum"}}, 1)
	require.NoError(t, c.Refresh(context.Background()))

	updates, _ := c.Watch()
	<-updates

	c.Dispose()
	c.Dispose()

	assert.Equal(t, StateDisposed, c.State())
	assert.False(t, c.HasPermission(permissions.ViewForum))
	assert.False(t, c.HasAll())
	assert.ErrorIs(t, c.Refresh(context.Background()), ErrDisposed)

	for range updates {
	}

	late, _ := c.Watch()
	snap, open := <-late
	assert.True(t, open)
	assert.Equal(t, StateDisposed, snap.State)
	_, open = <-late
	assert.False(t, open)
}

func TestChecker_DisposeDuringLoad(t *testing.T) {
	g := newGatedResolver()
	c := NewChecker(g, 1)

	done := c.RefreshAsync(context.Background())
	g.waitCall(t)
	c.Dispose()
	g.release(0, resolveResult{perms: []string{"admin_access"}})
	require.NoError(t, <-done)

	assert.Equal(t, StateDisposed, c.State())
	assert.False(t, c.HasPermission(permissions.AdminAccess))
}

func TestSnapshot_AllowsRequiresReady(t *testing.T) {
	set := permissions.NewSet("view_forum")
	required := []permissions.Permission{permissions.ViewForum}

	for _, state := range []State{StateUninitialized, StateLoading, StateDisposed} {
		assert.False(t, Snapshot{State: state, Permissions: set}.Allows(required, false), state.String())
	}
	assert.True(t, Snapshot{State: StateReady, Permissions: set}.Allows(required, false))
	assert.True(t, Snapshot{State: StateReady, Permissions: set}.Allows(nil, true))
	assert.False(t, Snapshot{State: StateReady, Permissions: set}.Allows(nil, false))
}
