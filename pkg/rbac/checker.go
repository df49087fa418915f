package rbac

import (
	"context"
	"errors"
	"sync"

	"github.com/platinummonkey/agora/pkg/contextkeys"
	"github.com/platinummonkey/agora/pkg/permissions"
)

// State is the lifecycle state of a Checker
type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateReady
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateDisposed:
		return "disposed"
	}
	return "unknown"
}

// ErrDisposed is returned by Refresh once the checker has been disposed
var ErrDisposed = errors.New("permission checker disposed")

// PermissionResolver resolves a user's effective permissions
type PermissionResolver interface {
	Resolve(ctx context.Context, userID int64) (*Resolution, error)
}

// Snapshot is an immutable view of a Checker at one point in time
type Snapshot struct {
	State       State
	Generation  uint64
	Permissions permissions.Set
	Roles       []string
	Err         error
}

// Allows evaluates a requirement against the snapshot. Anything other than
// StateReady denies.
func (s Snapshot) Allows(required []permissions.Permission, requireAll bool) bool {
	if s.State != StateReady {
		return false
	}
	if requireAll {
		return s.Permissions.HasAll(required...)
	}
	return s.Permissions.HasAny(required...)
}

// Checker answers permission questions for one identity. It starts
// uninitialized, moves to loading on every Refresh and to ready when the
// most recent Refresh completes. Every predicate is false unless the checker
// is ready.
type Checker struct {
	resolver PermissionResolver
	userID   int64

	mu          sync.RWMutex
	state       State
	set         permissions.Set
	roles       []string
	err         error
	generation  uint64
	watchers    map[int]chan Snapshot
	nextWatcher int
}

// NewChecker creates an uninitialized checker for userID
func NewChecker(resolver PermissionResolver, userID int64) *Checker {
	return &Checker{
		resolver: resolver,
		userID:   userID,
		set:      permissions.Set{},
		watchers: make(map[int]chan Snapshot),
	}
}

// UserID returns the identity this checker evaluates
func (c *Checker) UserID() int64 {
	return c.userID
}

// State returns the current lifecycle state
func (c *Checker) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Err returns the error of the last applied refresh, if it failed
func (c *Checker) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

// Snapshot returns the current state and permission set
func (c *Checker) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

func (c *Checker) snapshotLocked() Snapshot {
	return Snapshot{
		State:       c.state,
		Generation:  c.generation,
		Permissions: c.set,
		Roles:       c.roles,
		Err:         c.err,
	}
}

// HasPermission reports whether p is held. False unless ready.
func (c *Checker) HasPermission(p permissions.Permission) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state == StateReady && c.set.Has(p)
}

// HasAny reports whether at least one of ps is held. False unless ready, and
// false for an empty list.
func (c *Checker) HasAny(ps ...permissions.Permission) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state == StateReady && c.set.HasAny(ps...)
}

// HasAll reports whether every one of ps is held. False unless ready; once
// ready an empty list is satisfied.
func (c *Checker) HasAll(ps ...permissions.Permission) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state == StateReady && c.set.HasAll(ps...)
}

// Refresh re-resolves the permission set, ignoring the current one. Only the
// most recently started refresh is applied; a superseded refresh returns its
// own result but leaves the checker untouched. A failed refresh leaves the
// checker ready with an empty set so that every check denies.
func (c *Checker) Refresh(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateDisposed {
		c.mu.Unlock()
		return ErrDisposed
	}
	c.generation++
	gen := c.generation
	c.state = StateLoading
	c.notifyLocked()
	c.mu.Unlock()

	res, err := c.resolver.Resolve(ctx, c.userID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateDisposed || gen != c.generation {
		return err
	}

	c.state = StateReady
	if err != nil {
		c.set = permissions.Set{}
		c.roles = nil
		c.err = err
	} else {
		c.set = res.Permissions
		c.roles = res.RoleNames()
		c.err = nil
	}
	c.notifyLocked()
	return err
}

// RefreshAsync runs Refresh in a goroutine. The returned channel receives the
// refresh result and is then closed.
func (c *Checker) RefreshAsync(ctx context.Context) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- c.Refresh(ctx)
		close(done)
	}()
	return done
}

// Watch subscribes to state changes. The channel always holds the latest
// snapshot; intermediate ones may be skipped. It is closed by cancel or Dispose.
func (c *Checker) Watch() (<-chan Snapshot, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan Snapshot, 1)
	if c.state == StateDisposed {
		ch <- c.snapshotLocked()
		close(ch)
		return ch, func() {}
	}

	id := c.nextWatcher
	c.nextWatcher++
	c.watchers[id] = ch
	ch <- c.snapshotLocked()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if w, ok := c.watchers[id]; ok {
				delete(c.watchers, id)
				close(w)
			}
		})
	}
	return ch, cancel
}

// Dispose releases the checker. Later refreshes fail with ErrDisposed and
// every predicate denies.
func (c *Checker) Dispose() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateDisposed {
		return
	}
	c.state = StateDisposed
	c.set = permissions.Set{}
	c.roles = nil
	c.notifyLocked()
	for id, ch := range c.watchers {
		close(ch)
		delete(c.watchers, id)
	}
}

func (c *Checker) notifyLocked() {
	snap := c.snapshotLocked()
	for _, ch := range c.watchers {
		select {
		case ch <- snap:
			continue
		default:
		}
		// replace the stale snapshot nobody has read yet
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

var checkerKey = contextkeys.New[*Checker]("permission_checker")

// CheckerFromContext returns the request's checker, if one was loaded
func CheckerFromContext(ctx context.Context) *Checker {
	return checkerKey.Get(ctx)
}
