// Package guard decides what a protected page shows for the current
// permission state: a neutral loading indicator, the page itself, or a
// redirect to a fallback location.
package guard

import (
	"context"
	"time"

	"github.com/platinummonkey/agora/pkg/permissions"
	"github.com/platinummonkey/agora/pkg/rbac"
)

// Decision is what a guarded page should do
type Decision int

const (
	// DecisionLoading shows a neutral indicator. Neither the content nor the
	// redirect happens while permissions are unknown.
	DecisionLoading Decision = iota
	DecisionRender
	DecisionRedirect
)

func (d Decision) String() string {
	switch d {
	case DecisionLoading:
		return "loading"
	case DecisionRender:
		return "render"
	case DecisionRedirect:
		return "redirect"
	}
	return "unknown"
}

// Outcome is a decision plus the redirect target when there is one
type Outcome struct {
	Decision Decision
	Location string
}

// DefaultFallback is used when a Guard has no fallback configured
const DefaultFallback = "/"

// Guard protects content behind one or more permissions. With RequireAll
// unset any one of Permissions suffices.
type Guard struct {
	Permissions []permissions.Permission
	RequireAll  bool
	Fallback    string
}

// Require returns a guard needing any of ps
func Require(fallback string, ps ...permissions.Permission) Guard {
	return Guard{Permissions: ps, Fallback: fallback}
}

// RequireAll returns a guard needing every one of ps
func RequireAll(fallback string, ps ...permissions.Permission) Guard {
	return Guard{Permissions: ps, RequireAll: true, Fallback: fallback}
}

func (g Guard) fallback() string {
	if g.Fallback == "" {
		return DefaultFallback
	}
	return g.Fallback
}

// Evaluate maps a checker snapshot to an outcome. Only a ready snapshot can
// render or redirect; every other state, disposed included, is loading.
func (g Guard) Evaluate(s rbac.Snapshot) Outcome {
	if s.State != rbac.StateReady {
		return Outcome{Decision: DecisionLoading}
	}
	if s.Allows(g.Permissions, g.RequireAll) {
		return Outcome{Decision: DecisionRender}
	}
	return Outcome{Decision: DecisionRedirect, Location: g.fallback()}
}

// Watch re-evaluates the guard on every checker change and emits each
// distinct outcome, starting with the current one. The channel closes when
// ctx is done or the checker stops publishing.
func (g Guard) Watch(ctx context.Context, c *rbac.Checker) <-chan Outcome {
	out := make(chan Outcome, 1)
	updates, cancel := c.Watch()

	go func() {
		defer close(out)
		defer cancel()

		var last *Outcome
		for {
			select {
			case <-ctx.Done():
				return
			case snap, ok := <-updates:
				if !ok {
					return
				}
				o := g.Evaluate(snap)
				if last != nil && *last == o {
					continue
				}
				last = &o
				select {
				case out <- o:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// Await waits up to timeout for a render or redirect decision and reports
// loading if none arrives in time.
func (g Guard) Await(ctx context.Context, c *rbac.Checker, timeout time.Duration) Outcome {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for o := range g.Watch(ctx, c) {
		if o.Decision != DecisionLoading {
			return o
		}
	}
	return Outcome{Decision: DecisionLoading}
}
