package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/platinummonkey/agora/pkg/observability"
	"github.com/platinummonkey/agora/pkg/permissions"
	"go.opentelemetry.io/otel/attribute"
)

// ErrResolutionFailed marks a failure to compute an effective permission set.
// Callers must treat it as a denial.
var ErrResolutionFailed = errors.New("permission resolution failed")

// Resolve flattens the permissions of roles into one deduplicated set.
// Identifiers unknown to the registry are dropped.
func Resolve(roles []Role) permissions.Set {
	lists := make([][]permissions.Permission, 0, len(roles))
	for _, role := range roles {
		ps := make([]permissions.Permission, len(role.Permissions))
		for i, v := range role.Permissions {
			ps[i] = permissions.Permission(v)
		}
		lists = append(lists, ps)
	}
	return permissions.Union(lists...)
}

// RoleSource loads the roles assigned to a user
type RoleSource interface {
	GetUserRoles(ctx context.Context, userID int64) ([]Role, error)
}

// Resolution is the result of resolving a user's permissions
type Resolution struct {
	UserID      int64
	Roles       []Role
	Permissions permissions.Set
}

// RoleNames returns the names of the resolved roles in assignment order
func (r *Resolution) RoleNames() []string {
	names := make([]string, len(r.Roles))
	for i, role := range r.Roles {
		names[i] = role.Name
	}
	return names
}

// Resolver computes effective permission sets from persisted role assignments
type Resolver struct {
	source RoleSource
}

// NewResolver creates a resolver reading roles from source
func NewResolver(source RoleSource) *Resolver {
	return &Resolver{source: source}
}

// Resolve loads the user's roles and flattens them. A user without roles
// resolves to the empty set; a persistence error is returned wrapped in
// ErrResolutionFailed, never as an empty set.
func (r *Resolver) Resolve(ctx context.Context, userID int64) (res *Resolution, err error) {
	ctx, span := observability.StartSpan(ctx, "pkg/rbac", "rbac.Resolve", attribute.Int64("user.id", userID))
	defer func() { observability.EndSpan(span, err) }()

	roles, err := r.source.GetUserRoles(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: user %d: %v", ErrResolutionFailed, userID, err)
	}
	span.SetAttributes(attribute.Int("rbac.roles", len(roles)))
	return &Resolution{
		UserID:      userID,
		Roles:       roles,
		Permissions: Resolve(roles),
	}, nil
}
