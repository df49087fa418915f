// Package rbac provides role-based access control for agora.
//
// # Overview
//
// Roles are named, persisted bundles of permission identifiers from the
// permissions registry. Users receive roles through UserRole assignments made
// by administrators. A user's effective permission set is the union of the
// permissions of every assigned role.
//
// # Resolution
//
// Resolve is the pure flattening step:
//
//	set := rbac.Resolve(roles) // deduplicated, order independent
//
// Resolver wraps it with persistence. A user without roles resolves to the
// empty set. A database failure is reported as ErrResolutionFailed and never
// as an empty set, so callers can tell "no access" from "unknown".
//
// Identifiers stored on a role that are not in the registry are dropped during
// resolution. The admin API refuses to write them in the first place.
//
// # Checker
//
// Checker is the per-consumer view of one user's permissions. Its lifecycle is
//
//	uninitialized -> loading -> ready (-> loading on Refresh) -> disposed
//
// Every predicate is false outside the ready state, including HasAll() with no
// arguments. When refreshes overlap, the one started last decides the state;
// results of older refreshes are discarded. A failed refresh leaves the
// checker ready with an empty set and the error available through Err.
//
//	checker := rbac.NewChecker(resolver, userID)
//	updates, cancel := checker.Watch()
//	defer cancel()
//	checker.RefreshAsync(ctx)
//	for snap := range updates {
//		if snap.State == rbac.StateReady {
//			...
//		}
//	}
//
// # HTTP Middleware
//
// PermissionMiddleware builds a ready checker per request. Nothing is cached
// between requests.
//
//	pm := rbac.NewPermissionMiddleware(rbac.NewResolver(store), metrics)
//	router.Use(pm.Load)
//	router.Handle("/api/admin/roles",
//		pm.RequireAllPermissions(permissions.AdminAccess, permissions.ManageRoles)(handler))
//
// Anonymous requests get 401. Denied requests, including those whose
// permissions could not be resolved, get 403.
//
// # Built-In Roles
//
// The default seed (seed/roles.yaml) defines member, editor, moderator and
// admin. ApplySeed creates missing roles and leaves existing ones alone.
// Built-in roles cannot be deleted or renamed, but their permissions may be
// edited.
package rbac
