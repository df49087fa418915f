package permissions

import (
	"fmt"
	"sort"
	"strings"
)

// Permission is a flat identifier granting access to one capability
type Permission string

// Namespace partitions the registry into user-facing and administrative permissions
type Namespace string

const (
	NamespaceGeneral Namespace = "general"
	NamespaceAdmin   Namespace = "admin"
)

// General permissions
const (
	ViewForum     Permission = "view_forum"
	CreatePosts   Permission = "create_posts"
	ModeratePosts Permission = "moderate_posts"
	ViewDocuments Permission = "view_documents"
	ViewFiles     Permission = "view_files"
	UploadFiles   Permission = "upload_files"
	DeleteFiles   Permission = "delete_files"
)

// Admin permissions
const (
	AdminAccess   Permission = "admin_access"
	ManageUsers   Permission = "manage_users"
	ApproveUsers  Permission = "approve_users"
	ManageRoles   Permission = "manage_roles"
	ManageStorage Permission = "manage_storage"
)

var registry = map[Permission]Namespace{
	ViewForum:     NamespaceGeneral,
	CreatePosts:   NamespaceGeneral,
	ModeratePosts: NamespaceGeneral,
	ViewDocuments: NamespaceGeneral,
	ViewFiles:     NamespaceGeneral,
	UploadFiles:   NamespaceGeneral,
	DeleteFiles:   NamespaceGeneral,

	AdminAccess:   NamespaceAdmin,
	ManageUsers:   NamespaceAdmin,
	ApproveUsers:  NamespaceAdmin,
	ManageRoles:   NamespaceAdmin,
	ManageStorage: NamespaceAdmin,
}

// ErrUnknownPermission is returned by Parse for identifiers outside the registry
type ErrUnknownPermission struct {
	Value string
}

func (e *ErrUnknownPermission) Error() string {
	return fmt.Sprintf("unknown permission %q", e.Value)
}

// Parse validates s against the registry
func Parse(s string) (Permission, error) {
	p := Permission(strings.TrimSpace(s))
	if _, ok := registry[p]; !ok {
		return "", &ErrUnknownPermission{Value: s}
	}
	return p, nil
}

// ParseAll validates every identifier and returns them deduplicated in input order.
// The first unknown identifier aborts parsing.
func ParseAll(values []string) ([]Permission, error) {
	out := make([]Permission, 0, len(values))
	seen := make(map[Permission]bool, len(values))
	for _, v := range values {
		p, err := Parse(v)
		if err != nil {
			return nil, err
		}
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out, nil
}

// Known reports whether p is part of the registry
func (p Permission) Known() bool {
	_, ok := registry[p]
	return ok
}

// Namespace returns the namespace p belongs to, or "" for unknown identifiers
func (p Permission) Namespace() Namespace {
	return registry[p]
}

func (p Permission) String() string {
	return string(p)
}

// All returns every registered permission, sorted
func All() []Permission {
	out := make([]Permission, 0, len(registry))
	for p := range registry {
		out = append(out, p)
	}
	sortPermissions(out)
	return out
}

// InNamespace returns the registered permissions of one namespace, sorted
func InNamespace(ns Namespace) []Permission {
	var out []Permission
	for p, n := range registry {
		if n == ns {
			out = append(out, p)
		}
	}
	sortPermissions(out)
	return out
}

func sortPermissions(ps []Permission) {
	sort.Slice(ps, func(i, j int) bool { return ps[i] < ps[j] })
}
