package rbac

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/platinummonkey/agora/pkg/permissions"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

//go:embed seed/roles.yaml
var defaultSeed []byte

// SeedRole is one built-in role definition
type SeedRole struct {
	Name        string   `yaml:"name"`
	DisplayName string   `yaml:"display_name"`
	Description string   `yaml:"description"`
	Permissions []string `yaml:"permissions"`
}

// Seed is the set of built-in roles applied on start-up
type Seed struct {
	Roles []SeedRole `yaml:"roles"`
}

// SeedResult reports which roles a seed run created
type SeedResult struct {
	Created  []string
	Existing []string
}

// DefaultSeed returns the built-in role definitions shipped with the binary
func DefaultSeed() (*Seed, error) {
	return LoadSeed(bytes.NewReader(defaultSeed))
}

// LoadSeedFile reads a seed file from disk. An empty path yields the default seed.
func LoadSeedFile(path string) (*Seed, error) {
	if path == "" {
		return DefaultSeed()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open role seed: %w", err)
	}
	defer f.Close()
	return LoadSeed(f)
}

// LoadSeed decodes and validates a seed. Every permission must be in the registry.
func LoadSeed(r io.Reader) (*Seed, error) {
	var seed Seed
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode role seed: %w", err)
	}

	seen := make(map[string]bool, len(seed.Roles))
	for _, role := range seed.Roles {
		if role.Name == "" {
			return nil, errors.New("role seed: role name is required")
		}
		if seen[role.Name] {
			return nil, fmt.Errorf("role seed: duplicate role %q", role.Name)
		}
		seen[role.Name] = true
		if _, err := permissions.ParseAll(role.Permissions); err != nil {
			return nil, fmt.Errorf("role seed: role %q: %w", role.Name, err)
		}
	}
	return &seed, nil
}

// ApplySeed creates every seeded role that does not exist yet. Existing roles
// are left untouched so administrator edits survive restarts.
func ApplySeed(ctx context.Context, store *Store, seed *Seed) (*SeedResult, error) {
	var (
		mu     sync.Mutex
		result SeedResult
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, def := range seed.Roles {
		def := def
		g.Go(func() error {
			created, err := applySeedRole(gctx, store, def)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			if created {
				result.Created = append(result.Created, def.Name)
			} else {
				result.Existing = append(result.Existing, def.Name)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Strings(result.Created)
	sort.Strings(result.Existing)
	return &result, nil
}

func applySeedRole(ctx context.Context, store *Store, def SeedRole) (bool, error) {
	_, err := store.GetRoleByName(ctx, def.Name)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, ErrRoleNotFound) {
		return false, err
	}

	perms, err := permissions.ParseAll(def.Permissions)
	if err != nil {
		return false, err
	}
	list := make(PermissionList, len(perms))
	for i, p := range perms {
		list[i] = string(p)
	}

	err = store.CreateRole(ctx, &Role{
		Name:        def.Name,
		DisplayName: def.DisplayName,
		Description: def.Description,
		Permissions: list,
		IsBuiltIn:   true,
	})
	if errors.Is(err, ErrRoleExists) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to seed role %s: %w", def.Name, err)
	}
	return true, nil
}

// EnsureAssignment assigns the named role to a user unless already assigned
func EnsureAssignment(ctx context.Context, store *Store, userID int64, roleName string) error {
	role, err := store.GetRoleByName(ctx, roleName)
	if err != nil {
		return err
	}
	err = store.AssignRole(ctx, &UserRole{UserID: userID, RoleID: role.ID})
	if err != nil && !errors.Is(err, ErrAssignmentExists) {
		return err
	}
	return nil
}
