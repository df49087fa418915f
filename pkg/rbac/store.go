package rbac

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Store handles RBAC data persistence
type Store struct {
	db *gorm.DB
}

// NewStore creates a new RBAC store
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// CreateRole creates a new role
func (s *Store) CreateRole(ctx context.Context, role *Role) error {
	exists, err := s.roleNameTaken(ctx, role.Name, 0)
	if err != nil {
		return err
	}
	if exists {
		return ErrRoleExists
	}

	if role.Permissions == nil {
		role.Permissions = PermissionList{}
	}
	if err := s.db.WithContext(ctx).Create(role).Error; err != nil {
		return fmt.Errorf("failed to create role: %w", err)
	}
	return nil
}

// GetRole retrieves a role by ID
func (s *Store) GetRole(ctx context.Context, roleID int64) (*Role, error) {
	var role Role
	err := s.db.WithContext(ctx).First(&role, roleID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRoleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return &role, nil
}

// GetRoleByName retrieves a role by its unique name
func (s *Store) GetRoleByName(ctx context.Context, name string) (*Role, error) {
	var role Role
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&role).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRoleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return &role, nil
}

// ListRoles lists all roles ordered by name
func (s *Store) ListRoles(ctx context.Context) ([]Role, error) {
	roles := []Role{}
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&roles).Error; err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	return roles, nil
}

// UpdateRole updates a role's name, display name, description and permissions
func (s *Store) UpdateRole(ctx context.Context, role *Role) error {
	exists, err := s.roleNameTaken(ctx, role.Name, role.ID)
	if err != nil {
		return err
	}
	if exists {
		return ErrRoleExists
	}

	if role.Permissions == nil {
		role.Permissions = PermissionList{}
	}
	res := s.db.WithContext(ctx).Model(&Role{ID: role.ID}).
		Select("name", "display_name", "description", "permissions", "updated_at").
		Updates(&Role{
			Name:        role.Name,
			DisplayName: role.DisplayName,
			Description: role.Description,
			Permissions: role.Permissions,
			UpdatedAt:   time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update role: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrRoleNotFound
	}
	return nil
}

// DeleteRole deletes a role together with all of its assignments
func (s *Store) DeleteRole(ctx context.Context, roleID int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("role_id = ?", roleID).Delete(&UserRole{}).Error; err != nil {
			return fmt.Errorf("failed to delete role assignments: %w", err)
		}
		res := tx.Delete(&Role{}, roleID)
		if res.Error != nil {
			return fmt.Errorf("failed to delete role: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrRoleNotFound
		}
		return nil
	})
}

// AssignRole binds a role to a user
func (s *Store) AssignRole(ctx context.Context, assignment *UserRole) error {
	if _, err := s.GetRole(ctx, assignment.RoleID); err != nil {
		return err
	}

	var count int64
	err := s.db.WithContext(ctx).Model(&UserRole{}).
		Where("user_id = ? AND role_id = ?", assignment.UserID, assignment.RoleID).
		Count(&count).Error
	if err != nil {
		return fmt.Errorf("failed to check assignment: %w", err)
	}
	if count > 0 {
		return ErrAssignmentExists
	}

	if assignment.GrantedAt.IsZero() {
		assignment.GrantedAt = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Omit("Role").Create(assignment).Error; err != nil {
		return fmt.Errorf("failed to assign role: %w", err)
	}
	return nil
}

// RevokeRole removes a role from a user
func (s *Store) RevokeRole(ctx context.Context, userID, roleID int64) error {
	res := s.db.WithContext(ctx).
		Where("user_id = ? AND role_id = ?", userID, roleID).
		Delete(&UserRole{})
	if res.Error != nil {
		return fmt.Errorf("failed to revoke role: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrAssignmentNotFound
	}
	return nil
}

// GetUserRoles returns every role assigned to a user
func (s *Store) GetUserRoles(ctx context.Context, userID int64) ([]Role, error) {
	roles := []Role{}
	err := s.db.WithContext(ctx).
		Joins("JOIN user_roles ON user_roles.role_id = roles.id").
		Where("user_roles.user_id = ?", userID).
		Order("roles.id ASC").
		Find(&roles).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get user roles: %w", err)
	}
	return roles, nil
}

// ListAssignments returns a user's assignments with their roles loaded
func (s *Store) ListAssignments(ctx context.Context, userID int64) ([]UserRole, error) {
	assignments := []UserRole{}
	err := s.db.WithContext(ctx).
		Preload("Role").
		Where("user_id = ?", userID).
		Order("granted_at ASC, id ASC").
		Find(&assignments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	return assignments, nil
}

// CountRoles returns the number of roles
func (s *Store) CountRoles(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&Role{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count roles: %w", err)
	}
	return count, nil
}

// CountAssignments returns the number of user-role assignments
func (s *Store) CountAssignments(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&UserRole{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count assignments: %w", err)
	}
	return count, nil
}

func (s *Store) roleNameTaken(ctx context.Context, name string, exceptID int64) (bool, error) {
	var count int64
	q := s.db.WithContext(ctx).Model(&Role{}).Where("name = ?", name)
	if exceptID != 0 {
		q = q.Where("id <> ?", exceptID)
	}
	if err := q.Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check role name: %w", err)
	}
	return count > 0, nil
}
