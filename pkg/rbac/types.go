package rbac

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/agora/pkg/permissions"
)

// PermissionList is a role's permission identifiers as stored. Order is kept
// for display; it is treated as a set everywhere else.
type PermissionList []string

// Value implements driver.Valuer, storing the list as a JSON array
func (l PermissionList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (l *PermissionList) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*l = PermissionList{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("cannot scan %T into PermissionList", src)
	}

	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("invalid permission list: %w", err)
	}
	*l = out
	return nil
}

// Role is a named, persisted bundle of permissions
type Role struct {
	ID          int64          `gorm:"primaryKey" json:"id"`
	Name        string         `gorm:"size:100;uniqueIndex;not null" json:"name"`
	DisplayName string         `gorm:"size:200" json:"display_name"`
	Description string         `json:"description"`
	Permissions PermissionList `gorm:"type:text;not null" json:"permissions"`
	IsBuiltIn   bool           `gorm:"not null;default:false" json:"is_built_in"`
	CreatedBy   *int64         `json:"created_by,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// TableName overrides the GORM table name
func (Role) TableName() string {
	return "roles"
}

// PermissionSet returns the role's known permissions as a set
func (r Role) PermissionSet() permissions.Set {
	return permissions.NewSet(r.Permissions...)
}

// UserRole binds one user to one role
type UserRole struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	UserID    int64     `gorm:"uniqueIndex:idx_user_roles_user_role;not null" json:"user_id"`
	RoleID    int64     `gorm:"uniqueIndex:idx_user_roles_user_role;index;not null" json:"role_id"`
	Role      *Role     `gorm:"constraint:OnDelete:CASCADE" json:"role,omitempty"`
	GrantedBy *int64    `json:"granted_by,omitempty"`
	GrantedAt time.Time `json:"granted_at"`
}

// TableName overrides the GORM table name
func (UserRole) TableName() string {
	return "user_roles"
}

// Models lists the persisted types of this package for auto-migration
func Models() []interface{} {
	return []interface{}{&Role{}, &UserRole{}}
}

var (
	ErrRoleNotFound       = errors.New("role not found")
	ErrRoleExists         = errors.New("role already exists")
	ErrAssignmentExists   = errors.New("role already assigned")
	ErrAssignmentNotFound = errors.New("role assignment not found")
	ErrBuiltInRole        = errors.New("built-in roles cannot be deleted")
)
