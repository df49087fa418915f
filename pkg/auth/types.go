package auth

import (
	"context"
	"errors"
	"time"

	"github.com/platinummonkey/agora/pkg/contextkeys"
)

// Status is the approval state of an account
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// User represents a registered account. Users are never deleted; admins change
// Status and IsActive instead.
type User struct {
	ID           int64      `gorm:"primaryKey" json:"id"`
	Email        string     `gorm:"size:320;uniqueIndex;not null" json:"email"`
	Name         string     `gorm:"size:200;not null" json:"name"`
	PasswordHash string     `gorm:"not null" json:"-"`
	IsActive     bool       `gorm:"not null;default:true" json:"is_active"`
	Status       Status     `gorm:"size:16;index;not null;default:pending" json:"status"`
	ReviewedBy   *int64     `json:"reviewed_by,omitempty"`
	ReviewedAt   *time.Time `json:"reviewed_at,omitempty"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// TableName overrides the GORM table name
func (User) TableName() string {
	return "users"
}

// Models lists the persisted types of this package for auto-migration
func Models() []interface{} {
	return []interface{}{&User{}}
}

// CanSignIn reports whether the account may hold a session
func (u *User) CanSignIn() bool {
	return u != nil && u.IsActive && u.Status == StatusApproved
}

// AuthContext holds the authenticated identity of a request
type AuthContext struct {
	User      *User
	SessionID string
	ExpiresAt time.Time
}

// UserID returns the authenticated user's ID, or 0 when anonymous
func (ac *AuthContext) UserID() int64 {
	if ac == nil || ac.User == nil {
		return 0
	}
	return ac.User.ID
}

var authContextKey = contextkeys.New[*AuthContext]("auth_context")

// NewContext returns a copy of ctx carrying ac
func NewContext(ctx context.Context, ac *AuthContext) context.Context {
	return authContextKey.With(ctx, ac)
}

// FromContext returns the signed-in identity of ctx, or nil for anonymous
// requests
func FromContext(ctx context.Context) *AuthContext {
	ac := authContextKey.Get(ctx)
	if ac == nil || ac.User == nil {
		return nil
	}
	return ac
}

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserNotApproved    = errors.New("account is not approved")
	ErrUserInactive       = errors.New("account is disabled")
	ErrInvalidStatus      = errors.New("invalid status transition")
)
