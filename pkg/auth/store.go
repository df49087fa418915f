package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Store handles user persistence
type Store struct {
	db *gorm.DB
}

// NewStore creates a new user store
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// ListFilter narrows ListUsers
type ListFilter struct {
	Status Status
	Limit  int
	Offset int
}

// CreateUser inserts a new user. The email is normalized to lower case.
func (s *Store) CreateUser(ctx context.Context, user *User) error {
	user.Email = normalizeEmail(user.Email)

	var count int64
	if err := s.db.WithContext(ctx).Model(&User{}).Where("email = ?", user.Email).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check email: %w", err)
	}
	if count > 0 {
		return ErrEmailTaken
	}

	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by ID
func (s *Store) GetUser(ctx context.Context, id int64) (*User, error) {
	var user User
	err := s.db.WithContext(ctx).First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// GetUserByEmail retrieves a user by email
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// ListUsers lists users ordered by creation time
func (s *Store) ListUsers(ctx context.Context, filter ListFilter) ([]User, error) {
	q := s.db.WithContext(ctx).Model(&User{}).Order("created_at ASC, id ASC")
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	users := []User{}
	if err := q.Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// SetStatus records an admin review decision
func (s *Store) SetStatus(ctx context.Context, id int64, status Status, reviewer int64) error {
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status":      status,
		"reviewed_at": now,
	}
	if reviewer != 0 {
		updates["reviewed_by"] = reviewer
	}
	return s.update(ctx, id, updates)
}

// SetActive enables or disables an account
func (s *Store) SetActive(ctx context.Context, id int64, active bool) error {
	return s.update(ctx, id, map[string]interface{}{"is_active": active})
}

// TouchLogin records a successful sign-in
func (s *Store) TouchLogin(ctx context.Context, id int64) error {
	return s.update(ctx, id, map[string]interface{}{"last_login_at": time.Now().UTC()})
}

// CountByStatus returns the number of users per status
func (s *Store) CountByStatus(ctx context.Context) (map[Status]int64, error) {
	var rows []struct {
		Status Status
		Count  int64
	}
	err := s.db.WithContext(ctx).Model(&User{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}

	counts := make(map[Status]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

func (s *Store) update(ctx context.Context, id int64, updates map[string]interface{}) error {
	res := s.db.WithContext(ctx).Model(&User{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to update user: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
