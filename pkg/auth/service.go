package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Service wraps registration, sign-in and account review rules
type Service struct {
	store      *Store
	bcryptCost int
}

// NewService creates a new auth service. A zero cost uses bcrypt.DefaultCost.
func NewService(store *Store, bcryptCost int) *Service {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &Service{store: store, bcryptCost: bcryptCost}
}

// Store returns the underlying user store
func (s *Service) Store() *Store {
	return s.store
}

// RegisterInput is the payload accepted by Register
type RegisterInput struct {
	Email    string `json:"email" validate:"required,email,max=320"`
	Name     string `json:"name" validate:"required,max=200"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// Register creates a pending account awaiting admin approval
func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	hash, err := s.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	user := &User{
		Email:        in.Email,
		Name:         strings.TrimSpace(in.Name),
		PasswordHash: hash,
		IsActive:     true,
		Status:       StatusPending,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Authenticate validates credentials. Unknown emails and wrong passwords are
// indistinguishable; accounts that are not approved or disabled are reported
// separately so the caller can explain why sign-in was refused.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrUserInactive
	}
	if user.Status != StatusApproved {
		return nil, ErrUserNotApproved
	}

	if err := s.store.TouchLogin(ctx, user.ID); err != nil {
		return nil, err
	}
	return user, nil
}

// Approve moves a pending or rejected account to approved
func (s *Service) Approve(ctx context.Context, userID, reviewer int64) (*User, error) {
	return s.review(ctx, userID, reviewer, StatusApproved)
}

// Reject moves a pending account to rejected
func (s *Service) Reject(ctx context.Context, userID, reviewer int64) (*User, error) {
	return s.review(ctx, userID, reviewer, StatusRejected)
}

// SetActive enables or disables an account without touching its status
func (s *Service) SetActive(ctx context.Context, userID int64, active bool) (*User, error) {
	if err := s.store.SetActive(ctx, userID, active); err != nil {
		return nil, err
	}
	return s.store.GetUser(ctx, userID)
}

func (s *Service) review(ctx context.Context, userID, reviewer int64, to Status) (*User, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	switch {
	case user.Status == to:
		return user, nil
	case to == StatusRejected && user.Status == StatusApproved:
		// approved accounts are disabled with SetActive, not rejected
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidStatus, user.Status, to)
	}

	if err := s.store.SetStatus(ctx, userID, to, reviewer); err != nil {
		return nil, err
	}
	return s.store.GetUser(ctx, userID)
}

// HashPassword hashes a plaintext password with the configured cost
func (s *Service) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// EnsureAdmin creates an approved account if the email is not registered yet.
// It returns the existing or created user.
func (s *Service) EnsureAdmin(ctx context.Context, email, name, password string) (*User, bool, error) {
	existing, err := s.store.GetUserByEmail(ctx, email)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, false, err
	}

	hash, err := s.HashPassword(password)
	if err != nil {
		return nil, false, err
	}
	user := &User{
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		IsActive:     true,
		Status:       StatusApproved,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, false, err
	}
	return user, true, nil
}
