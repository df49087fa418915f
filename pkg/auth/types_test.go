package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatus_Valid(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusApproved, StatusRejected} {
		assert.True(t, s.Valid(), s)
	}
	for _, s := range []Status{"", "banned", "Approved"} {
		assert.False(t, s.Valid(), s)
	}
}

func TestUser_CanSignIn(t *testing.T) {
	tests := []struct {
		name string
		user *User
		want bool
	}{
		{"nil", nil, false},
		{"approved and active", &User{Status: StatusApproved, IsActive: true}, true},
		{"approved but disabled", &User{Status: StatusApproved, IsActive: false}, false},
		{"pending", &User{Status: StatusPending, IsActive: true}, false},
		{"rejected", &User{Status: StatusRejected, IsActive: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.user.CanSignIn())
		})
	}
}

func TestAuthContext_UserID(t *testing.T) {
	var nilCtx *AuthContext
	assert.Equal(t, int64(0), nilCtx.UserID())
	assert.Equal(t, int64(0), (&AuthContext{}).UserID())
	assert.Equal(t, int64(42), (&AuthContext{User: &User{ID: 42}}).UserID())
}

func TestAuthContext_RoundTripsThroughContext(t *testing.T) {
	assert.Nil(t, FromContext(context.Background()))

	anonymous := NewContext(context.Background(), &AuthContext{})
	assert.Nil(t, FromContext(anonymous))

	ac := &AuthContext{User: &User{ID: 9}, SessionID: "s1"}
	ctx := NewContext(context.Background(), ac)
	assert.Same(t, ac, FromContext(ctx))
}
