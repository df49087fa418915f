package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/platinummonkey/agora/pkg/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(database.NewTestDB(t, Models()...))
}

func TestStore_CreateUser(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	user := &User{Email: "  Alice@Example.COM ", Name: "Alice", PasswordHash: "x", IsActive: true, Status: StatusPending}
	require.NoError(t, store.CreateUser(ctx, user))
	assert.NotZero(t, user.ID)
	assert.Equal(t, "alice@example.com", user.Email)

	dup := &User{Email: "alice@example.com", Name: "Other", PasswordHash: "x", Status: StatusPending}
	assert.ErrorIs(t, store.CreateUser(ctx, dup), ErrEmailTaken)

	got, err := store.GetUserByEmail(ctx, "ALICE@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, err = store.GetUser(ctx, 999)
	assert.ErrorIs(t, err, ErrUserNotFound)
	_, err = store.GetUserByEmail(ctx, "bob@example.com")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestStore_ListAndCount(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for _, u := range []struct {
		email  string
		status Status
	}{
		{"a@example.com", StatusPending},
		{"b@example.com", StatusApproved},
		{"c@example.com", StatusPending},
		{"d@example.com", StatusRejected},
	} {
		require.NoError(t, store.CreateUser(ctx, &User{Email: u.email, Name: u.email, PasswordHash: "x", IsActive: true, Status: u.status}))
	}

	all, err := store.ListUsers(ctx, ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	pending, err := store.ListUsers(ctx, ListFilter{Status: StatusPending})
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "a@example.com", pending[0].Email)
	assert.Equal(t, "c@example.com", pending[1].Email)

	page, err := store.ListUsers(ctx, ListFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "b@example.com", page[0].Email)

	none, err := store.ListUsers(ctx, ListFilter{Offset: 10})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	counts, err := store.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[Status]int64{StatusPending: 2, StatusApproved: 1, StatusRejected: 1}, counts)
}

func TestStore_Updates(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	user := &User{Email: "a@example.com", Name: "A", PasswordHash: "x", IsActive: true, Status: StatusPending}
	require.NoError(t, store.CreateUser(ctx, user))

	require.NoError(t, store.SetStatus(ctx, user.ID, StatusApproved, 7))
	require.NoError(t, store.SetActive(ctx, user.ID, false))
	require.NoError(t, store.TouchLogin(ctx, user.ID))

	got, err := store.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, got.Status)
	assert.False(t, got.IsActive)
	require.NotNil(t, got.ReviewedBy)
	assert.Equal(t, int64(7), *got.ReviewedBy)
	assert.NotNil(t, got.ReviewedAt)
	assert.NotNil(t, got.LastLoginAt)

	assert.ErrorIs(t, store.SetActive(ctx, 999, true), ErrUserNotFound)
}

func TestStore_DatabaseFailure(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT .* FROM "users"`).
		WillReturnError(errors.New("connection reset"))

	_, err = NewStore(db).GetUserByEmail(context.Background(), "a@example.com")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUserNotFound, "failures are not reported as missing users")
	assert.NoError(t, mock.ExpectationsWereMet())
}
