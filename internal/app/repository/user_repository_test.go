package repository

import (
	"context"
	"testing"
	"time"

	"github.com/ikkim/localservices-backend/internal/app/model"
	"github.com/ikkim/localservices-backend/internal/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupUserTest(t *testing.T) (*gorm.DB, UserRepository) {
	testDB, err := db.SetupTestDB(t)
	require.NoError(t, err)

	return testDB, NewUserRepository(testDB)
}

func createTestUser(t *testing.T, repo UserRepository, email string) *model.User {
	t.Helper()
	user := &model.User{
		Email:        email,
		PasswordHash: "hashedpassword",
		Name:         "Test User",
	}
	require.NoError(t, repo.Create(context.Background(), user))
	return user
}

func TestUserRepository_Create(t *testing.T) {
	_, repo := setupUserTest(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		user    *model.User
		wantErr bool
	}{
		{
			name: "Valid user",
			user: &model.User{
				Email:        "test@example.com",
				PasswordHash: "hashedpassword",
				Name:         "Test User",
			},
			wantErr: false,
		},
		{
			name: "Duplicate email",
			user: &model.User{
				Email:        "test@example.com",
				PasswordHash: "hashedpassword",
				Name:         "Another User",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := repo.Create(ctx, tt.user)

			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.NotZero(t, tt.user.ID)
				assert.False(t, tt.user.EmailVerified)
			}
		})
	}
}

func TestUserRepository_Find(t *testing.T) {
	_, repo := setupUserTest(t)
	ctx := context.Background()
	user := createTestUser(t, repo, "find@example.com")

	t.Run("By ID", func(t *testing.T) {
		found, err := repo.FindByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, "find@example.com", found.Email)
	})

	t.Run("By email", func(t *testing.T) {
		found, err := repo.FindByEmail(ctx, "find@example.com")
		require.NoError(t, err)
		assert.Equal(t, user.ID, found.ID)
	})

	t.Run("Missing ID", func(t *testing.T) {
		_, err := repo.FindByID(ctx, 9999)
		assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	})

	t.Run("Missing email", func(t *testing.T) {
		_, err := repo.FindByEmail(ctx, "nobody@example.com")
		assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	})
}

func TestUserRepository_SetEmailVerified(t *testing.T) {
	_, repo := setupUserTest(t)
	ctx := context.Background()
	user := createTestUser(t, repo, "verify@example.com")
	at := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, repo.SetEmailVerified(ctx, user.ID, at))

	found, err := repo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, found.EmailVerified)
	require.NotNil(t, found.EmailVerifiedAt)
	assert.True(t, at.Equal(*found.EmailVerifiedAt))

	assert.ErrorIs(t, repo.SetEmailVerified(ctx, 9999, at), gorm.ErrRecordNotFound)
}

func TestUserRepository_SetPasswordHash(t *testing.T) {
	_, repo := setupUserTest(t)
	ctx := context.Background()
	user := createTestUser(t, repo, "password@example.com")
	at := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, repo.SetPasswordHash(ctx, user.ID, "newhash", at))

	found, err := repo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "newhash", found.PasswordHash)
	require.NotNil(t, found.PasswordChangedAt)

	assert.ErrorIs(t, repo.SetPasswordHash(ctx, 9999, "x", at), gorm.ErrRecordNotFound)
}
