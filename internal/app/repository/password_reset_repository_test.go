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

func setupPasswordResetTest(t *testing.T) (PasswordResetRepository, UserRepository) {
	testDB, err := db.SetupTestDB(t)
	require.NoError(t, err)
	return NewPasswordResetRepository(testDB), NewUserRepository(testDB)
}

func TestPasswordResetRepository_UpsertReplacesToken(t *testing.T) {
	repo, users := setupPasswordResetTest(t)
	ctx := context.Background()
	user := createTestUser(t, users, "reset@example.com")
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Upsert(ctx, &model.PasswordReset{
		AccountID: user.ID,
		TokenHash: "first",
		CreatedAt: now,
		ExpiresAt: now.Add(15 * time.Minute),
	}))
	require.NoError(t, repo.Upsert(ctx, &model.PasswordReset{
		AccountID: user.ID,
		TokenHash: "second",
		CreatedAt: now.Add(time.Minute),
		ExpiresAt: now.Add(16 * time.Minute),
	}))

	found, err := repo.FindByAccountID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "second", found.TokenHash)
	assert.True(t, now.Add(16*time.Minute).Equal(found.ExpiresAt))

	_, err = repo.FindByAccountID(ctx, user.ID+1)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestPasswordResetRepository_ConsumeAndSetPassword(t *testing.T) {
	repo, users := setupPasswordResetTest(t)
	ctx := context.Background()
	user := createTestUser(t, users, "consume@example.com")
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Upsert(ctx, &model.PasswordReset{
		AccountID: user.ID,
		TokenHash: "tokenhash",
		CreatedAt: now,
		ExpiresAt: now.Add(15 * time.Minute),
	}))
	reset, err := repo.FindByAccountID(ctx, user.ID)
	require.NoError(t, err)

	require.NoError(t, repo.ConsumeAndSetPassword(ctx, reset, "newhash", now))

	updated, err := users.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "newhash", updated.PasswordHash)

	_, err = repo.FindByAccountID(ctx, user.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	// second use of the same row loses
	assert.ErrorIs(t, repo.ConsumeAndSetPassword(ctx, reset, "otherhash", now), ErrConflict)
	updated, err = users.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "newhash", updated.PasswordHash)
}

func TestPasswordResetRepository_ConsumeRollsBackOnPasswordFailure(t *testing.T) {
	repo, _ := setupPasswordResetTest(t)
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	// no user row exists for this account, so the password write matches nothing
	require.NoError(t, repo.Upsert(ctx, &model.PasswordReset{
		AccountID: 4242,
		TokenHash: "tokenhash",
		CreatedAt: now,
		ExpiresAt: now.Add(15 * time.Minute),
	}))
	reset, err := repo.FindByAccountID(ctx, 4242)
	require.NoError(t, err)

	err = repo.ConsumeAndSetPassword(ctx, reset, "newhash", now)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	survivor, err := repo.FindByAccountID(ctx, 4242)
	require.NoError(t, err)
	assert.Equal(t, reset.ID, survivor.ID)
}

func TestPasswordResetRepository_ConsumeReplacedToken(t *testing.T) {
	repo, users := setupPasswordResetTest(t)
	ctx := context.Background()
	user := createTestUser(t, users, "replaced@example.com")
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Upsert(ctx, &model.PasswordReset{
		AccountID: user.ID, TokenHash: "old", CreatedAt: now, ExpiresAt: now.Add(15 * time.Minute),
	}))
	stale, err := repo.FindByAccountID(ctx, user.ID)
	require.NoError(t, err)

	require.NoError(t, repo.Upsert(ctx, &model.PasswordReset{
		AccountID: user.ID, TokenHash: "new", CreatedAt: now, ExpiresAt: now.Add(15 * time.Minute),
	}))

	assert.ErrorIs(t, repo.ConsumeAndSetPassword(ctx, stale, "newhash", now), ErrConflict)
}

func TestPasswordResetRepository_DeleteExpired(t *testing.T) {
	repo, _ := setupPasswordResetTest(t)
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Upsert(ctx, &model.PasswordReset{
		AccountID: 1, TokenHash: "a", CreatedAt: now.Add(-time.Hour), ExpiresAt: now.Add(-45 * time.Minute),
	}))
	require.NoError(t, repo.Upsert(ctx, &model.PasswordReset{
		AccountID: 2, TokenHash: "b", CreatedAt: now, ExpiresAt: now.Add(15 * time.Minute),
	}))

	deleted, err := repo.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = repo.FindByAccountID(ctx, 2)
	assert.NoError(t, err)
}
