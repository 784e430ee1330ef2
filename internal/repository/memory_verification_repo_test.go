package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"session-auth/internal/model"
)

func TestMemoryVerificationRepositoryLifecycle(t *testing.T) {
	repo := NewMemoryVerificationRepository()
	ctx := context.Background()

	_, err := repo.Find(ctx, "a@x.com")
	require.ErrorIs(t, err, model.ErrVerificationNotFound)
	require.ErrorIs(t, repo.MarkVerified(ctx, "a@x.com"), model.ErrVerificationNotFound)

	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Save(ctx, model.EmailVerification{Email: " A@X.com ", Code: "123456", CreatedAt: created}))

	got, err := repo.Find(ctx, "a@x.COM")
	require.NoError(t, err)
	require.Equal(t, "a@x.com", got.Email)
	require.Equal(t, "123456", got.Code)
	require.False(t, got.Verified)

	require.NoError(t, repo.Save(ctx, model.EmailVerification{Email: "a@x.com", Code: "654321", CreatedAt: created.Add(time.Minute)}))
	got, err = repo.Find(ctx, "a@x.com")
	require.NoError(t, err)
	require.Equal(t, "654321", got.Code)

	require.NoError(t, repo.MarkVerified(ctx, "a@x.com"))
	got, err = repo.Find(ctx, "a@x.com")
	require.NoError(t, err)
	require.True(t, got.Verified)

	require.NoError(t, repo.Delete(ctx, "a@x.com"))
	require.NoError(t, repo.Delete(ctx, "a@x.com"))
	_, err = repo.Find(ctx, "a@x.com")
	require.ErrorIs(t, err, model.ErrVerificationNotFound)
}

func TestMemoryVerificationRepositoryCanceledContext(t *testing.T) {
	repo := NewMemoryVerificationRepository()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := repo.Find(ctx, "a@x.com")
	require.ErrorIs(t, err, model.ErrUpstreamUnavailable)
}
