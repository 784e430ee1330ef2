package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"session-auth/internal/model"
)

func localAccount(email string) *model.Account {
	hash := "hash"
	return &model.Account{
		Email:        email,
		PasswordHash: &hash,
		Nickname:     "nick",
		Role:         model.RoleStudent,
		Provider:     model.ProviderLocal,
		Status:       model.StatusActive,
	}
}

func TestMemoryUserRepositoryCreateAndFind(t *testing.T) {
	repo := NewMemoryUserRepository()
	ctx := context.Background()

	account := localAccount("a@x.com")
	require.NoError(t, repo.Create(ctx, account))
	require.Equal(t, int64(1), account.ID)

	byEmail, err := repo.FindByEmail(ctx, "A@X.com")
	require.NoError(t, err)
	require.Equal(t, account.ID, byEmail.ID)

	status, err := repo.FindStatusByID(ctx, account.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusActive, status)

	_, err = repo.FindByID(ctx, 99)
	require.ErrorIs(t, err, model.ErrUserNotFound)

	err = repo.Create(ctx, localAccount("a@x.com"))
	require.ErrorIs(t, err, model.ErrUserAlreadyExists)
}

func TestMemoryUserRepositoryLinkProviderOnlyOnce(t *testing.T) {
	repo := NewMemoryUserRepository()
	ctx := context.Background()

	account := localAccount("b@x.com")
	require.NoError(t, repo.Create(ctx, account))

	var (
		wg      sync.WaitGroup
		written atomic.Int32
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.LinkProvider(ctx, account.ID, model.ProviderNaver, "n1")
			if err == nil && ok {
				written.Add(1)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), written.Load())

	linked, err := repo.FindByProvider(ctx, model.ProviderNaver, "n1")
	require.NoError(t, err)
	require.Equal(t, account.ID, linked.ID)
}

func TestMemoryUserRepositoryCancelledContextIsUpstream(t *testing.T) {
	repo := NewMemoryUserRepository()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := repo.FindByID(ctx, 1)
	require.ErrorIs(t, err, model.ErrUpstreamUnavailable)
}
