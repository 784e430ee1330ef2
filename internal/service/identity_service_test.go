package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"session-auth/internal/model"
	"session-auth/internal/repository"
	"session-auth/internal/session"
	"session-auth/internal/token"
)

func TestSignInCreatesAccountOnFirstVisit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.identity.SignIn(ctx, naverProfile("n1", "New@Example.com"))
	require.NoError(t, err)
	require.False(t, first.NeedsLinking)
	require.NotNil(t, first.Tokens)
	require.Equal(t, model.ProviderNaver, first.User.Provider)
	require.Equal(t, "new@example.com", first.User.Email)
	require.Equal(t, "네이버유저", first.User.Nickname)

	account, err := h.repo.FindByProvider(ctx, model.ProviderNaver, "n1")
	require.NoError(t, err)
	require.Equal(t, model.StatusActive, account.Status)
	require.Nil(t, account.PasswordHash)
	require.Equal(t, first.Tokens.AccessToken, h.bound(t, account.ID, session.KindAccess))

	again, err := h.identity.SignIn(ctx, naverProfile("n1", "new@example.com"))
	require.NoError(t, err)
	require.Equal(t, first.User.ID, again.User.ID)
	require.Equal(t, again.Tokens.AccessToken, h.bound(t, account.ID, session.KindAccess))
}

func TestSignInGeneratesNicknameWhenDisplayNameIsUnusable(t *testing.T) {
	h := newHarness(t)

	profile := naverProfile("n1", "a@example.com")
	profile.DisplayName = "badword"
	login, err := h.identity.SignIn(context.Background(), profile)
	require.NoError(t, err)
	require.Regexp(t, `^user[0-9a-f]{8}$`, login.User.Nickname)
}

func TestSignInRejectsIncompleteProfile(t *testing.T) {
	h := newHarness(t)

	_, err := h.identity.SignIn(context.Background(), naverProfile("", "a@example.com"))
	require.ErrorIs(t, err, model.ErrOAuthExchange)

	_, err = h.identity.SignIn(context.Background(), naverProfile("n1", ""))
	require.ErrorIs(t, err, model.ErrOAuthExchange)
}

func TestSignInEmailCollisionRequiresLinking(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	local := h.join(t, "shared@example.com")
	require.NoError(t, h.auth.Logout(ctx, principalOf(local)))

	login, err := h.identity.SignIn(ctx, naverProfile("n1", "shared@example.com"))
	require.NoError(t, err)
	require.True(t, login.NeedsLinking)
	require.NotEmpty(t, login.LinkToken)
	require.Nil(t, login.Tokens)
	require.Equal(t, local.User.ID, login.User.ID)

	account, err := h.repo.FindByID(ctx, local.User.ID)
	require.NoError(t, err)
	require.Equal(t, model.ProviderLocal, account.Provider, "collision must not merge on its own")
	require.Empty(t, h.bound(t, local.User.ID, session.KindAccess))

	claims, err := h.codec.Decode(login.LinkToken)
	require.NoError(t, err)
	require.Equal(t, token.ScopeLink, claims.Scope)
	require.Equal(t, model.ProviderNaver, claims.LinkProvider)
	require.Equal(t, "n1", claims.LinkProviderID)
}

func TestLinkAccountConfirmsPendingIdentity(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	local := h.join(t, "shared@example.com")

	pending, err := h.identity.SignIn(ctx, naverProfile("n1", "shared@example.com"))
	require.NoError(t, err)

	linked, err := h.identity.LinkAccount(ctx, pending.LinkToken)
	require.NoError(t, err)
	require.NotNil(t, linked.Tokens)
	require.Equal(t, model.ProviderNaver, linked.User.Provider)
	require.Equal(t, linked.Tokens.AccessToken, h.bound(t, local.User.ID, session.KindAccess))

	// The provider identity now resolves straight to the same account.
	again, err := h.identity.SignIn(ctx, naverProfile("n1", "shared@example.com"))
	require.NoError(t, err)
	require.False(t, again.NeedsLinking)
	require.Equal(t, local.User.ID, again.User.ID)
}

func TestLinkAccountConcurrentConfirmationsOnlyOneWins(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.join(t, "shared@example.com")

	pending, err := h.identity.SignIn(ctx, naverProfile("n1", "shared@example.com"))
	require.NoError(t, err)

	const callers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
		errs []error
	)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.identity.LinkAccount(ctx, pending.LinkToken)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
				return
			}
			errs = append(errs, err)
		}()
	}
	wg.Wait()

	require.Equal(t, 1, wins)
	for _, err := range errs {
		assert.ErrorIs(t, err, model.ErrProviderAlreadyLinked)
	}
}

func TestLinkAccountRejectsSessionToken(t *testing.T) {
	h := newHarness(t)
	pair := h.join(t, "student@example.com")

	_, err := h.identity.LinkAccount(context.Background(), pair.AccessToken)
	require.ErrorIs(t, err, model.ErrTokenMalformed)
}

func TestLinkAccountSameProviderDifferentIdentity(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.identity.SignIn(ctx, naverProfile("n1", "shared@example.com"))
	require.NoError(t, err)

	pending, err := h.identity.SignIn(ctx, naverProfile("n2", "shared@example.com"))
	require.NoError(t, err)
	require.True(t, pending.NeedsLinking)

	_, err = h.identity.LinkAccount(ctx, pending.LinkToken)
	require.ErrorIs(t, err, model.ErrProviderAlreadyLinked)

	account, err := h.repo.FindByEmail(ctx, "shared@example.com")
	require.NoError(t, err)
	require.Equal(t, "n1", *account.ProviderID)
}

func TestLinkAccountExpiredLinkToken(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.join(t, "shared@example.com")

	pending, err := h.identity.SignIn(ctx, naverProfile("n1", "shared@example.com"))
	require.NoError(t, err)

	h.clock.Advance(testAccessTTL)
	_, err = h.identity.LinkAccount(ctx, pending.LinkToken)
	require.ErrorIs(t, err, model.ErrTokenExpired)
}

func TestSignInInactiveAccount(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	login, err := h.identity.SignIn(ctx, naverProfile("n1", "a@example.com"))
	require.NoError(t, err)
	require.NoError(t, h.repo.UpdateStatus(ctx, login.User.ID, model.StatusSuspended))

	_, err = h.identity.SignIn(ctx, naverProfile("n1", "a@example.com"))
	require.ErrorIs(t, err, model.ErrAccountInactive)

	// A suspended account cannot be the target of a link either.
	local := h.join(t, "local@example.com")
	require.NoError(t, h.repo.UpdateStatus(ctx, local.User.ID, model.StatusSuspended))
	_, err = h.identity.SignIn(ctx, naverProfile("n9", "local@example.com"))
	require.ErrorIs(t, err, model.ErrAccountInactive)
}

// racingAccounts lets a competing callback insert the same identity just
// before our own insert lands.
type racingAccounts struct {
	*repository.MemoryUserRepository
	once sync.Once
}

func (r *racingAccounts) Create(ctx context.Context, account *model.Account) error {
	raced := false
	r.once.Do(func() {
		competitor := *account
		raced = r.MemoryUserRepository.Create(ctx, &competitor) == nil
	})
	if raced {
		return model.ErrUserAlreadyExists.WithDetails("users_provider_identity_key")
	}
	return r.MemoryUserRepository.Create(ctx, account)
}

func TestSignInConcurrentFirstVisitResolvesToExistingAccount(t *testing.T) {
	h := newHarness(t, withAccountStore(func(repo *repository.MemoryUserRepository) AccountStore {
		return &racingAccounts{MemoryUserRepository: repo}
	}))
	ctx := context.Background()

	login, err := h.identity.SignIn(ctx, naverProfile("n1", "a@example.com"))
	require.NoError(t, err)
	require.NotNil(t, login.Tokens)

	account, err := h.repo.FindByProvider(ctx, model.ProviderNaver, "n1")
	require.NoError(t, err)
	require.Equal(t, account.ID, login.User.ID)
}

func TestHandleCallback(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.provider.add("code-1", naverProfile("n1", "a@example.com"))

	login, err := h.identity.HandleCallback(ctx, "naver", "code-1", "state")
	require.NoError(t, err)
	require.NotNil(t, login.Tokens)

	_, err = h.identity.HandleCallback(ctx, "naver", "unknown", "state")
	require.ErrorIs(t, err, model.ErrOAuthExchange)

	_, err = h.identity.HandleCallback(ctx, "naver", " ", "state")
	require.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestProviderLookup(t *testing.T) {
	h := newHarness(t)

	for _, name := range []string{"kakao", "local", "LOCAL", ""} {
		_, err := h.identity.Provider(name)
		require.ErrorIs(t, err, model.ErrUnsupportedProvider, name)
	}

	url, err := h.identity.AuthURL("NAVER", "abc")
	require.NoError(t, err)
	require.Contains(t, url, "state=abc")
}

func TestSignInAccountStoreOutage(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.identity.SignIn(ctx, naverProfile("n1", "a@example.com"))
	require.ErrorIs(t, err, model.ErrUpstreamUnavailable)
}
