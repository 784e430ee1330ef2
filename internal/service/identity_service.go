package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"session-auth/internal/event"
	"session-auth/internal/metrics"
	"session-auth/internal/model"
	"session-auth/internal/token"
	"session-auth/internal/util"
)

// Match is the single decision taken for an OAuth identity.
type Match string

const (
	MatchExact          Match = "exact_match"
	MatchEmailCollision Match = "email_collision"
	MatchNone           Match = "no_match"
)

// Resolution carries the matched account for MatchExact and MatchEmailCollision.
type Resolution struct {
	Match   Match
	Account model.Account
}

// OAuthProvider performs the provider half of an authorization-code login.
// Exchange errors are model.ErrOAuthExchange.
type OAuthProvider interface {
	Name() model.Provider
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string, state string) (model.ProviderProfile, error)
}

// IdentityService reconciles provider identities with accounts. An email
// that already belongs to an account under another identity is never merged
// automatically: the caller gets a link token and must confirm with LinkAccount.
type IdentityService struct {
	accounts  AccountStore
	issuer    *SessionIssuer
	codec     *token.Codec
	linkTTL   time.Duration
	providers map[model.Provider]OAuthProvider
	filter    NicknameFilter
	bus       event.Bus
	metrics   metrics.Recorder
}

func NewIdentityService(
	accounts AccountStore,
	issuer *SessionIssuer,
	codec *token.Codec,
	linkTTL time.Duration,
	filter NicknameFilter,
	bus event.Bus,
	recorder metrics.Recorder,
	providers ...OAuthProvider,
) *IdentityService {
	if linkTTL <= 0 {
		linkTTL = 10 * time.Minute
	}
	if recorder == nil {
		recorder = metrics.Nop{}
	}

	registry := make(map[model.Provider]OAuthProvider, len(providers))
	for _, provider := range providers {
		registry[provider.Name()] = provider
	}

	return &IdentityService{
		accounts:  accounts,
		issuer:    issuer,
		codec:     codec,
		linkTTL:   linkTTL,
		providers: registry,
		filter:    filter,
		bus:       bus,
		metrics:   recorder,
	}
}

func (s *IdentityService) Provider(raw string) (OAuthProvider, error) {
	name, ok := model.ParseProvider(raw)
	if !ok || name == model.ProviderLocal {
		return nil, model.ErrUnsupportedProvider.WithDetails(raw)
	}
	provider, ok := s.providers[name]
	if !ok {
		return nil, model.ErrUnsupportedProvider.WithDetails(raw)
	}
	return provider, nil
}

func (s *IdentityService) AuthURL(providerName string, state string) (string, error) {
	provider, err := s.Provider(providerName)
	if err != nil {
		return "", err
	}
	return provider.AuthCodeURL(state), nil
}

// HandleCallback exchanges the authorization code and resolves the identity.
func (s *IdentityService) HandleCallback(ctx context.Context, providerName string, code string, state string) (model.OAuthLogin, error) {
	provider, err := s.Provider(providerName)
	if err != nil {
		return model.OAuthLogin{}, err
	}
	if strings.TrimSpace(code) == "" {
		return model.OAuthLogin{}, model.ErrInvalidInput.WithDetails("authorization code is required")
	}

	profile, err := provider.Exchange(ctx, code, state)
	if err != nil {
		return model.OAuthLogin{}, err
	}
	profile.Provider = provider.Name()

	return s.SignIn(ctx, profile)
}

// Resolve classifies profile against the account store.
func (s *IdentityService) Resolve(ctx context.Context, profile model.ProviderProfile) (Resolution, error) {
	account, err := s.accounts.FindByProvider(ctx, profile.Provider, profile.ProviderID)
	if err == nil {
		return Resolution{Match: MatchExact, Account: account}, nil
	}
	if !errors.Is(err, model.ErrUserNotFound) {
		return Resolution{}, err
	}

	// Same email under any other identity, including the same provider
	// with a different providerId, needs explicit confirmation.
	account, err = s.accounts.FindByEmail(ctx, profile.Email)
	if err == nil {
		return Resolution{Match: MatchEmailCollision, Account: account}, nil
	}
	if !errors.Is(err, model.ErrUserNotFound) {
		return Resolution{}, err
	}

	return Resolution{Match: MatchNone}, nil
}

// SignIn acts on the resolution of an already exchanged profile.
func (s *IdentityService) SignIn(ctx context.Context, profile model.ProviderProfile) (model.OAuthLogin, error) {
	if profile.ProviderID == "" {
		return model.OAuthLogin{}, model.ErrOAuthExchange.WithDetails("provider returned no user id")
	}
	email, err := util.NormalizeEmail(profile.Email)
	if err != nil {
		return model.OAuthLogin{}, model.ErrOAuthExchange.WithDetails("provider returned no usable email")
	}
	profile.Email = email

	// A concurrent callback for the same identity may create the account
	// between our resolve and our insert; the second pass then sees it.
	for attempt := 0; attempt < 2; attempt++ {
		resolution, err := s.Resolve(ctx, profile)
		if err != nil {
			return model.OAuthLogin{}, err
		}
		s.metrics.RecordIdentityResolution(string(resolution.Match))

		switch resolution.Match {
		case MatchExact:
			return s.openSession(ctx, resolution.Account, profile.Provider)
		case MatchEmailCollision:
			return s.requireLink(ctx, resolution.Account, profile)
		case MatchNone:
			account, err := s.createAccount(ctx, profile)
			if errors.Is(err, model.ErrUserAlreadyExists) {
				slog.Info("concurrent account creation detected; resolving again", "provider", profile.Provider)
				continue
			}
			if err != nil {
				return model.OAuthLogin{}, err
			}
			return s.openSession(ctx, account, profile.Provider)
		}
	}

	return model.OAuthLogin{}, fmt.Errorf("resolve %s identity: account vanished after duplicate insert", profile.Provider)
}

// LinkAccount writes the pending identity of a link token onto its account
// and logs it in. Only one of several concurrent calls can win; the rest get
// model.ErrProviderAlreadyLinked.
func (s *IdentityService) LinkAccount(ctx context.Context, linkToken string) (model.OAuthLogin, error) {
	claims, err := s.codec.Decode(strings.TrimSpace(linkToken))
	if err != nil {
		return model.OAuthLogin{}, err
	}
	if claims.Scope != token.ScopeLink || claims.LinkProviderID == "" {
		return model.OAuthLogin{}, model.ErrTokenMalformed.WithDetails("not a link token")
	}

	linked, err := s.accounts.LinkProvider(ctx, claims.UserID, claims.LinkProvider, claims.LinkProviderID)
	if err == nil && !linked {
		err = model.ErrProviderAlreadyLinked
	}
	if err != nil {
		if errors.Is(err, model.ErrProviderAlreadyLinked) {
			publish(ctx, s.bus, event.TypeLinkRejected, claims.UserID, err, map[string]any{"provider": string(claims.LinkProvider)})
		}
		return model.OAuthLogin{}, err
	}
	publish(ctx, s.bus, event.TypeIdentityLinked, claims.UserID, nil, map[string]any{"provider": string(claims.LinkProvider)})

	account, err := s.accounts.FindByID(ctx, claims.UserID)
	if err != nil {
		return model.OAuthLogin{}, err
	}
	return s.openSession(ctx, account, claims.LinkProvider)
}

func (s *IdentityService) openSession(ctx context.Context, account model.Account, via model.Provider) (model.OAuthLogin, error) {
	if account.Status != model.StatusActive {
		s.metrics.RecordLogin(string(via), model.ErrAccountInactive.Code)
		return model.OAuthLogin{}, model.ErrAccountInactive.WithDetails(string(account.Status))
	}

	pair, err := s.issuer.Open(ctx, account)
	s.metrics.RecordLogin(string(via), metrics.Outcome(err))
	if err != nil {
		return model.OAuthLogin{}, err
	}
	publish(ctx, s.bus, event.TypeLoggedIn, account.ID, nil, map[string]any{"provider": string(via)})

	return model.OAuthLogin{Tokens: &pair, User: account.Info()}, nil
}

func (s *IdentityService) requireLink(ctx context.Context, account model.Account, profile model.ProviderProfile) (model.OAuthLogin, error) {
	if account.Status != model.StatusActive {
		return model.OAuthLogin{}, model.ErrAccountInactive.WithDetails(string(account.Status))
	}

	issued, err := s.codec.MintLink(account.Principal(), profile.Provider, profile.ProviderID, s.linkTTL)
	if err != nil {
		return model.OAuthLogin{}, fmt.Errorf("mint link token: %w", err)
	}
	publish(ctx, s.bus, event.TypeLinkRequired, account.ID, nil, map[string]any{"provider": string(profile.Provider)})

	return model.OAuthLogin{NeedsLinking: true, LinkToken: issued.Token, User: account.Info()}, nil
}

func (s *IdentityService) createAccount(ctx context.Context, profile model.ProviderProfile) (model.Account, error) {
	providerID := profile.ProviderID
	account := model.Account{
		Email:        profile.Email,
		Nickname:     s.nicknameFor(profile.DisplayName),
		ProfileImage: profile.ProfileImage,
		Role:         model.RoleStudent,
		Provider:     profile.Provider,
		ProviderID:   &providerID,
		Status:       model.StatusActive,
	}
	if err := s.accounts.Create(ctx, &account); err != nil {
		return model.Account{}, err
	}
	publish(ctx, s.bus, event.TypeAccountCreated, account.ID, nil, map[string]any{"provider": string(account.Provider)})

	return account, nil
}

// nicknameFor keeps the provider display name when it passes the local
// rules and falls back to a generated one otherwise.
func (s *IdentityService) nicknameFor(displayName string) string {
	nickname, err := util.NormalizeNickname(displayName)
	if err == nil && (s.filter == nil || !s.filter.Contains(nickname)) {
		return nickname
	}
	return "user" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
