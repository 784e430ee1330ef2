package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"session-auth/internal/event"
	"session-auth/internal/metrics"
	"session-auth/internal/model"
	"session-auth/internal/session"
	"session-auth/internal/token"
	"session-auth/internal/util"
)

const defaultBcryptCost = 12

type AuthService struct {
	accounts   AccountStore
	issuer     *SessionIssuer
	sessions   *session.Manager
	codec      *token.Codec
	filter     NicknameFilter
	bus        event.Bus
	metrics    metrics.Recorder
	bcryptCost int
	images     profileImages
	verifier   emailVerifier
}

// profileImages attaches an optional image to a newly joined account.
type profileImages interface {
	CheckImage(data []byte) error
	AttachImage(ctx context.Context, userID int64, data []byte) (string, error)
	MaxImageSize() int64
}

type emailVerifier interface {
	IsVerified(ctx context.Context, email string) (bool, error)
	Consume(ctx context.Context, email string) error
}

type AuthOption func(*AuthService)

// WithBcryptCost lowers the hashing cost; tests use bcrypt.MinCost.
func WithBcryptCost(cost int) AuthOption {
	return func(s *AuthService) { s.bcryptCost = cost }
}

// WithProfileImages lets Join accept a profile image.
func WithProfileImages(images *ProfileService) AuthOption {
	return func(s *AuthService) { s.images = images }
}

// WithEmailVerification makes Join require an address verified through
// EmailVerificationService.
func WithEmailVerification(verifier *EmailVerificationService) AuthOption {
	return func(s *AuthService) { s.verifier = verifier }
}

func NewAuthService(
	accounts AccountStore,
	issuer *SessionIssuer,
	sessions *session.Manager,
	codec *token.Codec,
	filter NicknameFilter,
	bus event.Bus,
	recorder metrics.Recorder,
	opts ...AuthOption,
) *AuthService {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	s := &AuthService{
		accounts:   accounts,
		issuer:     issuer,
		sessions:   sessions,
		codec:      codec,
		filter:     filter,
		bus:        bus,
		metrics:    recorder,
		bcryptCost: defaultBcryptCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Join creates a LOCAL account and logs it in.
func (s *AuthService) Join(ctx context.Context, req model.JoinRequest) (model.TokenPair, error) {
	email, err := util.NormalizeEmail(req.Email)
	if err != nil {
		return model.TokenPair{}, err
	}
	if err := util.ValidatePassword(req.Password); err != nil {
		return model.TokenPair{}, err
	}
	nickname, err := s.checkNickname(req.Nickname)
	if err != nil {
		return model.TokenPair{}, err
	}
	if len(req.ProfileImage) > 0 {
		if s.images == nil {
			return model.TokenPair{}, model.ErrInvalidInput.WithDetails("profile images are not accepted at sign-up")
		}
		if err := s.images.CheckImage(req.ProfileImage); err != nil {
			return model.TokenPair{}, err
		}
	}
	if s.verifier != nil {
		verified, err := s.verifier.IsVerified(ctx, email)
		if err != nil {
			return model.TokenPair{}, err
		}
		if !verified {
			return model.TokenPair{}, model.ErrEmailNotVerified
		}
	}

	_, err = s.accounts.FindByEmail(ctx, email)
	if err == nil {
		return model.TokenPair{}, model.ErrUserAlreadyExists.WithDetails(email)
	}
	if !errors.Is(err, model.ErrUserNotFound) {
		return model.TokenPair{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		return model.TokenPair{}, err
	}
	hashed := string(hash)

	account := model.Account{
		Email:        email,
		PasswordHash: &hashed,
		Nickname:     nickname,
		Role:         model.RoleStudent,
		Provider:     model.ProviderLocal,
		Status:       model.StatusActive,
	}
	if err := s.accounts.Create(ctx, &account); err != nil {
		return model.TokenPair{}, err
	}
	publish(ctx, s.bus, event.TypeAccountCreated, account.ID, nil, map[string]any{"provider": string(account.Provider)})

	if s.verifier != nil {
		if err := s.verifier.Consume(ctx, email); err != nil {
			slog.Warn("failed to drop used email verification", "user_id", account.ID, "error", err)
		}
	}
	// The account exists at this point; a failed image only costs the image.
	if len(req.ProfileImage) > 0 {
		url, err := s.images.AttachImage(ctx, account.ID, req.ProfileImage)
		if err != nil {
			slog.Warn("profile image dropped at sign-up", "user_id", account.ID, "error", err)
		} else {
			account.ProfileImage = &url
		}
	}

	pair, err := s.issuer.Open(ctx, account)
	if err != nil {
		return model.TokenPair{}, err
	}
	s.metrics.RecordLogin(string(model.ProviderLocal), "ok")
	publish(ctx, s.bus, event.TypeLoggedIn, account.ID, nil, map[string]any{"provider": string(model.ProviderLocal)})

	return pair, nil
}

// Login refuses with ErrSessionActive while another device holds a live
// access token; ForceLogin supersedes it instead.
func (s *AuthService) Login(ctx context.Context, req model.LoginRequest) (model.TokenPair, error) {
	return s.login(ctx, req, false)
}

func (s *AuthService) ForceLogin(ctx context.Context, req model.LoginRequest) (model.TokenPair, error) {
	return s.login(ctx, req, true)
}

func (s *AuthService) login(ctx context.Context, req model.LoginRequest, force bool) (model.TokenPair, error) {
	pair, err := s.attemptLogin(ctx, req, force)
	s.metrics.RecordLogin(string(model.ProviderLocal), metrics.Outcome(err))
	return pair, err
}

func (s *AuthService) attemptLogin(ctx context.Context, req model.LoginRequest, force bool) (model.TokenPair, error) {
	account, err := s.authenticate(ctx, req)
	if err != nil {
		return model.TokenPair{}, err
	}

	_, active, err := s.sessions.Lookup(ctx, account.ID, session.KindAccess)
	if err != nil {
		return model.TokenPair{}, err
	}
	if active && !force {
		publish(ctx, s.bus, event.TypeLoginRefused, account.ID, model.ErrSessionActive, nil)
		return model.TokenPair{}, model.ErrSessionActive
	}

	pair, err := s.issuer.Open(ctx, account)
	if err != nil {
		return model.TokenPair{}, err
	}

	if active {
		publish(ctx, s.bus, event.TypeSessionSupersede, account.ID, nil, map[string]any{"provider": string(model.ProviderLocal)})
	}
	publish(ctx, s.bus, event.TypeLoggedIn, account.ID, nil, map[string]any{"provider": string(model.ProviderLocal), "forced": force})

	return pair, nil
}

func (s *AuthService) authenticate(ctx context.Context, req model.LoginRequest) (model.Account, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		return model.Account{}, model.ErrInvalidCredentials
	}

	account, err := s.accounts.FindByEmail(ctx, email)
	if errors.Is(err, model.ErrUserNotFound) {
		return model.Account{}, model.ErrInvalidCredentials
	}
	if err != nil {
		return model.Account{}, err
	}

	// OAuth-only accounts have no password to match.
	if account.PasswordHash == nil {
		return model.Account{}, model.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*account.PasswordHash), []byte(req.Password)); err != nil {
		return model.Account{}, model.ErrInvalidCredentials
	}

	if account.Status != model.StatusActive {
		return model.Account{}, model.ErrAccountInactive.WithDetails(string(account.Status))
	}

	return account, nil
}

// Logout drops both bindings; the presented tokens stop working at once.
func (s *AuthService) Logout(ctx context.Context, principal model.Principal) error {
	if err := s.issuer.Close(ctx, principal.UserID); err != nil {
		return err
	}
	publish(ctx, s.bus, event.TypeLoggedOut, principal.UserID, nil, nil)
	return nil
}

// MaxImageSize is the largest sign-up image accepted; zero when images are
// not accepted.
func (s *AuthService) MaxImageSize() int64 {
	if s.images == nil {
		return 0
	}
	return s.images.MaxImageSize()
}

// ChangePassword replaces the local password after checking the current one.
// Live sessions stay bound.
func (s *AuthService) ChangePassword(ctx context.Context, principal model.Principal, req model.PasswordChangeRequest) error {
	account, err := s.accounts.FindByID(ctx, principal.UserID)
	if err != nil {
		return err
	}
	if account.PasswordHash == nil {
		return model.ErrPasswordMismatch.WithDetails("account has no local password")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*account.PasswordHash), []byte(req.CurrentPassword)); err != nil {
		publish(ctx, s.bus, event.TypePasswordChanged, account.ID, model.ErrPasswordMismatch, nil)
		return model.ErrPasswordMismatch
	}
	if err := util.ValidatePassword(req.NewPassword); err != nil {
		return err
	}
	if req.NewPassword == req.CurrentPassword {
		return model.ErrInvalidInput.WithDetails("new password must differ from the current one")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), s.bcryptCost)
	if err != nil {
		return err
	}
	if err := s.accounts.UpdatePassword(ctx, account.ID, string(hash)); err != nil {
		return err
	}

	publish(ctx, s.bus, event.TypePasswordChanged, account.ID, nil, nil)
	return nil
}

func (s *AuthService) Me(ctx context.Context, principal model.Principal) (model.MeResponse, error) {
	account, err := s.accounts.FindByID(ctx, principal.UserID)
	if err != nil {
		return model.MeResponse{}, err
	}

	return model.MeResponse{Principal: principal, Account: account.Info()}, nil
}

// ValidateToken is a codec-only check: no session or account lookup.
func (s *AuthService) ValidateToken(raw string) model.ValidateTokenResponse {
	claims, err := s.codec.Decode(strings.TrimSpace(raw))
	switch {
	case err == nil && claims.Scope == "":
		return model.ValidateTokenResponse{Valid: true, Status: "valid"}
	case errors.Is(err, model.ErrTokenExpired):
		return model.ValidateTokenResponse{Valid: false, Status: "expired"}
	default:
		return model.ValidateTokenResponse{Valid: false, Status: "malformed"}
	}
}

func (s *AuthService) checkNickname(raw string) (string, error) {
	nickname, err := util.NormalizeNickname(raw)
	if err != nil {
		return "", err
	}
	if s.filter != nil && s.filter.Contains(nickname) {
		slog.Info("nickname rejected by word filter")
		return "", model.ErrNicknameRejected
	}
	return nickname, nil
}
