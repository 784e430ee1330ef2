package service

import (
	"context"
	"fmt"
	"time"

	"session-auth/internal/model"
	"session-auth/internal/session"
	"session-auth/internal/token"
)

// SessionIssuer mints tokens for an account and binds them, which makes
// them the only valid tokens for that user.
type SessionIssuer struct {
	codec      *token.Codec
	sessions   *session.Manager
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewSessionIssuer(codec *token.Codec, sessions *session.Manager, accessTTL time.Duration, refreshTTL time.Duration) (*SessionIssuer, error) {
	if accessTTL <= 0 || refreshTTL <= accessTTL {
		return nil, fmt.Errorf("refresh ttl (%s) must be longer than access ttl (%s)", refreshTTL, accessTTL)
	}

	return &SessionIssuer{codec: codec, sessions: sessions, accessTTL: accessTTL, refreshTTL: refreshTTL}, nil
}

func (i *SessionIssuer) RefreshTTL() time.Duration {
	return i.refreshTTL
}

// Open mints and binds a fresh access/refresh pair, superseding whatever
// session the account had.
func (i *SessionIssuer) Open(ctx context.Context, account model.Account) (model.TokenPair, error) {
	principal, err := model.NewPrincipal(account.ID, account.Nickname, account.ProfileImage, account.Role)
	if err != nil {
		return model.TokenPair{}, err
	}

	access, err := i.codec.Mint(principal, i.accessTTL)
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("mint access token: %w", err)
	}
	refresh, err := i.codec.Mint(principal, i.refreshTTL)
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("mint refresh token: %w", err)
	}

	if err := i.sessions.BindPair(ctx, access, refresh); err != nil {
		return model.TokenPair{}, err
	}

	return model.TokenPair{
		AccessToken:      access.Token,
		RefreshToken:     refresh.Token,
		TokenType:        "Bearer",
		ExpiresIn:        int64(i.accessTTL.Seconds()),
		RefreshExpiresIn: int64(i.refreshTTL.Seconds()),
		User:             account.Info(),
	}, nil
}

// ReissueAccess replaces only the access token, e.g. after a profile change
// so the claims carry the new display data. The refresh binding is kept.
func (i *SessionIssuer) ReissueAccess(ctx context.Context, account model.Account) (token.Issued, error) {
	principal, err := model.NewPrincipal(account.ID, account.Nickname, account.ProfileImage, account.Role)
	if err != nil {
		return token.Issued{}, err
	}

	access, err := i.codec.Mint(principal, i.accessTTL)
	if err != nil {
		return token.Issued{}, fmt.Errorf("mint access token: %w", err)
	}

	if err := i.sessions.BindIssued(ctx, session.KindAccess, access); err != nil {
		return token.Issued{}, err
	}
	return access, nil
}

func (i *SessionIssuer) Close(ctx context.Context, userID int64) error {
	return i.sessions.Revoke(ctx, userID)
}
