package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"strings"

	"session-auth/internal/event"
	"session-auth/internal/metrics"
	"session-auth/internal/model"
	"session-auth/internal/session"
	"session-auth/internal/token"
)

// RefreshService rotates the access/refresh pair.
//
// The lookup of the bound refresh token and the rebind of the new pair are
// two separate store calls. A second refresh presenting the same cookie after
// the first one has rebound is rejected; two refreshes whose lookups both
// land before either rebind both succeed, and the later bind wins.
type RefreshService struct {
	accounts AccountStore
	issuer   *SessionIssuer
	sessions *session.Manager
	codec    *token.Codec
	bus      event.Bus
	metrics  metrics.Recorder
}

func NewRefreshService(accounts AccountStore, issuer *SessionIssuer, sessions *session.Manager, codec *token.Codec, bus event.Bus, recorder metrics.Recorder) *RefreshService {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &RefreshService{
		accounts: accounts,
		issuer:   issuer,
		sessions: sessions,
		codec:    codec,
		bus:      bus,
		metrics:  recorder,
	}
}

// Refresh accepts an access token that may be expired but must carry a valid
// signature, plus the refresh token from the cookie.
func (s *RefreshService) Refresh(ctx context.Context, accessToken string, refreshToken string) (model.TokenPair, error) {
	pair, userID, err := s.refresh(ctx, strings.TrimSpace(accessToken), strings.TrimSpace(refreshToken))
	s.metrics.RecordRefresh(metrics.Outcome(err))

	switch {
	case err == nil:
		publish(ctx, s.bus, event.TypeTokenRefreshed, userID, nil, nil)
	case errors.Is(err, model.ErrRefreshRejected), errors.Is(err, model.ErrAccountInactive):
		publish(ctx, s.bus, event.TypeRefreshRejected, userID, err, nil)
	}
	return pair, err
}

func (s *RefreshService) refresh(ctx context.Context, accessToken string, refreshToken string) (model.TokenPair, int64, error) {
	claims, err := s.codec.DecodeIgnoringExpiry(accessToken)
	if err != nil {
		var details string
		if errors.Is(err, model.ErrTokenMalformed) {
			details = "access token signature could not be verified"
		}
		return model.TokenPair{}, 0, model.ErrTokenInvalid.WithDetails(details)
	}
	if claims.Scope != "" {
		return model.TokenPair{}, claims.UserID, model.ErrTokenInvalid.WithDetails("not a session token")
	}

	if refreshToken == "" {
		return model.TokenPair{}, claims.UserID, model.ErrRefreshRejected
	}

	bound, found, err := s.sessions.Lookup(ctx, claims.UserID, session.KindRefresh)
	if err != nil {
		return model.TokenPair{}, claims.UserID, err
	}
	// Absent and mismatched are reported the same way.
	if !found || subtle.ConstantTimeCompare([]byte(bound), []byte(refreshToken)) != 1 {
		return model.TokenPair{}, claims.UserID, model.ErrRefreshRejected
	}

	// Display data comes from the store, never from the old token.
	account, err := s.accounts.FindByID(ctx, claims.UserID)
	if errors.Is(err, model.ErrUserNotFound) {
		return model.TokenPair{}, claims.UserID, model.ErrRefreshRejected
	}
	if err != nil {
		return model.TokenPair{}, claims.UserID, err
	}

	if account.Status != model.StatusActive {
		if revokeErr := s.issuer.Close(ctx, account.ID); revokeErr != nil {
			slog.Warn("revoke sessions of inactive account failed", "user_id", account.ID, "error", revokeErr)
		}
		return model.TokenPair{}, account.ID, model.ErrAccountInactive.WithDetails(string(account.Status))
	}

	pair, err := s.issuer.Open(ctx, account)
	if err != nil {
		return model.TokenPair{}, account.ID, err
	}
	return pair, account.ID, nil
}
