package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"session-auth/internal/model"
	"session-auth/internal/token"
)

// Observer receives the latency and outcome of every store round-trip.
type Observer interface {
	ObserveSessionStore(op string, duration time.Duration, err error)
}

// Manager is the session-binding API used by the rest of the service. It
// bounds every store call with a timeout, reports failures as
// model.ErrUpstreamUnavailable, and derives each binding's TTL from the
// token's own expiry so an entry never outlives its token.
type Manager struct {
	store    Store
	timeout  time.Duration
	now      func() time.Time
	observer Observer
}

func NewManager(store Store, timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Manager{store: store, timeout: timeout, now: time.Now}
}

func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

func (m *Manager) WithObserver(observer Observer) *Manager {
	m.observer = observer
	return m
}

// Bind stores token as the one valid token of its kind for userID, superseding any previous one.
func (m *Manager) Bind(ctx context.Context, userID int64, kind Kind, tokenString string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(m.now())
	if ttl <= 0 {
		// Already dead; make sure nothing older stays bound.
		return m.Unbind(ctx, userID, kind)
	}

	return m.call(ctx, "bind", func(ctx context.Context) error {
		return m.store.Bind(ctx, userID, kind, tokenString, ttl)
	})
}

func (m *Manager) BindIssued(ctx context.Context, kind Kind, issued token.Issued) error {
	return m.Bind(ctx, issued.Claims.UserID, kind, issued.Token, issued.Claims.ExpiresAt)
}

// BindPair binds access and refresh for the same user. The two writes are
// independent; a failure between them leaves the new access token bound next
// to the old refresh token.
func (m *Manager) BindPair(ctx context.Context, access token.Issued, refresh token.Issued) error {
	if access.Claims.UserID != refresh.Claims.UserID {
		return fmt.Errorf("bind pair: access and refresh belong to different users (%d, %d)", access.Claims.UserID, refresh.Claims.UserID)
	}
	if err := m.BindIssued(ctx, KindAccess, access); err != nil {
		return err
	}
	return m.BindIssued(ctx, KindRefresh, refresh)
}

func (m *Manager) Lookup(ctx context.Context, userID int64, kind Kind) (string, bool, error) {
	var (
		value string
		found bool
	)
	err := m.call(ctx, "lookup", func(ctx context.Context) error {
		var err error
		value, found, err = m.store.Lookup(ctx, userID, kind)
		return err
	})
	return value, found, err
}

func (m *Manager) Unbind(ctx context.Context, userID int64, kind Kind) error {
	return m.call(ctx, "unbind", func(ctx context.Context) error {
		return m.store.Unbind(ctx, userID, kind)
	})
}

// Revoke drops both bindings of a user, e.g. on logout or account deletion.
func (m *Manager) Revoke(ctx context.Context, userID int64) error {
	if err := m.Unbind(ctx, userID, KindAccess); err != nil {
		return err
	}
	return m.Unbind(ctx, userID, KindRefresh)
}

func (m *Manager) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	started := time.Now()
	err := fn(callCtx)
	if m.observer != nil {
		m.observer.ObserveSessionStore(op, time.Since(started), err)
	}
	if err == nil {
		return nil
	}
	if errors.Is(err, model.ErrUpstreamUnavailable) {
		return err
	}
	return fmt.Errorf("session store %s: %w: %w", op, model.ErrUpstreamUnavailable, err)
}
