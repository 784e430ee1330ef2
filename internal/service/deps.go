package service

import (
	"context"

	"session-auth/internal/event"
	"session-auth/internal/model"
)

// AccountStore is the relational account store. Lookups return
// model.ErrUserNotFound when nothing matches; transport failures and
// timeouts wrap model.ErrUpstreamUnavailable.
type AccountStore interface {
	FindByID(ctx context.Context, id int64) (model.Account, error)
	FindByEmail(ctx context.Context, email string) (model.Account, error)
	FindByProvider(ctx context.Context, provider model.Provider, providerID string) (model.Account, error)
	FindStatusByID(ctx context.Context, id int64) (model.Status, error)
	Create(ctx context.Context, account *model.Account) error
	UpdateNickname(ctx context.Context, id int64, nickname string) error
	UpdateProfileImage(ctx context.Context, id int64, url string) error
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
	UpdateStatus(ctx context.Context, id int64, status model.Status) error
	// LinkProvider writes provider fields only while the account is LOCAL
	// and reports whether it did.
	LinkProvider(ctx context.Context, id int64, provider model.Provider, providerID string) (bool, error)
}

// Uploader is the object storage used for profile images.
type Uploader interface {
	Upload(ctx context.Context, key string, contentType string, data []byte) (string, error)
	Remove(ctx context.Context, key string) error
	// KeyFor maps a URL returned by Upload back to its key.
	KeyFor(url string) (string, bool)
}

// Mailer delivers transactional mail.
type Mailer interface {
	Send(ctx context.Context, to string, subject string, body string) error
}

// VerificationStore keeps one email verification per address. Find returns
// model.ErrVerificationNotFound when nothing is pending.
type VerificationStore interface {
	Find(ctx context.Context, email string) (model.EmailVerification, error)
	Save(ctx context.Context, v model.EmailVerification) error
	MarkVerified(ctx context.Context, email string) error
	Delete(ctx context.Context, email string) error
}

// NicknameFilter reports whether a nickname contains a banned word.
type NicknameFilter interface {
	Contains(text string) bool
}

func publish(ctx context.Context, bus event.Bus, typ event.Type, actorID int64, failure error, payload map[string]any) {
	if bus == nil {
		return
	}
	if payload == nil {
		payload = map[string]any{}
	}
	if ip := event.ClientIP(ctx); ip != "" {
		payload["ip"] = ip
	}
	if failure != nil {
		payload["error"] = failure.Error()
	}

	bus.Publish(event.Event{Type: typ, ActorID: actorID, Failed: failure != nil, Payload: payload})
}
