package session

import (
	"context"
	"strconv"
	"time"
)

type Kind string

const (
	KindAccess  Kind = "accessToken"
	KindRefresh Kind = "refreshToken"
)

// Key renders the store key for a binding, e.g. "accessToken:42".
func Key(userID int64, kind Kind) string {
	return string(kind) + ":" + strconv.FormatInt(userID, 10)
}

// Store holds at most one token per (user, kind). Bind overwrites
// unconditionally; it is not compare-and-swap, so concurrent binds for the
// same key leave whichever write lands last.
type Store interface {
	Bind(ctx context.Context, userID int64, kind Kind, token string, ttl time.Duration) error
	Lookup(ctx context.Context, userID int64, kind Kind) (string, bool, error)
	Unbind(ctx context.Context, userID int64, kind Kind) error
}
