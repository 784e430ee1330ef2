package token

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"session-auth/internal/model"
)

const testSecret = "0123456789abcdef0123456789abcdef0123456789abcdef"

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestCodec(t *testing.T) (*Codec, *fakeClock) {
	t.Helper()

	codec, err := NewCodec(testSecret, "session-auth-test")
	require.NoError(t, err)

	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	return codec.WithClock(clock.Now), clock
}

func TestNewCodecValidation(t *testing.T) {
	t.Parallel()

	_, err := NewCodec("short", "issuer")
	require.Error(t, err)

	_, err = NewCodec(testSecret, "")
	require.Error(t, err)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	image := "https://cdn.example.com/profile/7.png"
	cases := []struct {
		name   string
		claims Claims
		ttl    time.Duration
	}{
		{name: "with profile image", claims: Claims{UserID: 7, Nickname: "alice", ProfileImage: &image, Role: model.RoleStudent}, ttl: 2 * time.Hour},
		{name: "nil profile image", claims: Claims{UserID: 9007199254740993, Nickname: "bob"}, ttl: time.Minute},
		{name: "unicode nickname", claims: Claims{UserID: 42, Nickname: "영진"}, ttl: 7 * 24 * time.Hour},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			codec, clock := newTestCodec(t)

			issued, err := codec.Encode(tc.claims, tc.ttl)
			require.NoError(t, err)
			require.Equal(t, tc.ttl, issued.Claims.ExpiresAt.Sub(issued.Claims.IssuedAt))

			clock.Advance(tc.ttl - time.Second)

			decoded, err := codec.Decode(issued.Token)
			require.NoError(t, err)
			require.Equal(t, tc.claims.UserID, decoded.UserID)
			require.Equal(t, tc.claims.Nickname, decoded.Nickname)
			require.Equal(t, tc.claims.ProfileImage, decoded.ProfileImage)
			require.Equal(t, tc.claims.Role, decoded.Role)
			require.Equal(t, issued.Claims.TokenID, decoded.TokenID)
			require.True(t, issued.Claims.IssuedAt.Equal(decoded.IssuedAt))
			require.True(t, issued.Claims.ExpiresAt.Equal(decoded.ExpiresAt))
		})
	}
}

func TestDecodeExpiredIsNotMalformed(t *testing.T) {
	t.Parallel()

	codec, clock := newTestCodec(t)
	issued, err := codec.Mint(model.Principal{UserID: 3, Nickname: "carol"}, time.Minute)
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)

	_, err = codec.Decode(issued.Token)
	require.ErrorIs(t, err, model.ErrTokenExpired)
	require.NotErrorIs(t, err, model.ErrTokenMalformed)

	claims, err := codec.DecodeIgnoringExpiry(issued.Token)
	require.NoError(t, err)
	require.Equal(t, int64(3), claims.UserID)
}

func TestDecodeFlippedSignatureIsMalformed(t *testing.T) {
	t.Parallel()

	codec, _ := newTestCodec(t)
	issued, err := codec.Mint(model.Principal{UserID: 5, Nickname: "dave"}, time.Hour)
	require.NoError(t, err)

	parts := strings.Split(issued.Token, ".")
	require.Len(t, parts, 3)
	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	require.NoError(t, err)
	sig[0] ^= 0x01
	tampered := parts[0] + "." + parts[1] + "." + base64.RawURLEncoding.EncodeToString(sig)

	_, err = codec.Decode(tampered)
	require.ErrorIs(t, err, model.ErrTokenMalformed)

	_, err = codec.DecodeIgnoringExpiry(tampered)
	require.ErrorIs(t, err, model.ErrTokenMalformed)
}

func TestDecodeExpiredWithBadSignatureIsMalformed(t *testing.T) {
	t.Parallel()

	codec, clock := newTestCodec(t)
	other, err := NewCodec(strings.Repeat("z", 48), "session-auth-test")
	require.NoError(t, err)
	other = other.WithClock(clock.Now)

	issued, err := other.Mint(model.Principal{UserID: 5}, time.Minute)
	require.NoError(t, err)
	clock.Advance(time.Hour)

	_, err = codec.Decode(issued.Token)
	require.ErrorIs(t, err, model.ErrTokenMalformed)
}

func TestDecodeRejectsForeignShapes(t *testing.T) {
	t.Parallel()

	codec, clock := newTestCodec(t)
	sign := func(method jwt.SigningMethod, claims jwt.Claims) string {
		signed, err := jwt.NewWithClaims(method, claims).SignedString([]byte(testSecret))
		require.NoError(t, err)
		return signed
	}
	registered := func(subject string, issuer string) jwt.RegisteredClaims {
		return jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(clock.Now()),
			ExpiresAt: jwt.NewNumericDate(clock.Now().Add(time.Hour)),
		}
	}

	cases := map[string]string{
		"garbage":             "not-a-token",
		"empty":               "",
		"non numeric subject": sign(jwt.SigningMethodHS512, registered("alice", "session-auth-test")),
		"negative subject":    sign(jwt.SigningMethodHS512, registered("-4", "session-auth-test")),
		"wrong issuer":        sign(jwt.SigningMethodHS512, registered("4", "someone-else")),
		"wrong algorithm":     sign(jwt.SigningMethodHS256, registered("4", "session-auth-test")),
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := codec.Decode(raw)
			require.ErrorIs(t, err, model.ErrTokenMalformed)
		})
	}
}

func TestTokensMintedInSameSecondDiffer(t *testing.T) {
	t.Parallel()

	codec, _ := newTestCodec(t)
	principal := model.Principal{UserID: 11, Nickname: "erin"}

	first, err := codec.Mint(principal, time.Hour)
	require.NoError(t, err)
	second, err := codec.Mint(principal, time.Hour)
	require.NoError(t, err)

	require.NotEqual(t, first.Token, second.Token)
}

func TestMintLinkCarriesPendingIdentity(t *testing.T) {
	t.Parallel()

	codec, _ := newTestCodec(t)
	issued, err := codec.MintLink(model.Principal{UserID: 2, Nickname: "frank"}, model.ProviderNaver, "n1", 10*time.Minute)
	require.NoError(t, err)

	claims, err := codec.Decode(issued.Token)
	require.NoError(t, err)
	require.Equal(t, ScopeLink, claims.Scope)
	require.Equal(t, model.ProviderNaver, claims.LinkProvider)
	require.Equal(t, "n1", claims.LinkProviderID)
}
