package token

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"session-auth/internal/model"
)

// ScopeLink marks a token that may only confirm a pending identity link.
const ScopeLink = "link"

// Claims is the decoded, typed view of a signed token.
type Claims struct {
	UserID       int64
	Nickname     string
	ProfileImage *string
	Role         model.Role
	Scope        string
	// Pending identity of a link-scoped token.
	LinkProvider   model.Provider
	LinkProviderID string
	TokenID        string
	IssuedAt       time.Time
	ExpiresAt      time.Time
}

func (c Claims) Principal() model.Principal {
	return model.Principal{
		UserID:       c.UserID,
		Nickname:     c.Nickname,
		ProfileImage: c.ProfileImage,
		Role:         c.Role,
	}
}

// Issued pairs a signed token with the claims it carries.
type Issued struct {
	Token  string
	Claims Claims
}

type payload struct {
	Nickname     string  `json:"nickname"`
	ProfileImage *string `json:"profileImage"`
	Role         string  `json:"role,omitempty"`
	Scope        string  `json:"scope,omitempty"`
	Provider     string  `json:"provider,omitempty"`
	ProviderID   string  `json:"providerId,omitempty"`
	jwt.RegisteredClaims
}

type Codec struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewCodec(secret string, issuer string) (*Codec, error) {
	if len(secret) < 32 {
		return nil, errors.New("token secret must be at least 32 bytes")
	}
	if issuer == "" {
		return nil, errors.New("token issuer is required")
	}

	return &Codec{secret: []byte(secret), issuer: issuer, now: time.Now}, nil
}

// WithClock returns a copy of the codec that reads time from now.
func (c *Codec) WithClock(now func() time.Time) *Codec {
	copied := *c
	copied.now = now
	return &copied
}

func (c *Codec) Now() time.Time {
	return c.now()
}

// Encode signs claims with HS512. IssuedAt is set to the current second and
// ExpiresAt to IssuedAt+ttl; a missing TokenID is generated.
func (c *Codec) Encode(claims Claims, ttl time.Duration) (Issued, error) {
	if claims.UserID <= 0 {
		return Issued{}, fmt.Errorf("encode token: user id must be positive, got %d", claims.UserID)
	}
	if ttl <= 0 {
		return Issued{}, fmt.Errorf("encode token: ttl must be positive, got %s", ttl)
	}

	claims.IssuedAt = c.now().UTC().Truncate(time.Second)
	claims.ExpiresAt = claims.IssuedAt.Add(ttl)
	if claims.TokenID == "" {
		claims.TokenID = uuid.NewString()
	}

	body := payload{
		Nickname:     claims.Nickname,
		ProfileImage: claims.ProfileImage,
		Role:         string(claims.Role),
		Scope:        claims.Scope,
		Provider:     string(claims.LinkProvider),
		ProviderID:   claims.LinkProviderID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   strconv.FormatInt(claims.UserID, 10),
			IssuedAt:  jwt.NewNumericDate(claims.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
			ID:        claims.TokenID,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS512, body).SignedString(c.secret)
	if err != nil {
		return Issued{}, fmt.Errorf("sign token: %w", err)
	}

	return Issued{Token: signed, Claims: claims}, nil
}

func (c *Codec) Mint(principal model.Principal, ttl time.Duration) (Issued, error) {
	return c.Encode(Claims{
		UserID:       principal.UserID,
		Nickname:     principal.Nickname,
		ProfileImage: principal.ProfileImage,
		Role:         principal.Role,
	}, ttl)
}

func (c *Codec) MintLink(principal model.Principal, provider model.Provider, providerID string, ttl time.Duration) (Issued, error) {
	return c.Encode(Claims{
		UserID:         principal.UserID,
		Nickname:       principal.Nickname,
		ProfileImage:   principal.ProfileImage,
		Role:           principal.Role,
		Scope:          ScopeLink,
		LinkProvider:   provider,
		LinkProviderID: providerID,
	}, ttl)
}

// Decode verifies the signature and expiry. The error is model.ErrTokenExpired
// only for an authentic token past its expiry; anything else is
// model.ErrTokenMalformed.
func (c *Codec) Decode(tokenString string) (Claims, error) {
	return c.decode(tokenString, true)
}

// DecodeIgnoringExpiry verifies signature, issuer and subject but accepts an expired token.
func (c *Codec) DecodeIgnoringExpiry(tokenString string) (Claims, error) {
	return c.decode(tokenString, false)
}

func (c *Codec) decode(tokenString string, checkExpiry bool) (Claims, error) {
	if tokenString == "" {
		return Claims{}, model.ErrTokenMalformed.WithDetails("empty token")
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}),
		jwt.WithTimeFunc(c.now),
	}
	if checkExpiry {
		options = append(options, jwt.WithIssuer(c.issuer), jwt.WithExpirationRequired(), jwt.WithIssuedAt())
	} else {
		options = append(options, jwt.WithoutClaimsValidation())
	}

	var body payload
	_, err := jwt.ParseWithClaims(tokenString, &body, func(_ *jwt.Token) (interface{}, error) {
		return c.secret, nil
	}, options...)
	if err != nil {
		// The parser verifies the signature before validating claims, so an
		// expiry error implies an authentic token.
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, model.ErrTokenExpired
		}
		return Claims{}, model.ErrTokenMalformed.WithDetails(err.Error())
	}

	if !checkExpiry && body.Issuer != c.issuer {
		return Claims{}, model.ErrTokenMalformed.WithDetails("unexpected issuer")
	}

	userID, err := strconv.ParseInt(body.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return Claims{}, model.ErrTokenMalformed.WithDetails("subject is not a user id")
	}

	claims := Claims{
		UserID:         userID,
		Nickname:       body.Nickname,
		ProfileImage:   body.ProfileImage,
		Role:           model.Role(body.Role),
		Scope:          body.Scope,
		LinkProvider:   model.Provider(body.Provider),
		LinkProviderID: body.ProviderID,
		TokenID:        body.ID,
	}
	if body.IssuedAt != nil {
		claims.IssuedAt = body.IssuedAt.Time.UTC()
	}
	if body.ExpiresAt != nil {
		claims.ExpiresAt = body.ExpiresAt.Time.UTC()
	}

	return claims, nil
}
