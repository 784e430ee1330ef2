package model

import (
	"fmt"
	"strings"
	"time"
)

type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusSuspended Status = "SUSPENDED"
	StatusDeleted   Status = "DELETED"
)

type Provider string

const (
	ProviderLocal Provider = "LOCAL"
	ProviderNaver Provider = "NAVER"
)

// ParseProvider accepts the lowercase path form ("naver") as well as the stored form.
func ParseProvider(raw string) (Provider, bool) {
	switch Provider(strings.ToUpper(strings.TrimSpace(raw))) {
	case ProviderLocal:
		return ProviderLocal, true
	case ProviderNaver:
		return ProviderNaver, true
	default:
		return "", false
	}
}

type Role string

const (
	RoleStudent Role = "STUDENT"
	RoleTeacher Role = "TEACHER"
	RoleAdmin   Role = "ADMIN"
)

// Account is the authoritative user record owned by the account store.
type Account struct {
	ID              int64     `json:"id"`
	Email           string    `json:"email"`
	PasswordHash    *string   `json:"-"`
	Nickname        string    `json:"nickname"`
	ProfileImage    *string   `json:"profile_image"`
	Role            Role      `json:"role"`
	Provider        Provider  `json:"provider"`
	ProviderID      *string   `json:"provider_id,omitempty"`
	Status          Status    `json:"status"`
	StatusChangedAt time.Time `json:"status_changed_at"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (a Account) Principal() Principal {
	return Principal{
		UserID:       a.ID,
		Nickname:     a.Nickname,
		ProfileImage: a.ProfileImage,
		Role:         a.Role,
	}
}

func (a Account) Info() AccountInfo {
	return AccountInfo{
		ID:           a.ID,
		Email:        a.Email,
		Nickname:     a.Nickname,
		ProfileImage: a.ProfileImage,
		Role:         a.Role,
		Provider:     a.Provider,
	}
}

// Principal is the identity snapshot carried inside a token. It is a cached
// view: role and status stay authoritative in the account store.
type Principal struct {
	UserID       int64   `json:"user_id"`
	Nickname     string  `json:"nickname"`
	ProfileImage *string `json:"profile_image"`
	Role         Role    `json:"role,omitempty"`
}

func NewPrincipal(userID int64, nickname string, profileImage *string, role Role) (Principal, error) {
	if userID <= 0 {
		return Principal{}, fmt.Errorf("principal user id must be positive, got %d", userID)
	}

	return Principal{UserID: userID, Nickname: nickname, ProfileImage: profileImage, Role: role}, nil
}

type AccountInfo struct {
	ID           int64    `json:"id"`
	Email        string   `json:"email"`
	Nickname     string   `json:"nickname"`
	ProfileImage *string  `json:"profile_image"`
	Role         Role     `json:"role"`
	Provider     Provider `json:"provider"`
}

type PublicProfile struct {
	ID           int64   `json:"id"`
	Nickname     string  `json:"nickname"`
	ProfileImage *string `json:"profile_image"`
}

type TokenPair struct {
	AccessToken      string      `json:"access_token"`
	RefreshToken     string      `json:"-"`
	TokenType        string      `json:"token_type"`
	ExpiresIn        int64       `json:"expires_in"`
	RefreshExpiresIn int64       `json:"-"`
	User             AccountInfo `json:"user"`
}

// OAuthLogin is the outcome of an OAuth callback or link confirmation. When
// NeedsLinking is set no session was opened: LinkToken must be presented to
// the link endpoint first.
type OAuthLogin struct {
	NeedsLinking bool        `json:"needs_linking"`
	LinkToken    string      `json:"link_token,omitempty"`
	Tokens       *TokenPair  `json:"tokens,omitempty"`
	User         AccountInfo `json:"user"`
}

// ProviderProfile is what an OAuth provider tells us about the signed-in user.
type ProviderProfile struct {
	Provider     Provider
	ProviderID   string
	Email        string
	DisplayName  string
	ProfileImage *string
}
