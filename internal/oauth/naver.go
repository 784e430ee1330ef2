// Package oauth holds the OAuth2 identity providers.
package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"session-auth/internal/model"
)

const (
	naverAuthURL    = "https://nid.naver.com/oauth2.0/authorize"
	naverTokenURL   = "https://nid.naver.com/oauth2.0/token"
	naverProfileURL = "https://openapi.naver.com/v1/nid/me"
)

type NaverConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// Endpoint overrides, empty in production.
	AuthURL    string
	TokenURL   string
	ProfileURL string
	Timeout    time.Duration
}

type Naver struct {
	config     *oauth2.Config
	profileURL string
	httpClient *http.Client
}

func NewNaver(cfg NaverConfig) (*Naver, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("naver client id and secret are required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	return &Naver{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:   orDefault(cfg.AuthURL, naverAuthURL),
				TokenURL:  orDefault(cfg.TokenURL, naverTokenURL),
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		profileURL: orDefault(cfg.ProfileURL, naverProfileURL),
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (n *Naver) Name() model.Provider {
	return model.ProviderNaver
}

func (n *Naver) AuthCodeURL(state string) string {
	return n.config.AuthCodeURL(state)
}

type naverProfileResponse struct {
	ResultCode string `json:"resultcode"`
	Message    string `json:"message"`
	Response   struct {
		ID           string `json:"id"`
		Email        string `json:"email"`
		Nickname     string `json:"nickname"`
		Name         string `json:"name"`
		ProfileImage string `json:"profile_image"`
	} `json:"response"`
}

// Exchange trades the authorization code for a token and reads the profile.
// Naver wants the state echoed on the token request.
func (n *Naver) Exchange(ctx context.Context, code string, state string) (model.ProviderProfile, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, n.httpClient)

	tok, err := n.config.Exchange(ctx, code, oauth2.SetAuthURLParam("state", state))
	if err != nil {
		return model.ProviderProfile{}, exchangeFailed("token exchange", err)
	}

	resp, err := n.config.Client(ctx, tok).Get(n.profileURL)
	if err != nil {
		return model.ProviderProfile{}, exchangeFailed("profile request", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return model.ProviderProfile{}, exchangeFailed("read profile", err)
	}
	if resp.StatusCode != http.StatusOK {
		return model.ProviderProfile{}, model.ErrOAuthExchange.WithDetails(fmt.Sprintf("profile status %d", resp.StatusCode))
	}

	var parsed naverProfileResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return model.ProviderProfile{}, exchangeFailed("decode profile", err)
	}
	if parsed.ResultCode != "00" || parsed.Response.ID == "" {
		return model.ProviderProfile{}, exchangeFailed("profile result", fmt.Errorf("resultcode %s: %s", parsed.ResultCode, parsed.Message))
	}

	profile := model.ProviderProfile{
		Provider:    model.ProviderNaver,
		ProviderID:  parsed.Response.ID,
		Email:       strings.TrimSpace(parsed.Response.Email),
		DisplayName: orDefault(parsed.Response.Nickname, parsed.Response.Name),
	}
	if image := strings.TrimSpace(parsed.Response.ProfileImage); image != "" {
		profile.ProfileImage = &image
	}
	return profile, nil
}

// exchangeFailed logs what the provider said and answers with the step
// name only; provider error bodies stay out of responses.
func exchangeFailed(step string, err error) error {
	slog.Warn("naver oauth exchange failed", "step", step, "error", err)
	return model.ErrOAuthExchange.WithDetails(step + " failed")
}

func orDefault(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
