package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"session-auth/internal/model"
	"session-auth/internal/service"
)

const stateTTL = 10 * time.Minute

type OAuthHandler struct {
	service *service.IdentityService
	cookies CookieSettings
}

func NewOAuthHandler(service *service.IdentityService, cookies CookieSettings) *OAuthHandler {
	return &OAuthHandler{service: service, cookies: cookies}
}

// Login redirects to the provider's consent page. The state travels in a
// short-lived cookie and must come back unchanged on the callback.
func (h *OAuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()
	target, err := h.service.AuthURL(chi.URLParam(r, "provider"), state)
	if err != nil {
		writeError(w, err)
		return
	}

	h.cookies.setState(w, state, stateTTL)
	http.Redirect(w, r, target, http.StatusFound)
}

func (h *OAuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	h.cookies.clearState(w)

	if providerErr := strings.TrimSpace(query.Get("error")); providerErr != "" {
		writeError(w, model.ErrOAuthExchange.WithDetails(providerErr))
		return
	}

	state := strings.TrimSpace(query.Get("state"))
	expected := readCookie(r, stateCookieName)
	if state == "" || expected == "" || state != expected {
		writeError(w, model.ErrOAuthState)
		return
	}

	login, err := h.service.HandleCallback(r.Context(), chi.URLParam(r, "provider"), query.Get("code"), state)
	if err != nil {
		writeError(w, err)
		return
	}

	h.writeLogin(w, login)
}

func (h *OAuthHandler) Link(w http.ResponseWriter, r *http.Request) {
	var payload model.LinkRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(payload.LinkToken) == "" {
		writeError(w, model.ErrInvalidInput.WithDetails("link_token is required"))
		return
	}

	login, err := h.service.LinkAccount(r.Context(), payload.LinkToken)
	if err != nil {
		writeError(w, err)
		return
	}

	h.writeLogin(w, login)
}

// writeLogin answers 200 both for a completed login and for needs-linking.
func (h *OAuthHandler) writeLogin(w http.ResponseWriter, login model.OAuthLogin) {
	if login.Tokens != nil {
		h.cookies.setRefresh(w, login.Tokens.RefreshToken)
	}
	writeSuccess(w, http.StatusOK, login, nil)
}
