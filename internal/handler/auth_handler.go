package handler

import (
	"errors"
	"net/http"
	"strings"

	"session-auth/internal/middleware"
	"session-auth/internal/model"
	"session-auth/internal/service"
)

type AuthHandler struct {
	service *service.AuthService
	refresh *service.RefreshService
	cookies CookieSettings
}

func NewAuthHandler(service *service.AuthService, refresh *service.RefreshService, cookies CookieSettings) *AuthHandler {
	return &AuthHandler{service: service, refresh: refresh, cookies: cookies}
}

// joinImageField is the optional file part of a multipart sign-up.
const joinImageField = "profileImage"

// Join accepts JSON, or a multipart form with email, password and nickname
// fields plus an optional profileImage file.
func (h *AuthHandler) Join(w http.ResponseWriter, r *http.Request) {
	var payload model.JoinRequest
	if isMultipart(r) {
		maxSize := h.service.MaxImageSize()
		if err := parseMultipart(w, r, maxSize); err != nil {
			writeError(w, err)
			return
		}
		defer cleanupMultipart(r)

		payload.Email = r.FormValue("email")
		payload.Password = r.FormValue("password")
		payload.Nickname = r.FormValue("nickname")

		limit := maxSize
		if limit <= 0 {
			limit = multipartSlack
		}
		image, err := readImagePart(r, joinImageField, limit)
		if err != nil {
			writeError(w, err)
			return
		}
		payload.ProfileImage = image
	} else if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	tokens, err := h.service.Join(r.Context(), payload)
	if err != nil {
		writeError(w, err)
		return
	}

	h.cookies.setRefresh(w, tokens.RefreshToken)
	writeSuccess(w, http.StatusCreated, tokens, nil)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	h.login(w, r, false)
}

func (h *AuthHandler) ForceLogin(w http.ResponseWriter, r *http.Request) {
	h.login(w, r, true)
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request, force bool) {
	var payload model.LoginRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	login := h.service.Login
	if force {
		login = h.service.ForceLogin
	}

	tokens, err := login(r.Context(), payload)
	if err != nil {
		writeError(w, err)
		return
	}

	h.cookies.setRefresh(w, tokens.RefreshToken)
	writeSuccess(w, http.StatusOK, tokens, nil)
}

// Refresh takes the access token from the Authorization header, or from the
// JSON body when the header is absent, and the refresh token from its cookie.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	accessToken := middleware.BearerToken(r.Header.Get("Authorization"))
	if accessToken == "" && r.ContentLength != 0 {
		var payload model.RefreshRequest
		if err := decodeJSON(w, r, &payload); err != nil {
			writeError(w, err)
			return
		}
		accessToken = strings.TrimSpace(payload.AccessToken)
	}

	tokens, err := h.refresh.Refresh(r.Context(), accessToken, readCookie(r, refreshCookieName))
	if err != nil {
		if errors.Is(err, model.ErrRefreshRejected) || errors.Is(err, model.ErrAccountInactive) {
			h.cookies.clearRefresh(w)
		}
		writeError(w, err)
		return
	}

	h.cookies.rotateRefresh(w, tokens.RefreshToken)
	writeSuccess(w, http.StatusOK, tokens, nil)
}

func (h *AuthHandler) ValidateToken(w http.ResponseWriter, r *http.Request) {
	var payload model.ValidateTokenRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	raw := middleware.BearerToken(payload.Token)
	writeSuccess(w, http.StatusOK, h.service.ValidateToken(raw), nil)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, model.ErrUnauthorized)
		return
	}

	if err := h.service.Logout(r.Context(), principal); err != nil {
		writeError(w, err)
		return
	}

	h.cookies.clearRefresh(w)
	writeSuccess(w, http.StatusOK, map[string]any{"logged_out": true}, nil)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, model.ErrUnauthorized)
		return
	}

	me, err := h.service.Me(r.Context(), principal)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, me, nil)
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, model.ErrUnauthorized)
		return
	}

	var payload model.PasswordChangeRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	if err := h.service.ChangePassword(r.Context(), principal, payload); err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{"password_changed": true}, nil)
}
