package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"session-auth/internal/middleware"
	"session-auth/internal/model"
	"session-auth/internal/service"
	"session-auth/pkg/apierror"
)

const profileImageField = "image"

type UserHandler struct {
	service *service.ProfileService
	cookies CookieSettings
}

func NewUserHandler(service *service.ProfileService, cookies CookieSettings) *UserHandler {
	return &UserHandler{service: service, cookies: cookies}
}

func (h *UserHandler) Profile(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || userID <= 0 {
		writeError(w, apierror.New("BAD_REQUEST", "user id must be a positive integer", "id", http.StatusBadRequest))
		return
	}

	profile, err := h.service.PublicProfile(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, profile, nil)
}

func (h *UserHandler) UpdateNickname(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, model.ErrUnauthorized)
		return
	}

	var payload model.NicknameUpdateRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	resp, err := h.service.UpdateNickname(r.Context(), principal, payload.Nickname)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, resp, nil)
}

// UpdateProfileImage accepts a multipart form with the image in the "image" field.
func (h *UserHandler) UpdateProfileImage(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, model.ErrUnauthorized)
		return
	}

	maxSize := h.service.MaxImageSize()
	if err := parseMultipart(w, r, maxSize); err != nil {
		writeError(w, err)
		return
	}
	defer cleanupMultipart(r)

	data, err := readImagePart(r, profileImageField, maxSize)
	if err != nil {
		writeError(w, err)
		return
	}
	if data == nil {
		writeError(w, apierror.New("BAD_REQUEST", "multipart field 'image' is required", profileImageField, http.StatusBadRequest))
		return
	}

	resp, err := h.service.UpdateProfileImage(r.Context(), principal, data)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, resp, nil)
}

func (h *UserHandler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, model.ErrUnauthorized)
		return
	}

	if err := h.service.DeleteAccount(r.Context(), principal); err != nil {
		writeError(w, err)
		return
	}

	h.cookies.clearRefresh(w)
	writeSuccess(w, http.StatusOK, map[string]any{"deleted": true}, nil)
}
