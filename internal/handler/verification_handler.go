package handler

import (
	"net/http"

	"session-auth/internal/model"
	"session-auth/internal/service"
)

type VerificationHandler struct {
	service *service.EmailVerificationService
}

func NewVerificationHandler(service *service.EmailVerificationService) *VerificationHandler {
	return &VerificationHandler{service: service}
}

func (h *VerificationHandler) SendCode(w http.ResponseWriter, r *http.Request) {
	var payload model.SendCodeRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	status, err := h.service.SendCode(r.Context(), payload.Email)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, status, nil)
}

func (h *VerificationHandler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	var payload model.VerifyCodeRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	status, err := h.service.VerifyCode(r.Context(), payload.Email, payload.Code)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, status, nil)
}
