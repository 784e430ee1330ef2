package handler

import (
	"net/http"
	"strconv"

	"session-auth/internal/model"
	"session-auth/internal/service"
	"session-auth/pkg/apierror"
)

type AuditHandler struct {
	service *service.AuditService
}

func NewAuditHandler(service *service.AuditService) *AuditHandler {
	return &AuditHandler{service: service}
}

func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	var actorID int64
	if raw := trimmed(query.Get("actor_id")); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed <= 0 {
			writeError(w, apierror.New("BAD_REQUEST", "actor_id must be a positive integer", raw, http.StatusBadRequest))
			return
		}
		actorID = parsed
	}

	items, meta, err := h.service.Query(r.Context(), model.AuditQuery{
		Action:  trimmed(query.Get("action")),
		ActorID: actorID,
		Status:  trimmed(query.Get("status")),
		From:    trimmed(query.Get("from")),
		To:      trimmed(query.Get("to")),
		Page:    parseIntOrDefault(query.Get("page"), 1),
		Limit:   parseIntOrDefault(query.Get("limit"), 50),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, model.AuditListData{Items: items}, &meta)
}
