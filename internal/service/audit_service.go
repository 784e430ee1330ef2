package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"session-auth/internal/event"
	"session-auth/internal/model"
	"session-auth/pkg/apierror"
)

type AuditStore interface {
	Log(ctx context.Context, entry model.AuditEntry) error
	Query(ctx context.Context, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error)
}

// AuditService persists auth events published on the bus.
type AuditService struct {
	store   AuditStore
	bus     event.Bus
	timeout time.Duration
}

func NewAuditService(store AuditStore, bus event.Bus, timeout time.Duration) *AuditService {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &AuditService{store: store, bus: bus, timeout: timeout}
}

// Run consumes events until ctx is cancelled. Write failures are logged and
// never block the request that produced the event.
func (s *AuditService) Run(ctx context.Context) {
	events, unsubscribe := s.bus.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			s.record(ctx, e)
		}
	}
}

func (s *AuditService) record(ctx context.Context, e event.Event) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	if err := s.store.Log(writeCtx, entryFromEvent(e)); err != nil {
		slog.Error("audit write failed", "event_id", e.ID, "type", e.Type, "error", err)
	}
}

func entryFromEvent(e event.Event) model.AuditEntry {
	entry := model.AuditEntry{
		Action:     string(e.Type),
		OccurredAt: e.Timestamp,
		Actor:      model.Actor{UserID: e.ActorID},
		Status:     "success",
	}
	if e.Failed {
		entry.Status = "failed"
	}
	if e.ActorID > 0 {
		entry.Resource = fmt.Sprintf("user:%d", e.ActorID)
	}

	details := map[string]any{}
	for key, value := range e.Payload {
		switch key {
		case "ip":
			entry.Actor.IP, _ = value.(string)
		case "error":
			entry.Error, _ = value.(string)
		default:
			details[key] = value
		}
	}
	if len(details) > 0 {
		entry.Details = details
	}
	return entry
}

func (s *AuditService) Query(ctx context.Context, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error) {
	for _, raw := range []string{query.From, query.To} {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		if _, err := time.Parse(time.RFC3339, strings.TrimSpace(raw)); err != nil {
			return nil, model.Meta{}, apierror.New("BAD_REQUEST", "invalid datetime format", raw, http.StatusBadRequest)
		}
	}

	return s.store.Query(ctx, query)
}
