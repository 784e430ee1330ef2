package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"session-auth/internal/model"
)

// MemoryAuditRepository is the in-process audit sink used by tests and
// single-instance runs without PostgreSQL.
type MemoryAuditRepository struct {
	mu      sync.Mutex
	entries []model.AuditEntry
}

func NewMemoryAuditRepository() *MemoryAuditRepository {
	return &MemoryAuditRepository{}
}

func (r *MemoryAuditRepository) Log(_ context.Context, entry model.AuditEntry) error {
	r.mu.Lock()
	r.entries = append(r.entries, entry)
	r.mu.Unlock()
	return nil
}

func (r *MemoryAuditRepository) Query(_ context.Context, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error) {
	query = normalizeAuditQuery(query)

	from, _ := time.Parse(time.RFC3339, strings.TrimSpace(query.From))
	to, _ := time.Parse(time.RFC3339, strings.TrimSpace(query.To))

	r.mu.Lock()
	items := make([]model.AuditEntry, 0, len(r.entries))
	for _, entry := range r.entries {
		if query.Action != "" && !strings.EqualFold(entry.Action, query.Action) {
			continue
		}
		if query.Status != "" && !strings.EqualFold(entry.Status, query.Status) {
			continue
		}
		if query.ActorID > 0 && entry.Actor.UserID != query.ActorID {
			continue
		}
		at, err := time.Parse(time.RFC3339Nano, entry.OccurredAt)
		if err == nil {
			if !from.IsZero() && at.Before(from) {
				continue
			}
			if !to.IsZero() && at.After(to) {
				continue
			}
		}
		items = append(items, entry)
	}
	r.mu.Unlock()

	sort.SliceStable(items, func(i int, j int) bool {
		return items[i].OccurredAt > items[j].OccurredAt
	})

	total := len(items)
	start := (query.Page - 1) * query.Limit
	if start > total {
		start = total
	}
	end := start + query.Limit
	if end > total {
		end = total
	}

	return items[start:end], auditMeta(query, total), nil
}
