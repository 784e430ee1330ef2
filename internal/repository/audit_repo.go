package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"session-auth/internal/model"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 200
)

// AuditRepository persists auth events in audit_entries. Callers bound the
// context; every failure is reported as upstream unavailability.
type AuditRepository struct {
	pool *pgxpool.Pool
}

func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

func (r *AuditRepository) Log(ctx context.Context, entry model.AuditEntry) error {
	var details []byte
	if entry.Details != nil {
		encoded, err := json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("marshal audit details: %w", err)
		}
		details = encoded
	}

	occurredAt, err := time.Parse(time.RFC3339Nano, entry.OccurredAt)
	if err != nil {
		occurredAt = time.Now().UTC()
	}

	var actorID *int64
	if entry.Actor.UserID > 0 {
		actorID = &entry.Actor.UserID
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO audit_entries
		 (action, occurred_at, actor_user_id, actor_ip, status, resource, details, error_text)
		 VALUES (@action, @occurred_at, @actor_id, @actor_ip, @status, @resource, @details, @error_text)`,
		pgx.NamedArgs{
			"action":      entry.Action,
			"occurred_at": occurredAt,
			"actor_id":    actorID,
			"actor_ip":    entry.Actor.IP,
			"status":      entry.Status,
			"resource":    entry.Resource,
			"details":     details,
			"error_text":  entry.Error,
		})
	if err != nil {
		return upstream("log audit entry", err)
	}
	return nil
}

// auditRow is one result row; total is the window count of all matches.
type auditRow struct {
	Action     string    `db:"action"`
	OccurredAt time.Time `db:"occurred_at"`
	ActorID    int64     `db:"actor_id"`
	ActorIP    string    `db:"actor_ip"`
	Status     string    `db:"status"`
	Resource   string    `db:"resource"`
	Details    []byte    `db:"details"`
	ErrorText  string    `db:"error_text"`
	Total      int       `db:"total"`
}

func (r *AuditRepository) Query(ctx context.Context, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error) {
	query = normalizeAuditQuery(query)
	where, args := auditFilter(query)
	args["limit"] = query.Limit
	args["offset"] = (query.Page - 1) * query.Limit

	rows, err := r.pool.Query(ctx,
		`SELECT action, occurred_at, COALESCE(actor_user_id, 0) AS actor_id, actor_ip,
		        status, resource, details, error_text, COUNT(*) OVER() AS total
		 FROM audit_entries `+where+`
		 ORDER BY occurred_at DESC, id DESC
		 LIMIT @limit OFFSET @offset`, args)
	if err != nil {
		return nil, model.Meta{}, upstream("query audit entries", err)
	}

	collected, err := pgx.CollectRows(rows, pgx.RowToStructByName[auditRow])
	if err != nil {
		return nil, model.Meta{}, upstream("scan audit entries", err)
	}

	total := 0
	entries := make([]model.AuditEntry, 0, len(collected))
	for _, row := range collected {
		total = row.Total
		entry := model.AuditEntry{
			Action:     row.Action,
			OccurredAt: row.OccurredAt.UTC().Format(time.RFC3339Nano),
			Actor:      model.Actor{UserID: row.ActorID, IP: row.ActorIP},
			Status:     row.Status,
			Resource:   row.Resource,
			Error:      row.ErrorText,
		}
		if len(row.Details) > 0 {
			var details any
			if json.Unmarshal(row.Details, &details) == nil {
				entry.Details = details
			}
		}
		entries = append(entries, entry)
	}

	// A page past the end carries no window count; fall back to a plain count.
	if len(collected) == 0 && query.Page > 1 {
		countArgs := pgx.NamedArgs{}
		for key, value := range args {
			if key != "limit" && key != "offset" {
				countArgs[key] = value
			}
		}
		if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM audit_entries `+where, countArgs).Scan(&total); err != nil {
			return nil, model.Meta{}, upstream("count audit entries", err)
		}
	}

	return entries, auditMeta(query, total), nil
}

func auditFilter(query model.AuditQuery) (string, pgx.NamedArgs) {
	var conditions []string
	args := pgx.NamedArgs{}

	if action := strings.TrimSpace(query.Action); action != "" {
		conditions = append(conditions, "lower(action) = lower(@action)")
		args["action"] = action
	}
	if query.ActorID > 0 {
		conditions = append(conditions, "actor_user_id = @actor_id")
		args["actor_id"] = query.ActorID
	}
	if status := strings.TrimSpace(query.Status); status != "" {
		conditions = append(conditions, "lower(status) = lower(@status)")
		args["status"] = status
	}
	if from := strings.TrimSpace(query.From); from != "" {
		conditions = append(conditions, "occurred_at >= @from::timestamptz")
		args["from"] = from
	}
	if to := strings.TrimSpace(query.To); to != "" {
		conditions = append(conditions, "occurred_at <= @to::timestamptz")
		args["to"] = to
	}

	if len(conditions) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}

func normalizeAuditQuery(query model.AuditQuery) model.AuditQuery {
	if query.Page < 1 {
		query.Page = 1
	}
	if query.Limit <= 0 {
		query.Limit = defaultAuditLimit
	}
	if query.Limit > maxAuditLimit {
		query.Limit = maxAuditLimit
	}
	return query
}

func auditMeta(query model.AuditQuery, total int) model.Meta {
	totalPages := 0
	if total > 0 {
		totalPages = (total + query.Limit - 1) / query.Limit
	}
	return model.Meta{Page: query.Page, Limit: query.Limit, Total: total, TotalPages: totalPages}
}
