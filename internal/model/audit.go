package model

// AuditEntry is one persisted auth event.
type AuditEntry struct {
	Action     string `json:"action"`
	OccurredAt string `json:"occurred_at"`
	Actor      Actor  `json:"actor"`
	Status     string `json:"status"`
	Resource   string `json:"resource"`
	Details    any    `json:"details,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Actor identifies who caused an event. UserID is zero for anonymous callers.
type Actor struct {
	UserID int64  `json:"user_id,omitempty"`
	IP     string `json:"ip,omitempty"`
}

type AuditQuery struct {
	Action  string
	ActorID int64
	Status  string
	From    string
	To      string
	Page    int
	Limit   int
}

type AuditListData struct {
	Items []AuditEntry `json:"items"`
}
