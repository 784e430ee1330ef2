package event

type Type string

const (
	TypeAccountCreated   Type = "account.created"
	TypeAccountDeleted   Type = "account.deleted"
	TypeLoggedIn         Type = "auth.login"
	TypeLoginRefused     Type = "auth.login_refused"
	TypeLoggedOut        Type = "auth.logout"
	TypeSessionSupersede Type = "auth.session_superseded"
	TypeTokenRefreshed   Type = "auth.refresh"
	TypeRefreshRejected  Type = "auth.refresh_rejected"
	TypeLinkRequired     Type = "identity.link_required"
	TypeIdentityLinked   Type = "identity.linked"
	TypeLinkRejected     Type = "identity.link_rejected"
	TypeProfileUpdated   Type = "account.profile_updated"
	TypePasswordChanged  Type = "account.password_changed"
	TypeVerificationSent Type = "email.code_sent"
	TypeEmailVerified    Type = "email.verified"
)

type Event struct {
	ID        string         `json:"id"`
	Type      Type           `json:"type"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp string         `json:"timestamp"`
	ActorID   int64          `json:"actor_id,omitempty"` // Account the event is about
	Failed    bool           `json:"failed,omitempty"`
}

type Bus interface {
	Publish(e Event)
	Subscribe() (<-chan Event, func()) // Returns channel and unsubscribe function
}
