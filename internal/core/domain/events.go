package domain

import "time"

// Audit event types emitted by the security core.
const (
	EventLogin          = "sec.auth.login"
	EventLogout         = "sec.auth.logout"
	EventLoginFailed    = "sec.auth.login_failed"
	EventUserProvision  = "sec.user.provisioned"
	EventGroupCreated   = "sec.group.created"
	EventGroupRenamed   = "sec.group.renamed"
	EventGroupDeleted   = "sec.group.deleted"
	EventMemberAdded    = "sec.group.member_added"
	EventMemberRemoved  = "sec.group.member_removed"
	EventPolicyChanged  = "sec.policy.changed"
	EventPolicyDeleted  = "sec.policy.deleted"
	EventImpersonation  = "sec.auth.impersonation_started"
	EventImpersonateEnd = "sec.auth.impersonation_ended"
)

// AuditEvent is the generic payload handed to the audit sink. Delivery is
// fire-and-forget: a sink failure never rolls back the operation that
// produced the event.
type AuditEvent struct {
	EventID     string
	EventType   string
	ActorID     int
	ActorEmail  string
	ContainerID string
	SubjectID   string
	Message     string
	CreatedAt   time.Time
	Metadata    map[string]any
}

// PolicyChangedEvent notifies downstream caches that the assignments on a
// resource were replaced or removed.
type PolicyChangedEvent struct {
	EventID    string
	ResourceID string
	ActorID    int
	Deleted    bool
	Modified   time.Time
}

// GroupDeletedEvent notifies that a group and its edges are gone.
type GroupDeletedEvent struct {
	EventID   string
	GroupID   int
	GroupName string
	ActorID   int
	DeletedAt time.Time
}

// MemberRemovedEvent fires once per former member on removal or group
// deletion so downstream consumers can drop that member's derived state
// (cached group closures, notifications, and the like).
type MemberRemovedEvent struct {
	EventID   string
	GroupID   int
	MemberID  int
	ActorID   int
	RemovedAt time.Time
}

// UserProvisionedEvent fires when authentication auto-creates a user record
// for an identity validated by an external provider.
type UserProvisionedEvent struct {
	EventID       string
	UserID        int
	Email         string
	Provider      string
	ProvisionedAt time.Time
}
