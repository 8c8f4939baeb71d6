package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/biomed-platform-security/internal/core/domain"
	"github.com/arklim/biomed-platform-security/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Useful for
// development environments without brokers.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType string, actorID int, at time.Time, payload any) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("Stub event published",
		zap.String("event_type", eventType),
		zap.Int("actor_id", actorID),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", payload),
	)
}

// AddEvent logs sec.audit events.
func (p *StubPublisher) AddEvent(_ context.Context, event domain.AuditEvent) error {
	payload := map[string]any{
		"event_type":  event.EventType,
		"actor_email": event.ActorEmail,
		"subject_id":  event.SubjectID,
		"message":     event.Message,
		"metadata":    event.Metadata,
	}
	p.logEvent("sec.audit", event.ActorID, event.CreatedAt, payload)
	return nil
}

// PublishPolicyChanged logs sec.policy.changed events.
func (p *StubPublisher) PublishPolicyChanged(_ context.Context, event domain.PolicyChangedEvent) error {
	payload := map[string]any{
		"resource_id": event.ResourceID,
		"deleted":     event.Deleted,
		"modified":    event.Modified,
	}
	p.logEvent(domain.EventPolicyChanged, event.ActorID, event.Modified, payload)
	return nil
}

// PublishGroupDeleted logs sec.group.deleted events.
func (p *StubPublisher) PublishGroupDeleted(_ context.Context, event domain.GroupDeletedEvent) error {
	payload := map[string]any{
		"group_id":   event.GroupID,
		"group_name": event.GroupName,
		"deleted_at": event.DeletedAt,
	}
	p.logEvent(domain.EventGroupDeleted, event.ActorID, event.DeletedAt, payload)
	return nil
}

// PublishMemberRemoved logs sec.group.member_removed events.
func (p *StubPublisher) PublishMemberRemoved(_ context.Context, event domain.MemberRemovedEvent) error {
	payload := map[string]any{
		"group_id":   event.GroupID,
		"member_id":  event.MemberID,
		"removed_at": event.RemovedAt,
	}
	p.logEvent(domain.EventMemberRemoved, event.ActorID, event.RemovedAt, payload)
	return nil
}

// PublishUserProvisioned logs sec.user.provisioned events.
func (p *StubPublisher) PublishUserProvisioned(_ context.Context, event domain.UserProvisionedEvent) error {
	payload := map[string]any{
		"user_id":        event.UserID,
		"email":          event.Email,
		"provider":       event.Provider,
		"provisioned_at": event.ProvisionedAt,
	}
	p.logEvent(domain.EventUserProvision, event.UserID, event.ProvisionedAt, payload)
	return nil
}

var (
	_ port.EventPublisher = (*StubPublisher)(nil)
	_ port.AuditLogger    = (*StubPublisher)(nil)
)
