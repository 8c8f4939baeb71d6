package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arklim/biomed-platform-security/internal/core/domain"
	"github.com/arklim/biomed-platform-security/internal/core/port"
	"github.com/arklim/biomed-platform-security/internal/infra/config"
)

const schemaVersion = "1.0"

// EventPublisher implements port.EventPublisher and port.AuditLogger using
// Kafka. Audit events and domain notifications share the envelope format;
// audit events land on their own topic.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	ActorID   int              `json:"actor_id"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType string, actorID int, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}

	if span := trace.SpanFromContext(ctx); span != nil {
		if sc := span.SpanContext(); sc.IsValid() {
			metadata["trace_id"] = sc.TraceID().String()
		}
	}

	envelope := eventEnvelope{
		EventID:   id,
		EventType: eventType,
		ActorID:   actorID,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Value: sarama.ByteEncoder(bytes),
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AddEvent publishes sec.audit events.
func (p *EventPublisher) AddEvent(ctx context.Context, event domain.AuditEvent) error {
	payload := struct {
		EventType   string         `json:"event_type"`
		ActorID     int            `json:"actor_id"`
		ActorEmail  string         `json:"actor_email,omitempty"`
		ContainerID string         `json:"container_id,omitempty"`
		SubjectID   string         `json:"subject_id,omitempty"`
		Message     string         `json:"message"`
		CreatedAt   time.Time      `json:"created_at"`
		Metadata    map[string]any `json:"metadata,omitempty"`
	}{
		EventType:   event.EventType,
		ActorID:     event.ActorID,
		ActorEmail:  event.ActorEmail,
		ContainerID: event.ContainerID,
		SubjectID:   event.SubjectID,
		Message:     event.Message,
		CreatedAt:   event.CreatedAt.UTC(),
		Metadata:    event.Metadata,
	}

	return p.publish(ctx, event.EventID, "sec.audit", event.ActorID, event.CreatedAt, payload)
}

// PublishPolicyChanged publishes sec.policy.changed events.
func (p *EventPublisher) PublishPolicyChanged(ctx context.Context, event domain.PolicyChangedEvent) error {
	payload := struct {
		ResourceID string    `json:"resource_id"`
		ActorID    int       `json:"actor_id"`
		Deleted    bool      `json:"deleted"`
		Modified   time.Time `json:"modified"`
	}{
		ResourceID: event.ResourceID,
		ActorID:    event.ActorID,
		Deleted:    event.Deleted,
		Modified:   event.Modified.UTC(),
	}

	return p.publish(ctx, event.EventID, domain.EventPolicyChanged, event.ActorID, event.Modified, payload)
}

// PublishGroupDeleted publishes sec.group.deleted events.
func (p *EventPublisher) PublishGroupDeleted(ctx context.Context, event domain.GroupDeletedEvent) error {
	payload := struct {
		GroupID   int       `json:"group_id"`
		GroupName string    `json:"group_name"`
		ActorID   int       `json:"actor_id"`
		DeletedAt time.Time `json:"deleted_at"`
	}{
		GroupID:   event.GroupID,
		GroupName: event.GroupName,
		ActorID:   event.ActorID,
		DeletedAt: event.DeletedAt.UTC(),
	}

	return p.publish(ctx, event.EventID, domain.EventGroupDeleted, event.ActorID, event.DeletedAt, payload)
}

// PublishMemberRemoved publishes sec.group.member_removed events, one per
// former member, so consumers can drop that member's derived state.
func (p *EventPublisher) PublishMemberRemoved(ctx context.Context, event domain.MemberRemovedEvent) error {
	payload := struct {
		GroupID   int       `json:"group_id"`
		MemberID  int       `json:"member_id"`
		ActorID   int       `json:"actor_id"`
		RemovedAt time.Time `json:"removed_at"`
	}{
		GroupID:   event.GroupID,
		MemberID:  event.MemberID,
		ActorID:   event.ActorID,
		RemovedAt: event.RemovedAt.UTC(),
	}

	return p.publish(ctx, event.EventID, domain.EventMemberRemoved, event.ActorID, event.RemovedAt, payload)
}

// PublishUserProvisioned publishes sec.user.provisioned events.
func (p *EventPublisher) PublishUserProvisioned(ctx context.Context, event domain.UserProvisionedEvent) error {
	payload := struct {
		UserID        int       `json:"user_id"`
		Email         string    `json:"email"`
		Provider      string    `json:"provider"`
		ProvisionedAt time.Time `json:"provisioned_at"`
	}{
		UserID:        event.UserID,
		Email:         event.Email,
		Provider:      event.Provider,
		ProvisionedAt: event.ProvisionedAt.UTC(),
	}

	return p.publish(ctx, event.EventID, domain.EventUserProvision, event.UserID, event.ProvisionedAt, payload)
}

var (
	_ port.EventPublisher = (*EventPublisher)(nil)
	_ port.AuditLogger    = (*EventPublisher)(nil)
)
