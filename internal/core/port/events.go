package port

import (
	"context"

	"github.com/arklim/biomed-platform-security/internal/core/domain"
)

// EventPublisher publishes security-domain notifications to the message bus
// for downstream consumers (cache invalidation, cleanup jobs).
type EventPublisher interface {
	PublishPolicyChanged(ctx context.Context, event domain.PolicyChangedEvent) error
	PublishGroupDeleted(ctx context.Context, event domain.GroupDeletedEvent) error
	PublishMemberRemoved(ctx context.Context, event domain.MemberRemovedEvent) error
	PublishUserProvisioned(ctx context.Context, event domain.UserProvisionedEvent) error
}
