package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arklim/biomed-platform-security/internal/core/domain"
)

// ErrorResponse represents a generic error payload with trace ID for
// debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context.
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	traceID, _ := c.Get("trace_id")
	traceIDStr, _ := traceID.(string)

	return ErrorResponse{
		Error:   errorMsg,
		TraceID: traceIDStr,
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// HealthResponse reports liveness.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
}

// ReadinessResponse reports readiness per dependency.
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// UserPayload describes a user principal in API responses.
type UserPayload struct {
	ID           int        `json:"id"`
	Email        string     `json:"email"`
	DisplayName  string     `json:"display_name"`
	Active       bool       `json:"active"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
	LastProvider *string    `json:"last_provider,omitempty"`
}

func newUserPayload(u domain.User) UserPayload {
	return UserPayload{
		ID:           u.ID,
		Email:        u.Email,
		DisplayName:  u.DisplayName,
		Active:       u.Active,
		LastLogin:    u.LastLogin,
		LastProvider: u.LastProvider,
	}
}

// GroupPayload describes a group principal in API responses.
type GroupPayload struct {
	ID          int     `json:"id"`
	Name        string  `json:"name"`
	ContainerID *string `json:"container_id,omitempty"`
	Type        string  `json:"type"`
	System      bool    `json:"system"`
}

func newGroupPayload(g domain.Group) GroupPayload {
	return GroupPayload{
		ID:          g.ID,
		Name:        g.Name,
		ContainerID: g.ContainerID,
		Type:        string(g.Type),
		System:      g.System,
	}
}

// LoginRequest defines the payload for the login endpoint.
type LoginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

// LoginResponse describes a successful authentication.
type LoginResponse struct {
	Status   string      `json:"status"`
	Provider string      `json:"provider,omitempty"`
	User     *UserPayload `json:"user,omitempty"`
}

// RedirectResponse hands the client off to an external identity provider.
type RedirectResponse struct {
	Provider string `json:"provider"`
	Location string `json:"location"`
}

// CreateUserRequest defines the payload for explicit user provisioning.
type CreateUserRequest struct {
	Email       string `json:"email" binding:"required"`
	DisplayName string `json:"display_name"`
}

// SetActiveRequest toggles a user's soft-delete flag. A pointer distinguishes
// an explicit false from an absent field.
type SetActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// CreateGroupRequest defines the payload for group creation.
type CreateGroupRequest struct {
	Name        string  `json:"name" binding:"required"`
	ContainerID *string `json:"container_id,omitempty"`
	Type        string  `json:"type"`
}

// RenameGroupRequest defines the payload for group renaming.
type RenameGroupRequest struct {
	Name string `json:"name" binding:"required"`
}

// AddMembersRequest adds one or more principals to a group.
type AddMembersRequest struct {
	MemberIDs []int `json:"member_ids" binding:"required"`
}

// AddMembersResponse reports per-member outcomes of a batch add.
type AddMembersResponse struct {
	Added    []int          `json:"added"`
	Failures map[string]string `json:"failures,omitempty"`
}

// MembersResponse lists a group's direct members.
type MembersResponse struct {
	GroupID int   `json:"group_id"`
	Members []int `json:"members"`
}

// CreateResourceRequest registers a securable resource in the hierarchy.
type CreateResourceRequest struct {
	ID            string  `json:"id" binding:"required"`
	ContainerID   string  `json:"container_id"`
	ParentID      *string `json:"parent_id"`
	InheritParent bool    `json:"inherit_parent"`
}

// ResourcePayload is the API view of a securable resource.
type ResourcePayload struct {
	ID            string  `json:"id"`
	ContainerID   string  `json:"container_id"`
	ParentID      *string `json:"parent_id"`
	InheritParent bool    `json:"inherit_parent"`
}

// AssignmentPayload is one (principal, role) grant on a resource.
type AssignmentPayload struct {
	PrincipalID int    `json:"principal_id"`
	Role        string `json:"role"`
}

// PolicyPayload is the API view of a security policy.
type PolicyPayload struct {
	ResourceID  string              `json:"resource_id"`
	Assignments []AssignmentPayload `json:"assignments"`
	Modified    time.Time           `json:"modified"`
}

func newPolicyPayload(p *domain.SecurityPolicy) PolicyPayload {
	out := PolicyPayload{
		ResourceID:  p.ResourceID,
		Assignments: make([]AssignmentPayload, 0, len(p.Assignments)),
		Modified:    p.Modified,
	}
	for _, a := range p.Assignments {
		out.Assignments = append(out.Assignments, AssignmentPayload{
			PrincipalID: a.PrincipalID,
			Role:        string(a.Role),
		})
	}
	return out
}

// SavePolicyRequest replaces a resource's assignments. Modified must carry
// the timestamp of the snapshot the edit was based on (zero for a new
// policy).
type SavePolicyRequest struct {
	Assignments []AssignmentPayload `json:"assignments"`
	Modified    time.Time           `json:"modified"`
}

// PermissionsResponse lists the permissions a principal holds on a resource.
type PermissionsResponse struct {
	ResourceID  string   `json:"resource_id"`
	PrincipalID int      `json:"principal_id"`
	Permissions []string `json:"permissions"`
}

// ImpersonateUserRequest starts a user impersonation overlay.
type ImpersonateUserRequest struct {
	TargetUserID int `json:"target_user_id" binding:"required"`
}

// ImpersonateGroupRequest starts a group impersonation overlay.
type ImpersonateGroupRequest struct {
	TargetGroupID int     `json:"target_group_id" binding:"required"`
	ResourceID    *string `json:"resource_id,omitempty"`
}

// ImpersonationResponse summarizes the active overlay.
type ImpersonationResponse struct {
	Kind            string `json:"kind"`
	EffectiveGroups []int  `json:"effective_groups"`
}
