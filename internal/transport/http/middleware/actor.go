package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/arklim/biomed-platform-security/internal/core/domain"
)

const (
	// ActorIDHeader carries the acting principal's id, set by the platform
	// web tier after it authenticates the session. Like the SSO header, it
	// is only trustworthy behind the fronting proxy.
	ActorIDHeader = "X-Acting-Principal"

	actorIDKey = "actor_id"
)

// Actor resolves the acting principal from the forwarded header. Requests
// without the header act as the anonymous guest.
func Actor() gin.HandlerFunc {
	return func(c *gin.Context) {
		actorID := domain.GuestUserID
		if raw := c.GetHeader(ActorIDHeader); raw != "" {
			if parsed, err := strconv.Atoi(raw); err == nil {
				actorID = parsed
			}
		}
		c.Set(actorIDKey, actorID)
		c.Next()
	}
}

// GetActorID returns the acting principal id for the request.
func GetActorID(c *gin.Context) int {
	if v, exists := c.Get(actorIDKey); exists {
		if id, ok := v.(int); ok {
			return id
		}
	}
	return domain.GuestUserID
}
