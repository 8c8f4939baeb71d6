package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/arklim/biomed-platform-security/internal/transport/http/middleware"
)

// actorFrom returns the acting principal id resolved by the actor
// middleware.
func actorFrom(c *gin.Context) int {
	return middleware.GetActorID(c)
}
