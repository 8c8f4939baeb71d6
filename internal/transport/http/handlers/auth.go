package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/biomed-platform-security/internal/core/domain"
	"github.com/arklim/biomed-platform-security/internal/repository"
	"github.com/arklim/biomed-platform-security/internal/usecase"
)

// AuthHandler exposes authentication endpoints.
type AuthHandler struct {
	auth        *usecase.AuthService
	directory   *usecase.DirectoryService
	logFailures bool
}

// NewAuthHandler constructs AuthHandler.
func NewAuthHandler(auth *usecase.AuthService, directory *usecase.DirectoryService, logFailures bool) *AuthHandler {
	return &AuthHandler{auth: auth, directory: directory, logFailures: logFailures}
}

// RegisterRoutes binds authentication routes, applying optional middleware
// ahead of the login handler.
func (h *AuthHandler) RegisterRoutes(r *gin.RouterGroup, loginMiddlewares ...gin.HandlerFunc) {
	if len(loginMiddlewares) > 0 {
		chain := append([]gin.HandlerFunc{}, loginMiddlewares...)
		chain = append(chain, h.login)
		r.POST("/login", chain...)
	} else {
		r.POST("/login", h.login)
	}

	r.POST("/logout", h.logout)
}

func requestContext(c *gin.Context) *domain.RequestContext {
	headers := make(map[string]string, len(c.Request.Header))
	for name := range c.Request.Header {
		headers[name] = c.GetHeader(name)
	}
	return &domain.RequestContext{
		Headers:    headers,
		RemoteAddr: c.ClientIP(),
		UserAgent:  c.Request.UserAgent(),
	}
}

// login runs the provider loop. Form credentials are optional: a request
// carrying only SSO headers still authenticates through request-based
// providers.
func (h *AuthHandler) login(c *gin.Context) {
	// An empty body is fine for header-based flows; a malformed one is not.
	var req LoginRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid login payload"))
			return
		}
	}

	result, err := h.auth.Authenticate(c.Request.Context(), req.Identifier, req.Password, requestContext(c), h.logFailures)
	if err != nil {
		var redirect *usecase.RedirectError
		if errors.As(err, &redirect) {
			c.JSON(http.StatusFound, RedirectResponse{
				Provider: redirect.Provider,
				Location: redirect.URL,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "authentication unavailable"))
		return
	}

	switch result.Status {
	case domain.AuthSuccessStatus:
		user := newUserPayload(*result.User)
		c.JSON(http.StatusOK, LoginResponse{
			Status:   string(result.Status),
			Provider: result.Provider,
			User:     &user,
		})
	case domain.AuthInactiveAccount:
		c.JSON(http.StatusForbidden, NewErrorResponse(c, "account is deactivated"))
	default:
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "invalid credentials"))
	}
}

// logout invokes the last provider's cleanup hook for the acting user.
func (h *AuthHandler) logout(c *gin.Context) {
	actorID := actorFrom(c)

	user, err := h.directory.FindUserByID(c.Request.Context(), actorID)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: repository.ErrNotFound, Status: http.StatusNotFound, Message: "user not found"},
		}, http.StatusInternalServerError, "logout failed")
		return
	}

	if err := h.auth.Logout(c.Request.Context(), *user); err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "logout failed"))
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "logged out"})
}
