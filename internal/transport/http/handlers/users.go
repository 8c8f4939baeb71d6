package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/arklim/biomed-platform-security/internal/repository"
	"github.com/arklim/biomed-platform-security/internal/usecase"
)

// UserHandler exposes the principal directory's user surface.
type UserHandler struct {
	directory *usecase.DirectoryService
}

// NewUserHandler constructs UserHandler.
func NewUserHandler(directory *usecase.DirectoryService) *UserHandler {
	return &UserHandler{directory: directory}
}

// RegisterRoutes binds user directory routes.
func (h *UserHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("", h.create)
	r.GET("/:id", h.getByID)
	r.GET("", h.getByEmail)
	r.PUT("/:id/active", h.setActive)
}

var userLookupErrorCases = []ErrorCase{
	{Err: repository.ErrNotFound, Status: http.StatusNotFound, Message: "user not found"},
	{Err: usecase.ErrInvalidIdentifier, Status: http.StatusBadRequest, Message: "invalid identifier"},
}

func (h *UserHandler) create(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid user payload"))
		return
	}

	user, err := h.directory.CreateUser(c.Request.Context(), req.Email, req.DisplayName)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidIdentifier, Status: http.StatusBadRequest, Message: "invalid email address"},
			{Err: repository.ErrDuplicate, Status: http.StatusConflict, Message: "email already registered"},
		}, http.StatusInternalServerError, "failed to create user")
		return
	}

	c.JSON(http.StatusCreated, newUserPayload(user))
}

func (h *UserHandler) getByID(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid user id"))
		return
	}

	user, err := h.directory.FindUserByID(c.Request.Context(), id)
	if err != nil {
		RespondWithMappedError(c, err, userLookupErrorCases, http.StatusInternalServerError, "failed to resolve user")
		return
	}

	c.JSON(http.StatusOK, newUserPayload(*user))
}

func (h *UserHandler) setActive(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid user id"))
		return
	}

	var req SetActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid payload"))
		return
	}

	if err := h.directory.SetUserActive(c.Request.Context(), id, *req.Active); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: repository.ErrNotFound, Status: http.StatusNotFound, Message: "user not found"},
			{Err: usecase.ErrInvalidIdentifier, Status: http.StatusBadRequest, Message: "account cannot be deactivated"},
		}, http.StatusInternalServerError, "failed to update user")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "user updated"})
}

func (h *UserHandler) getByEmail(c *gin.Context) {
	email := c.Query("email")
	if email == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "email query parameter required"))
		return
	}

	user, err := h.directory.FindUserByEmail(c.Request.Context(), email)
	if err != nil {
		RespondWithMappedError(c, err, userLookupErrorCases, http.StatusInternalServerError, "failed to resolve user")
		return
	}

	c.JSON(http.StatusOK, newUserPayload(*user))
}
