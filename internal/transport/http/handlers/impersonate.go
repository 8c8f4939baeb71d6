package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/biomed-platform-security/internal/core/domain"
	"github.com/arklim/biomed-platform-security/internal/core/port"
	"github.com/arklim/biomed-platform-security/internal/repository"
	"github.com/arklim/biomed-platform-security/internal/usecase"
)

// ImpersonationHandler exposes identity-overlay endpoints. The overlay is
// computed per request; session plumbing belongs to the fronting web tier.
type ImpersonationHandler struct {
	impersonation *usecase.ImpersonationService
	directory     *usecase.DirectoryService
	resources     port.ResourceRepository
}

// NewImpersonationHandler constructs ImpersonationHandler.
func NewImpersonationHandler(impersonation *usecase.ImpersonationService, directory *usecase.DirectoryService, resources port.ResourceRepository) *ImpersonationHandler {
	return &ImpersonationHandler{impersonation: impersonation, directory: directory, resources: resources}
}

// RegisterRoutes binds impersonation routes.
func (h *ImpersonationHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/user", h.impersonateUser)
	r.POST("/group", h.impersonateGroup)
}

var impersonationErrorCases = []ErrorCase{
	{Err: usecase.ErrImpersonationDenied, Status: http.StatusForbidden, Message: "impersonation not permitted"},
	{Err: repository.ErrNotFound, Status: http.StatusNotFound, Message: "target not found"},
}

func (h *ImpersonationHandler) admin(c *gin.Context) (*domain.User, bool) {
	user, err := h.directory.FindUserByID(c.Request.Context(), actorFrom(c))
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: repository.ErrNotFound, Status: http.StatusUnauthorized, Message: "acting principal unknown"},
		}, http.StatusInternalServerError, "failed to resolve acting principal")
		return nil, false
	}
	return user, true
}

func (h *ImpersonationHandler) respond(c *gin.Context, ic domain.ImpersonationContext) {
	groups, err := h.impersonation.EffectiveGroups(c.Request.Context(), ic)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to resolve effective groups"))
		return
	}

	c.JSON(http.StatusOK, ImpersonationResponse{
		Kind:            string(ic.Kind),
		EffectiveGroups: groups,
	})
}

func (h *ImpersonationHandler) impersonateUser(c *gin.Context) {
	var req ImpersonateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid impersonation payload"))
		return
	}

	admin, ok := h.admin(c)
	if !ok {
		return
	}

	ic, err := h.impersonation.ImpersonateUser(c.Request.Context(), *admin, req.TargetUserID)
	if err != nil {
		RespondWithMappedError(c, err, impersonationErrorCases, http.StatusInternalServerError, "failed to impersonate user")
		return
	}

	h.respond(c, ic)
}

func (h *ImpersonationHandler) impersonateGroup(c *gin.Context) {
	var req ImpersonateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid impersonation payload"))
		return
	}

	admin, ok := h.admin(c)
	if !ok {
		return
	}

	var resource *domain.SecurableResource
	if req.ResourceID != nil && *req.ResourceID != "" {
		found, err := h.resources.GetByID(c.Request.Context(), *req.ResourceID)
		if err != nil {
			if !errors.Is(err, repository.ErrNotFound) {
				c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to resolve resource"))
				return
			}
		} else {
			resource = found
		}
	}

	ic, err := h.impersonation.ImpersonateGroup(c.Request.Context(), *admin, resource, req.TargetGroupID)
	if err != nil {
		RespondWithMappedError(c, err, impersonationErrorCases, http.StatusInternalServerError, "failed to impersonate group")
		return
	}

	h.respond(c, ic)
}
