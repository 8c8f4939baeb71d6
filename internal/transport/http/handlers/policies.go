package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/arklim/biomed-platform-security/internal/core/domain"
	"github.com/arklim/biomed-platform-security/internal/core/port"
	"github.com/arklim/biomed-platform-security/internal/repository"
	"github.com/arklim/biomed-platform-security/internal/usecase"
)

// PolicyHandler exposes policy storage and permission resolution endpoints.
type PolicyHandler struct {
	policies  *usecase.PolicyService
	resources port.ResourceRepository
	directory *usecase.DirectoryService
}

// NewPolicyHandler constructs PolicyHandler.
func NewPolicyHandler(policies *usecase.PolicyService, resources port.ResourceRepository, directory *usecase.DirectoryService) *PolicyHandler {
	return &PolicyHandler{policies: policies, resources: resources, directory: directory}
}

// RegisterRoutes binds policy routes under the resources group.
func (h *PolicyHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("", h.createResource)
	r.GET("/:resourceID/policy", h.get)
	r.PUT("/:resourceID/policy", h.save)
	r.DELETE("/:resourceID/policy", h.delete)
	r.GET("/:resourceID/permissions", h.permissions)
}

var policyErrorCases = []ErrorCase{
	{Err: usecase.ErrPolicyConflict, Status: http.StatusConflict, Message: "policy was modified concurrently"},
	{Err: usecase.ErrPolicyDepth, Status: http.StatusUnprocessableEntity, Message: "resource hierarchy is malformed"},
	{Err: usecase.ErrInvalidIdentifier, Status: http.StatusBadRequest, Message: "invalid resource"},
}

// createResource registers a securable resource so policy lookups can walk
// its parent chain.
func (h *PolicyHandler) createResource(c *gin.Context) {
	var req CreateResourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid resource payload"))
		return
	}

	resource := domain.SecurableResource{
		ID:            req.ID,
		ContainerID:   req.ContainerID,
		ParentID:      req.ParentID,
		InheritParent: req.InheritParent,
	}

	if err := h.resources.Create(c.Request.Context(), resource); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: repository.ErrDuplicate, Status: http.StatusConflict, Message: "resource already registered"},
		}, http.StatusInternalServerError, "failed to register resource")
		return
	}

	c.JSON(http.StatusCreated, ResourcePayload{
		ID:            resource.ID,
		ContainerID:   resource.ContainerID,
		ParentID:      resource.ParentID,
		InheritParent: resource.InheritParent,
	})
}

// resolveResource looks up the resource row; an unknown id resolves to a
// standalone resource so policy reads on it yield the empty policy.
func (h *PolicyHandler) resolveResource(c *gin.Context, resourceID string) (domain.SecurableResource, bool) {
	resource, err := h.resources.GetByID(c.Request.Context(), resourceID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.SecurableResource{ID: resourceID}, true
		}
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to resolve resource"))
		return domain.SecurableResource{}, false
	}
	return *resource, true
}

// get returns the policy governing the resource. With inherited=true the
// nearest ancestor's policy answers when the resource's own is empty.
func (h *PolicyHandler) get(c *gin.Context) {
	resource, ok := h.resolveResource(c, c.Param("resourceID"))
	if !ok {
		return
	}

	findNearest := c.Query("inherited") == "true"

	policy, err := h.policies.GetPolicy(c.Request.Context(), resource, findNearest)
	if err != nil {
		RespondWithMappedError(c, err, policyErrorCases, http.StatusInternalServerError, "failed to load policy")
		return
	}

	c.JSON(http.StatusOK, newPolicyPayload(policy))
}

func (h *PolicyHandler) save(c *gin.Context) {
	resourceID := c.Param("resourceID")

	var req SavePolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid policy payload"))
		return
	}

	policy := domain.NewSecurityPolicy(resourceID)
	policy.Modified = req.Modified
	for _, a := range req.Assignments {
		policy.AddAssignment(a.PrincipalID, domain.RoleName(a.Role))
	}

	saved, err := h.policies.SavePolicy(c.Request.Context(), actorFrom(c), policy)
	if err != nil {
		RespondWithMappedError(c, err, policyErrorCases, http.StatusInternalServerError, "failed to save policy")
		return
	}

	c.JSON(http.StatusOK, newPolicyPayload(saved))
}

func (h *PolicyHandler) delete(c *gin.Context) {
	if err := h.policies.DeletePolicy(c.Request.Context(), actorFrom(c), c.Param("resourceID")); err != nil {
		RespondWithMappedError(c, err, policyErrorCases, http.StatusInternalServerError, "failed to delete policy")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "policy deleted"})
}

// permissions resolves the effective permission set a principal holds on the
// resource.
func (h *PolicyHandler) permissions(c *gin.Context) {
	resource, ok := h.resolveResource(c, c.Param("resourceID"))
	if !ok {
		return
	}

	principalID, err := strconv.Atoi(c.Query("principal_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "principal_id query parameter required"))
		return
	}

	principal, err := h.directory.FindPrincipal(c.Request.Context(), principalID)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: repository.ErrNotFound, Status: http.StatusNotFound, Message: "principal not found"},
		}, http.StatusInternalServerError, "failed to resolve principal")
		return
	}

	perms, err := h.policies.EffectivePermissions(c.Request.Context(), *principal, resource)
	if err != nil {
		RespondWithMappedError(c, err, policyErrorCases, http.StatusInternalServerError, "failed to resolve permissions")
		return
	}

	out := make([]string, 0, len(perms))
	for _, p := range perms {
		out = append(out, string(p))
	}

	c.JSON(http.StatusOK, PermissionsResponse{
		ResourceID:  resource.ID,
		PrincipalID: principalID,
		Permissions: out,
	})
}
