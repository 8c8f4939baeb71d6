package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/arklim/biomed-platform-security/internal/core/domain"
	"github.com/arklim/biomed-platform-security/internal/repository"
	"github.com/arklim/biomed-platform-security/internal/usecase"
)

// GroupHandler exposes group management and membership endpoints.
type GroupHandler struct {
	groups    *usecase.GroupService
	directory *usecase.DirectoryService
	resolver  *usecase.MembershipService
}

// NewGroupHandler constructs GroupHandler.
func NewGroupHandler(groups *usecase.GroupService, directory *usecase.DirectoryService, resolver *usecase.MembershipService) *GroupHandler {
	return &GroupHandler{groups: groups, directory: directory, resolver: resolver}
}

// RegisterRoutes binds group management routes.
func (h *GroupHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("", h.create)
	r.GET("/:id", h.get)
	r.PUT("/:id/name", h.rename)
	r.DELETE("/:id", h.delete)
	r.GET("/:id/members", h.members)
	r.POST("/:id/members", h.addMembers)
	r.DELETE("/:id/members/:memberID", h.removeMember)
}

var groupErrorCases = []ErrorCase{
	{Err: repository.ErrNotFound, Status: http.StatusNotFound, Message: "group not found"},
	{Err: usecase.ErrInvalidIdentifier, Status: http.StatusBadRequest, Message: "invalid group name"},
	{Err: usecase.ErrDuplicateName, Status: http.StatusConflict, Message: "group name already in use"},
	{Err: usecase.ErrSystemGroup, Status: http.StatusForbidden, Message: "system group cannot be modified"},
	{Err: usecase.ErrGroupCycle, Status: http.StatusConflict, Message: "membership would create a cycle"},
	{Err: usecase.ErrAlreadyMember, Status: http.StatusConflict, Message: "principal is already a member"},
}

func groupID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid group id"))
		return 0, false
	}
	return id, true
}

func (h *GroupHandler) create(c *gin.Context) {
	var req CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid group payload"))
		return
	}

	groupType := domain.GroupType(req.Type)
	if groupType == "" {
		groupType = domain.GroupTypeSite
	}

	group, err := h.groups.CreateGroup(c.Request.Context(), actorFrom(c), req.Name, req.ContainerID, groupType)
	if err != nil {
		RespondWithMappedError(c, err, groupErrorCases, http.StatusInternalServerError, "failed to create group")
		return
	}

	c.JSON(http.StatusCreated, newGroupPayload(group))
}

func (h *GroupHandler) get(c *gin.Context) {
	id, ok := groupID(c)
	if !ok {
		return
	}

	group, err := h.directory.FindGroup(c.Request.Context(), id)
	if err != nil {
		RespondWithMappedError(c, err, groupErrorCases, http.StatusInternalServerError, "failed to resolve group")
		return
	}

	c.JSON(http.StatusOK, newGroupPayload(*group))
}

func (h *GroupHandler) rename(c *gin.Context) {
	id, ok := groupID(c)
	if !ok {
		return
	}

	var req RenameGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid rename payload"))
		return
	}

	if err := h.groups.RenameGroup(c.Request.Context(), actorFrom(c), id, req.Name); err != nil {
		RespondWithMappedError(c, err, groupErrorCases, http.StatusInternalServerError, "failed to rename group")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "group renamed"})
}

func (h *GroupHandler) delete(c *gin.Context) {
	id, ok := groupID(c)
	if !ok {
		return
	}

	if err := h.groups.DeleteGroup(c.Request.Context(), actorFrom(c), id); err != nil {
		RespondWithMappedError(c, err, groupErrorCases, http.StatusInternalServerError, "failed to delete group")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "group deleted"})
}

func (h *GroupHandler) members(c *gin.Context) {
	id, ok := groupID(c)
	if !ok {
		return
	}

	members, err := h.groups.Members(c.Request.Context(), id)
	if err != nil {
		RespondWithMappedError(c, err, groupErrorCases, http.StatusInternalServerError, "failed to list members")
		return
	}

	c.JSON(http.StatusOK, MembersResponse{GroupID: id, Members: members})
}

// addMembers is strict for a single member and best-effort for a batch,
// reporting per-member failures.
func (h *GroupHandler) addMembers(c *gin.Context) {
	id, ok := groupID(c)
	if !ok {
		return
	}

	var req AddMembersRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.MemberIDs) == 0 {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid members payload"))
		return
	}

	actorID := actorFrom(c)

	if len(req.MemberIDs) == 1 {
		if err := h.groups.AddMember(c.Request.Context(), actorID, id, req.MemberIDs[0]); err != nil {
			RespondWithMappedError(c, err, groupErrorCases, http.StatusInternalServerError, "failed to add member")
			return
		}
		c.JSON(http.StatusOK, AddMembersResponse{Added: req.MemberIDs})
		return
	}

	failures := h.groups.AddMembers(c.Request.Context(), actorID, id, req.MemberIDs)

	resp := AddMembersResponse{Added: make([]int, 0, len(req.MemberIDs))}
	if len(failures) > 0 {
		resp.Failures = make(map[string]string, len(failures))
	}
	for _, memberID := range req.MemberIDs {
		if err, failed := failures[memberID]; failed {
			resp.Failures[strconv.Itoa(memberID)] = err.Error()
			continue
		}
		resp.Added = append(resp.Added, memberID)
	}

	status := http.StatusOK
	if len(resp.Added) == 0 {
		status = http.StatusUnprocessableEntity
	} else if len(failures) > 0 {
		status = http.StatusMultiStatus
	}
	c.JSON(status, resp)
}

func (h *GroupHandler) removeMember(c *gin.Context) {
	id, ok := groupID(c)
	if !ok {
		return
	}

	memberID, err := strconv.Atoi(c.Param("memberID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid member id"))
		return
	}

	if err := h.groups.RemoveMember(c.Request.Context(), actorFrom(c), id, memberID); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: repository.ErrNotFound, Status: http.StatusNotFound, Message: "membership not found"},
		}, http.StatusInternalServerError, "failed to remove member")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "member removed"})
}
