package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/songcraft/backend/internal/middleware"
	"github.com/songcraft/backend/internal/models"
	"github.com/songcraft/backend/internal/services"
	"github.com/songcraft/backend/pkg/response"
)

type ProjectHandler struct {
	projectService *services.ProjectService
	lifecycle      *services.ProjectLifecycleService
}

func NewProjectHandler(projectService *services.ProjectService, lifecycle *services.ProjectLifecycleService) *ProjectHandler {
	return &ProjectHandler{
		projectService: projectService,
		lifecycle:      lifecycle,
	}
}

func projectID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "invalid project id")
		return 0, false
	}
	return uint(id), true
}

// List returns the projects visible to the caller
// GET /api/projects
func (h *ProjectHandler) List(c *gin.Context) {
	var req services.ProjectListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	resp, err := h.projectService.List(&req, middleware.GetUserID(c), middleware.GetRole(c))
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, resp)
}

// GetByID returns one project
// GET /api/projects/:id
func (h *ProjectHandler) GetByID(c *gin.Context) {
	id, ok := projectID(c)
	if !ok {
		return
	}

	project, err := h.projectService.GetByID(id)
	if err != nil {
		respondError(c, err)
		return
	}

	if !h.projectService.CanView(project, middleware.GetUserID(c), middleware.GetRole(c)) {
		response.Forbidden(c, "not your project")
		return
	}

	response.Success(c, project)
}

// Create opens a new commission
// POST /api/projects
func (h *ProjectHandler) Create(c *gin.Context) {
	var req services.CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	project, err := h.projectService.Create(&req, middleware.GetUserID(c))
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Created(c, project)
}

// UpdateBrief updates title and notes before work starts
// PUT /api/projects/:id/brief
func (h *ProjectHandler) UpdateBrief(c *gin.Context) {
	id, ok := projectID(c)
	if !ok {
		return
	}

	var req services.UpdateBriefRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	project, err := h.projectService.UpdateBrief(id, middleware.GetUserID(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, project)
}

// Delete removes an unpaid commission
// DELETE /api/projects/:id
func (h *ProjectHandler) Delete(c *gin.Context) {
	id, ok := projectID(c)
	if !ok {
		return
	}

	if err := h.projectService.Delete(id, middleware.GetUserID(c), middleware.GetRole(c)); err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, gin.H{"message": "project deleted"})
}

// Accept claims a paid project for the calling producer
// POST /api/projects/:id/accept
func (h *ProjectHandler) Accept(c *gin.Context) {
	id, ok := projectID(c)
	if !ok {
		return
	}

	if err := h.lifecycle.ProducerAccept(c.Request.Context(), id, middleware.GetUserID(c)); err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, gin.H{"message": "project accepted"})
}

// AdvanceStatus moves the project one step forward
// POST /api/projects/:id/status
func (h *ProjectHandler) AdvanceStatus(c *gin.Context) {
	id, ok := projectID(c)
	if !ok {
		return
	}

	var req struct {
		Status string `json:"status" binding:"required,oneof=in_progress review completed"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.lifecycle.AdvanceStatus(c.Request.Context(), id, middleware.GetUserID(c), req.Status)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, result)
}

// SetDeliveredFiles records delivered audio file references
// PUT /api/projects/:id/files
func (h *ProjectHandler) SetDeliveredFiles(c *gin.Context) {
	id, ok := projectID(c)
	if !ok {
		return
	}

	var req struct {
		FileRefs []string `json:"file_refs" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	project, err := h.projectService.SetDeliveredFiles(id, middleware.GetUserID(c), req.FileRefs)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, project)
}

// RequestCancellation asks for the commission to be cancelled
// POST /api/projects/:id/cancellation
func (h *ProjectHandler) RequestCancellation(c *gin.Context) {
	id, ok := projectID(c)
	if !ok {
		return
	}

	var req struct {
		Reason string `json:"reason" binding:"required,max=1000"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	recommended, err := h.lifecycle.RequestCancellation(c.Request.Context(), id, middleware.GetUserID(c), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, gin.H{
		"message":                    "cancellation requested",
		"recommended_refund_percent": recommended,
	})
}

// ResolveCancellation approves or denies a pending cancellation (admin)
// POST /api/projects/:id/cancellation/resolve
func (h *ProjectHandler) ResolveCancellation(c *gin.Context) {
	id, ok := projectID(c)
	if !ok {
		return
	}

	var req struct {
		Approve       bool `json:"approve"`
		RefundPercent int  `json:"refund_percent" binding:"min=0,max=100"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	isAdmin := middleware.GetRole(c) == models.RoleAdmin
	result, err := h.lifecycle.ResolveCancellation(c.Request.Context(), id, req.Approve, req.RefundPercent, isAdmin)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, result)
}

// RecommendedRefund returns the advisory refund percentage (admin)
// GET /api/projects/:id/cancellation/recommendation
func (h *ProjectHandler) RecommendedRefund(c *gin.Context) {
	id, ok := projectID(c)
	if !ok {
		return
	}

	recommended, err := h.lifecycle.RecommendedRefund(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, gin.H{"recommended_refund_percent": recommended})
}

// Reassign removes the current producer and reopens the project (admin)
// POST /api/projects/:id/reassign
func (h *ProjectHandler) Reassign(c *gin.Context) {
	id, ok := projectID(c)
	if !ok {
		return
	}

	var req struct {
		Reason string `json:"reason" binding:"required,max=1000"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	isAdmin := middleware.GetRole(c) == models.RoleAdmin
	result, err := h.lifecycle.ReassignProducer(c.Request.Context(), id, req.Reason, isAdmin)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, result)
}
