package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/songcraft/backend/internal/middleware"
	"github.com/songcraft/backend/internal/services"
	"github.com/songcraft/backend/pkg/response"
)

type RevisionHandler struct {
	revisionService *services.RevisionService
}

func NewRevisionHandler(revisionService *services.RevisionService) *RevisionHandler {
	return &RevisionHandler{revisionService: revisionService}
}

func revisionID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("revision_id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "invalid revision id")
		return 0, false
	}
	return uint(id), true
}

// List returns all revision slots of a project
// GET /api/projects/:id/revisions
func (h *RevisionHandler) List(c *gin.Context) {
	id, ok := projectID(c)
	if !ok {
		return
	}

	revisions, err := h.revisionService.ListRevisions(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, revisions)
}

// Request claims the next unused revision slot (customer)
// POST /api/projects/:id/revisions
func (h *RevisionHandler) Request(c *gin.Context) {
	id, ok := projectID(c)
	if !ok {
		return
	}

	var req struct {
		Notes        string `json:"notes" binding:"required,max=5000"`
		WantsMeeting bool   `json:"wants_meeting"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	revision, err := h.revisionService.RequestRevision(c.Request.Context(), id, middleware.GetUserID(c), req.Notes, req.WantsMeeting)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Created(c, revision)
}

// Start marks a requested revision as in progress (producer)
// POST /api/revisions/:revision_id/start
func (h *RevisionHandler) Start(c *gin.Context) {
	id, ok := revisionID(c)
	if !ok {
		return
	}

	var req struct {
		MeetingLink string `json:"meeting_link" binding:"omitempty,url"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	revision, err := h.revisionService.StartRevision(c.Request.Context(), id, middleware.GetUserID(c), req.MeetingLink)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, revision)
}

// Deliver completes an in-progress revision (producer)
// POST /api/revisions/:revision_id/deliver
func (h *RevisionHandler) Deliver(c *gin.Context) {
	id, ok := revisionID(c)
	if !ok {
		return
	}

	var req struct {
		DriveLink string `json:"drive_link" binding:"required,url"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	revision, err := h.revisionService.DeliverRevision(c.Request.Context(), id, middleware.GetUserID(c), req.DriveLink)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, revision)
}

// SubmitFeedback records one-shot feedback on a delivered revision (customer)
// POST /api/revisions/:revision_id/feedback
func (h *RevisionHandler) SubmitFeedback(c *gin.Context) {
	id, ok := revisionID(c)
	if !ok {
		return
	}

	var req struct {
		Feedback string `json:"feedback" binding:"required,max=5000"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.revisionService.SubmitFeedback(c.Request.Context(), id, middleware.GetUserID(c), req.Feedback); err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, gin.H{"message": "feedback submitted"})
}
