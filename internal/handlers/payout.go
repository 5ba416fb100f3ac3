package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/songcraft/backend/internal/middleware"
	"github.com/songcraft/backend/internal/models"
	"github.com/songcraft/backend/internal/services"
	"github.com/songcraft/backend/pkg/response"
	"gorm.io/gorm"
)

// PayoutHandler exposes the settlement audit trail and the manual release
// path for parked transfers. Admin only.
type PayoutHandler struct {
	db           *gorm.DB
	retryService *services.RetryService
}

func NewPayoutHandler(db *gorm.DB, retryService *services.RetryService) *PayoutHandler {
	return &PayoutHandler{db: db, retryService: retryService}
}

// List returns payout records, newest first.
// GET /api/admin/payouts?status=manual_required&project_id=12
func (h *PayoutHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	status := c.Query("status")
	kind := c.Query("kind")
	projectID := c.Query("project_id")

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	var records []models.PayoutRecord
	var total int64

	query := h.db.Model(&models.PayoutRecord{})

	if status != "" {
		query = query.Where("status = ?", status)
	}
	if kind != "" {
		query = query.Where("kind = ?", kind)
	}
	if projectID != "" {
		query = query.Where("project_id = ?", projectID)
	}

	query.Count(&total)
	query.Order("created_at DESC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&records)

	response.Success(c, gin.H{
		"items":     records,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// Release executes a parked transfer immediately instead of waiting for the
// retry loop.
// POST /api/admin/payouts/:id/release
func (h *PayoutHandler) Release(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "invalid payout record id")
		return
	}

	if err := h.retryService.ManualRelease(c.Request.Context(), uint(id)); err != nil {
		respondError(c, err)
		return
	}

	adminID := middleware.GetUserID(c)
	services.LogInfo("Payout", "ManualRelease", "Parked transfer released", &adminID, c.ClientIP(), c.Request.UserAgent(), map[string]interface{}{
		"record_id": id,
	})

	response.Success(c, gin.H{"message": "transfer released"})
}
