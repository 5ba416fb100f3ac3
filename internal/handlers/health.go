package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/songcraft/backend/internal/models"
	"github.com/songcraft/backend/internal/services"
)

// HealthHandler provides enhanced health check endpoints.
type HealthHandler struct{}

func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

// CheckHealth returns the health status of all subsystems.
func (h *HealthHandler) CheckHealth(c *gin.Context) {
	overall := "healthy"

	// Database check
	dbStatus := "ok"
	sqlDB, err := models.GetDB().DB()
	if err != nil {
		dbStatus = "error: " + err.Error()
		overall = "unhealthy"
	} else if err := sqlDB.Ping(); err != nil {
		dbStatus = "error: " + err.Error()
		overall = "unhealthy"
	}

	// Queue mode
	taskQueue := services.GetTaskQueue()
	queueMode := "sync"
	if taskQueue != nil && taskQueue.IsAsync() {
		queueMode = "async (Redis)"
	}

	// Payouts parked for manual release
	var parkedPayouts int64
	models.GetDB().Model(&models.PayoutRecord{}).
		Where("status = ?", models.PayoutStatusManualRequired).
		Count(&parkedPayouts)

	// Projects waiting on producer acceptance
	var awaitingAcceptance int64
	models.GetDB().Model(&models.Project{}).
		Where("status = ?", models.ProjectStatusPaid).
		Count(&awaitingAcceptance)

	c.JSON(200, gin.H{
		"status":  overall,
		"service": "songcraft",
		"components": gin.H{
			"database":            dbStatus,
			"queue_mode":          queueMode,
			"parked_payouts":      parkedPayouts,
			"awaiting_acceptance": awaitingAcceptance,
		},
	})
}
