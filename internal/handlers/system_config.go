package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/songcraft/backend/internal/services"
	"github.com/songcraft/backend/pkg/response"
	"gorm.io/gorm"
)

type SystemConfigHandler struct {
	configService *services.SystemConfigService
	reportService *services.DailyReportService
}

func NewSystemConfigHandler(db *gorm.DB, reportService *services.DailyReportService) *SystemConfigHandler {
	return &SystemConfigHandler{
		configService: services.NewSystemConfigService(db),
		reportService: reportService,
	}
}

// GetByGroup lists config entries for one group.
// GET /api/admin/system-config?group=email
func (h *SystemConfigHandler) GetByGroup(c *gin.Context) {
	group := c.DefaultQuery("group", "general")

	configs, err := h.configService.GetByGroup(group)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, configs)
}

// UpdateBatch upserts a set of config entries.
// PUT /api/admin/system-config
func (h *SystemConfigHandler) UpdateBatch(c *gin.Context) {
	var items []services.UpdateConfigItem
	if err := c.ShouldBindJSON(&items); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.configService.UpdateBatch(items); err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{"message": "config updated"})
}

func (h *SystemConfigHandler) GetDailyReportConfig(c *gin.Context) {
	response.Success(c, h.configService.GetDailyReportConfig())
}

func (h *SystemConfigHandler) UpdateDailyReportConfig(c *gin.Context) {
	var req services.UpdateDailyReportConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.configService.UpdateDailyReportConfig(&req); err != nil {
		response.ServerError(c, err.Error())
		return
	}

	if h.reportService != nil {
		h.reportService.RefreshSchedule()
	}

	response.Success(c, h.configService.GetDailyReportConfig())
}
