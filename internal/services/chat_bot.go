package services

import (
	"errors"

	"github.com/songcraft/backend/internal/models"
	"gorm.io/gorm"
)

type ChatBotService struct {
	db *gorm.DB
}

func NewChatBotService(db *gorm.DB) *ChatBotService {
	return &ChatBotService{db: db}
}

type ChatBotListRequest struct {
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	Name     string `form:"name"`
	Type     string `form:"type"`
	IsActive *bool  `form:"is_active"`
}

type ChatBotListResponse struct {
	Total    int64            `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
	Items    []models.ChatBot `json:"items"`
}

type CreateChatBotRequest struct {
	Name               string `json:"name" binding:"required"`
	Type               string `json:"type" binding:"required,oneof=wechat_work dingtalk feishu slack discord teams telegram"`
	Webhook            string `json:"webhook" binding:"required"`
	Secret             string `json:"secret"`
	IsActive           bool   `json:"is_active"`
	SettlementNotify   bool   `json:"settlement_notify"`
	DailyReportEnabled bool   `json:"daily_report_enabled"`
}

type UpdateChatBotRequest struct {
	Name               string `json:"name"`
	Type               string `json:"type" binding:"omitempty,oneof=wechat_work dingtalk feishu slack discord teams telegram"`
	Webhook            string `json:"webhook"`
	Secret             string `json:"secret"`
	IsActive           *bool  `json:"is_active"`
	SettlementNotify   *bool  `json:"settlement_notify"`
	DailyReportEnabled *bool  `json:"daily_report_enabled"`
}

// List returns paginated chat bots
func (s *ChatBotService) List(req *ChatBotListRequest) (*ChatBotListResponse, error) {
	if req.Page == 0 {
		req.Page = 1
	}
	if req.PageSize == 0 {
		req.PageSize = 10
	}

	var bots []models.ChatBot
	var total int64

	query := s.db.Model(&models.ChatBot{})

	if req.Name != "" {
		query = query.Where("name LIKE ?", "%"+req.Name+"%")
	}
	if req.Type != "" {
		query = query.Where("type = ?", req.Type)
	}
	if req.IsActive != nil {
		query = query.Where("is_active = ?", *req.IsActive)
	}

	query.Count(&total)

	offset := (req.Page - 1) * req.PageSize
	if err := query.Offset(offset).Limit(req.PageSize).Order("created_at DESC").Find(&bots).Error; err != nil {
		return nil, err
	}

	return &ChatBotListResponse{
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
		Items:    bots,
	}, nil
}

// GetByID returns a chat bot by ID
func (s *ChatBotService) GetByID(id uint) (*models.ChatBot, error) {
	var bot models.ChatBot
	if err := s.db.First(&bot, id).Error; err != nil {
		return nil, err
	}
	return &bot, nil
}

// Create creates a new chat bot
func (s *ChatBotService) Create(req *CreateChatBotRequest) (*models.ChatBot, error) {
	bot := models.ChatBot{
		Name:               req.Name,
		Type:               req.Type,
		Webhook:            req.Webhook,
		Secret:             req.Secret,
		IsActive:           req.IsActive,
		SettlementNotify:   req.SettlementNotify,
		DailyReportEnabled: req.DailyReportEnabled,
	}

	if err := s.db.Create(&bot).Error; err != nil {
		return nil, err
	}

	return &bot, nil
}

// Update updates a chat bot
func (s *ChatBotService) Update(id uint, req *UpdateChatBotRequest) (*models.ChatBot, error) {
	var bot models.ChatBot
	if err := s.db.First(&bot, id).Error; err != nil {
		return nil, err
	}

	updates := make(map[string]interface{})

	if req.Name != "" {
		updates["name"] = req.Name
	}
	if req.Type != "" {
		updates["type"] = req.Type
	}
	if req.Webhook != "" {
		updates["webhook"] = req.Webhook
	}
	if req.Secret != "" {
		updates["secret"] = req.Secret
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if req.SettlementNotify != nil {
		updates["settlement_notify"] = *req.SettlementNotify
	}
	if req.DailyReportEnabled != nil {
		updates["daily_report_enabled"] = *req.DailyReportEnabled
	}

	if err := s.db.Model(&bot).Updates(updates).Error; err != nil {
		return nil, err
	}

	// Reload
	s.db.First(&bot, id)
	return &bot, nil
}

// Delete deletes a chat bot
func (s *ChatBotService) Delete(id uint) error {
	result := s.db.Delete(&models.ChatBot{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errors.New("chat bot not found")
	}
	return nil
}

// GetDailyReportBots returns all active bots with the daily report enabled
func (s *ChatBotService) GetDailyReportBots() ([]models.ChatBot, error) {
	var bots []models.ChatBot
	if err := s.db.Where("is_active = ? AND daily_report_enabled = ?", true, true).Find(&bots).Error; err != nil {
		return nil, err
	}
	return bots, nil
}
