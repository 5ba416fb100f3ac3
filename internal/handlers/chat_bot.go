package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/songcraft/backend/internal/services"
	"github.com/songcraft/backend/pkg/response"
	"gorm.io/gorm"
)

type ChatBotHandler struct {
	chatBotService *services.ChatBotService
}

func NewChatBotHandler(db *gorm.DB) *ChatBotHandler {
	return &ChatBotHandler{
		chatBotService: services.NewChatBotService(db),
	}
}

func (h *ChatBotHandler) List(c *gin.Context) {
	var req services.ChatBotListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	resp, err := h.chatBotService.List(&req)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, resp)
}

func (h *ChatBotHandler) GetByID(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "invalid bot id")
		return
	}

	bot, err := h.chatBotService.GetByID(uint(id))
	if err != nil {
		response.NotFound(c, "bot not found")
		return
	}

	response.Success(c, bot)
}

func (h *ChatBotHandler) Create(c *gin.Context) {
	var req services.CreateChatBotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	bot, err := h.chatBotService.Create(&req)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Created(c, bot)
}

func (h *ChatBotHandler) Update(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "invalid bot id")
		return
	}

	var req services.UpdateChatBotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	bot, err := h.chatBotService.Update(uint(id), &req)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, bot)
}

func (h *ChatBotHandler) Delete(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "invalid bot id")
		return
	}

	if err := h.chatBotService.Delete(uint(id)); err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{"message": "bot deleted successfully"})
}
