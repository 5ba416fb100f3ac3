package models

import (
	"time"

	"gorm.io/gorm"
)

// ChatBot represents a chat-webhook notification destination used by the
// notifier to push settlement and lifecycle events to platform staff.
type ChatBot struct {
	ID                 uint           `gorm:"primaryKey" json:"id"`
	Name               string         `gorm:"size:100;not null" json:"name"`
	Type               string         `gorm:"size:50;not null" json:"type"` // slack, discord, wechat_work, dingtalk, feishu
	Webhook            string         `gorm:"size:500;not null" json:"webhook"`
	Secret             string         `gorm:"size:255" json:"-"`
	IsActive           bool           `gorm:"default:true" json:"is_active"`
	SettlementNotify   bool           `gorm:"default:true" json:"settlement_notify"`    // refunds, payouts, reassignments
	DailyReportEnabled bool           `gorm:"default:false" json:"daily_report_enabled"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
	DeletedAt          gorm.DeletedAt `gorm:"index" json:"-"`
}

func (ChatBot) TableName() string { return "chat_bots" }
