package models

import (
	"time"

	"gorm.io/gorm"
)

// User roles.
const (
	RoleCustomer = "customer"
	RoleProducer = "producer"
	RoleAdmin    = "admin"
)

// User represents a marketplace account: a customer commissioning songs, a
// producer fulfilling them, or a platform admin.
type User struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Username    string     `gorm:"uniqueIndex;size:100;not null" json:"username"`
	Password    string     `gorm:"size:255" json:"-"` // bcrypt hash
	Email       string     `gorm:"size:255" json:"email"`
	DisplayName string     `gorm:"size:100" json:"display_name"`
	Avatar      string     `gorm:"size:500" json:"avatar"`
	Role        string     `gorm:"size:50;default:customer" json:"role"` // customer, producer, admin
	IsActive    bool       `gorm:"default:true" json:"is_active"`
	LastLogin   *time.Time `json:"last_login"`

	// Producer payout destination at the payment gateway. Transfers are only
	// executed automatically when the destination has been verified.
	PayoutAccountID string `gorm:"size:128" json:"payout_account_id,omitempty"`
	PayoutVerified  bool   `gorm:"default:false" json:"payout_verified"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (User) TableName() string { return "users" }
