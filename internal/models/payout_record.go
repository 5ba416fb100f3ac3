package models

import "time"

// Payout record kinds.
const (
	PayoutKindRefund   = "refund"   // money back to the customer
	PayoutKindTransfer = "transfer" // split payout to a producer
)

// Payout record statuses.
const (
	PayoutStatusSucceeded      = "succeeded"
	PayoutStatusManualRequired = "manual_required" // no verified payout destination
	PayoutStatusFailed         = "failed"
)

// PayoutRecord is the durable audit trail of every refund and producer
// transfer. Succeeded rows are never touched again; manual_required rows are
// updated in place once the parked transfer is released. The idempotency key
// matches the one sent to the payment gateway, so a retried operation
// reconciles against the existing row instead of moving money twice.
type PayoutRecord struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	ProjectID  uint   `gorm:"index;not null" json:"project_id"`
	ProducerID *uint  `gorm:"index" json:"producer_id"`
	Kind       string `gorm:"size:20;not null" json:"kind"`
	Status     string `gorm:"size:20;not null" json:"status"`

	AmountCents    int64  `gorm:"not null" json:"amount_cents"`
	Currency       string `gorm:"size:8;default:USD" json:"currency"`
	IdempotencyKey string `gorm:"uniqueIndex;size:128;not null" json:"idempotency_key"`
	GatewayRef     string `gorm:"size:128" json:"gateway_ref"`
	Reason         string `gorm:"size:200" json:"reason"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (PayoutRecord) TableName() string { return "payout_records" }
