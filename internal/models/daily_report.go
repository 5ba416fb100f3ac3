package models

import "time"

// DailyReport is one generated day of marketplace and settlement activity,
// pushed to the chat bots that opted in. Regeneration for the same date
// updates the existing row.
type DailyReport struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ReportDate time.Time `gorm:"uniqueIndex" json:"report_date"`

	NewProjects       int   `json:"new_projects"`
	CompletedProjects int   `json:"completed_projects"`
	RefundedProjects  int   `json:"refunded_projects"`
	GrossVolumeCents  int64 `json:"gross_volume_cents"`
	PayoutCents       int64 `json:"payout_cents"`
	RefundCents       int64 `json:"refund_cents"`
	PlatformFeeCents  int64 `json:"platform_fee_cents"`
	ManualPayouts     int   `json:"manual_payouts"`

	TierBreakdown string `gorm:"type:text" json:"tier_breakdown"` // JSON []TierStats
	TopProducers  string `gorm:"type:text" json:"top_producers"`  // JSON []ProducerStats
	Summary       string `gorm:"type:text" json:"summary"`        // rendered markdown

	NotifiedAt  *time.Time `json:"notified_at"`
	NotifyError string     `gorm:"size:1000" json:"notify_error"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (DailyReport) TableName() string { return "daily_reports" }
