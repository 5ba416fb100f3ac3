package models

import (
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Project lifecycle statuses. Values are persisted as-is; do not rename.
const (
	ProjectStatusPendingPayment        = "pending_payment"
	ProjectStatusPaid                  = "paid"
	ProjectStatusAccepted              = "accepted"
	ProjectStatusInProgress            = "in_progress"
	ProjectStatusReview                = "review"
	ProjectStatusCompleted             = "completed"
	ProjectStatusCancellationRequested = "cancellation_requested"
	ProjectStatusRefunded              = "refunded"
)

// Refund reasons recorded when a project reaches the refunded status.
const (
	RefundReasonCancellation       = "cancellation_approved"
	RefundReasonNoProducerAccepted = "no_producer_accepted"
)

// Project is one customer's paid song commission and its lifecycle record.
// Status, payout/fee amounts and the blocked-producer list are written only
// by the lifecycle service, always through conditional status updates.
type Project struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	Reference string `gorm:"uniqueIndex;size:36;not null" json:"reference"`
	Title     string `gorm:"size:200;not null" json:"title"`

	CustomerID uint  `gorm:"index;not null" json:"customer_id"`
	Customer   *User `gorm:"foreignKey:CustomerID" json:"customer,omitempty"`
	ProducerID *uint `gorm:"index" json:"producer_id"`
	Producer   *User `gorm:"foreignKey:ProducerID" json:"producer,omitempty"`
	// Producers removed by reassignment, barred from re-accepting.
	BlockedProducerIDs string `gorm:"size:500" json:"blocked_producer_ids"` // 3,17,42

	Tier       string `gorm:"size:50;not null" json:"tier"` // demo, standard, premium
	PriceCents int64  `gorm:"not null" json:"price_cents"`  // minor currency units, never float
	Currency   string `gorm:"size:8;default:USD" json:"currency"`

	PaymentReference    string `gorm:"size:128;index" json:"payment_reference"`
	PlatformFeeCents    *int64 `json:"platform_fee_cents"`
	ProducerPayoutCents *int64 `json:"producer_payout_cents"`

	Status             string     `gorm:"size:50;index;default:pending_payment" json:"status"`
	AcceptanceDeadline *time.Time `gorm:"index" json:"acceptance_deadline"`
	RefundedAt         *time.Time `json:"refunded_at"`
	RefundPercent      *int       `json:"refund_percent"`
	RefundReason       string     `gorm:"size:100" json:"refund_reason"`
	CancellationReason string     `gorm:"size:1000" json:"cancellation_reason"`
	ProducerPaidAt     *time.Time `json:"producer_paid_at"`

	RevisionsPurchased int    `gorm:"not null;default:0" json:"revisions_purchased"`
	Mixing             bool   `gorm:"default:false" json:"mixing"`
	Mastering          bool   `gorm:"default:false" json:"mastering"`
	CommercialUse      bool   `gorm:"default:false" json:"commercial_use"`
	BriefNotes         string `gorm:"type:text" json:"brief_notes"`
	DeliveredFileRefs  string `gorm:"size:2000" json:"delivered_file_refs"` // comma-separated blob refs

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Project) TableName() string { return "projects" }

// BlockedProducers parses the CSV blocked list into producer ids.
func (p *Project) BlockedProducers() []uint {
	if p.BlockedProducerIDs == "" {
		return nil
	}
	parts := strings.Split(p.BlockedProducerIDs, ",")
	ids := make([]uint, 0, len(parts))
	for _, part := range parts {
		if id, err := strconv.ParseUint(strings.TrimSpace(part), 10, 32); err == nil {
			ids = append(ids, uint(id))
		}
	}
	return ids
}

// IsProducerBlocked reports whether the producer was previously reassigned
// away from this project.
func (p *Project) IsProducerBlocked(producerID uint) bool {
	for _, id := range p.BlockedProducers() {
		if id == producerID {
			return true
		}
	}
	return false
}

// WithBlockedProducer returns the CSV blocked list with producerID appended.
// Appending an id that is already present is a no-op.
func (p *Project) WithBlockedProducer(producerID uint) string {
	if p.IsProducerBlocked(producerID) {
		return p.BlockedProducerIDs
	}
	entry := strconv.FormatUint(uint64(producerID), 10)
	if p.BlockedProducerIDs == "" {
		return entry
	}
	return p.BlockedProducerIDs + "," + entry
}

// IsTerminal reports whether no further lifecycle transition is allowed.
func (p *Project) IsTerminal() bool {
	return p.Status == ProjectStatusCompleted || p.Status == ProjectStatusRefunded
}
