package models

import "time"

// Revision statuses. pending → requested → in_progress → delivered.
const (
	RevisionStatusPending    = "pending"
	RevisionStatusRequested  = "requested"
	RevisionStatusInProgress = "in_progress"
	RevisionStatusDelivered  = "delivered"
)

// Revision is one delivery iteration under a project. All purchased rows are
// created together when a producer accepts; ordinals are contiguous from 1.
// At most one revision per project may be requested or in_progress at a time.
type Revision struct {
	ID        uint     `gorm:"primaryKey" json:"id"`
	ProjectID uint     `gorm:"uniqueIndex:idx_project_revision;not null" json:"project_id"`
	Project   *Project `gorm:"foreignKey:ProjectID" json:"project,omitempty"`
	Number    int      `gorm:"uniqueIndex:idx_project_revision;not null" json:"number"`

	Status      string `gorm:"size:20;index;default:pending" json:"status"`
	ClientNotes string `gorm:"type:text" json:"client_notes"`
	// Feedback is write-once: it may be set only after delivery and is never
	// overwritten.
	Feedback     string `gorm:"type:text" json:"feedback"`
	WantsMeeting bool   `gorm:"default:false" json:"wants_meeting"`
	MeetingLink  string `gorm:"size:500" json:"meeting_link"`
	DriveLink    string `gorm:"size:500" json:"drive_link"`

	RequestedAt *time.Time `json:"requested_at"`
	DeliveredAt *time.Time `json:"delivered_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (Revision) TableName() string { return "revisions" }

// IsOutstanding reports whether this revision currently occupies the single
// outstanding request slot of its project.
func (r *Revision) IsOutstanding() bool {
	return r.Status == RevisionStatusRequested || r.Status == RevisionStatusInProgress
}
