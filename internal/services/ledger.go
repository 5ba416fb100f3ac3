package services

import (
	"context"
	"errors"
	"time"

	"github.com/songcraft/backend/internal/models"
	"gorm.io/gorm"
)

// LedgerStore is the durable record the settlement engine writes against.
// Every status change goes through a conditional update keyed on the current
// status; zero rows affected surfaces as ErrStateConflict, never as success.
// The narrow interface keeps the lifecycle service deterministic under test.
type LedgerStore interface {
	GetProject(ctx context.Context, id uint) (*models.Project, error)
	// UpdateProjectIfStatus applies updates only while the project still has
	// one of the expected statuses.
	UpdateProjectIfStatus(ctx context.Context, id uint, expected []string, updates map[string]interface{}) error
	ListExpiredAcceptance(ctx context.Context, cutoff time.Time, limit int) ([]models.Project, error)

	CreateRevisions(ctx context.Context, revisions []models.Revision) error
	GetRevision(ctx context.Context, id uint) (*models.Revision, error)
	ListRevisions(ctx context.Context, projectID uint) ([]models.Revision, error)
	UpdateRevisionIfStatus(ctx context.Context, id uint, expected []string, updates map[string]interface{}) error
	// SetRevisionFeedback writes feedback once; a second write fails with
	// ErrFeedbackAlreadySubmitted.
	SetRevisionFeedback(ctx context.Context, id uint, feedback string) error
	CountDeliveredRevisions(ctx context.Context, projectID uint) (int, error)

	CreatePayoutRecord(ctx context.Context, record *models.PayoutRecord) error
	GetPayoutRecordByKey(ctx context.Context, idempotencyKey string) (*models.PayoutRecord, error)

	GetUser(ctx context.Context, id uint) (*models.User, error)
}

// GormLedger is the production LedgerStore backed by the relational store.
type GormLedger struct {
	db *gorm.DB
}

func NewGormLedger(db *gorm.DB) *GormLedger {
	return &GormLedger{db: db}
}

func (l *GormLedger) GetProject(ctx context.Context, id uint) (*models.Project, error) {
	var project models.Project
	if err := l.db.WithContext(ctx).First(&project, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, err
	}
	return &project, nil
}

func (l *GormLedger) UpdateProjectIfStatus(ctx context.Context, id uint, expected []string, updates map[string]interface{}) error {
	result := l.db.WithContext(ctx).
		Model(&models.Project{}).
		Where("id = ? AND status IN ?", id, expected).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStateConflict
	}
	return nil
}

func (l *GormLedger) ListExpiredAcceptance(ctx context.Context, cutoff time.Time, limit int) ([]models.Project, error) {
	var projects []models.Project
	err := l.db.WithContext(ctx).
		Where("status IN ?", []string{models.ProjectStatusPendingPayment, models.ProjectStatusPaid}).
		Where("acceptance_deadline IS NOT NULL AND acceptance_deadline < ?", cutoff).
		Order("acceptance_deadline ASC").
		Limit(limit).
		Find(&projects).Error
	if err != nil {
		return nil, err
	}
	return projects, nil
}

func (l *GormLedger) CreateRevisions(ctx context.Context, revisions []models.Revision) error {
	if len(revisions) == 0 {
		return nil
	}
	return l.db.WithContext(ctx).Create(&revisions).Error
}

func (l *GormLedger) GetRevision(ctx context.Context, id uint) (*models.Revision, error) {
	var revision models.Revision
	if err := l.db.WithContext(ctx).First(&revision, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRevisionNotFound
		}
		return nil, err
	}
	return &revision, nil
}

func (l *GormLedger) ListRevisions(ctx context.Context, projectID uint) ([]models.Revision, error) {
	var revisions []models.Revision
	err := l.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("number ASC").
		Find(&revisions).Error
	if err != nil {
		return nil, err
	}
	return revisions, nil
}

func (l *GormLedger) UpdateRevisionIfStatus(ctx context.Context, id uint, expected []string, updates map[string]interface{}) error {
	result := l.db.WithContext(ctx).
		Model(&models.Revision{}).
		Where("id = ? AND status IN ?", id, expected).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStateConflict
	}
	return nil
}

func (l *GormLedger) SetRevisionFeedback(ctx context.Context, id uint, feedback string) error {
	result := l.db.WithContext(ctx).
		Model(&models.Revision{}).
		Where("id = ? AND status = ? AND (feedback IS NULL OR feedback = '')", id, models.RevisionStatusDelivered).
		Update("feedback", feedback)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrFeedbackAlreadySubmitted
	}
	return nil
}

func (l *GormLedger) CountDeliveredRevisions(ctx context.Context, projectID uint) (int, error) {
	var count int64
	err := l.db.WithContext(ctx).
		Model(&models.Revision{}).
		Where("project_id = ? AND status = ?", projectID, models.RevisionStatusDelivered).
		Count(&count).Error
	return int(count), err
}

func (l *GormLedger) CreatePayoutRecord(ctx context.Context, record *models.PayoutRecord) error {
	return l.db.WithContext(ctx).Create(record).Error
}

func (l *GormLedger) GetPayoutRecordByKey(ctx context.Context, idempotencyKey string) (*models.PayoutRecord, error) {
	var record models.PayoutRecord
	err := l.db.WithContext(ctx).
		Where("idempotency_key = ?", idempotencyKey).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func (l *GormLedger) GetUser(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := l.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}
