package services

import (
	"context"
	"time"

	"github.com/songcraft/backend/internal/models"
	"github.com/songcraft/backend/internal/services/gateway"
	"github.com/songcraft/backend/pkg/logger"
	"gorm.io/gorm"
)

const (
	PayoutRetryInterval  = 15 * time.Minute
	PayoutRetryBatchSize = 10
)

// RetryService re-attempts payouts that were parked as manual_required
// because the producer's payout account was missing or unverified. Once the
// account verifies, the parked transfer goes out automatically.
type RetryService struct {
	db      *gorm.DB
	gateway gateway.PaymentGateway
}

func NewRetryService(db *gorm.DB, gw gateway.PaymentGateway) *RetryService {
	return &RetryService{db: db, gateway: gw}
}

func StartPayoutRetryScheduler(db *gorm.DB, gw gateway.PaymentGateway) {
	service := NewRetryService(db, gw)
	ticker := time.NewTicker(PayoutRetryInterval)

	go func() {
		for range ticker.C {
			service.ProcessParkedPayouts(context.Background())
		}
	}()

	logger.Info().Dur("interval", PayoutRetryInterval).Msg("payout retry scheduler started")
}

// ProcessParkedPayouts pays out one batch of parked records whose producer
// has since verified a payout account.
func (s *RetryService) ProcessParkedPayouts(ctx context.Context) {
	var records []models.PayoutRecord

	err := s.db.Where("status = ? AND kind = ?", models.PayoutStatusManualRequired, models.PayoutKindTransfer).
		Order("created_at ASC").
		Limit(PayoutRetryBatchSize).
		Find(&records).Error
	if err != nil {
		logger.Error().Err(err).Msg("failed to fetch parked payouts")
		return
	}

	if len(records) == 0 {
		return
	}

	logger.Info().Int("count", len(records)).Msg("retrying parked payouts")

	for i := range records {
		s.retryPayout(ctx, &records[i])
	}
}

func (s *RetryService) retryPayout(ctx context.Context, record *models.PayoutRecord) {
	if record.ProducerID == nil {
		return
	}

	var producer models.User
	if err := s.db.First(&producer, *record.ProducerID).Error; err != nil {
		logger.Warn().Uint("record_id", record.ID).Err(err).Msg("producer not found for parked payout")
		return
	}

	if !producer.PayoutVerified || producer.PayoutAccountID == "" {
		return
	}

	// The original idempotency key never reached the gateway, so it is safe
	// to spend it now.
	ref, err := s.gateway.Transfer(ctx, producer.PayoutAccountID, record.AmountCents, record.IdempotencyKey)
	if err != nil {
		logger.Warn().Uint("record_id", record.ID).Err(err).Msg("parked payout retry failed")
		return
	}

	updates := map[string]interface{}{
		"status":      models.PayoutStatusSucceeded,
		"gateway_ref": ref,
	}
	if err := s.db.Model(record).Updates(updates).Error; err != nil {
		logger.Error().Uint("record_id", record.ID).Err(err).Msg("failed to mark parked payout as paid")
		return
	}

	if record.Reason == "completion_payout" {
		now := time.Now()
		s.db.Model(&models.Project{}).
			Where("id = ? AND producer_paid_at IS NULL", record.ProjectID).
			Update("producer_paid_at", now)
	}

	logger.Info().Uint("record_id", record.ID).Uint("producer_id", producer.ID).
		Int64("amount_cents", record.AmountCents).Msg("parked payout released")
}

// ManualRelease lets an admin trigger one parked payout immediately.
func (s *RetryService) ManualRelease(ctx context.Context, recordID uint) error {
	var record models.PayoutRecord
	if err := s.db.First(&record, recordID).Error; err != nil {
		return err
	}

	if record.Status != models.PayoutStatusManualRequired {
		return nil
	}

	s.retryPayout(ctx, &record)
	return nil
}
