package services

import (
	"time"

	"github.com/songcraft/backend/internal/models"
	"gorm.io/gorm"
)

type DashboardService struct {
	db *gorm.DB
}

func NewDashboardService(db *gorm.DB) *DashboardService {
	return &DashboardService{db: db}
}

type DashboardStatsRequest struct {
	StartDate string `form:"start_date"`
	EndDate   string `form:"end_date"`
}

type DashboardStats struct {
	NewProjects       int64 `json:"new_projects"`
	CompletedProjects int64 `json:"completed_projects"`
	RefundedProjects  int64 `json:"refunded_projects"`
	OpenPool          int64 `json:"open_pool"` // paid, waiting for a producer
	GrossVolumeCents  int64 `json:"gross_volume_cents"`
	PayoutCents       int64 `json:"payout_cents"`
	RefundCents       int64 `json:"refund_cents"`
	PlatformFeeCents  int64 `json:"platform_fee_cents"`
	ManualPayouts     int64 `json:"manual_payouts"`
}

type TierStats struct {
	Tier          string `json:"tier"`
	ProjectCount  int64  `json:"project_count"`
	RevenueCents  int64  `json:"revenue_cents"`
	AvgPriceCents int64  `json:"avg_price_cents"`
}

type ProducerStats struct {
	ProducerID    uint   `json:"producer_id"`
	ProducerName  string `json:"producer_name"`
	Completed     int64  `json:"completed"`
	EarnedCents   int64  `json:"earned_cents"`
	Reassignments int64  `json:"reassignments"`
}

type DashboardResponse struct {
	Stats         DashboardStats  `json:"stats"`
	TierStats     []TierStats     `json:"tier_stats"`
	ProducerStats []ProducerStats `json:"producer_stats"`
}

// GetStats aggregates marketplace and settlement activity for the admin
// dashboard over the requested window (default: last 7 days).
func (s *DashboardService) GetStats(req *DashboardStatsRequest) (*DashboardResponse, error) {
	var startDate, endDate time.Time
	var err error

	if req.StartDate != "" {
		startDate, err = time.Parse("2006-01-02", req.StartDate)
		if err != nil {
			startDate = time.Now().AddDate(0, 0, -7)
		}
	} else {
		startDate = time.Now().AddDate(0, 0, -7)
	}

	if req.EndDate != "" {
		endDate, err = time.Parse("2006-01-02", req.EndDate)
		if err != nil {
			endDate = time.Now()
		}
		endDate = endDate.Add(24*time.Hour - time.Second)
	} else {
		endDate = time.Now()
	}

	var stats DashboardStats

	s.db.Model(&models.Project{}).
		Where("created_at BETWEEN ? AND ?", startDate, endDate).
		Count(&stats.NewProjects)

	s.db.Model(&models.Project{}).
		Where("status = ? AND updated_at BETWEEN ? AND ?", models.ProjectStatusCompleted, startDate, endDate).
		Count(&stats.CompletedProjects)

	s.db.Model(&models.Project{}).
		Where("status = ? AND refunded_at BETWEEN ? AND ?", models.ProjectStatusRefunded, startDate, endDate).
		Count(&stats.RefundedProjects)

	s.db.Model(&models.Project{}).
		Where("status = ? AND producer_id IS NULL", models.ProjectStatusPaid).
		Count(&stats.OpenPool)

	s.db.Model(&models.Project{}).
		Where("payment_reference <> '' AND created_at BETWEEN ? AND ?", startDate, endDate).
		Select("COALESCE(SUM(price_cents), 0)").
		Scan(&stats.GrossVolumeCents)

	s.db.Model(&models.Project{}).
		Where("status = ? AND updated_at BETWEEN ? AND ?", models.ProjectStatusCompleted, startDate, endDate).
		Select("COALESCE(SUM(platform_fee_cents), 0)").
		Scan(&stats.PlatformFeeCents)

	s.db.Model(&models.PayoutRecord{}).
		Where("kind = ? AND status = ? AND created_at BETWEEN ? AND ?",
			models.PayoutKindTransfer, models.PayoutStatusSucceeded, startDate, endDate).
		Select("COALESCE(SUM(amount_cents), 0)").
		Scan(&stats.PayoutCents)

	s.db.Model(&models.PayoutRecord{}).
		Where("kind = ? AND created_at BETWEEN ? AND ?", models.PayoutKindRefund, startDate, endDate).
		Select("COALESCE(SUM(amount_cents), 0)").
		Scan(&stats.RefundCents)

	s.db.Model(&models.PayoutRecord{}).
		Where("status = ?", models.PayoutStatusManualRequired).
		Count(&stats.ManualPayouts)

	var tierStats []TierStats
	s.db.Model(&models.Project{}).
		Select("tier, COUNT(*) as project_count, COALESCE(SUM(price_cents), 0) as revenue_cents, COALESCE(AVG(price_cents), 0) as avg_price_cents").
		Where("created_at BETWEEN ? AND ?", startDate, endDate).
		Group("tier").
		Order("revenue_cents DESC").
		Scan(&tierStats)

	var producerStats []ProducerStats
	s.db.Model(&models.Project{}).
		Select("producer_id, COUNT(*) as completed, COALESCE(SUM(producer_payout_cents), 0) as earned_cents").
		Where("status = ? AND producer_id IS NOT NULL AND updated_at BETWEEN ? AND ?",
			models.ProjectStatusCompleted, startDate, endDate).
		Group("producer_id").
		Order("earned_cents DESC").
		Limit(10).
		Scan(&producerStats)

	for i := range producerStats {
		var producer models.User
		if err := s.db.First(&producer, producerStats[i].ProducerID).Error; err == nil {
			name := producer.DisplayName
			if name == "" {
				name = producer.Username
			}
			producerStats[i].ProducerName = name
		}
		s.db.Model(&models.PayoutRecord{}).
			Where("producer_id = ? AND reason = ?", producerStats[i].ProducerID, "reassignment_payout").
			Count(&producerStats[i].Reassignments)
	}

	return &DashboardResponse{
		Stats:         stats,
		TierStats:     tierStats,
		ProducerStats: producerStats,
	}, nil
}
