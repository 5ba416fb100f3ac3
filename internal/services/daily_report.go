package services

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/songcraft/backend/internal/models"
	"github.com/songcraft/backend/pkg/logger"
	"gorm.io/gorm"
)

// DailyReportService renders yesterday-style settlement digests and pushes
// them to the chat bots that opted in. Schedule time lives in system config
// so admins can move it without a restart.
type DailyReportService struct {
	db                  *gorm.DB
	dashboardService    *DashboardService
	notificationService *NotificationService
	cronScheduler       *cron.Cron
	currentEntryID      cron.EntryID
}

func NewDailyReportService(db *gorm.DB, notificationService *NotificationService) *DailyReportService {
	return &DailyReportService{
		db:                  db,
		dashboardService:    NewDashboardService(db),
		notificationService: notificationService,
	}
}

func (s *DailyReportService) StartScheduler() {
	s.cronScheduler = cron.New()

	s.updateSchedule()

	s.cronScheduler.Start()
	logger.Info().Msg("daily report scheduler started")
}

func (s *DailyReportService) StopScheduler() {
	if s.cronScheduler != nil {
		s.cronScheduler.Stop()
	}
}

// RefreshSchedule re-reads the configured report time. Called after the
// admin updates the daily report config.
func (s *DailyReportService) RefreshSchedule() {
	if s.cronScheduler != nil {
		s.updateSchedule()
	}
}

func (s *DailyReportService) updateSchedule() {
	if s.currentEntryID != 0 {
		s.cronScheduler.Remove(s.currentEntryID)
	}

	reportTime := s.getReportTime()
	parts := strings.Split(reportTime, ":")
	hour := "18"
	minute := "0"
	if len(parts) == 2 {
		hour = parts[0]
		minute = parts[1]
	}

	cronExpr := fmt.Sprintf("%s %s * * *", minute, hour)

	entryID, err := s.cronScheduler.AddFunc(cronExpr, func() {
		if !s.isEnabled() {
			return
		}
		if err := s.GenerateAndSendReport(); err != nil {
			logger.Error().Err(err).Msg("daily report failed")
		}
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to schedule daily report")
		return
	}

	s.currentEntryID = entryID
	logger.Info().Str("time", reportTime).Str("cron", cronExpr).Msg("daily report scheduled")
}

func (s *DailyReportService) getReportTime() string {
	var config models.SystemConfig
	if err := s.db.Where("`key` = ?", "daily_report_time").First(&config).Error; err != nil {
		return "18:00"
	}
	return config.Value
}

func (s *DailyReportService) isEnabled() bool {
	var config models.SystemConfig
	if err := s.db.Where("`key` = ?", "daily_report_enabled").First(&config).Error; err != nil {
		return false
	}
	return config.Value == "true"
}

func (s *DailyReportService) GenerateAndSendReport() error {
	report, err := s.GenerateReport()
	if err != nil {
		return err
	}

	if err := s.sendNotifications(report); err != nil {
		report.NotifyError = err.Error()
		s.db.Save(report)
		return err
	}

	now := time.Now()
	report.NotifiedAt = &now
	report.NotifyError = ""
	s.db.Save(report)

	logger.Info().Uint("report_id", report.ID).Msg("daily report sent")
	return nil
}

// GenerateReport builds (or rebuilds) today's settlement digest.
func (s *DailyReportService) GenerateReport() (*models.DailyReport, error) {
	today := time.Now()
	startOfDay := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, today.Location())

	day := startOfDay.Format("2006-01-02")
	stats, err := s.dashboardService.GetStats(&DashboardStatsRequest{StartDate: day, EndDate: day})
	if err != nil {
		return nil, err
	}

	tierJSON, _ := json.Marshal(stats.TierStats)
	producersJSON, _ := json.Marshal(stats.ProducerStats)

	report := &models.DailyReport{
		ReportDate:        startOfDay,
		NewProjects:       int(stats.Stats.NewProjects),
		CompletedProjects: int(stats.Stats.CompletedProjects),
		RefundedProjects:  int(stats.Stats.RefundedProjects),
		GrossVolumeCents:  stats.Stats.GrossVolumeCents,
		PayoutCents:       stats.Stats.PayoutCents,
		RefundCents:       stats.Stats.RefundCents,
		PlatformFeeCents:  stats.Stats.PlatformFeeCents,
		ManualPayouts:     int(stats.Stats.ManualPayouts),
		TierBreakdown:     string(tierJSON),
		TopProducers:      string(producersJSON),
	}
	report.Summary = s.buildSummary(report, stats.TierStats, stats.ProducerStats)

	var existing models.DailyReport
	if err := s.db.Where("report_date = ?", startOfDay).First(&existing).Error; err == nil {
		report.ID = existing.ID
		report.CreatedAt = existing.CreatedAt
		report.NotifiedAt = existing.NotifiedAt
		if err := s.db.Save(report).Error; err != nil {
			return nil, err
		}
	} else {
		if err := s.db.Create(report).Error; err != nil {
			return nil, err
		}
	}

	return report, nil
}

func (s *DailyReportService) buildSummary(r *models.DailyReport, tiers []TierStats, producers []ProducerStats) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("## 🎵 SongCraft Daily Settlement — %s\n\n", r.ReportDate.Format("2006-01-02")))

	sb.WriteString("### Activity\n")
	sb.WriteString(fmt.Sprintf("- 🆕 New commissions: %d\n", r.NewProjects))
	sb.WriteString(fmt.Sprintf("- ✅ Completed: %d\n", r.CompletedProjects))
	sb.WriteString(fmt.Sprintf("- ↩️ Refunded: %d\n\n", r.RefundedProjects))

	sb.WriteString("### Money\n")
	sb.WriteString(fmt.Sprintf("- 💰 Gross volume: %s\n", formatCents(r.GrossVolumeCents)))
	sb.WriteString(fmt.Sprintf("- 🎧 Producer payouts: %s\n", formatCents(r.PayoutCents)))
	sb.WriteString(fmt.Sprintf("- ↩️ Refunds: %s\n", formatCents(r.RefundCents)))
	sb.WriteString(fmt.Sprintf("- 🏦 Platform fees: %s\n", formatCents(r.PlatformFeeCents)))

	if r.ManualPayouts > 0 {
		sb.WriteString(fmt.Sprintf("\n⚠️ **%d payouts waiting for manual processing**\n", r.ManualPayouts))
	}

	if len(tiers) > 0 {
		sb.WriteString("\n### By tier\n")
		for _, t := range tiers {
			sb.WriteString(fmt.Sprintf("- %s: %d projects, %s\n", t.Tier, t.ProjectCount, formatCents(t.RevenueCents)))
		}
	}

	if len(producers) > 0 {
		sb.WriteString("\n### Top producers\n")
		for i, p := range producers {
			if i >= 5 {
				break
			}
			sb.WriteString(fmt.Sprintf("%d. %s — %d completed, earned %s\n", i+1, p.ProducerName, p.Completed, formatCents(p.EarnedCents)))
		}
	}

	return sb.String()
}

func formatCents(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}

func (s *DailyReportService) sendNotifications(report *models.DailyReport) error {
	var bots []models.ChatBot
	if err := s.db.Where("is_active = ? AND daily_report_enabled = ?", true, true).Find(&bots).Error; err != nil {
		return err
	}

	if len(bots) == 0 {
		logger.Info().Msg("no bots enabled for daily report")
		return nil
	}

	task := &NotificationTask{Kind: NotifyDailyReport, Recipient: recipientAdmins()}

	var lastErr error
	successCount := 0
	for i := range bots {
		if err := s.notificationService.sendToBot(&bots[i], task, report.Summary); err != nil {
			logger.Warn().Str("bot", bots[i].Name).Err(err).Msg("daily report send failed")
			lastErr = err
		} else {
			successCount++
		}
	}

	if successCount == 0 && lastErr != nil {
		return lastErr
	}
	return nil
}

func (s *DailyReportService) List(page, pageSize int) ([]models.DailyReport, int64, error) {
	var reports []models.DailyReport
	var total int64

	s.db.Model(&models.DailyReport{}).Count(&total)

	offset := (page - 1) * pageSize
	if err := s.db.Order("report_date DESC").Offset(offset).Limit(pageSize).Find(&reports).Error; err != nil {
		return nil, 0, err
	}

	return reports, total, nil
}

func (s *DailyReportService) GetByID(id uint) (*models.DailyReport, error) {
	var report models.DailyReport
	if err := s.db.First(&report, id).Error; err != nil {
		return nil, err
	}
	return &report, nil
}

func (s *DailyReportService) ResendNotification(id uint) error {
	report, err := s.GetByID(id)
	if err != nil {
		return err
	}

	if err := s.sendNotifications(report); err != nil {
		report.NotifyError = err.Error()
		s.db.Save(report)
		return err
	}

	now := time.Now()
	report.NotifiedAt = &now
	report.NotifyError = ""
	s.db.Save(report)

	return nil
}
