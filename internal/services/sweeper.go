package services

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/songcraft/backend/internal/config"
	"github.com/songcraft/backend/internal/models"
	"github.com/songcraft/backend/pkg/logger"
	"gorm.io/gorm"
)

const sweepLockName = "deadline_sweep"

// DeadlineSweeper periodically refunds projects whose producer acceptance
// deadline passed. One sweep runs at a time: an atomic flag keeps the
// in-process cron single-flight and a scheduler lock row keeps multiple
// server instances from sweeping concurrently.
type DeadlineSweeper struct {
	db          *gorm.DB
	ledger      LedgerStore
	lifecycle   *ProjectLifecycleService
	cron        *cron.Cron
	interval    time.Duration
	batchSize   int
	concurrency int
	instance    string
	sweeping    int32
	now         func() time.Time
}

func NewDeadlineSweeper(db *gorm.DB, ledger LedgerStore, lifecycle *ProjectLifecycleService, cfg *config.SweeperConfig) *DeadlineSweeper {
	hostname, _ := os.Hostname()
	return &DeadlineSweeper{
		db:          db,
		ledger:      ledger,
		lifecycle:   lifecycle,
		interval:    time.Duration(cfg.IntervalMinutes) * time.Minute,
		batchSize:   cfg.BatchSize,
		concurrency: cfg.Concurrency,
		instance:    fmt.Sprintf("%s-%s", hostname, uuid.New().String()[:8]),
		now:         time.Now,
	}
}

// Start schedules the periodic sweep.
func (s *DeadlineSweeper) Start() {
	s.cron = cron.New()
	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := s.cron.AddFunc(spec, func() {
		if err := s.Sweep(context.Background()); err != nil {
			logger.Error().Err(err).Msg("deadline sweep failed")
		}
	}); err != nil {
		logger.Error().Err(err).Msg("failed to schedule deadline sweep")
		return
	}
	s.cron.Start()
	logger.Info().Str("interval", s.interval.String()).Msg("deadline sweeper started")
}

// Stop halts the schedule; an in-flight sweep finishes its batch.
func (s *DeadlineSweeper) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

// Sweep refunds one batch of expired projects. Failures are isolated per
// project so one stuck gateway call never blocks the rest of the batch.
func (s *DeadlineSweeper) Sweep(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.sweeping, 0, 1) {
		return nil
	}
	defer atomic.StoreInt32(&s.sweeping, 0)

	if !s.acquireLock() {
		return nil
	}
	defer s.releaseLock()

	expired, err := s.ledger.ListExpiredAcceptance(ctx, s.now(), s.batchSize)
	if err != nil {
		return err
	}
	if len(expired) == 0 {
		return nil
	}

	logger.Info().Int("count", len(expired)).Msg("sweeping expired acceptance deadlines")

	sem := make(chan struct{}, s.concurrency)
	done := make(chan struct{})
	refunded := int64(0)
	skipped := int64(0)

	for i := range expired {
		project := expired[i]
		sem <- struct{}{}
		go func() {
			defer func() {
				<-sem
				done <- struct{}{}
			}()
			err := s.lifecycle.AutoRefundExpired(ctx, project.ID)
			switch {
			case err == nil:
				atomic.AddInt64(&refunded, 1)
			default:
				// Either the project transitioned since the scan or the
				// gateway is down; the next sweep picks it up again.
				atomic.AddInt64(&skipped, 1)
				logger.Warn().Uint("project_id", project.ID).Err(err).Msg("sweep skipped project")
			}
		}()
	}
	for range expired {
		<-done
	}

	logger.Info().Int64("refunded", refunded).Int64("skipped", skipped).Msg("deadline sweep complete")
	return nil
}

// acquireLock takes the cross-instance sweep lock. Takeover of an expired
// lock and a fresh insert both go through conditional writes, so exactly one
// instance wins.
func (s *DeadlineSweeper) acquireLock() bool {
	if s.db == nil {
		return true
	}

	now := s.now()
	expires := now.Add(s.interval)

	res := s.db.Model(&models.SchedulerLock{}).
		Where("lock_name = ? AND lock_key = ? AND expires_at < ?", sweepLockName, "global", now).
		Updates(map[string]interface{}{
			"locked_by":  s.instance,
			"locked_at":  now,
			"expires_at": expires,
		})
	if res.Error == nil && res.RowsAffected > 0 {
		return true
	}

	err := s.db.Create(&models.SchedulerLock{
		LockName:  sweepLockName,
		LockKey:   "global",
		LockedBy:  s.instance,
		LockedAt:  now,
		ExpiresAt: expires,
	}).Error
	// The unique index rejects the insert when another instance holds it.
	return err == nil
}

func (s *DeadlineSweeper) releaseLock() {
	if s.db == nil {
		return
	}
	s.db.Where("lock_name = ? AND lock_key = ? AND locked_by = ?", sweepLockName, "global", s.instance).
		Delete(&models.SchedulerLock{})
}
