package main

import (
	"github.com/songcraft/backend/internal/config"
	"github.com/songcraft/backend/internal/handlers"
	"github.com/songcraft/backend/internal/models"
	"github.com/songcraft/backend/internal/services"
	"github.com/songcraft/backend/internal/services/gateway"
	"github.com/songcraft/backend/internal/utils"
	"github.com/songcraft/backend/pkg/logger"
)

// appServices holds all initialized services and handlers needed by the application.
type appServices struct {
	gatewayClient      gateway.PaymentGateway
	lifecycle          *services.ProjectLifecycleService
	revisionService    *services.RevisionService
	retryService       *services.RetryService
	dailyReportService *services.DailyReportService
	sweeper            *services.DeadlineSweeper
	taskQueue          services.TaskQueue
	worker             *services.Worker
	authHandler        *handlers.AuthHandler
	webhookHandler     *handlers.WebhookHandler
}

// bootstrap initializes all application dependencies: database, services, schedulers.
func bootstrap(cfg *config.Config) *appServices {
	utils.SetJWTSecret(cfg.JWT.Secret)

	// Initialize database
	if err := models.InitDB(&cfg.Database); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	// Auto migrate database
	if err := models.AutoMigrate(); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}

	// Seed default data
	if err := models.SeedDefaultData(); err != nil {
		logger.Warn().Err(err).Msg("Failed to seed default data")
	}

	// Initialize system logger
	services.InitSystemLogger(models.GetDB())

	// Start system log cleanup scheduler
	services.StartLogCleanupScheduler(models.GetDB())

	db := models.GetDB()

	// Payment gateway client, shared by settlement, sweeper and payout retry.
	gatewayClient := gateway.NewClient(&cfg.Gateway)

	// Task queue (uses Redis if enabled, otherwise sync mode) and the
	// notification service that feeds it.
	taskQueue := services.InitTaskQueue(cfg)
	notificationService := services.NewNotificationService(db, taskQueue)
	if syncQueue, ok := taskQueue.(*services.SyncQueue); ok {
		syncQueue.SetProcessor(notificationService.Deliver)
	}

	// Start async worker if Redis is enabled
	var worker *services.Worker
	if cfg.Redis.Enabled {
		worker = services.InitWorker(&cfg.Redis)
		if worker != nil {
			worker.SetProcessor(notificationService.Deliver)
			worker.Start()
		}
	}

	// Settlement engine
	ledger := services.NewGormLedger(db)
	lifecycle := services.NewProjectLifecycleService(ledger, gatewayClient, notificationService, &cfg.Settlement)
	revisionService := services.NewRevisionService(ledger, notificationService)

	// Acceptance-deadline sweeper
	sweeper := services.NewDeadlineSweeper(db, ledger, lifecycle, &cfg.Sweeper)
	sweeper.Start()

	// Parked payout retry loop
	retryService := services.NewRetryService(db, gatewayClient)
	services.StartPayoutRetryScheduler(db, gatewayClient)

	// Daily settlement report
	dailyReportService := services.NewDailyReportService(db, notificationService)
	dailyReportService.StartScheduler()

	// Create default admin user
	authHandler := handlers.NewAuthHandler(db, cfg)
	if err := authHandler.CreateAdminIfNotExists(); err != nil {
		logger.Warn().Err(err).Msg("Failed to create admin user")
	}

	return &appServices{
		gatewayClient:      gatewayClient,
		lifecycle:          lifecycle,
		revisionService:    revisionService,
		retryService:       retryService,
		dailyReportService: dailyReportService,
		sweeper:            sweeper,
		taskQueue:          taskQueue,
		worker:             worker,
		authHandler:        authHandler,
		webhookHandler:     handlers.NewWebhookHandler(db, lifecycle, cfg.Webhook.Secret),
	}
}

// shutdown gracefully stops all services.
func (s *appServices) shutdown() {
	s.sweeper.Stop()
	s.dailyReportService.StopScheduler()
	logger.Info().Msg("All schedulers stopped")

	if s.worker != nil {
		s.worker.Stop()
	}
	if s.taskQueue != nil {
		s.taskQueue.Close()
	}
}
