package main

import (
	"github.com/gin-gonic/gin"
	"github.com/songcraft/backend/internal/handlers"
	"github.com/songcraft/backend/internal/middleware"
	"github.com/songcraft/backend/internal/models"
	"github.com/songcraft/backend/internal/services"
	"github.com/songcraft/backend/pkg/logger"
)

// registerRoutes sets up all HTTP routes on the given Gin engine.
func registerRoutes(r *gin.Engine, svc *appServices) {
	// Middleware
	r.Use(logger.GinLogger(), logger.GinRecovery())
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.Use(middleware.CORS())

	db := models.GetDB()

	// Rate limiter for the payment webhook
	webhookLimiter := middleware.NewRateLimiter(10, 20)

	// Health checks
	healthHandler := handlers.NewHealthHandler()
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "service": "songcraft"})
	})
	r.GET("/health/detail", healthHandler.CheckHealth)

	// API routes
	api := r.Group("/api")
	{
		// Auth routes (public)
		auth := api.Group("/auth")
		{
			auth.POST("/register", svc.authHandler.Register)
			auth.POST("/login", svc.authHandler.Login)
			auth.POST("/refresh", svc.authHandler.Refresh)
		}

		// Payment gateway webhook (public with signature verification, rate limited)
		api.POST("/webhooks/payment", webhookLimiter.Middleware(), svc.webhookHandler.HandlePayment)

		// Protected routes
		protected := api.Group("")
		protected.Use(middleware.AuthRequired())
		{
			// Auth
			protected.GET("/auth/me", svc.authHandler.GetCurrentUser)
			protected.POST("/auth/logout", svc.authHandler.Logout)
			protected.POST("/auth/change-password", svc.authHandler.ChangePassword)
			protected.PUT("/auth/payout-account", svc.authHandler.UpdatePayoutAccount)

			// Projects
			projectHandler := handlers.NewProjectHandler(services.NewProjectService(db), svc.lifecycle)
			protected.GET("/projects", projectHandler.List)
			protected.GET("/projects/:id", projectHandler.GetByID)
			protected.POST("/projects", middleware.RoleRequired(models.RoleCustomer), projectHandler.Create)
			protected.PUT("/projects/:id/brief", middleware.RoleRequired(models.RoleCustomer), projectHandler.UpdateBrief)
			protected.DELETE("/projects/:id", middleware.RoleRequired(models.RoleCustomer), projectHandler.Delete)

			// Fulfillment lifecycle
			protected.POST("/projects/:id/accept", middleware.RoleRequired(models.RoleProducer), projectHandler.Accept)
			protected.POST("/projects/:id/status", middleware.RoleRequired(models.RoleProducer, models.RoleAdmin), projectHandler.AdvanceStatus)
			protected.PUT("/projects/:id/files", middleware.RoleRequired(models.RoleProducer), projectHandler.SetDeliveredFiles)

			// Cancellation
			protected.POST("/projects/:id/cancellation", middleware.RoleRequired(models.RoleCustomer), projectHandler.RequestCancellation)
			protected.GET("/projects/:id/cancellation/recommendation", projectHandler.RecommendedRefund)

			// Revisions
			revisionHandler := handlers.NewRevisionHandler(svc.revisionService)
			protected.GET("/projects/:id/revisions", revisionHandler.List)
			protected.POST("/projects/:id/revisions", middleware.RoleRequired(models.RoleCustomer), revisionHandler.Request)
			protected.POST("/revisions/:revision_id/start", middleware.RoleRequired(models.RoleProducer), revisionHandler.Start)
			protected.POST("/revisions/:revision_id/deliver", middleware.RoleRequired(models.RoleProducer), revisionHandler.Deliver)
			protected.POST("/revisions/:revision_id/feedback", middleware.RoleRequired(models.RoleCustomer), revisionHandler.SubmitFeedback)
		}

		// Admin only routes
		admin := api.Group("")
		admin.Use(middleware.AuthRequired(), middleware.AdminRequired(), middleware.AuditLog())
		{
			// Cancellation review and producer reassignment
			projectHandler := handlers.NewProjectHandler(services.NewProjectService(db), svc.lifecycle)
			admin.POST("/projects/:id/cancellation/resolve", projectHandler.ResolveCancellation)
			admin.POST("/projects/:id/reassign", projectHandler.Reassign)

			// Dashboard
			dashboardHandler := handlers.NewDashboardHandler(db)
			admin.GET("/dashboard/stats", dashboardHandler.GetStats)

			// Users
			userHandler := handlers.NewUserHandler(db, svc.authHandler.AuthService())
			admin.GET("/users", userHandler.List)
			admin.PUT("/users/:id", userHandler.Update)
			admin.DELETE("/users/:id", userHandler.Delete)
			admin.POST("/users/:id/verify-payout", userHandler.VerifyPayoutAccount)

			// Payout records
			payoutHandler := handlers.NewPayoutHandler(db, svc.retryService)
			admin.GET("/payouts", payoutHandler.List)
			admin.POST("/payouts/:id/release", payoutHandler.Release)

			// Chat Bots
			chatBotHandler := handlers.NewChatBotHandler(db)
			admin.GET("/chat-bots", chatBotHandler.List)
			admin.GET("/chat-bots/:id", chatBotHandler.GetByID)
			admin.POST("/chat-bots", chatBotHandler.Create)
			admin.PUT("/chat-bots/:id", chatBotHandler.Update)
			admin.DELETE("/chat-bots/:id", chatBotHandler.Delete)

			// System Logs
			systemLogHandler := handlers.NewSystemLogHandler(db)
			admin.GET("/system-logs", systemLogHandler.List)
			admin.GET("/system-logs/modules", systemLogHandler.GetModules)
			admin.GET("/system-logs/retention", systemLogHandler.GetRetentionDays)
			admin.PUT("/system-logs/retention", systemLogHandler.SetRetentionDays)
			admin.POST("/system-logs/cleanup", systemLogHandler.Cleanup)

			// System Config
			systemConfigHandler := handlers.NewSystemConfigHandler(db, svc.dailyReportService)
			admin.GET("/system-config", systemConfigHandler.GetByGroup)
			admin.PUT("/system-config", systemConfigHandler.UpdateBatch)
			admin.GET("/system-config/daily-report", systemConfigHandler.GetDailyReportConfig)
			admin.PUT("/system-config/daily-report", systemConfigHandler.UpdateDailyReportConfig)

			// Daily Reports
			dailyReportHandler := handlers.NewDailyReportHandler(svc.dailyReportService)
			admin.GET("/daily-reports", dailyReportHandler.List)
			admin.GET("/daily-reports/:id", dailyReportHandler.Get)
			admin.POST("/daily-reports/generate", dailyReportHandler.Generate)
			admin.POST("/daily-reports/:id/resend", dailyReportHandler.Resend)
		}
	}
}
