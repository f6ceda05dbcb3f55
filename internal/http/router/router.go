package router

import (
	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/escrow-backend/internal/config"
	"github.com/ignatzorin/escrow-backend/internal/http/handlers"
	"github.com/ignatzorin/escrow-backend/internal/http/middleware"
	"github.com/ignatzorin/escrow-backend/internal/service"
)

func SetupRouter(
	cfg *config.Config,
	contractHandler *handlers.ContractHandler,
	disputeHandler *handlers.DisputeHandler,
	notificationHandler *handlers.NotificationHandler,
	healthHandler *handlers.HealthHandler,
	wsHandler *handlers.WSHandler,
	tokenManager *service.TokenManager,
) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	r.GET("/health", healthHandler.Health)

	api := r.Group("/api")

	api.GET("/ws", wsHandler.Handle)

	// Money-moving endpoints получают отдельный, более жёсткий лимит:
	// каждая операция стоит газа и подтверждается on-chain.
	chainRateLimit := middleware.RateLimitMiddleware(cfg.RateLimitLimit, cfg.RateLimitPeriod)

	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(tokenManager))
	{
		protected.POST("/contracts", contractHandler.CreateContract)
		protected.GET("/contracts", contractHandler.ListContracts)

		contract := protected.Group("/contracts/:id")
		contract.Use(middleware.UUIDValidator("id"))
		{
			contract.GET("", contractHandler.GetContract)

			// Переговорный протокол до публикации
			contract.POST("/accept", contractHandler.Accept)
			contract.POST("/reject", contractHandler.Reject)
			contract.POST("/request-revision", contractHandler.RequestRevision)
			contract.PUT("/terms", contractHandler.EditTerms)

			// Публикация и движение средств
			contract.POST("/publish", chainRateLimit, contractHandler.Publish)
			contract.POST("/fund", chainRateLimit, contractHandler.Fund)
			contract.POST("/milestones/:index/release", chainRateLimit, contractHandler.ReleaseMilestone)
			contract.POST("/sync", contractHandler.Sync)

			// Споры и отзывы
			contract.POST("/disputes", disputeHandler.RaiseDispute)
			contract.POST("/reviews", contractHandler.SubmitReview)
		}

		protected.GET("/disputes", disputeHandler.ListDisputes)
		protected.GET("/disputes/:id", middleware.UUIDValidator("id"), disputeHandler.GetDispute)

		protected.GET("/notifications", notificationHandler.ListNotifications)
		protected.GET("/notifications/unread-count", notificationHandler.CountUnread)
		protected.POST("/notifications/:id/read", middleware.UUIDValidator("id"), notificationHandler.MarkAsRead)
	}

	// Арбитраж доступен только администраторам
	admin := api.Group("/admin")
	admin.Use(middleware.AuthMiddleware(tokenManager), middleware.AdminOnly())
	{
		admin.POST("/disputes/:id/review", middleware.UUIDValidator("id"), disputeHandler.ReviewDispute)
		admin.POST("/disputes/:id/resolve", middleware.UUIDValidator("id"), disputeHandler.ResolveDispute)
		admin.POST("/disputes/:id/close", middleware.UUIDValidator("id"), disputeHandler.CloseDispute)
	}

	return r
}
