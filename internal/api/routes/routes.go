package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/solfortune/custody-service/internal/api/handlers"
	"github.com/solfortune/custody-service/internal/api/middleware"
	"github.com/solfortune/custody-service/internal/infrastructure/config"
	"github.com/solfortune/custody-service/pkg/logger"
	"github.com/solfortune/custody-service/pkg/metrics"
)

// Handlers bundles everything the router wires up
type Handlers struct {
	Deposits    *handlers.DepositHandlers
	Withdrawals *handlers.WithdrawalHandlers
	Webhooks    *handlers.WebhookHandlers
	Rates       *handlers.RatesHandlers
	Health      *handlers.HealthHandlers
}

// Setup configures all routes and middleware on the engine
func Setup(router *gin.Engine, cfg *config.Config, log *logger.Logger, h Handlers) {
	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery(log))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORS([]string{"*"}))
	router.Use(middleware.RequestSizeLimit())
	router.Use(middleware.Logger(log))
	router.Use(middleware.Metrics())

	// Probes and scrape endpoint stay outside auth
	router.GET("/health", h.Health.Liveness)
	router.GET("/health/ready", h.Health.Readiness)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(middleware.RateLimit(120))

	// Provider callbacks authenticate with the shared secret, not user JWTs
	webhooks := v1.Group("/webhooks")
	webhooks.Use(middleware.WebhookAuth(cfg.Webhook.SharedSecret, log))
	{
		webhooks.POST("/solana", h.Webhooks.IngestSolana)
	}

	v1.GET("/rates", h.Rates.GetRates)

	authed := v1.Group("")
	authed.Use(middleware.Authentication(cfg, log))

	deposits := authed.Group("/deposits")
	{
		deposits.POST("/wallet", h.Deposits.ConnectWallet)
		deposits.GET("/wallet", h.Deposits.GetConnectedWallet)
		deposits.POST("/initiate", h.Deposits.InitiateDeposit)
		deposits.POST("/:depositId/confirm", h.Deposits.ConfirmDeposit)
		deposits.GET("/address", h.Deposits.GetDepositAddress)
		deposits.GET("/manual/instructions", h.Deposits.GetManualInstructions)
		deposits.POST("/manual/claim", h.Deposits.SubmitManualClaim)
		deposits.GET("", h.Deposits.ListDeposits)
		deposits.GET("/:depositId", h.Deposits.GetDeposit)
	}

	withdrawals := authed.Group("/withdrawals")
	{
		withdrawals.POST("/preview", h.Withdrawals.PreviewWithdrawal)
		withdrawals.POST("/prepare", h.Withdrawals.PrepareWithdrawal)
		withdrawals.POST("/:withdrawalId/confirm", h.Withdrawals.ConfirmWithdrawal)
		withdrawals.POST("/:withdrawalId/cancel", h.Withdrawals.CancelWithdrawal)
		withdrawals.POST("/instant", h.Withdrawals.CreateInstantWithdrawal)
		withdrawals.GET("", h.Withdrawals.ListWithdrawals)
		withdrawals.GET("/:withdrawalId", h.Withdrawals.GetWithdrawal)
	}
}
