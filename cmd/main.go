package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/solfortune/custody-service/internal/api/handlers"
	"github.com/solfortune/custody-service/internal/api/routes"
	"github.com/solfortune/custody-service/internal/infrastructure/config"
	"github.com/solfortune/custody-service/internal/infrastructure/database"
	"github.com/solfortune/custody-service/internal/infrastructure/di"
	"github.com/solfortune/custody-service/pkg/graceful"
	"github.com/solfortune/custody-service/pkg/logger"
	"github.com/solfortune/custody-service/pkg/metrics"
	"github.com/solfortune/custody-service/pkg/tracing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	log := logger.New(cfg.LogLevel, cfg.Environment)

	tracingConfig := tracing.Config{
		Enabled:      cfg.Environment != "test",
		CollectorURL: "localhost:4317",
		Environment:  cfg.Environment,
		SampleRate:   1.0,
	}
	tracingShutdown, err := tracing.InitTracer(context.Background(), tracingConfig, log.Zap())
	if err != nil {
		log.Fatal("Failed to initialize tracing", "error", err)
	}
	defer tracingShutdown(context.Background())

	if err := database.RunMigrations(cfg.Database.URL); err != nil {
		log.Fatal("Failed to run migrations", "error", err)
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	container, err := di.NewContainer(cfg, log)
	if err != nil {
		log.Fatal("Failed to build service graph", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := container.Start(ctx); err != nil {
		log.Fatal("Failed to start background services", "error", err)
	}

	router := gin.New()
	routes.Setup(router, cfg, log, routes.Handlers{
		Deposits:    handlers.NewDepositHandlers(container.Deposits, log),
		Withdrawals: handlers.NewWithdrawalHandlers(container.Withdrawals, log),
		Webhooks:    handlers.NewWebhookHandlers(container.Deposits, log),
		Rates:       handlers.NewRatesHandlers(container.Pricing, log),
		Health:      handlers.NewHealthHandlers(container.DB, container.Redis, container.Chain, log),
	})

	server := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        router,
		ReadTimeout:    time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1MB
	}

	go func() {
		log.Info("Starting server",
			"port", cfg.Server.Port,
			"environment", cfg.Environment,
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", "error", err)
		}
	}()

	// Connection pool gauges for the scrape endpoint
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for range ticker.C {
			stats := container.DB.Stats()
			metrics.DatabaseConnectionsGauge.WithLabelValues("open").Set(float64(stats.OpenConnections))
			metrics.DatabaseConnectionsGauge.WithLabelValues("idle").Set(float64(stats.Idle))
			metrics.DatabaseConnectionsGauge.WithLabelValues("in_use").Set(float64(stats.InUse))
		}
	}()

	sm := graceful.NewShutdownManager(server, container.DB.DB, log)
	sm.Register(&backgroundShutdowner{cancel: cancel, container: container})
	sm.WaitForShutdown()
}

// backgroundShutdowner stops workers and pollers before the HTTP server
// drains
type backgroundShutdowner struct {
	cancel    context.CancelFunc
	container *di.Container
}

func (s *backgroundShutdowner) Shutdown(timeout time.Duration) error {
	s.cancel()
	s.container.Stop()
	return nil
}
