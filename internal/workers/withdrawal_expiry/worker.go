package withdrawal_expiry

import (
	"context"
	"time"

	"github.com/solfortune/custody-service/pkg/logger"
)

// WithdrawalService is the slice of the withdrawal orchestrator this worker
// drives
type WithdrawalService interface {
	CancelExpired(ctx context.Context, limit int) (int, error)
}

// Worker reclaims wallet-connect withdrawals whose claim window lapsed. It
// never gives up on an individual withdrawal: on-chain cancellation failures
// stay pending and are retried every cycle until they succeed.
type Worker struct {
	withdrawals   WithdrawalService
	checkInterval time.Duration
	batchSize     int
	logger        *logger.Logger
	stopCh        chan struct{}
}

// Config holds worker configuration
type Config struct {
	CheckInterval time.Duration
	BatchSize     int
}

// DefaultConfig returns default worker configuration
func DefaultConfig() *Config {
	return &Config{
		CheckInterval: 5 * time.Minute,
		BatchSize:     50,
	}
}

// NewWorker creates a new withdrawal expiry worker
func NewWorker(withdrawals WithdrawalService, config *Config, logger *logger.Logger) *Worker {
	if config == nil {
		config = DefaultConfig()
	}
	return &Worker{
		withdrawals:   withdrawals,
		checkInterval: config.CheckInterval,
		batchSize:     config.BatchSize,
		logger:        logger,
		stopCh:        make(chan struct{}),
	}
}

// Start begins the expiry worker
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("Starting withdrawal expiry worker",
		"check_interval", w.checkInterval.String(),
		"batch_size", w.batchSize)

	ticker := time.NewTicker(w.checkInterval)
	defer ticker.Stop()

	w.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Withdrawal expiry worker stopped (context cancelled)")
			return
		case <-w.stopCh:
			w.logger.Info("Withdrawal expiry worker stopped")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

// Stop stops the worker
func (w *Worker) Stop() {
	close(w.stopCh)
}

func (w *Worker) sweep(ctx context.Context) {
	cancelled, err := w.withdrawals.CancelExpired(ctx, w.batchSize)
	if err != nil {
		w.logger.Error("Withdrawal expiry sweep failed", "error", err)
		return
	}
	if cancelled > 0 {
		w.logger.Info("Expired withdrawals reclaimed", "cancelled", cancelled)
	}
}

// RunOnce runs one sweep (for testing or manual trigger)
func (w *Worker) RunOnce(ctx context.Context) {
	w.sweep(ctx)
}
