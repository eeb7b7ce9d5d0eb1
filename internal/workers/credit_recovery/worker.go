package credit_recovery

import (
	"context"
	"time"

	"github.com/solfortune/custody-service/internal/domain/entities"
	"github.com/solfortune/custody-service/pkg/logger"
)

// DepositRepository interface for deposit lookups
type DepositRepository interface {
	ListConfirmedUncredited(ctx context.Context, limit int) ([]*entities.Deposit, error)
}

// CreditProcessor interface for applying the credit step
type CreditProcessor interface {
	Credit(ctx context.Context, deposit *entities.Deposit) error
}

// Worker re-drives deposits stranded between confirmation and credit. A crash
// or a price-feed outage between the two steps leaves rows in confirmed;
// Credit itself guards against double application, so retrying here is safe.
type Worker struct {
	deposits      DepositRepository
	processor     CreditProcessor
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
		BatchSize:     100,
	}
}

// NewWorker creates a new credit recovery worker
func NewWorker(deposits DepositRepository, processor CreditProcessor, config *Config, logger *logger.Logger) *Worker {
	if config == nil {
		config = DefaultConfig()
	}

	return &Worker{
		deposits:      deposits,
		processor:     processor,
		checkInterval: config.CheckInterval,
		batchSize:     config.BatchSize,
		logger:        logger,
		stopCh:        make(chan struct{}),
	}
}

// Start begins the recovery loop. Blocks until Stop is called or the
// context is cancelled.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("Starting credit recovery worker",
		"check_interval", w.checkInterval,
		"batch_size", w.batchSize,
	)

	ticker := time.NewTicker(w.checkInterval)
	defer ticker.Stop()

	w.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Credit recovery worker stopped", "reason", "context cancelled")
			return
		case <-w.stopCh:
			w.logger.Info("Credit recovery worker stopped", "reason", "stop requested")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// Stop signals the worker to stop
func (w *Worker) Stop() {
	close(w.stopCh)
}

// RunOnce processes a single batch of stranded deposits
func (w *Worker) RunOnce(ctx context.Context) {
	deposits, err := w.deposits.ListConfirmedUncredited(ctx, w.batchSize)
	if err != nil {
		w.logger.Error("Failed to list uncredited deposits", "error", err)
		return
	}

	if len(deposits) == 0 {
		return
	}

	recovered := 0
	for _, deposit := range deposits {
		if err := w.processor.Credit(ctx, deposit); err != nil {
			// Stays confirmed and is picked up again next cycle
			w.logger.Warn("Failed to recover deposit credit",
				"deposit_id", deposit.ID,
				"error", err,
			)
			continue
		}
		recovered++
	}

	w.logger.Info("Credit recovery pass finished",
		"found", len(deposits),
		"recovered", recovered,
	)
}
