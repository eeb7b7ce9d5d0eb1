package vault_float

import (
	"context"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"github.com/solfortune/custody-service/internal/domain/entities"
	"github.com/solfortune/custody-service/pkg/logger"
)

// ChainClient reads the hot wallet's stablecoin position
type ChainClient interface {
	HotWallet() (solanago.PublicKey, bool)
	MintFor(currency entities.Currency) (solanago.PublicKey, bool)
	GetTokenBalance(ctx context.Context, owner string, mint solanago.PublicKey) (decimal.Decimal, error)
}

// VaultBridge moves the surplus into pooled custody
type VaultBridge interface {
	Enabled() bool
	Deposit(ctx context.Context, usdAmount decimal.Decimal) (string, error)
}

// Worker keeps the hot wallet's stablecoin float near its target by
// depositing the surplus into the vault. The hot wallet keeps the target as
// working float for gas top-ups and sweeps.
type Worker struct {
	chain         ChainClient
	vault         VaultBridge
	floatTarget   decimal.Decimal
	checkInterval time.Duration
	logger        *logger.Logger
	stopCh        chan struct{}
}

// Config holds worker configuration
type Config struct {
	FloatTarget   float64
	CheckInterval time.Duration
}

// NewWorker creates a new vault float worker
func NewWorker(chain ChainClient, vault VaultBridge, config *Config, logger *logger.Logger) *Worker {
	interval := config.CheckInterval
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Worker{
		chain:         chain,
		vault:         vault,
		floatTarget:   decimal.NewFromFloat(config.FloatTarget),
		checkInterval: interval,
		logger:        logger,
		stopCh:        make(chan struct{}),
	}
}

// Start begins the float worker
func (w *Worker) Start(ctx context.Context) {
	if !w.vault.Enabled() {
		w.logger.Info("Vault float worker disabled: vault bridge not configured")
		return
	}

	w.logger.Info("Starting vault float worker",
		"float_target", w.floatTarget.String(),
		"check_interval", w.checkInterval.String())

	ticker := time.NewTicker(w.checkInterval)
	defer ticker.Stop()

	w.rebalance(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Vault float worker stopped (context cancelled)")
			return
		case <-w.stopCh:
			w.logger.Info("Vault float worker stopped")
			return
		case <-ticker.C:
			w.rebalance(ctx)
		}
	}
}

// Stop stops the worker
func (w *Worker) Stop() {
	close(w.stopCh)
}

func (w *Worker) rebalance(ctx context.Context) {
	hotWallet, ok := w.chain.HotWallet()
	if !ok {
		return
	}
	mint, ok := w.chain.MintFor(entities.CurrencyUSDT)
	if !ok {
		return
	}

	balance, err := w.chain.GetTokenBalance(ctx, hotWallet.String(), mint)
	if err != nil {
		w.logger.Error("Vault float check failed", "error", err)
		return
	}

	surplus := balance.Sub(w.floatTarget)
	if surplus.LessThanOrEqual(decimal.Zero) {
		return
	}

	sig, err := w.vault.Deposit(ctx, surplus)
	if err != nil {
		w.logger.Error("Vault float deposit failed", "surplus", surplus.String(), "error", err)
		return
	}

	w.logger.Info("Hot wallet surplus deposited into vault",
		"surplus", surplus.String(),
		"signature", sig)
}

// RunOnce runs one rebalance pass (for testing or manual trigger)
func (w *Worker) RunOnce(ctx context.Context) {
	w.rebalance(ctx)
}
