package sweep

import (
	"context"
	"fmt"
	"sync"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"

	"github.com/solfortune/custody-service/internal/domain/entities"
	"github.com/solfortune/custody-service/internal/infrastructure/config"
	"github.com/solfortune/custody-service/pkg/logger"
	"github.com/solfortune/custody-service/pkg/metrics"
)

// AddressRepository is the slice of deposit-address persistence the sweep
// needs
type AddressRepository interface {
	ListActive(ctx context.Context, chain entities.Chain) ([]*entities.DepositAddress, error)
	TouchSwept(ctx context.Context, id uuid.UUID) error
}

// KeyDeriver re-derives signing material for swept addresses
type KeyDeriver interface {
	IsConfigured() bool
	SigningKeyFor(index uint32) (solanago.PrivateKey, error)
	Validate(index uint32, expectedAddress string) error
}

// ChainClient is the gateway surface the sweep uses
type ChainClient interface {
	GetBalance(ctx context.Context, address string) (decimal.Decimal, error)
	GetTokenBalance(ctx context.Context, owner string, mint solanago.PublicKey) (decimal.Decimal, error)
	GetRentExemptReserve(ctx context.Context) (uint64, error)
	TransferNative(ctx context.Context, from solanago.PrivateKey, to solanago.PublicKey, lamports uint64) (string, error)
	TransferToken(ctx context.Context, from solanago.PrivateKey, to solanago.PublicKey, mint solanago.PublicKey, amount uint64) (string, error)
	TransferNativeFromHot(ctx context.Context, to solanago.PublicKey, lamports uint64) (string, error)
	MintFor(currency entities.Currency) (solanago.PublicKey, bool)
	HotWallet() (solanago.PublicKey, bool)
}

// RunReport summarizes one sweep pass
type RunReport struct {
	Addresses int
	Transfers int
	Errors    []error
}

// Engine drains per-user deposit addresses into hot-wallet custody on a
// schedule. Passes are single flight: an overlapping trigger is skipped
// outright because two concurrent sweeps of one address can double-spend at
// the chain level.
type Engine struct {
	addresses AddressRepository
	deriver   KeyDeriver
	chain     ChainClient
	cfg       config.SweepConfig
	log       *logger.Logger

	cron    *cron.Cron
	entryID cron.EntryID
	running sync.Mutex
}

// NewEngine creates the sweep engine
func NewEngine(addresses AddressRepository, deriver KeyDeriver, chain ChainClient, cfg config.SweepConfig, log *logger.Logger) *Engine {
	return &Engine{
		addresses: addresses,
		deriver:   deriver,
		chain:     chain,
		cfg:       cfg,
		log:       log,
	}
}

// Start schedules periodic sweep passes
func (e *Engine) Start(ctx context.Context) error {
	if !e.cfg.Enabled {
		e.log.Info("sweep engine disabled by configuration")
		return nil
	}
	if !e.deriver.IsConfigured() {
		e.log.Warn("sweep engine disabled: master seed not configured")
		return nil
	}
	if _, ok := e.chain.HotWallet(); !ok {
		e.log.Warn("sweep engine disabled: hot wallet not configured")
		return nil
	}

	interval := e.cfg.IntervalMinutes
	if interval <= 0 {
		interval = 15
	}

	e.cron = cron.New()
	entryID, err := e.cron.AddFunc(fmt.Sprintf("@every %dm", interval), func() {
		if report, err := e.RunOnce(ctx); err != nil {
			e.log.Error("sweep pass failed", "error", err)
		} else if report != nil {
			e.log.Info("sweep pass finished",
				"addresses", report.Addresses,
				"transfers", report.Transfers,
				"errors", len(report.Errors),
			)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}
	e.entryID = entryID
	e.cron.Start()

	e.log.Info("sweep engine started", "interval_minutes", interval)
	return nil
}

// Stop halts the schedule and waits for a running pass
func (e *Engine) Stop() {
	if e.cron != nil {
		stopCtx := e.cron.Stop()
		<-stopCtx.Done()
	}
	// A pass triggered before Stop may still hold the lock
	e.running.Lock()
	e.running.Unlock()
}

// RunOnce executes a single sweep pass. Returns nil report when another pass
// is already in flight.
func (e *Engine) RunOnce(ctx context.Context) (*RunReport, error) {
	if !e.running.TryLock() {
		e.log.Warn("sweep pass skipped, previous pass still running")
		return nil, nil
	}
	defer e.running.Unlock()

	hotWallet, ok := e.chain.HotWallet()
	if !ok {
		return nil, fmt.Errorf("hot wallet not configured")
	}

	addrs, err := e.addresses.ListActive(ctx, entities.ChainSolana)
	if err != nil {
		metrics.SweepRunsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	rentReserve, err := e.chain.GetRentExemptReserve(ctx)
	if err != nil {
		metrics.SweepRunsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	report := &RunReport{Addresses: len(addrs)}
	for _, addr := range addrs {
		transfers, err := e.sweepAddress(ctx, addr, hotWallet, rentReserve)
		report.Transfers += transfers
		if err != nil {
			report.Errors = append(report.Errors, fmt.Errorf("address %s: %w", addr.Address, err))
			e.log.Error("sweep failed for address", "address", addr.Address, "error", err)
			continue
		}
		if err := e.addresses.TouchSwept(ctx, addr.ID); err != nil {
			e.log.Warn("failed to record sweep timestamp", "address", addr.Address, "error", err)
		}
	}

	if len(report.Errors) > 0 {
		metrics.SweepRunsTotal.WithLabelValues("partial").Inc()
	} else {
		metrics.SweepRunsTotal.WithLabelValues("success").Inc()
	}

	return report, nil
}

// sweepAddress drains one address: tokens first (with a gas top-up when the
// address cannot pay fees), native remainder last so the address is never
// stranded without fee money mid-pass
func (e *Engine) sweepAddress(ctx context.Context, addr *entities.DepositAddress, hotWallet solanago.PublicKey, rentReserve uint64) (int, error) {
	// Integrity check before anything signs with this index
	if err := e.deriver.Validate(addr.DerivationIndex, addr.Address); err != nil {
		return 0, fmt.Errorf("derivation check failed: %w", err)
	}

	signingKey, err := e.deriver.SigningKeyFor(addr.DerivationIndex)
	if err != nil {
		return 0, err
	}

	nativeBalance, err := e.chain.GetBalance(ctx, addr.Address)
	if err != nil {
		return 0, err
	}

	transfers := 0
	tokenMinimums := []struct {
		currency entities.Currency
		min      decimal.Decimal
	}{
		{entities.CurrencyUSDT, decimal.NewFromFloat(e.cfg.MinUSDTSweep)},
		{entities.CurrencyFORT, decimal.NewFromFloat(e.cfg.MinFortSweep)},
	}

	for _, token := range tokenMinimums {
		currency := token.currency
		mint, ok := e.chain.MintFor(currency)
		if !ok {
			continue
		}

		balance, err := e.chain.GetTokenBalance(ctx, addr.Address, mint)
		if err != nil {
			return transfers, err
		}
		if balance.LessThan(token.min) {
			continue
		}

		// Token transfers need native balance for fees
		nativeBalance, err = e.ensureGas(ctx, addr.Address, nativeBalance)
		if err != nil {
			return transfers, err
		}

		sig, err := e.chain.TransferToken(ctx, signingKey, hotWallet, mint, currency.ToBaseUnits(balance))
		if err != nil {
			return transfers, fmt.Errorf("token sweep failed: %w", err)
		}
		transfers++
		metrics.SweepTransfersTotal.WithLabelValues(string(currency)).Inc()
		e.log.Info("token balance swept",
			"address", addr.Address,
			"currency", currency,
			"amount", balance.String(),
			"signature", sig,
		)
	}

	// Native sweep last: leave the rent-exempt reserve behind so the
	// account survives
	reserve := entities.CurrencySOL.FromBaseUnits(rentReserve)
	sweepable := nativeBalance.Sub(reserve)
	if sweepable.GreaterThanOrEqual(decimal.NewFromFloat(e.cfg.MinNativeSweep)) {
		sig, err := e.chain.TransferNative(ctx, signingKey, hotWallet, entities.CurrencySOL.ToBaseUnits(sweepable))
		if err != nil {
			return transfers, fmt.Errorf("native sweep failed: %w", err)
		}
		transfers++
		metrics.SweepTransfersTotal.WithLabelValues(string(entities.CurrencySOL)).Inc()
		e.log.Info("native balance swept",
			"address", addr.Address,
			"amount", sweepable.String(),
			"signature", sig,
		)
	}

	return transfers, nil
}

// ensureGas tops up an address from the hot wallet when it cannot pay
// transaction fees. Returns the (possibly updated) native balance.
func (e *Engine) ensureGas(ctx context.Context, address string, nativeBalance decimal.Decimal) (decimal.Decimal, error) {
	minGas := decimal.NewFromFloat(e.cfg.MinGasBalance)
	if nativeBalance.GreaterThanOrEqual(minGas) {
		return nativeBalance, nil
	}

	topUp := decimal.NewFromFloat(e.cfg.GasTopUp)
	dest, err := solanago.PublicKeyFromBase58(address)
	if err != nil {
		return nativeBalance, fmt.Errorf("invalid sweep address: %w", err)
	}

	sig, err := e.chain.TransferNativeFromHot(ctx, dest, entities.CurrencySOL.ToBaseUnits(topUp))
	if err != nil {
		return nativeBalance, fmt.Errorf("gas top-up failed: %w", err)
	}

	e.log.Info("gas topped up for sweep", "address", address, "amount", topUp.String(), "signature", sig)

	// Give the top-up a moment to land before the token transfer spends it
	select {
	case <-ctx.Done():
		return nativeBalance, ctx.Err()
	case <-time.After(2 * time.Second):
	}

	return nativeBalance.Add(topUp), nil
}
