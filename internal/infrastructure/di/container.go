package di

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/solfortune/custody-service/internal/domain/services/deposit"
	"github.com/solfortune/custody-service/internal/domain/services/pricing"
	"github.com/solfortune/custody-service/internal/domain/services/sweep"
	"github.com/solfortune/custody-service/internal/domain/services/treasury"
	"github.com/solfortune/custody-service/internal/domain/services/withdrawal"
	"github.com/solfortune/custody-service/internal/infrastructure/cache"
	"github.com/solfortune/custody-service/internal/infrastructure/config"
	"github.com/solfortune/custody-service/internal/infrastructure/database"
	"github.com/solfortune/custody-service/internal/infrastructure/hdwallet"
	"github.com/solfortune/custody-service/internal/infrastructure/marketfeed"
	"github.com/solfortune/custody-service/internal/infrastructure/repositories"
	solanaclient "github.com/solfortune/custody-service/internal/infrastructure/solana"
	"github.com/solfortune/custody-service/internal/infrastructure/webhookprovider"
	"github.com/solfortune/custody-service/internal/workers/credit_recovery"
	"github.com/solfortune/custody-service/internal/workers/vault_float"
	"github.com/solfortune/custody-service/internal/workers/withdrawal_expiry"
	"github.com/solfortune/custody-service/pkg/logger"
	"github.com/solfortune/custody-service/pkg/queue"
)

// Container wires the service graph leaves first: infrastructure, then
// repositories, then the chain gateway and oracle, then the orchestrators
// that depend on them. The deposit/treasury/withdrawal cross-references are
// interface-typed so no constructor needs a peer that does not exist yet.
type Container struct {
	Config *config.Config
	Logger *logger.Logger

	DB        *sqlx.DB
	Redis     cache.RedisClient
	Publisher queue.Publisher

	Chain  *solanaclient.Client
	Wallet *hdwallet.Wallet

	DepositRepo    *repositories.DepositRepository
	AddressRepo    *repositories.DepositAddressRepository
	ConnectionRepo *repositories.WalletConnectionRepository
	WithdrawalRepo *repositories.WithdrawalRepository
	BalanceRepo    *repositories.UserBalanceRepository
	AuditRepo      *repositories.TransactionRepository
	ReferralRepo   *repositories.ReferralRepository

	Pricing     *pricing.Service
	Credit      *deposit.CreditProcessor
	Deposits    *deposit.Service
	Treasury    *treasury.Service
	Withdrawals *withdrawal.Service
	Sweep       *sweep.Engine

	ExpiryWorker   *withdrawal_expiry.Worker
	FloatWorker    *vault_float.Worker
	RecoveryWorker *credit_recovery.Worker
}

// hotWalletSource adapts the chain client to the string-typed surface the
// deposit orchestrator declares
type hotWalletSource struct {
	chain *solanaclient.Client
}

func (h *hotWalletSource) HotWalletAddress() (string, bool) {
	pub, ok := h.chain.HotWallet()
	if !ok {
		return "", false
	}
	return pub.String(), true
}

// NewContainer builds the full service graph
func NewContainer(cfg *config.Config, log *logger.Logger) (*Container, error) {
	c := &Container{Config: cfg, Logger: log}

	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	c.DB = db

	redisClient, err := cache.NewRedisClient(&cfg.Redis, log.Zap())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	c.Redis = redisClient
	c.Publisher = queue.NewRedisPublisher(redisClient.Client(), log)

	chain, err := solanaclient.NewClient(cfg.Solana, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create chain client: %w", err)
	}
	c.Chain = chain

	wallet, err := hdwallet.New(cfg.Solana.MasterSeedMnemonic)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize hd wallet: %w", err)
	}
	c.Wallet = wallet

	c.DepositRepo = repositories.NewDepositRepository(db)
	c.AddressRepo = repositories.NewDepositAddressRepository(db)
	c.ConnectionRepo = repositories.NewWalletConnectionRepository(db)
	c.WithdrawalRepo = repositories.NewWithdrawalRepository(db)
	c.BalanceRepo = repositories.NewUserBalanceRepository(db)
	c.AuditRepo = repositories.NewTransactionRepository(db)
	c.ReferralRepo = repositories.NewReferralRepository(db)

	marketFeed := marketfeed.NewClient(cfg.Pricing.MarketAPIBaseURL, log)
	c.Pricing = pricing.NewService(marketFeed, redisClient, cfg.Pricing, log)

	c.Credit = deposit.NewCreditProcessor(
		db,
		c.DepositRepo,
		c.BalanceRepo,
		c.AuditRepo,
		c.ReferralRepo,
		c.Pricing,
		c.Publisher,
		cfg.Referral,
		log,
	)

	registry := deposit.NewAddressRegistry()
	parser := deposit.NewParser(registry, chain)
	registrar := webhookprovider.NewClient(cfg.Webhook, log)

	c.Deposits = deposit.NewService(
		c.DepositRepo,
		c.AddressRepo,
		c.ConnectionRepo,
		wallet,
		registrar,
		c.Credit,
		&hotWalletSource{chain: chain},
		registry,
		parser,
		cfg.Deposit,
		log,
	)

	vault, err := treasury.NewService(chain, cfg.Treasury, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault bridge: %w", err)
	}
	c.Treasury = vault

	c.Withdrawals = withdrawal.NewService(
		db,
		c.WithdrawalRepo,
		c.BalanceRepo,
		c.AuditRepo,
		withdrawal.NewLedgerFundSource(c.BalanceRepo),
		vault,
		chain,
		c.Publisher,
		cfg.Withdrawal,
		log,
	)

	c.Sweep = sweep.NewEngine(c.AddressRepo, wallet, chain, cfg.Sweep, log)

	c.ExpiryWorker = withdrawal_expiry.NewWorker(c.Withdrawals, &withdrawal_expiry.Config{
		CheckInterval: time.Duration(cfg.Withdrawal.CleanupIntervalMinutes) * time.Minute,
		BatchSize:     50,
	}, log)

	c.FloatWorker = vault_float.NewWorker(chain, vault, &vault_float.Config{
		FloatTarget:   cfg.Treasury.FloatTarget,
		CheckInterval: time.Duration(cfg.Treasury.FloatIntervalMinutes) * time.Minute,
	}, log)

	c.RecoveryWorker = credit_recovery.NewWorker(c.DepositRepo, c.Credit, nil, log)

	return c, nil
}

// Start brings up registries, pollers and background jobs
func (c *Container) Start(ctx context.Context) error {
	if err := c.Deposits.LoadRegistry(ctx); err != nil {
		return fmt.Errorf("failed to load address registry: %w", err)
	}

	c.Pricing.Start(ctx)

	if err := c.Sweep.Start(ctx); err != nil {
		return fmt.Errorf("failed to start sweep engine: %w", err)
	}

	go c.ExpiryWorker.Start(ctx)
	go c.FloatWorker.Start(ctx)
	go c.RecoveryWorker.Start(ctx)

	return nil
}

// Stop tears the background machinery down in reverse order
func (c *Container) Stop() {
	c.RecoveryWorker.Stop()
	c.FloatWorker.Stop()
	c.ExpiryWorker.Stop()
	c.Sweep.Stop()
	c.Pricing.Stop()

	if c.Publisher != nil {
		if err := c.Publisher.Close(); err != nil {
			c.Logger.Warn("failed to close event publisher", "error", err)
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			c.Logger.Warn("failed to close redis client", "error", err)
		}
	}
	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			c.Logger.Warn("failed to close database", "error", err)
		}
	}
}
