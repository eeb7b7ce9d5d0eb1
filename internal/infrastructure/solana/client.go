package solana

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"

	"github.com/solfortune/custody-service/internal/domain/entities"
	domainErrors "github.com/solfortune/custody-service/internal/domain/errors"
	"github.com/solfortune/custody-service/internal/infrastructure/config"
	"github.com/solfortune/custody-service/pkg/logger"
	"github.com/solfortune/custody-service/pkg/retry"
)

// Client is the single gateway for all chain RPC traffic. Signing keys are
// loaded once at construction; a missing key disables the dependent feature
// instead of failing startup.
type Client struct {
	rpc        *rpc.Client
	log        *logger.Logger
	breaker    *gobreaker.CircuitBreaker
	retrier    *retry.Retrier
	commitment rpc.CommitmentType

	hotWallet    *solanago.PrivateKey
	payoutWallet *solanago.PrivateKey
	usdtMint     solanago.PublicKey
	fortMint     solanago.PublicKey

	// sendMu serializes submissions per source wallet so two concurrent
	// sends never race on the same recent blockhash and nonce ordering
	sendMu   map[string]*sync.Mutex
	sendMuMu sync.Mutex
}

func NewClient(cfg config.SolanaConfig, log *logger.Logger) (*Client, error) {
	if cfg.RPCEndpoint == "" {
		return nil, fmt.Errorf("solana rpc endpoint not configured")
	}

	commitment := rpc.CommitmentConfirmed
	if cfg.Commitment == "finalized" {
		commitment = rpc.CommitmentFinalized
	}

	c := &Client{
		rpc:        rpc.New(cfg.RPCEndpoint),
		log:        log,
		commitment: commitment,
		sendMu:     make(map[string]*sync.Mutex),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "solana_rpc",
			MaxRequests: 3,
			Interval:    30 * time.Second,
			Timeout:     60 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 5
			},
		}),
	}

	// Reads retry on transient RPC failures. Absent accounts and an open
	// breaker are terminal for the attempt.
	policy := retry.DefaultPolicy()
	policy.RetryableFunc = func(err error) bool {
		if errors.Is(err, rpc.ErrNotFound) ||
			errors.Is(err, gobreaker.ErrOpenState) ||
			errors.Is(err, gobreaker.ErrTooManyRequests) {
			return false
		}
		return true
	}
	c.retrier = retry.NewRetrier(policy, log.Zap())

	if cfg.HotWalletKey != "" {
		key, err := solanago.PrivateKeyFromBase58(cfg.HotWalletKey)
		if err != nil {
			return nil, fmt.Errorf("invalid hot wallet key: %w", err)
		}
		c.hotWallet = &key
	}
	if cfg.PayoutWalletKey != "" {
		key, err := solanago.PrivateKeyFromBase58(cfg.PayoutWalletKey)
		if err != nil {
			return nil, fmt.Errorf("invalid payout wallet key: %w", err)
		}
		c.payoutWallet = &key
	}
	if cfg.USDTMint != "" {
		mint, err := solanago.PublicKeyFromBase58(cfg.USDTMint)
		if err != nil {
			return nil, fmt.Errorf("invalid usdt mint: %w", err)
		}
		c.usdtMint = mint
	}
	if cfg.FortMint != "" {
		mint, err := solanago.PublicKeyFromBase58(cfg.FortMint)
		if err != nil {
			return nil, fmt.Errorf("invalid fort mint: %w", err)
		}
		c.fortMint = mint
	}

	return c, nil
}

// HotWallet returns the shared custody wallet public key, or false when the
// key is not configured
func (c *Client) HotWallet() (solanago.PublicKey, bool) {
	if c.hotWallet == nil {
		return solanago.PublicKey{}, false
	}
	return c.hotWallet.PublicKey(), true
}

// PayoutWallet returns the instant-payout wallet public key, or false when
// the key is not configured
func (c *Client) PayoutWallet() (solanago.PublicKey, bool) {
	if c.payoutWallet == nil {
		return solanago.PublicKey{}, false
	}
	return c.payoutWallet.PublicKey(), true
}

func (c *Client) hotWalletKey() (solanago.PrivateKey, error) {
	if c.hotWallet == nil {
		return nil, domainErrors.NotConfiguredError("hot wallet")
	}
	return *c.hotWallet, nil
}

func (c *Client) payoutWalletKey() (solanago.PrivateKey, error) {
	if c.payoutWallet == nil {
		return nil, domainErrors.NotConfiguredError("payout wallet")
	}
	return *c.payoutWallet, nil
}

// MintFor maps a token currency to its configured mint address. SOL has no
// mint and returns false.
func (c *Client) MintFor(currency entities.Currency) (solanago.PublicKey, bool) {
	switch currency {
	case entities.CurrencyUSDT:
		return c.usdtMint, !c.usdtMint.IsZero()
	case entities.CurrencyFORT:
		return c.fortMint, !c.fortMint.IsZero()
	default:
		return solanago.PublicKey{}, false
	}
}

// CurrencyForMint is the inverse of MintFor, used when classifying inbound
// token transfers
func (c *Client) CurrencyForMint(mint string) (entities.Currency, bool) {
	switch {
	case !c.usdtMint.IsZero() && mint == c.usdtMint.String():
		return entities.CurrencyUSDT, true
	case !c.fortMint.IsZero() && mint == c.fortMint.String():
		return entities.CurrencyFORT, true
	default:
		return "", false
	}
}

// GetBalance returns the native balance of an address in SOL
func (c *Client) GetBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	pubkey, err := solanago.PublicKeyFromBase58(address)
	if err != nil {
		return decimal.Zero, domainErrors.ValidationError("address", fmt.Sprintf("invalid address: %s", address))
	}

	result, err := c.executeRead(ctx, func() (interface{}, error) {
		return c.rpc.GetBalance(ctx, pubkey, c.commitment)
	})
	if err != nil {
		return decimal.Zero, domainErrors.ChainUnavailableError("get_balance", err)
	}

	out := result.(*rpc.GetBalanceResult)
	return entities.CurrencySOL.FromBaseUnits(out.Value), nil
}

// GetTokenBalance returns the token balance of an owner for a mint. An owner
// without an associated token account holds zero, not an error.
func (c *Client) GetTokenBalance(ctx context.Context, owner string, mint solanago.PublicKey) (decimal.Decimal, error) {
	ownerKey, err := solanago.PublicKeyFromBase58(owner)
	if err != nil {
		return decimal.Zero, domainErrors.ValidationError("address", fmt.Sprintf("invalid address: %s", owner))
	}

	ata, _, err := solanago.FindAssociatedTokenAddress(ownerKey, mint)
	if err != nil {
		return decimal.Zero, fmt.Errorf("derive token account: %w", err)
	}

	result, err := c.executeRead(ctx, func() (interface{}, error) {
		return c.rpc.GetTokenAccountBalance(ctx, ata, c.commitment)
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return decimal.Zero, nil
		}
		return decimal.Zero, domainErrors.ChainUnavailableError("get_token_balance", err)
	}

	out := result.(*rpc.GetTokenAccountBalanceResult)
	amount, err := decimal.NewFromString(out.Value.Amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse token amount %q: %w", out.Value.Amount, err)
	}
	return amount.Shift(-int32(out.Value.Decimals)), nil
}

// GetRentExemptReserve returns the lamports a system account must retain to
// stay rent exempt. Sweeps leave this behind on derived addresses.
func (c *Client) GetRentExemptReserve(ctx context.Context) (uint64, error) {
	result, err := c.executeRead(ctx, func() (interface{}, error) {
		return c.rpc.GetMinimumBalanceForRentExemption(ctx, 0, c.commitment)
	})
	if err != nil {
		return 0, domainErrors.ChainUnavailableError("get_rent_exemption", err)
	}
	return result.(uint64), nil
}

// GetAccountData fetches raw account data for program account decoding.
// Returns domain not-found when the account does not exist.
func (c *Client) GetAccountData(ctx context.Context, address solanago.PublicKey) ([]byte, error) {
	result, err := c.executeRead(ctx, func() (interface{}, error) {
		return c.rpc.GetAccountInfoWithOpts(ctx, address, &rpc.GetAccountInfoOpts{
			Commitment: c.commitment,
		})
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, domainErrors.NotFoundError("account")
		}
		return nil, domainErrors.ChainUnavailableError("get_account_info", err)
	}

	out := result.(*rpc.GetAccountInfoResult)
	if out.Value == nil {
		return nil, domainErrors.NotFoundError("account")
	}
	return out.Value.Data.GetBinary(), nil
}

// Healthy reports whether the RPC endpoint answers
func (c *Client) Healthy(ctx context.Context) bool {
	_, err := c.executeRead(ctx, func() (interface{}, error) {
		return c.rpc.GetHealth(ctx)
	})
	return err == nil
}

func (c *Client) execute(fn func() (interface{}, error)) (interface{}, error) {
	return c.breaker.Execute(fn)
}

// executeRead is execute with backoff for idempotent queries. Submissions
// never go through here: a resend after an ambiguous failure could land twice.
func (c *Client) executeRead(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	return c.retrier.DoWithResult(ctx, func() (interface{}, error) {
		return c.breaker.Execute(fn)
	})
}

func (c *Client) lockFor(wallet solanago.PublicKey) *sync.Mutex {
	c.sendMuMu.Lock()
	defer c.sendMuMu.Unlock()

	key := wallet.String()
	mu, ok := c.sendMu[key]
	if !ok {
		mu = &sync.Mutex{}
		c.sendMu[key] = mu
	}
	return mu
}
