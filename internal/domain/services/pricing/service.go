package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/solfortune/custody-service/internal/domain/entities"
	domainErrors "github.com/solfortune/custody-service/internal/domain/errors"
	"github.com/solfortune/custody-service/internal/infrastructure/cache"
	"github.com/solfortune/custody-service/internal/infrastructure/config"
	"github.com/solfortune/custody-service/pkg/logger"
)

// MarketFeed prices the project token from the internal market. A nil price
// means the market has not produced a rate yet, which is a distinct outcome
// from a zero price.
type MarketFeed interface {
	FortPriceUSD(ctx context.Context) (*decimal.Decimal, error)
}

// Conversion is the result of pricing an asset amount
type Conversion struct {
	AmountUSD decimal.Decimal
	Rate      decimal.Decimal
}

// Service is the price oracle. The stable token converts 1:1; the native coin
// uses a push-fed quote with a polling fallback where staleness is a hard
// error; the project token comes from the internal market feed.
type Service struct {
	marketFeed MarketFeed
	cache      cache.RedisClient
	log        *logger.Logger
	cfg        config.PricingConfig
	httpClient *http.Client

	mu           sync.RWMutex
	solPrice     decimal.Decimal
	solUpdatedAt time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewService creates a new price oracle
func NewService(marketFeed MarketFeed, redisCache cache.RedisClient, cfg config.PricingConfig, log *logger.Logger) *Service {
	return &Service{
		marketFeed: marketFeed,
		cache:      redisCache,
		log:        log,
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		stopCh:     make(chan struct{}),
	}
}

// Start launches the polling fallback for the native coin quote. The push
// feed keeps the quote fresh in steady state; polling covers feed outages.
func (s *Service) Start(ctx context.Context) {
	if s.cfg.SolFeedURL == "" {
		s.log.Warn("sol price feed url not configured, native coin pricing disabled until pushed")
		return
	}

	interval := time.Duration(s.cfg.PollIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		// Prime the quote before the first tick
		s.pollOnce(ctx)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.pollOnce(ctx)
			}
		}
	}()
}

// Stop terminates the polling loop
func (s *Service) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

// SetSOLPrice accepts a pushed quote from the feed subscription
func (s *Service) SetSOLPrice(price decimal.Decimal) {
	if price.IsZero() || price.IsNegative() {
		s.log.Warn("ignoring non-positive pushed sol price", "price", price.String())
		return
	}

	s.mu.Lock()
	s.solPrice = price
	s.solUpdatedAt = time.Now()
	s.mu.Unlock()
}

// ConvertToUSD prices an asset-native amount. Only fresh rates are accepted:
// a missing or stale quote aborts the caller's credit rather than guessing.
func (s *Service) ConvertToUSD(ctx context.Context, currency entities.Currency, amount decimal.Decimal) (*Conversion, error) {
	rate, err := s.rateFor(ctx, currency)
	if err != nil {
		return nil, err
	}

	return &Conversion{
		AmountUSD: amount.Mul(rate),
		Rate:      rate,
	}, nil
}

func (s *Service) rateFor(ctx context.Context, currency entities.Currency) (decimal.Decimal, error) {
	switch currency {
	case entities.CurrencyUSDT:
		return decimal.NewFromInt(1), nil

	case entities.CurrencySOL:
		return s.solRate()

	case entities.CurrencyFORT:
		price, err := s.marketFeed.FortPriceUSD(ctx)
		if err != nil {
			return decimal.Zero, fmt.Errorf("fort market feed: %w", err)
		}
		if price == nil {
			return decimal.Zero, domainErrors.PriceUnavailableError(string(entities.CurrencyFORT))
		}
		return *price, nil

	default:
		return decimal.Zero, domainErrors.ValidationError("currency", fmt.Sprintf("unsupported currency: %s", currency))
	}
}

func (s *Service) solRate() (decimal.Decimal, error) {
	s.mu.RLock()
	price := s.solPrice
	updatedAt := s.solUpdatedAt
	s.mu.RUnlock()

	maxStale := time.Duration(s.cfg.MaxStaleSeconds) * time.Second
	if maxStale <= 0 {
		maxStale = 2 * time.Minute
	}

	if price.IsZero() || time.Since(updatedAt) > maxStale {
		return decimal.Zero, domainErrors.PriceUnavailableError(string(entities.CurrencySOL))
	}

	return price, nil
}

func (s *Service) pollOnce(ctx context.Context) {
	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, s.cfg.SolFeedURL, nil)
	if err != nil {
		s.log.Error("failed to build sol feed request", "error", err)
		return
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.log.Warn("sol feed poll failed", "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.log.Warn("sol feed poll returned non-200", "status", resp.StatusCode)
		return
	}

	var body struct {
		Price decimal.Decimal `json:"price"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		s.log.Warn("sol feed response decode failed", "error", err)
		return
	}

	s.SetSOLPrice(body.Price)
}
