package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/solfortune/custody-service/internal/domain/entities"
)

const (
	displayRatesCacheKey = "pricing:display_rates"
	displayRatesStaleKey = "pricing:display_rates:stale"
)

// DisplayRates is the read-only rate set served to clients. Values here are
// informational; crediting always goes through ConvertToUSD.
type DisplayRates struct {
	SOL       decimal.Decimal `json:"sol_usd"`
	USDT      decimal.Decimal `json:"usdt_usd"`
	FORT      decimal.Decimal `json:"fort_usd"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// GetDisplayRates returns rates for display paths. Served from a short-lived
// cache; on upstream failure the last known value is returned even when its
// TTL has lapsed, since a stale display rate beats an empty screen.
func (s *Service) GetDisplayRates(ctx context.Context) (*DisplayRates, error) {
	var cached DisplayRates
	if err := s.cache.Get(ctx, displayRatesCacheKey, &cached); err == nil {
		return &cached, nil
	}

	rates, err := s.fetchDisplayRates(ctx)
	if err != nil {
		s.log.Warn("display rate fetch failed, serving stale value", "error", err)
		var stale DisplayRates
		if cacheErr := s.cache.Get(ctx, displayRatesStaleKey, &stale); cacheErr == nil {
			return &stale, nil
		}
		return nil, fmt.Errorf("failed to fetch display rates: %w", err)
	}

	ttl := time.Duration(s.cfg.SecondaryCacheSeconds) * time.Second
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if err := s.cache.Set(ctx, displayRatesCacheKey, rates, ttl); err != nil {
		s.log.Warn("failed to cache display rates", "error", err)
	}
	// Stale copy has no expiry; it is the fallback of last resort
	if err := s.cache.Set(ctx, displayRatesStaleKey, rates, 0); err != nil {
		s.log.Warn("failed to cache stale display rates", "error", err)
	}

	return rates, nil
}

func (s *Service) fetchDisplayRates(ctx context.Context) (*DisplayRates, error) {
	rates := &DisplayRates{
		USDT:      decimal.NewFromInt(1),
		FetchedAt: time.Now().UTC(),
	}

	if s.cfg.MarketAPIBaseURL != "" {
		solPrice, err := s.fetchMarketPrice(ctx, "solana")
		if err != nil {
			return nil, err
		}
		rates.SOL = solPrice
	} else if sol, err := s.solRate(); err == nil {
		rates.SOL = sol
	}

	// Display shows zero for the project token until the market produces a
	// rate; zero is acceptable here because nothing is credited from it
	if price, err := s.marketFeed.FortPriceUSD(ctx); err == nil && price != nil {
		rates.FORT = *price
	}

	return rates, nil
}

func (s *Service) fetchMarketPrice(ctx context.Context, assetID string) (decimal.Decimal, error) {
	url := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd", s.cfg.MarketAPIBaseURL, assetID)

	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to build market request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("market api request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("market api returned status %d", resp.StatusCode)
	}

	var body map[string]map[string]decimal.Decimal
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode market response: %w", err)
	}

	price, ok := body[assetID]["usd"]
	if !ok {
		return decimal.Zero, fmt.Errorf("market response missing price for %s", assetID)
	}

	return price, nil
}

// RatesResponse builds the API payload from display rates
func (r *DisplayRates) RatesResponse() *entities.RatesResponse {
	return &entities.RatesResponse{
		SolUSD:  r.SOL,
		UsdtUSD: r.USDT,
		FortUSD: r.FORT,
	}
}
