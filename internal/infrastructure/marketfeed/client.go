package marketfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/solfortune/custody-service/internal/domain/errors"
	"github.com/solfortune/custody-service/pkg/logger"
)

// Client reads the project token's quote from the internal market service.
// The token trades only on the in-game market, so this is its sole oracle.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *logger.Logger
}

// NewClient creates the market feed client. An empty base URL means the token
// has no quote source yet; FortPriceUSD then reports nil, not zero.
func NewClient(baseURL string, log *logger.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		log:        log,
	}
}

type priceResponse struct {
	PriceUSD *decimal.Decimal `json:"price_usd"`
}

// FortPriceUSD returns the current token quote, or nil when no market price
// exists yet
func (c *Client) FortPriceUSD(ctx context.Context) (*decimal.Decimal, error) {
	if c.baseURL == "" {
		return nil, nil
	}

	url := fmt.Sprintf("%s/internal/market/fort/price", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build market feed request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.ServiceUnavailableError("market feed", err)
	}
	defer resp.Body.Close()

	// The market service answers 404 until the first trade settles
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.ServiceUnavailableError("market feed",
			fmt.Errorf("market feed returned status %d", resp.StatusCode))
	}

	var out priceResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode market price: %w", err)
	}

	return out.PriceUSD, nil
}
