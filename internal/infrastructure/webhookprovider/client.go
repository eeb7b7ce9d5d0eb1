package webhookprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	apperrors "github.com/solfortune/custody-service/internal/domain/errors"
	"github.com/solfortune/custody-service/internal/infrastructure/config"
	"github.com/solfortune/custody-service/pkg/logger"
)

// Client registers deposit addresses with the external transaction-watch
// provider so transfers to them arrive on our webhook endpoint.
type Client struct {
	baseURL     string
	apiKey      string
	callbackURL string
	httpClient  *http.Client
	log         *logger.Logger
}

// NewClient creates the provider client. An empty base URL yields an
// unconfigured client; registrations then fail softly with a
// not-configured error and the poll-based paths still work.
func NewClient(cfg config.WebhookConfig, log *logger.Logger) *Client {
	return &Client{
		baseURL:     cfg.ProviderBaseURL,
		apiKey:      cfg.ProviderAPIKey,
		callbackURL: cfg.CallbackBaseURL,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		log:         log,
	}
}

// IsConfigured reports whether provider registration is available
func (c *Client) IsConfigured() bool {
	return c.baseURL != "" && c.apiKey != ""
}

type registerRequest struct {
	WebhookURL       string   `json:"webhookURL"`
	TransactionTypes []string `json:"transactionTypes"`
	AccountAddresses []string `json:"accountAddresses"`
	WebhookType      string   `json:"webhookType"`
}

type registerResponse struct {
	WebhookID string `json:"webhookID"`
}

// RegisterAddress subscribes a single address with the provider and returns
// the provider-side subscription id
func (c *Client) RegisterAddress(ctx context.Context, address string) (string, error) {
	if !c.IsConfigured() {
		return "", apperrors.NotConfiguredError("webhook provider")
	}

	payload := registerRequest{
		WebhookURL:       fmt.Sprintf("%s/api/v1/webhooks/solana", c.callbackURL),
		TransactionTypes: []string{"TRANSFER"},
		AccountAddresses: []string{address},
		WebhookType:      "enhanced",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal webhook registration: %w", err)
	}

	url := fmt.Sprintf("%s/v0/webhooks?api-key=%s", c.baseURL, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build webhook registration request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", apperrors.ServiceUnavailableError("webhook provider", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", apperrors.ServiceUnavailableError("webhook provider",
			fmt.Errorf("registration returned status %d: %s", resp.StatusCode, string(raw)))
	}

	var out registerResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode webhook registration response: %w", err)
	}

	c.log.Info("deposit address registered with webhook provider", "address", address, "webhook_id", out.WebhookID)
	return out.WebhookID, nil
}
