package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/solfortune/custody-service/internal/domain/entities"
	"github.com/solfortune/custody-service/pkg/logger"
)

// WebhookIngestor defines the interface for inbound chain events
type WebhookIngestor interface {
	IngestWebhook(ctx context.Context, batch entities.EnhancedTransactionBatch) (*entities.IngestResult, error)
}

// WebhookHandlers receives the chain-data provider's enhanced transaction
// callbacks. Authentication happens in middleware before the body is parsed.
type WebhookHandlers struct {
	ingestor WebhookIngestor
	logger   *logger.Logger
}

// NewWebhookHandlers creates a new WebhookHandlers instance
func NewWebhookHandlers(ingestor WebhookIngestor, logger *logger.Logger) *WebhookHandlers {
	return &WebhookHandlers{ingestor: ingestor, logger: logger}
}

// IngestSolana handles POST /api/v1/webhooks/solana. Always returns 200 for a
// parseable batch so the provider does not re-deliver items we chose to skip;
// dedup handles genuine retries.
func (h *WebhookHandlers) IngestSolana(c *gin.Context) {
	var batch entities.EnhancedTransactionBatch
	if err := c.ShouldBindJSON(&batch); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_PAYLOAD", "Invalid webhook payload", nil)
		return
	}

	result, err := h.ingestor.IngestWebhook(c.Request.Context(), batch)
	if err != nil {
		respondDomainError(c, h.logger, err)
		return
	}

	respondSuccess(c, result)
}
