package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/solfortune/custody-service/internal/domain/entities"
	"github.com/solfortune/custody-service/internal/domain/services/pricing"
	"github.com/solfortune/custody-service/pkg/logger"
)

// RatesProvider defines the interface for display rates
type RatesProvider interface {
	GetDisplayRates(ctx context.Context) (*pricing.DisplayRates, error)
}

// RatesHandlers serves the read-only conversion-rate display
type RatesHandlers struct {
	rates  RatesProvider
	logger *logger.Logger
}

// NewRatesHandlers creates a new RatesHandlers instance
func NewRatesHandlers(rates RatesProvider, logger *logger.Logger) *RatesHandlers {
	return &RatesHandlers{rates: rates, logger: logger}
}

// GetRates handles GET /api/v1/rates
func (h *RatesHandlers) GetRates(c *gin.Context) {
	rates, err := h.rates.GetDisplayRates(c.Request.Context())
	if err != nil {
		respondDomainError(c, h.logger, err)
		return
	}

	respondSuccess(c, entities.RatesResponse{
		SolUSD:  rates.SOL,
		UsdtUSD: rates.USDT,
		FortUSD: rates.FORT,
	})
}
