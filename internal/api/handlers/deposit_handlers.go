package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/solfortune/custody-service/internal/domain/entities"
	"github.com/solfortune/custody-service/pkg/logger"
)

// DepositServiceInterface defines the interface for deposit operations
type DepositServiceInterface interface {
	ConnectWallet(ctx context.Context, userID uuid.UUID, walletAddress string) error
	GetConnectedWallet(ctx context.Context, userID uuid.UUID) (*entities.WalletConnection, error)
	InitiateWalletDeposit(ctx context.Context, userID uuid.UUID, req *entities.InitiateDepositRequest) (*entities.InitiateDepositResponse, error)
	ConfirmWalletDeposit(ctx context.Context, userID, depositID uuid.UUID, signature string) error
	GetOrCreateDepositAddress(ctx context.Context, userID uuid.UUID) (*entities.DepositAddressInfo, error)
	ListDeposits(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entities.Deposit, error)
	GetDeposit(ctx context.Context, userID, depositID uuid.UUID) (*entities.Deposit, error)
	ManualInstructions(ctx context.Context, currency entities.Currency) (*entities.ManualDepositInstructions, error)
	SubmitManualClaim(ctx context.Context, userID uuid.UUID, req *entities.ManualDepositClaimRequest) (*entities.Deposit, error)
}

// DepositHandlers handles deposit-related operations
type DepositHandlers struct {
	depositService DepositServiceInterface
	logger         *logger.Logger
}

// NewDepositHandlers creates a new DepositHandlers instance
func NewDepositHandlers(depositService DepositServiceInterface, logger *logger.Logger) *DepositHandlers {
	return &DepositHandlers{
		depositService: depositService,
		logger:         logger,
	}
}

// ConnectWallet handles POST /api/v1/deposits/wallet
func (h *DepositHandlers) ConnectWallet(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	var req entities.ConnectWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request format", nil)
		return
	}

	if err := h.depositService.ConnectWallet(c.Request.Context(), userID, req.WalletAddress); err != nil {
		respondDomainError(c, h.logger, err)
		return
	}

	respondSuccess(c, gin.H{"wallet_address": req.WalletAddress})
}

// GetConnectedWallet handles GET /api/v1/deposits/wallet
func (h *DepositHandlers) GetConnectedWallet(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	connection, err := h.depositService.GetConnectedWallet(c.Request.Context(), userID)
	if err != nil {
		respondDomainError(c, h.logger, err)
		return
	}

	respondSuccess(c, connection)
}

// InitiateDeposit handles POST /api/v1/deposits/initiate
func (h *DepositHandlers) InitiateDeposit(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	var req entities.InitiateDepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request format", nil)
		return
	}

	response, err := h.depositService.InitiateWalletDeposit(c.Request.Context(), userID, &req)
	if err != nil {
		respondDomainError(c, h.logger, err)
		return
	}

	respondCreated(c, response)
}

// ConfirmDeposit handles POST /api/v1/deposits/:depositId/confirm
func (h *DepositHandlers) ConfirmDeposit(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	depositID, err := uuid.Parse(c.Param("depositId"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_DEPOSIT_ID", "Invalid deposit ID format", nil)
		return
	}

	var req entities.ConfirmDepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request format", nil)
		return
	}

	if err := h.depositService.ConfirmWalletDeposit(c.Request.Context(), userID, depositID, req.TxSignature); err != nil {
		respondDomainError(c, h.logger, err)
		return
	}

	respondSuccess(c, gin.H{"deposit_id": depositID, "status": "awaiting_confirmation"})
}

// GetDepositAddress handles GET /api/v1/deposits/address
func (h *DepositHandlers) GetDepositAddress(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	info, err := h.depositService.GetOrCreateDepositAddress(c.Request.Context(), userID)
	if err != nil {
		respondDomainError(c, h.logger, err)
		return
	}

	respondSuccess(c, info)
}

// ListDeposits handles GET /api/v1/deposits
func (h *DepositHandlers) ListDeposits(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	limit := parseIntParam(c, "limit", 20)
	offset := parseIntParam(c, "offset", 0)

	deposits, err := h.depositService.ListDeposits(c.Request.Context(), userID, limit, offset)
	if err != nil {
		respondDomainError(c, h.logger, err)
		return
	}

	respondSuccess(c, gin.H{
		"items": deposits,
		"count": len(deposits),
	})
}

// GetDeposit handles GET /api/v1/deposits/:depositId
func (h *DepositHandlers) GetDeposit(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	depositID, err := uuid.Parse(c.Param("depositId"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_DEPOSIT_ID", "Invalid deposit ID format", nil)
		return
	}

	deposit, err := h.depositService.GetDeposit(c.Request.Context(), userID, depositID)
	if err != nil {
		respondDomainError(c, h.logger, err)
		return
	}

	respondSuccess(c, deposit)
}

// GetManualInstructions handles GET /api/v1/deposits/manual/instructions
func (h *DepositHandlers) GetManualInstructions(c *gin.Context) {
	if _, ok := getUserID(c); !ok {
		return
	}

	currency := entities.Currency(c.DefaultQuery("currency", string(entities.CurrencyUSDT)))

	instructions, err := h.depositService.ManualInstructions(c.Request.Context(), currency)
	if err != nil {
		respondDomainError(c, h.logger, err)
		return
	}

	respondSuccess(c, instructions)
}

// SubmitManualClaim handles POST /api/v1/deposits/manual/claim
func (h *DepositHandlers) SubmitManualClaim(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	var req entities.ManualDepositClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request format", nil)
		return
	}

	deposit, err := h.depositService.SubmitManualClaim(c.Request.Context(), userID, &req)
	if err != nil {
		respondDomainError(c, h.logger, err)
		return
	}

	respondCreated(c, deposit)
}
