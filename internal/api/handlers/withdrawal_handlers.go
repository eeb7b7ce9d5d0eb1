package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/solfortune/custody-service/internal/domain/entities"
	"github.com/solfortune/custody-service/pkg/logger"
)

// WithdrawalServiceInterface defines the interface for withdrawal operations
type WithdrawalServiceInterface interface {
	Preview(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*entities.WithdrawalPreview, error)
	PrepareAtomic(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, userWalletAddress string) (*entities.ClaimInfo, error)
	ConfirmAtomic(ctx context.Context, userID, withdrawalID uuid.UUID, txSignature string) (*entities.Withdrawal, error)
	CancelAtomic(ctx context.Context, userID, withdrawalID uuid.UUID) (*entities.Withdrawal, error)
	CreateInstant(ctx context.Context, userID uuid.UUID, req *entities.InstantWithdrawalRequest) (*entities.Withdrawal, error)
	ListWithdrawals(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entities.Withdrawal, error)
	GetWithdrawal(ctx context.Context, userID, withdrawalID uuid.UUID) (*entities.Withdrawal, error)
}

// WithdrawalHandlers handles withdrawal-related operations
type WithdrawalHandlers struct {
	withdrawalService WithdrawalServiceInterface
	logger            *logger.Logger
}

// NewWithdrawalHandlers creates a new WithdrawalHandlers instance
func NewWithdrawalHandlers(withdrawalService WithdrawalServiceInterface, logger *logger.Logger) *WithdrawalHandlers {
	return &WithdrawalHandlers{
		withdrawalService: withdrawalService,
		logger:            logger,
	}
}

// PreviewWithdrawal handles POST /api/v1/withdrawals/preview
func (h *WithdrawalHandlers) PreviewWithdrawal(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	var req entities.PreviewWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request format", nil)
		return
	}

	preview, err := h.withdrawalService.Preview(c.Request.Context(), userID, req.Amount)
	if err != nil {
		respondDomainError(c, h.logger, err)
		return
	}

	respondSuccess(c, preview)
}

// PrepareWithdrawal handles POST /api/v1/withdrawals/prepare
func (h *WithdrawalHandlers) PrepareWithdrawal(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	var req entities.PrepareWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request format", nil)
		return
	}

	claimInfo, err := h.withdrawalService.PrepareAtomic(c.Request.Context(), userID, req.Amount, req.WalletAddress)
	if err != nil {
		respondDomainError(c, h.logger, err)
		return
	}

	respondCreated(c, claimInfo)
}

// ConfirmWithdrawal handles POST /api/v1/withdrawals/:withdrawalId/confirm
func (h *WithdrawalHandlers) ConfirmWithdrawal(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	withdrawalID, err := uuid.Parse(c.Param("withdrawalId"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_WITHDRAWAL_ID", "Invalid withdrawal ID format", nil)
		return
	}

	var req entities.ConfirmWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request format", nil)
		return
	}

	withdrawal, err := h.withdrawalService.ConfirmAtomic(c.Request.Context(), userID, withdrawalID, req.TxSignature)
	if err != nil {
		respondDomainError(c, h.logger, err)
		return
	}

	respondSuccess(c, withdrawal)
}

// CancelWithdrawal handles POST /api/v1/withdrawals/:withdrawalId/cancel
func (h *WithdrawalHandlers) CancelWithdrawal(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	withdrawalID, err := uuid.Parse(c.Param("withdrawalId"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_WITHDRAWAL_ID", "Invalid withdrawal ID format", nil)
		return
	}

	withdrawal, err := h.withdrawalService.CancelAtomic(c.Request.Context(), userID, withdrawalID)
	if err != nil {
		respondDomainError(c, h.logger, err)
		return
	}

	respondSuccess(c, withdrawal)
}

// CreateInstantWithdrawal handles POST /api/v1/withdrawals/instant
func (h *WithdrawalHandlers) CreateInstantWithdrawal(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	var req entities.InstantWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request format", nil)
		return
	}

	withdrawal, err := h.withdrawalService.CreateInstant(c.Request.Context(), userID, &req)
	if err != nil {
		respondDomainError(c, h.logger, err)
		return
	}

	respondCreated(c, withdrawal)
}

// ListWithdrawals handles GET /api/v1/withdrawals
func (h *WithdrawalHandlers) ListWithdrawals(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	limit := parseIntParam(c, "limit", 20)
	offset := parseIntParam(c, "offset", 0)

	withdrawals, err := h.withdrawalService.ListWithdrawals(c.Request.Context(), userID, limit, offset)
	if err != nil {
		respondDomainError(c, h.logger, err)
		return
	}

	respondSuccess(c, gin.H{
		"items": withdrawals,
		"count": len(withdrawals),
	})
}

// GetWithdrawal handles GET /api/v1/withdrawals/:withdrawalId
func (h *WithdrawalHandlers) GetWithdrawal(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	withdrawalID, err := uuid.Parse(c.Param("withdrawalId"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_WITHDRAWAL_ID", "Invalid withdrawal ID format", nil)
		return
	}

	withdrawal, err := h.withdrawalService.GetWithdrawal(c.Request.Context(), userID, withdrawalID)
	if err != nil {
		respondDomainError(c, h.logger, err)
		return
	}

	respondSuccess(c, withdrawal)
}
