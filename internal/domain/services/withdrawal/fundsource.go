package withdrawal

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/solfortune/custody-service/internal/domain/entities"
)

// LedgerFundSource derives the principal/profit split from the user's running
// deposit totals: withdrawals consume fresh deposits first, anything beyond
// them is profit. Stands in for the game-side collaborator when none is
// wired.
type LedgerFundSource struct {
	balances BalanceRepository
}

// NewLedgerFundSource creates the ledger-backed fund source
func NewLedgerFundSource(balances BalanceRepository) *LedgerFundSource {
	return &LedgerFundSource{balances: balances}
}

func (f *LedgerFundSource) Breakdown(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*entities.FundSourceBreakdown, error) {
	balance, err := f.balances.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	fromFresh := decimal.Min(amount, balance.TotalFreshDeposits)
	return &entities.FundSourceBreakdown{
		FromFreshDeposit: fromFresh,
		FromProfit:       amount.Sub(fromFresh),
	}, nil
}

// TaxDiscount is zero for the ledger fallback; the game profile collaborator
// supplies tier-based discounts when wired
func (f *LedgerFundSource) TaxDiscount(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	return decimal.Zero, nil
}
