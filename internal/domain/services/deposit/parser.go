package deposit

import (
	"github.com/solfortune/custody-service/internal/domain/entities"
)

// MintClassifier maps SPL mints to supported currencies
type MintClassifier interface {
	CurrencyForMint(mint string) (entities.Currency, bool)
}

// Parser normalizes enhanced-webhook batches into ParsedTransfers, filtered
// to monitored destinations
type Parser struct {
	registry *AddressRegistry
	mints    MintClassifier
}

// NewParser creates a parser over a registry and mint classifier
func NewParser(registry *AddressRegistry, mints MintClassifier) *Parser {
	return &Parser{registry: registry, mints: mints}
}

// Parse extracts monitored transfers from a webhook batch. A single chain
// transaction can produce several transfers (gas plus token movement), or
// none at all when nothing lands on a monitored address.
func (p *Parser) Parse(chain entities.Chain, batch entities.EnhancedTransactionBatch) []entities.ParsedTransfer {
	transfers := []entities.ParsedTransfer{}

	for _, tx := range batch {
		for _, native := range tx.NativeTransfers {
			if !p.registry.Contains(chain, native.ToUserAccount) {
				continue
			}
			if native.Amount == 0 {
				continue
			}

			transfers = append(transfers, entities.ParsedTransfer{
				Currency:    entities.CurrencySOL,
				Amount:      entities.CurrencySOL.FromBaseUnits(native.Amount),
				ToAddress:   native.ToUserAccount,
				FromAddress: native.FromUserAccount,
				Signature:   tx.Signature,
				Slot:        tx.Slot,
			})
		}

		for _, token := range tx.TokenTransfers {
			if !p.registry.Contains(chain, token.ToUserAccount) {
				continue
			}

			currency, ok := p.mints.CurrencyForMint(token.Mint)
			if !ok {
				// Unknown mints are dropped, not errors; anyone can send
				// arbitrary tokens to a monitored address
				continue
			}
			if token.TokenAmount.IsZero() || token.TokenAmount.IsNegative() {
				continue
			}

			transfers = append(transfers, entities.ParsedTransfer{
				Currency:    currency,
				Amount:      token.TokenAmount,
				ToAddress:   token.ToUserAccount,
				FromAddress: token.FromUserAccount,
				Signature:   tx.Signature,
				Slot:        tx.Slot,
				Mint:        token.Mint,
			})
		}
	}

	return transfers
}
