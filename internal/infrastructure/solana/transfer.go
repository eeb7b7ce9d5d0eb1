package solana

import (
	"context"
	"fmt"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"

	domainErrors "github.com/solfortune/custody-service/internal/domain/errors"
)

// confirmPollInterval between signature status checks
const confirmPollInterval = 2 * time.Second

// TransferNative sends lamports from a signing wallet to a destination.
// Returns the transaction signature once the node accepts the submission;
// callers that need finality follow up with ConfirmTransaction.
func (c *Client) TransferNative(ctx context.Context, from solanago.PrivateKey, to solanago.PublicKey, lamports uint64) (string, error) {
	if lamports == 0 {
		return "", domainErrors.ValidationError("amount", "transfer amount must be positive")
	}

	instr := system.NewTransferInstruction(lamports, from.PublicKey(), to).Build()
	return c.sendInstructions(ctx, from, []solanago.Instruction{instr})
}

// TransferToken sends token base units from a signing wallet's associated
// account to the destination's. The destination's associated account is
// created in the same transaction when it does not exist yet, paid by the
// sender.
func (c *Client) TransferToken(ctx context.Context, from solanago.PrivateKey, to solanago.PublicKey, mint solanago.PublicKey, amount uint64) (string, error) {
	if amount == 0 {
		return "", domainErrors.ValidationError("amount", "transfer amount must be positive")
	}

	fromPub := from.PublicKey()
	sourceATA, _, err := solanago.FindAssociatedTokenAddress(fromPub, mint)
	if err != nil {
		return "", fmt.Errorf("derive source token account: %w", err)
	}
	destATA, _, err := solanago.FindAssociatedTokenAddress(to, mint)
	if err != nil {
		return "", fmt.Errorf("derive destination token account: %w", err)
	}

	instrs := make([]solanago.Instruction, 0, 2)

	if _, err := c.GetAccountData(ctx, destATA); err != nil {
		if !domainErrors.IsNotFound(err) {
			return "", err
		}
		createInstr := associatedtokenaccount.NewCreateInstruction(fromPub, to, mint).Build()
		instrs = append(instrs, createInstr)
	}

	transferInstr := token.NewTransferInstruction(amount, sourceATA, destATA, fromPub, nil).Build()
	instrs = append(instrs, transferInstr)

	return c.sendInstructions(ctx, from, instrs)
}

// TransferNativeFromHot and the token variant spare callers from holding key
// material; the signing key never leaves this package.
func (c *Client) TransferNativeFromHot(ctx context.Context, to solanago.PublicKey, lamports uint64) (string, error) {
	key, err := c.hotWalletKey()
	if err != nil {
		return "", err
	}
	return c.TransferNative(ctx, key, to, lamports)
}

func (c *Client) TransferTokenFromHot(ctx context.Context, to solanago.PublicKey, mint solanago.PublicKey, amount uint64) (string, error) {
	key, err := c.hotWalletKey()
	if err != nil {
		return "", err
	}
	return c.TransferToken(ctx, key, to, mint, amount)
}

func (c *Client) TransferNativeFromPayout(ctx context.Context, to solanago.PublicKey, lamports uint64) (string, error) {
	key, err := c.payoutWalletKey()
	if err != nil {
		return "", err
	}
	return c.TransferNative(ctx, key, to, lamports)
}

func (c *Client) TransferTokenFromPayout(ctx context.Context, to solanago.PublicKey, mint solanago.PublicKey, amount uint64) (string, error) {
	key, err := c.payoutWalletKey()
	if err != nil {
		return "", err
	}
	return c.TransferToken(ctx, key, to, mint, amount)
}

// SendWithHotWallet signs and submits program instructions with the hot
// wallet as fee payer and sole signer
func (c *Client) SendWithHotWallet(ctx context.Context, instrs []solanago.Instruction) (string, error) {
	key, err := c.hotWalletKey()
	if err != nil {
		return "", err
	}
	return c.sendInstructions(ctx, key, instrs)
}

func (c *Client) sendInstructions(ctx context.Context, signer solanago.PrivateKey, instrs []solanago.Instruction) (string, error) {
	signerPub := signer.PublicKey()

	mu := c.lockFor(signerPub)
	mu.Lock()
	defer mu.Unlock()

	blockhashResult, err := c.execute(func() (interface{}, error) {
		return c.rpc.GetLatestBlockhash(ctx, c.commitment)
	})
	if err != nil {
		return "", domainErrors.ChainUnavailableError("get_blockhash", err)
	}
	blockhash := blockhashResult.(*rpc.GetLatestBlockhashResult).Value.Blockhash

	tx, err := solanago.NewTransaction(
		instrs,
		blockhash,
		solanago.TransactionPayer(signerPub),
	)
	if err != nil {
		return "", fmt.Errorf("build transaction: %w", err)
	}

	if _, err := tx.Sign(func(key solanago.PublicKey) *solanago.PrivateKey {
		if key.Equals(signerPub) {
			return &signer
		}
		return nil
	}); err != nil {
		return "", fmt.Errorf("sign transaction: %w", err)
	}

	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       false,
		PreflightCommitment: c.commitment,
	})
	if err != nil {
		return "", domainErrors.ChainUnavailableError("send_transaction", err)
	}

	c.log.Info("transaction submitted",
		"signature", sig.String(),
		"signer", signerPub.String(),
		"instructions", len(instrs),
	)

	return sig.String(), nil
}

// ConfirmTransaction polls signature status until the transaction reaches the
// client's commitment level, fails on chain, or the context expires. A
// context deadline expiry means confirmation is UNKNOWN, not failed; the
// caller owns the policy for that outcome (the withdrawal claim path treats
// it as unclaimed and restores the hold).
func (c *Client) ConfirmTransaction(ctx context.Context, signature string) error {
	sig, err := solanago.SignatureFromBase58(signature)
	if err != nil {
		return domainErrors.ValidationError("signature", fmt.Sprintf("invalid signature: %s", signature))
	}

	ticker := time.NewTicker(confirmPollInterval)
	defer ticker.Stop()

	for {
		result, err := c.execute(func() (interface{}, error) {
			return c.rpc.GetSignatureStatuses(ctx, true, sig)
		})
		if err == nil {
			statuses := result.(*rpc.GetSignatureStatusesResult)
			if len(statuses.Value) > 0 && statuses.Value[0] != nil {
				status := statuses.Value[0]
				if status.Err != nil {
					return fmt.Errorf("transaction %s failed on chain: %v", signature, status.Err)
				}
				if confirmed(status.ConfirmationStatus, c.commitment) {
					return nil
				}
			}
		} else {
			c.log.Warn("signature status check failed", "signature", signature, "error", err)
		}

		select {
		case <-ctx.Done():
			return domainErrors.ChainUnavailableError("confirm_transaction", fmt.Errorf("confirmation timed out for %s: %w", signature, ctx.Err()))
		case <-ticker.C:
		}
	}
}

func confirmed(status rpc.ConfirmationStatusType, want rpc.CommitmentType) bool {
	switch want {
	case rpc.CommitmentFinalized:
		return status == rpc.ConfirmationStatusFinalized
	default:
		return status == rpc.ConfirmationStatusConfirmed || status == rpc.ConfirmationStatusFinalized
	}
}
