package treasury

import (
	"crypto/sha256"
	"fmt"

	bin "github.com/gagliardetto/binary"
	solanago "github.com/gagliardetto/solana-go"
)

// Anchor account layouts for the pooled-custody program. Every account starts
// with an 8-byte discriminator derived from the account name.

type vaultStateAccount struct {
	Authority      solanago.PublicKey
	PayoutWallet   solanago.PublicKey
	Mint           solanago.PublicKey
	TotalDeposited uint64
	TotalPaidOut   uint64
	Paused         bool
	Bump           uint8
}

type withdrawalRequestAccount struct {
	User      solanago.PublicKey
	Amount    uint64
	ExpiresAt int64
	Bump      uint8
}

func accountDiscriminator(name string) [8]byte {
	sum := sha256.Sum256([]byte("account:" + name))
	var out [8]byte
	copy(out[:], sum[:8])
	return out
}

func instructionDiscriminator(name string) []byte {
	sum := sha256.Sum256([]byte("global:" + name))
	return sum[:8]
}

// decodeAccount checks the discriminator and borsh-decodes the payload into
// out
func decodeAccount(name string, data []byte, out interface{}) error {
	if len(data) < 8 {
		return fmt.Errorf("account data too short for %s", name)
	}
	want := accountDiscriminator(name)
	var got [8]byte
	copy(got[:], data[:8])
	if got != want {
		return fmt.Errorf("account discriminator mismatch for %s", name)
	}
	if err := bin.NewBorshDecoder(data[8:]).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s account: %w", name, err)
	}
	return nil
}

// vaultStatePDA derives the program's singleton state account
func vaultStatePDA(programID solanago.PublicKey) (solanago.PublicKey, error) {
	addr, _, err := solanago.FindProgramAddress([][]byte{[]byte("vault")}, programID)
	if err != nil {
		return solanago.PublicKey{}, fmt.Errorf("failed to derive vault state address: %w", err)
	}
	return addr, nil
}

// vaultTokenPDA derives the vault's pooled token account
func vaultTokenPDA(programID solanago.PublicKey) (solanago.PublicKey, error) {
	addr, _, err := solanago.FindProgramAddress([][]byte{[]byte("vault_token")}, programID)
	if err != nil {
		return solanago.PublicKey{}, fmt.Errorf("failed to derive vault token address: %w", err)
	}
	return addr, nil
}

// withdrawalRequestPDA derives the per-user escrow account
func withdrawalRequestPDA(programID, user solanago.PublicKey) (solanago.PublicKey, error) {
	addr, _, err := solanago.FindProgramAddress(
		[][]byte{[]byte("withdrawal"), user.Bytes()},
		programID,
	)
	if err != nil {
		return solanago.PublicKey{}, fmt.Errorf("failed to derive withdrawal request address: %w", err)
	}
	return addr, nil
}
