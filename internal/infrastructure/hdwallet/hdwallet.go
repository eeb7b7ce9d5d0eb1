package hdwallet

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/tyler-smith/go-bip39"
)

// hardenedOffset marks a hardened derivation index. Ed25519 derivation only
// supports hardened children, so every path segment carries it.
const hardenedOffset = uint32(0x80000000)

// solanaCoinType is the registered coin type for the chain (BIP-44)
const solanaCoinType = uint32(501)

// Wallet derives per-user deposit keypairs from a single master mnemonic.
// The zero-value wallet (no mnemonic configured) reports IsConfigured false
// and fails derivation, so callers can degrade the feature instead of
// crashing.
type Wallet struct {
	seed       []byte
	configured bool
}

// New builds a wallet from a BIP-39 mnemonic. An empty mnemonic yields an
// unconfigured wallet rather than an error.
func New(mnemonic string) (*Wallet, error) {
	if mnemonic == "" {
		return &Wallet{}, nil
	}
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, fmt.Errorf("invalid master mnemonic")
	}
	seed := bip39.NewSeed(mnemonic, "")
	return &Wallet{seed: seed, configured: true}, nil
}

// IsConfigured reports whether a master seed is present
func (w *Wallet) IsConfigured() bool {
	return w.configured
}

// DeriveAddress returns the public address for a derivation index.
// Path: m/44'/501'/index'/0'
func (w *Wallet) DeriveAddress(index uint32) (string, error) {
	priv, err := w.deriveKey(index)
	if err != nil {
		return "", err
	}
	pub := priv.Public().(ed25519.PublicKey)
	return solana.PublicKeyFromBytes(pub).String(), nil
}

// SigningKeyFor re-derives the private key for a deposit address. The key is
// never persisted; it exists only for the duration of a sweep.
func (w *Wallet) SigningKeyFor(index uint32) (solana.PrivateKey, error) {
	priv, err := w.deriveKey(index)
	if err != nil {
		return nil, err
	}
	return solana.PrivateKey(priv), nil
}

// Validate re-derives an address and checks it matches the stored one. Used
// at startup to catch a rotated mnemonic before any sweep signs with the
// wrong keys.
func (w *Wallet) Validate(index uint32, expectedAddress string) error {
	derived, err := w.DeriveAddress(index)
	if err != nil {
		return err
	}
	if derived != expectedAddress {
		return fmt.Errorf("derivation mismatch at index %d: derived %s, expected %s", index, derived, expectedAddress)
	}
	return nil
}

func (w *Wallet) deriveKey(index uint32) (ed25519.PrivateKey, error) {
	if !w.configured {
		return nil, fmt.Errorf("master seed not configured")
	}

	key, chainCode := masterKeyFromSeed(w.seed)
	path := []uint32{
		44 | hardenedOffset,
		solanaCoinType | hardenedOffset,
		index | hardenedOffset,
		0 | hardenedOffset,
	}
	for _, segment := range path {
		key, chainCode = deriveChild(key, chainCode, segment)
	}
	return ed25519.NewKeyFromSeed(key), nil
}

// masterKeyFromSeed implements SLIP-0010 master key generation for the
// ed25519 curve
func masterKeyFromSeed(seed []byte) (key, chainCode []byte) {
	mac := hmac.New(sha512.New, []byte("ed25519 seed"))
	mac.Write(seed)
	sum := mac.Sum(nil)
	return sum[:32], sum[32:]
}

// deriveChild implements SLIP-0010 hardened child derivation for ed25519
func deriveChild(key, chainCode []byte, index uint32) (childKey, childChainCode []byte) {
	data := make([]byte, 1+32+4)
	copy(data[1:], key)
	binary.BigEndian.PutUint32(data[33:], index)

	mac := hmac.New(sha512.New, chainCode)
	mac.Write(data)
	sum := mac.Sum(nil)
	return sum[:32], sum[32:]
}
