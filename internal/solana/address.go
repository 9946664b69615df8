// Package solana validates Solana account addresses.
package solana

import (
	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// Address length bounds for base58-encoded 32-byte public keys.
const (
	MinAddressLen = 32
	MaxAddressLen = 44
	PublicKeySize = 32
)

// Well-known mints that are never a useful mention signal.
const (
	WrappedSOLMint = "So11111111111111111111111111111111111111112"
	USDCMint       = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	USDTMint       = "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"
)

// IsBase58Char reports whether c belongs to the bitcoin base58 alphabet.
func IsBase58Char(c byte) bool {
	switch {
	case c >= '1' && c <= '9':
		return true
	case c >= 'A' && c <= 'H', c >= 'J' && c <= 'N', c >= 'P' && c <= 'Z':
		return true
	case c >= 'a' && c <= 'k', c >= 'm' && c <= 'z':
		return true
	}
	return false
}

// HasAddressShape checks length and alphabet only.
func HasAddressShape(s string) bool {
	if len(s) < MinAddressLen || len(s) > MaxAddressLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !IsBase58Char(s[i]) {
			return false
		}
	}
	return true
}

// IsValidAddress is the strict grammar: address shape that decodes to exactly 32 bytes.
func IsValidAddress(s string) bool {
	if !HasAddressShape(s) {
		return false
	}
	b, err := base58.Decode(s)
	if err != nil {
		return false
	}
	return len(b) == PublicKeySize
}

// IsOnCurve reports whether a valid address is an ed25519 point.
// Program-derived addresses (pools, bonding curves, vaults) are off-curve.
func IsOnCurve(s string) bool {
	b, err := base58.Decode(s)
	if err != nil || len(b) != PublicKeySize {
		return false
	}
	_, err = new(edwards25519.Point).SetBytes(b)
	return err == nil
}

// IsQuoteMint reports whether mint is SOL or a major stablecoin.
func IsQuoteMint(mint string) bool {
	switch mint {
	case WrappedSOLMint, USDCMint, USDTMint:
		return true
	}
	return false
}
