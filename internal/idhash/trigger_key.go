// Package idhash derives deterministic mention identity keys.
package idhash

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
	"unicode/utf8"

	"mention-lab/internal/domain"
)

// Trigger key prefixes.
const (
	PrefixAddress = "ca:"
	PrefixTicker  = "tk:"
	PrefixPhrase  = "ph:"
	PrefixUnknown = "uk:"
)

// MaxPhraseRunes caps normalized phrase length before hashing.
const MaxPhraseRunes = 128

// TriggerKey computes the deterministic identity of a mention and the
// normalized text behind it.
//
//	contract_address -> ca:<lowercased address>
//	ticker           -> tk:<lowercased ticker without $>
//	phrase           -> ph:<sha1(normalized phrase)>
//	anything else    -> uk:<sha1(kind|normalized value)>
func TriggerKey(kind domain.SourceKind, value string) (key string, text string) {
	switch kind {
	case domain.SourceContractAddress:
		text = strings.ToLower(strings.TrimSpace(value))
		return PrefixAddress + text, text
	case domain.SourceTicker:
		text = NormalizeTicker(value)
		return PrefixTicker + text, text
	case domain.SourcePhrase:
		text = NormalizePhrase(value)
		return PrefixPhrase + sha1Hex(text), text
	default:
		text = NormalizePhrase(value)
		return PrefixUnknown + sha1Hex(string(kind)+"|"+text), text
	}
}

// NormalizeTicker lowercases and strips the leading $.
func NormalizeTicker(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "$")
	return strings.ToLower(s)
}

// NormalizePhrase trims, lowercases, collapses internal whitespace and caps length.
func NormalizePhrase(s string) string {
	s = strings.Join(strings.Fields(strings.ToLower(s)), " ")
	if utf8.RuneCountInString(s) > MaxPhraseRunes {
		s = string([]rune(s)[:MaxPhraseRunes])
		s = strings.TrimSpace(s)
	}
	return s
}

func sha1Hex(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
