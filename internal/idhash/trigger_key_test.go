package idhash

import (
	"strings"
	"testing"

	"mention-lab/internal/domain"
)

func TestTriggerKey(t *testing.T) {
	tests := []struct {
		name     string
		kind     domain.SourceKind
		value    string
		wantKey  string
		wantText string
	}{
		{
			name:     "address is lowercased",
			kind:     domain.SourceContractAddress,
			value:    "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
			wantKey:  "ca:epjfwdd5aufqssqem2qn1xzybapc8g4weggkzwytdt1v",
			wantText: "epjfwdd5aufqssqem2qn1xzybapc8g4weggkzwytdt1v",
		},
		{
			name:     "ticker drops dollar",
			kind:     domain.SourceTicker,
			value:    "$BONK",
			wantKey:  "tk:bonk",
			wantText: "bonk",
		},
		{
			name:     "ticker without dollar",
			kind:     domain.SourceTicker,
			value:    " Wif ",
			wantKey:  "tk:wif",
			wantText: "wif",
		},
		{
			name:     "phrase is hashed",
			kind:     domain.SourcePhrase,
			value:    "  Moo   Deng ",
			wantKey:  "ph:" + sha1Hex("moo deng"),
			wantText: "moo deng",
		},
		{
			name:     "unknown kind",
			kind:     domain.SourceKind("emoji"),
			value:    "Rocket",
			wantKey:  "uk:" + sha1Hex("emoji|rocket"),
			wantText: "rocket",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, text := TriggerKey(tt.kind, tt.value)
			if key != tt.wantKey {
				t.Errorf("TriggerKey() key = %q, want %q", key, tt.wantKey)
			}
			if text != tt.wantText {
				t.Errorf("TriggerKey() text = %q, want %q", text, tt.wantText)
			}

			key2, _ := TriggerKey(tt.kind, tt.value)
			if key != key2 {
				t.Errorf("TriggerKey() not deterministic: %s != %s", key, key2)
			}
		})
	}
}

func TestTriggerKey_PhraseEquivalence(t *testing.T) {
	a, _ := TriggerKey(domain.SourcePhrase, "Dogwif Hat")
	b, _ := TriggerKey(domain.SourcePhrase, "dogwif\t\nhat ")
	if a != b {
		t.Errorf("expected equivalent phrases to share key: %s != %s", a, b)
	}

	c, _ := TriggerKey(domain.SourcePhrase, "dogwifhat")
	if a == c {
		t.Errorf("expected different phrases to have different keys")
	}
}

func TestNormalizePhrase_Cap(t *testing.T) {
	long := strings.Repeat("ab ", 100)
	got := NormalizePhrase(long)
	if n := len([]rune(got)); n > MaxPhraseRunes {
		t.Errorf("NormalizePhrase() length = %d, want <= %d", n, MaxPhraseRunes)
	}

	// Inputs that differ only past the cap share a key.
	k1, _ := TriggerKey(domain.SourcePhrase, strings.Repeat("x", 200)+"a")
	k2, _ := TriggerKey(domain.SourcePhrase, strings.Repeat("x", 200)+"b")
	if k1 != k2 {
		t.Errorf("expected capped phrases to share key")
	}
}

func TestTriggerKey_KeyFormat(t *testing.T) {
	key, _ := TriggerKey(domain.SourcePhrase, "pepe")
	if !strings.HasPrefix(key, PrefixPhrase) {
		t.Errorf("expected %s prefix, got %s", PrefixPhrase, key)
	}
	if len(key) != len(PrefixPhrase)+40 {
		t.Errorf("expected sha1 hex length 40, got key %s", key)
	}
}
