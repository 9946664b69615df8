package extract

import (
	"strings"
	"testing"

	"mention-lab/internal/domain"
	"mention-lab/internal/solana"
)

const (
	bonkMint = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"
	wifMint  = "EKpQGSJtjMFqKZ9KQanSqYXRcF8fBopzLHYxdM65zcjm"
)

func kinds(cands []domain.MentionCandidate) map[domain.SourceKind][]string {
	out := make(map[domain.SourceKind][]string)
	for _, c := range cands {
		out[c.SourceKind] = append(out[c.SourceKind], c.TokenKey)
	}
	return out
}

func TestExtract_AddressAndTicker(t *testing.T) {
	e := New(Options{})
	cands := e.Extract("post-1", "just found $FOO, CA: "+bonkMint)

	got := kinds(cands)
	if len(got[domain.SourceContractAddress]) != 1 || got[domain.SourceContractAddress][0] != bonkMint {
		t.Fatalf("expected address candidate %s, got %v", bonkMint, got[domain.SourceContractAddress])
	}
	if len(got[domain.SourceTicker]) != 1 || got[domain.SourceTicker][0] != "foo" {
		t.Fatalf("expected ticker candidate foo, got %v", got[domain.SourceTicker])
	}

	for _, c := range cands {
		if c.PostID != "post-1" {
			t.Errorf("expected post-1, got %s", c.PostID)
		}
		switch c.SourceKind {
		case domain.SourceContractAddress:
			if c.Confidence != AddressConfidence {
				t.Errorf("address confidence = %d, want %d", c.Confidence, AddressConfidence)
			}
			if c.TriggerKey != "ca:"+strings.ToLower(bonkMint) {
				t.Errorf("unexpected address trigger key %s", c.TriggerKey)
			}
		case domain.SourceTicker:
			if c.TokenDisplay == nil || *c.TokenDisplay != "$FOO" {
				t.Errorf("expected display $FOO, got %v", c.TokenDisplay)
			}
			if c.TriggerKey != "tk:foo" {
				t.Errorf("unexpected ticker trigger key %s", c.TriggerKey)
			}
		}
	}
}

func TestExtract_MajorTickersFiltered(t *testing.T) {
	e := New(Options{})
	cands := e.Extract("p", "rotating $SOL and $usdc into $WIF and $BTC")

	got := kinds(cands)[domain.SourceTicker]
	if len(got) != 1 || got[0] != "wif" {
		t.Errorf("expected only wif, got %v", got)
	}
}

func TestExtract_TickerShapes(t *testing.T) {
	e := New(Options{})
	tests := []struct {
		text string
		want []string
	}{
		{"price is $100 now", nil},
		{"$PEPE$DOGE", []string{"pepe"}},
		{"email me at a$BONK", nil},
		{"($POPCAT)", []string{"popcat"}},
		{"$A alone", nil},
		{"$ABCDEFGHIJKLMNOPQRS too long", nil},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got := kinds(e.Extract("p", tt.text))[domain.SourceTicker]
			if len(got) != len(tt.want) {
				t.Fatalf("Extract(%q) tickers = %v, want %v", tt.text, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Extract(%q) tickers[%d] = %s, want %s", tt.text, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestExtract_QuoteMintsDropped(t *testing.T) {
	e := New(Options{})
	cands := e.Extract("p", "swap "+solana.USDCMint+" for "+wifMint)

	got := kinds(cands)[domain.SourceContractAddress]
	if len(got) != 1 || got[0] != wifMint {
		t.Errorf("expected only %s, got %v", wifMint, got)
	}
}

func TestExtract_Dedupe(t *testing.T) {
	e := New(Options{})
	cands := e.Extract("p", "$WIF $wif $Wif "+wifMint+" "+wifMint)

	if len(cands) != 2 {
		t.Errorf("expected 2 candidates, got %d: %+v", len(cands), cands)
	}
}

func TestExtract_Phrases(t *testing.T) {
	e := New(Options{})
	cands := e.Extract("p", "Buy Moo Deng coin before it runs. #Popcat #crypto and the Solana token")

	got := kinds(cands)[domain.SourcePhrase]
	want := map[string]bool{"moo deng": true, "popcat": true}
	if len(got) != len(want) {
		t.Fatalf("phrases = %v, want %v", got, want)
	}
	for _, g := range got {
		if !want[g] {
			t.Errorf("unexpected phrase %q", g)
		}
	}
}

func TestExtract_MajorNamesConfigurable(t *testing.T) {
	e := New(Options{MajorNames: []string{"Moo  Deng", "solana"}})
	cands := e.Extract("p", "Buy Moo Deng coin before it runs. #Popcat #crypto and the Solana token")

	got := kinds(cands)[domain.SourcePhrase]
	if len(got) != 1 || got[0] != "popcat" {
		t.Errorf("phrases = %v, want [popcat]", got)
	}
}

func TestStripNameSuffix(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Moo Deng coin", "Moo Deng"},
		{"Bonk Token", "Bonk"},
		{"pepe memecoin coin", "pepe"},
		{"coin", "coin"},
		{"Dogwifhat", "Dogwifhat"},
	}

	for _, tt := range tests {
		if got := StripNameSuffix(tt.in); got != tt.want {
			t.Errorf("StripNameSuffix(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
