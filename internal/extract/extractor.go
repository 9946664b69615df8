// Package extract turns raw post text into pre-resolution mention candidates.
package extract

import (
	"regexp"
	"strings"

	"mention-lab/internal/domain"
	"mention-lab/internal/idhash"
	"mention-lab/internal/solana"
)

// Heuristic confidences for non-address candidates.
const (
	AddressConfidence    = 100
	tickerBaseConfidence = 40
	phraseBaseConfidence = 35
)

// DefaultMajorTickers are reserve assets that never carry a useful signal.
var DefaultMajorTickers = []string{
	"SOL", "WSOL", "BTC", "WBTC", "ETH", "WETH", "USDC", "USDT", "BNB", "USD",
}

// Options configures the Extractor.
type Options struct {
	MajorTickers []string // tickers dropped before resolution, case-insensitive
	MajorNames   []string // phrase names dropped before resolution, case-insensitive
}

// Extractor is a pure text scanner. Safe for concurrent use.
type Extractor struct {
	majorTickers map[string]struct{}
	majorNames   map[string]struct{}
}

// New creates an Extractor. Empty lists fall back to defaults.
func New(opts Options) *Extractor {
	tickers := opts.MajorTickers
	if len(tickers) == 0 {
		tickers = DefaultMajorTickers
	}
	names := opts.MajorNames
	if len(names) == 0 {
		names = defaultMajorNames
	}

	e := &Extractor{
		majorTickers: make(map[string]struct{}, len(tickers)),
		majorNames:   make(map[string]struct{}, len(names)),
	}
	for _, t := range tickers {
		e.majorTickers[idhash.NormalizeTicker(t)] = struct{}{}
	}
	for _, n := range names {
		e.majorNames[idhash.NormalizePhrase(n)] = struct{}{}
	}
	return e
}

var tickerPattern = regexp.MustCompile(`(?:^|[^A-Za-z0-9_$])\$([A-Za-z][A-Za-z0-9_]{1,14})\b`)

// Extract returns candidates in text order: addresses, then tickers, then phrases.
// Candidates sharing a trigger key are emitted once.
func (e *Extractor) Extract(postID, text string) []domain.MentionCandidate {
	var out []domain.MentionCandidate
	seen := make(map[string]struct{})

	add := func(c domain.MentionCandidate) {
		if _, ok := seen[c.TriggerKey]; ok {
			return
		}
		seen[c.TriggerKey] = struct{}{}
		out = append(out, c)
	}

	for _, addr := range FindAddresses(text) {
		if solana.IsQuoteMint(addr) {
			continue
		}
		add(newCandidate(postID, domain.SourceContractAddress, addr, nil, AddressConfidence))
	}

	for _, m := range tickerPattern.FindAllStringSubmatch(text, -1) {
		raw := m[1]
		if _, major := e.majorTickers[idhash.NormalizeTicker(raw)]; major {
			continue
		}
		display := "$" + raw
		add(newCandidate(postID, domain.SourceTicker, raw, &display, tickerConfidence(raw)))
	}

	for _, p := range findPhrases(text) {
		name := StripNameSuffix(p.name)
		norm := idhash.NormalizePhrase(name)
		if len(norm) < 3 {
			continue
		}
		if _, major := e.majorNames[norm]; major {
			continue
		}
		display := name
		add(newCandidate(postID, domain.SourcePhrase, name, &display, p.confidence))
	}

	return out
}

func newCandidate(postID string, kind domain.SourceKind, value string, display *string, confidence int) domain.MentionCandidate {
	key, text := idhash.TriggerKey(kind, value)

	tokenKey := text
	if kind == domain.SourceContractAddress {
		tokenKey = value
	}

	return domain.MentionCandidate{
		PostID:       postID,
		TokenKey:     tokenKey,
		TokenDisplay: display,
		Confidence:   confidence,
		SourceKind:   kind,
		TriggerKey:   key,
		TriggerText:  &text,
	}
}

func tickerConfidence(raw string) int {
	c := tickerBaseConfidence
	if raw == strings.ToUpper(raw) {
		c += 10
	}
	if len(raw) >= 4 {
		c += 10
	}
	return c
}
