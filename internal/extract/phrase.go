package extract

import (
	"regexp"
	"strings"
)

var defaultMajorNames = []string{
	"solana", "bitcoin", "ethereum", "tether", "usd coin", "binance",
}

// nameSuffixWords are stripped from the end of phrase candidates.
var nameSuffixWords = map[string]struct{}{
	"coin": {}, "coins": {}, "token": {}, "tokens": {}, "memecoin": {}, "memecoins": {},
}

// leadingStopWords are dropped from the start of a capitalized run.
var leadingStopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "this": {}, "that": {}, "my": {}, "our": {},
	"buy": {}, "bought": {}, "new": {}, "best": {}, "next": {}, "i": {}, "just": {},
}

// noiseHashtags never name a specific token.
var noiseHashtags = map[string]struct{}{
	"crypto": {}, "solana": {}, "sol": {}, "memecoin": {}, "memecoins": {}, "btc": {},
	"bitcoin": {}, "eth": {}, "ethereum": {}, "nft": {}, "nfts": {}, "web3": {},
	"defi": {}, "airdrop": {}, "pump": {}, "pumpfun": {}, "gem": {}, "gems": {},
	"100x": {}, "1000x": {}, "altcoin": {}, "altcoins": {}, "degen": {}, "alpha": {},
}

var (
	namedCoinPattern = regexp.MustCompile(`\b((?:[A-Z][A-Za-z0-9']*[ \t]+){0,3}[A-Z][A-Za-z0-9']*)[ \t]+(?i:meme ?coins?|coins?|tokens?)\b`)
	hashtagPattern   = regexp.MustCompile(`(?:^|\s)#([A-Za-z][A-Za-z0-9_]{2,30})`)
)

type phraseMatch struct {
	name       string
	confidence int
}

// findPhrases returns project-name phrases: capitalized names followed by
// coin/token, and hashtags.
func findPhrases(text string) []phraseMatch {
	var out []phraseMatch

	for _, m := range namedCoinPattern.FindAllStringSubmatch(text, -1) {
		words := strings.Fields(m[1])
		for len(words) > 0 {
			if _, stop := leadingStopWords[strings.ToLower(words[0])]; !stop {
				break
			}
			words = words[1:]
		}
		if len(words) == 0 {
			continue
		}
		c := phraseBaseConfidence
		if len(words) > 1 {
			c += 10
		}
		out = append(out, phraseMatch{name: strings.Join(words, " "), confidence: c})
	}

	for _, m := range hashtagPattern.FindAllStringSubmatch(text, -1) {
		tag := m[1]
		if _, noise := noiseHashtags[strings.ToLower(tag)]; noise {
			continue
		}
		out = append(out, phraseMatch{
			name:       strings.ReplaceAll(tag, "_", " "),
			confidence: phraseBaseConfidence,
		})
	}

	return out
}

// StripNameSuffix removes trailing "coin"/"token" words from a project name.
func StripNameSuffix(name string) string {
	words := strings.Fields(name)
	for len(words) > 1 {
		if _, ok := nameSuffixWords[strings.ToLower(words[len(words)-1])]; !ok {
			break
		}
		words = words[:len(words)-1]
	}
	return strings.Join(words, " ")
}
