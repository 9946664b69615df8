package extract

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"mention-lab/internal/solana"
)

// maxFollowingRuns bounds how many base58 runs after a link tail are joined.
const maxFollowingRuns = 3

// linkPattern matches sharing links whose path ends in a token address.
var linkPattern = regexp.MustCompile(`(?i)(?:https?://)?(?:www\.)?(?:` +
	`pump\.fun/(?:coin/)?|` +
	`dexscreener\.com/solana/|` +
	`birdeye\.so/token/|` +
	`solscan\.io/(?:token|account)/|` +
	`gmgn\.ai/sol/token/|` +
	`photon-sol\.tinyastro\.io/en/lp/|` +
	`jup\.ag/swap/(?:SOL-)?|` +
	`raydium\.io/swap/?\?(?:inputMint=sol&)?outputMint=)`)

// run is a maximal stretch of base58 characters in the text.
type run struct {
	start, end int
}

func (r run) text(s string) string { return s[r.start:r.end] }

// FindAddresses returns the maximal valid addresses found in text, in order of
// first appearance. Direct matches, link-tail reconstructions and
// whitespace-split joins are all considered.
func FindAddresses(text string) []string {
	runs := base58Runs(text)

	var found []string
	for _, r := range runs {
		if s := r.text(text); solana.IsValidAddress(s) {
			found = append(found, s)
		}
	}
	found = append(found, reconstructFromLinks(text, runs)...)
	found = append(found, joinSplitFragments(text)...)

	return keepMaximal(found)
}

// base58Runs splits text into maximal runs of base58 characters.
func base58Runs(text string) []run {
	var runs []run
	start := -1
	for i := 0; i < len(text); i++ {
		if solana.IsBase58Char(text[i]) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			runs = append(runs, run{start, i})
			start = -1
		}
	}
	if start >= 0 {
		runs = append(runs, run{start, len(text)})
	}
	return runs
}

// reconstructFromLinks joins a link's tail fragment with the runs that follow it
// and accepts the longest prefix that is a valid address.
func reconstructFromLinks(text string, runs []run) []string {
	var out []string
	for _, loc := range linkPattern.FindAllStringIndex(text, -1) {
		idx := runStartingAt(runs, loc[1])
		if idx < 0 {
			continue
		}
		tail := runs[idx].text(text)
		if solana.IsValidAddress(tail) {
			out = append(out, tail)
			continue
		}

		var b strings.Builder
		b.WriteString(tail)
		prevEnd := runs[idx].end
		for j := idx + 1; j < len(runs) && j <= idx+maxFollowingRuns; j++ {
			if !onlySeparators(text[prevEnd:runs[j].start]) {
				break
			}
			b.WriteString(runs[j].text(text))
			prevEnd = runs[j].end
		}

		if addr, ok := longestValidPrefix(b.String()); ok {
			out = append(out, addr)
		}
	}
	return out
}

func runStartingAt(runs []run, pos int) int {
	i := sort.Search(len(runs), func(i int) bool { return runs[i].start >= pos })
	if i < len(runs) && runs[i].start == pos {
		return i
	}
	return -1
}

// onlySeparators reports whether gap holds only whitespace or ellipsis dots.
func onlySeparators(gap string) bool {
	for _, r := range gap {
		if unicode.IsSpace(r) || r == '…' || r == '.' {
			continue
		}
		return false
	}
	return true
}

func longestValidPrefix(s string) (string, bool) {
	n := len(s)
	if n > solana.MaxAddressLen {
		n = solana.MaxAddressLen
	}
	for l := n; l >= solana.MinAddressLen; l-- {
		if solana.IsValidAddress(s[:l]) {
			return s[:l], true
		}
	}
	return "", false
}

// joinSplitFragments handles an address broken by whitespace into a short
// fragment followed by a longer one. The join must be an exact match and the
// longer fragment must not already be an address by itself.
func joinSplitFragments(text string) []string {
	fields := strings.Fields(text)
	var out []string
	for i := 0; i+1 < len(fields); i++ {
		a := trimPunct(fields[i])
		b := trimPunct(fields[i+1])
		if len(a) == 0 || len(a) >= len(b) {
			continue
		}
		total := len(a) + len(b)
		if total < solana.MinAddressLen || total > solana.MaxAddressLen {
			continue
		}
		if !allBase58(a) || !allBase58(b) {
			continue
		}
		// a complete address after a short word is not a fragment
		if solana.IsValidAddress(b) {
			continue
		}
		if joined := a + b; solana.IsValidAddress(joined) {
			out = append(out, joined)
		}
	}
	return out
}

func trimPunct(s string) string {
	return strings.Trim(s, `.,;:!?()[]{}"'`+"`")
}

func allBase58(s string) bool {
	for i := 0; i < len(s); i++ {
		if !solana.IsBase58Char(s[i]) {
			return false
		}
	}
	return true
}

// keepMaximal drops candidates that are substrings of another candidate and
// removes duplicates, keeping first-appearance order.
func keepMaximal(cands []string) []string {
	seen := make(map[string]struct{}, len(cands))
	var uniq []string
	for _, c := range cands {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		uniq = append(uniq, c)
	}

	out := uniq[:0:0]
	for i, a := range uniq {
		contained := false
		for j, b := range uniq {
			if i != j && len(b) > len(a) && strings.Contains(b, a) {
				contained = true
				break
			}
		}
		if !contained {
			out = append(out, a)
		}
	}
	return out
}
