// Package marketdata defines the identity and market-data sources used by
// resolution and pricing, with HTTP adapters for DexScreener and GeckoTerminal.
package marketdata

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"mention-lab/internal/domain"
)

// ErrNotFound is returned when the upstream has no record for the request.
var ErrNotFound = errors.New("not found")

// LookupError lists the keys whose lookup failed upstream. Batch lookups
// return it alongside the matches for the keys that did succeed.
type LookupError struct {
	Failed map[string]error
}

func (e *LookupError) Error() string {
	keys := make([]string, 0, len(e.Failed))
	for k := range e.Failed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) == 0 {
		return "lookup failed"
	}
	return fmt.Sprintf("lookup failed for %d keys, first %q: %v", len(keys), keys[0], e.Failed[keys[0]])
}

// Unwrap exposes every underlying failure to errors.Is and errors.As.
func (e *LookupError) Unwrap() []error {
	out := make([]error, 0, len(e.Failed))
	for _, err := range e.Failed {
		out = append(out, err)
	}
	return out
}

// TokenMatch is a ticker or name resolved to a token mint.
type TokenMatch struct {
	Address    string // token mint
	Symbol     string
	Name       string
	Confidence int // 0..100, higher with liquidity, volume and boosts
}

// TokenInfo is display metadata for one mint.
type TokenInfo struct {
	Mint   string
	Symbol string
	Name   string
}

// Pair describes a trading pair keyed by its pool address.
type Pair struct {
	Address      string // pool address
	DexID        string
	BaseMint     string
	QuoteMint    string
	LiquidityUSD float64
}

// IdentitySource resolves textual references and addresses in batches.
// Each method returns only the keys it could resolve.
type IdentitySource interface {
	// LookupTickers resolves normalized tickers (lowercase, no $) to mints.
	LookupTickers(ctx context.Context, tickers []string) (map[string]TokenMatch, error)

	// LookupNames resolves normalized project names to mints.
	LookupNames(ctx context.Context, names []string) (map[string]TokenMatch, error)

	// LookupTokens fetches display metadata for mints.
	LookupTokens(ctx context.Context, mints []string) (map[string]TokenInfo, error)

	// LookupPairs resolves pool addresses to their pairs.
	LookupPairs(ctx context.Context, addresses []string) (map[string]Pair, error)
}

// CandleQuery selects one page of candles for a pool.
type CandleQuery struct {
	Pool      string
	Timeframe domain.Timeframe
	Aggregate int
	Before    int64 // unix seconds, exclusive upper bound; zero means now
	Limit     int
}

// MarketSource discovers pools and fetches their candles.
type MarketSource interface {
	// Pools returns pools for a mint ranked by liquidity, highest first.
	Pools(ctx context.Context, mint string) ([]domain.Pool, error)

	// Candles returns one page of candles ending before q.Before, ascending by timestamp.
	Candles(ctx context.Context, q CandleQuery) ([]domain.PriceCandle, error)
}
