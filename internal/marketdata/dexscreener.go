package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// DexScreener defaults.
const (
	DefaultDexScreenerURL = "https://api.dexscreener.com"
	DexScreenerChain      = "solana"
	dexBatchSize          = 30
)

// Confidence scoring for search matches.
const (
	matchBaseConfidence  = 50
	liquidityBoost       = 15
	volumeBoost          = 10
	promotedBoost        = 15
	liquidityBoostMinUSD = 10_000
	volumeBoostMinUSD    = 50_000
)

// DexScreener implements IdentitySource over the public DexScreener API.
type DexScreener struct {
	httpClient
	baseURL string
}

var _ IdentitySource = (*DexScreener)(nil)

// NewDexScreener creates a DexScreener client. An empty baseURL uses the public API.
func NewDexScreener(baseURL string, opts ...ClientOption) *DexScreener {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultDexScreenerURL
	}
	return &DexScreener{
		httpClient: newHTTPClient(opts),
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// dexToken is the token object embedded in a pair.
type dexToken struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
}

// dexPair is the normalized pair record all payload variants decode into.
type dexPair struct {
	ChainID     string   `json:"chainId"`
	DexID       string   `json:"dexId"`
	PairAddress string   `json:"pairAddress"`
	BaseToken   dexToken `json:"baseToken"`
	QuoteToken  dexToken `json:"quoteToken"`
	Liquidity   struct {
		USD flexFloat `json:"usd"`
	} `json:"liquidity"`
	Volume struct {
		H24 flexFloat `json:"h24"`
	} `json:"volume"`
	Boosts struct {
		Active int `json:"active"`
	} `json:"boosts"`
}

// decodePairs accepts a bare array, {"pairs": [...]} or {"pair": {...}}.
func decodePairs(raw json.RawMessage) ([]dexPair, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var pairs []dexPair
		if err := json.Unmarshal(raw, &pairs); err != nil {
			return nil, fmt.Errorf("decode pair list: %w", err)
		}
		return pairs, nil
	}

	var env struct {
		Pairs []dexPair `json:"pairs"`
		Pair  *dexPair  `json:"pair"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode pair envelope: %w", err)
	}
	if env.Pair != nil {
		env.Pairs = append(env.Pairs, *env.Pair)
	}
	return env.Pairs, nil
}

func (d *DexScreener) buildURL(path string, query map[string]string) string {
	u, err := url.Parse(d.baseURL)
	if err != nil {
		u = &url.URL{Scheme: "https", Host: "api.dexscreener.com"}
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	if len(query) > 0 {
		q := u.Query()
		for k, v := range query {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func (d *DexScreener) pairs(ctx context.Context, endpoint, u string) ([]dexPair, error) {
	var raw json.RawMessage
	if err := d.getJSON(ctx, endpoint, u, &raw); err != nil {
		return nil, err
	}
	all, err := decodePairs(raw)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, p := range all {
		if p.ChainID == "" || strings.EqualFold(p.ChainID, DexScreenerChain) {
			out = append(out, p)
		}
	}
	return out, nil
}

// LookupTickers searches each ticker and keeps the most liquid pair whose
// base symbol matches exactly.
func (d *DexScreener) LookupTickers(ctx context.Context, tickers []string) (map[string]TokenMatch, error) {
	return d.searchEach(ctx, tickers, func(q string, p dexPair) bool {
		return strings.EqualFold(p.BaseToken.Symbol, q)
	})
}

// LookupNames searches each name and keeps the most liquid pair whose base
// name matches after whitespace folding.
func (d *DexScreener) LookupNames(ctx context.Context, names []string) (map[string]TokenMatch, error) {
	return d.searchEach(ctx, names, func(q string, p dexPair) bool {
		return strings.EqualFold(foldSpaces(p.BaseToken.Name), q)
	})
}

// searchEach runs one search per query. Queries that fail for reasons other
// than ErrNotFound are reported in a *LookupError next to the partial matches.
func (d *DexScreener) searchEach(ctx context.Context, queries []string, match func(string, dexPair) bool) (map[string]TokenMatch, error) {
	out := make(map[string]TokenMatch, len(queries))
	failed := make(map[string]error)
	for _, q := range uniqueNonEmpty(queries) {
		pairs, err := d.pairs(ctx, "dexscreener.search", d.buildURL("/latest/dex/search", map[string]string{"q": q}))
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			if !errors.Is(err, ErrNotFound) {
				d.logger.Warn("dexscreener search failed", zap.String("query", q), zap.Error(err))
				failed[q] = err
			}
			continue
		}

		var best *dexPair
		for i := range pairs {
			p := &pairs[i]
			if p.BaseToken.Address == "" || !match(q, *p) {
				continue
			}
			if best == nil || p.Liquidity.USD > best.Liquidity.USD {
				best = p
			}
		}
		if best == nil {
			continue
		}
		out[q] = TokenMatch{
			Address:    best.BaseToken.Address,
			Symbol:     best.BaseToken.Symbol,
			Name:       best.BaseToken.Name,
			Confidence: matchConfidence(*best),
		}
	}
	if len(failed) > 0 {
		return out, &LookupError{Failed: failed}
	}
	return out, nil
}

// LookupTokens fetches metadata for mints in batches of 30.
func (d *DexScreener) LookupTokens(ctx context.Context, mints []string) (map[string]TokenInfo, error) {
	out := make(map[string]TokenInfo, len(mints))
	for _, batch := range chunk(uniqueNonEmpty(mints), dexBatchSize) {
		u := d.buildURL("/latest/dex/tokens/"+strings.Join(batch, ","), nil)
		pairs, err := d.pairs(ctx, "dexscreener.tokens", u)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return out, fmt.Errorf("lookup tokens: %w", err)
		}

		wanted := make(map[string]bool, len(batch))
		for _, m := range batch {
			wanted[m] = true
		}
		for _, p := range pairs {
			for _, t := range []dexToken{p.BaseToken, p.QuoteToken} {
				if !wanted[t.Address] {
					continue
				}
				if _, seen := out[t.Address]; seen {
					continue
				}
				out[t.Address] = TokenInfo{Mint: t.Address, Symbol: t.Symbol, Name: t.Name}
			}
		}
	}
	return out, nil
}

// LookupPairs resolves pool addresses in batches of 30.
func (d *DexScreener) LookupPairs(ctx context.Context, addresses []string) (map[string]Pair, error) {
	out := make(map[string]Pair, len(addresses))
	for _, batch := range chunk(uniqueNonEmpty(addresses), dexBatchSize) {
		u := d.buildURL(fmt.Sprintf("/latest/dex/pairs/%s/%s", DexScreenerChain, strings.Join(batch, ",")), nil)
		pairs, err := d.pairs(ctx, "dexscreener.pairs", u)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return out, fmt.Errorf("lookup pairs: %w", err)
		}
		for _, p := range pairs {
			if p.PairAddress == "" {
				continue
			}
			out[p.PairAddress] = Pair{
				Address:      p.PairAddress,
				DexID:        p.DexID,
				BaseMint:     p.BaseToken.Address,
				QuoteMint:    p.QuoteToken.Address,
				LiquidityUSD: float64(p.Liquidity.USD),
			}
		}
	}
	return out, nil
}

func matchConfidence(p dexPair) int {
	c := matchBaseConfidence
	if p.Liquidity.USD >= liquidityBoostMinUSD {
		c += liquidityBoost
	}
	if p.Volume.H24 >= volumeBoostMinUSD {
		c += volumeBoost
	}
	if p.Boosts.Active > 0 {
		c += promotedBoost
	}
	if c > 100 {
		c = 100
	}
	return c
}

func foldSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func uniqueNonEmpty(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func chunk(in []string, size int) [][]string {
	var out [][]string
	for len(in) > 0 {
		n := size
		if len(in) < n {
			n = len(in)
		}
		out = append(out, in[:n])
		in = in[n:]
	}
	return out
}
