package marketdata

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"mention-lab/internal/domain"
)

// GeckoTerminal defaults.
const (
	DefaultGeckoTerminalURL = "https://api.geckoterminal.com/api/v2"
	GeckoTerminalNetwork    = "solana"
	MaxCandleLimit          = 1000
)

// GeckoTerminal implements MarketSource over the public GeckoTerminal API.
type GeckoTerminal struct {
	httpClient
	baseURL string
}

var _ MarketSource = (*GeckoTerminal)(nil)

// NewGeckoTerminal creates a GeckoTerminal client. An empty baseURL uses the public API.
func NewGeckoTerminal(baseURL string, opts ...ClientOption) *GeckoTerminal {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultGeckoTerminalURL
	}
	return &GeckoTerminal{
		httpClient: newHTTPClient(opts),
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

type geckoRef struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

type geckoPoolsResponse struct {
	Data []struct {
		ID         string `json:"id"`
		Attributes struct {
			Address      string    `json:"address"`
			ReserveInUSD flexFloat `json:"reserve_in_usd"`
		} `json:"attributes"`
		Relationships struct {
			Dex       geckoRef `json:"dex"`
			BaseToken geckoRef `json:"base_token"`
		} `json:"relationships"`
	} `json:"data"`
}

type geckoOHLCVResponse struct {
	Data struct {
		Attributes struct {
			OHLCVList [][]flexFloat `json:"ohlcv_list"`
		} `json:"attributes"`
	} `json:"data"`
}

// stripNetwork turns "solana_<addr>" ids into bare addresses.
func stripNetwork(id string) string {
	return strings.TrimPrefix(id, GeckoTerminalNetwork+"_")
}

// Pools returns the token's pools ordered by reserve, highest first.
// A token unknown upstream yields an empty list.
func (g *GeckoTerminal) Pools(ctx context.Context, mint string) ([]domain.Pool, error) {
	u := fmt.Sprintf("%s/networks/%s/tokens/%s/pools", g.baseURL, GeckoTerminalNetwork, url.PathEscape(mint))

	var resp geckoPoolsResponse
	if err := g.getJSON(ctx, "geckoterminal.pools", u, &resp); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("pools %s: %w", mint, err)
	}

	pools := make([]domain.Pool, 0, len(resp.Data))
	for _, d := range resp.Data {
		addr := d.Attributes.Address
		if addr == "" {
			addr = stripNetwork(d.ID)
		}
		if addr == "" {
			continue
		}
		pools = append(pools, domain.Pool{
			Address:      addr,
			DexID:        d.Relationships.Dex.Data.ID,
			LiquidityUSD: float64(d.Attributes.ReserveInUSD),
			BaseMint:     stripNetwork(d.Relationships.BaseToken.Data.ID),
		})
	}
	sort.SliceStable(pools, func(i, j int) bool {
		return pools[i].LiquidityUSD > pools[j].LiquidityUSD
	})
	return pools, nil
}

// Candles fetches one page of OHLCV bars in USD, ascending by timestamp.
func (g *GeckoTerminal) Candles(ctx context.Context, q CandleQuery) ([]domain.PriceCandle, error) {
	tf := q.Timeframe
	if tf == "" {
		tf = domain.TimeframeDay
	}
	limit := q.Limit
	if limit <= 0 || limit > MaxCandleLimit {
		limit = MaxCandleLimit
	}
	aggregate := q.Aggregate
	if aggregate <= 0 {
		aggregate = 1
	}

	params := url.Values{}
	params.Set("aggregate", strconv.Itoa(aggregate))
	params.Set("limit", strconv.Itoa(limit))
	params.Set("currency", "usd")
	if q.Before > 0 {
		params.Set("before_timestamp", strconv.FormatInt(q.Before, 10))
	}
	u := fmt.Sprintf("%s/networks/%s/pools/%s/ohlcv/%s?%s",
		g.baseURL, GeckoTerminalNetwork, url.PathEscape(q.Pool), tf, params.Encode())

	var resp geckoOHLCVResponse
	if err := g.getJSON(ctx, "geckoterminal.ohlcv", u, &resp); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("candles %s/%s: %w", q.Pool, tf, err)
	}

	candles := make([]domain.PriceCandle, 0, len(resp.Data.Attributes.OHLCVList))
	for _, row := range resp.Data.Attributes.OHLCVList {
		if len(row) < 6 {
			continue
		}
		candles = append(candles, domain.PriceCandle{
			Pool:      q.Pool,
			Timeframe: tf,
			Timestamp: int64(row[0]),
			Open:      float64(row[1]),
			High:      float64(row[2]),
			Low:       float64(row[3]),
			Close:     float64(row[4]),
			Volume:    float64(row[5]),
		})
	}
	sort.SliceStable(candles, func(i, j int) bool {
		return candles[i].Timestamp < candles[j].Timestamp
	})
	return candles, nil
}
