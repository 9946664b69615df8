// Package stub provides map-backed marketdata sources for tests.
package stub

import (
	"context"
	"sort"
	"sync"

	"mention-lab/internal/domain"
	"mention-lab/internal/marketdata"
)

// Identity implements marketdata.IdentitySource from in-memory maps.
type Identity struct {
	Tickers map[string]marketdata.TokenMatch
	Names   map[string]marketdata.TokenMatch
	Tokens  map[string]marketdata.TokenInfo
	Pairs   map[string]marketdata.Pair

	// Err, when set, is returned by every lookup.
	Err error
	// SearchErr fails single ticker or name queries the way a search
	// adapter does: a *marketdata.LookupError next to the other matches.
	SearchErr map[string]error

	mu    sync.Mutex
	calls map[string]int
}

var _ marketdata.IdentitySource = (*Identity)(nil)

// NewIdentity creates an empty stub identity source.
func NewIdentity() *Identity {
	return &Identity{
		Tickers:   make(map[string]marketdata.TokenMatch),
		Names:     make(map[string]marketdata.TokenMatch),
		Tokens:    make(map[string]marketdata.TokenInfo),
		Pairs:     make(map[string]marketdata.Pair),
		SearchErr: make(map[string]error),
		calls:     make(map[string]int),
	}
}

// Calls returns how many times a lookup method was invoked.
func (s *Identity) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

func (s *Identity) record(method string) {
	s.mu.Lock()
	s.calls[method]++
	s.mu.Unlock()
}

// LookupTickers returns the configured ticker matches.
func (s *Identity) LookupTickers(_ context.Context, tickers []string) (map[string]marketdata.TokenMatch, error) {
	s.record("tickers")
	if s.Err != nil {
		return nil, s.Err
	}
	return s.search(s.Tickers, tickers)
}

// LookupNames returns the configured name matches.
func (s *Identity) LookupNames(_ context.Context, names []string) (map[string]marketdata.TokenMatch, error) {
	s.record("names")
	if s.Err != nil {
		return nil, s.Err
	}
	return s.search(s.Names, names)
}

// LookupTokens returns the configured token metadata.
func (s *Identity) LookupTokens(_ context.Context, mints []string) (map[string]marketdata.TokenInfo, error) {
	s.record("tokens")
	if s.Err != nil {
		return nil, s.Err
	}
	return pick(s.Tokens, mints), nil
}

// LookupPairs returns the configured pairs.
func (s *Identity) LookupPairs(_ context.Context, addresses []string) (map[string]marketdata.Pair, error) {
	s.record("pairs")
	if s.Err != nil {
		return nil, s.Err
	}
	return pick(s.Pairs, addresses), nil
}

func (s *Identity) search(src map[string]marketdata.TokenMatch, queries []string) (map[string]marketdata.TokenMatch, error) {
	out := pick(src, queries)
	failed := make(map[string]error)
	for _, q := range queries {
		if err, ok := s.SearchErr[q]; ok {
			delete(out, q)
			failed[q] = err
		}
	}
	if len(failed) > 0 {
		return out, &marketdata.LookupError{Failed: failed}
	}
	return out, nil
}

func pick[V any](src map[string]V, keys []string) map[string]V {
	out := make(map[string]V)
	for _, k := range keys {
		if v, ok := src[k]; ok {
			out[k] = v
		}
	}
	return out
}

// Market implements marketdata.MarketSource from in-memory series.
type Market struct {
	// PoolsByMint lists pools per mint; returned sorted by liquidity.
	PoolsByMint map[string][]domain.Pool

	// Series holds every candle per pool and timeframe; Candles pages through it.
	Series map[SeriesKey][]domain.PriceCandle

	// PoolErr and CandleErr inject per-pool or per-mint failures.
	PoolErr   map[string]error
	CandleErr map[string]error

	mu      sync.Mutex
	queries []marketdata.CandleQuery
	poolReq int
}

// SeriesKey identifies one candle series.
type SeriesKey struct {
	Pool      string
	Timeframe domain.Timeframe
	Aggregate int
}

var _ marketdata.MarketSource = (*Market)(nil)

// NewMarket creates an empty stub market source.
func NewMarket() *Market {
	return &Market{
		PoolsByMint: make(map[string][]domain.Pool),
		Series:      make(map[SeriesKey][]domain.PriceCandle),
		PoolErr:     make(map[string]error),
		CandleErr:   make(map[string]error),
	}
}

// AddCandles appends candles to a series, keeping it sorted.
func (m *Market) AddCandles(pool string, tf domain.Timeframe, aggregate int, candles ...domain.PriceCandle) {
	key := SeriesKey{Pool: pool, Timeframe: tf, Aggregate: aggregate}
	for _, c := range candles {
		c.Pool = pool
		c.Timeframe = tf
		m.Series[key] = append(m.Series[key], c)
	}
	s := m.Series[key]
	sort.SliceStable(s, func(i, j int) bool { return s[i].Timestamp < s[j].Timestamp })
}

// Queries returns the candle queries received so far.
func (m *Market) Queries() []marketdata.CandleQuery {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]marketdata.CandleQuery, len(m.queries))
	copy(out, m.queries)
	return out
}

// PoolRequests returns how many pool discoveries were made.
func (m *Market) PoolRequests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.poolReq
}

// Pools returns the configured pools ranked by liquidity.
func (m *Market) Pools(_ context.Context, mint string) ([]domain.Pool, error) {
	m.mu.Lock()
	m.poolReq++
	m.mu.Unlock()

	if err := m.PoolErr[mint]; err != nil {
		return nil, err
	}
	pools := make([]domain.Pool, len(m.PoolsByMint[mint]))
	copy(pools, m.PoolsByMint[mint])
	sort.SliceStable(pools, func(i, j int) bool { return pools[i].LiquidityUSD > pools[j].LiquidityUSD })
	return pools, nil
}

// Candles returns up to q.Limit candles strictly before q.Before, ascending.
func (m *Market) Candles(_ context.Context, q marketdata.CandleQuery) ([]domain.PriceCandle, error) {
	m.mu.Lock()
	m.queries = append(m.queries, q)
	m.mu.Unlock()

	if err := m.CandleErr[q.Pool]; err != nil {
		return nil, err
	}

	agg := q.Aggregate
	if agg <= 0 {
		agg = 1
	}
	series := m.Series[SeriesKey{Pool: q.Pool, Timeframe: q.Timeframe, Aggregate: agg}]

	end := len(series)
	if q.Before > 0 {
		end = sort.Search(len(series), func(i int) bool { return series[i].Timestamp >= q.Before })
	}
	limit := q.Limit
	if limit <= 0 || limit > marketdata.MaxCandleLimit {
		limit = marketdata.MaxCandleLimit
	}
	start := end - limit
	if start < 0 {
		start = 0
	}

	out := make([]domain.PriceCandle, end-start)
	copy(out, series[start:end])
	return out, nil
}
