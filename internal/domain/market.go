package domain

// Timeframe is a candle granularity as named by the market-data API.
type Timeframe string

const (
	TimeframeDay    Timeframe = "day"
	TimeframeHour   Timeframe = "hour"
	TimeframeMinute Timeframe = "minute"
)

// Seconds returns the bucket width for an aggregate of this timeframe.
func (t Timeframe) Seconds(aggregate int) int64 {
	if aggregate <= 0 {
		aggregate = 1
	}
	switch t {
	case TimeframeDay:
		return 86400 * int64(aggregate)
	case TimeframeHour:
		return 3600 * int64(aggregate)
	default:
		return 60 * int64(aggregate)
	}
}

// Pool is an on-chain trading venue for a token.
type Pool struct {
	Address      string  // pool (pair) address
	DexID        string  // dex identifier, e.g. raydium
	LiquidityUSD float64 // reserve in USD, ranking key
	BaseMint     string  // base token mint (may be empty)
}

// PriceCandle is an OHLCV bar.
// Corresponds to price_candles table in ClickHouse.
type PriceCandle struct {
	Pool      string    // pool the bar belongs to
	Timeframe Timeframe // granularity it was fetched at
	Timestamp int64     // bucket start, Unix seconds
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64 // volume in USD
}
