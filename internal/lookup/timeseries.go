package lookup

import (
	"errors"
	"math"
	"sort"

	"mention-lab/internal/domain"
)

// Errors returned by lookup functions.
var (
	ErrNoPriceData = errors.New("no price data available")
)

// PriceAt returns the close of the last candle starting at or before target,
// provided it is no older than tolerance seconds. Otherwise it falls back to
// the open of the first candle after target within tolerance.
// Candles must be sorted by Timestamp ascending.
// Returns ErrNoPriceData when nothing usable is within tolerance.
func PriceAt(target, tolerance int64, candles []domain.PriceCandle) (float64, error) {
	if len(candles) == 0 {
		return 0, ErrNoPriceData
	}

	// First index with Timestamp > target.
	i := sort.Search(len(candles), func(i int) bool { return candles[i].Timestamp > target })

	if i > 0 {
		c := candles[i-1]
		if target-c.Timestamp <= tolerance && usable(c.Close) {
			return c.Close, nil
		}
	}
	if i < len(candles) {
		c := candles[i]
		if c.Timestamp-target <= tolerance && usable(c.Open) {
			return c.Open, nil
		}
	}

	return 0, ErrNoPriceData
}

func usable(p float64) bool {
	return p > 0 && !math.IsNaN(p) && !math.IsInf(p, 0)
}
