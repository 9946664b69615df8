// Package pricing attaches market prices to mentions: the price at the moment
// of mention and the peak high observed afterward.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mention-lab/internal/domain"
	"mention-lab/internal/marketdata"
	"mention-lab/internal/observability"
)

const secondsPerDay = 86400

// Step is one layer of the price-at fallback: candles of Timeframe/Aggregate
// searched within ±Tolerance of the mention time.
type Step struct {
	Timeframe domain.Timeframe
	Aggregate int
	Tolerance time.Duration
}

// DefaultSteps tries a coarse 15-minute window first, then a tight 1-minute one.
func DefaultSteps() []Step {
	return []Step{
		{Timeframe: domain.TimeframeMinute, Aggregate: 15, Tolerance: time.Hour},
		{Timeframe: domain.TimeframeMinute, Aggregate: 1, Tolerance: 10 * time.Minute},
	}
}

// PoolCache caches pool discovery per mint. Implementations treat their own
// failures as misses.
type PoolCache interface {
	GetPools(ctx context.Context, mint string) ([]domain.Pool, bool)
	SetPools(ctx context.Context, mint string, pools []domain.Pool)
}

// StorageError marks a failed store call. The orchestrator aborts on it;
// everything else is a per-item failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsStorage reports whether err carries a StorageError.
func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

// poolFinder discovers pools through an optional cache.
type poolFinder struct {
	market marketdata.MarketSource
	cache  PoolCache
}

func (f poolFinder) find(ctx context.Context, mint string) ([]domain.Pool, error) {
	if f.cache != nil {
		if pools, ok := f.cache.GetPools(ctx, mint); ok {
			observability.RecordCacheLookup("pools", true)
			return pools, nil
		}
		observability.RecordCacheLookup("pools", false)
	}

	pools, err := f.market.Pools(ctx, mint)
	if err != nil {
		return nil, fmt.Errorf("discover pools for %s: %w", mint, err)
	}
	if f.cache != nil && len(pools) > 0 {
		f.cache.SetPools(ctx, mint, pools)
	}
	return pools, nil
}

// fetchRange pages backward from end until a candle at or before start is
// seen, the source runs dry, or maxPages pages were read. Result is ascending.
func fetchRange(ctx context.Context, src marketdata.MarketSource, pool string, tf domain.Timeframe, aggregate int, start, end int64, maxPages int) ([]domain.PriceCandle, int, error) {
	bucket := tf.Seconds(aggregate)
	before := end + 1
	if maxPages <= 0 {
		maxPages = 1
	}

	var out []domain.PriceCandle
	pages := 0
	for pages < maxPages {
		want := (before-start)/bucket + 1
		if want < 1 {
			want = 1
		}
		limit := marketdata.MaxCandleLimit
		if want < int64(limit) {
			limit = int(want)
		}

		page, err := src.Candles(ctx, marketdata.CandleQuery{
			Pool:      pool,
			Timeframe: tf,
			Aggregate: aggregate,
			Before:    before,
			Limit:     limit,
		})
		if err != nil {
			return nil, pages, err
		}
		pages++
		if len(page) == 0 {
			break
		}
		out = append(page, out...)

		oldest := page[0].Timestamp
		if oldest <= start || len(page) < limit || oldest >= before {
			break
		}
		before = oldest
	}

	// drop bars that end before start
	i := 0
	for i < len(out) && out[i].Timestamp+bucket <= start {
		i++
	}
	out = out[i:]

	observability.RecordCandlesFetched(string(tf), len(out))
	return out, pages, nil
}

func dayStart(ts int64) int64 {
	return ts - ts%secondsPerDay
}
