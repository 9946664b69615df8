package pricing

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"mention-lab/internal/domain"
	"mention-lab/internal/lookup"
	"mention-lab/internal/marketdata"
	"mention-lab/internal/observability"
	"mention-lab/internal/solana"
	"mention-lab/internal/storage"
)

// Pool selection modes for the max-since series.
const (
	ModePrimary = "primary"
	ModeTop3    = "top3"
)

// Defaults for MaxSinceEngine.
const (
	DefaultPatchAggregate = 5
	DefaultMaxPages       = 10
)

// MaxSince is the peak high at or after one mention.
type MaxSince struct {
	PostID   string
	TokenKey string
	MaxPrice *float64
	MaxAt    *int64 // unix seconds of the peak candle
}

// SeriesArchiver stores the merged candle series of one computation.
type SeriesArchiver interface {
	Archive(ctx context.Context, token string, candles []domain.PriceCandle) error
}

// MaxSinceEngine computes and stores max_price_since_mention for all mentions of a token.
type MaxSinceEngine struct {
	pools    poolFinder
	market   marketdata.MarketSource
	candles  storage.CandleStore
	mentions storage.MentionStore
	archiver SeriesArchiver

	mode           string
	patchAggregate int
	maxPages       int
	minVolume      float64

	logger *zap.Logger
	now    func() time.Time
}

// MaxSinceOptions for creating MaxSinceEngine.
type MaxSinceOptions struct {
	// Required
	Market   marketdata.MarketSource
	Mentions storage.MentionStore

	Candles   storage.CandleStore // optional closed-day cache
	PoolCache PoolCache           // optional
	Archiver  SeriesArchiver      // optional

	Mode           string  // ModePrimary or ModeTop3
	PatchAggregate int     // minute aggregate of the edge patches; negative disables
	MaxPages       int     // day-candle pages per pool
	MinVolume      float64 // drop candles below this USD volume; 0 keeps all

	Logger *zap.Logger
	Now    func() time.Time
}

// NewMaxSinceEngine creates a new MaxSinceEngine.
func NewMaxSinceEngine(opts MaxSinceOptions) *MaxSinceEngine {
	e := &MaxSinceEngine{
		pools:          poolFinder{market: opts.Market, cache: opts.PoolCache},
		market:         opts.Market,
		candles:        opts.Candles,
		mentions:       opts.Mentions,
		archiver:       opts.Archiver,
		mode:           opts.Mode,
		patchAggregate: opts.PatchAggregate,
		maxPages:       opts.MaxPages,
		minVolume:      opts.MinVolume,
		logger:         opts.Logger,
		now:            opts.Now,
	}
	if e.mode != ModeTop3 {
		e.mode = ModePrimary
	}
	if e.patchAggregate == 0 {
		e.patchAggregate = DefaultPatchAggregate
	}
	if e.maxPages <= 0 {
		e.maxPages = DefaultMaxPages
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// Compute builds one merged candle series for token and writes the peak since
// each mention. Mentions with no candle at or after them get a nil pair in the
// result and their stored peak is left as is.
// Storage failures come back as *StorageError; upstream failures as plain errors.
func (e *MaxSinceEngine) Compute(ctx context.Context, token string, mentions []domain.MentionRef) ([]MaxSince, error) {
	if len(mentions) == 0 {
		return nil, nil
	}

	var series []domain.PriceCandle
	if solana.IsValidAddress(token) {
		var err error
		series, err = e.series(ctx, token, earliest(mentions))
		if err != nil {
			observability.RecordMaxSinceToken("failed")
			return nil, err
		}
	}

	if e.archiver != nil && len(series) > 0 {
		if err := e.archiver.Archive(ctx, token, series); err != nil {
			e.logger.Warn("archive series failed", zap.String("token", token), zap.Error(err))
		}
	}

	sm := lookup.BuildSuffixMax(series)
	out := make([]MaxSince, 0, len(mentions))
	for _, m := range mentions {
		r := MaxSince{PostID: m.PostID, TokenKey: token}
		if m.MentionedAt > 0 {
			if high, at, ok := sm.From(m.MentionedAt); ok {
				r.MaxPrice = &high
				r.MaxAt = &at
			}
		}
		out = append(out, r)
		if r.MaxPrice == nil {
			continue
		}
		if err := e.mentions.SetMaxSince(ctx, m.PostID, token, r.MaxPrice, r.MaxAt); err != nil {
			observability.RecordMaxSinceToken("failed")
			return nil, storageErr("store max since", err)
		}
	}

	status := "ok"
	if sm.Len() == 0 {
		status = "empty"
	}
	observability.RecordMaxSinceToken(status)
	e.logger.Debug("max since computed",
		zap.String("token", token),
		zap.Int("mentions", len(mentions)),
		zap.Int("candles", sm.Len()),
	)
	return out, nil
}

// series fetches and merges candles of the selected pools from the earliest mention on.
func (e *MaxSinceEngine) series(ctx context.Context, token string, from int64) ([]domain.PriceCandle, error) {
	if from <= 0 {
		return nil, nil
	}

	pools, err := e.pools.find(ctx, token)
	if err != nil {
		return nil, err
	}
	if len(pools) == 0 {
		return nil, nil
	}
	n := 1
	if e.mode == ModeTop3 {
		n = 3
	}
	if len(pools) > n {
		pools = pools[:n]
	}

	now := e.now().Unix()
	var merged []domain.PriceCandle
	for _, p := range pools {
		days, err := e.dayCandles(ctx, p.Address, dayStart(from), now)
		if err != nil {
			return nil, err
		}
		merged = append(merged, days...)

		patches, err := e.patches(ctx, p.Address, from, now)
		if err != nil {
			return nil, err
		}
		merged = append(merged, patches...)
	}

	if e.minVolume > 0 {
		kept := merged[:0]
		for _, c := range merged {
			if c.Volume >= e.minVolume {
				kept = append(kept, c)
			}
		}
		merged = kept
	}
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Timestamp < merged[j].Timestamp })
	return merged, nil
}

// dayCandles returns day candles from firstDay through today. Closed days
// already in the candle store are not fetched again.
func (e *MaxSinceEngine) dayCandles(ctx context.Context, pool string, firstDay, now int64) ([]domain.PriceCandle, error) {
	today := dayStart(now)

	var cached []domain.PriceCandle
	if e.candles != nil && firstDay < today {
		var err error
		cached, err = e.candles.GetRange(ctx, pool, domain.TimeframeDay, firstDay, today-1)
		if err != nil {
			return nil, storageErr("load cached candles", err)
		}
	}

	start := firstDay
	usable := len(cached) > 0 && cached[0].Timestamp <= firstDay
	if usable {
		start = cached[len(cached)-1].Timestamp + secondsPerDay
		observability.RecordCandlesFromCache(len(cached))
	} else {
		cached = nil
	}

	fetched, _, err := fetchRange(ctx, e.market, pool, domain.TimeframeDay, 1, start, now, e.maxPages)
	if err != nil {
		return nil, fmt.Errorf("fetch day candles %s: %w", pool, err)
	}

	var fresh, closed []domain.PriceCandle
	for _, c := range fetched {
		if c.Timestamp < start {
			continue
		}
		c.Pool = pool
		c.Timeframe = domain.TimeframeDay
		fresh = append(fresh, c)
		if c.Timestamp < today {
			closed = append(closed, c)
		}
	}

	if e.candles != nil && len(closed) > 0 {
		if err := e.candles.InsertBulk(ctx, closed); err != nil {
			return nil, storageErr("cache day candles", err)
		}
	}

	return append(cached, fresh...), nil
}

// patches fetches minute candles for the rest of the first mention's day and
// for today, where day candles are too coarse.
func (e *MaxSinceEngine) patches(ctx context.Context, pool string, from, now int64) ([]domain.PriceCandle, error) {
	if e.patchAggregate < 0 {
		return nil, nil
	}

	type window struct{ start, end int64 }
	today := dayStart(now)
	firstEnd := dayStart(from) + secondsPerDay - 1

	var windows []window
	if firstEnd >= today {
		windows = append(windows, window{from, now})
	} else {
		windows = append(windows, window{from, firstEnd}, window{today, now})
	}

	var out []domain.PriceCandle
	for _, w := range windows {
		c, _, err := fetchRange(ctx, e.market, pool, domain.TimeframeMinute, e.patchAggregate, w.start, w.end, e.maxPages)
		if err != nil {
			return nil, fmt.Errorf("fetch patch candles %s: %w", pool, err)
		}
		out = append(out, c...)
	}
	return out, nil
}

func earliest(mentions []domain.MentionRef) int64 {
	var first int64
	for _, m := range mentions {
		if m.MentionedAt <= 0 {
			continue
		}
		if first == 0 || m.MentionedAt < first {
			first = m.MentionedAt
		}
	}
	return first
}
