package pricing

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"mention-lab/internal/lookup"
	"mention-lab/internal/marketdata"
	"mention-lab/internal/observability"
	"mention-lab/internal/solana"
	"mention-lab/internal/storage"
)

// Reason explains a price-at outcome.
type Reason string

const (
	ReasonOK            Reason = "ok"
	ReasonBadMint       Reason = "bad-mint"
	ReasonTweetNotFound Reason = "tweet-not-found"
	ReasonTooFresh      Reason = "too-fresh"
	ReasonNoPools       Reason = "no-pools"
	ReasonNoPrice       Reason = "no-price"
	ReasonFetchError    Reason = "fetch-error" // upstream failed for discovery or every pool
)

// Defaults for PriceResolver.
const (
	DefaultGraceSeconds = 90
	DefaultTopPools     = 3
)

// Request asks for the price of TokenKey at the time of PostID.
type Request struct {
	PostID       string
	TokenKey     string
	GraceSeconds int64 // 0 uses the resolver default
}

// PriceResult is the outcome of one price-at lookup.
type PriceResult struct {
	OK          bool
	Price       *float64
	PoolAddress *string
	Reason      Reason
	Updated     bool // a NULL price was filled by this call
}

// PriceResolver computes the price at the moment of mention and stores it once.
type PriceResolver struct {
	pools    poolFinder
	market   marketdata.MarketSource
	posts    storage.PostStore
	mentions storage.MentionStore

	steps    []Step
	topPools int
	grace    int64

	logger *zap.Logger
	now    func() time.Time
}

// PriceResolverOptions for creating PriceResolver.
type PriceResolverOptions struct {
	// Required
	Market   marketdata.MarketSource
	Posts    storage.PostStore
	Mentions storage.MentionStore

	PoolCache    PoolCache // optional
	Steps        []Step    // empty uses DefaultSteps
	TopPools     int
	GraceSeconds int64

	Logger *zap.Logger
	Now    func() time.Time
}

// NewPriceResolver creates a new PriceResolver.
func NewPriceResolver(opts PriceResolverOptions) *PriceResolver {
	r := &PriceResolver{
		market:   opts.Market,
		posts:    opts.Posts,
		mentions: opts.Mentions,
		steps:    opts.Steps,
		topPools: opts.TopPools,
		grace:    opts.GraceSeconds,
		logger:   opts.Logger,
		now:      opts.Now,
	}
	if len(r.steps) == 0 {
		r.steps = DefaultSteps()
	}
	if r.topPools <= 0 {
		r.topPools = DefaultTopPools
	}
	if r.grace <= 0 {
		r.grace = DefaultGraceSeconds
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	if r.now == nil {
		r.now = time.Now
	}
	r.pools = poolFinder{market: opts.Market, cache: opts.PoolCache}
	return r
}

// Resolve prices one (post, token) pair. Misses are reported through Reason;
// only storage failures are returned as errors.
func (r *PriceResolver) Resolve(ctx context.Context, req Request) (PriceResult, error) {
	res, err := r.resolve(ctx, req)
	if err == nil {
		observability.RecordPriceOutcome(string(res.Reason))
	}
	return res, err
}

func (r *PriceResolver) resolve(ctx context.Context, req Request) (PriceResult, error) {
	if !solana.IsValidAddress(req.TokenKey) {
		return PriceResult{Reason: ReasonBadMint}, nil
	}

	post, err := r.posts.GetByID(ctx, req.PostID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return PriceResult{Reason: ReasonTweetNotFound}, nil
		}
		return PriceResult{}, storageErr("load post", err)
	}

	grace := req.GraceSeconds
	if grace <= 0 {
		grace = r.grace
	}
	ts := post.CreatedAtSeconds()
	if r.now().Unix()-ts < grace {
		return PriceResult{Reason: ReasonTooFresh}, nil
	}

	pools, err := r.pools.find(ctx, req.TokenKey)
	if err != nil {
		if ctx.Err() != nil {
			return PriceResult{}, ctx.Err()
		}
		r.logger.Warn("pool discovery failed",
			zap.String("mint", req.TokenKey), zap.Error(err))
		return PriceResult{Reason: ReasonFetchError}, nil
	}
	if len(pools) == 0 {
		return PriceResult{Reason: ReasonNoPools}, nil
	}
	if len(pools) > r.topPools {
		pools = pools[:r.topPools]
	}

	failed := 0
	for _, pool := range pools {
		price, ok, err := r.priceInPool(ctx, pool.Address, ts)
		if err != nil {
			if ctx.Err() != nil {
				return PriceResult{}, ctx.Err()
			}
			r.logger.Warn("candle fetch failed, trying next pool",
				zap.String("mint", req.TokenKey), zap.String("pool", pool.Address), zap.Error(err))
			failed++
			continue
		}
		if !ok {
			continue
		}

		updated, err := r.mentions.SetPriceIfNull(ctx, req.PostID, req.TokenKey, price, pool.Address)
		if err != nil {
			return PriceResult{}, storageErr("store price", err)
		}
		addr := pool.Address
		return PriceResult{OK: true, Price: &price, PoolAddress: &addr, Reason: ReasonOK, Updated: updated}, nil
	}

	if failed == len(pools) {
		return PriceResult{Reason: ReasonFetchError}, nil
	}
	return PriceResult{Reason: ReasonNoPrice}, nil
}

// priceInPool walks the fallback steps for one pool.
func (r *PriceResolver) priceInPool(ctx context.Context, pool string, ts int64) (float64, bool, error) {
	for _, step := range r.steps {
		tol := int64(step.Tolerance / time.Second)
		bucket := step.Timeframe.Seconds(step.Aggregate)

		candles, _, err := fetchRange(ctx, r.market, pool, step.Timeframe, step.Aggregate, ts-tol-bucket, ts+tol, 1)
		if err != nil {
			return 0, false, err
		}
		price, err := lookup.PriceAt(ts, tol, candles)
		if err == nil {
			return price, true, nil
		}
	}
	return 0, false, nil
}
