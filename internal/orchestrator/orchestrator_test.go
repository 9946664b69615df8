package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mention-lab/internal/assemble"
	"mention-lab/internal/domain"
	"mention-lab/internal/extract"
	"mention-lab/internal/marketdata"
	"mention-lab/internal/marketdata/stub"
	"mention-lab/internal/pricing"
	"mention-lab/internal/resolve"
	"mention-lab/internal/storage"
	"mention-lab/internal/storage/memory"
)

const (
	bonkMint = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"
	wifMint  = "EKpQGSJtjMFqKZ9KQanSqYXRcF8fBopzLHYxdM65zcjm"

	// 2024-01-10 12:00:00 UTC
	nowUnix int64 = 1704888000
)

func fixedNow() time.Time { return time.Unix(nowUnix, 0).UTC() }

type testEnv struct {
	posts    *memory.PostStore
	mentions *memory.MentionStore
	cursor   *memory.ScanCursorStore
	identity *stub.Identity
	market   *stub.Market

	mu       sync.Mutex
	progress []Progress
	items    []ItemEvent
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	posts := memory.NewPostStore()
	env := &testEnv{
		posts:    posts,
		mentions: memory.NewMentionStore(posts),
		cursor:   memory.NewScanCursorStore(),
		identity: stub.NewIdentity(),
		market:   stub.NewMarket(),
	}

	env.identity.Tickers["bonk"] = marketdata.TokenMatch{Address: bonkMint, Symbol: "Bonk", Name: "Bonk", Confidence: 90}
	env.identity.Tokens[bonkMint] = marketdata.TokenInfo{Mint: bonkMint, Symbol: "Bonk", Name: "Bonk"}
	env.identity.Tokens[wifMint] = marketdata.TokenInfo{Mint: wifMint, Symbol: "WIF", Name: "dogwifhat"}

	ts := nowUnix - 3600
	env.market.PoolsByMint[bonkMint] = []domain.Pool{{Address: "poolA", BaseMint: bonkMint, LiquidityUSD: 1000}}
	env.market.AddCandles("poolA", domain.TimeframeMinute, 15,
		domain.PriceCandle{Timestamp: ts - 300, Open: 1.9, Close: 2.0},
	)
	env.market.AddCandles("poolA", domain.TimeframeMinute, 5,
		domain.PriceCandle{Timestamp: ts + 300, High: 2.5, Volume: 10},
		domain.PriceCandle{Timestamp: ts + 1200, High: 2.2, Volume: 10},
	)

	ctx := context.Background()
	require.NoError(t, posts.Upsert(ctx, []*domain.Post{
		{PostID: "p1", Text: "buy $BONK now " + bonkMint, CreatedAt: ts * 1000},
		{PostID: "p2", Text: "fresh one " + wifMint, CreatedAt: (nowUnix - 30) * 1000},
		{PostID: "p3", Text: "nothing to see here", CreatedAt: (nowUnix - 7200) * 1000},
	}))
	return env
}

func (e *testEnv) orchestrator(mentions storage.MentionStore) *Orchestrator {
	if mentions == nil {
		mentions = e.mentions
	}
	return New(Options{
		Posts:     e.posts,
		Mentions:  mentions,
		Cursor:    e.cursor,
		Extractor: extract.New(extract.Options{}),
		Resolver: resolve.New(resolve.Options{
			Identity: e.identity,
			Metadata: memory.NewTokenMetadataStore(),
			Issues:   memory.NewUnresolvedIssueStore(),
			Now:      fixedNow,
		}),
		Planner: assemble.New(mentions, nil),
		Prices: pricing.NewPriceResolver(pricing.PriceResolverOptions{
			Market:   e.market,
			Posts:    e.posts,
			Mentions: mentions,
			Now:      fixedNow,
		}),
		MaxSince: pricing.NewMaxSinceEngine(pricing.MaxSinceOptions{
			Market:   e.market,
			Mentions: mentions,
			Candles:  memory.NewCandleStore(),
			Now:      fixedNow,
		}),
		Workers: 2,
		OnProgress: func(p Progress) {
			e.mu.Lock()
			e.progress = append(e.progress, p)
			e.mu.Unlock()
		},
		OnItem: func(ev ItemEvent) {
			e.mu.Lock()
			e.items = append(e.items, ev)
			e.mu.Unlock()
		},
		Now: fixedNow,
	})
}

func (e *testEnv) donePhases() map[Phase]Progress {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[Phase]Progress)
	for _, p := range e.progress {
		if p.Done {
			out[p.Phase] = p
		}
	}
	return out
}

func scanAll(t *testing.T, o *Orchestrator) *ScanResult {
	t.Helper()
	res, err := o.ScanWindow(context.Background(), time.Unix(nowUnix-86400, 0), fixedNow())
	require.NoError(t, err)
	return res
}

func TestScan_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	o := env.orchestrator(nil)

	first := scanAll(t, o)
	assert.Equal(t, 3, first.Scanned)
	assert.Equal(t, 3, first.Detected) // CA + ticker in p1, CA in p2
	assert.Equal(t, 2, first.Inserted)
	assert.Equal(t, 0, first.Noop)

	second := scanAll(t, o)
	assert.Equal(t, 0, second.Inserted)
	assert.Equal(t, 0, second.Updated)
	assert.Equal(t, 2, second.Noop)

	rows, err := env.mentions.GetByPost(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, bonkMint, rows[0].TokenKey)
	assert.Equal(t, domain.SourceContractAddress, rows[0].SourceKind)

	done := env.donePhases()
	for _, ph := range []Phase{PhaseExtract, PhaseResolve, PhasePersist} {
		assert.Contains(t, done, ph)
	}
	assert.Equal(t, 100.0, done[PhaseExtract].Percent)
}

func TestScan_WeakTickerNeedsAddress(t *testing.T) {
	env := newTestEnv(t)
	weak := env.identity.Tickers["bonk"]
	weak.Confidence = 50
	env.identity.Tickers["bonk"] = weak

	require.NoError(t, env.posts.Upsert(context.Background(), []*domain.Post{
		{PostID: "p4", Text: "$BONK to the moon", CreatedAt: (nowUnix - 600) * 1000},
	}))

	res := scanAll(t, env.orchestrator(nil))
	assert.Equal(t, 4, res.Scanned)
	assert.Equal(t, 1, res.Suppressed)
	assert.Equal(t, 2, res.Inserted)

	rows, err := env.mentions.GetByPost(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, bonkMint, rows[0].TokenKey)
	assert.Equal(t, domain.SourceContractAddress, rows[0].SourceKind)

	rows, err = env.mentions.GetByPost(context.Background(), "p4")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestBackfill_CountsReasons(t *testing.T) {
	env := newTestEnv(t)
	o := env.orchestrator(nil)
	ctx := context.Background()
	scanAll(t, o)

	res, err := o.BackfillPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, 1, res.OK)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, map[pricing.Reason]int{pricing.ReasonOK: 1, pricing.ReasonTooFresh: 1}, res.Reasons)

	rows, err := env.mentions.GetByPost(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, rows[0].PriceAtMention)
	assert.Equal(t, 2.0, *rows[0].PriceAtMention)

	env.mu.Lock()
	assert.Len(t, env.items, 2)
	env.mu.Unlock()

	done := env.donePhases()
	require.Contains(t, done, PhaseBackfill)
	assert.Equal(t, 2, done[PhaseBackfill].Processed)

	// priced rows drop out of the pending list
	again, err := o.BackfillPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, again.Total)
	assert.Equal(t, 0, again.Updated)
}

type failingMentions struct {
	*memory.MentionStore
	priceErr error
	maxErr   error
}

func (f *failingMentions) SetPriceIfNull(ctx context.Context, postID, tokenKey string, price float64, pool string) (bool, error) {
	if f.priceErr != nil {
		return false, f.priceErr
	}
	return f.MentionStore.SetPriceIfNull(ctx, postID, tokenKey, price, pool)
}

func (f *failingMentions) SetMaxSince(ctx context.Context, postID, tokenKey string, maxPrice *float64, maxAt *int64) error {
	if f.maxErr != nil {
		return f.maxErr
	}
	return f.MentionStore.SetMaxSince(ctx, postID, tokenKey, maxPrice, maxAt)
}

func TestBackfill_StorageErrorAborts(t *testing.T) {
	env := newTestEnv(t)
	failing := &failingMentions{MentionStore: env.mentions}
	o := env.orchestrator(failing)
	scanAll(t, o)

	failing.priceErr = errors.New("disk full")
	_, err := o.BackfillPending(context.Background())
	require.Error(t, err)
	assert.True(t, pricing.IsStorage(err))
}

func TestBackfill_Empty(t *testing.T) {
	env := newTestEnv(t)
	o := env.orchestrator(nil)

	res, err := o.Backfill(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Total)
	assert.NotEmpty(t, res.RunID)
}

func TestScanNew_AdvancesCursor(t *testing.T) {
	env := newTestEnv(t)
	o := env.orchestrator(nil)
	ctx := context.Background()

	first, err := o.ScanNew(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, first.Scanned)

	cur, err := env.cursor.GetCursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, "p2", cur.PostID)
	assert.Equal(t, (nowUnix-30)*1000, cur.CreatedAt)

	// same millisecond as the cursor, later id
	require.NoError(t, env.posts.Upsert(ctx, []*domain.Post{
		{PostID: "p4", Text: "again " + bonkMint, CreatedAt: (nowUnix - 30) * 1000},
	}))

	second, err := o.ScanNew(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, second.Scanned)
	assert.Equal(t, 1, second.Inserted)

	third, err := o.ScanNew(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, third.Scanned)
}

func TestScanNew_RequiresCursor(t *testing.T) {
	env := newTestEnv(t)
	o := New(Options{Posts: env.posts, Mentions: env.mentions})

	_, err := o.ScanNew(context.Background())
	assert.Error(t, err)
}

func TestMaxSince_ComputesPerToken(t *testing.T) {
	env := newTestEnv(t)
	o := env.orchestrator(nil)
	ctx := context.Background()
	scanAll(t, o)

	res, err := o.MaxSince(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Tokens)
	assert.Equal(t, 2, res.Mentions)
	assert.Equal(t, 1, res.Priced)
	assert.Equal(t, 0, res.Failed)

	rows, err := env.mentions.GetByPost(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, rows[0].MaxPriceSinceMention)
	assert.Equal(t, 2.5, *rows[0].MaxPriceSinceMention)
	assert.Equal(t, nowUnix-3600+300, *rows[0].MaxPriceAt)

	wif, err := env.mentions.GetByPost(ctx, "p2")
	require.NoError(t, err)
	assert.Nil(t, wif[0].MaxPriceSinceMention)
}

func TestMaxSince_UpstreamErrorCounted(t *testing.T) {
	env := newTestEnv(t)
	o := env.orchestrator(nil)
	scanAll(t, o)
	env.market.CandleErr["poolA"] = errors.New("upstream 500")

	res, err := o.MaxSince(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 0, res.Priced)
}

func TestMaxSince_StorageErrorAborts(t *testing.T) {
	env := newTestEnv(t)
	failing := &failingMentions{MentionStore: env.mentions}
	o := env.orchestrator(failing)
	scanAll(t, o)

	failing.maxErr = errors.New("connection reset")
	_, err := o.MaxSince(context.Background())
	require.Error(t, err)
	assert.True(t, pricing.IsStorage(err))
}

func TestRunCycle(t *testing.T) {
	env := newTestEnv(t)
	o := env.orchestrator(nil)

	res, err := o.RunCycle(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res.Scan)
	require.NotNil(t, res.Backfill)
	require.NotNil(t, res.MaxSince)
	assert.Equal(t, 2, res.Scan.Inserted)
	assert.Equal(t, 1, res.Backfill.OK)
	assert.Equal(t, 1, res.MaxSince.Priced)
}

func TestSnapshot_ETA(t *testing.T) {
	p := snapshot("r", PhaseBackfill, 10, 4, 8*time.Second, false)
	assert.Equal(t, 40.0, p.Percent)
	assert.Equal(t, 12*time.Second, p.ETA)

	done := snapshot("r", PhaseBackfill, 10, 10, 20*time.Second, true)
	assert.Equal(t, time.Duration(0), done.ETA)
	assert.Equal(t, 100.0, done.Percent)
}
